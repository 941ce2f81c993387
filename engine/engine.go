// Copyright 2025 nextbook Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine answers top-N recommendation queries against a loaded
// artifact bundle. Bundles are immutable, so any number of concurrent queries
// may read the current bundle without synchronization; swapping to a newly
// trained bundle is a single pointer store.
package engine

import (
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"modernc.org/mathutil"

	"github.com/nextbook-io/nextbook/artifact"
	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/knn"
)

const queryCacheTTL = time.Minute

// Result is one recommended item.
type Result struct {
	ItemId string
	Score  float64
}

// Recommendation is an ordered top-N answer. Fallback reports that the
// popularity cold-start path produced the list instead of the similarity
// index, so callers can tell degraded answers from personalized ones.
type Recommendation struct {
	Items    []Result
	Fallback bool
}

// UnknownEntityError is returned for unresolved IDs only when the caller
// requested strict resolution; the default behavior is cold-start fallback.
type UnknownEntityError struct {
	Kind string // "user" or "item"
	Id   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Id)
}

type queryOptions struct {
	strict bool
}

// QueryOption customizes a single query.
type QueryOption func(*queryOptions)

// WithStrict turns unresolved IDs into UnknownEntityError instead of serving
// the popularity fallback.
func WithStrict() QueryOption {
	return func(o *queryOptions) {
		o.strict = true
	}
}

// Engine serves recommendation queries from the current bundle.
type Engine struct {
	bundle *atomic.Pointer[artifact.Bundle]
	cache  *ttlcache.Cache[string, *Recommendation]
}

// NewEngine creates an engine serving the given bundle.
func NewEngine(b *artifact.Bundle) *Engine {
	e := &Engine{
		bundle: atomic.NewPointer(b),
		cache:  ttlcache.New(ttlcache.WithTTL[string, *Recommendation](queryCacheTTL)),
	}
	go e.cache.Start()
	return e
}

// Bundle returns the currently served bundle.
func (e *Engine) Bundle() *artifact.Bundle {
	return e.bundle.Load()
}

// Swap publishes a newly trained bundle. In-flight queries keep the bundle
// they loaded; later queries observe the new bundle in full, never a mix.
// Cache keys carry the bundle ID, so an in-flight query finishing after the
// swap cannot re-insert an entry that a post-swap lookup would match;
// DeleteAll only reclaims the dead entries early.
func (e *Engine) Swap(b *artifact.Bundle) {
	e.bundle.Store(b)
	e.cache.DeleteAll()
}

// Close stops the cache janitor.
func (e *Engine) Close() {
	e.cache.Stop()
}

// RecommendByItem returns the topN nearest neighbors of an item, the anchor
// itself excluded. Unknown items degrade to the popularity fallback unless
// the query is strict.
func (e *Engine) RecommendByItem(itemId string, topN int, opts ...QueryOption) (*Recommendation, error) {
	if topN < 1 {
		return nil, base.NewInvalidArgumentError("top_n", topN, "must be at least 1")
	}
	o := applyOptions(opts)
	b := e.bundle.Load()
	anchor := b.ItemIndex.ToNumber(itemId)
	if anchor == base.NotId {
		if o.strict {
			return nil, &UnknownEntityError{Kind: "item", Id: itemId}
		}
		return e.fallback(b, topN, nil), nil
	}
	key := fmt.Sprintf("%s|item|%s|%d", b.ID, itemId, topN)
	if cached := e.cache.Get(key); cached != nil {
		return cached.Value(), nil
	}
	neighbors := b.Table.Neighbors[anchor]
	neighbors = neighbors[:mathutil.Min(topN, len(neighbors))]
	recommendation := &Recommendation{
		Items: lo.Map(neighbors, func(neighbor knn.Neighbor, _ int) Result {
			return Result{ItemId: b.ItemIndex.ToName(neighbor.Index), Score: float64(neighbor.Score)}
		}),
	}
	e.cache.Set(key, recommendation, ttlcache.DefaultTTL)
	return recommendation, nil
}

// RecommendForUser aggregates the neighbor lists of the items a user rated at
// or above their own mean rating, weighting each neighbor's similarity by the
// rating. Items the user already rated are excluded. Ties are broken by item
// ID lexical order. Unknown users degrade to the popularity fallback unless
// the query is strict; a known user whose whole neighborhood is already rated
// gets the fallback too, flagged as such.
func (e *Engine) RecommendForUser(userId string, topN int, opts ...QueryOption) (*Recommendation, error) {
	if topN < 1 {
		return nil, base.NewInvalidArgumentError("top_n", topN, "must be at least 1")
	}
	o := applyOptions(opts)
	b := e.bundle.Load()
	userIndex := b.UserIndex.ToNumber(userId)
	if userIndex == base.NotId {
		if o.strict {
			return nil, &UnknownEntityError{Kind: "user", Id: userId}
		}
		return e.fallback(b, topN, nil), nil
	}
	key := fmt.Sprintf("%s|user|%s|%d", b.ID, userId, topN)
	if cached := e.cache.Get(key); cached != nil {
		return cached.Value(), nil
	}
	history := b.UserFeedback[userIndex]
	ratings := b.UserRatings[userIndex]
	if len(history) == 0 {
		// can't happen after filtering, but serve it like a cold start
		return e.fallback(b, topN, nil), nil
	}
	var mean float32
	for _, r := range ratings {
		mean += r
	}
	mean /= float32(len(ratings))
	rated := mapset.NewThreadUnsafeSet(history...)
	scores := make(map[int32]float64)
	for i, itemIndex := range history {
		if ratings[i] < mean {
			continue
		}
		for _, neighbor := range b.Table.Neighbors[itemIndex] {
			if rated.Contains(neighbor.Index) {
				continue
			}
			scores[neighbor.Index] += float64(neighbor.Score) * float64(ratings[i])
		}
	}
	var recommendation *Recommendation
	if len(scores) == 0 {
		recommendation = e.fallback(b, topN, rated)
	} else {
		results := make([]Result, 0, len(scores))
		for itemIndex, score := range scores {
			results = append(results, Result{ItemId: b.ItemIndex.ToName(itemIndex), Score: score})
		}
		sort.Slice(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].ItemId < results[j].ItemId
		})
		recommendation = &Recommendation{Items: results[:mathutil.Min(topN, len(results))]}
	}
	e.cache.Set(key, recommendation, ttlcache.DefaultTTL)
	return recommendation, nil
}

// fallback serves the popularity ranking, skipping excluded items.
func (e *Engine) fallback(b *artifact.Bundle, topN int, exclude mapset.Set[int32]) *Recommendation {
	items := make([]Result, 0, topN)
	for _, popular := range b.Popularity {
		if exclude != nil && exclude.Contains(popular.Index) {
			continue
		}
		items = append(items, Result{ItemId: b.ItemIndex.ToName(popular.Index), Score: float64(popular.Score)})
		if len(items) == topN {
			break
		}
	}
	return &Recommendation{Items: items, Fallback: true}
}

func applyOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
