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

// Package knn computes item-item cosine similarity over a filtered interaction
// matrix and retains the top-K neighbors per item.
package knn

import (
	"sort"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"

	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/base/heap"
	"github.com/nextbook-io/nextbook/base/log"
	"github.com/nextbook-io/nextbook/base/parallel"
	"github.com/nextbook-io/nextbook/dataset"
)

// Metric identifies a similarity measure. Cosine is the only measure
// implemented; the enum exists so alternatives can be added without changing
// any other component's contract.
type Metric string

// Cosine is rating-weighted cosine similarity.
const Cosine Metric = "cosine"

// Neighbor is one entry of an item's neighbor list.
type Neighbor struct {
	Index int32
	Score float32
}

// Table holds, for each item, its top-K neighbors ordered by descending score,
// ties broken by smaller index. Rows never contain the anchor itself.
type Table struct {
	K         int
	Metric    Metric
	Neighbors [][]Neighbor
}

// Fit computes the similarity table for a matrix. k must be at least 1 and is
// clamped to item count minus one. Work is parallelized across anchor items;
// each worker writes only its own rows, so no synchronization is needed and
// the result is identical regardless of worker count or scheduling.
//
// Instead of pairwise work over all items, candidate neighbors for an anchor
// are collected from the inverted lists of the anchor's raters, so the cost is
// proportional to the co-rating structure of the matrix.
func Fit(m *dataset.Matrix, k int, metric Metric, nJobs int) (*Table, error) {
	if k < 1 {
		return nil, base.NewInvalidArgumentError("k", k, "must be at least 1")
	}
	if metric != Cosine {
		return nil, base.NewInvalidArgumentError("metric", metric, "unsupported similarity metric")
	}
	if nJobs < 1 {
		nJobs = 1
	}
	itemCount := m.CountItems()
	k = mathutil.Min(k, itemCount-1)

	norms := make([]float32, itemCount)
	for i := range norms {
		var sum float32
		for _, r := range m.ItemRatings[i] {
			sum += r * r
		}
		norms[i] = math32.Sqrt(sum)
	}

	table := &Table{
		K:         k,
		Metric:    metric,
		Neighbors: make([][]Neighbor, itemCount),
	}
	start := time.Now()
	err := parallel.Parallel(itemCount, nJobs, func(_, itemIndex int) error {
		anchor := int32(itemIndex)
		// candidates are items sharing at least one rater with the anchor
		candidates := mapset.NewThreadUnsafeSet[int32]()
		for _, userIndex := range m.ItemFeedback[anchor] {
			candidates.Append(m.UserFeedback[userIndex]...)
		}
		candidates.Remove(anchor)
		filter := heap.NewTopKFilter[Neighbor](k, lessNeighbor)
		candidates.Each(func(neighbor int32) bool {
			if score := cosine(m, norms, anchor, neighbor); score != 0 {
				filter.Push(Neighbor{Index: neighbor, Score: score})
			}
			return false
		})
		table.Neighbors[anchor] = filter.PopAll()
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit similarity index",
		zap.Int("items", itemCount),
		zap.Int("k", k),
		zap.String("metric", string(metric)),
		zap.Duration("fit_time", time.Since(start)))
	return table, nil
}

// lessNeighbor ranks a below b by score, ties by larger index. Ordering is
// strict so top-K retention is deterministic.
func lessNeighbor(a, b Neighbor) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Index > b.Index
}

func cosine(m *dataset.Matrix, norms []float32, i, j int32) float32 {
	// zero norms can't occur after filtering unless all ratings are zero,
	// but must not divide
	if norms[i] == 0 || norms[j] == 0 {
		return 0
	}
	dot := weightedDot(m.ItemFeedback[i], m.ItemRatings[i], m.ItemFeedback[j], m.ItemRatings[j])
	return dot / (norms[i] * norms[j])
}

// weightedDot merges two inverted lists sorted by user index in linear time.
func weightedDot(aIndices []int32, aValues []float32, bIndices []int32, bValues []float32) float32 {
	i, j, sum := 0, 0, float32(0)
	for i < len(aIndices) && j < len(bIndices) {
		switch {
		case aIndices[i] == bIndices[j]:
			sum += aValues[i] * bValues[j]
			i++
			j++
		case aIndices[i] < bIndices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Popularity ranks all items by rating count, most rated first, ties by
// smaller index. The ranking backs the cold-start fallback at serving time.
func Popularity(m *dataset.Matrix) []Neighbor {
	popularity := make([]Neighbor, m.CountItems())
	for i := range popularity {
		popularity[i] = Neighbor{Index: int32(i), Score: float32(len(m.ItemFeedback[i]))}
	}
	sort.Slice(popularity, func(i, j int) bool {
		if popularity[i].Score != popularity[j].Score {
			return popularity[i].Score > popularity[j].Score
		}
		return popularity[i].Index < popularity[j].Index
	})
	return popularity
}
