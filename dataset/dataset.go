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

// Package dataset turns raw rating records into a filtered sparse interaction
// matrix indexed by dense user and item numbers.
package dataset

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/base/log"
)

// Ratings outside [MinRating, MaxRating] are rejected by Build. The upstream
// ingestion stage screens gross schema errors; numeric bounds are re-checked
// here regardless.
const (
	MinRating = float32(0)
	MaxRating = float32(10)
)

// RatingRecord is a single explicit rating. Immutable once ingested.
type RatingRecord struct {
	UserId string
	ItemId string
	Rating float32
}

// BuildStats reports what Build did to the input.
type BuildStats struct {
	Records     int // records consumed
	Rejected    int // records with out-of-bounds or non-finite ratings
	Duplicates  int // records overwritten by a later record for the same pair
	PrunedUsers int
	PrunedItems int
	Passes      int // pruning passes until the fixed point
}

// Matrix is a filtered sparse user-item rating matrix. Interactions are kept
// twice, as per-user and per-item inverted lists, each sorted by index so
// intersections run as linear merges. After Build every user holds at least
// min_user_interactions distinct items and every item at least
// min_item_interactions distinct users.
type Matrix struct {
	UserIndex *base.Index
	ItemIndex *base.Index
	// UserFeedback[u] lists the item indices rated by user u, UserRatings[u]
	// the matching ratings. ItemFeedback/ItemRatings are the transpose.
	UserFeedback [][]int32
	UserRatings  [][]float32
	ItemFeedback [][]int32
	ItemRatings  [][]float32

	numRatings int
}

// CountUsers returns the number of users surviving filtering.
func (m *Matrix) CountUsers() int {
	return int(m.UserIndex.Len())
}

// CountItems returns the number of items surviving filtering.
func (m *Matrix) CountItems() int {
	return int(m.ItemIndex.Len())
}

// CountRatings returns the number of interactions surviving filtering.
func (m *Matrix) CountRatings() int {
	return m.numRatings
}

// DataInsufficientError means fixed-point filtering eliminated all data. The
// training run must abort; no partial artifact is published.
type DataInsufficientError struct {
	Stage               string
	MinUserInteractions int
	MinItemInteractions int
	RemainingUsers      int
	RemainingItems      int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf(
		"%s eliminated all data (min_user_interactions=%d, min_item_interactions=%d, remaining users=%d, items=%d); lower the thresholds or provide more ratings",
		e.Stage, e.MinUserInteractions, e.MinItemInteractions, e.RemainingUsers, e.RemainingItems)
}

// Build aggregates rating records into a filtered sparse matrix. Records with
// non-finite or out-of-bounds ratings are rejected and counted. Duplicate
// (user, item) pairs collapse to the LATEST record. Users with fewer than
// minUserInteractions distinct items and items with fewer than
// minItemInteractions distinct users are pruned repeatedly until no further
// removal occurs; pruning a user can drop an item below its threshold and
// vice versa, so filtering runs to a fixed point rather than a single pass.
// Build is a pure function of its inputs: the same records in the same order
// produce the same matrix.
func Build(records []RatingRecord, minUserInteractions, minItemInteractions int) (*Matrix, *BuildStats, error) {
	if minUserInteractions < 1 {
		return nil, nil, base.NewInvalidArgumentError("min_user_interactions", minUserInteractions, "must be at least 1")
	}
	if minItemInteractions < 1 {
		return nil, nil, base.NewInvalidArgumentError("min_item_interactions", minItemInteractions, "must be at least 1")
	}
	stats := &BuildStats{Records: len(records)}

	// Collapse duplicates: the latest record for a (user, item) pair wins.
	type pair struct {
		user, item string
	}
	position := make(map[pair]int, len(records))
	entries := make([]RatingRecord, 0, len(records))
	for _, record := range records {
		if !validRating(record.Rating) {
			stats.Rejected++
			continue
		}
		p := pair{record.UserId, record.ItemId}
		if i, exist := position[p]; exist {
			entries[i].Rating = record.Rating
			stats.Duplicates++
		} else {
			position[p] = len(entries)
			entries = append(entries, record)
		}
	}

	// Prune to the fixed point. Degrees are recomputed from surviving entries
	// each pass; map iteration order doesn't matter because the surviving set
	// is order independent.
	aliveUsers := make(map[string]bool)
	aliveItems := make(map[string]bool)
	for _, e := range entries {
		aliveUsers[e.UserId] = true
		aliveItems[e.ItemId] = true
	}
	for {
		stats.Passes++
		userDegree := make(map[string]int, len(aliveUsers))
		itemDegree := make(map[string]int, len(aliveItems))
		for _, e := range entries {
			if aliveUsers[e.UserId] && aliveItems[e.ItemId] {
				userDegree[e.UserId]++
				itemDegree[e.ItemId]++
			}
		}
		changed := false
		for user := range aliveUsers {
			if userDegree[user] < minUserInteractions {
				delete(aliveUsers, user)
				stats.PrunedUsers++
				changed = true
			}
		}
		for item := range aliveItems {
			if itemDegree[item] < minItemInteractions {
				delete(aliveItems, item)
				stats.PrunedItems++
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	if len(aliveUsers) == 0 || len(aliveItems) == 0 {
		stage := "item interaction filtering"
		if len(aliveUsers) == 0 {
			stage = "user interaction filtering"
		}
		return nil, stats, &DataInsufficientError{
			Stage:               stage,
			MinUserInteractions: minUserInteractions,
			MinItemInteractions: minItemInteractions,
			RemainingUsers:      len(aliveUsers),
			RemainingItems:      len(aliveItems),
		}
	}

	// Assign dense indices in first-appearance order over surviving entries.
	m := &Matrix{
		UserIndex: base.NewIndex(),
		ItemIndex: base.NewIndex(),
	}
	for _, e := range entries {
		if aliveUsers[e.UserId] && aliveItems[e.ItemId] {
			m.UserIndex.Add(e.UserId)
			m.ItemIndex.Add(e.ItemId)
		}
	}
	m.UserFeedback = make([][]int32, m.CountUsers())
	m.UserRatings = make([][]float32, m.CountUsers())
	m.ItemFeedback = make([][]int32, m.CountItems())
	m.ItemRatings = make([][]float32, m.CountItems())
	for _, e := range entries {
		if !aliveUsers[e.UserId] || !aliveItems[e.ItemId] {
			continue
		}
		userIndex := m.UserIndex.ToNumber(e.UserId)
		itemIndex := m.ItemIndex.ToNumber(e.ItemId)
		m.UserFeedback[userIndex] = append(m.UserFeedback[userIndex], itemIndex)
		m.UserRatings[userIndex] = append(m.UserRatings[userIndex], e.Rating)
		m.ItemFeedback[itemIndex] = append(m.ItemFeedback[itemIndex], userIndex)
		m.ItemRatings[itemIndex] = append(m.ItemRatings[itemIndex], e.Rating)
		m.numRatings++
	}
	for u := range m.UserFeedback {
		sortFeedback(m.UserFeedback[u], m.UserRatings[u])
	}
	for i := range m.ItemFeedback {
		sortFeedback(m.ItemFeedback[i], m.ItemRatings[i])
	}

	log.Logger().Info("built interaction matrix",
		zap.Int("users", m.CountUsers()),
		zap.Int("items", m.CountItems()),
		zap.Int("ratings", m.CountRatings()),
		zap.Int("rejected", stats.Rejected),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("pruned_users", stats.PrunedUsers),
		zap.Int("pruned_items", stats.PrunedItems),
		zap.Int("passes", stats.Passes))
	return m, stats, nil
}

func validRating(r float32) bool {
	return !math32.IsNaN(r) && !math32.IsInf(r, 0) && r >= MinRating && r <= MaxRating
}

// feedbackSorter sorts an inverted list and its ratings by index.
type feedbackSorter struct {
	indices []int32
	values  []float32
}

func (s *feedbackSorter) Len() int {
	return len(s.indices)
}

func (s *feedbackSorter) Less(i, j int) bool {
	return s.indices[i] < s.indices[j]
}

func (s *feedbackSorter) Swap(i, j int) {
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

func sortFeedback(indices []int32, values []float32) {
	sort.Sort(&feedbackSorter{indices: indices, values: values})
}
