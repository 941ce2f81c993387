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

package dataset

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratingFixture() []RatingRecord {
	return []RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i2", Rating: 4},
		{UserId: "u2", ItemId: "i1", Rating: 5},
		{UserId: "u2", ItemId: "i2", Rating: 5},
		{UserId: "u3", ItemId: "i1", Rating: 4},
		{UserId: "u3", ItemId: "i3", Rating: 5},
	}
}

func TestBuild(t *testing.T) {
	m, stats, err := Build(ratingFixture(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, m.CountUsers())
	assert.Equal(t, 3, m.CountItems())
	assert.Equal(t, 6, m.CountRatings())
	assert.Zero(t, stats.Rejected)
	assert.Zero(t, stats.Duplicates)
	// dense indices follow first appearance order
	assert.Equal(t, []string{"u1", "u2", "u3"}, m.UserIndex.GetNames())
	assert.Equal(t, []string{"i1", "i2", "i3"}, m.ItemIndex.GetNames())
	// inverted lists are sorted by index with ratings aligned
	assert.Equal(t, []int32{0, 1, 2}, m.ItemFeedback[0])
	assert.Equal(t, []float32{5, 5, 4}, m.ItemRatings[0])
	assert.Equal(t, []int32{0, 1}, m.ItemFeedback[1])
	assert.Equal(t, []float32{4, 5}, m.ItemRatings[1])
	assert.Equal(t, []int32{2}, m.ItemFeedback[2])
	assert.Equal(t, []int32{0, 1}, m.UserFeedback[0])
	assert.Equal(t, []float32{5, 4}, m.UserRatings[0])
}

func TestBuild_Insufficient(t *testing.T) {
	// two ratings per user can never satisfy a threshold of five
	m, _, err := Build(ratingFixture(), 5, 1)
	assert.Nil(t, m)
	var insufficient *DataInsufficientError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 5, insufficient.MinUserInteractions)
	assert.Zero(t, insufficient.RemainingUsers)
}

func TestBuild_CascadePruning(t *testing.T) {
	// pruning i3 leaves u3 with one item, so u3 falls in a later pass
	records := []RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i2", Rating: 4},
		{UserId: "u2", ItemId: "i1", Rating: 3},
		{UserId: "u2", ItemId: "i2", Rating: 5},
		{UserId: "u3", ItemId: "i1", Rating: 4},
		{UserId: "u3", ItemId: "i3", Rating: 2},
	}
	m, stats, err := Build(records, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, m.UserIndex.GetNames())
	assert.Equal(t, []string{"i1", "i2"}, m.ItemIndex.GetNames())
	assert.Equal(t, 4, m.CountRatings())
	assert.Equal(t, 1, stats.PrunedUsers)
	assert.Equal(t, 1, stats.PrunedItems)
	assert.GreaterOrEqual(t, stats.Passes, 2)
}

func TestBuild_Duplicates(t *testing.T) {
	records := []RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 3},
		{UserId: "u1", ItemId: "i1", Rating: 5},
	}
	m, stats, err := Build(records, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, m.CountRatings())
	// the latest record wins
	assert.Equal(t, []float32{5}, m.UserRatings[0])
}

func TestBuild_RejectedRatings(t *testing.T) {
	records := []RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i2", Rating: math32.NaN()},
		{UserId: "u1", ItemId: "i3", Rating: math32.Inf(1)},
		{UserId: "u1", ItemId: "i4", Rating: -1},
		{UserId: "u1", ItemId: "i5", Rating: 11},
	}
	m, stats, err := Build(records, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, 1, m.CountRatings())
}

func TestBuild_InvalidThresholds(t *testing.T) {
	_, _, err := Build(ratingFixture(), 0, 1)
	assert.Error(t, err)
	_, _, err = Build(ratingFixture(), 1, 0)
	assert.Error(t, err)
}

func TestBuild_Deterministic(t *testing.T) {
	a, _, err := Build(ratingFixture(), 1, 1)
	require.NoError(t, err)
	b, _, err := Build(ratingFixture(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
