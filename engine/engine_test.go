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

package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbook-io/nextbook/artifact"
	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/dataset"
	"github.com/nextbook-io/nextbook/knn"
)

const delta = 1e-4

func trainBundle(t *testing.T, records []dataset.RatingRecord) *artifact.Bundle {
	m, _, err := dataset.Build(records, 1, 1)
	require.NoError(t, err)
	table, err := knn.Fit(m, 2, knn.Cosine, 1)
	require.NoError(t, err)
	params := artifact.Params{K: 2, MinUserInteractions: 1, MinItemInteractions: 1, Metric: knn.Cosine}
	return artifact.NewBundle(params, m, table, knn.Popularity(m))
}

func ratingFixture() []dataset.RatingRecord {
	return []dataset.RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i2", Rating: 4},
		{UserId: "u2", ItemId: "i1", Rating: 5},
		{UserId: "u2", ItemId: "i2", Rating: 5},
		{UserId: "u3", ItemId: "i1", Rating: 4},
		{UserId: "u3", ItemId: "i3", Rating: 5},
	}
}

func newTestEngine(t *testing.T) *Engine {
	e := NewEngine(trainBundle(t, ratingFixture()))
	t.Cleanup(e.Close)
	return e
}

func TestRecommendByItem(t *testing.T) {
	e := newTestEngine(t)
	recommendation, err := e.RecommendByItem("i1", 5)
	require.NoError(t, err)
	assert.False(t, recommendation.Fallback)
	require.Len(t, recommendation.Items, 2)
	// i2 shares two raters with i1, i3 only one
	assert.Equal(t, "i2", recommendation.Items[0].ItemId)
	assert.InDelta(t, 0.8651, recommendation.Items[0].Score, delta)
	assert.Equal(t, "i3", recommendation.Items[1].ItemId)
	assert.InDelta(t, 0.4924, recommendation.Items[1].Score, delta)
}

func TestRecommendByItem_Truncation(t *testing.T) {
	e := newTestEngine(t)
	recommendation, err := e.RecommendByItem("i1", 1)
	require.NoError(t, err)
	require.Len(t, recommendation.Items, 1)
	assert.Equal(t, "i2", recommendation.Items[0].ItemId)
}

func TestRecommendByItem_UnknownFallsBack(t *testing.T) {
	e := newTestEngine(t)
	recommendation, err := e.RecommendByItem("unknown-isbn", 5)
	require.NoError(t, err)
	assert.True(t, recommendation.Fallback)
	// popularity order: i1 three raters, i2 two, i3 one
	require.Len(t, recommendation.Items, 3)
	assert.Equal(t, "i1", recommendation.Items[0].ItemId)
	assert.Equal(t, "i2", recommendation.Items[1].ItemId)
	assert.Equal(t, "i3", recommendation.Items[2].ItemId)
}

func TestRecommendByItem_Strict(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.RecommendByItem("unknown-isbn", 5, WithStrict())
	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "item", unknown.Kind)
	assert.Equal(t, "unknown-isbn", unknown.Id)
}

func TestRecommend_InvalidTopN(t *testing.T) {
	e := newTestEngine(t)
	var invalidArgument *base.InvalidArgumentError
	_, err := e.RecommendByItem("i1", 0)
	assert.True(t, errors.As(err, &invalidArgument))
	_, err = e.RecommendForUser("u1", 0)
	assert.True(t, errors.As(err, &invalidArgument))
}

func TestRecommendForUser(t *testing.T) {
	e := newTestEngine(t)
	// u1 rated i1=5 and i2=4, so only i1 clears the mean of 4.5; the sole
	// unrated neighbor of i1 is i3, weighted by the rating of i1
	recommendation, err := e.RecommendForUser("u1", 5)
	require.NoError(t, err)
	assert.False(t, recommendation.Fallback)
	require.Len(t, recommendation.Items, 1)
	assert.Equal(t, "i3", recommendation.Items[0].ItemId)
	assert.InDelta(t, 0.4924*5, recommendation.Items[0].Score, delta)
}

func TestRecommendForUser_ExhaustedNeighborhood(t *testing.T) {
	e := newTestEngine(t)
	// every neighbor of u3's liked item i3 is already rated by u3, so the
	// popularity fallback serves, minus the rated items
	recommendation, err := e.RecommendForUser("u3", 5)
	require.NoError(t, err)
	assert.True(t, recommendation.Fallback)
	require.Len(t, recommendation.Items, 1)
	assert.Equal(t, "i2", recommendation.Items[0].ItemId)
}

func TestRecommendForUser_UnknownFallsBack(t *testing.T) {
	e := newTestEngine(t)
	recommendation, err := e.RecommendForUser("stranger", 2)
	require.NoError(t, err)
	assert.True(t, recommendation.Fallback)
	require.Len(t, recommendation.Items, 2)
	assert.Equal(t, "i1", recommendation.Items[0].ItemId)

	_, err = e.RecommendForUser("stranger", 2, WithStrict())
	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "user", unknown.Kind)
}

func TestSwap_QueriesStayFresh(t *testing.T) {
	e := newTestEngine(t)
	next := trainBundle(t, []dataset.RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i3", Rating: 5},
		{UserId: "u2", ItemId: "i1", Rating: 5},
		{UserId: "u2", ItemId: "i3", Rating: 5},
		{UserId: "u3", ItemId: "i1", Rating: 4},
		{UserId: "u3", ItemId: "i2", Rating: 2},
	})
	// queries racing the swap may cache answers from the bundle they loaded,
	// but must never leak them into lookups against the new bundle
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := e.RecommendByItem("i1", 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	e.Swap(next)
	for j := 0; j < 100; j++ {
		recommendation, err := e.RecommendByItem("i1", 1)
		require.NoError(t, err)
		require.Len(t, recommendation.Items, 1)
		assert.Equal(t, "i3", recommendation.Items[0].ItemId)
	}
	wg.Wait()
}

func TestSwap(t *testing.T) {
	e := newTestEngine(t)
	before, err := e.RecommendByItem("i1", 1)
	require.NoError(t, err)
	assert.Equal(t, "i2", before.Items[0].ItemId)

	// retrain with i3 as the book everyone reads along with i1
	next := trainBundle(t, []dataset.RatingRecord{
		{UserId: "u1", ItemId: "i1", Rating: 5},
		{UserId: "u1", ItemId: "i3", Rating: 5},
		{UserId: "u2", ItemId: "i1", Rating: 5},
		{UserId: "u2", ItemId: "i3", Rating: 5},
		{UserId: "u3", ItemId: "i1", Rating: 4},
		{UserId: "u3", ItemId: "i2", Rating: 2},
	})
	e.Swap(next)
	assert.Same(t, next, e.Bundle())
	after, err := e.RecommendByItem("i1", 1)
	require.NoError(t, err)
	assert.Equal(t, "i3", after.Items[0].ItemId)
}
