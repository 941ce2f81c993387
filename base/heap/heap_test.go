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

package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lessInt(a, b int) bool {
	return a < b
}

func TestTopKFilter(t *testing.T) {
	filter := NewTopKFilter[int](3, lessInt)
	for _, x := range rand.New(rand.NewSource(42)).Perm(100) {
		filter.Push(x)
	}
	assert.Equal(t, []int{99, 98, 97}, filter.PopAll())
}

func TestTopKFilter_FewerThanK(t *testing.T) {
	filter := NewTopKFilter[int](10, lessInt)
	filter.Push(2)
	filter.Push(5)
	filter.Push(1)
	assert.Equal(t, []int{5, 2, 1}, filter.PopAll())
}

func TestTopKFilter_ZeroK(t *testing.T) {
	filter := NewTopKFilter[int](0, lessInt)
	filter.Push(1)
	assert.Empty(t, filter.PopAll())
}

type scored struct {
	index int32
	score float32
}

// equal scores must still rank deterministically through the comparator
func TestTopKFilter_Ties(t *testing.T) {
	less := func(a, b scored) bool {
		if a.score != b.score {
			return a.score < b.score
		}
		return a.index > b.index
	}
	filter := NewTopKFilter[scored](2, less)
	filter.Push(scored{index: 3, score: 1})
	filter.Push(scored{index: 1, score: 1})
	filter.Push(scored{index: 2, score: 1})
	assert.Equal(t, []scored{{index: 1, score: 1}, {index: 2, score: 1}}, filter.PopAll())
}
