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

package base

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	index := NewIndex()
	assert.Zero(t, index.Len())
	// add IDs
	index.Add("0553573403")
	index.Add("0679781587")
	index.Add("0553573403") // duplicates keep their original index
	index.Add("0971880107")
	assert.Equal(t, int32(3), index.Len())
	assert.Equal(t, int32(0), index.ToNumber("0553573403"))
	assert.Equal(t, int32(1), index.ToNumber("0679781587"))
	assert.Equal(t, int32(2), index.ToNumber("0971880107"))
	assert.Equal(t, NotId, index.ToNumber("none"))
	assert.Equal(t, "0679781587", index.ToName(1))
	assert.Equal(t, []string{"0553573403", "0679781587", "0971880107"}, index.GetNames())
}

func TestIndex_Marshal(t *testing.T) {
	index := NewIndex()
	index.Add("a")
	index.Add("b")
	index.Add("c")
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, index.Marshal(buf))
	decoded, err := UnmarshalIndex(buf)
	assert.NoError(t, err)
	assert.Equal(t, index, decoded)
}

func TestIndex_Nil(t *testing.T) {
	var index *Index
	assert.Zero(t, index.Len())
	assert.Equal(t, NotId, index.ToNumber("a"))
}
