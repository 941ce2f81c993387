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
	"encoding/binary"
	"io"

	"github.com/juju/errors"

	"github.com/nextbook-io/nextbook/base/encoding"
)

// NotId represents an ID that doesn't exist in the index.
const NotId = int32(-1)

// Index manages the map between external IDs and dense indices. An external ID
// is a user ID or an ISBN-like item key. The dense index is the internal user
// or item index optimized for faster parameter access and less memory usage.
// Indices are assigned in insertion order and are stable only within a single
// training run.
type Index struct {
	Numbers map[string]int32 // external ID -> dense index
	Names   []string         // dense index -> external ID
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		Numbers: make(map[string]int32),
		Names:   make([]string, 0),
	}
}

// Len returns the number of indexed IDs.
func (idx *Index) Len() int32 {
	if idx == nil {
		return 0
	}
	return int32(len(idx.Names))
}

// Add adds a new ID to the index. Duplicate IDs keep their original index.
func (idx *Index) Add(name string) {
	if _, exist := idx.Numbers[name]; !exist {
		idx.Numbers[name] = int32(len(idx.Names))
		idx.Names = append(idx.Names, name)
	}
}

// ToNumber converts an external ID to a dense index. NotId is returned for
// unknown IDs.
func (idx *Index) ToNumber(name string) int32 {
	if idx == nil {
		return NotId
	}
	if number, exist := idx.Numbers[name]; exist {
		return number
	}
	return NotId
}

// ToName converts a dense index back to an external ID.
func (idx *Index) ToName(number int32) string {
	return idx.Names[number]
}

// GetNames returns all external IDs in dense index order.
func (idx *Index) GetNames() []string {
	return idx.Names
}

// Marshal writes the index to a byte stream.
func (idx *Index) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(idx.Names))); err != nil {
		return errors.Trace(err)
	}
	for _, name := range idx.Names {
		if err := encoding.WriteString(w, name); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal reads an index from a byte stream.
func (idx *Index) Unmarshal(r io.Reader) error {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return errors.Trace(err)
	}
	idx.Numbers = make(map[string]int32, n)
	idx.Names = make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		name, err := encoding.ReadString(r)
		if err != nil {
			return errors.Trace(err)
		}
		idx.Add(name)
	}
	return nil
}

// UnmarshalIndex reads an index from a byte stream.
func UnmarshalIndex(r io.Reader) (*Index, error) {
	index := &Index{}
	if err := index.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return index, nil
}
