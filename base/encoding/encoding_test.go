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

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteBytes(buf, []byte("hello")))
	data, err := ReadBytes(buf)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestString(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteString(buf, "abc"))
	assert.NoError(t, WriteString(buf, ""))
	s, err := ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, "abc", s)
	s, err = ReadString(buf)
	assert.NoError(t, err)
	assert.Empty(t, s)
}

func TestGob(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteGob(buf, [][]int32{{1, 2}, {3}}))
	var decoded [][]int32
	assert.NoError(t, ReadGob(buf, &decoded))
	assert.Equal(t, [][]int32{{1, 2}, {3}}, decoded)
}

func TestReadBytes_Truncated(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, WriteBytes(buf, []byte("hello")))
	truncated := bytes.NewBuffer(buf.Bytes()[:buf.Len()-2])
	_, err := ReadBytes(truncated)
	assert.Error(t, err)
}
