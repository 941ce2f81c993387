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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidArgumentError(t *testing.T) {
	err := NewInvalidArgumentError("k", 0, "must be at least 1")
	assert.Equal(t, "invalid argument k=0: must be at least 1", err.Error())
	var invalidArgument *InvalidArgumentError
	assert.True(t, errors.As(err, &invalidArgument))
	assert.Equal(t, "k", invalidArgument.Name)
	assert.Equal(t, 0, invalidArgument.Value)
}
