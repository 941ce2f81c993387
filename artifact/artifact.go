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

// Package artifact persists the output of a training run as a versioned,
// immutable bundle. A bundle is never mutated in place; a new training run
// writes a new bundle and serving swaps to it atomically.
package artifact

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nextbook-io/nextbook/base"
	"github.com/nextbook-io/nextbook/base/encoding"
	"github.com/nextbook-io/nextbook/base/log"
	"github.com/nextbook-io/nextbook/dataset"
	"github.com/nextbook-io/nextbook/knn"
)

// formatVersion is bumped on any incompatible change to the bundle layout.
const formatVersion = int32(1)

var magic = []byte("NBK1")

// Params are the hyperparameters a bundle was trained with.
type Params struct {
	K                   int
	MinUserInteractions int
	MinItemInteractions int
	Metric              knn.Metric
}

// Bundle is everything needed to serve recommendations: ID maps, the
// similarity table, user histories for the user-based path, the popularity
// ranking for cold-start fallback, and the hyperparameters of the run.
// Read-only once written.
type Bundle struct {
	ID        string
	Timestamp time.Time
	Params    Params

	UserIndex    *base.Index
	ItemIndex    *base.Index
	UserFeedback [][]int32
	UserRatings  [][]float32
	Popularity   []knn.Neighbor
	Table        *knn.Table
}

// NewBundle assembles a bundle from the outputs of a training run.
func NewBundle(params Params, m *dataset.Matrix, table *knn.Table, popularity []knn.Neighbor) *Bundle {
	return &Bundle{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Params:       params,
		UserIndex:    m.UserIndex,
		ItemIndex:    m.ItemIndex,
		UserFeedback: m.UserFeedback,
		UserRatings:  m.UserRatings,
		Popularity:   popularity,
		Table:        table,
	}
}

// NotFoundError means no artifact exists at the location.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Path)
}

// CorruptError means an artifact exists but is unusable: bad magic, an
// unsupported format version, truncation, or inconsistent sections.
type CorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt artifact %s: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// bundleHeader is the gob-framed leading section of the bundle layout.
type bundleHeader struct {
	ID        string
	Timestamp time.Time
	Params    Params
}

// Save writes the bundle to path. The write is atomic from the caller's
// perspective: the bundle is staged in a temporary file in the destination
// directory, synced, then published with a rename. Either the full bundle
// becomes durable or nothing observable changes.
func Save(b *Bundle, path string) error {
	if b.UserIndex == nil || b.ItemIndex == nil || b.Table == nil ||
		b.UserFeedback == nil || b.UserRatings == nil || b.Popularity == nil {
		return errors.New("refusing to save incomplete bundle")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	file, err := os.CreateTemp(dir, ".nextbook-*")
	if err != nil {
		return errors.Trace(err)
	}
	tempName := file.Name()
	if err = writeBundle(file, b); err != nil {
		_ = file.Close()
		_ = os.Remove(tempName)
		return errors.Trace(err)
	}
	if err = file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempName)
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		_ = os.Remove(tempName)
		return errors.Trace(err)
	}
	if err = os.Rename(tempName, path); err != nil {
		_ = os.Remove(tempName)
		return errors.Trace(err)
	}
	log.Logger().Info("saved artifact",
		zap.String("bundle_id", b.ID),
		zap.String("path", path))
	return nil
}

func writeBundle(w io.Writer, b *Bundle) error {
	if _, err := w.Write(magic); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return errors.Trace(err)
	}
	header := bundleHeader{ID: b.ID, Timestamp: b.Timestamp, Params: b.Params}
	if err := encoding.WriteGob(w, header); err != nil {
		return errors.Trace(err)
	}
	if err := b.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := b.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.UserFeedback); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.UserRatings); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.Popularity); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteGob(w, b.Table)
}

// Load reads the bundle at path. It returns NotFoundError when the location
// does not exist and CorruptError when the artifact is unusable; it never
// returns a partially populated bundle. The context is honored between
// sections so a load from slow storage can be cancelled or time-bounded.
func Load(ctx context.Context, path string) (*Bundle, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, errors.Trace(err)
	}
	defer file.Close()

	head := make([]byte, len(magic))
	if _, err = io.ReadFull(file, head); err != nil {
		return nil, &CorruptError{Path: path, Reason: "truncated header", Err: err}
	}
	if !bytes.Equal(head, magic) {
		return nil, &CorruptError{Path: path, Reason: "bad magic"}
	}
	var version int32
	if err = binary.Read(file, binary.LittleEndian, &version); err != nil {
		return nil, &CorruptError{Path: path, Reason: "truncated header", Err: err}
	}
	if version != formatVersion {
		return nil, &CorruptError{Path: path, Reason: fmt.Sprintf("unsupported format version %d", version)}
	}
	if err = ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	b := &Bundle{}
	var header bundleHeader
	if err = encoding.ReadGob(file, &header); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable bundle header", Err: err}
	}
	if header.ID == "" {
		return nil, &CorruptError{Path: path, Reason: "missing bundle ID"}
	}
	b.ID, b.Timestamp, b.Params = header.ID, header.Timestamp, header.Params
	if b.UserIndex, err = base.UnmarshalIndex(file); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable user index", Err: err}
	}
	if b.ItemIndex, err = base.UnmarshalIndex(file); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable item index", Err: err}
	}
	if err = ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if err = encoding.ReadGob(file, &b.UserFeedback); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable user feedback", Err: err}
	}
	if err = encoding.ReadGob(file, &b.UserRatings); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable user ratings", Err: err}
	}
	if err = ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if err = encoding.ReadGob(file, &b.Popularity); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable popularity ranking", Err: err}
	}
	if err = encoding.ReadGob(file, &b.Table); err != nil {
		return nil, &CorruptError{Path: path, Reason: "unreadable similarity table", Err: err}
	}

	if len(b.UserFeedback) != int(b.UserIndex.Len()) || len(b.UserRatings) != int(b.UserIndex.Len()) {
		return nil, &CorruptError{Path: path, Reason: "user sections inconsistent with user index"}
	}
	if b.Table == nil || len(b.Table.Neighbors) != int(b.ItemIndex.Len()) {
		return nil, &CorruptError{Path: path, Reason: "similarity table inconsistent with item index"}
	}
	if len(b.Popularity) != int(b.ItemIndex.Len()) {
		return nil, &CorruptError{Path: path, Reason: "popularity ranking inconsistent with item index"}
	}
	return b, nil
}
