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
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nextbook-io/nextbook/base/log"
)

// ReadRatings parses rating rows from a reader. Each row is
//
//	<userId> <sep> <itemId> <sep> <rating>
//
// Extra columns are ignored. Fields may be quoted (Book-Crossing dumps quote
// every field), but the split is not quote-aware, so fields must not embed
// the separator; a row whose quoted field contains it mis-splits and is
// counted as malformed. Rows with missing fields or an unparsable rating are
// counted as malformed and skipped, never fatal.
func ReadRatings(r io.Reader, sep string, hasHeader bool) ([]RatingRecord, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	records := make([]RatingRecord, 0)
	malformed := 0
	for scanner.Scan() {
		line := scanner.Text()
		if hasHeader {
			hasHeader = false
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 3 {
			malformed++
			continue
		}
		userId := unquote(fields[0])
		itemId := unquote(fields[1])
		rating, err := strconv.ParseFloat(unquote(fields[2]), 32)
		if err != nil || userId == "" || itemId == "" {
			malformed++
			continue
		}
		records = append(records, RatingRecord{
			UserId: userId,
			ItemId: itemId,
			Rating: float32(rating),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, errors.Trace(err)
	}
	return records, malformed, nil
}

// LoadRatingsFromCSV loads rating rows from a CSV file.
func LoadRatingsFromCSV(path, sep string, hasHeader bool) ([]RatingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	records, malformed, err := ReadRatings(file, sep, hasHeader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if malformed > 0 {
		log.Logger().Warn("skipped malformed rating rows",
			zap.String("csv_file", path),
			zap.Int("malformed", malformed))
	}
	return records, nil
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"")
}
