// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package sortrun implements bounded in-memory buffering with spill to
// temporary files (Collect) and the external k-way merge sort that
// consumes it (Sort). Both are used for ORDER BY and, in the Collect case
// alone, for buffering a cursor-invalidating DML's source so mutations
// can't disturb a live scan (section 4.6/4.7).
package sortrun

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/storage"
)

// DefaultSortInputBuffers is the default k-way merge fan-in (spec 4.5/4.6).
const DefaultSortInputBuffers = 4

// run is one sorted (for Sort's output) or arrival-ordered (for bare
// Collect) sequence of tuples: either still resident in memory, or spilled
// to a temp file.
type run struct {
	tuples []plan.Tuple // non-nil only while in memory
	path   string        // non-empty once spilled
}

// RunReader iterates one run's tuples in order.
type RunReader interface {
	Next() (plan.Tuple, error)
	Close() error
}

// Collect buffers tuples pulled from Source up to MemBufSize bytes
// (measured by the tuple codec's SizeOf), spilling full buffers to
// WorkDir and starting a fresh one, until Source is exhausted. As a bare
// Op, Next replays every run in arrival order; Sort instead asks for the
// runs directly via Runs() to perform a k-way merge.
type Collect struct {
	Source     plan.Op
	SchemaVal  catalog.Schema
	MemBufSize int
	WorkDir    string
	Logger     *zap.Logger

	built    bool
	allRuns  []run
	replay   []plan.Tuple
	replayAt int
}

func NewCollect(source plan.Op, schema catalog.Schema, memBufSize int, workDir string, logger *zap.Logger) *Collect {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collect{Source: source, SchemaVal: schema, MemBufSize: memBufSize, WorkDir: workDir, Logger: logger}
}

func (c *Collect) Schema() catalog.Schema { return c.SchemaVal }

// build drains Source into a sequence of runs, spilling whenever the
// current buffer reaches MemBufSize bytes. Idempotent.
func (c *Collect) build() error {
	if c.built {
		return nil
	}
	c.built = true

	dtypes := c.SchemaVal.DataTypes()
	var buf []plan.Tuple
	bufBytes := 0

	spill := func() error {
		if len(buf) == 0 {
			return nil
		}
		path, err := writeRunFile(c.WorkDir, buf, dtypes)
		if err != nil {
			return err
		}
		c.Logger.Debug("sortrun: spilled run",
			zap.String("path", path), zap.Int("tuples", len(buf)), zap.Int("bytes", bufBytes))
		c.allRuns = append(c.allRuns, run{path: path})
		buf = nil
		bufBytes = 0
		return nil
	}

	for {
		t, err := c.Source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		buf = append(buf, t)
		bufBytes += storage.SizeOf(dtypes, t)
		if bufBytes >= c.MemBufSize {
			if err := spill(); err != nil {
				return err
			}
		}
	}

	if len(buf) > 0 {
		c.allRuns = append(c.allRuns, run{tuples: buf})
	}
	return nil
}

// Runs builds (if needed) and returns a fresh RunReader over each
// underlying run, for Sort's k-way merge. Ownership of the returned
// readers transfers to the caller, which must Close them; Collect.Close
// removes the underlying temp files and closes Source, not the readers.
func (c *Collect) Runs() ([]RunReader, error) {
	if err := c.build(); err != nil {
		return nil, err
	}
	readers := make([]RunReader, len(c.allRuns))
	for i, r := range c.allRuns {
		rr, err := openRun(r, c.SchemaVal.DataTypes())
		if err != nil {
			return nil, err
		}
		readers[i] = rr
	}
	return readers, nil
}

// Next, used when Collect stands alone (cursor-safety buffering rather
// than feeding a Sort), replays every run's tuples in arrival order.
func (c *Collect) Next() (plan.Tuple, error) {
	if !c.built {
		if err := c.build(); err != nil {
			return nil, err
		}
		for _, r := range c.allRuns {
			if r.tuples != nil {
				c.replay = append(c.replay, r.tuples...)
				continue
			}
			rr, err := openRun(r, c.SchemaVal.DataTypes())
			if err != nil {
				return nil, err
			}
			for {
				t, err := rr.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					rr.Close()
					return nil, err
				}
				c.replay = append(c.replay, t)
			}
			rr.Close()
		}
	}
	if c.replayAt >= len(c.replay) {
		return nil, io.EOF
	}
	t := c.replay[c.replayAt]
	c.replayAt++
	return t, nil
}

// Close removes every spilled run's temp file, including runs that were
// never fully read (e.g. on early abort).
func (c *Collect) Close() error {
	var first error
	for _, r := range c.allRuns {
		if r.path == "" {
			continue
		}
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) && first == nil {
			first = err
		}
	}
	if err := c.Source.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (c *Collect) String() string {
	return fmt.Sprintf("Collect{mem_buf_size: %d, source: %s}", c.MemBufSize, c.Source)
}
