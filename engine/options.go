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

// Package engine ties the catalog, analyzer, and planner together
// behind a single Run entry point, the facade a CLI or embedder would call
// (an interactive front-end is itself out of scope, section 1).
package engine

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/sortrun"
)

// Options carries every on-disk/runtime parameter the engine needs,
// constructed programmatically: this module ships no CLI or file-based
// config loader (a Non-goal), but validating these values is in scope as
// the minimal ambient configuration surface a library needs.
type Options struct {
	// PageSize and BlockSize must each be a power of two; PageSize is also
	// used as Collect's default mem_buf_size for ORDER BY (section 4.5b).
	PageSize  int
	BlockSize int

	// WorkDir is where Collect/Sort spill temporary run files.
	WorkDir string

	// MemBufSize bounds Collect's in-memory buffer before it spills a run.
	// Defaults to PageSize when zero.
	MemBufSize int

	// InputBuffers is the external sort's k-way merge fan-in. Defaults to
	// sortrun.DefaultSortInputBuffers when zero; must be >= 2 otherwise.
	InputBuffers int

	Logger *zap.Logger
}

// DefaultOptions returns an Options value with the defaults this module
// uses when an embedder doesn't need to tune anything: a 4 KiB page size
// matching typical disk block size, the OS temp directory for spill files.
func DefaultOptions() Options {
	return Options{
		PageSize:     4096,
		BlockSize:    4096,
		WorkDir:      os.TempDir(),
		MemBufSize:   4096,
		InputBuffers: sortrun.DefaultSortInputBuffers,
	}
}

// Validate checks every field's constraint, filling in zero-valued
// defaults where the spec allows one.
func (o *Options) Validate() error {
	if o.PageSize <= 0 || !isPowerOfTwo(o.PageSize) {
		return fmt.Errorf("engine: page_size %d must be a positive power of two", o.PageSize)
	}
	if o.BlockSize <= 0 || !isPowerOfTwo(o.BlockSize) {
		return fmt.Errorf("engine: block_size %d must be a positive power of two", o.BlockSize)
	}
	if o.MemBufSize <= 0 {
		o.MemBufSize = o.PageSize
	}
	if o.InputBuffers == 0 {
		o.InputBuffers = sortrun.DefaultSortInputBuffers
	}
	if o.InputBuffers < 2 {
		return fmt.Errorf("engine: input_buffers %d must be >= 2", o.InputBuffers)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
