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

package pager

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// maxSanePageOffset is the development-only ceiling on implied file offset;
// it exists to catch a page-number computation gone wrong before it writes
// gigabytes to disk by accident.
const maxSanePageOffset = 100 << 20

// PageNumber identifies a page within a pager. Page numbers start at 0.
type PageNumber int64

// Pager is the capability interface every storage-touching plan operator
// borrows for the duration of one page read or write. BlockPager is the
// only concrete implementation this module provides; a real B-Tree/cache/
// WAL stack would implement the same interface.
type Pager interface {
	Read(page PageNumber, buf []byte) (int, error)
	Write(page PageNumber, buf []byte) (int, error)
	Flush() error
	Sync() error
}

// BlockPager implements Pager on top of a FileOps handle, translating
// fixed-size page operations into block-aligned I/O. Two layouts apply
// depending on how PageSize relates to BlockSize: see Read.
type BlockPager struct {
	io        FileOps
	PageSize  int
	BlockSize int
	logger    *zap.Logger

	// DevSanityCheck enables the 100MiB implied-offset guard; on by
	// default, matching the original engine's debug-only assertion.
	DevSanityCheck bool
}

// New wraps io as a BlockPager with the given page and block sizes. Both
// must be positive; callers that need power-of-two alignment guarantees
// (true of every real block device) should ensure that themselves, as this
// constructor accepts any positive sizes for testing convenience.
func New(io FileOps, pageSize, blockSize int, logger *zap.Logger) *BlockPager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlockPager{
		io:             io,
		PageSize:       pageSize,
		BlockSize:      blockSize,
		logger:         logger,
		DevSanityCheck: true,
	}
}

func (p *BlockPager) checkArgs(page PageNumber, buf []byte) error {
	if len(buf) != p.PageSize {
		return fmt.Errorf("pager: buffer of length %d given for page size %d", len(buf), p.PageSize)
	}
	if p.DevSanityCheck && p.PageSize*int(page) >= maxSanePageOffset {
		return fmt.Errorf("pager: page number %d too high for page size %d: limit is 100 MiB", page, p.PageSize)
	}
	return nil
}

// Read fetches page into buf, which must have length PageSize.
//
// When PageSize >= BlockSize, a page lives entirely within (or spans a
// whole number of) blocks and can be read directly at page*PageSize. When
// PageSize < BlockSize, several pages share one block; this computes the
// raw byte offset, rounds it down to the enclosing block boundary using the
// power-of-two bitmask !(BlockSize-1), reads the whole block, and slices out
// the page's portion of it.
func (p *BlockPager) Read(page PageNumber, buf []byte) (int, error) {
	if err := p.checkArgs(page, buf); err != nil {
		return 0, err
	}

	if p.PageSize >= p.BlockSize {
		return p.io.ReadAt(buf, int64(p.PageSize)*int64(page))
	}

	raw := int64(p.PageSize) * int64(page)
	aligned := raw &^ int64(p.BlockSize-1)
	innerOffset := raw - aligned

	block := make([]byte, p.BlockSize)
	// The last block of the file may be short; io.EOF then only means the
	// bytes past the end of the file read as zero.
	if _, err := p.io.ReadAt(block, aligned); err != nil && err != io.EOF {
		return 0, err
	}
	copy(buf, block[innerOffset:innerOffset+int64(p.PageSize)])
	p.logger.Debug("pager: read across block boundary",
		zap.Int64("page", int64(page)), zap.Int64("block_offset", aligned))
	return p.PageSize, nil
}

// Write stores buf (length PageSize) at page's raw offset, unconditionally
// of block alignment — the block-aware logic lives entirely on the read
// side, which reassembles whichever block(s) a write landed in.
func (p *BlockPager) Write(page PageNumber, buf []byte) (int, error) {
	if err := p.checkArgs(page, buf); err != nil {
		return 0, err
	}
	offset := int64(p.PageSize) * int64(page)
	return p.io.WriteAt(buf, offset)
}

// Flush is a no-op for the FileOps implementations this module ships
// (neither DiskFile nor MemFile buffers writes in user space), kept on the
// interface because a future cached Pager implementation would need it.
func (p *BlockPager) Flush() error { return nil }

// Sync issues the OS call that forces data to stable storage. See
// sync_unix.go/sync_other.go for the platform-specific implementation used
// when io is a *DiskFile.
func (p *BlockPager) Sync() error {
	p.logger.Debug("pager: sync")
	return syncFileOps(p.io)
}
