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

//go:build unix

package pager

import "golang.org/x/sys/unix"

// syncFileOps forces io's contents to stable storage. For a *DiskFile this
// calls fdatasync(2) directly on the descriptor, which — unlike
// (*os.File).Sync, fsync(2) — skips flushing metadata that doesn't affect
// the ability to read the data back (e.g. atime), matching the spec's
// requirement to issue the OS durability call rather than merely flush user
// buffers.
func syncFileOps(io FileOps) error {
	if df, ok := io.(*DiskFile); ok {
		return unix.Fdatasync(int(df.Fd()))
	}
	return io.Sync()
}
