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

package sortrun

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// writeRunFile spills buf to a newly created, uniquely named temp file
// under workDir, one record per tuple: a 4-byte big-endian length prefix
// (the codec's own encoding lengths vary with varchar content, so each
// record needs its own framing) followed by the tuple's Serialize output.
// The file name embeds a uuid, the same collision-avoidance role sneller
// uses uuid for when naming ephemeral objects.
func writeRunFile(workDir string, buf []plan.Tuple, dtypes []sql.DataType) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("sortrun: creating work dir %s: %w", workDir, err)
	}
	path := filepath.Join(workDir, fmt.Sprintf("run-%s.tmp", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("sortrun: creating run file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var lenBuf [4]byte
	for _, t := range buf {
		encoded := storage.Serialize(dtypes, t)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return "", fmt.Errorf("sortrun: writing run file: %w", err)
		}
		if _, err := w.Write(encoded); err != nil {
			return "", fmt.Errorf("sortrun: writing run file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("sortrun: flushing run file: %w", err)
	}
	return path, nil
}

// memRunReader iterates a run that never spilled.
type memRunReader struct {
	tuples []plan.Tuple
	idx    int
}

func (m *memRunReader) Next() (plan.Tuple, error) {
	if m.idx >= len(m.tuples) {
		return nil, io.EOF
	}
	t := m.tuples[m.idx]
	m.idx++
	return t, nil
}

func (m *memRunReader) Close() error { return nil }

// fileRunReader streams tuples back out of a spilled run file.
type fileRunReader struct {
	f      *os.File
	r      *bufio.Reader
	dtypes []sql.DataType
}

func (fr *fileRunReader) Next() (plan.Tuple, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("sortrun: reading run file: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, fmt.Errorf("sortrun: reading run file record: %w", err)
	}
	return storage.Deserialize(buf, fr.dtypes), nil
}

func (fr *fileRunReader) Close() error { return fr.f.Close() }

// openRun opens a RunReader over r, dispatching on whether it spilled.
func openRun(r run, dtypes []sql.DataType) (RunReader, error) {
	if r.tuples != nil {
		return &memRunReader{tuples: r.tuples}, nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("sortrun: opening run file %s: %w", r.path, err)
	}
	return &fileRunReader{f: f, r: bufio.NewReader(f), dtypes: dtypes}, nil
}
