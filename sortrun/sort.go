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
	"container/heap"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
)

// Comparator orders two tuples by comparing the values at SortKeyIndexes,
// in order, ascending only (descending order is an open extension the spec
// explicitly defers, section 9).
type Comparator struct {
	SortKeyIndexes []int
}

// Compare returns <0, 0, >0 as a < b, a == b, a > b under this comparator.
func (c Comparator) Compare(a, b plan.Tuple) int {
	for _, idx := range c.SortKeyIndexes {
		cmp, ok := a[idx].Compare(b[idx])
		if !ok {
			panic(fmt.Sprintf("sortrun: incomparable sort key values %s and %s (analyzer should have rejected this)", a[idx], b[idx]))
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

// Sort consumes a Collect's runs and performs an external k-way merge.
// Collect stores each run in arrival order, so Sort first reads every run
// into memory and sorts it stably. Phase 1 then iteratively folds
// InputBuffers-1 runs (but at least two) at a time into a new on-disk run
// until the run count fits within InputBuffers; Phase 2 merges
// the remainder through a priority queue. Equal keys preserve the relative
// order they arrived in (stable), because ties are broken by the run's
// original arrival position throughout both phases.
type Sort struct {
	Collection   *Collect
	Comparator   Comparator
	WorkDir      string
	InputBuffers int
	// OutputSchemaVal is the schema produced after dropping any sort-key
	// columns SortKeysGen appended upstream; it may be narrower than
	// Collection.Schema().
	OutputSchemaVal catalog.Schema
	Logger          *zap.Logger

	merged   RunReader
	started  bool
	tempRuns []string // phase-1 intermediate run files, cleaned up on Close
}

func NewSort(collection *Collect, cmp Comparator, outputSchema catalog.Schema, workDir string, inputBuffers int, logger *zap.Logger) *Sort {
	if inputBuffers < 2 {
		inputBuffers = DefaultSortInputBuffers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sort{
		Collection:      collection,
		Comparator:      cmp,
		WorkDir:         workDir,
		InputBuffers:    inputBuffers,
		OutputSchemaVal: outputSchema,
		Logger:          logger,
	}
}

func (s *Sort) Schema() catalog.Schema { return s.OutputSchemaVal }

func (s *Sort) start() error {
	if s.started {
		return nil
	}
	s.started = true

	readers, err := s.Collection.Runs()
	if err != nil {
		return err
	}

	// Sort each run stably so the merges below combine sorted runs.
	for i, r := range readers {
		var buf []plan.Tuple
		t, err := r.Next()
		for ; err == nil; t, err = r.Next() {
			buf = append(buf, t)
		}
		r.Close()
		if err != io.EOF {
			return err
		}
		sort.SliceStable(buf, func(a, b int) bool { return s.Comparator.Compare(buf[a], buf[b]) < 0 })
		readers[i] = &memRunReader{tuples: buf}
	}

	// Phase 1: fold down until the run count fits in InputBuffers.
	for len(readers) > s.InputBuffers {
		take := s.InputBuffers - 1
		if take < 2 {
			take = 2
		}
		if take > len(readers) {
			take = len(readers)
		}
		group := readers[:take]
		rest := readers[take:]

		s.Logger.Debug("sortrun: merging down runs",
			zap.Int("group_size", len(group)), zap.Int("remaining", len(rest)))

		merged, err := mergeReaders(group, s.Comparator)
		if err != nil {
			return err
		}
		dtypes := s.Collection.SchemaVal.DataTypes()
		var buf []plan.Tuple
		for {
			t, err := merged.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			buf = append(buf, t)
		}
		path, err := writeRunFile(s.WorkDir, buf, dtypes)
		if err != nil {
			return err
		}
		s.tempRuns = append(s.tempRuns, path)
		newReader, err := openRun(run{path: path}, dtypes)
		if err != nil {
			return err
		}
		readers = append([]RunReader{newReader}, rest...)
	}

	// Phase 2: merge whatever remains, lazily.
	merged, err := mergeReaders(readers, s.Comparator)
	if err != nil {
		return err
	}
	s.merged = merged
	return nil
}

func (s *Sort) Next() (plan.Tuple, error) {
	if err := s.start(); err != nil {
		return nil, err
	}
	t, err := s.merged.Next()
	if err != nil {
		return nil, err
	}
	// Drop any sort-key columns SortKeysGen appended beyond the output
	// schema's width.
	width := len(s.OutputSchemaVal.Columns)
	if len(t) > width {
		t = t[:width]
	}
	return t, nil
}

func (s *Sort) Close() error {
	var first error
	if s.merged != nil {
		if err := s.merged.Close(); err != nil {
			first = err
		}
	}
	for _, path := range s.tempRuns {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && first == nil {
			first = err
		}
	}
	if err := s.Collection.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (s *Sort) String() string {
	return fmt.Sprintf("Sort{comparator: {sort_keys_indexes: %v}, collection: %s}", s.Comparator.SortKeyIndexes, s.Collection)
}

// heapItem is one run's current head tuple inside the k-way merge heap.
// readerIx is the run's index among the readers passed to mergeReaders and
// seq the tuple's position within that run; together they are a stable
// tie-break: since Collect assigns tuples to runs strictly in arrival order
// and runs are sorted stably, "lower run index wins ties" reproduces the
// original arrival order for equal keys.
type heapItem struct {
	tuple    plan.Tuple
	readerIx int
	seq      int
}

type mergeHeap struct {
	items []heapItem
	cmp   Comparator
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	c := h.cmp.Compare(h.items[i].tuple, h.items[j].tuple)
	if c != 0 {
		return c < 0
	}
	if h.items[i].readerIx != h.items[j].readerIx {
		return h.items[i].readerIx < h.items[j].readerIx
	}
	return h.items[i].seq < h.items[j].seq
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)    { h.items = append(h.items, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// kWayMerge is a lazily-pulled RunReader that merges several already-sorted
// RunReaders via a priority queue.
type kWayMerge struct {
	readers []RunReader
	seqs    []int
	h       *mergeHeap
}

func mergeReaders(readers []RunReader, cmp Comparator) (RunReader, error) {
	m := &kWayMerge{
		readers: readers,
		seqs:    make([]int, len(readers)),
		h:       &mergeHeap{cmp: cmp},
	}
	heap.Init(m.h)
	for i := range readers {
		if err := m.pull(i); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// pull advances reader i and pushes its next tuple onto the heap, if any.
func (m *kWayMerge) pull(i int) error {
	t, err := m.readers[i].Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	heap.Push(m.h, heapItem{tuple: t, readerIx: i, seq: m.seqs[i]})
	m.seqs[i]++
	return nil
}

func (m *kWayMerge) Next() (plan.Tuple, error) {
	if m.h.Len() == 0 {
		return nil, io.EOF
	}
	top := heap.Pop(m.h).(heapItem)
	if err := m.pull(top.readerIx); err != nil {
		return nil, err
	}
	return top.tuple, nil
}

func (m *kWayMerge) Close() error {
	var first error
	for _, r := range m.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
