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

package storage

import (
	"sort"
	"sync"
)

// MemStore is the reference RelationStore implementation this module ships:
// a key-ordered, in-memory stand-in for the B-Tree/pager-cache stack the
// core spec places out of scope (section 1). It lets the planner, DML
// sinks, and every end-to-end test in this repository drive a real
// RelationStore without a B-Tree, the same role FileOps' MemFile plays for
// the pager (pager/file.go) one layer below: a second, swappable
// implementation behind the same capability interface, not a production
// storage engine.
type MemStore struct {
	mu        sync.Mutex
	relations map[string]*memRelation
}

func NewMemStore() *MemStore {
	return &MemStore{relations: make(map[string]*memRelation)}
}

// memRelation holds one relation's entries sorted by its KeyComparator, so
// Cursor can walk them in key order and Seek can binary-search a starting
// point.
type memRelation struct {
	comparator KeyComparator
	keys       [][]byte
	rows       map[string][]byte
}

func newMemRelation(cmp KeyComparator) *memRelation {
	return &memRelation{comparator: cmp, rows: make(map[string][]byte)}
}

// indexOf returns the position of key within keys (sorted by comparator),
// and whether it is present.
func (r *memRelation) indexOf(key []byte) (int, bool) {
	i := sort.Search(len(r.keys), func(i int) bool { return r.comparator.Compare(r.keys[i], key) >= 0 })
	if i < len(r.keys) && r.comparator.Compare(r.keys[i], key) == 0 {
		return i, true
	}
	return i, false
}

func (r *memRelation) put(key, row []byte) {
	i, found := r.indexOf(key)
	r.rows[string(key)] = row
	if found {
		return
	}
	r.keys = append(r.keys, nil)
	copy(r.keys[i+1:], r.keys[i:])
	r.keys[i] = key
}

func (r *memRelation) delete(key []byte) {
	i, found := r.indexOf(key)
	if !found {
		return
	}
	delete(r.rows, string(key))
	r.keys = append(r.keys[:i], r.keys[i+1:]...)
}

func (s *MemStore) relationFor(rel Relation) *memRelation {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rel.String()
	r, ok := s.relations[key]
	if !ok {
		r = newMemRelation(rel.Comparator)
		s.relations[key] = r
	}
	return r
}

func (s *MemStore) Cursor(rel Relation) (Cursor, error) {
	r := s.relationFor(rel)
	s.mu.Lock()
	keys := append([][]byte(nil), r.keys...)
	s.mu.Unlock()
	return &memCursor{relation: r, keys: keys, idx: 0}, nil
}

func (s *MemStore) Get(rel Relation, key []byte) ([]byte, bool, error) {
	r := s.relationFor(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := r.rows[string(key)]
	return row, ok, nil
}

func (s *MemStore) Put(rel Relation, key, row []byte) error {
	r := s.relationFor(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	r.put(key, row)
	return nil
}

func (s *MemStore) Delete(rel Relation, key []byte) error {
	r := s.relationFor(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	r.delete(key)
	return nil
}

// memCursor walks a snapshot of a relation's keys taken when the cursor was
// opened: keys Put after that point are not visible to an already-open
// cursor, keys deleted since are skipped, and rows overwritten since are
// read in their new form. The snapshot of the key set matches the
// documented cursor-invalidation hazard Collect exists to guard against
// (section 4.7/5).
type memCursor struct {
	relation *memRelation
	keys     [][]byte
	idx      int
}

func (c *memCursor) Next() (Entry, error) {
	if c.idx >= len(c.keys) {
		return Entry{}, ErrCursorExhausted
	}
	key := c.keys[c.idx]
	c.idx++
	row, ok := c.relation.rows[string(key)]
	if !ok {
		// Deleted since the snapshot was taken; skip it rather than
		// surface a stale entry.
		return c.Next()
	}
	return Entry{Key: key, Row: row}, nil
}

func (c *memCursor) Seek(key []byte) error {
	i := sort.Search(len(c.keys), func(i int) bool { return c.relation.comparator.Compare(c.keys[i], key) >= 0 })
	c.idx = i
	return nil
}

func (c *memCursor) Close() error { return nil }
