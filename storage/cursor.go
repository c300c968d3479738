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
	"errors"
	"fmt"

	"github.com/mkdb-go/mkdb/sql"
)

// ErrCursorExhausted is returned by Cursor.Next once no entries remain.
var ErrCursorExhausted = errors.New("storage: cursor exhausted")

// Entry is a single (key, row) pair a Cursor yields while walking a
// Relation in key order.
type Entry struct {
	Key []byte
	Row []byte
}

// Cursor is a position within a B-Tree, the capability interface every scan
// operator drives to pull tuples in key order. A Cursor is invalidated by
// any mutation to the tree it walks; callers are responsible for not
// holding one across a DML sink (see sortrun.Collect).
type Cursor interface {
	// Next advances to and returns the next entry in key order, or
	// ErrCursorExhausted when the cursor has walked past the last one.
	Next() (Entry, error)

	// Seek repositions the cursor at the first entry whose key is >= key
	// (used to start a RangeScan/ExactMatch at a specific lower bound).
	Seek(key []byte) error

	Close() error
}

// RelationKind distinguishes a base table from a secondary index when both
// are viewed as sorted key/rowid stores.
type RelationKind int

const (
	TableRelation RelationKind = iota
	IndexRelation
)

// Relation is either a base table or an index, named the way the spec's
// end-to-end scenarios render them: Table(users), Index(users_email_uq_index).
type Relation struct {
	Kind       RelationKind
	Name       string
	RootPage   int64
	KeyType    sql.DataType
	Comparator KeyComparator
}

func (r Relation) String() string {
	switch r.Kind {
	case IndexRelation:
		return "Index(" + r.Name + ")"
	default:
		return "Table(" + r.Name + ")"
	}
}

// RelationStore is the capability interface every storage-touching plan
// operator borrows to walk or mutate a Relation: it stands in for the
// B-Tree/pager-cache stack this module does not implement, the same way
// Cursor stands in for a single position within one.
type RelationStore interface {
	// Cursor opens a Cursor positioned before the first entry of rel.
	Cursor(rel Relation) (Cursor, error)

	// Get looks up the row stored under key in rel. found is false when no
	// such key exists (not an error).
	Get(rel Relation, key []byte) (row []byte, found bool, err error)

	// Put inserts or overwrites the entry for key in rel.
	Put(rel Relation, key, row []byte) error

	// Delete removes the entry for key in rel, if present.
	Delete(rel Relation, key []byte) error
}

// BoundKind discriminates the three kinds of range endpoint a RangeScan can
// have on either side.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

func (k BoundKind) String() string {
	switch k {
	case Included:
		return "Included"
	case Excluded:
		return "Excluded"
	default:
		return "Unbounded"
	}
}

// Bound is one endpoint (lower or upper) of a RangeScan, carrying the
// already-serialized key Value when Kind != Unbounded.
type Bound struct {
	Kind  BoundKind
	Value []byte
}

func (b Bound) String() string {
	if b.Kind == Unbounded {
		return "Unbounded"
	}
	return fmt.Sprintf("%s(%x)", b.Kind, b.Value)
}
