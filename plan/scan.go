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

package plan

import (
	"fmt"
	"io"
	"strings"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// keyOnlySchema is the single-column schema a key-only emitting scan yields:
// the clustered key value alone, used to feed LogicalOrScan's dedup/Sort
// stage and KeyScan's lookups.
func keyOnlySchema(keyType sql.DataType) catalog.Schema {
	return catalog.NewSchema([]sql.Column{{Name: "row_id", DataType: keyType}})
}

// SeqScan walks every row of a table's clustered B-Tree in key order.
type SeqScan struct {
	Table catalog.TableMetadata
	Store storage.RelationStore

	cursor storage.Cursor
}

func NewSeqScan(table catalog.TableMetadata, store storage.RelationStore) *SeqScan {
	return &SeqScan{Table: table, Store: store}
}

func (s *SeqScan) Schema() catalog.Schema { return s.Table.Schema }

func (s *SeqScan) Next() (Tuple, error) {
	if s.cursor == nil {
		cur, err := s.Store.Cursor(s.Table.Relation())
		if err != nil {
			return nil, fmt.Errorf("plan: SeqScan open cursor on %s: %w", s.Table.Name, err)
		}
		s.cursor = cur
	}
	entry, err := s.cursor.Next()
	if err == storage.ErrCursorExhausted {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return storage.Deserialize(entry.Row, s.Table.Schema.DataTypes()), nil
}

func (s *SeqScan) Close() error {
	if s.cursor == nil {
		return nil
	}
	return s.cursor.Close()
}

func (s *SeqScan) String() string {
	return fmt.Sprintf("SeqScan{table: %s}", s.Table.Name)
}

// ExactMatch looks up a single row (or index entry) by an exact key value.
// It yields at most one tuple.
type ExactMatch struct {
	Relation         storage.Relation
	Key              []byte
	Expr             sql.Expression
	EmitTableKeyOnly bool
	Store            storage.RelationStore

	// RowSchema is the table's schema: full rows are decoded with it, and
	// when EmitTableKeyOnly is set its clustered key column gives the type
	// of the single-column key tuple emitted.
	RowSchema catalog.Schema

	done bool
}

func (e *ExactMatch) Schema() catalog.Schema {
	if e.EmitTableKeyOnly {
		return keyOnlySchema(e.RowSchema.Columns[e.RowSchema.ClusteredKeyIndex()].DataType)
	}
	return e.RowSchema
}

func (e *ExactMatch) Next() (Tuple, error) {
	if e.done {
		return nil, io.EOF
	}
	e.done = true

	row, found, err := e.Store.Get(e.Relation, e.Key)
	if err != nil {
		return nil, fmt.Errorf("plan: ExactMatch lookup on %s: %w", e.Relation, err)
	}
	if !found {
		return nil, io.EOF
	}

	if e.EmitTableKeyOnly {
		keyType := e.RowSchema.Columns[e.RowSchema.ClusteredKeyIndex()].DataType
		if e.Relation.Kind == storage.IndexRelation {
			// An index entry's stored value is the table row's key; emit
			// that so a downstream KeyScan can fetch the full row.
			return Tuple{storage.DeserializeKey(row, keyType)}, nil
		}
		return Tuple{storage.DeserializeKey(e.Key, keyType)}, nil
	}
	return storage.Deserialize(row, e.RowSchema.DataTypes()), nil
}

func (e *ExactMatch) Close() error { return nil }

func (e *ExactMatch) String() string {
	return fmt.Sprintf("ExactMatch{relation: %s, key: %x, emit_table_key_only: %v}",
		e.Relation, e.Key, e.EmitTableKeyOnly)
}

// RangeScan walks a relation's key-ordered entries between Lower and Upper.
type RangeScan struct {
	Relation         storage.Relation
	Lower, Upper     storage.Bound
	Expr             sql.Expression
	EmitTableKeyOnly bool
	Store            storage.RelationStore
	RowSchema        catalog.Schema

	cursor  storage.Cursor
	started bool
}

func (r *RangeScan) Schema() catalog.Schema {
	if r.EmitTableKeyOnly {
		return keyOnlySchema(r.RowSchema.Columns[r.RowSchema.ClusteredKeyIndex()].DataType)
	}
	return r.RowSchema
}

func (r *RangeScan) Next() (Tuple, error) {
	if r.cursor == nil {
		cur, err := r.Store.Cursor(r.Relation)
		if err != nil {
			return nil, fmt.Errorf("plan: RangeScan open cursor on %s: %w", r.Relation, err)
		}
		r.cursor = cur
		if r.Lower.Kind != storage.Unbounded {
			if err := r.cursor.Seek(r.Lower.Value); err != nil {
				return nil, fmt.Errorf("plan: RangeScan seek on %s: %w", r.Relation, err)
			}
		}
	}

	for {
		entry, err := r.cursor.Next()
		if err == storage.ErrCursorExhausted {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		if r.Lower.Kind == storage.Excluded && r.Relation.Comparator.Compare(entry.Key, r.Lower.Value) == 0 {
			continue
		}
		if r.Upper.Kind != storage.Unbounded {
			cmp := r.Relation.Comparator.Compare(entry.Key, r.Upper.Value)
			if cmp > 0 || (cmp == 0 && r.Upper.Kind == storage.Excluded) {
				return nil, io.EOF
			}
		}

		if r.EmitTableKeyOnly {
			keyType := r.RowSchema.Columns[r.RowSchema.ClusteredKeyIndex()].DataType
			if r.Relation.Kind == storage.IndexRelation {
				return Tuple{storage.DeserializeKey(entry.Row, keyType)}, nil
			}
			return Tuple{storage.DeserializeKey(entry.Key, keyType)}, nil
		}
		return storage.Deserialize(entry.Row, r.RowSchema.DataTypes()), nil
	}
}

func (r *RangeScan) Close() error {
	if r.cursor == nil {
		return nil
	}
	return r.cursor.Close()
}

func (r *RangeScan) String() string {
	return fmt.Sprintf("RangeScan{relation: %s, range: (%s, %s), emit_table_key_only: %v}",
		r.Relation, r.Lower, r.Upper, r.EmitTableKeyOnly)
}

// LogicalOrScan drains an ordered queue of key-only sub-scans in order,
// used to evaluate a disjunction of indexable atoms that cannot collapse
// into one ExactMatch/RangeScan. Its output feeds a Sort (to reorder keys)
// and then a KeyScan (which skips repeated keys).
type LogicalOrScan struct {
	SubScans []Op

	idx int
}

func (l *LogicalOrScan) Schema() catalog.Schema {
	if len(l.SubScans) == 0 {
		return catalog.Schema{}
	}
	return l.SubScans[0].Schema()
}

func (l *LogicalOrScan) Next() (Tuple, error) {
	for l.idx < len(l.SubScans) {
		t, err := l.SubScans[l.idx].Next()
		if err == io.EOF {
			l.idx++
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, io.EOF
}

func (l *LogicalOrScan) Close() error { return CloseAll(l.SubScans...) }

func (l *LogicalOrScan) String() string {
	parts := make([]string, len(l.SubScans))
	for i, s := range l.SubScans {
		parts[i] = s.String()
	}
	return fmt.Sprintf("LogicalOrScan{sub_scans: [%s]}", strings.Join(parts, ", "))
}

// Values is a leaf Op over a fixed, in-memory set of rows, used as the
// source for INSERT.
type Values struct {
	Rows      []Tuple
	RowSchema catalog.Schema

	idx int
}

func (v *Values) Schema() catalog.Schema { return v.RowSchema }

func (v *Values) Next() (Tuple, error) {
	if v.idx >= len(v.Rows) {
		return nil, io.EOF
	}
	t := v.Rows[v.idx]
	v.idx++
	return t, nil
}

func (v *Values) Close() error { return nil }

func (v *Values) String() string {
	return fmt.Sprintf("Values{rows: %d}", len(v.Rows))
}
