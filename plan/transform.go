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
	"bytes"
	"fmt"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// Filter wraps Source, yielding only rows for which Predicate evaluates
// true. Built by the scan selector for a residual predicate that could not
// be absorbed into range bounds.
type Filter struct {
	Predicate sql.Expression
	SchemaVal catalog.Schema
	Source    Op
}

func (f *Filter) Schema() catalog.Schema { return f.SchemaVal }

func (f *Filter) Next() (Tuple, error) {
	for {
		row, err := f.Source.Next()
		if err != nil {
			return nil, err
		}
		v, err := Eval(f.Predicate, f.SchemaVal, row)
		if err != nil {
			return nil, err
		}
		if v.B {
			return row, nil
		}
	}
}

func (f *Filter) Close() error { return f.Source.Close() }

func (f *Filter) String() string {
	return fmt.Sprintf("Filter{predicate: %s, source: %s}", f.Predicate, f.Source)
}

// Project evaluates ProjectionExprs against each row from Source, producing
// OutputSchema-shaped tuples. The planner skips building a Project node
// entirely when the output schema equals the input schema (a bare `SELECT
// *`), so every Project that exists does real column selection or
// expression evaluation.
type Project struct {
	InputSchema     catalog.Schema
	OutputSchemaVal catalog.Schema
	ProjectionExprs []sql.Expression
	Source          Op
}

func (p *Project) Schema() catalog.Schema { return p.OutputSchemaVal }

func (p *Project) Next() (Tuple, error) {
	row, err := p.Source.Next()
	if err != nil {
		return nil, err
	}
	out := make(Tuple, len(p.ProjectionExprs))
	for i, expr := range p.ProjectionExprs {
		v, err := Eval(expr, p.InputSchema, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *Project) Close() error { return p.Source.Close() }

func (p *Project) String() string {
	return fmt.Sprintf("Project{schema: %s, source: %s}", p.OutputSchemaVal, p.Source)
}

// SortKeysGen appends one extra column per GenExprs to every tuple pulled
// from Source, widening the schema so ORDER BY expressions that aren't bare
// identifiers get a stable column index for the comparator to sort on.
type SortKeysGen struct {
	GenExprs  []sql.Expression
	InputSchema catalog.Schema
	SchemaVal catalog.Schema
	Source    Op
}

func (s *SortKeysGen) Schema() catalog.Schema { return s.SchemaVal }

func (s *SortKeysGen) Next() (Tuple, error) {
	row, err := s.Source.Next()
	if err != nil {
		return nil, err
	}
	out := make(Tuple, 0, len(row)+len(s.GenExprs))
	out = append(out, row...)
	for _, expr := range s.GenExprs {
		v, err := Eval(expr, s.InputSchema, row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *SortKeysGen) Close() error { return s.Source.Close() }

func (s *SortKeysGen) String() string {
	return fmt.Sprintf("SortKeysGen{gen_exprs: %v, source: %s}", s.GenExprs, s.Source)
}

// KeyScan looks up the full table row for each key tuple pulled from
// Source (a sorted stream of keys; a key equal to the one before it is
// skipped), the last step of the disjunction-of-ranges path:
// LogicalOrScan -> Sort -> KeyScan.
type KeyScan struct {
	Table   catalog.TableMetadata
	Source  Op
	Store   storage.RelationStore

	lastKey []byte
}

func (k *KeyScan) Schema() catalog.Schema { return k.Table.Schema }

func (k *KeyScan) Next() (Tuple, error) {
	for {
		keyRow, err := k.Source.Next()
		if err != nil {
			return nil, err
		}
		keyType := k.Table.KeyType()
		keyBytes := storage.SerializeKey(keyType, keyRow[0])
		if k.lastKey != nil && bytes.Equal(keyBytes, k.lastKey) {
			continue
		}
		k.lastKey = keyBytes
		row, found, err := k.Store.Get(k.Table.Relation(), keyBytes)
		if err != nil {
			return nil, fmt.Errorf("plan: KeyScan lookup on %s: %w", k.Table.Name, err)
		}
		if !found {
			// The key came from a snapshot of the index/clustered key
			// taken before this statement's own mutations (if any); a row
			// disappearing between the key stream and the lookup is not
			// possible in the single-statement execution model this
			// engine assumes (section 5), but skip defensively rather
			// than fail the whole scan.
			continue
		}
		return storage.Deserialize(row, k.Table.Schema.DataTypes()), nil
	}
}

func (k *KeyScan) Close() error { return k.Source.Close() }

func (k *KeyScan) String() string {
	return fmt.Sprintf("KeyScan{table: %s, source: %s}", k.Table.Name, k.Source)
}
