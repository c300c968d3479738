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

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// Insert pulls rows from Source (always a Values node with exactly one row
// in this module's planner, section 4.5) and writes them through Store,
// maintaining every secondary index in the same logical step as the
// primary write and assigning a fresh row_id when the table has no user
// primary key.
type Insert struct {
	Source Op
	Table  catalog.TableMetadata
	Store  storage.RelationStore
	RowIDs catalog.RowIDAllocator
}

func (i *Insert) Schema() catalog.Schema { return i.Table.Schema }

func (i *Insert) Next() (Tuple, error) {
	row, err := i.Source.Next()
	if err != nil {
		return nil, err
	}

	if i.Table.Schema.HasRowID() {
		id, err := i.RowIDs.NextRowID(i.Table.Name)
		if err != nil {
			return nil, fmt.Errorf("plan: Insert allocating row_id for %s: %w", i.Table.Name, err)
		}
		full := make(Tuple, 0, len(row)+1)
		full = append(full, sql.VNumber(int64(id)))
		row = append(full, row...)
	}

	keyIdx := i.Table.Schema.ClusteredKeyIndex()
	keyType := i.Table.KeyType()
	key := storage.SerializeKey(keyType, row[keyIdx])
	encoded := storage.Serialize(i.Table.Schema.DataTypes(), row)

	if _, found, err := i.Store.Get(i.Table.Relation(), key); err != nil {
		return nil, fmt.Errorf("plan: Insert checking existing key on %s: %w", i.Table.Name, err)
	} else if found {
		return nil, fmt.Errorf("plan: %w: duplicate key on table %s", storage.ErrUniqueConstraintViolation, i.Table.Name)
	}

	if err := i.Store.Put(i.Table.Relation(), key, encoded); err != nil {
		return nil, fmt.Errorf("plan: Insert writing row into %s: %w", i.Table.Name, err)
	}

	for _, idx := range i.Table.Indexes {
		colIdx, ok := i.Table.Schema.IndexOf(idx.Column)
		if !ok {
			continue
		}
		idxKey := storage.SerializeKey(idx.KeyType, row[colIdx])
		if idx.Unique {
			if _, found, err := i.Store.Get(idx.Relation(), idxKey); err != nil {
				return nil, fmt.Errorf("plan: Insert checking index %s: %w", idx.Name, err)
			} else if found {
				return nil, fmt.Errorf("plan: %w: duplicate key on index %s", storage.ErrUniqueConstraintViolation, idx.Name)
			}
		}
		if err := i.Store.Put(idx.Relation(), idxKey, key); err != nil {
			return nil, fmt.Errorf("plan: Insert updating index %s: %w", idx.Name, err)
		}
	}

	return row, nil
}

func (i *Insert) Close() error { return i.Source.Close() }

func (i *Insert) String() string {
	return fmt.Sprintf("Insert{table: %s, source: %s}", i.Table.Name, i.Source)
}

// Update pulls rows from Source until exhaustion, applies Assignments to
// each, and writes the result back through Store. Source is wrapped in a
// Collect by the planner whenever the underlying scan's cursor could be
// invalidated by this statement's own writes (section 4.5/4.7).
type Update struct {
	Source      Op
	Table       catalog.TableMetadata
	Assignments []sql.Assignment
	Store       storage.RelationStore
}

func (u *Update) Schema() catalog.Schema { return u.Table.Schema }

func (u *Update) Next() (Tuple, error) {
	row, err := u.Source.Next()
	if err != nil {
		return nil, err
	}

	keyIdx := u.Table.Schema.ClusteredKeyIndex()
	keyType := u.Table.KeyType()
	oldKey := storage.SerializeKey(keyType, row[keyIdx])

	updated := append(Tuple(nil), row...)
	for _, assign := range u.Assignments {
		idx, ok := u.Table.Schema.IndexOf(assign.Identifier)
		if !ok {
			return nil, fmt.Errorf("plan: Update assignment to unknown column %q (analyzer should have rejected this)", assign.Identifier)
		}
		v, err := Eval(assign.Value, u.Table.Schema, row)
		if err != nil {
			return nil, err
		}
		updated[idx] = v
	}

	newKey := storage.SerializeKey(keyType, updated[keyIdx])
	encoded := storage.Serialize(u.Table.Schema.DataTypes(), updated)

	if string(newKey) != string(oldKey) {
		if err := u.Store.Delete(u.Table.Relation(), oldKey); err != nil {
			return nil, fmt.Errorf("plan: Update removing old key on %s: %w", u.Table.Name, err)
		}
	}
	if err := u.Store.Put(u.Table.Relation(), newKey, encoded); err != nil {
		return nil, fmt.Errorf("plan: Update writing row into %s: %w", u.Table.Name, err)
	}

	for _, idx := range u.Table.Indexes {
		colIdx, ok := u.Table.Schema.IndexOf(idx.Column)
		if !ok {
			continue
		}
		oldIdxKey := storage.SerializeKey(idx.KeyType, row[colIdx])
		newIdxKey := storage.SerializeKey(idx.KeyType, updated[colIdx])
		if string(oldIdxKey) == string(newIdxKey) {
			continue
		}
		if err := u.Store.Delete(idx.Relation(), oldIdxKey); err != nil {
			return nil, fmt.Errorf("plan: Update removing old index entry on %s: %w", idx.Name, err)
		}
		if err := u.Store.Put(idx.Relation(), newIdxKey, newKey); err != nil {
			return nil, fmt.Errorf("plan: Update writing index entry on %s: %w", idx.Name, err)
		}
	}

	return updated, nil
}

func (u *Update) Close() error { return u.Source.Close() }

func (u *Update) String() string {
	return fmt.Sprintf("Update{table: %s, source: %s}", u.Table.Name, u.Source)
}

// Delete pulls rows from Source until exhaustion, removing each from Store
// along with its secondary index entries.
type Delete struct {
	Source Op
	Table  catalog.TableMetadata
	Store  storage.RelationStore
}

func (d *Delete) Schema() catalog.Schema { return d.Table.Schema }

func (d *Delete) Next() (Tuple, error) {
	row, err := d.Source.Next()
	if err != nil {
		return nil, err
	}

	keyIdx := d.Table.Schema.ClusteredKeyIndex()
	key := storage.SerializeKey(d.Table.KeyType(), row[keyIdx])
	if err := d.Store.Delete(d.Table.Relation(), key); err != nil {
		return nil, fmt.Errorf("plan: Delete removing row from %s: %w", d.Table.Name, err)
	}

	for _, idx := range d.Table.Indexes {
		colIdx, ok := d.Table.Schema.IndexOf(idx.Column)
		if !ok {
			continue
		}
		idxKey := storage.SerializeKey(idx.KeyType, row[colIdx])
		if err := d.Store.Delete(idx.Relation(), idxKey); err != nil {
			return nil, fmt.Errorf("plan: Delete removing index entry from %s: %w", idx.Name, err)
		}
	}

	return row, nil
}

func (d *Delete) Close() error { return d.Source.Close() }

func (d *Delete) String() string {
	return fmt.Sprintf("Delete{table: %s, source: %s}", d.Table.Name, d.Source)
}
