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

// Package catalog resolves table names to metadata: schema, B-Tree root
// page, index list, and key comparator. It also owns the row-id allocator
// and the mkdb_meta persistence the rest of the engine treats as a reserved,
// if ordinary, table.
package catalog

import (
	"fmt"
	"strings"

	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// RowIDColumn is the reserved column name that marks a table as row-id
// keyed: when a schema's first column has this name, the table has no user
// primary key.
const RowIDColumn = "row_id"

// MetaTable is the reserved table name backing the catalog itself; no user
// table may be created with this name.
const MetaTable = "mkdb_meta"

// Schema is an ordered sequence of columns with an auxiliary name->index
// lookup, mirroring the invariant that column names are unique within one
// schema.
type Schema struct {
	Columns []sql.Column
	byName  map[string]int
}

// NewSchema builds a Schema from cols, indexing them by name. Duplicate
// names are a programmer error — callers must run create-table column lists
// through the analyzer first, which rejects DuplicatedColumn before a
// Schema is ever constructed.
func NewSchema(cols []sql.Column) Schema {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := idx[c.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate column %q in schema", c.Name))
		}
		idx[c.Name] = i
	}
	return Schema{Columns: cols, byName: idx}
}

// IndexOf returns the position of a column by name.
func (s Schema) IndexOf(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// DataTypes projects the schema down to the bare column types the tuple
// codec operates on.
func (s Schema) DataTypes() []sql.DataType {
	out := make([]sql.DataType, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.DataType
	}
	return out
}

// HasRowID reports whether this schema's first column is the reserved
// row_id column, i.e. the table has no user-declared primary key.
func (s Schema) HasRowID() bool {
	return len(s.Columns) > 0 && s.Columns[0].Name == RowIDColumn
}

// PrimaryKeyIndex returns the index of the user-declared PRIMARY KEY column,
// or -1 if the table is row_id keyed.
func (s Schema) PrimaryKeyIndex() int {
	for i, c := range s.Columns {
		if c.HasConstraint(sql.PrimaryKey) {
			return i
		}
	}
	return -1
}

// ClusteredKeyIndex returns the index of the column the table is physically
// ordered by: the user primary key if one exists, otherwise column 0
// (row_id).
func (s Schema) ClusteredKeyIndex() int {
	if pk := s.PrimaryKeyIndex(); pk >= 0 {
		return pk
	}
	return 0
}

// String renders the schema the way CREATE TABLE would.
func (s Schema) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
