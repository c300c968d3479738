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

package catalog

import (
	"testing"

	"github.com/mkdb-go/mkdb/sql"
)

func TestSchemaIndexOf(t *testing.T) {
	s := NewSchema([]sql.Column{
		sql.PrimaryKeyColumn("id", sql.IntT()),
		sql.NewColumn("name", sql.Varchar(255)),
	})
	idx, ok := s.IndexOf("name")
	if !ok || idx != 1 {
		t.Fatalf("IndexOf(name) = %d, %v; want 1, true", idx, ok)
	}
	if _, ok := s.IndexOf("missing"); ok {
		t.Fatal("expected IndexOf(missing) to fail")
	}
}

func TestSchemaHasRowIDAndClusteredKey(t *testing.T) {
	withPK := NewSchema([]sql.Column{
		sql.PrimaryKeyColumn("id", sql.IntT()),
		sql.NewColumn("name", sql.Varchar(255)),
	})
	if withPK.HasRowID() {
		t.Fatal("table with a declared primary key must not be row_id keyed")
	}
	if withPK.ClusteredKeyIndex() != 0 {
		t.Fatalf("ClusteredKeyIndex() = %d, want 0", withPK.ClusteredKeyIndex())
	}

	withRowID := NewSchema([]sql.Column{
		sql.NewColumn(RowIDColumn, sql.UnsignedBigIntT()),
		sql.NewColumn("name", sql.Varchar(255)),
	})
	if !withRowID.HasRowID() {
		t.Fatal("table whose first column is row_id must be row_id keyed")
	}
	if withRowID.PrimaryKeyIndex() != -1 {
		t.Fatalf("PrimaryKeyIndex() = %d, want -1", withRowID.PrimaryKeyIndex())
	}
	if withRowID.ClusteredKeyIndex() != 0 {
		t.Fatalf("ClusteredKeyIndex() = %d, want 0", withRowID.ClusteredKeyIndex())
	}
}

func TestSchemaDuplicateColumnPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing a schema with duplicate column names")
		}
	}()
	NewSchema([]sql.Column{
		sql.NewColumn("id", sql.IntT()),
		sql.NewColumn("id", sql.BigIntT()),
	})
}
