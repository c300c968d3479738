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

package analyzer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

func newCatalogWithUsers(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New(nil)
	schema := catalog.NewSchema([]sql.Column{
		sql.PrimaryKeyColumn("id", sql.IntT()),
		sql.NewColumn("name", sql.Varchar(10)),
		sql.NewColumn("age", sql.IntT()),
	})
	if _, err := c.CreateTable("users", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return c
}

func TestAnalyzeCreateTableRejectsReservedNames(t *testing.T) {
	c := catalog.New(nil)

	stmt := sql.Statement{Kind: sql.CreateStmt, Create: sql.Create{
		Kind: sql.CreateTable, Name: catalog.MetaTable,
		Columns: []sql.Column{sql.PrimaryKeyColumn("id", sql.IntT())},
	}}
	var alreadyExists *AlreadyExistsError
	if err := Analyze(stmt, c); !errors.As(err, &alreadyExists) {
		t.Fatalf("expected AlreadyExistsError for mkdb_meta, got %v", err)
	}

	stmt2 := sql.Statement{Kind: sql.CreateStmt, Create: sql.Create{
		Kind: sql.CreateTable, Name: "t",
		Columns: []sql.Column{sql.NewColumn(catalog.RowIDColumn, sql.IntT())},
	}}
	var rowID *RowIdAssignmentError
	if err := Analyze(stmt2, c); !errors.As(err, &rowID) {
		t.Fatalf("expected RowIdAssignmentError, got %v", err)
	}
}

func TestAnalyzeCreateTableRejectsDuplicateColumns(t *testing.T) {
	c := catalog.New(nil)
	stmt := sql.Statement{Kind: sql.CreateStmt, Create: sql.Create{
		Kind: sql.CreateTable, Name: "t",
		Columns: []sql.Column{
			sql.NewColumn("id", sql.IntT()),
			sql.NewColumn("id", sql.IntT()),
		},
	}}
	var dup *DuplicatedColumnError
	if err := Analyze(stmt, c); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicatedColumnError, got %v", err)
	}
}

func TestAnalyzeCreateTableRejectsMultiplePrimaryKeys(t *testing.T) {
	c := catalog.New(nil)
	stmt := sql.Statement{Kind: sql.CreateStmt, Create: sql.Create{
		Kind: sql.CreateTable, Name: "t",
		Columns: []sql.Column{
			sql.PrimaryKeyColumn("a", sql.IntT()),
			sql.PrimaryKeyColumn("b", sql.IntT()),
		},
	}}
	var multi *MultiplePrimaryKeysError
	if err := Analyze(stmt, c); !errors.As(err, &multi) {
		t.Fatalf("expected MultiplePrimaryKeysError, got %v", err)
	}
}

func TestAnalyzeCreateIndexRejectsNonUnique(t *testing.T) {
	c := newCatalogWithUsers(t)
	stmt := sql.Statement{Kind: sql.CreateStmt, Create: sql.Create{
		Kind: sql.CreateIndex, Name: "idx", Table: "users", Column: "name", Unique: false,
	}}
	var typeErr *TypeError
	if err := Analyze(stmt, c); !errors.As(err, &typeErr) {
		t.Fatalf("expected TypeError rejecting a non-unique index, got %v", err)
	}
}

func TestAnalyzeSelectRejectsUnknownColumnAndNonBoolWhere(t *testing.T) {
	c := newCatalogWithUsers(t)

	badCol := sql.Statement{Kind: sql.SelectStmt, Columns: []sql.Expression{sql.Ident("nope")}, From: "users"}
	var invalidCol *InvalidColumnError
	if err := Analyze(badCol, c); !errors.As(err, &invalidCol) {
		t.Fatalf("expected InvalidColumnError, got %v", err)
	}

	nonBoolWhere := sql.Statement{
		Kind: sql.SelectStmt, Columns: []sql.Expression{sql.Wildcard()}, From: "users",
		Where: exprPtr(sql.Ident("age")),
	}
	var typeErr *TypeError
	if err := Analyze(nonBoolWhere, c); !errors.As(err, &typeErr) {
		t.Fatalf("expected TypeError for a non-Bool WHERE, got %v", err)
	}
}

func TestAnalyzeInsertMissingColumnsAndCountMismatch(t *testing.T) {
	c := newCatalogWithUsers(t)

	missing := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		InsertCols: []string{"id"},
		Values:     []sql.Expression{sql.Lit(sql.VNumber(1))},
	}
	var missingCols *MissingColumnsError
	if err := Analyze(missing, c); !errors.As(err, &missingCols) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}

	mismatch := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		Values: []sql.Expression{sql.Lit(sql.VNumber(1))},
	}
	var countErr *ColumnValueCountMismatchError
	if err := Analyze(mismatch, c); !errors.As(err, &countErr) {
		t.Fatalf("expected ColumnValueCountMismatchError, got %v", err)
	}
}

func TestAnalyzeInsertRowIDInColumnListRejected(t *testing.T) {
	c := newCatalogWithUsers(t)
	stmt := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		InsertCols: []string{catalog.RowIDColumn, "name", "age"},
		Values: []sql.Expression{
			sql.Lit(sql.VNumber(1)), sql.Lit(sql.VString("a")), sql.Lit(sql.VNumber(1)),
		},
	}
	var rowID *RowIdAssignmentError
	if err := Analyze(stmt, c); !errors.As(err, &rowID) {
		t.Fatalf("expected RowIdAssignmentError, got %v", err)
	}
}

func TestAnalyzeInsertValueTooLongAndOutOfRange(t *testing.T) {
	c := newCatalogWithUsers(t)

	tooLong := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		Values: []sql.Expression{
			sql.Lit(sql.VNumber(1)), sql.Lit(sql.VString("this name is way too long")), sql.Lit(sql.VNumber(1)),
		},
	}
	var tooLongErr *ValueTooLongError
	if err := Analyze(tooLong, c); !errors.As(err, &tooLongErr) {
		t.Fatalf("expected ValueTooLongError, got %v", err)
	}

	outOfRange := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		Values: []sql.Expression{
			sql.Lit(sql.VBigNumber(bigIntFromString("99999999999"))), sql.Lit(sql.VString("a")), sql.Lit(sql.VNumber(1)),
		},
	}
	var rangeErr *IntegerOutOfRangeError
	if err := Analyze(outOfRange, c); !errors.As(err, &rangeErr) {
		t.Fatalf("expected IntegerOutOfRangeError, got %v", err)
	}
}

func TestAnalyzeUpdateRejectsRowIDAssignmentAndMkdbMeta(t *testing.T) {
	c := newCatalogWithUsers(t)

	rowIDAssign := sql.Statement{
		Kind: sql.UpdateStmt, Table: "users",
		Assignments: []sql.Assignment{{Identifier: catalog.RowIDColumn, Value: sql.Lit(sql.VNumber(1))}},
	}
	var rowID *RowIdAssignmentError
	if err := Analyze(rowIDAssign, c); !errors.As(err, &rowID) {
		t.Fatalf("expected RowIdAssignmentError, got %v", err)
	}

	metaUpdate := sql.Statement{Kind: sql.UpdateStmt, Table: catalog.MetaTable}
	var metaErr *MkdbMetaModificationError
	if err := Analyze(metaUpdate, c); !errors.As(err, &metaErr) {
		t.Fatalf("expected MkdbMetaModificationError, got %v", err)
	}
}

func TestAnalyzeDeleteRejectsMkdbMeta(t *testing.T) {
	c := newCatalogWithUsers(t)
	stmt := sql.Statement{Kind: sql.DeleteStmt, From: catalog.MetaTable}
	var metaErr *MkdbMetaModificationError
	if err := Analyze(stmt, c); !errors.As(err, &metaErr) {
		t.Fatalf("expected MkdbMetaModificationError, got %v", err)
	}
}

func TestAnalyzeAcceptsWellFormedStatements(t *testing.T) {
	c := newCatalogWithUsers(t)

	sel := sql.Statement{
		Kind: sql.SelectStmt, Columns: []sql.Expression{sql.Wildcard()}, From: "users",
		Where:   exprPtr(sql.Binary(sql.Ident("age"), sql.OpGt, sql.Lit(sql.VNumber(18)))),
		OrderBy: []sql.Expression{sql.Ident("name")},
	}
	if err := Analyze(sel, c); err != nil {
		t.Fatalf("expected a well-formed SELECT to pass, got %v", err)
	}

	ins := sql.Statement{
		Kind: sql.InsertStmt, Into: "users",
		Values: []sql.Expression{sql.Lit(sql.VNumber(1)), sql.Lit(sql.VString("bob")), sql.Lit(sql.VNumber(30))},
	}
	if err := Analyze(ins, c); err != nil {
		t.Fatalf("expected a well-formed INSERT to pass, got %v", err)
	}
}

func exprPtr(e sql.Expression) *sql.Expression { return &e }

func bigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad literal in test: " + s)
	}
	return n
}
