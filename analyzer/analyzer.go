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

// Package analyzer performs the semantic validation the planner's
// post-conditions assume: every identifier resolves, every WHERE expression
// is Bool-typed, every INSERT/UPDATE value matches its column's semantic
// type and fits the column's declared range/length, and no statement
// touches a reserved name it shouldn't.
package analyzer

import (
	"math/big"
	"unicode/utf8"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// Catalog is the subset of *catalog.Catalog the analyzer needs: name
// resolution only, never mutation.
type Catalog interface {
	Exists(name string) bool
	Lookup(name string) (catalog.TableMetadata, error)
}

// Analyze validates stmt against cat, returning the first violation found.
// A nil error means the planner's post-conditions all hold.
func Analyze(stmt sql.Statement, cat Catalog) error {
	switch stmt.Kind {
	case sql.CreateStmt:
		return analyzeCreate(stmt, cat)
	case sql.SelectStmt:
		return analyzeSelect(stmt, cat)
	case sql.InsertStmt:
		return analyzeInsert(stmt, cat)
	case sql.UpdateStmt:
		return analyzeUpdate(stmt, cat)
	case sql.DeleteStmt:
		return analyzeDelete(stmt, cat)
	case sql.ExplainStmt:
		return Analyze(*stmt.Inner, cat)
	default:
		return nil
	}
}

func analyzeCreate(stmt sql.Statement, cat Catalog) error {
	switch stmt.Create.Kind {
	case sql.CreateTable:
		return analyzeCreateTable(stmt, cat)
	case sql.CreateIndex:
		return analyzeCreateIndex(stmt, cat)
	default:
		return nil
	}
}

func analyzeCreateTable(stmt sql.Statement, cat Catalog) error {
	name := stmt.Create.Name
	if name == catalog.MetaTable || cat.Exists(name) {
		return &AlreadyExistsError{Kind: AlreadyExistsTable, Name: name}
	}

	seen := make(map[string]bool, len(stmt.Create.Columns))
	primaryKeys := 0
	for _, col := range stmt.Create.Columns {
		if col.Name == catalog.RowIDColumn {
			return &RowIdAssignmentError{}
		}
		if seen[col.Name] {
			return &DuplicatedColumnError{Column: col.Name}
		}
		seen[col.Name] = true
		if col.HasConstraint(sql.PrimaryKey) {
			primaryKeys++
		}
	}
	if primaryKeys > 1 {
		return &MultiplePrimaryKeysError{Table: name}
	}
	return nil
}

func analyzeCreateIndex(stmt sql.Statement, cat Catalog) error {
	table := stmt.Create.Table
	tm, err := cat.Lookup(table)
	if err != nil {
		return &InvalidTableError{Table: table}
	}
	if !stmt.Create.Unique {
		return &TypeError{Kind: ExpectedType, Context: "CREATE INDEX requires UNIQUE"}
	}
	if _, ok := tm.Schema.IndexOf(stmt.Create.Column); !ok {
		return &InvalidColumnError{Table: table, Column: stmt.Create.Column}
	}
	for _, idx := range tm.Indexes {
		if idx.Name == stmt.Create.Name {
			return &AlreadyExistsError{Kind: AlreadyExistsIndex, Name: stmt.Create.Name}
		}
	}
	return nil
}

func analyzeSelect(stmt sql.Statement, cat Catalog) error {
	tm, err := cat.Lookup(stmt.From)
	if err != nil {
		return &InvalidTableError{Table: stmt.From}
	}
	for _, col := range stmt.Columns {
		if col.Kind == sql.WildcardExpr {
			continue
		}
		if _, err := inferType(col, tm.Schema); err != nil {
			return err
		}
	}
	if stmt.Where != nil {
		t, err := inferType(*stmt.Where, tm.Schema)
		if err != nil {
			return err
		}
		if t != sql.BoolSemantic {
			return &TypeError{Kind: ExpectedType, Expected: sql.BoolSemantic, Got: t, Context: "WHERE"}
		}
	}
	for _, ob := range stmt.OrderBy {
		if _, err := inferType(ob, tm.Schema); err != nil {
			return err
		}
	}
	return nil
}

func analyzeInsert(stmt sql.Statement, cat Catalog) error {
	if stmt.Into == catalog.MetaTable {
		return &MkdbMetaModificationError{Operation: "INSERT"}
	}
	tm, err := cat.Lookup(stmt.Into)
	if err != nil {
		return &InvalidTableError{Table: stmt.Into}
	}

	userCols := userColumns(tm.Schema)

	var targetCols []string
	if len(stmt.InsertCols) > 0 {
		seen := make(map[string]bool, len(stmt.InsertCols))
		for _, c := range stmt.InsertCols {
			if c == catalog.RowIDColumn {
				return &RowIdAssignmentError{}
			}
			if seen[c] {
				return &DuplicatedColumnError{Column: c}
			}
			seen[c] = true
			if _, ok := tm.Schema.IndexOf(c); !ok {
				return &InvalidColumnError{Table: stmt.Into, Column: c}
			}
		}
		var missing []string
		for _, uc := range userCols {
			if !seen[uc] {
				missing = append(missing, uc)
			}
		}
		if len(missing) > 0 {
			return &MissingColumnsError{Table: stmt.Into, Columns: missing}
		}
		targetCols = stmt.InsertCols
	} else {
		targetCols = userCols
	}

	if len(stmt.Values) != len(targetCols) {
		return &ColumnValueCountMismatchError{Table: stmt.Into, Expected: len(targetCols), Got: len(stmt.Values)}
	}

	for i, expr := range stmt.Values {
		col := tm.Schema.Columns[mustIndexOf(tm.Schema, targetCols[i])]
		if err := checkAssignable(expr, col, tm.Schema); err != nil {
			return err
		}
	}
	return nil
}

func analyzeUpdate(stmt sql.Statement, cat Catalog) error {
	if stmt.Table == catalog.MetaTable {
		return &MkdbMetaModificationError{Operation: "UPDATE"}
	}
	tm, err := cat.Lookup(stmt.Table)
	if err != nil {
		return &InvalidTableError{Table: stmt.Table}
	}
	for _, a := range stmt.Assignments {
		if a.Identifier == catalog.RowIDColumn {
			return &RowIdAssignmentError{}
		}
		idx, ok := tm.Schema.IndexOf(a.Identifier)
		if !ok {
			return &InvalidColumnError{Table: stmt.Table, Column: a.Identifier}
		}
		if err := checkAssignable(a.Value, tm.Schema.Columns[idx], tm.Schema); err != nil {
			return err
		}
	}
	if stmt.Where != nil {
		t, err := inferType(*stmt.Where, tm.Schema)
		if err != nil {
			return err
		}
		if t != sql.BoolSemantic {
			return &TypeError{Kind: ExpectedType, Expected: sql.BoolSemantic, Got: t, Context: "WHERE"}
		}
	}
	return nil
}

func analyzeDelete(stmt sql.Statement, cat Catalog) error {
	if stmt.From == catalog.MetaTable {
		return &MkdbMetaModificationError{Operation: "DELETE"}
	}
	tm, err := cat.Lookup(stmt.From)
	if err != nil {
		return &InvalidTableError{Table: stmt.From}
	}
	if stmt.Where != nil {
		t, err := inferType(*stmt.Where, tm.Schema)
		if err != nil {
			return err
		}
		if t != sql.BoolSemantic {
			return &TypeError{Kind: ExpectedType, Expected: sql.BoolSemantic, Got: t, Context: "WHERE"}
		}
	}
	return nil
}

// userColumns returns every column name except the reserved row_id column,
// in schema order.
func userColumns(schema catalog.Schema) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.Name == catalog.RowIDColumn {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

func mustIndexOf(schema catalog.Schema, name string) int {
	i, _ := schema.IndexOf(name)
	return i
}

// checkAssignable validates that expr can be stored into col: its semantic
// type must match, and literal values must fit the column's concrete range
// (integers) or length (varchar).
func checkAssignable(expr sql.Expression, col sql.Column, schema catalog.Schema) error {
	want := sql.SemanticTypeOf(col.DataType)
	got, err := inferType(expr, schema)
	if err != nil {
		return err
	}
	if got != want {
		return &TypeError{Kind: ExpectedType, Expected: want, Got: got, Context: "column " + col.Name}
	}
	if expr.Kind == sql.ValueExpr {
		return checkLiteralFits(expr.Value, col)
	}
	if expr.Kind == sql.UnaryExpr && expr.UnaryOp == sql.UnaryMinus && expr.Inner.Kind == sql.ValueExpr {
		inner := expr.Inner.Value
		negated := sql.Value{Kind: sql.NumberValue, Num: new(big.Int).Neg(inner.Num)}
		return checkLiteralFits(negated, col)
	}
	return nil
}

// checkLiteralFits range/length-checks a literal value against col's
// concrete DataType.
func checkLiteralFits(v sql.Value, col sql.Column) error {
	switch col.DataType.Kind {
	case sql.VarcharType:
		if v.Kind != sql.StringValue {
			return nil
		}
		n := utf8.RuneCountInString(v.Str)
		if n > col.DataType.Max {
			return &ValueTooLongError{Column: col.Name, Max: col.DataType.Max, Got: n}
		}
	default:
		if !col.DataType.IsInteger() || v.Kind != sql.NumberValue {
			return nil
		}
		min, max := storage.IntegerBounds(col.DataType)
		if v.Num.Cmp(min) < 0 || v.Num.Cmp(max) > 0 {
			return &IntegerOutOfRangeError{Column: col.Name, DataType: col.DataType, Value: v.Num.String()}
		}
	}
	return nil
}
