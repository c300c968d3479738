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
	"fmt"

	"github.com/mkdb-go/mkdb/sql"
)

// ColumnValueCountMismatchError reports an INSERT whose value list length
// doesn't match its (explicit or implied) column list length.
type ColumnValueCountMismatchError struct {
	Table    string
	Expected int
	Got      int
}

func (e *ColumnValueCountMismatchError) Error() string {
	return fmt.Sprintf("analyzer: table %q expects %d values, got %d", e.Table, e.Expected, e.Got)
}

// MissingColumnsError reports an INSERT whose explicit column list omits one
// or more of the table's user columns.
type MissingColumnsError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("analyzer: table %q insert is missing columns %v", e.Table, e.Columns)
}

// DuplicatedColumnError reports a CREATE TABLE or INSERT column list
// naming the same column twice.
type DuplicatedColumnError struct {
	Column string
}

func (e *DuplicatedColumnError) Error() string {
	return fmt.Sprintf("analyzer: duplicated column %q", e.Column)
}

// MultiplePrimaryKeysError reports a CREATE TABLE with more than one
// PRIMARY KEY constraint.
type MultiplePrimaryKeysError struct {
	Table string
}

func (e *MultiplePrimaryKeysError) Error() string {
	return fmt.Sprintf("analyzer: table %q declares more than one primary key", e.Table)
}

// AlreadyExistsKind discriminates what kind of catalog object a name
// collided with.
type AlreadyExistsKind int

const (
	AlreadyExistsTable AlreadyExistsKind = iota
	AlreadyExistsIndex
)

// AlreadyExistsError reports a CREATE TABLE/INDEX naming an object that's
// already registered in the catalog.
type AlreadyExistsError struct {
	Kind AlreadyExistsKind
	Name string
}

func (e *AlreadyExistsError) Error() string {
	if e.Kind == AlreadyExistsIndex {
		return fmt.Sprintf("analyzer: index %q already exists", e.Name)
	}
	return fmt.Sprintf("analyzer: table %q already exists", e.Name)
}

// ValueTooLongError reports a string literal exceeding its target
// Varchar(max) column's character limit.
type ValueTooLongError struct {
	Column string
	Max    int
	Got    int
}

func (e *ValueTooLongError) Error() string {
	return fmt.Sprintf("analyzer: value for column %q exceeds VARCHAR(%d) (got %d characters)", e.Column, e.Max, e.Got)
}

// IntegerOutOfRangeError reports an integer literal that doesn't fit its
// target column's integer type.
type IntegerOutOfRangeError struct {
	Column string
	DataType sql.DataType
	Value    string
}

func (e *IntegerOutOfRangeError) Error() string {
	return fmt.Sprintf("analyzer: value %s for column %q is out of range for %s", e.Value, e.Column, e.DataType)
}

// RowIdAssignmentError reports an attempt to assign the reserved row_id
// column directly.
type RowIdAssignmentError struct{}

func (e *RowIdAssignmentError) Error() string {
	return "analyzer: row_id cannot be assigned directly"
}

// MkdbMetaModificationError reports an attempt to INSERT/UPDATE/DELETE the
// reserved mkdb_meta catalog table.
type MkdbMetaModificationError struct {
	Operation string
}

func (e *MkdbMetaModificationError) Error() string {
	return fmt.Sprintf("analyzer: %s on mkdb_meta is not allowed", e.Operation)
}

// InvalidTableError reports a reference to a table not in the catalog.
type InvalidTableError struct {
	Table string
}

func (e *InvalidTableError) Error() string {
	return fmt.Sprintf("analyzer: table %q does not exist", e.Table)
}

// InvalidColumnError reports an identifier that doesn't resolve against the
// table schema in scope.
type InvalidColumnError struct {
	Table  string
	Column string
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("analyzer: column %q does not exist on table %q", e.Column, e.Table)
}

// TypeErrorKind discriminates the two TypeError shapes the core spec names.
type TypeErrorKind int

const (
	ExpectedType TypeErrorKind = iota
	CannotApplyBinary
)

// TypeError reports an expression whose inferred type doesn't match what
// the context requires (ExpectedType), or a binary operator applied to
// operands with incompatible semantic types (CannotApplyBinary).
type TypeError struct {
	Kind     TypeErrorKind
	Expected sql.SemanticType
	Got      sql.SemanticType
	Operator sql.BinaryOperator
	Context  string
}

func (e *TypeError) Error() string {
	switch e.Kind {
	case CannotApplyBinary:
		return fmt.Sprintf("analyzer: cannot apply %s to %s and %s", e.Operator, e.Expected, e.Got)
	default:
		return fmt.Sprintf("analyzer: %s: expected %s, got %s", e.Context, e.Expected, e.Got)
	}
}
