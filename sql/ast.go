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

// Package sql holds the tokenizer and abstract syntax tree this module's
// planner and analyzer operate on. There is no SQL-text-to-Statement parser
// here: callers build Statement values directly, the same way the planner
// and analyzer's own tests do.
package sql

import (
	"fmt"
	"math/big"
	"strings"
)

// DataType is one of the scalar column types the engine supports.
type DataType struct {
	Kind DataTypeKind
	// Max is the character limit for Kind == VarcharType; unused otherwise.
	Max int
}

type DataTypeKind int

const (
	IntType DataTypeKind = iota
	UnsignedIntType
	BigIntType
	UnsignedBigIntType
	BoolType
	VarcharType
)

func Varchar(max int) DataType    { return DataType{Kind: VarcharType, Max: max} }
func IntT() DataType              { return DataType{Kind: IntType} }
func UnsignedIntT() DataType      { return DataType{Kind: UnsignedIntType} }
func BigIntT() DataType           { return DataType{Kind: BigIntType} }
func UnsignedBigIntT() DataType   { return DataType{Kind: UnsignedBigIntType} }
func BoolT() DataType             { return DataType{Kind: BoolType} }

func (d DataType) String() string {
	switch d.Kind {
	case IntType:
		return "INT"
	case UnsignedIntType:
		return "INT UNSIGNED"
	case BigIntType:
		return "BIGINT"
	case UnsignedBigIntType:
		return "BIGINT UNSIGNED"
	case BoolType:
		return "BOOL"
	case VarcharType:
		return fmt.Sprintf("VARCHAR(%d)", d.Max)
	default:
		return "?"
	}
}

// IsInteger reports whether d is one of the four fixed-width integer types.
func (d DataType) IsInteger() bool {
	switch d.Kind {
	case IntType, UnsignedIntType, BigIntType, UnsignedBigIntType:
		return true
	default:
		return false
	}
}

// SemanticType is the coarse type (Bool, Number, String) an Expression
// evaluates to, as opposed to a column's concrete DataType.
type SemanticType int

const (
	BoolSemantic SemanticType = iota
	NumberSemantic
	StringSemantic
)

func (s SemanticType) String() string {
	switch s {
	case BoolSemantic:
		return "BOOL"
	case NumberSemantic:
		return "NUMBER"
	case StringSemantic:
		return "STRING"
	default:
		return "?"
	}
}

// SemanticTypeOf returns the SemanticType of a column's DataType.
func SemanticTypeOf(d DataType) SemanticType {
	switch d.Kind {
	case BoolType:
		return BoolSemantic
	case VarcharType:
		return StringSemantic
	default:
		return NumberSemantic
	}
}

// Constraint is a column-level constraint.
type Constraint int

const (
	PrimaryKey Constraint = iota
	UniqueConstraint
)

// Column is a single column definition.
type Column struct {
	Name        string
	DataType    DataType
	Constraints []Constraint
}

func NewColumn(name string, dt DataType) Column {
	return Column{Name: name, DataType: dt}
}

func PrimaryKeyColumn(name string, dt DataType) Column {
	return Column{Name: name, DataType: dt, Constraints: []Constraint{PrimaryKey}}
}

func UniqueColumn(name string, dt DataType) Column {
	return Column{Name: name, DataType: dt, Constraints: []Constraint{UniqueConstraint}}
}

func (c Column) HasConstraint(want Constraint) bool {
	for _, c := range c.Constraints {
		if c == want {
			return true
		}
	}
	return false
}

func (c Column) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Name, c.DataType)
	for _, cons := range c.Constraints {
		switch cons {
		case PrimaryKey:
			b.WriteString(" PRIMARY KEY")
		case UniqueConstraint:
			b.WriteString(" UNIQUE")
		}
	}
	return b.String()
}

// Value is a resolved, tagged scalar: exactly one of Str, B, or Num is
// meaningful, selected by Kind. Number uses math/big.Int rather than a
// fixed-width integer so range checks against any of the four integer
// DataTypes (including unsigned 64-bit, which overflows int64) can be
// performed uniformly at the tuple codec boundary.
type Value struct {
	Kind ValueKind
	Str  string
	B    bool
	Num  *big.Int
}

type ValueKind int

const (
	StringValue ValueKind = iota
	BoolValue
	NumberValue
)

func VString(s string) Value { return Value{Kind: StringValue, Str: s} }
func VBool(b bool) Value     { return Value{Kind: BoolValue, B: b} }
func VNumber(n int64) Value  { return Value{Kind: NumberValue, Num: big.NewInt(n)} }
func VBigNumber(n *big.Int) Value { return Value{Kind: NumberValue, Num: n} }

func (v Value) String() string {
	switch v.Kind {
	case StringValue:
		return fmt.Sprintf("%q", v.Str)
	case BoolValue:
		if v.B {
			return "TRUE"
		}
		return "FALSE"
	case NumberValue:
		return v.Num.String()
	default:
		return "?"
	}
}

// Semantic returns the SemanticType this value carries.
func (v Value) Semantic() SemanticType {
	switch v.Kind {
	case BoolValue:
		return BoolSemantic
	case StringValue:
		return StringSemantic
	default:
		return NumberSemantic
	}
}

// Compare orders two values of the same Kind. ok is false when the kinds
// differ — comparing across tags is a type error the analyzer must have
// already rejected.
func (v Value) Compare(other Value) (cmp int, ok bool) {
	if v.Kind != other.Kind {
		return 0, false
	}
	switch v.Kind {
	case NumberValue:
		return v.Num.Cmp(other.Num), true
	case StringValue:
		return strings.Compare(v.Str, other.Str), true
	case BoolValue:
		if v.B == other.B {
			return 0, true
		}
		if !v.B && other.B {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// BinaryOperator is a binary operator usable inside an Expression.
type BinaryOperator int

const (
	OpEq BinaryOperator = iota
	OpNeq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpPlus
	OpMinus
	OpMul
	OpDiv
	OpAnd
	OpOr
)

func (b BinaryOperator) String() string {
	switch b {
	case OpEq:
		return "="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLtEq:
		return "<="
	case OpGt:
		return ">"
	case OpGtEq:
		return ">="
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return "?"
	}
}

// IsComparison reports whether b compares two operands to a Bool, as
// opposed to AND/OR (boolean composition) or arithmetic.
func (b BinaryOperator) IsComparison() bool {
	switch b {
	case OpEq, OpNeq, OpLt, OpLtEq, OpGt, OpGtEq:
		return true
	default:
		return false
	}
}

func (b BinaryOperator) IsLogical() bool {
	return b == OpAnd || b == OpOr
}

func (b BinaryOperator) IsArithmetic() bool {
	switch b {
	case OpPlus, OpMinus, OpMul, OpDiv:
		return true
	default:
		return false
	}
}

// UnaryOperator is a unary operator usable inside an Expression.
type UnaryOperator int

const (
	UnaryPlus UnaryOperator = iota
	UnaryMinus
)

func (u UnaryOperator) String() string {
	if u == UnaryMinus {
		return "-"
	}
	return "+"
}

// ExpressionKind discriminates the variants of Expression.
type ExpressionKind int

const (
	IdentifierExpr ExpressionKind = iota
	ValueExpr
	WildcardExpr
	BinaryExpr
	UnaryExpr
	NestedExpr
)

// Expression is the recursive AST node for everything that can appear in a
// SELECT list, WHERE clause, ORDER BY clause, or assignment RHS.
type Expression struct {
	Kind     ExpressionKind
	Ident    string
	Value    Value
	Operator BinaryOperator
	UnaryOp  UnaryOperator
	Left     *Expression
	Right    *Expression
	Inner    *Expression
}

func Ident(name string) Expression { return Expression{Kind: IdentifierExpr, Ident: name} }
func Lit(v Value) Expression       { return Expression{Kind: ValueExpr, Value: v} }
func Wildcard() Expression         { return Expression{Kind: WildcardExpr} }

func Binary(left Expression, op BinaryOperator, right Expression) Expression {
	return Expression{Kind: BinaryExpr, Operator: op, Left: &left, Right: &right}
}

func Unary(op UnaryOperator, inner Expression) Expression {
	return Expression{Kind: UnaryExpr, UnaryOp: op, Inner: &inner}
}

func Nested(inner Expression) Expression {
	return Expression{Kind: NestedExpr, Inner: &inner}
}

func (e Expression) String() string {
	switch e.Kind {
	case IdentifierExpr:
		return e.Ident
	case ValueExpr:
		return e.Value.String()
	case WildcardExpr:
		return "*"
	case BinaryExpr:
		return fmt.Sprintf("%s %s %s", e.Left, e.Operator, e.Right)
	case UnaryExpr:
		return fmt.Sprintf("%s%s", e.UnaryOp, e.Inner)
	case NestedExpr:
		return fmt.Sprintf("(%s)", e.Inner)
	default:
		return "?"
	}
}

// Assignment is a single `column = expr` pair in an UPDATE statement.
type Assignment struct {
	Identifier string
	Value      Expression
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Identifier, a.Value)
}

// Create is the payload of a CREATE statement.
type Create struct {
	Kind CreateKind

	// Database, Table
	Name string

	// Table
	Columns []Column

	// Index
	Table  string
	Column string
	Unique bool
}

type CreateKind int

const (
	CreateDatabase CreateKind = iota
	CreateTable
	CreateIndex
)

// Drop is the payload of a DROP statement.
type Drop struct {
	Kind DropKind
	Name string
}

type DropKind int

const (
	DropTable DropKind = iota
	DropDatabase
)

// StatementKind discriminates the variants of Statement.
type StatementKind int

const (
	CreateStmt StatementKind = iota
	SelectStmt
	DeleteStmt
	UpdateStmt
	InsertStmt
	DropStmt
	StartTransactionStmt
	RollbackStmt
	CommitStmt
	ExplainStmt
)

// Statement is the top-level SQL AST node. A Statement is a flat struct
// carrying every variant's fields, mirroring the Rust enum's payloads one
// field per case rather than using a type-switch-over-interface encoding,
// which keeps direct struct-literal construction (the normal way this
// module's tests build statements) straightforward.
type Statement struct {
	Kind StatementKind

	Create Create
	Drop   Drop

	// Select
	Columns []Expression
	From    string
	Where   *Expression
	OrderBy []Expression

	// Delete reuses From/Where.

	// Update
	Table       string
	Assignments []Assignment

	// Insert
	Into        string
	InsertCols  []string
	Values      []Expression

	// Explain
	Inner *Statement
}

func (s Statement) String() string {
	var b strings.Builder
	switch s.Kind {
	case CreateStmt:
		switch s.Create.Kind {
		case CreateTable:
			fmt.Fprintf(&b, "CREATE TABLE %s (%s)", s.Create.Name, joinColumns(s.Create.Columns))
		case CreateDatabase:
			fmt.Fprintf(&b, "CREATE DATABASE %s", s.Create.Name)
		case CreateIndex:
			unique := " "
			if s.Create.Unique {
				unique = " UNIQUE "
			}
			fmt.Fprintf(&b, "CREATE%sINDEX %s ON %s(%s)", unique, s.Create.Name, s.Create.Table, s.Create.Column)
		}
	case SelectStmt:
		fmt.Fprintf(&b, "SELECT %s FROM %s", joinExprs(s.Columns), s.From)
		if s.Where != nil {
			fmt.Fprintf(&b, " WHERE %s", s.Where)
		}
		if len(s.OrderBy) > 0 {
			fmt.Fprintf(&b, " ORDER BY %s", joinExprs(s.OrderBy))
		}
	case DeleteStmt:
		fmt.Fprintf(&b, "DELETE FROM %s", s.From)
		if s.Where != nil {
			fmt.Fprintf(&b, " WHERE %s", s.Where)
		}
	case UpdateStmt:
		fmt.Fprintf(&b, "UPDATE %s SET %s", s.Table, joinAssignments(s.Assignments))
		if s.Where != nil {
			fmt.Fprintf(&b, " WHERE %s", s.Where)
		}
	case InsertStmt:
		cols := " "
		if len(s.InsertCols) > 0 {
			cols = fmt.Sprintf(" (%s) ", strings.Join(s.InsertCols, ", "))
		}
		fmt.Fprintf(&b, "INSERT INTO %s%sVALUES (%s)", s.Into, cols, joinExprs(s.Values))
	case DropStmt:
		switch s.Drop.Kind {
		case DropTable:
			fmt.Fprintf(&b, "DROP TABLE %s", s.Drop.Name)
		case DropDatabase:
			fmt.Fprintf(&b, "DROP DATABASE %s", s.Drop.Name)
		}
	case StartTransactionStmt:
		b.WriteString("START TRANSACTION")
	case CommitStmt:
		b.WriteString("COMMIT")
	case RollbackStmt:
		b.WriteString("ROLLBACK")
	case ExplainStmt:
		fmt.Fprintf(&b, "EXPLAIN %s", s.Inner)
	}
	b.WriteByte(';')
	return b.String()
}

func joinExprs(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func joinColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func joinAssignments(as []Assignment) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
