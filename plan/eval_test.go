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
	"errors"
	"testing"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

func rowSchema() catalog.Schema {
	return catalog.NewSchema([]sql.Column{
		sql.NewColumn("a", sql.IntT()),
		sql.NewColumn("b", sql.IntT()),
		sql.NewColumn("name", sql.Varchar(10)),
	})
}

func TestEvalArithmetic(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(3), sql.VString("x")}

	cases := []struct {
		op   sql.BinaryOperator
		want int64
	}{
		{sql.OpPlus, 9},
		{sql.OpMinus, 3},
		{sql.OpMul, 18},
		{sql.OpDiv, 2},
	}
	for _, c := range cases {
		expr := sql.Binary(sql.Ident("a"), c.op, sql.Ident("b"))
		v, err := Eval(expr, schema, row)
		if err != nil {
			t.Fatalf("Eval(%s): %v", c.op, err)
		}
		if v.Num.Int64() != c.want {
			t.Fatalf("Eval(%s) = %s, want %d", c.op, v.Num, c.want)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(0), sql.VString("x")}
	expr := sql.Binary(sql.Ident("a"), sql.OpDiv, sql.Ident("b"))
	_, err := Eval(expr, schema, row)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestEvalComparisonAndLogical(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(3), sql.VString("x")}

	gt := sql.Binary(sql.Ident("a"), sql.OpGt, sql.Ident("b"))
	v, err := Eval(gt, schema, row)
	if err != nil || !v.B {
		t.Fatalf("expected a > b to be true, got %v err=%v", v, err)
	}

	and := sql.Binary(gt, sql.OpAnd, sql.Binary(sql.Ident("b"), sql.OpEq, sql.Lit(sql.VNumber(3))))
	v, err = Eval(and, schema, row)
	if err != nil || !v.B {
		t.Fatalf("expected AND of two true clauses to be true, got %v err=%v", v, err)
	}
}

func TestEvalLogicalAndShortCircuitsOnFalseLeft(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(3), sql.VString("x")}

	// The right side divides by zero; AND must not evaluate it once the
	// left side is already false.
	falseLeft := sql.Binary(sql.Ident("a"), sql.OpEq, sql.Lit(sql.VNumber(999)))
	boom := sql.Binary(sql.Ident("a"), sql.OpDiv, sql.Lit(sql.VNumber(0)))
	and := sql.Binary(falseLeft, sql.OpAnd, sql.Binary(boom, sql.OpEq, sql.Lit(sql.VNumber(0))))

	v, err := Eval(and, schema, row)
	if err != nil {
		t.Fatalf("expected short-circuited AND not to evaluate the right side, got err=%v", err)
	}
	if v.B {
		t.Fatal("expected AND with a false left operand to be false")
	}
}

func TestEvalLogicalOrShortCircuitsOnTrueLeft(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(3), sql.VString("x")}

	trueLeft := sql.Binary(sql.Ident("a"), sql.OpEq, sql.Lit(sql.VNumber(6)))
	boom := sql.Binary(sql.Ident("a"), sql.OpDiv, sql.Lit(sql.VNumber(0)))
	or := sql.Binary(trueLeft, sql.OpOr, sql.Binary(boom, sql.OpEq, sql.Lit(sql.VNumber(0))))

	v, err := Eval(or, schema, row)
	if err != nil {
		t.Fatalf("expected short-circuited OR not to evaluate the right side, got err=%v", err)
	}
	if !v.B {
		t.Fatal("expected OR with a true left operand to be true")
	}
}

func TestEvalUnaryMinus(t *testing.T) {
	schema := rowSchema()
	row := Tuple{sql.VNumber(6), sql.VNumber(3), sql.VString("x")}
	expr := sql.Unary(sql.UnaryMinus, sql.Ident("a"))
	v, err := Eval(expr, schema, row)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.Num.Int64() != -6 {
		t.Fatalf("Eval(-a) = %s, want -6", v.Num)
	}
}
