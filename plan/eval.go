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
	"math/big"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

// ErrDivisionByZero is returned by Eval when a "/" right-hand side evaluates
// to zero. Arithmetic overflow and division by zero are runtime errors
// (spec section 7), not analyzer-rejectable ones, since their operands are
// only known at execution time.
var ErrDivisionByZero = fmt.Errorf("plan: division by zero")

// Eval computes expr against row under schema. The analyzer guarantees expr
// type-checks against schema before any plan node is built, so the only
// errors Eval itself can raise are the runtime ones the analyzer cannot see
// in advance: division by zero.
func Eval(expr sql.Expression, schema catalog.Schema, row Tuple) (sql.Value, error) {
	switch expr.Kind {
	case sql.ValueExpr:
		return expr.Value, nil

	case sql.IdentifierExpr:
		idx, ok := schema.IndexOf(expr.Ident)
		if !ok {
			return sql.Value{}, fmt.Errorf("plan: unknown column %q (analyzer should have rejected this)", expr.Ident)
		}
		return row[idx], nil

	case sql.NestedExpr:
		return Eval(*expr.Inner, schema, row)

	case sql.UnaryExpr:
		v, err := Eval(*expr.Inner, schema, row)
		if err != nil {
			return sql.Value{}, err
		}
		if expr.UnaryOp == sql.UnaryPlus {
			return v, nil
		}
		return sql.VBigNumber(new(big.Int).Neg(v.Num)), nil

	case sql.BinaryExpr:
		left, err := Eval(*expr.Left, schema, row)
		if err != nil {
			return sql.Value{}, err
		}

		if expr.Operator.IsLogical() {
			if expr.Operator == sql.OpAnd && !left.B {
				return sql.VBool(false), nil
			}
			if expr.Operator == sql.OpOr && left.B {
				return sql.VBool(true), nil
			}
			right, err := Eval(*expr.Right, schema, row)
			if err != nil {
				return sql.Value{}, err
			}
			return right, nil
		}

		right, err := Eval(*expr.Right, schema, row)
		if err != nil {
			return sql.Value{}, err
		}

		if expr.Operator.IsComparison() {
			cmp, ok := left.Compare(right)
			if !ok {
				return sql.Value{}, fmt.Errorf("plan: incomparable values %s and %s (analyzer should have rejected this)", left, right)
			}
			return sql.VBool(compareMatches(expr.Operator, cmp)), nil
		}

		// Arithmetic: analyzer guarantees both operands are Number.
		return evalArithmetic(expr.Operator, left.Num, right.Num)

	default:
		return sql.Value{}, fmt.Errorf("plan: cannot evaluate expression kind %d", expr.Kind)
	}
}

func compareMatches(op sql.BinaryOperator, cmp int) bool {
	switch op {
	case sql.OpEq:
		return cmp == 0
	case sql.OpNeq:
		return cmp != 0
	case sql.OpLt:
		return cmp < 0
	case sql.OpLtEq:
		return cmp <= 0
	case sql.OpGt:
		return cmp > 0
	case sql.OpGtEq:
		return cmp >= 0
	default:
		return false
	}
}

func evalArithmetic(op sql.BinaryOperator, left, right *big.Int) (sql.Value, error) {
	result := new(big.Int)
	switch op {
	case sql.OpPlus:
		result.Add(left, right)
	case sql.OpMinus:
		result.Sub(left, right)
	case sql.OpMul:
		result.Mul(left, right)
	case sql.OpDiv:
		if right.Sign() == 0 {
			return sql.Value{}, ErrDivisionByZero
		}
		result.Quo(left, right)
	default:
		return sql.Value{}, fmt.Errorf("plan: operator %s is not arithmetic", op)
	}
	return sql.VBigNumber(result), nil
}
