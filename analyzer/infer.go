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
	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

// InferType resolves expr's SemanticType against schema, the same
// inference the planner reuses to type synthesized projection columns
// (section 4.5c: "general expressions synthesize a column ... with a
// resolved data type").
func InferType(expr sql.Expression, schema catalog.Schema) (sql.SemanticType, error) {
	return inferType(expr, schema)
}

func inferType(expr sql.Expression, schema catalog.Schema) (sql.SemanticType, error) {
	switch expr.Kind {
	case sql.IdentifierExpr:
		idx, ok := schema.IndexOf(expr.Ident)
		if !ok {
			return 0, &InvalidColumnError{Column: expr.Ident}
		}
		return sql.SemanticTypeOf(schema.Columns[idx].DataType), nil

	case sql.ValueExpr:
		return expr.Value.Semantic(), nil

	case sql.WildcardExpr:
		return 0, &TypeError{Kind: ExpectedType, Context: "wildcard has no scalar type"}

	case sql.NestedExpr:
		return inferType(*expr.Inner, schema)

	case sql.UnaryExpr:
		t, err := inferType(*expr.Inner, schema)
		if err != nil {
			return 0, err
		}
		if t != sql.NumberSemantic {
			return 0, &TypeError{Kind: ExpectedType, Expected: sql.NumberSemantic, Got: t, Context: "unary " + expr.UnaryOp.String()}
		}
		return sql.NumberSemantic, nil

	case sql.BinaryExpr:
		left, err := inferType(*expr.Left, schema)
		if err != nil {
			return 0, err
		}
		right, err := inferType(*expr.Right, schema)
		if err != nil {
			return 0, err
		}
		switch {
		case expr.Operator.IsLogical():
			if left != sql.BoolSemantic || right != sql.BoolSemantic {
				return 0, &TypeError{Kind: CannotApplyBinary, Operator: expr.Operator, Expected: left, Got: right}
			}
			return sql.BoolSemantic, nil
		case expr.Operator.IsComparison():
			if left != right {
				return 0, &TypeError{Kind: CannotApplyBinary, Operator: expr.Operator, Expected: left, Got: right}
			}
			return sql.BoolSemantic, nil
		case expr.Operator.IsArithmetic():
			if left != sql.NumberSemantic || right != sql.NumberSemantic {
				return 0, &TypeError{Kind: CannotApplyBinary, Operator: expr.Operator, Expected: left, Got: right}
			}
			return sql.NumberSemantic, nil
		default:
			return 0, &TypeError{Kind: CannotApplyBinary, Operator: expr.Operator, Expected: left, Got: right}
		}

	default:
		return 0, &TypeError{Kind: ExpectedType, Context: "unrecognized expression"}
	}
}
