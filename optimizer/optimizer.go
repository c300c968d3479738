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

// Package optimizer implements the scan selector: a pattern-driven, not
// cost-based, conversion of a WHERE predicate into one of SeqScan,
// ExactMatch, RangeScan, or LogicalOrScan, plus an optional residual
// Filter for the part of the predicate that couldn't be absorbed into
// range bounds.
package optimizer

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// atom is a single indexable comparison: one side is a column identifier
// bound to the clustered key or a UNIQUE-indexed column, the other a
// literal constant.
type atom struct {
	column string
	op     sql.BinaryOperator
	value  sql.Value
	expr   sql.Expression // the original conjunct, for residual bookkeeping
}

// indexableColumn reports whether column is the table's clustered key or
// has a UNIQUE secondary index, returning the Relation to scan and whether
// it's the primary relation.
func indexableColumn(table catalog.TableMetadata, column string) (storage.Relation, bool) {
	idx, ok := table.Schema.IndexOf(column)
	if ok && idx == table.Schema.ClusteredKeyIndex() {
		return table.Relation(), true
	}
	if im, ok := table.IndexOn(column); ok {
		return im.Relation(), true
	}
	return storage.Relation{}, false
}

// asAtom recognizes expr as `identifier OP literal` or `literal OP
// identifier` (normalized to identifier-first) over an indexable column.
// `!=` is not an atom: it cannot narrow a range, so it stays in the residual.
func asAtom(expr sql.Expression, table catalog.TableMetadata) (atom, bool) {
	if expr.Kind != sql.BinaryExpr || !expr.Operator.IsComparison() || expr.Operator == sql.OpNeq {
		return atom{}, false
	}
	left, right := *expr.Left, *expr.Right
	if left.Kind == sql.IdentifierExpr && right.Kind == sql.ValueExpr {
		if _, ok := indexableColumn(table, left.Ident); ok {
			return atom{column: left.Ident, op: expr.Operator, value: right.Value, expr: expr}, true
		}
	}
	if right.Kind == sql.IdentifierExpr && left.Kind == sql.ValueExpr {
		if _, ok := indexableColumn(table, right.Ident); ok {
			return atom{column: right.Ident, op: mirror(expr.Operator), value: left.Value, expr: expr}, true
		}
	}
	return atom{}, false
}

// mirror flips a comparison operator for when the literal appeared on the
// left: `5 < id` means the same as `id > 5`.
func mirror(op sql.BinaryOperator) sql.BinaryOperator {
	switch op {
	case sql.OpLt:
		return sql.OpGt
	case sql.OpLtEq:
		return sql.OpGtEq
	case sql.OpGt:
		return sql.OpLt
	case sql.OpGtEq:
		return sql.OpLtEq
	default:
		return op
	}
}

// conjunct is one AND-connected group of atoms, all on the indexable
// columns discovered within it, plus the expressions within the group
// that were NOT absorbed (non-atom conjuncts, contributing to the
// residual filter).
type conjunct struct {
	atoms    []atom
	residual []sql.Expression
}

// splitConjunction flattens a tree of AND nodes into a flat list of leaf
// expressions.
func splitConjunction(expr sql.Expression) []sql.Expression {
	if expr.Kind == sql.NestedExpr {
		return splitConjunction(*expr.Inner)
	}
	if expr.Kind == sql.BinaryExpr && expr.Operator == sql.OpAnd {
		return append(splitConjunction(*expr.Left), splitConjunction(*expr.Right)...)
	}
	return []sql.Expression{expr}
}

// splitDisjunction flattens a tree of OR nodes into a flat list of
// disjuncts, in left-to-right textual order (the spec's end-to-end
// scenarios require sub-scan order to match disjunct order).
func splitDisjunction(expr sql.Expression) []sql.Expression {
	if expr.Kind == sql.NestedExpr {
		return splitDisjunction(*expr.Inner)
	}
	if expr.Kind == sql.BinaryExpr && expr.Operator == sql.OpOr {
		return append(splitDisjunction(*expr.Left), splitDisjunction(*expr.Right)...)
	}
	return []sql.Expression{expr}
}

// analyzeConjunct splits one AND-connected disjunct into its indexable
// atoms and residual (non-indexable) leaves. Atoms are sorted by column
// name so bound merging below is independent of the predicate's textual
// order (`id > 1 AND name = 'x' AND id < 9` bounds `id` the same way
// regardless of which atom was written first).
func analyzeConjunct(expr sql.Expression, table catalog.TableMetadata) conjunct {
	var c conjunct
	for _, leaf := range splitConjunction(expr) {
		if a, ok := asAtom(leaf, table); ok {
			c.atoms = append(c.atoms, a)
		} else {
			c.residual = append(c.residual, leaf)
		}
	}
	slices.SortFunc(c.atoms, func(a, b atom) int { return strings.Compare(a.column, b.column) })
	return c
}

// boundSet accumulates the merged (lower, upper) bound for one column
// across a conjunction's atoms, tracking whether they collapse to a single
// exact value or become an empty (impossible) range.
type boundSet struct {
	lower, upper storage.Bound
	exact        *sql.Value
	empty        bool
}

func newBoundSet() boundSet {
	return boundSet{lower: storage.Bound{Kind: storage.Unbounded}, upper: storage.Bound{Kind: storage.Unbounded}}
}

func (b *boundSet) apply(dt sql.DataType, a atom) {
	key := storage.SerializeKey(dt, a.value)
	cmp := storage.KeyComparatorFor(dt)

	switch a.op {
	case sql.OpEq:
		if b.exact != nil {
			if c, ok := a.value.Compare(*b.exact); !ok || c != 0 {
				b.empty = true
			}
			return
		}
		v := a.value
		b.exact = &v
	case sql.OpGt:
		b.tightenLower(storage.Bound{Kind: storage.Excluded, Value: key}, cmp)
	case sql.OpGtEq:
		b.tightenLower(storage.Bound{Kind: storage.Included, Value: key}, cmp)
	case sql.OpLt:
		b.tightenUpper(storage.Bound{Kind: storage.Excluded, Value: key}, cmp)
	case sql.OpLtEq:
		b.tightenUpper(storage.Bound{Kind: storage.Included, Value: key}, cmp)
	}
}

func (b *boundSet) tightenLower(nb storage.Bound, cmp storage.KeyComparator) {
	if b.lower.Kind == storage.Unbounded {
		b.lower = nb
		return
	}
	c := cmp.Compare(nb.Value, b.lower.Value)
	if c > 0 || (c == 0 && nb.Kind == storage.Excluded) {
		b.lower = nb
	}
}

func (b *boundSet) tightenUpper(nb storage.Bound, cmp storage.KeyComparator) {
	if b.upper.Kind == storage.Unbounded {
		b.upper = nb
		return
	}
	c := cmp.Compare(nb.Value, b.upper.Value)
	if c < 0 || (c == 0 && nb.Kind == storage.Excluded) {
		b.upper = nb
	}
}

// crosses reports whether lower > upper (or touch on two Excluded bounds at
// the same point), making the range empty.
func (b boundSet) crosses(cmp storage.KeyComparator) bool {
	if b.lower.Kind == storage.Unbounded || b.upper.Kind == storage.Unbounded {
		return false
	}
	c := cmp.Compare(b.lower.Value, b.upper.Value)
	if c > 0 {
		return true
	}
	if c == 0 && (b.lower.Kind == storage.Excluded || b.upper.Kind == storage.Excluded) {
		return true
	}
	return false
}

// coversWholeDomain reports whether this bound set covers (-inf, +inf): no
// lower bound and no upper bound, meaning the scan it would produce reads
// the same rows as a seq scan and should fall back to one.
func (b boundSet) coversWholeDomain() bool {
	return b.exact == nil && b.lower.Kind == storage.Unbounded && b.upper.Kind == storage.Unbounded
}

// interval is a boundSet reduced to plain (lower, upper) endpoints over
// serialized keys, for merging across disjuncts on the same column. An
// exact match becomes a single-point, doubly-inclusive interval.
type interval struct {
	lowUnbounded, upUnbounded bool
	low, up                   []byte
	lowIncl, upIncl           bool
}

func (b boundSet) interval(dt sql.DataType) interval {
	if b.exact != nil {
		key := storage.SerializeKey(dt, *b.exact)
		return interval{low: key, up: key, lowIncl: true, upIncl: true}
	}
	iv := interval{lowUnbounded: b.lower.Kind == storage.Unbounded, upUnbounded: b.upper.Kind == storage.Unbounded}
	if !iv.lowUnbounded {
		iv.low, iv.lowIncl = b.lower.Value, b.lower.Kind == storage.Included
	}
	if !iv.upUnbounded {
		iv.up, iv.upIncl = b.upper.Value, b.upper.Kind == storage.Included
	}
	return iv
}

// unionCoversWholeDomain reports whether the merged coverage of bounds (all
// on the same column) spans (-inf, +inf) with no gaps, e.g. `id > 5 OR
// id < 10 OR id > 15` already covers every value once the first two
// disjuncts are merged, even though no single one of them does (section
// 4.4 step 4's union-of-ranges domain check).
func unionCoversWholeDomain(bounds []boundSet, dt sql.DataType, cmp storage.KeyComparator) bool {
	ivs := make([]interval, len(bounds))
	for i, b := range bounds {
		ivs[i] = b.interval(dt)
	}
	slices.SortFunc(ivs, func(a, b interval) int {
		if a.lowUnbounded != b.lowUnbounded {
			if a.lowUnbounded {
				return -1
			}
			return 1
		}
		if a.lowUnbounded {
			return 0
		}
		if c := cmp.Compare(a.low, b.low); c != 0 {
			return c
		}
		if a.lowIncl == b.lowIncl {
			return 0
		}
		if a.lowIncl {
			return -1
		}
		return 1
	})

	if !ivs[0].lowUnbounded {
		return false
	}

	frontierUnbounded, frontier, frontierIncl := ivs[0].upUnbounded, ivs[0].up, ivs[0].upIncl
	for _, iv := range ivs[1:] {
		if frontierUnbounded {
			break
		}
		if !iv.lowUnbounded {
			c := cmp.Compare(iv.low, frontier)
			touches := c < 0 || (c == 0 && (iv.lowIncl || frontierIncl))
			if !touches {
				return false
			}
		}
		if iv.upUnbounded {
			frontierUnbounded = true
			continue
		}
		c := cmp.Compare(iv.up, frontier)
		if c > 0 || (c == 0 && iv.upIncl && !frontierIncl) {
			frontier, frontierIncl = iv.up, iv.upIncl
		}
	}
	return frontierUnbounded
}

// scanForColumn builds the single scan for one column's merged bounds.
// emitKeyOnly configures the scan for use as a LogicalOrScan sub-scan; pass
// false for a top-level single-conjunct scan.
func scanForColumn(table catalog.TableMetadata, column string, b boundSet, store storage.RelationStore, emitKeyOnly bool) (plan.Op, storage.Relation, bool) {
	rel, ok := indexableColumn(table, column)
	if !ok {
		return nil, storage.Relation{}, false
	}

	if b.exact != nil {
		key := storage.SerializeKey(rel.KeyType, *b.exact)
		return &plan.ExactMatch{
			Relation:         rel,
			Key:              key,
			EmitTableKeyOnly: emitKeyOnly,
			Store:            store,
			RowSchema:        table.Schema,
		}, rel, true
	}

	return &plan.RangeScan{
		Relation:         rel,
		Lower:            b.lower,
		Upper:            b.upper,
		EmitTableKeyOnly: emitKeyOnly,
		Store:            store,
		RowSchema:        table.Schema,
	}, rel, true
}

// SelectScan is the entry point: given the table and an optional WHERE
// predicate, build the physical scan chosen by section 4.4, plus any
// residual expression that must still be applied as a Filter by the
// caller (the planner wraps it; SelectScan never builds the Filter itself
// so callers can choose whether a Filter node is even necessary). For a
// single conjunct the residual is just the atoms that couldn't be
// absorbed into bounds; for a multi-disjunct LogicalOrScan it is always
// the entire original predicate, since the merged key stream needs the
// whole WHERE re-checked against it, not a per-disjunct fragment.
func SelectScan(table catalog.TableMetadata, where *sql.Expression, store storage.RelationStore) (scan plan.Op, residual *sql.Expression, err error) {
	if where == nil {
		return plan.NewSeqScan(table, store), nil, nil
	}

	disjuncts := splitDisjunction(*where)
	conjuncts := make([]conjunct, len(disjuncts))
	for i, d := range disjuncts {
		conjuncts[i] = analyzeConjunct(d, table)
	}

	// Group each conjunct's atoms by column; a conjunct with atoms on more
	// than one column, or with no atoms at all, can't be represented as a
	// single scan and forces a fallback to SeqScan for the whole
	// statement (section 4.4 step 3/4 only handles same-column conjuncts).
	type built struct {
		op       plan.Op
		residual []sql.Expression
		column   string
		bounds   boundSet
	}
	results := make([]built, len(conjuncts))

	for i, c := range conjuncts {
		if len(c.atoms) == 0 {
			return plan.NewSeqScan(table, store), where, nil
		}
		col := c.atoms[0].column
		for _, a := range c.atoms[1:] {
			if a.column != col {
				return plan.NewSeqScan(table, store), where, nil
			}
		}

		bs := newBoundSet()
		for _, a := range c.atoms {
			bs.apply(columnType(table, col), a)
		}
		rel, _ := indexableColumn(table, col)
		if bs.empty || bs.crosses(rel.Comparator) {
			return plan.NewSeqScan(table, store), where, nil
		}
		if bs.coversWholeDomain() {
			return plan.NewSeqScan(table, store), where, nil
		}

		op, _, _ := scanForColumn(table, col, bs, store, len(conjuncts) > 1)
		results[i] = built{op: op, residual: c.residual, column: col, bounds: bs}
	}

	if len(conjuncts) == 1 {
		return results[0].op, residualExpr(results[0].residual), nil
	}

	// If every disjunct bounds the same column, their merged coverage might
	// still span the whole domain even though none of them individually
	// does (`id > 5 OR id < 10 OR id > 15`); that also forces the SeqScan
	// fallback rather than a pointless LogicalOrScan.
	sameColumn := true
	for _, r := range results[1:] {
		if r.column != results[0].column {
			sameColumn = false
			break
		}
	}
	if sameColumn {
		dt := columnType(table, results[0].column)
		rel, _ := indexableColumn(table, results[0].column)
		bounds := make([]boundSet, len(results))
		for i, r := range results {
			bounds[i] = r.bounds
		}
		if unionCoversWholeDomain(bounds, dt, rel.Comparator) {
			return plan.NewSeqScan(table, store), where, nil
		}
	}

	// Multiple conjuncts: wrap every sub-scan's key-only output in a Sort
	// (dedup + reorder) then a KeyScan. The planner owns building those
	// wrapping nodes since they need the output schema/page size/work dir
	// it controls; SelectScan here just returns the LogicalOrScan.
	//
	// The residual here is always the entire original predicate, not just
	// the atoms each disjunct's conjunct failed to absorb: the KeyScan
	// downstream replays keys from every disjunct's sub-scan as one merged
	// stream, so only re-evaluating the whole WHERE against each resulting
	// row (not a per-disjunct fragment of it) filters out false matches
	// introduced by the merge.
	subScans := make([]plan.Op, len(results))
	for i, r := range results {
		subScans[i] = r.op
	}

	return &plan.LogicalOrScan{SubScans: subScans}, where, nil
}

func columnType(table catalog.TableMetadata, column string) sql.DataType {
	idx, _ := table.Schema.IndexOf(column)
	return table.Schema.Columns[idx].DataType
}

// residualExpr ANDs together every leaf in exprs, or returns nil if empty.
func residualExpr(exprs []sql.Expression) *sql.Expression {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = sql.Binary(out, sql.OpAnd, e)
	}
	return &out
}
