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

package optimizer

import (
	"testing"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

func usersTable(t *testing.T) (catalog.TableMetadata, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	c := catalog.New(nil)
	c.AttachStore(store)

	schema := catalog.NewSchema([]sql.Column{
		sql.PrimaryKeyColumn("id", sql.IntT()),
		sql.NewColumn("email", sql.Varchar(255)),
		sql.NewColumn("age", sql.IntT()),
	})
	tm, err := c.CreateTable("users", schema)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateIndex("users", "users_email_uq_index", "email", true); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	tm, err = c.Lookup("users")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return tm, store
}

func TestSelectScanNoPredicateYieldsSeqScan(t *testing.T) {
	tm, store := usersTable(t)
	op, residual, err := SelectScan(tm, nil, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if residual != nil {
		t.Fatalf("expected no residual filter, got %v", residual)
	}
	if _, ok := op.(*plan.SeqScan); !ok {
		t.Fatalf("expected *plan.SeqScan, got %T", op)
	}
}

func TestSelectScanEqualityOnPrimaryKeyYieldsExactMatch(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(sql.Ident("id"), sql.OpEq, sql.Lit(sql.VNumber(5)))
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if residual != nil {
		t.Fatalf("expected no residual filter, got %v", residual)
	}
	em, ok := op.(*plan.ExactMatch)
	if !ok {
		t.Fatalf("expected *plan.ExactMatch, got %T", op)
	}
	if em.Relation.Kind != storage.TableRelation {
		t.Fatalf("expected ExactMatch over the table relation, got %s", em.Relation)
	}
}

func TestSelectScanEqualityOnUniqueIndexYieldsExactMatchOverIndex(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(sql.Ident("email"), sql.OpEq, sql.Lit(sql.VString("a@example.com")))
	op, _, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	em, ok := op.(*plan.ExactMatch)
	if !ok {
		t.Fatalf("expected *plan.ExactMatch, got %T", op)
	}
	if em.Relation.Kind != storage.IndexRelation {
		t.Fatalf("expected ExactMatch over the index relation, got %s", em.Relation)
	}
}

func TestSelectScanTwoSidedBoundYieldsRangeScan(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(
		sql.Binary(sql.Ident("id"), sql.OpGt, sql.Lit(sql.VNumber(1))),
		sql.OpAnd,
		sql.Binary(sql.Ident("id"), sql.OpLt, sql.Lit(sql.VNumber(9))),
	)
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if residual != nil {
		t.Fatalf("expected no residual filter, got %v", residual)
	}
	rs, ok := op.(*plan.RangeScan)
	if !ok {
		t.Fatalf("expected *plan.RangeScan, got %T", op)
	}
	if rs.Lower.Kind != storage.Excluded || rs.Upper.Kind != storage.Excluded {
		t.Fatalf("unexpected bounds: lower=%s upper=%s", rs.Lower, rs.Upper)
	}
}

func TestSelectScanRangeWithNonIndexableResidualFiltersOutside(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(
		sql.Binary(sql.Ident("id"), sql.OpGt, sql.Lit(sql.VNumber(1))),
		sql.OpAnd,
		sql.Binary(sql.Ident("age"), sql.OpEq, sql.Lit(sql.VNumber(30))),
	)
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if _, ok := op.(*plan.RangeScan); !ok {
		t.Fatalf("expected *plan.RangeScan, got %T", op)
	}
	if residual == nil {
		t.Fatal("expected a residual filter for the non-indexable age predicate")
	}
}

func TestSelectScanWholeDomainBoundFallsBackToSeqScan(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(sql.Ident("id"), sql.OpNeq, sql.Lit(sql.VNumber(5)))
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if _, ok := op.(*plan.SeqScan); !ok {
		t.Fatalf("expected fallback to *plan.SeqScan, got %T", op)
	}
	if residual == nil {
		t.Fatal("expected the predicate to survive as a residual Filter")
	}
}

func TestSelectScanDisjunctionAcrossIndexesYieldsLogicalOrScanInOrder(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(
		sql.Binary(sql.Ident("id"), sql.OpEq, sql.Lit(sql.VNumber(1))),
		sql.OpOr,
		sql.Binary(sql.Ident("email"), sql.OpEq, sql.Lit(sql.VString("b@example.com"))),
	)
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	orScan, ok := op.(*plan.LogicalOrScan)
	if !ok {
		t.Fatalf("expected *plan.LogicalOrScan, got %T", op)
	}
	if len(orScan.SubScans) != 2 {
		t.Fatalf("expected 2 sub-scans, got %d", len(orScan.SubScans))
	}
	first, ok := orScan.SubScans[0].(*plan.ExactMatch)
	if !ok || first.Relation.Kind != storage.TableRelation {
		t.Fatalf("expected first sub-scan over the table (id = 1) first, got %T %v", orScan.SubScans[0], first)
	}
	second, ok := orScan.SubScans[1].(*plan.ExactMatch)
	if !ok || second.Relation.Kind != storage.IndexRelation {
		t.Fatalf("expected second sub-scan over the email index, got %T %v", orScan.SubScans[1], second)
	}
	if !first.EmitTableKeyOnly || !second.EmitTableKeyOnly {
		t.Fatal("expected LogicalOrScan sub-scans to emit key-only tuples")
	}
	// The KeyScan downstream re-merges rows across both sub-scans, so the
	// caller must re-check the whole predicate (not a per-disjunct
	// fragment of it) against every row the merge yields.
	if residual == nil || residual.String() != where.String() {
		t.Fatalf("expected the residual to be the entire original predicate, got %v", residual)
	}
}

// TestSelectScanUnionOfRangesCoveringWholeDomainFallsBackToSeqScan exercises
// the case where no single disjunct spans the whole domain, but their
// merged coverage does: `id > 5 OR id < 10 OR id > 15` already covers every
// integer once the first two disjuncts are merged.
func TestSelectScanUnionOfRangesCoveringWholeDomainFallsBackToSeqScan(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(
		sql.Binary(
			sql.Binary(sql.Ident("id"), sql.OpGt, sql.Lit(sql.VNumber(5))),
			sql.OpOr,
			sql.Binary(sql.Ident("id"), sql.OpLt, sql.Lit(sql.VNumber(10))),
		),
		sql.OpOr,
		sql.Binary(sql.Ident("id"), sql.OpGt, sql.Lit(sql.VNumber(15))),
	)
	op, residual, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if _, ok := op.(*plan.SeqScan); !ok {
		t.Fatalf("expected fallback to *plan.SeqScan, got %T", op)
	}
	if residual == nil {
		t.Fatal("expected the predicate to survive as a residual Filter")
	}
}

// TestSelectScanUnionOfRangesWithGapYieldsLogicalOrScan is the control case
// for the above: `id < 3 OR id > 15` leaves a gap (3..15), so it must still
// produce a real LogicalOrScan rather than being folded into a SeqScan.
func TestSelectScanUnionOfRangesWithGapYieldsLogicalOrScan(t *testing.T) {
	tm, store := usersTable(t)
	where := sql.Binary(
		sql.Binary(sql.Ident("id"), sql.OpLt, sql.Lit(sql.VNumber(3))),
		sql.OpOr,
		sql.Binary(sql.Ident("id"), sql.OpGt, sql.Lit(sql.VNumber(15))),
	)
	op, _, err := SelectScan(tm, &where, store)
	if err != nil {
		t.Fatalf("SelectScan: %v", err)
	}
	if _, ok := op.(*plan.LogicalOrScan); !ok {
		t.Fatalf("expected a real *plan.LogicalOrScan (gap between ranges), got %T", op)
	}
}
