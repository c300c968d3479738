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

package sortrun

import (
	"io"
	"testing"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/sql"
)

// sliceOp is a minimal plan.Op that replays a fixed list of tuples, used in
// place of a real scan to drive Collect/Sort in isolation.
type sliceOp struct {
	rows   []plan.Tuple
	schema catalog.Schema
	idx    int
}

func (s *sliceOp) Schema() catalog.Schema { return s.schema }

func (s *sliceOp) Next() (plan.Tuple, error) {
	if s.idx >= len(s.rows) {
		return nil, io.EOF
	}
	t := s.rows[s.idx]
	s.idx++
	return t, nil
}

func (s *sliceOp) Close() error { return nil }
func (s *sliceOp) String() string { return "sliceOp" }

func keySeqSchema() catalog.Schema {
	return catalog.NewSchema([]sql.Column{
		sql.NewColumn("key", sql.IntT()),
		sql.NewColumn("seq", sql.IntT()),
	})
}

func drain(t *testing.T, op plan.Op) []plan.Tuple {
	t.Helper()
	var out []plan.Tuple
	for {
		tup, err := op.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
		out = append(out, tup)
	}
	return out
}

func TestCollectReplaysArrivalOrder(t *testing.T) {
	schema := keySeqSchema()
	src := &sliceOp{schema: schema, rows: []plan.Tuple{
		{sql.VNumber(3), sql.VNumber(0)},
		{sql.VNumber(1), sql.VNumber(1)},
		{sql.VNumber(2), sql.VNumber(2)},
	}}
	c := NewCollect(src, schema, 1<<20, t.TempDir(), nil)
	defer c.Close()

	got := drain(t, c)
	if len(got) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(got))
	}
	for i, want := range []int64{3, 1, 2} {
		if got[i][0].Num.Int64() != want {
			t.Fatalf("tuple %d: got key %s, want %d", i, got[i][0].Num, want)
		}
	}
}

func TestCollectSpillsAndStillReplaysEveryTuple(t *testing.T) {
	schema := keySeqSchema()
	var rows []plan.Tuple
	for i := int64(0); i < 50; i++ {
		rows = append(rows, plan.Tuple{sql.VNumber(i), sql.VNumber(i)})
	}
	src := &sliceOp{schema: schema, rows: rows}
	// A tiny buffer forces a spill after just a couple of tuples.
	c := NewCollect(src, schema, 16, t.TempDir(), nil)
	defer c.Close()

	got := drain(t, c)
	if len(got) != len(rows) {
		t.Fatalf("expected %d tuples back, got %d", len(rows), len(got))
	}
	for i, row := range got {
		if row[0].Num.Int64() != int64(i) {
			t.Fatalf("tuple %d: got key %s, want %d (arrival order must survive a spill)", i, row[0].Num, i)
		}
	}
}
