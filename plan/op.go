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

// Package plan implements the physical plan tree: a pull-based op
// hierarchy where the root (a projection or a DML sink) drives its child by
// requesting one tuple at a time. Every Op exclusively owns its children;
// the tree is pure composition, and table metadata is cloned into each node
// rather than shared with the catalog, so a later catalog mutation never
// perturbs an in-flight plan.
package plan

import (
	"io"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

// Tuple is one row moving through the plan tree: a slice of resolved
// Values, one per column of the Op's Schema.
type Tuple = []sql.Value

// Op is a single physical plan operator. Next returns io.EOF once the
// operator is exhausted; callers must not call Next again afterwards.
// Close releases any resource the Op holds directly (cursors, temp files)
// and closes its children.
type Op interface {
	// Schema describes the columns of the tuples this Op yields.
	Schema() catalog.Schema

	// Next pulls the next tuple, or io.EOF when exhausted.
	Next() (Tuple, error)

	// Close releases this Op's resources. Safe to call multiple times.
	Close() error

	// String renders this Op (and, recursively, its children) the way
	// EXPLAIN does: a single line, with each child nested inside its
	// parent's braces.
	String() string
}

// ErrDone is a convenience alias for io.EOF, used throughout this package
// to make "this operator is exhausted" read clearly at call sites.
var ErrDone = io.EOF

// CloseAll closes every op in ops, in order, continuing past errors and
// returning the first one encountered. Scans that hold a child Op use this
// in their own Close so a cleanup failure on one branch doesn't prevent the
// others from releasing their resources.
func CloseAll(ops ...Op) error {
	var first error
	for _, op := range ops {
		if op == nil {
			continue
		}
		if err := op.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
