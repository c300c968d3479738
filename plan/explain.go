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
	"io"
	"strings"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
)

// explainSchema is the single Varchar column EXPLAIN yields, one row per
// line of the plan-tree rendering.
var explainSchema = catalog.NewSchema([]sql.Column{{Name: "plan", DataType: sql.Varchar(65535)}})

// Explain wraps an already-built plan Op and streams its textual
// rendering, one line (one Varchar tuple) per Next call, rather than
// executing Inner. It keeps EXPLAIN a pull-based operator like every other
// plan node instead of a special-cased side channel.
type Explain struct {
	Inner Op

	lines []string
	idx   int
	built bool
}

func (e *Explain) Schema() catalog.Schema { return explainSchema }

func (e *Explain) Next() (Tuple, error) {
	if !e.built {
		e.lines = strings.Split(renderTree(e.Inner, 0), "\n")
		e.built = true
	}
	if e.idx >= len(e.lines) {
		return nil, io.EOF
	}
	line := e.lines[e.idx]
	e.idx++
	return Tuple{sql.VString(line)}, nil
}

func (e *Explain) Close() error { return e.Inner.Close() }

func (e *Explain) String() string { return "Explain{" + e.Inner.String() + "}" }

// renderTree renders op as a single line indented by depth. Child ops are
// already embedded in op.String() (every Op's String() recursively renders
// its Source/children), so the whole tree comes out as that one line and
// EXPLAIN yields a single row.
func renderTree(op Op, depth int) string {
	return strings.Repeat("  ", depth) + op.String()
}
