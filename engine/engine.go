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

package engine

import (
	"fmt"
	"io"

	"github.com/mkdb-go/mkdb/analyzer"
	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/planner"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// Engine ties together a Catalog and a RelationStore behind the single
// entry point a caller drives a statement through: Run. It does not open
// or own a pager/file directly — callers construct whatever RelationStore
// (storage.MemStore, or a future real B-Tree store) and, if persistence is
// wanted, wrap it so Catalog writes survive restarts (catalog.Load).
type Engine struct {
	Catalog *catalog.Catalog
	Store   storage.RelationStore
	Options Options
}

// New constructs an Engine with a fresh, empty catalog backed by store.
func New(store storage.RelationStore, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cat := catalog.New(opts.Logger)
	cat.AttachStore(store)
	return &Engine{Catalog: cat, Store: store, Options: opts}, nil
}

// Open rebuilds an Engine's catalog from an existing store's mkdb_meta
// table, the way a real engine would on process restart (catalog.Load).
func Open(store storage.RelationStore, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(store, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("engine: opening: %w", err)
	}
	return &Engine{Catalog: cat, Store: store, Options: opts}, nil
}

// Result is the outcome of running one statement: its output schema (empty
// for statements with no tuple stream, e.g. CREATE TABLE) and every row it
// produced. This module has no streaming query protocol (Non-goal, section
// 1); Run always drains the plan to completion.
type Result struct {
	Schema catalog.Schema
	Rows   []plan.Tuple
}

// Run analyzes, plans, and fully executes stmt. Analyzer errors are
// returned before any plan node is built or executed, matching the
// propagation policy in section 7: semantic errors never touch storage.
// Runtime errors (from plan.Op.Next) are returned after whatever partial
// execution already happened — this module does not roll back (no WAL/
// transaction layer, section 1).
func (e *Engine) Run(stmt sql.Statement) (Result, error) {
	if err := analyzer.Analyze(stmt, e.Catalog); err != nil {
		return Result{}, fmt.Errorf("engine: analyzing statement: %w", err)
	}

	cfg := planner.Config{
		WorkDir:      e.Options.WorkDir,
		MemBufSize:   e.Options.MemBufSize,
		InputBuffers: e.Options.InputBuffers,
		Logger:       e.Options.Logger,
	}

	op, err := planner.Plan(stmt, e.Catalog, e.Store, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("engine: planning statement: %w", err)
	}
	if op == nil {
		// CREATE/DROP: the planner already performed the catalog mutation
		// directly; there is no tuple stream to drain.
		return Result{}, nil
	}
	defer op.Close()

	res := Result{Schema: op.Schema()}
	for {
		row, err := op.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("engine: executing plan: %w", err)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

