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

// Package planner assembles the physical plan tree (package plan) from an
// already-analyzed Statement and the catalog: the scan selector (package
// optimizer) plus sort/collect/project/DML wrapping (section 4.5).
package planner

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/analyzer"
	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/optimizer"
	"github.com/mkdb-go/mkdb/plan"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/sortrun"
	"github.com/mkdb-go/mkdb/storage"
)

// ErrNotImplemented is returned for statement kinds this module's planner
// deliberately leaves unsupported: transaction control and CREATE/DROP
// DATABASE (section 4.5, "Other statements").
var ErrNotImplemented = errors.New("planner: statement not yet implemented")

// Config carries the subset of engine.Options the planner needs to build
// sort/collect nodes; kept as its own small struct (rather than importing
// engine.Options directly) so engine can depend on planner without a cycle.
type Config struct {
	WorkDir      string
	MemBufSize   int
	InputBuffers int
	Logger       *zap.Logger
}

// Catalog is the subset of *catalog.Catalog the planner needs: lookups, the
// row-id allocator, and the mutations CREATE/DROP statements perform
// directly rather than through a plan tree.
type Catalog interface {
	Lookup(name string) (catalog.TableMetadata, error)
	Exists(name string) bool
	CreateTable(name string, schema catalog.Schema) (catalog.TableMetadata, error)
	DropTable(name string) error
	CreateIndex(table, name, column string, unique bool) (catalog.IndexMetadata, error)
	catalog.RowIDAllocator
}

// Plan builds the executable Op tree for stmt. CREATE TABLE, CREATE INDEX,
// and DROP TABLE are catalog mutations with no tuple stream: Plan performs
// them directly and returns a nil Op. Transaction control and CREATE/DROP
// DATABASE return ErrNotImplemented, matching the core spec's "Other(not
// yet implemented)" outcome for statements outside this module's scope.
func Plan(stmt sql.Statement, cat Catalog, store storage.RelationStore, cfg Config) (plan.Op, error) {
	switch stmt.Kind {
	case sql.CreateStmt:
		return nil, planCreate(stmt, cat)
	case sql.DropStmt:
		if stmt.Drop.Kind != sql.DropTable {
			return nil, ErrNotImplemented
		}
		return nil, cat.DropTable(stmt.Drop.Name)
	case sql.SelectStmt:
		return planSelect(stmt, cat, store, cfg)
	case sql.InsertStmt:
		return planInsert(stmt, cat, store)
	case sql.UpdateStmt:
		return planUpdate(stmt, cat, store, cfg)
	case sql.DeleteStmt:
		return planDelete(stmt, cat, store, cfg)
	case sql.ExplainStmt:
		inner, err := Plan(*stmt.Inner, cat, store, cfg)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, fmt.Errorf("planner: EXPLAIN of a statement with no plan tree")
		}
		return &plan.Explain{Inner: inner}, nil
	default:
		return nil, ErrNotImplemented
	}
}

func planCreate(stmt sql.Statement, cat Catalog) error {
	switch stmt.Create.Kind {
	case sql.CreateTable:
		schema := catalog.NewSchema(stmt.Create.Columns)
		_, err := cat.CreateTable(stmt.Create.Name, schema)
		return err
	case sql.CreateIndex:
		_, err := cat.CreateIndex(stmt.Create.Table, stmt.Create.Name, stmt.Create.Column, stmt.Create.Unique)
		return err
	default:
		return ErrNotImplemented
	}
}

// planSelect builds: scan -> optional residual filter -> optional sort
// chain -> optional projection, per section 4.5a-c.
func planSelect(stmt sql.Statement, cat Catalog, store storage.RelationStore, cfg Config) (plan.Op, error) {
	tm, err := cat.Lookup(stmt.From)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	op, err := buildScan(tm, stmt.Where, store)
	if err != nil {
		return nil, err
	}

	if needsSort(tm.Schema, stmt.OrderBy) {
		op, err = buildSortChain(op, tm.Schema, stmt.OrderBy, cfg)
		if err != nil {
			return nil, err
		}
	}

	return buildProjection(op, stmt.Columns, tm.Schema)
}

// buildScan runs the scan selector and wraps a residual predicate, if any,
// in a Filter (section 4.4 step 5). Multi-conjunct disjunctions additionally
// get the Sort -> KeyScan tail the LogicalOrScan needs (section 4.4 step 4).
func buildScan(tm catalog.TableMetadata, where *sql.Expression, store storage.RelationStore) (plan.Op, error) {
	scan, residual, err := optimizer.SelectScan(tm, where, store)
	if err != nil {
		return nil, err
	}

	op := scan
	if orScan, ok := scan.(*plan.LogicalOrScan); ok {
		collect := sortrun.NewCollect(orScan, orScan.Schema(), defaultKeyCollectBuf, "", nil)
		sorted := sortrun.NewSort(collect, sortrun.Comparator{SortKeyIndexes: []int{0}}, orScan.Schema(), "", 0, nil)
		op = &plan.KeyScan{Table: tm, Source: sorted, Store: store}
	}

	if residual != nil {
		op = &plan.Filter{Predicate: *residual, SchemaVal: op.Schema(), Source: op}
	}
	return op, nil
}

// defaultKeyCollectBuf bounds the in-memory buffer used to dedupe/reorder
// the key stream a LogicalOrScan produces before KeyScan; distinct from the
// ORDER BY sort's mem_buf_size (page_size), since key streams here are a
// single column and typically small.
const defaultKeyCollectBuf = 64 * 1024

// needsSort reports whether orderBy requires an actual sort stage: empty,
// or a singleton identifier matching the table's clustered key column (the
// scan already yields rows in that order), needs none.
func needsSort(schema catalog.Schema, orderBy []sql.Expression) bool {
	if len(orderBy) == 0 {
		return false
	}
	if len(orderBy) == 1 && orderBy[0].Kind == sql.IdentifierExpr {
		idx, ok := schema.IndexOf(orderBy[0].Ident)
		if ok && idx == schema.ClusteredKeyIndex() {
			return false
		}
	}
	return true
}

// buildSortChain wraps source in SortKeysGen (if any ORDER BY expression
// isn't a bare identifier), then Collect, then Sort, per section 4.5b.
func buildSortChain(source plan.Op, schema catalog.Schema, orderBy []sql.Expression, cfg Config) (plan.Op, error) {
	sortKeyIndexes := make([]int, len(orderBy))
	var genExprs []sql.Expression
	widenedSchema := schema

	for i, ob := range orderBy {
		if ob.Kind == sql.IdentifierExpr {
			idx, ok := schema.IndexOf(ob.Ident)
			if !ok {
				return nil, fmt.Errorf("planner: ORDER BY references unknown column %q", ob.Ident)
			}
			sortKeyIndexes[i] = idx
			continue
		}
		genExprs = append(genExprs, ob)
		sortKeyIndexes[i] = len(schema.Columns) + len(genExprs) - 1
	}

	if len(genExprs) > 0 {
		cols := append([]sql.Column(nil), schema.Columns...)
		for _, expr := range genExprs {
			cols = append(cols, sql.NewColumn(expr.String(), synthesizedType(expr, schema)))
		}
		widenedSchema = catalog.NewSchema(cols)
		source = &plan.SortKeysGen{GenExprs: genExprs, InputSchema: schema, SchemaVal: widenedSchema, Source: source}
	}

	memBuf := cfg.MemBufSize
	if memBuf <= 0 {
		memBuf = defaultKeyCollectBuf
	}
	collect := sortrun.NewCollect(source, widenedSchema, memBuf, cfg.WorkDir, cfg.Logger)
	sorted := sortrun.NewSort(collect, sortrun.Comparator{SortKeyIndexes: sortKeyIndexes}, schema, cfg.WorkDir, cfg.InputBuffers, cfg.Logger)
	return sorted, nil
}

// synthesizedType resolves the column type ORDER BY/SELECT synthesizes for
// a general expression (section 4.5c): Bool -> Bool, Number -> BigInt,
// String -> Varchar(65535).
func synthesizedType(expr sql.Expression, schema catalog.Schema) sql.DataType {
	t, err := analyzer.InferType(expr, schema)
	if err != nil {
		// The analyzer has already validated this expression; a failure
		// here would mean planner and analyzer disagree on typing, which
		// is a programmer error rather than a runtime condition.
		panic(fmt.Sprintf("planner: %v", err))
	}
	switch t {
	case sql.BoolSemantic:
		return sql.BoolT()
	case sql.StringSemantic:
		return sql.Varchar(65535)
	default:
		return sql.BigIntT()
	}
}

// buildProjection builds the output schema from cols (section 4.5c) and
// wraps source in Project only when that schema differs from source's own.
func buildProjection(source plan.Op, cols []sql.Expression, inputSchema catalog.Schema) (plan.Op, error) {
	exprs, outCols, err := expandProjection(cols, inputSchema)
	if err != nil {
		return nil, err
	}
	outSchema := catalog.NewSchema(outCols)
	if schemaEqual(outSchema, source.Schema()) {
		return source, nil
	}
	return &plan.Project{InputSchema: inputSchema, OutputSchemaVal: outSchema, ProjectionExprs: exprs, Source: source}, nil
}

// expandProjection replaces a bare wildcard with one identifier per schema
// column and synthesizes an output Column per projection expression.
func expandProjection(cols []sql.Expression, schema catalog.Schema) ([]sql.Expression, []sql.Column, error) {
	var exprs []sql.Expression
	for _, c := range cols {
		if c.Kind == sql.WildcardExpr {
			for _, col := range schema.Columns {
				exprs = append(exprs, sql.Ident(col.Name))
			}
			continue
		}
		exprs = append(exprs, c)
	}

	outCols := make([]sql.Column, len(exprs))
	for i, e := range exprs {
		if e.Kind == sql.IdentifierExpr {
			idx, ok := schema.IndexOf(e.Ident)
			if !ok {
				return nil, nil, fmt.Errorf("planner: unknown column %q in projection", e.Ident)
			}
			outCols[i] = schema.Columns[idx]
			continue
		}
		outCols[i] = sql.NewColumn(e.String(), synthesizedType(e, schema))
	}
	return exprs, outCols, nil
}

func schemaEqual(a, b catalog.Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || a.Columns[i].DataType != b.Columns[i].DataType {
			return false
		}
	}
	return true
}

func planInsert(stmt sql.Statement, cat Catalog, store storage.RelationStore) (plan.Op, error) {
	tm, err := cat.Lookup(stmt.Into)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	userCols := stmt.InsertCols
	if len(userCols) == 0 {
		for _, c := range tm.Schema.Columns {
			if c.Name == catalog.RowIDColumn {
				continue
			}
			userCols = append(userCols, c.Name)
		}
	}

	rowSchemaCols := make([]sql.Column, len(userCols))
	for i, name := range userCols {
		idx, ok := tm.Schema.IndexOf(name)
		if !ok {
			return nil, fmt.Errorf("planner: unknown column %q in INSERT", name)
		}
		rowSchemaCols[i] = tm.Schema.Columns[idx]
	}
	rowSchema := catalog.NewSchema(rowSchemaCols)

	row := make(plan.Tuple, len(stmt.Values))
	for i, expr := range stmt.Values {
		v, err := plan.Eval(expr, rowSchema, nil)
		if err != nil {
			return nil, fmt.Errorf("planner: evaluating INSERT value: %w", err)
		}
		row[i] = v
	}

	values := &plan.Values{Rows: []plan.Tuple{row}, RowSchema: rowSchema}
	return &plan.Insert{Source: values, Table: tm, Store: store, RowIDs: cat}, nil
}

// planUpdate and planDelete build the scan, wrap it in Collect whenever the
// top-level scan's own cursor could be invalidated by this statement's own
// writes (section 4.5/4.7): SeqScan and RangeScan qualify; ExactMatch (at
// most one row) and LogicalOrScan's KeyScan tail (already buffered by the
// Collect and Sort feeding it) do not.

func planUpdate(stmt sql.Statement, cat Catalog, store storage.RelationStore, cfg Config) (plan.Op, error) {
	tm, err := cat.Lookup(stmt.Table)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	source, err := buildDMLSource(tm, stmt.Where, store, cfg)
	if err != nil {
		return nil, err
	}
	return &plan.Update{Source: source, Table: tm, Assignments: stmt.Assignments, Store: store}, nil
}

func planDelete(stmt sql.Statement, cat Catalog, store storage.RelationStore, cfg Config) (plan.Op, error) {
	tm, err := cat.Lookup(stmt.From)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	source, err := buildDMLSource(tm, stmt.Where, store, cfg)
	if err != nil {
		return nil, err
	}
	return &plan.Delete{Source: source, Table: tm, Store: store}, nil
}

// buildDMLSource builds the scan for an UPDATE/DELETE target, wrapping it
// in Collect unless it's an ExactMatch (yields at most one row, so no live
// cursor survives into the mutation) or already a KeyScan (buffered by the
// Sort feeding it).
func buildDMLSource(tm catalog.TableMetadata, where *sql.Expression, store storage.RelationStore, cfg Config) (plan.Op, error) {
	op, err := buildScan(tm, where, store)
	if err != nil {
		return nil, err
	}

	needsCollect := true
	switch unwrapFilter(op).(type) {
	case *plan.ExactMatch, *plan.KeyScan:
		needsCollect = false
	}
	if !needsCollect {
		return op, nil
	}

	memBuf := cfg.MemBufSize
	if memBuf <= 0 {
		memBuf = defaultKeyCollectBuf
	}
	return sortrun.NewCollect(op, op.Schema(), memBuf, cfg.WorkDir, cfg.Logger), nil
}

// unwrapFilter looks through a residual Filter to the scan it wraps, so
// buildDMLSource can recognize an ExactMatch/KeyScan even when a residual
// predicate sits on top of it.
func unwrapFilter(op plan.Op) plan.Op {
	if f, ok := op.(*plan.Filter); ok {
		return f.Source
	}
	return op
}
