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

package catalog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// IndexMetadata describes one secondary (always UNIQUE, per the analyzer's
// rejection of non-unique indexes) index on a table.
type IndexMetadata struct {
	Name       string
	Column     string
	RootPage   int64
	KeyType    sql.DataType
	Unique     bool
	Comparator storage.KeyComparator
}

func (im IndexMetadata) Relation() storage.Relation {
	return storage.Relation{
		Kind:       storage.IndexRelation,
		Name:       im.Name,
		RootPage:   im.RootPage,
		KeyType:    im.KeyType,
		Comparator: im.Comparator,
	}
}

// TableMetadata is everything the planner needs to target one table: its
// schema, the root page of its primary B-Tree, its secondary indexes, the
// comparator for its clustered key, and the next row_id to hand out when the
// table has no user primary key. Plan nodes clone a TableMetadata value into
// themselves rather than holding a pointer into the catalog, so later
// catalog mutation never perturbs an in-flight plan.
type TableMetadata struct {
	Name      string
	Schema    Schema
	RootPage  int64
	Indexes   []IndexMetadata
	NextRowID uint64
}

// Comparator returns the KeyComparator for this table's clustered key
// column.
func (tm TableMetadata) Comparator() storage.KeyComparator {
	return storage.KeyComparatorFor(tm.Schema.Columns[tm.Schema.ClusteredKeyIndex()].DataType)
}

// KeyType returns the DataType of this table's clustered key column.
func (tm TableMetadata) KeyType() sql.DataType {
	return tm.Schema.Columns[tm.Schema.ClusteredKeyIndex()].DataType
}

func (tm TableMetadata) Relation() storage.Relation {
	return storage.Relation{
		Kind:       storage.TableRelation,
		Name:       tm.Name,
		RootPage:   tm.RootPage,
		KeyType:    tm.KeyType(),
		Comparator: tm.Comparator(),
	}
}

// IndexOn returns the IndexMetadata for column, if one exists.
func (tm TableMetadata) IndexOn(column string) (IndexMetadata, bool) {
	for _, idx := range tm.Indexes {
		if idx.Column == column {
			return idx, true
		}
	}
	return IndexMetadata{}, false
}

// RowIDAllocator hands out monotonically increasing row ids for tables with
// no user primary key. Insert plan nodes depend on this rather than
// mutating their own cloned TableMetadata, because the counter must survive
// across statements.
type RowIDAllocator interface {
	NextRowID(table string) (storage.RowID, error)
}

// Catalog is the in-memory registry of every table, keyed by name, backed by
// an optional Pager-resident mkdb_meta table for persistence across process
// restarts. A real deployment's WAL/transaction layer is out of scope (see
// spec section 1); this Catalog assumes it is the only writer and is not
// safe for concurrent statement execution beyond its own mutex, matching
// the single-session execution model in section 5.
type Catalog struct {
	mu           sync.Mutex
	tables       map[string]*TableMetadata
	nextRootPage int64
	logger       *zap.Logger
	store        storage.RelationStore
}

// New constructs an empty Catalog. logger may be nil.
func New(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		tables: make(map[string]*TableMetadata),
		// Page 0 is reserved for mkdb_meta itself.
		nextRootPage: 1,
		logger:       logger,
	}
}

// allocRootPage hands out a fresh root page number for a new table or index
// B-Tree. Real page allocation is the pager/free-list's job (out of scope);
// this is the minimal stand-in the catalog needs to hand every table a
// distinct root.
func (c *Catalog) allocRootPage() int64 {
	p := c.nextRootPage
	c.nextRootPage++
	return p
}

// Exists reports whether a table by this name is already registered.
func (c *Catalog) Exists(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tables[name]
	return ok
}

// Lookup resolves a table name to its metadata. The returned value is a
// copy: callers (the planner) clone it into their own plan nodes.
func (c *Catalog) Lookup(name string) (TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.tables[name]
	if !ok {
		return TableMetadata{}, fmt.Errorf("catalog: table %q does not exist", name)
	}
	return *tm, nil
}

// CreateTable registers a new table. Returns an error if the name is
// already taken; callers that need the analyzer's AlreadyExists(Table)
// error class should check Exists first and wrap accordingly (see
// analyzer.Analyze).
func (c *Catalog) CreateTable(name string, schema Schema) (TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return TableMetadata{}, fmt.Errorf("catalog: table %q already exists", name)
	}
	tm := &TableMetadata{
		Name:     name,
		Schema:   schema,
		RootPage: c.allocRootPage(),
	}
	c.tables[name] = tm
	if err := c.persistLocked(tm); err != nil {
		delete(c.tables, name)
		return TableMetadata{}, err
	}
	c.logger.Info("catalog: table created", zap.String("table", name), zap.Int64("root_page", tm.RootPage))
	return *tm, nil
}

// DropTable removes a table and all of its indexes from the catalog.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return fmt.Errorf("catalog: table %q does not exist", name)
	}
	if err := c.unpersistLocked(name); err != nil {
		return err
	}
	delete(c.tables, name)
	c.logger.Info("catalog: table dropped", zap.String("table", name))
	return nil
}

// CreateIndex registers a UNIQUE index on table/column. Non-unique indexes
// are rejected by the analyzer before reaching here (section 4.3); this
// method still accepts a unique flag so tests can exercise the rejection
// path end to end, but every caller in this module passes true.
func (c *Catalog) CreateIndex(table, name, column string, unique bool) (IndexMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.tables[table]
	if !ok {
		return IndexMetadata{}, fmt.Errorf("catalog: table %q does not exist", table)
	}
	colIdx, ok := tm.Schema.IndexOf(column)
	if !ok {
		return IndexMetadata{}, fmt.Errorf("catalog: column %q does not exist on table %q", column, table)
	}
	for _, idx := range tm.Indexes {
		if idx.Name == name {
			return IndexMetadata{}, fmt.Errorf("catalog: index %q already exists", name)
		}
	}
	im := IndexMetadata{
		Name:       name,
		Column:     column,
		RootPage:   c.allocRootPage(),
		KeyType:    tm.Schema.Columns[colIdx].DataType,
		Unique:     unique,
		Comparator: storage.KeyComparatorFor(tm.Schema.Columns[colIdx].DataType),
	}
	tm.Indexes = append(tm.Indexes, im)
	if err := c.persistLocked(tm); err != nil {
		tm.Indexes = tm.Indexes[:len(tm.Indexes)-1]
		return IndexMetadata{}, err
	}
	c.logger.Info("catalog: index created",
		zap.String("index", name), zap.String("table", table), zap.String("column", column))
	return im, nil
}

// NextRowID implements RowIDAllocator: it hands out the next monotonic
// row_id for table and persists the bump immediately so a crash before the
// next CREATE/DROP still sees an advanced counter (mkdb_meta persistence is
// the only durability story this module provides for the counter).
func (c *Catalog) NextRowID(table string) (storage.RowID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm, ok := c.tables[table]
	if !ok {
		return 0, fmt.Errorf("catalog: table %q does not exist", table)
	}
	id := storage.RowID(tm.NextRowID)
	tm.NextRowID++
	if err := c.persistLocked(tm); err != nil {
		tm.NextRowID--
		return 0, err
	}
	return id, nil
}

// TableNames returns every registered table name, reserved mkdb_meta
// excluded, in no particular order.
func (c *Catalog) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		if n == MetaTable {
			continue
		}
		names = append(names, n)
	}
	return names
}
