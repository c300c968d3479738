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
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

// metaSchema is mkdb_meta's own schema: it is read and written through the
// same tuple codec and pager as any user table, per the design note that
// mkdb_meta is an ordinary (if reserved) table rather than a bespoke format.
var metaSchema = NewSchema([]sql.Column{
	{Name: "name", DataType: sql.Varchar(255)},
	{Name: "root_page", DataType: sql.BigIntT()},
	{Name: "next_row_id", DataType: sql.UnsignedBigIntT()},
	{Name: "columns", DataType: sql.Varchar(65535)},
	{Name: "indexes", DataType: sql.Varchar(65535)},
})

// MetaRelation is mkdb_meta viewed as a Relation, keyed by table name.
var MetaRelation = storage.Relation{
	Kind:       storage.TableRelation,
	Name:       MetaTable,
	RootPage:   0,
	KeyType:    sql.Varchar(255),
	Comparator: storage.KeyComparatorFor(sql.Varchar(255)),
}

// AttachStore wires a RelationStore so future Create/Drop/NextRowID calls
// persist to mkdb_meta. Catalogs built without a store (typical in unit
// tests that construct Statement/Schema values directly) behave exactly as
// before: in-memory only.
func (c *Catalog) AttachStore(store storage.RelationStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

func encodeColumns(cols []sql.Column) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		cons := make([]string, len(col.Constraints))
		for j, cst := range col.Constraints {
			cons[j] = strconv.Itoa(int(cst))
		}
		parts[i] = fmt.Sprintf("%s|%d|%d|%s", col.Name, col.DataType.Kind, col.DataType.Max, strings.Join(cons, ","))
	}
	return strings.Join(parts, ";")
}

func decodeColumns(s string) ([]sql.Column, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	cols := make([]sql.Column, len(parts))
	for i, p := range parts {
		fields := strings.Split(p, "|")
		if len(fields) != 4 {
			return nil, fmt.Errorf("catalog: malformed column record %q", p)
		}
		kind, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("catalog: malformed column kind in %q: %w", p, err)
		}
		max, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("catalog: malformed column max in %q: %w", p, err)
		}
		var cons []sql.Constraint
		if fields[3] != "" {
			for _, c := range strings.Split(fields[3], ",") {
				n, err := strconv.Atoi(c)
				if err != nil {
					return nil, fmt.Errorf("catalog: malformed constraint in %q: %w", p, err)
				}
				cons = append(cons, sql.Constraint(n))
			}
		}
		cols[i] = sql.Column{
			Name:        fields[0],
			DataType:    sql.DataType{Kind: sql.DataTypeKind(kind), Max: max},
			Constraints: cons,
		}
	}
	return cols, nil
}

func encodeIndexes(idxs []IndexMetadata) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		unique := 0
		if idx.Unique {
			unique = 1
		}
		parts[i] = fmt.Sprintf("%s|%s|%d|%d|%d|%d",
			idx.Name, idx.Column, idx.RootPage, idx.KeyType.Kind, idx.KeyType.Max, unique)
	}
	return strings.Join(parts, ";")
}

func decodeIndexes(s string) ([]IndexMetadata, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]IndexMetadata, len(parts))
	for i, p := range parts {
		fields := strings.Split(p, "|")
		if len(fields) != 6 {
			return nil, fmt.Errorf("catalog: malformed index record %q", p)
		}
		rootPage, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("catalog: malformed index root page in %q: %w", p, err)
		}
		kind, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("catalog: malformed index key kind in %q: %w", p, err)
		}
		max, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("catalog: malformed index key max in %q: %w", p, err)
		}
		keyType := sql.DataType{Kind: sql.DataTypeKind(kind), Max: max}
		out[i] = IndexMetadata{
			Name:       fields[0],
			Column:     fields[1],
			RootPage:   rootPage,
			KeyType:    keyType,
			Unique:     fields[5] == "1",
			Comparator: storage.KeyComparatorFor(keyType),
		}
	}
	return out, nil
}

// toRow renders tm as an mkdb_meta row.
func (tm TableMetadata) toRow() []sql.Value {
	return []sql.Value{
		sql.VString(tm.Name),
		sql.VNumber(tm.RootPage),
		sql.VBigNumber(new(big.Int).SetUint64(tm.NextRowID)),
		sql.VString(encodeColumns(tm.Schema.Columns)),
		sql.VString(encodeIndexes(tm.Indexes)),
	}
}

func tableMetadataFromRow(row []sql.Value) (TableMetadata, error) {
	cols, err := decodeColumns(row[3].Str)
	if err != nil {
		return TableMetadata{}, err
	}
	idxs, err := decodeIndexes(row[4].Str)
	if err != nil {
		return TableMetadata{}, err
	}
	return TableMetadata{
		Name:      row[0].Str,
		Schema:    NewSchema(cols),
		RootPage:  row[1].Num.Int64(),
		Indexes:   idxs,
		NextRowID: row[2].Num.Uint64(),
	}, nil
}

// persistLocked writes tm's current state to mkdb_meta if a store is
// attached. Caller must hold c.mu.
func (c *Catalog) persistLocked(tm *TableMetadata) error {
	if c.store == nil {
		return nil
	}
	row := tm.toRow()
	key := storage.SerializeKey(metaSchema.Columns[0].DataType, row[0])
	buf := serializeMetaRow(row)
	if err := c.store.Put(MetaRelation, key, buf); err != nil {
		return fmt.Errorf("catalog: persisting table %q: %w", tm.Name, err)
	}
	return nil
}

func (c *Catalog) unpersistLocked(name string) error {
	if c.store == nil {
		return nil
	}
	key := storage.SerializeKey(metaSchema.Columns[0].DataType, sql.VString(name))
	if err := c.store.Delete(MetaRelation, key); err != nil {
		return fmt.Errorf("catalog: removing table %q from mkdb_meta: %w", name, err)
	}
	return nil
}

func serializeMetaRow(row []sql.Value) []byte {
	return storage.Serialize(metaSchema.DataTypes(), row)
}

// Load rebuilds a Catalog from an existing mkdb_meta table, the way a real
// engine would on process start. store must already contain a populated
// mkdb_meta relation (or be empty, yielding an empty Catalog).
func Load(store storage.RelationStore, logger *zap.Logger) (*Catalog, error) {
	c := New(logger)
	c.store = store

	cur, err := store.Cursor(MetaRelation)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening mkdb_meta cursor: %w", err)
	}
	defer cur.Close()

	maxRoot := int64(0)
	for {
		entry, err := cur.Next()
		if err == storage.ErrCursorExhausted {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: reading mkdb_meta: %w", err)
		}
		row := storage.Deserialize(entry.Row, metaSchema.DataTypes())
		tm, err := tableMetadataFromRow(row)
		if err != nil {
			return nil, err
		}
		if tm.RootPage > maxRoot {
			maxRoot = tm.RootPage
		}
		for _, idx := range tm.Indexes {
			if idx.RootPage > maxRoot {
				maxRoot = idx.RootPage
			}
		}
		c.tables[tm.Name] = &tm
	}
	c.nextRootPage = maxRoot + 1
	return c, nil
}
