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
	"errors"
	"io"
	"testing"

	"github.com/mkdb-go/mkdb/catalog"
	"github.com/mkdb-go/mkdb/sql"
	"github.com/mkdb-go/mkdb/storage"
)

func usersTableWithIndex(t *testing.T) (catalog.TableMetadata, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	c := catalog.New(nil)
	c.AttachStore(store)
	schema := catalog.NewSchema([]sql.Column{
		sql.PrimaryKeyColumn("id", sql.IntT()),
		sql.NewColumn("email", sql.Varchar(255)),
	})
	if _, err := c.CreateTable("users", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateIndex("users", "users_email_uq_index", "email", true); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	tm, err := c.Lookup("users")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return tm, store
}

func TestInsertWritesRowAndIndexEntry(t *testing.T) {
	tm, store := usersTableWithIndex(t)
	values := &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(1), sql.VString("a@example.com")}}}
	ins := &Insert{Source: values, Table: tm, Store: store}

	if _, err := ins.Next(); err != nil {
		t.Fatalf("Insert.Next: %v", err)
	}

	key := storage.SerializeKey(sql.IntT(), sql.VNumber(1))
	row, found, err := store.Get(tm.Relation(), key)
	if err != nil || !found {
		t.Fatalf("expected row to be stored: found=%v err=%v", found, err)
	}
	decoded := storage.Deserialize(row, tm.Schema.DataTypes())
	if decoded[1].Str != "a@example.com" {
		t.Fatalf("unexpected stored row: %v", decoded)
	}

	idxKey := storage.SerializeKey(sql.Varchar(255), sql.VString("a@example.com"))
	idxVal, found, err := store.Get(tm.Indexes[0].Relation(), idxKey)
	if err != nil || !found {
		t.Fatalf("expected index entry to be stored: found=%v err=%v", found, err)
	}
	if string(idxVal) != string(key) {
		t.Fatalf("index entry points to wrong key: got %x want %x", idxVal, key)
	}
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	tm, store := usersTableWithIndex(t)
	row := Tuple{sql.VNumber(1), sql.VString("a@example.com")}

	first := &Insert{Source: &Values{RowSchema: tm.Schema, Rows: []Tuple{row}}, Table: tm, Store: store}
	if _, err := first.Next(); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := &Insert{Source: &Values{RowSchema: tm.Schema, Rows: []Tuple{row}}, Table: tm, Store: store}
	_, err := second.Next()
	if !errors.Is(err, storage.ErrUniqueConstraintViolation) {
		t.Fatalf("expected ErrUniqueConstraintViolation, got %v", err)
	}
}

func TestInsertRejectsDuplicateUniqueIndexValue(t *testing.T) {
	tm, store := usersTableWithIndex(t)

	first := &Insert{Source: &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(1), sql.VString("a@example.com")}}}, Table: tm, Store: store}
	if _, err := first.Next(); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := &Insert{Source: &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(2), sql.VString("a@example.com")}}}, Table: tm, Store: store}
	_, err := second.Next()
	if !errors.Is(err, storage.ErrUniqueConstraintViolation) {
		t.Fatalf("expected ErrUniqueConstraintViolation for duplicate index value, got %v", err)
	}
}

func seedUser(t *testing.T, tm catalog.TableMetadata, store *storage.MemStore, id int64, email string) {
	t.Helper()
	ins := &Insert{Source: &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(id), sql.VString(email)}}}, Table: tm, Store: store}
	if _, err := ins.Next(); err != nil {
		t.Fatalf("seeding row: %v", err)
	}
}

func TestUpdateRewritesIndexEntryOnIndexedColumnChange(t *testing.T) {
	tm, store := usersTableWithIndex(t)
	seedUser(t, tm, store, 1, "old@example.com")

	source := &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(1), sql.VString("old@example.com")}}}
	upd := &Update{
		Source:      source,
		Table:       tm,
		Assignments: []sql.Assignment{{Identifier: "email", Value: sql.Lit(sql.VString("new@example.com"))}},
		Store:       store,
	}
	if _, err := upd.Next(); err != nil {
		t.Fatalf("Update.Next: %v", err)
	}

	oldIdxKey := storage.SerializeKey(sql.Varchar(255), sql.VString("old@example.com"))
	if _, found, _ := store.Get(tm.Indexes[0].Relation(), oldIdxKey); found {
		t.Fatal("expected the stale index entry to be removed")
	}
	newIdxKey := storage.SerializeKey(sql.Varchar(255), sql.VString("new@example.com"))
	idxVal, found, err := store.Get(tm.Indexes[0].Relation(), newIdxKey)
	if err != nil || !found {
		t.Fatalf("expected new index entry: found=%v err=%v", found, err)
	}
	key := storage.SerializeKey(sql.IntT(), sql.VNumber(1))
	if string(idxVal) != string(key) {
		t.Fatalf("new index entry points to wrong key: got %x want %x", idxVal, key)
	}
}

func TestDeleteRemovesRowAndIndexEntries(t *testing.T) {
	tm, store := usersTableWithIndex(t)
	seedUser(t, tm, store, 1, "a@example.com")

	source := &Values{RowSchema: tm.Schema, Rows: []Tuple{{sql.VNumber(1), sql.VString("a@example.com")}}}
	del := &Delete{Source: source, Table: tm, Store: store}
	if _, err := del.Next(); err != nil {
		t.Fatalf("Delete.Next: %v", err)
	}

	key := storage.SerializeKey(sql.IntT(), sql.VNumber(1))
	if _, found, _ := store.Get(tm.Relation(), key); found {
		t.Fatal("expected row to be removed")
	}
	idxKey := storage.SerializeKey(sql.Varchar(255), sql.VString("a@example.com"))
	if _, found, _ := store.Get(tm.Indexes[0].Relation(), idxKey); found {
		t.Fatal("expected index entry to be removed")
	}
}

func TestInsertAssignsRowIDWhenTableHasNoPrimaryKey(t *testing.T) {
	store := storage.NewMemStore()
	c := catalog.New(nil)
	c.AttachStore(store)
	schema := catalog.NewSchema([]sql.Column{
		sql.NewColumn(catalog.RowIDColumn, sql.UnsignedBigIntT()),
		sql.NewColumn("name", sql.Varchar(255)),
	})
	if _, err := c.CreateTable("events", schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	tm, err := c.Lookup("events")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	values := &Values{RowSchema: catalog.NewSchema(schema.Columns[1:]), Rows: []Tuple{{sql.VString("hello")}}}
	ins := &Insert{Source: values, Table: tm, Store: store, RowIDs: c}

	row, err := ins.Next()
	if err != nil {
		t.Fatalf("Insert.Next: %v", err)
	}
	if row[0].Num.Int64() != 0 {
		t.Fatalf("expected the first assigned row_id to be 0, got %s", row[0].Num)
	}
}

func TestValuesExhaustsWithEOF(t *testing.T) {
	v := &Values{RowSchema: catalog.NewSchema(nil), Rows: []Tuple{{}}}
	if _, err := v.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := v.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF once exhausted, got %v", err)
	}
}
