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

package storage

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/mkdb-go/mkdb/sql"
)

func TestTupleRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		schema []sql.DataType
		tuple  []sql.Value
	}{
		{
			name:   "integers",
			schema: []sql.DataType{sql.IntT(), sql.UnsignedIntT(), sql.BigIntT(), sql.UnsignedBigIntT()},
			tuple: []sql.Value{
				sql.VNumber(-1234),
				sql.VNumber(1234),
				sql.VNumber(-9876543210),
				sql.VBigNumber(new(big.Int).SetUint64(1 << 63)),
			},
		},
		{
			name:   "bool and varchar",
			schema: []sql.DataType{sql.BoolT(), sql.Varchar(255)},
			tuple:  []sql.Value{sql.VBool(true), sql.VString("hello, 世界")},
		},
		{
			name:   "empty varchar",
			schema: []sql.DataType{sql.Varchar(10)},
			tuple:  []sql.Value{sql.VString("")},
		},
		{
			name:   "min/max signed bounds",
			schema: []sql.DataType{sql.IntT(), sql.BigIntT()},
			tuple:  []sql.Value{sql.VNumber(-1 << 31), sql.VNumber(-1 << 63)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Serialize(tc.schema, tc.tuple)
			if len(encoded) != SizeOf(tc.schema, tc.tuple) {
				t.Fatalf("SizeOf mismatch: len(Serialize)=%d, SizeOf=%d", len(encoded), SizeOf(tc.schema, tc.tuple))
			}
			decoded := Deserialize(encoded, tc.schema)
			if len(decoded) != len(tc.tuple) {
				t.Fatalf("decoded %d values, want %d", len(decoded), len(tc.tuple))
			}
			for i := range tc.tuple {
				cmp, ok := tc.tuple[i].Compare(decoded[i])
				if !ok || cmp != 0 {
					t.Fatalf("column %d: got %v, want %v", i, decoded[i], tc.tuple[i])
				}
			}
		})
	}
}

func TestSerializeIntegerOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic serializing an out-of-range integer")
		}
	}()
	Serialize([]sql.DataType{sql.IntT()}, []sql.Value{sql.VBigNumber(big.NewInt(1 << 32))})
}

func TestDeserializeMalformedUTF8Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic decoding a malformed UTF-8 varchar")
		}
	}()
	// 4-byte little-endian length of 1, followed by an invalid UTF-8 byte.
	buf := []byte{1, 0, 0, 0, 0xff}
	Deserialize(buf, []sql.DataType{sql.Varchar(10)})
}

func TestRowIDRoundTrip(t *testing.T) {
	id := RowID(123456789)
	got := DeserializeRowID(SerializeRowID(id))
	if got != id {
		t.Fatalf("got %d, want %d", got, id)
	}
}

func TestSerializeKeyRoundTrip(t *testing.T) {
	dt := sql.Varchar(255)
	v := sql.VString("bob@email.com")
	got := DeserializeKey(SerializeKey(dt, v), dt)
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("got %v, want %v", got, v)
	}
}
