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

// Package storage implements the deterministic tuple binary codec and the
// capability interfaces (Cursor, KeyComparator) that sit between the plan
// tree and a B-Tree this module does not implement.
package storage

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/mkdb-go/mkdb/sql"
)

// RowID is the 64-bit engine-assigned identifier used as a table's
// clustering key when it has no user primary key.
type RowID uint64

const rowIDSize = 8

func SerializeRowID(id RowID) []byte {
	buf := make([]byte, rowIDSize)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func DeserializeRowID(buf []byte) RowID {
	return RowID(binary.BigEndian.Uint64(buf[:rowIDSize]))
}

// byteLengthOfIntegerType returns the fixed encoded width of an integer
// DataType; dt must be one of the four integer kinds.
func byteLengthOfIntegerType(dt sql.DataType) int {
	switch dt.Kind {
	case sql.IntType, sql.UnsignedIntType:
		return 4
	case sql.BigIntType, sql.UnsignedBigIntType:
		return 8
	default:
		panic(fmt.Sprintf("byteLengthOfIntegerType called with non-integer type %s", dt))
	}
}

// integerBounds returns the inclusive [min, max] range a value must fall
// within to be encoded as dt.
func integerBounds(dt sql.DataType) (min, max *big.Int) {
	switch dt.Kind {
	case sql.IntType:
		return big.NewInt(-1 << 31), big.NewInt(1<<31 - 1)
	case sql.UnsignedIntType:
		return big.NewInt(0), big.NewInt(1<<32 - 1)
	case sql.BigIntType:
		return big.NewInt(-1 << 63), big.NewInt(1<<63 - 1)
	case sql.UnsignedBigIntType:
		max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
		return big.NewInt(0), max
	default:
		panic(fmt.Sprintf("integerBounds called with non-integer type %s", dt))
	}
}

// SizeOf returns the exact encoded byte length of tuple under schema,
// without actually encoding it.
func SizeOf(schema []sql.DataType, tuple []sql.Value) int {
	total := 0
	for i, dt := range schema {
		switch dt.Kind {
		case sql.BoolType:
			total++
		case sql.VarcharType:
			total += 4 + len(tuple[i].Str)
		default:
			total += byteLengthOfIntegerType(dt)
		}
	}
	return total
}

// Serialize encodes tuple according to schema, concatenating column
// encodings in schema order: big-endian fixed-width integers, a single 0/1
// byte for Bool, and a 4-byte little-endian length prefix followed by raw
// UTF-8 bytes for Varchar. Integer values out of their type's range panic —
// the analyzer must have already rejected them.
func Serialize(schema []sql.DataType, tuple []sql.Value) []byte {
	if len(schema) != len(tuple) {
		panic(fmt.Sprintf("length of schema (%d) and values (%d) must be the same", len(schema), len(tuple)))
	}

	buf := make([]byte, 0, SizeOf(schema, tuple))
	for i, dt := range schema {
		val := tuple[i]
		switch dt.Kind {
		case sql.VarcharType:
			if val.Kind != sql.StringValue {
				panic(fmt.Sprintf("attempt to serialize %s into %s", val, dt))
			}
			raw := []byte(val.Str)
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
			buf = append(buf, lenBuf[:]...)
			buf = append(buf, raw...)

		case sql.BoolType:
			if val.Kind != sql.BoolValue {
				panic(fmt.Sprintf("attempt to serialize %s into %s", val, dt))
			}
			if val.B {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}

		default:
			if val.Kind != sql.NumberValue {
				panic(fmt.Sprintf("attempt to serialize %s into %s", val, dt))
			}
			min, max := integerBounds(dt)
			if val.Num.Cmp(min) < 0 || val.Num.Cmp(max) > 0 {
				panic(fmt.Sprintf("integer overflow while serializing number %s into data type %s", val.Num, dt))
			}
			width := byteLengthOfIntegerType(dt)
			buf = append(buf, bigEndianFixed(val.Num, width)...)
		}
	}
	return buf
}

// bigEndianFixed renders n (which may be negative) as a two's-complement
// big-endian byte slice of exactly width bytes.
func bigEndianFixed(n *big.Int, width int) []byte {
	out := make([]byte, width)
	if n.Sign() >= 0 {
		b := n.Bytes()
		copy(out[width-len(b):], b)
		return out
	}
	// Two's complement: add 2^(8*width) and take the low bytes.
	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
	adjusted := new(big.Int).Add(mod, n)
	b := adjusted.Bytes()
	if len(b) > width {
		b = b[len(b)-width:]
	}
	copy(out[width-len(b):], b)
	return out
}

// bigEndianSigned interprets buf as a two's-complement big-endian integer.
func bigEndianSigned(buf []byte) *big.Int {
	n := new(big.Int).SetBytes(buf)
	// If the top bit is set, this is a negative number in two's complement.
	if len(buf) > 0 && buf[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(8*len(buf)))
		n.Sub(n, mod)
	}
	return n
}

// bigEndianUnsigned interprets buf as an unsigned big-endian integer.
func bigEndianUnsigned(buf []byte) *big.Int {
	return new(big.Int).SetBytes(buf)
}

// Deserialize reverses Serialize exactly. A malformed UTF-8 varchar panics —
// this is a fatal corruption error, not a recoverable condition.
func Deserialize(buf []byte, schema []sql.DataType) []sql.Value {
	values := make([]sql.Value, 0, len(schema))
	cursor := 0

	for _, dt := range schema {
		switch dt.Kind {
		case sql.VarcharType:
			length := int(binary.LittleEndian.Uint32(buf[cursor : cursor+4]))
			cursor += 4
			raw := buf[cursor : cursor+length]
			if !utf8.Valid(raw) {
				panic("corrupt varchar: invalid UTF-8")
			}
			values = append(values, sql.VString(string(raw)))
			cursor += length

		case sql.BoolType:
			values = append(values, sql.VBool(buf[cursor] != 0))
			cursor++

		default:
			width := byteLengthOfIntegerType(dt)
			raw := buf[cursor : cursor+width]
			var n *big.Int
			if dt.Kind == sql.UnsignedIntType || dt.Kind == sql.UnsignedBigIntType {
				n = bigEndianUnsigned(raw)
			} else {
				n = bigEndianSigned(raw)
			}
			values = append(values, sql.VBigNumber(n))
			cursor += width
		}
	}

	return values
}

// IntegerBounds exposes integerBounds to callers outside this package (the
// analyzer range-checks integer literals before the codec ever sees them).
func IntegerBounds(dt sql.DataType) (min, max *big.Int) {
	return integerBounds(dt)
}

// SerializeKey encodes a single scalar value restricted to a key column's
// type, used for ExactMatch/RangeScan bound serialization and for index
// entries.
func SerializeKey(dt sql.DataType, v sql.Value) []byte {
	return Serialize([]sql.DataType{dt}, []sql.Value{v})
}

// DeserializeKey reverses SerializeKey.
func DeserializeKey(buf []byte, dt sql.DataType) sql.Value {
	return Deserialize(buf, []sql.DataType{dt})[0]
}
