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
	"bytes"

	"github.com/mkdb-go/mkdb/sql"
)

// KeyComparator orders two serialized keys belonging to the same relation
// (table or index). It is a capability interface: the B-Tree that actually
// owns key ordering is out of scope, but every plan operator that walks a
// relation (ExactMatch, RangeScan, KeyScan) needs one to know where it is.
type KeyComparator interface {
	// Compare returns <0, 0, >0 as a < b, a == b, a > b.
	Compare(a, b []byte) int
}

// KeyComparatorFor returns the KeyComparator appropriate for a column's
// DataType: fixed-width big-endian memcmp for integer keys (memcmp already
// respects magnitude because the codec stores two's-complement big-endian
// integers with the sign bit first, except for signed negative values,
// which memcmp alone cannot order against positives — see
// signedIntComparator) and lexicographic byte comparison for varchar keys.
func KeyComparatorFor(dt sql.DataType) KeyComparator {
	switch dt.Kind {
	case sql.IntType, sql.BigIntType:
		return signedIntComparator{}
	case sql.UnsignedIntType, sql.UnsignedBigIntType:
		return memcmpComparator{}
	case sql.VarcharType:
		return varcharComparator{}
	default:
		panic("KeyComparatorFor: unsupported key type " + dt.String())
	}
}

// memcmpComparator orders keys by raw byte comparison. Correct for unsigned
// big-endian integers.
type memcmpComparator struct{}

func (memcmpComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// varcharComparator orders serialized Varchar keys by their UTF-8 bytes,
// skipping the 4-byte length prefix the codec writes first (Go's
// lexicographic order on UTF-8 bytes matches Unicode scalar value order for
// valid text).
type varcharComparator struct{}

func (varcharComparator) Compare(a, b []byte) int { return bytes.Compare(a[4:], b[4:]) }

// signedIntComparator orders two's-complement big-endian signed integers.
// Flipping the sign bit before comparing turns two's-complement ordering
// into the same unsigned ordering memcmp already gives correctly, the
// standard trick for sorting signed integers by byte value.
type signedIntComparator struct{}

func (signedIntComparator) Compare(a, b []byte) int {
	return bytes.Compare(flipSign(a), flipSign(b))
}

func flipSign(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	if len(out) > 0 {
		out[0] ^= 0x80
	}
	return out
}
