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

import "errors"

// Runtime error sentinels (spec section 7). These are distinct from the
// analyzer's compile-time error classes: they can only be detected while a
// statement is actually executing against storage, so they live at the
// layer that does the executing rather than the one that type-checks
// ahead of time.
var (
	// ErrCorruption signals that bytes read back from a Pager could not be
	// decoded as a valid tuple (e.g. invalid UTF-8 in a varchar payload).
	ErrCorruption = errors.New("storage: corruption detected")

	// ErrUniqueConstraintViolation is returned by a RelationStore mutation
	// (or by plan.Insert/Update, which check before writing) when a write
	// would duplicate a key in a relation that requires uniqueness: every
	// table's clustered key, and every UNIQUE secondary index.
	ErrUniqueConstraintViolation = errors.New("storage: unique constraint violation")

	// ErrIntegerOverflow signals a value computed at runtime (as opposed to
	// a literal, which the analyzer range-checks) that does not fit its
	// target integer type.
	ErrIntegerOverflow = errors.New("storage: integer overflow")

	// ErrStringTooLong signals a runtime-computed string that exceeds its
	// target VARCHAR(max) character limit.
	ErrStringTooLong = errors.New("storage: string too long")
)
