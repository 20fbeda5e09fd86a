// Copyright (c) 2024 The Ember Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ir

// TypeInfo is one linkage-wide type definition. The active payload fields
// are chosen by Prim; see §3.3.
type TypeInfo struct {
	Prim Primitive

	// pointer
	Target uint32

	// array
	Element uint32
	Count   uint64

	// struct | union, indexing into Linkage.Fields
	FieldStart uint32
	FieldCount uint32
}

func (t *TypeInfo) IsDefined() bool { return t.Prim != PrimUnknown }

// Field is one slot in a struct/union's field pool.
type Field struct {
	TypeID uint32
}
