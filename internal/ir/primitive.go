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

import (
	"strings"

	"golang.org/x/exp/slices"
)

// Primitive is the closed set of type kinds a TypeInfo can carry. struct,
// union, array and pointer are composite markers whose payload lives beside
// Prim in TypeInfo; unknown means "not yet defined".
type Primitive int

const (
	PrimUnknown Primitive = iota
	PrimU8
	PrimS8
	PrimU16
	PrimS16
	PrimU32
	PrimS32
	PrimU64
	PrimS64
	PrimF32
	PrimF64
	PrimPointer
	PrimBoolean
	PrimStruct
	PrimUnion
	PrimArray
	PrimVoid
)

type primitiveEntry struct {
	name string
	prim Primitive
}

// primitiveTable is kept sorted by name so lookups are a binary search
// rather than a map probe, matching the "binary-searchable" static table
// called for by the primitive/opcode table component.
var primitiveTable = []primitiveEntry{
	{"boolean", PrimBoolean},
	{"f32", PrimF32},
	{"f64", PrimF64},
	{"pointer", PrimPointer},
	{"s16", PrimS16},
	{"s32", PrimS32},
	{"s64", PrimS64},
	{"s8", PrimS8},
	{"struct", PrimStruct},
	{"u16", PrimU16},
	{"u32", PrimU32},
	{"u64", PrimU64},
	{"u8", PrimU8},
	{"union", PrimUnion},
	{"unknown", PrimUnknown},
	{"array", PrimArray},
	{"void", PrimVoid},
}

func init() {
	slices.SortFunc(primitiveTable, func(a, b primitiveEntry) int {
		return strings.Compare(a.name, b.name)
	})
}

// LookupPrimitive resolves a surface-syntax primitive name to its enum
// value. Ok is false for names outside the closed set.
func LookupPrimitive(name string) (Primitive, bool) {
	idx, found := slices.BinarySearchFunc(primitiveTable, primitiveEntry{name: name}, func(a, b primitiveEntry) int {
		return strings.Compare(a.name, b.name)
	})
	if !found {
		return PrimUnknown, false
	}
	return primitiveTable[idx].prim, true
}

func (p Primitive) String() string {
	switch p {
	case PrimUnknown:
		return "unknown"
	case PrimU8:
		return "u8"
	case PrimS8:
		return "s8"
	case PrimU16:
		return "u16"
	case PrimS16:
		return "s16"
	case PrimU32:
		return "u32"
	case PrimS32:
		return "s32"
	case PrimU64:
		return "u64"
	case PrimS64:
		return "s64"
	case PrimF32:
		return "f32"
	case PrimF64:
		return "f64"
	case PrimPointer:
		return "pointer"
	case PrimBoolean:
		return "boolean"
	case PrimStruct:
		return "struct"
	case PrimUnion:
		return "union"
	case PrimArray:
		return "array"
	case PrimVoid:
		return "void"
	default:
		return "<bad primitive>"
	}
}

// IntroducibleViaPrimOp reports whether this primitive may be defined via
// the plain `type-prim` op. void/struct/union/pointer/array each have a
// dedicated defining op instead (§3.3).
func (p Primitive) IntroducibleViaPrimOp() bool {
	switch p {
	case PrimVoid, PrimStruct, PrimUnion, PrimPointer, PrimArray, PrimUnknown:
		return false
	default:
		return true
	}
}

func (p Primitive) IsInteger() bool {
	switch p {
	case PrimU8, PrimS8, PrimU16, PrimS16, PrimU32, PrimS32, PrimU64, PrimS64:
		return true
	default:
		return false
	}
}

func (p Primitive) IsFloat() bool {
	return p == PrimF32 || p == PrimF64
}

func (p Primitive) IsNumeric() bool {
	return p.IsInteger() || p.IsFloat()
}
