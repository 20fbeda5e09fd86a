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

// Opcode is the closed tag of the Instruction discriminated union. Dispatch
// on Opcode is meant to be exhaustive everywhere it is switched on.
type Opcode int

const (
	OpInvalid Opcode = iota

	// two-operand shape
	OpMove
	OpCast
	OpBNot
	OpLoad
	OpStore
	OpAddress

	// three-operand shape, arithmetic/bit/compare/array-getp
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
	OpPointerAdd
	OpPointerSubtract
	OpGT
	OpLT
	OpEQ
	OpNEQ
	OpGTE
	OpLTE
	OpAGetP
	OpAPGetP

	// call shape
	OpCall
	OpSyscall

	// arg pseudo-instruction, overflow slots for call args & struct/union fields
	OpArg

	// control flow
	OpJump
	OpBranch
	OpBranchNot
	OpReturn
	OpLabel

	// field access
	OpFGetP

	// type-forming ops
	OpTypePrim
	OpTypePointer
	OpTypeArray
	OpTypeStruct
	OpTypeUnion
	OpTypeBind
)

// Shape identifies which payload field of Instruction is active for a given
// Opcode.
type Shape int

const (
	ShapeThree Shape = iota
	ShapeTwo
	ShapeCall
	ShapeArg
	ShapeJump
	ShapeBranch
	ShapeRet
	ShapeLabel
	ShapeField
	ShapeTypePrim
	ShapeTypePointer
	ShapeTypeArray
	ShapeTypeStructUnion
	ShapeTypeBind
)

type opcodeEntry struct {
	name   string
	opcode Opcode
	shape  Shape
}

var opcodeTable = []opcodeEntry{
	{"move", OpMove, ShapeTwo},
	{"cast", OpCast, ShapeTwo},
	{"bnot", OpBNot, ShapeTwo},
	{"load", OpLoad, ShapeTwo},
	{"store", OpStore, ShapeTwo},
	{"address", OpAddress, ShapeTwo},
	{"add", OpAdd, ShapeThree},
	{"sub", OpSub, ShapeThree},
	{"mul", OpMul, ShapeThree},
	{"div", OpDiv, ShapeThree},
	{"band", OpBAnd, ShapeThree},
	{"bor", OpBOr, ShapeThree},
	{"bxor", OpBXor, ShapeThree},
	{"shl", OpShl, ShapeThree},
	{"shr", OpShr, ShapeThree},
	{"pointer-add", OpPointerAdd, ShapeThree},
	{"pointer-subtract", OpPointerSubtract, ShapeThree},
	{"gt", OpGT, ShapeThree},
	{"lt", OpLT, ShapeThree},
	{"eq", OpEQ, ShapeThree},
	{"neq", OpNEQ, ShapeThree},
	{"gte", OpGTE, ShapeThree},
	{"lte", OpLTE, ShapeThree},
	{"agetp", OpAGetP, ShapeThree},
	{"apgetp", OpAPGetP, ShapeThree},
	{"call", OpCall, ShapeCall},
	{"syscall", OpSyscall, ShapeCall},
	{"arg", OpArg, ShapeArg},
	{"jump", OpJump, ShapeJump},
	{"branch", OpBranch, ShapeBranch},
	{"branch-not", OpBranchNot, ShapeBranch},
	{"return", OpReturn, ShapeRet},
	{"label", OpLabel, ShapeLabel},
	{"fgetp", OpFGetP, ShapeField},
	{"type-prim", OpTypePrim, ShapeTypePrim},
	{"type-pointer", OpTypePointer, ShapeTypePointer},
	{"type-array", OpTypeArray, ShapeTypeArray},
	{"type-struct", OpTypeStruct, ShapeTypeStructUnion},
	{"type-union", OpTypeUnion, ShapeTypeStructUnion},
	{"bind", OpTypeBind, ShapeTypeBind},
}

func init() {
	slices.SortFunc(opcodeTable, func(a, b opcodeEntry) int {
		return strings.Compare(a.name, b.name)
	})
}

// LookupOpcode resolves a tuple's head symbol to its Opcode and Shape. Ok is
// false for an unrecognized opcode name, which the parser turns into a
// parse error.
func LookupOpcode(name string) (Opcode, Shape, bool) {
	idx, found := slices.BinarySearchFunc(opcodeTable, opcodeEntry{name: name}, func(a, b opcodeEntry) int {
		return strings.Compare(a.name, b.name)
	})
	if !found {
		return OpInvalid, 0, false
	}
	e := opcodeTable[idx]
	return e.opcode, e.shape, true
}

func (op Opcode) String() string {
	for _, e := range opcodeTable {
		if e.opcode == op {
			return e.name
		}
	}
	return "<invalid opcode>"
}

func (op Opcode) Shape() Shape {
	for _, e := range opcodeTable {
		if e.opcode == op {
			return e.shape
		}
	}
	return ShapeThree
}

// IsArithmeticLike reports whether op is one of the element-wise
// three-operand ops: arithmetic, bitwise, shift, or compare. Scalarization
// rewrites only the non-compare ones.
func (op Opcode) IsArithmeticLike() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr,
		OpGT, OpLT, OpEQ, OpNEQ, OpGTE, OpLTE:
		return true
	default:
		return false
	}
}

func (op Opcode) IsCompare() bool {
	switch op {
	case OpGT, OpLT, OpEQ, OpNEQ, OpGTE, OpLTE:
		return true
	default:
		return false
	}
}

func (op Opcode) IsIntegerOnly() bool {
	switch op {
	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpBNot:
		return true
	default:
		return false
	}
}
