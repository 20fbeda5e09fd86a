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

// Instruction is a tagged record; which payload field is non-nil is
// determined by Opcode.Shape(). Source position is optional: Line <= 0
// means "no position recorded".
type Instruction struct {
	Opcode Opcode
	Line   int32
	Column int32

	Three       *ThreeOperands
	Two         *TwoOperands
	Call        *CallOperands
	Arg         *ArgOperands
	Jump        *JumpOperands
	Branch      *BranchOperands
	Ret         *RetOperands
	Label       *LabelOperands
	Field       *FieldOperands
	TypePrim    *TypePrimOperands
	TypePointer *TypePointerOperands
	TypeArray   *TypeArrayOperands
	TypeStruct  *TypeStructUnionOperands
	TypeBind    *TypeBindOperands
}

func (i *Instruction) HasPosition() bool { return i.Line > 0 }

// ThreeOperands backs arithmetic, comparison, pointer math and agetp/apgetp.
type ThreeOperands struct {
	Dest RegID
	Lhs  RegID
	Rhs  RegID
}

// TwoOperands backs move, cast, bnot, load, store, address.
type TwoOperands struct {
	Dest RegID
	Src  RegID
}

// CallOperands backs call and syscall. Arguments beyond the 3 that fit in
// one Arg pseudo-instruction overflow into as many following OpArg
// instructions as needed (ceil(ArgCount/3) of them).
type CallOperands struct {
	CC       CallingConvention
	Dest     RegID
	HasDest  bool
	Callee   RegID
	ArgCount uint32
}

// ArgOperands is the variadic-tail pseudo-instruction shared by call
// argument overflow and struct/union field-list overflow.
type ArgOperands struct {
	Values [3]RegID
}

type JumpOperands struct {
	To LabelID
}

type BranchOperands struct {
	Cond RegID
	To   LabelID
}

type RetOperands struct {
	Value    RegID
	HasValue bool
}

type LabelOperands struct {
	ID LabelID
}

// FieldOperands backs fgetp: r = &(st.field).
type FieldOperands struct {
	R     RegID
	St    RegID
	Field uint32
}

type TypePrimOperands struct {
	TypeID uint32
	Prim   Primitive
}

type TypePointerOperands struct {
	TypeID uint32
	Target uint32
}

type TypeArrayOperands struct {
	TypeID  uint32
	Element uint32
	Count   uint64
}

// TypeStructUnionOperands backs type-struct/type-union. FieldCount field
// type ids are carried in FieldCount/3-rounded-up following OpArg
// instructions, mirroring call argument overflow.
type TypeStructUnionOperands struct {
	TypeID     uint32
	IsUnion    bool
	FieldCount uint32
}

type TypeBindOperands struct {
	Dest   RegID
	TypeID uint32
}
