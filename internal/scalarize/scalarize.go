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

// Package scalarize implements §4.3: rewriting element-wise arithmetic and
// bitwise ops on array-typed (or pointer-to-array-typed) operands into an
// explicit index loop over element pointers. The rewrite is
// position-preserving: every pre-existing label keeps pointing at the same
// logical instruction after the splice.
package scalarize

import (
	"fmt"

	"ember/internal/diag"
	"ember/internal/ir"
)

// Scalarize rewrites fn in place. Run after Infer/Check have already
// confirmed fn type-checks: Scalarize does not re-validate, it only
// recognizes the array/pointer-to-array shape the checker already proved
// consistent across dest/lhs/rhs.
func Scalarize(fn *ir.FunctionIR) (err error) {
	defer diag.Recover(&err)
	(&scalarizer{fn: fn}).run()
	return nil
}

type scalarizer struct {
	fn         *ir.FunctionIR
	labelCount int
}

func (s *scalarizer) run() {
	fn := s.fn
	if fn.IsTypeOnly() {
		return
	}
	n := len(fn.Instructions)
	mapping := make([]int32, n+1)
	out := make([]ir.Instruction, 0, n)

	// Snapshot the labels that exist before the splice: tryScalarize mints
	// fresh loop_start/loop_end labels as it goes, and those must keep the
	// positions they were just defined at, not get remapped a second time
	// through an old-instruction-index table they were never part of.
	preExisting := make(map[ir.LabelID]bool, len(fn.Labels))
	for id := range fn.Labels {
		preExisting[id] = true
	}

	for i := 0; i < n; i++ {
		mapping[i] = int32(len(out))
		instr := fn.Instructions[i]
		if block, loopStart, loopEnd, ok := s.tryScalarize(instr); ok {
			base := int32(len(out))
			out = append(out, block...)
			if err := fn.DefineLabel(loopStart, base+1); err != nil {
				diag.Raise(diag.StructuralError, "%s", err)
			}
			if err := fn.DefineLabel(loopEnd, base+int32(len(block))); err != nil {
				diag.Raise(diag.StructuralError, "%s", err)
			}
			continue
		}
		out = append(out, instr)
	}
	mapping[n] = int32(len(out))
	fn.Instructions = out

	for id, pos := range fn.Labels {
		if !preExisting[id] {
			continue
		}
		if pos < 0 || int(pos) > n {
			continue
		}
		fn.Labels[id] = mapping[pos]
	}
}

func isScalarizableOpcode(op ir.Opcode) bool {
	switch op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv,
		ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr:
		return true
	default:
		return false
	}
}

// tryScalarize builds the replacement instruction block for instr if its
// dest type is array-shaped (directly, or through one pointer layer). The
// two label ids returned are minted but not yet positioned; the caller
// defines them once it knows the block's final offset in the spliced
// instruction array.
func (s *scalarizer) tryScalarize(instr ir.Instruction) (block []ir.Instruction, loopStart, loopEnd ir.LabelID, ok bool) {
	if !isScalarizableOpcode(instr.Opcode) || instr.Three == nil {
		return nil, 0, 0, false
	}
	fn := s.fn
	linkage := fn.Linkage
	th := instr.Three
	destType := fn.TypeOf(th.Dest)
	destInfo, err := linkage.Type(destType)
	if err != nil {
		return nil, 0, 0, false
	}

	isPointerToArray := false
	var elem uint32
	var count uint64
	switch destInfo.Prim {
	case ir.PrimArray:
		elem, count = destInfo.Element, destInfo.Count
	case ir.PrimPointer:
		inner, err := linkage.Type(destInfo.Target)
		if err != nil || inner.Prim != ir.PrimArray {
			return nil, 0, 0, false
		}
		isPointerToArray = true
		elem, count = inner.Element, inner.Count
	default:
		return nil, 0, 0, false
	}

	indexType := linkage.DefineAnonymousType(ir.TypeInfo{Prim: ir.PrimU32})
	boolType := linkage.DefineAnonymousType(ir.TypeInfo{Prim: ir.PrimBoolean})
	elemPtrType := pointerTypeTo(linkage, elem)

	index := fn.NewAnonymousRegister(indexType)
	cmp := fn.NewAnonymousRegister(boolType)
	tmpLhs := fn.NewAnonymousRegister(elemPtrType)
	tmpRhs := fn.NewAnonymousRegister(elemPtrType)
	tmpDest := fn.NewAnonymousRegister(elemPtrType)

	zero := fn.InternConstant(indexType, int64(0))
	one := fn.InternConstant(indexType, int64(1))
	limit := fn.InternConstant(indexType, int64(count))

	loopStart = fn.NewLabel(s.freshLabelName("loop_start"))
	loopEnd = fn.NewLabel(s.freshLabelName("loop_end"))

	getp := ir.OpAGetP
	if isPointerToArray {
		getp = ir.OpAPGetP
	}

	block = []ir.Instruction{
		{Opcode: ir.OpMove, Two: &ir.TwoOperands{Dest: index, Src: zero}},
		{Opcode: ir.OpGTE, Three: &ir.ThreeOperands{Dest: cmp, Lhs: index, Rhs: limit}},
		{Opcode: ir.OpBranch, Branch: &ir.BranchOperands{Cond: cmp, To: loopEnd}},
		{Opcode: getp, Three: &ir.ThreeOperands{Dest: tmpLhs, Lhs: th.Lhs, Rhs: index}},
		{Opcode: getp, Three: &ir.ThreeOperands{Dest: tmpRhs, Lhs: th.Rhs, Rhs: index}},
		{Opcode: getp, Three: &ir.ThreeOperands{Dest: tmpDest, Lhs: th.Dest, Rhs: index}},
		{Opcode: instr.Opcode, Three: &ir.ThreeOperands{Dest: tmpDest, Lhs: tmpLhs, Rhs: tmpRhs}},
		{Opcode: ir.OpAdd, Three: &ir.ThreeOperands{Dest: index, Lhs: index, Rhs: one}},
		{Opcode: ir.OpJump, Jump: &ir.JumpOperands{To: loopStart}},
	}
	return block, loopStart, loopEnd, true
}

// pointerTypeTo finds an existing pointer-to-elem type or mints a fresh
// anonymous one.
func pointerTypeTo(linkage *ir.Linkage, elem uint32) uint32 {
	for id, info := range linkage.TypeDefs {
		if info.Prim == ir.PrimPointer && info.Target == elem {
			return uint32(id)
		}
	}
	return linkage.DefineAnonymousType(ir.TypeInfo{Prim: ir.PrimPointer, Target: elem})
}

func (s *scalarizer) freshLabelName(kind string) string {
	s.labelCount++
	return fmt.Sprintf("_scalarize_%s_%d", kind, s.labelCount)
}
