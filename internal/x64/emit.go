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

package x64

import (
	"fmt"

	"ember/internal/diag"
	"ember/internal/ir"
)

func (g *generator) emitFunction(fn *ir.FunctionIR) {
	for _, t := range fn.Types {
		if info, err := g.linkage.Type(t); err == nil && info.Prim.IsFloat() {
			diag.Raise(diag.LoweringError, "floating-point arithmetic not supported on x64 target")
		}
	}
	l := g.layoutFunction(fn)
	g.emitf("%s:\n", *fn.LinkName)
	g.emitf("  push rbp\n  mov rbp, rsp\n  sub rsp, %d\n", l.frameSize)
	for _, name := range l.callee {
		g.emitf("  push %s\n", name)
	}

	positions := make(map[int32][]ir.LabelID)
	for id, pos := range fn.Labels {
		positions[pos] = append(positions[pos], id)
	}

	i := 0
	for i < len(fn.Instructions) {
		for _, id := range positions[int32(i)] {
			g.emitf(".L%d:\n", id)
		}
		i += g.emitInstruction(fn, l, positions, i)
	}
	for _, id := range positions[int32(len(fn.Instructions))] {
		g.emitf(".L%d:\n", id)
	}
}

// emitInstruction returns the number of raw Instruction entries consumed:
// 2 when a compare is fused into the following branch, 1+argSlots for
// call/syscall, 1 otherwise.
func (g *generator) emitInstruction(fn *ir.FunctionIR, l *layout, positions map[int32][]ir.LabelID, idx int) int {
	instr := fn.Instructions[idx]
	switch instr.Opcode {
	case ir.OpMove:
		t := instr.Two
		g.emitMove(fn, l, t.Dest, t.Src)
		return 1
	case ir.OpCast, ir.OpBNot:
		t := instr.Two
		if instr.Opcode == ir.OpBNot {
			g.emitf("  mov %s, %s\n  not %s\n", g.operand(fn, l, t.Dest), g.operand(fn, l, t.Src), g.operand(fn, l, t.Dest))
		} else {
			g.emitf("  mov %s, %s\n", g.operand(fn, l, t.Dest), g.operand(fn, l, t.Src))
		}
		return 1
	case ir.OpAddress:
		t := instr.Two
		g.emitf("  lea %s, [%s]\n", g.operand(fn, l, t.Dest), g.baseAddress(fn, l, t.Src))
		return 1
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr,
		ir.OpPointerAdd, ir.OpPointerSubtract:
		g.emitBinary(fn, l, instr.Opcode, instr.Three)
		return 1
	case ir.OpGT, ir.OpLT, ir.OpEQ, ir.OpNEQ, ir.OpGTE, ir.OpLTE:
		return g.emitCompare(fn, l, positions, idx)
	case ir.OpLoad:
		t := instr.Two
		g.emitf("  mov %s, [%s]\n", g.operand(fn, l, t.Dest), g.operand(fn, l, t.Src))
		return 1
	case ir.OpStore:
		t := instr.Two
		g.emitf("  mov [%s], %s\n", g.operand(fn, l, t.Dest), g.operand(fn, l, t.Src))
		return 1
	case ir.OpJump:
		g.emitf("  jmp .L%d\n", instr.Jump.To)
		return 1
	case ir.OpBranch:
		g.emitf("  cmp %s, 0\n  jne .L%d\n", g.operand(fn, l, instr.Branch.Cond), instr.Branch.To)
		return 1
	case ir.OpBranchNot:
		g.emitf("  cmp %s, 0\n  je .L%d\n", g.operand(fn, l, instr.Branch.Cond), instr.Branch.To)
		return 1
	case ir.OpReturn:
		g.emitReturn(fn, l, instr.Ret)
		return 1
	case ir.OpFGetP:
		f := instr.Field
		off := g.fieldOffset(fn, f.St, f.Field)
		g.emitf("  lea %s, [%s]\n", g.operand(fn, l, f.R), offsetExpr(g.baseAddress(fn, l, f.St), int64(off)))
		return 1
	case ir.OpAGetP:
		g.emitGetP(fn, l, instr.Three, false)
		return 1
	case ir.OpAPGetP:
		g.emitGetP(fn, l, instr.Three, true)
		return 1
	case ir.OpCall, ir.OpSyscall:
		return g.emitCall(fn, l, instr, idx)
	case ir.OpLabel, ir.OpArg,
		ir.OpTypePrim, ir.OpTypePointer, ir.OpTypeArray, ir.OpTypeStruct, ir.OpTypeUnion, ir.OpTypeBind:
		// Positional markers, overflow records, and type-forming ops emit no code.
		return 1
	default:
		diag.Raise(diag.LoweringError, "unsupported opcode %s in x64 lowering", instr.Opcode)
	}
	return 1
}

func (g *generator) emitMove(fn *ir.FunctionIR, l *layout, dest, src ir.RegID) {
	destExpr := g.operand(fn, l, dest)
	if src.IsConstant() {
		c := fn.Constants[src.ConstantIndex()]
		if str, ok := c.Value.(string); ok {
			label := g.internStringConstant(str)
			g.emitf("  lea %s, [%s]\n", destExpr, label)
			return
		}
	}
	g.emitf("  mov %s, %s\n", destExpr, g.operand(fn, l, src))
}

// emitBinary emits the scalar form, or -- for the implicit-dereference
// pointer-to-element case left behind by scalarization (§4.3 decision #6)
// -- loads both operands through r15 before the op and writes the result
// back through the dest pointer.
func (g *generator) emitBinary(fn *ir.FunctionIR, l *layout, op ir.Opcode, th *ir.ThreeOperands) {
	if op == ir.OpPointerAdd || op == ir.OpPointerSubtract {
		mnem := "add"
		if op == ir.OpPointerSubtract {
			mnem = "sub"
		}
		dest := g.operand(fn, l, th.Dest)
		g.emitf("  mov %s, %s\n  %s %s, %s\n", dest, g.operand(fn, l, th.Lhs), mnem, dest, g.operand(fn, l, th.Rhs))
		return
	}

	destType := fn.TypeOf(th.Dest)
	info, err := g.linkage.Type(destType)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	if info.Prim == ir.PrimF32 || info.Prim == ir.PrimF64 {
		diag.Raise(diag.LoweringError, "floating-point arithmetic not supported on x64 target")
	}

	if info.Prim == ir.PrimPointer {
		if inner, ierr := g.linkage.Type(info.Target); ierr == nil && inner.Prim == ir.PrimArray {
			info = inner
		}
	}
	if info.Prim == ir.PrimArray {
		diag.Raise(diag.LoweringError, "array-shaped operand of %s reached x64 lowering; run scalarize first", op)
	}

	mnem := asmMnemonic(op)
	if info.Prim != ir.PrimPointer {
		g.emitPlainBinary(fn, l, mnem, th)
		return
	}

	// Pointer-to-scalar: implicit deref on every operand.
	lhsAddr, rhsAddr, destAddr := g.operand(fn, l, th.Lhs), g.operand(fn, l, th.Rhs), g.operand(fn, l, th.Dest)
	g.emitf("  mov r15, %s\n  mov r15, [r15]\n  mov r14, %s\n  mov r14, [r14]\n  %s r15, r14\n",
		lhsAddr, rhsAddr, mnem)
	g.emitf("  mov r14, %s\n  mov [r14], r15\n", destAddr)
}

func (g *generator) emitPlainBinary(fn *ir.FunctionIR, l *layout, mnem string, th *ir.ThreeOperands) {
	dest, lhs, rhs := g.operand(fn, l, th.Dest), g.operand(fn, l, th.Lhs), g.operand(fn, l, th.Rhs)
	if isShift(mnem) && rhs != "cl" {
		// Shift count must be in cl.
		g.emitf("  mov %s, %s\n  mov rcx, %s\n  %s %s, cl\n", dest, lhs, rhs, mnem, dest)
		return
	}
	if mnem == "idiv" {
		g.emitf("  mov rax, %s\n  cqo\n  mov r15, %s\n  idiv r15\n  mov %s, rax\n", lhs, rhs, dest)
		return
	}
	if isSpilled(l, th.Lhs) && isSpilled(l, th.Rhs) {
		// Two-memory-operand fix-up: r15 is reserved by needsScratch.
		g.emitf("  mov r15, %s\n  %s r15, %s\n  mov %s, r15\n", lhs, mnem, rhs, dest)
		return
	}
	g.emitf("  mov %s, %s\n  %s %s, %s\n", dest, lhs, mnem, dest, rhs)
}

func isShift(mnem string) bool { return mnem == "shl" || mnem == "shr" }

func asmMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpAdd:
		return "add"
	case ir.OpSub:
		return "sub"
	case ir.OpMul:
		return "imul"
	case ir.OpDiv:
		return "idiv"
	case ir.OpBAnd:
		return "and"
	case ir.OpBOr:
		return "or"
	case ir.OpBXor:
		return "xor"
	case ir.OpShl:
		return "shl"
	case ir.OpShr:
		return "shr"
	default:
		return "?"
	}
}

// emitCompare fuses into the following branch/branch-not when it targets
// the compare's own dest and that instruction index is not itself a label
// target (fusing would otherwise silently drop a jump target). Otherwise
// it renders a cmp + setCC sequence (§4.5).
func (g *generator) emitCompare(fn *ir.FunctionIR, l *layout, positions map[int32][]ir.LabelID, idx int) int {
	instr := fn.Instructions[idx]
	th := instr.Three
	lhs, rhs := g.operand(fn, l, th.Lhs), g.operand(fn, l, th.Rhs)

	if idx+1 < len(fn.Instructions) && len(positions[int32(idx+1)]) == 0 {
		next := fn.Instructions[idx+1]
		if (next.Opcode == ir.OpBranch || next.Opcode == ir.OpBranchNot) && next.Branch.Cond == th.Dest {
			invert := next.Opcode == ir.OpBranchNot
			g.emitf("  cmp %s, %s\n  %s .L%d\n", lhs, rhs, jccMnemonic(instr.Opcode, invert), next.Branch.To)
			return 2
		}
	}

	dest := g.operand(fn, l, th.Dest)
	destByte := byteReg(dest)
	if _, spilled := l.spill[th.Dest]; spilled {
		destByte = "al"
	}
	g.emitf("  cmp %s, %s\n  %s %s\n", lhs, rhs, setMnemonic(instr.Opcode), destByte)
	if _, spilled := l.spill[th.Dest]; spilled {
		g.emitf("  movzx rax, al\n  mov %s, rax\n", dest)
	} else {
		g.emitf("  movzx %s, %s\n", dest, destByte)
	}
	return 1
}

func jccMnemonic(op ir.Opcode, invert bool) string {
	m := map[ir.Opcode]string{ir.OpGT: "jg", ir.OpLT: "jl", ir.OpEQ: "je", ir.OpNEQ: "jne", ir.OpGTE: "jge", ir.OpLTE: "jle"}
	inv := map[ir.Opcode]string{ir.OpGT: "jle", ir.OpLT: "jge", ir.OpEQ: "jne", ir.OpNEQ: "je", ir.OpGTE: "jl", ir.OpLTE: "jg"}
	if invert {
		return inv[op]
	}
	return m[op]
}

func setMnemonic(op ir.Opcode) string {
	switch op {
	case ir.OpGT:
		return "setg"
	case ir.OpLT:
		return "setl"
	case ir.OpEQ:
		return "sete"
	case ir.OpNEQ:
		return "setne"
	case ir.OpGTE:
		return "setge"
	case ir.OpLTE:
		return "setle"
	default:
		return "sete"
	}
}

func (g *generator) emitReturn(fn *ir.FunctionIR, l *layout, ret *ir.RetOperands) {
	if ret.HasValue {
		if ret.Value.IsConstant() {
			c := fn.Constants[ret.Value.ConstantIndex()]
			if str, ok := c.Value.(string); ok {
				g.emitf("  lea rax, [%s]\n", g.internStringConstant(str))
			} else {
				g.emitf("  mov rax, %s\n", g.operand(fn, l, ret.Value))
			}
		} else if name, ok := l.reg[ret.Value]; ok && name == "rax" {
			// already in place
		} else {
			g.emitf("  mov rax, %s\n", g.operand(fn, l, ret.Value))
		}
	}
	for i := len(l.callee) - 1; i >= 0; i-- {
		g.emitf("  pop %s\n", l.callee[i])
	}
	g.buf += "  leave\n  ret\n"
}

// baseAddress renders the bare (bracket-free) address expression for a
// register holding a memory-resident aggregate: its spill slot's low
// address. Only meaningful for spilled registers; used by address/agetp/
// fgetp lowering.
func (g *generator) baseAddress(fn *ir.FunctionIR, l *layout, r ir.RegID) string {
	if off, ok := l.spill[r]; ok {
		return fmt.Sprintf("rbp - %d", off)
	}
	return g.operand(fn, l, r)
}

func offsetExpr(base string, delta int64) string {
	if delta == 0 {
		return base
	}
	if delta > 0 {
		return fmt.Sprintf("%s + %d", base, delta)
	}
	return fmt.Sprintf("%s - %d", base, -delta)
}

// emitGetP lowers agetp/apgetp to a lea computing &base.els[index]. A
// constant index folds directly into the displacement; a register index
// needs its own index-register term, routed through r15 if it is itself
// spilled (two-memory-operand rule).
func (g *generator) emitGetP(fn *ir.FunctionIR, l *layout, th *ir.ThreeOperands, pointerBase bool) {
	arrType := fn.TypeOf(th.Lhs)
	info, err := g.linkage.Type(arrType)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	if pointerBase {
		info, err = g.linkage.Type(info.Target)
		if err != nil {
			diag.Raise(diag.LoweringError, "%s", err)
		}
	}
	elemSize, _ := typeLayout(g.linkage, info.Element)

	var base string
	if pointerBase {
		base = g.operand(fn, l, th.Lhs)
		if isSpilled(l, th.Lhs) {
			g.emitf("  mov r15, %s\n", base)
			base = "r15"
		}
	} else {
		base = g.baseAddress(fn, l, th.Lhs)
	}

	dest := g.operand(fn, l, th.Dest)
	if th.Rhs.IsConstant() {
		c := fn.Constants[th.Rhs.ConstantIndex()]
		n, _ := c.Value.(int64)
		g.emitf("  lea %s, [%s]\n", dest, offsetExpr(base, n*int64(elemSize)))
		return
	}
	idx := g.operand(fn, l, th.Rhs)
	if isSpilled(l, th.Rhs) {
		g.emitf("  mov r15, %s\n", idx)
		idx = "r15"
	}
	g.emitf("  lea %s, [%s + %s*%d]\n", dest, base, idx, elemSize)
}

// fieldOffset recomputes the cumulative byte offset of field index in st's
// struct type, mirroring typeLayout's struct accumulation.
func (g *generator) fieldOffset(fn *ir.FunctionIR, st ir.RegID, field uint32) uint64 {
	info, err := g.linkage.Type(fn.TypeOf(st))
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	var total uint64
	for i := uint32(0); i < field; i++ {
		f := g.linkage.Fields[info.FieldStart+i]
		size, align := typeLayout(g.linkage, f.TypeID)
		total = alignUp64(total, align) + size
	}
	_, align := typeLayout(g.linkage, g.linkage.Fields[info.FieldStart+field].TypeID)
	return alignUp64(total, align)
}

// emitCall emits a call/syscall through the push-mov-call-pop skeleton of
// §4.5: each argument register is pushed and loaded from its source in
// turn, the call (or syscall) made, result moved to dest, then argument
// registers restored in reverse order. Arguments beyond the convention's
// register count are pushed right-to-left ahead of the register dance.
func (g *generator) emitCall(fn *ir.FunctionIR, l *layout, instr ir.Instruction, idx int) int {
	cl := instr.Call
	argSlots := (int(cl.ArgCount) + 2) / 3
	args := make([]ir.RegID, 0, cl.ArgCount)
	for s := 0; s < argSlots; s++ {
		argInstr := fn.Instructions[idx+1+s]
		for _, v := range argInstr.Arg.Values {
			if len(args) >= int(cl.ArgCount) {
				break
			}
			args = append(args, v)
		}
	}

	if instr.Opcode == ir.OpSyscall {
		g.emitSyscall(fn, l, cl, args)
		return 1 + argSlots
	}

	callee := g.calleeOperand(fn, l, cl.Callee)
	argRegs := argRegsFor(cl.CC)
	regArgCount := len(args)
	if regArgCount > len(argRegs) {
		regArgCount = len(argRegs)
	}
	for i := len(args) - 1; i >= len(argRegs); i-- {
		g.emitf("  push %s\n", g.operand(fn, l, args[i]))
	}
	for i := 0; i < regArgCount; i++ {
		g.emitf("  push %s\n", argRegs[i])
		g.emitf("  mov %s, %s\n", argRegs[i], g.operand(fn, l, args[i]))
	}
	g.emitf("  call %s\n", callee)
	if cl.HasDest {
		g.emitf("  mov %s, rax\n", g.operand(fn, l, cl.Dest))
	}
	for i := regArgCount - 1; i >= 0; i-- {
		g.emitf("  pop %s\n", argRegs[i])
	}
	if len(args) > len(argRegs) {
		g.emitf("  add rsp, %d\n", (len(args)-len(argRegs))*8)
	}
	return 1 + argSlots
}

var syscallArgRegs = []string{"rdi", "rsi", "rdx", "r10", "r8", "r9"}

func (g *generator) emitSyscall(fn *ir.FunctionIR, l *layout, cl *ir.CallOperands, args []ir.RegID) {
	g.emitf("  mov rax, %s\n", g.operand(fn, l, cl.Callee))
	for i, a := range args {
		if i >= len(syscallArgRegs) {
			break
		}
		g.emitf("  mov %s, %s\n", syscallArgRegs[i], g.operand(fn, l, a))
	}
	g.buf += "  syscall\n"
	if cl.HasDest {
		g.emitf("  mov %s, rax\n", g.operand(fn, l, cl.Dest))
	}
}

// calleeOperand renders a call's callee: a string/symbol constant names a
// linked function directly (its NASM label), not a .rodata string constant
// (mirrors internal/cgen's calleeOperand).
func (g *generator) calleeOperand(fn *ir.FunctionIR, l *layout, r ir.RegID) string {
	if r.IsConstant() {
		if s, ok := fn.Constants[r.ConstantIndex()].Value.(string); ok {
			return s
		}
	}
	return g.operand(fn, l, r)
}

// operand renders a read-position operand: a register name, a spilled
// slot's memory reference, or an inline constant.
func (g *generator) operand(fn *ir.FunctionIR, l *layout, r ir.RegID) string {
	if r.IsConstant() {
		return g.constantOperand(fn.Constants[r.ConstantIndex()])
	}
	if name, ok := l.reg[r]; ok {
		return name
	}
	if off, ok := l.spill[r]; ok {
		return fmt.Sprintf("[rbp - %d]", off)
	}
	diag.Raise(diag.LoweringError, "register %s has no x64 assignment", fn.RegisterName(r))
	return ""
}

func (g *generator) constantOperand(c ir.Constant) string {
	switch v := c.Value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		diag.Raise(diag.LoweringError, "floating-point arithmetic not supported on x64 target")
	case string:
		return g.internStringConstant(v)
	case []any:
		diag.Raise(diag.LoweringError, "array constant literals are not supported on x64 target")
	}
	return "0"
}

func (g *generator) internStringConstant(s string) string {
	g.constCount++
	label := fmt.Sprintf("CONST%d", g.constCount)
	g.rodata += fmt.Sprintf("%s: db %s\n", label, nasmStringBytes(s))
	return label
}

func nasmStringBytes(s string) string {
	out := ""
	for i, b := range []byte(s) {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", b)
	}
	if out != "" {
		out += ", "
	}
	return out + "0"
}
