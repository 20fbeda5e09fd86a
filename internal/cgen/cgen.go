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

// Package cgen implements §4.4: a single forward scan emitting portable
// C99 from a type-checked linkage. Unlike internal/x64, cgen does not
// require the scalarization pass to have run first -- arithmetic on
// array-typed operands is emitted directly as nested for loops.
package cgen

import (
	"fmt"

	"ember/internal/diag"
	"ember/internal/ir"
)

const prelude = `#include <stdint.h>
#include <stdbool.h>
#include <sys/syscall.h>

typedef void _t0;
`

// Generate writes the linkage's emitted translation unit: the prelude,
// every type-forming op's typedef in instruction order, then one emission
// block per registered real function, in irs_ordered order.
func Generate(linkage *ir.Linkage) (out string, err error) {
	defer diag.Recover(&err)
	g := &generator{linkage: linkage}
	g.buf += prelude
	g.emitTypedefs()
	for _, fn := range linkage.IRsOrdered {
		if fn.IsTypeOnly() {
			continue
		}
		g.emitFunction(fn)
	}
	return g.buf, nil
}

type generator struct {
	buf     string
	linkage *ir.Linkage
	jCount  int
}

func (g *generator) emitf(format string, args ...any) {
	g.buf += fmt.Sprintf(format, args...)
}

func (g *generator) typeName(id uint32) string {
	return fmt.Sprintf("_t%d", id)
}

// emitTypedefs walks every function (including type-only modules) in
// linkage order and emits one typedef per type-forming instruction it
// carries, in the order those instructions occur -- matching §4.4's
// "emitted in instruction order, one per type-forming op".
func (g *generator) emitTypedefs() {
	for _, fn := range g.linkage.IRsOrdered {
		for _, instr := range fn.Instructions {
			switch instr.Opcode {
			case ir.OpTypePrim:
				g.emitPrimTypedef(instr.TypePrim)
			case ir.OpTypePointer:
				p := instr.TypePointer
				g.emitf("typedef %s *%s;\n", g.typeName(p.Target), g.typeName(p.TypeID))
			case ir.OpTypeArray:
				a := instr.TypeArray
				g.emitf("typedef struct { %s els[%d]; } %s;\n", g.typeName(a.Element), a.Count, g.typeName(a.TypeID))
			case ir.OpTypeStruct, ir.OpTypeUnion:
				g.emitStructUnionTypedef(instr.TypeStruct)
			}
		}
	}
}

func (g *generator) emitPrimTypedef(p *ir.TypePrimOperands) {
	var base string
	switch p.Prim {
	case ir.PrimU8:
		base = "uint8_t"
	case ir.PrimS8:
		base = "int8_t"
	case ir.PrimU16:
		base = "uint16_t"
	case ir.PrimS16:
		base = "int16_t"
	case ir.PrimU32:
		base = "uint32_t"
	case ir.PrimS32:
		base = "int32_t"
	case ir.PrimU64:
		base = "uint64_t"
	case ir.PrimS64:
		base = "int64_t"
	case ir.PrimF32:
		base = "float"
	case ir.PrimF64:
		base = "double"
	case ir.PrimBoolean:
		base = "bool"
	default:
		diag.Raise(diag.LoweringError, "unsupported primitive %s in C typedef", p.Prim)
	}
	g.emitf("typedef %s %s;\n", base, g.typeName(p.TypeID))
}

func (g *generator) emitStructUnionTypedef(s *ir.TypeStructUnionOperands) {
	kind := "struct"
	if s.IsUnion {
		kind = "union"
	}
	info, err := g.linkage.Type(s.TypeID)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	g.emitf("typedef %s { ", kind)
	for i := uint32(0); i < info.FieldCount; i++ {
		field := g.linkage.Fields[info.FieldStart+i]
		g.emitf("%s _f%d; ", g.typeName(field.TypeID), i)
	}
	g.emitf("} %s;\n", g.typeName(s.TypeID))
}

func (g *generator) emitFunction(fn *ir.FunctionIR) {
	retType := "void"
	if fn.HasReturnType {
		retType = g.typeName(fn.ReturnType)
	}
	params := make([]string, fn.ParameterCount)
	for i := range params {
		params[i] = fmt.Sprintf("%s _r%d", g.typeName(fn.TypeOf(ir.RegID(i))), i)
	}
	g.emitf("%s %s(", retType, *fn.LinkName)
	for i, p := range params {
		if i > 0 {
			g.buf += ", "
		}
		g.buf += p
	}
	if len(params) == 0 {
		g.buf += "void"
	}
	g.buf += ") {\n"

	for r := ir.RegID(fn.ParameterCount); int(r) < len(fn.Types); r++ {
		g.emitf("  %s _r%d;\n", g.typeName(fn.TypeOf(r)), r)
	}

	positions := make(map[int32][]ir.LabelID)
	for id, pos := range fn.Labels {
		positions[pos] = append(positions[pos], id)
	}

	i := 0
	for i < len(fn.Instructions) {
		for _, id := range positions[int32(i)] {
			g.emitf("_label_%d:;\n", id)
		}
		instr := fn.Instructions[i]
		i += g.emitInstruction(fn, instr, i)
	}
	for _, id := range positions[int32(len(fn.Instructions))] {
		g.emitf("_label_%d:;\n", id)
	}
	g.buf += "}\n"
}

// emitInstruction emits one logical instruction and returns how many raw
// Instruction entries it consumed (more than one for call/arg overflow).
func (g *generator) emitInstruction(fn *ir.FunctionIR, instr ir.Instruction, idx int) int {
	switch instr.Opcode {
	case ir.OpTypePrim, ir.OpTypePointer, ir.OpTypeArray, ir.OpTypeStruct, ir.OpTypeUnion, ir.OpTypeBind:
		// Type-forming ops were already emitted by emitTypedefs, and bind is
		// reflected in the register declarations; nothing to lower here.
		return 1
	}
	if instr.HasPosition() {
		g.emitf("#line %d\n", instr.Line)
	}
	switch instr.Opcode {
	case ir.OpMove:
		t := instr.Two
		g.emitf("  %s = %s;\n", g.operand(fn, t.Dest), g.operand(fn, t.Src))
	case ir.OpCast:
		t := instr.Two
		g.emitf("  %s = (%s)%s;\n", g.operand(fn, t.Dest), g.typeName(fn.TypeOf(t.Dest)), g.operand(fn, t.Src))
	case ir.OpBNot:
		t := instr.Two
		g.emitf("  %s = ~%s;\n", g.operand(fn, t.Dest), g.operand(fn, t.Src))
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr:
		g.emitArith(fn, instr.Opcode, instr.Three)
	case ir.OpPointerAdd:
		th := instr.Three
		g.emitf("  %s = %s + %s;\n", g.operand(fn, th.Dest), g.operand(fn, th.Lhs), g.operand(fn, th.Rhs))
	case ir.OpPointerSubtract:
		th := instr.Three
		g.emitf("  %s = %s - %s;\n", g.operand(fn, th.Dest), g.operand(fn, th.Lhs), g.operand(fn, th.Rhs))
	case ir.OpGT, ir.OpLT, ir.OpEQ, ir.OpNEQ, ir.OpGTE, ir.OpLTE:
		th := instr.Three
		g.emitf("  %s = (%s %s %s);\n", g.operand(fn, th.Dest), g.operand(fn, th.Lhs), cOperator(instr.Opcode), g.operand(fn, th.Rhs))
	case ir.OpLoad:
		t := instr.Two
		g.emitf("  %s = *%s;\n", g.operand(fn, t.Dest), g.operand(fn, t.Src))
	case ir.OpStore:
		t := instr.Two
		g.emitf("  *%s = %s;\n", g.operand(fn, t.Dest), g.operand(fn, t.Src))
	case ir.OpAddress:
		t := instr.Two
		g.emitf("  %s = &%s;\n", g.operand(fn, t.Dest), g.operand(fn, t.Src))
	case ir.OpJump:
		g.emitf("  goto _label_%d;\n", instr.Jump.To)
	case ir.OpBranch:
		g.emitf("  if (%s) goto _label_%d;\n", g.operand(fn, instr.Branch.Cond), instr.Branch.To)
	case ir.OpBranchNot:
		g.emitf("  if (!%s) goto _label_%d;\n", g.operand(fn, instr.Branch.Cond), instr.Branch.To)
	case ir.OpReturn:
		if instr.Ret.HasValue {
			g.emitf("  return %s;\n", g.operand(fn, instr.Ret.Value))
		} else {
			g.buf += "  return;\n"
		}
	case ir.OpFGetP:
		f := instr.Field
		g.emitf("  %s = &(%s._f%d);\n", g.operand(fn, f.R), g.operand(fn, f.St), f.Field)
	case ir.OpAGetP:
		th := instr.Three
		g.emitf("  %s = &(%s.els[%s]);\n", g.operand(fn, th.Dest), g.operand(fn, th.Lhs), g.operand(fn, th.Rhs))
	case ir.OpAPGetP:
		th := instr.Three
		g.emitf("  %s = &(%s->els[%s]);\n", g.operand(fn, th.Dest), g.operand(fn, th.Lhs), g.operand(fn, th.Rhs))
	case ir.OpCall, ir.OpSyscall:
		return g.emitCall(fn, instr, idx)
	case ir.OpLabel, ir.OpArg:
		// no-op: labels are positional markers, arg overflow is consumed by call/struct handling.
	default:
		diag.Raise(diag.LoweringError, "unsupported opcode %s in C lowering", instr.Opcode)
	}
	return 1
}

func cOperator(op ir.Opcode) string {
	switch op {
	case ir.OpGT:
		return ">"
	case ir.OpLT:
		return "<"
	case ir.OpEQ:
		return "=="
	case ir.OpNEQ:
		return "!="
	case ir.OpGTE:
		return ">="
	case ir.OpLTE:
		return "<="
	case ir.OpBAnd:
		return "&"
	case ir.OpBOr:
		return "|"
	case ir.OpBXor:
		return "^"
	case ir.OpShl:
		return "<<"
	case ir.OpShr:
		return ">>"
	case ir.OpAdd:
		return "+"
	case ir.OpSub:
		return "-"
	case ir.OpMul:
		return "*"
	case ir.OpDiv:
		return "/"
	default:
		return "?"
	}
}

// emitArith emits a scalar op directly, or -- when the operands are
// array/pointer-to-array-shaped -- nested for loops indexing every array
// dimension before falling back to the scalar expression at the innermost
// level (§4.4).
func (g *generator) emitArith(fn *ir.FunctionIR, op ir.Opcode, th *ir.ThreeOperands) {
	destType := fn.TypeOf(th.Dest)
	info, err := g.linkage.Type(destType)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}

	destExpr, lhsExpr, rhsExpr := g.operand(fn, th.Dest), g.operand(fn, th.Lhs), g.operand(fn, th.Rhs)

	deref := "."
	isPointer := info.Prim == ir.PrimPointer
	if isPointer {
		deref = "->"
		destExpr, lhsExpr, rhsExpr = "("+destExpr+")", "("+lhsExpr+")", "("+rhsExpr+")"
		info, err = g.linkage.Type(info.Target)
		if err != nil {
			diag.Raise(diag.LoweringError, "%s", err)
		}
	}

	if info.Prim != ir.PrimArray {
		// Plain scalar, or one pointer layer over a scalar element (§4.3
		// decision #6): the latter is an implicit dereference on every
		// operand, not pointer arithmetic.
		if isPointer {
			destExpr, lhsExpr, rhsExpr = "*"+destExpr, "*"+lhsExpr, "*"+rhsExpr
		}
		g.emitf("  %s = (%s %s %s);\n", destExpr, lhsExpr, cOperator(op), rhsExpr)
		return
	}

	g.emitArrayLoop(op, destExpr+deref, lhsExpr+deref, rhsExpr+deref, destType, info)
}

// emitArrayLoop recurses one array dimension at a time, named _jN per
// nesting depth, until it reaches a non-array element type.
func (g *generator) emitArrayLoop(op ir.Opcode, destBase, lhsBase, rhsBase string, typeID uint32, info ir.TypeInfo) {
	idx := fmt.Sprintf("_j%d", g.jCount)
	g.jCount++
	g.emitf("  for (uint32_t %s = 0; %s < %d; %s++) {\n", idx, idx, info.Count, idx)

	destElem := fmt.Sprintf("%sels[%s]", destBase, idx)
	lhsElem := fmt.Sprintf("%sels[%s]", lhsBase, idx)
	rhsElem := fmt.Sprintf("%sels[%s]", rhsBase, idx)

	elemInfo, err := g.linkage.Type(info.Element)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	if elemInfo.Prim == ir.PrimArray {
		g.emitArrayLoop(op, destElem+".", lhsElem+".", rhsElem+".", info.Element, elemInfo)
	} else {
		g.emitf("  %s = (%s %s %s);\n", destElem, lhsElem, cOperator(op), rhsElem)
	}
	g.buf += "  }\n"
}

// emitCall emits a call or syscall, gathering its arguments from the
// following OpArg overflow instructions. Returns the total number of raw
// Instruction entries consumed (the call itself plus ceil(argCount/3) arg
// records).
func (g *generator) emitCall(fn *ir.FunctionIR, instr ir.Instruction, idx int) int {
	cl := instr.Call
	argSlots := (int(cl.ArgCount) + 2) / 3
	args := make([]string, 0, cl.ArgCount)
	for s := 0; s < argSlots; s++ {
		argInstr := fn.Instructions[idx+1+s]
		for _, v := range argInstr.Arg.Values {
			if len(args) >= int(cl.ArgCount) {
				break
			}
			args = append(args, g.operand(fn, v))
		}
	}

	callee := "syscall"
	if instr.Opcode == ir.OpCall {
		callee = g.calleeOperand(fn, cl.Callee)
	} else {
		args = append([]string{g.operand(fn, cl.Callee)}, args...)
	}

	call := fmt.Sprintf("%s(%s)", callee, joinArgs(args))
	if cl.HasDest {
		g.emitf("  %s = %s;\n", g.operand(fn, cl.Dest), call)
	} else {
		g.emitf("  %s;\n", call)
	}
	return 1 + argSlots
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}

// calleeOperand renders a call's callee: a string/symbol constant names a
// linked function directly (emitted as a bare C identifier, not a quoted
// string literal), matching §4.2's "string/symbol/raw pointer ⇒ pointer"
// constant rule read in a callee position.
func (g *generator) calleeOperand(fn *ir.FunctionIR, r ir.RegID) string {
	if r.IsConstant() {
		if s, ok := fn.Constants[r.ConstantIndex()].Value.(string); ok {
			return s
		}
	}
	return g.operand(fn, r)
}

// operand renders a read-position operand: a register name, or a constant
// literal.
func (g *generator) operand(fn *ir.FunctionIR, r ir.RegID) string {
	if r.IsConstant() {
		c := fn.Constants[r.ConstantIndex()]
		return g.constantLiteral(c)
	}
	return fmt.Sprintf("_r%d", r)
}

func (g *generator) constantLiteral(c ir.Constant) string {
	switch v := c.Value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case []any:
		elems := make([]string, len(v))
		for i, el := range v {
			elems[i] = g.constantLiteral(ir.Constant{TypeID: c.TypeID, Value: el})
		}
		return fmt.Sprintf("{%s}", joinArgs(elems))
	default:
		return "0"
	}
}
