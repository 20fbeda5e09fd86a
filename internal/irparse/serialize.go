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

package irparse

import (
	"fmt"
	"strings"

	"ember/internal/diag"
	"ember/internal/ir"
)

// Serialize renders linkage back into the tuple surface syntax of §6.2: a
// leading typedefs module (every type-forming instruction across every
// function, in instruction order) followed by one module per registered
// function, in irs_ordered order. Each returned string re-parses on its own
// via ParseReader/Parse, in this order, into an equivalent linkage.
func Serialize(linkage *ir.Linkage) []string {
	modules := []string{serializeTypedefs(linkage)}
	for _, fn := range linkage.IRsOrdered {
		modules = append(modules, serializeFunctionBody(fn))
	}
	return modules
}

// typeDefName is the name a type-forming op's definition position should
// render: the surface name when one was given, else a synthesized but
// globally unique `_t<id>` symbol -- TypeName's own fallback (the
// primitive's bare String()) is not safe to reuse here since several
// anonymous ids can share one primitive.
func typeDefName(linkage *ir.Linkage, id uint32) string {
	if int(id) < len(linkage.TypeNames) && linkage.TypeNames[id] != "" {
		return linkage.TypeNames[id]
	}
	return fmt.Sprintf("_t%d", id)
}

func serializeTypedefs(linkage *ir.Linkage) string {
	var lines []string
	for _, fn := range linkage.IRsOrdered {
		for _, instr := range fn.Instructions {
			switch instr.Opcode {
			case ir.OpTypePrim:
				p := instr.TypePrim
				lines = append(lines, fmt.Sprintf("(type-prim %s %s)", typeDefName(linkage, p.TypeID), p.Prim))
			case ir.OpTypePointer:
				p := instr.TypePointer
				lines = append(lines, fmt.Sprintf("(type-pointer %s %d)", typeDefName(linkage, p.TypeID), p.Target))
			case ir.OpTypeArray:
				a := instr.TypeArray
				lines = append(lines, fmt.Sprintf("(type-array %s %d %d)", typeDefName(linkage, a.TypeID), a.Element, a.Count))
			case ir.OpTypeStruct, ir.OpTypeUnion:
				lines = append(lines, serializeStructUnion(linkage, instr.TypeStruct))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func serializeStructUnion(linkage *ir.Linkage, s *ir.TypeStructUnionOperands) string {
	op := "type-struct"
	if s.IsUnion {
		op = "type-union"
	}
	info, err := linkage.Type(s.TypeID)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	fields := make([]string, info.FieldCount)
	for i := uint32(0); i < info.FieldCount; i++ {
		fields[i] = fmt.Sprintf("%d", linkage.Fields[info.FieldStart+i].TypeID)
	}
	return fmt.Sprintf("(%s %s %s)", op, typeDefName(linkage, s.TypeID), strings.Join(fields, " "))
}

func serializeFunctionBody(fn *ir.FunctionIR) string {
	var lines []string
	if fn.LinkName != nil {
		lines = append(lines, fmt.Sprintf("(link-name %q)", *fn.LinkName))
		lines = append(lines, fmt.Sprintf("(parameter-count %d)", fn.ParameterCount))
	}

	positions := make(map[int32][]ir.LabelID)
	for id, pos := range fn.Labels {
		positions[pos] = append(positions[pos], id)
	}

	for i, instr := range fn.Instructions {
		for _, id := range positions[int32(i)] {
			lines = append(lines, fmt.Sprintf(":%s", fn.LabelName(id)))
		}
		if line := serializeInstruction(fn, instr); line != "" {
			lines = append(lines, line)
		}
	}
	for _, id := range positions[int32(len(fn.Instructions))] {
		lines = append(lines, fmt.Sprintf(":%s", fn.LabelName(id)))
	}
	return strings.Join(lines, "\n")
}

func serializeInstruction(fn *ir.FunctionIR, instr ir.Instruction) string {
	switch instr.Opcode {
	case ir.OpTypePrim, ir.OpTypePointer, ir.OpTypeArray, ir.OpTypeStruct, ir.OpTypeUnion, ir.OpArg:
		// Type-forming ops were hoisted into the typedefs module; their
		// own arg-overflow tail (struct/union field lists) is consumed
		// there too. Call argument overflow is consumed inline below.
		return ""
	case ir.OpMove, ir.OpCast, ir.OpBNot, ir.OpLoad, ir.OpStore, ir.OpAddress:
		t := instr.Two
		return fmt.Sprintf("(%s %s %s)", instr.Opcode, reg(fn, t.Dest), operand(fn, t.Src))
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr,
		ir.OpPointerAdd, ir.OpPointerSubtract, ir.OpGT, ir.OpLT, ir.OpEQ, ir.OpNEQ, ir.OpGTE, ir.OpLTE,
		ir.OpAGetP, ir.OpAPGetP:
		th := instr.Three
		return fmt.Sprintf("(%s %s %s %s)", instr.Opcode, reg(fn, th.Dest), operand(fn, th.Lhs), operand(fn, th.Rhs))
	case ir.OpCall, ir.OpSyscall:
		return serializeCall(fn, instr)
	case ir.OpJump:
		return fmt.Sprintf("(jump :%s)", fn.LabelName(instr.Jump.To))
	case ir.OpBranch, ir.OpBranchNot:
		b := instr.Branch
		return fmt.Sprintf("(%s %s :%s)", instr.Opcode, operand(fn, b.Cond), fn.LabelName(b.To))
	case ir.OpReturn:
		if instr.Ret.HasValue {
			return fmt.Sprintf("(return %s)", operand(fn, instr.Ret.Value))
		}
		return "(return)"
	case ir.OpFGetP:
		f := instr.Field
		return fmt.Sprintf("(fgetp %s %s %d)", reg(fn, f.R), operand(fn, f.St), f.Field)
	case ir.OpTypeBind:
		b := instr.TypeBind
		return fmt.Sprintf("(bind %s %d)", reg(fn, b.Dest), b.TypeID)
	case ir.OpLabel:
		return ""
	default:
		diag.Raise(diag.LoweringError, "unsupported opcode %s in IR round-trip", instr.Opcode)
		return ""
	}
}

func serializeCall(fn *ir.FunctionIR, instr ir.Instruction) string {
	cl := instr.Call
	dest := "nil"
	if cl.HasDest {
		dest = reg(fn, cl.Dest)
	}
	args := make([]string, cl.ArgCount)
	// Argument values live on the CallOperands' logical arg list, which was
	// spread across following arg overflow instructions at parse time; the
	// in-memory Instruction stream after scalarize/checker has already run
	// keeps those overflow records adjacent, so recover them the same way
	// cgen/x64 do.
	n := 0
	for _, a := range callArgValues(fn, instr) {
		if n >= int(cl.ArgCount) {
			break
		}
		args[n] = operand(fn, a)
		n++
	}
	return fmt.Sprintf("(%s :%s %s %s %s)", instr.Opcode, cl.CC, dest, operand(fn, cl.Callee), strings.Join(args, " "))
}

// callArgValues locates call itself in fn.Instructions and walks the
// ceil(ArgCount/3) arg overflow records immediately following it.
// serializeFunctionBody always visits instructions in order, but this
// helper re-scans from scratch since serializeInstruction (and so
// serializeCall) only sees one instruction at a time; cheap given argument
// lists are tiny.
func callArgValues(fn *ir.FunctionIR, call ir.Instruction) []ir.RegID {
	idx := -1
	for i, instr := range fn.Instructions {
		if instr.Opcode == call.Opcode && instr.Call == call.Call {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	cl := call.Call
	slots := (int(cl.ArgCount) + 2) / 3
	var vals []ir.RegID
	for s := 0; s < slots && idx+1+s < len(fn.Instructions); s++ {
		arg := fn.Instructions[idx+1+s]
		if arg.Arg == nil {
			break
		}
		vals = append(vals, arg.Arg.Values[:]...)
	}
	return vals
}

func reg(fn *ir.FunctionIR, r ir.RegID) string {
	if int(r) < len(fn.RegisterNames) && fn.RegisterNames[r] != "" {
		return fn.RegisterNames[r]
	}
	return fmt.Sprintf("%d", r)
}

func operand(fn *ir.FunctionIR, r ir.RegID) string {
	if r.IsConstant() {
		c := fn.Constants[r.ConstantIndex()]
		return fmt.Sprintf("(%d %s)", c.TypeID, constantLiteral(c.Value))
	}
	return reg(fn, r)
}

func constantLiteral(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case float64:
		return fmt.Sprintf("%g", x)
	case []any:
		parts := make([]string, len(x))
		for i, el := range x {
			parts[i] = constantLiteral(el)
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, " "))
	default:
		return "0"
	}
}
