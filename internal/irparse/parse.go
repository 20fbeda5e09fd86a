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

// Package irparse reads the tuple-encoded surface syntax of §4.1/§6.2 into
// the internal ir.FunctionIR form, growing the shared ir.Linkage as it
// discovers type definitions and references.
package irparse

import (
	"io"

	"ember/internal/diag"
	"ember/internal/ir"
)

// typeMode selects how a type-position operand is resolved (§4.1).
type typeMode int

const (
	typeReference typeMode = iota // must already exist
	typeForwardRef                // may mint a placeholder
)

// Parse reads items (as produced by ReadAll, or built directly by a caller
// that already has a Node tree) against linkage and returns a fully formed
// FunctionIR. Diagnostics raised while parsing are recovered here and
// returned as a normal Go error. A failed parse returns a nil FunctionIR
// (which the caller must not register); type definitions and references it
// made in linkage before the failure are kept.
func Parse(linkage *ir.Linkage, items []Node) (fn *ir.FunctionIR, err error) {
	defer diag.Recover(&err)
	return parse(linkage, items), nil
}

// ParseReader is a convenience wrapper combining ReadAll and Parse.
func ParseReader(linkage *ir.Linkage, src io.Reader) (*ir.FunctionIR, error) {
	items := ReadAll(src)
	return Parse(linkage, items)
}

func parse(linkage *ir.Linkage, items []Node) *ir.FunctionIR {
	fn := ir.NewFunctionIR()
	p := &parser{linkage: linkage, fn: fn}

	sawLinkName := false
	sawParamCount := false

	for _, item := range items {
		switch item.Kind {
		case NodeKeyword:
			p.defineLabelHere(item.Sym)
			continue
		case NodeList:
			// fallthrough below
		default:
			diag.RaiseParse(item.String(), "expected a tuple or bare label, got %v", item)
		}

		if len(item.List) == 0 {
			diag.RaiseParse(item.String(), "empty tuple")
		}
		head := item.List[0]
		if head.Kind != NodeSymbol {
			diag.RaiseParse(item.String(), "tuple head must be a symbol")
		}

		switch head.Sym {
		case "link-name":
			if sawLinkName {
				diag.RaiseParse(item.String(), "link-name may appear at most once")
			}
			sawLinkName = true
			requireArity(item, 2)
			name := item.List[1]
			if name.Kind != NodeString {
				diag.RaiseParse(item.String(), "link-name expects a string")
			}
			linkName := name.Str
			fn.LinkName = &linkName
			continue
		case "parameter-count":
			if sawParamCount {
				diag.RaiseParse(item.String(), "parameter-count may appear at most once")
			}
			sawParamCount = true
			requireArity(item, 2)
			n := item.List[1]
			if n.Kind != NodeInt {
				diag.RaiseParse(item.String(), "parameter-count expects an integer")
			}
			fn.ParameterCount = uint32(n.Int)
			continue
		}

		opcode, shape, ok := ir.LookupOpcode(head.Sym)
		if !ok {
			diag.RaiseParse(item.String(), "unknown opcode %q", head.Sym)
		}
		p.parseInstruction(item, opcode, shape)
	}

	if !fn.IsTypeOnly() {
		requireTerminated(fn)
	} else {
		requireTypeOnlyEmpty(fn)
	}
	return fn
}

type parser struct {
	linkage *ir.Linkage
	fn      *ir.FunctionIR
}

func requireArity(item Node, n int) {
	if len(item.List) != n {
		diag.RaiseParse(item.String(), "expected %d elements, got %d", n, len(item.List))
	}
}

func requireMinArity(item Node, n int) {
	if len(item.List) < n {
		diag.RaiseParse(item.String(), "expected at least %d elements, got %d", n, len(item.List))
	}
}

func requireTerminated(fn *ir.FunctionIR) {
	if len(fn.Instructions) == 0 {
		diag.Raise(diag.StructuralError, "function body must end with jump or return")
	}
	last := fn.Instructions[len(fn.Instructions)-1]
	if last.Opcode != ir.OpJump && last.Opcode != ir.OpReturn {
		diag.Raise(diag.StructuralError, "function body must end with jump or return, found %s", last.Opcode)
	}
}

func requireTypeOnlyEmpty(fn *ir.FunctionIR) {
	if fn.RegisterCount != 0 || fn.ParameterCount != 0 || len(fn.Constants) != 0 {
		diag.Raise(diag.StructuralError, "type-only module must have zero registers, parameters and constants")
	}
}

func (p *parser) defineLabelHere(name string) {
	id := p.fn.NewLabel(name)
	if err := p.fn.DefineLabel(id, int32(len(p.fn.Instructions))); err != nil {
		diag.Raise(diag.ParseError, "%s", err)
	}
}

func (p *parser) appendInstr(instr ir.Instruction) {
	p.fn.Instructions = append(p.fn.Instructions, instr)
}

func (p *parser) parseInstruction(item Node, opcode ir.Opcode, shape ir.Shape) {
	line, col := item.Line, item.Col
	switch shape {
	case ir.ShapeTwo:
		requireArity(item, 3)
		dest := p.decodeWriteRegister(item.List[1])
		src := p.decodeReadRegister(item.List[2])
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			Two: &ir.TwoOperands{Dest: dest, Src: src}})

	case ir.ShapeThree:
		requireArity(item, 4)
		dest := p.decodeWriteRegister(item.List[1])
		lhs := p.decodeReadRegister(item.List[2])
		rhs := p.decodeReadRegister(item.List[3])
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			Three: &ir.ThreeOperands{Dest: dest, Lhs: lhs, Rhs: rhs}})

	case ir.ShapeCall:
		requireMinArity(item, 4)
		cc := p.decodeCallingConvention(item.List[1])
		dest, hasDest := p.decodeOptionalWriteRegister(item.List[2])
		callee := p.decodeReadRegister(item.List[3])
		argNodes := item.List[4:]
		args := make([]ir.RegID, len(argNodes))
		for i, a := range argNodes {
			args[i] = p.decodeReadRegister(a)
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			Call: &ir.CallOperands{CC: cc, Dest: dest, HasDest: hasDest, Callee: callee, ArgCount: uint32(len(args))}})
		p.appendArgOverflow(args)

	case ir.ShapeArg:
		requireMinArity(item, 1)
		var vals [3]ir.RegID
		for i := 1; i < len(item.List) && i <= 3; i++ {
			if item.List[i].Kind == NodeNil {
				continue
			}
			vals[i-1] = p.decodeReadRegister(item.List[i])
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col, Arg: &ir.ArgOperands{Values: vals}})

	case ir.ShapeJump:
		requireArity(item, 2)
		to := p.decodeLabel(item.List[1])
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col, Jump: &ir.JumpOperands{To: to}})

	case ir.ShapeBranch:
		requireArity(item, 3)
		cond := p.decodeReadRegister(item.List[1])
		to := p.decodeLabel(item.List[2])
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col, Branch: &ir.BranchOperands{Cond: cond, To: to}})

	case ir.ShapeRet:
		requireMinArity(item, 1)
		var val ir.RegID
		hasVal := false
		if len(item.List) == 2 {
			val = p.decodeReadRegister(item.List[1])
			hasVal = true
		} else if len(item.List) > 2 {
			diag.RaiseParse(item.String(), "return takes at most one value")
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col, Ret: &ir.RetOperands{Value: val, HasValue: hasVal}})

	case ir.ShapeLabel:
		requireArity(item, 2)
		name := item.List[1]
		if name.Kind != NodeKeyword {
			diag.RaiseParse(item.String(), "label expects a keyword")
		}
		p.defineLabelHere(name.Sym)

	case ir.ShapeField:
		requireArity(item, 4)
		dest := p.decodeWriteRegister(item.List[1])
		st := p.decodeReadRegister(item.List[2])
		idx := item.List[3]
		if idx.Kind != NodeInt {
			diag.RaiseParse(item.String(), "fgetp field index must be an integer")
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			Field: &ir.FieldOperands{R: dest, St: st, Field: uint32(idx.Int)}})

	case ir.ShapeTypePrim:
		requireArity(item, 3)
		name := p.decodeTypeDefName(item.List[1])
		pname := item.List[2]
		if pname.Kind != NodeSymbol {
			diag.RaiseParse(item.String(), "type-prim expects a primitive name")
		}
		prim, ok := ir.LookupPrimitive(pname.Sym)
		if !ok {
			diag.Raise(diag.LinkageError, "unknown primitive %q", pname.Sym)
		}
		if !prim.IntroducibleViaPrimOp() {
			diag.Raise(diag.LinkageError, "%s may not be introduced via type-prim", prim)
		}
		typeID, err := p.linkage.DefineType(name, ir.TypeInfo{Prim: prim})
		if err != nil {
			diag.Raise(diag.LinkageError, "%s", err)
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			TypePrim: &ir.TypePrimOperands{TypeID: typeID, Prim: prim}})

	case ir.ShapeTypePointer:
		requireArity(item, 3)
		name := p.decodeTypeDefName(item.List[1])
		target := p.decodeTypeOperand(item.List[2], typeForwardRef)
		typeID, err := p.linkage.DefineType(name, ir.TypeInfo{Prim: ir.PrimPointer, Target: target})
		if err != nil {
			diag.Raise(diag.LinkageError, "%s", err)
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			TypePointer: &ir.TypePointerOperands{TypeID: typeID, Target: target}})

	case ir.ShapeTypeArray:
		requireArity(item, 4)
		name := p.decodeTypeDefName(item.List[1])
		elem := p.decodeTypeOperand(item.List[2], typeForwardRef)
		count := item.List[3]
		if count.Kind != NodeInt {
			diag.RaiseParse(item.String(), "type-array count must be an integer")
		}
		typeID, err := p.linkage.DefineType(name, ir.TypeInfo{Prim: ir.PrimArray, Element: elem, Count: uint64(count.Int)})
		if err != nil {
			diag.Raise(diag.LinkageError, "%s", err)
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			TypeArray: &ir.TypeArrayOperands{TypeID: typeID, Element: elem, Count: uint64(count.Int)}})

	case ir.ShapeTypeStructUnion:
		requireMinArity(item, 2)
		name := p.decodeTypeDefName(item.List[1])
		fieldNodes := item.List[2:]
		fieldTypes := make([]uint32, len(fieldNodes))
		for i, f := range fieldNodes {
			fieldTypes[i] = p.decodeTypeOperand(f, typeForwardRef)
		}
		start, count := p.linkage.AppendFields(fieldTypes)
		isUnion := opcode == ir.OpTypeUnion
		typeID, err := p.linkage.DefineType(name, ir.TypeInfo{
			Prim:       map[bool]ir.Primitive{true: ir.PrimUnion, false: ir.PrimStruct}[isUnion],
			FieldStart: start, FieldCount: count,
		})
		if err != nil {
			diag.Raise(diag.LinkageError, "%s", err)
		}
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			TypeStruct: &ir.TypeStructUnionOperands{TypeID: typeID, IsUnion: isUnion, FieldCount: count}})
		regs := make([]ir.RegID, len(fieldTypes))
		for i, t := range fieldTypes {
			regs[i] = ir.RegID(t)
		}
		p.appendArgOverflow(regs)

	case ir.ShapeTypeBind:
		requireArity(item, 3)
		dest := p.decodeWriteRegister(item.List[1])
		typeID := p.decodeTypeOperand(item.List[2], typeReference)
		p.fn.Types[dest] = typeID
		p.appendInstr(ir.Instruction{Opcode: opcode, Line: line, Column: col,
			TypeBind: &ir.TypeBindOperands{Dest: dest, TypeID: typeID}})

	default:
		diag.Raise(diag.StructuralError, "unhandled opcode shape for %s", opcode)
	}
}

// appendArgOverflow packs vals into synthetic OpArg pseudo-instructions,
// three per slot, immediately following the instruction that owns them
// (call arguments, struct/union field lists).
func (p *parser) appendArgOverflow(vals []ir.RegID) {
	for i := 0; i < len(vals); i += 3 {
		var slot ir.ArgOperands
		for j := 0; j < 3 && i+j < len(vals); j++ {
			slot.Values[j] = vals[i+j]
		}
		p.appendInstr(ir.Instruction{Opcode: ir.OpArg, Arg: &slot})
	}
}

func (p *parser) decodeWriteRegister(n Node) ir.RegID {
	switch n.Kind {
	case NodeSymbol:
		return p.fn.InternOrCreateRegister(n.Sym)
	case NodeInt:
		id := ir.RegID(n.Int)
		p.fn.WidenRegisters(id)
		return id
	default:
		diag.RaiseParse(n.String(), "expected a register in write position")
		return 0
	}
}

func (p *parser) decodeOptionalWriteRegister(n Node) (ir.RegID, bool) {
	if n.Kind == NodeNil {
		return 0, false
	}
	return p.decodeWriteRegister(n), true
}

// decodeReadRegister implements the "read" operand decoding rules: a
// register name/id, or a (type value) 2-tuple interned as a typed constant.
func (p *parser) decodeReadRegister(n Node) ir.RegID {
	switch n.Kind {
	case NodeSymbol:
		return p.fn.InternOrCreateRegister(n.Sym)
	case NodeInt:
		id := ir.RegID(n.Int)
		p.fn.WidenRegisters(id)
		return id
	case NodeList:
		if len(n.List) != 2 {
			diag.RaiseParse(n.String(), "constant operand must be a (type value) pair")
		}
		typeID := p.decodeConstantType(n.List[0])
		value := decodeConstantValue(n.List[1])
		return p.fn.InternConstant(typeID, value)
	default:
		diag.RaiseParse(n.String(), "expected a register or constant in read position")
		return 0
	}
}

// decodeConstantType resolves the type half of a (type value) constant. It
// accepts a named linkage type or a bare primitive name, lazily defining
// the primitive the first time it is used this way so that "(s32 1)" works
// without a preceding explicit type-prim.
func (p *parser) decodeConstantType(n Node) uint32 {
	switch n.Kind {
	case NodeInt:
		return uint32(n.Int)
	case NodeSymbol:
		if id, err := p.linkage.ReferenceType(n.Sym); err == nil {
			return id
		}
		if prim, ok := ir.LookupPrimitive(n.Sym); ok && prim.IntroducibleViaPrimOp() {
			id, err := p.linkage.DefineType(n.Sym, ir.TypeInfo{Prim: prim})
			if err != nil {
				// Already defined by an earlier identical lazy reference.
				if existing, refErr := p.linkage.ReferenceType(n.Sym); refErr == nil {
					return existing
				}
			}
			return id
		}
		diag.Raise(diag.LinkageError, "unknown referenced type %q", n.Sym)
		return 0
	default:
		diag.RaiseParse(n.String(), "expected a type name in constant position")
		return 0
	}
}

func decodeConstantValue(n Node) any {
	switch n.Kind {
	case NodeInt:
		return n.Int
	case NodeFloat:
		return n.Float
	case NodeString:
		return n.Str
	case NodeSymbol:
		switch n.Sym {
		case "true":
			return true
		case "false":
			return false
		}
		return n.Sym
	case NodeList:
		vals := make([]any, len(n.List))
		for i, c := range n.List {
			vals[i] = decodeConstantValue(c)
		}
		return vals
	default:
		diag.RaiseParse(n.String(), "unsupported constant literal")
		return nil
	}
}

func (p *parser) decodeLabel(n Node) ir.LabelID {
	if n.Kind != NodeKeyword {
		diag.RaiseParse(n.String(), "expected a label")
	}
	return p.fn.NewLabel(n.Sym)
}

func (p *parser) decodeCallingConvention(n Node) ir.CallingConvention {
	if n.Kind != NodeKeyword {
		diag.RaiseParse(n.String(), "expected a calling convention keyword")
	}
	cc, ok := ir.LookupCallingConvention(n.Sym)
	if !ok {
		diag.Raise(diag.ParseError, "unknown calling convention %q", n.Sym)
	}
	return cc
}

// decodeTypeDefName extracts the surface name being newly defined by a
// type-forming op. The name must not already be bound to a concrete type
// (redefinition is caught by Linkage.DefineType itself).
func (p *parser) decodeTypeDefName(n Node) string {
	if n.Kind != NodeSymbol {
		diag.RaiseParse(n.String(), "expected a type name")
	}
	return n.Sym
}

func (p *parser) decodeTypeOperand(n Node, mode typeMode) uint32 {
	switch n.Kind {
	case NodeInt:
		return uint32(n.Int)
	case NodeSymbol:
		switch mode {
		case typeReference:
			id, err := p.linkage.ReferenceType(n.Sym)
			if err != nil {
				diag.Raise(diag.LinkageError, "%s", err)
			}
			return id
		case typeForwardRef:
			return p.linkage.ForwardRefType(n.Sym)
		}
	}
	diag.RaiseParse(n.String(), "expected a type name")
	return 0
}
