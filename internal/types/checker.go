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

package types

import (
	"ember/internal/diag"
	"ember/internal/ir"
)

// Check walks fn's instructions enforcing the per-opcode typing contracts
// of §4.2, and validates that every constant's runtime value is
// representable in its declared type. As a side effect it records fn's
// inferred return type (all `return` instructions in a function must agree
// on value-or-void and on type).
//
// Callers must run Infer(fn) first: Check assumes every register already
// carries a concrete type.
func Check(fn *ir.FunctionIR) (err error) {
	defer diag.Recover(&err)
	if fn.IsTypeOnly() {
		return nil
	}
	c := &checker{fn: fn, linkage: fn.Linkage}
	c.checkConstants()
	for _, instr := range fn.Instructions {
		c.checkInstruction(instr)
	}
	return nil
}

type checker struct {
	fn      *ir.FunctionIR
	linkage *ir.Linkage
}

func (c *checker) fail(opcode ir.Opcode, reg ir.RegID, typeA, typeB uint32, format string, args ...any) {
	diag.RaiseType(opcode.String(), c.operandName(reg), c.typeName(typeA), c.typeName(typeB), format, args...)
}

func (c *checker) operandName(r ir.RegID) string {
	if r.IsConstant() {
		return "<constant>"
	}
	return c.fn.RegisterName(r)
}

func (c *checker) typeName(id uint32) string {
	return c.linkage.TypeName(id)
}

func (c *checker) typeOf(id uint32) ir.TypeInfo {
	info, err := c.linkage.Type(id)
	if err != nil {
		diag.Raise(diag.TypeError, "%s", err)
	}
	return info
}

// operandType resolves the declared type of a read-position operand,
// whether it names a register or a constant.
func (c *checker) operandType(r ir.RegID) uint32 {
	if r.IsConstant() {
		idx := r.ConstantIndex()
		if int(idx) >= len(c.fn.Constants) {
			diag.Raise(diag.TypeError, "constant index %d out of range", idx)
		}
		return c.fn.Constants[idx].TypeID
	}
	return c.fn.TypeOf(r)
}

func (c *checker) checkInstruction(instr ir.Instruction) {
	op := instr.Opcode
	switch op {
	case ir.OpMove:
		t := instr.Two
		dt, st := c.fn.TypeOf(t.Dest), c.operandType(t.Src)
		if dt != st {
			c.fail(op, t.Dest, dt, st, "move requires dest and src to share a type")
		}

	case ir.OpCast:
		t := instr.Two
		c.checkCast(op, t.Dest, t.Src)

	case ir.OpBNot:
		t := instr.Two
		dt, st := c.fn.TypeOf(t.Dest), c.operandType(t.Src)
		if dt != st {
			c.fail(op, t.Dest, dt, st, "bnot requires dest and src to share a type")
		}
		if !c.typeOf(dt).Prim.IsInteger() {
			c.fail(op, t.Dest, dt, st, "bnot requires an integer type")
		}

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		c.checkArithLike(op, instr.Three, false)

	case ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpShl, ir.OpShr:
		c.checkArithLike(op, instr.Three, true)

	case ir.OpPointerAdd, ir.OpPointerSubtract:
		th := instr.Three
		dt, lt, rt := c.fn.TypeOf(th.Dest), c.operandType(th.Lhs), c.operandType(th.Rhs)
		if dt != lt {
			c.fail(op, th.Dest, dt, lt, "%s requires dest and lhs to share a type", op)
		}
		if c.typeOf(dt).Prim != ir.PrimPointer {
			c.fail(op, th.Dest, dt, lt, "%s requires a pointer dest", op)
		}
		if !c.typeOf(rt).Prim.IsInteger() {
			c.fail(op, th.Rhs, rt, 0, "%s expected integer", op)
		}

	case ir.OpLoad:
		t := instr.Two
		dt, st := c.fn.TypeOf(t.Dest), c.operandType(t.Src)
		sinfo := c.typeOf(st)
		if sinfo.Prim != ir.PrimPointer {
			c.fail(op, t.Src, st, dt, "load requires a pointer src")
		}
		if sinfo.Target != dt {
			c.fail(op, t.Dest, dt, st, "load requires dest to match the pointee type")
		}

	case ir.OpStore:
		t := instr.Two
		dt, st := c.fn.TypeOf(t.Dest), c.operandType(t.Src)
		dinfo := c.typeOf(dt)
		if dinfo.Prim != ir.PrimPointer {
			c.fail(op, t.Dest, dt, st, "store requires a pointer dest")
		}
		if dinfo.Target != st {
			c.fail(op, t.Src, st, dt, "store requires src to match the pointee type")
		}

	case ir.OpGT, ir.OpLT, ir.OpEQ, ir.OpNEQ, ir.OpGTE, ir.OpLTE:
		th := instr.Three
		lt, rt := c.operandType(th.Lhs), c.operandType(th.Rhs)
		if lt != rt {
			c.fail(op, th.Lhs, lt, rt, "%s requires lhs and rhs to share a type", op)
		}
		linfo := c.typeOf(lt)
		if !linfo.Prim.IsNumeric() && linfo.Prim != ir.PrimPointer {
			c.fail(op, th.Lhs, lt, rt, "%s requires a numeric or pointer operand", op)
		}
		dt := c.fn.TypeOf(th.Dest)
		if c.typeOf(dt).Prim != ir.PrimBoolean {
			c.fail(op, th.Dest, dt, 0, "%s requires a boolean dest", op)
		}

	case ir.OpAddress:
		t := instr.Two
		dt, st := c.fn.TypeOf(t.Dest), c.fn.TypeOf(t.Src)
		dinfo := c.typeOf(dt)
		if dinfo.Prim != ir.PrimPointer {
			c.fail(op, t.Dest, dt, st, "address requires a pointer dest")
		}
		if dinfo.Target != st {
			c.fail(op, t.Dest, dt, st, "address requires dest to point at src's type")
		}

	case ir.OpBranch, ir.OpBranchNot:
		b := instr.Branch
		ct := c.operandType(b.Cond)
		if c.typeOf(ct).Prim != ir.PrimBoolean {
			c.fail(op, b.Cond, ct, 0, "%s requires a boolean condition", op)
		}

	case ir.OpSyscall:
		cl := instr.Call
		callee := c.operandType(cl.Callee)
		if !c.typeOf(callee).Prim.IsInteger() {
			c.fail(op, cl.Callee, callee, 0, "syscall requires an integer callee")
		}

	case ir.OpCall:
		cl := instr.Call
		callee := c.operandType(cl.Callee)
		if c.typeOf(callee).Prim != ir.PrimPointer {
			c.fail(op, cl.Callee, callee, 0, "call requires a pointer callee")
		}

	case ir.OpAGetP:
		c.checkAGetP(op, instr.Three)

	case ir.OpAPGetP:
		c.checkAPGetP(op, instr.Three)

	case ir.OpFGetP:
		c.checkFGetP(op, instr.Field)

	case ir.OpReturn:
		c.checkReturn(instr.Ret)
	}
}

func (c *checker) checkCast(op ir.Opcode, dest, src ir.RegID) {
	dt, st := c.fn.TypeOf(dest), c.operandType(src)
	dinfo, sinfo := c.typeOf(dt), c.typeOf(st)
	switch {
	case dinfo.Prim == ir.PrimPointer && sinfo.Prim == ir.PrimPointer:
		return
	case dinfo.Prim.IsInteger() && sinfo.Prim.IsInteger():
		return
	case dinfo.Prim.IsFloat() && sinfo.Prim.IsFloat():
		return
	default:
		c.fail(op, dest, dt, st, "cast requires matching numeric kinds or pointer-to-pointer")
	}
}

// checkArithLike handles both the numeric (add/sub/mul/div) and
// integer-only (band/bor/bxor/shl/shr) three-operand families, each
// permitting the array/pointer-to-array descent of decision #5.
func (c *checker) checkArithLike(op ir.Opcode, th *ir.ThreeOperands, integerOnly bool) {
	dt, lt, rt := c.fn.TypeOf(th.Dest), c.operandType(th.Lhs), c.operandType(th.Rhs)
	if dt != lt || lt != rt {
		c.fail(op, th.Dest, dt, lt, "%s requires lhs, rhs and dest to share a type", op)
	}
	elem, err := c.descendToElement(dt)
	if err != nil {
		c.fail(op, th.Dest, dt, 0, "%s: %s", op, err)
	}
	einfo := c.typeOf(elem)
	if integerOnly {
		if !einfo.Prim.IsInteger() {
			c.fail(op, th.Dest, dt, elem, "%s requires an integer element type", op)
		}
	} else if !einfo.Prim.IsNumeric() {
		c.fail(op, th.Dest, dt, elem, "%s requires a numeric element type", op)
	}
}

// descendToElement applies the "at most one pointer layer, then any number
// of array layers" rule and returns the resulting element type id.
func (c *checker) descendToElement(typeID uint32) (uint32, error) {
	info := c.typeOf(typeID)
	if info.Prim == ir.PrimPointer {
		typeID = info.Target
		info = c.typeOf(typeID)
	}
	for info.Prim == ir.PrimArray {
		typeID = info.Element
		info = c.typeOf(typeID)
	}
	return typeID, nil
}

func (c *checker) checkAGetP(op ir.Opcode, th *ir.ThreeOperands) {
	dt, lt, rt := c.fn.TypeOf(th.Dest), c.operandType(th.Lhs), c.operandType(th.Rhs)
	linfo := c.typeOf(lt)
	if linfo.Prim != ir.PrimArray {
		c.fail(op, th.Lhs, lt, dt, "agetp requires an array lhs")
	}
	dinfo := c.typeOf(dt)
	if dinfo.Prim != ir.PrimPointer || dinfo.Target != linfo.Element {
		c.fail(op, th.Dest, dt, lt, "agetp requires dest to be pointer-to-element")
	}
	if !c.typeOf(rt).Prim.IsInteger() {
		c.fail(op, th.Rhs, rt, 0, "agetp requires an integer index")
	}
}

func (c *checker) checkAPGetP(op ir.Opcode, th *ir.ThreeOperands) {
	dt, lt, rt := c.fn.TypeOf(th.Dest), c.operandType(th.Lhs), c.operandType(th.Rhs)
	linfo := c.typeOf(lt)
	if linfo.Prim != ir.PrimPointer {
		c.fail(op, th.Lhs, lt, dt, "apgetp requires a pointer-to-array lhs")
	}
	arrInfo := c.typeOf(linfo.Target)
	if arrInfo.Prim != ir.PrimArray {
		c.fail(op, th.Lhs, lt, dt, "apgetp requires lhs to point at an array")
	}
	dinfo := c.typeOf(dt)
	if dinfo.Prim != ir.PrimPointer || dinfo.Target != arrInfo.Element {
		c.fail(op, th.Dest, dt, lt, "apgetp requires dest to be pointer-to-element")
	}
	if !c.typeOf(rt).Prim.IsInteger() {
		c.fail(op, th.Rhs, rt, 0, "apgetp requires an integer index")
	}
}

func (c *checker) checkFGetP(op ir.Opcode, f *ir.FieldOperands) {
	st := c.fn.TypeOf(f.St)
	sinfo := c.typeOf(st)
	if sinfo.Prim != ir.PrimStruct && sinfo.Prim != ir.PrimUnion {
		c.fail(op, f.St, st, 0, "fgetp requires a struct or union st")
	}
	if f.Field >= sinfo.FieldCount {
		c.fail(op, f.St, st, 0, "fgetp field index %d out of range (%d fields)", f.Field, sinfo.FieldCount)
	}
	fieldType := c.linkage.Fields[sinfo.FieldStart+f.Field].TypeID
	dt := c.fn.TypeOf(f.R)
	dinfo := c.typeOf(dt)
	if dinfo.Prim != ir.PrimPointer || dinfo.Target != fieldType {
		c.fail(op, f.R, dt, fieldType, "fgetp requires dest to be pointer-to-field-type")
	}
}

// checkReturn enforces that every return in a function agrees on
// value-or-void and on type, recording the decision onto fn the first time
// it is observed.
func (c *checker) checkReturn(ret *ir.RetOperands) {
	fn := c.fn
	if !ret.HasValue {
		if fn.HasReturnType {
			c.fail(ir.OpReturn, 0, fn.ReturnType, 0, "return disagrees with an earlier value-returning return")
		}
		return
	}
	vt := c.operandType(ret.Value)
	if !fn.HasReturnType {
		fn.HasReturnType = true
		fn.ReturnType = vt
		return
	}
	if fn.ReturnType != vt {
		c.fail(ir.OpReturn, ret.Value, fn.ReturnType, vt, "return disagrees with an earlier return's type")
	}
}

// checkConstants validates every constant's runtime representation against
// its declared type (§4.2 "Constant validity").
func (c *checker) checkConstants() {
	for _, k := range c.fn.Constants {
		c.validateConstant(k.TypeID, k.Value)
	}
}

func (c *checker) validateConstant(typeID uint32, value any) {
	info := c.typeOf(typeID)
	switch v := value.(type) {
	case bool:
		if info.Prim != ir.PrimBoolean {
			diag.Raise(diag.TypeError, "boolean constant requires type boolean, got %s", c.typeName(typeID))
		}
	case string:
		if info.Prim != ir.PrimPointer {
			diag.Raise(diag.TypeError, "string/symbol constant requires a pointer type, got %s", c.typeName(typeID))
		}
	case int64:
		if info.Prim.IsFloat() {
			return
		}
		if !info.Prim.IsInteger() {
			diag.Raise(diag.TypeError, "integer constant requires a numeric type, got %s", c.typeName(typeID))
		}
		lo, hi, ok := integerRange(info.Prim)
		if ok && (v < lo || v > hi) {
			diag.Raise(diag.TypeError, "integer constant %d out of range for %s", v, c.typeName(typeID))
		}
	case float64:
		if !info.Prim.IsFloat() {
			diag.Raise(diag.TypeError, "float constant requires f32/f64, got %s", c.typeName(typeID))
		}
	case []any:
		if info.Prim != ir.PrimArray {
			diag.Raise(diag.TypeError, "tuple constant requires an array type, got %s", c.typeName(typeID))
		}
		if uint64(len(v)) != info.Count {
			diag.Raise(diag.TypeError, "tuple constant has %d elements, array type expects %d", len(v), info.Count)
		}
		for _, el := range v {
			c.validateConstant(info.Element, el)
		}
	default:
		diag.Raise(diag.TypeError, "unsupported constant literal for type %s", c.typeName(typeID))
	}
}

// integerRange returns the representable [lo, hi] range for an integer
// primitive. u64/s64 are reported with int64's own range since Go constants
// here are carried as int64 (§9's host big-integer objects collapse to the
// same representation): a host embedding values outside that range is
// expected to hand them in as a distinct big-integer carrier, not plain
// int64, which this checker does not attempt to model.
func integerRange(p ir.Primitive) (lo, hi int64, ok bool) {
	switch p {
	case ir.PrimU8:
		return 0, 0xFF, true
	case ir.PrimS8:
		return -0x80, 0x7F, true
	case ir.PrimU16:
		return 0, 0xFFFF, true
	case ir.PrimS16:
		return -0x8000, 0x7FFF, true
	case ir.PrimU32:
		return 0, 0xFFFFFFFF, true
	case ir.PrimS32:
		return -0x80000000, 0x7FFFFFFF, true
	case ir.PrimU64, ir.PrimS64:
		return -1 << 63, 1<<63 - 1, true
	default:
		return 0, 0, false
	}
}
