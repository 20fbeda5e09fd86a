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

// Package x64 implements §4.5: naive register assignment (first ≤13
// virtual registers to hardware registers, the rest spill), frame layout,
// compare/branch fusion, and NASM-syntax textual emission. Unlike
// internal/cgen, this path expects internal/scalarize to have already
// rewritten any array-wise arithmetic into element-pointer loops -- an
// array-shaped operand reaching this package is a lowering error.
package x64

import (
	"fmt"

	"ember/internal/diag"
	"ember/internal/ir"
	"ember/utils"
)

// Target names the platform being lowered for. The emitted assembly does not
// vary with it: a call site passes arguments per its own cc operand, and a
// function's own parameters are received in the first registers of the
// assignment order whatever the target.
type Target int

const (
	TargetNative Target = iota
	TargetLinux
	TargetWindows
)

func (t Target) isWindows() bool { return t == TargetWindows }

func (t Target) String() string {
	switch t {
	case TargetLinux:
		return "linux"
	case TargetWindows:
		return "windows"
	default:
		return "native"
	}
}

// LookupTarget resolves §6.1's to-x64 target argument ({native,linux,windows})
// the way ir.LookupCallingConvention resolves a cc keyword.
func LookupTarget(name string) (Target, bool) {
	switch name {
	case "native":
		return TargetNative, true
	case "linux":
		return TargetLinux, true
	case "windows":
		return TargetWindows, true
	default:
		return 0, false
	}
}

// regNames is the fixed first-≤13-virtual-registers assignment order of
// §4.5, skipping rsp/rbp and reserving r15 as scratch.
var regNames = []string{"rax", "rcx", "rdx", "rbx", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14"}

var calleeSavedOrder = []string{"rbx", "rsi", "rdi", "r12", "r13", "r14", "r15"}

var sysvArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
var windowsArgRegs = []string{"rcx", "rdx", "r8", "r9"}

func argRegsFor(cc ir.CallingConvention) []string {
	if cc == ir.CCWindows {
		return windowsArgRegs
	}
	return sysvArgRegs
}

// Generate lowers every real function in linkage to NASM-syntax x86-64
// assembly: "bits 64; default rel", one .text section, one label per
// function (link name, since every real function here carries one), and a
// trailing .rodata section holding one CONST<i> per string constant.
func Generate(linkage *ir.Linkage, target Target) (out string, err error) {
	defer diag.Recover(&err)
	g := &generator{linkage: linkage, target: target}
	g.buf += "bits 64\ndefault rel\n\nsection .text\n"
	for i, fn := range linkage.IRsOrdered {
		// Every registered IR gets a label, real or type-only (§6.3): a
		// type-only module carries no instructions (structural invariant),
		// so its label stands alone with no body.
		if fn.IsTypeOnly() {
			g.emitf("_section_%d:\n", i)
			continue
		}
		g.emitFunction(fn)
	}
	if g.rodata != "" {
		g.buf += "\nsection .rodata\n" + g.rodata
	}
	return g.buf, nil
}

// FrameReport summarizes one function's layout decision for a debug trace
// (internal/debugdump): how much stack a function needs and which callee-
// saved registers its prologue/epilogue must bracket.
type FrameReport struct {
	LinkName         string
	FrameSize        int64
	SpilledRegisters int
	CalleeSaved      []string
}

// ReportFrames runs layout (but not emission) over every real function in
// linkage, for a host that wants frame/spill sizing without generating
// assembly text.
func ReportFrames(linkage *ir.Linkage, target Target) (reports []FrameReport, err error) {
	defer diag.Recover(&err)
	g := &generator{linkage: linkage, target: target}
	for _, fn := range linkage.IRsOrdered {
		if fn.IsTypeOnly() {
			continue
		}
		l := g.layoutFunction(fn)
		name := fmt.Sprintf("%s", fn.ID)
		if fn.LinkName != nil {
			name = *fn.LinkName
		}
		reports = append(reports, FrameReport{
			LinkName:         name,
			FrameSize:        l.frameSize,
			SpilledRegisters: len(l.spill),
			CalleeSaved:      l.callee,
		})
	}
	return reports, nil
}

type generator struct {
	buf, rodata string
	linkage     *ir.Linkage
	target      Target
	constCount  int
}

func (g *generator) emitf(format string, args ...any) {
	g.buf += fmt.Sprintf(format, args...)
}

// layout is the per-function register/spill assignment.
type layout struct {
	reg       map[ir.RegID]string
	spill     map[ir.RegID]int64 // positive byte offset below rbp
	frameSize int64
	callee    []string
	scratch   bool // r15 used for a two-spilled-operand fixup
}

// layoutFunction assigns registers in virtual-register-id order. Aggregate
// (array/struct/union) values never fit in a single 8-byte GPR, so they are
// always spilled regardless of ordinal position -- only the first ≤13
// non-aggregate registers get a hardware name (§4.5 decision #7).
func (g *generator) layoutFunction(fn *ir.FunctionIR) *layout {
	l := &layout{reg: map[ir.RegID]string{}, spill: map[ir.RegID]int64{}}
	var offset int64
	regIdx := 0
	for r := ir.RegID(0); int(r) < len(fn.Types); r++ {
		info, err := g.linkage.Type(fn.TypeOf(r))
		if err != nil {
			diag.Raise(diag.LoweringError, "%s", err)
		}
		aggregate := info.Prim == ir.PrimArray || info.Prim == ir.PrimStruct || info.Prim == ir.PrimUnion
		if !aggregate && regIdx < len(regNames) {
			l.reg[r] = regNames[regIdx]
			regIdx++
			continue
		}
		size, align := typeLayout(g.linkage, fn.TypeOf(r))
		offset = alignUp(offset+int64(size), int64(align))
		l.spill[r] = offset
	}
	l.frameSize = int64(utils.Align16(int(offset))) + 16

	used := utils.NewSet[string]()
	for _, name := range l.reg {
		used.Add(name)
	}
	l.scratch = needsScratch(fn, l)
	if l.scratch {
		used.Add("r15")
	}
	for _, name := range calleeSavedOrder {
		if used.Contains(name) {
			l.callee = append(l.callee, name)
		}
	}
	utils.Assert(l.frameSize%16 == 0, "x64 frame size must be 16-byte aligned, got %d", l.frameSize)
	return l
}

// needsScratch reports whether any binary instruction has both a spilled
// lhs and a spilled rhs, which must be rewritten through r15 (§4.5
// "two-memory-operand fix-up").
func needsScratch(fn *ir.FunctionIR, l *layout) bool {
	for _, instr := range fn.Instructions {
		if instr.Three == nil {
			continue
		}
		th := instr.Three
		if isSpilled(l, th.Lhs) && isSpilled(l, th.Rhs) {
			return true
		}
	}
	return false
}

func isSpilled(l *layout, r ir.RegID) bool {
	if r.IsConstant() {
		return false
	}
	_, ok := l.spill[r]
	return ok
}

// typeLayout returns (size, align) in bytes for a type id, per §4.5's
// TypeLayout table.
func typeLayout(linkage *ir.Linkage, id uint32) (uint64, uint64) {
	info, err := linkage.Type(id)
	if err != nil {
		diag.Raise(diag.LoweringError, "%s", err)
	}
	switch info.Prim {
	case ir.PrimU8, ir.PrimS8, ir.PrimBoolean:
		return 1, 1
	case ir.PrimU16, ir.PrimS16:
		return 2, 2
	case ir.PrimU32, ir.PrimS32:
		return 4, 4
	case ir.PrimU64, ir.PrimS64:
		return 8, 8
	case ir.PrimF32, ir.PrimF64, ir.PrimPointer:
		return 8, 8
	case ir.PrimArray:
		elemSize, elemAlign := typeLayout(linkage, info.Element)
		return elemSize * info.Count, elemAlign
	case ir.PrimStruct:
		var total, align uint64 = 0, 1
		for i := uint32(0); i < info.FieldCount; i++ {
			f := linkage.Fields[info.FieldStart+i]
			size, falign := typeLayout(linkage, f.TypeID)
			total = alignUp64(total, falign) + size
			if falign > align {
				align = falign
			}
		}
		return total, align
	case ir.PrimUnion:
		var size, align uint64 = 0, 1
		for i := uint32(0); i < info.FieldCount; i++ {
			f := linkage.Fields[info.FieldStart+i]
			s, a := typeLayout(linkage, f.TypeID)
			if s > size {
				size = s
			}
			if a > align {
				align = a
			}
		}
		return size, align
	default:
		return 0, 1
	}
}

func alignUp(v, a int64) int64 {
	if a <= 0 {
		return v
	}
	return ((v + a - 1) / a) * a
}

func alignUp64(v, a uint64) uint64 {
	if a == 0 {
		return v
	}
	return ((v + a - 1) / a) * a
}

func byteReg(name string) string {
	switch name {
	case "rax":
		return "al"
	case "rcx":
		return "cl"
	case "rdx":
		return "dl"
	case "rbx":
		return "bl"
	case "rsi":
		return "sil"
	case "rdi":
		return "dil"
	default:
		return name + "b" // r8..r14
	}
}
