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
	"fmt"

	"github.com/google/uuid"
)

// Constant is one entry of a function's per-function constant table.
// Constants are deduplicated by (TypeID, Value) (§3.5, P4).
type Constant struct {
	TypeID uint32
	Value  any
}

// unboundLabel marks a label that has been mentioned (minted an id) but
// whose defining position has not yet been recorded -- spec's
// "InstructionIndex | Keyword" union collapses to this sentinel in Go.
const unboundLabel = -1

// FunctionIR is one compiled unit sharing a Linkage. LinkName == nil means
// this is a type-only module: it may define/reference types but carries no
// executable instructions.
type FunctionIR struct {
	ID uuid.UUID

	LinkName          *string
	ParameterCount    uint32
	CallingConvention CallingConvention

	RegisterCount uint32
	Types         []uint32 // Types[r], len == RegisterCount
	RegisterNames []string // RegisterNames[r], "" if anonymous

	Constants []Constant

	Instructions []Instruction
	Labels       map[LabelID]int32 // instruction index, or unboundLabel

	ReturnType    uint32
	HasReturnType bool

	Linkage *Linkage

	nextLabel     LabelID
	labelNames    []labelName
	registerIndex map[string]RegID
	constantIndex map[constantKey]RegID
}

type constantKey struct {
	typeID uint32
	repr   string
}

func NewFunctionIR() *FunctionIR {
	return &FunctionIR{
		ID:            uuid.New(),
		Labels:        make(map[LabelID]int32),
		registerIndex: make(map[string]RegID),
		constantIndex: make(map[constantKey]RegID),
	}
}

func (fn *FunctionIR) IsTypeOnly() bool { return fn.LinkName == nil }

// WidenRegisters grows Types/RegisterNames so that id is a valid index,
// matching the parser's "register_count is widened to max(id)+1" rule.
func (fn *FunctionIR) WidenRegisters(id RegID) {
	need := uint32(id) + 1
	for fn.RegisterCount < need {
		fn.Types = append(fn.Types, 0)
		fn.RegisterNames = append(fn.RegisterNames, "")
		fn.RegisterCount++
	}
}

// InternOrCreateRegister looks up a register by surface name, minting a
// fresh id on first mention.
func (fn *FunctionIR) InternOrCreateRegister(name string) RegID {
	if id, ok := fn.registerIndex[name]; ok {
		return id
	}
	id := RegID(fn.RegisterCount)
	fn.WidenRegisters(id)
	fn.RegisterNames[id] = name
	fn.registerIndex[name] = id
	return id
}

// NewAnonymousRegister mints a fresh register with no surface name, for
// compiler-introduced temporaries (scalarization loop indices and element
// pointers).
func (fn *FunctionIR) NewAnonymousRegister(typeID uint32) RegID {
	id := RegID(fn.RegisterCount)
	fn.WidenRegisters(id)
	fn.Types[id] = typeID
	return id
}

// InternConstant deduplicates (typeID, value) and returns the encoded
// constant operand (P4).
func (fn *FunctionIR) InternConstant(typeID uint32, value any) RegID {
	key := constantKey{typeID: typeID, repr: fmt.Sprintf("%#v", value)}
	if id, ok := fn.constantIndex[key]; ok {
		return id
	}
	idx := uint32(len(fn.Constants))
	fn.Constants = append(fn.Constants, Constant{TypeID: typeID, Value: value})
	operand := MakeConstantOperand(idx)
	fn.constantIndex[key] = operand
	return operand
}

// NewLabel mints a label id on first mention of name, forward or
// otherwise, leaving it unbound until DefineLabel records its position.
func (fn *FunctionIR) NewLabel(name string) LabelID {
	id, ok := fn.labelByName(name)
	if ok {
		return id
	}
	id = fn.nextLabel
	fn.nextLabel++
	fn.Labels[id] = unboundLabel
	fn.labelNames = append(fn.labelNames, labelName{id: id, name: name})
	return id
}

// labelName tracks the surface keyword minted for a label id so repeated
// mentions of the same keyword resolve to the same id.
type labelName struct {
	id   LabelID
	name string
}

func (fn *FunctionIR) labelByName(name string) (LabelID, bool) {
	for _, ln := range fn.labelNames {
		if ln.name == name {
			return ln.id, true
		}
	}
	return 0, false
}

// DefineLabel records the instruction index at which id's body begins. A
// label may be defined at most once.
func (fn *FunctionIR) DefineLabel(id LabelID, index int32) error {
	if cur, ok := fn.Labels[id]; ok && cur != unboundLabel {
		return fmt.Errorf("label %d already defined", id)
	}
	fn.Labels[id] = index
	return nil
}

func (fn *FunctionIR) LabelPosition(id LabelID) (int32, bool) {
	idx, ok := fn.Labels[id]
	if !ok || idx == unboundLabel {
		return 0, false
	}
	return idx, true
}

// LabelName returns the surface keyword a label id was minted from, or a
// synthesized fallback for a label with no recorded name (neither the
// parser nor scalarize produces one; both name every label they mint).
func (fn *FunctionIR) LabelName(id LabelID) string {
	for _, ln := range fn.labelNames {
		if ln.id == id {
			return ln.name
		}
	}
	return fmt.Sprintf("_label_%d", id)
}

func (fn *FunctionIR) RegisterName(id RegID) string {
	if int(id) < len(fn.RegisterNames) && fn.RegisterNames[id] != "" {
		return fn.RegisterNames[id]
	}
	return fmt.Sprintf("value[%d]", id)
}

func (fn *FunctionIR) TypeOf(id RegID) uint32 {
	if int(id) < len(fn.Types) {
		return fn.Types[id]
	}
	return 0
}

// MarkRoots walks every name/constant this function keeps alive, for a
// host GC traversing the linkage (§9 "Host interop").
func (fn *FunctionIR) MarkRoots(visit func(any)) {
	if fn.LinkName != nil {
		visit(*fn.LinkName)
	}
	for _, name := range fn.RegisterNames {
		if name != "" {
			visit(name)
		}
	}
	for _, c := range fn.Constants {
		visit(c.Value)
	}
}
