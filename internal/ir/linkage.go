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
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Linkage is the shared container a set of functions accumulate type
// definitions into and are emitted together from. A linkage is created
// empty, grows monotonically, and is consumed (possibly many times,
// idempotently) by the lowering passes.
type Linkage struct {
	ID uuid.UUID

	TypeDefs  []TypeInfo
	TypeNames []string // TypeNames[id], "" if the type was never named
	Fields    []Field

	IRsByName  map[string]*FunctionIR
	IRsOrdered []*FunctionIR

	// typeNameIndex maps a surface type name to the id reserved for it.
	// The reservation may or may not be defined yet (TypeDefs[id].Prim may
	// still be PrimUnknown) -- that's what makes forward references work.
	typeNameIndex map[string]uint32
}

func NewLinkage() *Linkage {
	l := &Linkage{
		ID:            uuid.New(),
		IRsByName:     make(map[string]*FunctionIR),
		typeNameIndex: make(map[string]uint32),
	}
	// id 0 is the reserved unknown primitive, defined up front so every
	// other type id is >= 1.
	l.TypeDefs = append(l.TypeDefs, TypeInfo{Prim: PrimUnknown})
	l.TypeNames = append(l.TypeNames, "")
	return l
}

// reserve returns the id for name, minting a fresh unknown-typed slot if
// this is the first mention.
func (l *Linkage) reserve(name string) uint32 {
	if id, ok := l.typeNameIndex[name]; ok {
		return id
	}
	id := uint32(len(l.TypeDefs))
	l.TypeDefs = append(l.TypeDefs, TypeInfo{Prim: PrimUnknown})
	l.TypeNames = append(l.TypeNames, name)
	l.typeNameIndex[name] = id
	return id
}

// ReferenceType resolves a name that must already exist (named or
// forward-referenced); it does not have to be defined yet.
func (l *Linkage) ReferenceType(name string) (uint32, error) {
	if id, ok := l.typeNameIndex[name]; ok {
		return id, nil
	}
	return 0, errors.Errorf("unknown referenced type %q", name)
}

// ForwardRefType resolves or mints a placeholder id for name, to be bound
// by a later definition.
func (l *Linkage) ForwardRefType(name string) uint32 {
	return l.reserve(name)
}

// DefineType binds name to a concrete TypeInfo, minting the id if this is
// the first mention (no forward reference occurred) or filling in a
// previously reserved placeholder. Redefining an already-concrete type is
// an error (§3.3: "once defined, must not be redefined").
func (l *Linkage) DefineType(name string, info TypeInfo) (uint32, error) {
	id := l.reserve(name)
	if l.TypeDefs[id].IsDefined() {
		return id, errors.Errorf("cannot redefine type %s", name)
	}
	l.TypeDefs[id] = info
	return id, nil
}

// DefineAnonymousType mints a fresh type id with no surface name (used by
// scalarization to mint the loop index type).
func (l *Linkage) DefineAnonymousType(info TypeInfo) uint32 {
	id := uint32(len(l.TypeDefs))
	l.TypeDefs = append(l.TypeDefs, info)
	l.TypeNames = append(l.TypeNames, "")
	return id
}

func (l *Linkage) TypeName(id uint32) string {
	if int(id) >= len(l.TypeNames) {
		return ""
	}
	if name := l.TypeNames[id]; name != "" {
		return name
	}
	return l.TypeDefs[id].Prim.String()
}

func (l *Linkage) Type(id uint32) (TypeInfo, error) {
	if int(id) >= len(l.TypeDefs) {
		return TypeInfo{}, errors.Errorf("type id %d out of range", id)
	}
	return l.TypeDefs[id], nil
}

// AppendFields grows the append-only field pool and returns (start, count).
func (l *Linkage) AppendFields(fieldTypes []uint32) (uint32, uint32) {
	start := uint32(len(l.Fields))
	for _, t := range fieldTypes {
		l.Fields = append(l.Fields, Field{TypeID: t})
	}
	return start, uint32(len(fieldTypes))
}

// RegisterFunction adds fn to the linkage. The partially-built fn must not
// be registered if asm() failed earlier (§7 policy): callers are expected
// to only call this once fn is fully parsed and structurally valid.
func (l *Linkage) RegisterFunction(fn *FunctionIR) error {
	if fn.LinkName != nil {
		if _, exists := l.IRsByName[*fn.LinkName]; exists {
			return errors.Errorf("duplicate function link name %q", *fn.LinkName)
		}
		l.IRsByName[*fn.LinkName] = fn
	}
	fn.Linkage = l
	l.IRsOrdered = append(l.IRsOrdered, fn)
	return nil
}

// MarkRoots lets a host GC walk every name/constant this linkage keeps
// alive: type names, and (transitively) each function's constants and
// register names. See internal/host for the public Marker surface this
// backs.
func (l *Linkage) MarkRoots(visit func(any)) {
	for _, name := range l.TypeNames {
		if name != "" {
			visit(name)
		}
	}
	for _, fn := range l.IRsOrdered {
		fn.MarkRoots(visit)
	}
}
