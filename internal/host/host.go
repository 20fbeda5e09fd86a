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

// Package host implements §6.1's public API: the six host-facing
// operations (context, asm, scalarize, to-c, to-ir, to-x64) any embedding
// program drives the compiler through, in pipeline order. This is the only
// package that knows the full asm -> scalarize -> to-c/to-ir/to-x64 order;
// everything beneath it (irparse, types, scalarize, cgen, x64) is usable
// standalone but does not enforce that order itself.
package host

import (
	"github.com/google/uuid"

	"ember/internal/ir"
)

// Marker lets a host collector (possibly not Go's own GC, per §9 "host
// interop") walk every name/constant a handle keeps alive, the same way
// ir.Linkage.MarkRoots/ir.FunctionIR.MarkRoots already do internally.
type Marker interface {
	MarkRoots(visit func(any))
}

// Context is the opaque linkage handle §6.1's context operation returns.
// A Context accumulates type definitions and registered functions across
// any number of Asm calls and is reusable for every subsequent pipeline
// stage.
type Context struct {
	ID      uuid.UUID
	linkage *ir.Linkage
}

var _ Marker = (*Context)(nil)

// MarkRoots walks everything this context's linkage keeps alive.
func (c *Context) MarkRoots(visit func(any)) {
	visit(c.ID)
	c.linkage.MarkRoots(visit)
}

// FunctionHandle is the opaque handle Asm returns for the function it just
// registered into its Context.
type FunctionHandle struct {
	ID uuid.UUID
	fn *ir.FunctionIR
}

var _ Marker = (*FunctionHandle)(nil)

// MarkRoots walks everything this function keeps alive.
func (h *FunctionHandle) MarkRoots(visit func(any)) {
	visit(h.ID)
	h.fn.MarkRoots(visit)
}

// LinkName reports the function's link name, or "" for a type-only module.
func (h *FunctionHandle) LinkName() string {
	if h.fn.LinkName == nil {
		return ""
	}
	return *h.fn.LinkName
}
