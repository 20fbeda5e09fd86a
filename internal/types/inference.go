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

// Package types implements §4.2: the post-parse inference sweep that
// confirms every register landed a concrete type, and the per-opcode
// checker that enforces typing contracts.
//
// Type-forming ops (type-prim/type-pointer/type-array/type-struct/
// type-union) and type-bind are assembled into linkage.TypeDefs and
// function.Types while irparse walks the tuple stream -- that IS the
// "single forward pass" §4.2 describes, just run inline rather than as a
// second traversal. Infer is the pass's closing half: the concreteness
// sweep that has to wait until an entire function (and, transitively, any
// type-only modules it forward-referenced) has been parsed.
package types

import (
	"ember/internal/diag"
	"ember/internal/ir"
)

// Infer verifies that every register of a real function ended up with a
// concrete type. The return type is not examined here; Check records it.
// Type-only modules carry no registers and are accepted unconditionally.
func Infer(fn *ir.FunctionIR) (err error) {
	defer diag.Recover(&err)
	inferFunction(fn)
	return nil
}

func inferFunction(fn *ir.FunctionIR) {
	if fn.IsTypeOnly() {
		return
	}
	linkage := fn.Linkage
	for r := ir.RegID(0); int(r) < len(fn.Types); r++ {
		typeID := fn.Types[r]
		info, err := linkage.Type(typeID)
		if err != nil || !info.IsDefined() {
			diag.Raise(diag.InferenceError, "unable to infer type for register %s", fn.RegisterName(r))
		}
	}
}
