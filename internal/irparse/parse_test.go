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
	"strings"
	"testing"

	"ember/internal/ir"
)

func mustParse(t *testing.T, linkage *ir.Linkage, src string) *ir.FunctionIR {
	t.Helper()
	fn, err := ParseReader(linkage, strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseReader(%q): %v", src, err)
	}
	return fn
}

func TestParseIdentityFunction(t *testing.T) {
	linkage := ir.NewLinkage()
	fn := mustParse(t, linkage, `
		(link-name "id")
		(parameter-count 1)
		(type-prim I32 s32)
		(bind 0 I32)
		(return 0)
	`)
	if fn.LinkName == nil || *fn.LinkName != "id" {
		t.Fatalf("expected link name %q, got %v", "id", fn.LinkName)
	}
	if fn.ParameterCount != 1 {
		t.Fatalf("expected parameter count 1, got %d", fn.ParameterCount)
	}
	if len(fn.Instructions) != 3 || fn.Instructions[0].Opcode != ir.OpTypePrim ||
		fn.Instructions[1].Opcode != ir.OpTypeBind || fn.Instructions[2].Opcode != ir.OpReturn {
		t.Fatalf("expected type-prim, bind, return instructions, got %v", fn.Instructions)
	}
}

func TestParseRedefinedTypeFails(t *testing.T) {
	linkage := ir.NewLinkage()
	if _, err := ParseReader(linkage, strings.NewReader(`(type-prim T u8)`)); err != nil {
		t.Fatalf("first definition of T: %v", err)
	}
	_, err := ParseReader(linkage, strings.NewReader(`(type-prim T u8)`))
	if err == nil {
		t.Fatalf("expected redefining T to fail")
	}
	if !strings.Contains(err.Error(), "redefine type T") {
		t.Fatalf("expected a redefinition message, got %q", err)
	}
}

func TestParseDuplicateLinkNameFails(t *testing.T) {
	linkage := ir.NewLinkage()
	first := mustParse(t, linkage, `
		(link-name "f")
		(parameter-count 0)
		(return)
	`)
	if err := linkage.RegisterFunction(first); err != nil {
		t.Fatalf("registering first %q: %v", "f", err)
	}
	second := mustParse(t, linkage, `
		(link-name "f")
		(parameter-count 0)
		(return)
	`)
	if err := linkage.RegisterFunction(second); err == nil {
		t.Fatalf("expected duplicate link name to fail registration")
	}
}

func TestConstantDedup(t *testing.T) {
	linkage := ir.NewLinkage()
	fn := mustParse(t, linkage, `
		(link-name "consts")
		(parameter-count 0)
		(type-prim I32 s32)
		(move a (I32 7))
		(move b (I32 7))
		(return)
	`)
	if len(fn.Constants) != 1 {
		t.Fatalf("expected one deduplicated constant, got %d: %v", len(fn.Constants), fn.Constants)
	}
}
