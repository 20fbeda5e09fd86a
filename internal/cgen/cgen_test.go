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

package cgen_test

import (
	"strings"
	"testing"

	"ember/internal/cgen"
	"ember/internal/ir"
	"ember/internal/irparse"
	"ember/internal/types"
)

func compileToC(t *testing.T, src string) string {
	t.Helper()
	linkage := ir.NewLinkage()
	fn, err := irparse.ParseReader(linkage, strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fn.Linkage = linkage
	if err := types.Infer(fn); err != nil {
		t.Fatalf("infer: %v", err)
	}
	if err := types.Check(fn); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := linkage.RegisterFunction(fn); err != nil {
		t.Fatalf("register: %v", err)
	}
	out, err := cgen.Generate(linkage)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return out
}

func TestIdentityIntFunction(t *testing.T) {
	const src = `
		(link-name "id")
		(parameter-count 1)
		(type-prim I32 s32)
		(bind 0 I32)
		(return 0)
	`
	out := compileToC(t, src)
	if !strings.Contains(out, "typedef int32_t _t1;") {
		t.Fatalf("expected an int32_t typedef, got:\n%s", out)
	}
	if !strings.Contains(out, "_t1 id(_t1 _r0) { return _r0; }") &&
		!strings.Contains(out, "_t1 id(_t1 _r0) {\n#line 6\n  return _r0;\n}") {
		t.Fatalf("expected the identity function body, got:\n%s", out)
	}
}

func TestCallCalleeRendersAsIdentifier(t *testing.T) {
	const src = `
		(link-name "callee")
		(parameter-count 0)
		(return)
	`
	linkage := ir.NewLinkage()
	calleeFn, err := irparse.ParseReader(linkage, strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse callee: %v", err)
	}
	calleeFn.Linkage = linkage
	if err := types.Infer(calleeFn); err != nil {
		t.Fatalf("infer callee: %v", err)
	}
	if err := types.Check(calleeFn); err != nil {
		t.Fatalf("check callee: %v", err)
	}
	if err := linkage.RegisterFunction(calleeFn); err != nil {
		t.Fatalf("register callee: %v", err)
	}

	const callerSrc = `
		(link-name "caller")
		(parameter-count 0)
		(type-pointer PF callee)
		(call :sysv nil (PF "callee"))
		(return)
	`
	callerFn, err := irparse.ParseReader(linkage, strings.NewReader(callerSrc))
	if err != nil {
		t.Fatalf("parse caller: %v", err)
	}
	callerFn.Linkage = linkage
	if err := types.Infer(callerFn); err != nil {
		t.Fatalf("infer caller: %v", err)
	}
	if err := types.Check(callerFn); err != nil {
		t.Fatalf("check caller: %v", err)
	}
	if err := linkage.RegisterFunction(callerFn); err != nil {
		t.Fatalf("register caller: %v", err)
	}

	out, err := cgen.Generate(linkage)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "callee();") {
		t.Fatalf("expected a bare identifier call, got:\n%s", out)
	}
	if strings.Contains(out, `"callee"()`) {
		t.Fatalf("callee rendered as a string literal instead of an identifier:\n%s", out)
	}
}
