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

package host

import (
	"strings"
	"testing"

	"ember/internal/x64"
)

const identitySource = `
	(link-name "id")
	(parameter-count 1)
	(type-prim I32 s32)
	(bind 0 I32)
	(return 0)
`

// The full context -> asm -> to-c/to-ir/to-x64 pipeline round-trips a
// single function without touching scalarize.
func TestSessionPipelineIdentity(t *testing.T) {
	sess := NewSession()
	ctx := sess.Context()

	handle, err := sess.Asm(ctx, strings.NewReader(identitySource))
	if err != nil {
		t.Fatalf("asm: %v", err)
	}
	if handle.LinkName() != "id" {
		t.Fatalf("expected link name %q, got %q", "id", handle.LinkName())
	}

	c, err := sess.ToC(ctx)
	if err != nil {
		t.Fatalf("to-c: %v", err)
	}
	if !strings.Contains(c, "id(") {
		t.Fatalf("expected the function's C lowering to mention its link name, got:\n%s", c)
	}

	modules, err := sess.ToIR(ctx)
	if err != nil {
		t.Fatalf("to-ir: %v", err)
	}
	if len(modules) == 0 {
		t.Fatalf("expected at least one serialized module")
	}

	asm, err := sess.ToX64(ctx, x64.TargetLinux)
	if err != nil {
		t.Fatalf("to-x64: %v", err)
	}
	if !strings.Contains(asm, "id:\n") {
		t.Fatalf("expected an id: label in the lowered assembly, got:\n%s", asm)
	}
}

// asm twice against the same context accumulates both functions; a second
// Asm call sharing a duplicate link name is rejected without disturbing the
// first registration. The second source reuses I32 by reference (the type
// is already defined in ctx's linkage from the first Asm call) rather than
// redefining it, so the only thing that conflicts is the link name itself.
const identityAgainSource = `
	(link-name "id")
	(parameter-count 1)
	(bind 0 I32)
	(return 0)
`

func TestSessionAsmAccumulatesAndRejectsDuplicates(t *testing.T) {
	sess := NewSession()
	ctx := sess.Context()

	if _, err := sess.Asm(ctx, strings.NewReader(identitySource)); err != nil {
		t.Fatalf("first asm: %v", err)
	}
	if _, err := sess.Asm(ctx, strings.NewReader(identityAgainSource)); err == nil {
		t.Fatalf("expected the second asm of link name %q to fail", "id")
	}

	c, err := sess.ToC(ctx)
	if err != nil {
		t.Fatalf("to-c after a rejected duplicate: %v", err)
	}
	if strings.Count(c, "id(") != 1 {
		t.Fatalf("expected exactly one surviving definition of id, got:\n%s", c)
	}
}

// scalarize(ctx) rewrites an array-wise add into an element loop before
// lowering; to-x64 only accepts the scalarized form (internal/x64
// raises a lowering error on an array-shaped operand).
func TestSessionScalarizeThenLower(t *testing.T) {
	const src = `
		(link-name "arradd")
		(parameter-count 0)
		(type-prim S32 s32)
		(type-array A S32 4)
		(bind a A)
		(bind b A)
		(bind c A)
		(add c a b)
		(return)
	`
	sess := NewSession()
	ctx := sess.Context()
	if _, err := sess.Asm(ctx, strings.NewReader(src)); err != nil {
		t.Fatalf("asm: %v", err)
	}
	if err := sess.Scalarize(ctx); err != nil {
		t.Fatalf("scalarize: %v", err)
	}

	asm, err := sess.ToX64(ctx, x64.TargetNative)
	if err != nil {
		t.Fatalf("to-x64 after scalarize: %v", err)
	}
	if !strings.Contains(asm, "arradd:\n") {
		t.Fatalf("expected an arradd: label, got:\n%s", asm)
	}
}

func TestSessionDebugPrintingDoesNotAffectOutput(t *testing.T) {
	sess := NewSession()
	sess.DebugPrintIR = true
	sess.DebugPrintAsm = true
	ctx := sess.Context()
	if _, err := sess.Asm(ctx, strings.NewReader(identitySource)); err != nil {
		t.Fatalf("asm: %v", err)
	}
	if _, err := sess.ToC(ctx); err != nil {
		t.Fatalf("to-c with debug printing enabled: %v", err)
	}
	if _, err := sess.ToX64(ctx, x64.TargetNative); err != nil {
		t.Fatalf("to-x64 with debug printing enabled: %v", err)
	}
}
