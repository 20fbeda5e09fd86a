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

package x64

import (
	"strings"
	"testing"

	"ember/internal/ir"
	"ember/internal/irparse"
	"ember/internal/types"
)

func lowerToX64(t *testing.T, src string, target Target) string {
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
	out, err := Generate(linkage, target)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return out
}

// A compare whose dest feeds the very next branch fuses into cmp+jcc with
// no intervening setCC/movzx (§4.5).
func TestCompareBranchFusion(t *testing.T) {
	const src = `
		(link-name "cmpbr")
		(parameter-count 2)
		(type-prim I32 s32)
		(type-prim B boolean)
		(bind 0 I32)
		(bind 1 I32)
		(bind t B)
		(lt t 0 1)
		(branch t :target)
		(return 0)
		:target
		(return 1)
	`
	out := lowerToX64(t, src, TargetNative)
	if !strings.Contains(out, "cmp") {
		t.Fatalf("expected a cmp instruction, got:\n%s", out)
	}
	if !strings.Contains(out, "jl .L") {
		t.Fatalf("expected a fused jl, got:\n%s", out)
	}
	if strings.Contains(out, "setl") {
		t.Fatalf("expected fusion to elide setl, got:\n%s", out)
	}
	if strings.Contains(out, "movzx") {
		t.Fatalf("expected fusion to elide movzx, got:\n%s", out)
	}
}

// When a label targets the instruction right after the compare, fusion must
// not swallow the branch (the label needs somewhere to land on), so the
// compare renders as a plain cmp+setCC instead.
func TestCompareNotFusedAcrossLabel(t *testing.T) {
	const src = `
		(link-name "cmpnofuse")
		(parameter-count 2)
		(type-prim I32 s32)
		(type-prim B boolean)
		(bind 0 I32)
		(bind 1 I32)
		(bind t B)
		(lt t 0 1)
		:mid
		(branch t :target)
		(return 0)
		:target
		(return 1)
	`
	out := lowerToX64(t, src, TargetNative)
	if !strings.Contains(out, "setl") {
		t.Fatalf("expected an un-fused setl since a label sits on the branch, got:\n%s", out)
	}
}

// A six-argument sysv call pushes/restores the six argument registers and
// moves each argument into place before the call, per §4.5's skeleton.
// Callee-saved registers the function uses (here rbx, rsi, rdi) are pushed
// by the prologue, so only the call sequence itself is checked for extra
// pushes.
func TestSixArgumentCall(t *testing.T) {
	const src = `
		(link-name "caller")
		(parameter-count 0)
		(type-prim I32 s32)
		(type-pointer PF I32)
		(bind a I32)
		(bind b I32)
		(bind c I32)
		(bind d I32)
		(bind e I32)
		(bind g I32)
		(bind r I32)
		(move a (I32 1))
		(move b (I32 2))
		(move c (I32 3))
		(move d (I32 4))
		(move e (I32 5))
		(move g (I32 6))
		(call :sysv r (PF "callee") a b c d e g)
		(return r)
	`
	out := lowerToX64(t, src, TargetNative)
	for _, reg := range []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"} {
		if !strings.Contains(out, "push "+reg+"\n") {
			t.Fatalf("expected a push of argument register %s, got:\n%s", reg, out)
		}
		if !strings.Contains(out, "pop "+reg+"\n") {
			t.Fatalf("expected a pop of argument register %s, got:\n%s", reg, out)
		}
	}
	if !strings.Contains(out, "call callee\n") {
		t.Fatalf("expected the call instruction, got:\n%s", out)
	}
	start := strings.Index(out, "  push rdi\n  mov rdi, ")
	end := strings.Index(out, "call callee\n")
	if start < 0 || end < start {
		t.Fatalf("expected the argument sequence to precede the call, got:\n%s", out)
	}
	dance := out[start:end]
	if strings.Contains(dance, "push rax\n") || strings.Contains(dance, "push rbx\n") {
		t.Fatalf("expected only the six sysv argument registers pushed around the call, got:\n%s", out)
	}
}

// Frame sizes are always a multiple of 16, satisfying the sysv stack
// alignment requirement at the call boundary (§4.5/P8).
func TestFrameSizeIsSixteenByteAligned(t *testing.T) {
	const src = `
		(link-name "spillmany")
		(parameter-count 0)
		(type-prim I32 s32)
		(bind r0 I32) (bind r1 I32) (bind r2 I32) (bind r3 I32)
		(bind r4 I32) (bind r5 I32) (bind r6 I32) (bind r7 I32)
		(bind r8 I32) (bind r9 I32) (bind r10 I32) (bind r11 I32)
		(bind r12 I32) (bind r13 I32) (bind r14 I32) (bind r15 I32)
		(bind r16 I32) (bind r17 I32)
		(return)
	`
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
	reports, err := ReportFrames(linkage, TargetNative)
	if err != nil {
		t.Fatalf("report frames: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one frame report, got %d", len(reports))
	}
	if reports[0].SpilledRegisters == 0 {
		t.Fatalf("expected at least one spilled register with 18 live values, got 0")
	}
	if reports[0].FrameSize%16 != 0 {
		t.Fatalf("expected a 16-byte-aligned frame size, got %d", reports[0].FrameSize)
	}
}

func TestLookupTarget(t *testing.T) {
	for _, tc := range []struct {
		name string
		want Target
	}{
		{"native", TargetNative},
		{"linux", TargetLinux},
		{"windows", TargetWindows},
	} {
		got, ok := LookupTarget(tc.name)
		if !ok || got != tc.want {
			t.Fatalf("LookupTarget(%q) = %v, %v; want %v, true", tc.name, got, ok, tc.want)
		}
	}
	if _, ok := LookupTarget("bogus"); ok {
		t.Fatalf("expected LookupTarget(\"bogus\") to fail")
	}
}
