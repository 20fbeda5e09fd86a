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
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"ember/internal/cgen"
	"ember/internal/debugdump"
	"ember/internal/diag"
	"ember/internal/ir"
	"ember/internal/irparse"
	"ember/internal/scalarize"
	"ember/internal/types"
	"ember/internal/x64"
)

// Session is the host-facing driver of §6.1's pipeline. It carries no
// compilation state of its own -- every method takes the *Context the
// state lives in -- only the debug-printing switches a host can flip
// the way the teacher's compile package gates its own DebugPrint* consts.
type Session struct {
	DebugPrintIR  bool
	DebugPrintAsm bool
}

// NewSession returns a Session with debug printing off.
func NewSession() *Session {
	return &Session{}
}

// Context implements §6.1's context operation: a fresh, empty linkage.
func (s *Session) Context() *Context {
	return &Context{ID: uuid.New(), linkage: ir.NewLinkage()}
}

// Asm implements §6.1's asm(ctx, items) operation: it parses src as one
// tuple-encoded function body against ctx's linkage, infers and checks its
// types, and -- only once both succeed -- registers it into ctx (§7's "the
// partially-built function IR must not be registered"). On any failure the
// linkage is left exactly as it was usable for a subsequent Asm call,
// except for whatever type definitions/references the failed parse itself
// introduced (those are linkage-level, not function-level, and the
// linkage's own growth is monotonic and idempotent by construction).
func (s *Session) Asm(ctx *Context, src io.Reader) (*FunctionHandle, error) {
	fn, err := irparse.ParseReader(ctx.linkage, src)
	if err != nil {
		return nil, err
	}
	// Infer/Check both read fn.Linkage; wire it before they run, ahead of
	// RegisterFunction (which would otherwise be the first thing to set
	// it) since §7 forbids registering fn before it is known to be valid.
	fn.Linkage = ctx.linkage
	if err := types.Infer(fn); err != nil {
		return nil, err
	}
	if err := types.Check(fn); err != nil {
		return nil, err
	}
	if err := ctx.linkage.RegisterFunction(fn); err != nil {
		return nil, err
	}
	if s.DebugPrintIR {
		debugdump.Function(os.Stdout, fn)
	}
	return &FunctionHandle{ID: uuid.New(), fn: fn}, nil
}

// Scalarize implements §6.1's scalarize(ctx) operation: every real
// (non-type-only) function currently registered in ctx has its
// array-wise arithmetic/bitwise instructions rewritten into element-pointer
// loops (§4.3), in place. Compare instructions are not rewritten; the
// checker accepts only scalar or pointer operands for them.
func (s *Session) Scalarize(ctx *Context) error {
	for _, fn := range ctx.linkage.IRsOrdered {
		if fn.IsTypeOnly() {
			continue
		}
		if err := scalarize.Scalarize(fn); err != nil {
			return err
		}
	}
	return nil
}

// ToC implements §6.1's to-c(ctx[, buf]) operation, returning ISO C99
// source for every registered function.
func (s *Session) ToC(ctx *Context) (string, error) {
	out, err := cgen.Generate(ctx.linkage)
	if s.DebugPrintAsm && err == nil {
		fmt.Printf("== C ==\n%s\n", out)
	}
	return out, err
}

// ToIR implements §6.1's to-ir(ctx[, arr]) operation, round-tripping ctx
// back into the tuple surface syntax of §6.2: a leading typedefs module
// followed by one module per registered function.
func (s *Session) ToIR(ctx *Context) (modules []string, err error) {
	defer diag.Recover(&err)
	return irparse.Serialize(ctx.linkage), nil
}

// ToX64 implements §6.1's to-x64(ctx[, buf[, target]]) operation,
// returning NASM-syntax assembly lowered for target's calling convention.
func (s *Session) ToX64(ctx *Context, target x64.Target) (string, error) {
	out, err := x64.Generate(ctx.linkage, target)
	if s.DebugPrintAsm && err == nil {
		fmt.Printf("== x64(%s) ==\n%s\n", target, out)
		if reports, rerr := x64.ReportFrames(ctx.linkage, target); rerr == nil {
			debugdump.FrameReports(os.Stdout, reports)
		}
	}
	return out, err
}
