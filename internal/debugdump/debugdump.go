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

// Package debugdump ports the teacher's Debug*-boolean-gated fmt.Printf
// dump helpers (DebugPrintTypedAst, DebugDumpSSA, ...) into a small set of
// functions a host calls explicitly rather than package-level consts a
// maintainer flips before rebuilding -- the same dumps, reusable by any
// embedding program.
package debugdump

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/kr/text"

	"ember/internal/ir"
	"ember/internal/x64"
)

// Linkage writes a struct dump of every type definition and registered
// function link name in linkage, indented one level.
func Linkage(w io.Writer, linkage *ir.Linkage) {
	fmt.Fprintf(w, "== linkage %s ==\n", linkage.ID)
	var body string
	for id, name := range linkage.TypeNames {
		if name == "" {
			continue
		}
		body += fmt.Sprintf("type %d -> %s %# v\n", id, name, pretty.Formatter(linkage.TypeDefs[id]))
	}
	for _, fn := range linkage.IRsOrdered {
		if fn.LinkName != nil {
			body += fmt.Sprintf("fn %s (%d register(s), %d instruction(s))\n",
				*fn.LinkName, fn.RegisterCount, len(fn.Instructions))
		} else {
			body += fmt.Sprintf("type-only module %s\n", fn.ID)
		}
	}
	io.WriteString(w, text.Indent(body, "  "))
}

// Function writes a struct dump of one function's instruction stream.
func Function(w io.Writer, fn *ir.FunctionIR) {
	name := fn.ID.String()
	if fn.LinkName != nil {
		name = *fn.LinkName
	}
	fmt.Fprintf(w, "== function %s ==\n", name)
	body := fmt.Sprintf("%# v\n", pretty.Formatter(fn.Instructions))
	io.WriteString(w, text.Indent(body, "  "))
}

// FrameReports writes one line per function reported by x64.ReportFrames,
// rendering frame/spill byte counts through humanize.Bytes the way a
// memory-budget-conscious trace would (mirrors the teacher's own appetite
// for human-readable byte counts in build logging).
func FrameReports(w io.Writer, reports []x64.FrameReport) {
	for _, r := range reports {
		fmt.Fprintf(w, "frame %s: %s (%d spilled register(s), callee-saved %v)\n",
			r.LinkName, humanize.Bytes(uint64(r.FrameSize)), r.SpilledRegisters, r.CalleeSaved)
	}
}
