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

package scalarize

import (
	"strings"
	"testing"

	"ember/internal/ir"
	"ember/internal/irparse"
	"ember/internal/types"
)

func TestScalarizeArrayAdd(t *testing.T) {
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
	if err := Scalarize(fn); err != nil {
		t.Fatalf("scalarize: %v", err)
	}

	var labelsAtLoopStart, labelsAtLoopEnd, branches, adds, jumps int
	var firstAddSeenAt, jumpSeenAt, branchSeenAt = -1, -1, -1
	for idx, instr := range fn.Instructions {
		switch instr.Opcode {
		case ir.OpBranch:
			branches++
			branchSeenAt = idx
		case ir.OpAdd:
			// two OpAdds appear per loop: the element-wise add itself,
			// then the index increment (index = index + 1).
			adds++
			if firstAddSeenAt < 0 {
				firstAddSeenAt = idx
			}
		case ir.OpJump:
			jumps++
			jumpSeenAt = idx
		}
	}
	addSeenAt := firstAddSeenAt
	for id, pos := range fn.Labels {
		if fn.LabelName(id) == "_scalarize_loop_start_1" {
			labelsAtLoopStart = int(pos)
		}
		if fn.LabelName(id) == "_scalarize_loop_end_2" {
			labelsAtLoopEnd = int(pos)
		}
	}

	if branches != 1 {
		t.Fatalf("expected exactly one branch, got %d", branches)
	}
	// two OpAdd: the element-wise add itself and the index increment.
	if adds != 2 {
		t.Fatalf("expected exactly two add instructions (element add + index increment), got %d", adds)
	}
	if jumps != 1 {
		t.Fatalf("expected exactly one jump, got %d", jumps)
	}
	if !(labelsAtLoopStart < branchSeenAt && branchSeenAt < addSeenAt && addSeenAt < jumpSeenAt && jumpSeenAt <= labelsAtLoopEnd) {
		t.Fatalf("expected loop_start < branch < add < jump <= loop_end, got %d %d %d %d %d",
			labelsAtLoopStart, branchSeenAt, addSeenAt, jumpSeenAt, labelsAtLoopEnd)
	}
}
