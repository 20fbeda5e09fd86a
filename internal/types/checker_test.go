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

package types_test

import (
	"strings"
	"testing"

	"ember/internal/ir"
	"ember/internal/irparse"
	"ember/internal/types"
)

func checkSource(t *testing.T, src string) error {
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
	return types.Check(fn)
}

func TestPointerAddTypeChecks(t *testing.T) {
	const src = `
		(link-name "padd")
		(parameter-count 0)
		(type-prim S32 s32)
		(type-pointer P S32)
		(bind d P)
		(bind p P)
		(pointer-add d p (S32 1))
		(return)
	`
	if err := checkSource(t, src); err != nil {
		t.Fatalf("expected pointer-add with an integer rhs to check, got %v", err)
	}
}

func TestPointerAddRejectsPointerRhs(t *testing.T) {
	const src = `
		(link-name "padd_bad")
		(parameter-count 0)
		(type-prim S32 s32)
		(type-pointer P S32)
		(bind d P)
		(bind p P)
		(bind q P)
		(pointer-add d p q)
		(return)
	`
	err := checkSource(t, src)
	if err == nil {
		t.Fatalf("expected pointer-add with a pointer rhs to fail")
	}
	if !strings.Contains(err.Error(), "expected integer") {
		t.Fatalf("expected an %q message, got %q", "expected integer", err)
	}
}

func TestMoveRequiresMatchingTypes(t *testing.T) {
	const src = `
		(link-name "badmove")
		(parameter-count 0)
		(type-prim S32 s32)
		(type-pointer P S32)
		(bind d S32)
		(bind p P)
		(move d p)
		(return)
	`
	err := checkSource(t, src)
	if err == nil {
		t.Fatalf("expected move across mismatched types to fail")
	}
	if !strings.Contains(err.Error(), "share a type") {
		t.Fatalf("expected a %q message, got %q", "share a type", err)
	}
}
