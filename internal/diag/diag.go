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

// Package diag implements the six-category diagnostic taxonomy of §7:
// parse, linkage, inference, type, structural and lowering errors. Every
// diagnostic is fatal to the current compilation call (§7 policy) -- raised
// as a panic carrying a *Error, recovered and turned back into a normal Go
// error at the host API boundary (internal/host), the same way the teacher
// surfaces a host exception.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	ParseError Kind = iota
	LinkageError
	InferenceError
	TypeError
	StructuralError
	LoweringError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case LinkageError:
		return "linkage error"
	case InferenceError:
		return "inference error"
	case TypeError:
		return "type error"
	case StructuralError:
		return "structural error"
	case LoweringError:
		return "lowering error"
	default:
		return "error"
	}
}

// Error is the value every diagnostic panic carries. Opcode/Register/TypeA/
// TypeB are populated when relevant so a host can render a precise message
// without re-parsing the wrapped text (§6.4).
type Error struct {
	Kind     Kind
	Opcode   string
	Register string
	TypeA    string
	TypeB    string
	Tuple    string
	cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.cause)
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Raise panics with a bare diagnostic of the given kind and message.
func Raise(kind Kind, format string, args ...any) {
	panic(&Error{Kind: kind, cause: errors.Errorf(format, args...)})
}

// RaiseType panics with a type-checker diagnostic carrying opcode/register/
// type context, per §6.4's "every type-checker message includes the opcode
// name... the named register... and both named types".
func RaiseType(opcode, register, typeA, typeB, format string, args ...any) {
	panic(&Error{
		Kind:     TypeError,
		Opcode:   opcode,
		Register: register,
		TypeA:    typeA,
		TypeB:    typeB,
		cause:    errors.Errorf(format, args...),
	})
}

// RaiseParse panics with a parse diagnostic carrying the offending tuple
// verbatim (§6.4).
func RaiseParse(tuple string, format string, args ...any) {
	panic(&Error{Kind: ParseError, Tuple: tuple, cause: errors.Errorf(format, args...)})
}

// Recover converts a panic carrying a *Error into a normal error return.
// Any other panic value is re-raised: only diagnostics raised through this
// package are part of the documented error contract.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if de, ok := r.(*Error); ok {
		*errp = de
		return
	}
	panic(r)
}
