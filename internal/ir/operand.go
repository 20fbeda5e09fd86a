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
package ir

// RegID is a per-function virtual register id. Ids at or above
// ConstantPrefix denote a typed constant operand instead of a register; the
// low 31 bits then index the function's constant table. This dual encoding
// keeps every "read" position a single u32 while letting it carry either a
// register or a constant. Preserve the encoding exactly: the checker and
// every lowering pass rely on the high bit.
type RegID uint32

const (
	MaxOperand     RegID = 0x7FFF_FFFF
	ConstantPrefix RegID = 0x8000_0000
)

func (r RegID) IsConstant() bool {
	return r >= ConstantPrefix
}

// ConstantIndex returns the constant-table index encoded in r. Callers must
// check IsConstant first.
func (r RegID) ConstantIndex() uint32 {
	return uint32(r &^ ConstantPrefix)
}

func MakeConstantOperand(index uint32) RegID {
	return ConstantPrefix | RegID(index)
}

// LabelID is minted per-function on first mention of a label, forward or
// otherwise.
type LabelID uint32

// CallingConvention selects argument-register assignment for a call site
// and, at the function level, for how parameters are received.
type CallingConvention int

const (
	CCSysV CallingConvention = iota
	CCWindows
)

func (cc CallingConvention) String() string {
	switch cc {
	case CCSysV:
		return "sysv"
	case CCWindows:
		return "windows"
	default:
		return "<bad calling convention>"
	}
}

func LookupCallingConvention(name string) (CallingConvention, bool) {
	switch name {
	case "sysv":
		return CCSysV, true
	case "windows":
		return CCWindows, true
	default:
		return 0, false
	}
}
