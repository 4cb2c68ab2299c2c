package vm

import (
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variant held by a Value.
type Kind uint8

const (
	KindNone    Kind = iota // no value
	KindInt                 // signed 32-bit integer
	KindFloat               // 32-bit IEEE-754 float
	KindString              // owned, interned string
	KindCString             // borrowed view into an interned string
	KindMacro               // borrowed view into raw bytes inside a bytecode block
	KindCode                // bytecode reference
	KindIdent               // identifier-table reference
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindCString:
		return "cstring"
	case KindMacro:
		return "macro"
	case KindCode:
		return "code"
	case KindIdent:
		return "ident"
	default:
		return "invalid"
	}
}

// Value is CubeScript's tagged union: exactly one of the fields below is
// meaningful at a time, selected by kind. It is always passed by value;
// non-trivial variants (owned strings, code references) must be released
// explicitly via Release when a slot is overwritten or goes out of scope.
type Value struct {
	kind  Kind
	i     int32
	f     float32
	str   *InternedString // KindString (owned) or KindCString (borrowed)
	macro []byte          // KindMacro: valid only while the owning block lives
	code  CodeRef         // KindCode
	id    *Ident          // KindIdent
}

// None is the zero value: kind none.
var None = Value{kind: KindNone}

func IntValue(i int32) Value     { return Value{kind: KindInt, i: i} }
func FloatValue(f float32) Value { return Value{kind: KindFloat, f: f} }
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// StringValue wraps an owned interned string. The caller transfers its
// reference to the returned Value; Release will Unref it.
func StringValue(s *InternedString) Value { return Value{kind: KindString, str: s} }

// CStringValue wraps a borrowed view of an interned string. No refcount
// is taken or released for this variant.
func CStringValue(s *InternedString) Value { return Value{kind: KindCString, str: s} }

// MacroValue wraps a borrowed slice of raw bytes living inside some
// bytecode block's constant data. Valid only while that block lives.
func MacroValue(b []byte) Value { return Value{kind: KindMacro, macro: b} }

// CodeValue wraps a bytecode reference. The caller transfers ownership of
// the ref (c is assumed already Ref'd for this Value).
func CodeValue(c CodeRef) Value { return Value{kind: KindCode, code: c} }

// IdentValue wraps a reference into the identifier table.
func IdentValue(id *Ident) Value { return Value{kind: KindIdent, id: id} }

func (v Value) Kind() Kind { return v.kind }

// Code returns the bytecode reference for a KindCode value.
func (v Value) Code() CodeRef { return v.code }

// Ident returns the identifier reference for a KindIdent value.
func (v Value) Ident() *Ident { return v.id }

// Release cleans up non-trivial variants: unreferences an owned string or
// bytecode block. It is a no-op for the other kinds. After Release, v is
// reset to None.
func (v *Value) Release(strs *StringTable) {
	switch v.kind {
	case KindString:
		strs.Unref(v.str)
	case KindCode:
		v.code.Unref()
	}
	*v = None
}

// Clone produces an independent copy, taking a new reference for owned
// variants (String, Code) so the original and the clone can be released
// independently.
func (v Value) Clone(strs *StringTable) Value {
	switch v.kind {
	case KindString:
		strs.Ref(v.str)
	case KindCode:
		v.code.Ref()
	}
	return v
}

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// ForceInt coerces v to a 32-bit integer. Coercion from string/macro
// parses with the same numeric rules as the parser (ParseNumeric); a
// non-numeric string yields 0. Coercion from null yields 0.
func (v Value) ForceInt() int32 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int32(v.f)
	case KindString, KindCString:
		i, f, isFloat, ok := ParseNumeric(v.str.String())
		if !ok {
			return 0
		}
		if isFloat {
			return int32(f)
		}
		return i
	case KindMacro:
		i, f, isFloat, ok := ParseNumeric(string(v.macro))
		if !ok {
			return 0
		}
		if isFloat {
			return int32(f)
		}
		return i
	default:
		return 0
	}
}

// ForceFloat coerces v to a 32-bit float, by the same rules as ForceInt.
func (v Value) ForceFloat() float32 {
	switch v.kind {
	case KindInt:
		return float32(v.i)
	case KindFloat:
		return v.f
	case KindString, KindCString:
		i, f, isFloat, ok := ParseNumeric(v.str.String())
		if !ok {
			return 0
		}
		if isFloat {
			return f
		}
		return float32(i)
	case KindMacro:
		i, f, isFloat, ok := ParseNumeric(string(v.macro))
		if !ok {
			return 0
		}
		if isFloat {
			return f
		}
		return float32(i)
	default:
		return 0
	}
}

// ForceStr coerces v to its string representation. For KindString and
// KindCString it returns the interned content; for numeric kinds it
// formats with strconv. int -> str -> int is the identity; floats print
// with at most 7 significant digits (whole numbers with a trailing
// ".0"), so float -> str -> float is the identity only for values that
// need no more digits than that (1.0000001 prints as "1").
func (v Value) ForceStr() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(int64(v.i), 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString, KindCString:
		return v.str.String()
	case KindMacro:
		return string(v.macro)
	case KindIdent:
		if v.id != nil {
			return v.id.Name
		}
		return ""
	default:
		return ""
	}
}

func formatFloat(f float32) string {
	if float64(f) == math.Trunc(float64(f)) && !math.IsInf(float64(f), 0) {
		return strconv.FormatFloat(float64(f), 'f', 1, 32)
	}
	return strconv.FormatFloat(float64(f), 'g', 7, 32)
}

// GetBool reports whether v is truthy: a nonzero integer, a nonzero
// float, or a string that is not "", "0", or "0.0" (spec §3).
func (v Value) GetBool() bool {
	switch v.kind {
	case KindNone:
		return false
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString, KindCString:
		return isTruthyString(v.str.String())
	case KindMacro:
		return isTruthyString(string(v.macro))
	case KindCode, KindIdent:
		return true
	default:
		return false
	}
}

func isTruthyString(s string) bool {
	switch s {
	case "", "0", "0.0":
		return false
	default:
		return true
	}
}

// ParseNumeric parses a numeric literal with the parser's own rules:
// optional leading sign, 0x/0X hex integers, decimal integers, and
// floats with a '.' or an exponent. ok is false unless all of s (after
// trimming surrounding space) is a numeric literal, so "12abc" is not
// numeric (ForceInt/ForceFloat then yield 0).
func ParseNumeric(s string) (i int32, f float32, isFloat bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false, false
	}
	neg := false
	rest := s
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if len(rest) > 1 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		n, err := strconv.ParseUint(rest[2:], 16, 64)
		if err != nil {
			return 0, 0, false, false
		}
		v := int32(n)
		if neg {
			v = -v
		}
		return v, float32(v), false, true
	}
	isFloatLit := strings.ContainsAny(rest, ".eE") && rest != ""
	if isFloatLit {
		val, err := strconv.ParseFloat(s, 32)
		if err != nil {
			// fall through to integer parse below; e.g. a bare "e" is
			// not actually a float literal.
		} else {
			return int32(val), float32(val), true, true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, 0, false, false
	}
	return int32(n), float32(n), false, true
}
