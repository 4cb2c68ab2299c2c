package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Command argument format strings (spec §4.4)
// ---------------------------------------------------------------------------
//
// Each native command is registered with a format string describing how
// the compiler should coerce the argument words that follow its call
// into the Values its CommandFunc receives:
//
//	i   integer              S   string (forced, same as s)
//	b   integer, defaulting to math.MinInt32 if omitted    t   any value, untouched
//	f   float                T   any value, for a "type peek" argument
//	F   float, defaulting to the previous argument's value if omitted
//	s   string (forced)      E   a condition-position code value
//	e   a code-block argument (compiled from a string/braced block)
//	r   a raw ident reference (not looked up)
//	$   accepted in a format string but inserts nothing: the command
//	    does not receive its own identifier
//	N   number of arguments actually supplied, passed implicitly
//	1-4 marks the preceding N letters as a repeating group: once a call
//	    supplies more arguments than the fixed letters ahead of it need,
//	    the group cycles through its letters once per remaining argument;
//	    a letter left over at the end with no argument to bind is simply
//	    absent from the result, not padded with a default
//	C   concatenate all remaining arguments into one string (must be last)
//	V   pass all remaining arguments through uncoerced (must be last)
//
// C and V consume the rest of the call and so may only appear as the
// final letter; registering a format with trailing letters after either
// is a programmer error caught eagerly here rather than at call time.
func ValidateFormat(format string) error {
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case 'i', 'b', 'f', 'F', 's', 'S', 't', 'T', 'E', 'e', 'r', '$', 'N':
			// ordinary letter, always legal here
		case '1', '2', '3', '4':
			if i == 0 {
				return fmt.Errorf("cubescript: format %q: repeat digit with no preceding letter", format)
			}
			switch format[i-1] {
			case 'C', 'V', '1', '2', '3', '4', '$', 'N':
				return fmt.Errorf("cubescript: format %q: digit %q cannot repeat %q", format, c, format[i-1])
			}
		case 'C', 'V':
			if i != len(format)-1 {
				return fmt.Errorf("cubescript: format %q: %q must be the last letter", format, c)
			}
		default:
			return fmt.Errorf("cubescript: format %q: unknown letter %q", format, c)
		}
	}
	return nil
}

// formatLetter is one parsed element of a format string: either a single
// ordinary letter, or a repeating group of the preceding N letters a
// digit (1-4) marks as variadic for a call supplying more than N
// arguments at that position.
type formatLetter struct {
	letters []byte
	repeat  bool
}

func parseFormat(format string) []formatLetter {
	var out []formatLetter
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c >= '1' && c <= '4' {
			n := int(c - '0')
			if n > len(out) {
				n = len(out)
			}
			group := make([]byte, n)
			for k := 0; k < n; k++ {
				group[k] = out[len(out)-n+k].letters[0]
			}
			out = out[:len(out)-n]
			out = append(out, formatLetter{letters: group, repeat: true})
			continue
		}
		out = append(out, formatLetter{letters: []byte{c}})
	}
	return out
}

// coerceArg converts a raw argument Value per a single format letter.
// $ and N are handled by the caller (they do not consume a supplied
// argument) and never reach here.
func coerceArg(letter byte, v Value, st *State) Value {
	switch letter {
	case 'i', 'b':
		return IntValue(v.ForceInt())
	case 'f', 'F':
		return FloatValue(v.ForceFloat())
	case 's', 'S':
		return StringValue(st.Strings.AddString(v.ForceStr()))
	case 'e', 'E':
		if v.Kind() == KindCode {
			return v
		}
		code, err := st.Compile(v.ForceStr(), "")
		if err != nil {
			return emptyCode(st)
		}
		return CodeValue(code)
	case 't', 'T', 'r':
		return v
	default:
		return v
	}
}

// describesFormat reports whether format ends in C or V, the two
// "rest of the arguments" letters, for callers that need to special-case
// trailing-argument collection.
func describesFormat(format string) (rest byte, ok bool) {
	if format == "" {
		return 0, false
	}
	last := format[len(format)-1]
	if last == 'C' || last == 'V' {
		return last, true
	}
	return 0, false
}

// minArgs reports how many argument words a format string requires at
// minimum, ignoring $, N, any trailing C/V (which consume whatever
// remains, including zero), and repeating groups (which are satisfied by
// zero trailing repeats).
func minArgs(format string) int {
	n := 0
	for _, fl := range parseFormat(strings.TrimRight(format, "CV")) {
		if fl.repeat {
			continue
		}
		switch fl.letters[0] {
		case '$', 'N':
			continue
		}
		n++
	}
	return n
}
