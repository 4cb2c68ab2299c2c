package vm

import "strings"

// aliasCommand implements the "alias" keyword: assign a (possibly
// deferred) value to a named alias, creating it if it does not yet
// exist. It is registered unconditionally by NewState, not by
// RegisterBuiltins, since a script cannot define its own vocabulary
// without it.
func aliasCommand(st *State, args []Value) Value {
	name := args[0].ForceStr()
	id := st.Idents.GetOrCreateAlias(name)
	old := id.Value
	id.Value = args[1].Clone(st.Strings)
	old.Release(st.Strings)
	return None
}

// RegisterBuiltins installs the optional reference standard library:
// the arithmetic/comparison commands, echo, concat, and the loop/while
// commands. A host embedding CubeScript is free to skip this and
// register its own vocabulary instead (spec's "out of scope: the
// host's standard-library commands"); cmd/cubescript installs it for
// the command-line front end.
func RegisterBuiltins(st *State) {
	arith := map[string]func(a, b int32) int32{
		"+": func(a, b int32) int32 { return a + b },
		"-": func(a, b int32) int32 { return a - b },
		"*": func(a, b int32) int32 { return a * b },
		"%": func(a, b int32) int32 {
			if b == 0 {
				return 0
			}
			return a % b
		},
	}
	for name, fn := range arith {
		fn := fn
		st.NewCommand(name, "ii", func(st *State, args []Value) Value {
			return IntValue(fn(args[0].ForceInt(), args[1].ForceInt()))
		})
	}
	st.NewCommand("/", "ii", func(st *State, args []Value) Value {
		b := args[1].ForceInt()
		if b == 0 {
			return IntValue(0)
		}
		return IntValue(args[0].ForceInt() / b)
	})

	cmp := map[string]func(a, b int32) bool{
		"=":  func(a, b int32) bool { return a == b },
		"!=": func(a, b int32) bool { return a != b },
		"<":  func(a, b int32) bool { return a < b },
		">":  func(a, b int32) bool { return a > b },
		"<=": func(a, b int32) bool { return a <= b },
		">=": func(a, b int32) bool { return a >= b },
	}
	for name, fn := range cmp {
		fn := fn
		st.NewCommand(name, "ii", func(st *State, args []Value) Value {
			return BoolValue(fn(args[0].ForceInt(), args[1].ForceInt()))
		})
	}

	st.NewCommand("echo", "C", func(st *State, args []Value) Value {
		text := args[0].ForceStr()
		if st.EchoHook != nil {
			st.EchoHook(text)
		} else {
			st.Logger.Infof("%s", text)
		}
		return None
	})

	st.NewCommand("concat", "C", func(st *State, args []Value) Value {
		return args[0]
	})

	st.NewCommand("concatword", "V", func(st *State, args []Value) Value {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.ForceStr()
		}
		return StringValue(st.Strings.AddString(strings.Join(parts, "")))
	})

	st.NewCommand("loop", "rie", loopCommand)
	st.NewCommand("while", "ee", whileCommand)
}

// loopCommand runs body once per integer i in [0, n), with var bound to
// i as a positional-style alias for the duration of each iteration
// (spec's DO_ARGS note: "loop bodies that read $i").
func loopCommand(st *State, args []Value) (result Value) {
	id := args[0].Ident()
	n := args[1].ForceInt()
	body := args[2]
	ip := st.cur
	if id == nil || body.Kind() != KindCode || ip == nil {
		return None
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(breakSignal); ok {
				result = None
				return
			}
			panic(r)
		}
	}()
	for i := int32(0); i < n; i++ {
		id.PushArg(IntValue(i))
		runLoopIteration(ip, body, id, st)
	}
	return None
}

func runLoopIteration(ip *interp, body Value, id *Ident, st *State) {
	defer func() {
		id.PopArg(st.Strings)
		if r := recover(); r != nil {
			if _, ok := r.(continueSignal); ok {
				return
			}
			panic(r)
		}
	}()
	ip.runNested(body.Code())
}

// whileCommand evaluates cond before every iteration of body, stopping
// as soon as it reads false.
func whileCommand(st *State, args []Value) (result Value) {
	cond, body := args[0], args[1]
	ip := st.cur
	if cond.Kind() != KindCode || body.Kind() != KindCode || ip == nil {
		return None
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(breakSignal); ok {
				result = None
				return
			}
			panic(r)
		}
	}()
	for ip.runNested(cond.Code()).GetBool() {
		runWhileIteration(ip, body)
	}
	return None
}

func runWhileIteration(ip *interp, body Value) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(continueSignal); ok {
				return
			}
			panic(r)
		}
	}()
	ip.runNested(body.Code())
}
