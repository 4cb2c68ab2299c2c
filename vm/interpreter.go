package vm

import "math"

// ---------------------------------------------------------------------------
// Virtual machine: a switch-dispatched bytecode interpreter
// ---------------------------------------------------------------------------
//
// Nested code (a loop body, a "do" argument, an alias body) is run by a
// direct, recursive call to runWords rather than an explicit frame stack;
// Go's own call stack stands in for the VM's. if/and/or branches are
// compiled inline and run in the enclosing runWords. A callFrame is
// pushed for each alias CALL, plus one root frame per top-level run: it
// records which positional aliases the call bound (for isolation from
// the enclosing call) and which idents a "local" declared (restored when
// the innermost enclosing CALL, or the top-level run, returns; a "do"
// block pushes no frame of its own).

type callFrame struct {
	usedArgs uint32 // bit i set => $arg(i+1) was bound by this call
	locals   []*Ident
}

type interp struct {
	st       *State
	stack    []Value
	frames   []*callFrame
	curBlock blockCtx
}

func (ip *interp) push(v Value) { ip.stack = append(ip.stack, v) }

func (ip *interp) pop() Value {
	n := len(ip.stack)
	if n == 0 {
		throwRuntime(Pos{}, "stack underflow")
	}
	v := ip.stack[n-1]
	ip.stack = ip.stack[:n-1]
	return v
}

func (ip *interp) peek() Value {
	n := len(ip.stack)
	if n == 0 {
		throwRuntime(Pos{}, "stack underflow")
	}
	return ip.stack[n-1]
}

func (ip *interp) popN(n int) []Value {
	if len(ip.stack) < n {
		throwRuntime(Pos{}, "stack underflow")
	}
	args := make([]Value, n)
	copy(args, ip.stack[len(ip.stack)-n:])
	ip.stack = ip.stack[:len(ip.stack)-n]
	return args
}

func (ip *interp) curFrame() *callFrame {
	if len(ip.frames) == 0 {
		return nil
	}
	return ip.frames[len(ip.frames)-1]
}

// readIdent reads an identifier's current value, applying positional
// argument isolation: a positional alias not bound by the innermost
// call frame reads as None even if an enclosing call happened to bind
// it, per spec's usedargs isolation rule.
func (ip *interp) readIdent(id *Ident) Value {
	if id == nil {
		return None
	}
	switch id.Kind {
	case IdentAlias:
		if id.IsArg {
			f := ip.curFrame()
			if f == nil || f.usedArgs&(1<<uint(id.Index)) == 0 {
				return None
			}
		}
		return id.Value
	case IdentIntVar:
		return IntValue(id.IntVar)
	case IdentFloatVar:
		return FloatValue(id.FloatVar)
	case IdentStringVar:
		return StringValue(ip.st.Strings.AddString(id.StringVar))
	default:
		return None
	}
}

// run executes top-level compiled code, recovering break/continue that
// escape every loop and any runtime error into a returned error.
func (ip *interp) run(code CodeRef) (v Value, err error) {
	// A root frame so a top-level "local" has somewhere to record its
	// restore list; it is popped (and its locals restored) on every
	// exit path, normal or panicking, by the defer below.
	f := &callFrame{}
	ip.frames = append(ip.frames, f)
	defer func() {
		ip.frames = ip.frames[:len(ip.frames)-1]
		for i := len(f.locals) - 1; i >= 0; i-- {
			f.locals[i].PopArg(ip.st.Strings)
		}
		if r := recover(); r != nil {
			switch sig := r.(type) {
			case errorSignal:
				err = sig.err
			case breakSignal:
				err = &RuntimeError{Message: "break outside of loop"}
			case continueSignal:
				err = &RuntimeError{Message: "continue outside of loop"}
			default:
				panic(r)
			}
		}
	}()
	ip.setBlockContext(code.Block)
	v = ip.runWords(code.Instructions())
	return v, nil
}

func (ip *interp) runWords(instr []uint32) Value {
	base := len(ip.stack)
	var result Value
	haveResult := false
	pc := 0

	defer func() {
		if len(ip.stack) > base {
			ip.stack = ip.stack[:base]
		}
	}()

	for {
		w := instr[pc]
		op := opOf(w)
		blk := ip.curBlock
		pc++

		switch op {
		case OpExit:
			if haveResult {
				return result
			}
			if len(ip.stack) > base {
				return ip.stack[len(ip.stack)-1]
			}
			return None

		case OpNull:
			ip.push(None)
		case OpTrue:
			ip.push(IntValue(1))
		case OpFalse:
			ip.push(IntValue(0))
		case OpValInt:
			ip.push(IntValue(immOf(w)))
		case OpVal:
			ip.push(blk.Consts[uimmOf(w)])
		case OpValFloat:
			ip.push(blk.Consts[uimmOf(w)])

		case OpPop:
			ip.pop()
		case OpDup:
			ip.push(ip.peek())
		case OpResult:
			result = ip.pop()
			haveResult = true
		case OpResultArg:
			result = ip.peek()
			haveResult = true
		case OpForce:
			ip.push(forceRet(ip.pop(), retOf(w)))

		case OpIdent:
			ip.push(IdentValue(blk.idents.ByIndex(immOf(w))))
		case OpIdentArg:
			ip.push(IdentValue(blk.idents.Arg(int(immOf(w)))))
		case OpIdentU:
			name := ip.pop().ForceStr()
			ip.push(IdentValue(blk.idents.GetOrCreateAlias(name)))
		case OpLookup:
			ip.push(ip.readIdent(blk.idents.ByIndex(immOf(w))))
		case OpLookupU:
			name := ip.pop().ForceStr()
			ip.push(ip.readIdent(blk.idents.GetOrCreateAlias(name)))

		case OpSVar:
			ip.push(ip.readIdent(blk.idents.ByIndex(immOf(w))))
		case OpIVar:
			ip.push(IntValue(blk.idents.ByIndex(immOf(w)).IntVar))
		case OpFVar:
			ip.push(FloatValue(blk.idents.ByIndex(immOf(w)).FloatVar))
		case OpSVar1:
			ip.setStringVar(blk.idents.ByIndex(immOf(w)), ip.pop().ForceStr())
		case OpIVar1, OpIVar2, OpIVar3:
			ip.setIntVar(blk.idents.ByIndex(immOf(w)), ip.pop().ForceInt())
		case OpFVar1:
			ip.setFloatVar(blk.idents.ByIndex(immOf(w)), ip.pop().ForceFloat())

		case OpCom, OpComV, OpComC:
			n := int(immOf(w))
			args := ip.popN(n)
			idv := ip.pop()
			id := idv.Ident()
			if id == nil || id.Kind != IdentCommand {
				throwRuntime(Pos{}, "not a command")
			}
			if ip.st.CallHook != nil {
				ip.st.CallHook(id.Name, args)
			}
			// OpComV/OpComC exist only so the compiler can record that
			// this call's format ends in V/C; coerceArgs itself already
			// applies the right handling for any letters preceding the
			// V/C once it reaches them, so all three opcodes share the
			// same coercion path (a format like "iC" must coerce its
			// leading "i" before concatenating the rest, not fold it
			// into the concatenation).
			args = coerceArgs(id.Format, args, ip.st)
			ip.push(id.Command(ip.st, args))

		case OpCall, OpCallArg, OpCallU:
			n := int(immOf(w))
			args := ip.popN(n)
			if op == OpCallU {
				name := ip.pop().ForceStr()
				if i, f, isFloat, ok := ParseNumeric(name); ok {
					if isFloat {
						ip.push(FloatValue(f))
					} else {
						ip.push(IntValue(i))
					}
					continue
				}
				id := blk.idents.Lookup(name)
				if id == nil {
					ip.st.Logger.Warnf("unknown command: %s", name)
					ip.push(None)
					continue
				}
				switch id.Kind {
				case IdentCommand:
					if ip.st.CallHook != nil {
						ip.st.CallHook(id.Name, args)
					}
					ip.push(id.Command(ip.st, coerceArgs(id.Format, args, ip.st)))
				case IdentIntVar, IdentFloatVar, IdentStringVar:
					if len(args) > 0 {
						ip.assignAlias(id, args[0])
					}
					ip.push(ip.readIdent(id))
				default:
					ip.push(ip.callAlias(id, args))
				}
				continue
			}
			id := ip.pop().Ident()
			ip.push(ip.callAlias(id, args))

		case OpAlias, OpAliasArg, OpAliasU:
			v := ip.pop()
			var id *Ident
			switch op {
			case OpAliasArg:
				id = blk.idents.Arg(int(immOf(w)))
			case OpAliasU:
				name := ip.pop().ForceStr()
				id = blk.idents.GetOrCreateAlias(name)
			default:
				id = blk.idents.ByIndex(immOf(w))
			}
			ip.assignAlias(id, v)

		case OpJump:
			pc += int(immOf(w))
		case OpJumpB:
			v := ip.pop()
			cond := v.GetBool()
			if cond == (flagOf(w) == FlagTrue) {
				pc += int(immOf(w))
			}
		case OpJumpResult:
			v := ip.peek()
			cond := v.GetBool()
			if cond == (flagOf(w) == FlagTrue) {
				pc += int(immOf(w))
			} else {
				ip.pop()
			}

		case OpEnter, OpEnterResult:
			// reserved for future scoping use; no-op in this implementation.
		case OpBreak:
			if flagOf(w) == FlagTrue {
				panic(breakSignal{})
			}
			panic(continueSignal{})

		case OpBlock:
			ip.push(blk.Consts[uimmOf(w)])
		case OpEmpty:
			ip.push(emptyCode(ip.st))
		case OpCompile, OpCond:
			src := ip.pop().ForceStr()
			code, err := ip.st.Compile(src, "")
			if err != nil {
				throwRuntime(Pos{}, "%s", err)
			}
			ip.push(CodeValue(code))

		case OpConc, OpConcW, OpConcM:
			n := int(immOf(w))
			args := ip.popN(n)
			sep := " "
			if op != OpConc {
				sep = ""
			}
			ip.push(StringValue(ip.st.Strings.AddString(joinValues(args, sep))))

		case OpLocal:
			// run always pushes a root frame, so curFrame() is never nil
			// here even for a "local" used outside any alias call.
			n := int(immOf(w))
			ids := ip.popN(n)
			f := ip.curFrame()
			for _, idv := range ids {
				id := idv.Ident()
				if id == nil {
					continue
				}
				id.PushArg(id.Value)
				f.locals = append(f.locals, id)
			}

		case OpDo, OpDoArgs:
			v := ip.pop()
			if v.Kind() != KindCode {
				ip.push(v)
				continue
			}
			ip.push(ip.runNested(v.Code()))

		case OpNot:
			ip.push(BoolValue(!ip.pop().GetBool()))

		case OpPrint:
			id := blk.idents.ByIndex(immOf(w))
			if ip.st.VarPrintHook != nil {
				ip.st.VarPrintHook(id)
			}
			ip.push(None)

		default:
			throwRuntime(Pos{}, "unimplemented opcode %s", op)
		}
	}
}

// curBlock is set by runWords' caller before entering the loop; see
// setBlockContext. It is kept on the interp (not a local) so every
// opcode case above can reach it without threading an extra parameter.
func (ip *interp) setBlockContext(b *Block) { ip.curBlock = blockCtx{b, ip.st.Idents} }

type blockCtx struct {
	*Block
	idents *IdentTable
}

// callAlias binds args as positional aliases $arg1.. and runs id's
// stored value as code (compiling it from text first if it is not
// already a code value), then restores the previous positional
// bindings.
func (ip *interp) callAlias(id *Ident, args []Value) Value {
	if id == nil {
		throwRuntime(Pos{}, "unknown alias")
	}
	if id.Kind == IdentCommand {
		return id.Command(ip.st, coerceArgs(id.Format, args, ip.st))
	}
	if ip.st.CallHook != nil {
		ip.st.CallHook(id.Name, args)
	}
	ip.st.depth++
	if ip.st.depth > ip.st.Limits.MaxCallDepth {
		ip.st.depth--
		throwRuntime(Pos{}, "call depth exceeded")
	}
	defer func() { ip.st.depth-- }()

	f := &callFrame{}
	table := ip.st.Idents
	n := len(args)
	if n > MaxArguments {
		n = MaxArguments
	}
	for i := 0; i < n; i++ {
		table.Arg(i).PushArg(args[i])
		f.usedArgs |= 1 << uint(i)
	}
	ip.frames = append(ip.frames, f)
	// Runs on every exit path, including a break/continue panic unwinding
	// through this call: the arg and local bindings this call pushed must
	// not be left on their idents' stacks for an outer loop to trip over.
	defer func() {
		ip.frames = ip.frames[:len(ip.frames)-1]
		for i := n - 1; i >= 0; i-- {
			table.Arg(i).PopArg(ip.st.Strings)
		}
		for i := len(f.locals) - 1; i >= 0; i-- {
			f.locals[i].PopArg(ip.st.Strings)
		}
	}()

	switch id.Kind {
	case IdentAlias:
		body := id.Value
		if body.Kind() == KindCode {
			return ip.runNested(body.Code())
		}
		src := body.ForceStr()
		code, err := ip.st.Compile(src, id.Name)
		if err != nil {
			return None
		}
		result := ip.runNested(code)
		code.Unref()
		return result
	default:
		throwRuntime(Pos{}, "%s is not callable", id.Name)
	}
	return None
}

func (ip *interp) assignAlias(id *Ident, v Value) {
	if id == nil {
		return
	}
	switch id.Kind {
	case IdentAlias:
		old := id.Value
		id.Value = v.Clone(ip.st.Strings)
		old.Release(ip.st.Strings)
	case IdentIntVar:
		ip.setIntVar(id, v.ForceInt())
	case IdentFloatVar:
		ip.setFloatVar(id, v.ForceFloat())
	case IdentStringVar:
		ip.setStringVar(id, v.ForceStr())
	default:
		throwRuntime(Pos{}, "%s is read-only", id.Name)
	}
}

func (ip *interp) setIntVar(id *Ident, v int32) {
	if id.Flags&VarReadOnly != 0 {
		throwRuntime(Pos{}, "%s is read-only", id.Name)
	}
	orig := v
	if v < id.IntMin {
		v = id.IntMin
	}
	if v > id.IntMax {
		v = id.IntMax
	}
	if v != orig {
		ip.st.Logger.Warnf("%s: value %d out of range [%d, %d], clamped to %d", id.Name, orig, id.IntMin, id.IntMax, v)
		if ip.st.VarPrintHook != nil {
			ip.st.VarPrintHook(id)
		}
	}
	id.IntVar = v
	if id.OnChange != nil {
		id.OnChange(id)
	}
}

func (ip *interp) setFloatVar(id *Ident, v float32) {
	if id.Flags&VarReadOnly != 0 {
		throwRuntime(Pos{}, "%s is read-only", id.Name)
	}
	orig := v
	if v < id.FloatMin {
		v = id.FloatMin
	}
	if v > id.FloatMax {
		v = id.FloatMax
	}
	if v != orig {
		ip.st.Logger.Warnf("%s: value %g out of range [%g, %g], clamped to %g", id.Name, orig, id.FloatMin, id.FloatMax, v)
		if ip.st.VarPrintHook != nil {
			ip.st.VarPrintHook(id)
		}
	}
	id.FloatVar = v
	if id.OnChange != nil {
		id.OnChange(id)
	}
}

func (ip *interp) setStringVar(id *Ident, v string) {
	if id.Flags&VarReadOnly != 0 {
		throwRuntime(Pos{}, "%s is read-only", id.Name)
	}
	id.StringVar = v
	if id.OnChange != nil {
		id.OnChange(id)
	}
}

// runNested runs a nested CodeRef (e.g. a loop/if/do body) under the
// same interp, sharing the stack but switching the block context so
// OpIdent/OpVal immediates resolve against the right constant pool.
func (ip *interp) runNested(code CodeRef) Value {
	prev := ip.curBlock
	ip.setBlockContext(code.Block)
	defer func() { ip.curBlock = prev }()
	return ip.runWordsFrom(code.Instructions())
}

func (ip *interp) runWordsFrom(instr []uint32) Value { return ip.runWords(instr) }

func forceRet(v Value, rt RetType) Value {
	switch rt {
	case RetStr:
		return v
	case RetInt:
		return IntValue(v.ForceInt())
	case RetFloat:
		return FloatValue(v.ForceFloat())
	default:
		return None
	}
}

func joinValues(args []Value, sep string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += sep
		}
		out += a.ForceStr()
	}
	return out
}

func coerceArgs(format string, args []Value, st *State) []Value {
	items := parseFormat(format)
	out := make([]Value, 0, len(args))
	ai := 0
	for _, fl := range items {
		if fl.repeat {
			// A repeating group cycles through its letters once per
			// remaining arg; once an arg runs out mid cycle, the rest of
			// that cycle and any further repeats are simply absent
			// rather than padded.
			for ai < len(args) {
				for _, letter := range fl.letters {
					if ai >= len(args) {
						break
					}
					switch letter {
					case '$':
						continue
					case 'N':
						out = append(out, IntValue(int32(len(args))))
						continue
					}
					out = append(out, coerceArg(letter, args[ai], st))
					ai++
				}
			}
			continue
		}
		letter := fl.letters[0]
		switch letter {
		case '$':
			continue
		case 'N':
			out = append(out, IntValue(int32(len(args))))
			continue
		case 'C':
			out = append(out, StringValue(st.Strings.AddString(joinValues(args[ai:], " "))))
			ai = len(args)
			continue
		case 'V':
			out = append(out, args[ai:]...)
			ai = len(args)
			continue
		}
		if ai >= len(args) {
			out = append(out, missingArgDefault(letter, out, st))
			continue
		}
		out = append(out, coerceArg(letter, args[ai], st))
		ai++
	}
	return out
}

// missingArgDefault fills an argument slot a call didn't supply, per the
// format letter's own default: "b" defaults to math.MinInt32, "F"
// repeats the previously coerced argument, "e" defaults to an empty
// code block, and everything else (including "E") defaults to None.
func missingArgDefault(letter byte, out []Value, st *State) Value {
	switch letter {
	case 'b':
		return IntValue(math.MinInt32)
	case 'F':
		if len(out) > 0 {
			return out[len(out)-1]
		}
		return None
	case 'e':
		return emptyCode(st)
	default:
		return None
	}
}

func emptyCode(st *State) Value {
	b := NewBlock([]uint32{instWord(OpExit, 0, 0)}, nil, "")
	b.Ref()
	return CodeValue(TopLevel(b))
}
