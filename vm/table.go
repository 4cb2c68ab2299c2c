package vm

// MaxArguments is the number of positional alias slots ($arg1.."$arg25)
// every IdentTable preallocates, matching libcubescript's MAX_ARGUMENTS.
const MaxArguments = 25

// IdentTable owns every identifier known to a State: named aliases,
// variables, commands, specials, and the MaxArguments positional
// aliases. Lookup by name is O(1); lookup by index (used pervasively by
// compiled bytecode) is a direct slice index.
type IdentTable struct {
	byName  map[string]*Ident
	byIndex []*Ident
}

// NewIdentTable builds an empty table with the positional alias slots
// already allocated at indices 0..MaxArguments-1, so compiled code can
// reference $argN by a fixed index regardless of registration order.
func NewIdentTable() *IdentTable {
	t := &IdentTable{byName: make(map[string]*Ident)}
	for i := 0; i < MaxArguments; i++ {
		id := &Ident{
			Name:  argName(i),
			Index: int32(i),
			Kind:  IdentAlias,
			IsArg: true,
		}
		t.byIndex = append(t.byIndex, id)
		t.byName[id.Name] = id
	}
	t.registerCoreSpecials()
	return t
}

// registerCoreSpecials installs the control-flow keywords the compiler
// recognizes by name; these exist in every State regardless of which
// optional commands a host installs, since the language cannot express
// conditionals or loops without them.
func (t *IdentTable) registerCoreSpecials() {
	for _, s := range []struct {
		name string
		op   SpecialOp
	}{
		{"if", SpecialIf},
		{"and", SpecialAnd},
		{"or", SpecialOr},
		{"do", SpecialDo},
		{"doargs", SpecialDoArgs},
		{"local", SpecialLocal},
		{"not", SpecialNot},
		{"result", SpecialResult},
		{"break", SpecialBreak},
		{"continue", SpecialContinue},
	} {
		t.NewSpecial(s.name, s.op)
	}
}

func argName(i int) string {
	const digits = "0123456789"
	n := i + 1
	if n < 10 {
		return "arg" + string(digits[n])
	}
	return "arg" + string(digits[n/10]) + string(digits[n%10])
}

// Arg returns the i'th positional alias (0-based: Arg(0) is $arg1).
func (t *IdentTable) Arg(i int) *Ident {
	if i < 0 || i >= MaxArguments {
		return nil
	}
	return t.byIndex[i]
}

// Lookup finds an identifier by name, or nil if none is registered.
func (t *IdentTable) Lookup(name string) *Ident {
	return t.byName[name]
}

// ByIndex returns the identifier at a given table index, or nil if the
// index is out of range (bytecode immediates are trusted, but a
// defensively-loaded block should not panic).
func (t *IdentTable) ByIndex(i int32) *Ident {
	if i < 0 || int(i) >= len(t.byIndex) {
		return nil
	}
	return t.byIndex[i]
}

func (t *IdentTable) insert(id *Ident) *Ident {
	id.Index = int32(len(t.byIndex))
	t.byIndex = append(t.byIndex, id)
	t.byName[id.Name] = id
	return id
}

// NewAlias creates and registers a fresh named alias with no value, or
// returns the existing identifier of that name unchanged if one is
// already registered (matching libcubescript's "new_ident" semantics:
// first reference wins the slot).
func (t *IdentTable) NewAlias(name string) *Ident {
	if id, ok := t.byName[name]; ok {
		return id
	}
	return t.insert(&Ident{Name: name, Kind: IdentAlias})
}

// GetOrCreateAlias is like NewAlias but is the spelling used by the
// compiler, which always wants an Ident to attach an OpIdent/OpCall
// instruction to even before it knows whether the name will ever be
// assigned.
func (t *IdentTable) GetOrCreateAlias(name string) *Ident {
	return t.NewAlias(name)
}

// NewCommand registers a native command under name with the given
// argument format (validated with ValidateFormat) and implementation.
// Re-registering an existing name replaces its Command/Format in place,
// so hosts can override builtins.
func (t *IdentTable) NewCommand(name, format string, fn CommandFunc) (*Ident, error) {
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}
	if id, ok := t.byName[name]; ok {
		id.Kind = IdentCommand
		id.Command = fn
		id.Format = format
		return id, nil
	}
	return t.insert(&Ident{Name: name, Kind: IdentCommand, Command: fn, Format: format}), nil
}

// NewSpecial registers a compiler-recognized keyword like "if" or "and".
func (t *IdentTable) NewSpecial(name string, op SpecialOp) *Ident {
	if id, ok := t.byName[name]; ok {
		id.Kind = IdentSpecial
		id.Special = op
		return id
	}
	return t.insert(&Ident{Name: name, Kind: IdentSpecial, Special: op})
}

// NewIntVar registers (or reconfigures) a clamped integer variable.
func (t *IdentTable) NewIntVar(name string, min, max, def int32, flags VarFlag, hook ChangeHook) *Ident {
	if id, ok := t.byName[name]; ok {
		id.Kind, id.IntMin, id.IntMax, id.IntVar, id.Flags, id.OnChange = IdentIntVar, min, max, def, flags, hook
		return id
	}
	return t.insert(&Ident{
		Name: name, Kind: IdentIntVar,
		IntMin: min, IntMax: max, IntVar: def,
		Flags: flags, OnChange: hook,
	})
}

// NewFloatVar registers (or reconfigures) a clamped float variable.
func (t *IdentTable) NewFloatVar(name string, min, max, def float32, flags VarFlag, hook ChangeHook) *Ident {
	if id, ok := t.byName[name]; ok {
		id.Kind, id.FloatMin, id.FloatMax, id.FloatVar, id.Flags, id.OnChange = IdentFloatVar, min, max, def, flags, hook
		return id
	}
	return t.insert(&Ident{
		Name: name, Kind: IdentFloatVar,
		FloatMin: min, FloatMax: max, FloatVar: def,
		Flags: flags, OnChange: hook,
	})
}

// NewStringVar registers (or reconfigures) a string variable.
func (t *IdentTable) NewStringVar(name, def string, flags VarFlag, hook ChangeHook) *Ident {
	if id, ok := t.byName[name]; ok {
		id.Kind, id.StringVar, id.Flags, id.OnChange = IdentStringVar, def, flags, hook
		return id
	}
	return t.insert(&Ident{Name: name, Kind: IdentStringVar, StringVar: def, Flags: flags, OnChange: hook})
}

// Names returns every registered identifier name, for iteration/tab
// completion hosts.
func (t *IdentTable) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	return names
}

// Len reports the total number of identifiers, including the
// preallocated positional aliases.
func (t *IdentTable) Len() int { return len(t.byIndex) }
