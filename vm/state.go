package vm

import "fmt"

// State is the embedding-facing façade over one complete CubeScript
// interpreter: its string table, identifier table, and the resources
// (logger, limits) a host configures before running any script. A
// State is not safe for concurrent use; a host that wants concurrency
// runs one State per goroutine.
type State struct {
	Strings *StringTable
	Idents  *IdentTable
	Logger  Logger
	Limits  Limits

	// CallHook, when set, is invoked before every command/alias
	// invocation, mirroring a debugger hook a host might install.
	CallHook func(name string, args []Value)

	// VarPrintHook backs the "print" opcode (which the compiler does not
	// emit; a bare variable reference compiles to a plain read) and is
	// invoked whenever a write clamps a variable to its bounds, so a host
	// UI can surface it however it likes (e.g. to a console).
	VarPrintHook func(id *Ident)

	// EchoHook backs the "echo" command; if nil, echo falls back to
	// Logger.Infof.
	EchoHook func(text string)

	depth int     // current call recursion depth, checked against Limits.MaxCallDepth
	cur   *interp // the interpreter currently driving Call, for builtins (loop, while) that need to run nested code
}

// NewState creates a State with only the language's own vocabulary
// registered: the MaxArguments positional aliases, the core specials
// (if, and, or, ...), and the "alias" command, since a script cannot
// define its own names without it. Call RegisterBuiltins to install
// the optional standard library of commands (echo, loop, arithmetic).
func NewState() *State {
	st := &State{
		Strings: NewStringTable(),
		Idents:  NewIdentTable(),
		Logger:  NopLogger{},
		Limits:  DefaultLimits(),
	}
	st.NewCommand("alias", "se", aliasCommand)
	return st
}

// NewCommand registers a native command. See format.go for the argument
// format string grammar.
func (st *State) NewCommand(name, format string, fn CommandFunc) error {
	_, err := st.Idents.NewCommand(name, format, fn)
	return err
}

// NewIntVar registers an integer variable clamped to [min, max].
func (st *State) NewIntVar(name string, min, max, def int32, flags VarFlag) *Ident {
	return st.Idents.NewIntVar(name, min, max, def, flags, nil)
}

// NewFloatVar registers a float variable clamped to [min, max].
func (st *State) NewFloatVar(name string, min, max, def float32, flags VarFlag) *Ident {
	return st.Idents.NewFloatVar(name, min, max, def, flags, nil)
}

// NewStringVar registers a string variable.
func (st *State) NewStringVar(name, def string, flags VarFlag) *Ident {
	return st.Idents.NewStringVar(name, def, flags, nil)
}

// GetIdent exposes raw identifier-table lookup to a host, e.g. for
// inspecting a variable's value outside of running a script.
func (st *State) GetIdent(name string) *Ident { return st.Idents.Lookup(name) }

// SetAlias assigns a value to a named alias as if by an "alias" call,
// creating the alias if it does not exist yet.
func (st *State) SetAlias(name string, v Value) {
	id := st.Idents.GetOrCreateAlias(name)
	old := id.Value
	id.Value = v.Clone(st.Strings)
	old.Release(st.Strings)
}

// Compile parses src (named for diagnostics by name) into executable
// bytecode. The returned CodeRef holds one reference on the caller's
// behalf; Call does not release it, so the caller must Unref it when
// done.
func (st *State) Compile(src, name string) (CodeRef, error) {
	c := newCompiler(st, src, name)
	return c.compileTopLevel()
}

// Call runs compiled code to completion and returns its result value.
// A RuntimeError surfaces an error raised while running; a break or
// continue that escapes every enclosing loop is itself reported as a
// RuntimeError, since there is no loop left to catch it.
func (st *State) Call(code CodeRef) (Value, error) {
	ip := &interp{st: st}
	prev := st.cur
	st.cur = ip
	defer func() { st.cur = prev }()
	return ip.run(code)
}

// Eval compiles and immediately runs a string, a convenience wrapper
// around Compile+Call for one-shot host calls (spec §6, "Eval").
func (st *State) Eval(src string) (Value, error) {
	code, err := st.Compile(src, "")
	if err != nil {
		return None, err
	}
	v, err := st.Call(code)
	code.Unref()
	return v, err
}

// String implements fmt.Stringer for debug printing a State's identity;
// not part of the scripting surface.
func (st *State) String() string {
	return fmt.Sprintf("cubescript.State{idents=%d strings=%d}", st.Idents.Len(), st.Strings.Len())
}
