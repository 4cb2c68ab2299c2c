package vm

import (
	"math"
	"testing"
)

func newTestState() *State {
	st := NewState()
	RegisterBuiltins(st)
	return st
}

func evalString(t *testing.T, st *State, src string) string {
	t.Helper()
	v, err := st.Eval(src)
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", src, err)
	}
	return v.ForceStr()
}

func TestInfixArithmeticSugar(t *testing.T) {
	st := newTestState()
	var out []string
	st.EchoHook = func(s string) { out = append(out, s) }
	if _, err := st.Eval("echo [1 + 2]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if len(out) != 1 || out[0] != "3" {
		t.Fatalf("echo output = %v, want [\"3\"]", out)
	}
}

func TestAssignmentSugarCreatesAlias(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("a = 1"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	got := evalString(t, st, "a")
	if got != "1" {
		t.Fatalf("a = %q, want %q", got, "1")
	}
	if _, err := st.Eval("a = 2"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	got = evalString(t, st, "a")
	if got != "2" {
		t.Fatalf("a after reassignment = %q, want %q", got, "2")
	}
}

func TestAssignmentSugarLocalScopeRestoresOnExit(t *testing.T) {
	// spec's alias-scoping property: "a = 1; [ a = 2 ]" with a declared
	// local restores the outer value once the local block exits.
	st := newTestState()
	if _, err := st.Eval("a = 1; local a; [ a = 2 ]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	got := evalString(t, st, "a")
	if got != "1" {
		t.Fatalf("a after local scope exit = %q, want %q", got, "1")
	}
}

func TestAssignmentSugarDoesNotShadowBuiltinEquals(t *testing.T) {
	st := newTestState()
	got := evalString(t, st, "= 1 1")
	if got != "1" {
		t.Fatalf("= 1 1 = %q, want %q (the \"=\" command must still work as an ordinary call)", got, "1")
	}
}

func TestAssignmentSugarToIntVar(t *testing.T) {
	st := newTestState()
	st.NewIntVar("health", 0, 100, 50, 0)
	if _, err := st.Eval("health = 30"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	got := evalString(t, st, "health")
	if got != "30" {
		t.Fatalf("health = %q, want %q", got, "30")
	}
}

func TestClampedIntVarWriteReportsThroughVarPrintHook(t *testing.T) {
	st := newTestState()
	st.NewIntVar("health", 0, 100, 50, 0)
	var printed *Ident
	st.VarPrintHook = func(id *Ident) { printed = id }
	if _, err := st.Eval("health = 999"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if got := evalString(t, st, "health"); got != "100" {
		t.Fatalf("health after clamp = %q, want %q", got, "100")
	}
	if printed == nil || printed.Name != "health" {
		t.Fatalf("VarPrintHook was not invoked for the clamped write")
	}
}

func TestClampedIntVarWriteAtLegitimateZeroBoundsStillClamps(t *testing.T) {
	st := newTestState()
	st.NewIntVar("flag", 0, 0, 0, 0)
	if _, err := st.Eval("flag = 5"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if got := evalString(t, st, "flag"); got != "0" {
		t.Fatalf("flag = %q, want %q (a [0,0]-bounded var must still clamp)", got, "0")
	}
}

func TestAliasDefinitionAndCall(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias sq [ * $arg1 $arg1 ]"); err != nil {
		t.Fatalf("alias Eval error: %v", err)
	}
	got := evalString(t, st, "sq 4")
	if got != "16" {
		t.Fatalf("sq 4 = %q, want %q", got, "16")
	}
}

func TestIfBranching(t *testing.T) {
	st := newTestState()
	got := evalString(t, st, "if 1 [result yes] [result no]")
	if got != "yes" {
		t.Fatalf("if 1 ... = %q, want %q", got, "yes")
	}
	got = evalString(t, st, "if 0 [result yes] [result no]")
	if got != "no" {
		t.Fatalf("if 0 ... = %q, want %q", got, "no")
	}
}

func TestIfWithoutElse(t *testing.T) {
	st := newTestState()
	v, err := st.Eval("if 0 [result yes]")
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if v.Kind() != KindNone {
		t.Fatalf("if with no else and a false condition should yield none, got %v", v.Kind())
	}
}

func TestLoopEchoesEachIndex(t *testing.T) {
	st := newTestState()
	var out []string
	st.EchoHook = func(s string) { out = append(out, s) }
	if _, err := st.Eval("loop i 3 [ echo $i ]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	want := []string{"0", "1", "2"}
	if len(out) != len(want) {
		t.Fatalf("echoed %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("echoed %v, want %v", out, want)
		}
	}
}

func TestLoopBreak(t *testing.T) {
	st := newTestState()
	var out []string
	st.EchoHook = func(s string) { out = append(out, s) }
	if _, err := st.Eval("loop i 5 [ if [= $i 2] [break] []; echo $i ]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("echoed %v, want 2 entries before break", out)
	}
}

func TestLoopContinue(t *testing.T) {
	st := newTestState()
	var out []string
	st.EchoHook = func(s string) { out = append(out, s) }
	if _, err := st.Eval("loop i 4 [ if [= $i 1] [continue] []; echo $i ]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	want := []string{"0", "2", "3"}
	if len(out) != len(want) {
		t.Fatalf("echoed %v, want %v", out, want)
	}
}

func TestWhileNeverRunsBodyWhenConditionStartsFalse(t *testing.T) {
	st := newTestState()
	ran := false
	st.NewCommand("mark", "", func(st *State, args []Value) Value { ran = true; return None })
	if _, err := st.Eval("while 0 [mark]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if ran {
		t.Fatal("while with a false condition should never run its body")
	}
}

func TestWhileRunsBodyOnceThenStops(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias gate [ result 1 ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	calls := 0
	st.NewCommand("tally", "", func(st *State, args []Value) Value {
		calls++
		st.SetAlias("gate", CodeValue(mustCompileConst(t, st, "result 0")))
		return None
	})
	if _, err := st.Eval("while [gate] [tally]"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("tally called %d times, want 1", calls)
	}
}

func TestCoerceArgsMissingArgDefaults(t *testing.T) {
	st := newTestState()

	got := coerceArgs("b", nil, st)
	if len(got) != 1 || got[0].Kind() != KindInt || got[0].ForceInt() != math.MinInt32 {
		t.Fatalf("missing \"b\" arg = %v, want IntValue(math.MinInt32)", got)
	}

	got = coerceArgs("iF", []Value{IntValue(7)}, st)
	if len(got) != 2 || got[1].ForceInt() != 7 {
		t.Fatalf("missing \"F\" arg = %v, want it to repeat the previous argument (7)", got)
	}

	got = coerceArgs("e", nil, st)
	if len(got) != 1 || got[0].Kind() != KindCode {
		t.Fatalf("missing \"e\" arg = %v, want an empty KindCode block", got)
	}

	got = coerceArgs("E", nil, st)
	if len(got) != 1 || got[0].Kind() != KindNone {
		t.Fatalf("missing \"E\" arg = %v, want None", got)
	}
}

func mustCompileConst(t *testing.T, st *State, src string) CodeRef {
	t.Helper()
	code, err := st.Compile(src, "")
	if err != nil {
		t.Fatalf("Compile(%q) error: %v", src, err)
	}
	return code
}

func TestConcat(t *testing.T) {
	got := evalString(t, newTestState(), "concat a b c")
	if got != "a b c" {
		t.Fatalf("concat a b c = %q, want %q", got, "a b c")
	}
}

func TestTooManyAtsIsParseError(t *testing.T) {
	st := newTestState()
	_, err := st.Compile("[ @@x ]", "")
	if err == nil {
		t.Fatal("expected a parse error for too many @s")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error is %T, want *ParseError", err)
	}
	if pe.Message == "" {
		t.Fatal("ParseError.Message should describe the problem")
	}
}

func TestPositionalArgIsolation(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias inner [ result $arg1 ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	if _, err := st.Eval("alias outer [ inner ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	got := evalString(t, st, "outer 99")
	if got != "" {
		t.Fatalf("inner should not see outer's $arg1, got %q", got)
	}
}

func TestLocalRestoresOnExit(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias x [ result outerval ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	if _, err := st.Eval("alias setx [ local x; alias x [ result innerval ]; result [x] ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	got := evalString(t, st, "setx")
	if got != "innerval" {
		t.Fatalf("setx = %q, want %q", got, "innerval")
	}
	got = evalString(t, st, "x")
	if got != "outerval" {
		t.Fatalf("x after local scope exit = %q, want %q", got, "outerval")
	}
}

func TestLocalAtTopLevelRestoresOnExit(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias a 1"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	if _, err := st.Eval("local a; alias a 2"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	got := evalString(t, st, "a")
	if got != "1" {
		t.Fatalf("a after top-level local scope exit = %q, want %q", got, "1")
	}
}

func TestContinueThroughAliasCallDoesNotLeakFrames(t *testing.T) {
	st := newTestState()
	if _, err := st.Eval("alias f [ continue ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	if _, err := st.Eval("alias g [ loop i 3 [ f ]; result $arg1 ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	got := evalString(t, st, "g 42")
	if got != "42" {
		t.Fatalf("g 42 = %q, want %q (continue unwinding through f must not leave a stale frame behind)", got, "42")
	}
}

func TestRecursionDepthLimit(t *testing.T) {
	st := newTestState()
	st.Limits.MaxCallDepth = 16
	if _, err := st.Eval("alias recur [ recur ]"); err != nil {
		t.Fatalf("alias error: %v", err)
	}
	if _, err := st.Eval("recur"); err == nil {
		t.Fatal("expected a call depth error")
	}
}

func TestAndOrShortCircuit(t *testing.T) {
	st := newTestState()
	st.NewCommand("boom", "", func(st *State, args []Value) Value {
		t.Fatal("boom should never be called once and/or short-circuits")
		return None
	})
	got := evalString(t, st, "and 0 [boom]")
	if got != "0" {
		t.Fatalf("and 0 [boom] = %q, want %q", got, "0")
	}
	got = evalString(t, st, "or 1 [boom]")
	if got != "1" {
		t.Fatalf("or 1 [boom] = %q, want %q", got, "1")
	}
}

func TestNotSpecial(t *testing.T) {
	got := evalString(t, newTestState(), "not 0")
	if got != "1" {
		t.Fatalf("not 0 = %q, want %q", got, "1")
	}
	got = evalString(t, newTestState(), "not 1")
	if got != "0" {
		t.Fatalf("not 1 = %q, want %q", got, "0")
	}
}

func TestConcatWithCoercesLeadingFixedArgBeforeConcatenating(t *testing.T) {
	st := newTestState()
	var gotArgs []Value
	st.NewCommand("tag", "iC", func(st *State, args []Value) Value {
		gotArgs = args
		return None
	})
	if _, err := st.Eval("tag 7 hello world"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if len(gotArgs) != 2 {
		t.Fatalf("tag got %d args, want 2 (the coerced int, then the concatenated rest)", len(gotArgs))
	}
	if gotArgs[0].Kind() != KindInt || gotArgs[0].ForceInt() != 7 {
		t.Fatalf("tag's first arg = %v, want IntValue(7)", gotArgs[0])
	}
	if gotArgs[1].ForceStr() != "hello world" {
		t.Fatalf("tag's second arg = %q, want %q", gotArgs[1].ForceStr(), "hello world")
	}
}

func TestRepeatingFormatGroupCyclesOverSuppliedArgs(t *testing.T) {
	st := newTestState()
	var gotArgs []Value
	st.NewCommand("pairs", "ss2", func(st *State, args []Value) Value {
		gotArgs = args
		return None
	})
	if _, err := st.Eval("pairs a b c"); err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	// One full [a b] cycle, then a second cycle starts (since "c" is
	// available) but its second "s" has nothing left to bind to, so that
	// slot is simply absent rather than padded with an empty string.
	want := []string{"a", "b", "c"}
	if len(gotArgs) != len(want) {
		t.Fatalf("pairs a b c got %v, want %v", gotArgs, want)
	}
	for i, w := range want {
		if gotArgs[i].ForceStr() != w {
			t.Fatalf("pairs a b c got %v, want %v", gotArgs, want)
		}
	}
}
