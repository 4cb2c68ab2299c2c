package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexing: source text -> statements of words, one pass, no AST
// ---------------------------------------------------------------------------

type wordKind uint8

const (
	wBare   wordKind = iota // unquoted literal text: a name, a number, a plain string
	wString                 // "quoted text", escapes already resolved
	wDollar                 // $name
	wBracket                // [ raw captured text ], not yet compiled
	wParen                  // ( raw captured text ), an inline sub-expression
)

type word struct {
	kind wordKind
	text string
	line int
}

type stmt struct {
	words []word
	line  int
}

// lexStatements splits src into top-level statements, each a sequence of
// words, honoring quotes, nested brackets/parens, comments, and line
// continuation exactly as spec §4.3 describes.
func lexStatements(src string, startLine int, name string) []stmt {
	lx := &lexer{src: src, line: startLine, name: name}
	return lx.run()
}

type lexer struct {
	src  string
	pos  int
	line int
	name string
}

func (lx *lexer) errf(format string, a ...any) {
	panic(&ParseError{Pos: Pos{Source: lx.name, Line: lx.line}, Message: fmt.Sprintf(format, a...)})
}

func (lx *lexer) run() []stmt {
	var stmts []stmt
	var cur []word
	flush := func() {
		if len(cur) > 0 {
			stmts = append(stmts, stmt{words: cur, line: lx.line})
			cur = nil
		}
	}
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\\' && lx.pos+1 < len(lx.src) && (lx.src[lx.pos+1] == '\n' || lx.src[lx.pos+1] == '\r'):
			lx.pos++
			if lx.src[lx.pos] == '\r' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\n' {
				lx.pos++
			}
			lx.pos++
			lx.line++
			for lx.pos < len(lx.src) && (lx.src[lx.pos] == ' ' || lx.src[lx.pos] == '\t') {
				lx.pos++
			}
		case c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == '\n':
			lx.pos++
			lx.line++
			flush()
		case c == ';':
			lx.pos++
			flush()
		case c == '"':
			text, newPos, newLine := lx.parseQuoted(lx.pos)
			cur = append(cur, word{kind: wString, text: text, line: lx.line})
			lx.pos, lx.line = newPos, newLine
		case c == '[':
			text, newPos, newLine := lx.captureBalanced(lx.pos, '[', ']')
			cur = append(cur, word{kind: wBracket, text: text, line: lx.line})
			lx.pos, lx.line = newPos, newLine
		case c == '(':
			text, newPos, newLine := lx.captureBalanced(lx.pos, '(', ')')
			cur = append(cur, word{kind: wParen, text: text, line: lx.line})
			lx.pos, lx.line = newPos, newLine
		case c == ']' || c == ')':
			lx.errf("unexpected %q", c)
		case c == '$':
			lx.pos++
			start := lx.pos
			for lx.pos < len(lx.src) && isWordByte(lx.src[lx.pos]) {
				lx.pos++
			}
			cur = append(cur, word{kind: wDollar, text: lx.src[start:lx.pos], line: lx.line})
		default:
			start := lx.pos
			for lx.pos < len(lx.src) && isWordByte(lx.src[lx.pos]) {
				lx.pos++
			}
			if lx.pos == start {
				lx.errf("unexpected character %q", c)
			}
			cur = append(cur, word{kind: wBare, text: lx.src[start:lx.pos], line: lx.line})
		}
	}
	flush()
	return stmts
}

func isWordByte(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ';', '(', ')', '[', ']', '"':
		return false
	default:
		return true
	}
}

func (lx *lexer) parseQuoted(pos int) (text string, newPos int, newLine int) {
	line := lx.line
	pos++ // opening quote
	var b strings.Builder
	for {
		if pos >= len(lx.src) {
			lx.line = line
			lx.errf("unterminated string")
		}
		c := lx.src[pos]
		switch c {
		case '"':
			pos++
			return b.String(), pos, line
		case '\n':
			line++
			b.WriteByte(c)
			pos++
		case '\\':
			pos++
			if pos >= len(lx.src) {
				lx.line = line
				lx.errf("unterminated string")
			}
			esc := lx.src[pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'f':
				b.WriteByte('\f')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '^':
				if pos+1 < len(lx.src) {
					pos++
					b.WriteByte(lx.src[pos] & 0x1F)
				}
			case '\n':
				line++
			default:
				b.WriteByte(esc)
			}
			pos++
		default:
			b.WriteByte(c)
			pos++
		}
	}
}

// captureBalanced captures the raw text between a matching pair of open/
// close delimiters, starting at src[pos]==open, respecting quoted strings
// and nested nested same-kind pairs. When open=='[' it also resolves @
// substitution per spec §4.3, failing with "too many @s" when a run of
// @s names an outer bracket level deeper than what is actually open.
func (lx *lexer) captureBalanced(pos int, open, close byte) (text string, newPos int, newLine int) {
	startLine := lx.line
	pos++ // opening delimiter
	depth := 0
	var b strings.Builder
	line := startLine
	for {
		if pos >= len(lx.src) {
			lx.line = startLine
			lx.errf("unterminated %q", open)
		}
		c := lx.src[pos]
		switch {
		case c == '"':
			qstart := pos
			lx.pos, lx.line = pos, line
			_, qend, qline := lx.parseQuoted(qstart)
			b.WriteString(lx.src[qstart:qend])
			pos, line = qend, qline
		case c == open:
			depth++
			b.WriteByte(c)
			pos++
		case c == close:
			if depth == 0 {
				pos++
				lx.line = line
				return b.String(), pos, line
			}
			depth--
			b.WriteByte(c)
			pos++
		case c == '\n':
			line++
			b.WriteByte(c)
			pos++
		case open == '[' && c == '@':
			run := 0
			for pos+run < len(lx.src) && lx.src[pos+run] == '@' {
				run++
			}
			required := run - 1
			if depth < required {
				lx.line = line
				lx.errf("too many @s")
			}
			pos += run
			if depth == required {
				b.WriteByte('$')
			} else {
				for i := 0; i < run; i++ {
					b.WriteByte('@')
				}
			}
		default:
			b.WriteByte(c)
			pos++
		}
	}
}

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

func newCompiler(st *State, src, name string) *compilation {
	return &compilation{st: st, src: src, name: name}
}

// compilation drives one top-level Compile call: it owns the one constant
// pool and instruction buffer for the resulting Block. Nested independent
// blocks (ordinary bracket arguments, "do" bodies) get their own nested
// compilation; if/and/or branches are generated inline into this one.
type compilation struct {
	st     *State
	src    string
	name   string
	code   []uint32
	consts []Value
}

func (c *compilation) emit(op Op, extra Op, imm int32) {
	c.code = append(c.code, instWord(op, extra, imm))
}

func (c *compilation) addConst(v Value) int32 {
	c.consts = append(c.consts, v)
	return int32(len(c.consts) - 1)
}

func (c *compilation) errf(line int, format string, a ...any) {
	panic(&CompileError{Pos: Pos{Source: c.name, Line: line}, Message: fmt.Sprintf(format, a...)})
}

func (c *compilation) compileTopLevel() (ref CodeRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *ParseError:
				err = e
			case *CompileError:
				err = e
			default:
				panic(r)
			}
		}
	}()
	stmts := lexStatements(c.src, 1, c.name)
	c.genStatements(stmts)
	c.emit(OpExit, 0, 0)
	b := NewBlock(c.code, c.consts, c.name)
	b.Ref()
	return TopLevel(b), nil
}

// compileSub compiles src as a fully independent Block (its own constant
// pool, terminated by EXIT), for use as a first-class code value: a
// deferred command argument (e/E), a "do" body, or an ordinary bracket
// argument that will be run immediately after being pushed.
func (c *compilation) compileSub(src string, line int) CodeRef {
	sub := &compilation{st: c.st, src: src, name: c.name}
	stmts := lexStatements(src, line, c.name)
	sub.genStatements(stmts)
	sub.emit(OpExit, 0, 0)
	b := NewBlock(sub.code, sub.consts, c.name)
	b.Ref()
	return TopLevel(b)
}

// genInline compiles src's statements directly into c's own buffer,
// sharing its constant pool, leaving the last statement's value on the
// stack — used for if/and/or branches and for "(...)" sub-expressions,
// which spec §4.3 says run "in the parent frame" with no block
// allocation.
func (c *compilation) genInline(src string, line int) {
	stmts := lexStatements(src, line, c.name)
	c.genStatements(stmts)
}

func (c *compilation) genStatements(stmts []stmt) {
	if len(stmts) == 0 {
		c.emit(OpNull, 0, 0)
		return
	}
	for i, s := range stmts {
		if i > 0 {
			c.emit(OpPop, 0, 0)
		}
		c.genStatement(s)
	}
}

func (c *compilation) genStatement(s stmt) {
	words := s.words
	if len(words) == 0 {
		c.emit(OpNull, 0, 0)
		return
	}
	if isAssignStatement(words) {
		c.genAssignStatement(words[0].text, words[2], s.line)
		return
	}
	words = rewriteInfix(c.st, words)

	head := words[0]
	headNumeric := false
	var id *Ident
	if head.kind == wBare {
		if _, _, _, ok := ParseNumeric(head.text); ok {
			headNumeric = true
		} else {
			id = c.st.Idents.Lookup(head.text)
		}
	}

	if len(words) == 1 && (head.kind != wBare || headNumeric) {
		c.genValueWord(head)
		return
	}

	if id != nil && id.Kind == IdentSpecial {
		c.genSpecial(id.Special, words[1:], s.line)
		return
	}
	if id != nil && id.Kind == IdentCommand {
		c.genCommandCall(id, words[1:], s.line)
		return
	}
	if id != nil && id.IsVar() {
		c.genVarStatement(id, words[1:])
		return
	}
	if id != nil && id.Kind == IdentAlias {
		c.genAliasCall(id, words[1:])
		return
	}

	// Unknown leading name: resolved at runtime via CALL_U.
	c.pushStringConst(head.text)
	n := c.genArgsEager(words[1:])
	c.emit(OpCallU, 0, int32(n))
}

// isAssignStatement reports whether words is the "name = rhs" assignment
// form (spec §4.3): exactly a bare name, a lone "=" word, and one value,
// with the name not itself a number (so "1 = 2" still falls through to
// an ordinary, if doomed, statement rather than being treated as one).
func isAssignStatement(words []word) bool {
	if len(words) != 3 || words[0].kind != wBare || words[1].kind != wBare || words[1].text != "=" {
		return false
	}
	_, _, _, numeric := ParseNumeric(words[0].text)
	return !numeric
}

// genAssignStatement compiles "name = rhs": assigns rhs to an existing
// or newly auto-vivified alias, a positional argument, or a registered
// variable, matching the original compiler's inline "=" check
// (src/cs_gen.cc) rather than routing "=" through the ordinary "="
// comparison command the way an unrecognized infix word would be.
func (c *compilation) genAssignStatement(name string, rhs word, line int) {
	id := c.st.Idents.Lookup(name)
	if id == nil {
		id = c.st.Idents.GetOrCreateAlias(name)
	}
	if id.IsVar() {
		c.genVarStatement(id, []word{rhs})
		return
	}
	if id.Kind != IdentAlias {
		c.errf(line, "cannot assign to %s", name)
	}
	c.genValueWord(rhs)
	c.emit(OpDup, 0, 0)
	if id.IsArg {
		c.emit(OpAliasArg, 0, id.Index)
	} else {
		c.emit(OpAlias, 0, id.Index)
	}
}

// rewriteInfix applies the "a OP b" -> "OP a b" sugar for a 3-word
// statement whose middle word already names a command or alias at
// compile time and whose first word does not name a command, alias, or
// special — used so that
// expressions like "1 + 2" read naturally inside a bracketed value.
// rewriteInfix hoists the middle word of a 3-word statement to the front
// when it resolves to a command/alias and the head doesn't, so "1 + 2"
// compiles as "+ 1 2" (spec scenario 1). Deliberately narrow: an unknown
// head followed by a defined name still gets rewritten (e.g. "foo bar baz"
// with "bar" a real alias calls bar(foo, baz)), since there's no way to
// tell a genuine infix use from a 3-word command call by shape alone.
func rewriteInfix(st *State, words []word) []word {
	if len(words) != 3 || words[1].kind != wBare {
		return words
	}
	op := st.Idents.Lookup(words[1].text)
	if op == nil || (op.Kind != IdentCommand && op.Kind != IdentAlias) {
		return words
	}
	if words[0].kind == wBare {
		if leading := st.Idents.Lookup(words[0].text); leading != nil &&
			(leading.Kind == IdentCommand || leading.Kind == IdentAlias || leading.Kind == IdentSpecial) {
			return words
		}
	}
	return []word{words[1], words[0], words[2]}
}

func (c *compilation) pushStringConst(s string) {
	idx := c.addConst(StringValue(c.st.Strings.AddString(s)))
	c.emit(OpVal, 0, idx)
}

// genValueWord compiles w for an ordinary (ANY/STRING) argument
// position: numeric bare words become int/float constants, other bare
// words and quoted strings become string constants, "$name" becomes a
// lookup, "(...)" compiles inline, and "[...]" is compiled as an
// independent block and run immediately (spec's default eager bracket
// evaluation).
func (c *compilation) genValueWord(w word) {
	switch w.kind {
	case wBare:
		if i, f, isFloat, ok := ParseNumeric(w.text); ok {
			if isFloat {
				idx := c.addConst(FloatValue(f))
				c.emit(OpValFloat, 0, idx)
			} else if i >= -(1<<23) && i < (1<<23) {
				c.emit(OpValInt, 0, i)
			} else {
				idx := c.addConst(IntValue(i))
				c.emit(OpVal, 0, idx)
			}
			return
		}
		c.pushStringConst(w.text)
	case wString:
		c.pushStringConst(w.text)
	case wDollar:
		id := c.st.Idents.GetOrCreateAlias(w.text)
		c.emit(OpLookup, 0, id.Index)
	case wParen:
		c.genInline(w.text, w.line)
	case wBracket:
		ref := c.compileSub(w.text, w.line)
		idx := c.addConst(CodeValue(ref))
		c.emit(OpBlock, 0, idx)
		c.emit(OpDo, 0, 0)
	}
}

// genDeferredCode compiles w into a code Value regardless of its
// syntactic kind, for command arguments with format letter e/E: a
// bracket becomes its own block; a bare word or string is compiled as
// source text; "$name" is looked up and passed through as-is (expected
// to already hold a code value).
func (c *compilation) genDeferredCode(w word) {
	switch w.kind {
	case wBracket, wString, wBare:
		ref := c.compileSub(w.text, w.line)
		idx := c.addConst(CodeValue(ref))
		c.emit(OpBlock, 0, idx)
	case wDollar:
		id := c.st.Idents.GetOrCreateAlias(w.text)
		c.emit(OpLookup, 0, id.Index)
	case wParen:
		c.genInline(w.text, w.line)
	}
}

// genRefWord pushes an identifier reference (not its value) for command
// arguments with format letter r: a bare word names the identifier to
// resolve/create; "$name" does the same (the $ is conventionally
// omitted for r-slots, but accepted either way).
func (c *compilation) genRefWord(w word) {
	name := w.text
	id := c.st.Idents.GetOrCreateAlias(name)
	c.emit(OpIdent, 0, id.Index)
}

// genArgsEager compiles each word as an eagerly-evaluated value and
// returns how many it emitted.
func (c *compilation) genArgsEager(words []word) int {
	for _, w := range words {
		c.genValueWord(w)
	}
	return len(words)
}

func (c *compilation) genAliasCall(id *Ident, args []word) {
	c.emit(OpIdent, 0, id.Index)
	n := c.genArgsEager(args)
	c.emit(OpCall, 0, int32(n))
}

func (c *compilation) genVarStatement(id *Ident, args []word) {
	if len(args) == 0 {
		switch id.Kind {
		case IdentIntVar:
			c.emit(OpIVar, 0, id.Index)
		case IdentFloatVar:
			c.emit(OpFVar, 0, id.Index)
		default:
			c.emit(OpSVar, 0, id.Index)
		}
		return
	}
	c.genValueWord(args[0])
	switch id.Kind {
	case IdentIntVar:
		c.emit(OpIVar1, 0, id.Index)
	case IdentFloatVar:
		c.emit(OpFVar1, 0, id.Index)
	default:
		c.emit(OpSVar1, 0, id.Index)
	}
	c.emit(OpLookup, 0, id.Index)
}

func (c *compilation) genCommandCall(id *Ident, args []word, line int) {
	letters := expandFormat(id.Format, len(args))
	rest, hasRest := describesFormat(id.Format)

	c.emit(OpIdent, 0, id.Index)
	n := 0
	for i, w := range args {
		var letter byte
		switch {
		case i < len(letters):
			letter = letters[i]
		case hasRest:
			letter = rest
		default:
			break
		}
		switch letter {
		case 'e', 'E':
			c.genDeferredCode(w)
		case 'r':
			c.genRefWord(w)
		default:
			c.genValueWord(w)
		}
		n++
	}

	op := OpCom
	switch rest {
	case 'C':
		op = OpComC
	case 'V':
		op = OpComV
	}
	c.emit(op, 0, int32(n))
}

// expandFormat flattens a format string's letters (cycling a repeating
// group for as many argument words as the call actually supplies) into
// one letter per argument position, dropping $, N, and any trailing C/V
// (handled separately as "the rest").
func expandFormat(format string, nArgs int) []byte {
	trimmed := strings.TrimRight(format, "CV")
	out := make([]byte, 0, nArgs)
	for _, fl := range parseFormat(trimmed) {
		if fl.repeat {
			for len(out) < nArgs {
				before := len(out)
				for _, letter := range fl.letters {
					if len(out) >= nArgs {
						break
					}
					if letter == '$' || letter == 'N' {
						continue
					}
					out = append(out, letter)
				}
				if len(out) == before {
					break // group is entirely $/N; avoid spinning forever
				}
			}
			continue
		}
		letter := fl.letters[0]
		if letter == '$' || letter == 'N' {
			continue
		}
		out = append(out, letter)
	}
	return out
}

func (c *compilation) genSpecial(op SpecialOp, args []word, line int) {
	switch op {
	case SpecialResult:
		if len(args) > 0 {
			c.genValueWord(args[0])
		} else {
			c.emit(OpNull, 0, 0)
		}
		c.emit(OpResult, 0, 0)
	case SpecialNot:
		if len(args) > 0 {
			c.genValueWord(args[0])
		} else {
			c.emit(OpNull, 0, 0)
		}
		c.emit(OpNot, 0, 0)
	case SpecialBreak:
		c.emit(OpBreak, FlagTrue, 0)
	case SpecialContinue:
		c.emit(OpBreak, FlagFalse, 0)
	case SpecialDo, SpecialDoArgs:
		if len(args) == 0 {
			c.emit(OpNull, 0, 0)
			return
		}
		c.genDeferredCode(args[0])
		if op == SpecialDoArgs {
			c.emit(OpDoArgs, 0, 0)
		} else {
			c.emit(OpDo, 0, 0)
		}
	case SpecialLocal:
		for _, w := range args {
			id := c.st.Idents.GetOrCreateAlias(w.text)
			c.emit(OpIdent, 0, id.Index)
		}
		c.emit(OpLocal, 0, int32(len(args)))
		// OpLocal only does save/restore bookkeeping and leaves nothing
		// on the stack; every statement needs to push exactly one value
		// for genStatements' OpPop sequencing between statements.
		c.emit(OpNull, 0, 0)
	case SpecialIf:
		c.genIf(args, line)
	case SpecialAnd:
		c.genAndOr(args, line, FlagFalse)
	case SpecialOr:
		c.genAndOr(args, line, FlagTrue)
	}
}

func (c *compilation) genIf(args []word, line int) {
	if len(args) == 0 {
		c.emit(OpNull, 0, 0)
		return
	}
	c.genValueWord(args[0])

	thenBuf := c.captureInline(rawText(args, 1), line)
	elseBuf := []uint32{instWord(OpNull, 0, 0)}
	if len(args) > 2 {
		elseBuf = c.captureInline(rawText(args, 2), line)
	}

	c.emit(OpJumpB, FlagFalse, int32(len(thenBuf)+1))
	c.code = append(c.code, thenBuf...)
	c.emit(OpJump, 0, int32(len(elseBuf)))
	c.code = append(c.code, elseBuf...)
}

func (c *compilation) genAndOr(args []word, line int, shortCircuit Op) {
	if len(args) == 0 {
		c.emit(OpNull, 0, 0)
		return
	}
	c.code = append(c.code, c.captureInline(rawText(args, 0), line)...)
	for i := 1; i < len(args); i++ {
		buf := c.captureInline(rawText(args, i), line)
		c.emit(OpJumpResult, shortCircuit, int32(len(buf)))
		c.code = append(c.code, buf...)
	}
}

// captureInline compiles src into a standalone instruction slice sharing
// c's constant pool, without disturbing c's own in-progress buffer; used
// to precompute the length of an if/and/or branch before splicing it in.
func (c *compilation) captureInline(src string, line int) []uint32 {
	saved := c.code
	c.code = nil
	c.genInline(src, line)
	buf := c.code
	c.code = saved
	return buf
}

func rawText(args []word, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i].text
}
