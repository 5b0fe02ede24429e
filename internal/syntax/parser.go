package syntax

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ParseError reports a character the parser could not place anywhere.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax: offset %d: %s", e.Offset, e.Msg)
}

// ErrRepair is returned when an edit cannot be applied to the prior text.
var ErrRepair = errors.New("syntax: repair failed")

// Edit replaces Length bytes at Offset with Text.
type Edit struct {
	Offset int
	Length int
	Text   string
}

// ApplyEdits applies the edits in order, each relative to the text produced by
// the previous one.
func ApplyEdits(text string, edits []Edit) (string, error) {
	for _, e := range edits {
		if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > len(text) {
			return "", fmt.Errorf("%w: edit [%d,+%d) outside document of length %d", ErrRepair, e.Offset, e.Length, len(text))
		}
		text = text[:e.Offset] + e.Text + text[e.Offset+e.Length:]
	}
	return text, nil
}

// Repair applies edits to the text of prior and parses the result.
func Repair(prior *Tree, edits []Edit) (*Tree, error) {
	if prior == nil {
		return nil, fmt.Errorf("%w: no prior tree", ErrRepair)
	}
	text, err := ApplyEdits(prior.Text, edits)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}

// Parse parses a complete build script.
func Parse(text string) (*Tree, error) {
	p := &parser{src: text, seen: make(map[int]bool)}
	root := p.parseScript()
	if p.err != nil {
		return nil, p.err
	}
	fillRaw(root, text)
	sort.Slice(p.comments, func(i, j int) bool { return p.comments[i].Offset < p.comments[j].Offset })
	for _, c := range p.comments {
		c.Raw = text[c.Offset:c.End]
	}
	return &Tree{Root: root, Comments: p.comments, Text: text}, nil
}

func fillRaw(s *Statement, text string) {
	s.Raw = text[s.Offset:s.End]
	for _, sc := range s.Scopes {
		fillRaw(sc.Stm, text)
	}
}

type ctx struct {
	brackets bool // newlines do not terminate the expression
	noBrace  bool // '{' starts a block, not a map
}

type parser struct {
	src      string
	pos      int
	err      error
	comments []*Statement
	seen     map[int]bool
}

// ============================================================================
// Scanning helpers
// ============================================================================

func isLiteralChar(c byte) bool {
	return c == '_' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isForeignCloser(c byte) bool {
	return c == ')' || c == ']' || c == '}'
}

func scanLiteral(src string, i int) int {
	for i < len(src) && isLiteralChar(src[i]) {
		i++
	}
	return i
}

func skipBlank(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\r' || src[i] == '\n') {
		i++
	}
	return i
}

// skipBalanced returns the index after the bracket matching src[i].
func skipBalanced(src string, i int) (int, bool) {
	depth := 0
	for i < len(src) {
		switch src[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		case '"':
			for i++; i < len(src) && src[i] != '"'; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		}
		i++
	}
	return i, false
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) advance(n int) {
	p.pos = min(p.pos+n, len(p.src))
}

func (p *parser) keyword(word string) bool {
	if !strings.HasPrefix(p.src[p.pos:], word) {
		return false
	}
	end := p.pos + len(word)
	return end == len(p.src) || !isLiteralChar(p.src[end])
}

func (p *parser) fail(offset int, msg string) {
	if p.err == nil {
		p.err = &ParseError{Offset: offset, Msg: msg}
	}
	p.pos = len(p.src)
}

func (p *parser) unexpected() {
	if p.eof() {
		p.fail(p.pos, "unexpected end of input")
		return
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	p.fail(p.pos, fmt.Sprintf("unexpected %q", r))
}

// expectClose consumes ch. EOF and foreign closers close the construct
// implicitly without being consumed.
func (p *parser) expectClose(ch byte) {
	switch c := p.peek(); {
	case c == ch:
		p.pos++
	case p.eof() || isForeignCloser(c):
	default:
		r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
		p.fail(p.pos, fmt.Sprintf("expected %q, found %q", ch, r))
	}
}

func (p *parser) comment(name string, start int) {
	if p.seen[start] {
		return
	}
	p.seen[start] = true
	p.comments = append(p.comments, &Statement{Name: name, Offset: start, End: p.pos})
}

// skipSpace skips blanks and comments. Newlines are only skipped when
// newlines is set. It reports whether a newline was consumed.
func (p *parser) skipSpace(newlines bool) bool {
	sawNewline := false
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			p.pos++
		case c == '\n' && newlines:
			p.pos++
			sawNewline = true
		case c == '#':
			start := p.pos
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
			p.comment("linecomment", start)
		case c == '/' && strings.HasPrefix(p.src[p.pos:], "/*"):
			start := p.pos
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end + 4
			}
			p.comment("multilinecomment", start)
		default:
			return sawNewline
		}
	}
	return sawNewline
}

func (p *parser) open(name string) *Statement {
	return &Statement{Name: name, Offset: p.pos, End: p.pos}
}

func (p *parser) close(s *Statement) {
	s.End = p.pos
}

func add(parent, child *Statement) {
	parent.Scopes = append(parent.Scopes, Scope{Label: child.Name, Stm: child})
}

func (p *parser) token(parent *Statement, name string, n int) {
	s := p.open(name)
	p.advance(n)
	p.close(s)
	add(parent, s)
}

// ============================================================================
// Script structure
// ============================================================================

func (p *parser) parseScript() *Statement {
	root := &Statement{Name: "build_script"}
	for {
		start := p.pos
		nl := p.skipSpace(true)
		if nl || (p.eof() && len(root.Scopes) == 0) {
			add(root, &Statement{Name: "global_step_scope", Offset: start, End: p.pos})
		}
		if p.eof() {
			break
		}
		if p.targetAhead() {
			add(root, p.parseTarget())
			continue
		}
		before := p.pos
		step := p.parseStep("global_expression_step")
		if p.pos == before {
			p.unexpected()
			break
		}
		add(root, step)
	}
	root.End = len(p.src)
	return root
}

// targetAhead reports whether a target declaration starts at the cursor:
// a comma separated name list, optional parameter list and an opening brace.
func (p *parser) targetAhead() bool {
	i := p.pos
	first := true
	for {
		j := scanLiteral(p.src, i)
		if j == i {
			return false
		}
		if first {
			switch p.src[i:j] {
			case "if", "else", "foreach":
				return false
			}
			first = false
		}
		i = skipBlank(p.src, j)
		if i < len(p.src) && p.src[i] == ',' {
			i = skipBlank(p.src, i+1)
			continue
		}
		break
	}
	if i < len(p.src) && p.src[i] == '(' {
		j, ok := skipBalanced(p.src, i)
		if !ok {
			return false
		}
		i = skipBlank(p.src, j)
	}
	return i < len(p.src) && p.src[i] == '{'
}

func (p *parser) parseTarget() *Statement {
	tt := p.open("task_target")
	names := p.open("target_names")
	for {
		p.skipSpace(true)
		tn := p.open("target_name")
		content := p.open("target_name_content")
		p.pos = scanLiteral(p.src, p.pos)
		content.Value = p.src[content.Offset:p.pos]
		p.close(content)
		add(tn, content)
		p.close(tn)
		add(names, tn)
		names.End = p.pos
		p.skipSpace(true)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	add(tt, names)
	if p.peek() == '(' {
		p.token(tt, "target_params_start", 1)
		p.parseTargetParameters(tt)
		p.skipSpace(true)
	}
	if p.peek() != '{' {
		p.unexpected()
		return tt
	}
	p.token(tt, "target_block_start", 1)
	block := p.open("task_statement_block")
	p.parseSteps(block, "task_step")
	p.close(block)
	add(tt, block)
	if p.peek() == '}' {
		p.token(tt, "target_block_end", 1)
	}
	p.close(tt)
	return tt
}

func (p *parser) parseTargetParameters(tt *Statement) {
	for {
		p.skipSpace(true)
		if p.eof() {
			return
		}
		if p.peek() == ')' {
			p.token(tt, "target_params_end", 1)
			return
		}
		param := p.open("in_parameter")
		switch {
		case p.keyword("out"):
			param.Name = "out_parameter"
			p.advance(3)
		case p.keyword("in"):
			p.advance(2)
		}
		p.skipSpace(true)
		name := p.open("target_parameter_name")
		content := p.open("target_parameter_name_content")
		p.pos = scanLiteral(p.src, p.pos)
		if p.pos == content.Offset {
			p.unexpected()
			return
		}
		content.Value = p.src[content.Offset:p.pos]
		p.close(content)
		add(name, content)
		p.close(name)
		add(param, name)
		p.close(param)
		mark := p.pos
		p.skipSpace(true)
		if p.peek() == '=' {
			p.pos++
			init := p.open("init_value")
			ph := p.open("expression_placeholder")
			add(ph, p.parseExpression(ctx{brackets: true}))
			p.close(ph)
			add(init, ph)
			p.close(init)
			add(param, init)
			p.close(param)
		} else {
			p.pos = mark
		}
		add(tt, param)
		p.skipSpace(true)
		switch c := p.peek(); {
		case c == ',':
			p.pos++
		case c == ')' || p.eof():
		default:
			p.unexpected()
			return
		}
	}
}

// parseSteps parses steps until a closing brace, which is left unconsumed.
func (p *parser) parseSteps(block *Statement, stepName string) {
	for {
		p.skipSpace(true)
		if p.eof() || p.peek() == '}' {
			return
		}
		before := p.pos
		step := p.parseStep(stepName)
		if p.pos == before {
			p.unexpected()
			return
		}
		add(block, step)
	}
}

func (p *parser) parseBlock(name, stepName string) *Statement {
	b := p.open(name)
	p.pos++
	p.parseSteps(b, stepName)
	if p.peek() == '}' {
		p.pos++
	}
	p.close(b)
	return b
}

func (p *parser) parseStep(name string) *Statement {
	s := p.open(name)
	if p.keyword("if") {
		add(s, p.parseCondition())
	} else {
		add(s, p.parseExpressionStep())
	}
	p.close(s)
	return s
}

func (p *parser) parseExpressionStep() *Statement {
	es := p.open("expression_step")
	content := p.open("expression_content")
	add(content, p.parseExpression(ctx{}))
	p.close(content)
	add(es, content)
	p.skipSpace(false)
	switch c := p.peek(); {
	case c == ';' || c == '\n':
		p.token(es, "EXPRESSION_CLOSING", 1)
	case p.eof() || c == '}':
	default:
		p.unexpected()
	}
	p.close(es)
	return es
}

func (p *parser) parseCondition() *Statement {
	cs := p.open("condition_step")
	p.advance(2)
	p.skipSpace(true)
	ce := p.open("condition_expression")
	add(ce, p.parseExpression(ctx{noBrace: true}))
	p.close(ce)
	add(cs, ce)
	p.skipSpace(true)
	if p.peek() != '{' {
		p.close(cs)
		return cs
	}
	add(cs, p.parseBlock("condition_true_statement_block", "true_step"))
	p.close(cs)
	mark := p.pos
	p.skipSpace(true)
	if !p.keyword("else") {
		p.pos = mark
		return cs
	}
	p.advance(4)
	p.skipSpace(true)
	switch {
	case p.keyword("if"):
		fb := p.open("condition_false_statement_block")
		fs := p.open("false_step")
		add(fs, p.parseCondition())
		p.close(fs)
		add(fb, fs)
		p.close(fb)
		add(cs, fb)
	case p.peek() == '{':
		add(cs, p.parseBlock("condition_false_statement_block", "false_step"))
	}
	p.close(cs)
	return cs
}

// ============================================================================
// Expressions
// ============================================================================

var binaryOperators = []struct{ op, kind string }{
	{"<<", "shiftop"}, {">>", "shiftop"},
	{"<=", "comparison"}, {">=", "comparison"},
	{"==", "equalityop"}, {"!=", "equalityop"},
	{"&&", "boolop"}, {"||", "boolop"},
	{"+", "addop"}, {"-", "addop"},
	{"*", "multop"}, {"/", "multop"}, {"%", "multop"},
	{"<", "comparison"}, {">", "comparison"},
	{"&", "bitop"}, {"^", "bitop"}, {"|", "bitop"},
	{"=", "assignment"},
	{"?", "ternary"},
}

func (p *parser) binaryOperator() (op, kind string) {
	rest := p.src[p.pos:]
	for _, b := range binaryOperators {
		if strings.HasPrefix(rest, b.op) {
			return b.op, b.kind
		}
	}
	return "", ""
}

// parseExpression parses an operand with its prefix and postfix operators,
// followed by an optional binary operator whose right side nests the rest of
// the expression.
func (p *parser) parseExpression(c ctx) *Statement {
	p.skipSpace(c.brackets)
	e := p.open("expression")
	p.parseOperand(e, c, true)
	p.close(e)
	mark := p.pos
	p.skipSpace(c.brackets)
	op, kind := p.binaryOperator()
	switch kind {
	case "":
		p.pos = mark
		return e
	case "ternary":
		t := p.open("ternary")
		p.pos++
		et := p.open("exp_true")
		add(et, p.parseExpression(c))
		p.close(et)
		add(t, et)
		mark = p.pos
		p.skipSpace(c.brackets)
		ef := p.open("exp_false")
		if p.peek() == ':' {
			p.pos++
			add(ef, p.parseExpression(c))
		} else {
			p.pos = mark
			ef.Offset, ef.End = mark, mark
		}
		p.close(ef)
		add(t, ef)
		p.close(t)
		add(e, t)
	default:
		b := p.open(kind)
		b.Value = op
		p.advance(len(op))
		ph := p.open("expression_placeholder")
		add(ph, p.parseExpression(c))
		p.close(ph)
		add(b, ph)
		p.close(b)
		add(e, b)
	}
	p.close(e)
	return e
}

func (p *parser) parseOperand(into *Statement, c ctx, postfix bool) {
	switch ch := p.peek(); ch {
	case '$':
		d := p.open("dereference")
		p.pos++
		subj := p.open("operator_subject")
		p.parseOperand(subj, c, false)
		p.close(subj)
		add(d, subj)
		p.close(d)
		add(into, d)
	case '-', '!', '~':
		u := p.open("unary")
		u.Value = string(ch)
		p.pos++
		p.skipSpace(c.brackets)
		subj := p.open("operator_subject")
		p.parseOperand(subj, c, true)
		p.close(subj)
		add(u, subj)
		p.close(u)
		add(into, u)
	default:
		prim := p.parsePrimary(c)
		if prim == nil {
			return
		}
		add(into, prim)
	}
	if !postfix {
		return
	}
	for p.peek() == '[' {
		s := p.open("subscript")
		p.pos++
		idx := p.open("subscript_index_expression")
		add(idx, p.parseExpression(ctx{brackets: true}))
		p.close(idx)
		add(s, idx)
		p.skipSpace(true)
		p.expectClose(']')
		p.close(s)
		add(into, s)
	}
}

func (p *parser) parsePrimary(c ctx) *Statement {
	switch ch := p.peek(); {
	case ch == '"':
		return p.parseString()
	case ch == '(':
		return p.parseParentheses()
	case ch == '[':
		return p.parseList()
	case ch == '{':
		if c.noBrace {
			return nil
		}
		return p.parseMap()
	case isLiteralChar(ch):
		if p.keyword("foreach") && p.foreachAhead() {
			return p.parseForeach(c)
		}
		if p.taskAhead() {
			return p.parseTask()
		}
		return p.parseLiteral()
	}
	return nil
}

func (p *parser) parseLiteral() *Statement {
	l := p.open("literal")
	content := p.open("literal_content")
	p.pos = scanLiteral(p.src, p.pos)
	content.Value = p.src[content.Offset:p.pos]
	p.close(content)
	add(l, content)
	p.close(l)
	return l
}

func (p *parser) parseString() *Statement {
	s := p.open("stringliteral")
	p.pos++
	var buf strings.Builder
	chunk := p.pos
	flush := func() {
		if p.pos > chunk {
			add(s, &Statement{Name: "stringliteral_content", Value: buf.String(), Offset: chunk, End: p.pos})
		}
		buf.Reset()
	}
	for !p.eof() {
		ch := p.peek()
		if ch == '"' {
			break
		}
		if ch == '\\' && p.pos+1 < len(p.src) {
			switch esc := p.src[p.pos+1]; esc {
			case 'n':
				buf.WriteByte('\n')
			case 't':
				buf.WriteByte('\t')
			default:
				buf.WriteByte(esc)
			}
			p.pos += 2
			continue
		}
		if ch == '{' {
			flush()
			ie := p.open("inline_expression")
			p.pos++
			ph := p.open("expression_placeholder")
			add(ph, p.parseExpression(ctx{brackets: true}))
			p.close(ph)
			add(ie, ph)
			p.skipSpace(true)
			if p.peek() == '}' {
				p.pos++
			}
			p.close(ie)
			add(s, ie)
			chunk = p.pos
			continue
		}
		buf.WriteByte(ch)
		p.pos++
	}
	flush()
	if p.peek() == '"' {
		p.pos++
	}
	p.close(s)
	return s
}

func (p *parser) parseParentheses() *Statement {
	pa := p.open("parentheses")
	p.pos++
	ph := p.open("expression_placeholder")
	add(ph, p.parseExpression(ctx{brackets: true}))
	p.close(ph)
	add(pa, ph)
	p.skipSpace(true)
	p.expectClose(')')
	p.close(pa)
	return pa
}

func (p *parser) parseList() *Statement {
	l := p.open("list")
	p.token(l, "list_boundary", 1)
	for {
		p.skipSpace(true)
		ch := p.peek()
		if ch == ']' {
			p.token(l, "list_boundary", 1)
			break
		}
		if p.eof() || isForeignCloser(ch) {
			break
		}
		el := p.open("list_element")
		add(el, p.parseExpression(ctx{brackets: true}))
		p.close(el)
		add(l, el)
		p.skipSpace(true)
		switch ch := p.peek(); {
		case ch == ',':
			p.pos++
		case ch == ']' || p.eof() || isForeignCloser(ch):
		default:
			p.unexpected()
		}
	}
	p.close(l)
	return l
}

func (p *parser) parseMap() *Statement {
	m := p.open("map")
	p.token(m, "map_boundary", 1)
	for {
		p.skipSpace(true)
		ch := p.peek()
		if ch == '}' {
			p.token(m, "map_boundary", 1)
			break
		}
		if p.eof() || isForeignCloser(ch) {
			break
		}
		el := p.open("map_element")
		key := p.open("map_key")
		add(key, p.parseExpression(ctx{brackets: true}))
		p.close(key)
		add(el, key)
		p.skipSpace(true)
		if p.peek() == ':' {
			p.pos++
			val := p.open("map_val")
			add(val, p.parseExpression(ctx{brackets: true}))
			p.close(val)
			add(el, val)
		}
		p.close(el)
		add(m, el)
		p.skipSpace(true)
		switch ch := p.peek(); {
		case ch == ',':
			p.pos++
		case ch == '}' || p.eof() || isForeignCloser(ch):
		default:
			p.unexpected()
		}
	}
	p.close(m)
	return m
}

func (p *parser) foreachAhead() bool {
	i := p.pos + len("foreach")
	for i < len(p.src) && (p.src[i] == ' ' || p.src[i] == '\t') {
		i++
	}
	return i < len(p.src) && p.src[i] == '$'
}

func (p *parser) parseForeach(c ctx) *Statement {
	f := p.open("foreach")
	p.advance(len("foreach"))
	for {
		p.skipSpace(false)
		if p.peek() != '$' {
			break
		}
		lv := p.open("loopvar")
		p.pos++
		start := p.pos
		p.pos = scanLiteral(p.src, p.pos)
		lv.Value = p.src[start:p.pos]
		p.close(lv)
		add(f, lv)
		p.skipSpace(false)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	p.skipSpace(true)
	if p.keyword("in") {
		p.advance(2)
		p.skipSpace(true)
		it := p.open("iterable")
		add(it, p.parseExpression(ctx{brackets: c.brackets, noBrace: true}))
		p.close(it)
		add(f, it)
	}
	mark := p.pos
	p.skipSpace(true)
	if p.keyword("with") {
		p.advance(len("with"))
		locals := p.open("foreach_locals")
		for {
			p.skipSpace(true)
			if p.peek() != '$' {
				break
			}
			lv := p.open("localvar")
			p.pos++
			start := p.pos
			p.pos = scanLiteral(p.src, p.pos)
			lv.Value = p.src[start:p.pos]
			p.skipSpace(false)
			if p.peek() == '=' {
				p.pos++
				init := p.open("local_initializer")
				ph := p.open("expression_placeholder")
				add(ph, p.parseExpression(ctx{noBrace: true}))
				p.close(ph)
				add(init, ph)
				p.close(init)
				add(lv, init)
			}
			p.close(lv)
			add(locals, lv)
			locals.End = p.pos
			p.skipSpace(false)
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
		add(f, locals)
		mark = p.pos
		p.skipSpace(true)
	}
	if p.peek() == '{' {
		add(f, p.parseBlock("foreach_statement_block", "foreach_substep"))
		mark = p.pos
	}
	p.pos = mark
	p.skipSpace(c.brackets)
	if p.peek() == ':' {
		p.pos++
		p.skipSpace(c.brackets)
		ve := p.open("value_expression")
		add(ve, p.parseExpression(ctx{brackets: c.brackets}))
		p.close(ve)
		add(f, ve)
	} else {
		p.pos = mark
	}
	p.close(f)
	return f
}

// taskAhead reports whether the literal at the cursor is a task invocation:
// name, '-' separated qualifiers, an optional '@repository' and '('.
func (p *parser) taskAhead() bool {
	src := p.src
	i := scanLiteral(src, p.pos)
	if i == p.pos {
		return false
	}
	for i < len(src) && src[i] == '-' {
		i++
		if i < len(src) && src[i] == '(' {
			j, ok := skipBalanced(src, i)
			if !ok {
				return false
			}
			i = j
			continue
		}
		j := scanLiteral(src, i)
		if j == i {
			return false
		}
		i = j
	}
	if i < len(src) && src[i] == '@' {
		i = scanLiteral(src, i+1)
	}
	return i < len(src) && src[i] == '('
}

func (p *parser) parseTask() *Statement {
	t := p.open("task")
	ti := p.open("task_identifier")
	p.pos = scanLiteral(p.src, p.pos)
	ti.Value = p.src[ti.Offset:p.pos]
	for p.peek() == '-' {
		q := p.open("qualifier")
		p.pos++
		if p.peek() == '(' {
			qi := p.open("qualifier_inline_expression")
			p.pos++
			ph := p.open("expression_placeholder")
			add(ph, p.parseExpression(ctx{brackets: true}))
			p.close(ph)
			add(qi, ph)
			p.skipSpace(true)
			p.expectClose(')')
			p.close(qi)
			add(q, qi)
		} else {
			ql := p.open("qualifier_literal")
			p.pos = scanLiteral(p.src, p.pos)
			ql.Value = p.src[ql.Offset:p.pos]
			p.close(ql)
			add(q, ql)
		}
		p.close(q)
		add(ti, q)
	}
	if p.peek() == '@' {
		r := p.open("repository_identifier")
		p.pos++
		p.pos = scanLiteral(p.src, p.pos)
		r.Value = p.src[r.Offset+1 : p.pos]
		p.close(r)
		add(ti, r)
	}
	p.close(ti)
	add(t, ti)

	pl := p.open("paramlist")
	p.pos++
	add(pl, p.parseParameter("first_parameter"))
loop:
	for {
		p.skipSpace(true)
		switch ch := p.peek(); {
		case ch == ',':
			p.pos++
			add(pl, p.parseParameter("parameter"))
		case ch == ')':
			p.pos++
			break loop
		case p.eof() || isForeignCloser(ch):
			break loop
		default:
			p.unexpected()
			break loop
		}
	}
	p.close(pl)
	add(t, pl)
	p.close(t)
	return t
}

// paramNameAhead returns the length of a parameter name followed by ':'.
func (p *parser) paramNameAhead() int {
	j := scanLiteral(p.src, p.pos)
	if j == p.pos {
		return 0
	}
	k := j
	for k < len(p.src) && (p.src[k] == ' ' || p.src[k] == '\t') {
		k++
	}
	if k < len(p.src) && p.src[k] == ':' {
		return j - p.pos
	}
	return 0
}

func (p *parser) parseParameter(name string) *Statement {
	prm := p.open(name)
	mark := p.pos
	p.skipSpace(true)
	if n := p.paramNameAhead(); n > 0 {
		pn := p.open("param_name")
		content := p.open("param_name_content")
		p.advance(n)
		content.Value = p.src[content.Offset:p.pos]
		p.close(content)
		add(pn, content)
		p.close(pn)
		add(prm, pn)
		p.skipSpace(false)
		p.token(prm, "param_eq", 1)
		mark = p.pos
	}
	p.pos = mark
	pc := p.open("param_content")
	ph := p.open("expression_placeholder")
	add(ph, p.parseExpression(ctx{brackets: true}))
	p.close(ph)
	add(pc, ph)
	p.close(pc)
	add(prm, pc)
	p.close(prm)
	return prm
}
