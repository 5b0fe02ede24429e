package expr

import (
	"strings"
	"testing"

	"github.com/jward/buildscope/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// printer renders the visited tree as an s-expression.
type printer struct{}

func (p printer) VisitMissing(*syntax.Statement) string { return "_" }
func (p printer) VisitLiteral(stm *syntax.Statement) string {
	return stm.FirstValue("literal_content")
}
func (p printer) VisitStringLiteral(stm *syntax.Statement) string { return stm.Raw }
func (p printer) VisitParentheses(stm *syntax.Statement) string {
	return "(paren " + VisitParentheses[string](stm, p) + ")"
}
func (p printer) VisitList(stm *syntax.Statement) string {
	var els []string
	for _, el := range stm.ScopeTo("list_element") {
		els = append(els, VisitIn[string](el, p))
	}
	return "[" + strings.Join(els, " ") + "]"
}
func (p printer) VisitMap(stm *syntax.Statement) string {
	var els []string
	for _, el := range stm.ScopeTo("map_element") {
		els = append(els, VisitIn[string](el.FirstScope("map_key"), p)+":"+VisitIn[string](el.FirstScope("map_val"), p))
	}
	return "{" + strings.Join(els, " ") + "}"
}
func (p printer) VisitForeach(*syntax.Statement) string { return "foreach" }
func (p printer) VisitTask(stm *syntax.Statement) string {
	return stm.FirstScope("task_identifier").Value + "()"
}
func (p printer) VisitDereference(_ *syntax.Statement, subject []Token) string {
	return "$" + Visit[string](subject, p)
}
func (p printer) VisitUnary(stm *syntax.Statement, subject []Token) string {
	return "(" + stm.Value + " " + Visit[string](subject, p) + ")"
}
func (p printer) VisitSubscript(stm *syntax.Statement, subject []Token) string {
	return "(idx " + Visit[string](subject, p) + " " + VisitIn[string](stm.FirstScope("subscript_index_expression"), p) + ")"
}
func (p printer) binary(stm *syntax.Statement, l, r []Token) string {
	return "(" + stm.Value + " " + Visit[string](l, p) + " " + Visit[string](r, p) + ")"
}
func (p printer) VisitAssignment(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitAddOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitMultiplyOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitEqualityOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitComparisonOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitShiftOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitBitOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitBoolOp(s *syntax.Statement, l, r []Token) string { return p.binary(s, l, r) }
func (p printer) VisitTernary(stm *syntax.Statement, cond, f []Token) string {
	return "(? " + Visit[string](cond, p) + " " + VisitTernaryTrue[string](stm, p) + " " + Visit[string](f, p) + ")"
}

// stream parses src as a single expression step and flattens it.
func stream(t *testing.T, src string) []Token {
	t.Helper()
	tree, err := syntax.Parse(src)
	require.NoError(t, err)
	var content *syntax.Statement
	tree.Root.Walk(func(s *syntax.Statement, _ []*syntax.Statement) bool {
		if content == nil && s.Name == "expression_content" {
			content = s
		}
		return content == nil
	})
	require.NotNil(t, content)
	return FlattenIn(content)
}

func render(t *testing.T, src string) string {
	t.Helper()
	return Visit[string](stream(t, src), printer{})
}

// ============================================================================
// Precedence
// ============================================================================

func TestVisit_Precedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * c", "(+ a (* b c))"},
		{"a * b + c", "(+ (* a b) c)"},
		{"a - b - c", "(- (- a b) c)"},
		{"a / b % c", "(% (/ a b) c)"},
		{"$a = $b = 1", "(= $a (= $b 1))"},
		{"a == b && c < d", "(&& (== a b) (< c d))"},
		{"a || b && c", "(|| a (&& b c))"},
		{"a | b ^ c & d", "(| a (^ b (& c d)))"},
		{"a << 1 + 2", "(<< a (+ 1 2))"},
		{"!a && b", "(&& (! a) b)"},
		{"-a[0]", "(- (idx a 0))"},
		{"$a[0][b]", "(idx (idx $a 0) b)"},
		{"$$a", "$$a"},
		{"a + b ? c : d + 1", "(? (+ a b) c (+ d 1))"},
		{"$x = a ? b : c", "(= $x (? a b c))"},
		{"(a + b) * c", "(* (paren (+ a b)) c)"},
		{"[a, b + 1]", "[a (+ b 1)]"},
		{"{a: 1, b: $c}", "{a:1 b:$c}"},
		{"print(x) + \"s\"", "(+ print() \"s\")"},
		{"a +", "(+ a _)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src))
		})
	}
}

func TestFlattenIn_EmptyYieldsPlaceholder(t *testing.T) {
	t.Parallel()
	ph := &syntax.Statement{Name: "expression_placeholder"}
	tokens := FlattenIn(ph)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Missing())
	assert.Same(t, ph, tokens[0].Placeholder)
}

func TestVisit_MalformedStreamPanics(t *testing.T) {
	t.Parallel()
	a := &syntax.Statement{Name: "literal"}
	b := &syntax.Statement{Name: "literal"}
	assert.Panics(t, func() { Visit[string]([]Token{{Stm: a}, {Stm: b}}, printer{}) })
}

// ============================================================================
// Constant values and variables
// ============================================================================

func TestValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want any
		ok   bool
	}{
		{"12", int64(12), true},
		{"0x10", int64(16), true},
		{"1.5", 1.5, true},
		{"TRUE", true, true},
		{"null", nil, true},
		{"word", "word", true},
		{"\"text\"", "text", true},
		{"(\"p\")", "p", true},
		{"\"a{b}\"", "", false},
		{"a + b", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, ok := Value(stream(t, tt.src))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	s, ok := StringValue(stream(t, "42"))
	assert.True(t, ok)
	assert.Equal(t, "42", s)
	_, ok = StringValue(stream(t, "null"))
	assert.False(t, ok)
}

func TestVariableUsage(t *testing.T) {
	t.Parallel()
	u, ok := VariableUsage(stream(t, "$abc"))
	require.True(t, ok)
	assert.Equal(t, VariableTaskUsage{Kind: Var, Name: "abc"}, u)

	u, ok = VariableUsage(stream(t, "static(\"s\")"))
	require.True(t, ok)
	assert.Equal(t, VariableTaskUsage{Kind: Static, Name: "s"}, u)
	assert.Equal(t, "static(s)", u.String())

	u, ok = VariableUsage(stream(t, "global(g)"))
	require.True(t, ok)
	assert.Equal(t, Global, u.Kind)

	for _, src := range []string{"var(a, b)", "var-q(a)", "var(Name: a)", "var($a)", "print(a)", "$a + 1"} {
		_, ok := VariableUsage(stream(t, src))
		assert.False(t, ok, src)
	}

	name, ok := DereferenceName(stream(t, "$x"))
	assert.True(t, ok)
	assert.Equal(t, "x", name)
	_, ok = DereferenceName(stream(t, "x"))
	assert.False(t, ok)
}

func TestVariableTaskUsage_Less(t *testing.T) {
	t.Parallel()
	a := VariableTaskUsage{Kind: Var, Name: "z"}
	b := VariableTaskUsage{Kind: Static, Name: "a"}
	c := VariableTaskUsage{Kind: Static, Name: "b"}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}

func TestUnderlying(t *testing.T) {
	t.Parallel()
	u := Underlying(stream(t, "$a = b + c"))
	require.NotNil(t, u)
	assert.Equal(t, "assignment", u.Name)
	assert.Equal(t, "literal", Underlying(stream(t, "b")).Name)
	assert.Equal(t, "dereference", Underlying(stream(t, "$b[0]")[:2]).Name)
}

func TestSubscriptSubject(t *testing.T) {
	t.Parallel()
	tokens := stream(t, "$x = $m[a][b]")
	var subs []*syntax.Statement
	for _, tk := range tokens {
		if tk.Stm != nil && tk.Stm.Name == "subscript" {
			subs = append(subs, tk.Stm)
		}
	}
	require.Len(t, subs, 2)

	subject, ok := SubscriptSubject(tokens, subs[1])
	require.True(t, ok)
	assert.Equal(t, "(idx $m a)", Visit[string](subject, printer{}))

	subject, ok = SubscriptSubject(tokens, subs[0])
	require.True(t, ok)
	assert.Equal(t, "$m", Visit[string](subject, printer{}))

	_, ok = SubscriptSubject(stream(t, "a"), subs[0])
	assert.False(t, ok)
}
