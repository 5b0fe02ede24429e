package expr

import (
	"strconv"
	"strings"

	"github.com/jward/buildscope/internal/syntax"
)

// Visitor receives one call per expression construct. Operator methods get the
// operator statement and the token streams of their operands.
type Visitor[T any] interface {
	VisitMissing(placeholder *syntax.Statement) T
	VisitLiteral(stm *syntax.Statement) T
	VisitStringLiteral(stm *syntax.Statement) T
	VisitParentheses(stm *syntax.Statement) T
	VisitList(stm *syntax.Statement) T
	VisitMap(stm *syntax.Statement) T
	VisitForeach(stm *syntax.Statement) T
	VisitTask(stm *syntax.Statement) T
	VisitDereference(stm *syntax.Statement, subject []Token) T
	VisitUnary(stm *syntax.Statement, subject []Token) T
	VisitSubscript(stm *syntax.Statement, subject []Token) T
	VisitAssignment(stm *syntax.Statement, left, right []Token) T
	VisitAddOp(stm *syntax.Statement, left, right []Token) T
	VisitMultiplyOp(stm *syntax.Statement, left, right []Token) T
	VisitEqualityOp(stm *syntax.Statement, left, right []Token) T
	VisitComparisonOp(stm *syntax.Statement, left, right []Token) T
	VisitShiftOp(stm *syntax.Statement, left, right []Token) T
	VisitBitOp(stm *syntax.Statement, left, right []Token) T
	VisitBoolOp(stm *syntax.Statement, left, right []Token) T
	VisitTernary(stm *syntax.Statement, cond, falseBranch []Token) T
}

// Base answers every visit with Default. Embed it and override the methods
// of interest.
type Base[T any] struct {
	Default T
}

func (b Base[T]) VisitMissing(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitLiteral(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitStringLiteral(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitParentheses(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitList(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitMap(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitForeach(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitTask(*syntax.Statement) T { return b.Default }
func (b Base[T]) VisitDereference(*syntax.Statement, []Token) T { return b.Default }
func (b Base[T]) VisitUnary(*syntax.Statement, []Token) T { return b.Default }
func (b Base[T]) VisitSubscript(*syntax.Statement, []Token) T { return b.Default }
func (b Base[T]) VisitAssignment(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitAddOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitMultiplyOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitEqualityOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitComparisonOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitShiftOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitBitOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitBoolOp(*syntax.Statement, []Token, []Token) T { return b.Default }
func (b Base[T]) VisitTernary(*syntax.Statement, []Token, []Token) T { return b.Default }

// ============================================================================
// Underlying statement
// ============================================================================

type underlying struct{ Base[*syntax.Statement] }

func (underlying) VisitMissing(ph *syntax.Statement) *syntax.Statement { return ph }
func (underlying) VisitLiteral(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitStringLiteral(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitParentheses(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitList(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitMap(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitForeach(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitTask(s *syntax.Statement) *syntax.Statement { return s }
func (underlying) VisitDereference(s *syntax.Statement, _ []Token) *syntax.Statement {
	return s
}
func (underlying) VisitUnary(s *syntax.Statement, _ []Token) *syntax.Statement { return s }
func (underlying) VisitSubscript(s *syntax.Statement, _ []Token) *syntax.Statement { return s }
func (underlying) VisitAssignment(s *syntax.Statement, _, _ []Token) *syntax.Statement {
	return s
}
func (underlying) VisitAddOp(s *syntax.Statement, _, _ []Token) *syntax.Statement { return s }
func (underlying) VisitMultiplyOp(s *syntax.Statement, _, _ []Token) *syntax.Statement {
	return s
}
func (underlying) VisitEqualityOp(s *syntax.Statement, _, _ []Token) *syntax.Statement {
	return s
}
func (underlying) VisitComparisonOp(s *syntax.Statement, _, _ []Token) *syntax.Statement {
	return s
}
func (underlying) VisitShiftOp(s *syntax.Statement, _, _ []Token) *syntax.Statement { return s }
func (underlying) VisitBitOp(s *syntax.Statement, _, _ []Token) *syntax.Statement { return s }
func (underlying) VisitBoolOp(s *syntax.Statement, _, _ []Token) *syntax.Statement { return s }
func (underlying) VisitTernary(s *syntax.Statement, _, _ []Token) *syntax.Statement { return s }

// Underlying returns the statement a token stream resolves to: the operator
// that binds loosest, the single operand, or the placeholder of a missing one.
func Underlying(tokens []Token) *syntax.Statement {
	return Visit[*syntax.Statement](tokens, underlying{})
}

// ============================================================================
// Constant values
// ============================================================================

type constant struct {
	value any
	ok    bool
}

type constantValue struct{ Base[constant] }

func (constantValue) VisitLiteral(stm *syntax.Statement) constant {
	return constant{LiteralContentValue(stm.FirstValue("literal_content")), true}
}

func (constantValue) VisitStringLiteral(stm *syntax.Statement) constant {
	s, ok := StringLiteralValue(stm)
	return constant{s, ok}
}

func (c constantValue) VisitParentheses(stm *syntax.Statement) constant {
	return VisitParentheses[constant](stm, c)
}

// LiteralContentValue interprets a literal: null, booleans, integers
// (including hexadecimal), floats, and any other text as a string.
func LiteralContentValue(s string) any {
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// StringLiteralValue returns the text of a string literal without inline
// expressions.
func StringLiteralValue(stm *syntax.Statement) (string, bool) {
	var sb strings.Builder
	for _, sc := range stm.Scopes {
		if sc.Label != "stringliteral_content" {
			return "", false
		}
		sb.WriteString(sc.Stm.Value)
	}
	return sb.String(), true
}

// Value returns the statically known value of a token stream.
func Value(tokens []Token) (any, bool) {
	c := Visit[constant](tokens, constantValue{})
	return c.value, c.ok
}

// StringValue returns the statically known value of a token stream formatted
// as a string. Booleans and numbers are accepted, null is not.
func StringValue(tokens []Token) (string, bool) {
	v, ok := Value(tokens)
	if !ok || v == nil {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	return "", false
}

// ============================================================================
// Variables
// ============================================================================

// UsageKind is the scope of a variable.
type UsageKind int

const (
	// Var variables are local to the enclosing build target.
	Var UsageKind = iota
	// Static variables are shared by the whole document.
	Static
	// Global variables are shared by every script of the execution.
	Global
)

func (k UsageKind) String() string {
	switch k {
	case Static:
		return "static"
	case Global:
		return "global"
	}
	return "var"
}

// UsageKindOf maps a variable task name to its kind.
func UsageKindOf(taskName string) (UsageKind, bool) {
	switch taskName {
	case "var":
		return Var, true
	case "static":
		return Static, true
	case "global":
		return Global, true
	}
	return Var, false
}

// VariableTaskUsage names a variable with its scope.
type VariableTaskUsage struct {
	Kind UsageKind
	Name string
}

// Less orders usages by kind, then name.
func (u VariableTaskUsage) Less(o VariableTaskUsage) bool {
	if u.Kind != o.Kind {
		return u.Kind < o.Kind
	}
	return u.Name < o.Name
}

func (u VariableTaskUsage) String() string {
	return u.Kind.String() + "(" + u.Name + ")"
}

type dereferenceName struct{ Base[constant] }

func (dereferenceName) VisitDereference(_ *syntax.Statement, subject []Token) constant {
	s, ok := StringValue(subject)
	return constant{s, ok}
}

// DereferenceName returns the variable name of a bare `$name` expression.
func DereferenceName(tokens []Token) (string, bool) {
	c := Visit[constant](tokens, dereferenceName{})
	if !c.ok {
		return "", false
	}
	return c.value.(string), true
}

type variableUsage struct{ Base[constant] }

func (variableUsage) VisitTask(stm *syntax.Statement) constant {
	u, ok := TaskVariableUsage(stm)
	return constant{u, ok}
}

func (variableUsage) VisitDereference(_ *syntax.Statement, subject []Token) constant {
	s, ok := StringValue(subject)
	return constant{VariableTaskUsage{Kind: Var, Name: s}, ok}
}

// VariableUsage returns the variable accessed by a `var(name)`, `static(name)`,
// `global(name)` or `$name` expression.
func VariableUsage(tokens []Token) (VariableTaskUsage, bool) {
	c := Visit[constant](tokens, variableUsage{})
	if !c.ok {
		return VariableTaskUsage{}, false
	}
	return c.value.(VariableTaskUsage), true
}

// TaskVariableUsage reports whether a task statement is one of the variable
// access tasks: no qualifiers, no repository, a single unnamed parameter with
// a constant value.
func TaskVariableUsage(task *syntax.Statement) (VariableTaskUsage, bool) {
	id := task.FirstScope("task_identifier")
	kind, ok := UsageKindOf(id.Value)
	if !ok || id.HasScope("qualifier") || id.HasScope("repository_identifier") {
		return VariableTaskUsage{}, false
	}
	pl := task.FirstScope("paramlist")
	if pl.HasScope("parameter") {
		return VariableTaskUsage{}, false
	}
	first := pl.FirstScope("first_parameter")
	if first == nil || first.HasScope("param_name") {
		return VariableTaskUsage{}, false
	}
	name, ok := StringValue(FlattenIn(first.FirstScope("param_content").FirstScope("expression_placeholder")))
	if !ok {
		return VariableTaskUsage{}, false
	}
	return VariableTaskUsage{Kind: kind, Name: name}, true
}

// ============================================================================
// Subscripts
// ============================================================================

type subscriptFinder struct {
	Base[[]Token]
	target *syntax.Statement
}

func (f subscriptFinder) VisitDereference(_ *syntax.Statement, subject []Token) []Token {
	return Visit[[]Token](subject, f)
}

func (f subscriptFinder) VisitUnary(_ *syntax.Statement, subject []Token) []Token {
	return Visit[[]Token](subject, f)
}

func (f subscriptFinder) VisitSubscript(stm *syntax.Statement, subject []Token) []Token {
	if stm == f.target {
		return subject
	}
	return Visit[[]Token](subject, f)
}

func (f subscriptFinder) binary(left, right []Token) []Token {
	if r := Visit[[]Token](left, f); r != nil {
		return r
	}
	return Visit[[]Token](right, f)
}

func (f subscriptFinder) VisitAssignment(_ *syntax.Statement, l, r []Token) []Token {
	return f.binary(l, r)
}
func (f subscriptFinder) VisitAddOp(_ *syntax.Statement, l, r []Token) []Token { return f.binary(l, r) }
func (f subscriptFinder) VisitMultiplyOp(_ *syntax.Statement, l, r []Token) []Token {
	return f.binary(l, r)
}
func (f subscriptFinder) VisitEqualityOp(_ *syntax.Statement, l, r []Token) []Token {
	return f.binary(l, r)
}
func (f subscriptFinder) VisitComparisonOp(_ *syntax.Statement, l, r []Token) []Token {
	return f.binary(l, r)
}
func (f subscriptFinder) VisitShiftOp(_ *syntax.Statement, l, r []Token) []Token {
	return f.binary(l, r)
}
func (f subscriptFinder) VisitBitOp(_ *syntax.Statement, l, r []Token) []Token { return f.binary(l, r) }
func (f subscriptFinder) VisitBoolOp(_ *syntax.Statement, l, r []Token) []Token { return f.binary(l, r) }
func (f subscriptFinder) VisitTernary(_ *syntax.Statement, c, fb []Token) []Token {
	return f.binary(c, fb)
}

// SubscriptSubject returns the token stream a subscript statement indexes
// into, searching the flattened stream tokens.
func SubscriptSubject(tokens []Token, subscript *syntax.Statement) ([]Token, bool) {
	r := Visit[[]Token](tokens, subscriptFinder{target: subscript})
	return r, r != nil
}
