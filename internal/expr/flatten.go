// Package expr restores operator precedence over the flattened expression
// statements produced by the syntax package.
//
// An expression statement lists its operands and operators in source order and
// nests the right-hand side of every binary operator one level deeper.
// [FlattenIn] linearizes that shape into a token stream and [Visit] splits the
// stream at the loosest-binding operator, recursing into both halves, so a
// [Visitor] sees a conventional expression tree.
package expr

import (
	"fmt"

	"github.com/jward/buildscope/internal/syntax"
)

// Token is one element of a flattened expression. A token with a nil Stm
// stands for a missing operand; Placeholder is the statement that would have
// held it.
type Token struct {
	Stm         *syntax.Statement
	Placeholder *syntax.Statement
}

// Missing reports whether the token stands for an absent operand.
func (t Token) Missing() bool { return t.Stm == nil }

// FlattenIn flattens the expression held by parent. An absent or empty
// expression yields a single missing token whose placeholder is parent.
func FlattenIn(parent *syntax.Statement) []Token {
	e := parent.FirstScope("expression")
	if e == nil || len(e.Scopes) == 0 {
		return []Token{{Placeholder: parent}}
	}
	var out []Token
	flattenItems(e.Scopes, &out)
	return out
}

// Subject flattens the operand of a dereference or unary statement.
func Subject(stm *syntax.Statement) []Token {
	subj := stm.FirstScope("operator_subject")
	if subj == nil || len(subj.Scopes) == 0 {
		return []Token{{Placeholder: subj}}
	}
	var out []Token
	flattenItems(subj.Scopes, &out)
	return out
}

func flattenItems(items []syntax.Scope, out *[]Token) {
	for _, sc := range items {
		s := sc.Stm
		*out = append(*out, Token{Stm: s})
		switch {
		case s.Name == "dereference" || s.Name == "unary":
			subj := s.FirstScope("operator_subject")
			if subj == nil || len(subj.Scopes) == 0 {
				*out = append(*out, Token{Placeholder: subj})
			} else {
				flattenItems(subj.Scopes, out)
			}
		case s.Name == "ternary":
			*out = append(*out, FlattenIn(s.FirstScope("exp_false"))...)
		case IsBinaryOperator(s.Name):
			*out = append(*out, FlattenIn(s.FirstScope("expression_placeholder"))...)
		}
	}
}

// IsBinaryOperator reports whether name is a binary operator statement.
func IsBinaryOperator(name string) bool {
	switch name {
	case "assignment", "addop", "multop", "equalityop", "comparison", "shiftop", "bitop", "boolop":
		return true
	}
	return false
}

// precedence levels, tightest first
const (
	levelOperand = -1
	levelDeref   = 0
	levelSubscr  = 1
	levelUnary   = 2
	levelMult    = 3
	levelAdd     = 4
	levelShift   = 5
	levelCompare = 6
	levelEqual   = 7
	levelBitAnd  = 8
	levelBitXor  = 9
	levelBitOr   = 10
	levelAnd     = 11
	levelOr      = 12
	levelTernary = 13
	levelAssign  = 14
)

// leftAssociative levels split at their last occurrence.
var leftAssociative = map[int]bool{
	levelSubscr: true,
	levelMult:   true,
	levelAdd:    true,
	levelShift:  true,
	levelEqual:  true,
}

func level(t Token) int {
	if t.Stm == nil {
		return levelOperand
	}
	switch t.Stm.Name {
	case "dereference":
		return levelDeref
	case "subscript":
		return levelSubscr
	case "unary":
		return levelUnary
	case "multop":
		return levelMult
	case "addop":
		return levelAdd
	case "shiftop":
		return levelShift
	case "comparison":
		return levelCompare
	case "equalityop":
		return levelEqual
	case "bitop":
		switch t.Stm.Value {
		case "&":
			return levelBitAnd
		case "^":
			return levelBitXor
		}
		return levelBitOr
	case "boolop":
		if t.Stm.Value == "&&" {
			return levelAnd
		}
		return levelOr
	case "ternary":
		return levelTernary
	case "assignment":
		return levelAssign
	}
	return levelOperand
}

// Visit dispatches tokens to v, splitting at the loosest-binding operator.
// Malformed streams and unknown statement kinds panic: they mean the parser
// and this package disagree about the grammar.
func Visit[T any](tokens []Token, v Visitor[T]) T {
	if len(tokens) == 0 {
		return v.VisitMissing(nil)
	}
	idx, lvl := -1, levelOperand
	for i, t := range tokens {
		l := level(t)
		if l > lvl || (l == lvl && l != levelOperand && leftAssociative[l]) {
			idx, lvl = i, l
		}
	}
	if lvl == levelOperand {
		if len(tokens) != 1 {
			panic(fmt.Sprintf("expr: %d operands without an operator", len(tokens)))
		}
		return visitOperand(tokens[0], v)
	}
	stm := tokens[idx].Stm
	left, right := tokens[:idx], tokens[idx+1:]
	switch lvl {
	case levelDeref, levelUnary:
		if idx != 0 {
			panic(fmt.Sprintf("expr: prefix operator %q at position %d", stm.Name, idx))
		}
		if stm.Name == "dereference" {
			return v.VisitDereference(stm, right)
		}
		return v.VisitUnary(stm, right)
	case levelSubscr:
		if idx != len(tokens)-1 {
			panic(fmt.Sprintf("expr: subscript at position %d of %d", idx, len(tokens)))
		}
		return v.VisitSubscript(stm, left)
	}
	switch stm.Name {
	case "assignment":
		return v.VisitAssignment(stm, left, right)
	case "addop":
		return v.VisitAddOp(stm, left, right)
	case "multop":
		return v.VisitMultiplyOp(stm, left, right)
	case "equalityop":
		return v.VisitEqualityOp(stm, left, right)
	case "comparison":
		return v.VisitComparisonOp(stm, left, right)
	case "shiftop":
		return v.VisitShiftOp(stm, left, right)
	case "bitop":
		return v.VisitBitOp(stm, left, right)
	case "boolop":
		return v.VisitBoolOp(stm, left, right)
	case "ternary":
		return v.VisitTernary(stm, left, right)
	}
	panic(fmt.Sprintf("expr: unhandled operator %q", stm.Name))
}

func visitOperand[T any](t Token, v Visitor[T]) T {
	if t.Stm == nil {
		return v.VisitMissing(t.Placeholder)
	}
	switch t.Stm.Name {
	case "literal":
		return v.VisitLiteral(t.Stm)
	case "stringliteral":
		return v.VisitStringLiteral(t.Stm)
	case "parentheses":
		return v.VisitParentheses(t.Stm)
	case "list":
		return v.VisitList(t.Stm)
	case "map":
		return v.VisitMap(t.Stm)
	case "foreach":
		return v.VisitForeach(t.Stm)
	case "task":
		return v.VisitTask(t.Stm)
	}
	panic(fmt.Sprintf("expr: unhandled statement %q", t.Stm.Name))
}

// VisitIn flattens the expression held by parent and visits it.
func VisitIn[T any](parent *syntax.Statement, v Visitor[T]) T {
	return Visit(FlattenIn(parent), v)
}

// VisitParentheses visits the expression enclosed by a parentheses statement.
func VisitParentheses[T any](stm *syntax.Statement, v Visitor[T]) T {
	return VisitIn(stm.FirstScope("expression_placeholder"), v)
}

// VisitTernaryTrue visits the true branch of a ternary statement, which is not
// part of the flattened stream.
func VisitTernaryTrue[T any](stm *syntax.Statement, v Visitor[T]) T {
	return VisitIn(stm.FirstScope("exp_true"), v)
}
