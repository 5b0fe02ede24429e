package assist

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jward/buildscope/internal/syntax"
)

// TokenKind classifies a highlighted range.
type TokenKind string

const (
	TokenKeyword   TokenKind = "keyword"
	TokenTask      TokenKind = "task"
	TokenParameter TokenKind = "parameter"
	TokenTarget    TokenKind = "target"
	TokenVariable  TokenKind = "variable"
	TokenString    TokenKind = "string"
	TokenNumber    TokenKind = "number"
	TokenLiteral   TokenKind = "literal"
	TokenOperator  TokenKind = "operator"
	TokenComment   TokenKind = "comment"
)

// Token is a classified range of the document.
type Token struct {
	Offset int       `json:"offset"`
	Length int       `json:"length"`
	Kind   TokenKind `json:"kind"`
}

var operatorKinds = map[string]bool{
	"addop": true, "multop": true, "equalityop": true, "comparison": true,
	"shiftop": true, "bitop": true, "boolop": true, "assignment": true,
}

// Tokens classifies the ranges of a parsed document for highlighting,
// ordered by offset.
func Tokens(tree *syntax.Tree) []Token {
	if tree == nil || tree.Root == nil {
		return nil
	}
	var out []Token
	emit := func(off, n int, k TokenKind) {
		if n > 0 {
			out = append(out, Token{Offset: off, Length: n, Kind: k})
		}
	}
	keyword := func(from, to int, word string) {
		if from < 0 || to > len(tree.Text) || from >= to {
			return
		}
		if i := strings.Index(tree.Text[from:to], word); i >= 0 {
			emit(from+i, len(word), TokenKeyword)
		}
	}

	tree.Root.Walk(func(s *syntax.Statement, _ []*syntax.Statement) bool {
		if operatorKinds[s.Name] {
			emit(s.Offset, len(s.Value), TokenOperator)
		}
		switch s.Name {
		case "task_identifier":
			emit(s.Offset, len(s.Value), TokenTask)
		case "qualifier_literal", "repository_identifier":
			emit(s.Offset, s.Length(), TokenTask)
		case "param_name_content":
			emit(s.Offset, s.Length(), TokenParameter)
		case "target_name_content":
			emit(s.Offset, s.Length(), TokenTarget)
		case "in_parameter", "out_parameter":
			word := "in"
			if s.Name == "out_parameter" {
				word = "out"
			}
			if strings.HasPrefix(s.Raw, word) && s.Length() > len(word) {
				emit(s.Offset, len(word), TokenKeyword)
			}
		case "target_parameter_name_content":
			emit(s.Offset, s.Length(), TokenVariable)
		case "loopvar":
			emit(s.Offset, s.Length(), TokenVariable)
		case "localvar":
			emit(s.Offset, len(s.Value)+1, TokenVariable)
		case "dereference":
			subject := s.FirstScope("operator_subject")
			if len(subject.Scopes) == 1 && subject.HasScope("literal") {
				emit(s.Offset, s.Length(), TokenVariable)
				return false
			}
			emit(s.Offset, 1, TokenVariable)
		case "unary", "ternary":
			emit(s.Offset, 1, TokenOperator)
		case "exp_false":
			if i := strings.IndexByte(s.Raw, ':'); i >= 0 && strings.TrimSpace(s.Raw[:i]) == "" {
				emit(s.Offset+i, 1, TokenOperator)
			}
		case "literal_content":
			emit(s.Offset, s.Length(), literalKind(s.Value))
		case "stringliteral":
			pos := s.Offset
			for _, sc := range s.Scopes {
				if sc.Label == "inline_expression" {
					emit(pos, sc.Stm.Offset-pos, TokenString)
					pos = sc.Stm.End
				}
			}
			emit(pos, s.End-pos, TokenString)
		case "foreach":
			emit(s.Offset, len("foreach"), TokenKeyword)
			from := s.Offset + len("foreach")
			if lvs := s.ScopeTo("loopvar"); len(lvs) > 0 {
				from = lvs[len(lvs)-1].End
			}
			if it := s.FirstScope("iterable"); it != nil {
				keyword(from, it.Offset, "in")
				from = it.End
			}
			if locals := s.FirstScope("foreach_locals"); locals != nil {
				keyword(from, locals.Offset, "with")
			}
		case "condition_step":
			emit(s.Offset, 2, TokenKeyword)
			if tb, fb := s.FirstScope("condition_true_statement_block"), s.FirstScope("condition_false_statement_block"); tb != nil && fb != nil {
				keyword(tb.End, fb.Offset, "else")
			}
		}
		return true
	})
	for _, c := range tree.Comments {
		emit(c.Offset, c.Length(), TokenComment)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func literalKind(v string) TokenKind {
	switch strings.ToLower(v) {
	case "true", "false", "null":
		return TokenKeyword
	}
	if _, err := strconv.ParseInt(v, 0, 64); err == nil {
		return TokenNumber
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return TokenNumber
	}
	return TokenLiteral
}
