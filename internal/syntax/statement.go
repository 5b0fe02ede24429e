// Package syntax turns build script text into a labelled statement tree.
//
// The tree is deliberately loose: every node is a [Statement] carrying a name,
// an optional value, its byte span and an ordered list of labelled child
// scopes. Operators are not nested into a binary tree; an expression holds its
// operands and operators in source order with the right-hand side of each
// binary operator nested under an expression_placeholder. The expr package
// turns that shape back into a precedence-aware traversal.
package syntax

import (
	"strings"
)

// Statement is a single node of the statement tree.
type Statement struct {
	Name   string
	Value  string
	Raw    string
	Offset int
	End    int
	Scopes []Scope
}

// Scope is a labelled child of a Statement. The label equals the child's name.
type Scope struct {
	Label string
	Stm   *Statement
}

// Length returns the byte length of the statement.
func (s *Statement) Length() int {
	if s == nil {
		return 0
	}
	return s.End - s.Offset
}

// FirstScope returns the first child with the given name, or nil.
func (s *Statement) FirstScope(name string) *Statement {
	if s == nil {
		return nil
	}
	for _, sc := range s.Scopes {
		if sc.Label == name {
			return sc.Stm
		}
	}
	return nil
}

// FirstValue returns the value of the first child with the given name.
func (s *Statement) FirstValue(name string) string {
	if c := s.FirstScope(name); c != nil {
		return c.Value
	}
	return ""
}

// ScopeTo returns every direct child with the given name.
func (s *Statement) ScopeTo(name string) []*Statement {
	if s == nil {
		return nil
	}
	var out []*Statement
	for _, sc := range s.Scopes {
		if sc.Label == name {
			out = append(out, sc.Stm)
		}
	}
	return out
}

// ScopeValues returns the values of every direct child with the given name.
func (s *Statement) ScopeValues(name string) []string {
	var out []string
	for _, c := range s.ScopeTo(name) {
		out = append(out, c.Value)
	}
	return out
}

// HasScope reports whether a direct child with the given name exists.
func (s *Statement) HasScope(name string) bool {
	return s.FirstScope(name) != nil
}

// Children returns the child statements in order.
func (s *Statement) Children() []*Statement {
	if s == nil {
		return nil
	}
	out := make([]*Statement, len(s.Scopes))
	for i, sc := range s.Scopes {
		out[i] = sc.Stm
	}
	return out
}

// IsEmpty reports whether the statement has neither children nor value.
func (s *Statement) IsEmpty() bool {
	return s == nil || (len(s.Scopes) == 0 && s.Value == "")
}

// ContainsOffset reports whether offset falls within [Offset, End].
func (s *Statement) ContainsOffset(offset int) bool {
	return s != nil && s.Offset <= offset && offset <= s.End
}

// Encloses reports whether other lies completely within s.
func (s *Statement) Encloses(other *Statement) bool {
	return s != nil && other != nil && s.Offset <= other.Offset && other.End <= s.End
}

// Walk visits s and its descendants depth first. parents holds the ancestors
// of the visited statement, innermost first. Returning false from fn skips the
// children of the visited statement.
func (s *Statement) Walk(fn func(stm *Statement, parents []*Statement) bool) {
	if s == nil {
		return
	}
	var stack []*Statement
	var walk func(stm *Statement)
	walk = func(stm *Statement) {
		parents := make([]*Statement, len(stack))
		for i := range stack {
			parents[i] = stack[len(stack)-1-i]
		}
		if !fn(stm, parents) {
			return
		}
		stack = append(stack, stm)
		for _, sc := range stm.Scopes {
			walk(sc.Stm)
		}
		stack = stack[:len(stack)-1]
	}
	walk(s)
}

// Tree is the result of parsing a document.
type Tree struct {
	Root     *Statement
	Comments []*Statement
	Text     string
}

// LeadingComment returns the text of the comment that directly precedes stm,
// with comment markers removed. Only whitespace may separate the two.
func (t *Tree) LeadingComment(stm *Statement) string {
	if t == nil || stm == nil {
		return ""
	}
	var found *Statement
	for _, c := range t.Comments {
		if c.End > stm.Offset {
			break
		}
		found = c
	}
	if found == nil || strings.TrimSpace(t.Text[found.End:stm.Offset]) != "" {
		return ""
	}
	return commentText(found)
}

func commentText(c *Statement) string {
	raw := c.Raw
	if c.Name == "linecomment" {
		return strings.TrimSpace(strings.TrimPrefix(raw, "#"))
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "/*"), "*/")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		l = strings.TrimSpace(strings.TrimPrefix(l, "*"))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// Position converts a byte offset to a zero-based line and column.
func (t *Tree) Position(offset int) (line, col int) {
	return Position(t.Text, offset)
}

// Position converts a byte offset in text to a zero-based line and column.
func Position(text string, offset int) (line, col int) {
	if offset > len(text) {
		offset = len(text)
	}
	line = strings.Count(text[:offset], "\n")
	col = offset - (strings.LastIndexByte(text[:offset], '\n') + 1)
	return line, col
}

// OffsetOf converts a zero-based line and column to a byte offset, clamped to
// the end of the line.
func OffsetOf(text string, line, col int) int {
	off := 0
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return len(text)
		}
		off += nl + 1
	}
	end := strings.IndexByte(text[off:], '\n')
	if end < 0 {
		end = len(text) - off
	}
	if col > end {
		col = end
	}
	return off + col
}
