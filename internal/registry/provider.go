package registry

import (
	"sort"
	"strings"
)

// Provider serves external documentation. Lookups that find nothing return
// empty results, never errors.
type Provider interface {
	// Tasks returns the tasks whose name starts with keyword.
	Tasks(keyword string) map[TaskName]*TaskInformation
	// TaskInformation returns every task sharing the simple name of name.
	TaskInformation(name TaskName) map[TaskName]*TaskInformation
	// TaskParameterInformation returns the parameter called param of every
	// task sharing the simple name of name.
	TaskParameterInformation(name TaskName, param string) map[TaskName]*TaskParameterInformation
	// Literals returns the literals starting with keyword that fit typeContext.
	Literals(keyword string, typeContext *TypeInformation) []*LiteralInformation
	// LiteralInformation documents a single literal, or returns nil.
	LiteralInformation(literal string, typeContext *TypeInformation) *LiteralInformation
}

// ParameterOf returns the parameter of t addressed by name. Exact names and
// aliases win over the "*" wildcard.
func ParameterOf(t *TaskInformation, name string) *TaskParameterInformation {
	if t == nil {
		return nil
	}
	var wildcard *TaskParameterInformation
	for _, p := range t.Parameters {
		if p.Matches(name) {
			return p
		}
		if p.Name == "*" {
			wildcard = p
		}
	}
	return wildcard
}

// ParametersOf collects the parameter called name of each task.
func ParametersOf(tasks map[TaskName]*TaskInformation, name string) map[TaskName]*TaskParameterInformation {
	out := make(map[TaskName]*TaskParameterInformation)
	for tn, t := range tasks {
		if p := ParameterOf(t, name); p != nil {
			out[tn] = p
		}
	}
	return out
}

// SortedTaskNames returns the keys of m ordered by their string form.
func SortedTaskNames[V any](m map[TaskName]V) []TaskName {
	out := make([]TaskName, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// SelectByQualifiers narrows same-named tasks to the ones matching the
// requested qualifiers: an exact match wins, then tasks carrying all requested
// qualifiers, then every task. With dynamic qualifiers name only holds the
// literal ones, so no exact match is attempted.
func SelectByQualifiers[V any](m map[TaskName]V, name TaskName, dynamic bool) map[TaskName]V {
	if len(m) == 0 {
		return m
	}
	if v, ok := m[name]; ok && !dynamic {
		return map[TaskName]V{name: v}
	}
	want := name.Qualifiers()
	out := make(map[TaskName]V)
	for tn, v := range m {
		if containsAll(tn.Qualifiers(), want) {
			out[tn] = v
		}
	}
	if len(out) > 0 {
		return out
	}
	return m
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HasPrefixFold reports whether s starts with prefix, ignoring case.
func HasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Chain merges several providers. Earlier providers win on conflicts.
type Chain []Provider

var _ Provider = Chain(nil)

func (c Chain) Tasks(keyword string) map[TaskName]*TaskInformation {
	out := make(map[TaskName]*TaskInformation)
	for _, p := range c {
		for tn, t := range p.Tasks(keyword) {
			if _, ok := out[tn]; !ok {
				out[tn] = t
			}
		}
	}
	return out
}

func (c Chain) TaskInformation(name TaskName) map[TaskName]*TaskInformation {
	out := make(map[TaskName]*TaskInformation)
	for _, p := range c {
		for tn, t := range p.TaskInformation(name) {
			if _, ok := out[tn]; !ok {
				out[tn] = t
			}
		}
	}
	return out
}

func (c Chain) TaskParameterInformation(name TaskName, param string) map[TaskName]*TaskParameterInformation {
	out := make(map[TaskName]*TaskParameterInformation)
	for _, p := range c {
		for tn, pi := range p.TaskParameterInformation(name, param) {
			if _, ok := out[tn]; !ok {
				out[tn] = pi
			}
		}
	}
	return out
}

func (c Chain) Literals(keyword string, typeContext *TypeInformation) []*LiteralInformation {
	var out []*LiteralInformation
	seen := make(map[string]bool)
	for _, p := range c {
		for _, l := range p.Literals(keyword, typeContext) {
			if !seen[l.Literal] {
				seen[l.Literal] = true
				out = append(out, l)
			}
		}
	}
	return out
}

func (c Chain) LiteralInformation(literal string, typeContext *TypeInformation) *LiteralInformation {
	for _, p := range c {
		if l := p.LiteralInformation(literal, typeContext); l != nil {
			return l
		}
	}
	return nil
}
