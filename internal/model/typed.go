package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// InfoKind tags the variant of a TypedInfo.
type InfoKind int

const (
	InfoType InfoKind = iota
	InfoTask
	InfoTaskParameter
	InfoField
	InfoLiteral
	InfoTargetParameter
	InfoTarget
)

func (k InfoKind) String() string {
	switch k {
	case InfoTask:
		return "task"
	case InfoTaskParameter:
		return "parameter"
	case InfoField:
		return "field"
	case InfoLiteral:
		return "literal"
	case InfoTargetParameter:
		return "target-parameter"
	case InfoTarget:
		return "target"
	}
	return "type"
}

// TargetParameter describes an in or out parameter of a build target.
type TargetParameter struct {
	Name   string
	Output bool
	Target string
	Path   string
	Stm    *syntax.Statement
	Info   string
}

// Target describes a build target of a document.
type Target struct {
	Name string
	Path string
	Stm  *syntax.Statement
	Info string
}

// TypedInfo is the unit of deduction: one piece of documentation with the
// type it implies.
type TypedInfo struct {
	Kind            InfoKind
	Type            *registry.TypeInformation
	Task            *registry.TaskInformation
	Parameter       *registry.TaskParameterInformation
	Field           *registry.FieldInformation
	Literal         *registry.LiteralInformation
	TargetParameter *TargetParameter
	Target          *Target
}

// TypeOf wraps a type.
func TypeOf(t *registry.TypeInformation) *TypedInfo {
	return &TypedInfo{Kind: InfoType, Type: t}
}

// KindType wraps a type carrying only a kind.
func KindType(k registry.Kind) *TypedInfo {
	return TypeOf(registry.NewKindType(k))
}

func taskInfo(t *registry.TaskInformation) *TypedInfo {
	return &TypedInfo{Kind: InfoTask, Task: t, Type: t.ReturnType}
}

func parameterInfo(p *registry.TaskParameterInformation) *TypedInfo {
	return &TypedInfo{Kind: InfoTaskParameter, Parameter: p, Type: p.Type}
}

func fieldInfo(f *registry.FieldInformation) *TypedInfo {
	return &TypedInfo{Kind: InfoField, Field: f, Type: f.Type}
}

func literalInfo(l *registry.LiteralInformation) *TypedInfo {
	return &TypedInfo{Kind: InfoLiteral, Literal: l, Type: l.Type}
}

// Doc returns the documentation of the wrapped value.
func (t *TypedInfo) Doc() string {
	switch t.Kind {
	case InfoTask:
		return t.Task.Info.String()
	case InfoTaskParameter:
		return t.Parameter.Info.String()
	case InfoField:
		return t.Field.Info.String()
	case InfoLiteral:
		return t.Literal.Info.String()
	case InfoTargetParameter:
		return t.TargetParameter.Info
	case InfoTarget:
		return t.Target.Info
	}
	return t.Type.Info.String()
}

// Title is a one-line description used by hover and completion.
func (t *TypedInfo) Title() string {
	switch t.Kind {
	case InfoTask:
		return "task " + t.Task.Name.String() + "()"
	case InfoTaskParameter:
		name := t.Parameter.Name
		if name == "" {
			name = "<first>"
		}
		return fmt.Sprintf("parameter %s of %s()", name, t.Parameter.Task)
	case InfoField:
		return "field " + t.Field.Name
	case InfoLiteral:
		return "literal " + t.Literal.Literal
	case InfoTargetParameter:
		dir := "in"
		if t.TargetParameter.Output {
			dir = "out"
		}
		return fmt.Sprintf("%s parameter %s of target %s", dir, t.TargetParameter.Name, t.TargetParameter.Target)
	case InfoTarget:
		return "target " + t.Target.Name
	}
	return "type " + TypeString(t.Type)
}

// TypeString renders a type with its element types.
func TypeString(t *registry.TypeInformation) string {
	return typeString(t, 3)
}

func typeString(t *registry.TypeInformation, depth int) string {
	if t == nil {
		return "?"
	}
	name := t.Name()
	if len(t.ElementTypes) == 0 || depth == 0 {
		return name
	}
	parts := make([]string, len(t.ElementTypes))
	for i, e := range t.ElementTypes {
		parts[i] = typeString(e, depth-1)
	}
	return name + "<" + strings.Join(parts, ", ") + ">"
}

// key identifies a TypedInfo for set membership. Types compare structurally
// to a bounded depth so that equal shapes built independently collapse.
func (t *TypedInfo) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", t.Kind)
	switch t.Kind {
	case InfoTask:
		sb.WriteString(t.Task.Name.String())
	case InfoTaskParameter:
		sb.WriteString(t.Parameter.Task.String() + ":" + t.Parameter.Name)
	case InfoField:
		sb.WriteString(t.Field.Name)
	case InfoLiteral:
		sb.WriteString(t.Literal.Literal)
	case InfoTargetParameter:
		fmt.Fprintf(&sb, "%s:%s:%s:%v", t.TargetParameter.Path, t.TargetParameter.Target, t.TargetParameter.Name, t.TargetParameter.Output)
	case InfoTarget:
		sb.WriteString(t.Target.Path + ":" + t.Target.Name)
	}
	sb.WriteByte('|')
	writeTypeKey(&sb, t.Type, 3)
	return sb.String()
}

func writeTypeKey(sb *strings.Builder, t *registry.TypeInformation, depth int) {
	if t == nil {
		sb.WriteString("nil")
		return
	}
	sb.WriteString(string(t.Kind) + ":" + t.QualifiedName + ":" + t.SimpleName)
	if depth == 0 {
		return
	}
	if len(t.ElementTypes) > 0 {
		sb.WriteByte('<')
		for _, e := range t.ElementTypes {
			writeTypeKey(sb, e, depth-1)
			sb.WriteByte(',')
		}
		sb.WriteByte('>')
	}
	for _, set := range []map[string]*registry.FieldInformation{t.Fields, t.EnumValues} {
		if len(set) == 0 {
			continue
		}
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		sort.Strings(names)
		sb.WriteByte('{')
		for _, n := range names {
			sb.WriteString(n + "=")
			writeTypeKey(sb, set[n].Type, depth-1)
			sb.WriteByte(';')
		}
		sb.WriteByte('}')
	}
}

// InfoSet is an insertion ordered set of TypedInfo.
type InfoSet struct {
	keys  map[string]bool
	items []*TypedInfo
}

// NewInfoSet returns a set holding infos.
func NewInfoSet(infos ...*TypedInfo) *InfoSet {
	s := &InfoSet{keys: make(map[string]bool)}
	s.AddAll(infos)
	return s
}

// Add inserts t and reports whether it was new.
func (s *InfoSet) Add(t *TypedInfo) bool {
	if t == nil {
		return false
	}
	k := t.key()
	if s.keys[k] {
		return false
	}
	s.keys[k] = true
	s.items = append(s.items, t)
	return true
}

// AddAll inserts every element of infos.
func (s *InfoSet) AddAll(infos []*TypedInfo) {
	for _, t := range infos {
		s.Add(t)
	}
}

// Items returns the elements in insertion order.
func (s *InfoSet) Items() []*TypedInfo { return s.items }

// Len returns the number of elements.
func (s *InfoSet) Len() int { return len(s.items) }

// Types returns the distinct non-nil types carried by infos.
func Types(infos []*TypedInfo) []*registry.TypeInformation {
	var out []*registry.TypeInformation
	seen := make(map[string]bool)
	for _, t := range infos {
		if t.Type == nil {
			continue
		}
		var sb strings.Builder
		writeTypeKey(&sb, t.Type, 3)
		if k := sb.String(); !seen[k] {
			seen[k] = true
			out = append(out, t.Type)
		}
	}
	return out
}

// HasKind reports whether any info carries a type of kind k.
func HasKind(infos []*TypedInfo, k registry.Kind) bool {
	for _, t := range infos {
		if registry.KindOf(t.Type) == k {
			return true
		}
	}
	return false
}
