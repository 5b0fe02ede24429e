package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the YAML form of a set of task, type and literal documentation.
type Catalog struct {
	Types    map[string]TypeSpec `yaml:"types"`
	Tasks    []TaskSpec          `yaml:"tasks"`
	Literals []LiteralSpec       `yaml:"literals"`
}

// TypeSpec declares a named type. Type references elsewhere in the catalog
// name either an entry of Catalog.Types or a bare Kind.
type TypeSpec struct {
	Kind          Kind        `yaml:"kind"`
	QualifiedName string      `yaml:"qualified_name"`
	SimpleName    string      `yaml:"simple_name"`
	Info          string      `yaml:"info"`
	Elements      []string    `yaml:"elements"`
	SuperTypes    []string    `yaml:"super_types"`
	Fields        []FieldSpec `yaml:"fields"`
	Enum          []FieldSpec `yaml:"enum"`
	Deprecated    bool        `yaml:"deprecated"`
}

type FieldSpec struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Info       string `yaml:"info"`
	Deprecated bool   `yaml:"deprecated"`
}

type TaskSpec struct {
	Name       string      `yaml:"name"`
	Info       string      `yaml:"info"`
	Returns    string      `yaml:"returns"`
	Parameters []ParamSpec `yaml:"parameters"`
	Deprecated bool        `yaml:"deprecated"`
}

type ParamSpec struct {
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases"`
	Type       string   `yaml:"type"`
	Info       string   `yaml:"info"`
	Required   bool     `yaml:"required"`
	Deprecated bool     `yaml:"deprecated"`
}

type LiteralSpec struct {
	Literal  string `yaml:"literal"`
	Type     string `yaml:"type"`
	Info     string `yaml:"info"`
	Relation string `yaml:"relation"`
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("registry: parse catalog: %w", err)
	}
	return &c, nil
}

// LoadCatalog reads and decodes a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Resolver turns catalog type references into TypeInformation, sharing one
// instance per named type.
type Resolver struct {
	c     *Catalog
	built map[string]*TypeInformation
}

// NewResolver returns a Resolver for c.
func NewResolver(c *Catalog) *Resolver {
	return &Resolver{c: c, built: make(map[string]*TypeInformation)}
}

// Type resolves a reference. The empty reference resolves to nil.
func (r *Resolver) Type(ref string) (*TypeInformation, error) {
	if ref == "" {
		return nil, nil
	}
	if t, ok := r.built[ref]; ok {
		return t, nil
	}
	spec, ok := r.c.Types[ref]
	if !ok {
		if ref == strings.ToUpper(ref) {
			return NewKindType(Kind(ref)), nil
		}
		return nil, fmt.Errorf("registry: unknown type %q", ref)
	}
	t := &TypeInformation{
		Kind:          spec.Kind,
		QualifiedName: spec.QualifiedName,
		SimpleName:    spec.SimpleName,
		Info:          NewDoc(spec.Info),
		Deprecated:    spec.Deprecated,
	}
	if t.Kind == "" {
		t.Kind = KindObject
	}
	r.built[ref] = t
	for _, e := range spec.Elements {
		et, err := r.Type(e)
		if err != nil {
			return nil, err
		}
		t.ElementTypes = append(t.ElementTypes, et)
	}
	for _, s := range spec.SuperTypes {
		st, err := r.Type(s)
		if err != nil {
			return nil, err
		}
		t.SuperTypes = append(t.SuperTypes, st)
	}
	var err error
	if t.Fields, err = r.fields(spec.Fields); err != nil {
		return nil, err
	}
	if t.EnumValues, err = r.fields(spec.Enum); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Resolver) fields(specs []FieldSpec) (map[string]*FieldInformation, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]*FieldInformation, len(specs))
	for _, f := range specs {
		ft, err := r.Type(f.Type)
		if err != nil {
			return nil, err
		}
		out[f.Name] = &FieldInformation{Name: f.Name, Type: ft, Info: NewDoc(f.Info), Deprecated: f.Deprecated}
	}
	return out, nil
}

// Task builds the TaskInformation of a spec.
func (r *Resolver) Task(spec TaskSpec) (*TaskInformation, error) {
	rt, err := r.Type(spec.Returns)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", spec.Name, err)
	}
	t := &TaskInformation{
		Name:       ParseTaskName(spec.Name),
		Info:       NewDoc(spec.Info),
		ReturnType: rt,
		Deprecated: spec.Deprecated,
	}
	for _, ps := range spec.Parameters {
		pt, err := r.Type(ps.Type)
		if err != nil {
			return nil, fmt.Errorf("task %s parameter %s: %w", spec.Name, ps.Name, err)
		}
		t.Parameters = append(t.Parameters, &TaskParameterInformation{
			Task:       t.Name,
			Name:       ps.Name,
			Aliases:    ps.Aliases,
			Type:       pt,
			Info:       NewDoc(ps.Info),
			Required:   ps.Required,
			Deprecated: ps.Deprecated,
		})
	}
	return t, nil
}

// Literal builds the LiteralInformation of a spec.
func (r *Resolver) Literal(spec LiteralSpec) (*LiteralInformation, error) {
	lt, err := r.Type(spec.Type)
	if err != nil {
		return nil, fmt.Errorf("literal %s: %w", spec.Literal, err)
	}
	return &LiteralInformation{Literal: spec.Literal, Info: NewDoc(spec.Info), Type: lt, Relation: spec.Relation}, nil
}

// Provider builds an in-memory provider serving the catalog.
func (c *Catalog) Provider() (*Static, error) {
	r := NewResolver(c)
	var tasks []*TaskInformation
	for _, ts := range c.Tasks {
		t, err := r.Task(ts)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		tasks = append(tasks, t)
	}
	var literals []*LiteralInformation
	for _, ls := range c.Literals {
		l, err := r.Literal(ls)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		literals = append(literals, l)
	}
	return NewStatic(tasks, literals), nil
}

// Static serves a fixed set of documentation.
type Static struct {
	tasks    map[TaskName]*TaskInformation
	literals []*LiteralInformation
}

var _ Provider = (*Static)(nil)

// NewStatic returns a provider over tasks and literals.
func NewStatic(tasks []*TaskInformation, literals []*LiteralInformation) *Static {
	s := &Static{tasks: make(map[TaskName]*TaskInformation, len(tasks)), literals: literals}
	for _, t := range tasks {
		s.tasks[t.Name] = t
	}
	return s
}

func (s *Static) Tasks(keyword string) map[TaskName]*TaskInformation {
	out := make(map[TaskName]*TaskInformation)
	for tn, t := range s.tasks {
		if HasPrefixFold(tn.Name, keyword) {
			out[tn] = t
		}
	}
	return out
}

func (s *Static) TaskInformation(name TaskName) map[TaskName]*TaskInformation {
	out := make(map[TaskName]*TaskInformation)
	for tn, t := range s.tasks {
		if tn.Name == name.Name {
			out[tn] = t
		}
	}
	return out
}

func (s *Static) TaskParameterInformation(name TaskName, param string) map[TaskName]*TaskParameterInformation {
	return ParametersOf(s.TaskInformation(name), param)
}

func (s *Static) Literals(keyword string, typeContext *TypeInformation) []*LiteralInformation {
	var out []*LiteralInformation
	for _, l := range s.literals {
		if HasPrefixFold(l.Literal, keyword) && LiteralFits(l, typeContext) {
			out = append(out, l)
		}
	}
	return out
}

func (s *Static) LiteralInformation(literal string, typeContext *TypeInformation) *LiteralInformation {
	for _, l := range s.literals {
		if l.Literal == literal && LiteralFits(l, typeContext) {
			return l
		}
	}
	return nil
}

// LiteralFits reports whether a literal declared for one type may be offered
// where typeContext is expected.
func LiteralFits(l *LiteralInformation, typeContext *TypeInformation) bool {
	if l.Type == nil || typeContext == nil || l.Type.QualifiedName == "" || typeContext.QualifiedName == "" {
		return true
	}
	return l.Type.QualifiedName == typeContext.QualifiedName
}
