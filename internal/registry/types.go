// Package registry describes the documentation of tasks, parameters, types and
// literals that scripts can use, and the providers serving it.
package registry

import (
	"sort"
	"strings"
)

// Kind classifies a TypeInformation.
type Kind string

const (
	KindObject                   Kind = "OBJECT"
	KindCollection               Kind = "COLLECTION"
	KindMap                      Kind = "MAP"
	KindVoid                     Kind = "VOID"
	KindLiteral                  Kind = "LITERAL"
	KindEnum                     Kind = "ENUM"
	KindPath                     Kind = "PATH"
	KindDirectoryPath            Kind = "DIRECTORY_PATH"
	KindFilePath                 Kind = "FILE_PATH"
	KindBuildScriptPath          Kind = "BUILD_SCRIPT_PATH"
	KindWildcardPath             Kind = "WILDCARD_PATH"
	KindNumber                   Kind = "NUMBER"
	KindString                   Kind = "STRING"
	KindBoolean                  Kind = "BOOLEAN"
	KindObjectLiteral            Kind = "OBJECT_LITERAL"
	KindBuildTarget              Kind = "BUILD_TARGET"
	KindExecutionUserParameter   Kind = "EXECUTION_USER_PARAMETER"
	KindEnvironmentUserParameter Kind = "ENVIRONMENT_USER_PARAMETER"
	KindBuildTaskName            Kind = "BUILD_TASK_NAME"
	KindSystemProperty           Kind = "SYSTEM_PROPERTY"
)

// IsPath reports whether values of the kind are file system paths.
func (k Kind) IsPath() bool {
	switch k {
	case KindPath, KindDirectoryPath, KindFilePath, KindBuildScriptPath, KindWildcardPath:
		return true
	}
	return false
}

// Doc is a piece of documentation.
type Doc struct {
	Text     string
	Markdown bool
}

// String returns the documentation text, or "" for nil.
func (d *Doc) String() string {
	if d == nil {
		return ""
	}
	return d.Text
}

// NewDoc returns a plain text Doc, or nil for empty text.
func NewDoc(text string) *Doc {
	if text == "" {
		return nil
	}
	return &Doc{Text: text}
}

// TypeInformation describes a value type. ElementTypes holds the element type
// of a collection, or the key and value types of a map; nil entries mean
// unknown.
type TypeInformation struct {
	Kind          Kind
	QualifiedName string
	SimpleName    string
	Fields        map[string]*FieldInformation
	EnumValues    map[string]*FieldInformation
	SuperTypes    []*TypeInformation
	RelatedTypes  []*TypeInformation
	ElementTypes  []*TypeInformation
	Info          *Doc
	Deprecated    bool
}

// KindOf returns the kind of t, or "" for nil.
func KindOf(t *TypeInformation) Kind {
	if t == nil {
		return ""
	}
	return t.Kind
}

// Name returns the most specific display name of t.
func (t *TypeInformation) Name() string {
	switch {
	case t == nil:
		return ""
	case t.SimpleName != "":
		return t.SimpleName
	case t.QualifiedName != "":
		if i := strings.LastIndexByte(t.QualifiedName, '.'); i >= 0 {
			return t.QualifiedName[i+1:]
		}
		return t.QualifiedName
	}
	return strings.ToLower(string(t.Kind))
}

// Element returns the i-th element type, or nil.
func (t *TypeInformation) Element(i int) *TypeInformation {
	if t == nil || i < 0 || i >= len(t.ElementTypes) {
		return nil
	}
	return t.ElementTypes[i]
}

// NewKindType returns a type that only carries a kind.
func NewKindType(k Kind) *TypeInformation {
	return &TypeInformation{Kind: k}
}

// NewCollectionType returns a collection of elem.
func NewCollectionType(elem *TypeInformation) *TypeInformation {
	return &TypeInformation{Kind: KindCollection, ElementTypes: []*TypeInformation{elem}}
}

// NewMapType returns a map from key to value.
func NewMapType(key, value *TypeInformation) *TypeInformation {
	return &TypeInformation{Kind: KindMap, ElementTypes: []*TypeInformation{key, value}}
}

// SortedFieldNames returns the field names of t in order.
func (t *TypeInformation) SortedFieldNames() []string {
	if t == nil {
		return nil
	}
	return sortedKeys(t.Fields)
}

// SortedEnumNames returns the enum value names of t in order.
func (t *TypeInformation) SortedEnumNames() []string {
	if t == nil {
		return nil
	}
	return sortedKeys(t.EnumValues)
}

func sortedKeys(m map[string]*FieldInformation) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FieldInformation describes a field of a type or an enum value.
type FieldInformation struct {
	Name       string
	Type       *TypeInformation
	Info       *Doc
	Deprecated bool
}

// TaskName is a task name with its qualifiers. Qualifiers are kept sorted so
// the value is comparable.
type TaskName struct {
	Name       string
	qualifiers string
}

// NewTaskName builds a TaskName. Qualifier order does not matter.
func NewTaskName(name string, qualifiers ...string) TaskName {
	if len(qualifiers) == 0 {
		return TaskName{Name: name}
	}
	qs := append([]string(nil), qualifiers...)
	sort.Strings(qs)
	return TaskName{Name: name, qualifiers: strings.Join(qs, "-")}
}

// ParseTaskName parses "name-q1-q2".
func ParseTaskName(s string) TaskName {
	parts := strings.Split(s, "-")
	return NewTaskName(parts[0], parts[1:]...)
}

// Qualifiers returns the sorted qualifiers.
func (n TaskName) Qualifiers() []string {
	if n.qualifiers == "" {
		return nil
	}
	return strings.Split(n.qualifiers, "-")
}

// HasQualifiers reports whether n has any qualifier.
func (n TaskName) HasQualifiers() bool { return n.qualifiers != "" }

func (n TaskName) String() string {
	if n.qualifiers == "" {
		return n.Name
	}
	return n.Name + "-" + n.qualifiers
}

// TaskInformation documents a task.
type TaskInformation struct {
	Name       TaskName
	Info       *Doc
	ReturnType *TypeInformation
	Parameters []*TaskParameterInformation
	Deprecated bool
}

// TaskParameterInformation documents a task parameter. The name "" is the
// unnamed first parameter and "*" matches any name.
type TaskParameterInformation struct {
	Task       TaskName
	Name       string
	Aliases    []string
	Type       *TypeInformation
	Info       *Doc
	Required   bool
	Deprecated bool
}

// Matches reports whether the parameter is addressed by name.
func (p *TaskParameterInformation) Matches(name string) bool {
	if p.Name == name {
		return true
	}
	for _, a := range p.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// LiteralInformation documents a literal value.
type LiteralInformation struct {
	Literal  string
	Info     *Doc
	Type     *TypeInformation
	Relation string
}
