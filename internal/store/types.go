package store

import "time"

// Catalog domain types. Type references (TypeRef, Returns, Elements,
// SuperTypes) name either another Type or a bare kind such as "STRING".

type Source struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LastIndexed time.Time
}

type Type struct {
	ID            int64
	SourceID      *int64
	Name          string
	Kind          string
	QualifiedName string
	SimpleName    string
	Info          string
	Elements      []string
	SuperTypes    []string
	Deprecated    bool
}

// Field is a field of a type, or an enum value when Enum is set.
type Field struct {
	ID         int64
	TypeID     int64
	Ordinal    int
	Name       string
	TypeRef    string
	Info       string
	Enum       bool
	Deprecated bool
}

type Task struct {
	ID         int64
	SourceID   *int64
	Name       string
	Info       string
	Returns    string
	Deprecated bool
}

type Parameter struct {
	ID         int64
	TaskID     int64
	Ordinal    int
	Name       string
	Aliases    []string
	TypeRef    string
	Info       string
	Required   bool
	Deprecated bool
}

type Literal struct {
	ID       int64
	SourceID *int64
	Literal  string
	TypeRef  string
	Info     string
	Relation string
}
