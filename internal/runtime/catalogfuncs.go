package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/buildscope/internal/store"
)

// Catalog host functions. Scripts pass maps of primitive values and receive
// the assigned row ID back, which links fields to their type and parameters
// to their task. IDs are negative while a BatchedStore buffers them.

// define_type({name, kind, qualified_name, simple_name, info, elements,
// super_types, deprecated}) → id
//
// Extraction scripts may pass class_name, package and declaration instead
// of name, qualified_name and kind.
func makeDefineTypeFn(ds store.DataStore, sourceID *int64) *object.Builtin {
	return object.NewBuiltin("define_type", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("define_type", args)
		if errObj != nil {
			return errObj
		}
		t := &store.Type{
			SourceID:      sourceID,
			Name:          getStringDefault(m, "name", getString(m, "class_name")),
			Kind:          getString(m, "kind"),
			QualifiedName: getString(m, "qualified_name"),
			SimpleName:    getString(m, "simple_name"),
			Info:          getString(m, "info"),
			Elements:      getStrings(m, "elements"),
			SuperTypes:    getStrings(m, "super_types"),
			Deprecated:    getBool(m, "deprecated"),
		}
		if t.Name == "" {
			return object.Errorf("define_type: name is required")
		}
		if t.Kind == "" {
			t.Kind = "OBJECT"
			if getString(m, "declaration") == "enum" {
				t.Kind = "ENUM"
			}
		}
		if t.QualifiedName == "" {
			if pkg := getString(m, "package"); pkg != "" {
				t.QualifiedName = pkg + "." + t.Name
			}
		}
		if t.SimpleName == "" && t.QualifiedName != "" {
			t.SimpleName = simpleName(t.QualifiedName)
		}
		id, err := ds.InsertType(t)
		return insertResult("define_type", id, err)
	})
}

// define_field({type_id, name, type, info, enum, deprecated}) → id
func makeDefineFieldFn(ds store.DataStore) *object.Builtin {
	return object.NewBuiltin("define_field", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("define_field", args)
		if errObj != nil {
			return errObj
		}
		typeID, ok := getOptionalInt64(m, "type_id")
		if !ok {
			return object.Errorf("define_field: type_id is required")
		}
		f := &store.Field{
			TypeID:     typeID,
			Name:       nameOrValue(m),
			TypeRef:    typeRef(m),
			Info:       getString(m, "info"),
			Enum:       getBool(m, "enum"),
			Deprecated: getBool(m, "deprecated"),
		}
		if f.Name == "" {
			return object.Errorf("define_field: name is required")
		}
		id, err := ds.InsertField(f)
		return insertResult("define_field", id, err)
	})
}

// define_task({name, info, returns, deprecated}) → id
func makeDefineTaskFn(ds store.DataStore, sourceID *int64) *object.Builtin {
	return object.NewBuiltin("define_task", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("define_task", args)
		if errObj != nil {
			return errObj
		}
		t := &store.Task{
			SourceID:   sourceID,
			Name:       nameOrValue(m),
			Info:       getString(m, "info"),
			Returns:    getString(m, "returns"),
			Deprecated: getBool(m, "deprecated"),
		}
		if t.Name == "" {
			return object.Errorf("define_task: name is required")
		}
		id, err := ds.InsertTask(t)
		return insertResult("define_task", id, err)
	})
}

// define_parameter({task_id, name, aliases, type, info, required,
// deprecated}) → id
//
// An empty name declares the unnamed parameter.
func makeDefineParameterFn(ds store.DataStore) *object.Builtin {
	return object.NewBuiltin("define_parameter", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("define_parameter", args)
		if errObj != nil {
			return errObj
		}
		taskID, ok := getOptionalInt64(m, "task_id")
		if !ok {
			return object.Errorf("define_parameter: task_id is required")
		}
		p := &store.Parameter{
			TaskID:     taskID,
			Name:       nameOrValue(m),
			Aliases:    getStrings(m, "aliases"),
			TypeRef:    typeRef(m),
			Info:       getString(m, "info"),
			Required:   getBool(m, "required"),
			Deprecated: getBool(m, "deprecated"),
		}
		id, err := ds.InsertParameter(p)
		return insertResult("define_parameter", id, err)
	})
}

// define_literal({literal, type, info, relation}) → id
func makeDefineLiteralFn(ds store.DataStore, sourceID *int64) *object.Builtin {
	return object.NewBuiltin("define_literal", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := mapArg("define_literal", args)
		if errObj != nil {
			return errObj
		}
		l := &store.Literal{
			SourceID: sourceID,
			Literal:  getStringDefault(m, "literal", getString(m, "value")),
			TypeRef:  getString(m, "type"),
			Info:     getString(m, "info"),
			Relation: getString(m, "relation"),
		}
		if l.Literal == "" {
			return object.Errorf("define_literal: literal is required")
		}
		id, err := ds.InsertLiteral(l)
		return insertResult("define_literal", id, err)
	})
}

// task_id(name) → id or nil
func makeTaskIDFn(ds store.DataStore) *object.Builtin {
	return object.NewBuiltin("task_id", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("task_id", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("task_id: %v", err)
		}
		t, err := ds.TaskByName(name)
		if err != nil {
			return object.Errorf("task_id: %v", err)
		}
		if t == nil {
			return object.Nil
		}
		return object.NewInt(t.ID)
	})
}

// type_id(name) → id or nil
func makeTypeIDFn(ds store.DataStore) *object.Builtin {
	return object.NewBuiltin("type_id", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("type_id", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("type_id: %v", err)
		}
		t, err := ds.TypeByName(name)
		if err != nil {
			return object.Errorf("type_id: %v", err)
		}
		if t == nil {
			return object.Nil
		}
		return object.NewInt(t.ID)
	})
}

func mapArg(fn string, args []object.Object) (map[string]object.Object, object.Object) {
	if len(args) != 1 {
		return nil, object.NewArgsError(fn, 1, len(args))
	}
	m, err := extractMap(args[0])
	if err != nil {
		return nil, object.Errorf("%s: %v", fn, err)
	}
	return m, nil
}

func insertResult(fn string, id int64, err error) object.Object {
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return object.NewInt(id)
}

// nameOrValue reads "name", falling back to "value", the element Java
// annotations use for their single unnamed argument, and then to the name
// of the annotated Java member.
func nameOrValue(m map[string]object.Object) string {
	for _, key := range []string{"name", "value", "member_name"} {
		if v := getString(m, key); v != "" {
			return v
		}
	}
	return ""
}

// typeRef reads an explicit "type", falling back to a mapped "java_type".
func typeRef(m map[string]object.Object) string {
	if t := getString(m, "type"); t != "" {
		return t
	}
	if jt := getString(m, "java_type"); jt != "" {
		return JavaTypeRef(jt)
	}
	return ""
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}

// getStrings accepts either a list of strings or a single string.
func getStrings(m map[string]object.Object, key string) []string {
	switch v := m[key].(type) {
	case *object.String:
		return []string{v.Value()}
	case *object.List:
		var out []string
		for _, item := range v.Value() {
			if s, ok := item.(*object.String); ok {
				out = append(out, s.Value())
			}
		}
		return out
	}
	return nil
}

func getOptionalInt64(m map[string]object.Object, key string) (int64, bool) {
	switch v := m[key].(type) {
	case *object.Int:
		return v.Value(), true
	case *object.Float:
		return int64(v.Value()), true
	}
	return 0, false
}

func getBool(m map[string]object.Object, key string) bool {
	b, ok := m[key].(*object.Bool)
	return ok && b.Value()
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
