package store

import (
	"fmt"

	"github.com/jward/buildscope/internal/registry"
)

// ImportCatalog writes every type, task and literal of c in one transaction.
// Entries replace existing ones of the same name. sourceID may be nil.
func (s *Store) ImportCatalog(c *registry.Catalog, sourceID *int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import catalog: begin: %w", err)
	}
	defer tx.Rollback()

	for _, name := range sortedTypeNames(c.Types) {
		spec := c.Types[name]
		t := &Type{
			SourceID:      sourceID,
			Name:          name,
			Kind:          string(spec.Kind),
			QualifiedName: spec.QualifiedName,
			SimpleName:    spec.SimpleName,
			Info:          spec.Info,
			Elements:      spec.Elements,
			SuperTypes:    spec.SuperTypes,
			Deprecated:    spec.Deprecated,
		}
		if t.Kind == "" {
			t.Kind = string(registry.KindObject)
		}
		if _, err := replaceTypeTx(tx, t); err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}
		for _, group := range []struct {
			specs []registry.FieldSpec
			enum  bool
		}{{spec.Fields, false}, {spec.Enum, true}} {
			for _, fs := range group.specs {
				f := &Field{TypeID: t.ID, Name: fs.Name, TypeRef: fs.Type, Info: fs.Info, Enum: group.enum, Deprecated: fs.Deprecated}
				if _, err := insertFieldTx(tx, f); err != nil {
					return fmt.Errorf("import catalog: type %s: %w", name, err)
				}
			}
		}
	}

	for _, ts := range c.Tasks {
		t := &Task{SourceID: sourceID, Name: ts.Name, Info: ts.Info, Returns: ts.Returns, Deprecated: ts.Deprecated}
		if _, err := replaceTaskTx(tx, t); err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}
		for _, ps := range ts.Parameters {
			p := &Parameter{
				TaskID:     t.ID,
				Name:       ps.Name,
				Aliases:    ps.Aliases,
				TypeRef:    ps.Type,
				Info:       ps.Info,
				Required:   ps.Required,
				Deprecated: ps.Deprecated,
			}
			if _, err := insertParameterTx(tx, p); err != nil {
				return fmt.Errorf("import catalog: task %s: %w", ts.Name, err)
			}
		}
	}

	for _, ls := range c.Literals {
		l := &Literal{SourceID: sourceID, Literal: ls.Literal, TypeRef: ls.Type, Info: ls.Info, Relation: ls.Relation}
		if _, err := insertLiteralTx(tx, l); err != nil {
			return fmt.Errorf("import catalog: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import catalog: commit: %w", err)
	}
	s.touch()
	return nil
}

// Catalog reads the whole store back into catalog form.
func (s *Store) Catalog() (*registry.Catalog, error) {
	types, err := s.typeSpecs()
	if err != nil {
		return nil, err
	}
	c := &registry.Catalog{Types: types}

	tasks, err := s.AllTasks()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		spec, err := s.taskSpec(t)
		if err != nil {
			return nil, err
		}
		c.Tasks = append(c.Tasks, spec)
	}

	lits, err := s.LiteralsByPrefix("")
	if err != nil {
		return nil, err
	}
	for _, l := range lits {
		c.Literals = append(c.Literals, literalSpec(l))
	}
	return c, nil
}

func (s *Store) typeSpecs() (map[string]registry.TypeSpec, error) {
	types, err := s.Types()
	if err != nil {
		return nil, err
	}
	out := make(map[string]registry.TypeSpec, len(types))
	for _, t := range types {
		spec := registry.TypeSpec{
			Kind:          registry.Kind(t.Kind),
			QualifiedName: t.QualifiedName,
			SimpleName:    t.SimpleName,
			Info:          t.Info,
			Elements:      t.Elements,
			SuperTypes:    t.SuperTypes,
			Deprecated:    t.Deprecated,
		}
		fields, err := s.FieldsByType(t.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			fs := registry.FieldSpec{Name: f.Name, Type: f.TypeRef, Info: f.Info, Deprecated: f.Deprecated}
			if f.Enum {
				spec.Enum = append(spec.Enum, fs)
			} else {
				spec.Fields = append(spec.Fields, fs)
			}
		}
		out[t.Name] = spec
	}
	return out, nil
}

func (s *Store) taskSpec(t *Task) (registry.TaskSpec, error) {
	spec := registry.TaskSpec{Name: t.Name, Info: t.Info, Returns: t.Returns, Deprecated: t.Deprecated}
	params, err := s.ParametersByTask(t.ID)
	if err != nil {
		return spec, err
	}
	for _, p := range params {
		spec.Parameters = append(spec.Parameters, registry.ParamSpec{
			Name:       p.Name,
			Aliases:    p.Aliases,
			Type:       p.TypeRef,
			Info:       p.Info,
			Required:   p.Required,
			Deprecated: p.Deprecated,
		})
	}
	return spec, nil
}

func literalSpec(l *Literal) registry.LiteralSpec {
	return registry.LiteralSpec{Literal: l.Literal, Type: l.TypeRef, Info: l.Info, Relation: l.Relation}
}
