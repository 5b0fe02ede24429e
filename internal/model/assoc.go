package model

import (
	"github.com/jward/buildscope/internal/registry"
)

// Assoc maps the types deduced for one statement to the types they imply for
// another. Implementations are comparable values so that a traversal can
// remember which (statement, function) pairs it has already expanded.
type Assoc interface {
	Apply(in *TypedInfo) []*TypedInfo
}

// Then composes f and g: f is applied first. Identity is absorbed.
func Then(f, g Assoc) Assoc {
	if f == Identity {
		return g
	}
	if g == Identity {
		return f
	}
	return consecutive{first: f, second: g}
}

func chainLength(f Assoc) int {
	if c, ok := f.(consecutive); ok {
		return chainLength(c.first) + chainLength(c.second)
	}
	return 1
}

type consecutive struct {
	first, second Assoc
}

func (c consecutive) Apply(in *TypedInfo) []*TypedInfo {
	var out []*TypedInfo
	for _, t := range c.first.Apply(in) {
		out = append(out, c.second.Apply(t)...)
	}
	return out
}

type identity struct{}

func (identity) Apply(in *TypedInfo) []*TypedInfo { return []*TypedInfo{in} }

// Identity passes every type through unchanged.
var Identity Assoc = identity{}

func typeOnly(t *registry.TypeInformation) []*TypedInfo {
	if t == nil {
		return nil
	}
	return []*TypedInfo{TypeOf(t)}
}

// elementOf extracts an element type of collections and maps.
type elementOf struct {
	kind  registry.Kind
	index int
}

func (e elementOf) Apply(in *TypedInfo) []*TypedInfo {
	if registry.KindOf(in.Type) != e.kind {
		return nil
	}
	return typeOnly(in.Type.Element(e.index))
}

var (
	// CollectionElementType yields the element type of a collection.
	CollectionElementType Assoc = elementOf{kind: registry.KindCollection}
	// MapKeyType yields the key type of a map.
	MapKeyType Assoc = elementOf{kind: registry.KindMap}
	// MapValueType yields the value type of a map.
	MapValueType Assoc = elementOf{kind: registry.KindMap, index: 1}
)

// wrapCollection turns a type into a collection of that type.
type wrapCollection struct{}

func (wrapCollection) Apply(in *TypedInfo) []*TypedInfo {
	if in.Type == nil {
		return nil
	}
	return typeOnly(registry.NewCollectionType(in.Type))
}

// AsCollectionElement wraps a type into a collection of it.
var AsCollectionElement Assoc = wrapCollection{}

// asMapElement turns a type into a map whose key or value is that type.
type asMapElement struct {
	index int
}

func (a asMapElement) Apply(in *TypedInfo) []*TypedInfo {
	if in.Type == nil {
		return nil
	}
	m := registry.NewMapType(nil, nil)
	m.ElementTypes[a.index] = in.Type
	return typeOnly(m)
}

var (
	// AsMapKey wraps a type into a map keyed by it.
	AsMapKey Assoc = asMapElement{index: 0}
	// AsMapValue wraps a type into a map with values of it. With STRING keys
	// this is also the shape expected from a subscript with an unknown index.
	AsMapValue Assoc = asMapElement{index: 1}
)

// asStringKeyMap turns a value type into MAP[STRING, value].
type asStringKeyMap struct{}

func (asStringKeyMap) Apply(in *TypedInfo) []*TypedInfo {
	if in.Type == nil {
		return nil
	}
	return typeOnly(registry.NewMapType(registry.NewKindType(registry.KindString), in.Type))
}

// AsStringKeyMap wraps a value type into a string keyed map.
var AsStringKeyMap Assoc = asStringKeyMap{}

// FieldOf selects the field called name of object types, or the value type
// of maps without declared fields.
type FieldOf struct {
	Name string
}

func (f FieldOf) Apply(in *TypedInfo) []*TypedInfo {
	t := in.Type
	if t == nil {
		return nil
	}
	if fi, ok := t.Fields[f.Name]; ok {
		return []*TypedInfo{fieldInfo(fi)}
	}
	if t.Kind == registry.KindMap && len(t.Fields) == 0 {
		return typeOnly(t.Element(1))
	}
	return nil
}

// AsField wraps a type into a record with a single field called Name. Kind is
// the kind of the record, OBJECT when empty. Target carries the target
// parameter that declares the field, if any.
type AsField struct {
	Name   string
	Kind   registry.Kind
	Target *TargetParameter
}

func (a AsField) Apply(in *TypedInfo) []*TypedInfo {
	kind := a.Kind
	if kind == "" {
		kind = registry.KindObject
	}
	field := &registry.FieldInformation{Name: a.Name, Type: in.Type}
	if a.Target != nil {
		field.Info = registry.NewDoc(a.Target.Info)
	}
	rec := &registry.TypeInformation{
		Kind:   kind,
		Fields: map[string]*registry.FieldInformation{a.Name: field},
	}
	if kind == registry.KindMap {
		rec.ElementTypes = []*registry.TypeInformation{registry.NewKindType(registry.KindString), in.Type}
	}
	return typeOnly(rec)
}

// SubscriptResult yields the type produced by indexing into a value: the
// element of a collection for integral indexes, otherwise the named field or
// the map value.
type SubscriptResult struct {
	Field   string
	Known   bool
	Integer bool
}

func (s SubscriptResult) Apply(in *TypedInfo) []*TypedInfo {
	t := in.Type
	if t == nil {
		return nil
	}
	if s.Integer {
		if t.Kind == registry.KindCollection {
			return typeOnly(t.Element(0))
		}
		return nil
	}
	if s.Known {
		if fi, ok := t.Fields[s.Field]; ok {
			return []*TypedInfo{fieldInfo(fi)}
		}
	}
	// A record without the named field says nothing about it.
	if t.Kind == registry.KindMap && (!s.Known || len(t.Fields) == 0) {
		return typeOnly(t.Element(1))
	}
	return nil
}

// ElementAt yields the type of the loop variable at Index when iterating
// over a value with Count loop variables.
type ElementAt struct {
	Index int
	Count int
}

func (e ElementAt) Apply(in *TypedInfo) []*TypedInfo {
	t := in.Type
	if t == nil {
		return nil
	}
	switch {
	case e.Count == 1 && t.Kind == registry.KindCollection:
		return typeOnly(t.Element(0))
	case e.Count == 2 && t.Kind == registry.KindMap:
		if e.Index == 0 && t.Element(0) == nil && len(t.Fields) > 0 {
			return typeOnly(registry.NewKindType(registry.KindString))
		}
		if e.Index == 1 && t.Element(1) == nil {
			var out []*TypedInfo
			for _, n := range t.SortedFieldNames() {
				out = append(out, typeOnly(t.Fields[n].Type)...)
			}
			return out
		}
		return typeOnly(t.Element(e.Index))
	}
	return nil
}

// decollectionize adds the element type of collection parameters: a
// collection accepting parameter also accepts a single element.
func decollectionize(infos []*TypedInfo) []*TypedInfo {
	out := append([]*TypedInfo(nil), infos...)
	for _, t := range infos {
		if registry.KindOf(t.Type) == registry.KindCollection {
			out = append(out, typeOnly(t.Type.Element(0))...)
		}
	}
	return out
}
