package runtime

import (
	"context"
	"strconv"
	"strings"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// Java helpers for extraction scripts. Walking annotation argument lists in
// Risor is tedious, so these flatten the interesting parts into maps.

// package_of(root) → string
func makePackageOfFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("package_of", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("package_of", 1, len(args))
		}
		node, errObj := nodeArg("package_of", args[0])
		if errObj != nil {
			return errObj
		}
		src, _, found := ss.lookup(node)
		if !found {
			return object.Errorf("package_of: no source found for node's tree")
		}
		return object.NewString(javaPackage(rootOf(node), src))
	})
}

// annotation(node, name) → map of arguments, or nil when node does not
// carry the annotation.
func makeAnnotationFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("annotation", func(ctx context.Context, args ...object.Object) object.Object {
		found, errObj := annotationArgs("annotation", ss, args)
		if errObj != nil {
			return errObj
		}
		if len(found) == 0 {
			return object.Nil
		}
		return found[0]
	})
}

// annotations(node, name) → list of argument maps, one per occurrence.
func makeAnnotationsFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("annotations", func(ctx context.Context, args ...object.Object) object.Object {
		found, errObj := annotationArgs("annotations", ss, args)
		if errObj != nil {
			return errObj
		}
		items := make([]object.Object, len(found))
		for i, m := range found {
			items[i] = m
		}
		return object.NewList(items)
	})
}

func annotationArgs(fn string, ss *sourceStore, args []object.Object) ([]*object.Map, object.Object) {
	if len(args) != 2 {
		return nil, object.NewArgsError(fn, 2, len(args))
	}
	node, errObj := nodeArg(fn, args[0])
	if errObj != nil {
		return nil, errObj
	}
	name, errObj := stringArg(fn, "name", args[1])
	if errObj != nil {
		return nil, errObj
	}
	src, _, ok := ss.lookup(node)
	if !ok {
		return nil, object.Errorf("%s: no source found for node's tree", fn)
	}

	var out []*object.Map
	for _, a := range javaAnnotations(node, src, name) {
		out = append(out, object.NewMap(annotationMap(a, src)))
	}
	return out, nil
}

// members(decl) → list of {name, kind, java_type, node}
//
// kind is "field" for field declarators and "enum_constant" for the
// constants of an enum declaration.
func makeMembersFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("members", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("members", 1, len(args))
		}
		decl, errObj := nodeArg("members", args[0])
		if errObj != nil {
			return errObj
		}
		src, _, ok := ss.lookup(decl)
		if !ok {
			return object.Errorf("members: no source found for node's tree")
		}

		items := []object.Object{}
		for _, m := range javaMembers(decl, src) {
			p := proxyNode("members", m.node)
			if e, isErr := p.(*object.Error); isErr {
				return e
			}
			items = append(items, object.NewMap(map[string]object.Object{
				"name":      object.NewString(m.name),
				"kind":      object.NewString(m.kind),
				"java_type": object.NewString(m.javaType),
				"node":      p,
			}))
		}
		return object.NewList(items)
	})
}

type javaMember struct {
	name     string
	kind     string
	javaType string
	node     *sitter.Node
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func javaPackage(root *sitter.Node, src []byte) string {
	for _, c := range namedChildren(root) {
		if c.Type() != "package_declaration" {
			continue
		}
		for _, id := range namedChildren(c) {
			if id.Type() == "scoped_identifier" || id.Type() == "identifier" {
				return id.Content(src)
			}
		}
	}
	return ""
}

// javaAnnotations returns the annotations named name among the modifiers of
// decl, matching on the simple name so qualified uses are found too.
func javaAnnotations(decl *sitter.Node, src []byte, name string) []*sitter.Node {
	var out []*sitter.Node
	for _, c := range namedChildren(decl) {
		if c.Type() != "modifiers" {
			continue
		}
		for _, a := range namedChildren(c) {
			if a.Type() != "annotation" && a.Type() != "marker_annotation" {
				continue
			}
			n := a.ChildByFieldName("name")
			if n != nil && simpleName(n.Content(src)) == name {
				out = append(out, a)
			}
		}
	}
	return out
}

func annotationMap(a *sitter.Node, src []byte) map[string]object.Object {
	out := map[string]object.Object{}
	argList := a.ChildByFieldName("arguments")
	if argList == nil {
		return out
	}
	for _, arg := range namedChildren(argList) {
		if arg.Type() == "element_value_pair" {
			key := arg.ChildByFieldName("key")
			value := arg.ChildByFieldName("value")
			if key != nil && value != nil {
				out[key.Content(src)] = annotationValue(value, src)
			}
			continue
		}
		if arg.Type() == "comment" {
			continue
		}
		out["value"] = annotationValue(arg, src)
	}
	return out
}

func annotationValue(n *sitter.Node, src []byte) object.Object {
	text := n.Content(src)
	switch n.Type() {
	case "string_literal":
		return object.NewString(unquoteJava(text))
	case "true":
		return object.NewBool(true)
	case "false":
		return object.NewBool(false)
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		v, err := strconv.ParseInt(strings.TrimRight(strings.ReplaceAll(text, "_", ""), "lL"), 0, 64)
		if err == nil {
			return object.NewInt(v)
		}
	case "element_value_array_initializer":
		var items []object.Object
		for _, c := range namedChildren(n) {
			if c.Type() != "comment" {
				items = append(items, annotationValue(c, src))
			}
		}
		if items == nil {
			items = []object.Object{}
		}
		return object.NewList(items)
	case "binary_expression":
		// "a" + "b" constant folding, the only expression documentation uses.
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if left != nil && right != nil {
			l, lok := annotationValue(left, src).(*object.String)
			r, rok := annotationValue(right, src).(*object.String)
			if lok && rok {
				return object.NewString(l.Value() + r.Value())
			}
		}
	case "class_literal":
		return object.NewString(simpleName(strings.TrimSuffix(text, ".class")))
	case "field_access", "identifier", "scoped_identifier":
		return object.NewString(simpleName(text))
	case "annotation", "marker_annotation":
		return object.NewMap(annotationMap(n, src))
	}
	return object.NewString(text)
}

func unquoteJava(s string) string {
	if strings.HasPrefix(s, `"""`) && strings.HasSuffix(s, `"""`) && len(s) >= 6 {
		return strings.TrimSpace(s[3 : len(s)-3])
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, `"`)
}

func simpleName(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func javaMembers(decl *sitter.Node, src []byte) []javaMember {
	body := decl.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var out []javaMember
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "enum_constant":
				if name := c.ChildByFieldName("name"); name != nil {
					out = append(out, javaMember{name: name.Content(src), kind: "enum_constant", node: c})
				}
			case "field_declaration":
				typeNode := c.ChildByFieldName("type")
				javaType := ""
				if typeNode != nil {
					javaType = typeNode.Content(src)
				}
				for _, d := range namedChildren(c) {
					if d.Type() != "variable_declarator" {
						continue
					}
					if name := d.ChildByFieldName("name"); name != nil {
						out = append(out, javaMember{name: name.Content(src), kind: "field", javaType: javaType, node: c})
					}
				}
			case "enum_body_declarations":
				visit(c)
			}
		}
	}
	visit(body)
	return out
}

// JavaTypeRef maps a Java source type to a catalog type reference. Types
// without a build language counterpart map to OBJECT.
func JavaTypeRef(javaType string) string {
	t := strings.TrimSpace(javaType)
	if strings.HasSuffix(t, "[]") {
		return "COLLECTION"
	}
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	switch simpleName(t) {
	case "String", "CharSequence", "char", "Character":
		return "STRING"
	case "int", "long", "short", "byte", "double", "float",
		"Integer", "Long", "Short", "Byte", "Double", "Float", "Number", "BigInteger", "BigDecimal":
		return "NUMBER"
	case "boolean", "Boolean":
		return "BOOLEAN"
	case "List", "Collection", "Set", "Iterable", "SortedSet", "NavigableSet":
		return "COLLECTION"
	case "Map", "SortedMap", "NavigableMap":
		return "MAP"
	case "Path", "SakerPath":
		return "PATH"
	case "void", "Void":
		return "VOID"
	}
	return "OBJECT"
}
