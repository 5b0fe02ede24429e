package model

import (
	"sort"
	"testing"

	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
types:
  Foo:
    kind: OBJECT
    qualified_name: example.Foo
  FooList:
    kind: COLLECTION
    elements: [Foo]
  Mode:
    kind: ENUM
    qualified_name: example.Mode
    enum:
      - name: FAST
      - name: SLOW
  Options:
    kind: OBJECT
    qualified_name: example.Options
    fields:
      - name: Level
        type: NUMBER
      - name: Mode
        type: Mode
tasks:
  - name: compile
    returns: Foo
    parameters:
      - name: Sources
        type: FooList
      - name: Options
        type: Options
`

func testProvider(t *testing.T) registry.Provider {
	t.Helper()
	c, err := registry.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	p, err := c.Provider()
	require.NoError(t, err)
	return registry.Chain{registry.Builtin(), p}
}

func parseData(t *testing.T, path, src string) *DerivedData {
	t.Helper()
	tree, err := syntax.Parse(src)
	require.NoError(t, err)
	return NewDerivedData(path, tree)
}

// find returns the nth statement called name whose source text is raw.
func find(t *testing.T, d *DerivedData, name, raw string, nth int) *syntax.Statement {
	t.Helper()
	var found *syntax.Statement
	i := 0
	d.Tree.Root.Walk(func(s *syntax.Statement, _ []*syntax.Statement) bool {
		if found != nil {
			return false
		}
		if s.Name == name && s.Raw == raw {
			if i == nth {
				found = s
			}
			i++
		}
		return true
	})
	require.NotNil(t, found, "no %s %q #%d", name, raw, nth)
	return found
}

func kindsOf(infos []*TypedInfo) []registry.Kind {
	seen := make(map[registry.Kind]bool)
	var out []registry.Kind
	for _, t := range infos {
		k := registry.KindOf(t.Type)
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeEnv struct {
	snaps   map[string]*Snapshot
	started []string
}

func (e *fakeEnv) StartAnalysis(path string) (*Snapshot, bool) {
	s, ok := e.snaps[path]
	if !ok {
		e.started = append(e.started, path)
	}
	return s, ok
}

func (e *fakeEnv) TrackedPaths() []string {
	var out []string
	for p := range e.snaps {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *fakeEnv) Snapshots() []*Snapshot {
	var out []*Snapshot
	for _, p := range e.TrackedPaths() {
		out = append(out, e.snaps[p])
	}
	return out
}

func snapshotOf(t *testing.T, path, src string) *Snapshot {
	t.Helper()
	tree, err := syntax.Parse(src)
	require.NoError(t, err)
	return NewSnapshot(path, src, tree)
}

// ============================================================================
// DerivedData
// ============================================================================

func TestDerivedData_Indexes(t *testing.T) {
	t.Parallel()
	src := "# builds things\n" +
		"build(in src = \"a.txt\", out res) {\n" +
		"\t$res = compile(Sources: [$src])\n" +
		"\tstatic(count) = 1\n" +
		"}\n" +
		"other {\n" +
		"\tbuild(src: x)\n" +
		"}\n" +
		"global(g) = true\n"
	d := parseData(t, "/ws/main.build", src)

	assert.Equal(t, []string{"build", "other"}, d.TargetNames())
	build := d.Target("build")
	require.NotNil(t, build)
	require.Len(t, d.TargetInputParameters(build), 1)
	require.Len(t, d.TargetOutputParameters(build), 1)
	assert.Equal(t, "src", TargetParameterName(d.TargetInputParameters(build)[0]))
	assert.Equal(t, "res", TargetParameterName(d.TargetOutputParameters(build)[0]))

	assert.Contains(t, d.LiteralContents(), "a.txt")
	assert.Contains(t, d.LiteralContents(), "x")

	var names []string
	for _, tn := range d.PresentTaskNames() {
		names = append(names, tn.String())
	}
	assert.ElementsMatch(t, []string{"compile", "static", "build", "global"}, names)

	// The parameter declaration counts as a usage of its variable.
	src1 := expr.VariableTaskUsage{Kind: expr.Var, Name: "src"}
	assert.Len(t, d.VariableUsages(src1, build), 2)
	assert.Empty(t, d.VariableUsages(src1, nil))
	assert.Equal(t, []string{"res", "src"}, d.TargetVariableNames(build))

	static := expr.VariableTaskUsage{Kind: expr.Static, Name: "count"}
	assert.Len(t, d.VariableUsages(static, nil), 1)
	assert.Len(t, d.Assignments(static, nil), 1)
	assert.Len(t, d.Assignments(expr.VariableTaskUsage{Kind: expr.Global, Name: "g"}, nil), 1)

	res := d.Assignments(expr.VariableTaskUsage{Kind: expr.Var, Name: "res"}, build)
	require.Len(t, res, 1)
	assert.Equal(t, "task", res[0].Right.Name)

	includes := d.IncludeTasks()
	require.Len(t, includes, 1)
	assert.Equal(t, "build(src: x)", includes[0].Raw)
	assert.Equal(t, d.Target("other"), d.EnclosingTarget(includes[0]))
	assert.Equal(t, "builds things", d.Tree.LeadingComment(build))
}

func TestDerivedData_Idempotent(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$a = b\nprint($a)\n")
	first := d.LiteralContents()
	second := d.LiteralContents()
	require.NotEmpty(t, first)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, d.Usages(), d.Usages())
}

func TestDerivedData_ForeachVariablesTrackedSeparately(t *testing.T) {
	t.Parallel()
	src := "$e = outer\n" +
		"foreach $e in [$e] with $l = 1 {\n" +
		"\tprint($e)\n" +
		"\t$l = 2\n" +
		"}\n"
	d := parseData(t, "/ws/main.build", src)

	usage := expr.VariableTaskUsage{Kind: expr.Var, Name: "e"}
	// The assignment and the dereference inside the iterable are outside of
	// the loop scope.
	assert.Len(t, d.VariableUsages(usage, nil), 2)

	inner := find(t, d, "dereference", "$e", 2)
	fe, ok := d.IsForeachDereference(inner)
	require.True(t, ok)
	assert.Equal(t, []string{"e", "l"}, ForeachVariables(fe))
	assert.Len(t, d.ForeachVariableUsages(fe, "e"), 1)
	assert.Len(t, d.ForeachAssignments(fe, "l"), 1)

	_, ok = d.IsForeachDereference(find(t, d, "dereference", "$e", 1))
	assert.False(t, ok)
}

func TestDerivedData_ConcurrentScan(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "a {\n\tprint(x)\n}\n")
	done := make(chan []string)
	for i := 0; i < 4; i++ {
		go func() { done <- d.TargetNames() }()
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, []string{"a"}, <-done)
	}
}

// ============================================================================
// Association functions
// ============================================================================

func TestThen_IdentityIsAbsorbed(t *testing.T) {
	t.Parallel()
	assert.Equal(t, MapValueType, Then(Identity, MapValueType))
	assert.Equal(t, MapValueType, Then(MapValueType, Identity))
	assert.Equal(t, Identity, Then(Identity, Identity))

	a := Then(AsCollectionElement, FieldOf{Name: "x"})
	b := Then(AsCollectionElement, FieldOf{Name: "x"})
	assert.True(t, a == b, "independently built chains compare equal")
	assert.Equal(t, 2, chainLength(a))
}

func TestAssoc_Apply(t *testing.T) {
	t.Parallel()
	num := registry.NewKindType(registry.KindNumber)
	coll := TypeOf(registry.NewCollectionType(num))
	assert.Equal(t, registry.KindNumber, CollectionElementType.Apply(coll)[0].Type.Kind)
	assert.Empty(t, MapValueType.Apply(coll))

	wrapped := AsCollectionElement.Apply(TypeOf(num))[0].Type
	assert.Equal(t, registry.KindCollection, wrapped.Kind)
	assert.Same(t, num, wrapped.Element(0))

	rec := AsField{Name: "k", Kind: registry.KindMap}.Apply(TypeOf(num))[0].Type
	got := FieldOf{Name: "k"}.Apply(TypeOf(rec))
	require.Len(t, got, 1)
	assert.Equal(t, InfoField, got[0].Kind)
	assert.Same(t, num, got[0].Type)

	m := TypeOf(registry.NewMapType(registry.NewKindType(registry.KindString), num))
	assert.Same(t, num, ElementAt{Index: 1, Count: 2}.Apply(m)[0].Type)
	assert.Same(t, num, SubscriptResult{Field: "any", Known: true}.Apply(m)[0].Type)
	assert.Empty(t, SubscriptResult{Integer: true}.Apply(m))
}

func TestInfoSet_DeduplicatesStructurally(t *testing.T) {
	t.Parallel()
	s := NewInfoSet(
		TypeOf(registry.NewCollectionType(registry.NewKindType(registry.KindNumber))),
		TypeOf(registry.NewCollectionType(registry.NewKindType(registry.KindNumber))),
		TypeOf(registry.NewCollectionType(registry.NewKindType(registry.KindString))),
	)
	assert.Equal(t, 2, s.Len())
}

// ============================================================================
// Analyzer
// ============================================================================

func TestAnalyzer_LiteralResults(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "print(12)\nprint(0x1F)\nprint(true)\nprint(word)\nprint(\"s\")\nprint(1.5)\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(find(t, d, "literal", "12", 0))))
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(find(t, d, "literal", "0x1F", 0))))
	assert.Equal(t, []registry.Kind{registry.KindBoolean}, kindsOf(a.ResultTypes(find(t, d, "literal", "true", 0))))
	assert.Equal(t, []registry.Kind{registry.KindString}, kindsOf(a.ResultTypes(find(t, d, "literal", "word", 0))))
	assert.Equal(t, []registry.Kind{registry.KindString}, kindsOf(a.ResultTypes(find(t, d, "stringliteral", "\"s\"", 0))))
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(find(t, d, "literal", "1.5", 0))))

	// The literal catalog documents keywords.
	infos := a.ResultTypes(find(t, d, "literal", "true", 0))
	require.NotEmpty(t, infos)
	assert.Equal(t, InfoLiteral, infos[0].Kind)
}

func TestAnalyzer_VariableResult(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$x = 5\nprint($x)\nprint($y)\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	x := find(t, d, "dereference", "$x", 1)
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(x)))
	assert.Empty(t, a.ResultTypes(find(t, d, "dereference", "$y", 0)))

	byUsage := a.ResultTypesOfDereference(expr.VariableTaskUsage{Kind: expr.Var, Name: "x"}, nil)
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(byUsage))
}

func TestAnalyzer_Deterministic(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$x = [1, \"a\"]\n$y = $x[0]\nprint($y)\n")
	a := NewAnalyzer(nil, d, testProvider(t))
	y := find(t, d, "dereference", "$y", 1)
	first := a.ResultTypes(y)
	second := a.ResultTypes(y)
	assert.Equal(t, first, second)
	assert.Equal(t, []registry.Kind{registry.KindNumber, registry.KindString}, kindsOf(first))
}

func TestAnalyzer_CyclesTerminate(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$x = $x\nstatic(s) = static(s)\n$a = $b\n$b = [$a]\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	assert.Empty(t, a.ResultTypes(find(t, d, "dereference", "$x", 1)))
	for _, info := range a.ResultTypes(find(t, d, "task", "static(s)", 1)) {
		assert.NotEqual(t, InfoType, info.Kind)
	}
	// $a is a list containing $a: the chain grows until the bound stops it.
	got := a.ResultTypes(find(t, d, "dereference", "$a", 1))
	assert.Contains(t, kindsOf(got), registry.KindCollection)
}

func TestAnalyzer_StaticVariablesSpanTargets(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "static(s) = \"v\"\nt {\n\tprint(static(s))\n\tprint($s)\n}\n")
	a := NewAnalyzer(nil, d, testProvider(t))
	assert.Contains(t, kindsOf(a.ResultTypes(find(t, d, "task", "static(s)", 1))), registry.KindString)
	// var variables do not see document level assignments from a target.
	assert.Empty(t, a.ResultTypes(find(t, d, "dereference", "$s", 0)))
}

func TestAnalyzer_GlobalVariablesAcrossDocuments(t *testing.T) {
	t.Parallel()
	env := &fakeEnv{snaps: map[string]*Snapshot{
		"/ws/a.build": snapshotOf(t, "/ws/a.build", "global(x) = 5\n"),
	}}
	d := parseData(t, "/ws/b.build", "print(global(x))\nprint(global(y))\n")
	a := NewAnalyzer(env, d, testProvider(t))

	got := a.ResultTypes(find(t, d, "task", "global(x)", 0))
	assert.Contains(t, kindsOf(got), registry.KindNumber)
	assert.NotContains(t, kindsOf(a.ResultTypes(find(t, d, "task", "global(y)", 0))), registry.KindNumber)
}

func TestAnalyzer_ListElementReceiver(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "compile(Sources: [a, b])\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	var names []string
	for _, ty := range Types(a.ReceiverTypes(find(t, d, "literal", "a", 0))) {
		names = append(names, ty.QualifiedName)
	}
	assert.Contains(t, names, "example.Foo")
}

func TestAnalyzer_MapValueReceiver(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "compile(Options: {Level: 1, Mode: FAST})\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	level := a.ReceiverTypes(find(t, d, "literal", "1", 0))
	assert.Contains(t, kindsOf(level), registry.KindNumber)
	mode := a.ReceiverTypes(find(t, d, "literal", "FAST", 0))
	require.Contains(t, kindsOf(mode), registry.KindEnum)
	assert.Contains(t, kindsOf(a.ReceiverTypes(find(t, d, "literal", "Level", 0))), registry.KindString)
}

func TestAnalyzer_ParameterPlaceholderReceiver(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "path()\n")
	a := NewAnalyzer(nil, d, testProvider(t))
	ph := find(t, d, "expression_placeholder", "", 0)

	infos := a.ReceiverTypes(ph)
	require.NotEmpty(t, infos)
	assert.Equal(t, InfoTaskParameter, infos[0].Kind)
	assert.Equal(t, "Path", infos[0].Parameter.Name)
	assert.Contains(t, kindsOf(infos), registry.KindPath)
}

func TestAnalyzer_OperatorReceivers(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$r = a * b\n$q = !c\n$s = d ? e : f\nif g {\n}\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ReceiverTypes(find(t, d, "literal", "b", 0))))
	assert.Equal(t, []registry.Kind{registry.KindBoolean}, kindsOf(a.ReceiverTypes(find(t, d, "literal", "c", 0))))
	assert.Equal(t, []registry.Kind{registry.KindBoolean}, kindsOf(a.ReceiverTypes(find(t, d, "literal", "d", 0))))
	assert.Equal(t, []registry.Kind{registry.KindBoolean}, kindsOf(a.ReceiverTypes(find(t, d, "literal", "g", 0))))

	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(find(t, d, "dereference", "$r", 0))))
	assert.Equal(t, []registry.Kind{registry.KindString}, kindsOf(a.ResultTypes(find(t, d, "dereference", "$s", 0))))
}

func TestAnalyzer_ForeachVariables(t *testing.T) {
	t.Parallel()
	src := "foreach $e in [1, 2] {\n\tprint($e)\n}\n" +
		"$m = {a: \"x\"}\n" +
		"foreach $k, $v in $m {\n\tprint($k)\n\tprint($v)\n}\n"
	d := parseData(t, "/ws/main.build", src)
	a := NewAnalyzer(nil, d, testProvider(t))

	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(find(t, d, "dereference", "$e", 0))))
	assert.Equal(t, []registry.Kind{registry.KindString}, kindsOf(a.ResultTypes(find(t, d, "dereference", "$k", 0))))
	assert.Equal(t, []registry.Kind{registry.KindString}, kindsOf(a.ResultTypes(find(t, d, "dereference", "$v", 0))))
}

func TestAnalyzer_MapSubscript(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$m = {a: 1, b: x}\nprint($m[a])\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	sub := find(t, d, "subscript", "[a]", 0)
	assert.Equal(t, []registry.Kind{registry.KindNumber}, kindsOf(a.ResultTypes(sub)))

	m := a.ResultTypes(find(t, d, "dereference", "$m", 1))
	var fields []string
	for _, ty := range Types(m) {
		fields = append(fields, ty.SortedFieldNames()...)
	}
	assert.Contains(t, fields, "a")
	assert.Contains(t, fields, "b")
}

func TestAnalyzer_TaskResult(t *testing.T) {
	t.Parallel()
	d := parseData(t, "/ws/main.build", "$f = compile()\nprint($f)\n")
	a := NewAnalyzer(nil, d, testProvider(t))

	infos := a.ResultTypes(find(t, d, "dereference", "$f", 1))
	require.Len(t, infos, 1)
	assert.Equal(t, InfoTask, infos[0].Kind)
	assert.Equal(t, "example.Foo", infos[0].Type.QualifiedName)
}

func TestAnalyzer_IncludeParameterValues(t *testing.T) {
	t.Parallel()
	src := "t(in k) {\n\tprint($k)\n}\n" +
		"include(t, k: {\"k\": 1})\n" +
		"t(k: 2)\n"
	d := parseData(t, "/ws/main.build", src)
	a := NewAnalyzer(nil, d, testProvider(t))

	got := a.ResultTypes(find(t, d, "dereference", "$k", 0))
	assert.Contains(t, kindsOf(got), registry.KindMap)
	assert.Contains(t, kindsOf(got), registry.KindNumber)

	var targetParam bool
	for _, info := range a.ReceiverTypes(find(t, d, "map", "{\"k\": 1}", 0)) {
		if info.Kind == InfoTargetParameter && info.TargetParameter.Name == "k" {
			targetParam = true
		}
	}
	assert.True(t, targetParam)

	// The first parameter of include() is offered the targets of the script.
	ph := find(t, d, "literal", "t", 0)
	var targets []string
	for _, ty := range Types(a.ReceiverTypes(ph)) {
		if ty.Kind == registry.KindBuildTarget {
			targets = append(targets, ty.SortedEnumNames()...)
		}
	}
	assert.Equal(t, []string{"t"}, targets)
}

func TestAnalyzer_IncludeParameterReceivers(t *testing.T) {
	t.Parallel()
	src := "t(in k) {\n\t$n = 2 * $k\n}\n" +
		"u(in opts) {\n\tcompile(Options: $opts)\n}\n" +
		"include(t, k: 1)\n" +
		"include(u, opts: {Level: 3})\n"
	d := parseData(t, "/ws/main.build", src)
	a := NewAnalyzer(nil, d, testProvider(t))

	// The usage of the parameter inside its target expects a number, and so
	// does the value the include passes for it.
	assert.Contains(t, kindsOf(a.ReceiverTypes(find(t, d, "dereference", "$k", 0))), registry.KindNumber)
	assert.Contains(t, kindsOf(a.ReceiverTypes(find(t, d, "literal", "1", 0))), registry.KindNumber)

	// A map passed for a parameter used as Options receives the field types.
	assert.Contains(t, kindsOf(a.ReceiverTypes(find(t, d, "literal", "3", 0))), registry.KindNumber)
}

func TestAnalyzer_CrossDocumentInclude(t *testing.T) {
	t.Parallel()
	b := snapshotOf(t, "/ws/b.build", "x(out y = 5) {\n}\n")
	env := &fakeEnv{snaps: map[string]*Snapshot{"/ws/b.build": b}}
	d := parseData(t, "/ws/a.build", "$r = include(Target: x, Path: \"b.build\")\nprint($r[y])\n")
	a := NewAnalyzer(env, d, testProvider(t))

	var fieldKinds []registry.Kind
	for _, ty := range Types(a.ResultTypes(find(t, d, "task", "include(Target: x, Path: \"b.build\")", 0))) {
		if f, ok := ty.Fields["y"]; ok && f.Type != nil {
			fieldKinds = append(fieldKinds, f.Type.Kind)
		}
	}
	bAnalyzer := NewAnalyzer(env, b.Data, testProvider(t))
	out := b.Data.TargetOutputParameters(b.Data.Target("x"))[0]
	assert.Equal(t, kindsOf(bAnalyzer.ResultTypes(out)), fieldKinds)
	assert.Equal(t, []registry.Kind{registry.KindNumber}, fieldKinds)

	assert.Contains(t, kindsOf(a.ResultTypes(find(t, d, "subscript", "[y]", 0))), registry.KindNumber)
}

func TestAnalyzer_IncludeOfUnreadyDocumentStartsIt(t *testing.T) {
	t.Parallel()
	env := &fakeEnv{snaps: map[string]*Snapshot{}}
	d := parseData(t, "/ws/a.build", "include(x, Path: \"sub/b.build\")\n")
	a := NewAnalyzer(env, d, testProvider(t))

	infos := a.ResultTypes(find(t, d, "task", "include(x, Path: \"sub/b.build\")", 0))
	for _, info := range infos {
		assert.Equal(t, InfoTask, info.Kind)
	}
	assert.Contains(t, env.started, "/ws/sub/b.build")
}
