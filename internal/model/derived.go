// Package model indexes parsed build scripts and deduces the types flowing
// through their expressions.
//
// DerivedData is the per-document index built by a single scan of the
// statement tree. The Analyzer builds a lazily populated graph over it: every
// expression statement may carry a receiver part (the types its context
// expects) and a result part (the types it produces), each holding direct
// types plus associations to other statements labelled with an Assoc
// transform. Queries resolve the reachable associations to a fixed point.
package model

import (
	"sort"
	"sync"

	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// Assignment is a `left = right` expression whose left side names a variable.
type Assignment struct {
	Stm   *syntax.Statement
	Left  *syntax.Statement
	Right *syntax.Statement
	// Scope is the enclosing build target, nil at document level.
	Scope *syntax.Statement
}

type usageLocation struct {
	scope *syntax.Statement
	stm   *syntax.Statement
}

type foreachVar struct {
	foreach *syntax.Statement
	name    string
}

// DerivedData is the memoized index of one parsed document. All queries run
// the scan on first use; concurrent callers wait for the same scan.
type DerivedData struct {
	Path string
	Tree *syntax.Tree

	once sync.Once

	parents      map[*syntax.Statement]*syntax.Statement
	literals     []string
	taskNames    []registry.TaskName
	targets      []*syntax.Statement
	targetByName map[string]*syntax.Statement
	inParams     map[*syntax.Statement][]*syntax.Statement
	outParams    map[*syntax.Statement][]*syntax.Statement
	usages       map[expr.VariableTaskUsage][]usageLocation
	assignments  map[expr.VariableTaskUsage][]Assignment
	foreachRefs  map[*syntax.Statement]*syntax.Statement
	foreachUses  map[foreachVar][]*syntax.Statement
	foreachSets  map[foreachVar][]Assignment
	includes     []*syntax.Statement
}

// NewDerivedData returns the index of tree. Nothing is computed until the
// first query.
func NewDerivedData(path string, tree *syntax.Tree) *DerivedData {
	return &DerivedData{Path: path, Tree: tree}
}

// EnsureIdentifiers runs the scan once.
func (d *DerivedData) EnsureIdentifiers() {
	d.once.Do(d.scan)
}

func (d *DerivedData) scan() {
	d.parents = make(map[*syntax.Statement]*syntax.Statement)
	d.targetByName = make(map[string]*syntax.Statement)
	d.inParams = make(map[*syntax.Statement][]*syntax.Statement)
	d.outParams = make(map[*syntax.Statement][]*syntax.Statement)
	d.usages = make(map[expr.VariableTaskUsage][]usageLocation)
	d.assignments = make(map[expr.VariableTaskUsage][]Assignment)
	d.foreachRefs = make(map[*syntax.Statement]*syntax.Statement)
	d.foreachUses = make(map[foreachVar][]*syntax.Statement)
	d.foreachSets = make(map[foreachVar][]Assignment)
	if d.Tree == nil || d.Tree.Root == nil {
		return
	}

	seenLiteral := make(map[string]bool)
	seenTask := make(map[registry.TaskName]bool)
	var tasks, containers []*syntax.Statement
	d.Tree.Root.Walk(func(stm *syntax.Statement, parents []*syntax.Statement) bool {
		var parent *syntax.Statement
		if len(parents) > 0 {
			parent = parents[0]
			d.parents[stm] = parent
		}
		switch stm.Name {
		case "literal_content", "stringliteral_content":
			if stm.Value != "" && !seenLiteral[stm.Value] {
				seenLiteral[stm.Value] = true
				d.literals = append(d.literals, stm.Value)
			}
		case "task":
			tasks = append(tasks, stm)
			if tn, dynamic := TaskNameOf(stm); !dynamic && !seenTask[tn] {
				seenTask[tn] = true
				d.taskNames = append(d.taskNames, tn)
			}
			if u, ok := expr.TaskVariableUsage(stm); ok {
				d.addUsage(u, targetIn(parents), stm)
			}
		case "dereference":
			name, ok := expr.StringValue(expr.Subject(stm))
			if !ok {
				break
			}
			if fe := foreachDeclaring(name, stm, parents); fe != nil {
				d.foreachRefs[stm] = fe
				k := foreachVar{fe, name}
				d.foreachUses[k] = append(d.foreachUses[k], stm)
				break
			}
			d.addUsage(expr.VariableTaskUsage{Kind: expr.Var, Name: name}, targetIn(parents), stm)
		case "task_target":
			d.targets = append(d.targets, stm)
			for _, n := range TargetNamesOf(stm) {
				if _, ok := d.targetByName[n]; !ok {
					d.targetByName[n] = stm
				}
			}
		case "in_parameter", "out_parameter":
			target := targetIn(parents)
			if stm.Name == "in_parameter" {
				d.inParams[target] = append(d.inParams[target], stm)
			} else {
				d.outParams[target] = append(d.outParams[target], stm)
			}
			if name := TargetParameterName(stm); name != "" {
				d.addUsage(expr.VariableTaskUsage{Kind: expr.Var, Name: name}, target, stm)
			}
		case "expression":
			if parent != nil && startsStream(parent, d.parents[parent]) {
				containers = append(containers, parent)
			}
		}
		return true
	})

	for _, c := range containers {
		d.collectAssignments(expr.FlattenIn(c))
	}
	for _, t := range tasks {
		if d.isInclude(t) {
			d.includes = append(d.includes, t)
		}
	}
}

func (d *DerivedData) addUsage(u expr.VariableTaskUsage, scope, stm *syntax.Statement) {
	d.usages[u] = append(d.usages[u], usageLocation{scope: scope, stm: stm})
}

// assignmentFinder records `left = right` pairs of a stream, following
// right-nested chains like `$a = $b = 1`.
type assignmentFinder struct {
	expr.Base[struct{}]
	d *DerivedData
}

func (f assignmentFinder) VisitAssignment(stm *syntax.Statement, left, right []expr.Token) struct{} {
	leftStm := expr.Underlying(left)
	a := Assignment{Stm: stm, Left: leftStm, Right: expr.Underlying(right), Scope: f.d.enclosingTarget(stm)}
	if u, ok := expr.VariableUsage(left); ok {
		if fe, isLocal := f.d.foreachRefs[leftStm]; isLocal {
			k := foreachVar{fe, u.Name}
			f.d.foreachSets[k] = append(f.d.foreachSets[k], a)
		} else {
			f.d.assignments[u] = append(f.d.assignments[u], a)
		}
	}
	return expr.Visit[struct{}](right, f)
}

func (d *DerivedData) collectAssignments(tokens []expr.Token) {
	expr.Visit[struct{}](tokens, assignmentFinder{d: d})
}

func (d *DerivedData) isInclude(task *syntax.Statement) bool {
	tn, dynamic := TaskNameOf(task)
	if dynamic || task.FirstScope("task_identifier").HasScope("repository_identifier") {
		return false
	}
	if tn.Name == "include" {
		return true
	}
	if tn.HasQualifiers() || registry.IsBuiltinTask(tn.Name) {
		return false
	}
	_, ok := d.targetByName[tn.Name]
	return ok
}

// startsStream reports whether the expression held by stm is the root of a
// token stream rather than the continuation of an enclosing one.
func startsStream(stm, parent *syntax.Statement) bool {
	switch stm.Name {
	case "exp_false":
		return false
	case "expression_placeholder":
		return parent == nil || !expr.IsBinaryOperator(parent.Name)
	}
	return true
}

func targetIn(parents []*syntax.Statement) *syntax.Statement {
	for _, p := range parents {
		if p.Name == "task_target" {
			return p
		}
	}
	return nil
}

// foreachDeclaring returns the innermost foreach that binds name as a loop or
// local variable visible at stm. The iterable of a foreach is evaluated
// outside of its scope.
func foreachDeclaring(name string, stm *syntax.Statement, parents []*syntax.Statement) *syntax.Statement {
	child := stm
	for _, p := range parents {
		if p.Name == "foreach" && child.Name != "iterable" && ForeachDeclares(p, name) {
			return p
		}
		child = p
	}
	return nil
}

// ForeachDeclares reports whether the foreach binds name.
func ForeachDeclares(foreach *syntax.Statement, name string) bool {
	for _, v := range ForeachVariables(foreach) {
		if v == name {
			return true
		}
	}
	return false
}

// ForeachVariables lists the loop variables followed by the local variables
// of a foreach.
func ForeachVariables(foreach *syntax.Statement) []string {
	out := foreach.ScopeValues("loopvar")
	return append(out, foreach.FirstScope("foreach_locals").ScopeValues("localvar")...)
}

// TaskNameOf returns the name of a task invocation. dynamic is set when a
// qualifier is an inline expression whose value is not known statically.
func TaskNameOf(task *syntax.Statement) (tn registry.TaskName, dynamic bool) {
	id := task.FirstScope("task_identifier")
	var qs []string
	for _, q := range id.ScopeTo("qualifier") {
		if lit := q.FirstScope("qualifier_literal"); lit != nil {
			qs = append(qs, lit.Value)
			continue
		}
		v, ok := expr.StringValue(expr.FlattenIn(q.FirstScope("qualifier_inline_expression").FirstScope("expression_placeholder")))
		if !ok {
			dynamic = true
			continue
		}
		qs = append(qs, v)
	}
	return registry.NewTaskName(id.Value, qs...), dynamic
}

// TargetNamesOf returns the names a task_target declares.
func TargetNamesOf(target *syntax.Statement) []string {
	var out []string
	for _, n := range target.FirstScope("target_names").ScopeTo("target_name") {
		out = append(out, n.FirstValue("target_name_content"))
	}
	return out
}

// TargetParameterName returns the name of an in_parameter or out_parameter.
func TargetParameterName(param *syntax.Statement) string {
	return param.FirstScope("target_parameter_name").FirstValue("target_parameter_name_content")
}

// ParameterName returns the name a first_parameter or parameter is passed
// by, "" when unnamed.
func ParameterName(param *syntax.Statement) string {
	return param.FirstScope("param_name").FirstValue("param_name_content")
}

// ParameterValue returns the expression placeholder holding a parameter's
// value.
func ParameterValue(param *syntax.Statement) *syntax.Statement {
	return param.FirstScope("param_content").FirstScope("expression_placeholder")
}

// TaskParameters lists the parameters of a task invocation in order.
func TaskParameters(task *syntax.Statement) []*syntax.Statement {
	var out []*syntax.Statement
	for _, c := range task.FirstScope("paramlist").Children() {
		if c.Name == "first_parameter" || c.Name == "parameter" {
			out = append(out, c)
		}
	}
	return out
}

// TaskParameter returns the parameter of task passed by name.
func TaskParameter(task *syntax.Statement, name string) *syntax.Statement {
	for _, p := range TaskParameters(task) {
		if ParameterName(p) == name {
			return p
		}
	}
	return nil
}

// ============================================================================
// Queries
// ============================================================================

// LiteralContents returns the distinct literal and string texts of the
// document in source order.
func (d *DerivedData) LiteralContents() []string {
	d.EnsureIdentifiers()
	return d.literals
}

// PresentTaskNames returns the distinct statically named tasks invoked in
// the document.
func (d *DerivedData) PresentTaskNames() []registry.TaskName {
	d.EnsureIdentifiers()
	return d.taskNames
}

// Targets returns the task_target statements in source order.
func (d *DerivedData) Targets() []*syntax.Statement {
	d.EnsureIdentifiers()
	return d.targets
}

// Target returns the target declaring name, or nil.
func (d *DerivedData) Target(name string) *syntax.Statement {
	d.EnsureIdentifiers()
	return d.targetByName[name]
}

// TargetNames returns every declared target name, sorted.
func (d *DerivedData) TargetNames() []string {
	d.EnsureIdentifiers()
	out := make([]string, 0, len(d.targetByName))
	for n := range d.targetByName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TargetInputParameters returns the in_parameter statements of target.
func (d *DerivedData) TargetInputParameters(target *syntax.Statement) []*syntax.Statement {
	d.EnsureIdentifiers()
	return d.inParams[target]
}

// TargetOutputParameters returns the out_parameter statements of target.
func (d *DerivedData) TargetOutputParameters(target *syntax.Statement) []*syntax.Statement {
	d.EnsureIdentifiers()
	return d.outParams[target]
}

// TargetParameter returns the in or out parameter of target called name.
func (d *DerivedData) TargetParameter(target *syntax.Statement, name string, output bool) *syntax.Statement {
	params := d.TargetInputParameters(target)
	if output {
		params = d.TargetOutputParameters(target)
	}
	for _, p := range params {
		if TargetParameterName(p) == name {
			return p
		}
	}
	return nil
}

// VariableUsages returns the statements using u within scope. Var usages are
// scoped to the build target (nil for document level); static and global
// usages ignore scope.
func (d *DerivedData) VariableUsages(u expr.VariableTaskUsage, scope *syntax.Statement) []*syntax.Statement {
	d.EnsureIdentifiers()
	var out []*syntax.Statement
	for _, l := range d.usages[u] {
		if u.Kind != expr.Var || l.scope == scope {
			out = append(out, l.stm)
		}
	}
	return out
}

// AllVariableUsages returns the statements using u in any scope.
func (d *DerivedData) AllVariableUsages(u expr.VariableTaskUsage) []*syntax.Statement {
	d.EnsureIdentifiers()
	out := make([]*syntax.Statement, 0, len(d.usages[u]))
	for _, l := range d.usages[u] {
		out = append(out, l.stm)
	}
	return out
}

// Assignments returns the assignments to u within scope, with the same
// scoping rules as VariableUsages.
func (d *DerivedData) Assignments(u expr.VariableTaskUsage, scope *syntax.Statement) []Assignment {
	d.EnsureIdentifiers()
	var out []Assignment
	for _, a := range d.assignments[u] {
		if u.Kind != expr.Var || a.Scope == scope {
			out = append(out, a)
		}
	}
	return out
}

// Usages returns every variable used in the document, ordered.
func (d *DerivedData) Usages() []expr.VariableTaskUsage {
	d.EnsureIdentifiers()
	out := make([]expr.VariableTaskUsage, 0, len(d.usages))
	for u := range d.usages {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// TargetVariableNames returns the sorted names of the var variables used in
// scope, including its parameters.
func (d *DerivedData) TargetVariableNames(scope *syntax.Statement) []string {
	d.EnsureIdentifiers()
	var out []string
	for u, locs := range d.usages {
		if u.Kind != expr.Var {
			continue
		}
		for _, l := range locs {
			if l.scope == scope {
				out = append(out, u.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// IncludeTasks returns the include invocations of the document, including
// invocations of same-document targets by name.
func (d *DerivedData) IncludeTasks() []*syntax.Statement {
	d.EnsureIdentifiers()
	return d.includes
}

// IsInclude reports whether task is one of the include invocations.
func (d *DerivedData) IsInclude(task *syntax.Statement) bool {
	for _, t := range d.IncludeTasks() {
		if t == task {
			return true
		}
	}
	return false
}

// IsForeachDereference reports whether a dereference names a loop or local
// variable of an enclosing foreach, returning that foreach.
func (d *DerivedData) IsForeachDereference(stm *syntax.Statement) (*syntax.Statement, bool) {
	d.EnsureIdentifiers()
	fe, ok := d.foreachRefs[stm]
	return fe, ok
}

// ForeachVariableUsages returns the dereferences of a foreach variable.
func (d *DerivedData) ForeachVariableUsages(foreach *syntax.Statement, name string) []*syntax.Statement {
	d.EnsureIdentifiers()
	return d.foreachUses[foreachVar{foreach, name}]
}

// ForeachAssignments returns the assignments to a foreach local variable.
func (d *DerivedData) ForeachAssignments(foreach *syntax.Statement, name string) []Assignment {
	d.EnsureIdentifiers()
	return d.foreachSets[foreachVar{foreach, name}]
}

// Parent returns the parent of stm, or nil for the root.
func (d *DerivedData) Parent(stm *syntax.Statement) *syntax.Statement {
	d.EnsureIdentifiers()
	return d.parents[stm]
}

// ParentContext returns the ancestors of stm, innermost first.
func (d *DerivedData) ParentContext(stm *syntax.Statement) []*syntax.Statement {
	d.EnsureIdentifiers()
	var out []*syntax.Statement
	for p := d.parents[stm]; p != nil; p = d.parents[p] {
		out = append(out, p)
	}
	return out
}

// EnclosingTarget returns the task_target containing stm, or nil.
func (d *DerivedData) EnclosingTarget(stm *syntax.Statement) *syntax.Statement {
	d.EnsureIdentifiers()
	return d.enclosingTarget(stm)
}

func (d *DerivedData) enclosingTarget(stm *syntax.Statement) *syntax.Statement {
	for p := d.parents[stm]; p != nil; p = d.parents[p] {
		if p.Name == "task_target" {
			return p
		}
	}
	return nil
}

// Contains reports whether stm belongs to this document.
func (d *DerivedData) Contains(stm *syntax.Statement) bool {
	d.EnsureIdentifiers()
	if d.Tree == nil {
		return false
	}
	_, ok := d.parents[stm]
	return ok || stm == d.Tree.Root
}
