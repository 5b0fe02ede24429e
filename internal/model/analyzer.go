package model

import (
	"path/filepath"
	"sync"

	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// maxChain bounds the length of composed association chains followed by a
// single query. Cyclic graphs with non-identity edges would otherwise grow
// new (statement, function) pairs forever.
const maxChain = 12

// Location is a statement together with the document that owns it.
type Location struct {
	Data *DerivedData
	Stm  *syntax.Statement
}

type edge struct {
	loc Location
	fn  Assoc
}

// part is one side of the type state of a statement. It is set once and only
// its resolved flag changes afterwards.
type part struct {
	types []*TypedInfo
	edges []edge
	// receivers are edges into receiver parts; only result parts have them.
	receivers []edge
	resolved  bool
}

type stmInfo struct {
	receiver *part
	result   *part
}

// IncludedTarget is a build target reached through an include invocation.
type IncludedTarget struct {
	Data   *DerivedData
	Target *syntax.Statement
	Name   string
}

// Analyzer deduces receiver and result types for the statements of one
// snapshot. It is safe for concurrent use; queries are serialized.
type Analyzer struct {
	env      Environment
	data     *DerivedData
	provider registry.Provider

	mu      sync.Mutex
	infos   map[*syntax.Statement]*stmInfo
	order   []*syntax.Statement
	created int
}

// NewAnalyzer returns an Analyzer over data. Other documents are reached
// through env; provider documents tasks and literals.
func NewAnalyzer(env Environment, data *DerivedData, provider registry.Provider) *Analyzer {
	if env == nil {
		env = NoEnvironment{}
	}
	if provider == nil {
		provider = registry.Chain(nil)
	}
	return &Analyzer{env: env, data: data, provider: provider, infos: make(map[*syntax.Statement]*stmInfo)}
}

// Data returns the analyzed document.
func (a *Analyzer) Data() *DerivedData { return a.data }

// Provider returns the documentation provider.
func (a *Analyzer) Provider() registry.Provider { return a.provider }

// Environment returns the document environment.
func (a *Analyzer) Environment() Environment { return a.env }

// ReceiverTypes returns the types the context of stm expects it to produce.
func (a *Analyzer) ReceiverTypes(stm *syntax.Statement) []*TypedInfo {
	if stm == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureReceiver(Location{a.data, stm})
	a.resolve()
	out := NewInfoSet()
	a.collectReceiver(stm, Identity, make(map[visitKey]bool), out)
	return out.Items()
}

// ResultTypes returns the types stm is deduced to produce.
func (a *Analyzer) ResultTypes(stm *syntax.Statement) []*TypedInfo {
	if stm == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ensureResult(Location{a.data, stm})
	a.resolve()
	out := NewInfoSet()
	a.collectResult(stm, Identity, make(map[visitKey]bool), make(map[visitKey]bool), out)
	return out.Items()
}

// ResultTypesOfDereference returns the union of the result types of every
// usage of the variable u visible from scope.
func (a *Analyzer) ResultTypesOfDereference(u expr.VariableTaskUsage, scope *syntax.Statement) []*TypedInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	locs := a.usageLocations(a.data, u, scope)
	for _, l := range locs {
		a.ensureResult(l)
	}
	a.resolve()
	out := NewInfoSet()
	seenResult, seenReceiver := make(map[visitKey]bool), make(map[visitKey]bool)
	for _, l := range locs {
		a.collectResult(l.Stm, Identity, seenResult, seenReceiver, out)
	}
	return out.Items()
}

// SubscriptSubjectResultTypes returns the result types of the value a
// subscript statement indexes into.
func (a *Analyzer) SubscriptSubjectResultTypes(subscript *syntax.Statement) []*TypedInfo {
	c := streamContainerOf(a.data, subscript)
	if c == nil {
		return nil
	}
	subject, ok := expr.SubscriptSubject(expr.FlattenIn(c), subscript)
	if !ok {
		return nil
	}
	return a.ResultTypes(expr.Underlying(subject))
}

// TaskInformations returns the documentation of the task invoked by a task
// statement, narrowed by its qualifiers.
func (a *Analyzer) TaskInformations(task *syntax.Statement) map[registry.TaskName]*registry.TaskInformation {
	tn, dynamic := TaskNameOf(task)
	return registry.SelectByQualifiers(a.provider.TaskInformation(tn), tn, dynamic)
}

// TaskParameterInformations returns the documentation of the parameter
// called name of the task invoked by a task statement.
func (a *Analyzer) TaskParameterInformations(task *syntax.Statement, name string) map[registry.TaskName]*registry.TaskParameterInformation {
	tn, dynamic := TaskNameOf(task)
	return registry.SelectByQualifiers(a.provider.TaskParameterInformation(tn, name), tn, dynamic)
}

// IncludedTargets resolves the targets an include invocation of this
// document runs. Targets of documents without a ready snapshot are skipped.
func (a *Analyzer) IncludedTargets(task *syntax.Statement) []IncludedTarget {
	return a.includedTargets(a.data, task)
}

// TargetParameterInfo describes an in_parameter or out_parameter statement.
func TargetParameterInfo(data *DerivedData, param *syntax.Statement) *TypedInfo {
	tp := &TargetParameter{
		Name:   TargetParameterName(param),
		Output: param.Name == "out_parameter",
		Path:   data.Path,
		Stm:    param,
	}
	if t := data.Parent(param); t != nil {
		if names := TargetNamesOf(t); len(names) > 0 {
			tp.Target = names[0]
		}
	}
	if data.Tree != nil {
		tp.Info = data.Tree.LeadingComment(param)
	}
	return &TypedInfo{Kind: InfoTargetParameter, TargetParameter: tp}
}

// TargetInfo describes a task_target statement by one of its names.
func TargetInfo(data *DerivedData, target *syntax.Statement, name string) *TypedInfo {
	t := &Target{Name: name, Path: data.Path, Stm: target}
	if data.Tree != nil {
		t.Info = data.Tree.LeadingComment(target)
	}
	return &TypedInfo{Kind: InfoTarget, Target: t}
}

// ============================================================================
// Part storage
// ============================================================================

func (a *Analyzer) info(stm *syntax.Statement) *stmInfo {
	si, ok := a.infos[stm]
	if !ok {
		si = &stmInfo{}
		a.infos[stm] = si
		a.order = append(a.order, stm)
	}
	return si
}

func (a *Analyzer) setReceiver(stm *syntax.Statement, types []*TypedInfo, edges []edge) {
	si := a.info(stm)
	if si.receiver != nil {
		return
	}
	si.receiver = &part{types: types, edges: edges}
	a.created++
}

func (a *Analyzer) setResult(stm *syntax.Statement, types []*TypedInfo, edges, receivers []edge) {
	si := a.info(stm)
	if si.result != nil {
		return
	}
	si.result = &part{types: types, edges: edges, receivers: receivers}
	a.created++
}

func (a *Analyzer) hasReceiver(stm *syntax.Statement) bool {
	si, ok := a.infos[stm]
	return ok && si.receiver != nil
}

func (a *Analyzer) hasResult(stm *syntax.Statement) bool {
	si, ok := a.infos[stm]
	return ok && si.result != nil
}

// ============================================================================
// Resolution
// ============================================================================

// resolve populates the target of every association until a full pass
// creates no new part. Parts are marked resolved before their targets are
// populated so cycles end.
func (a *Analyzer) resolve() {
	for {
		before := a.created
		for i := 0; i < len(a.order); i++ {
			si := a.infos[a.order[i]]
			if p := si.receiver; p != nil && !p.resolved {
				p.resolved = true
				for _, e := range p.edges {
					a.ensureReceiver(e.loc)
				}
			}
			if p := si.result; p != nil && !p.resolved {
				p.resolved = true
				for _, e := range p.edges {
					a.ensureResult(e.loc)
				}
				for _, e := range p.receivers {
					a.ensureReceiver(e.loc)
				}
			}
		}
		if a.created == before {
			return
		}
	}
}

type visitKey struct {
	stm *syntax.Statement
	fn  Assoc
}

func (a *Analyzer) collectReceiver(stm *syntax.Statement, fn Assoc, seen map[visitKey]bool, out *InfoSet) {
	key := visitKey{stm, fn}
	if seen[key] || chainLength(fn) > maxChain {
		return
	}
	seen[key] = true
	si, ok := a.infos[stm]
	if !ok || si.receiver == nil {
		return
	}
	for _, t := range si.receiver.types {
		out.AddAll(fn.Apply(t))
	}
	for _, e := range si.receiver.edges {
		a.collectReceiver(e.loc.Stm, Then(e.fn, fn), seen, out)
	}
}

func (a *Analyzer) collectResult(stm *syntax.Statement, fn Assoc, seen, seenReceiver map[visitKey]bool, out *InfoSet) {
	key := visitKey{stm, fn}
	if seen[key] || chainLength(fn) > maxChain {
		return
	}
	seen[key] = true
	si, ok := a.infos[stm]
	if !ok || si.result == nil {
		return
	}
	for _, t := range si.result.types {
		out.AddAll(fn.Apply(t))
	}
	for _, e := range si.result.edges {
		a.collectResult(e.loc.Stm, Then(e.fn, fn), seen, seenReceiver, out)
	}
	for _, e := range si.result.receivers {
		a.collectReceiver(e.loc.Stm, Then(e.fn, fn), seenReceiver, out)
	}
}

// ============================================================================
// Receiver population
// ============================================================================

type receiverBase struct {
	kind      string
	owner     *syntax.Statement
	container *syntax.Statement
}

// receiverBaseOf finds the nearest enclosing context of stm that constrains
// the type of the expression it holds. stm itself is considered first so
// that empty placeholders find their own context.
func receiverBaseOf(data *DerivedData, stm *syntax.Statement) (receiverBase, bool) {
	chain := append([]*syntax.Statement{stm}, data.ParentContext(stm)...)
	for i, p := range chain {
		switch p.Name {
		case "condition_expression", "subscript_index_expression", "iterable":
			return receiverBase{kind: p.Name, owner: p, container: p}, true
		case "param_content", "qualifier_inline_expression", "inline_expression", "local_initializer":
			return receiverBase{kind: p.Name, owner: p, container: p.FirstScope("expression_placeholder")}, true
		case "init_value":
			if i+1 < len(chain) {
				return receiverBase{kind: p.Name, owner: chain[i+1], container: p.FirstScope("expression_placeholder")}, true
			}
			return receiverBase{}, false
		case "expression_content":
			return receiverBase{kind: "expression_step", owner: p, container: p}, true
		case "task_target", "build_script":
			return receiverBase{}, false
		}
	}
	return receiverBase{}, false
}

func (a *Analyzer) ensureReceiver(loc Location) {
	if loc.Stm == nil || a.hasReceiver(loc.Stm) {
		return
	}
	if loc.Stm.Name == "in_parameter" || loc.Stm.Name == "out_parameter" {
		var edges []edge
		if ph := loc.Stm.FirstScope("init_value").FirstScope("expression_placeholder"); ph != nil {
			a.ensureReceiver(Location{loc.Data, ph})
			edges = append(edges, edge{Location{loc.Data, ph}, Identity})
		} else {
			edges = a.parameterUsageEdges(loc.Data, loc.Stm)
			if loc.Stm.Name == "out_parameter" {
				edges = append(edges, a.outputFieldEdges(loc.Data, loc.Stm)...)
			}
		}
		a.setReceiver(loc.Stm, nil, edges)
		return
	}
	base, ok := receiverBaseOf(loc.Data, loc.Stm)
	if ok && base.container != nil {
		types, edges := a.baseReceiverTypes(loc.Data, base)
		a.setReceiver(base.container, types, edges)
		expr.VisitIn[struct{}](base.container, receiverVisitor{a: a, data: loc.Data, types: types, edges: edges})
	}
	if !a.hasReceiver(loc.Stm) {
		a.setReceiver(loc.Stm, nil, nil)
	}
}

func kinds(ks ...registry.Kind) []*TypedInfo {
	out := make([]*TypedInfo, len(ks))
	for i, k := range ks {
		out[i] = KindType(k)
	}
	return out
}

func (a *Analyzer) baseReceiverTypes(data *DerivedData, base receiverBase) ([]*TypedInfo, []edge) {
	switch base.kind {
	case "condition_expression":
		return kinds(registry.KindBoolean), nil
	case "subscript_index_expression", "qualifier_inline_expression", "inline_expression":
		return kinds(registry.KindString), nil
	case "iterable":
		return a.iterableReceiver(data, data.Parent(base.owner))
	case "local_initializer":
		localvar := data.Parent(base.owner)
		foreach := data.Parent(data.Parent(localvar))
		var edges []edge
		for _, u := range data.ForeachVariableUsages(foreach, localvar.Value) {
			edges = append(edges, edge{Location{data, u}, Identity})
		}
		return nil, edges
	case "init_value":
		types := []*TypedInfo{TargetParameterInfo(data, base.owner)}
		edges := a.parameterUsageEdges(data, base.owner)
		if base.owner.Name == "out_parameter" {
			edges = append(edges, a.outputFieldEdges(data, base.owner)...)
		}
		return types, edges
	case "param_content":
		return a.parameterReceiver(data, base.owner)
	}
	return nil, nil
}

func (a *Analyzer) iterableReceiver(data *DerivedData, foreach *syntax.Statement) ([]*TypedInfo, []edge) {
	vars := foreach.ScopeValues("loopvar")
	usages := func(name string, fn Assoc) []edge {
		var out []edge
		for _, u := range data.ForeachVariableUsages(foreach, name) {
			out = append(out, edge{Location{data, u}, fn})
		}
		return out
	}
	switch len(vars) {
	case 1:
		return []*TypedInfo{TypeOf(registry.NewCollectionType(nil))}, usages(vars[0], AsCollectionElement)
	case 2:
		edges := usages(vars[0], AsMapKey)
		return []*TypedInfo{TypeOf(registry.NewMapType(nil, nil))}, append(edges, usages(vars[1], AsMapValue)...)
	}
	return kinds(registry.KindCollection), nil
}

// parameterUsageEdges links a target parameter to the receivers of the
// other usages of its variable inside the target.
func (a *Analyzer) parameterUsageEdges(data *DerivedData, param *syntax.Statement) []edge {
	u := expr.VariableTaskUsage{Kind: expr.Var, Name: TargetParameterName(param)}
	var out []edge
	for _, s := range data.VariableUsages(u, data.Parent(param)) {
		if s != param {
			out = append(out, edge{Location{data, s}, Identity})
		}
	}
	return out
}

// outputFieldEdges links an output parameter to the expectations placed on
// the matching field of every include of its target.
func (a *Analyzer) outputFieldEdges(data *DerivedData, param *syntax.Statement) []edge {
	var out []edge
	for _, inc := range a.includesOf(data, data.Parent(param)) {
		out = append(out, edge{inc, FieldOf{Name: TargetParameterName(param)}})
	}
	return out
}

func (a *Analyzer) parameterReceiver(data *DerivedData, content *syntax.Statement) ([]*TypedInfo, []edge) {
	param := data.Parent(content)
	task := data.Parent(data.Parent(param))
	if task == nil || task.Name != "task" {
		return nil, nil
	}
	name := ParameterName(param)
	tn, dynamic := TaskNameOf(task)
	params := registry.SelectByQualifiers(a.provider.TaskParameterInformation(tn, name), tn, dynamic)
	var types []*TypedInfo
	for _, n := range registry.SortedTaskNames(params) {
		types = append(types, parameterInfo(params[n]))
	}
	types = decollectionize(types)
	if !data.IsInclude(task) {
		return types, nil
	}
	if tn.Name == "include" && (name == "" || name == "Target") {
		if enum := a.buildTargetEnum(data, task); enum != nil {
			types = append(types, TypeOf(enum))
		}
		return types, nil
	}
	var edges []edge
	for _, it := range a.includedTargets(data, task) {
		p := it.Data.TargetParameter(it.Target, name, false)
		if p == nil {
			continue
		}
		types = append(types, TargetParameterInfo(it.Data, p))
		edges = append(edges, edge{Location{it.Data, p}, Identity})
	}
	return types, edges
}

// buildTargetEnum lists the targets of the document an include refers to.
func (a *Analyzer) buildTargetEnum(data *DerivedData, task *syntax.Statement) *registry.TypeInformation {
	td := a.includedDocument(data, task)
	if td == nil {
		return nil
	}
	enum := &registry.TypeInformation{Kind: registry.KindBuildTarget, EnumValues: make(map[string]*registry.FieldInformation)}
	for _, n := range td.TargetNames() {
		enum.EnumValues[n] = &registry.FieldInformation{Name: n, Info: registry.NewDoc(td.Tree.LeadingComment(td.Target(n)))}
	}
	return enum
}

type receiverVisitor struct {
	expr.Base[struct{}]
	a     *Analyzer
	data  *DerivedData
	types []*TypedInfo
	edges []edge
}

func (v receiverVisitor) with(types []*TypedInfo, edges ...edge) receiverVisitor {
	return receiverVisitor{a: v.a, data: v.data, types: types, edges: edges}
}

func (v receiverVisitor) set(stm *syntax.Statement) {
	if stm != nil {
		v.a.setReceiver(stm, v.types, v.edges)
	}
}

func (v receiverVisitor) to(stm *syntax.Statement, fn Assoc) edge {
	return edge{Location{v.data, stm}, fn}
}

func (v receiverVisitor) VisitMissing(ph *syntax.Statement) struct{} {
	v.set(ph)
	return struct{}{}
}

func (v receiverVisitor) VisitLiteral(stm *syntax.Statement) struct{} {
	v.set(stm)
	return struct{}{}
}

func (v receiverVisitor) VisitStringLiteral(stm *syntax.Statement) struct{} {
	v.set(stm)
	return struct{}{}
}

func (v receiverVisitor) VisitParentheses(stm *syntax.Statement) struct{} {
	v.set(stm)
	return expr.VisitParentheses[struct{}](stm, v.with(nil, v.to(stm, Identity)))
}

func (v receiverVisitor) VisitList(stm *syntax.Statement) struct{} {
	v.set(stm)
	for _, el := range stm.ScopeTo("list_element") {
		expr.VisitIn[struct{}](el, v.with(nil, v.to(stm, CollectionElementType)))
	}
	return struct{}{}
}

func (v receiverVisitor) VisitMap(stm *syntax.Statement) struct{} {
	v.set(stm)
	for _, el := range stm.ScopeTo("map_element") {
		key := el.FirstScope("map_key")
		keyTokens := expr.FlattenIn(key)
		expr.Visit[struct{}](keyTokens, v.with(kinds(registry.KindString), v.to(stm, MapKeyType)))
		val := el.FirstScope("map_val")
		if val == nil {
			continue
		}
		edges := []edge{v.to(stm, MapValueType)}
		if k, ok := expr.StringValue(keyTokens); ok {
			edges = append(edges, v.to(stm, FieldOf{Name: k}))
		}
		expr.VisitIn[struct{}](val, v.with(nil, edges...))
	}
	return struct{}{}
}

func (v receiverVisitor) VisitForeach(stm *syntax.Statement) struct{} {
	v.set(stm)
	if ve := stm.FirstScope("value_expression"); ve != nil {
		expr.VisitIn[struct{}](ve, v.with(nil, v.to(stm, Identity)))
	}
	return struct{}{}
}

func (v receiverVisitor) VisitTask(stm *syntax.Statement) struct{} {
	v.set(stm)
	return struct{}{}
}

func (v receiverVisitor) VisitDereference(stm *syntax.Statement, subject []expr.Token) struct{} {
	v.set(stm)
	return expr.Visit[struct{}](subject, v.with(kinds(registry.KindString)))
}

func (v receiverVisitor) VisitUnary(stm *syntax.Statement, subject []expr.Token) struct{} {
	v.set(stm)
	k := registry.KindNumber
	if stm.Value == "!" {
		k = registry.KindBoolean
	}
	return expr.Visit[struct{}](subject, v.with(kinds(k)))
}

func (v receiverVisitor) VisitSubscript(stm *syntax.Statement, subject []expr.Token) struct{} {
	v.set(stm)
	var fn Assoc = AsMapValue
	switch idx, _ := expr.Value(expr.FlattenIn(stm.FirstScope("subscript_index_expression"))); idx := idx.(type) {
	case int64:
		fn = AsCollectionElement
	case string:
		fn = AsField{Name: idx}
	}
	return expr.Visit[struct{}](subject, v.with(nil, v.to(stm, fn)))
}

func (v receiverVisitor) VisitAssignment(stm *syntax.Statement, left, right []expr.Token) struct{} {
	v.set(stm)
	expr.Visit[struct{}](left, v.with(nil, v.to(stm, Identity)))
	edges := []edge{v.to(stm, Identity)}
	leftStm := expr.Underlying(left)
	if fe, ok := v.data.IsForeachDereference(leftStm); ok {
		name, _ := expr.DereferenceName(left)
		for _, u := range v.data.ForeachVariableUsages(fe, name) {
			if u != leftStm {
				edges = append(edges, v.to(u, Identity))
			}
		}
	} else if u, ok := expr.VariableUsage(left); ok {
		for _, l := range v.a.usageLocations(v.data, u, v.data.EnclosingTarget(stm)) {
			if l.Stm != leftStm {
				edges = append(edges, edge{l, Identity})
			}
		}
	}
	return expr.Visit[struct{}](right, v.with(nil, edges...))
}

func (v receiverVisitor) operands(stm *syntax.Statement, left, right []expr.Token, ks ...registry.Kind) struct{} {
	v.set(stm)
	expr.Visit[struct{}](left, v.with(kinds(ks...)))
	return expr.Visit[struct{}](right, v.with(kinds(ks...)))
}

func (v receiverVisitor) VisitAddOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindObjectLiteral, registry.KindNumber)
}

func (v receiverVisitor) VisitMultiplyOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v receiverVisitor) VisitEqualityOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindObjectLiteral)
}

func (v receiverVisitor) VisitComparisonOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v receiverVisitor) VisitShiftOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v receiverVisitor) VisitBitOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v receiverVisitor) VisitBoolOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindBoolean)
}

func (v receiverVisitor) VisitTernary(stm *syntax.Statement, cond, falseBranch []expr.Token) struct{} {
	v.set(stm)
	expr.Visit[struct{}](cond, v.with(kinds(registry.KindBoolean)))
	branch := v.with(nil, v.to(stm, Identity))
	for _, name := range []string{"exp_true", "exp_false"} {
		if b := stm.FirstScope(name); b != nil {
			branch.set(b)
		}
	}
	expr.VisitTernaryTrue[struct{}](stm, branch)
	return expr.Visit[struct{}](falseBranch, branch)
}

// ============================================================================
// Result population
// ============================================================================

// streamContainerOf returns the statement holding the token stream stm
// belongs to, or stm itself when it holds one.
func streamContainerOf(data *DerivedData, stm *syntax.Statement) *syntax.Statement {
	for c := stm; c != nil; c = data.Parent(c) {
		switch c.Name {
		case "task_target", "build_script":
			return nil
		}
		if c.HasScope("expression") && startsStream(c, data.Parent(c)) {
			return c
		}
	}
	return nil
}

func (a *Analyzer) ensureResult(loc Location) {
	if loc.Stm == nil || a.hasResult(loc.Stm) {
		return
	}
	if loc.Stm.Name == "in_parameter" || loc.Stm.Name == "out_parameter" {
		a.targetParameterResult(loc.Data, loc.Stm)
		return
	}
	if c := streamContainerOf(loc.Data, loc.Stm); c != nil {
		resultVisitor{a: a, data: loc.Data}.visitIn(c)
	}
	if !a.hasResult(loc.Stm) {
		a.setResult(loc.Stm, nil, nil, nil)
	}
}

// targetParameterResult deduces a target parameter from its default value,
// the assignments to its variable and, for inputs, the values includes pass.
func (a *Analyzer) targetParameterResult(data *DerivedData, param *syntax.Statement) {
	name := TargetParameterName(param)
	target := data.Parent(param)
	var edges, receivers []edge
	if ph := param.FirstScope("init_value").FirstScope("expression_placeholder"); ph != nil {
		u := resultVisitor{a: a, data: data}.visitIn(ph)
		edges = append(edges, edge{Location{data, u}, Identity})
	}
	for _, as := range data.Assignments(expr.VariableTaskUsage{Kind: expr.Var, Name: name}, target) {
		edges = append(edges, edge{Location{data, as.Right}, Identity})
	}
	for _, inc := range a.includesOf(data, target) {
		if param.Name == "out_parameter" {
			receivers = append(receivers, edge{inc, FieldOf{Name: name}})
			continue
		}
		if p := TaskParameter(inc.Stm, name); p != nil {
			edges = append(edges, edge{Location{inc.Data, expr.Underlying(expr.FlattenIn(ParameterValue(p)))}, Identity})
		}
	}
	a.setResult(param, []*TypedInfo{TargetParameterInfo(data, param)}, edges, receivers)
}

// varUsageResult links a variable usage to the right sides of the
// assignments of the variable and to the target parameters declaring it.
func (a *Analyzer) varUsageResult(data *DerivedData, stm *syntax.Statement, u expr.VariableTaskUsage) ([]edge, []edge) {
	scope := data.EnclosingTarget(stm)
	var edges, receivers []edge
	for _, l := range a.usageLocations(data, u, scope) {
		if l.Stm == stm {
			continue
		}
		if l.Stm.Name == "in_parameter" || l.Stm.Name == "out_parameter" {
			edges = append(edges, edge{l, Identity})
			receivers = append(receivers, edge{l, Identity})
		}
	}
	for _, as := range a.assignments(data, u, scope) {
		edges = append(edges, edge{as, Identity})
	}
	return edges, receivers
}

type resultVisitor struct {
	expr.Base[struct{}]
	a    *Analyzer
	data *DerivedData
}

func (v resultVisitor) set(stm *syntax.Statement, types []*TypedInfo, edges ...edge) {
	if stm != nil {
		v.a.setResult(stm, types, edges, nil)
	}
}

func (v resultVisitor) to(stm *syntax.Statement, fn Assoc) edge {
	return edge{Location{v.data, stm}, fn}
}

// visit populates a stream and returns its underlying statement.
func (v resultVisitor) visit(tokens []expr.Token) *syntax.Statement {
	expr.Visit[struct{}](tokens, v)
	return expr.Underlying(tokens)
}

// visitIn populates the stream held by container, which is associated with
// the stream's underlying statement.
func (v resultVisitor) visitIn(container *syntax.Statement) *syntax.Statement {
	u := v.visit(expr.FlattenIn(container))
	if u != container {
		v.set(container, nil, v.to(u, Identity))
	}
	return u
}

func (v resultVisitor) VisitMissing(ph *syntax.Statement) struct{} {
	v.set(ph, nil)
	return struct{}{}
}

func (v resultVisitor) VisitLiteral(stm *syntax.Statement) struct{} {
	text := stm.FirstValue("literal_content")
	var types []*TypedInfo
	if li := v.a.provider.LiteralInformation(text, nil); li != nil {
		types = append(types, literalInfo(li))
	}
	switch expr.LiteralContentValue(text).(type) {
	case nil:
	case bool:
		types = append(types, KindType(registry.KindBoolean))
	case int64, float64:
		types = append(types, KindType(registry.KindNumber))
	default:
		types = append(types, KindType(registry.KindString))
	}
	v.set(stm, types)
	return struct{}{}
}

func (v resultVisitor) VisitStringLiteral(stm *syntax.Statement) struct{} {
	v.set(stm, kinds(registry.KindString))
	return struct{}{}
}

func (v resultVisitor) VisitParentheses(stm *syntax.Statement) struct{} {
	u := v.visitIn(stm.FirstScope("expression_placeholder"))
	v.set(stm, nil, v.to(u, Identity))
	return struct{}{}
}

func (v resultVisitor) VisitList(stm *syntax.Statement) struct{} {
	var edges []edge
	for _, el := range stm.ScopeTo("list_element") {
		edges = append(edges, v.to(v.visitIn(el), AsCollectionElement))
	}
	v.set(stm, []*TypedInfo{TypeOf(registry.NewCollectionType(nil))}, edges...)
	return struct{}{}
}

func (v resultVisitor) VisitMap(stm *syntax.Statement) struct{} {
	record := registry.NewMapType(registry.NewKindType(registry.KindString), nil)
	var edges []edge
	for _, el := range stm.ScopeTo("map_element") {
		keyTokens := expr.FlattenIn(el.FirstScope("map_key"))
		v.visit(keyTokens)
		k, static := expr.StringValue(keyTokens)
		if static {
			if record.Fields == nil {
				record.Fields = make(map[string]*registry.FieldInformation)
			}
			record.Fields[k] = &registry.FieldInformation{Name: k}
		}
		val := el.FirstScope("map_val")
		if val == nil {
			continue
		}
		u := v.visitIn(val)
		if static {
			edges = append(edges, v.to(u, AsField{Name: k, Kind: registry.KindMap}))
		} else {
			edges = append(edges, v.to(u, AsStringKeyMap))
		}
	}
	v.set(stm, []*TypedInfo{TypeOf(record)}, edges...)
	return struct{}{}
}

func (v resultVisitor) VisitForeach(stm *syntax.Statement) struct{} {
	ve := stm.FirstScope("value_expression")
	if ve == nil {
		v.set(stm, nil)
		return struct{}{}
	}
	v.set(stm, nil, v.to(v.visitIn(ve), Identity))
	return struct{}{}
}

func (v resultVisitor) VisitTask(stm *syntax.Statement) struct{} {
	if u, ok := expr.TaskVariableUsage(stm); ok {
		edges, receivers := v.a.varUsageResult(v.data, stm, u)
		v.a.setResult(stm, nil, edges, receivers)
		return struct{}{}
	}
	infos := v.a.TaskInformations(stm)
	var types []*TypedInfo
	for _, n := range registry.SortedTaskNames(infos) {
		types = append(types, taskInfo(infos[n]))
	}
	var edges []edge
	if v.data.IsInclude(stm) {
		for _, it := range v.a.includedTargets(v.data, stm) {
			record := &registry.TypeInformation{Kind: registry.KindObject, Fields: make(map[string]*registry.FieldInformation)}
			for _, p := range it.Data.TargetOutputParameters(it.Target) {
				info := TargetParameterInfo(it.Data, p)
				name := info.TargetParameter.Name
				record.Fields[name] = &registry.FieldInformation{Name: name, Info: registry.NewDoc(info.TargetParameter.Info)}
				edges = append(edges, edge{Location{it.Data, p}, AsField{Name: name, Target: info.TargetParameter}})
			}
			types = append(types, TypeOf(record))
		}
	}
	v.set(stm, types, edges...)
	return struct{}{}
}

func (v resultVisitor) VisitDereference(stm *syntax.Statement, subject []expr.Token) struct{} {
	v.visit(subject)
	name, ok := expr.StringValue(subject)
	if !ok {
		v.set(stm, kinds(registry.KindObject))
		return struct{}{}
	}
	if fe, local := v.data.IsForeachDereference(stm); local {
		v.set(stm, nil, v.foreachVariable(fe, name)...)
		return struct{}{}
	}
	edges, receivers := v.a.varUsageResult(v.data, stm, expr.VariableTaskUsage{Kind: expr.Var, Name: name})
	v.a.setResult(stm, nil, edges, receivers)
	return struct{}{}
}

// foreachVariable deduces a loop variable from the element type of the
// iterable and a local variable from its initializer and assignments.
func (v resultVisitor) foreachVariable(foreach *syntax.Statement, name string) []edge {
	loopvars := foreach.ScopeValues("loopvar")
	for i, lv := range loopvars {
		if lv != name {
			continue
		}
		it := expr.Underlying(expr.FlattenIn(foreach.FirstScope("iterable")))
		return []edge{v.to(it, ElementAt{Index: i, Count: len(loopvars)})}
	}
	var edges []edge
	for _, lv := range foreach.FirstScope("foreach_locals").ScopeTo("localvar") {
		if lv.Value != name {
			continue
		}
		if ph := lv.FirstScope("local_initializer").FirstScope("expression_placeholder"); ph != nil {
			edges = append(edges, v.to(expr.Underlying(expr.FlattenIn(ph)), Identity))
		}
	}
	for _, as := range v.data.ForeachAssignments(foreach, name) {
		edges = append(edges, v.to(as.Right, Identity))
	}
	return edges
}

func (v resultVisitor) VisitUnary(stm *syntax.Statement, subject []expr.Token) struct{} {
	v.visit(subject)
	k := registry.KindNumber
	if stm.Value == "!" {
		k = registry.KindBoolean
	}
	v.set(stm, kinds(k))
	return struct{}{}
}

func (v resultVisitor) VisitSubscript(stm *syntax.Statement, subject []expr.Token) struct{} {
	u := v.visit(subject)
	var fn SubscriptResult
	switch idx, _ := expr.Value(expr.FlattenIn(stm.FirstScope("subscript_index_expression"))); idx := idx.(type) {
	case int64:
		fn.Integer = true
	case string:
		fn.Field, fn.Known = idx, true
	}
	v.set(stm, nil, v.to(u, fn))
	return struct{}{}
}

func (v resultVisitor) VisitAssignment(stm *syntax.Statement, left, right []expr.Token) struct{} {
	v.visit(left)
	v.set(stm, nil, v.to(v.visit(right), Identity))
	return struct{}{}
}

func (v resultVisitor) operands(stm *syntax.Statement, left, right []expr.Token, k registry.Kind) struct{} {
	v.visit(left)
	v.visit(right)
	v.set(stm, kinds(k))
	return struct{}{}
}

func (v resultVisitor) VisitAddOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v resultVisitor) VisitMultiplyOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v resultVisitor) VisitEqualityOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindBoolean)
}

func (v resultVisitor) VisitComparisonOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindBoolean)
}

func (v resultVisitor) VisitShiftOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v resultVisitor) VisitBitOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindNumber)
}

func (v resultVisitor) VisitBoolOp(stm *syntax.Statement, l, r []expr.Token) struct{} {
	return v.operands(stm, l, r, registry.KindBoolean)
}

func (v resultVisitor) VisitTernary(stm *syntax.Statement, cond, falseBranch []expr.Token) struct{} {
	v.visit(cond)
	t := v.visitIn(stm.FirstScope("exp_true"))
	f := v.visit(falseBranch)
	v.set(stm, nil, v.to(t, Identity), v.to(f, Identity))
	return struct{}{}
}

// ============================================================================
// Variables and includes
// ============================================================================

// documents returns this document followed by every other ready snapshot.
func (a *Analyzer) documents() []*DerivedData {
	out := []*DerivedData{a.data}
	for _, s := range a.env.Snapshots() {
		if s.Data != a.data && s.Path != a.data.Path {
			out = append(out, s.Data)
		}
	}
	return out
}

// usageLocations returns the statements using u: within the target for var
// usages, the whole document for static ones, every document for globals.
func (a *Analyzer) usageLocations(data *DerivedData, u expr.VariableTaskUsage, scope *syntax.Statement) []Location {
	var out []Location
	switch u.Kind {
	case expr.Global:
		for _, d := range a.documents() {
			for _, s := range d.AllVariableUsages(u) {
				out = append(out, Location{d, s})
			}
		}
	default:
		for _, s := range data.VariableUsages(u, scope) {
			out = append(out, Location{data, s})
		}
	}
	return out
}

// assignments returns the right sides assigned to u, scoped like
// usageLocations.
func (a *Analyzer) assignments(data *DerivedData, u expr.VariableTaskUsage, scope *syntax.Statement) []Location {
	var out []Location
	if u.Kind == expr.Global {
		for _, d := range a.documents() {
			for _, as := range d.Assignments(u, nil) {
				out = append(out, Location{d, as.Right})
			}
		}
		return out
	}
	for _, as := range data.Assignments(u, scope) {
		out = append(out, Location{data, as.Right})
	}
	return out
}

// includedDocument returns the document an include invocation refers to.
func (a *Analyzer) includedDocument(data *DerivedData, task *syntax.Statement) *DerivedData {
	tn, _ := TaskNameOf(task)
	if tn.Name != "include" {
		return data
	}
	p := TaskParameter(task, "Path")
	if p == nil {
		return data
	}
	rel, ok := expr.StringValue(expr.FlattenIn(ParameterValue(p)))
	if !ok {
		return nil
	}
	path := ResolveScriptPath(data.Path, rel)
	if path == data.Path {
		return data
	}
	snap, ok := a.env.StartAnalysis(path)
	if !ok {
		return nil
	}
	return snap.Data
}

// ResolveScriptPath resolves a script path relative to the directory of the
// script at base.
func ResolveScriptPath(base, rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(filepath.Dir(base), rel)
}

func (a *Analyzer) includedTargets(data *DerivedData, task *syntax.Statement) []IncludedTarget {
	td := a.includedDocument(data, task)
	if td == nil {
		return nil
	}
	tn, _ := TaskNameOf(task)
	var names []string
	if tn.Name != "include" {
		names = []string{tn.Name}
	} else {
		for _, pn := range []string{"", "Target"} {
			if p := TaskParameter(task, pn); p != nil {
				names = append(names, constantStrings(expr.FlattenIn(ParameterValue(p)))...)
			}
		}
	}
	var out []IncludedTarget
	for _, n := range names {
		if t := td.Target(n); t != nil {
			out = append(out, IncludedTarget{Data: td, Target: t, Name: n})
		}
	}
	return out
}

// includesOf returns the include invocations, in any known document, that
// run target of data.
func (a *Analyzer) includesOf(data *DerivedData, target *syntax.Statement) []Location {
	var out []Location
	for _, d := range a.documents() {
		for _, inc := range d.IncludeTasks() {
			for _, it := range a.includedTargets(d, inc) {
				if it.Data == data && it.Target == target {
					out = append(out, Location{d, inc})
					break
				}
			}
		}
	}
	return out
}

// constantStrings returns the static string value of tokens, or of each
// element when they form a list.
func constantStrings(tokens []expr.Token) []string {
	if s, ok := expr.StringValue(tokens); ok {
		return []string{s}
	}
	u := expr.Underlying(tokens)
	if u == nil || u.Name != "list" {
		return nil
	}
	var out []string
	for _, el := range u.ScopeTo("list_element") {
		if s, ok := expr.StringValue(expr.FlattenIn(el)); ok {
			out = append(out, s)
		}
	}
	return out
}
