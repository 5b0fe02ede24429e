package assist

import (
	"slices"
	"sort"
	"strings"

	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// ProposalKind classifies a completion proposal.
type ProposalKind string

const (
	ProposalTask            ProposalKind = "task"
	ProposalParameter       ProposalKind = "parameter"
	ProposalField           ProposalKind = "field"
	ProposalEnum            ProposalKind = "enum"
	ProposalLiteral         ProposalKind = "literal"
	ProposalVariable        ProposalKind = "variable"
	ProposalForeachVariable ProposalKind = "foreach-variable"
	ProposalPath            ProposalKind = "path"
	ProposalUserParameter   ProposalKind = "user-parameter"
	ProposalBuildTarget     ProposalKind = "build-target"
	ProposalQualifier       ProposalKind = "qualifier"
	ProposalKeyword         ProposalKind = "keyword"
)

// Proposal is a completion candidate. Applying it replaces Length bytes at
// Offset with Insert and moves the cursor to Offset+Cursor.
type Proposal struct {
	Kind     ProposalKind `json:"kind"`
	Display  string       `json:"display"`
	Insert   string       `json:"insert"`
	Offset   int          `json:"offset"`
	Length   int          `json:"length"`
	Cursor   int          `json:"cursor"`
	Relation string       `json:"relation,omitempty"`
	Info     string       `json:"info,omitempty"`
}

var keywordLiterals = []struct{ name, doc string }{
	{"null", "The null literal."},
	{"true", "Boolean true literal."},
	{"false", "Boolean false literal."},
}

// ============================================================================
// Collector
// ============================================================================

// proposalKey identifies proposals that merge into one. Enum values,
// literals, build targets and user parameters share the value group.
type proposalKey struct {
	group string
	name  string
	task  string
}

type collector struct {
	items []Proposal
	docs  [][]string
	index map[proposalKey]int
}

func newCollector() *collector {
	return &collector{index: make(map[proposalKey]int)}
}

// add records p, merging its documentation into an earlier proposal with the
// same key. The first proposal keeps its location.
func (c *collector) add(key proposalKey, p Proposal, docs ...string) {
	i, ok := c.index[key]
	if !ok {
		i = len(c.items)
		c.index[key] = i
		if p.Display == "" {
			p.Display = p.Insert
		}
		if p.Cursor == 0 {
			p.Cursor = len(p.Insert)
		}
		c.items = append(c.items, p)
		c.docs = append(c.docs, nil)
	}
	for _, d := range docs {
		d = strings.TrimSpace(d)
		if d != "" && !slices.Contains(c.docs[i], d) {
			c.docs[i] = append(c.docs[i], d)
		}
	}
}

func (c *collector) has(group, name string) bool {
	_, ok := c.index[proposalKey{group: group, name: name}]
	return ok
}

func (c *collector) result() []Proposal {
	out := make([]Proposal, len(c.items))
	for i, p := range c.items {
		p.Info = joinDocs(c.docs[i])
		out[i] = p
	}
	return out
}

// span is the document range a proposal replaces.
type span struct{ offset, length int }

func spanOf(stm *syntax.Statement) span { return span{stm.Offset, stm.Length()} }

func (s span) proposal(kind ProposalKind, insert string) Proposal {
	return Proposal{Kind: kind, Insert: insert, Offset: s.offset, Length: s.length}
}

// ============================================================================
// Leaf collection
// ============================================================================

const (
	leafLeft = 1 << iota
	leafRight
	leafInner
)

var proposalLeaves = map[string]bool{
	"global_step_scope":               true,
	"task_statement_block":            true,
	"foreach_statement_block":         true,
	"condition_true_statement_block":  true,
	"condition_false_statement_block": true,
	"target_block_end":                true,
	"exp_true":                        true,
	"exp_false":                       true,
	"expression_placeholder":          true,
	"list_element":                    true,
	"map_key":                         true,
	"map_val":                         true,
	"iterable":                        true,
	"value_expression":                true,
	"condition_expression":            true,
	"subscript_index_expression":      true,
	"list":                            true,
	"map":                             true,
	"dereference":                     true,
	"unary":                           true,
	"task_identifier":                 true,
	"qualifier":                       true,
	"qualifier_literal":               true,
	"literal_content":                 true,
	"stringliteral":                   true,
	"stringliteral_content":           true,
	"param_name":                      true,
	"param_name_content":              true,
	"EXPRESSION_CLOSING":              true,
	"linecomment":                     true,
	"multilinecomment":                true,
	"target_parameter_name":           true,
	"target_parameter_name_content":   true,
}

type leaf struct {
	stm     *syntax.Statement
	parents []*syntax.Statement // innermost first
}

// collectLeaves appends, deepest first, the proposal leaves touching offset.
// A leaf strictly inside a statement hides the leaves enclosing it; a leaf
// only touching an edge does not.
func collectLeaves(stm *syntax.Statement, offset int, parents []*syntax.Statement, out *[]leaf) int {
	flags := 0
	innerEdge := false
	if len(stm.Scopes) > 0 {
		inner := append([]*syntax.Statement{stm}, parents...)
		for _, sc := range stm.Scopes {
			c := sc.Stm
			if !c.ContainsOffset(offset) {
				continue
			}
			f := collectLeaves(c, offset, inner, out)
			if f == 0 {
				continue
			}
			if f&leafLeft != 0 && c.Offset > stm.Offset {
				innerEdge = true
			}
			if f&leafRight != 0 && c.End < stm.End {
				innerEdge = true
			}
			flags |= f
		}
	}
	if flags&leafInner != 0 {
		return flags
	}
	if innerEdge {
		flags |= leafInner
	}
	if !proposalLeaves[stm.Name] {
		return flags
	}
	*out = append(*out, leaf{stm: stm, parents: parents})
	switch offset {
	case stm.Offset:
		return flags | leafLeft
	case stm.End:
		return flags | leafRight
	}
	return flags | leafInner
}

// ============================================================================
// Proposals
// ============================================================================

// Proposals returns the completion candidates at offset, merged and in a
// stable order.
func Proposals(c *Context, offset int) []Proposal {
	if !c.ready() {
		return nil
	}
	p := &proposer{ctx: c, data: c.data(), offset: offset, col: newCollector()}
	root := c.Snapshot.Tree.Root
	if len(root.Scopes) == 0 {
		p.generic(leaf{stm: root}, nil, span{offset, 0}, nil)
		return p.col.result()
	}
	var leaves []leaf
	collectLeaves(root, offset, nil, &leaves)
	for _, l := range leaves {
		p.leaf(l)
	}
	return p.col.result()
}

type proposer struct {
	ctx    *Context
	data   *model.DerivedData
	offset int
	col    *collector
}

func isEmptyExpr(e *syntax.Statement) bool { return e == nil || len(e.Scopes) == 0 }

// parentsAre reports whether the innermost parents carry the given names.
func parentsAre(parents []*syntax.Statement, names ...string) bool {
	if len(parents) < len(names) {
		return false
	}
	for i, n := range names {
		if parents[i].Name != n {
			return false
		}
	}
	return true
}

// unnamedParameterTask returns the task when parents start at the content
// of a parameter passed without a name.
func unnamedParameterTask(parents []*syntax.Statement) *syntax.Statement {
	if len(parents) < 4 || parents[0].Name != "param_content" {
		return nil
	}
	prm := parents[1]
	if (prm.Name != "first_parameter" && prm.Name != "parameter") || prm.HasScope("param_name") {
		return nil
	}
	if parents[2].Name != "paramlist" || parents[3].Name != "task" {
		return nil
	}
	return parents[3]
}

func firstParent(parents []*syntax.Statement, name string) *syntax.Statement {
	for _, p := range parents {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// invokedOnLineBefore reports whether a line break separates the cursor from
// the start of inner, so the cursor sits on an empty line of enclosing.
func (p *proposer) invokedOnLineBefore(enclosing, inner *syntax.Statement) bool {
	if p.offset < enclosing.Offset || p.offset > inner.Offset {
		return false
	}
	return strings.ContainsRune(p.ctx.Snapshot.Text[p.offset:inner.Offset], '\n')
}

func (p *proposer) text(stm *syntax.Statement) string {
	t := p.ctx.Snapshot.Text
	if stm.Offset < 0 || stm.End > len(t) || stm.Offset > stm.End {
		return ""
	}
	return t[stm.Offset:stm.End]
}

func (p *proposer) leaf(l leaf) {
	stm := l.stm
	at := span{p.offset, 0}
	switch stm.Name {
	case "dereference":
		if p.offset == stm.Offset+1 && len(stm.FirstScope("operator_subject").Scopes) == 0 {
			p.variables(l.parents, span{stm.Offset, p.offset - stm.Offset}, "", true)
		}
	case "target_block_end":
		if p.offset == stm.End {
			p.tasks(at, "")
			p.variables(l.parents, at, "", true)
		}
	case "global_step_scope", "task_statement_block", "foreach_statement_block",
		"condition_true_statement_block", "condition_false_statement_block":
		parents := append([]*syntax.Statement{stm}, l.parents...)
		p.tasks(at, "")
		p.variables(parents, at, "", true)
	case "map_key":
		if !isEmptyExpr(stm.FirstScope("expression")) {
			return
		}
		m := firstParent(l.parents, "map")
		p.mapKeys(m, l, at)
	case "map":
		if p.offset == stm.Offset || elementAt(stm, "map_element", p.offset) {
			return
		}
		p.mapKeys(stm, l, at)
	case "list":
		if p.offset == stm.Offset || elementAt(stm, "list_element", p.offset) {
			return
		}
		var elems []*model.TypedInfo
		for _, t := range model.Types(p.ctx.Analyzer.ReceiverTypes(stm)) {
			if t.Kind == registry.KindCollection && t.Element(0) != nil {
				elems = append(elems, model.TypeOf(t.Element(0)))
			}
		}
		p.generic(l, elems, at, nil)
	case "list_element", "map_val", "iterable", "value_expression", "condition_expression",
		"exp_true", "exp_false", "subscript_index_expression", "expression_placeholder":
		p.placeholder(l, at)
	case "qualifier":
		if len(stm.Scopes) == 0 && p.offset == stm.End {
			p.qualifiers(l.parents[0], "", at)
		}
	case "qualifier_literal":
		p.qualifiers(l.parents[1], prefixAt(stm.Value, stm.Offset, p.offset), spanOf(stm))
	case "task_identifier":
		if p.offset-stm.Offset > len(stm.Value) {
			return
		}
		p.tasks(span{stm.Offset, len(stm.Value)}, prefixAt(stm.Value, stm.Offset, p.offset))
	case "stringliteral":
		if p.offset > stm.Offset {
			p.stringLiteral(stm)
		}
	case "stringliteral_content":
		p.stringLiteral(l.parents[0])
	case "literal_content":
		p.literal(l)
	case "param_name":
		content := stm.FirstScope("param_name_content")
		if content == nil || p.invokedOnLineBefore(stm, content) {
			p.taskParameters(firstParent(l.parents, "task"), "", at)
		}
	case "param_name_content":
		p.taskParameters(firstParent(l.parents, "task"), prefixAt(stm.Value, stm.Offset, p.offset), spanOf(stm))
	case "EXPRESSION_CLOSING":
		if p.offset == stm.End && strings.ContainsAny(p.text(stm), ";\n") {
			p.generic(l, nil, at, nil)
		}
	case "target_parameter_name":
		if stm.FirstScope("target_parameter_name_content") == nil {
			p.targetVariables(firstParent(l.parents, "task_target"), "", at)
		}
	case "target_parameter_name_content":
		base := prefixAt(stm.Value, stm.Offset, p.offset)
		p.targetVariables(firstParent(l.parents, "task_target"), base, span{stm.Offset, stm.Length()})
	}
}

func elementAt(container *syntax.Statement, name string, offset int) bool {
	for _, el := range container.ScopeTo(name) {
		if el.ContainsOffset(offset) {
			return true
		}
	}
	return false
}

// placeholder proposes values for an empty expression slot.
func (p *proposer) placeholder(l leaf, at span) {
	stm := l.stm
	e := stm.FirstScope("expression")
	if !isEmptyExpr(e) && (stm.Name != "expression_placeholder" || !p.invokedOnLineBefore(stm, e)) {
		return
	}
	if stm.Name == "subscript_index_expression" && len(l.parents) > 0 && l.parents[0].Name == "subscript" {
		p.fields(p.ctx.Analyzer.SubscriptSubjectResultTypes(l.parents[0]), "", at, nil)
	}
	if stm.Name == "expression_placeholder" && parentsAre(l.parents, "param_content", "first_parameter", "paramlist", "task") {
		p.variableTaskNames(l.parents[3], l.parents, "", at)
	}
	var rectypes []*model.TypedInfo
	if isEmptyExpr(e) {
		rectypes = p.ctx.Analyzer.ReceiverTypes(stm)
	} else {
		rectypes = p.ctx.Analyzer.ReceiverTypes(expr.Underlying(expr.FlattenIn(stm)))
	}
	p.generic(l, rectypes, at, nil)
}

// mapKeys proposes the keys of a map literal that are not present yet.
func (p *proposer) mapKeys(m *syntax.Statement, l leaf, at span) {
	if m == nil {
		return
	}
	present := presentMapKeys(m)
	rectypes := p.ctx.Analyzer.ReceiverTypes(m)
	p.mapKeyFields(rectypes, "", at, present)
	p.generic(l, rectypes, at, func(name string) bool { return !present[name] })
}

func presentMapKeys(m *syntax.Statement) map[string]bool {
	out := make(map[string]bool)
	for _, el := range m.ScopeTo("map_element") {
		if s, ok := expr.StringValue(expr.FlattenIn(el.FirstScope("map_key"))); ok {
			out[s] = true
		}
	}
	return out
}

// generic proposes everything that may start an expression. include filters
// document literals and keywords when set.
func (p *proposer) generic(l leaf, rectypes []*model.TypedInfo, at span, include func(string) bool) {
	p.taskNameLiterals(rectypes, "", at)
	p.buildTargets(rectypes, "", at)
	if task := unnamedParameterTask(l.parents); task != nil {
		p.taskParameters(task, "", at)
	}
	parents := l.parents
	if l.stm != nil {
		parents = append([]*syntax.Statement{l.stm}, l.parents...)
	}
	p.variables(parents, at, "", true)
	p.enums(rectypes, "", at)
	p.externalLiterals(rectypes, "", at)
	p.tasks(at, "")
	p.paths(rectypes, "", at)
	p.userParameters(rectypes, "", at)
	p.documentLiterals("", at, include)
	p.keywords("", at, include)
}

// literal proposes completions of a partially typed bare word.
func (p *proposer) literal(l leaf) {
	stm := l.stm
	lit := l.parents[0]
	base := prefixAt(stm.Value, stm.Offset, p.offset)
	sp := spanOf(stm)
	rectypes := p.ctx.Analyzer.ReceiverTypes(lit)

	p.taskNameLiterals(rectypes, base, sp)
	p.enums(rectypes, base, sp)
	if parentsAre(l.parents, "literal", "expression", "subscript_index_expression", "subscript") {
		p.fields(p.ctx.Analyzer.SubscriptSubjectResultTypes(l.parents[3]), base, sp, nil)
	}
	if parentsAre(l.parents, "literal", "expression", "expression_placeholder") && len(l.parents[1].Scopes) == 1 {
		if task := unnamedParameterTask(l.parents[3:]); task != nil {
			if l.parents[4].Name == "first_parameter" {
				p.variableTaskNames(task, l.parents, base, sp)
			}
			p.taskParameters(task, base, sp)
		}
	}
	if parentsAre(l.parents, "literal", "operator_subject", "dereference") {
		deref := l.parents[2]
		p.variables(l.parents, span{deref.Offset, stm.End - deref.Offset}, base, true)
	}
	if parentsAre(l.parents, "literal", "expression", "map_key", "map_element", "map") {
		m := l.parents[4]
		p.mapKeyFields(p.ctx.Analyzer.ReceiverTypes(m), base, sp, presentMapKeys(m))
	}
	p.buildTargets(rectypes, base, sp)
	p.tasks(sp, base)
	p.userParameters(rectypes, base, sp)
	p.externalLiterals(rectypes, base, sp)
	p.paths(rectypes, base, sp)
	p.documentLiterals(base, sp, nil)
	p.keywords(base, sp, nil)
}

// stringLiteral proposes completions inside a string without inline
// expressions or escapes. Only the content between the quotes is replaced.
func (p *proposer) stringLiteral(stm *syntax.Statement) {
	for _, sc := range stm.Scopes {
		if sc.Label != "stringliteral_content" {
			return
		}
	}
	start := stm.Offset + 1
	end := stm.End
	raw := p.text(stm)
	if len(raw) >= 2 && strings.HasSuffix(raw, "\"") {
		end--
	}
	if p.offset < start || p.offset > end {
		return
	}
	base := p.ctx.Snapshot.Text[start:p.offset]
	if strings.ContainsRune(base, '\\') {
		return
	}
	sp := span{start, end - start}
	rectypes := p.ctx.Analyzer.ReceiverTypes(stm)
	p.taskNameLiterals(rectypes, base, sp)
	p.buildTargets(rectypes, base, sp)
	p.paths(rectypes, base, sp)
	p.enums(rectypes, base, sp)
	p.userParameters(rectypes, base, sp)
}

// ============================================================================
// Sources
// ============================================================================

// tasks proposes same-document targets as simplified includes, then the
// provider's tasks, then the task names already used by the document.
func (p *proposer) tasks(sp span, base string) {
	for _, name := range p.data.TargetNames() {
		if !matchesPrefixOrEquals(name, base) {
			continue
		}
		pr := sp.proposal(ProposalTask, name+"()")
		pr.Cursor = len(name) + 1
		pr.Relation = "target"
		p.col.add(proposalKey{group: "task", name: name}, pr,
			"Includes the build target "+name+" of this script.", p.ctx.leadingComment(p.data.Target(name)))
	}
	tasks := p.ctx.provider().Tasks(base)
	for _, tn := range registry.SortedTaskNames(tasks) {
		name := tn.String()
		pr := sp.proposal(ProposalTask, name+"()")
		pr.Cursor = len(name) + 1
		p.col.add(proposalKey{group: "task", name: name}, pr, tasks[tn].Info.String())
	}
	for _, tn := range p.data.PresentTaskNames() {
		name := tn.String()
		if !matchesPrefixOrEquals(name, base) {
			continue
		}
		pr := sp.proposal(ProposalTask, name+"()")
		pr.Cursor = len(name) + 1
		p.col.add(proposalKey{group: "task", name: name}, pr)
	}
}

// variables proposes the foreach variables visible from parents and the
// variables of the enclosing target.
func (p *proposer) variables(parents []*syntax.Statement, sp span, base string, dollar bool) {
	prefix := ""
	if dollar {
		prefix = "$"
	}
	for _, fe := range parents {
		if fe.Name != "foreach" {
			continue
		}
		for _, name := range model.ForeachVariables(fe) {
			if !matchesPrefix(name, base) {
				continue
			}
			p.col.add(proposalKey{group: "variable", name: name}, sp.proposal(ProposalForeachVariable, prefix+name))
		}
	}
	target := firstParent(parents, "task_target")
	for _, name := range p.data.TargetVariableNames(target) {
		if !matchesPrefix(name, base) {
			continue
		}
		p.col.add(proposalKey{group: "variable", name: name}, sp.proposal(ProposalVariable, prefix+name))
	}
}

// targetVariables proposes parameter names for a target declaration.
func (p *proposer) targetVariables(target *syntax.Statement, base string, sp span) {
	if target == nil {
		return
	}
	for _, name := range p.data.TargetVariableNames(target) {
		if matchesPrefix(name, base) {
			p.col.add(proposalKey{group: "variable", name: name}, sp.proposal(ProposalVariable, name))
		}
	}
}

// variableTaskNames proposes variable names as the first argument of
// var(), static() and global().
func (p *proposer) variableTaskNames(task *syntax.Statement, parents []*syntax.Statement, base string, sp span) {
	tn, dynamic := model.TaskNameOf(task)
	if dynamic || tn.HasQualifiers() {
		return
	}
	kind, ok := expr.UsageKindOf(tn.Name)
	if !ok {
		return
	}
	var names []string
	switch kind {
	case expr.Var:
		names = p.data.TargetVariableNames(firstParent(parents, "task_target"))
	default:
		docs := []*model.DerivedData{p.data}
		if kind == expr.Global {
			for _, s := range p.ctx.Analyzer.Environment().Snapshots() {
				if s.Data != p.data {
					docs = append(docs, s.Data)
				}
			}
		}
		seen := make(map[string]bool)
		for _, d := range docs {
			for _, u := range d.Usages() {
				if u.Kind == kind && !seen[u.Name] {
					seen[u.Name] = true
					names = append(names, u.Name)
				}
			}
		}
		sort.Strings(names)
	}
	for _, name := range names {
		if matchesPrefix(name, base) {
			p.col.add(proposalKey{group: "variable", name: name, task: tn.Name}, sp.proposal(ProposalVariable, name))
		}
	}
}

// taskParameters proposes the parameter names of task not present yet.
func (p *proposer) taskParameters(task *syntax.Statement, base string, sp span) {
	if task == nil {
		return
	}
	present := make(map[string]bool)
	for _, prm := range model.TaskParameters(task) {
		present[model.ParameterName(prm)] = true
	}
	tn, _ := model.TaskNameOf(task)
	add := func(name, relation string, docs ...string) {
		if name == "" || name == "*" || present[name] || !matchesPrefix(name, base) {
			return
		}
		pr := sp.proposal(ProposalParameter, name+": ")
		pr.Display = name
		pr.Relation = relation
		p.col.add(proposalKey{group: "parameter", name: name, task: tn.String()}, pr, docs...)
	}

	if tn.Name == "defaults" && !tn.HasQualifiers() {
		if first := model.TaskParameter(task, ""); first != nil {
			for _, s := range stringsOf(expr.FlattenIn(model.ParameterValue(first))) {
				name := registry.ParseTaskName(s)
				p.providerParameters(p.ctx.provider().TaskInformation(name), name.String(), add)
			}
		}
		return
	}
	if p.data.IsInclude(task) {
		for _, it := range p.ctx.Analyzer.IncludedTargets(task) {
			for _, prm := range it.Data.TargetInputParameters(it.Target) {
				info := model.TargetParameterInfo(it.Data, prm)
				add(info.TargetParameter.Name, "target "+it.Name, info.Doc())
			}
		}
	}
	p.providerParameters(p.ctx.Analyzer.TaskInformations(task), tn.String(), add)
	p.walkTasks(func(other *syntax.Statement) {
		if other == task {
			return
		}
		if otn, _ := model.TaskNameOf(other); otn.Name != tn.Name {
			return
		}
		for _, prm := range model.TaskParameters(other) {
			if prm.HasScope("param_name") {
				add(model.ParameterName(prm), tn.String())
			}
		}
	})
}

// walkTasks calls fn for each task invocation of the document.
func (p *proposer) walkTasks(fn func(task *syntax.Statement)) {
	p.ctx.Snapshot.Tree.Root.Walk(func(s *syntax.Statement, _ []*syntax.Statement) bool {
		if s.Name == "task" {
			fn(s)
		}
		return true
	})
}

func (p *proposer) providerParameters(infos map[registry.TaskName]*registry.TaskInformation, relation string,
	add func(name, relation string, docs ...string)) {
	for _, tn := range registry.SortedTaskNames(infos) {
		for _, prm := range infos[tn].Parameters {
			name := prm.Name
			if name == "" {
				for _, a := range prm.Aliases {
					if a != "" {
						name = a
						break
					}
				}
			}
			add(name, relation, prm.Info.String())
		}
	}
}

// stringsOf returns the constant string of tokens, or of each element of a
// list.
func stringsOf(tokens []expr.Token) []string {
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

// qualifiers proposes the qualifiers known for the task of a task
// identifier that are not used by it yet.
func (p *proposer) qualifiers(id *syntax.Statement, base string, sp span) {
	if id == nil || id.Name != "task_identifier" {
		return
	}
	present := make(map[string]bool)
	for _, q := range id.ScopeTo("qualifier") {
		if v := q.FirstValue("qualifier_literal"); v != "" && v != base {
			present[v] = true
		}
	}
	seen := make(map[string]bool)
	var qs []string
	infos := p.ctx.provider().TaskInformation(registry.NewTaskName(id.Value))
	for _, tn := range registry.SortedTaskNames(infos) {
		for _, q := range tn.Qualifiers() {
			if !seen[q] && !present[q] {
				seen[q] = true
				qs = append(qs, q)
			}
		}
	}
	sort.Strings(qs)
	for _, q := range qs {
		if matchesPrefix(q, base) {
			p.col.add(proposalKey{group: "qualifier", name: q}, sp.proposal(ProposalQualifier, q))
		}
	}
}

// fields proposes the fields of the given types and their super types.
func (p *proposer) fields(infos []*model.TypedInfo, base string, sp span, skip map[string]bool) {
	for _, t := range model.Types(infos) {
		for _, f := range fieldsOf(t) {
			if skip[f.Name] || !matchesPrefix(f.Name, base) {
				continue
			}
			pr := sp.proposal(ProposalField, f.Name)
			pr.Relation = t.Name()
			p.col.add(proposalKey{group: "field", name: f.Name}, pr, f.Info.String())
		}
	}
}

// fieldsOf returns the fields of t and of its super types, ordered by name.
func fieldsOf(t *registry.TypeInformation) []*registry.FieldInformation {
	seen := make(map[*registry.TypeInformation]bool)
	byName := make(map[string]*registry.FieldInformation)
	var walk func(t *registry.TypeInformation)
	walk = func(t *registry.TypeInformation) {
		if t == nil || seen[t] {
			return
		}
		seen[t] = true
		for name, f := range t.Fields {
			if _, ok := byName[name]; !ok {
				byName[name] = f
			}
		}
		for _, s := range t.SuperTypes {
			walk(s)
		}
	}
	walk(t)
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*registry.FieldInformation, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return out
}

// mapKeyFields proposes the fields of the receiver types of a map and the
// enum values of its key type.
func (p *proposer) mapKeyFields(rectypes []*model.TypedInfo, base string, sp span, present map[string]bool) {
	p.fields(rectypes, base, sp, present)
	for _, t := range model.Types(rectypes) {
		if t.Kind != registry.KindMap {
			continue
		}
		if key := t.Element(0); key != nil {
			p.enumValues(key, base, sp, present)
		}
	}
}

// enums proposes the values of enum receivers and of their related types.
func (p *proposer) enums(rectypes []*model.TypedInfo, base string, sp span) {
	for _, t := range model.Types(rectypes) {
		p.enumValues(t, base, sp, nil)
		for _, r := range t.RelatedTypes {
			p.enumValues(r, base, sp, nil)
		}
	}
}

func (p *proposer) enumValues(t *registry.TypeInformation, base string, sp span, skip map[string]bool) {
	for _, name := range t.SortedEnumNames() {
		if skip[name] || !matchesPrefix(name, base) {
			continue
		}
		pr := sp.proposal(ProposalEnum, name)
		pr.Relation = t.Name()
		p.col.add(proposalKey{group: "value", name: name}, pr, t.EnumValues[name].Info.String())
	}
}

// externalLiterals proposes the literals the provider knows for the
// receiver types.
func (p *proposer) externalLiterals(rectypes []*model.TypedInfo, base string, sp span) {
	for _, t := range model.Types(rectypes) {
		for _, lit := range p.ctx.provider().Literals(base, t) {
			if !matchesPrefix(lit.Literal, base) {
				continue
			}
			pr := sp.proposal(ProposalLiteral, lit.Literal)
			pr.Relation = lit.Relation
			if pr.Relation == "" {
				pr.Relation = lit.Type.Name()
			}
			p.col.add(proposalKey{group: "value", name: lit.Literal}, pr, lit.Info.String())
		}
	}
}

// taskNameLiterals proposes task names where a BUILD_TASK_NAME is expected.
func (p *proposer) taskNameLiterals(rectypes []*model.TypedInfo, base string, sp span) {
	if !model.HasKind(rectypes, registry.KindBuildTaskName) {
		return
	}
	tasks := p.ctx.provider().Tasks(base)
	for _, tn := range registry.SortedTaskNames(tasks) {
		name := tn.String()
		if !matchesPrefix(name, base) {
			continue
		}
		p.col.add(proposalKey{group: "value", name: name}, sp.proposal(ProposalLiteral, name), tasks[tn].Info.String())
	}
}

// buildTargets proposes the targets of the document where a BUILD_TARGET
// is expected.
func (p *proposer) buildTargets(rectypes []*model.TypedInfo, base string, sp span) {
	if !model.HasKind(rectypes, registry.KindBuildTarget) {
		return
	}
	for _, name := range p.data.TargetNames() {
		if !matchesPrefix(name, base) {
			continue
		}
		p.col.add(proposalKey{group: "value", name: name}, sp.proposal(ProposalBuildTarget, name),
			p.ctx.leadingComment(p.data.Target(name)))
	}
}

// userParameters proposes the configured user parameters where one is
// expected.
func (p *proposer) userParameters(rectypes []*model.TypedInfo, base string, sp span) {
	for _, src := range []struct {
		kind     registry.Kind
		values   map[string]string
		relation string
	}{
		{registry.KindExecutionUserParameter, p.ctx.UserParameters.Execution, "execution user parameter"},
		{registry.KindEnvironmentUserParameter, p.ctx.UserParameters.Environment, "environment user parameter"},
	} {
		if !model.HasKind(rectypes, src.kind) {
			continue
		}
		for _, name := range sortedKeys(src.values) {
			if !matchesPrefix(name, base) {
				continue
			}
			pr := sp.proposal(ProposalUserParameter, name)
			pr.Relation = src.relation
			doc := ""
			if v := src.values[name]; v != "" {
				doc = "Value: " + v
			}
			p.col.add(proposalKey{group: "value", name: name}, pr, doc)
		}
	}
}

// paths proposes file system entries where a path is expected.
func (p *proposer) paths(rectypes []*model.TypedInfo, base string, sp span) {
	var order registry.Kind
	found := false
	for _, t := range model.Types(rectypes) {
		if t.Kind.IsPath() {
			if !found || t.Kind == registry.KindDirectoryPath || t.Kind == registry.KindFilePath {
				order = t.Kind
			}
			found = true
		}
	}
	if !found {
		return
	}
	for _, c := range pathCandidates(p.ctx.Paths, p.ctx.Snapshot.Path, base, order) {
		pr := sp.proposal(ProposalPath, c.insert)
		pr.Relation = "file"
		if c.dir {
			pr.Relation = "directory"
		}
		p.col.add(proposalKey{group: "path", name: c.insert}, pr)
	}
}

// documentLiterals proposes bare words already used in the document. Words
// already offered as fields are skipped.
func (p *proposer) documentLiterals(base string, sp span, include func(string) bool) {
	for _, lit := range p.data.LiteralContents() {
		if !matchesPrefix(lit, base) || isKeyword(lit) || p.col.has("field", lit) {
			continue
		}
		if include != nil && !include(lit) {
			continue
		}
		p.col.add(proposalKey{group: "value", name: lit}, sp.proposal(ProposalLiteral, lit))
	}
}

func (p *proposer) keywords(base string, sp span, include func(string) bool) {
	for _, k := range keywordLiterals {
		if !strings.HasPrefix(k.name, base) || len(k.name) <= len(base) {
			continue
		}
		if include != nil && !include(k.name) {
			continue
		}
		p.col.add(proposalKey{group: "value", name: k.name}, sp.proposal(ProposalKeyword, k.name), k.doc)
	}
}

func isKeyword(s string) bool {
	for _, k := range keywordLiterals {
		if k.name == s {
			return true
		}
	}
	return false
}
