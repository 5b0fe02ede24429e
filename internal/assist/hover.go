package assist

import (
	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// HoverSection is one documented meaning of the hovered element.
type HoverSection struct {
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
	Doc   string `json:"doc,omitempty"`
}

// HoverResult documents the element spanning Offset and Length.
type HoverResult struct {
	Offset   int            `json:"offset"`
	Length   int            `json:"length"`
	Sections []HoverSection `json:"sections"`
}

var hoverable = map[string]bool{
	"task_identifier":               true,
	"qualifier_literal":             true,
	"param_name_content":            true,
	"target_name_content":           true,
	"target_parameter_name_content": true,
	"dereference":                   true,
	"loopvar":                       true,
	"localvar":                      true,
	"literal_content":               true,
	"stringliteral":                 true,
}

// Hover documents the element at offset. It returns nil when there is
// nothing to say.
func Hover(c *Context, offset int) *HoverResult {
	if !c.ready() {
		return nil
	}
	stm, parents := hoverTarget(c.Snapshot.Tree.Root, offset, nil)
	if stm == nil {
		return nil
	}
	h := &hoverer{ctx: c, res: &HoverResult{Offset: stm.Offset, Length: stm.Length()}, seen: make(map[HoverSection]bool)}
	h.hover(stm, parents, offset)
	if len(h.res.Sections) == 0 {
		return nil
	}
	return h.res
}

// hoverTarget returns the innermost hoverable statement containing offset.
func hoverTarget(stm *syntax.Statement, offset int, parents []*syntax.Statement) (*syntax.Statement, []*syntax.Statement) {
	inner := append([]*syntax.Statement{stm}, parents...)
	for _, sc := range stm.Scopes {
		if !sc.Stm.ContainsOffset(offset) {
			continue
		}
		if s, p := hoverTarget(sc.Stm, offset, inner); s != nil {
			return s, p
		}
	}
	if hoverable[stm.Name] {
		return stm, parents
	}
	return nil, nil
}

type hoverer struct {
	ctx  *Context
	res  *HoverResult
	seen map[HoverSection]bool
}

func (h *hoverer) add(s HoverSection) {
	if s.Title == "" || h.seen[s] {
		return
	}
	h.seen[s] = true
	h.res.Sections = append(h.res.Sections, s)
}

func (h *hoverer) addInfo(t *model.TypedInfo) {
	if t == nil || (t.Kind == model.InfoType && t.Type == nil) {
		return
	}
	s := HoverSection{Title: t.Title(), Doc: t.Doc()}
	if t.Type != nil && t.Kind != model.InfoType {
		s.Type = model.TypeString(t.Type)
	}
	h.add(s)
}

func (h *hoverer) addInfos(infos []*model.TypedInfo) {
	for _, t := range infos {
		h.addInfo(t)
	}
}

func (h *hoverer) hover(stm *syntax.Statement, parents []*syntax.Statement, offset int) {
	a := h.ctx.Analyzer
	data := h.ctx.data()
	switch stm.Name {
	case "task_identifier":
		if offset > stm.Offset+len(stm.Value) {
			return
		}
		h.res.Length = len(stm.Value)
		task := parents[0]
		tn, _ := model.TaskNameOf(task)
		if data.IsInclude(task) && tn.Name != "include" {
			for _, it := range a.IncludedTargets(task) {
				h.addInfo(model.TargetInfo(it.Data, it.Target, it.Name))
			}
		}
		infos := a.TaskInformations(task)
		for _, n := range registry.SortedTaskNames(infos) {
			ti := infos[n]
			h.addInfo(&model.TypedInfo{Kind: model.InfoTask, Task: ti, Type: ti.ReturnType})
		}
	case "qualifier_literal":
		task := firstParent(parents, "task")
		tn, _ := model.TaskNameOf(task)
		h.add(HoverSection{Title: "qualifier " + stm.Value + " of " + tn.String() + "()"})
	case "param_name_content":
		task := firstParent(parents, "task")
		infos := a.TaskParameterInformations(task, stm.Value)
		for _, n := range registry.SortedTaskNames(infos) {
			pi := infos[n]
			h.addInfo(&model.TypedInfo{Kind: model.InfoTaskParameter, Parameter: pi, Type: pi.Type})
		}
		if data.IsInclude(task) {
			for _, it := range a.IncludedTargets(task) {
				if prm := it.Data.TargetParameter(it.Target, stm.Value, false); prm != nil {
					h.addInfo(model.TargetParameterInfo(it.Data, prm))
				}
			}
		}
	case "target_name_content":
		if target := firstParent(parents, "task_target"); target != nil {
			h.addInfo(model.TargetInfo(data, target, stm.Value))
		}
	case "target_parameter_name_content":
		if len(parents) < 2 {
			return
		}
		prm := parents[1]
		h.addInfo(model.TargetParameterInfo(data, prm))
		h.addInfos(a.ResultTypes(prm))
	case "dereference":
		h.variable(stm, a.ResultTypes(stm))
	case "loopvar", "localvar":
		h.add(HoverSection{Title: "foreach variable $" + stm.Value})
	case "literal_content":
		h.value(parents[0], parents[1:], stm.Value)
	case "stringliteral":
		if v, ok := expr.StringValue([]expr.Token{{Stm: stm}}); ok {
			h.value(stm, parents, v)
		}
	}
}

func (h *hoverer) variable(deref *syntax.Statement, types []*model.TypedInfo) {
	name, ok := expr.StringValue(expr.FlattenIn(deref.FirstScope("operator_subject")))
	if !ok {
		return
	}
	title := "variable $" + name
	if _, local := h.ctx.data().IsForeachDereference(deref); local {
		title = "foreach variable $" + name
	}
	s := HoverSection{Title: title}
	if ts := model.Types(types); len(ts) > 0 {
		s.Type = model.TypeString(ts[0])
	}
	h.add(s)
	h.addInfos(types)
}

// value documents a literal through the types expected at its position.
// parents are the ancestors of stm, innermost first.
func (h *hoverer) value(stm *syntax.Statement, parents []*syntax.Statement, v string) {
	a := h.ctx.Analyzer
	data := h.ctx.data()
	rectypes := a.ReceiverTypes(stm)
	for _, t := range model.Types(rectypes) {
		if f := t.EnumValues[v]; f != nil {
			h.add(HoverSection{Title: "enum " + t.Name() + "." + v, Type: t.Name(), Doc: f.Info.String()})
		}
		if lit := a.Provider().LiteralInformation(v, t); lit != nil {
			h.addInfo(&model.TypedInfo{Kind: model.InfoLiteral, Literal: lit, Type: lit.Type})
		}
		switch t.Kind {
		case registry.KindBuildTarget:
			if target := data.Target(v); target != nil {
				h.addInfo(model.TargetInfo(data, target, v))
			}
		case registry.KindBuildTaskName:
			infos := a.Provider().TaskInformation(registry.ParseTaskName(v))
			for _, n := range registry.SortedTaskNames(infos) {
				ti := infos[n]
				h.addInfo(&model.TypedInfo{Kind: model.InfoTask, Task: ti, Type: ti.ReturnType})
			}
		}
		if t.Kind.IsPath() && h.ctx.Snapshot.Path != "" {
			h.add(HoverSection{Title: "path " + v, Type: t.Name(), Doc: model.ResolveScriptPath(h.ctx.Snapshot.Path, v)})
		}
	}
	if parentsAre(parents, "expression", "map_key", "map_element", "map") {
		for _, t := range model.Types(a.ReceiverTypes(parents[3])) {
			for _, f := range fieldsOf(t) {
				if f.Name == v {
					h.add(HoverSection{Title: "field " + v + " of " + t.Name(), Type: model.TypeString(f.Type), Doc: f.Info.String()})
				}
			}
		}
	}
	for _, t := range rectypes {
		if t.Kind == model.InfoTaskParameter || t.Kind == model.InfoField || t.Kind == model.InfoTargetParameter {
			h.addInfo(t)
		}
	}
}
