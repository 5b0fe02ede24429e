package assist

import (
	"strings"

	"github.com/jward/buildscope/internal/expr"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/syntax"
)

// OutlineKind classifies an outline item.
type OutlineKind string

const (
	OutlineTarget   OutlineKind = "target"
	OutlineInput    OutlineKind = "in"
	OutlineOutput   OutlineKind = "out"
	OutlineInclude  OutlineKind = "include"
	OutlineVariable OutlineKind = "variable"
)

// OutlineItem is a node of the structural outline of a document.
type OutlineItem struct {
	Kind     OutlineKind   `json:"kind"`
	Name     string        `json:"name"`
	Detail   string        `json:"detail,omitempty"`
	Offset   int           `json:"offset"`
	Length   int           `json:"length"`
	Children []OutlineItem `json:"children,omitempty"`
}

// Outline returns the targets of the document with their parameters and
// includes, followed by the document level includes and variables.
func Outline(c *Context) []OutlineItem {
	if !c.ready() {
		return nil
	}
	data := c.data()
	var out []OutlineItem
	for _, t := range data.Targets() {
		item := OutlineItem{
			Kind:   OutlineTarget,
			Name:   strings.Join(model.TargetNamesOf(t), ", "),
			Detail: c.leadingComment(t),
			Offset: t.Offset,
			Length: t.Length(),
		}
		for _, p := range data.TargetInputParameters(t) {
			item.Children = append(item.Children, parameterItem(c, OutlineInput, p))
		}
		for _, p := range data.TargetOutputParameters(t) {
			item.Children = append(item.Children, parameterItem(c, OutlineOutput, p))
		}
		item.Children = append(item.Children, includeItems(c, t)...)
		out = append(out, item)
	}
	out = append(out, includeItems(c, nil)...)

	for _, u := range data.Usages() {
		for _, as := range data.Assignments(u, nil) {
			if as.Scope != nil {
				continue
			}
			name := u.String()
			if u.Kind == expr.Var {
				name = "$" + u.Name
			}
			out = append(out, OutlineItem{
				Kind:   OutlineVariable,
				Name:   name,
				Detail: typeDetail(c.Analyzer.ResultTypes(as.Left)),
				Offset: as.Stm.Offset,
				Length: as.Stm.Length(),
			})
			break
		}
	}
	return out
}

func parameterItem(c *Context, kind OutlineKind, p *syntax.Statement) OutlineItem {
	return OutlineItem{
		Kind:   kind,
		Name:   model.TargetParameterName(p),
		Detail: typeDetail(c.Analyzer.ResultTypes(p)),
		Offset: p.Offset,
		Length: p.Length(),
	}
}

// includeItems lists the include invocations directly scoped to target, or
// to the document when target is nil.
func includeItems(c *Context, target *syntax.Statement) []OutlineItem {
	data := c.data()
	var out []OutlineItem
	for _, inc := range data.IncludeTasks() {
		if data.EnclosingTarget(inc) != target {
			continue
		}
		var names []string
		for _, it := range c.Analyzer.IncludedTargets(inc) {
			names = append(names, it.Name)
		}
		tn, _ := model.TaskNameOf(inc)
		out = append(out, OutlineItem{
			Kind:   OutlineInclude,
			Name:   tn.String(),
			Detail: strings.Join(names, ", "),
			Offset: inc.Offset,
			Length: inc.Length(),
		})
	}
	return out
}

func typeDetail(infos []*model.TypedInfo) string {
	ts := model.Types(infos)
	if len(ts) == 0 {
		return ""
	}
	return model.TypeString(ts[0])
}
