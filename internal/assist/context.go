// Package assist answers editor queries over an analyzed build script:
// completion proposals, hover documentation, token classification and the
// structural outline.
package assist

import (
	"sort"
	"strings"

	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/syntax"
)

// UserParameters are the user parameters of the build configuration, offered
// where a parameter name is expected.
type UserParameters struct {
	Execution   map[string]string `yaml:"execution" json:"execution,omitempty"`
	Environment map[string]string `yaml:"environment" json:"environment,omitempty"`
}

// Context bundles the state one query runs against. Analyzer must have been
// created over Snapshot.Data.
type Context struct {
	Snapshot       *model.Snapshot
	Analyzer       *model.Analyzer
	Paths          PathLister
	UserParameters UserParameters
}

func (c *Context) ready() bool {
	return c != nil && c.Snapshot != nil && c.Snapshot.Tree != nil && c.Analyzer != nil
}

func (c *Context) provider() registry.Provider { return c.Analyzer.Provider() }

func (c *Context) data() *model.DerivedData { return c.Analyzer.Data() }

// leadingComment returns the comment documenting stm in the analyzed
// document.
func (c *Context) leadingComment(stm *syntax.Statement) string {
	return c.Snapshot.Tree.LeadingComment(stm)
}

// matchesPrefix reports whether name extends base, ignoring case.
func matchesPrefix(name, base string) bool {
	return len(name) > len(base) && registry.HasPrefixFold(name, base)
}

// matchesPrefixOrEquals is matchesPrefix that also accepts name == base.
func matchesPrefixOrEquals(name, base string) bool {
	return len(name) >= len(base) && registry.HasPrefixFold(name, base)
}

// prefixAt returns the part of s, starting at offset start of the document,
// that precedes the document offset off.
func prefixAt(s string, start, off int) string {
	n := off - start
	switch {
	case n <= 0:
		return ""
	case n >= len(s):
		return s
	}
	return s[:n]
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// joinDocs joins documentation paragraphs with blank lines.
func joinDocs(docs []string) string {
	return strings.Join(docs, "\n\n")
}
