package model

import (
	"github.com/jward/buildscope/internal/syntax"
)

// Snapshot is an immutable parsed state of a document.
type Snapshot struct {
	Path string
	Text string
	Tree *syntax.Tree
	Data *DerivedData
}

// NewSnapshot wraps a parsed tree.
func NewSnapshot(path, text string, tree *syntax.Tree) *Snapshot {
	return &Snapshot{Path: path, Text: text, Tree: tree, Data: NewDerivedData(path, tree)}
}

// Environment resolves the other documents of a workspace.
type Environment interface {
	// StartAnalysis returns the current snapshot of the document at path.
	// When none is ready it starts a background analysis and reports false.
	StartAnalysis(path string) (*Snapshot, bool)
	// TrackedPaths returns the paths of every known document, sorted.
	TrackedPaths() []string
	// Snapshots returns the ready snapshots of every known document, ordered
	// by path.
	Snapshots() []*Snapshot
}

// NoEnvironment is an Environment without other documents.
type NoEnvironment struct{}

func (NoEnvironment) StartAnalysis(string) (*Snapshot, bool) { return nil, false }
func (NoEnvironment) TrackedPaths() []string { return nil }
func (NoEnvironment) Snapshots() []*Snapshot { return nil }
