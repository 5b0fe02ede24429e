package buildscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/jward/buildscope/internal/assist"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/syntax"
)

// ErrNoSnapshot is returned when a document has not been analyzed yet.
var ErrNoSnapshot = errors.New("buildscope: no snapshot")

// Source supplies the current text of a document.
type Source func() (string, error)

// FileSource reads the document from disk.
func FileSource(path string) Source {
	return func() (string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// TextSource serves a fixed text.
func TextSource(text string) Source {
	return func() (string, error) { return text, nil }
}

// Snapshot is a published analysis of a document. It never changes once
// published; updates publish a new Snapshot.
type Snapshot struct {
	*model.Snapshot
	Analyzer *model.Analyzer
	// Version increases with every publication of the owning document.
	Version uint64

	env *Environment
}

// Context returns the query context for this snapshot.
func (s *Snapshot) Context() *assist.Context {
	c := &assist.Context{Snapshot: s.Snapshot, Analyzer: s.Analyzer}
	if s.env != nil {
		c.Paths = s.env.paths
		c.UserParameters = s.env.userParams
	}
	return c
}

// Proposals returns the completion proposals at offset.
func (s *Snapshot) Proposals(offset int) []assist.Proposal {
	return assist.Proposals(s.Context(), offset)
}

// Hover returns the documentation of the token at offset, or nil.
func (s *Snapshot) Hover(offset int) *assist.HoverResult {
	return assist.Hover(s.Context(), offset)
}

// Outline returns the structural outline of the document.
func (s *Snapshot) Outline() []assist.OutlineItem {
	return assist.Outline(s.Context())
}

// Tokens classifies the tokens of the document for highlighting.
func (s *Snapshot) Tokens() []assist.Token {
	return assist.Tokens(s.Tree)
}

// Document owns the current analysis of one build script and at most one
// background worker producing the next one.
//
// The worker is cancelled by replacing the version token: a worker that
// finds a different token at publish time drops its result. Readers only
// ever see a fully built Snapshot.
type Document struct {
	path string
	env  *Environment
	log  *slog.Logger

	mu     sync.Mutex
	source Source
	cur    *Snapshot
	// fresh is false after Invalidate until the source text is confirmed.
	fresh bool
	hash  uint64
	// token identifies the scheduled worker. nil when none is scheduled.
	token   *struct{}
	version uint64
	// epoch changes on every publication and every source change. Inline
	// parses started under an older epoch are not published.
	epoch uint64

	wg sync.WaitGroup
}

func newDocument(env *Environment, path string, src Source) *Document {
	return &Document{
		path:   path,
		env:    env,
		log:    env.logger.With("path", path),
		source: src,
	}
}

// Path returns the path the document was opened with.
func (d *Document) Path() string { return d.path }

// CurrentSnapshot returns the last published snapshot without waiting,
// possibly stale. It fails with ErrNoSnapshot before the first publication.
func (d *Document) CurrentSnapshot() (*Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, d.path)
	}
	return d.cur, nil
}

// Snapshot returns an analysis of the current source text, parsing inline
// when the published one is missing or stale. A scheduled background worker
// is cancelled. A result computed while another publication or a source
// change happened is dropped and the call starts over.
//
// A parse failure is returned as a *syntax.ParseError and the previous
// snapshot stays published.
func (d *Document) Snapshot(ctx context.Context) (*Snapshot, error) {
	for {
		d.mu.Lock()
		d.token = nil
		if d.cur != nil && d.fresh {
			cur := d.cur
			d.mu.Unlock()
			return cur, nil
		}
		src, epoch := d.source, d.epoch
		d.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := src()
		if err != nil {
			return nil, fmt.Errorf("buildscope: read %s: %w", d.path, err)
		}

		d.mu.Lock()
		if d.epoch != epoch {
			d.mu.Unlock()
			continue
		}
		if d.matches(text) {
			d.fresh = true
			cur := d.cur
			d.mu.Unlock()
			d.log.Debug("content unchanged, keeping snapshot", "version", cur.Version)
			return cur, nil
		}
		d.mu.Unlock()

		tree, err := syntax.Parse(text)
		if err != nil {
			d.log.Warn("parse failed", "err", err)
			return nil, fmt.Errorf("buildscope: parse %s: %w", d.path, err)
		}

		d.mu.Lock()
		if d.epoch != epoch {
			d.mu.Unlock()
			d.log.Debug("discarding stale analysis")
			continue
		}
		d.token = nil
		s := d.publish(text, tree)
		d.mu.Unlock()
		return s, nil
	}
}

// StartAnalysis returns the published snapshot if there is one. Otherwise
// it schedules a background parse, replacing any scheduled one, and reports
// false.
func (d *Document) StartAnalysis() (*Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur != nil {
		return d.cur, true
	}
	d.schedule()
	return nil, false
}

// schedule starts a worker under a new token. d.mu must be held.
func (d *Document) schedule() {
	token := new(struct{})
	d.token = token
	src, epoch := d.source, d.epoch
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.work(token, epoch, src)
	}()
}

// stale reports whether a worker scheduled under token and epoch was
// overtaken. d.mu must be held.
func (d *Document) stale(token *struct{}, epoch uint64) bool {
	return d.token != token || d.epoch != epoch
}

func (d *Document) work(token *struct{}, epoch uint64, src Source) {
	text, err := src()
	if err != nil {
		d.log.Debug("background read failed", "err", err)
		return
	}

	d.mu.Lock()
	if d.stale(token, epoch) {
		d.mu.Unlock()
		return
	}
	if d.matches(text) {
		d.fresh = true
		d.token = nil
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	tree, err := syntax.Parse(text)
	if err != nil {
		d.log.Debug("background parse failed", "err", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stale(token, epoch) {
		d.log.Debug("discarding stale analysis")
		return
	}
	d.token = nil
	d.publish(text, tree)
}

// Update applies edits to the current text of the document and reparses.
// Edits are applied in order, each relative to the text the previous one
// produced. The current text is the published one, or the source text when
// SetText or Invalidate made the published snapshot stale.
//
// Edits that leave the text unchanged keep the published snapshot. A failed
// repair is returned wrapping syntax.ErrRepair or a *syntax.ParseError; the
// published snapshot is kept and no full reparse is attempted.
func (d *Document) Update(ctx context.Context, edits []syntax.Edit) (*Snapshot, error) {
	edits = coalesceEdits(edits)
	for {
		d.mu.Lock()
		cur, src, epoch := d.cur, d.source, d.epoch
		fresh := cur != nil && d.fresh
		d.mu.Unlock()
		if len(edits) == 0 {
			if fresh {
				return cur, nil
			}
			return d.Snapshot(ctx)
		}

		base := ""
		if fresh {
			base = cur.Text
		} else {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text, err := src()
			if err != nil {
				return nil, fmt.Errorf("buildscope: read %s: %w", d.path, err)
			}
			base = text
		}
		text, err := syntax.ApplyEdits(base, edits)
		if err != nil {
			return nil, fmt.Errorf("buildscope: update %s: %w", d.path, err)
		}

		d.mu.Lock()
		if d.epoch != epoch {
			d.mu.Unlock()
			continue
		}
		if d.matches(text) {
			d.token = nil
			d.fresh = true
			d.source = TextSource(text)
			kept := d.cur
			d.mu.Unlock()
			d.log.Debug("edit left content unchanged", "version", kept.Version)
			return kept, nil
		}
		d.mu.Unlock()

		var tree *syntax.Tree
		if fresh {
			tree, err = syntax.Repair(cur.Tree, edits)
		} else {
			tree, err = syntax.Parse(text)
		}
		if err != nil {
			d.log.Warn("repair failed", "err", err)
			return nil, fmt.Errorf("buildscope: update %s: %w", d.path, err)
		}

		d.mu.Lock()
		if d.epoch != epoch {
			d.mu.Unlock()
			d.log.Debug("discarding stale update")
			continue
		}
		d.token = nil
		d.source = TextSource(text)
		s := d.publish(text, tree)
		d.mu.Unlock()
		return s, nil
	}
}

// SetText replaces the source of the document with text and marks the
// published snapshot stale.
func (d *Document) SetText(text string) {
	d.setSource(TextSource(text))
}

func (d *Document) setSource(src Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = src
	d.fresh = false
	d.epoch++
}

// Invalidate marks the published snapshot stale without discarding it. The
// next Snapshot call reads the source again and reuses the snapshot if the
// text is unchanged.
func (d *Document) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fresh = false
	d.epoch++
}

// matches reports whether text is the text of the published snapshot.
// d.mu must be held.
func (d *Document) matches(text string) bool {
	return d.cur != nil && xxh3.HashString(text) == d.hash && text == d.cur.Text
}

// publish swaps in a new snapshot. d.mu must be held.
func (d *Document) publish(text string, tree *syntax.Tree) *Snapshot {
	ms := model.NewSnapshot(d.path, text, tree)
	d.version++
	s := &Snapshot{
		Snapshot: ms,
		Analyzer: model.NewAnalyzer(d.env, ms.Data, d.env.provider),
		Version:  d.version,
		env:      d.env,
	}
	d.cur = s
	d.epoch++
	d.hash = xxh3.HashString(text)
	d.fresh = true
	d.log.Debug("published snapshot", "version", s.Version)
	return s
}

// coalesceEdits merges an edit into its predecessor when it starts exactly
// where the predecessor's replacement text ends.
func coalesceEdits(edits []syntax.Edit) []syntax.Edit {
	var out []syntax.Edit
	for _, e := range edits {
		if e.Length == 0 && e.Text == "" {
			continue
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if e.Offset == last.Offset+len(last.Text) {
				last.Text += e.Text
				last.Length += e.Length
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
