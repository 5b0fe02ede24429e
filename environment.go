package buildscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/buildscope/internal/assist"
	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/registry"
)

// ErrNotOpen is returned for a path that has no open document.
var ErrNotOpen = errors.New("buildscope: document not open")

// Environment is a set of open build scripts sharing one task catalog. A
// script including another one resolves it through the environment.
type Environment struct {
	logger      *slog.Logger
	paths       assist.PathLister
	userParams  assist.UserParameters
	parallelism int
	registries  []registry.Provider
	catalogPath string
	catalogOpts []CatalogOption

	catalog  *Catalog
	provider *registry.Caching

	mu   sync.RWMutex
	docs map[string]*Document
}

var _ model.Environment = (*Environment)(nil)

// Option configures an Environment.
type Option func(*Environment)

// WithRegistry adds a documentation provider consulted after the builtin
// tasks and the catalog.
func WithRegistry(p registry.Provider) Option {
	return func(e *Environment) {
		e.registries = append(e.registries, p)
	}
}

// WithCatalog serves the SQLite catalog at dbPath.
func WithCatalog(dbPath string, opts ...CatalogOption) Option {
	return func(e *Environment) {
		e.catalogPath = dbPath
		e.catalogOpts = opts
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Environment) {
		e.logger = l
	}
}

// WithPathLister sets the directory lister used for path proposals. The
// default lists the local file system.
func WithPathLister(p assist.PathLister) Option {
	return func(e *Environment) {
		e.paths = p
	}
}

// WithUserParameters sets the user parameters offered as proposals.
func WithUserParameters(p assist.UserParameters) Option {
	return func(e *Environment) {
		e.userParams = p
	}
}

// WithParallelism bounds the number of documents OpenAll parses at once.
// Values below one select the number of CPUs.
func WithParallelism(n int) Option {
	return func(e *Environment) {
		e.parallelism = n
	}
}

// New creates an Environment.
func New(opts ...Option) (*Environment, error) {
	e := &Environment{
		logger: slog.Default(),
		paths:  assist.OSPathLister{},
		docs:   make(map[string]*Document),
	}
	for _, opt := range opts {
		opt(e)
	}

	chain := registry.Chain{registry.Builtin()}
	if e.catalogPath != "" {
		copts := append([]CatalogOption{WithCatalogLogger(e.logger)}, e.catalogOpts...)
		c, err := OpenCatalog(e.catalogPath, "", copts...)
		if err != nil {
			return nil, err
		}
		e.catalog = c
		chain = append(chain, c.Provider())
	}
	chain = append(chain, e.registries...)
	e.provider = registry.NewCaching(chain)
	if e.catalog != nil {
		e.catalog.onChange = e.provider.Reset
	}
	return e, nil
}

// Close closes the catalog. Open documents stay usable but background
// workers are waited for.
func (e *Environment) Close() error {
	e.mu.RLock()
	docs := make([]*Document, 0, len(e.docs))
	for _, d := range e.docs {
		docs = append(docs, d)
	}
	e.mu.RUnlock()
	for _, d := range docs {
		d.wg.Wait()
	}
	if e.catalog != nil {
		return e.catalog.Close()
	}
	return nil
}

// Catalog returns the catalog configured with WithCatalog, or nil.
func (e *Environment) Catalog() *Catalog {
	return e.catalog
}

// Provider returns the documentation provider of the environment.
func (e *Environment) Provider() registry.Provider {
	return e.provider
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Open opens the document at path, read from disk, and starts its
// background analysis. Opening an open path returns the open document.
func (e *Environment) Open(path string) *Document {
	path = cleanPath(path)
	d := e.open(path, FileSource(path))
	d.StartAnalysis()
	return d
}

// OpenText opens a document whose content is text rather than the file at
// path. An open document at path gets text as its new content.
func (e *Environment) OpenText(path, text string) *Document {
	path = cleanPath(path)
	d := e.open(path, TextSource(text))
	d.SetText(text)
	d.StartAnalysis()
	return d
}

func (e *Environment) open(path string, src Source) *Document {
	e.mu.Lock()
	d, ok := e.docs[path]
	if !ok {
		d = newDocument(e, path, src)
		e.docs[path] = d
	}
	e.mu.Unlock()
	if !ok {
		e.logger.Debug("opened document", "path", path)
	}
	return d
}

// OpenAll opens the documents at paths and analyzes them concurrently.
// Documents that fail to parse stay open; their errors are joined.
func (e *Environment) OpenAll(ctx context.Context, paths []string) error {
	limit := e.parallelism
	if limit < 1 {
		limit = goruntime.NumCPU()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range paths {
		path := cleanPath(p)
		d := e.open(path, FileSource(path))
		g.Go(func() error {
			if _, err := d.Snapshot(gctx); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("buildscope: open documents: %w", err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("buildscope: %d document(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Document returns the open document at path.
func (e *Environment) Document(path string) (*Document, error) {
	path = cleanPath(path)
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	return d, nil
}

// CloseDocument forgets the document at path.
func (e *Environment) CloseDocument(path string) error {
	path = cleanPath(path)
	e.mu.Lock()
	d, ok := e.docs[path]
	delete(e.docs, path)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, path)
	}
	d.mu.Lock()
	d.token = nil
	d.mu.Unlock()
	return nil
}

// Analyze returns an up to date snapshot of the open document at path.
func (e *Environment) Analyze(ctx context.Context, path string) (*Snapshot, error) {
	d, err := e.Document(path)
	if err != nil {
		return nil, err
	}
	return d.Snapshot(ctx)
}

// StartAnalysis implements model.Environment. A document that is not open
// yields no information.
func (e *Environment) StartAnalysis(path string) (*model.Snapshot, bool) {
	e.mu.RLock()
	d, ok := e.docs[cleanPath(path)]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s, ok := d.StartAnalysis()
	if !ok {
		return nil, false
	}
	return s.Snapshot, true
}

// TrackedPaths implements model.Environment.
func (e *Environment) TrackedPaths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.docs))
	for p := range e.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Snapshots implements model.Environment.
func (e *Environment) Snapshots() []*model.Snapshot {
	var out []*model.Snapshot
	for _, p := range e.TrackedPaths() {
		e.mu.RLock()
		d := e.docs[p]
		e.mu.RUnlock()
		if d == nil {
			continue
		}
		if s, err := d.CurrentSnapshot(); err == nil {
			out = append(out, s.Snapshot)
		}
	}
	return out
}
