package buildscope

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/buildscope/internal/registry"
	"github.com/jward/buildscope/internal/runtime"
	"github.com/jward/buildscope/internal/store"
	"github.com/jward/buildscope/scripts"
)

// Catalog is the persistent task catalog: a SQLite database filled from
// YAML catalog files, Risor catalog scripts and Java task sources.
type Catalog struct {
	store      *store.Store
	provider   *store.Provider
	runtime    *runtime.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	logger     *slog.Logger
	workers    int

	// onChange is called after every write, dropping cached answers of the
	// environment serving this catalog.
	onChange func()
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithScriptsFS loads Risor scripts from fsys instead of the scripts
// directory.
func WithScriptsFS(fsys fs.FS) CatalogOption {
	return func(c *Catalog) {
		c.scriptsFS = fsys
	}
}

// WithCatalogLogger sets the logger of the catalog and its scripts.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = l
	}
}

// WithWorkers bounds the number of Java sources extracted concurrently.
// Values below one select the number of CPUs.
func WithWorkers(n int) CatalogOption {
	return func(c *Catalog) {
		c.workers = n
	}
}

// OpenCatalog opens or creates the catalog database at dbPath.
// Script loading priority:
//  1. If WithScriptsFS is set, use the provided fs.FS
//  2. Otherwise, if scriptsDir is non-empty, use it on disk
//  3. Otherwise, use the embedded scripts
func OpenCatalog(dbPath, scriptsDir string, opts ...CatalogOption) (*Catalog, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("buildscope: open catalog: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("buildscope: migrate catalog: %w", err)
	}

	c := &Catalog{
		store:      s,
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scriptsFS == nil && scriptsDir == "" {
		c.scriptsFS = scripts.FS
	}
	c.provider = store.NewProvider(s, c.logger)
	c.runtime = c.newRuntime(s)
	return c, nil
}

// Close releases the catalog database.
func (c *Catalog) Close() error {
	return c.store.Close()
}

// Store returns the underlying store for direct access.
func (c *Catalog) Store() *store.Store {
	return c.store
}

// Provider serves the catalog contents to the analyzer.
func (c *Catalog) Provider() registry.Provider {
	return c.provider
}

func (c *Catalog) newRuntime(ds store.DataStore) *runtime.Runtime {
	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(c.logger)}
	if c.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(c.scriptsFS))
	}
	return runtime.NewRuntime(ds, c.scriptsDir, rtOpts...)
}

func (c *Catalog) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// ImportFile imports a YAML catalog file. Entries declared by a previous
// import of the same file are removed first. An unchanged file is skipped.
func (c *Catalog) ImportFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("buildscope: import %s: %w", path, err)
	}
	hash := store.ContentHash(content)
	if same, err := c.store.Unchanged(path, hash); err != nil {
		return fmt.Errorf("buildscope: import %s: %w", path, err)
	} else if same {
		return nil
	}
	cat, err := registry.ParseCatalog(content)
	if err != nil {
		return fmt.Errorf("buildscope: import %s: %w", path, err)
	}

	sourceID, err := c.resetSource(path, "yaml", hash)
	if err != nil {
		return fmt.Errorf("buildscope: import %s: %w", path, err)
	}
	if err := c.store.ImportCatalog(cat, &sourceID); err != nil {
		return fmt.Errorf("buildscope: import %s: %w", path, err)
	}
	_ = c.store.MarkIndexed(time.Now())
	c.changed()
	c.logger.Info("imported catalog", "path", path, "tasks", len(cat.Tasks), "types", len(cat.Types))
	return nil
}

// RunScript runs the catalog script catalog/<name>.risor against the store.
func (c *Catalog) RunScript(ctx context.Context, name string) error {
	defer c.changed()
	if err := c.runtime.RunScript(ctx, runtime.CatalogScriptPath(name), nil); err != nil {
		return fmt.Errorf("buildscope: catalog script %s: %w", name, err)
	}
	c.storeScriptsHash()
	return nil
}

// resetSource removes the rows a source declared and records its new hash.
func (c *Catalog) resetSource(path, lang, hash string) (int64, error) {
	existing, err := c.store.SourceByPath(path)
	if err != nil {
		return 0, fmt.Errorf("lookup source: %w", err)
	}
	if existing != nil {
		if err := c.store.DeleteSourceData(existing.ID); err != nil {
			return 0, fmt.Errorf("delete old data: %w", err)
		}
	}
	id, err := c.store.UpsertSource(&store.Source{
		Path:        path,
		Language:    lang,
		Hash:        hash,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("record source: %w", err)
	}
	return id, nil
}

// scanItem holds everything an extraction worker needs.
type scanItem struct {
	path     string
	lang     string
	sourceID int64
	batch    *store.BatchedStore
}

// ScanFiles extracts task documentation from the given Java sources in
// three phases:
//
//	Phase A (serial):   hash check, delete old rows, record the source.
//	Phase B (parallel): parse and extract, each worker into its own batch.
//	Phase C (serial):   commit the batches.
//
// Unchanged and unsupported files are skipped. Errors on individual files
// are collected; processing continues.
func (c *Catalog) ScanFiles(ctx context.Context, paths []string) error {
	defer c.changed()

	// ---- Phase A ----
	var items []scanItem
	for _, path := range paths {
		item, skip, err := c.prepareFile(path)
		if err != nil {
			return fmt.Errorf("buildscope: prepare %s: %w", path, err)
		}
		if !skip {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil
	}

	// ---- Phase B ----
	workers := c.workers
	if workers < 1 {
		workers = goruntime.NumCPU()
	}
	errs := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			errs[i] = c.extractFile(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("buildscope: scan: %w", err)
	}

	// ---- Phase C ----
	var failed []error
	for i, item := range items {
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("extract %s: %w", item.path, errs[i]))
			continue
		}
		if err := c.store.CommitBatch(item.batch); err != nil {
			failed = append(failed, fmt.Errorf("commit %s: %w", item.path, err))
		}
	}
	_ = c.store.MarkIndexed(time.Now())
	c.storeScriptsHash()
	c.logger.Info("scanned sources", "files", len(items), "failed", len(failed))

	if len(failed) > 0 {
		return fmt.Errorf("buildscope: scan had %d error(s): %w", len(failed), failed[0])
	}
	return nil
}

// prepareFile does phase A work for one file. skip is true for unchanged or
// unsupported files.
func (c *Catalog) prepareFile(path string) (scanItem, bool, error) {
	lang, ok := runtime.LanguageForFile(path)
	if !ok {
		return scanItem{}, true, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return scanItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)
	if same, err := c.store.Unchanged(path, hash); err != nil {
		return scanItem{}, false, err
	} else if same {
		return scanItem{}, true, nil
	}
	sourceID, err := c.resetSource(path, lang, hash)
	if err != nil {
		return scanItem{}, false, err
	}
	return scanItem{
		path:     path,
		lang:     lang,
		sourceID: sourceID,
		batch:    store.NewBatchedStore(c.store),
	}, false, nil
}

// extractFile runs the extraction script for one file. Each call creates
// its own Runtime so tree-sitter parsing is goroutine-safe.
func (c *Catalog) extractFile(ctx context.Context, item scanItem) error {
	rt := c.newRuntime(item.batch)
	extras := map[string]any{
		"file_path": item.path,
		"source_id": item.sourceID,
	}
	if err := rt.RunScript(ctx, runtime.ExtractionScriptPath(item.lang), extras); err != nil {
		return fmt.Errorf("extraction script: %w", err)
	}
	return nil
}

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"target":       true,
}

// ScanDirectory scans every supported source under root. Inside a git
// repository git ls-files is used so ignored files are skipped; otherwise
// the file system is walked, skipping hidden and build output directories.
func (c *Catalog) ScanDirectory(ctx context.Context, root string) error {
	paths, err := gitListFiles(root)
	if err != nil {
		paths, err = walkListFiles(root)
		if err != nil {
			return fmt.Errorf("buildscope: scan %s: %w", root, err)
		}
	}
	return c.ScanFiles(ctx, paths)
}

func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		abs := filepath.Join(root, line)
		if _, ok := runtime.LanguageForFile(abs); ok {
			paths = append(paths, abs)
		}
	}
	return paths, nil
}

func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := runtime.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// scriptsHash hashes every Risor script by path and content.
func (c *Catalog) scriptsHash() string {
	var paths []string
	collect := func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, ".risor") {
			paths = append(paths, path)
		}
		return nil
	}
	if c.scriptsFS != nil {
		fs.WalkDir(c.scriptsFS, ".", collect)
	} else {
		fs.WalkDir(os.DirFS(c.scriptsDir), ".", collect)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		src, err := c.runtime.LoadScript(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ScriptsChanged reports whether the scripts differ from the ones that
// filled the database. It is true when no hash was stored yet. When true,
// the caller should delete the database and scan again.
func (c *Catalog) ScriptsChanged() bool {
	stored, err := c.store.GetMetadata("scripts_hash")
	if err != nil || stored == "" {
		return true
	}
	return stored != c.scriptsHash()
}

func (c *Catalog) storeScriptsHash() {
	_ = c.store.SetMetadata("scripts_hash", c.scriptsHash())
}
