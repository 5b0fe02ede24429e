package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/buildscope/internal/store"
)

// Runtime embeds a Risor VM and provides tree-sitter host functions and
// catalog writes to catalog and extraction scripts.
type Runtime struct {
	ds         store.DataStore
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
	sources    *sourceStore
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log object.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime writing to ds and loading scripts from
// scriptsDir. ds may be nil, in which case the catalog functions are absent.
func NewRuntime(ds store.DataStore, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		ds:         ds,
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
		sources:    newSourceStore(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller. An int64 "source_id" extra
// attributes every catalog entry the script defines to that source.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script
// source. Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured fs.FS, or from disk
// relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// ExtractionScriptPath returns the path of a language's extraction script.
func ExtractionScriptPath(language string) string {
	return filepath.Join("extract", language+".risor")
}

// CatalogScriptPath returns the path of a named catalog script.
func CatalogScriptPath(name string) string {
	return filepath.Join("catalog", name+".risor")
}

func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse":       makeParseFn(r.sources),
		"parse_src":   makeParseSrcFn(r.sources),
		"node_text":   makeNodeTextFn(r.sources),
		"node_child":  makeNodeChildFn(),
		"query":       makeQueryFn(r.sources),
		"annotation":  makeAnnotationFn(r.sources),
		"annotations": makeAnnotationsFn(r.sources),
		"members":     makeMembersFn(r.sources),
		"package_of":  makePackageOfFn(r.sources),
		"log":         mustProxy(&logObject{log: r.logger, script: label}),
	}

	if r.ds != nil {
		var sourceID *int64
		if v, ok := extra["source_id"].(int64); ok {
			sourceID = &v
		}
		// Risor cannot construct Go struct pointers, so these accept maps
		// and build the catalog rows Go-side.
		globals["define_type"] = makeDefineTypeFn(r.ds, sourceID)
		globals["define_field"] = makeDefineFieldFn(r.ds)
		globals["define_task"] = makeDefineTaskFn(r.ds, sourceID)
		globals["define_parameter"] = makeDefineParameterFn(r.ds)
		globals["define_literal"] = makeDefineLiteralFn(r.ds, sourceID)
		globals["task_id"] = makeTaskIDFn(r.ds)
		globals["type_id"] = makeTypeIDFn(r.ds)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log    *slog.Logger
	script string
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg, "script", l.script)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg, "script", l.script)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg, "script", l.script)
}
