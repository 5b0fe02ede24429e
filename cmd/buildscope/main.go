package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/buildscope"
)

var (
	flagCatalog string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "buildscope",
	Short:         "Semantic analysis of build scripts",
	Long:          "Buildscope analyzes build scripts and answers completion, hover, outline and type queries. Task documentation comes from a SQLite catalog filled from YAML files, Risor scripts and Java task sources.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCatalog, "catalog", "", "catalog database path (default: .buildscope/catalog.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "configuration file (default: .buildscope.yaml next to the script)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log analysis details to stderr")

	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(hoverCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(catalogCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// defaultCatalogPath is where the catalog lives when neither --catalog nor
// the configuration names one.
func defaultCatalogPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".buildscope", "catalog.db")
}

// resolveCatalogPath returns the catalog from the --catalog flag, the
// configuration or the default, in that order.
func resolveCatalogPath(cfg *buildscope.Config, repoRoot string) string {
	if flagCatalog != "" {
		if filepath.IsAbs(flagCatalog) {
			return flagCatalog
		}
		return filepath.Join(repoRoot, flagCatalog)
	}
	if p := cfg.CatalogPath(); p != "" {
		return p
	}
	return defaultCatalogPath(repoRoot)
}

// loadConfig reads --config or the .buildscope.yaml of dir.
func loadConfig(dir string) (*buildscope.Config, error) {
	if flagConfig != "" {
		return buildscope.LoadConfigFile(flagConfig)
	}
	return buildscope.LoadConfig(dir)
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// workspace is an environment with every script of a directory open.
type workspace struct {
	env  *buildscope.Environment
	snap *buildscope.Snapshot
}

func (w *workspace) Close() error {
	return w.env.Close()
}

// openWorkspace opens the scripts next to file and analyzes file. The
// catalog is only used when it already exists.
func openWorkspace(ctx context.Context, file string) (*workspace, error) {
	path, err := resolveFilePath(file)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}

	log := newLogger()
	opts := append(cfg.Options(), buildscope.WithLogger(log))
	db := resolveCatalogPath(cfg, findRepoRoot(dir))
	switch {
	case fileExists(db):
		opts = append(opts, buildscope.WithCatalog(db))
	case flagCatalog != "":
		return nil, fmt.Errorf("catalog not found: %s (run 'buildscope catalog scan' first)", db)
	default:
		opts = append(opts, buildscope.WithCatalog(""))
	}

	env, err := buildscope.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating environment: %w", err)
	}

	paths, err := cfg.Scripts(dir)
	if err != nil {
		env.Close()
		return nil, err
	}
	if !containsPath(paths, path) {
		paths = append(paths, path)
	}
	if err := env.OpenAll(ctx, paths); err != nil {
		log.Warn("some scripts failed to parse", "err", err)
	}

	snap, err := env.Analyze(ctx, path)
	if err != nil {
		env.Close()
		return nil, err
	}
	return &workspace{env: env, snap: snap}, nil
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
