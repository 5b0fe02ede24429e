package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/buildscope"
)

var (
	flagForce      bool
	flagScriptsDir string
	flagWorkers    int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the task documentation catalog",
	Long:  "Fill the SQLite catalog that documents tasks, parameters and types for the analysis commands.",
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load Risor scripts from disk path instead of embedded")

	catalogScanCmd.Flags().BoolVar(&flagForce, "force", false, "delete the catalog and scan from scratch")
	catalogScanCmd.Flags().IntVar(&flagWorkers, "workers", 0, "concurrent extractions (default: number of CPUs)")

	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogScanCmd)
	catalogCmd.AddCommand(catalogRunCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import YAML catalog files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCatalogImport,
}

var catalogScanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Extract task documentation from Java sources",
	Long:  "Parses Java task factories with tree-sitter and records their annotations in the catalog. Unchanged sources are skipped.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogScan,
}

var catalogRunCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a Risor catalog script",
	Long:  "Runs scripts/catalog/<script>.risor against the catalog.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogRun,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count the catalog entries",
	Args:  cobra.NoArgs,
	RunE:  runCatalogStats,
}

// openCatalog opens the catalog for dir, creating it when missing.
func openCatalog(dir string) (*buildscope.Catalog, string, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, "", err
	}
	dbPath := resolveCatalogPath(cfg, findRepoRoot(dir))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("removing catalog for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared catalog: %s\n", dbPath)
	}

	opts := []buildscope.CatalogOption{
		buildscope.WithCatalogLogger(newLogger()),
		buildscope.WithWorkers(flagWorkers),
	}
	c, err := buildscope.OpenCatalog(dbPath, flagScriptsDir, opts...)
	if err != nil {
		return nil, "", err
	}
	return c, dbPath, nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	c, dbPath, err := openCatalog(cwd)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	for _, arg := range args {
		path, err := resolveFilePath(arg)
		if err != nil {
			return err
		}
		if err := c.ImportFile(path); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "Imported %d file(s) in %s\n", len(args), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Catalog: %s\n", dbPath)
	return nil
}

func runCatalogScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	c, dbPath, err := openCatalog(targetDir)
	if err != nil {
		return err
	}
	defer c.Close()

	if !flagForce && c.ScriptsChanged() {
		if st, err := c.Store().Stats(); err == nil && st.Sources > 0 {
			fmt.Fprintln(os.Stderr, "Extraction scripts changed since the last scan; rerun with --force to rescan unchanged sources")
		}
	}

	if err := c.ScanDirectory(context.Background(), targetDir); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Scanned %s in %s\n", targetDir, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Catalog: %s\n", dbPath)
	return nil
}

func runCatalogRun(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	c, dbPath, err := openCatalog(cwd)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	if err := c.RunScript(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Ran %s in %s\n", args[0], time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Catalog: %s\n", dbPath)
	return nil
}

func runCatalogStats(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError(cmd, "stats", fmt.Errorf("getting cwd: %w", err))
	}
	c, _, err := openCatalog(cwd)
	if err != nil {
		return outputError(cmd, "stats", err)
	}
	defer c.Close()

	st, err := c.Store().Stats()
	if err != nil {
		return outputError(cmd, "stats", err)
	}
	return outputResult(cmd, CLIResult{Command: "stats", Results: CLICatalogStats{
		Sources:    st.Sources,
		Types:      st.Types,
		Tasks:      st.Tasks,
		Parameters: st.Parameters,
		Literals:   st.Literals,
	}})
}

// resolveTargetDir returns the absolute path of the directory to scan.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
