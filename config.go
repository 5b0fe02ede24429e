package buildscope

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/buildscope/internal/assist"
)

// ConfigFileName is the name of the per-directory configuration file.
const ConfigFileName = ".buildscope.yaml"

// Config is the content of a .buildscope.yaml file.
type Config struct {
	// Catalog is the SQLite catalog path, relative to the config directory.
	Catalog        string                `yaml:"catalog"`
	UserParameters assist.UserParameters `yaml:"user_parameters"`
	Parallelism    int                   `yaml:"parallelism"`
	// Extensions select the build scripts of a directory.
	Extensions []string `yaml:"extensions"`

	dir string
}

// DefaultConfig is used when a directory has no configuration file.
func DefaultConfig() *Config {
	return &Config{Extensions: []string{".build"}}
}

// LoadConfig reads dir/.buildscope.yaml. A missing file yields the default
// configuration.
func LoadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.dir = dir
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buildscope: read config: %w", err)
	}
	return parseConfig(dir, data)
}

// LoadConfigFile reads the configuration file at path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildscope: read config: %w", err)
	}
	return parseConfig(filepath.Dir(path), data)
}

func parseConfig(dir string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("buildscope: parse config: %w", err)
	}
	cfg.dir = dir
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultConfig().Extensions
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			cfg.Extensions[i] = "." + ext
		}
	}
	return cfg, nil
}

// CatalogPath returns the catalog path resolved against the config
// directory, or "" when none is configured.
func (c *Config) CatalogPath() string {
	if c.Catalog == "" || filepath.IsAbs(c.Catalog) {
		return c.Catalog
	}
	return filepath.Join(c.dir, c.Catalog)
}

// IsScript reports whether path has one of the configured extensions.
func (c *Config) IsScript(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range c.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Scripts lists the build scripts directly inside dir.
func (c *Config) Scripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("buildscope: list scripts: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && c.IsScript(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// Options turns the configuration into Environment options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithUserParameters(c.UserParameters),
		WithParallelism(c.Parallelism),
	}
	if p := c.CatalogPath(); p != "" {
		opts = append(opts, WithCatalog(p))
	}
	return opts
}
