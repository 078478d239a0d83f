// Package config loads the optional agentmap YAML file and turns it into
// scanner settings and a middleware stack.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/linker"
	"github.com/jward/agentmap/internal/middleware"
	"github.com/jward/agentmap/internal/scanner"
	"github.com/jward/agentmap/internal/script"
	"github.com/jward/agentmap/internal/telemetry"
)

// FileNames are the config names searched for, in order.
var FileNames = []string{".agentmap.yaml", ".agentmap.yml", "agentmap.yaml", "agentmap.yml"}

const (
	DefaultMaxEntries    = 1000
	DefaultSidecarSuffix = ".agentmap"
)

type Config struct {
	Languages   []string         `yaml:"languages"`
	Exclude     []string         `yaml:"exclude"`
	MaxFileSize int64            `yaml:"max_file_size"`
	Cache       CacheConfig      `yaml:"cache"`
	Middleware  MiddlewareConfig `yaml:"middleware"`
	Output      OutputConfig     `yaml:"output"`
	Resolve     ResolveConfig    `yaml:"resolve"`

	// Path is the file the config was read from; empty for defaults.
	Path string `yaml:"-"`
}

type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

type MiddlewareConfig struct {
	Logging  bool   `yaml:"logging"`
	LogLevel string `yaml:"log_level"`
	Metrics  bool   `yaml:"metrics"`

	// Scripts are Risor files run at after_analyze, in order.
	Scripts []string `yaml:"scripts"`
}

type OutputConfig struct {
	Format        string `yaml:"format"`
	Sidecar       bool   `yaml:"sidecar"`
	SidecarSuffix string `yaml:"sidecar_suffix"`
}

type ResolveConfig struct {
	// Unresolved is "keep", "remove" or "flag".
	Unresolved string `yaml:"unresolved"`
}

// Default returns the settings used when no file is found.
func Default() *Config {
	return &Config{
		MaxFileSize: scanner.DefaultMaxFileSize,
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: DefaultMaxEntries,
		},
		Middleware: MiddlewareConfig{LogLevel: "info"},
		Output: OutputConfig{
			Format:        "json",
			SidecarSuffix: DefaultSidecarSuffix,
		},
		Resolve: ResolveConfig{Unresolved: "keep"},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.New(errs.Config, "", "parse", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.Config, path, "read", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Path == "" {
			e.Path = path
		}
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Find returns the first config file in dirs, or "" when none exists.
func Find(dirs ...string) string {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

// Discover loads the first config found in workDir, then the user's home
// directory. With no file it returns the defaults.
func Discover(workDir string) (*Config, error) {
	home, _ := os.UserHomeDir()
	p := Find(workDir, home)
	if p == "" {
		return Default(), nil
	}
	return Load(p)
}

// Validate checks every field that has a closed set of values.
func (c *Config) Validate() error {
	for _, name := range c.Languages {
		if _, ok := lang.Parse(name); !ok {
			return errs.Newf(errs.Config, c.Path, "unknown language %q", name)
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return errs.Newf(errs.Config, c.Path, "invalid exclude pattern %q", p)
		}
	}
	if c.MaxFileSize < 0 {
		return errs.Newf(errs.Config, c.Path, "max_file_size must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return errs.Newf(errs.Config, c.Path, "cache.max_entries must not be negative")
	}
	if _, err := telemetry.ParseLevel(c.Middleware.LogLevel); err != nil {
		return errs.New(errs.Config, c.Path, "middleware.log_level", err)
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "yaml":
	default:
		return errs.Newf(errs.Config, c.Path, "output.format must be json or yaml, got %q", c.Output.Format)
	}
	if _, err := linker.ParsePolicy(c.Resolve.Unresolved); err != nil {
		return errs.New(errs.Config, c.Path, "resolve.unresolved", err)
	}
	return nil
}

// ScanConfig maps the file settings onto scanner defaults.
func (c *Config) ScanConfig() scanner.Config {
	sc := scanner.DefaultConfig()
	sc.MaxFileSize = c.MaxFileSize
	sc.ExcludePatterns = append([]string(nil), c.Exclude...)
	for _, name := range c.Languages {
		l, _ := lang.Parse(name)
		sc.Extensions = append(sc.Extensions, lang.Extensions(l)...)
	}
	return sc
}

// Policy is the unresolved-reference policy for the linker.
func (c *Config) Policy() linker.Policy {
	p, _ := linker.ParsePolicy(c.Resolve.Unresolved)
	return p
}

// SidecarPath is where an analysis of source is written when sidecars are on.
func (c *Config) SidecarPath(source string) string {
	suffix := c.Output.SidecarSuffix
	if suffix == "" {
		suffix = DefaultSidecarSuffix
	}
	return source + suffix + "." + strings.ToLower(c.Output.Format)
}

// Deps are the collaborators the middleware stack may need.
type Deps struct {
	Logger *slog.Logger

	// Backend persists cached analyses. Nil falls back to an in-memory LRU
	// of Cache.MaxEntries.
	Backend middleware.Backend

	// Registerer receives scan metrics. Nil uses a private registry.
	Registerer prometheus.Registerer

	// Runtime runs middleware scripts. Nil builds one rooted at the config
	// file's directory.
	Runtime *script.Runtime
}

// Stack builds the middleware in fixed order: logging, metrics, cache, then
// scripts. Logging comes first so it also sees cache hits.
func (c *Config) Stack(d Deps) (*middleware.Stack, error) {
	stack := middleware.NewStack()

	if c.Middleware.Logging {
		lvl, err := telemetry.ParseLevel(c.Middleware.LogLevel)
		if err != nil {
			return nil, errs.New(errs.Config, c.Path, "middleware.log_level", err)
		}
		stack.Use(middleware.NewLogging(d.Logger, lvl))
	}
	if c.Middleware.Metrics {
		stack.Use(middleware.NewMetrics(d.Registerer))
	}
	if c.Cache.Enabled {
		backend := d.Backend
		if backend == nil {
			n := c.Cache.MaxEntries
			if n == 0 {
				n = DefaultMaxEntries
			}
			backend = middleware.NewMemoryBackend(n)
		}
		stack.Use(middleware.NewCache(backend))
	}

	if len(c.Middleware.Scripts) > 0 {
		rt := d.Runtime
		if rt == nil {
			rt = script.NewRuntime(script.WithDir(c.dir()), script.WithLogger(d.Logger))
		}
		for _, p := range c.Middleware.Scripts {
			m, err := middleware.NewScript(rt, p)
			if err != nil {
				return nil, fmt.Errorf("middleware script: %w", err)
			}
			stack.Use(m)
		}
	}
	return stack, nil
}

func (c *Config) dir() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}
