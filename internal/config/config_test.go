package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/linker"
	"github.com/jward/agentmap/internal/scanner"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(1048576), cfg.MaxFileSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, linker.Keep, cfg.Policy())
}

func TestParse(t *testing.T) {
	t.Parallel()

	src := `
languages: [python, rust]
exclude: ["vendor/**", "*_test.go"]
max_file_size: 2048
cache:
  enabled: false
  max_entries: 10
middleware:
  logging: true
  log_level: debug
  metrics: true
output:
  format: yaml
  sidecar: true
  sidecar_suffix: .map
resolve:
  unresolved: flag
`
	cfg, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "rust"}, cfg.Languages)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.True(t, cfg.Middleware.Logging)
	assert.Equal(t, "debug", cfg.Middleware.LogLevel)
	assert.True(t, cfg.Output.Sidecar)
	assert.Equal(t, "src/a.py.map.yaml", cfg.SidecarPath("src/a.py"))
	assert.Equal(t, linker.Flag, cfg.Policy())
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"unknown key", "colour: blue\n"},
		{"unknown nested key", "cache:\n  size: 3\n"},
		{"malformed", "languages: [python\n"},
		{"wrong type", "max_file_size: big\n"},
		{"unknown language", "languages: [cobol]\n"},
		{"bad glob", "exclude: [\"[oops\"]\n"},
		{"negative size", "max_file_size: -1\n"},
		{"bad log level", "middleware:\n  log_level: loud\n"},
		{"bad format", "output:\n  format: xml\n"},
		{"bad policy", "resolve:\n  unresolved: drop\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.Config), "got %v", err)
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	t.Parallel()

	work := t.TempDir()
	home := t.TempDir()
	assert.Empty(t, Find(work, home))

	require.NoError(t, os.WriteFile(filepath.Join(home, "agentmap.yml"), []byte("max_file_size: 10\n"), 0o644))
	assert.Equal(t, filepath.Join(home, "agentmap.yml"), Find(work, home))

	require.NoError(t, os.WriteFile(filepath.Join(work, ".agentmap.yaml"), []byte("max_file_size: 20\n"), 0o644))
	p := Find(work, home)
	assert.Equal(t, filepath.Join(work, ".agentmap.yaml"), p)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cfg.MaxFileSize)
	assert.Equal(t, p, cfg.Path)
}

func TestLoad_ErrorCarriesPath(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "agentmap.yaml")
	require.NoError(t, os.WriteFile(p, []byte("nope: 1\n"), 0o644))
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), p)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.Is(err, errs.Config))
}

func TestScanConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Languages = []string{"python"}
	cfg.Exclude = []string{"build/**"}
	cfg.MaxFileSize = 99

	sc := cfg.ScanConfig()
	assert.Equal(t, int64(99), sc.MaxFileSize)
	assert.Equal(t, []string{"build/**"}, sc.ExcludePatterns)
	assert.Contains(t, sc.Extensions, ".py")
	assert.True(t, sc.UseGitignore)
	assert.Equal(t, scanner.Silent, sc.Progress)
}

func TestStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edit  func(*Config)
		names []string
	}{
		{"defaults", func(*Config) {}, []string{"cache"}},
		{"nothing", func(c *Config) { c.Cache.Enabled = false }, []string{}},
		{"all", func(c *Config) {
			c.Middleware.Logging = true
			c.Middleware.Metrics = true
		}, []string{"logging", "metrics", "cache"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.edit(cfg)
			stack, err := cfg.Stack(Deps{Registerer: prometheus.NewRegistry()})
			require.NoError(t, err)
			assert.Equal(t, tt.names, stack.Names())
		})
	}
}

func TestStack_Scripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tag.risor"), []byte(`set_property("tagged", true)`), 0o644))
	cfgPath := filepath.Join(dir, "agentmap.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("cache:\n  enabled: false\nmiddleware:\n  scripts: [tag.risor]\n"), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	stack, err := cfg.Stack(Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"script:tag.risor"}, stack.Names())

	cfg.Middleware.Scripts = []string{"missing.risor"}
	_, err = cfg.Stack(Deps{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Config))
}
