package script

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
)

// Runtime evaluates Risor scripts with host globals. Scripts imported from a
// script are resolved against an fs.FS or a directory on disk.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	logger     *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts and their imports from fsys instead of disk.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithDir sets the directory relative script paths and imports resolve
// against.
func WithDir(dir string) Option {
	return func(r *Runtime) {
		r.scriptsDir = dir
	}
}

// WithLogger sets the logger behind the log global.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime creates a Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a script with the standard globals plus
// extra.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extra map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extra)
}

// RunSource executes Risor source with the standard globals plus extra.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) error {
	return r.eval(ctx, source, "<inline>", extra)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extra map[string]any) error {
	globals := r.buildGlobals(label, extra)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns nil when neither an fs.FS nor a directory is set.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: names,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: names,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file. With an fs.FS configured the path is
// relative to its root; otherwise relative paths resolve against the
// script directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	full := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		full = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("loading script %s: %w", full, err)
	}
	return string(data), nil
}

func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"log": mustProxy(&logObject{logger: r.logger.With("script", label)}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("script: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error to scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
