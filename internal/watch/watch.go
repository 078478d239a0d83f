// Package watch turns filesystem notifications under a project root into
// debounced batches of changed source paths, ready for an incremental scan.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/telemetry"
)

// DefaultDebounce is how long the watcher waits for quiet before flushing.
const DefaultDebounce = 200 * time.Millisecond

var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
}

// Op is the net effect on a path within one batch.
type Op int

const (
	Write Op = iota
	Create
	Remove
)

func (op Op) String() string {
	switch op {
	case Create:
		return "create"
	case Remove:
		return "remove"
	default:
		return "write"
	}
}

// Change is one path in a batch. Rel is the root-relative slash path, the
// same key the scanner uses.
type Change struct {
	Path string
	Rel  string
	Op   Op
}

// Handler receives each batch, sorted by Rel. A returned error is logged and
// watching continues.
type Handler func(ctx context.Context, changes []Change) error

// Watcher watches a directory tree.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	exclude  []string
	logger   *slog.Logger

	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExclude drops paths matching any doublestar pattern.
func WithExclude(patterns ...string) Option {
	return func(w *Watcher) {
		w.exclude = append(w.exclude, patterns...)
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = telemetry.OrDiscard(l)
	}
}

// New starts watching root and every directory below it. Events arriving
// before Run are held until Run reads them.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.New(errs.Io, root, "watch", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errs.New(errs.Io, root, "watch", err)
	}
	if !info.IsDir() {
		return nil, errs.Newf(errs.Io, root, "watch root is not a directory")
	}
	w := &Watcher{
		root:     abs,
		debounce: DefaultDebounce,
		logger:   telemetry.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range w.exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, errs.Newf(errs.Config, "", "invalid exclude pattern %q", p)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.New(errs.Io, root, "watch", err)
	}
	w.fsw = fsw
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops the underlying notifier. Run calls it on return.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// Run delivers batches to fn until ctx is canceled. Pending changes are
// dropped on cancellation.
func (w *Watcher) Run(ctx context.Context, fn Handler) error {
	defer w.Close()

	pending := make(map[string]Change)
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			c, ok := w.change(ev)
			if !ok {
				continue
			}
			pending[c.Rel] = merge(pending[c.Rel], c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timerC = nil
			batch := flush(pending)
			pending = make(map[string]Change)
			w.logger.Debug("changes detected", "files", len(batch))
			if err := fn(ctx, batch); err != nil {
				w.logger.Warn("change handler failed", "files", len(batch), "error", err)
			}
		}
	}
}

// change maps an event to a Change, registering new directories on the way.
func (w *Watcher) change(ev fsnotify.Event) (Change, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Change{}, false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return Change{}, false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch directory failed", "path", rel, "error", err)
			}
			return Change{}, false
		}
	}
	if _, ok := lang.ForExtension(strings.ToLower(filepath.Ext(rel))); !ok {
		return Change{}, false
	}

	op := Write
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = Remove
	case ev.Has(fsnotify.Create):
		op = Create
	case ev.Has(fsnotify.Write):
		op = Write
	default:
		return Change{}, false
	}
	return Change{Path: ev.Name, Rel: rel, Op: op}, true
}

// merge folds next into prev. A create followed by writes stays a create;
// the last removal or recreation wins.
func merge(prev, next Change) Change {
	if prev.Rel == "" {
		return next
	}
	if prev.Op == Create && next.Op == Write {
		return prev
	}
	return next
}

func flush(pending map[string]Change) []Change {
	out := make([]Change, 0, len(pending))
	for _, c := range pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

func (w *Watcher) ignored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if skipDirs[part] || strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, rerr := filepath.Rel(w.root, path)
			if rerr == nil && w.ignored(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			return errs.New(errs.Io, path, "watch", err)
		}
		return nil
	})
}
