package agentmap

import (
	"context"
	"os"

	"github.com/jward/agentmap/internal/watch"
)

// WatchFunc observes each batch handled by Watch.
type WatchFunc func(scan *ScanResult, res *ProjectResolution)

// Watch keeps the project under root current until ctx is canceled: each
// debounced batch of changes is rescanned incrementally, removed files are
// forgotten and the project is resolved again. fn may be nil.
func (e *Engine) Watch(ctx context.Context, root string, fn WatchFunc, opts ...watch.Option) error {
	base := []watch.Option{watch.WithLogger(e.logger), watch.WithExclude(e.cfg.Exclude...)}
	w, err := watch.New(root, append(base, opts...)...)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(ctx context.Context, changes []watch.Change) error {
		var removed, changed []string
		for _, c := range changes {
			if c.Op == watch.Remove {
				if _, err := os.Stat(c.Path); err != nil {
					removed = append(removed, c.Rel)
					continue
				}
			}
			changed = append(changed, c.Path)
		}
		if err := e.Forget(removed...); err != nil {
			return err
		}

		scan := &ScanResult{}
		if len(changed) > 0 {
			sc := e.scanConfig()
			sc.BaseDir = root
			sc.Incremental = true
			res, err := e.scan(ctx, sc, changed...)
			if err != nil {
				return err
			}
			scan = res
		}
		res, err := e.Resolve(ctx)
		if err != nil {
			return err
		}
		if fn != nil {
			fn(scan, res)
		}
		return nil
	})
}
