package agentmap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/watch"
)

func TestEngine_Watch(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"models/user.py": "class User:\n    pass\n",
	})
	e := newTestEngine(t, "", WithIncremental(true))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)

	batches := make(chan *ProjectResolution, 8)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, root, func(_ *ScanResult, res *ProjectResolution) {
			batches <- res
		}, watch.WithDebounce(50*time.Millisecond))
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// The watcher registers directories before Run; give it a moment.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "svc.py"),
		[]byte("from models.user import User\ndef f(): return User()\n"), 0o644))

	var res *ProjectResolution
	require.Eventually(t, func() bool {
		select {
		case res = <-batches:
		default:
		}
		return res != nil && res.ResolvedCount() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	svc := analysisFor(t, e.Analyses(), "svc.py")
	assert.Equal(t, "svc.py", svc.Path)

	require.NoError(t, os.Remove(filepath.Join(root, "svc.py")))
	require.Eventually(t, func() bool {
		for _, a := range e.Analyses() {
			if a.Path == "svc.py" {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)
}
