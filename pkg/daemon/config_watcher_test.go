package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadRecorder struct {
	mu    sync.Mutex
	files []string
}

func (r *reloadRecorder) record(file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
}

func (r *reloadRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

func startWatcher(t *testing.T, files []string, rec *reloadRecorder) {
	t.Helper()
	w, err := NewConfigWatcher(files, 50*time.Millisecond, rec.record, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "config-watcher", w.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestConfigWatcherDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wastenet.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0644))

	rec := &reloadRecorder{}
	startWatcher(t, []string{path}, rec)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("name: b\n"), 0644))
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{path}, rec.snapshot())
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wastenet.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0644))

	rec := &reloadRecorder{}
	startWatcher(t, []string{path}, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestConfigWatcherFollowsSymlink(t *testing.T) {
	targetDir := t.TempDir()
	target := filepath.Join(targetDir, "real.yml")
	require.NoError(t, os.WriteFile(target, []byte("name: a\n"), 0644))

	linkDir := t.TempDir()
	link := filepath.Join(linkDir, "wastenet.yml")
	require.NoError(t, os.Symlink(target, link))

	rec := &reloadRecorder{}
	startWatcher(t, []string{link}, rec)

	require.NoError(t, os.WriteFile(target, []byte("name: b\n"), 0644))
	assert.Eventually(t, func() bool {
		files := rec.snapshot()
		return len(files) > 0 && files[0] == link
	}, 2*time.Second, 10*time.Millisecond)
}
