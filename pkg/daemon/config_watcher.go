package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher watches wastenet config files and calls onReload once a
// burst of writes to any of them settles.
type ConfigWatcher struct {
	watcher      *fsnotify.Watcher
	debounce     time.Duration
	logger       *logrus.Entry
	onReload     func(file string)
	files        map[string]bool   // cleaned paths we care about
	targetToLink map[string]string // symlink target -> config path

	mu      sync.Mutex
	timer   *time.Timer
	pending string
}

// NewConfigWatcher watches the directories holding files. Directories are
// watched instead of the files so that editors which replace files by
// rename are still observed. fsnotify doesn't follow symlinks, so the
// directory of every symlink target is watched as well.
func NewConfigWatcher(files []string, debounce time.Duration, onReload func(string), logger *logrus.Entry) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	w := &ConfigWatcher{
		watcher:      watcher,
		debounce:     debounce,
		logger:       logger,
		onReload:     onReload,
		files:        make(map[string]bool),
		targetToLink: make(map[string]string),
	}

	watchedDirs := make(map[string]bool)
	addDir := func(dir string) error {
		if watchedDirs[dir] {
			return nil
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
		watchedDirs[dir] = true
		return nil
	}

	for _, f := range files {
		path := filepath.Clean(f)
		w.files[path] = true
		if err := addDir(filepath.Dir(path)); err != nil {
			watcher.Close()
			return nil, err
		}

		info, err := os.Lstat(path)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			logger.WithError(err).Warnf("Failed to resolve symlink %s", path)
			continue
		}
		w.targetToLink[target] = path
		if err := addDir(filepath.Dir(target)); err != nil {
			logger.WithError(err).Warnf("Failed to watch symlink target dir %s", filepath.Dir(target))
		} else {
			logger.Debugf("Watching symlink target directory: %s", filepath.Dir(target))
		}
	}

	return w, nil
}

// Name implements engine.Worker.
func (w *ConfigWatcher) Name() string { return "config-watcher" }

// Run watches until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if link, ok := w.targetToLink[name]; ok {
				name = link
			}
			if !w.files[name] {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		}
	}
}

// schedule (re)arms the debounce timer; only the last file of a burst is
// reported.
func (w *ConfigWatcher) schedule(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = file
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *ConfigWatcher) fire() {
	w.mu.Lock()
	file := w.pending
	w.mu.Unlock()

	w.logger.Infof("Config changed: %s", filepath.Base(file))
	if w.onReload != nil {
		w.onReload(file)
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
