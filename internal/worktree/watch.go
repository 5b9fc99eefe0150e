package worktree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce window for coalescing bursts of filesystem events
const watchSettle = 250 * time.Millisecond

// Watcher observes the working tree and emits one coalesced notification per
// burst of changes. status --watch re-renders on each notification.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	changes chan struct{}
	done    chan struct{}
}

func NewWatcher(root string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:    filepath.Clean(root),
		watcher: fsw,
		logger:  logger,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if err := w.addDirs(w.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching working tree: %w", err)
	}

	go w.loop()
	return w, nil
}

// Changes delivers one value per settled burst of working-tree changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// addDirs registers every non-hidden directory under dir with the watcher.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop() {
	var settle *time.Timer
	var settleC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignore(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addDirs(event.Name); err != nil {
						w.logger.Error("adding new directory to watcher", zap.Error(err))
					}
				}
			}
			if settle == nil {
				settle = time.NewTimer(watchSettle)
				settleC = settle.C
			} else {
				settle.Reset(watchSettle)
			}

		case <-settleC:
			settle = nil
			settleC = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// ignore filters events under hidden directories, including the repository's
// own metadata directory.
func (w *Watcher) ignore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != "." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
