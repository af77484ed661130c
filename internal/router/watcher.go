package router

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/antigravity-dev/prism/internal/logging"
)

// FileWatcher watches a directory tree for create/write events on
// task-list Markdown files and coalesces rapid bursts per path with a
// trailing-edge debounce before invoking onSettled (spec.md §4.6).
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	onSettled func(path string)

	mu      sync.Mutex
	pending map[string]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFileWatcher builds a watcher over dir (recursively); onSettled is
// called once per path after debounce has elapsed with no further events.
func NewFileWatcher(dir string, debounce time.Duration, onSettled func(path string)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileWatcher{
		watcher:   w,
		dir:       dir,
		debounce:  debounce,
		onSettled: onSettled,
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start adds dir and every subdirectory to the watch list and begins the
// event loop in a background goroutine.
func (fw *FileWatcher) Start() error {
	err := filepath.WalkDir(fw.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = fw.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go fw.run()
	return nil
}

// Stop ends the event loop and closes the underlying watcher.
func (fw *FileWatcher) Stop() {
	close(fw.stopCh)
	<-fw.doneCh
	_ = fw.watcher.Close()
}

func (fw *FileWatcher) run() {
	defer close(fw.doneCh)

	sweep := fw.debounce / 4
	if sweep <= 0 {
		sweep = 100 * time.Millisecond
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryRouter).Error("FileWatcher: %v", err)
		case <-ticker.C:
			fw.flushSettled()
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if !isTaskListFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	fw.mu.Lock()
	fw.pending[event.Name] = time.Now()
	fw.mu.Unlock()
}

func (fw *FileWatcher) flushSettled() {
	fw.mu.Lock()
	now := time.Now()
	var settled []string
	for path, last := range fw.pending {
		if now.Sub(last) >= fw.debounce {
			settled = append(settled, path)
			delete(fw.pending, path)
		}
	}
	fw.mu.Unlock()

	for _, path := range settled {
		fw.onSettled(path)
	}
}

// isTaskListFile restricts watched events to Markdown files that aren't
// themselves a PRISM-generated sibling, so writing a .prism.md never
// re-triggers augmentation of its own output.
func isTaskListFile(name string) bool {
	if !strings.HasSuffix(name, ".md") {
		return false
	}
	return !strings.HasSuffix(name, ".prism.md")
}
