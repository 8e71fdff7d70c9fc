// Package watch feeds files written to a local directory to the pipeline
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/DMarby/image-resizer/internal/queue"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file has to stay unchanged before it's processed
const DefaultDebounce = 250 * time.Millisecond

// Pipeline processes a blob fetched from the source storage
type Pipeline interface {
	Handle(ctx context.Context, name string) error
}

// Watcher watches a directory tree and processes every regular file created or written in it.
// Blob names are paths relative to the directory, using forward slashes.
type Watcher struct {
	dir      string
	pipeline Pipeline
	workers  int
	debounce time.Duration
	log      *logger.Logger
	watcher  *fsnotify.Watcher

	mutex   sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// New creates a watcher for dir and its subdirectories, hidden directories are skipped
func New(dir string, pipeline Pipeline, workers int, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	if workers <= 0 {
		workers = 1
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		pipeline: pipeline,
		workers:  workers,
		debounce: debounce,
		log:      log,
		watcher:  fsWatcher,
		pending:  make(map[string]*time.Timer),
	}

	if err := w.addTree(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// Run processes file events until ctx is canceled or the watcher is closed.
// Files still waiting out the debounce are dropped, and Run returns once the in flight ones are processed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := queue.New(ctx, w.workers, func(ctx context.Context, name string) (struct{}, error) {
		return struct{}{}, w.pipeline.Handle(ctx, name)
	})
	go q.Run()

	var inflight sync.WaitGroup
	defer inflight.Wait()
	defer w.stopPending()

	// Called with the mutex held, so stopPending can't race the Add
	submit := func(name string) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()

			if _, err := q.Process(ctx, name); err != nil && !errors.Is(err, queue.ErrShutdown) && !errors.Is(err, context.Canceled) {
				w.log.Errorw("error processing file", "name", name, "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(event, submit)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.log.Errorw("file watcher error", "error", err)
		}
	}
}

// Close stops watching, making Run return
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event, submit func(string)) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || hidden(rel) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warnw("failed to watch directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	name := filepath.ToSlash(rel)

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if timer, ok := w.pending[name]; ok {
		timer.Reset(w.debounce)
		return
	}

	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mutex.Lock()
		defer w.mutex.Unlock()

		delete(w.pending, name)
		if w.stopped {
			return
		}

		w.log.Debugw("file changed", "name", name)
		submit(name)
	})
}

func (w *Watcher) stopPending() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.stopped = true
	for name, timer := range w.pending {
		timer.Stop()
		delete(w.pending, name)
	}
}

// addTree watches root and every non-hidden directory below it
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}

		return nil
	})
}

// hidden reports whether any element of a relative path starts with a dot
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}

	return false
}
