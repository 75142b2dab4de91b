package localdir

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a batch
// is emitted.
const DefaultDebounce = 2 * time.Second

// Watcher error backoff bounds.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
)

// FsWatcher is the subset of *fsnotify.Watcher used by Watch.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher, whose channels are fields, to
// the FsWatcher interface.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

// Watcher emits debounced batches of regular files created or written in a
// folder.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	notify  chan struct{}

	// newWatcher is overridable for testing.
	newWatcher func() (FsWatcher, error)
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// NewWatcher creates a Watcher for dir. A debounce <= 0 uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]struct{}),
		notify:   make(chan struct{}, 1),
		newWatcher: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return fsnotifyWrapper{w: w}, nil
		},
		sleepFunc: timeSleep,
	}
}

// Watch starts watching and returns a channel of batches, each a sorted list
// of file paths. The channel is closed when ctx is canceled; pending changes
// are dropped at that point.
func (w *Watcher) Watch(ctx context.Context) (<-chan []string, error) {
	if err := checkDir(w.dir); err != nil {
		return nil, err
	}

	fw, err := w.newWatcher()
	if err != nil {
		return nil, fmt.Errorf("localdir: creating watcher: %w", err)
	}

	if err := fw.Add(w.dir); err != nil {
		fw.Close()

		return nil, fmt.Errorf("localdir: watching %s: %w", w.dir, err)
	}

	w.logger.Info("watching folder",
		slog.String("dir", w.dir),
		slog.Duration("debounce", w.debounce),
	)

	out := make(chan []string, 1)

	go func() {
		defer fw.Close()
		w.watchLoop(ctx, fw)
	}()

	go w.debounceLoop(ctx, out)

	return out, nil
}

// watchLoop records relevant events until ctx is canceled or the watcher
// channels close.
func (w *Watcher) watchLoop(ctx context.Context, fw FsWatcher) {
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events():
			if !ok {
				return
			}

			w.handleEvent(ev)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if w.sleepFunc(ctx, errBackoff) != nil {
				return
			}

			errBackoff = min(errBackoff*2, watchErrMaxBackoff)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	// Only direct children of the folder.
	if filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
		return
	}

	if !isRegular(ev.Name) {
		return
	}

	w.logger.Debug("file changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

	w.add(ev.Name)
}

func (w *Watcher) add(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// flush returns and clears the pending set, or nil when it is empty.
func (w *Watcher) flush() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}

	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}

	clear(w.pending)
	sort.Strings(batch)

	return batch
}

// debounceLoop emits the pending set once no change has arrived for the
// debounce window.
func (w *Watcher) debounceLoop(ctx context.Context, out chan<- []string) {
	defer close(out)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.notify:
			timer.Reset(w.debounce)

		case <-timer.C:
			batch := w.flush()
			if batch == nil {
				continue
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
