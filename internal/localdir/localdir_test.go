package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestScan_TopLevelRegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "a.c"), "a")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), "n")
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.c"), filepath.Join(dir, "link.c")))

	paths, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.c"), filepath.Join(dir, "b.txt")}, paths)
}

func TestScan_Empty(t *testing.T) {
	paths, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestScan_NotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, "x")

	_, err := Scan(path)
	assert.ErrorIs(t, err, ErrNotDir)
}

func TestScan_Missing(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeFsWatcher struct {
	events chan fsnotify.Event
	errs   chan error
	added  []string
	closed chan struct{}
}

func newFakeFsWatcher() *fakeFsWatcher {
	return &fakeFsWatcher{
		events: make(chan fsnotify.Event, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeFsWatcher) Add(name string) error         { f.added = append(f.added, name); return nil }
func (f *fakeFsWatcher) Close() error                  { close(f.closed); return nil }
func (f *fakeFsWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeFsWatcher) Errors() <-chan error          { return f.errs }

func newTestWatcher(t *testing.T, dir string) (*Watcher, *fakeFsWatcher) {
	t.Helper()

	fw := newFakeFsWatcher()
	w := NewWatcher(dir, 20*time.Millisecond, nil)
	w.newWatcher = func() (FsWatcher, error) { return fw, nil }
	w.sleepFunc = func(context.Context, time.Duration) error { return nil }

	return w, fw
}

func receive(t *testing.T, ch <-chan []string) []string {
	t.Helper()

	select {
	case batch, ok := <-ch:
		require.True(t, ok, "channel closed")
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestWatch_DebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	w, fw := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out, err := w.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, fw.added)

	fw.events <- fsnotify.Event{Name: b, Op: fsnotify.Create}
	fw.events <- fsnotify.Event{Name: a, Op: fsnotify.Write}
	fw.events <- fsnotify.Event{Name: b, Op: fsnotify.Write}

	assert.Equal(t, []string{a, b}, receive(t, out))
}

func TestWatch_IgnoresIrrelevantEvents(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.txt")
	writeFile(t, kept, "k")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))
	nested := filepath.Join(dir, "sub", "n.txt")
	writeFile(t, nested, "n")

	w, fw := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out, err := w.Watch(ctx)
	require.NoError(t, err)

	fw.events <- fsnotify.Event{Name: kept, Op: fsnotify.Chmod}
	fw.events <- fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Create}
	fw.events <- fsnotify.Event{Name: filepath.Join(dir, "sub"), Op: fsnotify.Create}
	fw.events <- fsnotify.Event{Name: nested, Op: fsnotify.Write}
	fw.events <- fsnotify.Event{Name: kept, Op: fsnotify.Remove}
	fw.events <- fsnotify.Event{Name: kept, Op: fsnotify.Write}

	assert.Equal(t, []string{kept}, receive(t, out))
}

func TestWatch_ErrorDoesNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f.txt")
	writeFile(t, f, "f")

	w, fw := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out, err := w.Watch(ctx)
	require.NoError(t, err)

	fw.errs <- assert.AnError
	fw.events <- fsnotify.Event{Name: f, Op: fsnotify.Create}

	assert.Equal(t, []string{f}, receive(t, out))
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	w, fw := newTestWatcher(t, t.TempDir())

	ctx, cancel := context.WithCancel(t.Context())

	out, err := w.Watch(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	select {
	case <-fw.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not closed after cancel")
	}
}

func TestWatch_NotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	writeFile(t, path, "x")

	w, _ := newTestWatcher(t, path)

	_, err := w.Watch(t.Context())
	assert.ErrorIs(t, err, ErrNotDir)
}
