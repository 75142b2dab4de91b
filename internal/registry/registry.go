// Package registry holds the client's view of the remote file listing. The
// cache is replaced wholesale on every successful refresh and left untouched
// when a refresh fails.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// Lister fetches the full file listing. Implemented by *api.Client.
type Lister interface {
	ListFiles(ctx context.Context) ([]api.FileEntry, error)
}

// Registry caches the last successfully fetched listing.
type Registry struct {
	lister Lister
	logger *slog.Logger

	mu      sync.RWMutex
	entries []api.FileEntry
	loaded  bool

	// OnError, when set, is called with every refresh failure so a
	// presentation layer can show a non-fatal notice.
	OnError func(error)

	// OnRefresh, when set, is called after every refresh attempt with the
	// elapsed time, the entry count, and the error (nil on success).
	OnRefresh func(elapsed time.Duration, count int, err error)
}

// New creates an empty Registry.
func New(lister Lister, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{lister: lister, logger: logger}
}

// Refresh fetches the listing and replaces the cache. On failure the
// previous entries are retained and the error is returned. Concurrent
// refreshes are not coalesced; the last to complete wins.
func (r *Registry) Refresh(ctx context.Context) ([]api.FileEntry, error) {
	start := time.Now()

	fetched, err := r.lister.ListFiles(ctx)
	if err != nil {
		err = fmt.Errorf("registry: refreshing listing: %w", err)

		r.logger.Warn("listing refresh failed, keeping cached entries",
			slog.String("error", err.Error()),
		)

		r.report(time.Since(start), 0, err)

		return nil, err
	}

	entries := r.dedupe(fetched)

	r.mu.Lock()
	r.entries = entries
	r.loaded = true
	r.mu.Unlock()

	r.logger.Debug("listing refreshed", slog.Int("count", len(entries)))
	r.report(time.Since(start), len(entries), nil)

	return cloneEntries(entries), nil
}

// CurrentEntries returns a copy of the last successfully fetched listing.
// Empty before the first successful refresh.
func (r *Registry) CurrentEntries() []api.FileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return cloneEntries(r.entries)
}

// Loaded reports whether any refresh has succeeded yet.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.loaded
}

// Lookup returns the cached entry with the given name.
func (r *Registry) Lookup(name string) (api.FileEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}

	return api.FileEntry{}, false
}

// dedupe drops repeated names, keeping the first occurrence. The server
// guarantees unique names, so a repeat is logged as a contract violation.
func (r *Registry) dedupe(entries []api.FileEntry) []api.FileEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]api.FileEntry, 0, len(entries))

	for _, e := range entries {
		if _, dup := seen[e.Name]; dup {
			r.logger.Warn("duplicate name in listing, keeping first", slog.String("name", e.Name))
			continue
		}

		seen[e.Name] = struct{}{}
		out = append(out, e)
	}

	return out
}

func (r *Registry) report(elapsed time.Duration, count int, err error) {
	if r.OnRefresh != nil {
		r.OnRefresh(elapsed, count, err)
	}

	if err != nil && r.OnError != nil {
		r.OnError(err)
	}
}

func cloneEntries(entries []api.FileEntry) []api.FileEntry {
	out := make([]api.FileEntry, len(entries))
	copy(out, entries)

	return out
}
