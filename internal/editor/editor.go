// Package editor implements in-place content editing: open a remote file's
// content as text or raw bytes, and save edited text back.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// ErrBinaryContent is returned when saving text over a file that was opened
// as binary.
var ErrBinaryContent = errors.New("editor: file has binary content")

// Document is an opened file. Exactly one of Text or Data is meaningful,
// selected by Binary.
type Document struct {
	Name   string
	Binary bool
	Text   string
	Data   []byte
}

// Transport is the content subset of the service client.
type Transport interface {
	ReadContent(ctx context.Context, name string) (*api.Content, error)
	WriteContent(ctx context.Context, name string, data []byte) error
}

// Refresher reloads the file listing.
type Refresher interface {
	Refresh(ctx context.Context) ([]api.FileEntry, error)
}

// Editor opens and saves file content.
type Editor struct {
	transport Transport
	registry  Refresher
	gate      *semaphore.Weighted
	logger    *slog.Logger

	mu     sync.Mutex
	binary map[string]bool // kind of each name as last opened
}

// New creates an Editor. gate is the mutation semaphore shared with the
// transfer orchestrator.
func New(transport Transport, registry Refresher, gate *semaphore.Weighted, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}

	if gate == nil {
		gate = semaphore.NewWeighted(1)
	}

	return &Editor{
		transport: transport,
		registry:  registry,
		gate:      gate,
		logger:    logger,
		binary:    make(map[string]bool),
	}
}

// Open fetches name's content.
func (e *Editor) Open(ctx context.Context, name string) (*Document, error) {
	if name == "" {
		return nil, errors.New("editor: empty file name")
	}

	c, err := e.transport.ReadContent(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("editor: opening %s: %w", name, err)
	}

	e.mu.Lock()
	e.binary[name] = c.IsBinary
	e.mu.Unlock()

	doc := &Document{Name: name, Binary: c.IsBinary}
	if c.IsBinary {
		doc.Data = c.Data
	} else {
		doc.Text = string(c.Data)
	}

	e.logger.Debug("opened document",
		slog.String("name", name),
		slog.Bool("binary", c.IsBinary),
		slog.Int("bytes", len(c.Data)),
	)

	return doc, nil
}

// Save writes text as name's new content under the mutation gate. A file
// last opened as binary cannot be saved as text. On success the listing is
// refreshed; a refresh failure is reported by the registry and does not
// fail the save. A nil error means the edit is durable on the server.
func (e *Editor) Save(ctx context.Context, name, text string) error {
	if name == "" {
		return errors.New("editor: empty file name")
	}

	e.mu.Lock()
	binary := e.binary[name]
	e.mu.Unlock()

	if binary {
		return fmt.Errorf("editor: saving %s: %w", name, ErrBinaryContent)
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("editor: waiting for running operation: %w", err)
	}
	defer e.gate.Release(1)

	if err := e.transport.WriteContent(ctx, name, []byte(text)); err != nil {
		return fmt.Errorf("editor: saving %s: %w", name, err)
	}

	e.logger.Info("saved document", slog.String("name", name), slog.Int("bytes", len(text)))

	if e.registry != nil {
		if _, err := e.registry.Refresh(ctx); err != nil {
			e.logger.Warn("refresh after save failed", slog.String("error", err.Error()))
		}
	}

	return nil
}
