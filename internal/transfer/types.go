// Package transfer sequences uploads, downloads, renames and deletes against
// the service. Every mutating operation holds a shared size-1 semaphore, so
// at most one mutation is in flight at a time, and is followed by exactly one
// listing refresh.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// ErrEmptyName is returned for operations given an empty file name.
var ErrEmptyName = errors.New("transfer: empty file name")

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("transfer: file exceeds upload size limit")

// Kind is the direction of a transfer.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
)

// Status is a task's position in its lifecycle:
// pending -> in_progress -> succeeded | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// State is the orchestrator's batch state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}

	return "idle"
}

// Task is one file transfer. Tasks are owned and mutated by the
// Orchestrator; callers receive copies.
type Task struct {
	ID       uuid.UUID
	Name     string
	Kind     Kind
	Status   Status
	Progress float64 // 0.0 to 1.0
	Size     int64   // bytes, 0 when unknown
	Err      error
}

// Update is delivered to an Observer on every task state or progress change.
type Update struct {
	TaskID   uuid.UUID
	Name     string
	Kind     Kind
	Status   Status
	Progress float64
	Size     int64
	Err      error
}

// Observer receives task updates. It may be called from the goroutine that
// runs the batch or from the transport's progress callback, never
// concurrently for the same task.
type Observer func(Update)

// FileSource is one local file queued for upload. Load is called when the
// task starts, not when it is queued.
type FileSource struct {
	Name string // remote name; the base name is taken by the transport
	Load func() ([]byte, error)
}

// FromPath returns a FileSource reading the file at path.
func FromPath(path string) FileSource {
	return FileSource{
		Name: path,
		Load: func() ([]byte, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("transfer: reading %s: %w", path, err)
			}

			return data, nil
		},
	}
}

// FromBytes returns a FileSource over in-memory data.
func FromBytes(name string, data []byte) FileSource {
	return FileSource{
		Name: name,
		Load: func() ([]byte, error) { return data, nil },
	}
}

// Sink receives the bytes of one downloaded item. A sink error fails only
// that item.
type Sink func(name string, data []byte) error

// Transport is the subset of the service client the orchestrator drives.
// Implemented by *api.Client.
type Transport interface {
	Upload(ctx context.Context, data []byte, filename string, onProgress api.ProgressFunc) error
	Download(ctx context.Context, name string, onProgress api.ProgressFunc) ([]byte, error)
	Rename(ctx context.Context, name, newBase string) error
	Delete(ctx context.Context, name string) error
}

// Refresher reloads the file listing. Implemented by *registry.Registry.
type Refresher interface {
	Refresh(ctx context.Context) ([]api.FileEntry, error)
}

// Recorder persists terminal task outcomes. Implemented by *history.Store.
type Recorder interface {
	Record(ctx context.Context, t Task, finishedAt time.Time) error
}

// Meter counts terminal task outcomes. Implemented by *metrics.Collectors.
type Meter interface {
	TransferFinished(kind, status string, bytes int64)
}
