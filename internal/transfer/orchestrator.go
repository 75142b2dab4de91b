package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// DefaultSyncDelay is the pause between completions in a bulk download.
const DefaultSyncDelay = 300 * time.Millisecond

// NewGate returns the size-1 semaphore shared by every mutating operation.
func NewGate() *semaphore.Weighted {
	return semaphore.NewWeighted(1)
}

// Options configures an Orchestrator. Zero values are valid.
type Options struct {
	SyncDelay     time.Duration // 0 = DefaultSyncDelay; negative disables the delay
	MaxUploadSize int64         // 0 = unlimited
	Observer      Observer
	Recorder      Recorder
	Meter         Meter
}

// Orchestrator runs transfer batches and single-item mutations.
type Orchestrator struct {
	transport Transport
	registry  Refresher
	gate      *semaphore.Weighted
	logger    *slog.Logger

	observer      Observer
	recorder      Recorder
	meter         Meter
	syncDelay     time.Duration
	maxUploadSize int64

	mu     sync.Mutex // guards active and every *Task handed out by newTask
	active int

	// sleepFunc waits between bulk download items. Overridable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// New creates an Orchestrator. gate must be shared with every other
// component that mutates the remote listing.
func New(transport Transport, registry Refresher, gate *semaphore.Weighted, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if gate == nil {
		gate = NewGate()
	}

	delay := opts.SyncDelay
	if delay == 0 {
		delay = DefaultSyncDelay
	} else if delay < 0 {
		delay = 0
	}

	return &Orchestrator{
		transport:     transport,
		registry:      registry,
		gate:          gate,
		logger:        logger,
		observer:      opts.Observer,
		recorder:      opts.Recorder,
		meter:         opts.Meter,
		syncDelay:     delay,
		maxUploadSize: opts.MaxUploadSize,
		sleepFunc:     timeSleep,
		nowFunc:       time.Now,
	}
}

// State reports Running while any batch or mutation is in progress.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active > 0 {
		return Running
	}

	return Idle
}

func (o *Orchestrator) begin() {
	o.mu.Lock()
	o.active++
	o.mu.Unlock()
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	o.active--
	o.mu.Unlock()
}

// acquire takes the mutation gate.
func (o *Orchestrator) acquire(ctx context.Context) error {
	if err := o.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("transfer: waiting for running operation: %w", err)
	}

	return nil
}

// refresh reloads the listing after a mutation. A failure is logged; the
// registry reports it through its own hook and the mutation still stands.
func (o *Orchestrator) refresh(ctx context.Context) {
	if o.registry == nil {
		return
	}

	if _, err := o.registry.Refresh(ctx); err != nil {
		o.logger.Warn("refresh after mutation failed", slog.String("error", err.Error()))
	}
}

// Rename renames name to newBase (extension kept by the service). The
// listing is refreshed once on success and left untouched on failure.
func (o *Orchestrator) Rename(ctx context.Context, name, newBase string) error {
	if name == "" || newBase == "" {
		return ErrEmptyName
	}

	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.gate.Release(1)

	o.begin()
	defer o.end()

	o.logger.Info("renaming file", slog.String("name", name), slog.String("new_base", newBase))

	if err := o.transport.Rename(ctx, name, newBase); err != nil {
		return fmt.Errorf("transfer: renaming %s: %w", name, err)
	}

	o.refresh(ctx)

	return nil
}

// Delete removes name. The listing is refreshed once on success and left
// untouched on failure.
func (o *Orchestrator) Delete(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.gate.Release(1)

	o.begin()
	defer o.end()

	o.logger.Info("deleting file", slog.String("name", name))

	if err := o.transport.Delete(ctx, name); err != nil {
		return fmt.Errorf("transfer: deleting %s: %w", name, err)
	}

	o.refresh(ctx)

	return nil
}

func (o *Orchestrator) newTask(name string, kind Kind, size int64) *Task {
	t := &Task{ID: uuid.New(), Name: name, Kind: kind, Status: StatusPending, Size: size}
	o.emit(t)

	return t
}

// setStatus moves t to status and notifies the observer.
func (o *Orchestrator) setStatus(t *Task, status Status, err error) {
	o.mu.Lock()
	t.Status = status
	t.Err = err

	if status == StatusSucceeded {
		t.Progress = 1
	}
	o.mu.Unlock()

	o.emit(t)
}

// progressFunc adapts transport byte progress to task progress. Updates
// are only emitted when the whole percentage changes.
func (o *Orchestrator) progressFunc(t *Task) api.ProgressFunc {
	lastPct := -1

	return func(done, total int64) {
		if total <= 0 {
			return
		}

		p := float64(done) / float64(total)
		if p > 1 {
			p = 1
		}

		pct := int(p * 100)
		if pct == lastPct {
			return
		}

		lastPct = pct

		o.mu.Lock()
		t.Progress = p
		o.mu.Unlock()

		o.emit(t)
	}
}

func (o *Orchestrator) emit(t *Task) {
	if o.observer == nil {
		return
	}

	o.mu.Lock()
	u := Update{
		TaskID:   t.ID,
		Name:     t.Name,
		Kind:     t.Kind,
		Status:   t.Status,
		Progress: t.Progress,
		Size:     t.Size,
		Err:      t.Err,
	}
	o.mu.Unlock()

	o.observer(u)
}

// finish records a terminal task in history and metrics. Recording never
// fails the transfer.
func (o *Orchestrator) finish(ctx context.Context, t *Task) {
	snapshot := o.snapshot(t)

	if o.meter != nil {
		var bytes int64
		if snapshot.Status == StatusSucceeded {
			bytes = snapshot.Size
		}

		o.meter.TransferFinished(string(snapshot.Kind), string(snapshot.Status), bytes)
	}

	if o.recorder == nil {
		return
	}

	if err := o.recorder.Record(context.WithoutCancel(ctx), snapshot, o.nowFunc()); err != nil {
		o.logger.Warn("recording transfer outcome failed",
			slog.String("name", t.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) snapshot(t *Task) Task {
	o.mu.Lock()
	defer o.mu.Unlock()

	return *t
}

func (o *Orchestrator) snapshots(tasks []*Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = o.snapshot(t)
	}

	return out
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// joinFailures summarizes failed tasks into one error, or nil.
func joinFailures(tasks []Task) error {
	var errs []error

	for _, t := range tasks {
		if t.Status == StatusFailed && t.Err != nil {
			errs = append(errs, t.Err)
		}
	}

	return errors.Join(errs...)
}
