package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// DownloadOne downloads a single file under its own task. It does not take
// the mutation gate and may run alongside a batch.
func (o *Orchestrator) DownloadOne(ctx context.Context, name string) ([]byte, error) {
	o.begin()
	defer o.end()

	t := o.newTask(name, KindDownload, 0)

	return o.downloadTask(ctx, t, nil)
}

// DownloadBatch downloads entries one at a time, pausing for the sync delay
// between completions. Every item is attempted regardless of earlier
// failures. sink receives each item's bytes. The returned error joins all
// per-item failures; a canceled context stops the batch and leaves the
// remaining tasks pending.
func (o *Orchestrator) DownloadBatch(ctx context.Context, entries []api.FileEntry, sink Sink) ([]Task, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	o.begin()
	defer o.end()

	tasks := make([]*Task, len(entries))
	for i, e := range entries {
		tasks[i] = o.newTask(e.Name, KindDownload, e.Size)
	}

	o.logger.Info("download batch started", slog.Int("files", len(entries)))

	for i, t := range tasks {
		if i > 0 {
			if err := o.sleepFunc(ctx, o.syncDelay); err != nil {
				return o.snapshots(tasks), fmt.Errorf("transfer: download batch interrupted: %w", err)
			}
		}

		_, _ = o.downloadTask(ctx, t, sink) // failure is recorded on the task
	}

	result := o.snapshots(tasks)

	o.logger.Info("download batch finished",
		slog.Int("files", len(entries)),
		slog.Int("succeeded", countStatus(result, StatusSucceeded)),
		slog.Int("failed", countStatus(result, StatusFailed)),
	)

	return result, joinFailures(result)
}

func (o *Orchestrator) downloadTask(ctx context.Context, t *Task, sink Sink) ([]byte, error) {
	o.setStatus(t, StatusInProgress, nil)

	data, err := o.doDownload(ctx, t, sink)
	if err != nil {
		o.logger.Warn("download failed", slog.String("name", t.Name), slog.String("error", err.Error()))
		o.setStatus(t, StatusFailed, err)
	} else {
		o.setStatus(t, StatusSucceeded, nil)
	}

	o.finish(ctx, t)

	return data, err
}

func (o *Orchestrator) doDownload(ctx context.Context, t *Task, sink Sink) ([]byte, error) {
	if t.Name == "" {
		return nil, ErrEmptyName
	}

	data, err := o.transport.Download(ctx, t.Name, o.progressFunc(t))
	if err != nil {
		return nil, fmt.Errorf("transfer: downloading %s: %w", t.Name, err)
	}

	o.mu.Lock()
	t.Size = int64(len(data))
	o.mu.Unlock()

	if sink != nil {
		if err := sink(t.Name, data); err != nil {
			return nil, fmt.Errorf("transfer: storing %s: %w", t.Name, err)
		}
	}

	return data, nil
}
