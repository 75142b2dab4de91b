package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// UploadBatch uploads files one at a time in order. The batch aborts on the
// first failure and the remaining tasks stay pending. Exactly one listing
// refresh runs afterwards, whether the batch completed or not. The returned
// tasks are in input order; the error is the first failure, if any.
func (o *Orchestrator) UploadBatch(ctx context.Context, files []FileSource) ([]Task, error) {
	if len(files) == 0 {
		return nil, nil
	}

	if err := o.acquire(ctx); err != nil {
		return nil, err
	}
	defer o.gate.Release(1)

	o.begin()
	defer o.end()

	tasks := make([]*Task, len(files))
	for i, f := range files {
		tasks[i] = o.newTask(api.UploadName(f.Name), KindUpload, 0)
	}

	o.logger.Info("upload batch started", slog.Int("files", len(files)))

	var firstErr error

	for i, f := range files {
		if err := o.uploadOne(ctx, tasks[i], f); err != nil {
			firstErr = err

			o.logger.Warn("upload batch aborted",
				slog.String("name", tasks[i].Name),
				slog.Int("remaining", len(files)-i-1),
				slog.String("error", err.Error()),
			)

			break
		}
	}

	o.refresh(ctx)

	result := o.snapshots(tasks)

	o.logger.Info("upload batch finished",
		slog.Int("files", len(files)),
		slog.Int("succeeded", countStatus(result, StatusSucceeded)),
	)

	return result, firstErr
}

func (o *Orchestrator) uploadOne(ctx context.Context, t *Task, f FileSource) error {
	o.setStatus(t, StatusInProgress, nil)

	err := o.doUpload(ctx, t, f)
	if err != nil {
		o.setStatus(t, StatusFailed, err)
	} else {
		o.setStatus(t, StatusSucceeded, nil)
	}

	o.finish(ctx, t)

	return err
}

func (o *Orchestrator) doUpload(ctx context.Context, t *Task, f FileSource) error {
	if t.Name == "" || t.Name == "." {
		return ErrEmptyName
	}

	if f.Load == nil {
		return fmt.Errorf("transfer: %s has no content source", t.Name)
	}

	data, err := f.Load()
	if err != nil {
		return err
	}

	o.mu.Lock()
	t.Size = int64(len(data))
	o.mu.Unlock()

	if o.maxUploadSize > 0 && int64(len(data)) > o.maxUploadSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, t.Name, len(data), o.maxUploadSize)
	}

	if err := o.transport.Upload(ctx, data, f.Name, o.progressFunc(t)); err != nil {
		return fmt.Errorf("transfer: uploading %s: %w", t.Name, err)
	}

	return nil
}

func countStatus(tasks []Task, status Status) int {
	n := 0

	for _, t := range tasks {
		if t.Status == status {
			n++
		}
	}

	return n
}
