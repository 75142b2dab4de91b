package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/clouddrive-go/internal/localdir"
	"github.com/tonimelisma/clouddrive-go/internal/transfer"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy whole folders to or from the drive",
	}

	cmd.AddCommand(newSyncUpCmd())
	cmd.AddCommand(newSyncDownCmd())

	return cmd
}

func newSyncUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up <dir>",
		Short: "Upload every file in a local folder",
		Long: `Upload every regular file directly inside a local folder. Subfolders are
skipped. The batch stops at the first failure.

With --watch, keep running and upload files as they are created or changed,
in batches collected over the debounce window.`,
		Args: cobra.ExactArgs(1),
		RunE: runSyncUp,
	}

	cmd.Flags().Bool("watch", false, "keep watching the folder and upload changes")
	cmd.Flags().Duration("debounce", localdir.DefaultDebounce, "quiet period before uploading watched changes")

	return cmd
}

func newSyncDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down <dir>",
		Short: "Download every file into a local folder",
		Long: `Download every file in the listing into a local folder, one at a time with
a short pause between files. A failed file does not stop the others.`,
		Args: cobra.ExactArgs(1),
		RunE: runSyncDown,
	}
}

func runSyncUp(cmd *cobra.Command, args []string) error {
	dir := args[0]
	watch, _ := cmd.Flags().GetBool("watch")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx, cancel := shutdownContext(cmd.Context(), a.cc.Logger)
		defer cancel()

		paths, err := localdir.Scan(dir)
		if err != nil {
			return err
		}

		if len(paths) == 0 {
			a.cc.Statusf("No files in %s.\n", dir)
		} else if err := uploadPaths(ctx, a, paths); err != nil && !watch {
			return err
		}

		if !watch {
			return nil
		}

		return watchAndUpload(ctx, a, dir, debounce)
	})
}

// uploadPaths uploads paths as one batch and reports the outcome.
func uploadPaths(ctx context.Context, a *app, paths []string) error {
	files := make([]transfer.FileSource, len(paths))
	for i, p := range paths {
		files[i] = transfer.FromPath(p)
	}

	tasks, err := a.transfers.UploadBatch(ctx, files)
	if err != nil {
		return fmt.Errorf("upload stopped: %w", authHint(err))
	}

	a.cc.Statusf("Uploaded %d file(s).\n", len(tasks))

	return nil
}

// watchAndUpload uploads debounced batches of changed files until ctx is
// canceled. A failed batch is reported and watching continues.
func watchAndUpload(ctx context.Context, a *app, dir string, debounce time.Duration) error {
	w := localdir.NewWatcher(dir, debounce, a.cc.Logger)

	batches, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	a.cc.Statusf("Watching %s for changes (Ctrl-C to stop).\n", dir)

	for paths := range batches {
		if err := uploadPaths(ctx, a, paths); err != nil {
			if ctx.Err() != nil {
				break
			}

			a.cc.Logger.Warn("watched upload failed", slog.String("error", err.Error()))
			fmt.Fprintf(a.cc.Stderr, "Error: %v\n", err)
		}
	}

	a.cc.Statusf("Stopped watching %s.\n", dir)

	return nil
}

func runSyncDown(cmd *cobra.Command, args []string) error {
	dir := args[0]

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx, cancel := shutdownContext(cmd.Context(), a.cc.Logger)
		defer cancel()

		entries, err := a.registry.Refresh(ctx)
		if err != nil {
			return authHint(err)
		}

		if len(entries) == 0 {
			a.cc.Statusf("No files to download.\n")
			return nil
		}

		if err := os.MkdirAll(dir, localDirPerms); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		sink := func(name string, data []byte) error {
			base, err := localNameFor(name)
			if err != nil {
				return err
			}

			return writeLocalFile(filepath.Join(dir, base), data)
		}

		tasks, err := a.transfers.DownloadBatch(ctx, entries, sink)

		succeeded, failed := 0, 0

		for _, t := range tasks {
			switch t.Status {
			case transfer.StatusSucceeded:
				succeeded++
			case transfer.StatusFailed:
				failed++
			}
		}

		a.cc.Statusf("Downloaded %d of %d file(s).\n", succeeded, len(tasks))

		if errors.Is(err, context.Canceled) {
			return errors.New("download interrupted")
		}

		if err != nil {
			return fmt.Errorf("%d download(s) failed: %w", failed, authHint(err))
		}

		return nil
	})
}
