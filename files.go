package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/clouddrive-go/internal/api"
	"github.com/tonimelisma/clouddrive-go/internal/registry"
	"github.com/tonimelisma/clouddrive-go/internal/transfer"
)

// Local file permissions for downloads.
const (
	localFilePerms = 0o644
	localDirPerms  = 0o755
)

// defaultColumns are shown by ls when --columns is not given.
var defaultColumns = []string{"name", "size", "modified_at", "last_modified_by"}

// lsColumn is one selectable ls column.
type lsColumn struct {
	header string
	value  func(e api.FileEntry) string
}

var lsColumns = map[string]lsColumn{
	"name":             {"NAME", func(e api.FileEntry) string { return e.Name }},
	"size":             {"SIZE", func(e api.FileEntry) string { return formatSize(e.Size) }},
	"uploaded_by":      {"UPLOADED BY", func(e api.FileEntry) string { return e.UploadedBy }},
	"last_modified_by": {"MODIFIED BY", func(e api.FileEntry) string { return e.LastModifiedBy }},
	"created_at":       {"CREATED", func(e api.FileEntry) string { return formatTime(e.CreatedAt) }},
	"modified_at":      {"MODIFIED", func(e api.FileEntry) string { return formatTime(e.ModifiedAt) }},
	"type":             {"TYPE", func(e api.FileEntry) string { return e.FileType }},
	"previewable":      {"PREVIEW", func(e api.FileEntry) string { return strconv.FormatBool(e.Previewable) }},
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().String("filter", "all", "show only: all, image, text, previewable, other")
	cmd.Flags().String("sort", "name", "sort by: name, size, uploaded_by, last_modified_by, created_at, modified_at")
	cmd.Flags().Bool("desc", false, "sort in descending order")
	cmd.Flags().StringSlice("columns", defaultColumns,
		"columns to show: name, size, uploaded_by, last_modified_by, created_at, modified_at, type, previewable")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload files, stopping at the first failure",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPut,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <name> <new-base-name>",
		Short: "Rename a file, keeping its extension",
		Long: `Rename a file. The new name is given without extension; the service
keeps the original extension (mv notes.txt ideas renames to ideas.txt).`,
		Args: cobra.ExactArgs(2),
		RunE: runMv,
	}
}

// lsOptions are the parsed ls view flags.
type lsOptions struct {
	tag     registry.Tag
	key     registry.Key
	dir     registry.Direction
	columns []string
}

func parseLsOptions(cmd *cobra.Command) (lsOptions, error) {
	var opts lsOptions

	filter, _ := cmd.Flags().GetString("filter")
	sortKey, _ := cmd.Flags().GetString("sort")
	desc, _ := cmd.Flags().GetBool("desc")
	columns, _ := cmd.Flags().GetStringSlice("columns")

	tag, err := registry.ParseTag(filter)
	if err != nil {
		return opts, err
	}

	key, err := registry.ParseKey(sortKey)
	if err != nil {
		return opts, err
	}

	for _, c := range columns {
		if _, ok := lsColumns[c]; !ok {
			return opts, fmt.Errorf("unknown column %q", c)
		}
	}

	if len(columns) == 0 {
		return opts, errors.New("--columns must name at least one column")
	}

	opts = lsOptions{tag: tag, key: key, dir: registry.Ascending, columns: columns}
	if desc {
		opts.dir = registry.Descending
	}

	return opts, nil
}

func runLs(cmd *cobra.Command, _ []string) error {
	opts, err := parseLsOptions(cmd)
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		entries, err := a.registry.Refresh(cmd.Context())
		if err != nil {
			return authHint(err)
		}

		entries = registry.Sort(registry.Filter(entries, opts.tag), opts.key, opts.dir)

		if a.cc.Flags.JSON {
			return printEntriesJSON(a.cc.Stdout, entries)
		}

		printEntriesTable(a.cc.Stdout, entries, opts.columns)

		return nil
	})
}

// lsJSONItem is the JSON output schema for a single entry in ls output.
type lsJSONItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	UploadedBy     string    `json:"uploaded_by"`
	LastModifiedBy string    `json:"last_modified_by"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	FileType       string    `json:"file_type,omitempty"`
	Previewable    bool      `json:"previewable"`
}

func printEntriesJSON(w io.Writer, entries []api.FileEntry) error {
	out := make([]lsJSONItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, lsJSONItem{
			ID:             e.ID,
			Name:           e.Name,
			Size:           e.Size,
			UploadedBy:     e.UploadedBy,
			LastModifiedBy: e.LastModifiedBy,
			CreatedAt:      e.CreatedAt,
			ModifiedAt:     e.ModifiedAt,
			FileType:       e.FileType,
			Previewable:    e.Previewable,
		})
	}

	return printJSON(w, out)
}

func printEntriesTable(w io.Writer, entries []api.FileEntry, columns []string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = lsColumns[c].header
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = lsColumns[c].value(e)
		}

		rows = append(rows, row)
	}

	printTable(w, headers, rows)
}

func runGet(cmd *cobra.Command, args []string) error {
	name := args[0]

	localPath, err := localNameFor(name)
	if err != nil {
		return err
	}

	if len(args) > 1 {
		localPath = args[1]
		if fi, statErr := os.Stat(localPath); statErr == nil && fi.IsDir() {
			localPath = filepath.Join(localPath, filepath.Base(name))
		}
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx, cancel := shutdownContext(cmd.Context(), a.cc.Logger)
		defer cancel()

		data, err := a.transfers.DownloadOne(ctx, name)
		if err != nil {
			return authHint(err)
		}

		return writeLocalFile(localPath, data)
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	files := make([]transfer.FileSource, 0, len(args))
	for _, p := range args {
		files = append(files, transfer.FromPath(p))
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		ctx, cancel := shutdownContext(cmd.Context(), a.cc.Logger)
		defer cancel()

		tasks, err := a.transfers.UploadBatch(ctx, files)
		if err != nil {
			return fmt.Errorf("upload stopped: %w", authHint(err))
		}

		a.cc.Statusf("Uploaded %d file(s).\n", len(tasks))

		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		if err := a.transfers.Delete(cmd.Context(), args[0]); err != nil {
			return authHint(err)
		}

		a.cc.Statusf("Deleted %s\n", args[0])

		return nil
	})
}

func runMv(cmd *cobra.Command, args []string) error {
	name, newBase := args[0], args[1]

	if strings.TrimSpace(newBase) == "" {
		return errors.New("new name must not be empty")
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.requireSession(); err != nil {
			return err
		}

		if err := a.transfers.Rename(cmd.Context(), name, newBase); err != nil {
			return authHint(err)
		}

		a.cc.Statusf("Renamed %s to %s%s\n", name, newBase, filepath.Ext(name))

		return nil
	})
}

// localNameFor returns the local file name for a remote name. Names that
// would escape the target directory are rejected.
func localNameFor(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base != filepath.FromSlash(name) {
		return "", fmt.Errorf("refusing to store %q: not a plain file name", name)
	}

	return base, nil
}

// writeLocalFile writes data to path atomically: a temp file in the same
// directory is synced then renamed over path.
func writeLocalFile(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, localDirPerms); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".partial-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	if err := os.Chmod(tmpPath, localFilePerms); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	success = true

	return nil
}
