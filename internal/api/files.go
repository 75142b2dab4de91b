package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// filePath builds an endpoint path with the file name as an escaped segment.
func filePath(prefix, name string) string {
	return prefix + url.PathEscape(name)
}

// ListFiles returns the full file listing visible to the session.
func (c *Client) ListFiles(ctx context.Context) ([]FileEntry, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/files", nil)
	if err != nil {
		return nil, err
	}

	var rows []fileEntryResponse
	if err := decodeJSON(resp, &rows, "listing"); err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toEntry(c.logger))
	}

	c.logger.Debug("listed files", slog.Int("count", len(entries)))

	return entries, nil
}

// Delete removes a file by name.
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.Do(ctx, http.MethodDelete, filePath("/files/delete/", name), nil)
	if err != nil {
		return err
	}

	return drain(resp)
}

// Rename changes a file's base name. The service keeps the original
// extension, so Rename("report.txt", "summary") yields "summary.txt".
func (c *Client) Rename(ctx context.Context, name, newBase string) error {
	payload, err := json.Marshal(renameRequest{NewNameBase: newBase})
	if err != nil {
		return fmt.Errorf("api: encoding rename request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, filePath("/files/rename/", name), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	return drain(resp)
}
