package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// uploadField is the multipart form field the service reads the file from.
const uploadField = "file"

// Upload sends data as a multipart upload. Only the base name of filename is
// transmitted, NFC-normalized. onProgress may be nil.
func (c *Client) Upload(ctx context.Context, data []byte, filename string, onProgress ProgressFunc) error {
	base := UploadName(filename)

	c.logger.Info("uploading file",
		slog.String("name", base),
		slog.Int("size", len(data)),
	)

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile(uploadField, base)
	if err != nil {
		return fmt.Errorf("api: creating multipart part: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("api: writing multipart part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("api: closing multipart body: %w", err)
	}

	total := int64(body.Len())

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "/files/upload",
		contentType: mw.FormDataContentType(),
		body:        newProgressReader(&body, total, onProgress),
		length:      total,
	})
	if err != nil {
		return err
	}

	c.logger.Debug("upload complete", slog.String("name", base))

	return drain(resp)
}

// UploadName is the name under which a local path is uploaded: its base
// name in Unicode NFC form.
func UploadName(path string) string {
	return norm.NFC.String(filepath.Base(path))
}

// Download fetches a file's bytes. onProgress may be nil; total is -1 when
// the server sends no Content-Length.
func (c *Client) Download(ctx context.Context, name string, onProgress ProgressFunc) ([]byte, error) {
	c.logger.Info("downloading file", slog.String("name", name))

	resp, err := c.Do(ctx, http.MethodGet, filePath("/files/download/", name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}

	n, err := io.Copy(&buf, newProgressReader(resp.Body, resp.ContentLength, onProgress))
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
			slog.Int64("bytes_before_error", n),
		)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		return nil, newNetworkError(err)
	}

	c.logger.Debug("download complete",
		slog.String("name", name),
		slog.Int64("bytes", n),
	)

	return buf.Bytes(), nil
}

// progressReader reports cumulative bytes read to a ProgressFunc.
type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil {
		return r
	}

	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}

	return n, err
}
