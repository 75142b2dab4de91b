package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// ReadContent fetches a file's content for editing. Binary files arrive
// base64-encoded and are decoded here, so Data is always the raw bytes.
func (c *Client) ReadContent(ctx context.Context, name string) (*Content, error) {
	resp, err := c.Do(ctx, http.MethodGet, filePath("/files/content/", name), nil)
	if err != nil {
		return nil, err
	}

	var cr contentResponse
	if err := decodeJSON(resp, &cr, "content"); err != nil {
		return nil, err
	}

	if cr.Encoding == contentEncodingBase64 {
		data, err := base64.StdEncoding.DecodeString(cr.Content)
		if err != nil {
			return nil, fmt.Errorf("api: decoding base64 content of %q: %w", name, err)
		}

		return &Content{Data: data, IsBinary: true}, nil
	}

	return &Content{Data: []byte(cr.Content)}, nil
}

// WriteContent replaces a file's content. The payload is base64-encoded on
// the wire so control characters and NUL bytes survive intact.
func (c *Client) WriteContent(ctx context.Context, name string, data []byte) error {
	payload, err := json.Marshal(writeContentRequest{
		Content: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("api: encoding content update: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPut, filePath("/files/update/", name), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	return drain(resp)
}
