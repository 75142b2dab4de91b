package api

import (
	"log/slog"
	"time"
)

// FileEntry is one file in a listing. Entries are immutable snapshots;
// callers never see raw API data.
type FileEntry struct {
	ID             string
	Name           string // unique within a listing
	Size           int64
	UploadedBy     string
	LastModifiedBy string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	FileType       string // MIME guess from the server, may be empty
	Previewable    bool
}

// Content is the payload returned by ReadContent. Data holds raw bytes for
// binary files and the UTF-8 text for everything else.
type Content struct {
	Data     []byte
	IsBinary bool
}

// ProgressFunc reports transfer progress in bytes. total is -1 when the
// size is not known in advance.
type ProgressFunc func(done, total int64)

// contentEncodingBase64 is the encoding value the service uses for binary payloads.
const contentEncodingBase64 = "base64"

// fileEntryResponse mirrors the service's file metadata JSON. Timestamps are
// kept raw because the service emits naive ISO-8601 without an offset.
type fileEntryResponse struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Size                  int64  `json:"size"`
	CreatedAt             string `json:"created_at"`
	ModifiedAt            string `json:"modified_at"`
	UploadedBy            string `json:"uploaded_by"`
	LastModifiedBy        string `json:"last_modified_by"`
	FileType              string `json:"file_type"`
	IsSupportedForPreview bool   `json:"is_supported_for_preview"`
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type writeContentRequest struct {
	Content string `json:"content"`
}

type renameRequest struct {
	NewNameBase string `json:"new_name_base"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// toEntry normalizes a listing row into a FileEntry.
func (r *fileEntryResponse) toEntry(logger *slog.Logger) FileEntry {
	return FileEntry{
		ID:             r.ID,
		Name:           r.Name,
		Size:           r.Size,
		UploadedBy:     r.UploadedBy,
		LastModifiedBy: r.LastModifiedBy,
		CreatedAt:      parseTimestamp(r.CreatedAt, "created_at", r.Name, logger),
		ModifiedAt:     parseTimestamp(r.ModifiedAt, "modified_at", r.Name, logger),
		FileType:       r.FileType,
		Previewable:    r.IsSupportedForPreview,
	}
}

// timestampLayouts are tried in order. The naive layouts match Python's
// datetime.isoformat() output, which carries no offset; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp parses a service timestamp. Empty or unparseable values
// yield the zero time and a warning.
func parseTimestamp(raw, field, name string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}

	logger.Warn("invalid timestamp in listing",
		slog.String("field", field),
		slog.String("name", name),
		slog.String("raw", raw),
	)

	return time.Time{}
}
