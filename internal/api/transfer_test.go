package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_MultipartBaseName(t *testing.T) {
	payload := []byte("hello upload")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		f, hdr, err := r.FormFile(uploadField)
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, "notes.txt", hdr.Filename)

		got, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, payload, got)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var last, total int64

	err := newTestClient(t, srv.URL).Upload(context.Background(), payload, "/home/alice/docs/notes.txt",
		func(done, size int64) {
			last, total = done, size
		})
	require.NoError(t, err)
	assert.Positive(t, total)
	assert.Equal(t, total, last)
}

func TestUploadName_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single code point.
	assert.Equal(t, "caf\u00e9.txt", UploadName("/tmp/cafe\u0301.txt"))
	assert.Equal(t, "a.bin", UploadName("a.bin"))
}

func TestUpload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Upload(context.Background(), []byte("x"), "x.txt", nil)
	require.ErrorIs(t, err, ErrServer)
}

func TestDownload_ByteExact(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 'a', 0x00, 0x7f}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/download/photo.png", r.URL.Path)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var progress [][2]int64

	got, err := newTestClient(t, srv.URL).Download(context.Background(), "photo.png", func(done, total int64) {
		progress = append(progress, [2]int64{done, total})
	})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
	require.NotEmpty(t, progress)
	assert.Equal(t, [2]int64{int64(len(payload)), int64(len(payload))}, progress[len(progress)-1])
}

func TestDownload_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Download(context.Background(), "a.txt", nil)
	require.ErrorIs(t, err, ErrAuth)
}
