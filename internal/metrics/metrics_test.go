package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferFinished(t *testing.T) {
	c := New()

	c.TransferFinished("upload", "succeeded", 100)
	c.TransferFinished("upload", "succeeded", 50)
	c.TransferFinished("upload", "failed", 0)

	assert.InDelta(t, 2, testutil.ToFloat64(c.transfersTotal.WithLabelValues("upload", "succeeded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.transfersTotal.WithLabelValues("upload", "failed")), 0)
	assert.InDelta(t, 150, testutil.ToFloat64(c.transferBytes.WithLabelValues("upload")), 0)
}

func TestRequestDone(t *testing.T) {
	c := New()

	c.RequestDone("GET", 200, 10*time.Millisecond)
	c.RequestDone("GET", 204, time.Millisecond)
	c.RequestDone("GET", 404, time.Millisecond)
	c.RequestDone("POST", 0, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "2xx")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "4xx")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.requestsTotal.WithLabelValues("POST", "error")), 0)
}

func TestRefreshDone(t *testing.T) {
	c := New()

	c.RefreshDone(time.Millisecond, 7, nil)
	c.RefreshDone(time.Millisecond, 0, errors.New("boom"))

	assert.InDelta(t, 7, testutil.ToFloat64(c.listingEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.refreshFailures), 0)
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.TransferFinished("download", "succeeded", 3)

	path := filepath.Join(t.TempDir(), "clouddrive.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `clouddrive_transfers_total{kind="download",status="succeeded"} 1`)
	assert.Contains(t, string(data), `clouddrive_transfer_bytes_total{kind="download"} 3`)
}
