package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://host" }, "scheme"},
		{"no host", func(c *Config) { c.Server.URL = "http://" }, "missing host"},
		{"bad delay", func(c *Config) { c.Transfers.SyncDownloadDelay = "soon" }, "sync_download_delay"},
		{"negative delay", func(c *Config) { c.Transfers.SyncDownloadDelay = "-1s" }, "sync_download_delay"},
		{"huge delay", func(c *Config) { c.Transfers.SyncDownloadDelay = "2h" }, "sync_download_delay"},
		{"bad size", func(c *Config) { c.Transfers.MaxUploadSize = "lots" }, "max_upload_size"},
		{"bad level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"short connect", func(c *Config) { c.Network.ConnectTimeout = "10ms" }, "connect_timeout"},
		{"bad data timeout", func(c *Config) { c.Network.DataTimeout = "x" }, "data_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogLevel = "x"
	cfg.Network.DataTimeout = "y"

	err := Validate(cfg)
	assert.ErrorContains(t, err, "log_level")
	assert.ErrorContains(t, err, "data_timeout")
}

func TestValidate_ZeroDelayAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfers.SyncDownloadDelay = "0s"

	assert.NoError(t, Validate(cfg))
}
