package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 1 * time.Second
	maxSyncDelay      = 1 * time.Minute
)

// Validate checks all configuration values and returns every error found,
// so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	u, err := url.Parse(s.URL)
	if err != nil {
		return []error{fmt.Errorf("url: %w", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("url: scheme must be http or https, got %q", s.URL)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("url: missing host in %q", s.URL)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if d, err := time.ParseDuration(t.SyncDownloadDelay); err != nil {
		errs = append(errs, fmt.Errorf("sync_download_delay: invalid duration %q: %w", t.SyncDownloadDelay, err))
	} else if d < 0 || d > maxSyncDelay {
		errs = append(errs, fmt.Errorf("sync_download_delay: must be between 0 and %s, got %s", maxSyncDelay, d))
	}

	if _, err := ParseSize(t.MaxUploadSize); err != nil {
		errs = append(errs, fmt.Errorf("max_upload_size: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	switch l.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}
