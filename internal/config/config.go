// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for clouddrive-go. Values are layered:
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Session   SessionConfig   `toml:"session"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
	History   HistoryConfig   `toml:"history"`
}

// ServerConfig locates the Cloud Drive service.
type ServerConfig struct {
	URL       string `toml:"url"`
	UserAgent string `toml:"user_agent"`
}

// SessionConfig controls where the credential is persisted. An empty
// credential_file means credential.json in the data directory.
type SessionConfig struct {
	CredentialFile string `toml:"credential_file"`
}

// TransfersConfig controls bulk transfer pacing and limits.
type TransfersConfig struct {
	SyncDownloadDelay string `toml:"sync_download_delay"`
	MaxUploadSize     string `toml:"max_upload_size"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls HTTP client timeouts.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// HistoryConfig controls the transfer history database. An empty db_path
// means history.db in the data directory.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	Server     string // --server
}

// Resolved is the effective configuration after all layers are applied and
// string values are parsed.
type Resolved struct {
	ConfigPath string // file that was read, or would have been
	DataDir    string

	ServerURL string
	UserAgent string

	CredentialFile string

	SyncDownloadDelay time.Duration
	MaxUploadSize     int64 // 0 = unlimited

	LogLevel string

	ConnectTimeout time.Duration
	DataTimeout    time.Duration

	HistoryEnabled bool
	HistoryDBPath  string
}
