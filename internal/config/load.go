package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.Server != "" {
		cfg.Server.URL = env.Server
	}

	if cli.Server != "" {
		cfg.Server.URL = cli.Server
	}

	// Overrides are re-validated; a bad --server must not slip through.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	dataDir := DefaultDataDir()
	if env.DataDir != "" {
		dataDir = env.DataDir
	}

	return resolve(cfg, cfgPath, expandTilde(dataDir)), nil
}

// resolve converts a validated Config into parsed values. Parse errors are
// impossible here because Validate has already accepted every field.
func resolve(cfg *Config, cfgPath, dataDir string) *Resolved {
	r := &Resolved{
		ConfigPath:     cfgPath,
		DataDir:        dataDir,
		ServerURL:      strings.TrimRight(cfg.Server.URL, "/"),
		UserAgent:      cfg.Server.UserAgent,
		CredentialFile: cfg.Session.CredentialFile,
		LogLevel:       cfg.Logging.LogLevel,
		HistoryEnabled: cfg.History.Enabled,
		HistoryDBPath:  cfg.History.DBPath,
	}

	r.SyncDownloadDelay, _ = time.ParseDuration(cfg.Transfers.SyncDownloadDelay)
	r.MaxUploadSize, _ = ParseSize(cfg.Transfers.MaxUploadSize)
	r.ConnectTimeout, _ = time.ParseDuration(cfg.Network.ConnectTimeout)
	r.DataTimeout, _ = time.ParseDuration(cfg.Network.DataTimeout)

	if r.CredentialFile == "" {
		r.CredentialFile = filepath.Join(dataDir, credentialFileName)
	} else {
		r.CredentialFile = expandTilde(r.CredentialFile)
	}

	if r.HistoryDBPath == "" {
		r.HistoryDBPath = filepath.Join(dataDir, historyFileName)
	} else {
		r.HistoryDBPath = expandTilde(r.HistoryDBPath)
	}

	return r
}
