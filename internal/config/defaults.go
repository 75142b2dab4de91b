package config

// Default values for configuration options, the first layer of the
// override chain.
const (
	defaultServerURL         = "http://127.0.0.1:8000"
	defaultSyncDownloadDelay = "300ms"
	defaultMaxUploadSize     = "0"
	defaultLogLevel          = "warn"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
	defaultHistoryEnabled    = true
)

// File names inside the data directory.
const (
	credentialFileName = "credential.json"
	historyFileName    = "history.db"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: defaultServerURL,
		},
		Transfers: TransfersConfig{
			SyncDownloadDelay: defaultSyncDownloadDelay,
			MaxUploadSize:     defaultMaxUploadSize,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		History: HistoryConfig{
			Enabled: defaultHistoryEnabled,
		},
	}
}
