package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "CLOUDDRIVE_CONFIG"
	EnvServer  = "CLOUDDRIVE_SERVER"
	EnvDataDir = "CLOUDDRIVE_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // CLOUDDRIVE_CONFIG: config file path
	Server     string // CLOUDDRIVE_SERVER: service base URL
	DataDir    string // CLOUDDRIVE_DATA_DIR: credential and history location
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Server:     os.Getenv(EnvServer),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
