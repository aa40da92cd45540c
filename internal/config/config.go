package config

import (
	"os"
	"path/filepath"
)

// Config holds process settings loaded from environment and file.
// Priority: CLI flags → Env vars → config file → defaults
type Config struct {
	// ConfigPath is the routing config file, re-read while the server runs
	ConfigPath string

	// ServerPort is the address to bind the server to (e.g., ":5000")
	ServerPort string

	// LogLevel is one of debug, info, warn, error
	LogLevel string

	// LogFormat is one of text, json, pretty
	LogFormat string

	// State selects the shared routing state store
	State StateConfig
}

// StateConfig describes the shared routing state store.
type StateConfig struct {
	Backend   string // file, sqlite or redis
	Path      string // file and sqlite
	RedisURL  string
	KeyPrefix string
}

// Load reads process settings from the config file at path and the environment.
// A missing or broken file is not fatal here; the routing snapshot source
// reports that separately.
func Load(path string) *Config {
	fileConfig, err := ParseFile(path)
	if err != nil {
		fileConfig = &FileConfig{}
	}
	state := fileConfig.State
	if state == nil {
		state = &StateEntry{}
	}

	backend := getEnvOrFile("STATE_BACKEND", state.Backend, "file")
	return &Config{
		ConfigPath: path,
		ServerPort: getEnvOrFile("SERVER_PORT", fileConfig.ServerPort, ":5000"),
		LogLevel:   getEnvOrFile("LOG_LEVEL", fileConfig.LogLevel, "info"),
		LogFormat:  getEnvOrFile("LOG_FORMAT", fileConfig.LogFormat, "text"),
		State: StateConfig{
			Backend:   backend,
			Path:      getEnvOrFile("STATE_PATH", state.Path, defaultStatePath(backend)),
			RedisURL:  getEnvOrFile("REDIS_URL", state.RedisURL, "redis://localhost:6379/0"),
			KeyPrefix: getEnvOrFile("STATE_KEY_PREFIX", state.KeyPrefix, "latchway"),
		},
	}
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

func defaultStatePath(backend string) string {
	if backend == "sqlite" {
		return filepath.Join(DataDir(), "state.db")
	}
	return filepath.Join(DataDir(), "state.json")
}
