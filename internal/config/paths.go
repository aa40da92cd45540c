package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the path to the Latchway data directory.
// - Windows: %APPDATA%\latchway
// - Other OS: ~/.latchway
func DataDir() string {
	if dir := os.Getenv("LATCHWAY_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "latchway")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".latchway"
	}
	return filepath.Join(home, ".latchway")
}

// DefaultConfigPath returns the routing config location used when no flag or
// LATCHWAY_CONFIG is given.
func DefaultConfigPath() string {
	if path := os.Getenv("LATCHWAY_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("config", "config.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
