package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

// FileConfig represents the configuration file structure.
// JSON is the canonical format; TOML and YAML files carry the same keys.
type FileConfig struct {
	Models          []BackendEntry    `json:"models" toml:"models" yaml:"models" validate:"dive"`
	APIKeys         map[string]string `json:"api_keys" toml:"api_keys" yaml:"api_keys"`
	DefaultCategory string            `json:"default_category" toml:"default_category" yaml:"default_category"`
	Retries         int               `json:"retries" toml:"retries" yaml:"retries" validate:"gte=0"`
	RetryDelay      float64           `json:"retry_delay" toml:"retry_delay" yaml:"retry_delay" validate:"gte=0"`

	// Optional server settings
	ServerPort     string      `json:"server_port,omitempty" toml:"server_port" yaml:"server_port"`
	BackendTimeout float64     `json:"backend_timeout,omitempty" toml:"backend_timeout" yaml:"backend_timeout" validate:"gte=0"`
	MaxRetryWait   float64     `json:"max_retry_wait,omitempty" toml:"max_retry_wait" yaml:"max_retry_wait" validate:"gte=0"`
	LogLevel       string      `json:"log_level,omitempty" toml:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat      string      `json:"log_format,omitempty" toml:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json pretty"`
	State          *StateEntry `json:"state,omitempty" toml:"state" yaml:"state"`
}

// BackendEntry is one upstream provider as written in the config file.
type BackendEntry struct {
	Name     string   `json:"name" toml:"name" yaml:"name" validate:"required"`
	URL      string   `json:"url" toml:"url" yaml:"url" validate:"required,url"`
	APIKey   string   `json:"api_key" toml:"api_key" yaml:"api_key"`
	Category []string `json:"category" toml:"category" yaml:"category" validate:"required,min=1,dive,required"`
	Latch    bool     `json:"latch" toml:"latch" yaml:"latch"`
}

// StateEntry selects where shared routing state lives.
type StateEntry struct {
	Backend   string `json:"backend" toml:"backend" yaml:"backend" validate:"omitempty,oneof=file sqlite redis"`
	Path      string `json:"path" toml:"path" yaml:"path"`
	RedisURL  string `json:"redis_url" toml:"redis_url" yaml:"redis_url"`
	KeyPrefix string `json:"key_prefix" toml:"key_prefix" yaml:"key_prefix"`
}

// ParseFile reads and decodes a config file, choosing the decoder from the
// file extension. Unknown extensions are decoded as JSON.
func ParseFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode toml config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode json config: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureConfigFile writes an example config if none exists at path.
func EnsureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	example := `{
  "models": [
    {"name": "provider/model-a", "url": "https://api.example.com/v1/chat/completions", "api_key": "sk-...", "category": ["free"], "latch": true},
    {"name": "provider/model-b", "url": "https://api.other.example/v1/chat/completions", "api_key": "sk-...", "category": ["free"], "latch": false}
  ],
  "api_keys": {"free": ""},
  "default_category": "free",
  "retries": 1,
  "retry_delay": 1
}
`
	return os.WriteFile(path, []byte(example), 0o600)
}
