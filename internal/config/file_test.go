package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const jsonConfig = `{
  "models": [
    {"name": "openrouter/a", "url": "https://a.example/v1/chat/completions", "api_key": "k1", "category": ["free"], "latch": true},
    {"name": "groq/b", "url": "https://b.example/v1/chat/completions", "api_key": "k2", "category": ["free", "fast"]}
  ],
  "api_keys": {"free": "sekret"},
  "default_category": "free",
  "retries": 2,
  "retry_delay": 0.5
}`

const tomlConfig = `
default_category = "free"
retries = 2
retry_delay = 0.5

[api_keys]
free = "sekret"

[[models]]
name = "openrouter/a"
url = "https://a.example/v1/chat/completions"
api_key = "k1"
category = ["free"]
latch = true

[[models]]
name = "groq/b"
url = "https://b.example/v1/chat/completions"
api_key = "k2"
category = ["free", "fast"]
`

const yamlConfig = `
default_category: free
retries: 2
retry_delay: 0.5
api_keys:
  free: sekret
models:
  - name: openrouter/a
    url: https://a.example/v1/chat/completions
    api_key: k1
    category: [free]
    latch: true
  - name: groq/b
    url: https://b.example/v1/chat/completions
    api_key: k2
    category: [free, fast]
`

func TestParseFile_Formats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"config.json", jsonConfig},
		{"config.toml", tomlConfig},
		{"config.yaml", yamlConfig},
		{"config.yml", yamlConfig},
		{"config", jsonConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fc, err := ParseFile(writeFile(t, tc.name, tc.body))
			require.NoError(t, err)

			assert.Equal(t, "free", fc.DefaultCategory)
			assert.Equal(t, 2, fc.Retries)
			assert.InDelta(t, 0.5, fc.RetryDelay, 1e-9)
			assert.Equal(t, map[string]string{"free": "sekret"}, fc.APIKeys)
			require.Len(t, fc.Models, 2)
			assert.Equal(t, BackendEntry{
				Name:     "openrouter/a",
				URL:      "https://a.example/v1/chat/completions",
				APIKey:   "k1",
				Category: []string{"free"},
				Latch:    true,
			}, fc.Models[0])
			assert.False(t, fc.Models[1].Latch)
		})
	}
}

func TestParseFile_Errors(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ParseFile(writeFile(t, "bad.json", `{"models": [`))
	assert.ErrorContains(t, err, "decode json config")

	_, err = ParseFile(writeFile(t, "bad.toml", `models = [`))
	assert.ErrorContains(t, err, "decode toml config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     FileConfig
		wantErr []string
	}{
		{
			name: "valid",
			cfg: FileConfig{Models: []BackendEntry{
				{Name: "a", URL: "https://a.example/v1", Category: []string{"free"}},
			}},
		},
		{
			name: "empty is valid",
			cfg:  FileConfig{},
		},
		{
			name: "missing fields",
			cfg:  FileConfig{Models: []BackendEntry{{}}},
			wantErr: []string{
				"FileConfig.Models[0].Name is required",
				"FileConfig.Models[0].URL is required",
				"FileConfig.Models[0].Category is required",
			},
		},
		{
			name: "bad url and empty category entry",
			cfg: FileConfig{Models: []BackendEntry{
				{Name: "a", URL: "not a url", Category: []string{""}},
			}},
			wantErr: []string{
				"FileConfig.Models[0].URL must be a valid URL",
				"FileConfig.Models[0].Category[0] is required",
			},
		},
		{
			name: "negative numbers",
			cfg:  FileConfig{Retries: -1, RetryDelay: -2},
			wantErr: []string{
				"FileConfig.Retries must be greater than or equal to 0",
				"FileConfig.RetryDelay must be greater than or equal to 0",
			},
		},
		{
			name: "duplicate names",
			cfg: FileConfig{Models: []BackendEntry{
				{Name: "a", URL: "https://a.example", Category: []string{"free"}},
				{Name: "a", URL: "https://b.example", Category: []string{"paid"}},
			}},
			wantErr: []string{`duplicate backend name "a"`},
		},
		{
			name:    "unknown state backend",
			cfg:     FileConfig{State: &StateEntry{Backend: "etcd"}},
			wantErr: []string{"FileConfig.State.Backend must be one of: file sqlite redis"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if len(tc.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			for _, want := range tc.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestEnsureConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	require.NoError(t, EnsureConfigFile(path))

	fc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "free", fc.DefaultCategory)
	assert.Len(t, fc.Models, 2)

	// Existing files are left alone.
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	require.NoError(t, EnsureConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
