package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, "badger", config.Storage.Type)
	assert.Equal(t, "us", config.Provider.Region)
	assert.Equal(t, 180*time.Second, ParseDuration(config.Extraction.MaxWait, 0))
	assert.Equal(t, 3*time.Second, ParseDuration(config.Extraction.PollInterval, 0))
	assert.False(t, config.Extraction.ReuseUploadedFile)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[provider]
region = "eu"
api_token = "from-file"

[extraction]
max_wait = "60s"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "eu", config.Provider.Region)
	assert.Equal(t, "from-file", config.Provider.APIToken)
	assert.Equal(t, "60s", config.Extraction.MaxWait)
	assert.Equal(t, "30s", config.Extraction.SubmitTimeout)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9000\n"), 0644))

	t.Setenv("EXTRACTA_SERVER_PORT", "9200")
	t.Setenv("EXTRACTA_PROVIDER_API_TOKEN", "from-env")
	t.Setenv("EXTRACTA_EXTRACTION_REUSE_UPLOADED_FILE", "true")
	t.Setenv("EXTRACTA_LOG_OUTPUT", "stdout, file ,")
	t.Setenv("EXTRACTA_LOG_FILE", "/var/log/extracta/service.log")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, "from-env", config.Provider.APIToken)
	assert.True(t, config.Extraction.ReuseUploadedFile)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, "/var/log/extracta/service.log", config.Logging.File)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[server\nport="), 0644))
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8085, config.Server.Port)

	ApplyFlagOverrides(config, 7000, "0.0.0.0")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage type", func(c *Config) { c.Storage.Type = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres" }},
		{"unknown region", func(c *Config) { c.Provider.Region = "ap" }},
		{"bad duration", func(c *Config) { c.Extraction.MaxWait = "soon" }},
		{"negative duration", func(c *Config) { c.Extraction.PollInterval = "-1s" }},
		{"bad cron", func(c *Config) { c.Scheduler.StaleSweep = "every minute" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}

	t.Run("empty schedule disables task", func(t *testing.T) {
		config := NewDefaultConfig()
		config.Scheduler.CatalogueRefresh = ""
		assert.NoError(t, config.Validate())
	})
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDuration("nope", 5*time.Second))
	assert.Equal(t, time.Minute, ParseDuration("1m", 5*time.Second))
}

func TestHasProviderCredentials(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.HasProviderCredentials())

	config.Provider.OAuth.TokenURL = "https://auth.example.com/token"
	config.Provider.OAuth.ClientID = "client"
	assert.True(t, config.HasProviderCredentials())
}
