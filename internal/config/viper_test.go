package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearTestEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NETWORTH_LOG_LEVEL",
		"NETWORTH_LOG_FORMAT",
		"NETWORTH_STORE_DRIVER",
		"NETWORTH_STORE_SQLITE_PATH",
		"NETWORTH_STORE_MAX_ATTEMPTS",
		"NETWORTH_FIREBASE_PROJECT_ID",
		"NETWORTH_INGEST_MAX_MESSAGES_PER_RULE",
		"NETWORTH_INGEST_PASS_TIMEOUT",
		"NETWORTH_LEDGER_TIMEZONE",
		"NETWORTH_AI_ENABLED",
		"GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestInitializeConfig_Defaults(t *testing.T) {
	clearTestEnvVars(t)

	config, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, DriverSQLite, config.Store.Driver)
	assert.Equal(t, "networth.db", config.Store.SQLitePath)
	assert.Equal(t, 5, config.Store.MaxAttempts)
	assert.Equal(t, "me", config.Gmail.UserID)
	assert.Equal(t, 10, config.Ingest.MaxMessagesPerRule)
	assert.Equal(t, 5*time.Minute, config.Ingest.PassTimeout)
	assert.Equal(t, "@every 4h", config.Ingest.Schedule)
	assert.Equal(t, "Uncategorized", config.Categories.Fallback)
	assert.False(t, config.AI.Enabled)
	assert.Equal(t, ":8080", config.API.ListenAddr)
	assert.Empty(t, config.API.AllowedUIDs)
}

func TestInitializeConfig_EnvironmentVariables(t *testing.T) {
	clearTestEnvVars(t)

	t.Setenv("NETWORTH_LOG_LEVEL", "debug")
	t.Setenv("NETWORTH_LOG_FORMAT", "json")
	t.Setenv("NETWORTH_STORE_MAX_ATTEMPTS", "8")
	t.Setenv("NETWORTH_INGEST_MAX_MESSAGES_PER_RULE", "25")
	t.Setenv("NETWORTH_INGEST_PASS_TIMEOUT", "90s")
	t.Setenv("NETWORTH_LEDGER_TIMEZONE", "Europe/Zurich")
	t.Setenv("NETWORTH_AI_ENABLED", "true")
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	config, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, 8, config.Store.MaxAttempts)
	assert.Equal(t, 25, config.Ingest.MaxMessagesPerRule)
	assert.Equal(t, 90*time.Second, config.Ingest.PassTimeout)
	assert.True(t, config.AI.Enabled)
	assert.Equal(t, "test-api-key", config.AI.APIKey)

	loc, err := config.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Zurich", loc.String())
}

func TestLoadFromFile(t *testing.T) {
	clearTestEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: warn
store:
  driver: firestore
firebase:
  project_id: networth-test
ingest:
  rules_file: /etc/networth/rules.yaml
api:
  allowed_uids:
    - uid-1
    - uid-2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", config.Log.Level)
	assert.Equal(t, DriverFirestore, config.Store.Driver)
	assert.Equal(t, "networth-test", config.Firebase.ProjectID)
	assert.Equal(t, "/etc/networth/rules.yaml", config.Ingest.RulesFile)
	assert.Equal(t, []string{"uid-1", "uid-2"}, config.API.AllowedUIDs)
	// untouched sections keep their defaults
	assert.Equal(t, 10, config.Ingest.MaxMessagesPerRule)
}

func TestLoadFromFile_Missing(t *testing.T) {
	clearTestEnvVars(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	c := &Config{}
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Store.Driver = DriverSQLite
	c.Store.SQLitePath = "networth.db"
	c.Store.MaxAttempts = 5
	c.Ingest.MaxMessagesPerRule = 10
	c.Ingest.PassTimeout = time.Minute
	c.Ledger.Timezone = "UTC"
	c.API.MaxUploadMB = 5
	return c
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "invalid log format"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: "unknown store driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.SQLitePath = "" }, wantErr: "sqlite_path"},
		{name: "firestore without project", mutate: func(c *Config) { c.Store.Driver = DriverFirestore }, wantErr: "project_id"},
		{name: "zero attempts", mutate: func(c *Config) { c.Store.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "zero messages", mutate: func(c *Config) { c.Ingest.MaxMessagesPerRule = 0 }, wantErr: "max_messages_per_rule"},
		{name: "zero timeout", mutate: func(c *Config) { c.Ingest.PassTimeout = 0 }, wantErr: "pass_timeout"},
		{name: "bad timezone", mutate: func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }, wantErr: "ledger.timezone"},
		{name: "ai without key", mutate: func(c *Config) { c.AI.Enabled = true; c.AI.TimeoutSeconds = 30 }, wantErr: "GEMINI_API_KEY"},
		{name: "zero upload size", mutate: func(c *Config) { c.API.MaxUploadMB = 0 }, wantErr: "max_upload_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := validateConfig(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigureLoggingFromConfig(t *testing.T) {
	c := validConfig()
	c.Log.Level = "debug"
	c.Log.Format = "json"

	logger := ConfigureLoggingFromConfig(c)
	assert.Equal(t, "debug", logger.GetLevel().String())
}
