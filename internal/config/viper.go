// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Store struct {
		Driver      string `mapstructure:"driver" yaml:"driver"`
		SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
		MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	} `mapstructure:"store" yaml:"store"`

	Firebase struct {
		ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
		CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	} `mapstructure:"firebase" yaml:"firebase"`

	Gmail struct {
		CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
		TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
		UserID          string `mapstructure:"user_id" yaml:"user_id"`
		Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	} `mapstructure:"gmail" yaml:"gmail"`

	Ingest struct {
		RulesFile          string        `mapstructure:"rules_file" yaml:"rules_file"`
		MaxMessagesPerRule int           `mapstructure:"max_messages_per_rule" yaml:"max_messages_per_rule"`
		PassTimeout        time.Duration `mapstructure:"pass_timeout" yaml:"pass_timeout"`
		Schedule           string        `mapstructure:"schedule" yaml:"schedule"`
	} `mapstructure:"ingest" yaml:"ingest"`

	Ledger struct {
		Timezone string `mapstructure:"timezone" yaml:"timezone"`
	} `mapstructure:"ledger" yaml:"ledger"`

	Categories struct {
		File     string `mapstructure:"file" yaml:"file"`
		Fallback string `mapstructure:"fallback" yaml:"fallback"`
	} `mapstructure:"categories" yaml:"categories"`

	AI struct {
		Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
		Model          string `mapstructure:"model" yaml:"model"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		APIKey         string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
	} `mapstructure:"ai" yaml:"ai"`

	API struct {
		ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
		AllowedUIDs []string `mapstructure:"allowed_uids" yaml:"allowed_uids"`
		MaxUploadMB int64    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	} `mapstructure:"api" yaml:"api"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	v := viper.New()

	// 1. Defaults
	setDefaults(v)

	// 2. Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.networth")
	v.AddConfigPath(".networth")
	v.AddConfigPath(".")

	// 3. Environment variables
	v.SetEnvPrefix("NETWORTH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			Logger.Warnf("error reading config file %s: %v", v.ConfigFileUsed(), err)
		}
	}

	// 5. API key always comes from the unprefixed variable
	if err := v.BindEnv("ai.api_key", "GEMINI_API_KEY"); err != nil {
		Logger.Warnf("failed to bind GEMINI_API_KEY environment variable: %v", err)
	}

	return decode(v)
}

// LoadFromFile reads configuration from an explicit YAML file on top of the
// defaults. Environment overrides still apply.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("NETWORTH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "networth.db")
	v.SetDefault("store.max_attempts", 5)

	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.credentials_file", "")

	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.endpoint", "")

	v.SetDefault("ingest.rules_file", "rules.yaml")
	v.SetDefault("ingest.max_messages_per_rule", 10)
	v.SetDefault("ingest.pass_timeout", "5m")
	v.SetDefault("ingest.schedule", "@every 4h")

	v.SetDefault("ledger.timezone", "Local")

	v.SetDefault("categories.file", "categories.yaml")
	v.SetDefault("categories.fallback", "Uncategorized")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout_seconds", 30)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.allowed_uids", []string{})
	v.SetDefault("api.max_upload_mb", 5)
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	switch config.Store.Driver {
	case DriverSQLite:
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverFirestore:
		if config.Firebase.ProjectID == "" {
			return fmt.Errorf("firebase.project_id is required for the firestore driver")
		}
	default:
		return fmt.Errorf("unknown store driver: %s (must be '%s' or '%s')", config.Store.Driver, DriverSQLite, DriverFirestore)
	}

	if config.Store.MaxAttempts < 1 || config.Store.MaxAttempts > 50 {
		return fmt.Errorf("store.max_attempts must be between 1 and 50, got: %d", config.Store.MaxAttempts)
	}

	if config.Ingest.MaxMessagesPerRule < 1 || config.Ingest.MaxMessagesPerRule > 500 {
		return fmt.Errorf("ingest.max_messages_per_rule must be between 1 and 500, got: %d", config.Ingest.MaxMessagesPerRule)
	}

	if config.Ingest.PassTimeout <= 0 {
		return fmt.Errorf("ingest.pass_timeout must be positive, got: %s", config.Ingest.PassTimeout)
	}

	if _, err := config.Location(); err != nil {
		return err
	}

	if config.AI.Enabled {
		if config.AI.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when AI is enabled")
		}
		if config.AI.TimeoutSeconds < 1 || config.AI.TimeoutSeconds > 300 {
			return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", config.AI.TimeoutSeconds)
		}
	}

	if config.API.MaxUploadMB < 1 {
		return fmt.Errorf("api.max_upload_mb must be at least 1, got: %d", config.API.MaxUploadMB)
	}

	return nil
}

// Location resolves the timezone that defines ledger calendar days.
func (c *Config) Location() (*time.Location, error) {
	switch c.Ledger.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.timezone %q: %w", c.Ledger.Timezone, err)
	}
	return loc, nil
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
