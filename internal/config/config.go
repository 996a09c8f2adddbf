package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/email-verifier/")
	v.AddConfigPath("$HOME/.email-verifier")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("EMAIL_VERIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.max_stream_duration", "5m")

	// SMTP relay defaults. The prober talks to a fixed authenticated relay,
	// not the target domain's own MX hosts.
	v.SetDefault("smtp.host", "in-v3.mailjet.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.auth_user", "")
	v.SetDefault("smtp.auth_password", "")
	v.SetDefault("smtp.helo_domain", "example.com")
	v.SetDefault("smtp.from_domain", "example.com")
	v.SetDefault("smtp.connect_timeout", "10s")
	v.SetDefault("smtp.command_timeout", "8s")
	v.SetDefault("smtp.data_probe", true)

	// Mailjet API defaults
	v.SetDefault("mailjet.api_key", "")
	v.SetDefault("mailjet.secret_key", "")
	v.SetDefault("mailjet.base_url", "https://api.mailjet.com/v3/REST")
	v.SetDefault("mailjet.http_timeout", "30s")
	v.SetDefault("mailjet.max_retries", 3)
	v.SetDefault("mailjet.retry_base_delay", "1s")

	// Job polling defaults
	v.SetDefault("polling.initial_wait", "20s")
	v.SetDefault("polling.interval", "5s")
	v.SetDefault("polling.max_attempts", 120)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "600s")
	v.SetDefault("cache.cleanup_frequency", "5m")
	v.SetDefault("cache.sqlite_path", "/data/email_verdicts.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/email_verifier")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
