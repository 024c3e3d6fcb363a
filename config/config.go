package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the service.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// Redis backs the counter store and the distributed lock. When RedisAddr
	// is empty the server falls back to the in-memory stores (single
	// instance / development only).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Proof-code parameters. CodeSecret feeds the deterministic code
	// derivation; rotating it invalidates all live codes.
	CodeSecret string `mapstructure:"CODE_SECRET"`
	CodeTTLMin int    `mapstructure:"CODE_TTL_MIN"`

	LockTTLSec int `mapstructure:"LOCK_TTL_SEC"`

	// Orphan detection knobs.
	DetectMaxRetries       int `mapstructure:"DETECT_MAX_RETRIES"`
	DetectAttemptTimeoutMs int `mapstructure:"DETECT_ATTEMPT_TIMEOUT_MS"`

	// Response shaping.
	ShaperTargetMs int `mapstructure:"SHAPER_TARGET_MS"`
	ShaperJitterMs int `mapstructure:"SHAPER_JITTER_MS"`

	// Rate-limit tiers.
	RateGlobalLimit     int `mapstructure:"RATE_GLOBAL_LIMIT"`
	RateGlobalWindowSec int `mapstructure:"RATE_GLOBAL_WINDOW_SEC"`
	RateSourceLimit     int `mapstructure:"RATE_SOURCE_LIMIT"`
	RateSourceWindowSec int `mapstructure:"RATE_SOURCE_WINDOW_SEC"`
	RateEmailLimit      int `mapstructure:"RATE_EMAIL_LIMIT"`
	RateEmailWindowSec  int `mapstructure:"RATE_EMAIL_WINDOW_SEC"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/identity-recovery/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/identity_recovery_dev")
	v.SetDefault("MONGO_DB_NAME", "identity_recovery_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "identity-recovery")
	v.SetDefault("CODE_SECRET", "dev_only_code_secret_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("CODE_TTL_MIN", 10)
	v.SetDefault("LOCK_TTL_SEC", 30)
	v.SetDefault("DETECT_MAX_RETRIES", 3)
	v.SetDefault("DETECT_ATTEMPT_TIMEOUT_MS", 500)
	v.SetDefault("SHAPER_TARGET_MS", 500)
	v.SetDefault("SHAPER_JITTER_MS", 25)
	v.SetDefault("RATE_GLOBAL_LIMIT", 1000)
	v.SetDefault("RATE_GLOBAL_WINDOW_SEC", 60)
	v.SetDefault("RATE_SOURCE_LIMIT", 10)
	v.SetDefault("RATE_SOURCE_WINDOW_SEC", 60)
	v.SetDefault("RATE_EMAIL_LIMIT", 5)
	v.SetDefault("RATE_EMAIL_WINDOW_SEC", 60)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable: run on defaults and env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
