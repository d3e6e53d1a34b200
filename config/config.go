package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the pairing gateway.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	Issuer    string `mapstructure:"ISSUER"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// StaticAPIKey is the long-lived fallback key accepted by the access
	// guard alongside issued tokens.
	StaticAPIKey string `mapstructure:"STATIC_API_KEY"`

	UserCodePrefix string `mapstructure:"USER_CODE_PREFIX"`

	AuthCodeTTLSec        int `mapstructure:"AUTH_CODE_TTL_SEC"`
	AccessTokenTTLHour    int `mapstructure:"ACCESS_TOKEN_TTL_HOUR"`
	RefreshTokenTTLHour   int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	SweepIntervalSec      int `mapstructure:"SWEEP_INTERVAL_SEC"`
	DevicePollIntervalSec int `mapstructure:"DEVICE_POLL_INTERVAL_SEC"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/pairgate/")
	v.AddConfigPath("$HOME/.pairgate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("STATIC_API_KEY", "pg_sk_change_me_before_deploying") // CHANGE IN PRODUCTION
	v.SetDefault("USER_CODE_PREFIX", "PAIR")
	v.SetDefault("AUTH_CODE_TTL_SEC", 600)       // 10 minutes
	v.SetDefault("ACCESS_TOKEN_TTL_HOUR", 168)   // 7 days
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)  // 30 days
	v.SetDefault("SWEEP_INTERVAL_SEC", 60)
	v.SetDefault("DEVICE_POLL_INTERVAL_SEC", 5)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we fall back to defaults and env.
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
