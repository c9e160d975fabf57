package config

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"
)

type (
	Config struct {
		Host       string `mapstructure:"HOST"`
		Port       string `mapstructure:"PORT"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		JWTSecret   string `mapstructure:"JWT_SECRET"`
		JWTTTLHours int    `mapstructure:"JWT_TTL_HOURS"`

		ExportDir string `mapstructure:"EXPORT_DIR"`
		// Export jobs still marked running after this many minutes are
		// reconciled to failure on startup.
		ExportStaleAfterMinutes int `mapstructure:"EXPORT_STALE_AFTER_MINUTES"`
	}
)

func NewConfig() (*Config, error) {
	viper.SetEnvPrefix("TABLOOM")

	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("DB_HOST", "0.0.0.0")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "db")
	viper.SetDefault("DB_SSL_MODE", sslModeDisable)
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("JWT_TTL_HOURS", 24)
	viper.SetDefault("EXPORT_DIR", "/app/exports")
	viper.SetDefault("EXPORT_STALE_AFTER_MINUTES", 60)

	envs := []string{
		"HOST", "PORT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"JWT_SECRET", "JWT_TTL_HOURS",
		"EXPORT_DIR", "EXPORT_STALE_AFTER_MINUTES",
	}
	for _, key := range envs {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	validSSLValues := []string{sslModeDisable, sslModeRequire}
	valid := false
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			valid = true
			break
		}
	}
	if !valid {
		return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT secret must not be empty")
	}
	if cfg.JWTTTLHours <= 0 {
		return errors.New(fmt.Sprintf("JWT TTL is invalid: %d", cfg.JWTTTLHours))
	}
	return nil
}
