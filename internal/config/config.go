package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string

	ProfileBaseURL string
	AuthBaseURL    string

	PostLifetime  time.Duration
	SweepInterval time.Duration
	RevealGrace   time.Duration
	Retention     time.Duration
}

// Load reads configuration from PULSE_-prefixed environment variables,
// falling back to development defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("pulse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "sqlite://pulse.db")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("profile_base_url", "http://localhost:9000")
	v.SetDefault("auth_base_url", "http://localhost:9000")
	v.SetDefault("post_lifetime", 24*time.Hour)
	v.SetDefault("sweep_interval", 10*time.Minute)
	v.SetDefault("reveal_grace", time.Hour)
	v.SetDefault("retention", 72*time.Hour)

	c := &Config{
		Port:           v.GetString("port"),
		DatabaseURL:    v.GetString("database_url"),
		CORSOrigin:     v.GetString("cors_origin"),
		ProfileBaseURL: v.GetString("profile_base_url"),
		AuthBaseURL:    v.GetString("auth_base_url"),
		PostLifetime:   v.GetDuration("post_lifetime"),
		SweepInterval:  v.GetDuration("sweep_interval"),
		RevealGrace:    v.GetDuration("reveal_grace"),
		Retention:      v.GetDuration("retention"),
	}
	return c, nil
}
