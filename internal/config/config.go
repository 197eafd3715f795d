package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings, sourced from environment variables.
// main loads a .env file first, so local overrides live there.
type Config struct {
	HTTPAddr        string        `env:"NEXUSAUTH_HTTP_ADDR" envDefault:":8080"`
	DBDSN           string        `env:"NEXUSAUTH_DB_DSN"`
	UsersPath       string        `env:"NEXUSAUTH_USERS_PATH" envDefault:"config/users.yaml"`
	LockoutPath     string        `env:"NEXUSAUTH_LOCKOUT_PATH" envDefault:"config/lockout.yaml"`
	ChallengeSecret string        `env:"NEXUSAUTH_CHALLENGE_SECRET"`
	SessionLifetime time.Duration `env:"NEXUSAUTH_SESSION_LIFETIME" envDefault:"24h"`
	SessionSliding  bool          `env:"NEXUSAUTH_SESSION_SLIDING" envDefault:"false"`
	SweepInterval   time.Duration `env:"NEXUSAUTH_SWEEP_INTERVAL" envDefault:"0"`
	LoginRedirect   string        `env:"NEXUSAUTH_LOGIN_REDIRECT" envDefault:"/login"`
	CookieName      string        `env:"NEXUSAUTH_COOKIE_NAME" envDefault:"nexusauth_session"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeSecret == "" {
		cfg.ChallengeSecret = "dev-secret-change-me"
	}
	return cfg, nil
}
