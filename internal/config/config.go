// Package config collects every runtime knob the authorization core
// consumes into one explicitly constructed value. Components never read
// process environment themselves; cmd/api loads this once and injects it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultTokenTTL         = 7 * 24 * time.Hour
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultResetTokenTTL    = time.Hour
	defaultBcryptCost       = 12
)

// Config holds the server and authorization-core configuration.
type Config struct {
	HTTPAddr string
	PGDSN    string

	AuthSecret       string
	TokenTTL         time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	ResetTokenTTL    time.Duration
	BcryptCost       int
}

// FromEnv builds a Config from ENTADMIN_* environment variables, applying
// defaults for everything except the signing secret, which is mandatory.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:         envOr("ENTADMIN_HTTP_ADDR", defaultHTTPAddr),
		PGDSN:            strings.TrimSpace(os.Getenv("ENTADMIN_PG_DSN")),
		AuthSecret:       strings.TrimSpace(os.Getenv("ENTADMIN_AUTH_SECRET")),
		TokenTTL:         defaultTokenTTL,
		LockoutThreshold: defaultLockoutThreshold,
		LockoutDuration:  defaultLockoutDuration,
		ResetTokenTTL:    defaultResetTokenTTL,
		BcryptCost:       defaultBcryptCost,
	}
	if cfg.AuthSecret == "" {
		return Config{}, errors.New("config: ENTADMIN_AUTH_SECRET is required")
	}

	var err error
	if cfg.TokenTTL, err = envDuration("ENTADMIN_TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutDuration, err = envDuration("ENTADMIN_LOCKOUT_DURATION", cfg.LockoutDuration); err != nil {
		return Config{}, err
	}
	if cfg.ResetTokenTTL, err = envDuration("ENTADMIN_RESET_TOKEN_TTL", cfg.ResetTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.LockoutThreshold, err = envInt("ENTADMIN_LOCKOUT_THRESHOLD", cfg.LockoutThreshold); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("ENTADMIN_BCRYPT_COST", cfg.BcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.LockoutThreshold <= 0 {
		return Config{}, errors.New("config: lockout threshold must be positive")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return n, nil
}
