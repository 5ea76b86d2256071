package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rwfshr/markup/internal/utils"
)

type Config struct {
	Addr            string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	SQLitePath      string
	MigrationsDir   string
	JWTSecret       string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTL        time.Duration
	StrictAnswers   bool
	LogLevel        slog.Level
	CORSOrigins     []string
}

// Load reads an optional .env file, then the MARKUP_* environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          utils.SafeEnv("MARKUP_ADDR", ":8080"),
		UpstreamURL:   strings.TrimRight(utils.SafeEnv("MARKUP_UPSTREAM_URL", "http://localhost:8000"), "/"),
		SQLitePath:    utils.SafeEnv("MARKUP_SQLITE_PATH", "data/markup.db"),
		MigrationsDir: utils.SafeEnv("MARKUP_MIGRATIONS_DIR", ""),
		JWTSecret:     utils.SafeEnv("MARKUP_JWT_SECRET", ""),
		RedisAddr:     utils.SafeEnv("MARKUP_REDIS_ADDR", ""),
		RedisPassword: utils.SafeEnv("MARKUP_REDIS_PASSWORD", ""),
		CORSOrigins:   utils.EnvList("MARKUP_CORS_ORIGINS", []string{"*"}),
	}
	var errs []error
	var err error
	if cfg.UpstreamTimeout, err = utils.EnvDuration("MARKUP_UPSTREAM_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = utils.EnvInt("MARKUP_REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.CacheTTL, err = utils.EnvDuration("MARKUP_CACHE_TTL", 10*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.StrictAnswers, err = utils.EnvBool("MARKUP_STRICT_ANSWERS", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.LogLevel, err = ParseLevel(utils.SafeEnv("MARKUP_LOG_LEVEL", "info")); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("MARKUP_ADDR is required"))
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("MARKUP_UPSTREAM_URL: %q is not an absolute URL", c.UpstreamURL))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("MARKUP_UPSTREAM_TIMEOUT must be positive"))
	}
	if c.SQLitePath == "" {
		errs = append(errs, errors.New("MARKUP_SQLITE_PATH is required"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("MARKUP_CACHE_TTL must be positive"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, errors.New("MARKUP_REDIS_DB must not be negative"))
	}
	return errors.Join(errs...)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("MARKUP_LOG_LEVEL: unknown level %q", s)
}
