package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string        `yaml:"port"`
	DatabaseURL string        `yaml:"databaseUrl"`
	RedisURL    string        `yaml:"redisUrl"`
	GraphPath   string        `yaml:"graphPath"`
	LogLevel    string        `yaml:"logLevel"`
	LogFormat   string        `yaml:"logFormat"` // json or console
	DBMigrate   bool          `yaml:"dbMigrate"`
	Rate        RateConfig    `yaml:"rate"`
	Solver      SolverConfig  `yaml:"solver"`
	Matrix      MatrixConfig  `yaml:"matrix"`
	Auth        AuthConfig    `yaml:"auth"`
	Webhook     WebhookConfig `yaml:"webhook"`
}

// RateConfig limits optimization requests per client address.
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SolverConfig struct {
	TimeBudget    time.Duration `yaml:"timeBudget"`
	MaxIterations int           `yaml:"maxIterations"`
	LocalSearch   bool          `yaml:"localSearch"`
}

type MatrixConfig struct {
	Workers       int `yaml:"workers"`
	PathCacheSize int `yaml:"pathCacheSize"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"` // off, dev or hmac
	HMACSecret string `yaml:"hmacSecret"`
	RoleClaim  string `yaml:"roleClaim"`
}

// WebhookConfig lists endpoints that receive every planning event.
type WebhookConfig struct {
	URLs        []string `yaml:"urls"`
	Secret      string   `yaml:"secret"`
	MaxAttempts int      `yaml:"maxAttempts"`
}

func Default() Config {
	return Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "json",
		DBMigrate: true,
		Rate:      RateConfig{RPS: 2, Burst: 4},
		Solver:    SolverConfig{TimeBudget: 30 * time.Second, MaxIterations: 100, LocalSearch: true},
		Matrix:    MatrixConfig{PathCacheSize: 4096},
		Auth:      AuthConfig{Mode: "off", RoleClaim: "role"},
		Webhook:   WebhookConfig{MaxAttempts: 5},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment variables. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("GRAPH_PATH", &c.GraphPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("WEBHOOK_SECRET", &c.Webhook.Secret)
	if v, ok := lookup("WEBHOOK_URLS"); ok && strings.TrimSpace(v) != "" {
		c.Webhook.URLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Webhook.URLs = append(c.Webhook.URLs, u)
			}
		}
	}

	var errs []error
	parse := func(key string, fn func(string) error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := fn(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}
	parse("DB_MIGRATE", func(v string) (err error) { c.DBMigrate, err = strconv.ParseBool(v); return })
	parse("RATE_RPS", func(v string) (err error) { c.Rate.RPS, err = strconv.ParseFloat(v, 64); return })
	parse("RATE_BURST", func(v string) (err error) { c.Rate.Burst, err = strconv.Atoi(v); return })
	parse("SOLVER_TIME_BUDGET", func(v string) (err error) { c.Solver.TimeBudget, err = time.ParseDuration(v); return })
	parse("SOLVER_MAX_ITERATIONS", func(v string) (err error) { c.Solver.MaxIterations, err = strconv.Atoi(v); return })
	parse("SOLVER_LOCAL_SEARCH", func(v string) (err error) { c.Solver.LocalSearch, err = strconv.ParseBool(v); return })
	parse("MATRIX_WORKERS", func(v string) (err error) { c.Matrix.Workers, err = strconv.Atoi(v); return })
	parse("PATH_CACHE_SIZE", func(v string) (err error) { c.Matrix.PathCacheSize, err = strconv.Atoi(v); return })
	parse("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhook.MaxAttempts, err = strconv.Atoi(v); return })
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate limits must be >= 0"))
	}
	if c.Solver.TimeBudget < 0 {
		errs = append(errs, errors.New("solver time budget must be >= 0"))
	}
	if c.Solver.MaxIterations < 0 {
		errs = append(errs, errors.New("solver max iterations must be >= 0"))
	}
	if c.Matrix.Workers < 0 || c.Matrix.PathCacheSize < 0 {
		errs = append(errs, errors.New("matrix workers and path cache size must be >= 0"))
	}
	switch c.Auth.Mode {
	case "off", "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth mode hmac needs AUTH_HMAC_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth mode %q: want off, dev or hmac", c.Auth.Mode))
	}
	if len(c.Webhook.URLs) > 0 && c.Webhook.MaxAttempts < 1 {
		errs = append(errs, errors.New("webhook max attempts must be >= 1"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log format %q: want json or console", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Redacted returns a view safe to expose on debug endpoints.
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"port":             c.Port,
		"graphPath":        c.GraphPath,
		"logLevel":         c.LogLevel,
		"rate":             c.Rate,
		"solver":           map[string]any{"timeBudget": c.Solver.TimeBudget.String(), "maxIterations": c.Solver.MaxIterations, "localSearch": c.Solver.LocalSearch},
		"matrix":           c.Matrix,
		"hasDatabaseUrl":   c.DatabaseURL != "",
		"hasRedisUrl":      c.RedisURL != "",
		"dbMigrateOnStart": c.DBMigrate,
		"authMode":         c.Auth.Mode,
		"webhookTargets":   len(c.Webhook.URLs),
	}
}
