// Package config loads tributary's YAML configuration.
//
// A missing file at the default location is not an error; every field has a
// default. API tokens never live in the file: they are read from the
// environment once at startup, and a missing token only fails the source
// that needs it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvRaindropToken = "RAINDROP_TOKEN"
	EnvDatabase      = "TRIBUTARY_DATABASE"
)

// Config is the full application configuration.
type Config struct {
	// Database is a SQLite path, sqlite:// URL or postgres:// URL.
	Database string `yaml:"database" validate:"required"`

	BatchSize        int           `yaml:"batch_size" validate:"gte=1,lte=1000"`
	StaleRunAfter    time.Duration `yaml:"stale_run_after" validate:"gt=0"`
	Daily            []string      `yaml:"daily" validate:"dive,oneof=browser github raindrop"`
	DailyParallelism int           `yaml:"daily_parallelism" validate:"gte=1,lte=8"`

	Metrics  MetricsConfig  `yaml:"metrics"`
	Browser  BrowserConfig  `yaml:"browser"`
	GitHub   GitHubConfig   `yaml:"github"`
	Raindrop RaindropConfig `yaml:"raindrop"`

	Credentials Credentials `yaml:"-"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after every sync command. Empty disables export.
	Textfile string `yaml:"textfile"`
}

// BrowserConfig locates a Chromium-family History database.
type BrowserConfig struct {
	HistoryPath string `yaml:"history_path"`
	PageSize    int    `yaml:"page_size" validate:"gte=1,lte=5000"`
}

// GitHubConfig selects whose commits to ingest and from which repositories.
type GitHubConfig struct {
	BaseURL           string   `yaml:"base_url" validate:"required,url"`
	User              string   `yaml:"user"`
	Repos             []string `yaml:"repos" validate:"dive,required,contains=/"`
	PageSize          int      `yaml:"page_size" validate:"gte=1,lte=100"`
	RequestsPerSecond float64  `yaml:"requests_per_second" validate:"gt=0"`
}

// RaindropConfig selects the Raindrop collection to ingest.
type RaindropConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	CollectionID      int64   `yaml:"collection_id"`
	PageSize          int     `yaml:"page_size" validate:"gte=1,lte=50"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

// Credentials are per-source API tokens.
type Credentials struct {
	GitHubToken   string
	RaindropToken string
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Database:         "tributary.db",
		BatchSize:        100,
		StaleRunAfter:    6 * time.Hour,
		Daily:            []string{"browser", "github", "raindrop"},
		DailyParallelism: 1,
		Browser: BrowserConfig{
			PageSize: 500,
		},
		GitHub: GitHubConfig{
			BaseURL:           "https://api.github.com",
			PageSize:          100,
			RequestsPerSecond: 1,
		},
		Raindrop: RaindropConfig{
			BaseURL:           "https://api.raindrop.io",
			CollectionID:      0,
			PageSize:          50,
			RequestsPerSecond: 2,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/tributary/tributary.yaml (or the
// platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "tributary", "tributary.yaml"), nil
}

// Load reads the config at path. An empty path means DefaultPath, and a
// missing file there yields Default(). A missing file at an explicit path is
// an error.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv fills credentials, and overrides the database, from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Credentials.GitHubToken = strings.TrimSpace(getenv(EnvGitHubToken))
	c.Credentials.RaindropToken = strings.TrimSpace(getenv(EnvRaindropToken))
	if db := strings.TrimSpace(getenv(EnvDatabase)); db != "" {
		c.Database = db
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
