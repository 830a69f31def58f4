package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by ApplyEnv.
const EnvPrefix = "CREWCAL_"

// NotionConfig describes access to the workspace database holding the
// per-person schedule records.
type NotionConfig struct {
	// Token is the integration secret sent as a Bearer token.
	Token string `yaml:"token" json:"-" env:"TOKEN"`
	// BaseURL is the API root, e.g. "https://api.notion.com".
	BaseURL string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	// Version is sent as the Notion-Version header.
	Version string `yaml:"version" json:"version" env:"VERSION"`

	// DatabaseID is the people database walked by bulk regeneration.
	DatabaseID string `yaml:"database_id" json:"database_id" env:"DATABASE_ID"`
	// ScheduleProperty names the formula property carrying the schedule JSON.
	ScheduleProperty string `yaml:"schedule_property" json:"schedule_property" env:"SCHEDULE_PROPERTY"`
	// NameProperty names the title property used as display name. Empty
	// means "whichever property has type title".
	NameProperty string `yaml:"name_property" json:"name_property" env:"NAME_PROPERTY"`

	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// FeedConfig controls calendar-level metadata of generated documents.
type FeedConfig struct {
	ProductID string `yaml:"product_id" json:"product_id" env:"PRODUCT_ID"`
	// UIDDomain is the suffix of every entry UID ("...@<domain>").
	UIDDomain string `yaml:"uid_domain" json:"uid_domain" env:"UID_DOMAIN"`
	// RefreshInterval is advertised to subscribers as REFRESH-INTERVAL.
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval" env:"REFRESH_INTERVAL"`
}

// RegenConfig controls bulk regeneration of feed files.
type RegenConfig struct {
	// Cron is a cron-style schedule (e.g. "0 * * * *"). Empty disables
	// scheduled regeneration.
	Cron string `yaml:"cron" json:"cron" env:"CRON"`
	// OutputDir receives one <person-id>.ics per person.
	OutputDir string `yaml:"output_dir" json:"output_dir" env:"OUTPUT_DIR"`
	// BatchSize is the number of people fetched concurrently per group.
	BatchSize int `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	// BatchPause is the wait between groups.
	BatchPause time.Duration `yaml:"batch_pause" json:"batch_pause" env:"BATCH_PAUSE"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the feed endpoint.
	Listen string `yaml:"listen" json:"listen" env:"LISTEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	Notion NotionConfig `yaml:"notion" json:"notion" envPrefix:"NOTION_"`
	Feed   FeedConfig   `yaml:"feed" json:"feed" envPrefix:"FEED_"`
	Regen  RegenConfig  `yaml:"regen" json:"regen" envPrefix:"REGEN_"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Notion: NotionConfig{
			BaseURL:           "https://api.notion.com",
			Version:           "2022-06-28",
			ScheduleProperty:  "Schedule",
			RequestsPerSecond: 3,
			Timeout:           15 * time.Second,
		},
		Feed: FeedConfig{
			ProductID:       "-//crewcal//Personnel Schedule//EN",
			UIDDomain:       "crewcal",
			RefreshInterval: time.Hour,
		},
		Regen: RegenConfig{
			Cron:       "",
			OutputDir:  "feeds",
			BatchSize:  100,
			BatchPause: time.Second,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}

	c.Notion.BaseURL = strings.TrimRight(c.Notion.BaseURL, "/")
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = def.Notion.BaseURL
	}
	if c.Notion.Version == "" {
		c.Notion.Version = def.Notion.Version
	}
	if c.Notion.ScheduleProperty == "" {
		c.Notion.ScheduleProperty = def.Notion.ScheduleProperty
	}
	if c.Notion.RequestsPerSecond <= 0 {
		c.Notion.RequestsPerSecond = def.Notion.RequestsPerSecond
	}
	if c.Notion.Timeout <= 0 {
		c.Notion.Timeout = def.Notion.Timeout
	}

	if c.Feed.ProductID == "" {
		c.Feed.ProductID = def.Feed.ProductID
	}
	if c.Feed.UIDDomain == "" {
		c.Feed.UIDDomain = def.Feed.UIDDomain
	}
	if c.Feed.RefreshInterval < 0 {
		c.Feed.RefreshInterval = 0
	}

	if c.Regen.OutputDir == "" {
		c.Regen.OutputDir = def.Regen.OutputDir
	}
	if c.Regen.BatchSize <= 0 {
		c.Regen.BatchSize = def.Regen.BatchSize
	}
	if c.Regen.BatchPause < 0 {
		c.Regen.BatchPause = 0
	}
}

// ApplyEnv overlays CREWCAL_* environment variables onto c. Variables that
// are unset leave the current value alone.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (c *Config) applyEnv(opts env.Options) error {
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("config env overlay: %w", err)
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path and applies the
// environment overlay.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Secrets supplied through the environment are never written back to disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o700, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file. Missing
// parent directories are created with dirPerm.
func WriteFileAtomic(path string, data []byte, dirPerm, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".crewcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
