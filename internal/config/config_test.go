package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Regen.BatchSize != 100 || cfg.Regen.BatchPause != time.Second {
		t.Fatalf("regen defaults = %+v", cfg.Regen)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "listen: \":9000\"\nlog_level: LOUD\nnotion:\n  database_id: people\n  base_url: https://example.test/\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want fallback info", cfg.LogLevel)
	}
	if cfg.Notion.DatabaseID != "people" || cfg.Notion.BaseURL != "https://example.test" {
		t.Fatalf("Notion = %+v", cfg.Notion)
	}
	if cfg.Notion.Version == "" || cfg.Notion.ScheduleProperty == "" {
		t.Fatalf("Notion defaults missing: %+v", cfg.Notion)
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvOverlay(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(env.Options{
		Prefix: EnvPrefix,
		Environment: map[string]string{
			"CREWCAL_LISTEN":                     ":7000",
			"CREWCAL_NOTION_TOKEN":               "secret_abc",
			"CREWCAL_NOTION_REQUESTS_PER_SECOND": "1.5",
			"CREWCAL_REGEN_BATCH_PAUSE":          "250ms",
			"CREWCAL_FEED_UID_DOMAIN":            "example.org",
		},
	})
	if err != nil {
		t.Fatalf("applyEnv error: %v", err)
	}

	if cfg.Listen != ":7000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Notion.Token != "secret_abc" || cfg.Notion.RequestsPerSecond != 1.5 {
		t.Fatalf("Notion = %+v", cfg.Notion)
	}
	if cfg.Regen.BatchPause != 250*time.Millisecond {
		t.Fatalf("BatchPause = %v", cfg.Regen.BatchPause)
	}
	if cfg.Feed.UIDDomain != "example.org" {
		t.Fatalf("UIDDomain = %q", cfg.Feed.UIDDomain)
	}
	// Unset variables keep their values.
	if cfg.Regen.BatchSize != 100 {
		t.Fatalf("BatchSize = %d", cfg.Regen.BatchSize)
	}
}

func TestEnvOverlayRejectsBadValue(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.applyEnv(env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{"CREWCAL_REGEN_BATCH_SIZE": "many"},
	})
	if err == nil {
		t.Fatal("expected error for non-numeric batch size")
	}
}

func TestSaveDoesNotLeaveTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.yaml" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}
