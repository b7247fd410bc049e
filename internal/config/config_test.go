package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"danceimport/internal/classify"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("first-run config = %+v, want defaults", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
timezone: America/New_York
log_level: " DEBUG "
source:
  kind: Browser
  url: https://www.danceplace.com/events
categories:
  - label: Lindy Hop
    keywords: [lindy]
timezones:
  EST: America/New_York
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.RefreshCron != defaultRefreshCron || cfg.AgendaDays != defaultAgendaDays {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Source.Kind != "browser" || cfg.Source.Format != "html" {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.BaseURL != defaultBaseURL || cfg.Source.Timeout().Seconds() != defaultTimeoutSecs {
		t.Errorf("source defaults = %+v", cfg.Source)
	}
	if cfg.Calendar.TemplateURL != defaultTemplateURL || cfg.Calendar.DetailsPrefix != defaultDetailsPrefix {
		t.Errorf("calendar = %+v", cfg.Calendar)
	}
	wantRules := []classify.Rule{{Label: "Lindy Hop", Keywords: []string{"lindy"}}}
	if !reflect.DeepEqual(cfg.Categories, wantRules) {
		t.Errorf("categories = %+v", cfg.Categories)
	}
	if cfg.Timezones["EST"] != "America/New_York" {
		t.Errorf("timezones = %v", cfg.Timezones)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Source.Kind = "http"
	cfg.Source.URL = "https://example.test/events.json"
	cfg.Calendar.ICSPath = "/var/lib/danceimport/events.ics"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".danceimport-config-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"unknown timezone": func(c *Config) { c.Timezone = "Mars/Olympus" },
		"file without path": func(c *Config) {
			c.Source.Path = ""
		},
		"http without url": func(c *Config) {
			c.Source.Kind = "http"
		},
		"auth without user": func(c *Config) {
			c.BasicAuth = &BasicAuthConfig{Password: "x"}
		},
	}
	for name, mutate := range tests {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
