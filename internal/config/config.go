package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"danceimport/internal/classify"
)

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "America/Los_Angeles"
	defaultLogLevel      = "info"
	defaultRefreshCron   = "0 */6 * * *"
	defaultBaseURL       = "https://www.danceplace.com"
	defaultTemplateURL   = "https://www.google.com/calendar/render"
	defaultDetailsPrefix = "View event details at: "
	defaultAgendaDays    = 14
	defaultTimeoutSecs   = 30
)

// SourceConfig describes where the raw listing payload comes from.
type SourceConfig struct {
	// Kind is one of "file", "http" or "browser".
	Kind string `yaml:"kind" json:"kind"`
	// Format is "json" for day-range records or "html" for a listing page.
	Format string `yaml:"format" json:"format"`

	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`

	// BaseURL prefixes relative event links found in HTML.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// WaitSelector is the CSS selector the browser waits for (browser kind only).
	WaitSelector string `yaml:"wait_selector,omitempty" json:"wait_selector,omitempty"`

	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	CacheDir       string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CalendarConfig controls add-to-calendar links and the ICS export.
type CalendarConfig struct {
	TemplateURL   string `yaml:"template_url" json:"template_url"`
	DetailsPrefix string `yaml:"details_prefix" json:"details_prefix"`
	// ICSPath, when set, receives an ICS file after every successful refresh.
	ICSPath string `yaml:"ics_path,omitempty" json:"ics_path,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "today" and the wall clock for
	// calendar-day strings (e.g. "America/Los_Angeles").
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */6 * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Source   SourceConfig   `yaml:"source" json:"source"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// Categories overrides the built-in keyword table when non-empty.
	Categories []classify.Rule `yaml:"categories,omitempty" json:"categories,omitempty"`

	// Timezones overrides the built-in abbreviation table when non-empty.
	Timezones map[string]string `yaml:"timezones,omitempty" json:"timezones,omitempty"`

	// AgendaDays is the default window for the agenda view.
	AgendaDays int `yaml:"agenda_days" json:"agenda_days"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    defaultLogLevel,
		RefreshCron: defaultRefreshCron,
		Source: SourceConfig{
			Kind:           "file",
			Format:         "json",
			Path:           "./events.json",
			BaseURL:        defaultBaseURL,
			TimeoutSeconds: defaultTimeoutSecs,
		},
		Calendar: CalendarConfig{
			TemplateURL:   defaultTemplateURL,
			DetailsPrefix: defaultDetailsPrefix,
		},
		AgendaDays: defaultAgendaDays,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}

	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	switch c.Source.Kind {
	case "file", "http", "browser":
	default:
		c.Source.Kind = "file"
	}
	c.Source.Format = strings.ToLower(strings.TrimSpace(c.Source.Format))
	switch c.Source.Format {
	case "json", "html":
	case "":
		// A browser only ever yields rendered HTML.
		if c.Source.Kind == "browser" {
			c.Source.Format = "html"
		} else {
			c.Source.Format = "json"
		}
	default:
		c.Source.Format = "json"
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = defaultBaseURL
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = defaultTimeoutSecs
	}

	if c.Calendar.TemplateURL == "" {
		c.Calendar.TemplateURL = defaultTemplateURL
	}
	if c.Calendar.DetailsPrefix == "" {
		c.Calendar.DetailsPrefix = defaultDetailsPrefix
	}
	if c.AgendaDays <= 0 {
		c.AgendaDays = defaultAgendaDays
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("config: unknown timezone " + c.Timezone)
	}
	switch c.Source.Kind {
	case "file":
		if c.Source.Path == "" {
			return errors.New("config: source.path is required for kind file")
		}
	case "http", "browser":
		if c.Source.URL == "" {
			return errors.New("config: source.url is required for kind " + c.Source.Kind)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("config: basic_auth.username is empty")
	}
	return nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".danceimport-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
