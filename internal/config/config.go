package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/Nomadcxx/embress/internal/paths"
	"github.com/spf13/viper"
)

type Config struct {
	Library  LibraryConfig  `mapstructure:"library"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Watch    WatchConfig    `mapstructure:"watch"`
	API      APIConfig      `mapstructure:"api"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// LibraryConfig describes the library layout: root/<media type dir>/<show>/[season]/file
type LibraryConfig struct {
	Root string `mapstructure:"root"`
	// MediaTypes maps a top-level directory name to "series" or "movie".
	MediaTypes map[string]string `mapstructure:"media_types"`
	Template   string            `mapstructure:"template"`
	// Extensions override the built-in lists when non-empty.
	VideoExtensions    []string `mapstructure:"video_extensions"`
	SubtitleExtensions []string `mapstructure:"subtitle_extensions"`
	AudioExtensions    []string `mapstructure:"audio_extensions"`
	PictureExtensions  []string `mapstructure:"picture_extensions"`
}

type ScanConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Interval  string `mapstructure:"interval"`
	Workers   int    `mapstructure:"workers"`
	FSTimeout string `mapstructure:"fs_timeout"`
	KeepRuns  int    `mapstructure:"keep_runs"`
	// PruneEmptyRuns drops runs that produced no changes once they fall out of KeepRuns.
	PruneEmptyRuns bool `mapstructure:"prune_empty_runs"`
	// ActivityDays is how long daily audit files are kept. Zero keeps them forever.
	ActivityDays int `mapstructure:"activity_days"`
}

type WatchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Debounce string `mapstructure:"debounce"`
}

type APIConfig struct {
	Addr        string   `mapstructure:"addr"`
	AccessKey   string   `mapstructure:"access_key"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type NotifyConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Jellyfin JellyfinConfig `mapstructure:"jellyfin"`
}

// JellyfinConfig asks a Jellyfin server to rescan its libraries after runs
// that changed files.
type JellyfinConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
}

// EmailConfig holds SMTP settings for run notifications.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultTemplate is the naming template used when none is configured.
const DefaultTemplate = "{show}/Season {season}/{show} - S{season:02}E{episode:02}"

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Root: "",
			MediaTypes: map[string]string{
				"tv":    "series",
				"anime": "series",
				"shows": "series",
			},
			Template: DefaultTemplate,
		},
		Scan: ScanConfig{
			Enabled:        true,
			Interval:       "1h",
			Workers:        4,
			FSTimeout:      "30s",
			KeepRuns:       50,
			PruneEmptyRuns: false,
			ActivityDays:   90,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "10s",
		},
		API: APIConfig{
			Addr:        "127.0.0.1:8787",
			AccessKey:   "",
			CORSOrigins: []string{},
		},
		Notify: NotifyConfig{
			Email: EmailConfig{
				Enabled: false,
				Port:    587,
				To:      []string{},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// env bindings for settings that are commonly injected by service managers
var envBindings = map[string]string{
	"library.root":            "EMBRESS_LIBRARY_ROOT",
	"scan.interval":           "EMBRESS_SCAN_INTERVAL",
	"scan.enabled":            "EMBRESS_SCAN_ENABLED",
	"api.addr":                "EMBRESS_API_ADDR",
	"api.access_key":          "EMBRESS_ACCESS_KEY",
	"database.path":           "EMBRESS_DATABASE_PATH",
	"logging.level":           "EMBRESS_LOG_LEVEL",
	"notify.email.host":       "EMBRESS_SMTP_HOST",
	"notify.email.port":       "EMBRESS_SMTP_PORT",
	"notify.email.username":   "EMBRESS_SMTP_USERNAME",
	"notify.email.password":   "EMBRESS_SMTP_PASSWORD",
	"notify.jellyfin.url":     "EMBRESS_JELLYFIN_URL",
	"notify.jellyfin.api_key": "EMBRESS_JELLYFIN_API_KEY",
}

// Load loads configuration from the default location or returns defaults
func Load() (*Config, error) {
	configPath, err := paths.ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to get config path: %w", err)
	}
	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific file. A missing file yields defaults
// (plus environment overrides).
func LoadFrom(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if cfg.Library.Template == "" {
		cfg.Library.Template = DefaultTemplate
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail later at scan time.
func (c *Config) Validate() error {
	if c.Library.Root == "" {
		return fmt.Errorf("library.root is not set")
	}
	if !filepath.IsAbs(c.Library.Root) {
		return fmt.Errorf("library.root must be absolute: %s", c.Library.Root)
	}
	if !strings.Contains(c.Library.Template, "{show}") || !strings.Contains(c.Library.Template, "{episode") {
		return fmt.Errorf("library.template must reference {show} and {episode}")
	}
	for dir, kind := range c.Library.MediaTypes {
		if kind != "series" && kind != "movie" {
			return fmt.Errorf("library.media_types.%s: unknown kind %q", dir, kind)
		}
	}
	if _, err := parseDuration(c.Scan.Interval, time.Hour); err != nil {
		return fmt.Errorf("scan.interval: %w", err)
	}
	if c.Scan.ActivityDays < 0 {
		return fmt.Errorf("scan.activity_days must not be negative")
	}
	if c.Notify.Email.Enabled && (c.Notify.Email.Host == "" || len(c.Notify.Email.To) == 0) {
		return fmt.Errorf("notify.email requires host and at least one recipient")
	}
	if c.Notify.Jellyfin.Enabled && (c.Notify.Jellyfin.URL == "" || c.Notify.Jellyfin.APIKey == "") {
		return fmt.Errorf("notify.jellyfin requires url and api_key")
	}
	return nil
}

// ScanInterval returns the scheduler interval.
func (c *Config) ScanInterval() time.Duration {
	d, _ := parseDuration(c.Scan.Interval, time.Hour)
	return d
}

// FSTimeout returns the bound applied to individual filesystem calls.
func (c *Config) FSTimeout() time.Duration {
	d, _ := parseDuration(c.Scan.FSTimeout, 30*time.Second)
	return d
}

// WatchDebounce returns the quiet period before a watched change triggers a scan.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := parseDuration(c.Watch.Debounce, 10*time.Second)
	return d
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.File = c.Logging.File
	if lc.File == "" {
		if p, err := paths.LogPath(); err == nil {
			lc.File = p
		}
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.MaxBackups
	}
	lc.MaxAgeDays = c.Logging.MaxAgeDays
	return lc
}

// parseDuration accepts Go durations ("90s", "1h") and bare seconds ("3600").
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return fallback, fmt.Errorf("duration must be positive: %s", s)
		}
		return d, nil
	}
	d, err := time.ParseDuration(s + "s")
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Save saves configuration to the default location
func (c *Config) Save() error {
	configFile, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configFile)
}

// SaveTo writes configuration to path.
func (c *Config) SaveTo(configFile string) error {
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("unable to create config dir: %w", err)
	}
	return os.WriteFile(configFile, []byte(c.ToTOML()), 0600)
}

func ConfigPath() (string, error) {
	return paths.ConfigPath()
}

func ConfigExists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (c *Config) ToTOML() string {
	base := fmt.Sprintf(`# embress configuration
# Generated by: embress config init

# ============================================================================
# LIBRARY
# Layout: <root>/<media type dir>/<show>/[Season NN/]<file>
# ============================================================================
[library]
root = %q
# Naming template. Placeholders: {show} {season} {season:02} {episode} {episode:02}
template = %q
video_extensions = %s
subtitle_extensions = %s
audio_extensions = %s
picture_extensions = %s

# Top-level directory name -> "series" or "movie"
[library.media_types]
%s
# ============================================================================
# SCANNING
# ============================================================================
[scan]
# Scheduled scans (can also be toggled at runtime)
enabled = %v
interval = %q
workers = %d
fs_timeout = %q
keep_runs = %d
prune_empty_runs = %v
activity_days = %d

# ============================================================================
# WATCH MODE (embressd only)
# ============================================================================
[watch]
enabled = %v
debounce = %q

# ============================================================================
# API
# ============================================================================
[api]
addr = %q
access_key = %q
cors_origins = %s

# ============================================================================
# EMAIL NOTIFICATIONS
# ============================================================================
[notify.email]
enabled = %v
host = %q
port = %d
username = %q
password = %q
from = %q
to = %s

# Ask Jellyfin to rescan after runs that changed files
[notify.jellyfin]
enabled = %v
url = %q
api_key = %q

[database]
path = %q

# ============================================================================
# LOGGING
# ============================================================================
[logging]
level = %q
file = %q
max_size_mb = %d
max_backups = %d
max_age_days = %d
`,
		c.Library.Root,
		c.Library.Template,
		formatStringSlice(c.Library.VideoExtensions),
		formatStringSlice(c.Library.SubtitleExtensions),
		formatStringSlice(c.Library.AudioExtensions),
		formatStringSlice(c.Library.PictureExtensions),
		formatStringMap(c.Library.MediaTypes),
		c.Scan.Enabled,
		c.Scan.Interval,
		c.Scan.Workers,
		c.Scan.FSTimeout,
		c.Scan.KeepRuns,
		c.Scan.PruneEmptyRuns,
		c.Scan.ActivityDays,
		c.Watch.Enabled,
		c.Watch.Debounce,
		c.API.Addr,
		c.API.AccessKey,
		formatStringSlice(c.API.CORSOrigins),
		c.Notify.Email.Enabled,
		c.Notify.Email.Host,
		c.Notify.Email.Port,
		c.Notify.Email.Username,
		c.Notify.Email.Password,
		c.Notify.Email.From,
		formatStringSlice(c.Notify.Email.To),
		c.Notify.Jellyfin.Enabled,
		c.Notify.Jellyfin.URL,
		c.Notify.Jellyfin.APIKey,
		c.Database.Path,
		c.Logging.Level,
		c.Logging.File,
		c.Logging.MaxSizeMB,
		c.Logging.MaxBackups,
		c.Logging.MaxAgeDays,
	)

	return base
}

func formatStringSlice(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	quoted := make([]string, len(s))
	for i, v := range s {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func formatStringMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("%q = %q\n", k, m[k]))
	}
	return sb.String()
}

// GetDatabasePath returns the configured database path or the default location.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	dbPath, err := paths.DatabasePath()
	if err != nil {
		return "./embress.db"
	}
	return dbPath
}
