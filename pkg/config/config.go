// Package config handles loading and saving bmo configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/bmo/config.yaml
//   - State:   ~/.local/state/bmo/ (snapshot cache, exports)
//
// Environment variables (BMO_*) override file values; see ApplyEnv.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
)

const appName = "bmo"

// Overlap policies for a manual refresh issued while a fetch is in flight.
// Interval ticks are always skipped in that situation.
const (
	OverlapSkip      = "skip"
	OverlapSupersede = "supersede"
)

// SourceConfig selects and tunes the Fetch Layer.
type SourceConfig struct {
	URL           string              `yaml:"url,omitempty"` // REST base URL; wins over Dir
	Dir           string              `yaml:"dir,omitempty"` // directory of <module>.json files
	Token         string              `yaml:"token,omitempty"`
	Timeout       time.Duration       `yaml:"timeout,omitempty"`
	RatePerSecond float64             `yaml:"rate_per_second,omitempty"`
	Burst         int                 `yaml:"burst,omitempty"`
	Concurrency   int                 `yaml:"concurrency,omitempty"`
	Endpoints     map[string][]string `yaml:"endpoints,omitempty"` // module -> paths relative to URL
}

// CacheConfig controls the last-known snapshot cache.
type CacheConfig struct {
	Path    string `yaml:"path,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// RefreshConfig controls polling.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Auto     bool          `yaml:"auto"`
	Overlap  string        `yaml:"overlap,omitempty"`
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	DefaultModule    string `yaml:"default_module,omitempty"`
	SidebarCollapsed bool   `yaml:"sidebar_collapsed,omitempty"`
	Overscan         int    `yaml:"overscan,omitempty"`
	Theme            string `yaml:"theme,omitempty"` // auto, dark, light
}

// ExportConfig holds export destinations.
type ExportConfig struct {
	Dir        string `yaml:"dir,omitempty"`
	S3Bucket   string `yaml:"s3_bucket,omitempty"`
	S3Prefix   string `yaml:"s3_prefix,omitempty"`
	S3Endpoint string `yaml:"s3_endpoint,omitempty"` // set for MinIO and other S3-compatible stores
	S3Region   string `yaml:"s3_region,omitempty"`
}

// ServerConfig holds the read API settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Config is the top-level configuration for bmo.
type Config struct {
	Source  SourceConfig    `yaml:"source"`
	Cache   CacheConfig     `yaml:"cache"`
	Refresh RefreshConfig   `yaml:"refresh"`
	Policy  analysis.Policy `yaml:"policy"`
	UI      UIConfig        `yaml:"ui"`
	Export  ExportConfig    `yaml:"export"`
	Server  ServerConfig    `yaml:"server"`
}

// DefaultConfig returns a Config with sensible defaults. Environment
// overrides are not applied.
func DefaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Timeout:       15 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
			Concurrency:   4,
		},
		Cache: CacheConfig{
			Path:    filepath.Join(StateDir(), "cache.db"),
			Enabled: true,
		},
		Refresh: RefreshConfig{
			Interval: 30 * time.Second,
			Auto:     true,
			Overlap:  OverlapSupersede,
		},
		Policy: analysis.BasePolicy(),
		UI: UIConfig{
			DefaultModule: string(model.ModuleDashboard),
			Overscan:      3,
			Theme:         "auto",
		},
		Export: ExportConfig{
			Dir: filepath.Join(StateDir(), "exports"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}

// ConfigDir returns the XDG config directory for bmo.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// StateDir returns the XDG state directory for bmo.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Keys missing from the file
// keep their defaults. Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Source.Dir = expandHome(cfg.Source.Dir)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Export.Dir = expandHome(cfg.Export.Dir)
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file may carry an API token.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Environment variable names.
const (
	EnvSourceURL       = "BMO_SOURCE_URL"
	EnvSourceDir       = "BMO_SOURCE_DIR"
	EnvSourceToken     = "BMO_SOURCE_TOKEN"
	EnvRefreshInterval = "BMO_REFRESH_INTERVAL_S"
	EnvAutoRefresh     = "BMO_AUTO_REFRESH"
	EnvOverscan        = "BMO_OVERSCAN"
	EnvCachePath       = "BMO_CACHE_PATH"
	EnvServerAddr      = "BMO_SERVER_ADDR"
)

// ApplyEnv returns cfg with BMO_* environment overrides applied, including
// the analytics policy overrides. Invalid values are ignored.
func ApplyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv(EnvSourceURL)); v != "" {
		cfg.Source.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSourceDir)); v != "" {
		cfg.Source.Dir = expandHome(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvSourceToken)); v != "" {
		cfg.Source.Token = v
	}
	if n, ok := envPositiveInt(EnvRefreshInterval); ok {
		cfg.Refresh.Interval = time.Duration(n) * time.Second
	}
	if b, ok := envBool(EnvAutoRefresh); ok {
		cfg.Refresh.Auto = b
	}
	if v := strings.TrimSpace(os.Getenv(EnvOverscan)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.UI.Overscan = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvCachePath)); v != "" {
		cfg.Cache.Path = expandHome(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	cfg.Policy = analysis.ApplyEnvOverrides(cfg.Policy)
	return cfg
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Refresh.Auto && c.Refresh.Interval < time.Second {
		errs = append(errs, fmt.Errorf("refresh.interval must be at least 1s, got %s", c.Refresh.Interval))
	}
	switch c.Refresh.Overlap {
	case OverlapSkip, OverlapSupersede:
	default:
		errs = append(errs, fmt.Errorf("refresh.overlap must be %q or %q, got %q", OverlapSkip, OverlapSupersede, c.Refresh.Overlap))
	}
	if c.UI.Overscan < 0 {
		errs = append(errs, fmt.Errorf("ui.overscan must be >= 0"))
	}
	if c.UI.DefaultModule != "" {
		if _, err := model.ParseModule(c.UI.DefaultModule); err != nil {
			errs = append(errs, fmt.Errorf("ui.default_module: %w", err))
		}
	}
	for name := range c.Source.Endpoints {
		if _, err := model.ParseModule(name); err != nil {
			errs = append(errs, fmt.Errorf("source.endpoints: %w", err))
		}
	}
	if c.Source.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("source.rate_per_second must be >= 0"))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}
	return errors.Join(errs...)
}

// DefaultModule returns the configured start module, falling back to the
// dashboard.
func (c Config) DefaultModule() model.Module {
	if m, err := model.ParseModule(c.UI.DefaultModule); err == nil {
		return m
	}
	return model.ModuleDashboard
}

// ModuleEndpoints returns the endpoint overrides keyed by module. Unknown
// module names are skipped; Validate reports them.
func (c Config) ModuleEndpoints() map[model.Module][]string {
	if len(c.Source.Endpoints) == 0 {
		return nil
	}
	out := make(map[model.Module][]string, len(c.Source.Endpoints))
	for name, paths := range c.Source.Endpoints {
		m, err := model.ParseModule(name)
		if err != nil || len(paths) == 0 {
			continue
		}
		out[m] = append([]string(nil), paths...)
	}
	return out
}

func envPositiveInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
