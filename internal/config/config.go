package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultASNMax is the largest archive serial number the index accepts.
const DefaultASNMax int64 = 0xFFFFFFFF

// Config represents the complete docsift configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Index    IndexConfig    `yaml:"index" json:"index"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Matching MatchingConfig `yaml:"matching" json:"matching"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexConfig configures the full-text index location and record limits.
type IndexConfig struct {
	// Dir is the directory holding the bleve index.
	Dir string `yaml:"dir" json:"dir"`
	// ASNMin and ASNMax bound the archive serial numbers that are indexed.
	// Values outside the range are stored as absent.
	ASNMin int64 `yaml:"asn_min" json:"asn_min"`
	ASNMax int64 `yaml:"asn_max" json:"asn_max"`
}

// SearchConfig configures result paging and query variants.
type SearchConfig struct {
	PageSize          int `yaml:"page_size" json:"page_size"`
	PageCacheSize     int `yaml:"page_cache_size" json:"page_cache_size"`
	MoreLikeTerms     int `yaml:"more_like_terms" json:"more_like_terms"`
	AutocompleteLimit int `yaml:"autocomplete_limit" json:"autocomplete_limit"`
	// HighlightContext is the number of characters of context around a match.
	HighlightContext int `yaml:"highlight_context" json:"highlight_context"`
}

// MatchingConfig configures batch rule evaluation.
type MatchingConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// StoreConfig configures the document-of-record database.
type StoreConfig struct {
	Database string `yaml:"database" json:"database"`
}

// SyncConfig configures the index sync watcher.
type SyncConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:    filepath.Join(dataDir, "index"),
			ASNMin: 0,
			ASNMax: DefaultASNMax,
		},
		Search: SearchConfig{
			PageSize:          10,
			PageCacheSize:     32,
			MoreLikeTerms:     20,
			AutocompleteLimit: 10,
			HighlightContext:  50,
		},
		Matching: MatchingConfig{
			Workers: 4,
		},
		Store: StoreConfig{
			Database: filepath.Join(dataDir, "docsift.db"),
		},
		Sync: SyncConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.docsift, or a temp directory fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docsift")
	}
	return filepath.Join(home, ".docsift")
}

// WithDataDir points the index and database below dir.
func (c *Config) WithDataDir(dir string) *Config {
	c.Index.Dir = filepath.Join(dir, "index")
	c.Store.Database = filepath.Join(dir, "docsift.db")
	return c
}

// DebounceDuration parses Sync.Debounce, falling back to 500ms.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Sync.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/docsift/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docsift/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsift", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docsift", "config.yaml")
	}
	return filepath.Join(home, ".config", "docsift", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load loads configuration for the project directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/docsift/config.yaml)
//  3. Project config (.docsift.yaml in dir)
//  4. Environment variables (DOCSIFT_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges .docsift.yaml or .docsift.yml from dir if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".docsift.yaml", ".docsift.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.ASNMin != 0 {
		c.Index.ASNMin = other.Index.ASNMin
	}
	if other.Index.ASNMax != 0 {
		c.Index.ASNMax = other.Index.ASNMax
	}

	if other.Search.PageSize != 0 {
		c.Search.PageSize = other.Search.PageSize
	}
	if other.Search.PageCacheSize != 0 {
		c.Search.PageCacheSize = other.Search.PageCacheSize
	}
	if other.Search.MoreLikeTerms != 0 {
		c.Search.MoreLikeTerms = other.Search.MoreLikeTerms
	}
	if other.Search.AutocompleteLimit != 0 {
		c.Search.AutocompleteLimit = other.Search.AutocompleteLimit
	}
	if other.Search.HighlightContext != 0 {
		c.Search.HighlightContext = other.Search.HighlightContext
	}

	if other.Matching.Workers != 0 {
		c.Matching.Workers = other.Matching.Workers
	}
	if other.Store.Database != "" {
		c.Store.Database = other.Store.Database
	}
	if other.Sync.Debounce != "" {
		c.Sync.Debounce = other.Sync.Debounce
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies DOCSIFT_* environment variable overrides.
// Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSIFT_DATA_DIR"); v != "" {
		c.WithDataDir(v)
	}
	if v := os.Getenv("DOCSIFT_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("DOCSIFT_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := os.Getenv("DOCSIFT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCSIFT_SYNC_DEBOUNCE"); v != "" {
		c.Sync.Debounce = v
	}

	intEnv := map[string]*int{
		"DOCSIFT_PAGE_SIZE":          &c.Search.PageSize,
		"DOCSIFT_PAGE_CACHE_SIZE":    &c.Search.PageCacheSize,
		"DOCSIFT_MORE_LIKE_TERMS":    &c.Search.MoreLikeTerms,
		"DOCSIFT_AUTOCOMPLETE_LIMIT": &c.Search.AutocompleteLimit,
		"DOCSIFT_MATCH_WORKERS":      &c.Matching.Workers,
	}
	for key, dst := range intEnv {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	if v := os.Getenv("DOCSIFT_ASN_MAX"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.Index.ASNMax = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir must not be empty")
	}
	if c.Index.ASNMin < 0 {
		return fmt.Errorf("index.asn_min must be non-negative, got %d", c.Index.ASNMin)
	}
	if c.Index.ASNMax < c.Index.ASNMin {
		return fmt.Errorf("index.asn_max (%d) must not be below index.asn_min (%d)", c.Index.ASNMax, c.Index.ASNMin)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"search.page_size", c.Search.PageSize},
		{"search.page_cache_size", c.Search.PageCacheSize},
		{"search.more_like_terms", c.Search.MoreLikeTerms},
		{"search.autocomplete_limit", c.Search.AutocompleteLimit},
		{"matching.workers", c.Matching.Workers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Search.HighlightContext < 0 {
		return fmt.Errorf("search.highlight_context must be non-negative, got %d", c.Search.HighlightContext)
	}

	if _, err := time.ParseDuration(c.Sync.Debounce); err != nil {
		return fmt.Errorf("sync.debounce must be a duration, got %q", c.Sync.Debounce)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
