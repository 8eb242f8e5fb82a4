package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty directory and clears DOCSIFT_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, key := range []string{
		"DOCSIFT_DATA_DIR", "DOCSIFT_INDEX_DIR", "DOCSIFT_DATABASE", "DOCSIFT_LOG_LEVEL",
		"DOCSIFT_SYNC_DEBOUNCE", "DOCSIFT_PAGE_SIZE", "DOCSIFT_PAGE_CACHE_SIZE",
		"DOCSIFT_MORE_LIKE_TERMS", "DOCSIFT_AUTOCOMPLETE_LIMIT", "DOCSIFT_MATCH_WORKERS",
		"DOCSIFT_ASN_MAX",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, int64(0), cfg.Index.ASNMin)
	assert.Equal(t, int64(4294967295), cfg.Index.ASNMax)
	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.Equal(t, 20, cfg.Search.MoreLikeTerms)
	assert.Equal(t, 50, cfg.Search.HighlightContext)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
	assert.NoError(t, cfg.Validate())
}

func TestWithDataDir_MovesIndexAndDatabase(t *testing.T) {
	cfg := NewConfig().WithDataDir("/srv/docsift")

	assert.Equal(t, filepath.Join("/srv/docsift", "index"), cfg.Index.Dir)
	assert.Equal(t, filepath.Join("/srv/docsift", "docsift.db"), cfg.Store.Database)
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_Precedence(t *testing.T) {
	// Given: a user config, a project config and an env override
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0755))
	require.NoError(t, os.WriteFile(userPath, []byte("search:\n  page_size: 20\n  page_cache_size: 8\nlogging:\n  level: warn\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsift.yaml"), []byte("search:\n  page_size: 30\nindex:\n  asn_max: 9999\n"), 0644))
	t.Setenv("DOCSIFT_PAGE_CACHE_SIZE", "64")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project beats user, env beats both
	assert.Equal(t, 30, cfg.Search.PageSize)
	assert.Equal(t, 64, cfg.Search.PageCacheSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, int64(9999), cfg.Index.ASNMax)
}

func TestLoad_YmlFallback(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsift.yml"), []byte("matching:\n  workers: 2\n"), 0644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Matching.Workers)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docsift.yaml"), []byte("search: [oops"), 0644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvDataDirAndBadNumbers(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DOCSIFT_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("DOCSIFT_PAGE_SIZE", "lots")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "index"), cfg.Index.Dir)
	assert.Equal(t, 10, cfg.Search.PageSize)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty index dir", func(c *Config) { c.Index.Dir = "" }, "index.dir"},
		{"negative asn min", func(c *Config) { c.Index.ASNMin = -1 }, "asn_min"},
		{"inverted asn range", func(c *Config) { c.Index.ASNMin = 10; c.Index.ASNMax = 5 }, "asn_max"},
		{"zero page size", func(c *Config) { c.Search.PageSize = 0 }, "search.page_size"},
		{"zero workers", func(c *Config) { c.Matching.Workers = 0 }, "matching.workers"},
		{"bad debounce", func(c *Config) { c.Sync.Debounce = "soon" }, "sync.debounce"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", ".docsift.yaml")
	cfg := NewConfig()
	cfg.Search.PageSize = 42

	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.PageSize)
}
