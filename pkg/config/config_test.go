package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://civitai.com/api/trpc", cfg.API.BaseURL)
	assert.Equal(t, "5.0.1401", cfg.API.ClientVersion)
	assert.Equal(t, 0, cfg.API.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Harvest.ItemDelay)
	assert.Equal(t, "AllTime", cfg.Harvest.Period)
	assert.Equal(t, "Newest", cfg.Harvest.Sort)
	assert.Equal(t, 31, cfg.Harvest.BrowsingLevel)
	assert.Equal(t, DefaultExcludedTagIDs, cfg.Harvest.ExcludedTagIDs)
	assert.Equal(t, []string{"cosmetics"}, cfg.Harvest.Include)
	assert.True(t, cfg.Harvest.DisablePoi)
	assert.True(t, cfg.Harvest.DisableMinor)
	assert.Equal(t, ".civitai_session", cfg.Auth.CacheFile)
	assert.Equal(t, "json", cfg.Output.Format)

	require.NoError(t, cfg.Validate())

	// defaults must not alias the package-level slice
	cfg.Harvest.ExcludedTagIDs[0] = 1
	assert.Equal(t, 415792, DefaultExcludedTagIDs[0])
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CIVHARVEST_API_TIMEOUT", "45s")
	t.Setenv("CIVHARVEST_API_MAX_RETRIES", "2")
	t.Setenv("CIVHARVEST_AUTH_CACHE_BACKEND", "keyring")
	t.Setenv("CIVHARVEST_HARVEST_ITEM_DELAY", "750ms")
	t.Setenv("CIVHARVEST_HARVEST_LIMIT", "25")
	t.Setenv("CIVHARVEST_HARVEST_EXCLUDED_TAG_IDS", "1,2,3")
	t.Setenv("CIVHARVEST_HARVEST_DISABLE_POI", "false")
	t.Setenv("CIVHARVEST_OUTPUT_FORMAT", "jsonl")
	t.Setenv("CIVHARVEST_OUTPUT_SQLITE_PATH", "/tmp/h.db")
	t.Setenv("CIVHARVEST_LOGGING_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2, cfg.API.MaxRetries)
	assert.Equal(t, "keyring", cfg.Auth.CacheBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.Harvest.ItemDelay)
	assert.Equal(t, 25, cfg.Harvest.Limit)
	assert.Equal(t, []int{1, 2, 3}, cfg.Harvest.ExcludedTagIDs)
	assert.False(t, cfg.Harvest.DisablePoi)
	assert.Equal(t, "jsonl", cfg.Output.Format)
	assert.Equal(t, "/tmp/h.db", cfg.Output.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched fields keep their defaults
	assert.Equal(t, "Newest", cfg.Harvest.Sort)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("CIVHARVEST_HARVEST_LIMIT", "many")

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "partial override",
			content: `
api:
  timeout: 10s
  fingerprint: abc123
harvest:
  item_delay: 1s
  sort: Most Reactions
  excluded_tag_ids: [9, 10]
output:
  format: sqlite
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10*time.Second, cfg.API.Timeout)
				assert.Equal(t, "abc123", cfg.API.Fingerprint)
				assert.Equal(t, time.Second, cfg.Harvest.ItemDelay)
				assert.Equal(t, "Most Reactions", cfg.Harvest.Sort)
				assert.Equal(t, []int{9, 10}, cfg.Harvest.ExcludedTagIDs)
				assert.Equal(t, "sqlite", cfg.Output.Format)
				assert.Equal(t, "AllTime", cfg.Harvest.Period)
			},
		},
		{
			name:    "malformed yaml",
			content: "api: [unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			cfg := DefaultConfig()
			err := cfg.LoadFromFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(cfg *Config) {}},
		{
			name:    "empty base url",
			mutate:  func(cfg *Config) { cfg.API.BaseURL = "" },
			wantErr: "api base URL is required",
		},
		{
			name:    "bad backend",
			mutate:  func(cfg *Config) { cfg.Auth.CacheBackend = "vault" },
			wantErr: "invalid cache backend",
		},
		{
			name:    "negative limit",
			mutate:  func(cfg *Config) { cfg.Harvest.Limit = -1 },
			wantErr: "limit cannot be negative",
		},
		{
			name:    "browsing level out of range",
			mutate:  func(cfg *Config) { cfg.Harvest.BrowsingLevel = 64 },
			wantErr: "browsing level",
		},
		{
			name:    "bad format",
			mutate:  func(cfg *Config) { cfg.Output.Format = "xml" },
			wantErr: "invalid output format",
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = ""
	cfg.Output.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api base URL is required")
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"limit":      10,
		"item-delay": 50 * time.Millisecond,
		"format":     "jsonl",
		"no-tags":    true,
		"sort":       "",
		"resume":     true,
	})

	assert.Equal(t, 10, cfg.Harvest.Limit)
	assert.Equal(t, 50*time.Millisecond, cfg.Harvest.ItemDelay)
	assert.Equal(t, "jsonl", cfg.Output.Format)
	assert.False(t, cfg.Harvest.FetchTags)
	assert.True(t, cfg.Harvest.Resume)
	assert.Equal(t, "Newest", cfg.Harvest.Sort)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Harvest.Limit = 7
	cfg.API.Timeout = 12 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 7, loaded.Harvest.Limit)
	assert.Equal(t, 12*time.Second, loaded.API.Timeout)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harvest:\n  limit: 5\n  sort: Oldest\n"), 0600))
	t.Setenv("CIVHARVEST_HARVEST_LIMIT", "6")

	cfg, err := Load(path, map[string]interface{}{"sort": "Most Collected"})
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Harvest.Limit)
	assert.Equal(t, "Most Collected", cfg.Harvest.Sort)
}
