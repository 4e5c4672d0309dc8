package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the supplierd config dir in it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	for _, key := range []string{
		"SERVER_HTTP_PORT", "SEARCH_PROVIDER", "SEARCH_API_KEY", "SEARCH_ENGINE_ID", "IGNORE_FILE",
		legacyIgnoreFileEnv, legacySearchAPIKeyEnv, legacySearchEngineIDEnv,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := filepath.Join(home, ".config", "supplierd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `server:
  http_port: 9090
  http_host: 0.0.0.0
  allow_origins: ["https://dashboard.example.com"]
cache:
  backend: memory
  ttl: 12h
  max_entries: 500
ignore:
  file: /var/lib/supplierd/ignore.txt
  watch: false
search:
  provider: google
  api_key: AIza-test
  engine_id: cx-test
dedup:
  similarity_threshold: 85
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.Server.AllowOrigins)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL.Duration())
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, "/var/lib/supplierd/ignore.txt", cfg.Ignore.File)
	assert.False(t, cfg.Ignore.Watch)
	assert.Equal(t, SearchGoogle, cfg.Search.Provider)
	assert.Equal(t, "AIza-test", cfg.Search.APIKey.Value())
	assert.Equal(t, 85.0, cfg.Dedup.SimilarityThreshold)

	// Untouched sections keep their defaults.
	assert.Equal(t, ExtractionHeuristic, cfg.Extraction.Provider)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `server:
  http_port: 9090
extraction:
  provider: heuristic
`, 0600)

	t.Setenv("SERVER_HTTP_PORT", "7777")
	t.Setenv("EXTRACTION_PROVIDER", "openai")
	t.Setenv("EXTRACTION_LLM_API_KEY", "sk-env")
	t.Setenv("CACHE_TTL", "1h")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, ExtractionOpenAI, cfg.Extraction.Provider)
	assert.Equal(t, "sk-env", cfg.Extraction.LLMAPIKey.Value())
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration())
}

func TestLoadWithFile_LegacyEnvironment(t *testing.T) {
	setupTestHome(t)

	t.Setenv(legacyIgnoreFileEnv, "/srv/ignore.txt")
	t.Setenv(legacySearchAPIKeyEnv, "legacy-key")
	t.Setenv(legacySearchEngineIDEnv, "legacy-cx")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/ignore.txt", cfg.Ignore.File)
	assert.Equal(t, "legacy-key", cfg.Search.APIKey.Value())
	assert.Equal(t, "legacy-cx", cfg.Search.EngineID)
	assert.Equal(t, SearchGoogle, cfg.Search.Provider, "credentials select google search")
}

func TestLoadWithFile_CurrentEnvironmentWinsOverLegacy(t *testing.T) {
	setupTestHome(t)

	t.Setenv("SEARCH_API_KEY", "current-key")
	t.Setenv(legacySearchAPIKeyEnv, "legacy-key")
	t.Setenv("IGNORE_FILE", "/current/ignore.txt")
	t.Setenv(legacyIgnoreFileEnv, "/legacy/ignore.txt")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, "current-key", cfg.Search.APIKey.Value())
	assert.Equal(t, "/current/ignore.txt", cfg.Ignore.File)
}

func TestLoadWithFile_SearchDisabledWithoutCredentials(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, SearchDisabled, cfg.Search.Provider)
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err, "missing file should fall back to defaults")
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	setupTestHome(t)
	t.Setenv("SERVER_HTTP_PORT", "8123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Server.Port)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 80\n  invalid syntax here\n", 0600)

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_Validation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 99999\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("../../../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in ~/.config/supplierd/ or /etc/supplierd/")
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9090\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_ReadOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9091\n", 0400)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Server.Port)
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, string(bytes.Repeat([]byte("# comment line\n"), 150000)), 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "too large"), err.Error())
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SERVER_HTTP_PORT":       "server.http_port",
		"EXTRACTION_LLM_API_KEY": "extraction.llm_api_key",
		"CACHE_TTL":              "cache.ttl",
		"HOME":                   "home",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "supplierd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
