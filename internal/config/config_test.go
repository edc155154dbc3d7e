package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(`
listen: ":9090"
analyzer:
  runtime: docker
  image: astrosource:latest
  phase_timeout: 10m
stream:
  poll_interval: 250ms
  max_streams: 4
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "docker", cfg.Analyzer.Runtime)
	assert.Equal(t, "astrosource:latest", cfg.Analyzer.Image)
	assert.Equal(t, 10*time.Minute, cfg.Analyzer.PhaseTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.PollInterval)
	assert.Equal(t, int64(4), cfg.Stream.MaxStreams)
	// untouched keys keep their defaults
	assert.Equal(t, "workspace", cfg.WorkspaceDir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("listne: ':1'\n"))
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.Runtime = "podman"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Analyzer.Runtime = "docker"
	assert.Error(t, cfg.Validate(), "docker runtime needs an image")

	cfg = DefaultConfig()
	cfg.Stream.MaxStreams = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabasePath_EmptyDisablesJournal(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("database_path: \"\"\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabasePath)
	assert.NoError(t, cfg.Validate(), "an empty path runs without a journal")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SKYWATCH_LISTEN", "127.0.0.1:7000")
	t.Setenv("SKYWATCH_VERBOSE", "true")
	t.Setenv("SKYWATCH_PHASE_TIMEOUT", "90s")
	t.Setenv("SKYWATCH_CORS_ORIGINS", "http://a.example, http://b.example,")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg))

	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 90*time.Second, cfg.Analyzer.PhaseTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("SKYWATCH_VERBOSE", "loud")
	cfg := DefaultConfig()
	assert.Error(t, ApplyEnv(&cfg))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SKYWATCH_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SKYWATCH_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("SKYWATCH_TEST_DOTENV"))
}
