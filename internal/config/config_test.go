package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("ARENA_API_URL", "")
	t.Setenv("ARENA_SAVE_DELAY", "")
	t.Setenv("ARENA_DRAFTS_PATH", "/tmp/drafts.db")

	cfg, err := LoadClient(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultGatewayURL, cfg.GatewayURL)
	assert.Equal(t, DefaultSaveDelay, cfg.SaveDelay)
	assert.Equal(t, "/tmp/drafts.db", cfg.DraftsPath)
}

func TestLoadClient_DotenvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("ARENA_API_URL=http://api.test\nARENA_SAVE_DELAY=250ms\n"), 0o600))

	// godotenv never overrides variables that are already set.
	t.Setenv("ARENA_API_URL", "")
	t.Setenv("ARENA_SAVE_DELAY", "")
	os.Unsetenv("ARENA_API_URL")
	os.Unsetenv("ARENA_SAVE_DELAY")
	t.Setenv("ARENA_DRAFTS_PATH", filepath.Join(dir, "d.db"))
	t.Setenv("ARENA_TOKEN", "tok")

	cfg, err := LoadClient(env)
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", cfg.APIURL)
	assert.Equal(t, 250*time.Millisecond, cfg.SaveDelay)
	assert.Equal(t, "tok", cfg.Token)
}

func TestLoadClient_RejectsBadDelay(t *testing.T) {
	t.Setenv("ARENA_DRAFTS_PATH", "/tmp/x.db")
	t.Setenv("ARENA_SAVE_DELAY", "-1s")
	_, err := LoadClient(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)

	t.Setenv("ARENA_SAVE_DELAY", "soon")
	_, err = LoadClient(filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", ":9999")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("GATEWAY_ORIGINS", "localhost:*, arena.example.com ,")
	cfg, err := LoadGateway(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, []string{"localhost:*", "arena.example.com"}, cfg.Origins)
}
