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

	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, "./data", cfg.Server.DataDir)
	assert.Equal(t, 18, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 25, cfg.Loop.FallbackMaxIterations)
	assert.Equal(t, 6000, cfg.Loop.HistoryTokenBudget)
	assert.Len(t, cfg.Retry.StandardDelaysMs, 5)
	assert.Len(t, cfg.Retry.ExtendedDelaysMs, 5)
	assert.True(t, cfg.Loop.MultiAgent)
	assert.Zero(t, cfg.Loop.TurnTimeoutSeconds)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenx.json")
	data := `{
		"server": {"port": 9000, "dataDir": "` + filepath.Join(dir, "data") + `"},
		"loop": {"fallbackMaxIterations": 10}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Loop.FallbackMaxIterations)
	assert.Equal(t, 6000, cfg.Loop.HistoryTokenBudget, "untouched fields keep defaults")
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"executor":{"kind":"carrier-pigeon"}}`), 0o600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Executor.Kind = "http"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
	cfg.Executor.URL = "http://localhost:9999/tools"
	assert.NoError(t, cfg.Validate())

	cfg.Model.Provider = "other"
	cfg.RateLimit.RequestsPerMinute = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "model.provider")
	assert.Contains(t, err.Error(), "requestsPerMinute")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ANTHROPIC_API_KEY":   "fallback-key",
		"TENX_API_JWT_SECRET": "s3cret",
		"TENX_LOG_LEVEL":      "debug",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "fallback-key", cfg.Model.APIKey)
	assert.Equal(t, "s3cret", cfg.API.JWTSecret)
	assert.Equal(t, "debug", cfg.Server.LogLevel)

	env["TENX_ANTHROPIC_API_KEY"] = "primary-key"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "primary-key", cfg.Model.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tenx.json")
	cfg := DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	cfg.Prompt.Sections = []PromptSection{{Title: "Companies", Content: "Ring LLC, TX2"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Prompt.Sections, loaded.Prompt.Sections)
}

func TestPathsAndDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("data", "turns.db"), filepath.Clean(cfg.TurnLogPath()))
	cfg.Store.TurnLogPath = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", cfg.TurnLogPath())

	assert.Equal(t, []time.Duration{3 * time.Second, 5 * time.Second}, Durations([]int{3000, 5000}))
	assert.Equal(t, 2*time.Second, Seconds(2))
	assert.Equal(t, 4*time.Second, Millis(4000))
}
