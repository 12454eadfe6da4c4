package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, "ai:tasks", cfg.Redis.TasksStream)
	require.Equal(t, "ai:results", cfg.Redis.ResultsStream)
	require.Equal(t, "ai-workers", cfg.Redis.ConsumerGroup)
	require.Equal(t, 4, cfg.Telegram.GroupWorkers)
	require.Equal(t, 10000, cfg.Telegram.IntakeQueueCapacity)
	require.Equal(t, 30, cfg.LLM.TimeoutS)
	require.Equal(t, "logs-*", cfg.Alert.LogIndexPattern)
	require.Equal(t, 60, cfg.Alert.IntervalSeconds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://example:6379/0")
	t.Setenv("AI_WORKERS", "8")
	t.Setenv("AI_RESULTS_MAXLEN", "5000")
	t.Setenv("MIN_FREE_GB", "42.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis://example:6379/0", cfg.Redis.URL)
	require.Equal(t, 8, cfg.LLM.Workers)
	require.Equal(t, int64(5000), cfg.LLM.ResultsMaxLen)
	require.Equal(t, 42.5, cfg.Alert.MinFreeGB)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_JSON5FileThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// workers for the moderation pool
		telegram: { group_workers: 7 },
		llm: { model: "from-file" },
	}`), 0o600))

	t.Setenv("AI_MODEL", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Telegram.GroupWorkers)
	require.Equal(t, "from-env", cfg.LLM.Model)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, "ai:tasks", cfg.Redis.TasksStream)
}

func TestParseRecipients(t *testing.T) {
	require.Equal(t, FlexibleStringSlice{"a@x.com", "b@y.com"}, parseRecipients("a@x.com, b@y.com"))
	require.Equal(t, FlexibleStringSlice{"a@x.com", "b@y.com"}, parseRecipients("a@x.com; b@y.com"))
	require.Equal(t, FlexibleStringSlice{"a@x.com", "b@y.com"}, parseRecipients(`["a@x.com","b@y.com"]`))
}

func TestFlexibleStringSlice_UnmarshalJSON(t *testing.T) {
	var s struct {
		To FlexibleStringSlice `json:"to"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"to": ["a@x.com"]}`), &s))
	require.Equal(t, FlexibleStringSlice{"a@x.com"}, s.To)

	require.NoError(t, json.Unmarshal([]byte(`{"to": "a@x.com;b@y.com"}`), &s))
	require.Equal(t, FlexibleStringSlice{"a@x.com", "b@y.com"}, s.To)
}

func TestSave_OmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Telegram.Token = "super-secret"
	cfg.Database.PostgresDSN = "postgres://user:pw@host/db"

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "super-secret")
	require.NotContains(t, string(data), "pw@host")
}

func TestReplaceAndSnapshot(t *testing.T) {
	cfg := Default()
	next := Default()
	next.LogLevel = "warn"
	next.Telegram.GroupWorkers = 9

	cfg.Replace(next)

	snap := cfg.Snapshot()
	require.Equal(t, "warn", snap.LogLevel)
	require.Equal(t, 9, snap.Telegram.GroupWorkers)
}
