package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"FLOWBOARD_API_KEY", "FLOWBOARD_ENDPOINT", "FLOWBOARD_MODEL", "FLOWBOARD_DEBUG"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 60*time.Second, cfg.AssistantTimeout())
}

func TestLoadConfigFromFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "flowboard.toml")
	saveDir := filepath.Join(dir, "saves")
	content := `
save_directory = "` + saveDir + `"
start_menu = false
start_boards = ["Plan", "Build"]
history_limit = 0
code_language = "go"

[assistant]
model = "local-model"
api_key = "from-file"
requests_per_minute = -3.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.StartMenu)
	assert.Equal(t, []string{"Plan", "Build"}, cfg.StartBoards)
	assert.Equal(t, defaultHistoryLimit, cfg.HistoryLimit, "non-positive limits fall back")
	assert.Equal(t, "go", cfg.CodeLanguage)
	assert.Equal(t, "local-model", cfg.Assistant.Model)
	assert.Equal(t, "from-file", cfg.Assistant.APIKey)
	assert.Equal(t, 10.0, cfg.Assistant.RequestsPerMinute)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.Assistant.Endpoint, "unset keys keep defaults")

	assert.Equal(t, filepath.Join(saveDir, "flowboard.db"), cfg.StoreFile())
	assert.DirExists(t, saveDir)
	assert.Equal(t, "/tmp/x.log", cfg.GetSavePath("/tmp/x.log"))
}

func TestLoadConfigBadFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("history_limit = [oops"), 0644))

	cfg, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode TOML file")
	require.NotNil(t, cfg)
	assert.Equal(t, defaultHistoryLimit, cfg.HistoryLimit)
}

func TestEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("FLOWBOARD_API_KEY", "env-key")
	t.Setenv("FLOWBOARD_ENDPOINT", "http://localhost:9999/v1/chat/completions")
	t.Setenv("FLOWBOARD_MODEL", "env-model")
	t.Setenv("FLOWBOARD_DEBUG", "true")

	path := filepath.Join(t.TempDir(), "flowboard.toml")
	require.NoError(t, os.WriteFile(path, []byte("[assistant]\napi_key = \"file-key\"\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Assistant.APIKey)
	assert.Equal(t, "http://localhost:9999/v1/chat/completions", cfg.Assistant.Endpoint)
	assert.Equal(t, "env-model", cfg.Assistant.Model)
	assert.True(t, cfg.Debug)
}

func TestEnvDebugIgnoresGarbage(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("FLOWBOARD_DEBUG", "sometimes")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.False(t, cfg.Debug)
}

func TestGetSavePathWithoutDirectory(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "out.json", cfg.GetSavePath("out.json"))
	assert.Equal(t, "flowboard.log", cfg.LogPath())
}
