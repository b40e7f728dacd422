package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: "0.0.0.0"
  port: 8080
  usage:
    use_rate_limit: true
    rate_limit_per_day: 1000
    audio_cost_per_second: 100
chat_client:
  mode: hosted
  key_file: /tmp/key
  default_model: gpt-4o
  allowed_models: [gpt-4o]
aitalkmaster:
  join_key_keep_alive_list: ["lobby"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "hosted", cfg.ChatClient.Mode)
	require.Equal(t, 4, cfg.Server.NumWorkers)
	require.Equal(t, 2, cfg.Server.NumAudioWorkers)
	require.Equal(t, []string{"lobby"}, cfg.Aitalkmaster.JoinKeyKeepAliveList)
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	require.Equal(t, orchestrator.Fatal, orchestrator.KindOf(err))
}

func TestLoadMissingChatModeIsFatal(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateChatCatalogRejectsUnknownDefault(t *testing.T) {
	err := ValidateChatCatalog(ChatClientConfig{DefaultModel: "not-there"}, []string{"gpt-4o"})
	require.Error(t, err)
}

func TestValidateAudioCatalogAccepts(t *testing.T) {
	err := ValidateAudioCatalog(AudioClientConfig{DefaultVoice: "nova", DefaultModel: "tts-1"}, []string{"nova"}, []string{"tts-1"})
	require.NoError(t, err)
}
