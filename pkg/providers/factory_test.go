package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/aitalkmaster/pkg/config"
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

func writeKeyFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestReadKeyFileRejectsMissingEmptyAndDir(t *testing.T) {
	_, err := ReadKeyFile("/nonexistent/key")
	require.Error(t, err)
	require.Equal(t, orchestrator.Fatal, orchestrator.KindOf(err))

	empty := writeKeyFile(t, "")
	_, err = ReadKeyFile(empty)
	require.Error(t, err)

	_, err = ReadKeyFile(t.TempDir())
	require.Error(t, err)
}

func TestReadKeyFileTrimsWhitespace(t *testing.T) {
	path := writeKeyFile(t, "  sk-abc123  \n")
	key, err := ReadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, "sk-abc123", key)
}

func TestNewChatProviderHostedDefaultsToOpenAI(t *testing.T) {
	path := writeKeyFile(t, "sk-abc123")
	p, err := NewChatProvider(config.ChatClientConfig{Mode: "hosted", KeyFile: path, DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, "openai-llm", p.Name())
}

func TestNewChatProviderHostedAnthropic(t *testing.T) {
	path := writeKeyFile(t, "sk-abc123")
	p, err := NewChatProvider(config.ChatClientConfig{Mode: "hosted", Provider: "anthropic", KeyFile: path})
	require.NoError(t, err)
	require.Equal(t, "anthropic-llm", p.Name())
}

func TestNewChatProviderSelfHostedRequiresBaseURL(t *testing.T) {
	_, err := NewChatProvider(config.ChatClientConfig{Mode: "self-hosted"})
	require.Error(t, err)
	require.Equal(t, orchestrator.Fatal, orchestrator.KindOf(err))
}

func TestNewChatProviderSelfHosted(t *testing.T) {
	p, err := NewChatProvider(config.ChatClientConfig{Mode: "self-hosted", BaseURL: "http://localhost:8000/v1/chat/completions"})
	require.NoError(t, err)
	require.Equal(t, "openai-llm", p.Name())
}

func TestNewTTSProviderNilWhenUnconfigured(t *testing.T) {
	p, err := NewTTSProvider(nil)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestNewTTSProviderHosted(t *testing.T) {
	path := writeKeyFile(t, "lok-abc123")
	p, err := NewTTSProvider(&config.AudioClientConfig{Mode: "hosted", KeyFile: path})
	require.NoError(t, err)
	require.Equal(t, "lokutor", p.Name())
}
