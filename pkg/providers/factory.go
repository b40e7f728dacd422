// Package providers builds the C1 chat/TTS clients from configuration:
// "hosted" reads an API key from a file, "self-hosted" points a
// provider's client at a configured base URL with a fixed sentinel key
// (§4.1). Clients are constructed once at startup and reused for the
// process lifetime.
package providers

import (
	"os"
	"strings"

	"github.com/lokutor-ai/aitalkmaster/pkg/config"
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
	"github.com/lokutor-ai/aitalkmaster/pkg/providers/llm"
	"github.com/lokutor-ai/aitalkmaster/pkg/providers/tts"
)

// selfHostedSentinelKey stands in for an API key when a self-hosted
// endpoint enforces none (§4.1 "fixed sentinel key").
const selfHostedSentinelKey = "self-hosted"

// ReadKeyFile loads a hosted provider's API key. A missing file, an
// empty file, or a path that names a directory is Fatal (§4.1).
func ReadKeyFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", orchestrator.Newf(orchestrator.Fatal, "read key file %q: %w", path, err)
	}
	if info.IsDir() {
		return "", orchestrator.Newf(orchestrator.Fatal, "key file %q is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", orchestrator.Newf(orchestrator.Fatal, "read key file %q: %w", path, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", orchestrator.Newf(orchestrator.Fatal, "key file %q is empty", path)
	}
	return key, nil
}

// NewChatProvider builds the configured chat client. Self-hosted mode
// always wraps an OpenAI-compatible client (vLLM, Ollama, and similar
// self-hosted servers mirror that wire format) pointed at BaseURL.
func NewChatProvider(cfg config.ChatClientConfig) (orchestrator.ChatProvider, error) {
	if cfg.Mode == "self-hosted" {
		if cfg.BaseURL == "" {
			return nil, orchestrator.Newf(orchestrator.Fatal, "chat_client.base_url is required in self-hosted mode")
		}
		client := llm.NewOpenAILLM(selfHostedSentinelKey, cfg.DefaultModel)
		client.SetBaseURL(cfg.BaseURL)
		return client, nil
	}

	key, err := ReadKeyFile(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicLLM(key, cfg.DefaultModel), nil
	case "google":
		return llm.NewGoogleLLM(key, cfg.DefaultModel), nil
	case "groq":
		return llm.NewGroqLLM(key, cfg.DefaultModel), nil
	case "openai", "":
		return llm.NewOpenAILLM(key, cfg.DefaultModel), nil
	default:
		return nil, orchestrator.Newf(orchestrator.Fatal, "unknown chat_client.provider %q", cfg.Provider)
	}
}

// NewTTSProvider builds the configured audio client, or nil if audio is
// not configured at all (§4.1 — a nil TTSProvider is valid, text-only
// sessions then carry a null filename).
func NewTTSProvider(cfg *config.AudioClientConfig) (orchestrator.TTSProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	if cfg.Mode == "self-hosted" {
		if cfg.BaseURL == "" {
			return nil, orchestrator.Newf(orchestrator.Fatal, "audio_client.base_url is required in self-hosted mode")
		}
		client := tts.NewLokutorTTS(selfHostedSentinelKey)
		client.SetBaseURL("ws", cfg.BaseURL)
		return client, nil
	}

	key, err := ReadKeyFile(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return tts.NewLokutorTTS(key), nil
}
