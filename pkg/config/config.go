// Package config loads the YAML configuration schema (§6) that drives
// provider selection, rate limiting, and optional broadcaster/admin-stats
// wiring.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type UsageConfig struct {
	UseRateLimit          bool    `yaml:"use_rate_limit"`
	RateLimitXForwardedFor bool   `yaml:"rate_limit_xForwardedFor"`
	RateLimitPerDay       float64 `yaml:"rate_limit_per_day"`
	AudioCostPerSecond    float64 `yaml:"audio_cost_per_second"`
}

type ServerConfig struct {
	Host            string      `yaml:"host"`
	Port            int         `yaml:"port"`
	LogFile         string      `yaml:"log_file"`
	NumWorkers      int         `yaml:"num_workers"`
	NumAudioWorkers int         `yaml:"num_audio_workers"`
	Usage           UsageConfig `yaml:"usage"`
}

type ChatClientConfig struct {
	Mode          string   `yaml:"mode"` // "hosted" | "self-hosted"
	Provider      string   `yaml:"provider"` // "openai" | "anthropic" | "google" | "groq"; hosted only
	KeyFile       string   `yaml:"key_file"`
	BaseURL       string   `yaml:"base_url"`
	DefaultModel  string   `yaml:"default_model"`
	AllowedModels []string `yaml:"allowed_models"`
}

type AudioClientConfig struct {
	Mode          string   `yaml:"mode"`
	KeyFile       string   `yaml:"key_file"`
	BaseURL       string   `yaml:"base_url"`
	DefaultVoice  string   `yaml:"default_voice"`
	DefaultModel  string   `yaml:"default_model"`
	AllowedVoices []string `yaml:"allowed_voices"`
	AllowedModels []string `yaml:"allowed_models"`
}

type BroadcasterControlConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type AdminStatsConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	AdminUser            string `yaml:"admin_user"`
	AdminPassword        string `yaml:"admin_password"`
	StreamEndpointPrefix string `yaml:"stream_endpoint_prefix"`
}

type AitalkmasterConfig struct {
	JoinKeyKeepAliveList []string `yaml:"join_key_keep_alive_list"`
	FillerAudioDir       string   `yaml:"filler_audio_dir"`
	AudioRoot            string   `yaml:"audio_root"`
	LLMLogFile           string   `yaml:"llm_log_file"`
}

type Config struct {
	Server             ServerConfig              `yaml:"server"`
	ChatClient         ChatClientConfig          `yaml:"chat_client"`
	AudioClient        *AudioClientConfig        `yaml:"audio_client"`
	BroadcasterControl *BroadcasterControlConfig `yaml:"broadcaster_control"`
	AdminStats         *AdminStatsConfig         `yaml:"admin_stats"`
	Aitalkmaster       AitalkmasterConfig        `yaml:"aitalkmaster"`
}

// Load reads and parses the YAML file at path. A missing or unparseable
// file is a Fatal error (§7, §9 "Ambient Stack — Configuration") raised
// before the HTTP server starts.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orchestrator.Newf(orchestrator.Fatal, "read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, orchestrator.Newf(orchestrator.Fatal, "parse config %q: %w", path, err)
	}

	if err := cfg.validateDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateDefaults() error {
	if strings.TrimSpace(c.ChatClient.Mode) == "" {
		return orchestrator.Newf(orchestrator.Fatal, "chat_client.mode is required")
	}
	if c.Server.NumWorkers <= 0 {
		c.Server.NumWorkers = 4
	}
	if c.Server.NumAudioWorkers <= 0 {
		c.Server.NumAudioWorkers = 2
	}
	return nil
}

// ValidateChatCatalog intersects the configured allow/default list against
// a provider's reported model catalog (§4.1 startup validation).
func ValidateChatCatalog(cfg ChatClientConfig, catalog []string) error {
	return validateCatalog("chat model", cfg.DefaultModel, cfg.AllowedModels, catalog)
}

// ValidateAudioCatalog intersects configured voices/models against a TTS
// provider's reported catalog.
func ValidateAudioCatalog(cfg AudioClientConfig, voiceCatalog, modelCatalog []string) error {
	if err := validateCatalog("audio voice", cfg.DefaultVoice, cfg.AllowedVoices, voiceCatalog); err != nil {
		return err
	}
	return validateCatalog("audio model", cfg.DefaultModel, cfg.AllowedModels, modelCatalog)
}

func validateCatalog(label, def string, allowed, catalog []string) error {
	set := make(map[string]bool, len(catalog))
	for _, c := range catalog {
		set[c] = true
	}
	if def != "" && !set[def] {
		return orchestrator.Newf(orchestrator.Fatal, "%s default %q is not in the provider catalog", label, def)
	}
	for _, a := range allowed {
		if !set[a] {
			return orchestrator.Newf(orchestrator.Fatal, "%s %q is not in the provider catalog", label, a)
		}
	}
	return nil
}
