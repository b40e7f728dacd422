package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (l *AnthropicLLM) call(ctx context.Context, system string, messages []map[string]string) (string, int, error) {
	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   messages,
		"max_tokens": 1024,
	}
	if system != "" {
		payload["system"] = system
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", 0, fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	if len(result.Content) == 0 {
		return "", 0, fmt.Errorf("no content returned from anthropic")
	}

	return result.Content[0].Text, result.Usage.OutputTokens, nil
}

func (l *AnthropicLLM) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	var payload []map[string]string
	for _, m := range messages {
		if m.Role == "system" {
			if systemInstructions == "" {
				systemInstructions = m.Content
			}
			continue
		}
		payload = append(payload, map[string]string{"role": m.Role, "content": m.Content})
	}
	return l.call(ctx, systemInstructions, payload)
}

func (l *AnthropicLLM) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	payload := []map[string]string{{"role": "user", "content": prompt}}
	return l.call(ctx, systemInstructions, payload)
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
