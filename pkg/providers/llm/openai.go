package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type OpenAILLM struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

type openAIUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

func (l *OpenAILLM) call(ctx context.Context, messages []map[string]string) (string, int, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", 0, fmt.Errorf("openai llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	if len(result.Choices) == 0 {
		return "", 0, fmt.Errorf("no choices returned from openai")
	}

	return result.Choices[0].Message.Content, result.Usage.TotalTokens, nil
}

func (l *OpenAILLM) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	var payload []map[string]string
	if systemInstructions != "" {
		payload = append(payload, map[string]string{"role": "system", "content": systemInstructions})
	}
	for _, m := range messages {
		payload = append(payload, map[string]string{"role": m.Role, "content": m.Content})
	}
	return l.call(ctx, payload)
}

func (l *OpenAILLM) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	var payload []map[string]string
	if systemInstructions != "" {
		payload = append(payload, map[string]string{"role": "system", "content": systemInstructions})
	}
	payload = append(payload, map[string]string{"role": "user", "content": prompt})
	return l.call(ctx, payload)
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}

// SetBaseURL points the client at a self-hosted OpenAI-compatible
// endpoint (vLLM, Ollama, etc.) instead of api.openai.com (§4.1
// "self-hosted" mode).
func (l *OpenAILLM) SetBaseURL(url string) {
	l.url = url
}
