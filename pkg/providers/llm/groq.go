package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// GroqLLM talks to Groq's OpenAI-compatible chat-completions endpoint.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
}

func NewGroqLLM(apiKey string, model string) *GroqLLM {
	if model == "" {
		model = "llama3-70b-8192"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqLLM) call(ctx context.Context, messages []map[string]string) (string, int, error) {
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
		return "", 0, fmt.Errorf("groq llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	if len(result.Choices) == 0 {
		return "", 0, fmt.Errorf("no choices returned from groq")
	}

	return result.Choices[0].Message.Content, result.Usage.TotalTokens, nil
}

func (l *GroqLLM) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	var payload []map[string]string
	if systemInstructions != "" {
		payload = append(payload, map[string]string{"role": "system", "content": systemInstructions})
	}
	for _, m := range messages {
		payload = append(payload, map[string]string{"role": m.Role, "content": m.Content})
	}
	return l.call(ctx, payload)
}

func (l *GroqLLM) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	var payload []map[string]string
	if systemInstructions != "" {
		payload = append(payload, map[string]string{"role": "system", "content": systemInstructions})
	}
	payload = append(payload, map[string]string{"role": "user", "content": prompt})
	return l.call(ctx, payload)
}

func (l *GroqLLM) Name() string {
	return "groq-llm"
}
