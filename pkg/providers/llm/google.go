package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type GoogleLLM struct {
	apiKey string
	url    string
	model  string
}

func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleLLM{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":generateContent",
		model:  model,
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleMessage struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (l *GoogleLLM) call(ctx context.Context, systemInstructions string, messages []googleMessage) (string, int, error) {
	payload := map[string]interface{}{
		"contents": messages,
	}
	if systemInstructions != "" {
		payload["systemInstruction"] = googleMessage{Parts: []googlePart{{Text: systemInstructions}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", 0, fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", 0, fmt.Errorf("no response from google llm")
	}

	return result.Candidates[0].Content.Parts[0].Text, result.UsageMetadata.CandidatesTokenCount, nil
}

func (l *GoogleLLM) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	var googleMessages []googleMessage
	for _, m := range messages {
		role := m.Role
		if role == "system" {
			if systemInstructions == "" {
				systemInstructions = m.Content
			}
			continue
		}
		if role == "assistant" {
			role = "model"
		}
		googleMessages = append(googleMessages, googleMessage{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}
	return l.call(ctx, systemInstructions, googleMessages)
}

func (l *GoogleLLM) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	return l.call(ctx, systemInstructions, []googleMessage{{Role: "user", Parts: []googlePart{{Text: prompt}}}})
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}
