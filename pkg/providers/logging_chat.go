package providers

import (
	"context"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// llmRecorder is pkg/logging.LLMLog's call surface, kept narrow so this
// package has no logging dependency beyond the interface it needs.
type llmRecorder interface {
	Record(provider, prompt, response string, evalTokens int)
}

// LoggingChatProvider decorates a ChatProvider with the separate LLM
// prompt/response log (§7 Observability), recording only successful
// calls.
type LoggingChatProvider struct {
	orchestrator.ChatProvider
	log llmRecorder
}

func NewLoggingChatProvider(inner orchestrator.ChatProvider, log llmRecorder) *LoggingChatProvider {
	return &LoggingChatProvider{ChatProvider: inner, log: log}
}

func (p *LoggingChatProvider) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	text, tokens, err := p.ChatProvider.Dialog(ctx, systemInstructions, messages)
	if err == nil {
		var prompt string
		if len(messages) > 0 {
			prompt = messages[len(messages)-1].Content
		}
		p.log.Record(p.ChatProvider.Name(), prompt, text, tokens)
	}
	return text, tokens, err
}

func (p *LoggingChatProvider) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	text, tokens, err := p.ChatProvider.SingleShot(ctx, systemInstructions, prompt)
	if err == nil {
		p.log.Record(p.ChatProvider.Name(), prompt, text, tokens)
	}
	return text, tokens, err
}
