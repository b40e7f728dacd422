package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type fakeChatProvider struct {
	text   string
	tokens int
	err    error
}

func (f fakeChatProvider) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	return f.text, f.tokens, f.err
}
func (f fakeChatProvider) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	return f.text, f.tokens, f.err
}
func (f fakeChatProvider) Name() string { return "fake" }

type recordedCall struct {
	provider, prompt, response string
	evalTokens                 int
}

type fakeRecorder struct{ calls []recordedCall }

func (r *fakeRecorder) Record(provider, prompt, response string, evalTokens int) {
	r.calls = append(r.calls, recordedCall{provider, prompt, response, evalTokens})
}

func TestLoggingChatProviderRecordsSuccessfulDialog(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewLoggingChatProvider(fakeChatProvider{text: "hi", tokens: 3}, rec)

	text, tokens, err := p.Dialog(context.Background(), "sys", []orchestrator.Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	require.Equal(t, "hi", text)
	require.Equal(t, 3, tokens)
	require.Len(t, rec.calls, 1)
	require.Equal(t, "hello", rec.calls[0].prompt)
}

func TestLoggingChatProviderSkipsFailedCalls(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewLoggingChatProvider(fakeChatProvider{err: orchestrator.Newf(orchestrator.ProviderFailure, "boom")}, rec)

	_, _, err := p.SingleShot(context.Background(), "sys", "prompt")
	require.Error(t, err)
	require.Empty(t, rec.calls)
}
