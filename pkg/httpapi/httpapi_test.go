package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lokutor-ai/aitalkmaster/pkg/config"
	"github.com/lokutor-ai/aitalkmaster/pkg/i18n"
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
	"github.com/lokutor-ai/aitalkmaster/pkg/ratelimit"
)

type fakeChat struct{}

func (fakeChat) Dialog(ctx context.Context, systemInstructions string, messages []orchestrator.Message) (string, int, error) {
	return `{"Nova": "hello there"}`, 5, nil
}
func (fakeChat) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	return "translated text", 3, nil
}
func (fakeChat) Name() string { return "fake-chat" }

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, text, voice, model, instructions string) ([]byte, error) {
	return []byte("MP3BYTES"), nil
}
func (fakeTTS) Name() string { return "fake-tts" }

type fakeFiles struct{}

func (fakeFiles) BuildFilename(joinKey, character, messageID, voice string) (string, string) {
	return messageID + ".mp3", "/tmp/" + messageID + ".mp3"
}
func (fakeFiles) WriteActive(joinKey, filename string, data []byte) error { return nil }

type fakeAudio struct{}

func (fakeAudio) Process(raw []byte, joinKey, character, filename string) ([]byte, float64, error) {
	return raw, 1.5, nil
}

type fakeUsage struct{}

func (fakeUsage) Charge(ip string, weight float64) {}

type fakeStream struct{ served bool }

func (f *fakeStream) OnNewFile(joinKey, path string) {}
func (f *fakeStream) OnReset(joinKey string)          {}
func (f *fakeStream) ServeHTTP(w http.ResponseWriter, r *http.Request, joinKey, sourceIP string) {
	f.served = true
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("STREAM"))
}

func synchronousEnqueue(kind, clientIP string, handler func() error) error {
	return handler()
}

func newTestServer(t *testing.T, audioCfg *config.AudioClientConfig) *Server {
	t.Helper()
	store := orchestrator.NewStore(nil, nil, nil, 0, 0)
	pipeline := orchestrator.NewPipeline(store, fakeChat{}, fakeTTS{}, fakeFiles{}, fakeAudio{}, fakeUsage{}, &fakeStream{}, nil, 0.0006)

	chatCfg := config.ChatClientConfig{DefaultModel: "gpt-4o", AllowedModels: []string{"gpt-4o"}}
	return NewServer(
		store, pipeline, chatCfg, audioCfg,
		ratelimit.New(0), ratelimit.IPPolicy{},
		synchronousEnqueue, synchronousEnqueue,
		&fakeStream{}, i18n.TranslationPrompt, nil,
	)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "1.2.3.4:9999"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestPostAitMessageThenPoll(t *testing.T) {
	srv := newTestServer(t, &config.AudioClientConfig{DefaultVoice: "nova", DefaultModel: "versa-1.0"})

	rec := doJSON(t, srv, http.MethodPost, "/ait/postMessage", postAitMessageRequest{
		JoinKey: "k1", SpeakerName: "Alice", Message: "hi", MessageID: "m1", CharacterName: "Nova",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	poll := httptest.NewRequest(http.MethodGet, "/ait/getMessageResponse?join_key=k1&message_id=m1", nil)
	pollRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(pollRec, poll)
	require.Equal(t, http.StatusOK, pollRec.Code)

	var resp messageResponse
	require.NoError(t, json.NewDecoder(pollRec.Body).Decode(&resp))
	require.Equal(t, "hello there", resp.Response)
}

func TestPostAitMessageRejectsUnknownModel(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/ait/postMessage", postAitMessageRequest{
		JoinKey: "k1", MessageID: "m1", CharacterName: "Nova", Model: "not-a-model",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAitMessageRejectsDuplicateMessageID(t *testing.T) {
	srv := newTestServer(t, nil)
	body := postAitMessageRequest{JoinKey: "k2", MessageID: "dup", CharacterName: "Nova"}
	rec1 := doJSON(t, srv, http.MethodPost, "/ait/postMessage", body)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := doJSON(t, srv, http.MethodPost, "/ait/postMessage", body)
	require.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGetAitMessageResponseUnknownJoinKeyIs400(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodGet, "/ait/getMessageResponse?join_key=never&message_id=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateAudioSynchronousSuccess(t *testing.T) {
	srv := newTestServer(t, &config.AudioClientConfig{DefaultVoice: "nova", DefaultModel: "versa-1.0"})
	rec := doJSON(t, srv, http.MethodPost, "/ait/generateAudio", generateAudioRequest{
		JoinKey: "k3", SpeakerName: "Narrator", Message: "arbitrary text",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generateAudioResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Filename)
}

func TestGenerateAudioWithoutAudioConfigIs400(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/ait/generateAudio", generateAudioRequest{JoinKey: "k4", Message: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationStartPostThenPoll(t *testing.T) {
	srv := newTestServer(t, nil)
	startRec := doJSON(t, srv, http.MethodPost, "/conversation/start", conversationStartRequest{Model: "gpt-4o"})
	require.Equal(t, http.StatusOK, startRec.Code)
	var started conversationStartResponse
	require.NoError(t, json.NewDecoder(startRec.Body).Decode(&started))
	require.NotEmpty(t, started.ConversationKey)

	postRec := doJSON(t, srv, http.MethodPost, "/conversation/postMessage", conversationPostMessageRequest{
		ConversationKey: started.ConversationKey, Message: "hi", MessageID: "cm1",
	})
	require.Equal(t, http.StatusOK, postRec.Code)

	pollReq := httptest.NewRequest(http.MethodGet, "/conversation/getMessageResponse?conversation_key="+started.ConversationKey+"&message_id=cm1", nil)
	pollRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(pollRec, pollReq)
	require.Equal(t, http.StatusOK, pollRec.Code)
}

func TestGeneratePostMessageIsAlwaysAccepted(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/generate/postMessage", generatePostMessageRequest{MessageID: "g1", Message: "hi"})
	require.Equal(t, http.StatusTooEarly, rec.Code)

	pollReq := httptest.NewRequest(http.MethodGet, "/generate/getMessageResponse?message_id=g1", nil)
	pollRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(pollRec, pollReq)
	require.Equal(t, http.StatusOK, pollRec.Code)
}

func TestTranslationRejectsWhitespaceSessionKey(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := doJSON(t, srv, http.MethodPost, "/translation/translate", translationRequest{
		SessionKey: "has space", Message: "hi", MessageID: "t1", SourceLanguage: "en", TargetLanguage: "fr",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteIs401(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusAitalkmaster(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/statusAitalkmaster", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
