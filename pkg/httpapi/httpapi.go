// Package httpapi is the thin HTTP surface (C8): chi routing, the
// chat-model/audio/rate-limit validator chain (§4.8), and status-code
// mapping from orchestrator.Kind (§7). It owns no session state of its
// own — every handler delegates to orchestrator.Store/Pipeline.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lokutor-ai/aitalkmaster/pkg/config"
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
	"github.com/lokutor-ai/aitalkmaster/pkg/ratelimit"
)

// Quota gates ingress by per-IP weighted usage (§4.2). Implemented by
// pkg/ratelimit.Limiter; nil disables quota entirely.
type Quota interface {
	Exceeded(ip string) bool
}

// StreamHandler serves the Mode A direct MP3 stream for a join key.
// Implemented by pkg/stream.Server; nil when the deployment is Mode B
// (broadcaster hand-off only).
type StreamHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request, joinKey, sourceIP string)
}

// Server wires the HTTP surface to the domain layer. Construct with
// NewServer and mount Router() on an *http.Server.
type Server struct {
	store    *orchestrator.Store
	pipeline *orchestrator.Pipeline

	chatCfg  config.ChatClientConfig
	audioCfg *config.AudioClientConfig

	quota    Quota
	ipPolicy ratelimit.IPPolicy

	enqueueMessage func(kind, clientIP string, handler func() error) error
	enqueueAudio   func(kind, clientIP string, handler func() error) error

	streamHandler StreamHandler
	promptBuilder orchestrator.SystemPromptBuilder
	logger        orchestrator.Logger

	startedAt time.Time
}

// NewServer builds the HTTP surface. enqueueMessage/enqueueAudio adapt
// the two C4 job queues; both simply call queue.Queue.Enqueue with a
// context-less handler, since every pipeline call here already takes its
// own context from the request.
func NewServer(
	store *orchestrator.Store,
	pipeline *orchestrator.Pipeline,
	chatCfg config.ChatClientConfig,
	audioCfg *config.AudioClientConfig,
	quota Quota,
	ipPolicy ratelimit.IPPolicy,
	enqueueMessage, enqueueAudio func(kind, clientIP string, handler func() error) error,
	streamHandler StreamHandler,
	promptBuilder orchestrator.SystemPromptBuilder,
	logger orchestrator.Logger,
) *Server {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Server{
		store:          store,
		pipeline:       pipeline,
		chatCfg:        chatCfg,
		audioCfg:       audioCfg,
		quota:          quota,
		ipPolicy:       ipPolicy,
		enqueueMessage: enqueueMessage,
		enqueueAudio:   enqueueAudio,
		streamHandler:  streamHandler,
		promptBuilder:  promptBuilder,
		logger:         logger,
		startedAt:      time.Now(),
	}
}

// Router builds the chi mux enumerated in §6; any unmatched route is
// blocked with 401, per the HTTP surface's explicit catch-all.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/ait/postMessage", s.handlePostAitMessage)
	r.Get("/ait/getMessageResponse", s.handleGetAitMessageResponse)
	r.Post("/ait/startConversation", s.handleStartSession)
	r.Post("/ait/resetJoinkey", s.handleResetJoinKey)
	r.Post("/ait/generateAudio", s.handleGenerateAudio)
	r.Get("/ait/stream-audio/{join_key}", s.handleStreamAudio)

	r.Post("/conversation/start", s.handleConversationStart)
	r.Post("/conversation/postMessage", s.handleConversationPostMessage)
	r.Get("/conversation/getMessageResponse", s.handleConversationGetResponse)

	r.Post("/generate/postMessage", s.handleGeneratePostMessage)
	r.Get("/generate/getMessageResponse", s.handleGenerateGetResponse)

	r.Post("/translation/translate", s.handleTranslationTranslate)
	r.Get("/translation/getTranslation", s.handleTranslationGetResponse)

	r.Get("/chat_models", s.handleChatModels)
	r.Get("/audio_models", s.handleAudioModels)
	r.Get("/statusAitalkmaster", s.handleStatus)

	r.NotFound(blocked)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { blocked(w, r) })

	return r
}

func blocked(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// --- shared response/error helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k orchestrator.Kind) int {
	switch k {
	case orchestrator.InvalidInput, orchestrator.NotFound:
		return http.StatusBadRequest
	case orchestrator.NotReady:
		return http.StatusTooEarly
	case orchestrator.QuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	k := orchestrator.KindOf(err)
	writeJSON(w, statusFor(k), map[string]string{"error": err.Error()})
}

func (s *Server) clientIP(r *http.Request) (string, error) {
	return s.ipPolicy.ClientIP(r)
}

func (s *Server) checkQuota(w http.ResponseWriter, ip string) bool {
	if s.quota != nil && s.quota.Exceeded(ip) {
		s.writeError(w, orchestrator.Newf(orchestrator.QuotaExceeded, "daily usage quota exceeded for %s", ip))
		return false
	}
	return true
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return orchestrator.Newf(orchestrator.InvalidInput, "malformed request body: %w", err)
	}
	return nil
}

func requireNoWhitespace(field, value string) error {
	if strings.ContainsAny(value, " \t\n\r") {
		return orchestrator.Newf(orchestrator.InvalidInput, "%s must not contain whitespace", field)
	}
	return nil
}

// runAsync enqueues fn and returns as soon as it is accepted — the
// caller polls a "get" endpoint for the eventual result (§6 "processing"
// pattern).
func runAsync(enqueue func(kind, clientIP string, handler func() error) error, kind, ip string, fn func() error) error {
	return enqueue(kind, ip, fn)
}

// runSync enqueues fn and blocks until it completes, for the endpoints
// (ait/postMessage, conversation/postMessage, generateAudio) whose
// success response carries the result directly rather than requiring a
// poll.
func runSync(enqueue func(kind, clientIP string, handler func() error) error, kind, ip string, fn func() error) error {
	done := make(chan error, 1)
	if err := enqueue(kind, ip, func() error {
		err := fn()
		done <- err
		return err
	}); err != nil {
		return err
	}
	return <-done
}
