package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

func (s *Server) handlePostAitMessage(w http.ResponseWriter, r *http.Request) {
	var req postAitMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireNoWhitespace("join_key", req.JoinKey); err != nil {
		s.writeError(w, err)
		return
	}

	model, err := s.validateChatModel(req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	audioModel, audioVoice := req.AudioModel, req.AudioVoice
	if s.audioCfg != nil {
		audioModel, audioVoice, err = s.validateAudio(req.AudioModel, req.AudioVoice)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	ip, err := s.clientIP(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkQuota(w, ip) {
		return
	}

	in := orchestrator.AitMessageInput{
		ClientIP:           ip,
		JoinKey:            req.JoinKey,
		SpeakerName:        req.SpeakerName,
		Message:            req.Message,
		MessageID:          req.MessageID,
		CharacterName:      req.CharacterName,
		Model:              model,
		SystemInstructions: req.SystemInstructions,
		Options:            req.Options,
		AudioVoice:         audioVoice,
		AudioModel:         audioModel,
		AudioInstructions:  req.AudioInstructions,
	}

	// Validate the at-most-once key synchronously, before enqueueing,
	// so a duplicate is rejected inline rather than silently dropped by
	// a background worker (invariant #1).
	if sess, ok := s.store.GetSession(req.JoinKey); ok && sess.HasMessageID(req.MessageID) {
		s.writeError(w, orchestrator.Newf(orchestrator.InvalidInput, "duplicate message_id %q", req.MessageID))
		return
	}

	var response string
	err = runSync(s.enqueueMessage, "AIT_POST", ip, func() error {
		text, err := s.pipeline.PostAitMessage(context.Background(), in)
		response = text
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{MessageID: req.MessageID, Response: response})
}

func (s *Server) handleGetAitMessageResponse(w http.ResponseWriter, r *http.Request) {
	joinKey := r.URL.Query().Get("join_key")
	messageID := r.URL.Query().Get("message_id")

	sess, ok := s.store.GetSession(joinKey)
	if !ok {
		s.writeError(w, orchestrator.Newf(orchestrator.NotFound, "unknown join_key %q", joinKey))
		return
	}
	resp, ok := sess.ResponseFor(messageID)
	if !ok {
		writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{MessageID: messageID, Response: resp.Text})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req joinKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireNoWhitespace("join_key", req.JoinKey); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.store.GetOrCreateSession(req.JoinKey); err != nil {
		s.writeError(w, err)
		return
	}

	resp := startSessionResponse{JoinKey: req.JoinKey}
	if s.streamHandler != nil {
		resp.StreamURL = "/ait/stream-audio/" + req.JoinKey
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetJoinKey(w http.ResponseWriter, r *http.Request) {
	var req joinKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.Reset(req.JoinKey); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req generateAudioRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireNoWhitespace("join_key", req.JoinKey); err != nil {
		s.writeError(w, err)
		return
	}

	audioModel, audioVoice, err := s.validateAudio(req.AudioModel, req.AudioVoice)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ip, err := s.clientIP(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkQuota(w, ip) {
		return
	}

	in := orchestrator.GenerateAudioInput{
		ClientIP:          ip,
		JoinKey:           req.JoinKey,
		SpeakerName:       req.SpeakerName,
		Message:           req.Message,
		AudioVoice:        audioVoice,
		AudioModel:        audioModel,
		AudioInstructions: req.AudioInstructions,
	}

	var messageID, filename string
	err = runSync(s.enqueueAudio, "GENERATE_AUDIO", ip, func() error {
		id, f, err := s.pipeline.PostGenerateAudio(context.Background(), in)
		messageID, filename = id, f
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateAudioResponse{MessageID: messageID, Filename: filename})
}

func (s *Server) handleStreamAudio(w http.ResponseWriter, r *http.Request) {
	if s.streamHandler == nil {
		http.NotFound(w, r)
		return
	}
	joinKey := chi.URLParam(r, "join_key")
	ip, err := s.clientIP(r)
	if err != nil {
		ip = r.RemoteAddr
	}
	s.streamHandler.ServeHTTP(w, r, joinKey, ip)
}

func (s *Server) handleConversationStart(w http.ResponseWriter, r *http.Request) {
	var req conversationStartRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	model, err := s.validateChatModel(req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conv := orchestrator.NewConversation(model, req.SystemInstructions, req.Options)
	s.store.PutConversation(conv)

	writeJSON(w, http.StatusOK, conversationStartResponse{ConversationKey: conv.Key})
}

func (s *Server) handleConversationPostMessage(w http.ResponseWriter, r *http.Request) {
	var req conversationPostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if _, ok := s.store.GetConversation(req.ConversationKey); !ok {
		s.writeError(w, orchestrator.Newf(orchestrator.NotFound, "unknown conversation_key %q", req.ConversationKey))
		return
	}

	ip, err := s.clientIP(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkQuota(w, ip) {
		return
	}

	in := orchestrator.ConversationMessageInput{
		ClientIP:        ip,
		ConversationKey: req.ConversationKey,
		Message:         req.Message,
		MessageID:       req.MessageID,
	}

	var response string
	err = runSync(s.enqueueMessage, "CONVERSATION_POST", ip, func() error {
		text, err := s.pipeline.PostConversationMessage(context.Background(), in)
		response = text
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversationMessageResponse{
		Response:        response,
		MessageID:       req.MessageID,
		ConversationKey: req.ConversationKey,
	})
}

func (s *Server) handleConversationGetResponse(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("conversation_key")
	messageID := r.URL.Query().Get("message_id")

	conv, ok := s.store.GetConversation(key)
	if !ok {
		s.writeError(w, orchestrator.Newf(orchestrator.NotFound, "unknown conversation_key %q", key))
		return
	}
	text, ok := conv.ReplyFor(messageID)
	if !ok {
		writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{MessageID: messageID, Response: text})
}

func (s *Server) handleGeneratePostMessage(w http.ResponseWriter, r *http.Request) {
	var req generatePostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	model, err := s.validateChatModel(req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ip, err := s.clientIP(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkQuota(w, ip) {
		return
	}

	in := orchestrator.GenerateInput{
		ClientIP:           ip,
		MessageID:          req.MessageID,
		Message:            req.Message,
		SystemInstructions: req.SystemInstructions,
		Model:              model,
		Options:            req.Options,
	}

	err = runAsync(s.enqueueMessage, "GENERATE", ip, func() error {
		return s.pipeline.PostGenerate(context.Background(), in)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
}

func (s *Server) handleGenerateGetResponse(w http.ResponseWriter, r *http.Request) {
	messageID := r.URL.Query().Get("message_id")
	entry, ok := s.store.GetGeneration(messageID)
	if !ok || !entry.Ready {
		writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{MessageID: messageID, Response: entry.ResponseText})
}

func (s *Server) handleTranslationTranslate(w http.ResponseWriter, r *http.Request) {
	var req translationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireNoWhitespace("session_key", req.SessionKey); err != nil {
		s.writeError(w, err)
		return
	}

	ip, err := s.clientIP(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkQuota(w, ip) {
		return
	}

	in := orchestrator.TranslationInput{
		ClientIP:       ip,
		SessionKey:     req.SessionKey,
		Message:        req.Message,
		MessageID:      req.MessageID,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Model:          req.Model,
		AudioVoice:     req.AudioVoice,
		AudioModel:     req.AudioModel,
	}

	err = runAsync(s.enqueueMessage, "TRANSLATION", ip, func() error {
		_, err := s.pipeline.PostTranslation(context.Background(), in, s.promptBuilder)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
}

func (s *Server) handleTranslationGetResponse(w http.ResponseWriter, r *http.Request) {
	messageID := r.URL.Query().Get("message_id")
	entry, ok := s.store.GetGeneration(messageID)
	if !ok || !entry.Ready {
		writeJSON(w, http.StatusTooEarly, processingResponse{Status: "processing"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{MessageID: messageID, Response: entry.ResponseText})
}

func (s *Server) handleChatModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{Default: s.chatCfg.DefaultModel, Allowed: s.chatCfg.AllowedModels})
}

func (s *Server) handleAudioModels(w http.ResponseWriter, r *http.Request) {
	if s.audioCfg == nil {
		writeJSON(w, http.StatusOK, catalogResponse{})
		return
	}
	writeJSON(w, http.StatusOK, catalogResponse{Default: s.audioCfg.DefaultModel, Allowed: s.audioCfg.AllowedModels})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}
