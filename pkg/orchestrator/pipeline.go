package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UsageCharger accounts weighted usage against the per-IP rate limiter
// (C2). Implemented by pkg/ratelimit.
type UsageCharger interface {
	Charge(ip string, weight float64)
}

// StreamNotifier is the pipeline's half of the stream-delivery interface
// (§9): it learns about new files and resets, and never branches on
// whether the deployment is direct-streaming or broadcaster-backed.
type StreamNotifier interface {
	OnNewFile(joinKey, path string)
	OnReset(joinKey string)
}

// TranslationNotifier is an optional capability of a StreamNotifier: the
// broadcaster control channel exposes a distinct "…_translation_…"
// endpoint for translation audio (§6). Mode A has no control channel, so
// only pkg/broadcaster.Controller implements this; a StreamNotifier that
// doesn't falls back to the generic OnNewFile hand-off.
type TranslationNotifier interface {
	QueueTranslation(sessionKey, path string) error
}

// FileWriter owns filename allocation and on-disk placement under the
// active directory for a join key (§3 On-Disk Audio Layout). Implemented
// by pkg/filestore.
type FileWriter interface {
	BuildFilename(joinKey, character, messageID, voice string) (filename, fullPath string)
	WriteActive(joinKey, filename string, data []byte) error
}

// AudioPostProcessor turns a provider's raw TTS bytes into the final
// on-disk artifact: re-encoded at a uniform bitrate, ID3-tagged, with its
// playable duration. Implemented by pkg/audio.
type AudioPostProcessor interface {
	Process(raw []byte, joinKey, character, filename string) (final []byte, durationSeconds float64, err error)
}

// Pipeline is the Generation Pipeline (C5): pure orchestration of dialog
// mutation, provider calls, and broadcast hand-off. It holds no HTTP or
// transport concerns.
type Pipeline struct {
	store  *Store
	chat   ChatProvider
	tts    TTSProvider // nil when no audio_client is configured
	files  FileWriter
	audio  AudioPostProcessor
	usage  UsageCharger
	stream StreamNotifier
	logger Logger

	audioCostPerSecond float64
}

func NewPipeline(store *Store, chat ChatProvider, tts TTSProvider, files FileWriter, audio AudioPostProcessor, usage UsageCharger, stream StreamNotifier, logger Logger, audioCostPerSecond float64) *Pipeline {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Pipeline{
		store:              store,
		chat:               chat,
		tts:                tts,
		files:              files,
		audio:              audio,
		usage:              usage,
		stream:             stream,
		logger:             logger,
		audioCostPerSecond: audioCostPerSecond,
	}
}

// AitMessageInput is the field contract of POST /ait/postMessage (§6),
// already defaulted/validated by the C8 decorator chain.
type AitMessageInput struct {
	ClientIP           string
	JoinKey            string
	SpeakerName        string
	Message            string
	MessageID          string
	CharacterName      string
	Model              string
	SystemInstructions string
	Options            map[string]interface{}
	AudioVoice         string
	AudioModel         string
	AudioInstructions  string
}

// PostAitMessage runs the full multi-speaker pipeline (§4.5 steps 2-9).
func (p *Pipeline) PostAitMessage(ctx context.Context, in AitMessageInput) (string, error) {
	session, err := p.store.GetOrCreateSession(in.JoinKey)
	if err != nil {
		return "", err
	}

	if err := session.AddUserMessage(UserMessage{
		Message:     in.Message,
		SpeakerName: in.SpeakerName,
		MessageID:   in.MessageID,
	}); err != nil {
		return "", err
	}

	dialog := session.Dialog()
	text, tokens, err := p.chat.Dialog(ctx, structuredSystemPrompt(in.SystemInstructions, in.CharacterName), dialog)
	if err != nil {
		return "", Newf(ProviderFailure, "chat dialog: %w", err)
	}
	text = extractCharacterText(text, in.CharacterName)
	p.usage.Charge(in.ClientIP, float64(tokens))

	var filename, fullPath string
	if p.tts != nil {
		seq := session.NextSequence()
		filename, fullPath = p.files.BuildFilename(in.JoinKey, in.CharacterName, fmt.Sprintf("%03d_%s", seq, in.MessageID), in.AudioVoice)
	}

	session.AppendResponse(AssistantResponse{
		Text:          text,
		CharacterName: in.CharacterName,
		ResponseID:    in.MessageID,
		Filename:      filename,
	})

	if p.tts == nil {
		return text, nil
	}

	if err := p.synthesizeAndPublish(ctx, in.JoinKey, in.CharacterName, in.MessageID, filename, fullPath, text, in.AudioVoice, in.AudioModel, in.AudioInstructions, in.ClientIP, false); err != nil {
		p.logger.Error("tts stage failed", "join_key", in.JoinKey, "message_id", in.MessageID, "error", err)
	}

	return text, nil
}

// synthesizeAndPublish runs §4.5 steps 7-9. isTranslation routes the
// broadcaster hand-off through QueueTranslation's "…_translation_…"
// control endpoint instead of the generic file-queue one, when the
// configured StreamNotifier supports it (§6).
func (p *Pipeline) synthesizeAndPublish(ctx context.Context, joinKey, character, messageID, filename, fullPath, text, voice, model, instructions, clientIP string, isTranslation bool) error {
	raw, err := p.tts.Synthesize(ctx, text, voice, model, instructions)
	if err != nil {
		return Newf(ProviderFailure, "tts synthesize: %w", err)
	}

	final, duration, err := p.audio.Process(raw, joinKey, character, filename)
	if err != nil {
		return Newf(ProviderFailure, "audio post-process: %w", err)
	}
	p.usage.Charge(clientIP, duration*p.audioCostPerSecond)

	if err := p.files.WriteActive(joinKey, filename, final); err != nil {
		return Newf(ProviderFailure, "write active audio file: %w", err)
	}

	session, ok := p.store.GetSession(joinKey)
	if ok {
		session.SetAudioReady(messageID, time.Now())
	}

	if p.stream == nil {
		return nil
	}
	if isTranslation {
		if tn, ok := p.stream.(TranslationNotifier); ok {
			if err := tn.QueueTranslation(joinKey, fullPath); err != nil {
				p.logger.Warn("translation queue failed", "session_key", joinKey, "path", fullPath, "error", err)
			}
			return nil
		}
	}
	p.stream.OnNewFile(joinKey, fullPath)
	return nil
}

// GenerateAudioInput is the field contract of POST /ait/generateAudio.
type GenerateAudioInput struct {
	ClientIP          string
	JoinKey           string
	SpeakerName       string
	Message           string
	AudioVoice        string
	AudioModel        string
	AudioInstructions string
}

// PostGenerateAudio synthesizes arbitrary text for a session without a
// chat call — the audio-only queue's job kind.
func (p *Pipeline) PostGenerateAudio(ctx context.Context, in GenerateAudioInput) (messageID, filename string, err error) {
	if p.tts == nil {
		return "", "", Newf(InvalidInput, "no audio client configured")
	}
	session, err := p.store.GetOrCreateSession(in.JoinKey)
	if err != nil {
		return "", "", err
	}

	seq := session.NextSequence()
	messageID = fmt.Sprintf("generated-%03d", seq)
	var fullPath string
	filename, fullPath = p.files.BuildFilename(in.JoinKey, in.SpeakerName, fmt.Sprintf("%03d_%s", seq, messageID), in.AudioVoice)

	session.AppendResponse(AssistantResponse{
		Text:          in.Message,
		CharacterName: in.SpeakerName,
		ResponseID:    messageID,
		Filename:      filename,
	})

	if err := p.synthesizeAndPublish(ctx, in.JoinKey, in.SpeakerName, messageID, filename, fullPath, in.Message, in.AudioVoice, in.AudioModel, in.AudioInstructions, in.ClientIP, false); err != nil {
		return "", "", err
	}
	return messageID, filename, nil
}

// ConversationMessageInput is the field contract of POST
// /conversation/postMessage.
type ConversationMessageInput struct {
	ClientIP          string
	ConversationKey   string
	Message           string
	MessageID         string
}

// PostConversationMessage runs §4.5 steps 3-5 only: no audio, no session
// counter, history kept on the Conversation itself.
func (p *Pipeline) PostConversationMessage(ctx context.Context, in ConversationMessageInput) (string, error) {
	conv, ok := p.store.GetConversation(in.ConversationKey)
	if !ok {
		return "", Newf(NotFound, "unknown conversation_key %q", in.ConversationKey)
	}
	if err := conv.AddMessage(in.MessageID, in.Message); err != nil {
		return "", err
	}

	text, tokens, err := p.chat.Dialog(ctx, conv.SystemInstructions, conv.Dialog())
	if err != nil {
		return "", Newf(ProviderFailure, "chat dialog: %w", err)
	}
	p.usage.Charge(in.ClientIP, float64(tokens))
	conv.AppendReply(in.MessageID, text)
	return text, nil
}

// GenerateInput is the field contract of POST /generate/postMessage.
type GenerateInput struct {
	ClientIP           string
	MessageID          string
	Message            string
	SystemInstructions string
	Model              string
	Options            map[string]interface{}
}

// PostGenerate runs the stateless single-shot chat form (§4.5 GENERATE),
// caching the result by message id.
func (p *Pipeline) PostGenerate(ctx context.Context, in GenerateInput) error {
	text, tokens, err := p.chat.SingleShot(ctx, in.SystemInstructions, in.Message)
	if err != nil {
		return Newf(ProviderFailure, "chat single-shot: %w", err)
	}
	p.usage.Charge(in.ClientIP, float64(tokens))
	p.store.PutGeneration(&GenerationEntry{
		MessageID:          in.MessageID,
		Input:              in.Message,
		SystemInstructions: in.SystemInstructions,
		Model:              in.Model,
		Options:            in.Options,
		ResponseText:       text,
		Ready:              true,
	})
	return nil
}

// TranslationInput is the field contract of POST /translation/translate.
// Translation is a stateless specialization of AIT_POST (§4.5): same
// pipeline shape, a locale-templated system prompt in place of a
// character's own instructions.
type TranslationInput struct {
	ClientIP       string
	SessionKey     string
	Message        string
	MessageID      string
	SourceLanguage string
	TargetLanguage string
	Model          string
	AudioVoice     string
	AudioModel     string
}

// SystemPromptBuilder renders the locale-templated translation prompt
// (pkg/i18n).
type SystemPromptBuilder func(sourceLanguage, targetLanguage string) string

// PostTranslation runs translation as a real specialization of AIT_POST
// (§4.5 "the rest is identical"): it gets-or-creates a session keyed by
// session_key so the request gets the same message-id dedup and the
// same strictly-increasing, sequence-prefixed filename as any other
// session, then publishes over the broadcaster's translation-specific
// control endpoint when one is available.
func (p *Pipeline) PostTranslation(ctx context.Context, in TranslationInput, prompt SystemPromptBuilder) (string, error) {
	session, err := p.store.GetOrCreateSession(in.SessionKey)
	if err != nil {
		return "", err
	}
	if err := session.AddUserMessage(UserMessage{
		Message:     in.Message,
		SpeakerName: "translation",
		MessageID:   in.MessageID,
	}); err != nil {
		return "", err
	}

	text, tokens, err := p.chat.SingleShot(ctx, prompt(in.SourceLanguage, in.TargetLanguage), in.Message)
	if err != nil {
		return "", Newf(ProviderFailure, "chat single-shot: %w", err)
	}
	p.usage.Charge(in.ClientIP, float64(tokens))

	var filename, fullPath string
	if p.tts != nil {
		seq := session.NextSequence()
		filename, fullPath = p.files.BuildFilename(in.SessionKey, "translation", fmt.Sprintf("%03d_%s", seq, in.MessageID), in.AudioVoice)
	}

	session.AppendResponse(AssistantResponse{
		Text:          text,
		CharacterName: "translation",
		ResponseID:    in.MessageID,
		Filename:      filename,
	})

	p.store.PutGeneration(&GenerationEntry{
		MessageID:    in.MessageID,
		Input:        in.Message,
		ResponseText: text,
		Ready:        true,
	})

	if p.tts != nil {
		if err := p.synthesizeAndPublish(ctx, in.SessionKey, "translation", in.MessageID, filename, fullPath, text, in.AudioVoice, in.AudioModel, "", in.ClientIP, true); err != nil {
			p.logger.Error("translation tts stage failed", "session_key", in.SessionKey, "message_id", in.MessageID, "error", err)
		}
	}
	return text, nil
}

// structuredSystemPrompt augments the caller's instructions with the
// forced single-field JSON contract (§9 "Structured LLM output") so the
// model can't narrate other characters' lines.
func structuredSystemPrompt(systemInstructions, characterName string) string {
	return fmt.Sprintf(
		"%s\nRespond ONLY as the character named %q. Reply with a single JSON object of the form {%q: \"<your line>\"} and nothing else.",
		systemInstructions, characterName, characterName,
	)
}

// extractCharacterText parses the forced single-field JSON response; if
// that fails (provider without structured-output support), it falls
// back to stripping a leading "<character>: " prefix the model may have
// echoed anyway.
func extractCharacterText(raw, characterName string) string {
	var obj map[string]string
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if v, ok := obj[characterName]; ok {
			return v
		}
		for _, v := range obj {
			return v
		}
	}
	return removeNamePrefix(raw, characterName)
}
