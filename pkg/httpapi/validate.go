package httpapi

import (
	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// validateChatModel is the outermost validator of §4.8: an empty model
// substitutes the configured default, then the result is checked against
// the allow-list (an empty allow-list means no restriction beyond the
// provider's own catalog, already checked at startup).
func (s *Server) validateChatModel(requested string) (string, error) {
	model := requested
	if model == "" {
		model = s.chatCfg.DefaultModel
	}
	if len(s.chatCfg.AllowedModels) == 0 {
		return model, nil
	}
	for _, m := range s.chatCfg.AllowedModels {
		if m == model {
			return model, nil
		}
	}
	return "", orchestrator.Newf(orchestrator.InvalidInput, "model %q is not in the configured allow-list", model)
}

// validateAudio is the second validator: audio model and voice, each
// defaulted then allow-listed, same shape as validateChatModel. Returns
// an InvalidInput error if no audio client is configured at all.
func (s *Server) validateAudio(requestedModel, requestedVoice string) (model, voice string, err error) {
	if s.audioCfg == nil {
		return "", "", orchestrator.Newf(orchestrator.InvalidInput, "no audio client is configured")
	}

	model = requestedModel
	if model == "" {
		model = s.audioCfg.DefaultModel
	}
	if len(s.audioCfg.AllowedModels) > 0 && !contains(s.audioCfg.AllowedModels, model) {
		return "", "", orchestrator.Newf(orchestrator.InvalidInput, "audio model %q is not in the configured allow-list", model)
	}

	voice = requestedVoice
	if voice == "" {
		voice = s.audioCfg.DefaultVoice
	}
	if len(s.audioCfg.AllowedVoices) > 0 && !contains(s.audioCfg.AllowedVoices, voice) {
		return "", "", orchestrator.Newf(orchestrator.InvalidInput, "audio voice %q is not in the configured allow-list", voice)
	}

	return model, voice, nil
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
