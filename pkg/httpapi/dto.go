package httpapi

// Request/response DTOs matching §6's field contracts. Field names use
// the wire's snake_case via json tags; Go-side names stay idiomatic.

type postAitMessageRequest struct {
	JoinKey            string                 `json:"join_key"`
	SpeakerName        string                 `json:"speaker_name"`
	Message            string                 `json:"message"`
	MessageID          string                 `json:"message_id"`
	CharacterName      string                 `json:"character_name"`
	Model              string                 `json:"model"`
	SystemInstructions string                 `json:"system_instructions"`
	Options            map[string]interface{} `json:"options"`
	AudioVoice         string                 `json:"audio_voice"`
	AudioModel         string                 `json:"audio_model"`
	AudioInstructions  string                 `json:"audio_instructions"`
}

type messageResponse struct {
	MessageID string `json:"message_id"`
	Response  string `json:"response"`
}

type processingResponse struct {
	Status string `json:"status"`
}

type joinKeyRequest struct {
	JoinKey string `json:"join_key"`
}

type startSessionResponse struct {
	JoinKey   string `json:"join_key"`
	StreamURL string `json:"stream_url,omitempty"`
}

type generateAudioRequest struct {
	JoinKey           string `json:"join_key"`
	SpeakerName       string `json:"speaker_name"`
	Message           string `json:"message"`
	AudioVoice        string `json:"audio_voice"`
	AudioModel        string `json:"audio_model"`
	AudioInstructions string `json:"audio_instructions"`
}

type generateAudioResponse struct {
	MessageID string `json:"message_id"`
	Filename  string `json:"filename"`
}

type conversationStartRequest struct {
	Model              string                 `json:"model"`
	SystemInstructions string                 `json:"system_instructions"`
	Options            map[string]interface{} `json:"options"`
}

type conversationStartResponse struct {
	ConversationKey string `json:"conversation_key"`
}

type conversationPostMessageRequest struct {
	ConversationKey string `json:"conversation_key"`
	Message         string `json:"message"`
	MessageID       string `json:"message_id"`
}

type conversationMessageResponse struct {
	Response        string `json:"response"`
	MessageID       string `json:"message_id"`
	ConversationKey string `json:"conversation_key"`
}

type generatePostMessageRequest struct {
	MessageID          string                 `json:"message_id"`
	Message            string                 `json:"message"`
	SystemInstructions string                 `json:"system_instructions"`
	Model              string                 `json:"model"`
	Options            map[string]interface{} `json:"options"`
}

type translationRequest struct {
	SessionKey     string `json:"session_key"`
	Message        string `json:"message"`
	MessageID      string `json:"message_id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Model          string `json:"model"`
	AudioVoice     string `json:"audio_voice"`
	AudioModel     string `json:"audio_model"`
}

type catalogResponse struct {
	Default string   `json:"default"`
	Allowed []string `json:"allowed"`
}

type statusResponse struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_seconds"`
}
