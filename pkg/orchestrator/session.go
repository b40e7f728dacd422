package orchestrator

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// UserMessage is one turn submitted by a named speaker. Immutable once
// stored (§3).
type UserMessage struct {
	Message     string
	SpeakerName string
	MessageID   string
	Timestamp   time.Time
}

// AssistantResponse is one AI-character reply, optionally backed by an
// audio file. Filename is empty iff the session has no TTS provider
// configured; AudioReadyAt transitions from nil to set exactly once.
type AssistantResponse struct {
	Text          string
	CharacterName string
	ResponseID    string // == the UserMessage.MessageID that produced it
	Filename      string
	Timestamp     time.Time
	AudioReadyAt  *time.Time
}

// Session is a multi-speaker dialog session keyed by a caller-supplied
// join key (§3). All mutation happens under mu; provider calls in the
// generation pipeline snapshot the dialog first and mutate afterwards,
// per §9's per-session serialization design note.
type Session struct {
	mu sync.Mutex

	JoinKey        string
	CreatedAt      time.Time
	LastListenedAt time.Time

	userMessages       []UserMessage
	assistantResponses []AssistantResponse
	sequence           uint64
}

func NewSession(joinKey string) *Session {
	now := time.Now()
	return &Session{
		JoinKey:        joinKey,
		CreatedAt:      now,
		LastListenedAt: now,
	}
}

// HasMessageID reports whether message id m has already been recorded
// for this session — the at-most-once key (invariant #1).
func (s *Session) HasMessageID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMessageIDLocked(id)
}

func (s *Session) hasMessageIDLocked(id string) bool {
	for _, m := range s.userMessages {
		if m.MessageID == id {
			return true
		}
	}
	return false
}

// AddUserMessage appends um, rejecting a duplicate message id.
func (s *Session) AddUserMessage(um UserMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasMessageIDLocked(um.MessageID) {
		return Newf(InvalidInput, "duplicate message_id %q", um.MessageID)
	}
	if um.Timestamp.IsZero() {
		um.Timestamp = time.Now()
	}
	s.userMessages = append(s.userMessages, um)
	return nil
}

// AppendResponse stores the placeholder or final AssistantResponse.
func (s *Session) AppendResponse(resp AssistantResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	s.assistantResponses = append(s.assistantResponses, resp)
}

// NextSequence increments and returns the session's audio sequence
// counter (invariant #2). Called after a successful chat call so a
// failed job never burns a number (§5b).
func (s *Session) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

// SetAudioReady marks the response with the given responseID as ready,
// returning false if no such (not-yet-ready) response exists.
func (s *Session) SetAudioReady(responseID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assistantResponses {
		r := &s.assistantResponses[i]
		if r.ResponseID == responseID && r.AudioReadyAt == nil {
			t := at
			r.AudioReadyAt = &t
			return true
		}
	}
	return false
}

// ResponseFor returns the first response with the given responseID, in
// storage order — used by getMessageResponse polling.
func (s *Session) ResponseFor(responseID string) (AssistantResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.assistantResponses {
		if r.ResponseID == responseID {
			return r, true
		}
	}
	return AssistantResponse{}, false
}

// dialogEntry is the merge-sort unit shared by user messages and
// assistant responses before timestamp ordering collapses them into
// role-tagged Messages (§9 "Deferred ordering via timestamps").
type dialogEntry struct {
	timestamp time.Time
	role      string
	content   string
}

// Dialog returns the merge-by-timestamp of every user message and
// assistant response so far, formatted as `"<name>: <text>"` per role —
// the exact shape the chat provider receives (invariant #4).
func (s *Session) Dialog() []Message {
	s.mu.Lock()
	entries := make([]dialogEntry, 0, len(s.userMessages)+len(s.assistantResponses))
	for _, m := range s.userMessages {
		entries = append(entries, dialogEntry{m.Timestamp, "user", fmt.Sprintf("%s: %s", m.SpeakerName, m.Message)})
	}
	for _, r := range s.assistantResponses {
		entries = append(entries, dialogEntry{r.Timestamp, "assistant", fmt.Sprintf("%s: %s", r.CharacterName, r.Text)})
	}
	s.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].timestamp.Before(entries[j].timestamp) })

	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = Message{Role: e.role, Content: e.content}
	}
	return out
}

// ResponseCount returns the number of stored assistant responses —
// used by tests asserting invariant #3.
func (s *Session) ResponseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assistantResponses)
}

func (s *Session) TouchListened(t time.Time) {
	s.mu.Lock()
	s.LastListenedAt = t
	s.mu.Unlock()
}

// LastListened returns the last time a listener was observed on this
// session's mount, for the Reaper's idle-horizon check.
func (s *Session) LastListened() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastListenedAt
}

// RecentReadyResponses returns every response whose AudioReadyAt falls
// within [since, now], oldest first — the candidate set Mode A streaming
// picks unplayed filenames from (§4.6 "playback_range").
func (s *Session) RecentReadyResponses(since time.Time) []AssistantResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AssistantResponse, 0)
	for _, r := range s.assistantResponses {
		if r.AudioReadyAt != nil && !r.AudioReadyAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AudioReadyAt.Before(*out[j].AudioReadyAt) })
	return out
}

// removeNamePrefix strips a leading "<name>: " or "<name>:" the model
// may have echoed despite the forced single-field response (§9
// "Structured LLM output" fallback).
func removeNamePrefix(message, name string) string {
	withColon := name + ": "
	withoutSpace := name + ":"
	lm, lw := len(message), len(withColon)
	if lw <= len(message) && equalFold(message[:lw], withColon) {
		return message[lw:]
	}
	ls := len(withoutSpace)
	if ls <= lm && equalFold(message[:ls], withoutSpace) {
		return message[ls:]
	}
	return message
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
