package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// conversationTurn is a stored user turn in a Conversation (C3,
// single-speaker, history-preserving, no audio).
type conversationTurn struct {
	MessageID string
	Text      string
	Timestamp time.Time
}

type conversationReply struct {
	ResponseID string
	Text       string
	Timestamp  time.Time
}

// Conversation is a single-speaker dialog with history but no audio,
// keyed by a server-generated UUID (§3). Unlike Session, it has no
// per-speaker/character identity and no on-disk artifacts.
type Conversation struct {
	mu sync.Mutex

	Key                string
	Model              string
	SystemInstructions string
	Options            map[string]interface{}

	turns   []conversationTurn
	replies []conversationReply
}

// NewConversation creates a Conversation with a fresh UUID key.
func NewConversation(model, systemInstructions string, options map[string]interface{}) *Conversation {
	return &Conversation{
		Key:                uuid.NewString(),
		Model:              model,
		SystemInstructions: systemInstructions,
		Options:            options,
	}
}

func (c *Conversation) HasMessageID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMessageIDLocked(id)
}

func (c *Conversation) hasMessageIDLocked(id string) bool {
	for _, t := range c.turns {
		if t.MessageID == id {
			return true
		}
	}
	return false
}

func (c *Conversation) AddMessage(messageID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasMessageIDLocked(messageID) {
		return Newf(InvalidInput, "duplicate message_id %q", messageID)
	}
	c.turns = append(c.turns, conversationTurn{MessageID: messageID, Text: text, Timestamp: time.Now()})
	return nil
}

func (c *Conversation) AppendReply(responseID, text string) {
	c.mu.Lock()
	c.replies = append(c.replies, conversationReply{ResponseID: responseID, Text: text, Timestamp: time.Now()})
	c.mu.Unlock()
}

func (c *Conversation) ReplyFor(responseID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.replies {
		if r.ResponseID == responseID {
			return r.Text, true
		}
	}
	return "", false
}

// Dialog returns the merge-by-timestamp of every turn and reply, same
// shape as Session.Dialog but without a speaker/character name prefix
// since a Conversation has exactly one speaker and one assistant.
func (c *Conversation) Dialog() []Message {
	c.mu.Lock()
	entries := make([]dialogEntry, 0, len(c.turns)+len(c.replies))
	for _, t := range c.turns {
		entries = append(entries, dialogEntry{t.Timestamp, "user", t.Text})
	}
	for _, r := range c.replies {
		entries = append(entries, dialogEntry{r.Timestamp, "assistant", r.Text})
	}
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].timestamp.Before(entries[j].timestamp) })

	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = Message{Role: e.role, Content: e.content}
	}
	return out
}
