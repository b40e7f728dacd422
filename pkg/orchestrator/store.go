package orchestrator

import (
	"sync"
)

// Archiver owns the on-disk audio layout for a session (§3 On-Disk Audio
// Layout). Implemented by pkg/filestore; kept as a narrow interface here
// so orchestrator has no filesystem dependency.
type Archiver interface {
	// Archive moves every file under active/<joinKey>/ into a fresh
	// inactive/<joinKey>_<ts>/ directory, leaving active/<joinKey>/
	// present but empty. Safe to call on a key with no prior files.
	Archive(joinKey string) error
}

// MountController starts/stops the broadcaster mount for a join key
// (§4.6 Mode B). Implemented by pkg/broadcaster; a nil MountController is
// valid when no broadcaster is configured.
type MountController interface {
	StartMount(joinKey string) error
	StopMount(joinKey string) error
}

// Store holds the three in-process registries of §3/§4.3: live dialog
// sessions, the bounded conversation ring, and the bounded generation
// cache. It is the sole owner of live session data (§3 Ownership).
type Store struct {
	archiver Archiver
	mounts   MountController
	logger   Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	finished []*Session

	conversationCap int
	conversations   *ring[string, *Conversation]

	generationCap int
	generations   *ring[string, *GenerationEntry]
}

func NewStore(archiver Archiver, mounts MountController, logger Logger, conversationCap, generationCap int) *Store {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if conversationCap <= 0 {
		conversationCap = 1000
	}
	if generationCap <= 0 {
		generationCap = 1000
	}
	return &Store{
		archiver:        archiver,
		mounts:          mounts,
		logger:          logger,
		sessions:        make(map[string]*Session),
		conversationCap: conversationCap,
		conversations:   newRing[string, *Conversation](conversationCap),
		generationCap:   generationCap,
		generations:     newRing[string, *GenerationEntry](generationCap),
	}
}

// GetSession returns the live session for joinKey, if any, without
// creating one.
func (st *Store) GetSession(joinKey string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[joinKey]
	return s, ok
}

// GetOrCreateSession returns the live session for joinKey, creating one
// if absent. Creation first clears any leftover on-disk state for the
// key (archive is idempotent on an empty/missing directory), then
// starts the broadcaster mount if one is configured (§4.3). Called by
// workers processing a queued job, and directly by the two ingress
// paths the spec defines as create-on-open: startConversation and
// opening the Mode A stream.
func (st *Store) GetOrCreateSession(joinKey string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[joinKey]; ok {
		return s, nil
	}

	if st.archiver != nil {
		if err := st.archiver.Archive(joinKey); err != nil {
			st.logger.Warn("archive of leftover session state failed", "join_key", joinKey, "error", err)
		}
	}

	s := NewSession(joinKey)
	st.sessions[joinKey] = s

	if st.mounts != nil {
		if err := st.mounts.StartMount(joinKey); err != nil {
			st.logger.Warn("broadcaster mount start failed", "join_key", joinKey, "error", err)
		}
	}

	return s, nil
}

// Reset archives a session's files, moves it to the finished list, and
// drops it from the live map — but does not stop its broadcaster mount
// (§4.3, §9 "Global mutable state"; stopping would interrupt listeners
// when a new session later reuses the key).
func (st *Store) Reset(joinKey string) error {
	st.mu.Lock()
	s, ok := st.sessions[joinKey]
	if ok {
		delete(st.sessions, joinKey)
		st.finished = append(st.finished, s)
	}
	st.mu.Unlock()

	if st.archiver != nil {
		if err := st.archiver.Archive(joinKey); err != nil {
			return Newf(ProviderFailure, "archive join key %q: %w", joinKey, err)
		}
	}
	return nil
}

// Sessions returns a snapshot of every live join key, for the Reaper.
func (st *Store) Sessions() map[string]*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]*Session, len(st.sessions))
	for k, v := range st.sessions {
		out[k] = v
	}
	return out
}

// EvictForReaper is the Reaper's sole path to removing a live session:
// it stops the mount, archives the files, and deletes the registry
// entry — the Reaper itself deletes the now-empty active directory
// separately, since it alone holds that authority (§4.7, invariant #7).
func (st *Store) EvictForReaper(joinKey string) error {
	st.mu.Lock()
	s, ok := st.sessions[joinKey]
	if ok {
		delete(st.sessions, joinKey)
		st.finished = append(st.finished, s)
	}
	st.mu.Unlock()

	if !ok {
		return nil
	}
	if st.mounts != nil {
		if err := st.mounts.StopMount(joinKey); err != nil {
			st.logger.Warn("stop mount during eviction failed", "join_key", joinKey, "error", err)
		}
	}
	if st.archiver != nil {
		if err := st.archiver.Archive(joinKey); err != nil {
			return err
		}
	}
	return nil
}

// --- Conversation registry ---

func (st *Store) PutConversation(c *Conversation) {
	st.conversations.Put(c.Key, c)
}

func (st *Store) GetConversation(key string) (*Conversation, bool) {
	return st.conversations.Get(key)
}

// --- Generation cache ---

func (st *Store) PutGeneration(g *GenerationEntry) {
	st.generations.Put(g.MessageID, g)
}

func (st *Store) GetGeneration(messageID string) (*GenerationEntry, bool) {
	return st.generations.Get(messageID)
}
