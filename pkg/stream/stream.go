// Package stream implements Mode A of C6: direct HTTP MP3 streaming, one
// listener per source IP per session, with gap-free pacing and fallback
// filler audio.
package stream

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

const (
	defaultPlaybackRange = 60 * time.Second
	defaultChunkSize     = 1024
	pollInterval         = 200 * time.Millisecond
)

// FileOpener reads a session's on-disk audio file by its stored
// filename, and the fallback filler pool. Implemented by pkg/filestore
// plus a static filler directory.
type FileOpener interface {
	OpenActive(joinKey, filename string) (io.ReadCloser, error)
	OpenFiller() (io.ReadCloser, error)
}

// DurationLookup reports a file's playable duration so the generator can
// pace chunk delivery against it, computed once at generation time
// (pkg/audio) rather than re-decoded per listener.
type DurationLookup interface {
	DurationFor(joinKey, filename string) (time.Duration, bool)
}

// Server owns the per-(sourceIP, joinKey) listener registry and serves
// Mode A's gap-free MP3 stream (§4.6).
type Server struct {
	store     *orchestrator.Store
	files     FileOpener
	durations DurationLookup

	playbackRange time.Duration
	chunkSize     int

	mu        sync.Mutex
	listeners map[string]*listener // key: sourceIP + "|" + joinKey
}

type listener struct {
	id     uint64
	played map[string]bool
}

func NewServer(store *orchestrator.Store, files FileOpener, durations DurationLookup) *Server {
	return &Server{
		store:         store,
		files:         files,
		durations:     durations,
		playbackRange: defaultPlaybackRange,
		chunkSize:     defaultChunkSize,
		listeners:     make(map[string]*listener),
	}
}

func listenerKey(sourceIP, joinKey string) string { return sourceIP + "|" + joinKey }

// acquire supersedes any prior listener for this (sourceIP, joinKey)
// pair, preserving its played-file set, and returns the new listener
// along with a function reporting whether this listener is still the
// one of record.
func (s *Server) acquire(sourceIP, joinKey string) (*listener, func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := listenerKey(sourceIP, joinKey)
	prev := s.listeners[key]
	played := make(map[string]bool)
	if prev != nil {
		for f := range prev.played {
			played[f] = true
		}
	}

	var nextID uint64 = 1
	if prev != nil {
		nextID = prev.id + 1
	}
	l := &listener{id: nextID, played: played}
	s.listeners[key] = l

	current := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.listeners[key] == l
	}
	return l, current
}

// Mounts implements pkg/reaper.ListenerCounter for Mode A: it counts
// live listeners per join key from the in-process registry instead of
// polling an external broadcaster's admin stats.
func (s *Server) Mounts(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.listeners))
	for key := range s.listeners {
		joinKey := key
		if idx := strings.IndexByte(key, '|'); idx != -1 {
			joinKey = key[idx+1:]
		}
		out[joinKey]++
	}
	return out, nil
}

func (s *Server) release(sourceIP, joinKey string, l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := listenerKey(sourceIP, joinKey)
	if s.listeners[key] == l {
		delete(s.listeners, key)
	}
}

// ServeHTTP streams MP3 bytes for the join key named by r's last path
// segment until the client disconnects or is superseded by a fresh
// connection from the same source IP. Opening a stream for an unknown
// join key creates the session, mirroring startConversation (§9 Design
// Notes' Open Question resolution) rather than 404ing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request, joinKey, sourceIP string) {
	sess, err := s.store.GetOrCreateSession(joinKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	l, stillCurrent := s.acquire(sourceIP, joinKey)
	defer s.release(sourceIP, joinKey, l)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ctx := r.Context()
	nextChunkStart := time.Now()

	for {
		if !stillCurrent() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		if now.Before(nextChunkStart) {
			time.Sleep(pollInterval)
			continue
		}

		// Follow the live session for this key, so a reset's replacement
		// session is picked up by an already-open listener.
		if cur, ok := s.store.GetSession(joinKey); ok {
			sess = cur
		}
		sess.TouchListened(now)

		resp, found := s.nextUnplayed(sess, l)
		var (
			rc       io.ReadCloser
			err      error
			duration time.Duration
		)
		if found {
			rc, err = s.files.OpenActive(joinKey, resp.Filename)
			if err == nil {
				duration, _ = s.durations.DurationFor(joinKey, resp.Filename)
			}
			l.played[resp.Filename] = true
		} else {
			rc, err = s.files.OpenFiller()
		}
		if err != nil {
			nextChunkStart = now.Add(pollInterval)
			continue
		}

		if err := s.copyChunks(w, rc); err != nil {
			rc.Close()
			return
		}
		rc.Close()

		if duration <= 0 {
			duration = pollInterval
		}
		nextChunkStart = now.Add(duration)

		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) nextUnplayed(sess *orchestrator.Session, l *listener) (orchestrator.AssistantResponse, bool) {
	since := time.Now().Add(-s.playbackRange)
	for _, r := range sess.RecentReadyResponses(since) {
		if r.Filename == "" || l.played[r.Filename] {
			continue
		}
		return r, true
	}
	return orchestrator.AssistantResponse{}, false
}

func (s *Server) copyChunks(w io.Writer, src io.Reader) error {
	buf := make([]byte, s.chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// OnNewFile satisfies orchestrator.StreamNotifier. Mode A polls the
// session directly rather than waking on push, so this is a no-op; it
// exists so *Server can be handed to the pipeline interchangeably with
// pkg/broadcaster's Mode B implementation.
func (s *Server) OnNewFile(joinKey, path string) {}

// OnReset satisfies orchestrator.StreamNotifier: also a no-op, since a
// reset session's listeners naturally fall through to filler audio once
// RecentReadyResponses returns nothing for the new, empty session.
func (s *Server) OnReset(joinKey string) {}

// SourceIP extracts the request's peer address, stripping the port. The
// /ait/stream-audio route in pkg/httpapi does not use it: it keys
// listeners by the configured client-IP policy (peer address or
// forwarded-for, §4.2), falling back to the raw remote address.
func SourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FillerPool is a fixed in-memory pool of fallback audio, filled from
// disk once by LoadFillerPool and served through DiskFileOpener.
type FillerPool struct {
	rng   *rand.Rand
	mu    sync.Mutex
	files [][]byte
}

func NewFillerPool(files [][]byte, seed int64) *FillerPool {
	return &FillerPool{rng: rand.New(rand.NewSource(seed)), files: files}
}

func (p *FillerPool) Pick() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.files) == 0 {
		return nil
	}
	return p.files[p.rng.Intn(len(p.files))]
}

// LoadFillerPool reads every file in dir into memory once at startup
// (§6 "Fallback audio is a directory of MP3 files loaded at startup").
func LoadFillerPool(dir string, seed int64) (*FillerPool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, orchestrator.Newf(orchestrator.Fatal, "read filler directory %q: %w", dir, err)
	}
	var files [][]byte
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, orchestrator.Newf(orchestrator.Fatal, "read filler file %q: %w", e.Name(), err)
		}
		files = append(files, data)
	}
	if len(files) == 0 {
		return nil, orchestrator.Newf(orchestrator.Fatal, "filler directory %q contains no files", dir)
	}
	return NewFillerPool(files, seed), nil
}

// ActiveOpener opens a session's previously written active audio file.
// Implemented by pkg/filestore.Store.
type ActiveOpener interface {
	OpenActive(joinKey, filename string) (io.ReadCloser, error)
}

// DiskFileOpener is the production FileOpener: active files come from
// disk via ActiveOpener, filler comes from an in-memory pool loaded once
// at startup.
type DiskFileOpener struct {
	Active ActiveOpener
	Filler *FillerPool
}

func (d DiskFileOpener) OpenActive(joinKey, filename string) (io.ReadCloser, error) {
	return d.Active.OpenActive(joinKey, filename)
}

func (d DiskFileOpener) OpenFiller() (io.ReadCloser, error) {
	data := d.Filler.Pick()
	if data == nil {
		return nil, orchestrator.Newf(orchestrator.ProviderFailure, "no filler audio available")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
