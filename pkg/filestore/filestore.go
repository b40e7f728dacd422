// Package filestore owns the on-disk audio layout of §3: an active
// directory per live join key, and a timestamped inactive archive per
// reset/eviction. It implements orchestrator.Archiver and
// orchestrator.FileWriter.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// Store places audio files under root/active/<join_key>/... while a
// session lives, and archives them to root/inactive/<join_key>_<ts>/...
// on reset or eviction.
type Store struct {
	root string
	now  func() time.Time
}

func New(root string) *Store {
	return &Store{root: root, now: time.Now}
}

func (s *Store) activeDir(joinKey string) string {
	return filepath.Join(s.root, "active", joinKey)
}

// BuildFilename allocates the on-disk name of §3's layout:
// <NNN_messageID>_<character>_<voice>_<uuid>.mp3, where the sequence
// prefix is already folded into messageID by the caller.
func (s *Store) BuildFilename(joinKey, character, messageID, voice string) (filename, fullPath string) {
	name := fmt.Sprintf("%s_%s_%s_%s.mp3", messageID, character, voice, uuid.NewString())
	return name, filepath.Join(s.activeDir(joinKey), name)
}

// WriteActive writes data under the join key's active directory,
// creating it if absent.
func (s *Store) WriteActive(joinKey, filename string, data []byte) error {
	dir := s.activeDir(joinKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return orchestrator.Newf(orchestrator.ProviderFailure, "create active dir %q: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return orchestrator.Newf(orchestrator.ProviderFailure, "write %q: %w", filename, err)
	}
	return nil
}

// Archive moves every file under active/<joinKey>/ into a fresh
// inactive/<joinKey>_<ts>/ directory, leaving active/<joinKey>/ present
// but empty (§3, invariant #5). Safe to call on a key with no prior
// files.
func (s *Store) Archive(joinKey string) error {
	activeDir := s.activeDir(joinKey)
	entries, err := os.ReadDir(activeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(activeDir, 0o755)
		}
		return orchestrator.Newf(orchestrator.ProviderFailure, "read active dir %q: %w", activeDir, err)
	}
	if len(entries) == 0 {
		return nil
	}

	inactiveDir := filepath.Join(s.root, "inactive", fmt.Sprintf("%s_%s", joinKey, s.now().Format("20060102-150405")))
	if err := os.MkdirAll(inactiveDir, 0o755); err != nil {
		return orchestrator.Newf(orchestrator.ProviderFailure, "create inactive dir %q: %w", inactiveDir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(activeDir, e.Name())
		dst := filepath.Join(inactiveDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return orchestrator.Newf(orchestrator.ProviderFailure, "archive %q: %w", src, err)
		}
	}
	return nil
}

// ListActiveJoinKeys returns every join key with an active directory on
// disk, for the Reaper's orphan-directory reconciliation (§4.7 step 4).
func (s *Store) ListActiveJoinKeys() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "active"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

// OpenActive opens a previously written active file for reading, for
// Mode A direct streaming (pkg/stream.FileOpener).
func (s *Store) OpenActive(joinKey, filename string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.activeDir(joinKey), filename))
	if err != nil {
		return nil, orchestrator.Newf(orchestrator.ProviderFailure, "open active file %q: %w", filename, err)
	}
	return f, nil
}

// DeleteActiveDir removes a join key's active directory entirely. Only
// the Reaper may call this (§4.7, invariant #7).
func (s *Store) DeleteActiveDir(joinKey string) error {
	return os.RemoveAll(s.activeDir(joinKey))
}
