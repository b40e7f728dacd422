// Package audio turns a TTS provider's raw MP3 bytes into the pipeline's
// final on-disk artifact: its playable duration (decoded, not estimated)
// and an ID3v2-tagged copy (§4.5 step 7). It implements
// orchestrator.AudioPostProcessor.
package audio

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/bogem/id3v2/v2"
	"github.com/hajimehoshi/go-mp3"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// targetBitrate is the uniform on-disk bitrate (§4.5 step 7, §6
// "On-disk formats: MP3 at 192 kbps").
const targetBitrate = "192k"

// Processor re-encodes to a uniform bitrate, decodes duration, and
// writes ID3v2 tags. It remembers every decoded duration keyed by (join
// key, filename), satisfying pkg/stream.DurationLookup so Mode A can
// pace playback without re-decoding per listener.
type Processor struct {
	Genre string

	logger    orchestrator.Logger
	mu        sync.Mutex
	durations map[string]time.Duration
}

func New(logger orchestrator.Logger) *Processor {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Processor{Genre: "Speech", logger: logger, durations: make(map[string]time.Duration)}
}

func durationKey(joinKey, filename string) string { return joinKey + "|" + filename }

// Process re-encodes raw at targetBitrate, decodes the result's
// duration, and returns a copy tagged with {title=joinKey,
// artist="AIT "+character, album=joinKey, genre}. The decoded duration
// is recorded under filename for later DurationFor lookups.
func (p *Processor) Process(raw []byte, joinKey, character, filename string) ([]byte, float64, error) {
	encoded := p.reencode(raw, joinKey, filename)

	// A provider is expected to return a decodable bitstream; tolerate a
	// failure here rather than blocking the write, since pacing degrades
	// gracefully to untimed delivery but a missing file does not.
	duration, _ := decodeDuration(encoded)

	tagged, err := p.tag(encoded, joinKey, character)
	if err != nil {
		return nil, 0, orchestrator.Newf(orchestrator.ProviderFailure, "write id3 tags: %w", err)
	}

	p.mu.Lock()
	p.durations[durationKey(joinKey, filename)] = time.Duration(duration * float64(time.Second))
	p.mu.Unlock()

	return tagged, duration, nil
}

// reencode shells out to ffmpeg to normalize raw to targetBitrate (the
// original's `pydub` `audio.export(..., bitrate="192k")` step, done here
// via the ecosystem's standard command-line encoder since no pack repo
// or pure-Go library performs MP3 encoding). If ffmpeg is missing or the
// input does not decode, the original bytes pass through unchanged —
// playback still works at whatever bitrate the provider returned, only
// the uniform-bitrate guarantee is lost for that one file.
func (p *Processor) reencode(raw []byte, joinKey, filename string) []byte {
	inFile, err := os.CreateTemp("", "aitalkmaster-in-*.mp3")
	if err != nil {
		p.logger.Warn("reencode temp input failed", "join_key", joinKey, "filename", filename, "error", err)
		return raw
	}
	inPath := inFile.Name()
	defer os.Remove(inPath)

	if _, err := inFile.Write(raw); err != nil {
		inFile.Close()
		p.logger.Warn("reencode temp input write failed", "join_key", joinKey, "filename", filename, "error", err)
		return raw
	}
	if err := inFile.Close(); err != nil {
		p.logger.Warn("reencode temp input close failed", "join_key", joinKey, "filename", filename, "error", err)
		return raw
	}

	outPath := inPath + ".out.mp3"
	defer os.Remove(outPath)

	cmd := exec.Command("ffmpeg", "-y", "-loglevel", "error", "-i", inPath, "-b:a", targetBitrate, outPath)
	if err := cmd.Run(); err != nil {
		p.logger.Warn("ffmpeg reencode failed, keeping provider bitrate", "join_key", joinKey, "filename", filename, "error", err)
		return raw
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		p.logger.Warn("reencode output read failed", "join_key", joinKey, "filename", filename, "error", err)
		return raw
	}
	return out
}

// DurationFor implements pkg/stream.DurationLookup.
func (p *Processor) DurationFor(joinKey, filename string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.durations[durationKey(joinKey, filename)]
	return d, ok
}

func decodeDuration(raw []byte) (float64, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	const bytesPerFrame = 4 // 16-bit stereo PCM
	length := dec.Length()
	if length <= 0 || dec.SampleRate() <= 0 {
		return 0, nil
	}
	samples := length / bytesPerFrame
	return float64(samples) / float64(dec.SampleRate()), nil
}

// tag writes ID3v2 frames via a temp file, since id3v2/v2 operates on a
// path rather than an in-memory buffer.
func (p *Processor) tag(raw []byte, joinKey, character string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "aitalkmaster-*.mp3")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	tag, err := id3v2.Open(tmpPath, id3v2.Options{Parse: false})
	if err != nil {
		return nil, err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(joinKey)
	tag.SetArtist(fmt.Sprintf("AIT %s", character))
	tag.SetAlbum(joinKey)
	tag.SetGenre(p.Genre)

	if err := tag.Save(); err != nil {
		return nil, err
	}

	return os.ReadFile(filepath.Clean(tmpPath))
}
