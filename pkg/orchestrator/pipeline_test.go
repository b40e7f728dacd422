package orchestrator

import (
	"context"
	"fmt"
	"testing"
)

type fakeChat struct {
	reply  string
	tokens int
}

func (f *fakeChat) Dialog(ctx context.Context, systemInstructions string, messages []Message) (string, int, error) {
	return f.reply, f.tokens, nil
}

func (f *fakeChat) SingleShot(ctx context.Context, systemInstructions, prompt string) (string, int, error) {
	return f.reply, f.tokens, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

type fakeTTS struct{ bytes []byte }

func (f *fakeTTS) Synthesize(ctx context.Context, text, voice, model, instructions string) ([]byte, error) {
	return f.bytes, nil
}
func (f *fakeTTS) Name() string { return "fake-tts" }

type fakeFiles struct{ written map[string][]byte }

func (f *fakeFiles) BuildFilename(joinKey, character, messageID, voice string) (string, string) {
	name := fmt.Sprintf("%s_%s_%s_%s.mp3", joinKey, character, messageID, voice)
	return name, "/active/" + joinKey + "/" + name
}

func (f *fakeFiles) WriteActive(joinKey, filename string, data []byte) error {
	if f.written == nil {
		f.written = map[string][]byte{}
	}
	f.written[filename] = data
	return nil
}

type fakeAudio struct{ duration float64 }

func (f *fakeAudio) Process(raw []byte, joinKey, character, filename string) ([]byte, float64, error) {
	return raw, f.duration, nil
}

type fakeUsage struct{ charged map[string]float64 }

func (f *fakeUsage) Charge(ip string, weight float64) {
	if f.charged == nil {
		f.charged = map[string]float64{}
	}
	f.charged[ip] += weight
}

type fakeStream struct{ notified []string }

func (f *fakeStream) OnNewFile(joinKey, path string) { f.notified = append(f.notified, joinKey+":"+path) }
func (f *fakeStream) OnReset(joinKey string)         {}

type fakeBroadcastStream struct {
	fakeStream
	translationQueued []string
}

func (f *fakeBroadcastStream) QueueTranslation(sessionKey, path string) error {
	f.translationQueued = append(f.translationQueued, sessionKey+":"+path)
	return nil
}

func identityPrompt(sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf("translate %s to %s", sourceLanguage, targetLanguage)
}

func newTestPipeline(tts TTSProvider) (*Pipeline, *Store, *fakeUsage, *fakeStream) {
	store := NewStore(nil, nil, nil, 10, 10)
	usage := &fakeUsage{}
	stream := &fakeStream{}
	chat := &fakeChat{reply: `{"Nova": "hello there"}`, tokens: 12}
	files := &fakeFiles{}
	audio := &fakeAudio{duration: 3.5}
	p := NewPipeline(store, chat, tts, files, audio, usage, stream, nil, 100)
	return p, store, usage, stream
}

func TestPostAitMessageDuplicateRejected(t *testing.T) {
	p, _, _, _ := newTestPipeline(&fakeTTS{bytes: []byte{1, 2, 3}})

	in := AitMessageInput{ClientIP: "1.1.1.1", JoinKey: "K", SpeakerName: "Alice", Message: "hi", MessageID: "m1", CharacterName: "Nova"}
	if _, err := p.PostAitMessage(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.PostAitMessage(context.Background(), in); err == nil || KindOf(err) != InvalidInput {
		t.Fatalf("expected InvalidInput on duplicate, got %v", err)
	}
}

func TestPostAitMessageChargesTokensAndAudio(t *testing.T) {
	p, store, usage, stream := newTestPipeline(&fakeTTS{bytes: []byte{1, 2, 3}})

	in := AitMessageInput{ClientIP: "2.2.2.2", JoinKey: "K2", SpeakerName: "Alice", Message: "hi", MessageID: "m1", CharacterName: "Nova"}
	text, err := p.PostAitMessage(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected structured text extracted, got %q", text)
	}
	if usage.charged["2.2.2.2"] != 12+3.5*100 {
		t.Errorf("expected charge 362, got %v", usage.charged["2.2.2.2"])
	}
	if len(stream.notified) != 1 {
		t.Fatalf("expected one stream notification, got %d", len(stream.notified))
	}

	session, _ := store.GetSession("K2")
	resp, ok := session.ResponseFor("m1")
	if !ok || resp.AudioReadyAt == nil {
		t.Fatal("expected audio ready response")
	}
}

func TestPostAitMessageNoTTSConfigured(t *testing.T) {
	p, _, _, _ := newTestPipeline(nil)
	in := AitMessageInput{ClientIP: "3.3.3.3", JoinKey: "K3", SpeakerName: "Alice", Message: "hi", MessageID: "m1", CharacterName: "Nova"}
	text, err := p.PostAitMessage(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestPostGenerateCachesByMessageID(t *testing.T) {
	p, store, _, _ := newTestPipeline(nil)
	err := p.PostGenerate(context.Background(), GenerateInput{ClientIP: "4.4.4.4", MessageID: "g1", Message: "translate this"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, ok := store.GetGeneration("g1")
	if !ok || !entry.Ready {
		t.Fatal("expected ready generation entry")
	}
}

func TestPostTranslationCreatesSessionWithDedupAndSequence(t *testing.T) {
	store := NewStore(nil, nil, nil, 10, 10)
	usage := &fakeUsage{}
	stream := &fakeStream{}
	chat := &fakeChat{reply: "bonjour", tokens: 4}
	files := &fakeFiles{}
	audio := &fakeAudio{duration: 1.0}
	p := NewPipeline(store, chat, &fakeTTS{bytes: []byte{1}}, files, audio, usage, stream, nil, 10)

	in := TranslationInput{ClientIP: "5.5.5.5", SessionKey: "T1", Message: "hello", MessageID: "tm1", SourceLanguage: "en", TargetLanguage: "fr"}
	if _, err := p.PostTranslation(context.Background(), in, identityPrompt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, ok := store.GetSession("T1")
	if !ok {
		t.Fatal("expected session created for session_key")
	}
	resp, ok := session.ResponseFor("tm1")
	if !ok || resp.AudioReadyAt == nil {
		t.Fatal("expected audio ready response recorded on the session")
	}

	if _, err := p.PostTranslation(context.Background(), in, identityPrompt); err == nil || KindOf(err) != InvalidInput {
		t.Fatalf("expected duplicate message_id to be rejected, got %v", err)
	}
}

func TestPostTranslationQueuesViaTranslationNotifier(t *testing.T) {
	store := NewStore(nil, nil, nil, 10, 10)
	usage := &fakeUsage{}
	stream := &fakeBroadcastStream{}
	chat := &fakeChat{reply: "bonjour", tokens: 4}
	files := &fakeFiles{}
	audio := &fakeAudio{duration: 1.0}
	p := NewPipeline(store, chat, &fakeTTS{bytes: []byte{1}}, files, audio, usage, stream, nil, 10)

	in := TranslationInput{ClientIP: "6.6.6.6", SessionKey: "T2", Message: "hello", MessageID: "tm2", SourceLanguage: "en", TargetLanguage: "es"}
	if _, err := p.PostTranslation(context.Background(), in, identityPrompt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stream.translationQueued) != 1 {
		t.Fatalf("expected one translation queue call, got %d", len(stream.translationQueued))
	}
	if len(stream.notified) != 0 {
		t.Fatalf("expected translation audio to skip the generic notify path, got %d", len(stream.notified))
	}
}

func TestExtractCharacterTextFallsBackToPrefixStrip(t *testing.T) {
	got := extractCharacterText("Nova: hello there", "Nova")
	if got != "hello there" {
		t.Errorf("expected prefix stripped, got %q", got)
	}
}
