// Package logging wires go.uber.org/zap into the orchestrator.Logger
// seam (§9 "Ambient Stack — Logging") and owns the separate LLM prompt/
// response log sink (§7 Observability).
package logging

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// ZapLogger adapts a *zap.SugaredLogger to orchestrator.Logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

func NewZap(logFile string) (*ZapLogger, func(), error) {
	cfg := zap.NewProductionConfig()
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, func() {}, orchestrator.Newf(orchestrator.Fatal, "build zap logger: %w", err)
	}
	return &ZapLogger{s: z.Sugar()}, func() { _ = z.Sync() }, nil
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.s.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.s.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.s.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.s.Errorw(msg, args...) }

// LLMLog appends one JSON line per successful generation, independent of
// the structured zap log (§7 "a separate LLM log records the prompt/
// response pairs of every successful generation").
type LLMLog struct {
	mu   sync.Mutex
	file *os.File
}

type llmLogEntry struct {
	Time       time.Time `json:"time"`
	Provider   string    `json:"provider"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	EvalTokens int       `json:"eval_tokens"`
}

func NewLLMLog(path string) (*LLMLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, orchestrator.Newf(orchestrator.Fatal, "open llm log %q: %w", path, err)
	}
	return &LLMLog{file: f}, nil
}

func (l *LLMLog) Record(provider, prompt, response string, evalTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	enc := json.NewEncoder(l.file)
	_ = enc.Encode(llmLogEntry{
		Time: time.Now(), Provider: provider,
		Prompt: prompt, Response: response, EvalTokens: evalTokens,
	})
}

func (l *LLMLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
