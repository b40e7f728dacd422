// Package broadcaster implements Mode B of C6: hand-off to an external
// broadcast mixer over a plain-text HTTP control channel, plus the
// admin-stats XML client the Reaper uses for listener counts.
package broadcaster

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

// Controller talks to the external broadcaster's control endpoints
// (§6): start_aitalkmaster_stream, queue_aitalkmaster_audio,
// stop_aitalkmaster_stream. It implements orchestrator.MountController
// and orchestrator.StreamNotifier.
type Controller struct {
	baseURL string
	client  *http.Client
	logger  orchestrator.Logger
}

func NewController(host string, httpPort int, logger orchestrator.Logger) *Controller {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Controller{
		baseURL: fmt.Sprintf("http://%s:%d", host, httpPort),
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

func (c *Controller) post(path, body string) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return orchestrator.Newf(orchestrator.BroadcasterFailure, "build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return orchestrator.Newf(orchestrator.BroadcasterFailure, "%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orchestrator.Newf(orchestrator.BroadcasterFailure, "%s: status %d", path, resp.StatusCode)
	}
	return nil
}

// StartMount satisfies orchestrator.MountController.
func (c *Controller) StartMount(joinKey string) error {
	return c.post("/start_aitalkmaster_stream", joinKey)
}

// StopMount satisfies orchestrator.MountController.
func (c *Controller) StopMount(joinKey string) error {
	return c.post("/stop_aitalkmaster_stream", joinKey)
}

// OnNewFile satisfies orchestrator.StreamNotifier: it queues the file
// for broadcast, logging (not propagating) a failure — a non-fatal
// BroadcasterFailure per §7.
func (c *Controller) OnNewFile(joinKey, path string) {
	body := fmt.Sprintf("%s::%s", joinKey, path)
	if err := c.post("/queue_aitalkmaster_audio", body); err != nil {
		c.logger.Warn("broadcaster queue_file failed", "join_key", joinKey, "path", path, "error", err)
	}
}

// OnReset satisfies orchestrator.StreamNotifier: a no-op — reset does
// not stop the mount (§4.3), so there is nothing to tell the broadcaster.
func (c *Controller) OnReset(joinKey string) {}

// QueueTranslation mirrors OnNewFile for the translation::key[::path]
// body shape (§6).
func (c *Controller) QueueTranslation(sessionKey, path string) error {
	body := "translation::" + sessionKey
	if path != "" {
		body += "::" + path
	}
	return c.post("/queue_aitalkmaster_translation", body)
}

// --- Admin stats (read-only, for the Reaper) ---

type adminSource struct {
	Mount     string `xml:"mount,attr"`
	Listeners int    `xml:"listeners"`
}

type adminStats struct {
	XMLName xml.Name      `xml:"icestats"`
	Sources []adminSource `xml:"source"`
}

// StatsClient polls the broadcaster's admin statistics endpoint for
// per-mount listener counts (§6 "Admin-stats channel").
type StatsClient struct {
	baseURL  string
	prefix   string
	username string
	password string
	client   *http.Client
}

func NewStatsClient(host string, port int, user, password, streamEndpointPrefix string) *StatsClient {
	return &StatsClient{
		baseURL:  fmt.Sprintf("http://%s:%d", host, port),
		prefix:   streamEndpointPrefix,
		username: user,
		password: password,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Mounts returns listener counts keyed by join key, stripping the
// configured stream-endpoint prefix from each mount name so callers can
// look sessions up directly. Implements the Reaper's ListenerCounter.
func (s *StatsClient) Mounts(ctx context.Context) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/admin/stats", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.username, s.password)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, orchestrator.Newf(orchestrator.BroadcasterFailure, "admin stats request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, orchestrator.Newf(orchestrator.BroadcasterFailure, "admin stats: status %d", resp.StatusCode)
	}

	var stats adminStats
	if err := xml.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, orchestrator.Newf(orchestrator.BroadcasterFailure, "decode admin stats: %w", err)
	}

	out := make(map[string]int, len(stats.Sources))
	for _, src := range stats.Sources {
		key := src.Mount
		if s.prefix != "" && len(key) > len(s.prefix) && key[:len(s.prefix)] == s.prefix {
			key = key[len(s.prefix):]
		}
		out[key] = src.Listeners
	}
	return out, nil
}
