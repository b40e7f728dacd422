// Package ratelimit implements the per-IP sliding 24h weighted usage
// quota (C2).
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

type sample struct {
	at     time.Time
	weight float64
}

type ipRecord struct {
	mu      sync.Mutex
	samples []sample
}

// Limiter accounts weighted per-IP usage over a sliding 24h window and
// satisfies orchestrator.UsageCharger.
type Limiter struct {
	window     time.Duration
	dailyLimit float64

	mu      sync.Mutex
	records map[string]*ipRecord

	now func() time.Time
}

func New(dailyLimit float64) *Limiter {
	return &Limiter{
		window:     24 * time.Hour,
		dailyLimit: dailyLimit,
		records:    make(map[string]*ipRecord),
		now:        time.Now,
	}
}

func (l *Limiter) record(ip string) *ipRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[ip]
	if !ok {
		r = &ipRecord{}
		l.records[ip] = r
	}
	return r
}

// Charge appends a weighted usage sample for ip (§4.2 increment).
func (l *Limiter) Charge(ip string, weight float64) {
	r := l.record(ip)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample{at: l.now(), weight: weight})
}

// Exceeded reports whether ip's trailing-24h weighted sum is already over
// the daily limit — checked at ingress, before a new job is enqueued.
func (l *Limiter) Exceeded(ip string) bool {
	if l.dailyLimit <= 0 {
		return false
	}
	r := l.record(ip)
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	kept := r.samples[:0]
	var total float64
	for _, s := range r.samples {
		if s.at.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
		total += s.weight
	}
	r.samples = kept
	return total > l.dailyLimit
}

// IPPolicy is the config toggle of §4.2: either the transport peer
// address or the first value of a forwarded-for header.
type IPPolicy struct {
	UseForwardedFor bool
}

// ClientIP extracts the caller's IP per the configured policy. A missing
// header with forwarded-for enabled is itself an InvalidInput error
// surfaced to the caller, per §4.2.
func (p IPPolicy) ClientIP(r *http.Request) (string, error) {
	if !p.UseForwardedFor {
		host := r.RemoteAddr
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
		return host, nil
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return "", orchestrator.Newf(orchestrator.InvalidInput, "rate_limit_xForwardedFor is enabled but X-Forwarded-For is missing")
	}
	return strings.TrimSpace(strings.Split(xff, ",")[0]), nil
}
