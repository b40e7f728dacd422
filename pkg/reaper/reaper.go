// Package reaper implements C7: a single periodic goroutine that
// reconciles live sessions against broadcaster listener state, evicts
// idle sessions, and cleans up orphaned mounts and on-disk directories.
package reaper

import (
	"context"
	"time"

	"github.com/lokutor-ai/aitalkmaster/pkg/orchestrator"
)

const defaultPeriod = 30 * time.Second
const defaultIdleHorizon = 30 * 24 * time.Hour

// ListenerCounter reports per-mount listener counts, keyed by join key —
// the set of keys is also read as the current mount list, for
// orphan-mount reconciliation (§4.7 step 4). Implemented by
// pkg/broadcaster.StatsClient.
type ListenerCounter interface {
	Mounts(ctx context.Context) (map[string]int, error)
}

// DirLister enumerates on-disk active directories and deletes them —
// the Reaper's exclusive authority per §4.7 and invariant #7.
type DirLister interface {
	ListActiveJoinKeys() ([]string, error)
	DeleteActiveDir(joinKey string) error
}

// MountStopper stops a broadcaster mount by join key.
type MountStopper interface {
	StopMount(joinKey string) error
}

// Reaper owns the periodic reconciliation tick of §4.7.
type Reaper struct {
	store   *orchestrator.Store
	mounts  ListenerCounter
	stopper MountStopper
	dirs    DirLister
	logger  orchestrator.Logger

	period      time.Duration
	idleHorizon time.Duration
	keepAlive   map[string]bool
	now         func() time.Time
}

func New(store *orchestrator.Store, mounts ListenerCounter, stopper MountStopper, dirs DirLister, logger orchestrator.Logger, keepAliveList []string) *Reaper {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	keepAlive := make(map[string]bool, len(keepAliveList))
	for _, k := range keepAliveList {
		keepAlive[k] = true
	}
	return &Reaper{
		store:       store,
		mounts:      mounts,
		stopper:     stopper,
		dirs:        dirs,
		logger:      logger,
		period:      defaultPeriod,
		idleHorizon: defaultIdleHorizon,
		keepAlive:   keepAlive,
		now:         time.Now,
	}
}

// Run ticks every period until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass (§4.7 steps 1-4).
func (r *Reaper) Tick(ctx context.Context) {
	listenerCounts, err := r.mounts.Mounts(ctx)
	if err != nil {
		r.logger.Warn("reaper: fetch mount listener counts failed", "error", err)
		listenerCounts = map[string]int{}
	}

	now := r.now()
	sessions := r.store.Sessions()

	var toEvict []string
	for joinKey, sess := range sessions {
		if listenerCounts[joinKey] >= 1 {
			sess.TouchListened(now)
			continue
		}
		if r.keepAlive[joinKey] {
			continue
		}
		if now.Sub(sess.LastListened()) > r.idleHorizon {
			toEvict = append(toEvict, joinKey)
		}
	}

	for _, joinKey := range toEvict {
		if err := r.store.EvictForReaper(joinKey); err != nil {
			r.logger.Warn("reaper: evict session failed", "join_key", joinKey, "error", err)
			continue
		}
		if err := r.dirs.DeleteActiveDir(joinKey); err != nil {
			r.logger.Warn("reaper: delete active dir failed", "join_key", joinKey, "error", err)
		}
		r.logger.Info("reaper: evicted idle session", "join_key", joinKey)
	}

	r.reconcileOrphanMounts(sessions, listenerCounts)
	r.reconcileOrphanDirs(sessions)
}

// reconcileOrphanMounts stops any broadcaster mount that has no matching
// live session (§4.7 step 4, first clause).
func (r *Reaper) reconcileOrphanMounts(sessions map[string]*orchestrator.Session, listenerCounts map[string]int) {
	if r.stopper == nil {
		return
	}
	for mount := range listenerCounts {
		if _, ok := sessions[mount]; ok {
			continue
		}
		if err := r.stopper.StopMount(mount); err != nil {
			r.logger.Warn("reaper: stop orphan mount failed", "join_key", mount, "error", err)
		}
	}
}

// reconcileOrphanDirs deletes any on-disk active directory that has no
// matching live session (§4.7 step 4, second clause).
func (r *Reaper) reconcileOrphanDirs(sessions map[string]*orchestrator.Session) {
	keys, err := r.dirs.ListActiveJoinKeys()
	if err != nil {
		r.logger.Warn("reaper: list active directories failed", "error", err)
		return
	}
	for _, joinKey := range keys {
		if _, ok := sessions[joinKey]; ok {
			continue
		}
		if err := r.dirs.DeleteActiveDir(joinKey); err != nil {
			r.logger.Warn("reaper: delete orphan directory failed", "join_key", joinKey, "error", err)
		}
	}
}
