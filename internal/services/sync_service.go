package services

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cipulse/backend/internal/logger"
)

const (
	defaultSyncInterval  = 15 * time.Minute
	defaultRetentionKeep = 50

	syncIdle        int32 = 0
	syncReconciling int32 = 1
)

// SyncService reconciles the CI server's job set against the message store on
// a fixed interval. Jobs present upstream but unknown locally need no action,
// their messages arrive organically; jobs known locally but gone upstream are
// purged. Each cycle also applies the sliding retention window and refreshes
// the snapshot cache and precomputed views.
//
// The loop is single-flight: a tick arriving while a reconciliation is still
// running is dropped.
type SyncService struct {
	store    *MessageStore
	jenkins  jobLister
	cache    *JobCache
	views    *ViewsService
	folder   string
	interval time.Duration
	keep     int

	state atomic.Int32
	cycle atomic.Uint64
}

func NewSyncService(store *MessageStore, jenkins jobLister, cache *JobCache, views *ViewsService, folderPath string) *SyncService {
	interval := defaultSyncInterval
	if intervalStr := os.Getenv("SYNC_INTERVAL_MINUTES"); intervalStr != "" {
		if minutes, err := strconv.Atoi(intervalStr); err == nil && minutes > 0 {
			interval = time.Duration(minutes) * time.Minute
		}
	}

	keep := defaultRetentionKeep
	if keepStr := os.Getenv("RETENTION_KEEP_MESSAGES"); keepStr != "" {
		if n, err := strconv.Atoi(keepStr); err == nil && n > 0 {
			keep = n
		}
	}

	return &SyncService{
		store:    store,
		jenkins:  jenkins,
		cache:    cache,
		views:    views,
		folder:   folderPath,
		interval: interval,
		keep:     keep,
	}
}

// Run drives the reconciliation loop until the stop channel closes. One
// cycle runs immediately on start.
func (ss *SyncService) Run(stop <-chan struct{}) {
	ss.Reconcile()

	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.Reconcile()
		case <-stop:
			return
		}
	}
}

// Reconcile performs one synchronization cycle. It returns false when a
// previous cycle is still in progress and this one was dropped.
func (ss *SyncService) Reconcile() bool {
	if !ss.state.CompareAndSwap(syncIdle, syncReconciling) {
		logger.Debug("Reconciliation already in progress, dropping tick", nil)
		return false
	}
	defer ss.state.Store(syncIdle)

	cycle := ss.cycle.Add(1)
	log := logger.WithSync(cycle)

	jobs, err := ss.jenkins.ListJobs(ss.folder)
	if err != nil {
		// Upstream unavailability never cascades into deletions; the
		// stale local state survives until the next successful cycle.
		log.WithField("error", err.Error()).Warn("Job list fetch failed, skipping reconciliation")
		ss.refreshDerived()
		return true
	}

	upstream := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		upstream[job.Name] = struct{}{}
	}

	local, err := ss.store.DistinctConversationIDs()
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to list local conversations")
		return true
	}

	var stale []string
	var kept []string
	for _, conversationID := range local {
		if _, ok := upstream[conversationID]; ok {
			kept = append(kept, conversationID)
		} else {
			stale = append(stale, conversationID)
		}
	}

	// An empty upstream job set is indistinguishable from a half-broken CI
	// server; never treat it as "everything was removed".
	if len(upstream) == 0 {
		stale = nil
		kept = local
	}

	if err := ss.store.PurgeConversations(stale); err != nil {
		log.WithField("error", err.Error()).Error("Failed to purge removed jobs")
	}

	for _, conversationID := range kept {
		if err := ss.store.Trim(conversationID, ss.keep); err != nil {
			log.WithField("error", err.Error()).Warn("Retention trim failed")
		}
	}

	ss.refreshDerived()

	log.WithFields(map[string]interface{}{
		"upstream_jobs": len(upstream),
		"local_jobs":    len(local),
		"purged_jobs":   len(stale),
	}).Info("Reconciliation cycle complete")
	return true
}

func (ss *SyncService) refreshDerived() {
	if ss.cache != nil {
		ss.cache.Invalidate()
		ss.cache.Get()
	}
	if ss.views != nil {
		if err := ss.views.Refresh(); err != nil {
			logger.WithError(err, "sync_service").Warn("View refresh failed")
		}
	}
}
