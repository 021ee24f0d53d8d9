package services

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cipulse/backend/internal/logger"
	"github.com/cipulse/backend/internal/models"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 15 * time.Second

// jobLister is the slice of the CI client the cache needs.
type jobLister interface {
	ListJobs(folderPath string) ([]JenkinsJob, error)
}

type jobSlot struct {
	jobs       []models.JobSnapshot
	capturedAt time.Time
}

type inflightSlot struct {
	builds     map[string]time.Time
	capturedAt time.Time
}

// JobCache shields the CI server from request-rate load. It holds a single
// slot with the last-fetched job list plus an independent map of in-flight
// build start times; both are replaced wholesale on refresh, never mutated in
// place. Concurrent callers arriving on an expired slot share one upstream
// fetch.
type JobCache struct {
	lister jobLister
	folder string
	ttl    time.Duration

	mu       sync.RWMutex
	slot     *jobSlot
	inflight *inflightSlot

	flight singleflight.Group
}

func NewJobCache(lister jobLister, folderPath string) *JobCache {
	ttl := defaultCacheTTL
	if ttlStr := os.Getenv("JOB_CACHE_TTL_SECONDS"); ttlStr != "" {
		if seconds, err := strconv.Atoi(ttlStr); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	return &JobCache{
		lister: lister,
		folder: folderPath,
		ttl:    ttl,
	}
}

// Get returns the cached job snapshots, refreshing from the CI server when
// the slot is older than the TTL. Upstream failure degrades to the stale
// slot, or an empty list when nothing was ever fetched; it never propagates.
func (c *JobCache) Get() []models.JobSnapshot {
	if jobs, ok := c.freshJobs(); ok {
		return jobs
	}

	v, err, _ := c.flight.Do("refresh", func() (interface{}, error) {
		// A flight that finished while we queued may have filled the slot.
		if jobs, ok := c.freshJobs(); ok {
			return jobs, nil
		}
		return c.refresh()
	})
	if err != nil {
		logger.Warn("Job list refresh failed, serving stale data", map[string]interface{}{
			"error": err.Error(),
		})
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.slot != nil {
			return c.slot.jobs
		}
		return []models.JobSnapshot{}
	}
	return v.([]models.JobSnapshot)
}

// InFlightBuilds returns the map of job name to build start time for builds
// currently running upstream. Shares the refresh cycle of Get.
func (c *JobCache) InFlightBuilds() map[string]time.Time {
	c.mu.RLock()
	fresh := c.inflight != nil && time.Since(c.inflight.capturedAt) < c.ttl
	var builds map[string]time.Time
	if fresh {
		builds = c.inflight.builds
	}
	c.mu.RUnlock()

	if fresh {
		return builds
	}

	c.Get()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.inflight != nil {
		return c.inflight.builds
	}
	return map[string]time.Time{}
}

// Invalidate drops both slots so the next read refetches.
func (c *JobCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = nil
	c.inflight = nil
}

func (c *JobCache) freshJobs() ([]models.JobSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.slot != nil && time.Since(c.slot.capturedAt) < c.ttl {
		return c.slot.jobs, true
	}
	return nil, false
}

// refresh performs the upstream fetch and replaces both slots. The network
// call happens outside the cache lock so readers of the stale slot are never
// blocked behind it.
func (c *JobCache) refresh() (interface{}, error) {
	jobs, err := c.lister.ListJobs(c.folder)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snapshots := make([]models.JobSnapshot, 0, len(jobs))
	building := make(map[string]time.Time)
	for _, job := range jobs {
		inProgress := IsBuildingColor(job.Color)
		snapshots = append(snapshots, models.JobSnapshot{
			Name:       job.Name,
			Status:     colorToBuildStatus(job.Color),
			InProgress: inProgress,
			ColorClass: ColorToStatusClass(job.Color),
			Timestamp:  job.LastBuildTimestamp,
		})
		if inProgress {
			building[job.Name] = job.LastBuildTimestamp
		}
	}

	c.mu.Lock()
	c.slot = &jobSlot{jobs: snapshots, capturedAt: now}
	c.inflight = &inflightSlot{builds: building, capturedAt: now}
	c.mu.Unlock()

	return snapshots, nil
}

// colorToBuildStatus maps a Jenkins ball color to a terminal build status.
func colorToBuildStatus(color string) string {
	switch strings.ToLower(strings.TrimSuffix(strings.ToLower(color), "_anime")) {
	case "blue":
		return "SUCCESS"
	case "red":
		return "FAILURE"
	case "yellow":
		return "UNSTABLE"
	case "aborted":
		return "ABORTED"
	case "notbuilt":
		return "NOT_BUILT"
	case "disabled":
		return "DISABLED"
	default:
		return models.JobStatusUnknown
	}
}
