package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu    sync.Mutex
	jobs  []JenkinsJob
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeLister) ListJobs(folderPath string) ([]JenkinsJob, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	jobs := make([]JenkinsJob, len(f.jobs))
	copy(jobs, f.jobs)
	return jobs, nil
}

func (f *fakeLister) set(jobs []JenkinsJob, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = jobs
	f.err = err
}

func TestJobCacheHitWithinTTL(t *testing.T) {
	lister := &fakeLister{jobs: []JenkinsJob{{Name: "jobA", Color: "blue"}}}
	cache := NewJobCache(lister, "")

	first := cache.Get()
	second := cache.Get()

	require.Equal(t, int64(1), lister.calls.Load())
	require.Len(t, first, 1)
	require.Equal(t, "jobA", first[0].Name)
	require.Equal(t, "SUCCESS", first[0].Status)
	require.Equal(t, "success", first[0].ColorClass)
	require.False(t, first[0].InProgress)
	require.Equal(t, first, second)
}

func TestJobCacheExpiry(t *testing.T) {
	lister := &fakeLister{jobs: []JenkinsJob{{Name: "jobA", Color: "blue"}}}
	cache := NewJobCache(lister, "")
	cache.ttl = 30 * time.Millisecond

	cache.Get()
	require.Equal(t, int64(1), lister.calls.Load())

	// Within the TTL: still one upstream call.
	cache.Get()
	require.Equal(t, int64(1), lister.calls.Load())

	time.Sleep(40 * time.Millisecond)
	lister.set([]JenkinsJob{{Name: "jobB", Color: "red"}}, nil)

	jobs := cache.Get()
	require.Equal(t, int64(2), lister.calls.Load())
	require.Len(t, jobs, 1)
	require.Equal(t, "jobB", jobs[0].Name)
	require.Equal(t, "critical", jobs[0].ColorClass)
}

func TestJobCacheSingleFlight(t *testing.T) {
	lister := &fakeLister{
		jobs:  []JenkinsJob{{Name: "jobA", Color: "blue"}},
		delay: 20 * time.Millisecond,
	}
	cache := NewJobCache(lister, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs := cache.Get()
			require.Len(t, jobs, 1)
		}()
	}
	wg.Wait()

	// 100 concurrent callers on a cold slot share one upstream fetch.
	require.Equal(t, int64(1), lister.calls.Load())
}

func TestJobCacheFailureFallsBackToStale(t *testing.T) {
	lister := &fakeLister{jobs: []JenkinsJob{{Name: "jobA", Color: "blue"}}}
	cache := NewJobCache(lister, "")
	cache.ttl = 10 * time.Millisecond

	fresh := cache.Get()
	require.Len(t, fresh, 1)

	time.Sleep(20 * time.Millisecond)
	lister.set(nil, errors.New("connection refused"))

	stale := cache.Get()
	require.Equal(t, fresh, stale)
}

func TestJobCacheFailureWithoutSlotReturnsEmpty(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	cache := NewJobCache(lister, "")

	jobs := cache.Get()
	require.NotNil(t, jobs)
	require.Empty(t, jobs)
}

func TestJobCacheInFlightBuilds(t *testing.T) {
	started := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	lister := &fakeLister{jobs: []JenkinsJob{
		{Name: "building-job", Color: "blue_anime", LastBuildTimestamp: started},
		{Name: "idle-job", Color: "blue", LastBuildTimestamp: started.Add(-time.Hour)},
	}}
	cache := NewJobCache(lister, "")

	builds := cache.InFlightBuilds()
	require.Len(t, builds, 1)
	require.Equal(t, started, builds["building-job"])

	jobs := cache.Get()
	require.Equal(t, int64(1), lister.calls.Load())
	require.Len(t, jobs, 2)
	require.True(t, jobs[0].InProgress)
	require.False(t, jobs[1].InProgress)
}

func TestJobCacheInvalidate(t *testing.T) {
	lister := &fakeLister{jobs: []JenkinsJob{{Name: "jobA", Color: "blue"}}}
	cache := NewJobCache(lister, "")

	cache.Get()
	cache.Invalidate()
	cache.Get()

	require.Equal(t, int64(2), lister.calls.Load())
}
