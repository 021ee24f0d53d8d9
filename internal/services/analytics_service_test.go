package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/cipulse/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name       string
		severities []string
		expected   string
	}{
		{"no anomalies", nil, models.HealthHealthy},
		{"single critical", []string{"CRITICAL"}, models.HealthCritical},
		{"single high", []string{"HIGH"}, models.HealthCritical},
		{"critical among low", []string{"LOW", "CRITICAL", "LOW"}, models.HealthCritical},
		{"single medium", []string{"MEDIUM"}, models.HealthWarning},
		{"medium and low", []string{"MEDIUM", "LOW"}, models.HealthWarning},
		{"five low", []string{"LOW", "LOW", "LOW", "LOW", "LOW"}, models.HealthHealthy},
		{"six low flips unhealthy", []string{"LOW", "LOW", "LOW", "LOW", "LOW", "LOW"}, models.HealthUnhealthy},
		{"warnings count as low", []string{"WARNING", "WARNING", "WARNING"}, models.HealthHealthy},
		{"mixed low and warning over threshold", []string{"LOW", "WARNING", "LOW", "WARNING", "LOW", "WARNING"}, models.HealthUnhealthy},
		{"lowercase input", []string{"critical"}, models.HealthCritical},
		{"unknown severities ignored", []string{"INFO", "INFO"}, models.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyHealth(anomaliesWithSeverities(tt.severities...))
			if got != tt.expected {
				t.Errorf("ClassifyHealth(%v) = %q, want %q", tt.severities, got, tt.expected)
			}
		})
	}
}

func TestClassifyHealthCriticalDominates(t *testing.T) {
	// Adding one CRITICAL anomaly to any input forces CRITICAL.
	bases := [][]string{
		nil,
		{"LOW"},
		{"MEDIUM", "MEDIUM"},
		{"LOW", "LOW", "LOW", "LOW", "LOW", "LOW"},
	}
	for _, base := range bases {
		withCritical := append(append([]string{}, base...), "CRITICAL")
		if got := ClassifyHealth(anomaliesWithSeverities(withCritical...)); got != models.HealthCritical {
			t.Errorf("ClassifyHealth(%v) = %q, want CRITICAL", withCritical, got)
		}
	}
}

func TestPerJobLimit(t *testing.T) {
	tests := []struct {
		buildCount int
		jobCount   int
		expected   int
	}{
		{20, 5, 4},
		{10, 15, 1},
		{10, 10, 1},
		{7, 3, 2},
		{5, 1, 5},
		{10, 0, 10},
	}

	for _, tt := range tests {
		if got := perJobLimit(tt.buildCount, tt.jobCount); got != tt.expected {
			t.Errorf("perJobLimit(%d, %d) = %d, want %d", tt.buildCount, tt.jobCount, got, tt.expected)
		}
	}
}

func TestClassifyJobStatus(t *testing.T) {
	tests := []struct {
		status   string
		active   bool
		expected string
	}{
		{"SUCCESS", true, models.JobStatusRunning},
		{"SUCCESS", false, models.JobStatusCompleted},
		{"FAILURE", false, models.JobStatusFailed},
		{"ABORTED", false, models.JobStatusFailed},
		{"UNSTABLE", false, models.JobStatusFailed},
		{"PAUSED", false, "PAUSED"},
	}

	for _, tt := range tests {
		if got := classifyJobStatus(tt.status, tt.active); got != tt.expected {
			t.Errorf("classifyJobStatus(%q, %v) = %q, want %q", tt.status, tt.active, got, tt.expected)
		}
	}
}

func TestPaginatedAnomalies(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	severities := []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "WARNING", "LOW", "MEDIUM"}
	appendAnalysis(t, store, "jobA", 5, ts, models.AnalysisContent{
		Anomalies: anomaliesWithSeverities(severities...),
	})

	// Pages concatenated in order reproduce the original array and their
	// sizes sum to the total.
	var reassembled []models.Anomaly
	total := 0
	for offset := 0; ; offset += 3 {
		page, err := analytics.PaginatedAnomalies("jobA", 5, 3, offset)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Anomalies), 3)
		require.Equal(t, len(severities), page.TotalCount)
		if len(page.Anomalies) == 0 {
			break
		}
		total += len(page.Anomalies)
		reassembled = append(reassembled, page.Anomalies...)
	}
	require.Equal(t, len(severities), total)
	for i, anomaly := range reassembled {
		require.Equal(t, severities[i], anomaly.Severity)
	}

	// A page past the end is empty but still reports the real total.
	page, err := analytics.PaginatedAnomalies("jobA", 5, 10, 100)
	require.NoError(t, err)
	require.Empty(t, page.Anomalies)
	require.Equal(t, len(severities), page.TotalCount)

	// Unknown build is an empty result, not an error.
	page, err = analytics.PaginatedAnomalies("jobA", 99, 10, 0)
	require.NoError(t, err)
	require.Empty(t, page.Anomalies)
	require.Zero(t, page.TotalCount)

	// Invalid parameters are rejected.
	_, err = analytics.PaginatedAnomalies("", 5, 10, 0)
	require.Error(t, err)
	_, err = analytics.PaginatedAnomalies("jobA", 5, 0, 0)
	require.Error(t, err)
	_, err = analytics.PaginatedAnomalies("jobA", 5, 10, -1)
	require.Error(t, err)
}

func TestPaginatedAnomaliesSpansMultipleAnalyses(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendAnalysis(t, store, "jobA", 1, ts, models.AnalysisContent{
		Anomalies: anomaliesWithSeverities("CRITICAL", "LOW"),
	})
	appendAnalysis(t, store, "jobA", 1, ts.Add(time.Minute), models.AnalysisContent{
		Anomalies: anomaliesWithSeverities("MEDIUM"),
	})

	page, err := analytics.PaginatedAnomalies("jobA", 1, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalCount)
	require.Equal(t, "CRITICAL", page.Anomalies[0].Severity)
	require.Equal(t, "LOW", page.Anomalies[1].Severity)
	require.Equal(t, "MEDIUM", page.Anomalies[2].Severity)
}

func TestRecentBuildsDistribution(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 5 jobs, 10 builds each.
	for j := 0; j < 5; j++ {
		job := fmt.Sprintf("job%d", j)
		for build := 1; build <= 10; build++ {
			appendAnalysis(t, store, job, build,
				base.Add(time.Duration(j*10+build)*time.Minute),
				models.AnalysisContent{Anomalies: anomaliesWithSeverities("LOW")})
		}
	}

	// buildCount=20 over 5 jobs: each job contributes at most 4.
	refs, err := analytics.recentBuilds(JobFilterAll, 20)
	require.NoError(t, err)
	perJob := make(map[string]int)
	for _, ref := range refs {
		perJob[ref.ConversationID]++
	}
	require.Len(t, perJob, 5)
	for job, n := range perJob {
		require.LessOrEqual(t, n, 4, "job %s over its share", job)
	}

	// A single-job filter returns its most recent builds, newest first.
	refs, err = analytics.recentBuilds("job0", 3)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	require.Equal(t, 10, refs[0].BuildNumber)
	require.Equal(t, 9, refs[1].BuildNumber)
	require.Equal(t, 8, refs[2].BuildNumber)

	_, err = analytics.recentBuilds("", 10)
	require.Error(t, err)
	_, err = analytics.recentBuilds(JobFilterAll, 0)
	require.Error(t, err)
}

func TestRecentBuildsMinimumOnePerJob(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 15 jobs, buildCount=10: the floor rule caps each at 1 and the
	// minimum-1 rule still lets every job contribute.
	for j := 0; j < 15; j++ {
		job := fmt.Sprintf("job%02d", j)
		for build := 1; build <= 3; build++ {
			appendAnalysis(t, store, job, build,
				base.Add(time.Duration(j*3+build)*time.Minute),
				models.AnalysisContent{Anomalies: anomaliesWithSeverities("LOW")})
		}
	}

	refs, err := analytics.recentBuilds(JobFilterAll, 10)
	require.NoError(t, err)
	perJob := make(map[string]int)
	for _, ref := range refs {
		perJob[ref.ConversationID]++
	}
	require.Len(t, perJob, 15)
	for job, n := range perJob {
		require.Equal(t, 1, n, "job %s should contribute exactly one build", job)
	}
}

func TestAnomalyTrend(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendAnalysis(t, store, "jobA", 1, base, models.AnalysisContent{
		Anomalies: anomaliesWithSeverities("LOW", "LOW"),
	})
	appendAnalysis(t, store, "jobA", 2, base.Add(time.Hour), models.AnalysisContent{
		Anomalies: anomaliesWithSeverities("CRITICAL"),
	})

	chart, err := analytics.AnomalyTrend("jobA", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"jobA #2", "jobA #1"}, chart.Labels)
	require.Len(t, chart.Datasets, 1)
	require.Equal(t, []float64{1, 2}, chart.Datasets[0].Data)
}

func TestSeverityTrend(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendAnalysis(t, store, "jobA", 1, base, models.AnalysisContent{
		Anomalies: anomaliesWithSeverities("CRITICAL", "LOW", "LOW", "MEDIUM"),
	})

	chart, err := analytics.SeverityTrend("jobA", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"jobA #1"}, chart.Labels)
	require.Len(t, chart.Datasets, 5)

	bySeverity := make(map[string][]float64)
	for _, ds := range chart.Datasets {
		bySeverity[ds.Label] = ds.Data
	}
	require.Equal(t, []float64{1}, bySeverity[models.SeverityCritical])
	require.Equal(t, []float64{0}, bySeverity[models.SeverityHigh])
	require.Equal(t, []float64{1}, bySeverity[models.SeverityMedium])
	require.Equal(t, []float64{2}, bySeverity[models.SeverityLow])
	require.Equal(t, []float64{0}, bySeverity[models.SeverityWarning])
}

func TestInsightsQueries(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendAnalysis(t, store, "jobA", 1, base, models.AnalysisContent{
		Insights: &models.Insights{Summary: "older build"},
	})
	appendAnalysis(t, store, "jobA", 2, base.Add(time.Hour), models.AnalysisContent{
		Insights: &models.Insights{Summary: "latest build"},
	})

	insights, err := analytics.InsightsForBuild("jobA", 1)
	require.NoError(t, err)
	require.NotNil(t, insights)
	require.Equal(t, "older build", insights.Summary)

	insights, err = analytics.LatestInsights("jobA")
	require.NoError(t, err)
	require.NotNil(t, insights)
	require.Equal(t, "latest build", insights.Summary)

	insights, err = analytics.InsightsForBuild("jobA", 42)
	require.NoError(t, err)
	require.Nil(t, insights)
}

func TestJobExplorerFilters(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)

	lister := &fakeLister{jobs: []JenkinsJob{
		{Name: "running-job", Color: "blue_anime", LastBuildTimestamp: time.Now()},
	}}
	cache := NewJobCache(lister, "")
	analytics := NewAnalyticsService(db, store, cache)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendAnalysis(t, store, "clean-job", 3, base, models.AnalysisContent{
		BuildMetadata: &models.BuildMetadata{Status: "SUCCESS"},
	})
	appendAnalysis(t, store, "flaky-job", 7, base, models.AnalysisContent{
		Anomalies:     anomaliesWithSeverities("MEDIUM", "LOW"),
		BuildMetadata: &models.BuildMetadata{Status: "SUCCESS"},
	})
	appendAnalysis(t, store, "broken-job", 9, base, models.AnalysisContent{
		Anomalies:     anomaliesWithSeverities("CRITICAL"),
		BuildMetadata: &models.BuildMetadata{Status: "FAILURE"},
	})
	appendAnalysis(t, store, "running-job", 2, base, models.AnalysisContent{
		BuildMetadata: &models.BuildMetadata{Status: "SUCCESS"},
	})
	// No resolvable status at all: excluded from every view.
	appendAnalysis(t, store, "silent-job", 1, base, models.AnalysisContent{})

	rowsByJob := func(filter string) map[string]models.JobExplorerRow {
		rows, err := analytics.JobExplorer(filter)
		require.NoError(t, err)
		m := make(map[string]models.JobExplorerRow)
		for _, row := range rows {
			m[row.JobName] = row
		}
		return m
	}

	all := rowsByJob(ExplorerFilterAll)
	require.Len(t, all, 4)
	require.NotContains(t, all, "silent-job")
	require.Equal(t, models.JobStatusCompleted, all["clean-job"].Status)
	require.Equal(t, models.JobStatusFailed, all["broken-job"].Status)
	require.Equal(t, models.JobStatusRunning, all["running-job"].Status)
	require.Equal(t, 2, all["flaky-job"].AnomalyCount)

	active := rowsByJob(ExplorerFilterActive)
	require.Len(t, active, 1)
	require.Contains(t, active, "running-job")

	completed := rowsByJob(ExplorerFilterCompleted)
	require.Len(t, completed, 2)
	require.Contains(t, completed, "clean-job")
	require.Contains(t, completed, "flaky-job")

	completedWithIssues := rowsByJob(ExplorerFilterCompletedWithIssues)
	require.Len(t, completedWithIssues, 1)
	require.Contains(t, completedWithIssues, "flaky-job")

	withIssues := rowsByJob(ExplorerFilterWithIssues)
	require.Len(t, withIssues, 2)
	require.Contains(t, withIssues, "flaky-job")
	require.Contains(t, withIssues, "broken-job")

	_, err := analytics.JobExplorer("bogus")
	require.Error(t, err)
}

func TestEndToEndCriticalBuild(t *testing.T) {
	db := newTestDB(t)
	store := NewMessageStore(db)
	analytics := NewAnalyticsService(db, store, nil)

	appendAnalysis(t, store, "jobX", 5, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		models.AnalysisContent{Anomalies: anomaliesWithSeverities("CRITICAL", "LOW")})

	status, err := analytics.HealthStatus("jobX", 5)
	require.NoError(t, err)
	require.Equal(t, models.HealthCritical, status)

	page, err := analytics.PaginatedAnomalies("jobX", 5, 1, 0)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Anomalies, 1)
	require.Equal(t, "CRITICAL", page.Anomalies[0].Severity)
}
