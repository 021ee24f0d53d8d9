package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cipulse/backend/internal/logger"
	"github.com/cipulse/backend/internal/models"
	"gorm.io/gorm"
)

// AnalyticsService is the query and aggregation layer. It is stateless: every
// method reads the message store (and the snapshot cache for the active-build
// signal) and computes its answer on the fly. Absence of data is an empty
// result, never an error; errors are reserved for invalid parameters and
// storage failures.
type AnalyticsService struct {
	db    *gorm.DB
	store *MessageStore
	cache *JobCache
}

func NewAnalyticsService(db *gorm.DB, store *MessageStore, cache *JobCache) *AnalyticsService {
	return &AnalyticsService{db: db, store: store, cache: cache}
}

// JobFilterAll selects every job in trend and summary queries.
const JobFilterAll = "all"

// Explorer filter vocabulary.
const (
	ExplorerFilterAll                 = "all"
	ExplorerFilterActive              = "active"
	ExplorerFilterCompleted           = "completed"
	ExplorerFilterCompletedWithIssues = "completedwithissues"
	ExplorerFilterWithIssues          = "withissues"
)

// PaginatedAnomalies flattens the anomaly arrays of a build's analysis
// messages in their original order and returns one page. The total count is
// computed over the full flattened list, so it stays correct even when the
// requested page is past the end.
func (as *AnalyticsService) PaginatedAnomalies(conversationID string, buildNumber, pageSize, offset int) (models.PaginatedAnomalies, error) {
	result := models.PaginatedAnomalies{Anomalies: []models.Anomaly{}}

	if conversationID == "" {
		return result, fmt.Errorf("job name is required")
	}
	if buildNumber <= 0 {
		return result, fmt.Errorf("build number must be positive, got %d", buildNumber)
	}
	if pageSize <= 0 {
		return result, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if offset < 0 {
		return result, fmt.Errorf("offset must not be negative, got %d", offset)
	}

	messages, err := as.store.MessagesForBuild(conversationID, buildNumber)
	if err != nil {
		return result, err
	}

	var all []models.Anomaly
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		content := models.DecodeAnalysis(msg.Content)
		all = append(all, content.Anomalies...)
	}

	result.TotalCount = len(all)
	if offset >= len(all) {
		return result, nil
	}
	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	result.Anomalies = all[offset:end]
	return result, nil
}

// ClassifyHealth derives a build's health status from its anomaly list. The
// branch order and thresholds are the contract; first match wins.
func ClassifyHealth(anomalies []models.Anomaly) string {
	var notable, lowish int
	for _, a := range anomalies {
		switch models.NormalizeSeverity(a.Severity) {
		case models.SeverityCritical, models.SeverityHigh:
			return models.HealthCritical
		case models.SeverityMedium:
			notable++
		case models.SeverityLow, models.SeverityWarning:
			lowish++
		}
	}

	if notable > 0 {
		return models.HealthWarning
	}
	if lowish <= 5 {
		return models.HealthHealthy
	}
	return models.HealthUnhealthy
}

// HealthStatus returns the health classification of one build, or the empty
// string when no analysis exists for it.
func (as *AnalyticsService) HealthStatus(conversationID string, buildNumber int) (string, error) {
	msg, err := as.store.LatestAssistantForBuild(conversationID, buildNumber)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", nil
	}
	content := models.DecodeAnalysis(msg.Content)
	return ClassifyHealth(content.Anomalies), nil
}

// buildRef identifies one sampled build.
type buildRef struct {
	ConversationID string
	BuildNumber    int
	Timestamp      time.Time
}

// perJobLimit computes how many builds each job may contribute when sampling
// across all jobs: floor(buildCount / jobCount), but never below one, so a
// large job set cannot starve small jobs and a small set cannot explode the
// result.
func perJobLimit(buildCount, jobCount int) int {
	if jobCount <= 0 {
		return buildCount
	}
	limit := buildCount / jobCount
	if limit < 1 {
		limit = 1
	}
	return limit
}

// recentBuilds returns the most recent analyzed builds ordered by timestamp
// then build number, both descending. With jobFilter set to one job it caps
// the result at buildCount; with JobFilterAll it distributes the budget
// across jobs via perJobLimit while keeping the global recency order.
func (as *AnalyticsService) recentBuilds(jobFilter string, buildCount int) ([]buildRef, error) {
	if jobFilter == "" {
		return nil, fmt.Errorf("job filter is required")
	}
	if buildCount <= 0 {
		return nil, fmt.Errorf("build count must be positive, got %d", buildCount)
	}

	query := as.db.Model(&models.Message{}).
		Select("conversation_id", "build_number", "timestamp").
		Where("role = ?", models.RoleAssistant).
		Order("timestamp DESC, build_number DESC, id DESC")
	if jobFilter != JobFilterAll {
		query = query.Where("conversation_id = ?", jobFilter)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to sample recent builds: %w", err)
	}

	// The first occurrence of a build in descending order carries its most
	// recent analysis timestamp.
	seen := make(map[string]map[int]struct{})
	rows := make([]buildRef, 0, len(messages))
	for _, msg := range messages {
		builds, ok := seen[msg.ConversationID]
		if !ok {
			builds = make(map[int]struct{})
			seen[msg.ConversationID] = builds
		}
		if _, dup := builds[msg.BuildNumber]; dup {
			continue
		}
		builds[msg.BuildNumber] = struct{}{}
		rows = append(rows, buildRef{
			ConversationID: msg.ConversationID,
			BuildNumber:    msg.BuildNumber,
			Timestamp:      msg.Timestamp,
		})
	}

	if jobFilter != JobFilterAll {
		if len(rows) > buildCount {
			rows = rows[:buildCount]
		}
		return rows, nil
	}

	jobs := make(map[string]int)
	for _, row := range rows {
		jobs[row.ConversationID] = 0
	}
	limit := perJobLimit(buildCount, len(jobs))

	sampled := make([]buildRef, 0, buildCount)
	for _, row := range rows {
		if jobs[row.ConversationID] >= limit {
			continue
		}
		jobs[row.ConversationID]++
		sampled = append(sampled, row)
	}
	return sampled, nil
}

// BuildSummaries returns summary rows for the sampled recent builds.
func (as *AnalyticsService) BuildSummaries(jobFilter string, buildCount int) ([]models.BuildSummary, error) {
	refs, err := as.recentBuilds(jobFilter, buildCount)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.BuildSummary, 0, len(refs))
	for _, ref := range refs {
		msg, err := as.store.LatestAssistantForBuild(ref.ConversationID, ref.BuildNumber)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		content := models.DecodeAnalysis(msg.Content)

		summary := models.BuildSummary{
			JobName:      ref.ConversationID,
			BuildID:      ref.BuildNumber,
			HealthStatus: ClassifyHealth(content.Anomalies),
		}
		if content.Insights != nil {
			summary.Summary = content.Insights.Summary
		}
		if content.BuildMetadata != nil {
			summary.StartedTime = content.BuildMetadata.StartTime
			summary.Duration = content.BuildMetadata.Duration
		}
		if content.RiskScore != nil {
			summary.RegressionDetected = content.RiskScore.Change > 0
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RiskScoreFor returns the risk score of one build, or nil when no analysis
// carries one.
func (as *AnalyticsService) RiskScoreFor(conversationID string, buildNumber int) (*models.RiskScore, error) {
	msg, err := as.store.LatestAssistantForBuild(conversationID, buildNumber)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	content := models.DecodeAnalysis(msg.Content)
	return content.RiskScore, nil
}

// InsightsForBuild returns the insights of one build's latest analysis.
func (as *AnalyticsService) InsightsForBuild(conversationID string, buildNumber int) (*models.Insights, error) {
	msg, err := as.store.LatestAssistantForBuild(conversationID, buildNumber)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	content := models.DecodeAnalysis(msg.Content)
	return content.Insights, nil
}

// LatestInsights returns the insights of the newest analysis anywhere in the
// job, the fallback shape used when no build is specified.
func (as *AnalyticsService) LatestInsights(conversationID string) (*models.Insights, error) {
	msg, err := as.store.LatestAssistant(conversationID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	content := models.DecodeAnalysis(msg.Content)
	return content.Insights, nil
}

// AnomalyTrend returns chart data with the total anomaly count per sampled
// build.
func (as *AnalyticsService) AnomalyTrend(jobFilter string, buildCount int) (models.ChartData, error) {
	chart := models.ChartData{Labels: []string{}, Datasets: []models.ChartDataset{}}

	refs, err := as.recentBuilds(jobFilter, buildCount)
	if err != nil {
		return chart, err
	}

	data := make([]float64, 0, len(refs))
	for _, ref := range refs {
		content, err := as.analysisFor(ref)
		if err != nil {
			return chart, err
		}
		chart.Labels = append(chart.Labels, fmt.Sprintf("%s #%d", ref.ConversationID, ref.BuildNumber))
		data = append(data, float64(len(content.Anomalies)))
	}

	chart.Datasets = append(chart.Datasets, models.ChartDataset{
		Label: "Anomalies",
		Data:  data,
		Color: "#e74c3c",
	})
	return chart, nil
}

var severityChartOrder = []struct {
	Severity string
	Color    string
}{
	{models.SeverityCritical, "#c0392b"},
	{models.SeverityHigh, "#e74c3c"},
	{models.SeverityMedium, "#f39c12"},
	{models.SeverityLow, "#3498db"},
	{models.SeverityWarning, "#f1c40f"},
}

// SeverityTrend returns chart data with one dataset per severity level and
// the per-build counts of that severity. Sampling is identical to
// AnomalyTrend; only the extracted payload differs.
func (as *AnalyticsService) SeverityTrend(jobFilter string, buildCount int) (models.ChartData, error) {
	chart := models.ChartData{Labels: []string{}, Datasets: []models.ChartDataset{}}

	refs, err := as.recentBuilds(jobFilter, buildCount)
	if err != nil {
		return chart, err
	}

	counts := make(map[string][]float64)
	for _, entry := range severityChartOrder {
		counts[entry.Severity] = make([]float64, 0, len(refs))
	}

	for _, ref := range refs {
		content, err := as.analysisFor(ref)
		if err != nil {
			return chart, err
		}
		chart.Labels = append(chart.Labels, fmt.Sprintf("%s #%d", ref.ConversationID, ref.BuildNumber))

		perBuild := make(map[string]float64)
		for _, anomaly := range content.Anomalies {
			perBuild[models.NormalizeSeverity(anomaly.Severity)]++
		}
		for _, entry := range severityChartOrder {
			counts[entry.Severity] = append(counts[entry.Severity], perBuild[entry.Severity])
		}
	}

	for _, entry := range severityChartOrder {
		chart.Datasets = append(chart.Datasets, models.ChartDataset{
			Label: entry.Severity,
			Data:  counts[entry.Severity],
			Color: entry.Color,
		})
	}
	return chart, nil
}

func (as *AnalyticsService) analysisFor(ref buildRef) (models.AnalysisContent, error) {
	msg, err := as.store.LatestAssistantForBuild(ref.ConversationID, ref.BuildNumber)
	if err != nil {
		return models.AnalysisContent{}, err
	}
	if msg == nil {
		return models.AnalysisContent{}, nil
	}
	return models.DecodeAnalysis(msg.Content), nil
}

// resolveBuildStatus extracts a terminal status from an analysis message,
// preferring the explicit buildMetadata status and falling back to a status
// key in the message metadata.
func resolveBuildStatus(msg models.Message) string {
	content := models.DecodeAnalysis(msg.Content)
	if content.BuildMetadata != nil && content.BuildMetadata.Status != "" {
		return models.NormalizeSeverity(content.BuildMetadata.Status)
	}
	if len(msg.Metadata) > 0 {
		meta := struct {
			Status string `json:"status"`
		}{}
		if err := json.Unmarshal(msg.Metadata, &meta); err == nil && meta.Status != "" {
			return models.NormalizeSeverity(meta.Status)
		}
	}
	return models.JobStatusUnknown
}

// classifyJobStatus turns a terminal build status plus the active-build
// signal into the explorer status. Unrecognized statuses pass through raw.
func classifyJobStatus(status string, active bool) string {
	if active {
		return models.JobStatusRunning
	}
	switch status {
	case "SUCCESS":
		return models.JobStatusCompleted
	case "FAILURE", "ABORTED", "UNSTABLE":
		return models.JobStatusFailed
	default:
		return status
	}
}

// JobExplorer returns one row per known job, classified and filtered. For
// each job the newest analysis with a resolvable status wins; messages that
// resolve to UNKNOWN are skipped.
func (as *AnalyticsService) JobExplorer(filter string) ([]models.JobExplorerRow, error) {
	switch filter {
	case ExplorerFilterAll, ExplorerFilterActive, ExplorerFilterCompleted,
		ExplorerFilterCompletedWithIssues, ExplorerFilterWithIssues:
	default:
		return nil, fmt.Errorf("unknown explorer filter %q", filter)
	}

	conversations, err := as.store.DistinctConversationIDs()
	if err != nil {
		return nil, err
	}

	inflight := map[string]time.Time{}
	if as.cache != nil {
		inflight = as.cache.InFlightBuilds()
	}

	rows := make([]models.JobExplorerRow, 0, len(conversations))
	for _, conversationID := range conversations {
		var messages []models.Message
		err := as.db.
			Where("conversation_id = ? AND role = ?", conversationID, models.RoleAssistant).
			Order("timestamp DESC, id DESC").
			Find(&messages).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load analyses for %s: %w", conversationID, err)
		}

		var picked *models.Message
		status := models.JobStatusUnknown
		for i := range messages {
			if resolved := resolveBuildStatus(messages[i]); resolved != models.JobStatusUnknown {
				picked = &messages[i]
				status = resolved
				break
			}
		}
		if picked == nil {
			continue
		}

		_, active := inflight[conversationID]
		content := models.DecodeAnalysis(picked.Content)
		row := models.JobExplorerRow{
			JobName:      conversationID,
			LastBuild:    picked.BuildNumber,
			Status:       classifyJobStatus(status, active),
			AnomalyCount: len(content.Anomalies),
		}

		if explorerRowMatches(row, filter) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func explorerRowMatches(row models.JobExplorerRow, filter string) bool {
	switch filter {
	case ExplorerFilterActive:
		return row.Status == models.JobStatusRunning
	case ExplorerFilterCompleted:
		return row.Status == models.JobStatusCompleted
	case ExplorerFilterCompletedWithIssues:
		return row.Status == models.JobStatusCompleted && row.AnomalyCount > 0
	case ExplorerFilterWithIssues:
		return row.AnomalyCount > 0 || row.Status == models.JobStatusFailed
	default:
		return true
	}
}

// OverviewStats returns the latest precomputed store-wide counters. A missing
// row (views never refreshed yet) yields zero values.
func (as *AnalyticsService) OverviewStats() (models.OverviewStatsView, error) {
	var stats models.OverviewStatsView
	err := as.db.Order("computed_at DESC").First(&stats).Error
	if err == gorm.ErrRecordNotFound {
		return models.OverviewStatsView{}, nil
	}
	if err != nil {
		logger.WithError(err, "analytics_service").Warn("Failed to load overview stats")
		return models.OverviewStatsView{}, fmt.Errorf("failed to load overview stats: %w", err)
	}
	return stats, nil
}
