package models

import (
	"time"

	"gorm.io/datatypes"
)

// Precomputed view rows. Written only by the views refresh job; the query
// layer reads them for cheap answers instead of scanning raw JSON. Every row
// carries ComputedAt so staleness is observable.

type BuildAnomalyView struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ConversationID string         `json:"conversationId" gorm:"not null;index:idx_build_anomaly_conv_build,unique,priority:1"`
	BuildNumber    int            `json:"buildNumber" gorm:"not null;index:idx_build_anomaly_conv_build,unique,priority:2"`
	TotalAnomalies int            `json:"totalAnomalies"`
	SecurityCount  int            `json:"securityCount"`
	SeverityCounts datatypes.JSON `json:"severityCounts" gorm:"type:jsonb"`
	ComputedAt     time.Time      `json:"computedAt" gorm:"not null"`
}

type JobSummaryView struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	ConversationID  string    `json:"conversationId" gorm:"uniqueIndex;not null"`
	LastBuildNumber int       `json:"lastBuildNumber"`
	LastTimestamp   time.Time `json:"lastTimestamp"`
	LastStatus      string    `json:"lastStatus"`
	AnomalyCount    int       `json:"anomalyCount"`
	ComputedAt      time.Time `json:"computedAt" gorm:"not null"`
}

// OverviewStatsView is a single-row table with store-wide counters.
type OverviewStatsView struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	TotalJobs         int       `json:"totalJobs"`
	ActiveBuilds      int       `json:"activeBuilds"`
	SecurityAnomalies int       `json:"securityAnomalies"`
	TotalAnomalies    int       `json:"totalAnomalies"`
	ComputedAt        time.Time `json:"computedAt" gorm:"not null"`
}

func (BuildAnomalyView) TableName() string {
	return "build_anomaly_views"
}

func (JobSummaryView) TableName() string {
	return "job_summary_views"
}

func (OverviewStatsView) TableName() string {
	return "overview_stats_views"
}
