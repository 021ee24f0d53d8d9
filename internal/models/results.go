package models

import "time"

// Plain result types returned by the query layer to the API. No ORM
// projections; every query shape gets its own struct.

// Health statuses derived from a build's anomaly severity profile. The mixed
// casing is part of the wire contract.
const (
	HealthCritical  = "CRITICAL"
	HealthWarning   = "WARNING"
	HealthHealthy   = "Healthy"
	HealthUnhealthy = "Unhealthy"
)

// Job statuses for the explorer view.
const (
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusUnknown   = "UNKNOWN"
)

type PaginatedAnomalies struct {
	Anomalies  []Anomaly `json:"anomalies"`
	TotalCount int       `json:"totalCount"`
}

type BuildSummary struct {
	JobName            string `json:"jobName"`
	BuildID            int    `json:"buildId"`
	HealthStatus       string `json:"healthStatus"`
	Summary            string `json:"summary"`
	StartedTime        string `json:"startedTime"`
	Duration           int64  `json:"duration"`
	RegressionDetected bool   `json:"regressionDetected"`
}

type ChartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
	Color string    `json:"color"`
}

type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

type JobExplorerRow struct {
	JobName      string `json:"jobName"`
	LastBuild    int    `json:"lastBuild"`
	Status       string `json:"status"`
	AnomalyCount int    `json:"anomalyCount"`
}

// JobSnapshot is one entry of the external snapshot cache: derived from the
// CI server's job list, never persisted, rebuilt wholesale on each refresh.
type JobSnapshot struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	InProgress bool      `json:"inProgress"`
	ColorClass string    `json:"colorClass"`
	Timestamp  time.Time `json:"timestamp"`
}
