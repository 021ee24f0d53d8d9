package models

import (
	"encoding/json"
	"strings"
)

// Severity vocabulary used inside ASSISTANT content. Input is normalized to
// upper case at the boundary; unknown values pass through unchanged.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
	SeverityWarning  = "WARNING"
)

type Anomaly struct {
	Severity       string `json:"severity"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	Details        string `json:"details"`
	AIAnalysis     string `json:"aiAnalysis"`
	Recommendation string `json:"recommendation"`
}

type RiskScore struct {
	Score         float64 `json:"score"`
	Change        float64 `json:"change"`
	RiskLevel     string  `json:"riskLevel"`
	PreviousScore float64 `json:"previousScore"`
}

type Insights struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	Trends          string   `json:"trends"`
}

type BuildMetadata struct {
	Status    string `json:"status"`
	Duration  int64  `json:"duration"`
	StartTime string `json:"startTime"`
	Timestamp string `json:"timestamp"`
}

// AnalysisContent is the content document of an ASSISTANT message.
type AnalysisContent struct {
	Anomalies     []Anomaly      `json:"anomalies"`
	BuildMetadata *BuildMetadata `json:"buildMetadata,omitempty"`
	RiskScore     *RiskScore     `json:"riskScore,omitempty"`
	Insights      *Insights      `json:"insights,omitempty"`
}

// BuildLogChunk is one typed variant of USER message content. Other variants
// (scan results, secret detections, dependency data, system info) share the
// same column and are distinguished by the Type tag.
type BuildLogChunk struct {
	Type        string `json:"type"`
	LogChunk    string `json:"log_chunk"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Timestamp   string `json:"timestamp"`
}

// DecodeAnalysis parses an ASSISTANT content document. Malformed JSON yields
// an empty document, never an error; producers were already told about bad
// payloads at append time, readers must keep serving.
func DecodeAnalysis(raw []byte) AnalysisContent {
	var content AnalysisContent
	if len(raw) == 0 {
		return content
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return AnalysisContent{}
	}
	return content
}

// NormalizeSeverity upper-cases a severity label for comparison.
func NormalizeSeverity(severity string) string {
	return strings.ToUpper(strings.TrimSpace(severity))
}
