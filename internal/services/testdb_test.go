package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cipulse/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A pooled :memory: connection per conn would mean a database per
	// connection; pin the pool to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Message{},
		&models.BuildAnomalyView{},
		&models.JobSummaryView{},
		&models.OverviewStatsView{},
	))
	return db
}

func mustMarshal(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return datatypes.JSON(raw)
}

// appendAnalysis inserts one ASSISTANT message with the given anomalies.
func appendAnalysis(t *testing.T, store *MessageStore, job string, build int, ts time.Time, content models.AnalysisContent) uint {
	t.Helper()
	id, err := store.Append(&models.Message{
		ConversationID: job,
		BuildNumber:    build,
		Role:           models.RoleAssistant,
		Content:        mustMarshal(t, content),
		Timestamp:      ts,
	})
	require.NoError(t, err)
	return id
}

func anomaliesWithSeverities(severities ...string) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0, len(severities))
	for i, s := range severities {
		anomalies = append(anomalies, models.Anomaly{
			Severity:    s,
			Type:        "quality",
			Description: "anomaly " + string(rune('a'+i)),
		})
	}
	return anomalies
}
