package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cipulse/backend/internal/logger"
	"github.com/cipulse/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ViewsService maintains the precomputed summary tables the query layer
// reads for cheap answers. Each refresh rewrites the view tables wholesale
// inside one transaction and stamps every row with the same computed_at, so
// readers either see the previous consistent generation or the new one.
type ViewsService struct {
	db    *gorm.DB
	store *MessageStore
	cache *JobCache
}

func NewViewsService(db *gorm.DB, store *MessageStore, cache *JobCache) *ViewsService {
	return &ViewsService{db: db, store: store, cache: cache}
}

// Refresh recomputes all view tables from the raw message store.
func (vs *ViewsService) Refresh() error {
	computedAt := time.Now()

	var messages []models.Message
	err := vs.db.
		Where("role = ?", models.RoleAssistant).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return fmt.Errorf("failed to load analyses for view refresh: %w", err)
	}

	type buildKey struct {
		ConversationID string
		BuildNumber    int
	}

	buildRows := make(map[buildKey]*models.BuildAnomalyView)
	jobRows := make(map[string]*models.JobSummaryView)
	stats := models.OverviewStatsView{ComputedAt: computedAt}

	for _, msg := range messages {
		content := models.DecodeAnalysis(msg.Content)

		severityCounts := make(map[string]int)
		securityCount := 0
		for _, anomaly := range content.Anomalies {
			severityCounts[models.NormalizeSeverity(anomaly.Severity)]++
			if strings.Contains(strings.ToLower(anomaly.Type), "security") {
				securityCount++
			}
		}
		encoded, err := json.Marshal(severityCounts)
		if err != nil {
			encoded = []byte("{}")
		}

		// Later messages of the same build overwrite earlier ones; the
		// newest analysis wins.
		buildRows[buildKey{msg.ConversationID, msg.BuildNumber}] = &models.BuildAnomalyView{
			ConversationID: msg.ConversationID,
			BuildNumber:    msg.BuildNumber,
			TotalAnomalies: len(content.Anomalies),
			SecurityCount:  securityCount,
			SeverityCounts: datatypes.JSON(encoded),
			ComputedAt:     computedAt,
		}

		jobRows[msg.ConversationID] = &models.JobSummaryView{
			ConversationID:  msg.ConversationID,
			LastBuildNumber: msg.BuildNumber,
			LastTimestamp:   msg.Timestamp,
			LastStatus:      resolveBuildStatus(msg),
			AnomalyCount:    len(content.Anomalies),
			ComputedAt:      computedAt,
		}
	}

	for _, row := range buildRows {
		stats.TotalAnomalies += row.TotalAnomalies
		stats.SecurityAnomalies += row.SecurityCount
	}
	stats.TotalJobs = len(jobRows)
	if vs.cache != nil {
		stats.ActiveBuilds = len(vs.cache.InFlightBuilds())
	}

	err = vs.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.BuildAnomalyView{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.JobSummaryView{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.OverviewStatsView{}).Error; err != nil {
			return err
		}

		for _, row := range buildRows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		for _, row := range jobRows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return tx.Create(&stats).Error
	})
	if err != nil {
		return fmt.Errorf("failed to rewrite views: %w", err)
	}

	logger.Info("Refreshed precomputed views", map[string]interface{}{
		"builds": len(buildRows),
		"jobs":   len(jobRows),
	})
	return nil
}

// RunPeriodic refreshes the views on the given interval until the stop
// channel closes.
func (vs *ViewsService) RunPeriodic(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := vs.Refresh(); err != nil {
				logger.WithError(err, "views_service").Warn("View refresh failed")
			}
		case <-stop:
			return
		}
	}
}
