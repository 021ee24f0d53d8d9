package controllers

import (
	"net/http"
	"strconv"

	"github.com/cipulse/backend/internal/models"
	"github.com/cipulse/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsController(analytics *services.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{analytics: analytics}
}

// GetPaginatedAnomalies returns one page of a build's anomalies plus the
// total count.
func (ac *AnalyticsController) GetPaginatedAnomalies(c *gin.Context) {
	job := c.Query("job")
	build, err := strconv.Atoi(c.Query("build"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "build must be an integer"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageSize must be an integer"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}

	result, err := ac.analytics.PaginatedAnomalies(job, build, pageSize, offset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBuildSummaries returns summary rows for recent builds, sampled across
// jobs when job=all.
func (ac *AnalyticsController) GetBuildSummaries(c *gin.Context) {
	job := c.DefaultQuery("job", services.JobFilterAll)
	buildCount, err := strconv.Atoi(c.DefaultQuery("buildCount", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buildCount must be an integer"})
		return
	}

	summaries, err := ac.analytics.BuildSummaries(job, buildCount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if summaries == nil {
		summaries = []models.BuildSummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (ac *AnalyticsController) GetBuildHealth(c *gin.Context) {
	job, build, ok := buildParams(c)
	if !ok {
		return
	}

	status, err := ac.analytics.HealthStatus(job, build)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"healthStatus": status})
}

func (ac *AnalyticsController) GetRiskScore(c *gin.Context) {
	job, build, ok := buildParams(c)
	if !ok {
		return
	}

	score, err := ac.analytics.RiskScoreFor(job, build)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if score == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, score)
}

func (ac *AnalyticsController) GetBuildInsights(c *gin.Context) {
	job, build, ok := buildParams(c)
	if !ok {
		return
	}

	insights, err := ac.analytics.InsightsForBuild(job, build)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if insights == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (ac *AnalyticsController) GetJobInsights(c *gin.Context) {
	job := c.Param("job")

	insights, err := ac.analytics.LatestInsights(job)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if insights == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (ac *AnalyticsController) GetAnomalyTrend(c *gin.Context) {
	ac.trend(c, ac.analytics.AnomalyTrend)
}

func (ac *AnalyticsController) GetSeverityTrend(c *gin.Context) {
	ac.trend(c, ac.analytics.SeverityTrend)
}

func (ac *AnalyticsController) trend(c *gin.Context, query func(string, int) (models.ChartData, error)) {
	job := c.DefaultQuery("job", services.JobFilterAll)
	buildCount, err := strconv.Atoi(c.DefaultQuery("buildCount", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "buildCount must be an integer"})
		return
	}

	chart, err := query(job, buildCount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (ac *AnalyticsController) GetJobExplorer(c *gin.Context) {
	filter := c.DefaultQuery("filter", services.ExplorerFilterAll)

	rows, err := ac.analytics.JobExplorer(filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.JobExplorerRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (ac *AnalyticsController) GetOverviewStats(c *gin.Context) {
	stats, err := ac.analytics.OverviewStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func buildParams(c *gin.Context) (string, int, bool) {
	job := c.Param("job")
	build, err := strconv.Atoi(c.Param("build"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "build must be an integer"})
		return "", 0, false
	}
	return job, build, true
}
