package routes

import (
	"net/http"
	"os"

	"github.com/cipulse/backend/internal/controllers"
	"github.com/cipulse/backend/internal/middleware"
	"github.com/cipulse/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes wires services and controllers onto the engine and starts the
// background loops. The returned stop channel is closed by the caller on
// shutdown.
func SetupRoutes(r *gin.Engine, db *gorm.DB, stopChan <-chan struct{}) {
	jenkins := services.NewJenkinsService(
		os.Getenv("JENKINS_URL"),
		os.Getenv("JENKINS_USER"),
		os.Getenv("JENKINS_API_TOKEN"),
	)
	folder := os.Getenv("JENKINS_FOLDER")

	store := services.NewMessageStore(db)
	cache := services.NewJobCache(jenkins, folder)
	views := services.NewViewsService(db, store, cache)
	analytics := services.NewAnalyticsService(db, store, cache)
	syncService := services.NewSyncService(store, jenkins, cache, views, folder)

	go syncService.Run(stopChan)

	authController := controllers.NewAuthController(db)
	analyticsController := controllers.NewAnalyticsController(analytics)
	jobController := controllers.NewJobController(jenkins, cache)
	messageController := controllers.NewMessageController(store)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/register", authController.Register)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/anomalies", analyticsController.GetPaginatedAnomalies)

			builds := protected.Group("/builds")
			{
				builds.GET("/summaries", analyticsController.GetBuildSummaries)
				builds.GET("/:job/:build/health", analyticsController.GetBuildHealth)
				builds.GET("/:job/:build/riskscore", analyticsController.GetRiskScore)
				builds.GET("/:job/:build/insights", analyticsController.GetBuildInsights)
			}

			trends := protected.Group("/trends")
			{
				trends.GET("/anomalies", analyticsController.GetAnomalyTrend)
				trends.GET("/severity", analyticsController.GetSeverityTrend)
			}

			jobs := protected.Group("/jobs")
			{
				jobs.GET("", jobController.GetJobs)
				jobs.GET("/explorer", analyticsController.GetJobExplorer)
				jobs.GET("/:job/insights", analyticsController.GetJobInsights)
				jobs.POST("/:job/build", jobController.TriggerBuild)
				jobs.GET("/:job/messages", messageController.GetMessages)
			}

			protected.POST("/messages", messageController.AppendMessage)
			protected.GET("/stats/overview", analyticsController.GetOverviewStats)

			admin := protected.Group("/admin")
			{
				admin.GET("/ci-api-calls", jobController.GetAPICalls)
				admin.DELETE("/ci-api-calls", jobController.ClearAPICalls)
			}
		}
	}
}
