package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cipulse/backend/internal/database"
	"github.com/cipulse/backend/internal/logger"
	"github.com/cipulse/backend/internal/middleware"
	"github.com/cipulse/backend/internal/routes"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "http://localhost:5173"
		if corsOrigin := os.Getenv("CORS_ORIGIN"); corsOrigin != "" {
			origin = corsOrigin
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func main() {
	logger.Initialize()

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	database.Connect()
	database.AutoMigrate()

	// Graceful shutdown for the background loops.
	stopChan := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		logger.Warn("Received shutdown signal, stopping background workers...", nil)
		close(stopChan)
	}()

	if os.Getenv("ENV") != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(middleware.RequestLoggerMiddleware())

	routes.SetupRoutes(r, database.GetDB(), stopChan)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	logger.Info("Starting server", map[string]interface{}{"port": port})
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
	}
}
