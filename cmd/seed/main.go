package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cipulse/backend/internal/database"
	"github.com/cipulse/backend/internal/models"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	database.Connect()

	log.Println("Running database migrations...")
	database.AutoMigrate()

	log.Println("Seeding database with sample data...")
	if err := seedAdminUser(); err != nil {
		log.Printf("Error seeding admin user: %v", err)
	}
	if err := seedSampleMessages(); err != nil {
		log.Printf("Error seeding sample messages: %v", err)
	}

	log.Println("Database seeding completed successfully")
}

func seedAdminUser() error {
	db := database.GetDB()

	var existing models.User
	if err := db.Where("email = ?", "admin@cipulse.local").First(&existing).Error; err == nil {
		log.Println("Admin user already exists, skipping")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return db.Create(&models.User{
		Email:     "admin@cipulse.local",
		Password:  string(hashed),
		FirstName: "Admin",
		LastName:  "User",
		Role:      models.RoleAdmin,
	}).Error
}

func seedSampleMessages() error {
	db := database.GetDB()

	var count int64
	if err := db.Model(&models.Message{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("Messages already present, skipping sample data")
		return nil
	}

	jobs := []string{"checkout-service", "payments-service"}
	now := time.Now()

	for j, job := range jobs {
		for build := 1; build <= 3; build++ {
			ts := now.Add(-time.Duration((3-build)*24+j) * time.Hour)

			chunk := models.BuildLogChunk{
				Type:        "build_log_data",
				LogChunk:    fmt.Sprintf("Started build #%d of %s", build, job),
				ChunkIndex:  0,
				TotalChunks: 1,
				Timestamp:   ts.Format(time.RFC3339),
			}
			rawChunk, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := db.Create(&models.Message{
				ConversationID: job,
				BuildNumber:    build,
				Role:           models.RoleUser,
				Content:        datatypes.JSON(rawChunk),
				Timestamp:      ts,
			}).Error; err != nil {
				return err
			}

			analysis := models.AnalysisContent{
				Anomalies: []models.Anomaly{
					{Severity: "LOW", Type: "performance", Description: "Build slower than baseline"},
				},
				BuildMetadata: &models.BuildMetadata{
					Status:    "SUCCESS",
					Duration:  180000,
					StartTime: ts.Format(time.RFC3339),
					Timestamp: ts.Format(time.RFC3339),
				},
				RiskScore: &models.RiskScore{Score: 20, Change: -2, RiskLevel: "low", PreviousScore: 22},
				Insights: &models.Insights{
					Summary:         fmt.Sprintf("Build #%d of %s completed with minor findings", build, job),
					Recommendations: []string{"Review slow test stages"},
					Trends:          "stable",
				},
			}
			rawAnalysis, err := json.Marshal(analysis)
			if err != nil {
				return err
			}
			if err := db.Create(&models.Message{
				ConversationID: job,
				BuildNumber:    build,
				Role:           models.RoleAssistant,
				Content:        datatypes.JSON(rawAnalysis),
				Timestamp:      ts.Add(time.Minute),
			}).Error; err != nil {
				return err
			}
		}
	}

	log.Printf("Seeded sample messages for %d jobs", len(jobs))
	return nil
}
