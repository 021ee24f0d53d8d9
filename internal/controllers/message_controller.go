package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cipulse/backend/internal/models"
	"github.com/cipulse/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type MessageController struct {
	store *services.MessageStore
}

func NewMessageController(store *services.MessageStore) *MessageController {
	return &MessageController{store: store}
}

type appendMessageRequest struct {
	ConversationID string          `json:"conversationId" binding:"required"`
	BuildNumber    int             `json:"buildNumber" binding:"required"`
	Role           string          `json:"role" binding:"required"`
	Content        json.RawMessage `json:"content" binding:"required"`
	Metadata       json.RawMessage `json:"metadata"`
	Timestamp      *time.Time      `json:"timestamp"`
}

// AppendMessage ingests one producer record. Bad payloads are rejected with
// the reason so producers know the write did not happen.
func (mc *MessageController) AppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timestamp := time.Now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	msg := models.Message{
		ConversationID: req.ConversationID,
		BuildNumber:    req.BuildNumber,
		Role:           models.MessageRole(req.Role),
		Content:        datatypes.JSON(req.Content),
		Metadata:       datatypes.JSON(req.Metadata),
		Timestamp:      timestamp,
	}

	id, err := mc.store.Append(&msg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetMessages returns a conversation's timeline, optionally from a build
// number onward via ?since=.
func (mc *MessageController) GetMessages(c *gin.Context) {
	job := c.Param("job")

	var messages []models.Message
	var err error
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, convErr := strconv.Atoi(sinceStr)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer"})
			return
		}
		messages, err = mc.store.MessagesSince(job, since)
	} else {
		messages, err = mc.store.MessagesFor(job)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}
