package services

import (
	"encoding/json"
	"fmt"

	"github.com/cipulse/backend/internal/logger"
	"github.com/cipulse/backend/internal/models"
	"gorm.io/gorm"
)

// MessageStore is the single source of truth for message records. Appends and
// deletes are the only mutators; reads are always ordered by timestamp with
// the insertion id as tie-breaker so repeated queries see a stable order.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append inserts a message and returns its id. Serialization problems fail
// loudly here so producers know the write was rejected.
func (ms *MessageStore) Append(msg *models.Message) (uint, error) {
	if msg.ConversationID == "" {
		return 0, fmt.Errorf("conversation id is required")
	}
	if msg.BuildNumber <= 0 {
		return 0, fmt.Errorf("build number must be positive, got %d", msg.BuildNumber)
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return 0, fmt.Errorf("invalid message role %q", msg.Role)
	}
	if len(msg.Content) > 0 && !json.Valid(msg.Content) {
		return 0, fmt.Errorf("content is not valid JSON")
	}
	if len(msg.Metadata) > 0 && !json.Valid(msg.Metadata) {
		return 0, fmt.Errorf("metadata is not valid JSON")
	}

	if err := ms.db.Create(msg).Error; err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return msg.ID, nil
}

// MessagesFor returns all messages of one conversation in timeline order.
func (ms *MessageStore) MessagesFor(conversationID string) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	var messages []models.Message
	err := ms.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s: %w", conversationID, err)
	}
	return messages, nil
}

// MessagesSince returns a conversation's messages from the given build
// number onward, in timeline order.
func (ms *MessageStore) MessagesSince(conversationID string, sinceBuild int) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if sinceBuild < 0 {
		return nil, fmt.Errorf("since build must not be negative, got %d", sinceBuild)
	}

	var messages []models.Message
	err := ms.db.
		Where("conversation_id = ? AND build_number >= ?", conversationID, sinceBuild).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s since #%d: %w", conversationID, sinceBuild, err)
	}
	return messages, nil
}

// MessagesForBuild returns all messages of one build in timeline order.
func (ms *MessageStore) MessagesForBuild(conversationID string, buildNumber int) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if buildNumber <= 0 {
		return nil, fmt.Errorf("build number must be positive, got %d", buildNumber)
	}

	var messages []models.Message
	err := ms.db.
		Where("conversation_id = ? AND build_number = ?", conversationID, buildNumber).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s #%d: %w", conversationID, buildNumber, err)
	}
	return messages, nil
}

// LatestAssistantForBuild returns the most recent ASSISTANT message of one
// build, or nil when none exists.
func (ms *MessageStore) LatestAssistantForBuild(conversationID string, buildNumber int) (*models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if buildNumber <= 0 {
		return nil, fmt.Errorf("build number must be positive, got %d", buildNumber)
	}

	var msg models.Message
	err := ms.db.
		Where("conversation_id = ? AND build_number = ? AND role = ?",
			conversationID, buildNumber, models.RoleAssistant).
		Order("timestamp DESC, id DESC").
		First(&msg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis for %s #%d: %w", conversationID, buildNumber, err)
	}
	return &msg, nil
}

// LatestAssistant returns the most recent ASSISTANT message across all builds
// of one conversation, or nil when none exists.
func (ms *MessageStore) LatestAssistant(conversationID string) (*models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	var msg models.Message
	err := ms.db.
		Where("conversation_id = ? AND role = ?", conversationID, models.RoleAssistant).
		Order("timestamp DESC, id DESC").
		First(&msg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest analysis for %s: %w", conversationID, err)
	}
	return &msg, nil
}

// DistinctConversationIDs returns the set of job names present in the store.
func (ms *MessageStore) DistinctConversationIDs() ([]string, error) {
	var ids []string
	err := ms.db.Model(&models.Message{}).
		Distinct("conversation_id").
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}

// Trim deletes every message of the conversation except the keep most recent
// ones. The window is applied in a single statement so concurrent readers
// never observe a partially trimmed conversation.
func (ms *MessageStore) Trim(conversationID string, keep int) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if keep <= 0 {
		return fmt.Errorf("keep must be positive, got %d", keep)
	}

	result := ms.db.Exec(`
		DELETE FROM messages
		WHERE conversation_id = ?
		  AND id NOT IN (
			SELECT id FROM (
				SELECT id FROM messages
				WHERE conversation_id = ?
				ORDER BY timestamp DESC, id DESC
				LIMIT ?
			) AS keep_window
		  )`, conversationID, conversationID, keep)
	if result.Error != nil {
		return fmt.Errorf("failed to trim conversation %s: %w", conversationID, result.Error)
	}

	if result.RowsAffected > 0 {
		logger.WithConversation(conversationID).WithField("deleted", result.RowsAffected).
			Debug("Trimmed conversation to retention window")
	}
	return nil
}

// PurgeConversation deletes all messages of one conversation.
func (ms *MessageStore) PurgeConversation(conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	result := ms.db.Where("conversation_id = ?", conversationID).Delete(&models.Message{})
	if result.Error != nil {
		return fmt.Errorf("failed to purge conversation %s: %w", conversationID, result.Error)
	}

	logger.WithConversation(conversationID).WithField("deleted", result.RowsAffected).
		Info("Purged conversation")
	return nil
}

// PurgeConversations deletes all messages of the given conversations in one
// statement. An empty set is a no-op; callers must always pass an explicit,
// bounded id list, a wildcard purge does not exist.
func (ms *MessageStore) PurgeConversations(conversationIDs []string) error {
	if len(conversationIDs) == 0 {
		return nil
	}

	result := ms.db.Where("conversation_id IN ?", conversationIDs).Delete(&models.Message{})
	if result.Error != nil {
		return fmt.Errorf("failed to purge %d conversations: %w", len(conversationIDs), result.Error)
	}

	logger.Info("Purged conversations", map[string]interface{}{
		"conversations": len(conversationIDs),
		"deleted":       result.RowsAffected,
	})
	return nil
}
