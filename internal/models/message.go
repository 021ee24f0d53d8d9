package models

import (
	"time"

	"gorm.io/datatypes"
)

type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
)

// Message is the atomic record of the store: one JSON-bearing document tied to
// a CI job (the conversation) and a build number. USER messages carry raw
// collected data, ASSISTANT messages carry AI analysis results. Rows are never
// updated after insert; only the retention paths delete them.
type Message struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	ConversationID string         `json:"conversationId" gorm:"not null;index:idx_messages_conv_ts,priority:1"`
	BuildNumber    int            `json:"buildNumber" gorm:"not null;index"`
	Role           MessageRole    `json:"role" gorm:"not null;type:varchar(16)"`
	Content        datatypes.JSON `json:"content" gorm:"type:jsonb"`
	Metadata       datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	Timestamp      time.Time      `json:"timestamp" gorm:"not null;index:idx_messages_conv_ts,priority:2"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
