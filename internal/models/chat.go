package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat message authors
const (
	ChatMessageUser      = "user"
	ChatMessageAssistant = "assistant"
)

// Chat conversation states
const (
	ChatStatusActive = "active"
	ChatStatusEnded  = "ended"
)

// ChatMessage is one entry of a conversation transcript
type ChatMessage struct {
	Type      string                 `bson:"type" json:"type"`
	Message   string                 `bson:"message" json:"message"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// ChatConversation is stored as one MongoDB document per session
type ChatConversation struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID       string             `bson:"sessionId" json:"sessionId"`
	UserID          int64              `bson:"userId,omitempty" json:"userId,omitempty"`
	Messages        []ChatMessage      `bson:"messages" json:"messages"`
	UserPreferences map[string]string  `bson:"userPreferences,omitempty" json:"userPreferences,omitempty"`
	Recommendations []int64            `bson:"recommendations,omitempty" json:"recommendations,omitempty"`
	Status          string             `bson:"status" json:"status"`
	Satisfaction    int                `bson:"satisfaction,omitempty" json:"satisfaction,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
	EndedAt         *time.Time         `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
}

// RecentMessages returns at most n trailing messages.
func (c *ChatConversation) RecentMessages(n int) []ChatMessage {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
