package models

import (
	"errors"
	"time"
)

// Delivery status tags for a chat message.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

var ErrInvalidTarget = errors.New("message must target exactly one of community or private chat")

// ChatMessage is a persisted unit of community or private chat content.
type ChatMessage struct {
	ID            string    `db:"id" json:"id"`
	CommunityID   *string   `db:"community_id" json:"communityId,omitempty"`
	PrivateChatID *string   `db:"private_chat_id" json:"privateChatId,omitempty"`
	Sender        string    `db:"sender" json:"sender"`
	Content       string    `db:"content" json:"content"`
	Timestamp     time.Time `db:"sent_at" json:"timestamp"`
	Status        string    `db:"status" json:"status"`
	ImageURL      *string   `db:"image_url" json:"imageUrl,omitempty"`
}

// Validate enforces that exactly one room target is set.
func (m ChatMessage) Validate() error {
	hasCommunity := m.CommunityID != nil && *m.CommunityID != ""
	hasPrivate := m.PrivateChatID != nil && *m.PrivateChatID != ""
	if hasCommunity == hasPrivate {
		return ErrInvalidTarget
	}
	return nil
}

// ValidStatus reports whether s is a known delivery status.
func ValidStatus(s string) bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// PrivateChatSummary is one entry of a tutor's inbox.
type PrivateChatSummary struct {
	PrivateChatID string      `json:"privateChatId"`
	CourseID      string      `json:"courseId"`
	CourseTitle   string      `json:"courseTitle"`
	StudentID     string      `json:"studentId"`
	StudentName   string      `json:"studentName"`
	TutorID       string      `json:"tutorId"`
	LatestMessage ChatMessage `json:"latestMessage"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
