// Package handlers exposes the hub's HTTP surface next to the websocket endpoint.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tutorhub/internal/events"
	"tutorhub/internal/models"
)

// CallRooms reports live call rosters.
type CallRooms interface {
	RoomStatus(roomID string) ([]string, bool)
}

// Presence counts connections per room.
type Presence interface {
	RoomSize(room string) int
}

// Purchases runs server-triggered purchase notifications.
type Purchases interface {
	Purchase(ctx context.Context, p events.PurchaseNotification) error
}

// Inbox lists a tutor's private chats.
type Inbox interface {
	PrivateChats(ctx context.Context, tutorID string) ([]models.PrivateChatSummary, error)
}

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if id := c.GetHeader("X-User-Id"); id != "" {
		return &id
	}
	return nil
}
