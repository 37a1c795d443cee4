package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	pkglog "tutorhub/internal/log"
	"tutorhub/internal/rooms"
)

type UserHandler struct {
	presence Presence
	inbox    Inbox
}

func NewUserHandler(presence Presence, inbox Inbox) *UserHandler {
	return &UserHandler{presence: presence, inbox: inbox}
}

// Presence reports how many connections joined the user's room.
func (h *UserHandler) Presence(c *gin.Context) {
	userID := c.Param("user_id")
	if !rooms.ValidID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "connections": h.presence.RoomSize(rooms.UserRoom(userID))})
}

// PrivateChats returns the tutor's inbox, the same list fetch_private_chats emits.
func (h *UserHandler) PrivateChats(c *gin.Context) {
	tutorID := c.Param("user_id")
	if !rooms.ValidID(tutorID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	chats, err := h.inbox.PrivateChats(c.Request.Context(), tutorID)
	if err != nil {
		l := pkglog.Ctx(c.Request.Context())
		l.Error().Err(err).Str(pkglog.FieldUserID, tutorID).Msg("load private chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load private chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tutorId": tutorID, "chats": chats})
}
