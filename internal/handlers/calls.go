package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	calls CallRooms
}

func NewCallHandler(calls CallRooms) *CallHandler {
	return &CallHandler{calls: calls}
}

// RoomStatus returns the current roster of a call room.
func (h *CallHandler) RoomStatus(c *gin.Context) {
	roomID := c.Param("room_id")
	members, ok := h.calls.RoomStatus(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "call room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "members": members, "size": len(members)})
}
