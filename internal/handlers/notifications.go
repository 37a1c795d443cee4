package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/repositories"
	"tutorhub/internal/telemetry"
)

type NotificationHandler struct {
	purchases Purchases
	audit     *telemetry.AuditEmitter
}

func NewNotificationHandler(purchases Purchases, audit *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{purchases: purchases, audit: audit}
}

// Purchase lets a payment flow confirm a purchase to the buyer's live connections.
func (h *NotificationHandler) Purchase(c *gin.Context) {
	var req events.PurchaseNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and courseId are required"})
		return
	}

	err := h.purchases.Purchase(c.Request.Context(), req)
	switch {
	case errors.Is(err, repositories.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	case err != nil:
		l := pkglog.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("purchase notification failed")
		h.audit.Emit(c.Request.Context(), "ERROR", "purchase notification failed", requestIDFromContext(c), &req.UserID,
			map[string]any{"course_id": req.CourseID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched"})
}
