package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutorhub/internal/directory"
	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/repositories"
	"tutorhub/internal/rooms"
)

// Notifier pushes notification events to user rooms.
type Notifier struct {
	emitter Emitter
	lookup  directory.Lookup
	now     func() time.Time
}

func NewNotifier(emitter Emitter, lookup directory.Lookup) *Notifier {
	return &Notifier{emitter: emitter, lookup: lookup, now: time.Now}
}

// Notify delivers n to every connection of userID. A user with no connections is not an error.
func (n *Notifier) Notify(userID string, note events.Notification) {
	if userID == "" {
		return
	}
	if note.Timestamp.IsZero() {
		note.Timestamp = n.now().UTC()
	}
	n.emitter.EmitToRoom(rooms.UserRoom(userID), events.Notify, note)
}

// BroadcastCommunity notifies every enrolled user of the course except the sender
// and returns how many users were targeted. An unknown course targets nobody.
func (n *Notifier) BroadcastCommunity(ctx context.Context, p events.CommunityNotification) (int, error) {
	l := pkglog.Ctx(ctx)
	course, err := n.lookup.Course(ctx, p.CommunityID)
	if errors.Is(err, repositories.ErrCourseNotFound) {
		l.Debug().Str(pkglog.FieldRoomID, p.CommunityID).Msg("community notification for unknown course skipped")
		return 0, nil
	}
	if err != nil {
		return 0, internal("Failed to send notification", err)
	}

	title := p.CourseTitle
	if title == "" {
		title = course.Title
	}
	now := n.now().UTC()
	sent := 0
	for _, userID := range course.Enrollments {
		if userID == p.SenderID {
			continue
		}
		n.Notify(userID, events.Notification{
			Type:        events.NotificationChatMessage,
			Message:     p.Message,
			CourseID:    course.ID,
			CommunityID: p.CommunityID,
			CourseTitle: title,
			SenderID:    p.SenderID,
			Timestamp:   now,
		})
		sent++
	}
	return sent, nil
}

// Purchase confirms a course purchase to the buyer. It returns
// repositories.ErrCourseNotFound when the course does not resolve.
// The cached course is dropped first so later broadcasts see the new enrollment.
func (n *Notifier) Purchase(ctx context.Context, p events.PurchaseNotification) error {
	if err := n.lookup.Invalidate(ctx, p.CourseID); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("course_id", p.CourseID).Msg("course cache invalidation failed")
	}

	course, err := n.lookup.Course(ctx, p.CourseID)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldUserID, p.UserID).Str("course_id", p.CourseID).Msg("purchase notification not sent")
		return fmt.Errorf("purchase notification: %w", err)
	}

	title := p.CourseTitle
	if title == "" {
		title = course.Title
	}
	n.Notify(p.UserID, events.Notification{
		Type:        events.NotificationCoursePurchase,
		Message:     fmt.Sprintf("You have successfully purchased %s", title),
		CourseID:    course.ID,
		CourseTitle: title,
	})
	return nil
}
