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

// Rejection reasons sent with call_rejected.
const (
	ReasonInvalidRoom        = "Invalid room ID format"
	ReasonMissingParticipant = "Missing course, student or tutor ID in room ID"
	ReasonCourseNotFound     = "Course not found"
	ReasonTutorUnavailable   = "Tutor not available"
	ReasonTutorDeclined      = "Tutor declined the call"
)

// CallService drives call-room joins, peer signal relay and teardown.
type CallService struct {
	emitter Emitter
	tracker *rooms.Tracker
	lookup  directory.Lookup
	now     func() time.Time
}

func NewCallService(emitter Emitter, tracker *rooms.Tracker, lookup directory.Lookup) *CallService {
	return &CallService{emitter: emitter, tracker: tracker, lookup: lookup, now: time.Now}
}

// JoinCallRoom validates roomID and adds connID to the call roster. A student
// join also requires a known course and a connected tutor, and rings the tutor.
// The tutor accepts by joining the same room.
func (s *CallService) JoinCallRoom(ctx context.Context, connID, roomID string) error {
	t, err := rooms.ParseCallRoom(roomID)
	if err != nil {
		reason := ReasonInvalidRoom
		if errors.Is(err, rooms.ErrMissingParticipants) {
			reason = ReasonMissingParticipant
		}
		return s.reject(connID, roomID, reason)
	}

	tutorRoom := rooms.UserRoom(t.TutorID)
	isTutor := s.emitter.InRoom(connID, tutorRoom)

	var courseTitle string
	if !isTutor {
		course, err := s.lookup.Course(ctx, t.CourseID)
		if errors.Is(err, repositories.ErrCourseNotFound) {
			return s.reject(connID, roomID, ReasonCourseNotFound)
		}
		if err != nil {
			return internal("Failed to join call", err)
		}
		if s.emitter.RoomSize(tutorRoom) == 0 {
			return s.reject(connID, roomID, ReasonTutorUnavailable)
		}
		courseTitle = course.Title
	}

	s.emitter.Join(connID, roomID)
	others, roster := s.tracker.Join(roomID, connID)
	s.emitter.EmitToConn(connID, events.AllUsers, others)
	for _, member := range others {
		s.emitter.EmitToConn(member, events.AllUsers, roster)
	}

	if !isTutor {
		s.emitter.EmitToRoom(tutorRoom, events.CallRequested, events.CallRequest{
			RoomID:      roomID,
			StudentID:   t.StudentID,
			CourseID:    t.CourseID,
			CourseTitle: courseTitle,
			Timestamp:   s.now().UTC(),
		})
	}
	return nil
}

// LeaveCallRoom removes connID from one call room and updates the remaining peers.
func (s *CallService) LeaveCallRoom(ctx context.Context, connID, roomID string) {
	s.emitter.Leave(connID, roomID)
	remaining, ok := s.tracker.Leave(roomID, connID)
	if !ok {
		return
	}
	s.broadcastRoster(remaining)
	l := pkglog.Ctx(ctx)
	l.Debug().Str(pkglog.FieldConnID, connID).Str(pkglog.FieldRoomID, roomID).Int("remaining", len(remaining)).Msg("left call room")
}

// SendingSignal relays an offer to the target connection with the caller attached.
func (s *CallService) SendingSignal(connID string, in events.SendingSignalPayload) {
	caller := in.CallerID
	if caller == "" {
		caller = connID
	}
	s.emitter.EmitToConn(in.UserToSignal, events.UserJoined, events.PeerSignal{Signal: in.Signal, CallerID: caller})
}

// ReturningSignal relays an answer back to the caller tagged with the responder.
func (s *CallService) ReturningSignal(connID string, in events.ReturningSignalPayload) {
	s.emitter.EmitToConn(in.CallerID, events.ReceivingReturned, events.ReturnedSignal{Signal: in.Signal, ID: connID})
}

// RejectCall tells the student named in the room id that the tutor declined.
func (s *CallService) RejectCall(ctx context.Context, in events.CallReject) error {
	t, err := rooms.ParseCallRoom(in.RoomID)
	if err != nil {
		return badRequest(ReasonInvalidRoom, err)
	}
	tutorID := in.TutorID
	if tutorID == "" {
		tutorID = t.TutorID
	}
	s.emitter.EmitToRoom(rooms.UserRoom(t.StudentID), events.CallRejected, events.CallRejection{
		RoomID:  in.RoomID,
		Reason:  ReasonTutorDeclined,
		TutorID: tutorID,
	})
	l := pkglog.Ctx(ctx)
	l.Info().Str(pkglog.FieldRoomID, in.RoomID).Str(pkglog.FieldUserID, t.StudentID).Msg("call declined by tutor")
	return nil
}

// HandleDisconnect drops connID from every call roster and updates the peers left behind.
func (s *CallService) HandleDisconnect(connID string) {
	for _, remaining := range s.tracker.RemoveEverywhere(connID) {
		s.broadcastRoster(remaining)
	}
}

// RoomStatus returns the roster of a call room and whether it exists.
func (s *CallService) RoomStatus(roomID string) ([]string, bool) {
	return s.tracker.Members(roomID)
}

// ActiveRooms is the number of call rooms with at least one member.
func (s *CallService) ActiveRooms() int {
	return s.tracker.Len()
}

func (s *CallService) broadcastRoster(roster []string) {
	for _, member := range roster {
		s.emitter.EmitToConn(member, events.AllUsers, roster)
	}
}

func (s *CallService) reject(connID, roomID, reason string) error {
	s.emitter.EmitToConn(connID, events.CallRejected, events.CallRejection{RoomID: roomID, Reason: reason})
	return fmt.Errorf("%w: %s", ErrCallRejected, reason)
}
