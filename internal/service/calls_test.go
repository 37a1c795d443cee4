package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tutorhub/internal/events"
	"tutorhub/internal/mocks"
	"tutorhub/internal/models"
	"tutorhub/internal/repositories"
	"tutorhub/internal/rooms"
)

const callRoom = "videocall_c1_s1_t1"

func newCallService(t *testing.T) (*CallService, *recordingEmitter, *mocks.LookupMock) {
	t.Helper()
	em := newRecordingEmitter()
	lookup := new(mocks.LookupMock)
	svc := NewCallService(em, rooms.NewTracker(), lookup)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, em, lookup
}

func TestJoinCallRoomAloneReceivesEmptyRoster(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1", Title: "Go 101", TutorID: "t1"}, nil).Once()

	require.NoError(t, svc.JoinCallRoom(context.Background(), "student-conn", callRoom))

	assert.Equal(t, []any{[]string{}}, em.toConn("student-conn", events.AllUsers))

	requests := em.toRoom(rooms.UserRoom("t1"), events.CallRequested)
	require.Len(t, requests, 1)
	assert.Equal(t, events.CallRequest{
		RoomID:      callRoom,
		StudentID:   "s1",
		CourseID:    "c1",
		CourseTitle: "Go 101",
		Timestamp:   time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}, requests[0])

	members, ok := svc.RoomStatus(callRoom)
	assert.True(t, ok)
	assert.Equal(t, []string{"student-conn"}, members)
	assert.True(t, em.InRoom("student-conn", callRoom))
	lookup.AssertExpectations(t)
}

func TestTutorAcceptsByJoiningSameRoom(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1", Title: "Go 101"}, nil).Once()

	require.NoError(t, svc.JoinCallRoom(context.Background(), "student-conn", callRoom))
	em.reset()

	require.NoError(t, svc.JoinCallRoom(context.Background(), "tutor-conn", callRoom))

	assert.Equal(t, []any{[]string{"student-conn"}}, em.toConn("tutor-conn", events.AllUsers))
	assert.Equal(t, []any{[]string{"student-conn", "tutor-conn"}}, em.toConn("student-conn", events.AllUsers))
	assert.Empty(t, em.roomEvents(events.CallRequested), "tutor join does not ring again")
	lookup.AssertExpectations(t)
}

func TestJoinCallRoomMalformedID(t *testing.T) {
	svc, em, lookup := newCallService(t)

	err := svc.JoinCallRoom(context.Background(), "student-conn", "videocall_c1_s1")
	assert.ErrorIs(t, err, ErrCallRejected)

	rejections := em.toConn("student-conn", events.CallRejected)
	require.Len(t, rejections, 1)
	assert.Equal(t, ReasonInvalidRoom, rejections[0].(events.CallRejection).Reason)
	assert.Equal(t, 0, svc.ActiveRooms())
	assert.Empty(t, em.toConn("student-conn", events.AllUsers))
	lookup.AssertNotCalled(t, "Course", mock.Anything, mock.Anything)
}

func TestJoinCallRoomMissingSegment(t *testing.T) {
	svc, em, _ := newCallService(t)

	err := svc.JoinCallRoom(context.Background(), "student-conn", "videocall_c1__t1")
	assert.ErrorIs(t, err, ErrCallRejected)
	rejections := em.toConn("student-conn", events.CallRejected)
	require.Len(t, rejections, 1)
	assert.Equal(t, ReasonMissingParticipant, rejections[0].(events.CallRejection).Reason)
}

func TestJoinCallRoomTutorNotAvailable(t *testing.T) {
	svc, em, lookup := newCallService(t)
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1", Title: "Go 101"}, nil).Once()

	err := svc.JoinCallRoom(context.Background(), "student-conn", callRoom)
	assert.ErrorIs(t, err, ErrCallRejected)

	rejections := em.toConn("student-conn", events.CallRejected)
	require.Len(t, rejections, 1)
	assert.Equal(t, ReasonTutorUnavailable, rejections[0].(events.CallRejection).Reason)
	assert.Empty(t, em.roomEvents(events.CallRequested))
	_, ok := svc.RoomStatus(callRoom)
	assert.False(t, ok)
}

func TestJoinCallRoomCourseNotFound(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{}, repositories.ErrCourseNotFound).Once()

	err := svc.JoinCallRoom(context.Background(), "student-conn", callRoom)
	assert.ErrorIs(t, err, ErrCallRejected)
	rejections := em.toConn("student-conn", events.CallRejected)
	require.Len(t, rejections, 1)
	assert.Equal(t, ReasonCourseNotFound, rejections[0].(events.CallRejection).Reason)
	assert.Empty(t, em.roomEvents(events.CallRequested))
}

func TestJoinCallRoomLookupFailure(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{}, assert.AnError).Once()

	err := svc.JoinCallRoom(context.Background(), "student-conn", callRoom)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeInternal, svcErr.Code)
	assert.Equal(t, 0, svc.ActiveRooms())
}

func TestDisconnectUpdatesRemainingPeers(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1"}, nil)

	require.NoError(t, svc.JoinCallRoom(context.Background(), "student-conn", callRoom))
	require.NoError(t, svc.JoinCallRoom(context.Background(), "tutor-conn", callRoom))
	em.reset()

	svc.HandleDisconnect("tutor-conn")
	assert.Equal(t, []any{[]string{"student-conn"}}, em.toConn("student-conn", events.AllUsers))
	members, ok := svc.RoomStatus(callRoom)
	require.True(t, ok)
	assert.NotContains(t, members, "tutor-conn")

	svc.HandleDisconnect("student-conn")
	_, ok = svc.RoomStatus(callRoom)
	assert.False(t, ok, "empty roster is removed")
	assert.Equal(t, 0, svc.ActiveRooms())
}

func TestLeaveCallRoom(t *testing.T) {
	svc, em, lookup := newCallService(t)
	em.Join("tutor-conn", rooms.UserRoom("t1"))
	lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1"}, nil)

	require.NoError(t, svc.JoinCallRoom(context.Background(), "student-conn", callRoom))
	require.NoError(t, svc.JoinCallRoom(context.Background(), "tutor-conn", callRoom))
	em.reset()

	svc.LeaveCallRoom(context.Background(), "student-conn", callRoom)
	assert.False(t, em.InRoom("student-conn", callRoom))
	assert.Equal(t, []any{[]string{"tutor-conn"}}, em.toConn("tutor-conn", events.AllUsers))

	em.reset()
	svc.LeaveCallRoom(context.Background(), "stranger", callRoom)
	assert.Empty(t, em.toConn("tutor-conn", events.AllUsers))
}

func TestSignalRelay(t *testing.T) {
	svc, em, _ := newCallService(t)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

	svc.SendingSignal("caller-conn", events.SendingSignalPayload{UserToSignal: "callee-conn", CallerID: "caller-conn", Signal: offer})
	got := em.toConn("callee-conn", events.UserJoined)
	require.Len(t, got, 1)
	assert.Equal(t, events.PeerSignal{Signal: offer, CallerID: "caller-conn"}, got[0])

	answer := json.RawMessage(`{"type":"answer"}`)
	svc.ReturningSignal("callee-conn", events.ReturningSignalPayload{CallerID: "caller-conn", Signal: answer})
	back := em.toConn("caller-conn", events.ReceivingReturned)
	require.Len(t, back, 1)
	assert.Equal(t, events.ReturnedSignal{Signal: answer, ID: "callee-conn"}, back[0])
}

func TestSendingSignalDefaultsCallerToConnection(t *testing.T) {
	svc, em, _ := newCallService(t)
	svc.SendingSignal("caller-conn", events.SendingSignalPayload{UserToSignal: "callee-conn", Signal: json.RawMessage(`{}`)})
	got := em.toConn("callee-conn", events.UserJoined)
	require.Len(t, got, 1)
	assert.Equal(t, "caller-conn", got[0].(events.PeerSignal).CallerID)
}

func TestRejectCallNotifiesStudent(t *testing.T) {
	svc, em, _ := newCallService(t)

	require.NoError(t, svc.RejectCall(context.Background(), events.CallReject{RoomID: callRoom, TutorID: "t1"}))
	got := em.toRoom(rooms.UserRoom("s1"), events.CallRejected)
	require.Len(t, got, 1)
	assert.Equal(t, events.CallRejection{RoomID: callRoom, Reason: ReasonTutorDeclined, TutorID: "t1"}, got[0])

	err := svc.RejectCall(context.Background(), events.CallReject{RoomID: "bogus"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeBadRequest, svcErr.Code)
}
