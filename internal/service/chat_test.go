package service

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tutorhub/internal/config"
	"tutorhub/internal/events"
	"tutorhub/internal/mocks"
	"tutorhub/internal/models"
	"tutorhub/internal/repositories"
	"tutorhub/internal/rooms"
	"tutorhub/internal/storage"
)

var sentAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type chatFixture struct {
	svc      *ChatService
	em       *recordingEmitter
	messages *mocks.MessageRepositoryMock
	lookup   *mocks.LookupMock
	images   *mocks.ImageUploaderMock
	audit    *mocks.AuditorMock
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		em:       newRecordingEmitter(),
		messages: new(mocks.MessageRepositoryMock),
		lookup:   new(mocks.LookupMock),
		images:   new(mocks.ImageUploaderMock),
		audit:    new(mocks.AuditorMock),
	}
	notifier := NewNotifier(f.em, f.lookup)
	f.svc = NewChatService(f.em, f.messages, f.lookup, f.images, notifier, f.audit, ChatOptions{})
	f.svc.now = func() time.Time { return sentAt }
	return f
}

func savedCopy(id string) func(models.ChatMessage) models.ChatMessage {
	return func(m models.ChatMessage) models.ChatMessage {
		m.ID = id
		if m.Status == "" {
			m.Status = models.StatusSent
		}
		return m
	}
}

func TestSendCommunityMessageBroadcastsOnce(t *testing.T) {
	f := newChatFixture(t)
	in := events.CommunityMessage{
		CommunityID: "c1",
		Message: events.ChatMessageInput{
			Sender:    "Alice",
			Content:   "hi",
			Timestamp: events.Timestamp{Time: sentAt},
			Status:    "sent",
		},
	}

	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.CommunityID != nil && *m.CommunityID == "c1" && m.PrivateChatID == nil &&
			m.Content == "hi" && m.Sender == "Alice" && m.ImageURL == nil && m.Timestamp.Equal(sentAt)
	})).Return(savedCopy("m1")(models.ChatMessage{
		CommunityID: models.StringPtr("c1"), Sender: "Alice", Content: "hi", Timestamp: sentAt,
	}), nil).Once()

	require.NoError(t, f.svc.SendCommunityMessage(context.Background(), "conn-a", in))

	broadcasts := f.em.roomEvents(events.ReceiveMessage)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, rooms.CommunityRoom("c1"), broadcasts[0].Target)
	msg := broadcasts[0].Data.(events.ChatBroadcast)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hi", msg.Content)
	assert.Nil(t, msg.ImageURL)
	f.messages.AssertExpectations(t)
	f.images.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendCommunityImageMessage(t *testing.T) {
	f := newChatFixture(t)
	img := &events.ImagePayload{Data: "aGk=", Name: "pic.png", Type: "image/png"}
	in := events.CommunityMessage{CommunityID: "c1", SenderID: "u1", Image: img, Message: events.ChatMessageInput{Sender: "Alice"}}

	f.images.On("Upload", mock.Anything, "u1", storage.Image{Data: "aGk=", Name: "pic.png", Type: "image/png"}).
		Return(storage.StoredImage{Key: "chat-images/u1-1-pic.png", URL: "https://cdn/chat-images/u1-1-pic.png"}, nil).Once()
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.ImageURL != nil && *m.ImageURL == "https://cdn/chat-images/u1-1-pic.png" && m.Content == ""
	})).Return(models.ChatMessage{ID: "m2", CommunityID: models.StringPtr("c1"), ImageURL: models.StringPtr("https://cdn/chat-images/u1-1-pic.png")}, nil).Once()

	require.NoError(t, f.svc.SendCommunityMessage(context.Background(), "conn-a", in))

	broadcasts := f.em.toRoom("community_c1", events.ReceiveMessage)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "https://cdn/chat-images/u1-1-pic.png", *broadcasts[0].(events.ChatBroadcast).ImageURL)
}

func TestSendCommunityMessageSaveFailureDoesNotBroadcast(t *testing.T) {
	f := newChatFixture(t)
	in := events.CommunityMessage{CommunityID: "c1", Message: events.ChatMessageInput{Sender: "Alice", Content: "hi"}}

	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	f.audit.On("Emit", mock.Anything, "error", "chat message not persisted", "conn-a", (*string)(nil), mock.Anything).Once()

	err := f.svc.SendCommunityMessage(context.Background(), "conn-a", in)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeInternal, svcErr.Code)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, f.em.roomEvents(events.ReceiveMessage))
	f.audit.AssertExpectations(t)
}

func TestSendImageRejectedBeforePersist(t *testing.T) {
	f := newChatFixture(t)
	in := events.CommunityMessage{
		CommunityID: "c1",
		Image:       &events.ImagePayload{Data: "aGk=", Name: "a.gif", Type: "image/gif"},
		Message:     events.ChatMessageInput{Sender: "Alice"},
	}
	f.images.On("Upload", mock.Anything, "Alice", mock.Anything).Return(nil, storage.ErrImageTooLarge).Once()

	err := f.svc.SendCommunityMessage(context.Background(), "conn-a", in)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeBadRequest, svcErr.Code)
	f.messages.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	assert.Empty(t, f.em.roomEvents(events.ReceiveMessage))
}

func TestSendImageSaveFailureRemovesUpload(t *testing.T) {
	f := newChatFixture(t)
	store, err := storage.NewLocalStorage(config.LocalConfig{BasePath: t.TempDir(), PublicURL: "http://localhost:5000/media"})
	require.NoError(t, err)
	f.svc.images = storage.NewImageUploader(store, "chat", time.Hour, 0)

	in := events.PrivateMessage{
		PrivateChatRef: events.PrivateChatRef{CourseID: "c1", StudentID: "s1", TutorID: "t1"},
		SenderID:       "s1",
		Image:          &events.ImagePayload{Data: "aGk=", Name: "a.png", Type: "image/png"},
		Message:        events.ChatMessageInput{Sender: "Sam"},
	}
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.ImageURL != nil
	})).Return(nil, assert.AnError).Once()
	f.audit.On("Emit", mock.Anything, "error", "chat message not persisted", "conn-a", mock.Anything, mock.Anything).Once()

	err = f.svc.SendPrivateMessage(context.Background(), "conn-a", in)
	require.Error(t, err)

	var left []string
	require.NoError(t, filepath.WalkDir(store.BasePath(), func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			left = append(left, path)
		}
		return err
	}))
	assert.Empty(t, left)
	assert.Empty(t, f.em.roomEvents(events.ReceivePrivateMessage))
	f.messages.AssertExpectations(t)
}

func TestSendImageSaveFailureDiscardsByKey(t *testing.T) {
	f := newChatFixture(t)
	in := events.CommunityMessage{
		CommunityID: "c1",
		SenderID:    "u1",
		Image:       &events.ImagePayload{Data: "aGk=", Name: "a.png", Type: "image/png"},
		Message:     events.ChatMessageInput{Sender: "Alice"},
	}
	f.images.On("Upload", mock.Anything, "u1", mock.Anything).
		Return(storage.StoredImage{Key: "chat-images/u1-1-a.png", URL: "https://cdn/chat-images/u1-1-a.png"}, nil).Once()
	f.images.On("Discard", mock.Anything, "chat-images/u1-1-a.png").Return(nil).Once()
	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	f.audit.On("Emit", mock.Anything, "error", "chat message not persisted", "conn-a", mock.Anything, mock.Anything).Once()

	require.Error(t, f.svc.SendCommunityMessage(context.Background(), "conn-a", in))
	f.images.AssertExpectations(t)
}

func privateInput(sender, content string) events.PrivateMessage {
	return events.PrivateMessage{
		PrivateChatRef: events.PrivateChatRef{CourseID: "c1", StudentID: "s1", TutorID: "t1"},
		Message:        events.ChatMessageInput{Sender: sender, Content: content},
	}
}

func expectPrivateSave(f *chatFixture) {
	f.messages.On("Save", mock.Anything, mock.MatchedBy(func(m models.ChatMessage) bool {
		return m.PrivateChatID != nil && *m.PrivateChatID == "private_c1_s1_t1" && m.CommunityID == nil
	})).Return(func(_ context.Context, m models.ChatMessage) models.ChatMessage {
		return savedCopy("pm1")(m)
	}, nil).Once()
}

func expectLookups(f *chatFixture) {
	f.lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1", Title: "Go 101", TutorID: "t1"}, nil)
	f.lookup.On("User", mock.Anything, "s1").Return(models.User{ID: "s1", Name: "Sam"}, nil)
	f.lookup.On("User", mock.Anything, "t1").Return(models.User{ID: "t1", Name: "Mr Smith"}, nil)
}

func TestPrivateMessageFromTutorNotifiesStudent(t *testing.T) {
	f := newChatFixture(t)
	expectPrivateSave(f)
	expectLookups(f)

	require.NoError(t, f.svc.SendPrivateMessage(context.Background(), "tutor-conn", privateInput("mr smith", "see you at 5")))

	broadcasts := f.em.toRoom("private_c1_s1_t1", events.ReceivePrivateMessage)
	require.Len(t, broadcasts, 1)
	b := broadcasts[0].(events.ChatBroadcast)
	assert.Equal(t, "t1", b.SenderID)
	assert.Equal(t, "Go 101", b.CourseTitle)
	assert.Equal(t, "Sam", b.StudentName)

	notes := f.em.toRoom(rooms.UserRoom("s1"), events.Notify)
	require.Len(t, notes, 1)
	note := notes[0].(events.Notification)
	assert.Equal(t, events.NotificationChatMessage, note.Type)
	assert.Equal(t, "t1", note.SenderID)
	assert.Equal(t, "see you at 5", note.Message)
	assert.Empty(t, f.em.toRoom(rooms.UserRoom("t1"), events.Notify))

	assert.Len(t, f.em.toRoom(rooms.UserRoom("t1"), events.RefreshPrivateChats), 1)
}

func TestPrivateMessageFromStudentNotifiesTutor(t *testing.T) {
	f := newChatFixture(t)
	expectPrivateSave(f)
	expectLookups(f)

	require.NoError(t, f.svc.SendPrivateMessage(context.Background(), "student-conn", privateInput("Sam", "question")))

	notes := f.em.toRoom(rooms.UserRoom("t1"), events.Notify)
	require.Len(t, notes, 1)
	assert.Equal(t, "s1", notes[0].(events.Notification).SenderID)
	assert.Empty(t, f.em.toRoom(rooms.UserRoom("s1"), events.Notify))
	assert.Equal(t, []any{events.InboxRefresh{TutorID: "t1"}}, f.em.toRoom(rooms.UserRoom("t1"), events.RefreshPrivateChats))
}

func TestPrivateMessageExplicitSenderIDWins(t *testing.T) {
	f := newChatFixture(t)
	expectPrivateSave(f)
	expectLookups(f)

	in := privateInput("Mr Smith", "same name as the tutor")
	in.SenderID = "s1"
	require.NoError(t, f.svc.SendPrivateMessage(context.Background(), "student-conn", in))

	assert.Len(t, f.em.toRoom(rooms.UserRoom("t1"), events.Notify), 1)
	assert.Empty(t, f.em.toRoom(rooms.UserRoom("s1"), events.Notify))
}

func TestPrivateMessageLookupMissesUsePlaceholders(t *testing.T) {
	f := newChatFixture(t)
	expectPrivateSave(f)
	f.lookup.On("Course", mock.Anything, "c1").Return(models.Course{}, repositories.ErrCourseNotFound)
	f.lookup.On("User", mock.Anything, mock.Anything).Return(models.User{}, repositories.ErrUserNotFound)

	require.NoError(t, f.svc.SendPrivateMessage(context.Background(), "student-conn", privateInput("Sam", "hello")))

	broadcasts := f.em.toRoom("private_c1_s1_t1", events.ReceivePrivateMessage)
	require.Len(t, broadcasts, 1)
	b := broadcasts[0].(events.ChatBroadcast)
	assert.Equal(t, "Unknown Course", b.CourseTitle)
	assert.Equal(t, "Unknown Student", b.StudentName)
	assert.Equal(t, "s1", b.SenderID)
}

func TestPrivateMessagePreviewIsTruncated(t *testing.T) {
	f := newChatFixture(t)
	expectPrivateSave(f)
	expectLookups(f)
	long := strings.Repeat("é", 60)

	require.NoError(t, f.svc.SendPrivateMessage(context.Background(), "student-conn", privateInput("Sam", long)))

	notes := f.em.toRoom(rooms.UserRoom("t1"), events.Notify)
	require.Len(t, notes, 1)
	assert.Equal(t, strings.Repeat("é", 50)+"...", notes[0].(events.Notification).Message)
}

func TestPrivateMessageSaveFailure(t *testing.T) {
	f := newChatFixture(t)
	f.messages.On("Save", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	f.audit.On("Emit", mock.Anything, "error", mock.Anything, "student-conn", mock.Anything, mock.Anything).Once()

	err := f.svc.SendPrivateMessage(context.Background(), "student-conn", privateInput("Sam", "hello"))
	require.Error(t, err)
	assert.Empty(t, f.em.roomEvents(events.ReceivePrivateMessage))
	assert.Empty(t, f.em.roomEvents(events.Notify))
	f.lookup.AssertNotCalled(t, "Course", mock.Anything, mock.Anything)
}

func TestJoinCommunityReplaysHistoryToJoinerOnly(t *testing.T) {
	f := newChatFixture(t)
	history := []models.ChatMessage{{ID: "m1", Content: "first"}, {ID: "m2", Content: "second"}}
	f.messages.On("CommunityHistory", mock.Anything, "c1", 50).Return(history, nil).Once()

	require.NoError(t, f.svc.JoinCommunity(context.Background(), "conn-a", "c1"))

	assert.True(t, f.em.InRoom("conn-a", "community_c1"))
	assert.Equal(t, []any{history}, f.em.toConn("conn-a", events.MessageHistory))
	assert.Empty(t, f.em.roomEvents(events.MessageHistory))
}

func TestJoinCommunityHistoryFailure(t *testing.T) {
	f := newChatFixture(t)
	f.messages.On("CommunityHistory", mock.Anything, "c1", 50).Return(nil, assert.AnError).Once()

	err := f.svc.JoinCommunity(context.Background(), "conn-a", "c1")
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeInternal, svcErr.Code)
	assert.Empty(t, f.em.toConn("conn-a", events.MessageHistory))
}

func TestJoinPrivateChatUsesCanonicalRoom(t *testing.T) {
	f := newChatFixture(t)
	f.messages.On("PrivateHistory", mock.Anything, "private_c1_s1_t1", 50).Return([]models.ChatMessage{}, nil).Twice()

	ref := events.PrivateChatRef{CourseID: "c1", StudentID: "s1", TutorID: "t1"}
	require.NoError(t, f.svc.JoinPrivateChat(context.Background(), "student-conn", ref))
	require.NoError(t, f.svc.JoinPrivateChat(context.Background(), "tutor-conn", ref))

	assert.Equal(t, 2, f.em.RoomSize("private_c1_s1_t1"))
	f.messages.AssertExpectations(t)
}

func TestJoinUserIgnoresEmptyID(t *testing.T) {
	f := newChatFixture(t)
	assert.False(t, f.svc.JoinUser(context.Background(), "conn-a", ""))
	assert.Empty(t, f.em.rooms)

	assert.True(t, f.svc.JoinUser(context.Background(), "conn-a", "u1"))
	assert.True(t, f.svc.JoinUser(context.Background(), "conn-a", "u1"))
	assert.Equal(t, 1, f.em.RoomSize("user_u1"))
}

func TestFetchPrivateChatsDropsUnresolved(t *testing.T) {
	f := newChatFixture(t)
	latest := []models.ChatMessage{
		{ID: "m3", PrivateChatID: models.StringPtr("private_c2_s2_t1"), Timestamp: sentAt.Add(2 * time.Hour)},
		{ID: "m2", PrivateChatID: models.StringPtr("private_gone_s1_t1"), Timestamp: sentAt.Add(time.Hour)},
		{ID: "m1", PrivateChatID: models.StringPtr("private_c1_s1_t1"), Timestamp: sentAt},
	}
	f.messages.On("LatestPrivateChatsForTutor", mock.Anything, "t1").Return(latest, nil).Once()
	f.lookup.On("Course", mock.Anything, "c1").Return(models.Course{ID: "c1", Title: "Go 101"}, nil)
	f.lookup.On("Course", mock.Anything, "c2").Return(models.Course{ID: "c2", Title: "Rust 101"}, nil)
	f.lookup.On("Course", mock.Anything, "gone").Return(models.Course{}, repositories.ErrCourseNotFound)
	f.lookup.On("User", mock.Anything, "s1").Return(models.User{ID: "s1", Name: "Sam"}, nil)
	f.lookup.On("User", mock.Anything, "s2").Return(models.User{ID: "s2", Name: "Sue"}, nil)

	require.NoError(t, f.svc.FetchPrivateChats(context.Background(), "tutor-conn", "t1"))

	sent := f.em.toConn("tutor-conn", events.PrivateChats)
	require.Len(t, sent, 1)
	chats := sent[0].([]models.PrivateChatSummary)
	require.Len(t, chats, 2)
	assert.Equal(t, "private_c2_s2_t1", chats[0].PrivateChatID)
	assert.Equal(t, "Sue", chats[0].StudentName)
	assert.Equal(t, "Rust 101", chats[0].CourseTitle)
	assert.Equal(t, "private_c1_s1_t1", chats[1].PrivateChatID)
}

func TestFetchPrivateChatsRepoFailure(t *testing.T) {
	f := newChatFixture(t)
	f.messages.On("LatestPrivateChatsForTutor", mock.Anything, "t1").Return(nil, assert.AnError).Once()

	err := f.svc.FetchPrivateChats(context.Background(), "tutor-conn", "t1")
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Failed to fetch private chats", svcErr.Message)
	assert.Empty(t, f.em.toConn("tutor-conn", events.PrivateChats))
}

func TestUpdateMessageStatus(t *testing.T) {
	f := newChatFixture(t)
	f.messages.On("UpdateStatus", mock.Anything, "m1", "read").
		Return(models.ChatMessage{ID: "m1", PrivateChatID: models.StringPtr("private_c1_s1_t1"), Status: "read"}, nil).Once()
	f.messages.On("UpdateStatus", mock.Anything, "nope", "read").
		Return(nil, repositories.ErrMessageNotFound).Once()

	require.NoError(t, f.svc.UpdateMessageStatus(context.Background(), "conn-a", events.StatusUpdate{MessageID: "m1", Status: "read"}))
	assert.Equal(t, []any{events.MessageStatus{ID: "m1", Status: "read"}}, f.em.toRoom("private_c1_s1_t1", events.MessageStatusChanged))

	err := f.svc.UpdateMessageStatus(context.Background(), "conn-a", events.StatusUpdate{MessageID: "nope", Status: "read"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, events.CodeNotFound, svcErr.Code)
}

func TestMarkNotificationReadChangesNothing(t *testing.T) {
	f := newChatFixture(t)
	f.svc.MarkNotificationRead(context.Background(), "conn-a", events.PrivateChatRef{CourseID: "c1", StudentID: "s1", TutorID: "t1"})

	assert.Empty(t, f.em.roomEmits)
	assert.Empty(t, f.em.connEmits)
	f.messages.AssertExpectations(t)
}
