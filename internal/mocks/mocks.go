package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tutorhub/internal/models"
	"tutorhub/internal/repositories"
	"tutorhub/internal/storage"
)

var (
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.CourseRepository  = (*CourseRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	var saved models.ChatMessage
	switch val := args.Get(0).(type) {
	case models.ChatMessage:
		saved = val
	case func(context.Context, models.ChatMessage) models.ChatMessage:
		saved = val(ctx, msg)
	}
	return saved, args.Error(1)
}

func (m *MessageRepositoryMock) CommunityHistory(ctx context.Context, communityID string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, communityID, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) PrivateHistory(ctx context.Context, privateChatID string, limit int) ([]models.ChatMessage, error) {
	args := m.Called(ctx, privateChatID, limit)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LatestPrivateChatsForTutor(ctx context.Context, tutorID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, tutorID)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateStatus(ctx context.Context, messageID, status string) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID, status)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

type CourseRepositoryMock struct {
	mock.Mock
}

func (m *CourseRepositoryMock) GetCourse(ctx context.Context, courseID string) (models.Course, error) {
	args := m.Called(ctx, courseID)
	var course models.Course
	if val := args.Get(0); val != nil {
		course = val.(models.Course)
	}
	return course, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

// LookupMock stands in for the cached course and user directory.
type LookupMock struct {
	mock.Mock
}

func (m *LookupMock) Course(ctx context.Context, courseID string) (models.Course, error) {
	args := m.Called(ctx, courseID)
	var course models.Course
	if val := args.Get(0); val != nil {
		course = val.(models.Course)
	}
	return course, args.Error(1)
}

func (m *LookupMock) User(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *LookupMock) Invalidate(ctx context.Context, courseIDs ...string) error {
	args := m.Called(ctx, courseIDs)
	return args.Error(0)
}

type ImageUploaderMock struct {
	mock.Mock
}

func (m *ImageUploaderMock) Upload(ctx context.Context, senderID string, img storage.Image) (storage.StoredImage, error) {
	args := m.Called(ctx, senderID, img)
	var stored storage.StoredImage
	if val := args.Get(0); val != nil {
		stored = val.(storage.StoredImage)
	}
	return stored, args.Error(1)
}

func (m *ImageUploaderMock) Discard(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, level, text, requestID string, userID *string, fields map[string]any) {
	m.Called(ctx, level, text, requestID, userID, fields)
}
