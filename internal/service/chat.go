package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"tutorhub/internal/directory"
	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/models"
	"tutorhub/internal/repositories"
	"tutorhub/internal/rooms"
	"tutorhub/internal/storage"
)

const (
	unknownCourse  = "Unknown Course"
	unknownStudent = "Unknown Student"
	imageOnlyText  = "Sent an image"
)

type ChatOptions struct {
	HistoryLimit  int
	PreviewLength int
}

// ChatService joins chat rooms, replays history and fans out chat messages.
type ChatService struct {
	emitter  Emitter
	messages repositories.MessageRepository
	lookup   directory.Lookup
	images   ImageUploader
	notifier *Notifier
	audit    Auditor
	opts     ChatOptions
	now      func() time.Time
}

func NewChatService(
	emitter Emitter,
	messages repositories.MessageRepository,
	lookup directory.Lookup,
	images ImageUploader,
	notifier *Notifier,
	audit Auditor,
	opts ChatOptions,
) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 50
	}
	if audit == nil {
		audit = nopAuditor{}
	}
	return &ChatService{
		emitter:  emitter,
		messages: messages,
		lookup:   lookup,
		images:   images,
		notifier: notifier,
		audit:    audit,
		opts:     opts,
		now:      time.Now,
	}
}

// JoinUser adds the connection to the user's room and reports whether it did.
// An empty id is ignored.
func (s *ChatService) JoinUser(ctx context.Context, connID, userID string) bool {
	if userID == "" {
		l := pkglog.Ctx(ctx)
		l.Warn().Str(pkglog.FieldConnID, connID).Msg("join_user without user id ignored")
		return false
	}
	s.emitter.Join(connID, rooms.UserRoom(userID))
	return true
}

// JoinCommunity joins the community room and replays its history to connID only.
func (s *ChatService) JoinCommunity(ctx context.Context, connID, communityID string) error {
	if communityID == "" {
		return badRequest("communityId is required", nil)
	}
	s.emitter.Join(connID, rooms.CommunityRoom(communityID))

	history, err := s.messages.CommunityHistory(ctx, communityID, s.opts.HistoryLimit)
	if err != nil {
		return internal("Failed to load messages", err)
	}
	s.emitter.EmitToConn(connID, events.MessageHistory, history)
	return nil
}

// JoinPrivateChat joins the canonical private chat room and replays its history to connID only.
func (s *ChatService) JoinPrivateChat(ctx context.Context, connID string, ref events.PrivateChatRef) error {
	chatID := rooms.PrivateChatID(ref.Triple())
	s.emitter.Join(connID, chatID)

	history, err := s.messages.PrivateHistory(ctx, chatID, s.opts.HistoryLimit)
	if err != nil {
		return internal("Failed to load private messages", err)
	}
	s.emitter.EmitToConn(connID, events.PrivateMessageHistory, history)
	return nil
}

// FetchPrivateChats sends the tutor's inbox to connID, newest conversation first.
func (s *ChatService) FetchPrivateChats(ctx context.Context, connID, tutorID string) error {
	if !rooms.ValidID(tutorID) {
		return badRequest("tutorId is required", nil)
	}
	chats, err := s.PrivateChats(ctx, tutorID)
	if err != nil {
		return internal("Failed to fetch private chats", err)
	}
	s.emitter.EmitToConn(connID, events.PrivateChats, chats)
	return nil
}

// PrivateChats builds the inbox of a tutor. Conversations whose course or student
// no longer resolves are dropped.
func (s *ChatService) PrivateChats(ctx context.Context, tutorID string) ([]models.PrivateChatSummary, error) {
	latest, err := s.messages.LatestPrivateChatsForTutor(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	resolved := make([]*models.PrivateChatSummary, len(latest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, msg := range latest {
		i, msg := i, msg
		g.Go(func() error {
			t, err := rooms.ParsePrivateChatID(*msg.PrivateChatID)
			if err != nil {
				return nil
			}
			course, err := s.lookup.Course(gctx, t.CourseID)
			if errors.Is(err, repositories.ErrCourseNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			student, err := s.lookup.User(gctx, t.StudentID)
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			resolved[i] = &models.PrivateChatSummary{
				PrivateChatID: *msg.PrivateChatID,
				CourseID:      t.CourseID,
				CourseTitle:   course.Title,
				StudentID:     t.StudentID,
				StudentName:   student.Name,
				TutorID:       t.TutorID,
				LatestMessage: msg,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chats := make([]models.PrivateChatSummary, 0, len(resolved))
	for _, c := range resolved {
		if c != nil {
			chats = append(chats, *c)
		}
	}
	return chats, nil
}

// SendCommunityMessage uploads the optional image, persists the message and
// broadcasts it to the community room. Nothing is broadcast if any step fails.
func (s *ChatService) SendCommunityMessage(ctx context.Context, connID string, in events.CommunityMessage) error {
	image, err := s.upload(ctx, senderKey(in.SenderID, in.Message.Sender), in.Image)
	if err != nil {
		return err
	}

	saved, err := s.messages.Save(ctx, models.ChatMessage{
		CommunityID: models.StringPtr(in.CommunityID),
		Sender:      in.Message.Sender,
		Content:     in.Message.Content,
		Timestamp:   in.Message.Timestamp.OrNow(s.now()),
		Status:      in.Message.Status,
		ImageURL:    models.StringPtr(image.URL),
	})
	if err != nil {
		s.discard(ctx, image)
		s.auditPersistFailure(ctx, connID, in.SenderID, rooms.CommunityRoom(in.CommunityID), err)
		return internal("Failed to send message", err)
	}

	s.emitter.EmitToRoom(rooms.CommunityRoom(in.CommunityID), events.ReceiveMessage, events.ChatBroadcast{
		ChatMessage: saved,
		SenderID:    in.SenderID,
		CourseID:    in.CommunityID,
	})
	return nil
}

// SendPrivateMessage persists and broadcasts a private message, then notifies
// the other participant.
func (s *ChatService) SendPrivateMessage(ctx context.Context, connID string, in events.PrivateMessage) error {
	t := in.Triple()
	chatID := rooms.PrivateChatID(t)

	image, err := s.upload(ctx, senderKey(in.SenderID, in.Message.Sender), in.Image)
	if err != nil {
		return err
	}

	saved, err := s.messages.Save(ctx, models.ChatMessage{
		PrivateChatID: models.StringPtr(chatID),
		Sender:        in.Message.Sender,
		Content:       in.Message.Content,
		Timestamp:     in.Message.Timestamp.OrNow(s.now()),
		Status:        in.Message.Status,
		ImageURL:      models.StringPtr(image.URL),
	})
	if err != nil {
		s.discard(ctx, image)
		s.auditPersistFailure(ctx, connID, in.SenderID, chatID, err)
		return internal("Failed to send private message", err)
	}

	info := s.enrich(ctx, t)
	senderID := in.SenderID
	if senderID == "" {
		senderID = t.StudentID
		if info.tutorName != "" && strings.EqualFold(strings.TrimSpace(in.Message.Sender), info.tutorName) {
			senderID = t.TutorID
		}
	}

	s.emitter.EmitToRoom(chatID, events.ReceivePrivateMessage, events.ChatBroadcast{
		ChatMessage: saved,
		SenderID:    senderID,
		CourseID:    t.CourseID,
		StudentID:   t.StudentID,
		TutorID:     t.TutorID,
		CourseTitle: info.courseTitle,
		StudentName: info.studentName,
	})

	recipientID := t.TutorID
	if senderID == t.TutorID {
		recipientID = t.StudentID
	}
	s.notifier.Notify(recipientID, events.Notification{
		Type:          events.NotificationChatMessage,
		Message:       s.preview(saved),
		CourseID:      t.CourseID,
		CourseTitle:   info.courseTitle,
		PrivateChatID: chatID,
		StudentID:     t.StudentID,
		TutorID:       t.TutorID,
		SenderID:      senderID,
		SenderName:    saved.Sender,
		Timestamp:     saved.Timestamp,
	})
	// Any new message reorders the tutor's inbox, whichever side sent it.
	s.emitter.EmitToRoom(rooms.UserRoom(t.TutorID), events.RefreshPrivateChats, events.InboxRefresh{TutorID: t.TutorID})
	return nil
}

// MarkNotificationRead only records the acknowledgement.
func (s *ChatService) MarkNotificationRead(ctx context.Context, connID string, ref events.PrivateChatRef) {
	l := pkglog.Ctx(ctx)
	l.Info().
		Str(pkglog.FieldConnID, connID).
		Str(pkglog.FieldRoomID, rooms.PrivateChatID(ref.Triple())).
		Msg("private message notification marked as read")
}

// UpdateMessageStatus persists a status transition and announces it to the message's room.
func (s *ChatService) UpdateMessageStatus(ctx context.Context, connID string, in events.StatusUpdate) error {
	msg, err := s.messages.UpdateStatus(ctx, in.MessageID, in.Status)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return notFound("Message not found", err)
	}
	if err != nil {
		return internal("Failed to update message status", err)
	}

	room := messageRoom(msg)
	if room == "" {
		return nil
	}
	s.emitter.EmitToRoom(room, events.MessageStatusChanged, events.MessageStatus{ID: msg.ID, Status: msg.Status})
	return nil
}

type enrichment struct {
	courseTitle string
	studentName string
	tutorName   string
}

// enrich resolves display names. Misses degrade to placeholders.
func (s *ChatService) enrich(ctx context.Context, t rooms.Triple) enrichment {
	info := enrichment{courseTitle: unknownCourse, studentName: unknownStudent}
	l := pkglog.Ctx(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if c, err := s.lookup.Course(ctx, t.CourseID); err == nil {
			info.courseTitle = c.Title
		} else if !errors.Is(err, repositories.ErrCourseNotFound) {
			l.Warn().Err(err).Str("course_id", t.CourseID).Msg("course lookup failed")
		}
		return nil
	})
	g.Go(func() error {
		if u, err := s.lookup.User(ctx, t.StudentID); err == nil {
			info.studentName = u.Name
		} else if !errors.Is(err, repositories.ErrUserNotFound) {
			l.Warn().Err(err).Str(pkglog.FieldUserID, t.StudentID).Msg("student lookup failed")
		}
		return nil
	})
	g.Go(func() error {
		if u, err := s.lookup.User(ctx, t.TutorID); err == nil {
			info.tutorName = strings.TrimSpace(u.Name)
		}
		return nil
	})
	_ = g.Wait()
	return info
}

func (s *ChatService) upload(ctx context.Context, senderID string, img *events.ImagePayload) (storage.StoredImage, error) {
	if img == nil {
		return storage.StoredImage{}, nil
	}
	if s.images == nil {
		return storage.StoredImage{}, internal("Image uploads are disabled", nil)
	}
	stored, err := s.images.Upload(ctx, senderID, storage.Image{Data: img.Data, Name: img.Name, Type: img.Type})
	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, storage.ErrImageTooLarge),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrInvalidImage):
		return storage.StoredImage{}, badRequest(err.Error(), err)
	default:
		return storage.StoredImage{}, internal("Failed to upload image", err)
	}
}

// discard removes an image whose message was not persisted. Failures are only logged.
func (s *ChatService) discard(ctx context.Context, image storage.StoredImage) {
	if image.Key == "" {
		return
	}
	if err := s.images.Discard(context.WithoutCancel(ctx), image.Key); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str("key", image.Key).Msg("orphaned image not removed")
	}
}

func (s *ChatService) preview(msg models.ChatMessage) string {
	text := msg.Content
	if text == "" && msg.ImageURL != nil {
		return imageOnlyText
	}
	if utf8.RuneCountInString(text) <= s.opts.PreviewLength {
		return text
	}
	return string([]rune(text)[:s.opts.PreviewLength]) + "..."
}

func (s *ChatService) auditPersistFailure(ctx context.Context, connID, senderID, room string, err error) {
	var user *string
	if senderID != "" {
		user = &senderID
	}
	s.audit.Emit(ctx, "error", "chat message not persisted", connID, user, map[string]any{
		"room":  room,
		"error": err.Error(),
	})
}

func senderKey(senderID, senderName string) string {
	if senderID != "" {
		return senderID
	}
	return senderName
}

func messageRoom(m models.ChatMessage) string {
	switch {
	case m.CommunityID != nil && *m.CommunityID != "":
		return rooms.CommunityRoom(*m.CommunityID)
	case m.PrivateChatID != nil && *m.PrivateChatID != "":
		return *m.PrivateChatID
	}
	return ""
}
