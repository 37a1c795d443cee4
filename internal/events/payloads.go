package events

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tutorhub/internal/models"
	"tutorhub/internal/rooms"
)

// ChatMessageInput is the message body clients send.
type ChatMessageInput struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	Status    string    `json:"status"`
}

func (m ChatMessageInput) validate(hasImage bool) error {
	if strings.TrimSpace(m.Sender) == "" {
		return errors.New("message.sender is required")
	}
	if m.Content == "" && !hasImage {
		return errors.New("message.content is required without an image")
	}
	if m.Status != "" && !models.ValidStatus(m.Status) {
		return errors.New("message.status must be sent, delivered or read")
	}
	return nil
}

// ImagePayload is an inline image attachment, data may be a data URL or bare base64.
type ImagePayload struct {
	Data string `json:"data"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (i *ImagePayload) validate() error {
	if i.Data == "" {
		return errors.New("image.data is required")
	}
	if i.Type == "" {
		return errors.New("image.type is required")
	}
	return nil
}

// PrivateChatRef addresses a private chat by its participants.
type PrivateChatRef struct {
	CourseID  string `json:"courseId"`
	StudentID string `json:"studentId"`
	TutorID   string `json:"tutorId"`
}

func (r PrivateChatRef) Triple() rooms.Triple {
	return rooms.Triple{CourseID: r.CourseID, StudentID: r.StudentID, TutorID: r.TutorID}
}

func (r PrivateChatRef) Validate() error {
	return r.Triple().Validate()
}

// CommunityMessage is the payload of send_message and send_image_message.
type CommunityMessage struct {
	CommunityID string           `json:"communityId"`
	Message     ChatMessageInput `json:"message"`
	Image       *ImagePayload    `json:"image,omitempty"`
	SenderID    string           `json:"senderId,omitempty"`
}

func (m CommunityMessage) Validate() error {
	if strings.TrimSpace(m.CommunityID) == "" {
		return errors.New("communityId is required")
	}
	if m.Image != nil {
		if err := m.Image.validate(); err != nil {
			return err
		}
	}
	return m.Message.validate(m.Image != nil)
}

// PrivateMessage is the payload of send_private_message and send_private_image_message.
type PrivateMessage struct {
	PrivateChatRef
	Message  ChatMessageInput `json:"message"`
	Image    *ImagePayload    `json:"image,omitempty"`
	SenderID string           `json:"senderId,omitempty"`
}

func (m PrivateMessage) Validate() error {
	if err := m.PrivateChatRef.Validate(); err != nil {
		return err
	}
	if m.SenderID != "" && m.SenderID != m.StudentID && m.SenderID != m.TutorID {
		return errors.New("senderId must be the student or the tutor of the chat")
	}
	if m.Image != nil {
		if err := m.Image.validate(); err != nil {
			return err
		}
	}
	return m.Message.validate(m.Image != nil)
}

// CommunityNotification is the payload of send_notification.
type CommunityNotification struct {
	CommunityID string `json:"communityId"`
	CourseTitle string `json:"courseTitle"`
	Message     string `json:"message"`
	SenderID    string `json:"senderId"`
}

func (n CommunityNotification) Validate() error {
	if n.CommunityID == "" {
		return errors.New("communityId is required")
	}
	return nil
}

// PurchaseNotification is the payload of send_purchase_notification.
type PurchaseNotification struct {
	UserID      string `json:"userId" binding:"required"`
	CourseID    string `json:"courseId" binding:"required"`
	CourseTitle string `json:"courseTitle"`
}

func (n PurchaseNotification) Validate() error {
	if n.UserID == "" || n.CourseID == "" {
		return errors.New("userId and courseId are required")
	}
	return nil
}

// StatusUpdate is the payload of update_message_status.
type StatusUpdate struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func (s StatusUpdate) Validate() error {
	if s.MessageID == "" {
		return errors.New("messageId is required")
	}
	if !models.ValidStatus(s.Status) {
		return errors.New("status must be sent, delivered or read")
	}
	return nil
}

// SendingSignalPayload asks the hub to relay an offer to another connection.
type SendingSignalPayload struct {
	UserToSignal string          `json:"userToSignal"`
	CallerID     string          `json:"callerID"`
	Signal       json.RawMessage `json:"signal"`
}

func (s SendingSignalPayload) Validate() error {
	if s.UserToSignal == "" {
		return errors.New("userToSignal is required")
	}
	return nil
}

// ReturningSignalPayload relays an answer back to the caller.
type ReturningSignalPayload struct {
	CallerID string          `json:"callerID"`
	Signal   json.RawMessage `json:"signal"`
}

func (s ReturningSignalPayload) Validate() error {
	if s.CallerID == "" {
		return errors.New("callerID is required")
	}
	return nil
}

// CallReject is sent by the tutor to decline a call.
type CallReject struct {
	RoomID  string `json:"roomId"`
	TutorID string `json:"tutorId"`
}

func (c CallReject) Validate() error {
	if c.RoomID == "" {
		return errors.New("roomId is required")
	}
	return nil
}

// ChatBroadcast is a persisted message enriched for fan-out.
type ChatBroadcast struct {
	models.ChatMessage
	SenderID    string `json:"senderId,omitempty"`
	CourseID    string `json:"courseId,omitempty"`
	StudentID   string `json:"studentId,omitempty"`
	TutorID     string `json:"tutorId,omitempty"`
	CourseTitle string `json:"courseTitle,omitempty"`
	StudentName string `json:"studentName,omitempty"`
}

// Notification is pushed to a user room.
type Notification struct {
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	CourseID      string    `json:"courseId"`
	Timestamp     time.Time `json:"timestamp"`
	SenderID      string    `json:"senderId,omitempty"`
	CourseTitle   string    `json:"courseTitle,omitempty"`
	CommunityID   string    `json:"communityId,omitempty"`
	PrivateChatID string    `json:"privateChatId,omitempty"`
	StudentID     string    `json:"studentId,omitempty"`
	TutorID       string    `json:"tutorId,omitempty"`
	SenderName    string    `json:"senderName,omitempty"`
}

// CallRequest asks the tutor to join a call room.
type CallRequest struct {
	RoomID      string    `json:"roomId"`
	StudentID   string    `json:"studentId"`
	CourseID    string    `json:"courseId"`
	CourseTitle string    `json:"courseTitle"`
	Timestamp   time.Time `json:"timestamp"`
}

// CallRejection tells a client the call will not proceed.
type CallRejection struct {
	RoomID  string `json:"roomId,omitempty"`
	Reason  string `json:"reason"`
	TutorID string `json:"tutorId,omitempty"`
}

// PeerSignal is delivered to the connection being called.
type PeerSignal struct {
	Signal   json.RawMessage `json:"signal"`
	CallerID string          `json:"callerID"`
}

// ReturnedSignal is delivered to the original caller.
type ReturnedSignal struct {
	Signal json.RawMessage `json:"signal"`
	ID     string          `json:"id"`
}

// InboxRefresh tells a tutor client to refetch its private chats.
type InboxRefresh struct {
	TutorID string `json:"tutorId"`
}

// MessageStatus announces a delivery status change.
type MessageStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorPayload is the body of the error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
