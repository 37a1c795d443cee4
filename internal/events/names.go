// Package events defines the websocket wire envelope and the typed payload of
// every inbound and outbound hub event.
package events

// Inbound event names.
const (
	JoinUser             = "join_user"
	JoinCommunity        = "join_community"
	JoinPrivateChat      = "join_private_chat"
	FetchPrivateChats    = "fetch_private_chats"
	SendMessage          = "send_message"
	SendPrivateMessage   = "send_private_message"
	SendImageMessage     = "send_image_message"
	SendPrivateImage     = "send_private_image_message"
	MarkNotificationRead = "mark_private_message_notification_as_read"
	SendNotification     = "send_notification"
	SendPurchase         = "send_purchase_notification"
	UpdateMessageStatus  = "update_message_status"
	JoinRoom             = "join room"
	LeaveRoom            = "leave room"
	SendingSignal        = "sending signal"
	ReturningSignal      = "returning signal"
	CallRejected         = "call_rejected"
)

// Outbound event names.
const (
	PrivateChats          = "private_chats"
	MessageHistory        = "message_history"
	PrivateMessageHistory = "private_message_history"
	ReceiveMessage        = "receive_message"
	ReceivePrivateMessage = "receive_private_message"
	Notify                = "notification"
	AllUsers              = "all users"
	CallRequested         = "call_request"
	UserJoined            = "user joined"
	ReceivingReturned     = "receiving returned signal"
	Error                 = "error"
	RefreshPrivateChats   = "fetch_private_chats"
	MessageStatusChanged  = "message_status"
	Ack                   = "ack"
)

// Notification types emitted by the hub.
const (
	NotificationChatMessage    = "chat_message"
	NotificationCoursePurchase = "course_purchase"
)

// Error codes carried by the error event.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL_ERROR"
)
