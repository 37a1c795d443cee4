package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutorhub/internal/config"
	"tutorhub/internal/events"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/observability"
	"tutorhub/internal/service"
)

const lifecycleRoutingKey = "ws_events.hub"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests and routes inbound events to the services.
type Handler struct {
	hub      *Hub
	chat     *service.ChatService
	notifier *service.Notifier
	calls    *service.CallService
	cfg      config.WebSocketConfig
}

func NewHandler(hub *Hub, chat *service.ChatService, notifier *service.Notifier, calls *service.CallService, cfg config.WebSocketConfig) *Handler {
	return &Handler{hub: hub, chat: chat, notifier: notifier, calls: calls, cfg: cfg}
}

// Handle serves GET /ws.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := pkglog.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx := c.Request.Context()
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      observability.UserIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   c.Writer.Header().Get("X-Request-ID"),
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now(),
	}
	if info.RequestID == "" {
		info.RequestID = observability.RequestIDFromRequest(c.Request)
	}

	client := NewClient(h.hub, conn, h.cfg, info)
	h.hub.Register(client)
	observability.IncWSActive()

	l := pkglog.L()
	l.Info().Str(pkglog.FieldConnID, info.ConnID).Str(pkglog.FieldUserID, info.UserID).Msg("client connected")
	h.publishLifecycle(info, "ws_connect", 0, "", []string{info.UserID})

	go client.WritePump()
	client.ReadPump(h.dispatch, h.onClose)
}

func (h *Handler) onClose(c *Client, readErr error) {
	userIDs := h.hub.UserIDs(c.ID)
	if c.Info.UserID != "" && len(userIDs) == 0 {
		userIDs = []string{c.Info.UserID}
	}

	h.calls.HandleDisconnect(c.ID)
	observability.DecWSActive()
	observability.SetCallRooms(h.calls.ActiveRooms())

	reason := "closed"
	if readErr != nil {
		reason = readErr.Error()
	}
	duration := time.Since(c.Info.ConnectedAt)

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldConnID, c.ID).
		Strs("user_ids", userIDs).
		Dur("duration", duration).
		Msg("client disconnected")

	h.publishLifecycle(c.Info, "ws_disconnect", duration, reason, userIDs)
	if readErr != nil && websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		h.publishLifecycle(c.Info, "ws_error", duration, reason, userIDs)
	}
}

func (h *Handler) publishLifecycle(info ConnInfo, name string, duration time.Duration, reason string, userIDs []string) {
	ws := map[string]any{
		"kind":        "hub",
		"event":       name,
		"conn_id":     info.ConnID,
		"duration_ms": duration.Milliseconds(),
	}
	if reason != "" {
		ws["reason"] = reason
	}
	envelope := observability.EventEnvelope{
		EventType: "ws",
		EventName: name,
		Payload: map[string]any{
			"ws": ws,
			"identity": map[string]any{
				"user_ids": userIDs,
				"ip":       info.IP,
			},
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	if err := observability.PublishEvent(context.Background(), lifecycleRoutingKey, envelope, headers); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Str(pkglog.FieldConnID, info.ConnID).Str(pkglog.FieldEvent, name).Msg("lifecycle event not published")
	}
}

// dispatch handles one raw inbound frame. A failure never closes the connection.
func (h *Handler) dispatch(c *Client, raw []byte) {
	start := time.Now()
	env, err := events.Decode(raw)
	if err != nil {
		c.Emit(events.Error, events.ErrorPayload{Code: events.CodeBadRequest, Message: "Invalid message format"})
		observability.ObserveWSEvent("unknown", "bad_request", time.Since(start))
		return
	}

	ctx, span := observability.Tracer().Start(context.Background(), "ws "+env.Event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ws.event", env.Event),
			attribute.String("ws.conn_id", c.ID),
		))
	defer span.End()

	logger := pkglog.L().With().
		Str(pkglog.FieldConnID, c.ID).
		Str(pkglog.FieldEvent, env.Event).
		Str(pkglog.FieldRequestID, c.Info.RequestID).
		Logger()
	ctx = pkglog.WithLogger(ctx, logger)
	logger.Debug().Msg("event received")

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("event handler panicked")
			span.SetStatus(codes.Error, "panic")
			c.Emit(events.Error, events.ErrorPayload{Code: events.CodeInternal, Message: "Internal server error"})
			observability.ObserveWSEvent(env.Event, "panic", time.Since(start))
		}
	}()

	ackData, err := h.route(ctx, c, env)
	outcome := h.report(ctx, c, env, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else if env.Ack != nil {
		c.emitAck(*env.Ack, ackData)
	}
	label := env.Event
	if outcome == "unknown" {
		label = "unknown"
	}
	observability.ObserveWSEvent(label, outcome, time.Since(start))
}

var errUnknownEvent = errors.New("unknown event")

func (h *Handler) route(ctx context.Context, c *Client, env events.Envelope) (any, error) {
	switch env.Event {
	case events.JoinUser:
		userID, err := env.BindID("userId")
		if err != nil {
			return nil, err
		}
		joined := h.chat.JoinUser(ctx, c.ID, userID)
		return map[string]bool{"joined": joined}, nil

	case events.JoinCommunity:
		communityID, err := env.BindID("communityId")
		if err != nil {
			return nil, err
		}
		return nil, h.chat.JoinCommunity(ctx, c.ID, communityID)

	case events.JoinPrivateChat:
		var ref events.PrivateChatRef
		if err := env.Bind(&ref); err != nil {
			return nil, err
		}
		return nil, h.chat.JoinPrivateChat(ctx, c.ID, ref)

	case events.FetchPrivateChats:
		tutorID, err := env.BindID("tutorId")
		if err != nil {
			return nil, err
		}
		return nil, h.chat.FetchPrivateChats(ctx, c.ID, tutorID)

	case events.SendMessage, events.SendImageMessage:
		var in events.CommunityMessage
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		if env.Event == events.SendImageMessage && in.Image == nil {
			return nil, errImageRequired
		}
		return nil, h.chat.SendCommunityMessage(ctx, c.ID, in)

	case events.SendPrivateMessage, events.SendPrivateImage:
		var in events.PrivateMessage
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		if env.Event == events.SendPrivateImage && in.Image == nil {
			return nil, errImageRequired
		}
		return nil, h.chat.SendPrivateMessage(ctx, c.ID, in)

	case events.MarkNotificationRead:
		var ref events.PrivateChatRef
		if err := env.Bind(&ref); err != nil {
			return nil, err
		}
		h.chat.MarkNotificationRead(ctx, c.ID, ref)
		return nil, nil

	case events.UpdateMessageStatus:
		var in events.StatusUpdate
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		return nil, h.chat.UpdateMessageStatus(ctx, c.ID, in)

	case events.SendNotification:
		var in events.CommunityNotification
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		n, err := h.notifier.BroadcastCommunity(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]int{"delivered": n}, nil

	case events.SendPurchase:
		var in events.PurchaseNotification
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		return nil, h.notifier.Purchase(ctx, in)

	case events.JoinRoom:
		roomID, err := env.BindID("roomId")
		if err != nil {
			return nil, err
		}
		err = h.calls.JoinCallRoom(ctx, c.ID, roomID)
		observability.SetCallRooms(h.calls.ActiveRooms())
		return nil, err

	case events.LeaveRoom:
		roomID, err := env.BindID("roomId")
		if err != nil {
			return nil, err
		}
		h.calls.LeaveCallRoom(ctx, c.ID, roomID)
		observability.SetCallRooms(h.calls.ActiveRooms())
		return nil, nil

	case events.SendingSignal:
		var in events.SendingSignalPayload
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		h.calls.SendingSignal(c.ID, in)
		return nil, nil

	case events.ReturningSignal:
		var in events.ReturningSignalPayload
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		h.calls.ReturningSignal(c.ID, in)
		return nil, nil

	case events.CallRejected:
		var in events.CallReject
		if err := env.Bind(&in); err != nil {
			return nil, err
		}
		return nil, h.calls.RejectCall(ctx, in)
	}
	return nil, errUnknownEvent
}

var errImageRequired = errors.New("image is required")

// report tells the connection about client-visible failures and returns the metric outcome.
func (h *Handler) report(ctx context.Context, c *Client, env events.Envelope, err error) string {
	if err == nil {
		return "ok"
	}
	l := pkglog.Ctx(ctx)

	var svcErr *service.Error
	switch {
	case errors.Is(err, errUnknownEvent):
		c.Emit(events.Error, events.ErrorPayload{Code: events.CodeBadRequest, Message: "Unknown event: " + env.Event})
		return "unknown"
	case errors.Is(err, events.ErrInvalidPayload), errors.Is(err, errImageRequired):
		l.Debug().Err(err).Msg("invalid payload")
		c.Emit(events.Error, events.ErrorPayload{Code: events.CodeBadRequest, Message: err.Error()})
		return "bad_request"
	case errors.As(err, &svcErr):
		l.Warn().Err(err).Msg("event failed")
		c.Emit(events.Error, svcErr.Payload())
		return svcErr.Code
	case errors.Is(err, service.ErrCallRejected):
		l.Info().Err(err).Msg("call rejected")
		return "rejected"
	default:
		l.Error().Err(err).Msg("event failed")
		return "error"
	}
}
