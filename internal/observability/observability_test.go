package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tutorhub/internal/config"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func TestPublishEventUsesDefaultPublisher(t *testing.T) {
	pub := new(publisherMock)
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	env := EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}
	headers := BuildHeaders("req-1", "")
	pub.On("Publish", mock.Anything, "ws_events.hub", env, map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	require.NoError(t, PublishEvent(context.Background(), "ws_events.hub", env, headers))
	pub.AssertExpectations(t)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), "k", EventEnvelope{}, nil))
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(r))

	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", IPFromRequest(r))
}

func TestUserIDFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?userId=u2", nil)
	assert.Equal(t, "u2", UserIDFromRequest(r))
	r.Header.Set("X-User-Id", "u1")
	assert.Equal(t, "u1", UserIDFromRequest(r))
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "tutorhub-test")
	require.NoError(t, err)

	ctx, span := Tracer().Start(context.Background(), "send_message")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	span.End()

	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestSplitFullMethod(t *testing.T) {
	s, m := splitFullMethod("/grpc.health.v1.Health/Check")
	assert.Equal(t, "grpc.health.v1.Health", s)
	assert.Equal(t, "Check", m)

	s, m = splitFullMethod("bogus")
	assert.Equal(t, "unknown", s)
	assert.Equal(t, "unknown", m)
}
