package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
	"github.com/ibrahimkhan7059/Edubazaar/internal/fcm"
)

// MockPushClient is a mock implementation of PushClient
type MockPushClient struct {
	mock.Mock
}

func (m *MockPushClient) Send(ctx context.Context, msg *fcm.Message, authHeader string) domain.DispatchOutcome {
	args := m.Called(ctx, msg, authHeader)
	return args.Get(0).(domain.DispatchOutcome)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// panickyClient panics on one token and delivers to every other.
type panickyClient struct {
	panicToken string
}

func (c *panickyClient) Send(ctx context.Context, msg *fcm.Message, authHeader string) domain.DispatchOutcome {
	if msg.Token == c.panicToken {
		panic("gateway client bug")
	}
	return domain.DispatchOutcome{Token: msg.Token, Success: true}
}

func fanOutNotification(targets ...domain.DeviceTarget) *domain.PendingNotification {
	n := domain.NewPendingNotification(
		"recipient-1",
		"msg-1",
		"conv-1",
		"sender-1",
		"Ali Khan",
		"Is the textbook still available?",
	)
	n.DeviceTargets = targets
	return n
}

func onToken(client *MockPushClient, token string) *mock.Call {
	return client.On("Send",
		mock.Anything,
		mock.MatchedBy(func(msg *fcm.Message) bool { return msg.Token == token }),
		"Bearer test",
	)
}

func TestFanOutService_FanOut(t *testing.T) {
	t.Run("no device targets fails without dispatching", func(t *testing.T) {
		client := new(MockPushClient)
		svc := NewFanOutService(client, discardLogger())

		outcome := svc.FanOut(context.Background(), fanOutNotification(), "Bearer test")

		assert.False(t, outcome.Success)
		assert.Equal(t, "no device targets", outcome.Summary)
		client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("every target succeeding reports full delivery", func(t *testing.T) {
		client := new(MockPushClient)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Success: true})
		onToken(client, "tok-2").Return(domain.DispatchOutcome{Token: "tok-2", Success: true})

		svc := NewFanOutService(client, discardLogger())
		n := fanOutNotification(
			domain.DeviceTarget{Token: "tok-1", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-2", DeviceType: "ios"},
		)

		outcome := svc.FanOut(context.Background(), n, "Bearer test")

		assert.True(t, outcome.Success)
		assert.Equal(t, 2, outcome.SuccessCount)
		assert.Equal(t, 0, outcome.FailureCount)
		assert.Equal(t, "Sent to 2/2 devices", outcome.Summary)
		client.AssertExpectations(t)
	})

	t.Run("one reachable device out of three counts as delivered", func(t *testing.T) {
		client := new(MockPushClient)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Error: "HTTP 404: gone"})
		onToken(client, "tok-2").Return(domain.DispatchOutcome{Token: "tok-2", Success: true})
		onToken(client, "tok-3").Return(domain.DispatchOutcome{Token: "tok-3", Error: "HTTP 503: unavailable"})

		svc := NewFanOutService(client, discardLogger())
		n := fanOutNotification(
			domain.DeviceTarget{Token: "tok-1", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-2", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-3", DeviceType: "ios"},
		)

		outcome := svc.FanOut(context.Background(), n, "Bearer test")

		assert.True(t, outcome.Success)
		assert.Equal(t, 1, outcome.SuccessCount)
		assert.Equal(t, 2, outcome.FailureCount)
		assert.Equal(t, "Sent to 1/3 devices", outcome.Summary)
	})

	t.Run("a panicking dispatch becomes a token-level failure", func(t *testing.T) {
		client := &panickyClient{panicToken: "tok-2"}
		svc := NewFanOutService(client, discardLogger())
		n := fanOutNotification(
			domain.DeviceTarget{Token: "tok-1", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-2", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-3", DeviceType: "ios"},
		)

		outcome := svc.FanOut(context.Background(), n, "Bearer test")

		assert.True(t, outcome.Success)
		assert.Equal(t, 2, outcome.SuccessCount)
		assert.Equal(t, 1, outcome.FailureCount)
		assert.Equal(t, "Sent to 2/3 devices", outcome.Summary)
	})

	t.Run("every target failing reports the last error", func(t *testing.T) {
		client := new(MockPushClient)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Error: "HTTP 500: boom"})
		onToken(client, "tok-2").Return(domain.DispatchOutcome{Token: "tok-2", Error: "HTTP 404: gone"})

		svc := NewFanOutService(client, discardLogger())
		n := fanOutNotification(
			domain.DeviceTarget{Token: "tok-1", DeviceType: "android"},
			domain.DeviceTarget{Token: "tok-2", DeviceType: "android"},
		)

		outcome := svc.FanOut(context.Background(), n, "Bearer test")

		assert.False(t, outcome.Success)
		assert.Equal(t, 0, outcome.SuccessCount)
		assert.Equal(t, 2, outcome.FailureCount)
		assert.Equal(t, "HTTP 404: gone", outcome.LastError)
		assert.Equal(t, "Failed to send to all 2 devices. Last error: HTTP 404: gone", outcome.Summary)
	})
}
