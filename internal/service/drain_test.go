package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// MockNotificationQueue is a mock implementation of domain.NotificationQueue
type MockNotificationQueue struct {
	mock.Mock
}

func (m *MockNotificationQueue) GetPending(ctx context.Context, limit int) ([]*domain.PendingNotification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PendingNotification), args.Error(1)
}

func (m *MockNotificationQueue) MarkTerminal(ctx context.Context, id uuid.UUID, success bool, errorMessage *string) error {
	args := m.Called(ctx, id, success, errorMessage)
	return args.Error(0)
}

func (m *MockNotificationQueue) PendingDepth(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockDeviceTokenRepository is a mock implementation of domain.DeviceTokenRepository
type MockDeviceTokenRepository struct {
	mock.Mock
}

func (m *MockDeviceTokenRepository) GetByUserID(ctx context.Context, userID string) ([]domain.DeviceTarget, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DeviceTarget), args.Error(1)
}

// stubAuth is a fixed-result auth strategy.
type stubAuth struct {
	header string
	err    error
}

func (a stubAuth) AuthHeader(ctx context.Context) (string, error) {
	return a.header, a.err
}

func newTestQueueService(queue *MockNotificationQueue, tokens *MockDeviceTokenRepository, auth stubAuth, client *MockPushClient) *QueueService {
	logger := discardLogger()
	fanout := NewFanOutService(client, logger)
	return NewQueueService(queue, tokens, auth, fanout, logger)
}

func TestQueueService_Drain(t *testing.T) {
	t.Run("delivered notification is marked sent", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		n := fanOutNotification(domain.DeviceTarget{Token: "tok-1", DeviceType: "android"})
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{n}, nil)
		queue.On("MarkTerminal", mock.Anything, n.ID, true, (*string)(nil)).Return(nil)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Success: true})

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, client)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, result.Processed, 1)
		assert.Empty(t, result.Errors)
		assert.Equal(t, n.ID, result.Processed[0].ID)
		assert.Equal(t, "sent", result.Processed[0].Status)
		assert.Equal(t, "Sent to 1/1 devices", result.Processed[0].Summary)
		assert.Equal(t, domain.StatusSent, n.Status)
		queue.AssertExpectations(t)
	})

	t.Run("undeliverable notification is marked failed with detail", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		n := fanOutNotification(domain.DeviceTarget{Token: "tok-1", DeviceType: "android"})
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{n}, nil)
		queue.On("MarkTerminal", mock.Anything, n.ID, false, mock.MatchedBy(func(msg *string) bool {
			return msg != nil && *msg == "Failed to send to all 1 devices. Last error: HTTP 404: gone"
		})).Return(nil)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Error: "HTTP 404: gone"})

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, client)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		assert.Empty(t, result.Processed)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, n.ID, result.Errors[0].ID)
		assert.Contains(t, result.Errors[0].Error, "HTTP 404: gone")
		assert.Equal(t, domain.StatusFailed, n.Status)
		queue.AssertExpectations(t)
	})

	t.Run("one failure never blocks the rest of the batch", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		failing := fanOutNotification(domain.DeviceTarget{Token: "tok-bad", DeviceType: "android"})
		healthy := fanOutNotification(domain.DeviceTarget{Token: "tok-good", DeviceType: "android"})

		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{failing, healthy}, nil)
		queue.On("MarkTerminal", mock.Anything, failing.ID, false, mock.Anything).Return(nil)
		queue.On("MarkTerminal", mock.Anything, healthy.ID, true, (*string)(nil)).Return(nil)
		onToken(client, "tok-bad").Return(domain.DispatchOutcome{Token: "tok-bad", Error: "HTTP 500: boom"})
		onToken(client, "tok-good").Return(domain.DispatchOutcome{Token: "tok-good", Success: true})

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, client)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		assert.Len(t, result.Processed, 1)
		assert.Len(t, result.Errors, 1)
		queue.AssertExpectations(t)
	})

	t.Run("a panic in one dispatch never aborts the batch", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := &panickyClient{panicToken: "tok-2"}

		first := fanOutNotification(domain.DeviceTarget{Token: "tok-1", DeviceType: "android"})
		second := fanOutNotification(domain.DeviceTarget{Token: "tok-2", DeviceType: "android"})
		third := fanOutNotification(domain.DeviceTarget{Token: "tok-3", DeviceType: "ios"})

		queue.On("GetPending", mock.Anything, 10).
			Return([]*domain.PendingNotification{first, second, third}, nil)
		queue.On("MarkTerminal", mock.Anything, first.ID, true, (*string)(nil)).Return(nil)
		queue.On("MarkTerminal", mock.Anything, second.ID, false, mock.MatchedBy(func(msg *string) bool {
			return msg != nil && *msg == "Failed to send to all 1 devices. Last error: unexpected error: gateway client bug"
		})).Return(nil)
		queue.On("MarkTerminal", mock.Anything, third.ID, true, (*string)(nil)).Return(nil)

		logger := discardLogger()
		fanout := NewFanOutService(client, logger)
		svc := NewQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, fanout, logger)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, result.Processed, 2)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, second.ID, result.Errors[0].ID)
		assert.Equal(t, domain.StatusSent, first.Status)
		assert.Equal(t, domain.StatusFailed, second.Status)
		assert.Equal(t, domain.StatusSent, third.Status)
		queue.AssertExpectations(t)
	})

	t.Run("auth failure fails every claimed notification, not the drain", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		n1 := fanOutNotification(domain.DeviceTarget{Token: "tok-1", DeviceType: "android"})
		n2 := fanOutNotification(domain.DeviceTarget{Token: "tok-2", DeviceType: "android"})
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{n1, n2}, nil)
		queue.On("MarkTerminal", mock.Anything, mock.Anything, false, mock.Anything).Return(nil).Times(2)

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{err: errors.New("exchange rejected")}, client)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, result.Errors, 2)
		assert.Contains(t, result.Errors[0].Error, "no authentication method available")
		assert.Contains(t, result.Errors[0].Error, "exchange rejected")
		client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		queue.AssertExpectations(t)
	})

	t.Run("a notification with no targets fails without dispatching", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		n := fanOutNotification()
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{n}, nil)
		queue.On("MarkTerminal", mock.Anything, n.ID, false, mock.MatchedBy(func(msg *string) bool {
			return msg != nil && *msg == "no device targets"
		})).Return(nil)

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, client)

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "no device targets", result.Errors[0].Error)
		client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("queue failure aborts the drain", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		queue.On("GetPending", mock.Anything, 10).Return(nil, errors.New("connection refused"))

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, new(MockPushClient))

		result, err := svc.Drain(context.Background(), 10)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
	})

	t.Run("empty queue yields an empty result", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{}, nil)

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, new(MockPushClient))

		result, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		assert.NotNil(t, result.Processed)
		assert.NotNil(t, result.Errors)
		assert.Empty(t, result.Processed)
		assert.Empty(t, result.Errors)
	})

	t.Run("broadcasts terminal status per notification", func(t *testing.T) {
		queue := new(MockNotificationQueue)
		client := new(MockPushClient)

		n := fanOutNotification(domain.DeviceTarget{Token: "tok-1", DeviceType: "android"})
		queue.On("GetPending", mock.Anything, 10).Return([]*domain.PendingNotification{n}, nil)
		queue.On("MarkTerminal", mock.Anything, n.ID, true, (*string)(nil)).Return(nil)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Success: true})

		svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, client)

		var broadcast []*domain.PendingNotification
		svc.SetStatusBroadcast(func(n *domain.PendingNotification) {
			broadcast = append(broadcast, n)
		})

		_, err := svc.Drain(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, broadcast, 1)
		assert.Equal(t, domain.StatusSent, broadcast[0].Status)
	})
}

func TestQueueService_SendDirect(t *testing.T) {
	req := DirectSendRequest{
		RecipientID:    "recipient-1",
		MessageID:      "msg-1",
		ConversationID: "conv-1",
		SenderID:       "sender-1",
		SenderName:     "Ali Khan",
		MessageText:    "Is the textbook still available?",
	}

	t.Run("fans out to every registered device", func(t *testing.T) {
		tokens := new(MockDeviceTokenRepository)
		client := new(MockPushClient)

		tokens.On("GetByUserID", mock.Anything, "recipient-1").Return([]domain.DeviceTarget{
			{Token: "tok-1", DeviceType: "android"},
			{Token: "tok-2", DeviceType: "ios"},
		}, nil)
		onToken(client, "tok-1").Return(domain.DispatchOutcome{Token: "tok-1", Success: true})
		onToken(client, "tok-2").Return(domain.DispatchOutcome{Token: "tok-2", Error: "HTTP 404: gone"})

		svc := newTestQueueService(new(MockNotificationQueue), tokens, stubAuth{header: "Bearer test"}, client)

		outcome, err := svc.SendDirect(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Equal(t, "Sent to 1/2 devices", outcome.Summary)
		tokens.AssertExpectations(t)
	})

	t.Run("recipient without tokens yields a failed outcome", func(t *testing.T) {
		tokens := new(MockDeviceTokenRepository)
		tokens.On("GetByUserID", mock.Anything, "recipient-1").Return([]domain.DeviceTarget{}, nil)

		svc := newTestQueueService(new(MockNotificationQueue), tokens, stubAuth{header: "Bearer test"}, new(MockPushClient))

		outcome, err := svc.SendDirect(context.Background(), req)

		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, "No FCM tokens found for recipient", outcome.Summary)
	})

	t.Run("token lookup failure propagates", func(t *testing.T) {
		tokens := new(MockDeviceTokenRepository)
		tokens.On("GetByUserID", mock.Anything, "recipient-1").Return(nil, errors.New("connection refused"))

		svc := newTestQueueService(new(MockNotificationQueue), tokens, stubAuth{header: "Bearer test"}, new(MockPushClient))

		_, err := svc.SendDirect(context.Background(), req)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch device tokens")
	})

	t.Run("auth failure yields a failed outcome, not an error", func(t *testing.T) {
		tokens := new(MockDeviceTokenRepository)
		tokens.On("GetByUserID", mock.Anything, "recipient-1").Return([]domain.DeviceTarget{
			{Token: "tok-1", DeviceType: "android"},
		}, nil)

		svc := newTestQueueService(new(MockNotificationQueue), tokens, stubAuth{err: errors.New("exchange rejected")}, new(MockPushClient))

		outcome, err := svc.SendDirect(context.Background(), req)

		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Contains(t, outcome.Summary, "no authentication method available")
	})
}

func TestQueueService_PendingDepth(t *testing.T) {
	queue := new(MockNotificationQueue)
	queue.On("PendingDepth", mock.Anything).Return(int64(7), nil)

	svc := newTestQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, new(MockPushClient))

	depth, err := svc.PendingDepth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), depth)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "auth", failureReason(errors.New("rejected"), domain.NotificationOutcome{}))
	assert.Equal(t, "no_targets", failureReason(nil, domain.FailedOutcome("no device targets")))
	assert.Equal(t, "gateway", failureReason(nil, domain.NotificationOutcome{FailureCount: 2}))
}

// countingQueue records drain claims without a backing store.
type countingQueue struct {
	mu     sync.Mutex
	claims int
}

func (q *countingQueue) GetPending(ctx context.Context, limit int) ([]*domain.PendingNotification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims++
	return []*domain.PendingNotification{}, nil
}

func (q *countingQueue) MarkTerminal(ctx context.Context, id uuid.UUID, success bool, errorMessage *string) error {
	return nil
}

func (q *countingQueue) PendingDepth(ctx context.Context) (int64, error) {
	return 0, nil
}

func (q *countingQueue) claimed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.claims
}

func TestDrainerLifecycle(t *testing.T) {
	queue := &countingQueue{}

	logger := discardLogger()
	fanout := NewFanOutService(new(MockPushClient), logger)
	svc := NewQueueService(queue, new(MockDeviceTokenRepository), stubAuth{header: "Bearer test"}, fanout, logger)
	drainer := NewDrainer(svc, logger, time.Hour, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, drainer.Start(ctx))
	// Idempotent start.
	require.NoError(t, drainer.Start(ctx))

	// The drainer fires once immediately on start.
	assert.Eventually(t, func() bool {
		return queue.claimed() >= 1
	}, time.Second, 10*time.Millisecond)

	drainer.Stop()
	drainer.Stop()
}
