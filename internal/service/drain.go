package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
	"github.com/ibrahimkhan7059/Edubazaar/internal/fcm"
)

// MetricsRecorder records delivery metrics. May be nil.
type MetricsRecorder interface {
	RecordNotificationSent()
	RecordNotificationFailed(reason string)
	RecordDispatchOutcomes(outcome domain.NotificationOutcome)
	RecordDrainDuration(d time.Duration)
}

// ProcessedNotification summarizes one successfully delivered notification
// in a drain result.
type ProcessedNotification struct {
	ID        uuid.UUID `json:"id"`
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary"`
}

// NotificationError summarizes one failed notification in a drain result.
type NotificationError struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// DrainResult is the structured outcome of one drain cycle. The caller
// always receives it even when every item failed.
type DrainResult struct {
	Processed []ProcessedNotification `json:"processed"`
	Errors    []NotificationError     `json:"errors"`
}

// QueueService drains the notification queue: it claims pending
// notifications, fans each out, and writes back a terminal status per
// notification.
type QueueService struct {
	queue           domain.NotificationQueue
	tokens          domain.DeviceTokenRepository
	auth            fcm.AuthStrategy
	fanout          *FanOutService
	logger          *slog.Logger
	metrics         MetricsRecorder
	statusBroadcast func(notification *domain.PendingNotification)
}

// NewQueueService creates a new QueueService
func NewQueueService(
	queue domain.NotificationQueue,
	tokens domain.DeviceTokenRepository,
	auth fcm.AuthStrategy,
	fanout *FanOutService,
	logger *slog.Logger,
) *QueueService {
	return &QueueService{
		queue:  queue,
		tokens: tokens,
		auth:   auth,
		fanout: fanout,
		logger: logger.With("component", "queue"),
	}
}

// SetMetrics sets the metrics recorder
func (s *QueueService) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// SetStatusBroadcast sets the function to broadcast status updates
func (s *QueueService) SetStatusBroadcast(fn func(notification *domain.PendingNotification)) {
	s.statusBroadcast = fn
}

// Drain claims up to batchSize pending notifications and processes each in
// isolation. Per-notification errors become markTerminal(false, ...) calls
// plus entries in the returned errors list; only a queue failure propagates
// to the caller.
func (s *QueueService) Drain(ctx context.Context, batchSize int) (*DrainResult, error) {
	start := time.Now()

	result := &DrainResult{
		Processed: []ProcessedNotification{},
		Errors:    []NotificationError{},
	}

	notifications, err := s.queue.GetPending(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	s.logger.Info("draining queue", "claimed", len(notifications))

	if len(notifications) == 0 {
		return result, nil
	}

	// One auth-header acquisition per drain. The bearer strategy mints or
	// reuses an access token bounded by its expiry; a mint failure is a
	// notification-level reason, never a batch abort.
	authHeader, authErr := s.auth.AuthHeader(ctx)

	for _, n := range notifications {
		outcome := s.processOne(ctx, n, authHeader, authErr)

		if outcome.Success {
			n.MarkAsSent()
			result.Processed = append(result.Processed, ProcessedNotification{
				ID:        n.ID,
				MessageID: n.MessageID,
				Status:    string(domain.StatusSent),
				Summary:   outcome.Summary,
			})
			if s.metrics != nil {
				s.metrics.RecordNotificationSent()
			}
		} else {
			n.MarkAsFailed(outcome.Summary)
			result.Errors = append(result.Errors, NotificationError{
				ID:    n.ID,
				Error: outcome.Summary,
			})
			if s.metrics != nil {
				s.metrics.RecordNotificationFailed(failureReason(authErr, outcome))
			}
		}

		if err := s.queue.MarkTerminal(ctx, n.ID, outcome.Success, n.ErrorMessage); err != nil {
			s.logger.Error("failed to mark notification terminal",
				"notification_id", n.ID,
				"error", err,
			)
		}

		if s.metrics != nil {
			s.metrics.RecordDispatchOutcomes(outcome)
		}
		s.broadcastStatus(n)
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordDrainDuration(duration)
	}

	s.logger.Info("drain complete",
		"processed", len(result.Processed),
		"errors", len(result.Errors),
		"duration_ms", duration.Milliseconds(),
	)

	return result, nil
}

// processOne runs the fan-out for one notification, containing panics so a
// single notification can never abort the batch or stay stuck in pending.
func (s *QueueService) processOne(ctx context.Context, n *domain.PendingNotification, authHeader string, authErr error) (outcome domain.NotificationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing notification",
				"notification_id", n.ID,
				"panic", r,
			)
			outcome = domain.FailedOutcome(fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	if authErr != nil {
		return domain.FailedOutcome(fmt.Sprintf("%s: %v", domain.ErrNoAuthMethod, authErr))
	}

	return s.fanout.FanOut(ctx, n, authHeader)
}

// DirectSendRequest is one synthetic notification sent straight through the
// fan-out, bypassing the queue.
type DirectSendRequest struct {
	RecipientID    string `json:"recipient_id" validate:"required"`
	MessageID      string `json:"message_id" validate:"required"`
	ConversationID string `json:"conversation_id" validate:"required"`
	SenderID       string `json:"sender_id" validate:"required"`
	SenderName     string `json:"sender_name"`
	MessageText    string `json:"message_text"`
}

// SendDirect looks up the recipient's device tokens and fans out
// immediately, returning the notification-level outcome.
func (s *QueueService) SendDirect(ctx context.Context, req DirectSendRequest) (domain.NotificationOutcome, error) {
	targets, err := s.tokens.GetByUserID(ctx, req.RecipientID)
	if err != nil {
		return domain.NotificationOutcome{}, fmt.Errorf("failed to fetch device tokens: %w", err)
	}
	if len(targets) == 0 {
		return domain.FailedOutcome("No FCM tokens found for recipient"), nil
	}

	n := domain.NewPendingNotification(
		req.RecipientID,
		req.MessageID,
		req.ConversationID,
		req.SenderID,
		req.SenderName,
		req.MessageText,
	)
	n.DeviceTargets = targets

	authHeader, err := s.auth.AuthHeader(ctx)
	if err != nil {
		return domain.FailedOutcome(fmt.Sprintf("%s: %v", domain.ErrNoAuthMethod, err)), nil
	}

	outcome := s.fanout.FanOut(ctx, n, authHeader)

	s.logger.Info("direct notification sent",
		"recipient_id", req.RecipientID,
		"success", outcome.Success,
	)

	return outcome, nil
}

// PendingDepth reports the current queue depth.
func (s *QueueService) PendingDepth(ctx context.Context) (int64, error) {
	return s.queue.PendingDepth(ctx)
}

// broadcastStatus broadcasts status update via WebSocket
func (s *QueueService) broadcastStatus(n *domain.PendingNotification) {
	if s.statusBroadcast != nil {
		s.statusBroadcast(n)
	}
}

func failureReason(authErr error, outcome domain.NotificationOutcome) string {
	switch {
	case authErr != nil:
		return "auth"
	case outcome.FailureCount == 0:
		return "no_targets"
	default:
		return "gateway"
	}
}
