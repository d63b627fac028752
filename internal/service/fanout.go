package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
	"github.com/ibrahimkhan7059/Edubazaar/internal/fcm"
)

// PushClient sends one built message to one device token.
type PushClient interface {
	Send(ctx context.Context, msg *fcm.Message, authHeader string) domain.DispatchOutcome
}

// FanOutService dispatches one notification to every registered device token
// and reduces the per-token outcomes into one notification-level outcome.
type FanOutService struct {
	client PushClient
	logger *slog.Logger
}

// NewFanOutService creates a new FanOutService
func NewFanOutService(client PushClient, logger *slog.Logger) *FanOutService {
	return &FanOutService{
		client: client,
		logger: logger.With("component", "fanout"),
	}
}

// FanOut dispatches to each device target independently and concurrently.
// One target's failure never prevents dispatch to the rest, and every
// outcome is awaited before reducing.
func (s *FanOutService) FanOut(ctx context.Context, n *domain.PendingNotification, authHeader string) domain.NotificationOutcome {
	targets := n.DeviceTargets
	if len(targets) == 0 {
		return domain.FailedOutcome("no device targets")
	}

	outcomes := make([]domain.DispatchOutcome, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target domain.DeviceTarget) {
			defer wg.Done()
			// A panic here would kill the process, not just this dispatch;
			// fold it into the outcome like any other token-level failure.
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic during dispatch",
						"notification_id", n.ID,
						"token", domain.RedactToken(target.Token),
						"panic", r,
					)
					outcomes[i] = domain.DispatchOutcome{
						Token:      domain.RedactToken(target.Token),
						DeviceType: target.DeviceType,
						Error:      fmt.Sprintf("unexpected error: %v", r),
					}
				}
			}()

			msg := fcm.BuildMessage(n, target.Token)
			outcome := s.client.Send(ctx, msg, authHeader)
			outcome.DeviceType = target.DeviceType
			outcomes[i] = outcome
		}(i, target)
	}
	wg.Wait()

	reduced := domain.ReduceOutcomes(outcomes)

	s.logger.Info("fan-out complete",
		"notification_id", n.ID,
		"targets", len(targets),
		"success_count", reduced.SuccessCount,
		"failure_count", reduced.FailureCount,
	)

	return reduced
}
