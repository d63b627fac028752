package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status ends a notification's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// DeviceTarget is one registered device token for a recipient.
type DeviceTarget struct {
	Token      string `json:"fcm_token"`
	DeviceType string `json:"device_type"`
}

// PendingNotification is one queued delivery intent, produced by the
// message-insert trigger and consumed by the drain loop. It is immutable
// once claimed except for its terminal status.
type PendingNotification struct {
	ID             uuid.UUID      `json:"id"`
	RecipientID    string         `json:"recipient_id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	MessageText    string         `json:"message_text"`
	DeviceTargets  []DeviceTarget `json:"device_targets,omitempty"`
	Status         Status         `json:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewPendingNotification creates a notification outside the queue, used by
// the direct-send path.
func NewPendingNotification(recipientID, messageID, conversationID, senderID, senderName, messageText string) *PendingNotification {
	now := time.Now().UTC()
	return &PendingNotification{
		ID:             uuid.New(),
		RecipientID:    recipientID,
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		MessageText:    messageText,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkAsSent records a successful delivery.
func (n *PendingNotification) MarkAsSent() {
	n.Status = StatusSent
	n.ErrorMessage = nil
	n.UpdatedAt = time.Now().UTC()
}

// MarkAsFailed records a terminal failure with its reason.
func (n *PendingNotification) MarkAsFailed(errorMsg string) {
	n.Status = StatusFailed
	n.ErrorMessage = &errorMsg
	n.UpdatedAt = time.Now().UTC()
}

// NotificationQueue is the durable queue collaborator. Claiming must be safe
// under concurrent drains (the postgres implementation uses row locks);
// MarkTerminal must be idempotent.
type NotificationQueue interface {
	// GetPending claims up to limit oldest pending notifications, moving
	// them to processing, with device targets populated.
	GetPending(ctx context.Context, limit int) ([]*PendingNotification, error)

	// MarkTerminal writes the terminal status for a claimed notification.
	// Safe to call multiple times for the same id.
	MarkTerminal(ctx context.Context, id uuid.UUID, success bool, errorMessage *string) error

	// PendingDepth returns the number of notifications still pending.
	PendingDepth(ctx context.Context) (int64, error)
}

// DeviceTokenRepository looks up the registered device tokens for a user.
type DeviceTokenRepository interface {
	GetByUserID(ctx context.Context, userID string) ([]DeviceTarget, error)
}
