package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// QueueRepository implements domain.NotificationQueue using PostgreSQL.
// Claiming uses FOR UPDATE SKIP LOCKED so two concurrent drains never claim
// the same row.
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// GetPending claims up to limit oldest pending notifications, moving them to
// processing as a soft marker, and populates each recipient's device targets.
// The claim and the target load run in one transaction: if the target query
// fails, the claim rolls back and the rows stay pending.
func (r *QueueRepository) GetPending(ctx context.Context, limit int) ([]*domain.PendingNotification, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE chat_notification_queue SET
			status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM chat_notification_queue
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, recipient_id, message_id, conversation_id, sender_id,
			sender_name, message_text, status, error_message, created_at, updated_at
	`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending notifications: %w", err)
	}

	notifications := make([]*domain.PendingNotification, 0)
	for rows.Next() {
		n := &domain.PendingNotification{}
		err := rows.Scan(
			&n.ID, &n.RecipientID, &n.MessageID, &n.ConversationID, &n.SenderID,
			&n.SenderName, &n.MessageText, &n.Status, &n.ErrorMessage, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	if err := r.attachDeviceTargets(ctx, tx, notifications); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return notifications, nil
}

// attachDeviceTargets loads every claimed recipient's tokens in one query.
func (r *QueueRepository) attachDeviceTargets(ctx context.Context, tx pgx.Tx, notifications []*domain.PendingNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	recipients := make([]string, 0, len(notifications))
	seen := make(map[string]bool, len(notifications))
	for _, n := range notifications {
		if !seen[n.RecipientID] {
			seen[n.RecipientID] = true
			recipients = append(recipients, n.RecipientID)
		}
	}

	query := `
		SELECT user_id, fcm_token, device_type
		FROM user_fcm_tokens
		WHERE user_id = ANY($1)
	`

	rows, err := tx.Query(ctx, query, recipients)
	if err != nil {
		return fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	targets := make(map[string][]domain.DeviceTarget)
	for rows.Next() {
		var userID string
		var target domain.DeviceTarget
		if err := rows.Scan(&userID, &target.Token, &target.DeviceType); err != nil {
			return fmt.Errorf("failed to scan device token: %w", err)
		}
		targets[userID] = append(targets[userID], target)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating device tokens: %w", err)
	}

	for _, n := range notifications {
		n.DeviceTargets = targets[n.RecipientID]
	}

	return nil
}

// MarkTerminal writes the terminal status for a notification. Last-write-wins
// and idempotent: repeating the same call leaves the row unchanged.
func (r *QueueRepository) MarkTerminal(ctx context.Context, id uuid.UUID, success bool, errorMessage *string) error {
	status := domain.StatusFailed
	if success {
		status = domain.StatusSent
	}

	query := `
		UPDATE chat_notification_queue SET
			status = $2,
			error_message = $3,
			sent_at = CASE WHEN $2 = 'sent' THEN now() ELSE sent_at END,
			updated_at = now()
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark notification terminal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// PendingDepth returns the number of notifications still pending.
func (r *QueueRepository) PendingDepth(ctx context.Context) (int64, error) {
	var depth int64
	query := `SELECT COUNT(*) FROM chat_notification_queue WHERE status = 'pending'`
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&depth); err != nil {
		return 0, fmt.Errorf("failed to count pending notifications: %w", err)
	}
	return depth, nil
}
