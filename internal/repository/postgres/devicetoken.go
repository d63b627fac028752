package postgres

import (
	"context"
	"fmt"

	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// DeviceTokenRepository implements domain.DeviceTokenRepository using
// PostgreSQL
type DeviceTokenRepository struct {
	db *DB
}

// NewDeviceTokenRepository creates a new DeviceTokenRepository
func NewDeviceTokenRepository(db *DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// GetByUserID returns the registered device tokens for a user.
func (r *DeviceTokenRepository) GetByUserID(ctx context.Context, userID string) ([]domain.DeviceTarget, error) {
	query := `
		SELECT fcm_token, device_type
		FROM user_fcm_tokens
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	targets := make([]domain.DeviceTarget, 0)
	for rows.Next() {
		var target domain.DeviceTarget
		if err := rows.Scan(&target.Token, &target.DeviceType); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return targets, nil
}
