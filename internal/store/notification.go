package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NotificationStore records which notifications were already delivered.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// MarkSent claims the (kind, tenant, subject, member) slot and reports
// whether this call claimed it. A false result means it was sent before.
func (s *NotificationStore) MarkSent(ctx context.Context, kind, tenantID, subject, memberID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_log (kind, tenant_id, subject, member_id, sent_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, tenant_id, subject, member_id) DO NOTHING`,
		kind, tenantID, subject, memberID, formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("mark notification sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Forget releases a slot claimed by MarkSent, so a failed delivery is
// retried on the next run.
func (s *NotificationStore) Forget(ctx context.Context, kind, tenantID, subject, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE kind = ? AND tenant_id = ? AND subject = ? AND member_id = ?`,
		kind, tenantID, subject, memberID,
	)
	if err != nil {
		return fmt.Errorf("forget notification: %w", err)
	}
	return nil
}
