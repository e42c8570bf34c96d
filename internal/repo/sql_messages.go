package repo

import (
	"context"
	"database/sql"
	"time"

	"slackconnect/internal/model"
)

type SQLMessageRepo struct {
	db *DB
}

var _ MessageRepository = (*SQLMessageRepo)(nil)

func NewSQLMessageRepo(db *DB) *SQLMessageRepo {
	return &SQLMessageRepo{db: db}
}

func (r *SQLMessageRepo) InsertPending(ctx context.Context, msg model.ScheduledMessage) (int64, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := r.db.db.QueryRowContext(ctx, r.db.rebind(`
		INSERT INTO scheduled_messages (user_id, channel_id, channel_name, body, scheduled_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
		RETURNING id
	`),
		msg.UserID,
		msg.ChannelID,
		msg.ChannelName,
		msg.Body,
		msg.ScheduledTime.UTC(),
		createdAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLMessageRepo) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledMessage, error) {
	rows, err := r.db.db.QueryContext(ctx, r.db.rebind(`
		SELECT id, user_id, channel_id, channel_name, body, scheduled_time, status, created_at
		FROM scheduled_messages
		WHERE status = 'pending' AND scheduled_time <= ?
		ORDER BY scheduled_time ASC
	`), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Claim is the at-most-once guard: the conditional update succeeds for exactly
// one of any set of racing callers, everyone else sees zero rows affected.
func (r *SQLMessageRepo) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		UPDATE scheduled_messages
		SET status = 'claimed'
		WHERE id = ? AND status = 'pending'
	`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLMessageRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		UPDATE scheduled_messages
		SET status = 'sent'
		WHERE id = ? AND status = 'claimed'
	`), id)
	return err
}

func (r *SQLMessageRepo) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		UPDATE scheduled_messages
		SET status = 'pending'
		WHERE id = ? AND status = 'claimed'
	`), id)
	return err
}

func (r *SQLMessageRepo) Cancel(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		UPDATE scheduled_messages
		SET status = 'cancelled'
		WHERE id = ? AND user_id = ? AND status = 'pending'
	`), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLMessageRepo) ListByUser(ctx context.Context, userID string) ([]model.ScheduledMessage, error) {
	rows, err := r.db.db.QueryContext(ctx, r.db.rebind(`
		SELECT id, user_id, channel_id, channel_name, body, scheduled_time, status, created_at
		FROM scheduled_messages
		WHERE user_id = ? AND status = 'pending'
		ORDER BY scheduled_time ASC
	`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.ScheduledMessage, error) {
	var out []model.ScheduledMessage
	for rows.Next() {
		var m model.ScheduledMessage
		var status string
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.ChannelID,
			&m.ChannelName,
			&m.Body,
			&m.ScheduledTime,
			&status,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.Status = model.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
