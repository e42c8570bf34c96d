package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slackconnect/internal/model"
)

type SQLTokenRepo struct {
	db *DB
}

var _ TokenRepository = (*SQLTokenRepo)(nil)

func NewSQLTokenRepo(db *DB) *SQLTokenRepo {
	return &SQLTokenRepo{db: db}
}

func (r *SQLTokenRepo) Get(ctx context.Context, userID string) (*model.SlackToken, error) {
	row := r.db.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT user_id, access_token, refresh_token, team_id, team_name, expires_at, created_at, updated_at
		FROM slack_tokens
		WHERE user_id = ?
	`), userID)

	var tok model.SlackToken
	var expiresAt sql.NullTime
	err := row.Scan(
		&tok.UserID,
		&tok.AccessToken,
		&tok.RefreshToken,
		&tok.TeamID,
		&tok.TeamName,
		&expiresAt,
		&tok.CreatedAt,
		&tok.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		tok.ExpiresAt = &t
	}
	return &tok, nil
}

func (r *SQLTokenRepo) Upsert(ctx context.Context, tok model.SlackToken) error {
	now := time.Now().UTC()
	createdAt := tok.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var expiresAt any
	if tok.ExpiresAt != nil {
		expiresAt = tok.ExpiresAt.UTC()
	}

	_, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO slack_tokens (user_id, access_token, refresh_token, team_id, team_name, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			team_id = excluded.team_id,
			team_name = excluded.team_name,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`),
		tok.UserID,
		tok.AccessToken,
		tok.RefreshToken,
		tok.TeamID,
		tok.TeamName,
		expiresAt,
		createdAt,
		now,
	)
	return err
}

func (r *SQLTokenRepo) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt *time.Time) error {
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC()
	}

	_, err := r.db.db.ExecContext(ctx, r.db.rebind(`
		UPDATE slack_tokens
		SET access_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ?
	`), accessToken, exp, time.Now().UTC(), userID)
	return err
}
