package repo

import (
	"context"
	"time"

	"slackconnect/internal/model"
)

// TokenRepository persists one Slack credential per user.
type TokenRepository interface {
	// Get returns the stored token for userID, or nil when none exists.
	Get(ctx context.Context, userID string) (*model.SlackToken, error)

	// Upsert inserts or replaces the token keyed by UserID.
	Upsert(ctx context.Context, tok model.SlackToken) error

	// UpdateAccessToken rewrites only the access token and its expiry hint,
	// leaving the refresh token and team identity untouched.
	UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt *time.Time) error
}
