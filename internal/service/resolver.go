package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slackconnect/internal/client"
	"slackconnect/internal/repo"
)

var (
	// ErrNoToken means the user never connected a workspace.
	ErrNoToken = errors.New("no slack token for user")
	// ErrInvalidToken means the stored token was rejected and cannot self-renew.
	ErrInvalidToken = errors.New("slack token invalid and not refreshable")
	// ErrRefreshFailed means the refresh grant was rejected.
	ErrRefreshFailed = errors.New("slack token refresh failed")
)

// TokenGateway is the slice of the Slack client the resolver needs.
type TokenGateway interface {
	ValidateToken(ctx context.Context, accessToken string) (bool, error)
	RefreshToken(ctx context.Context, refreshToken string) (*client.OAuthResponse, error)
}

// TokenResolver produces a currently-usable access token for a user,
// refreshing and persisting a new one when the stored token is rejected.
// Resolution happens from scratch on every call; a token that was valid on
// the previous tick is never trusted to still be valid.
type TokenResolver struct {
	tokens repo.TokenRepository
	gw     TokenGateway
	now    func() time.Time
}

func NewTokenResolver(tokens repo.TokenRepository, gw TokenGateway) *TokenResolver {
	return &TokenResolver{
		tokens: tokens,
		gw:     gw,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for expiry hints. Test hook.
func (r *TokenResolver) WithClock(now func() time.Time) *TokenResolver {
	r.now = now
	return r
}

func (r *TokenResolver) Resolve(ctx context.Context, userID string) (string, error) {
	tok, err := r.tokens.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", ErrNoToken
	}

	// A transport failure during validation is treated like a rejection:
	// we fall through to the refresh path rather than trusting the token.
	valid, err := r.gw.ValidateToken(ctx, tok.AccessToken)
	if err == nil && valid {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" {
		return "", ErrInvalidToken
	}

	resp, err := r.gw.RefreshToken(ctx, tok.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if !resp.OK {
		return "", fmt.Errorf("%w: %s", ErrRefreshFailed, resp.Error)
	}

	var expiresAt *time.Time
	if resp.ExpiresIn > 0 {
		t := r.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
		expiresAt = &t
	}

	if err := r.tokens.UpdateAccessToken(ctx, userID, resp.AccessToken, expiresAt); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}
