package model

import "time"

// SlackToken is the stored delivery credential for one user. There is at most
// one per user; a reconnect replaces the previous row.
type SlackToken struct {
	UserID       string     `json:"userId"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"` // empty means the token cannot self-renew
	TeamID       string     `json:"teamId"`
	TeamName     string     `json:"teamName"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"` // hint only, validity is confirmed live
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
