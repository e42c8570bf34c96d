package model

import "time"

// Status is the scheduled-message lifecycle. Transitions only move forward:
// pending -> claimed -> sent, claimed -> pending (retry), pending -> cancelled.
// Sent and cancelled are terminal. Repositories are the only writers.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusSent      Status = "sent"
	StatusCancelled Status = "cancelled"
)

type ScheduledMessage struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"userId"`
	ChannelID     string    `json:"channelId"`
	ChannelName   string    `json:"channelName"`
	Body          string    `json:"message"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}
