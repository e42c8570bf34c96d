package repo

import (
	"context"
	"time"

	"slackconnect/internal/model"
)

// MessageRepository persists scheduled messages. Every status transition is a
// single atomic conditional write; Claim in particular is the only guard
// against the same message being dispatched twice by overlapping ticks.
type MessageRepository interface {
	// InsertPending stores a new message in pending status and returns its id.
	// The caller is responsible for rejecting non-future schedule times.
	InsertPending(ctx context.Context, msg model.ScheduledMessage) (int64, error)

	// ListDue returns pending messages whose scheduled time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]model.ScheduledMessage, error)

	// Claim transitions pending -> claimed iff the message is still pending.
	// Exactly one of any set of concurrent claims for the same id succeeds.
	Claim(ctx context.Context, id int64) (bool, error)

	// MarkSent transitions claimed -> sent. Safe to call twice; never touches
	// a message that is not claimed.
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed transitions claimed -> pending so the message is retried on a
	// later tick.
	MarkFailed(ctx context.Context, id int64) error

	// Cancel transitions pending -> cancelled iff the message is still pending
	// and owned by userID. Returns false when the message does not exist,
	// belongs to someone else, or has already been claimed or sent.
	Cancel(ctx context.Context, id int64, userID string) (bool, error)

	// ListByUser returns the caller's pending messages, soonest first.
	ListByUser(ctx context.Context, userID string) ([]model.ScheduledMessage, error)
}
