package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"slackconnect/internal/cache"
	"slackconnect/internal/model"
	"slackconnect/internal/repo"
)

// SendGateway is the slice of the Slack client the dispatcher needs.
type SendGateway interface {
	SendMessage(ctx context.Context, accessToken, channelID, text string) error
}

// TokenSource yields a usable access token for a user.
type TokenSource interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Dispatcher runs the per-message delivery cycle:
// claim -> resolve token -> send -> terminal status write.
//
// The claim comes first so a user cancellation can only win before any
// external call is made. Losing the claim is a silent skip, not an error.
// Any failure after the claim puts the message back to pending; it will be
// retried on a later tick, with no cap and no backoff.
type Dispatcher struct {
	messages    repo.MessageRepository
	tokens      TokenSource
	gw          SendGateway
	receipts    cache.DeliveryCache // optional
	concurrency int
	now         func() time.Time
}

func NewDispatcher(messages repo.MessageRepository, tokens TokenSource, gw SendGateway, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		messages:    messages,
		tokens:      tokens,
		gw:          gw,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// WithReceipts records successful deliveries in the given cache.
func (d *Dispatcher) WithReceipts(receipts cache.DeliveryCache) *Dispatcher {
	d.receipts = receipts
	return d
}

// WithClock overrides the due-time clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Tick is the scheduler entrypoint: fetch everything due and dispatch.
func (d *Dispatcher) Tick(ctx context.Context) {
	sent, failed, skipped := d.ProcessDue(ctx)
	if sent+failed+skipped > 0 {
		slog.Info("dispatch tick", "sent", sent, "failed", failed, "skipped", skipped)
	}
}

// ProcessDue dispatches all currently-due messages, fanning out across
// messages up to the configured concurrency. Each message's outcome is
// independent; one failure never aborts the rest of the batch.
func (d *Dispatcher) ProcessDue(ctx context.Context) (sent, failed, skipped int) {
	due, err := d.messages.ListDue(ctx, d.now())
	if err != nil {
		slog.Error("failed to list due messages", "error", err)
		return 0, 0, 0
	}
	if len(due) == 0 {
		return 0, 0, 0
	}

	var sentN, failedN, skippedN atomic.Int64

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, m := range due {
		m := m
		g.Go(func() error {
			switch d.dispatch(ctx, m) {
			case outcomeSent:
				sentN.Add(1)
			case outcomeFailed:
				failedN.Add(1)
			case outcomeSkipped:
				skippedN.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sentN.Load()), int(failedN.Load()), int(skippedN.Load())
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

func (d *Dispatcher) dispatch(ctx context.Context, m model.ScheduledMessage) (result outcome) {
	// A panic in one message's cycle must not take down the tick.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panic recovered", "id", m.ID, "panic", r)
			result = outcomeFailed
			if err := d.messages.MarkFailed(ctx, m.ID); err != nil {
				slog.Error("failed to mark message failed", "id", m.ID, "error", err)
			}
		}
	}()

	claimed, err := d.messages.Claim(ctx, m.ID)
	if err != nil {
		slog.Error("claim failed", "id", m.ID, "error", err)
		return outcomeSkipped
	}
	if !claimed {
		// Lost the race to another tick, or the user cancelled first.
		return outcomeSkipped
	}

	token, err := d.tokens.Resolve(ctx, m.UserID)
	if err != nil {
		slog.Error("token resolution failed", "id", m.ID, "user", m.UserID, "error", err)
		if err := d.messages.MarkFailed(ctx, m.ID); err != nil {
			slog.Error("failed to mark message failed", "id", m.ID, "error", err)
		}
		return outcomeFailed
	}

	if err := d.gw.SendMessage(ctx, token, m.ChannelID, m.Body); err != nil {
		slog.Error("send failed", "id", m.ID, "channel", m.ChannelID, "error", err)
		if err := d.messages.MarkFailed(ctx, m.ID); err != nil {
			slog.Error("failed to mark message failed", "id", m.ID, "error", err)
		}
		return outcomeFailed
	}

	if err := d.messages.MarkSent(ctx, m.ID); err != nil {
		slog.Error("failed to mark message sent", "id", m.ID, "error", err)
		return outcomeFailed
	}

	if d.receipts != nil {
		if err := d.receipts.StoreDelivery(ctx, m.ID, m.ChannelID, d.now()); err != nil {
			slog.Warn("failed to store delivery receipt", "id", m.ID, "error", err)
		}
	}

	slog.Info("scheduled message sent", "id", m.ID, "channel", m.ChannelID)
	return outcomeSent
}
