package cache

import (
	"context"
	"time"
)

// DeliveryCache records successful deliveries for short-lived lookup.
type DeliveryCache interface {
	StoreDelivery(ctx context.Context, messageID int64, channelID string, sentAt time.Time) error
}
