package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type deliveryValue struct {
	ChannelID string    `json:"channelId"`
	SentAt    time.Time `json:"sentAt"`
}

func (c *RedisCache) StoreDelivery(ctx context.Context, messageID int64, channelID string, sentAt time.Time) error {
	key := fmt.Sprintf("delivery:%d", messageID)
	val := deliveryValue{
		ChannelID: channelID,
		SentAt:    sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
