package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const mirrorTTL = 10 * time.Minute

// Client mirrors offer quantities in Redis as a best-effort read cache
// for the browse path. The store's conditional decrement stays the only
// authority on inventory; a stale or missing mirror entry is never an
// error, callers fall back to the row they already have.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func quantityKey(offerID int64) string {
	return fmt.Sprintf("offer:quantity:%d", offerID)
}

// SetOfferQuantity writes the mirrored remaining quantity for an offer
func (c *Client) SetOfferQuantity(ctx context.Context, offerID int64, quantity int) error {
	return c.rdb.Set(ctx, quantityKey(offerID), quantity, mirrorTTL).Err()
}

// GetOfferQuantity reads the mirrored quantity. The second return is
// false when the offer is not mirrored.
func (c *Client) GetOfferQuantity(ctx context.Context, offerID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, quantityKey(offerID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	quantity, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt quantity mirror for offer %d: %w", offerID, err)
	}
	return quantity, true, nil
}
