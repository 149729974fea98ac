package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_snapshot.lua
var claimSnapshotScript string

type Client struct {
	rdb         *redis.Client
	claimScript *redis.Script
}

// NewClient creates a new Redis client with the claim script loaded
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

	return &Client{
		rdb:         rdb,
		claimScript: redis.NewScript(claimSnapshotScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func snapshotKey(reservationID string) string {
	return fmt.Sprintf("snapshot:%s", reservationID)
}

func discountKey(ownerKey string) string {
	return fmt.Sprintf("discount:%s", ownerKey)
}

// SaveSnapshot persists a price snapshot keyed by the gateway reservation
// id. The TTL doubles as the staleness window: an expired snapshot is
// indistinguishable from a missing one.
func (c *Client) SaveSnapshot(ctx context.Context, snap *models.PriceSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.rdb.Set(ctx, snapshotKey(snap.ReservationID), data, ttl).Err()
}

// ClaimSnapshot atomically reads and removes a snapshot so a reservation id
// is consumed by at most one commit. Returns (nil, nil) when the snapshot
// is missing or expired.
func (c *Client) ClaimSnapshot(ctx context.Context, reservationID string) (*models.PriceSnapshot, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{snapshotKey(reservationID)}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim snapshot script failed: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected script result type %T", result)
	}

	var snap models.PriceSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// AppliedDiscount is the owner-scoped discount state set by a successful
// apply and read at reservation time.
type AppliedDiscount struct {
	Kind   string `json:"kind"` // coupon | popup
	Code   string `json:"code"`
	Amount string `json:"amount"`
}

// SetAppliedDiscount records the discount applied to the owner's checkout.
func (c *Client) SetAppliedDiscount(ctx context.Context, ownerKey string, d *AppliedDiscount, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal discount state: %w", err)
	}
	return c.rdb.Set(ctx, discountKey(ownerKey), data, ttl).Err()
}

// GetAppliedDiscount returns the owner's applied discount, or (nil, nil).
func (c *Client) GetAppliedDiscount(ctx context.Context, ownerKey string) (*AppliedDiscount, error) {
	raw, err := c.rdb.Get(ctx, discountKey(ownerKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d AppliedDiscount
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discount state: %w", err)
	}
	return &d, nil
}

// ClearAppliedDiscount discards the owner's discount state.
func (c *Client) ClearAppliedDiscount(ctx context.Context, ownerKey string) error {
	return c.rdb.Del(ctx, discountKey(ownerKey)).Err()
}
