package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atelier-service/internal/models"

	"github.com/go-redis/redis/v8"
)

func guestCartKey(guestID string) string {
	return fmt.Sprintf("cart:guest:%s", guestID)
}

// GetGuestCart loads a guest cart. A missing or expired cart comes back empty.
func (c *Client) GetGuestCart(ctx context.Context, guestID string) (*models.Cart, error) {
	raw, err := c.rdb.Get(ctx, guestCartKey(guestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		cart := models.NewCart()
		cart.GuestID = guestID
		return cart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guest cart: %w", err)
	}

	cart := models.NewCart()
	if err := json.Unmarshal(raw, cart); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart: %w", err)
	}
	cart.GuestID = guestID
	cart.Recalculate()
	return cart, nil
}

// SaveGuestCart stores the cart and refreshes its TTL
func (c *Client) SaveGuestCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error {
	cart.UpdatedAt = time.Now()
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}
	return c.rdb.Set(ctx, guestCartKey(cart.GuestID), raw, ttl).Err()
}

// DeleteGuestCart drops a guest cart
func (c *Client) DeleteGuestCart(ctx context.Context, guestID string) error {
	return c.rdb.Del(ctx, guestCartKey(guestID)).Err()
}
