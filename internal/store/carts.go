package store

import (
	"context"
	"fmt"

	"atelier-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrCreateCart returns the user's cart with its items, creating an empty
// cart row on first use.
func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart := models.NewCart()
	err := s.db.GetContext(ctx, cart, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, updated_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	if err := s.db.SelectContext(ctx, &cart.Items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY added_at ASC, id ASC", cart.ID); err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	cart.Recalculate()
	return cart, nil
}

// SaveCartItem inserts a new line, or adds its quantity to the existing line
// with the same product, size and color. The stored line is written back to item.
func (s *Store) SaveCartItem(ctx context.Context, item *models.CartItem) error {
	err := s.db.GetContext(ctx, item, `
		INSERT INTO cart_items (cart_id, product_id, product_name, image, quantity, size, color, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cart_id, product_id, size, color)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price
		RETURNING *`,
		item.CartID, item.ProductID, item.ProductName, item.Image, item.Quantity, item.Size, item.Color, item.Price)
	if err != nil {
		return fmt.Errorf("failed to save cart item: %w", err)
	}
	return touchCart(ctx, s.db, item.CartID)
}

// UpdateCartItemQuantity sets the quantity of a line in the given cart
func (s *Store) UpdateCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3", quantity, itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if err := expectOne(res, "cart item", itemID); err != nil {
		return err
	}
	return touchCart(ctx, s.db, cartID)
}

// DeleteCartItem removes a line from the given cart
func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if err := expectOne(res, "cart item", itemID); err != nil {
		return err
	}
	return touchCart(ctx, s.db, cartID)
}

// ClearCart removes every line of the user's cart
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	return clearUserCart(ctx, s.db, userID)
}

func clearUserCart(ctx context.Context, db sqlx.ExecerContext, userID int64) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)", userID)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func touchCart(ctx context.Context, db sqlx.ExecerContext, cartID int64) error {
	_, err := db.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID)
	return err
}
