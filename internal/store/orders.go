package store

import (
	"context"
	"fmt"
	"time"

	"atelier-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// OrderFilter narrows ListOrders
type OrderFilter struct {
	UserID *int64
	Status string
	Search string
	Page   int
	Limit  int
}

// CreateOrder writes an order in one transaction: stock for every item is
// decremented with a guarded update, the order and its items are inserted and,
// when clearCart is set, the user's server cart is emptied. Any failure rolls
// back the whole unit.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, clearCart bool) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range order.Items {
			res, err := tx.ExecContext(ctx, `
				UPDATE products SET stock = stock - $1, updated_at = NOW()
				WHERE id = $2 AND is_active = TRUE AND stock >= $1`,
				item.Quantity, item.ProductID)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("product %d (%s): %w", item.ProductID, item.ProductName, ErrInsufficientStock)
			}
		}

		err := tx.QueryRowxContext(ctx, `
			INSERT INTO orders (order_number, user_id, shipping_address, payment_method, payment_status,
				status, subtotal, shipping_fee, total_amount, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at, updated_at`,
			order.OrderNumber, order.UserID, order.ShippingAddress, order.PaymentMethod, order.PaymentStatus,
			order.Status, order.Subtotal, order.ShippingFee, order.TotalAmount, order.Notes,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return uniqueViolation(err, "order number "+order.OrderNumber)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, image, size, color, price, quantity, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING id`,
				item.OrderID, item.ProductID, item.ProductName, item.Image, item.Size, item.Color,
				item.Price, item.Quantity, item.Subtotal,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		if clearCart {
			return clearUserCart(ctx, tx, order.UserID)
		}
		return nil
	})
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, notFound(err, "order", id)
	}
	order.Items = []models.OrderItem{}
	if err := s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", id); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return &order, nil
}

// ListOrders returns a page of orders, with items, and the total match count
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int, error) {
	w := &whereBuilder{}
	if f.UserID != nil {
		w.add("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Search != "" {
		w.add("order_number ILIKE ?", "%"+f.Search+"%")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"+w.sql(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	limit, offset := window(f.Page, f.Limit)
	orders := []models.Order{}
	query := fmt.Sprintf("SELECT * FROM orders%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", w.sql(), limit, offset)
	if err := s.db.SelectContext(ctx, &orders, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) attachOrderItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

// UpdateOrderStatus moves an order from one status to another. The update only
// applies while the order is still in the from status; a concurrent change
// yields ErrStale. When markPaid is set the payment is recorded as paid.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, from, to string, markPaid bool) error {
	query := "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3"
	if markPaid {
		query = `UPDATE orders SET status = $1, payment_status = 'paid', paid_at = COALESCE(paid_at, NOW()),
			updated_at = NOW() WHERE id = $2 AND status = $3`
	}
	res, err := s.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectCurrent(res, "order in status "+from, id)
}

// CancelOrder marks an order cancelled and returns its items to stock in one
// transaction. It applies only while the order is still in the from status.
func (s *Store) CancelOrder(ctx context.Context, id int64, from, reason string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, cancel_reason = $2, updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.OrderStatusCancelled, reason, id, from)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if err := expectCurrent(res, "order in status "+from, id); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products p SET stock = p.stock + oi.quantity, updated_at = NOW()
			FROM (SELECT product_id, SUM(quantity) AS quantity FROM order_items WHERE order_id = $1 GROUP BY product_id) oi
			WHERE p.id = oi.product_id`, id)
		if err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
		return nil
	})
}

// UpdatePaymentStatus records the outcome of a payment check. A paid order
// still pending is confirmed in the same statement. Cancelled or already paid
// orders are left alone and yield ErrStale.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string, paidAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			payment_status = $1,
			paid_at = $2,
			status = CASE WHEN $1::text = 'paid' AND status = 'pending' THEN 'confirmed' ELSE status END,
			updated_at = NOW()
		WHERE id = $3 AND status <> 'cancelled' AND payment_status <> 'paid'`,
		paymentStatus, paidAt, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return expectCurrent(res, "unpaid open order", id)
}
