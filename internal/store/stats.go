package store

import (
	"context"
	"fmt"

	"atelier-service/internal/models"
)

// DashboardStats is the admin overview
type DashboardStats struct {
	TotalUsers     int              `json:"totalUsers"`
	TotalProducts  int              `json:"totalProducts"`
	TotalOrders    int              `json:"totalOrders"`
	TotalRevenue   int64            `json:"totalRevenue"`
	OrdersByStatus map[string]int   `json:"ordersByStatus"`
	TopProducts    []ProductSales   `json:"topProducts"`
	LowStock       []models.Product `json:"lowStock"`
	RecentOrders   []models.Order   `json:"recentOrders"`
}

// ProductSales is a product with the quantity sold in non-cancelled orders
type ProductSales struct {
	ProductID   int64  `db:"product_id" json:"productId"`
	ProductName string `db:"product_name" json:"productName"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Revenue     int64  `db:"revenue" json:"revenue"`
}

// GetDashboardStats collects counters for the admin dashboard. Revenue counts
// orders that are delivered or paid.
func (s *Store) GetDashboardStats(ctx context.Context, topN, lowStockThreshold int) (*DashboardStats, error) {
	stats := &DashboardStats{
		OrdersByStatus: make(map[string]int),
		TopProducts:    []ProductSales{},
		LowStock:       []models.Product{},
		RecentOrders:   []models.Order{},
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&stats.TotalUsers, "SELECT COUNT(*) FROM users"},
		{&stats.TotalProducts, "SELECT COUNT(*) FROM products"},
		{&stats.TotalOrders, "SELECT COUNT(*) FROM orders"},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.query); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	err := s.db.GetContext(ctx, &stats.TotalRevenue, `
		SELECT COALESCE(SUM(total_amount), 0) FROM orders
		WHERE status = 'delivered' OR payment_status = 'paid'`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to group orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &stats.TopProducts, `
		SELECT oi.product_id, MAX(oi.product_name) AS product_name,
			SUM(oi.quantity) AS quantity, SUM(oi.subtotal) AS revenue
		FROM order_items oi JOIN orders o ON o.id = oi.order_id
		WHERE o.status <> 'cancelled'
		GROUP BY oi.product_id
		ORDER BY quantity DESC
		LIMIT $1`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to rank products: %w", err)
	}

	err = s.db.SelectContext(ctx, &stats.LowStock,
		"SELECT * FROM products WHERE is_active = TRUE AND stock <= $1 ORDER BY stock ASC, name ASC", lowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}

	recent, _, err := s.ListOrders(ctx, OrderFilter{Page: 1, Limit: 5})
	if err != nil {
		return nil, err
	}
	stats.RecentOrders = recent

	return stats, nil
}
