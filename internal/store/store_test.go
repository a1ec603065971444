package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"atelier-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	limit, offset := window(0, 0)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	limit, offset = window(3, 12)
	assert.Equal(t, 12, limit)
	assert.Equal(t, 24, offset)
}

func TestWhereBuilder(t *testing.T) {
	cat := int64(4)
	w := ProductFilter{ActiveOnly: true, CategoryID: &cat, Search: "ao", Size: "M"}.where()

	assert.Equal(t,
		" WHERE is_active = TRUE AND category_id = $1 AND (name ILIKE $2 OR brand ILIKE $2 OR description ILIKE $2) AND $3 = ANY(sizes)",
		w.sql())
	assert.Equal(t, []interface{}{int64(4), "%ao%", "M"}, w.args)

	assert.Equal(t, "", (&whereBuilder{}).sql())
}

func TestPriceFilterUsesEffectivePrice(t *testing.T) {
	w := ProductFilter{MinPrice: 100000, MaxPrice: 200000}.where()
	assert.Equal(t,
		" WHERE "+effectivePriceSQL+" >= $1 AND "+effectivePriceSQL+" <= $2",
		w.sql())
	assert.Equal(t, []interface{}{int64(100000), int64(200000)}, w.args)

	assert.True(t, strings.HasPrefix(productOrderBy[SortPriceAsc], effectivePriceSQL))
	assert.True(t, strings.HasPrefix(productOrderBy[SortPriceDesc], effectivePriceSQL))
}

// openTestStore connects to TEST_DATABASE_URL and applies the schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL")
	}
	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedUserAndProduct(t *testing.T, s *Store, stock int) (*models.User, *models.Product) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	user := &models.User{
		Name:         "Khách Test",
		Email:        fmt.Sprintf("test-%d@example.com", suffix),
		PasswordHash: "x",
		Role:         models.RoleUser,
		IsActive:     true,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	product := &models.Product{
		Name:     "Áo thun",
		Slug:     fmt.Sprintf("ao-thun-%d", suffix),
		Price:    150000,
		Stock:    stock,
		Sizes:    []string{"M", "L"},
		IsActive: true,
	}
	require.NoError(t, s.CreateProduct(ctx, product))
	return user, product
}

func TestCreateOrderDecrementsStockAndClearsCart(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, s, 5)

	cart, err := s.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, s.SaveCartItem(ctx, &models.CartItem{
		CartID: cart.ID, ProductID: product.ID, ProductName: product.Name, Quantity: 2, Size: "M", Price: product.Price,
	}))

	order := &models.Order{
		OrderNumber:     fmt.Sprintf("VHATEST%d", time.Now().UnixNano()%1e8),
		UserID:          user.ID,
		ShippingAddress: models.ShippingAddress{FullName: "A", Phone: "0901234567", Street: "1", Ward: "W", District: "D", City: "HCM"},
		PaymentMethod:   models.PaymentMethodCOD,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
		Subtotal:        300000,
		ShippingFee:     30000,
		TotalAmount:     330000,
		Items: []models.OrderItem{{
			ProductID: product.ID, ProductName: product.Name, Size: "M", Price: 150000, Quantity: 2, Subtotal: 300000,
		}},
	}
	require.NoError(t, s.CreateOrder(ctx, order, true))
	assert.NotZero(t, order.ID)
	assert.NotZero(t, order.Items[0].ID)

	p, err := s.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	cart, err = s.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty)

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "HCM", got.ShippingAddress.City)
	require.Len(t, got.Items, 1)

	require.NoError(t, s.CancelOrder(ctx, order.ID, models.OrderStatusPending, "đổi ý"))
	p, err = s.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	err = s.CancelOrder(ctx, order.ID, models.OrderStatusPending, "again")
	assert.True(t, errors.Is(err, ErrStale))

	err = s.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPaid, nil)
	assert.True(t, errors.Is(err, ErrStale))
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, s, 1)

	order := &models.Order{
		OrderNumber:     fmt.Sprintf("VHAFAIL%d", time.Now().UnixNano()%1e8),
		UserID:          user.ID,
		ShippingAddress: models.ShippingAddress{FullName: "A", Phone: "0901234567", Street: "1", Ward: "W", District: "D", City: "HN"},
		PaymentMethod:   models.PaymentMethodQR,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
		Items:           []models.OrderItem{{ProductID: product.ID, ProductName: product.Name, Quantity: 2, Price: 1, Subtotal: 2}},
	}
	err := s.CreateOrder(ctx, order, false)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	p, err := s.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestCartItemMergesOnConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, s, 10)

	cart, err := s.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	for _, q := range []int{2, 3} {
		require.NoError(t, s.SaveCartItem(ctx, &models.CartItem{
			CartID: cart.ID, ProductID: product.ID, ProductName: product.Name, Quantity: q, Size: "L", Price: product.Price,
		}))
	}

	cart, err = s.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.ItemCount)
	assert.Equal(t, int64(750000), cart.TotalAmount)
}

func TestFillArrays(t *testing.T) {
	p := &models.Product{Sizes: []string{"M"}}
	fillArrays(p)
	assert.Equal(t, []string{"M"}, []string(p.Sizes))
	assert.NotNil(t, p.Colors)
	assert.NotNil(t, p.Tags)
	assert.Empty(t, p.Colors)
}

func TestListProductsByEffectivePrice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	brand := fmt.Sprintf("brand-%d", suffix)

	for i, p := range []models.Product{
		{Name: "Áo khoác sale", Price: 400000, SalePrice: 150000, IsOnSale: true},
		{Name: "Áo thun", Price: 180000},
		{Name: "Quần tây", Price: 350000, SalePrice: 500000, IsOnSale: true},
	} {
		p.Slug = fmt.Sprintf("p-%d-%d", suffix, i)
		p.Brand = brand
		p.IsActive = true
		require.NoError(t, s.CreateProduct(ctx, &p))
	}

	products, total, err := s.ListProducts(ctx, ProductFilter{Search: brand, MaxPrice: 200000, Sort: SortPriceAsc, ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, "Áo khoác sale", products[0].Name)
	assert.Equal(t, "Áo thun", products[1].Name)

	products, _, err = s.ListProducts(ctx, ProductFilter{Search: brand, Sort: SortPriceDesc})
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Quần tây", products[0].Name)
}

func TestUpsertSetting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSetting(ctx, models.SettingShippingFee, json.RawMessage(`{"fee":25000,"freeThreshold":400000}`))
	require.NoError(t, err)

	got, err := s.GetSetting(ctx, models.SettingShippingFee)
	require.NoError(t, err)
	var fee models.ShippingFeeSetting
	require.NoError(t, json.Unmarshal(got.Value, &fee))
	assert.Equal(t, int64(25000), fee.Fee)

	_, err = s.GetSetting(ctx, "missing.key")
	assert.True(t, errors.Is(err, ErrNotFound))
}
