package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertTotals(t *testing.T, c *Cart) {
	t.Helper()
	count := 0
	var total int64
	for _, it := range c.Items {
		count += it.Quantity
		total += it.Price * int64(it.Quantity)
	}
	assert.Equal(t, count, c.ItemCount)
	assert.Equal(t, total, c.TotalAmount)
	assert.Equal(t, len(c.Items) == 0, c.IsEmpty)
}

func TestCartAddMergesSameLine(t *testing.T) {
	c := NewCart()

	_, merged := c.Add(CartItem{ProductID: 1, Size: "M", Color: "Đen", Price: 250000, Quantity: 2})
	assert.False(t, merged)

	line, merged := c.Add(CartItem{ProductID: 1, Size: "M", Color: "Đen", Price: 250000, Quantity: 3})
	assert.True(t, merged)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, line.Quantity)
	assert.Equal(t, 5, c.ItemCount)
	assert.Equal(t, int64(1250000), c.TotalAmount)
	assertTotals(t, c)
}

func TestCartAddDistinctVariants(t *testing.T) {
	c := NewCart()
	c.Add(CartItem{ProductID: 1, Size: "M", Color: "Đen", Price: 100, Quantity: 1})
	c.Add(CartItem{ProductID: 1, Size: "L", Color: "Đen", Price: 100, Quantity: 1})
	c.Add(CartItem{ProductID: 1, Size: "M", Color: "Trắng", Price: 100, Quantity: 1})

	require.Len(t, c.Items, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{c.Items[0].ID, c.Items[1].ID, c.Items[2].ID})
	assertTotals(t, c)
}

func TestCartUpdate(t *testing.T) {
	c := NewCart()
	a, _ := c.Add(CartItem{ProductID: 1, Price: 1000, Quantity: 1})
	b, _ := c.Add(CartItem{ProductID: 2, Price: 500, Quantity: 4})

	removed, err := c.Update(a.ID, 3)
	require.NoError(t, err)
	assert.False(t, removed)
	assertTotals(t, c)
	assert.Equal(t, int64(3*1000+4*500), c.TotalAmount)

	removed, err = c.Update(b.ID, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	require.Len(t, c.Items, 1)
	assertTotals(t, c)

	_, err = c.Update(99, 2)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartRemoveLastItem(t *testing.T) {
	c := NewCart()
	a, _ := c.Add(CartItem{ProductID: 7, Price: 199000, Quantity: 2})

	require.NoError(t, c.Remove(a.ID))
	assert.True(t, c.IsEmpty)
	assert.Equal(t, 0, c.ItemCount)
	assert.Equal(t, int64(0), c.TotalAmount)

	assert.ErrorIs(t, c.Remove(a.ID), ErrCartItemNotFound)
}

func TestCartClear(t *testing.T) {
	c := NewCart()
	c.Add(CartItem{ProductID: 1, Price: 10, Quantity: 1})
	c.Add(CartItem{ProductID: 2, Price: 20, Quantity: 2})

	c.Clear()
	assert.True(t, c.IsEmpty)
	assert.NotNil(t, c.Items)
	assertTotals(t, c)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEffectivePrice(t *testing.T) {
	p := &Product{Price: 500000, SalePrice: 350000, IsOnSale: true}
	assert.Equal(t, int64(350000), p.EffectivePrice())

	p.IsOnSale = false
	assert.Equal(t, int64(500000), p.EffectivePrice())

	p = &Product{Price: 500000, SalePrice: 600000, IsOnSale: true}
	assert.Equal(t, int64(500000), p.EffectivePrice())
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, 3, NewPagination(1, 10, 21).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	assert.Equal(t, 1, NewPagination(1, 10, 10).TotalPages)
}
