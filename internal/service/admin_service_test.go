package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"atelier-service/internal/models"
	"atelier-service/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestAdmin_UpdateUser(t *testing.T) {
	st := newMemStore()
	sessions := newMemRedis()
	svc := NewAdminService(st, sessions)
	ctx := context.Background()

	admin := st.addUser(models.User{Email: "admin@vha.vn", Role: models.RoleAdmin, IsActive: true})
	user := st.addUser(models.User{Email: "khach@vha.vn", IsActive: true})
	require.NoError(t, sessions.SaveSession(ctx, "sid-1", user.ID, 0))
	actor := Actor{UserID: admin.ID, Role: models.RoleAdmin}

	_, err := svc.UpdateUser(ctx, actor, admin.ID, &UpdateUserRequest{Role: strPtr(models.RoleUser)})
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = svc.UpdateUser(ctx, actor, admin.ID, &UpdateUserRequest{IsActive: boolPtr(false)})
	assert.True(t, errors.Is(err, ErrForbidden))

	updated, err := svc.UpdateUser(ctx, actor, user.ID, &UpdateUserRequest{IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, models.RoleUser, updated.Role)
	_, err = sessions.ConsumeSession(ctx, "sid-1")
	assert.True(t, errors.Is(err, redisclient.ErrNotFound))

	promoted, err := svc.UpdateUser(ctx, actor, user.ID, &UpdateUserRequest{Role: strPtr(models.RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
	assert.False(t, promoted.IsActive)

	_, err = svc.UpdateUser(ctx, actor, 9999, &UpdateUserRequest{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdmin_DeleteUser(t *testing.T) {
	st := newMemStore()
	sessions := newMemRedis()
	svc := NewAdminService(st, sessions)
	ctx := context.Background()

	admin := st.addUser(models.User{Role: models.RoleAdmin, IsActive: true})
	user := st.addUser(models.User{IsActive: true})
	require.NoError(t, sessions.SaveSession(ctx, "sid-2", user.ID, 0))
	actor := Actor{UserID: admin.ID, Role: models.RoleAdmin}

	assert.True(t, errors.Is(svc.DeleteUser(ctx, actor, admin.ID), ErrForbidden))
	require.NoError(t, svc.DeleteUser(ctx, actor, user.ID))
	_, err := sessions.ConsumeSession(ctx, "sid-2")
	assert.Error(t, err)
	assert.True(t, errors.Is(svc.DeleteUser(ctx, actor, user.ID), ErrNotFound))
}

func TestAdmin_UpsertSetting(t *testing.T) {
	st := newMemStore()
	svc := NewAdminService(st, newMemRedis())
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value string
		ok    bool
	}{
		{"bank", models.SettingPaymentBank, `{"bankId":"970436","accountNo":"0123456789","accountName":"VHA ATELIER"}`, true},
		{"bank missing account", models.SettingPaymentBank, `{"bankId":"970436"}`, false},
		{"shipping", models.SettingShippingFee, `{"fee":25000,"freeThreshold":400000}`, true},
		{"negative fee", models.SettingShippingFee, `{"fee":-1,"freeThreshold":0}`, false},
		{"shipping wrong shape", models.SettingShippingFee, `"free"`, false},
		{"free-form", "store.hotline", `"1900 1234"`, true},
		{"blank key", "  ", `{}`, false},
		{"invalid json", "store.hotline", `{nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertSetting(ctx, tt.key, json.RawMessage(tt.value))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
			}
		})
	}

	settings, err := svc.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 3)
	assert.Equal(t, models.SettingPaymentBank, settings[0].Key)
}

func TestAdmin_Dashboard(t *testing.T) {
	st := newMemStore()
	svc := NewAdminService(st, newMemRedis())
	st.addUser(models.User{IsActive: true})
	st.addProduct(models.Product{Name: "Áo", Price: 1, Stock: 2, IsActive: true})
	st.addProduct(models.Product{Name: "Quần", Price: 1, Stock: 50, IsActive: true})
	st.orders[1] = &models.Order{ID: 1, Status: models.OrderStatusDelivered, TotalAmount: 330000}
	st.orders[2] = &models.Order{ID: 2, Status: models.OrderStatusPending, PaymentStatus: models.PaymentStatusPending, TotalAmount: 100000}

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, int64(330000), stats.TotalRevenue)
	assert.Equal(t, 1, stats.OrdersByStatus[models.OrderStatusPending])
	require.Len(t, stats.LowStock, 1)
	assert.Equal(t, "Áo", stats.LowStock[0].Name)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit, def    int
		wantPage, wantLimit int
	}{
		{0, 0, 12, 1, 12},
		{-3, -1, 20, 1, 20},
		{4, 30, 12, 4, 30},
		{2, 500, 12, 2, MaxLimit},
	}
	for _, tt := range tests {
		page, limit := NormalizePage(tt.page, tt.limit, tt.def)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

func TestActorIsAdmin(t *testing.T) {
	assert.True(t, Actor{Role: models.RoleAdmin}.IsAdmin())
	assert.False(t, Actor{Role: models.RoleUser}.IsAdmin())
}
