package service

import (
	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"go.uber.org/zap"
)

// Default page sizes
const (
	DefaultPublicLimit = 12
	DefaultAdminLimit  = 20
	MaxLimit           = 100
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// Page is one page of a list response
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// NormalizePage clamps paging input: page >= 1 and 1 <= limit <= MaxLimit,
// with def used when limit is unset.
func NormalizePage(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func newPage[T any](items []T, page, limit, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Pagination: models.NewPagination(page, limit, total)}
}

// logPublish records a failed event publish. Publishing never fails the request.
func logPublish(logger *zap.Logger, eventType string, err error) {
	if err == nil {
		return
	}
	util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
	logger.Error("Failed to publish event", zap.String("type", eventType), zap.Error(err))
}
