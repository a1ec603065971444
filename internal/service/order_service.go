package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"atelier-service/internal/broker"
	"atelier-service/internal/models"
	"atelier-service/internal/redisclient"
	"atelier-service/internal/store"
	"atelier-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Shipping defaults, overridable through the shipping.fee setting
const (
	DefaultShippingFee      int64 = 30000
	DefaultFreeShippingFrom int64 = 500000
)

const (
	idempotencyTTL      = 24 * time.Hour
	orderNumberAttempts = 3
)

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	idempotency    IdempotencyStore
	eventPublisher OrderEvents
	logger         *zap.Logger
	now            func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, idempotency IdempotencyStore, eventPublisher OrderEvents) *OrderService {
	return &OrderService{
		store:          store,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress" binding:"required"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"required,oneof=cod qr"`
	Notes           string                 `json:"notes" binding:"max=500"`
	IdempotencyKey  string                 `json:"-"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64  `json:"productId" binding:"required,min=1"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=99"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// CreateOrder validates and prices the items, then writes the order, its
// stock decrements and the cart clear as one transaction. A repeated
// idempotency key returns the order created by the first request.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", userID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	if userID == 0 {
		return nil, newError(ErrUnauthorized, "Vui lòng đăng nhập để đặt hàng")
	}
	if len(req.Items) == 0 {
		return nil, newError(ErrEmptyCart, "Giỏ hàng trống")
	}

	idemKey := ""
	if req.IdempotencyKey != "" {
		idemKey = fmt.Sprintf("order:%d:%s", userID, req.IdempotencyKey)
		if existing := s.replay(ctx, idemKey); existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, nil
		}
	}

	items, subtotal, err := s.buildItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, util.SpanError(span, err)
	}

	fee := s.shippingFee(ctx, subtotal)
	order := &models.Order{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
		Subtotal:        subtotal,
		ShippingFee:     fee,
		TotalAmount:     subtotal + fee,
		Notes:           req.Notes,
		Items:           items,
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = util.NewOrderNumber(s.now())
		err = s.store.CreateOrder(ctx, order, true)
		if errors.Is(err, store.ErrDuplicate) && attempt < orderNumberAttempts {
			continue
		}
		break
	}
	if err != nil {
		reason := "db_error"
		if errors.Is(err, store.ErrInsufficientStock) {
			reason = "insufficient_stock"
		}
		util.OrdersFailedTotal.WithLabelValues(reason).Inc()
		return nil, util.SpanError(span, classify(err, "Không thể tạo đơn hàng"))
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.TotalAmount))

	if idemKey != "" {
		if err := s.idempotency.SetIdempotencyKey(ctx, idemKey, order.ID, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	s.publishCreated(ctx, order)
	return order, nil
}

func (s *OrderService) replay(ctx context.Context, key string) *models.Order {
	v, err := s.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, redisclient.ErrNotFound) {
			s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		}
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil
	}
	return order
}

// buildItems re-reads every product and snapshots it by value at its current
// effective price.
func (s *OrderService) buildItems(ctx context.Context, reqItems []OrderItemRequest) ([]models.OrderItem, int64, error) {
	ids := make([]int64, 0, len(reqItems))
	wanted := make(map[int64]int)
	for _, it := range reqItems {
		if _, seen := wanted[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		wanted[it.ProductID] += it.Quantity
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	var subtotal int64
	for _, it := range reqItems {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, 0, newError(ErrNotFound, fmt.Sprintf("Không tìm thấy sản phẩm #%d", it.ProductID))
		}
		if err := validateVariant(p, it.Size, it.Color, wanted[p.ID]); err != nil {
			return nil, 0, err
		}

		price := p.EffectivePrice()
		line := models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Image:       p.MainImage(),
			Size:        it.Size,
			Color:       it.Color,
			Price:       price,
			Quantity:    it.Quantity,
			Subtotal:    price * int64(it.Quantity),
		}
		subtotal += line.Subtotal
		items = append(items, line)
	}
	return items, subtotal, nil
}

// shippingFee applies the shipping.fee setting, falling back to the defaults.
func (s *OrderService) shippingFee(ctx context.Context, subtotal int64) int64 {
	rule := models.ShippingFeeSetting{Fee: DefaultShippingFee, FreeThreshold: DefaultFreeShippingFrom}
	if setting, err := s.store.GetSetting(ctx, models.SettingShippingFee); err == nil {
		if err := json.Unmarshal(setting.Value, &rule); err != nil {
			s.logger.Warn("Invalid shipping.fee setting", zap.Error(err))
			rule = models.ShippingFeeSetting{Fee: DefaultShippingFee, FreeThreshold: DefaultFreeShippingFrom}
		}
	}
	if rule.FreeThreshold > 0 && subtotal >= rule.FreeThreshold {
		return 0
	}
	return rule.Fee
}

// GetOrder returns an order visible to the actor
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "Bạn không có quyền xem đơn hàng này")
	}
	return order, nil
}

// ListMyOrders pages through the user's orders, newest first
func (s *OrderService) ListMyOrders(ctx context.Context, userID int64, page, limit int, status string) (*Page[models.Order], error) {
	page, limit = NormalizePage(page, limit, DefaultPublicLimit)
	orders, total, err := s.store.ListOrders(ctx, store.OrderFilter{UserID: &userID, Status: status, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	return newPage(orders, page, limit, total), nil
}

// ListOrders pages through all orders for the back office
func (s *OrderService) ListOrders(ctx context.Context, status, search string, page, limit int) (*Page[models.Order], error) {
	page, limit = NormalizePage(page, limit, DefaultAdminLimit)
	orders, total, err := s.store.ListOrders(ctx, store.OrderFilter{Status: status, Search: search, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	return newPage(orders, page, limit, total), nil
}

// CancelOrder lets the owner cancel a pending or confirmed order. Stock is
// restored in the same transaction.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	if order.UserID != userID {
		return nil, newError(ErrForbidden, "Bạn không có quyền hủy đơn hàng này")
	}
	return s.cancel(ctx, order, reason, "customer")
}

func (s *OrderService) cancel(ctx context.Context, order *models.Order, reason, by string) (*models.Order, error) {
	if !models.CanTransition(order.Status, models.OrderStatusCancelled) {
		return nil, newError(ErrInvalidTransition, "Không thể hủy đơn hàng ở trạng thái hiện tại")
	}
	if err := s.store.CancelOrder(ctx, order.ID, order.Status, reason); err != nil {
		return nil, classify(err, "Đơn hàng đã thay đổi trạng thái, vui lòng tải lại")
	}

	util.OrdersCancelledTotal.WithLabelValues(by).Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("by", by),
		zap.String("reason", reason))

	email := s.customerEmail(ctx, order.UserID)
	logPublish(s.logger, models.EventTypeOrderCancelled, s.eventPublisher.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Email:       email,
		Reason:      reason,
		CancelledBy: by,
	}))

	return s.store.GetOrderByID(ctx, order.ID)
}

// UpdateStatus is the admin status change. Cancelling restores stock;
// delivering a COD order marks it paid.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order_id", orderID), attribute.String("status", status))
	defer span.End()

	if !models.IsValidOrderStatus(status) {
		return nil, newError(ErrInvalidInput, "Trạng thái đơn hàng không hợp lệ")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	if status == models.OrderStatusCancelled {
		return s.cancel(ctx, order, reason, "admin")
	}
	if !models.CanTransition(order.Status, status) {
		return nil, newError(ErrInvalidTransition,
			fmt.Sprintf("Không thể chuyển đơn hàng từ %s sang %s", order.Status, status))
	}

	markPaid := status == models.OrderStatusDelivered && order.PaymentMethod == models.PaymentMethodCOD
	if err := s.store.UpdateOrderStatus(ctx, order.ID, order.Status, status, markPaid); err != nil {
		return nil, util.SpanError(span, classify(err, "Đơn hàng đã thay đổi trạng thái, vui lòng tải lại"))
	}

	util.OrderStatusChangesTotal.WithLabelValues(status).Inc()
	logPublish(s.logger, models.EventTypeOrderStatusChanged, s.eventPublisher.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Email:       s.customerEmail(ctx, order.UserID),
		OldStatus:   order.Status,
		NewStatus:   status,
	}))

	return s.store.GetOrderByID(ctx, order.ID)
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderCreated),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CustomerName:  order.ShippingAddress.FullName,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Items:         items,
	}
	if user, err := s.store.GetUserByID(ctx, order.UserID); err == nil {
		event.Email = user.Email
	}
	logPublish(s.logger, models.EventTypeOrderCreated, s.eventPublisher.PublishOrderCreated(ctx, event))
}

func (s *OrderService) customerEmail(ctx context.Context, userID int64) string {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Email
}
