package service

import (
	"context"
	"fmt"
	"time"

	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartOwner identifies whose cart an operation targets: a signed-in user or
// a guest id sent in X-Guest-ID.
type CartOwner struct {
	UserID  int64
	GuestID string
}

func (o CartOwner) IsGuest() bool { return o.UserID == 0 }

func (o CartOwner) label() string {
	if o.IsGuest() {
		return "guest"
	}
	return "user"
}

type AddCartItemRequest struct {
	ProductID int64  `json:"productId" binding:"required,min=1"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=99"`
	Size      string `json:"size" binding:"max=20"`
	Color     string `json:"color" binding:"max=40"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0,max=99"`
}

// CartService manages server carts for users and Redis carts for guests
type CartService struct {
	carts    CartStore
	guests   GuestCartStore
	guestTTL time.Duration
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, guests GuestCartStore, guestTTL time.Duration) *CartService {
	return &CartService{
		carts:    carts,
		guests:   guests,
		guestTTL: guestTTL,
		logger:   util.GetLogger(),
	}
}

// Get returns the owner's cart
func (s *CartService) Get(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if err := s.checkOwner(owner); err != nil {
		return nil, err
	}
	if owner.IsGuest() {
		return s.guests.GetGuestCart(ctx, owner.GuestID)
	}
	return s.carts.GetOrCreateCart(ctx, owner.UserID)
}

// AddItem adds a product variant, merging with an existing line of the same
// product, size and color.
func (s *CartService) AddItem(ctx context.Context, owner CartOwner, req *AddCartItemRequest) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem",
		attribute.Int64("product_id", req.ProductID), attribute.String("owner", owner.label()))
	defer span.End()

	cart, err := s.Get(ctx, owner)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	product, err := s.carts.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm")
	}
	already := 0
	if line := cart.Find(req.ProductID, req.Size, req.Color); line != nil {
		already = line.Quantity
	}
	if err := validateVariant(product, req.Size, req.Color, already+req.Quantity); err != nil {
		return nil, err
	}

	item := models.CartItem{
		CartID:      cart.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Image:       product.MainImage(),
		Quantity:    req.Quantity,
		Size:        req.Size,
		Color:       req.Color,
		Price:       product.EffectivePrice(),
	}

	if owner.IsGuest() {
		cart.Add(item)
		err = s.guests.SaveGuestCart(ctx, cart, s.guestTTL)
	} else {
		err = s.carts.SaveCartItem(ctx, &item)
	}
	if err != nil {
		return nil, util.SpanError(span, fmt.Errorf("failed to add cart item: %w", err))
	}

	util.CartMutationsTotal.WithLabelValues("add", owner.label()).Inc()
	return s.reload(ctx, owner, cart)
}

// UpdateItem sets a line's quantity. Zero or less removes the line.
func (s *CartService) UpdateItem(ctx context.Context, owner CartOwner, itemID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, itemID)
	}

	cart, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	line := cart.Item(itemID)
	if line == nil {
		return nil, newError(ErrNotFound, "Không tìm thấy sản phẩm trong giỏ hàng")
	}

	product, err := s.carts.GetProductByID(ctx, line.ProductID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm")
	}
	if quantity > product.Stock {
		return nil, stockError(product)
	}

	if owner.IsGuest() {
		if _, err := cart.Update(itemID, quantity); err != nil {
			return nil, err
		}
		err = s.guests.SaveGuestCart(ctx, cart, s.guestTTL)
	} else {
		err = s.carts.UpdateCartItemQuantity(ctx, cart.ID, itemID, quantity)
	}
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm trong giỏ hàng")
	}

	util.CartMutationsTotal.WithLabelValues("update", owner.label()).Inc()
	return s.reload(ctx, owner, cart)
}

// RemoveItem deletes a line
func (s *CartService) RemoveItem(ctx context.Context, owner CartOwner, itemID int64) (*models.Cart, error) {
	cart, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if owner.IsGuest() {
		if err := cart.Remove(itemID); err != nil {
			return nil, &Error{Kind: ErrNotFound, Message: "Không tìm thấy sản phẩm trong giỏ hàng", Cause: err}
		}
		err = s.guests.SaveGuestCart(ctx, cart, s.guestTTL)
	} else {
		err = s.carts.DeleteCartItem(ctx, cart.ID, itemID)
	}
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm trong giỏ hàng")
	}

	util.CartMutationsTotal.WithLabelValues("remove", owner.label()).Inc()
	return s.reload(ctx, owner, cart)
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if err := s.checkOwner(owner); err != nil {
		return nil, err
	}

	var err error
	if owner.IsGuest() {
		err = s.guests.DeleteGuestCart(ctx, owner.GuestID)
	} else {
		err = s.carts.ClearCart(ctx, owner.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("clear", owner.label()).Inc()
	return s.Get(ctx, owner)
}

// MergeGuestCart folds a guest cart into the user's cart and deletes it.
// Lines are merged with the add rule and capped at current stock; products
// that are gone or inactive are dropped. An absent or empty guest cart is a
// no-op, and a concurrent merge of the same guest cart is skipped.
func (s *CartService) MergeGuestCart(ctx context.Context, userID int64, guestID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.MergeGuestCart", attribute.Int64("user_id", userID))
	defer span.End()

	owner := CartOwner{UserID: userID}
	if guestID == "" {
		return s.Get(ctx, owner)
	}

	lockKey := "cart-merge:" + guestID
	acquired, err := s.guests.AcquireLock(ctx, lockKey, 30*time.Second)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	if !acquired {
		return s.Get(ctx, owner)
	}
	defer func() {
		if err := s.guests.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release merge lock", zap.String("guest_id", guestID), zap.Error(err))
		}
	}()

	guest, err := s.guests.GetGuestCart(ctx, guestID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	if guest.IsEmpty {
		return s.Get(ctx, owner)
	}

	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	merged := 0
	for _, gi := range guest.Items {
		product, err := s.carts.GetProductByID(ctx, gi.ProductID)
		if err != nil || !product.IsActive {
			s.logger.Info("Dropping unavailable guest cart line", zap.Int64("product_id", gi.ProductID))
			continue
		}

		qty := gi.Quantity
		if line := cart.Find(gi.ProductID, gi.Size, gi.Color); line != nil && line.Quantity+qty > product.Stock {
			qty = product.Stock - line.Quantity
		} else if qty > product.Stock {
			qty = product.Stock
		}
		if qty <= 0 {
			continue
		}

		item := models.CartItem{
			CartID:      cart.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Image:       product.MainImage(),
			Quantity:    qty,
			Size:        gi.Size,
			Color:       gi.Color,
			Price:       product.EffectivePrice(),
		}
		if err := s.carts.SaveCartItem(ctx, &item); err != nil {
			return nil, util.SpanError(span, fmt.Errorf("failed to merge cart item: %w", err))
		}
		cart.Add(item)
		merged++
	}

	if err := s.guests.DeleteGuestCart(ctx, guestID); err != nil {
		s.logger.Warn("Failed to delete merged guest cart", zap.String("guest_id", guestID), zap.Error(err))
	}

	util.CartMutationsTotal.WithLabelValues("merge", "user").Inc()
	s.logger.Info("Guest cart merged",
		zap.Int64("user_id", userID),
		zap.String("guest_id", guestID),
		zap.Int("lines", merged))
	return s.Get(ctx, owner)
}

func (s *CartService) checkOwner(owner CartOwner) error {
	if owner.UserID == 0 && owner.GuestID == "" {
		return newError(ErrUnauthorized, "Thiếu thông tin giỏ hàng")
	}
	return nil
}

// reload returns the cart to hand back after a mutation. Guest carts are
// already current in memory; server carts are re-read for database ids.
func (s *CartService) reload(ctx context.Context, owner CartOwner, cart *models.Cart) (*models.Cart, error) {
	if owner.IsGuest() {
		return cart, nil
	}
	return s.carts.GetOrCreateCart(ctx, owner.UserID)
}

func validateVariant(p *models.Product, size, color string, quantity int) error {
	if !p.IsActive {
		return newError(ErrNotFound, "Sản phẩm không còn được bán")
	}
	if len(p.Sizes) > 0 && size == "" {
		return newError(ErrInvalidInput, "Vui lòng chọn kích cỡ")
	}
	if size != "" && !p.HasSize(size) {
		return newError(ErrInvalidInput, "Kích cỡ không hợp lệ")
	}
	if len(p.Colors) > 0 && color == "" {
		return newError(ErrInvalidInput, "Vui lòng chọn màu sắc")
	}
	if color != "" && !p.HasColor(color) {
		return newError(ErrInvalidInput, "Màu sắc không hợp lệ")
	}
	if quantity > p.Stock {
		return stockError(p)
	}
	return nil
}

func stockError(p *models.Product) error {
	return newError(ErrInsufficientStock, fmt.Sprintf("Sản phẩm %s chỉ còn %d trong kho", p.Name, p.Stock))
}
