package service

import (
	"context"
	"encoding/json"
	"time"

	"atelier-service/internal/mailer"
	"atelier-service/internal/models"
	"atelier-service/internal/store"
)

// The interfaces below are the slices of the stores each service uses.
// *store.Store, *redisclient.Client, *chatstore.Store, *broker.EventPublisher
// and *mailer.Mailer satisfy them in production.

type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

type SettingReader interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
}

type UserStore interface {
	ProductReader
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, u *models.User) error
	UpdateUserPassword(ctx context.Context, id int64, hash string) error
	GetWishlist(ctx context.Context, userID int64) ([]int64, error)
	AddToWishlist(ctx context.Context, userID, productID int64) error
	RemoveFromWishlist(ctx context.Context, userID, productID int64) error
}

type SessionStore interface {
	SaveSession(ctx context.Context, sid string, userID int64, ttl time.Duration) error
	ConsumeSession(ctx context.Context, sid string) (int64, error)
	DeleteSession(ctx context.Context, sid string, userID int64) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (int64, error)
}

type CartStore interface {
	ProductReader
	GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	SaveCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

type GuestCartStore interface {
	GetGuestCart(ctx context.Context, guestID string) (*models.Cart, error)
	SaveGuestCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error
	DeleteGuestCart(ctx context.Context, guestID string) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type OrderStore interface {
	ProductReader
	SettingReader
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateOrder(ctx context.Context, order *models.Order, clearCart bool) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, int, error)
	UpdateOrderStatus(ctx context.Context, id int64, from, to string, markPaid bool) error
	CancelOrder(ctx context.Context, id int64, from, reason string) error
	UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string, paidAt *time.Time) error
}

type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type CatalogStore interface {
	ProductReader
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	SearchProductNames(ctx context.Context, keywords []string, limit int) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ListReviews(ctx context.Context, productID int64) ([]models.Review, error)
	AddReview(ctx context.Context, r *models.Review) error
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	CountProductsInCategory(ctx context.Context, id int64) (int, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type AdminStore interface {
	ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, int, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserAccess(ctx context.Context, id int64, role string, isActive bool) error
	DeleteUser(ctx context.Context, id int64) error
	ListSettings(ctx context.Context) ([]models.Setting, error)
	UpsertSetting(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error)
	GetDashboardStats(ctx context.Context, topN, lowStockThreshold int) (*store.DashboardStats, error)
}

type ChatStore interface {
	Create(ctx context.Context, conv *models.ChatConversation) error
	Get(ctx context.Context, sessionID string) (*models.ChatConversation, error)
	AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error
	AddRecommendations(ctx context.Context, sessionID string, productIDs []int64) error
	End(ctx context.Context, sessionID string, satisfaction int) (*models.ChatConversation, error)
}

type ProductSearcher interface {
	SearchProductNames(ctx context.Context, keywords []string, limit int) ([]models.Product, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type OrderEvents interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
}

type ChatEvents interface {
	PublishChatEnded(ctx context.Context, event *models.ChatEndedEvent) error
}

type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}
