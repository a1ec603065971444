package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"atelier-service/internal/chatstore"
	"atelier-service/internal/mailer"
	"atelier-service/internal/models"
	"atelier-service/internal/redisclient"
	"atelier-service/internal/store"
)

// memStore is an in-memory stand-in for *store.Store.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	products   map[int64]*models.Product
	categories map[int64]*models.Category
	users      map[int64]*models.User
	carts      map[int64]*models.Cart
	orders     map[int64]*models.Order
	reviews    []models.Review
	wishlists  map[int64][]int64
	settings   map[string]json.RawMessage

	createOrderErrs []error
	listCalls       int

	// afterOrderRead runs once after the next GetOrderByID, standing in for
	// a concurrent writer.
	afterOrderRead func(id int64)
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     100,
		products:   map[int64]*models.Product{},
		categories: map[int64]*models.Category{},
		users:      map[int64]*models.User{},
		carts:      map[int64]*models.Cart{},
		orders:     map[int64]*models.Order{},
		wishlists:  map[int64][]int64{},
		settings:   map[string]json.RawMessage{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addProduct(p models.Product) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.products[p.ID] = &p
	return &p
}

func (m *memStore) addUser(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.id()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	m.users[u.ID] = &u
	return &u
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func notFoundErr(what string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", what, key, store.ErrNotFound)
}

func staleErr(what string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", what, key, store.ErrStale)
}

// products

func (m *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, notFoundErr("product", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, notFoundErr("product", slug)
}

func (m *memStore) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	out := []models.Product{}
	for _, p := range m.products {
		switch {
		case f.ActiveOnly && !p.IsActive,
			f.Featured && !p.IsFeatured,
			f.OnSale && !p.IsOnSale,
			f.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *f.CategoryID),
			f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)):
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memStore) SearchProductNames(ctx context.Context, keywords []string, limit int) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []models.Product{}
	for _, id := range ids {
		p := m.products[id]
		if !p.IsActive || p.Stock <= 0 {
			continue
		}
		for _, k := range keywords {
			if strings.Contains(strings.ToLower(p.Name), k) {
				out = append(out, *p)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.Slug == p.Slug {
			return fmt.Errorf("product slug %s: %w", p.Slug, store.ErrDuplicate)
		}
	}
	p.ID = m.id()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return notFoundErr("product", p.ID)
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return notFoundErr("product", id)
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Review{}
	for _, r := range m.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) AddReview(ctx context.Context, r *models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return fmt.Errorf("review: %w", store.ErrDuplicate)
		}
	}
	r.ID = m.id()
	m.reviews = append(m.reviews, *r)
	return nil
}

// categories

func (m *memStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memStore) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, notFoundErr("category", id)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFoundErr("category", slug)
}

func (m *memStore) CreateCategory(ctx context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.Slug == c.Slug {
			return fmt.Errorf("category slug %s: %w", c.Slug, store.ErrDuplicate)
		}
	}
	c.ID = m.id()
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return notFoundErr("category", c.ID)
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memStore) CountProductsInCategory(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteCategory(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return notFoundErr("category", id)
	}
	delete(m.categories, id)
	return nil
}

// users

func (m *memStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, store.ErrDuplicate)
		}
	}
	u.ID = m.id()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFoundErr("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr("user", email)
}

func (m *memStore) UpdateUserProfile(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return notFoundErr("user", u.ID)
	}
	existing.Name, existing.Phone, existing.Address = u.Name, u.Phone, u.Address
	return nil
}

func (m *memStore) UpdateUserPassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFoundErr("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) UpdateUserAccess(ctx context.Context, id int64, role string, isActive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return notFoundErr("user", id)
	}
	u.Role, u.IsActive = role, isActive
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return notFoundErr("user", id)
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListUsers(ctx context.Context, f store.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memStore) GetWishlist(ctx context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64{}, m.wishlists[userID]...), nil
}

func (m *memStore) AddToWishlist(ctx context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.wishlists[userID] {
		if id == productID {
			return nil
		}
	}
	m.wishlists[userID] = append(m.wishlists[userID], productID)
	return nil
}

func (m *memStore) RemoveFromWishlist(ctx context.Context, userID, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.wishlists[userID][:0]
	for _, id := range m.wishlists[userID] {
		if id != productID {
			ids = append(ids, id)
		}
	}
	m.wishlists[userID] = ids
	return nil
}

// carts

func copyCart(c *models.Cart) *models.Cart {
	cp := *c
	cp.Items = append([]models.CartItem{}, c.Items...)
	cp.Recalculate()
	return &cp
}

func (m *memStore) GetOrCreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = models.NewCart()
		c.ID = m.id()
		c.UserID = userID
		m.carts[userID] = c
	}
	return copyCart(c), nil
}

func (m *memStore) cartByID(cartID int64) *models.Cart {
	for _, c := range m.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (m *memStore) SaveCartItem(ctx context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(item.CartID)
	if c == nil {
		return notFoundErr("cart", item.CartID)
	}
	if item.ID == 0 && c.Find(item.ProductID, item.Size, item.Color) == nil {
		item.ID = m.id()
	}
	line, _ := c.Add(*item)
	*item = line
	return nil
}

func (m *memStore) UpdateCartItemQuantity(ctx context.Context, cartID, itemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(cartID)
	if c == nil || c.Item(itemID) == nil {
		return notFoundErr("cart item", itemID)
	}
	_, err := c.Update(itemID, quantity)
	return err
}

func (m *memStore) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cartByID(cartID)
	if c == nil || c.Remove(itemID) != nil {
		return notFoundErr("cart item", itemID)
	}
	return nil
}

func (m *memStore) ClearCart(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[userID]; ok {
		c.Clear()
	}
	return nil
}

// orders

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem{}, o.Items...)
	return &cp
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order, clearCart bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createOrderErrs) > 0 {
		err := m.createOrderErrs[0]
		m.createOrderErrs = m.createOrderErrs[1:]
		return err
	}
	for _, it := range order.Items {
		p, ok := m.products[it.ProductID]
		if !ok || !p.IsActive || p.Stock < it.Quantity {
			return fmt.Errorf("product %d: %w", it.ProductID, store.ErrInsufficientStock)
		}
	}
	for _, it := range order.Items {
		m.products[it.ProductID].Stock -= it.Quantity
	}

	order.ID = m.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = m.id()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(order)

	if clearCart {
		if c, ok := m.carts[order.UserID]; ok {
			c.Clear()
		}
	}
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	var out *models.Order
	if ok {
		out = copyOrder(o)
	}
	hook := m.afterOrderRead
	m.afterOrderRead = nil
	m.mu.Unlock()

	if !ok {
		return nil, notFoundErr("order", id)
	}
	if hook != nil {
		hook(id)
	}
	return out, nil
}

// setOrderState overwrites an order's status fields directly.
func (m *memStore) setOrderState(id int64, status, paymentStatus string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
	m.orders[id].PaymentStatus = paymentStatus
}

func (m *memStore) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, id int64, from, to string, markPaid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return staleErr("order in status "+from, id)
	}
	o.Status = to
	if markPaid {
		o.PaymentStatus = models.PaymentStatusPaid
		now := time.Now()
		o.PaidAt = &now
	}
	return nil
}

func (m *memStore) CancelOrder(ctx context.Context, id int64, from, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return staleErr("order in status "+from, id)
	}
	o.Status = models.OrderStatusCancelled
	o.CancelReason = reason
	for _, it := range o.Items {
		if p, ok := m.products[it.ProductID]; ok {
			p.Stock += it.Quantity
		}
	}
	return nil
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string, paidAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status == models.OrderStatusCancelled || o.PaymentStatus == models.PaymentStatusPaid {
		return staleErr("unpaid open order", id)
	}
	o.PaymentStatus = paymentStatus
	o.PaidAt = paidAt
	if paymentStatus == models.PaymentStatusPaid && o.Status == models.OrderStatusPending {
		o.Status = models.OrderStatusConfirmed
	}
	return nil
}

// settings and stats

func (m *memStore) setSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = json.RawMessage(value)
}

func (m *memStore) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return nil, notFoundErr("setting", key)
	}
	return &models.Setting{Key: key, Value: v}, nil
}

func (m *memStore) ListSettings(ctx context.Context) ([]models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Setting{}
	for k, v := range m.settings {
		out = append(out, models.Setting{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) UpsertSetting(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	m.setSetting(key, string(value))
	return &models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}, nil
}

func (m *memStore) GetDashboardStats(ctx context.Context, topN, lowStockThreshold int) (*store.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &store.DashboardStats{
		TotalUsers:     len(m.users),
		TotalProducts:  len(m.products),
		TotalOrders:    len(m.orders),
		OrdersByStatus: map[string]int{},
		LowStock:       []models.Product{},
	}
	for _, o := range m.orders {
		stats.OrdersByStatus[o.Status]++
		if o.Status == models.OrderStatusDelivered || o.PaymentStatus == models.PaymentStatusPaid {
			stats.TotalRevenue += o.TotalAmount
		}
	}
	for _, p := range m.products {
		if p.IsActive && p.Stock <= lowStockThreshold {
			stats.LowStock = append(stats.LowStock, *p)
		}
	}
	return stats, nil
}

// memRedis is an in-memory stand-in for *redisclient.Client.
type memRedis struct {
	mu           sync.Mutex
	sessions     map[string]int64
	userSessions map[int64]map[string]bool
	resets       map[string]int64
	guestCarts   map[string][]byte
	idempotency  map[string]string
	cache        map[string][]byte
	locks        map[string]bool
	counters     map[string]int
}

func newMemRedis() *memRedis {
	return &memRedis{
		sessions:     map[string]int64{},
		userSessions: map[int64]map[string]bool{},
		resets:       map[string]int64{},
		guestCarts:   map[string][]byte{},
		idempotency:  map[string]string{},
		cache:        map[string][]byte{},
		locks:        map[string]bool{},
		counters:     map[string]int{},
	}
}

func (r *memRedis) SaveSession(ctx context.Context, sid string, userID int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = userID
	if r.userSessions[userID] == nil {
		r.userSessions[userID] = map[string]bool{}
	}
	r.userSessions[userID][sid] = true
	return nil
}

func (r *memRedis) ConsumeSession(ctx context.Context, sid string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.sessions[sid]
	if !ok {
		return 0, redisclient.ErrNotFound
	}
	delete(r.sessions, sid)
	delete(r.userSessions[id], sid)
	return id, nil
}

func (r *memRedis) DeleteSession(ctx context.Context, sid string, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	delete(r.userSessions[userID], sid)
	return nil
}

func (r *memRedis) DeleteUserSessions(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid := range r.userSessions[userID] {
		delete(r.sessions, sid)
	}
	delete(r.userSessions, userID)
	return nil
}

func (r *memRedis) SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[token] = userID
	return nil
}

func (r *memRedis) ConsumeResetToken(ctx context.Context, token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.resets[token]
	if !ok {
		return 0, redisclient.ErrNotFound
	}
	delete(r.resets, token)
	return id, nil
}

func (r *memRedis) GetGuestCart(ctx context.Context, guestID string) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := models.NewCart()
	if raw, ok := r.guestCarts[guestID]; ok {
		if err := json.Unmarshal(raw, cart); err != nil {
			return nil, err
		}
	}
	cart.GuestID = guestID
	cart.Recalculate()
	return cart, nil
}

func (r *memRedis) SaveGuestCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guestCarts[cart.GuestID] = raw
	return nil
}

func (r *memRedis) DeleteGuestCart(ctx context.Context, guestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guestCarts, guestID)
	return nil
}

func (r *memRedis) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[lockKey] {
		return false, nil
	}
	r.locks[lockKey] = true
	return true, nil
}

func (r *memRedis) ReleaseLock(ctx context.Context, lockKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, lockKey)
	return nil
}

func (r *memRedis) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.idempotency[key]
	if !ok {
		return "", redisclient.ErrNotFound
	}
	return v, nil
}

func (r *memRedis) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idempotency[key] = fmt.Sprint(value)
	return nil
}

func (r *memRedis) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	r.mu.Lock()
	raw, ok := r.cache[key]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (r *memRedis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = raw
	return nil
}

func (r *memRedis) InvalidatePrefix(ctx context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.cache {
		if strings.HasPrefix(k, prefix) {
			delete(r.cache, k)
		}
	}
	return nil
}

func (r *memRedis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
	return r.counters[key] <= limit, nil
}

// recordingEvents captures published events by type.
type recordingEvents struct {
	mu     sync.Mutex
	types  []string
	last   map[string]interface{}
	failed error
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{last: map[string]interface{}{}}
}

func (e *recordingEvents) record(eventType string, event interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed != nil {
		return e.failed
	}
	e.types = append(e.types, eventType)
	e.last[eventType] = event
	return nil
}

func (e *recordingEvents) count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func (e *recordingEvents) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return e.record(event.EventType, event)
}

func (e *recordingEvents) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return e.record(event.EventType, event)
}

func (e *recordingEvents) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return e.record(event.EventType, event)
}

func (e *recordingEvents) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	return e.record(event.EventType, event)
}

func (e *recordingEvents) PublishChatEnded(ctx context.Context, event *models.ChatEndedEvent) error {
	return e.record(event.EventType, event)
}

// memChats is an in-memory stand-in for *chatstore.Store.
type memChats struct {
	mu    sync.Mutex
	convs map[string]*models.ChatConversation
}

func newMemChats() *memChats {
	return &memChats{convs: map[string]*models.ChatConversation{}}
}

func copyConv(c *models.ChatConversation) *models.ChatConversation {
	cp := *c
	cp.Messages = append([]models.ChatMessage{}, c.Messages...)
	cp.Recommendations = append([]int64{}, c.Recommendations...)
	return &cp
}

func (m *memChats) Create(ctx context.Context, conv *models.ChatConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.SessionID] = copyConv(conv)
	return nil
}

func (m *memChats) Get(ctx context.Context, sessionID string) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, chatstore.ErrNotFound)
	}
	return copyConv(c), nil
}

func (m *memChats) AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[sessionID]
	if !ok || c.Status != models.ChatStatusActive {
		return fmt.Errorf("active session %s: %w", sessionID, chatstore.ErrNotFound)
	}
	c.Messages = append(c.Messages, msgs...)
	return nil
}

func (m *memChats) AddRecommendations(ctx context.Context, sessionID string, productIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[sessionID]; ok {
		c.Recommendations = append(c.Recommendations, productIDs...)
	}
	return nil
}

func (m *memChats) End(ctx context.Context, sessionID string, satisfaction int) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[sessionID]
	if !ok || c.Status != models.ChatStatusActive {
		return nil, fmt.Errorf("active session %s: %w", sessionID, chatstore.ErrNotFound)
	}
	now := time.Now()
	c.Status = models.ChatStatusEnded
	c.Satisfaction = satisfaction
	c.EndedAt = &now
	return copyConv(c), nil
}

// fakeMail records sent messages.
type fakeMail struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMail) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
