// Package apiclient is a typed client for the storefront REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"atelier-service/internal/models"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// Client calls the REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	plain   *http.Client
	tokens  TokenStore

	mu      sync.Mutex
	guestID string
}

type Option func(*Client)

// WithTokenStore replaces the in-memory token store
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

// WithGuestID sets the guest cart used before login and merged at login
func WithGuestID(id string) Option {
	return func(c *Client) { c.guestID = id }
}

// WithTransport sets the underlying transport; http.DefaultTransport otherwise
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.plain.Transport = rt
	}
}

// New creates a client for the API at baseURL, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		plain:   &http.Client{Timeout: defaultTimeout, Transport: http.DefaultTransport},
		tokens:  NewMemoryTokenStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &http.Client{
		Timeout: defaultTimeout,
		Transport: &authTransport{
			base:    c.plain.Transport,
			tokens:  c.tokens,
			refresh: c.refresh,
		},
	}
	return c
}

// Tokens returns the current session
func (c *Client) Tokens() Tokens {
	return c.tokens.Get()
}

func (c *Client) GuestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestID
}

// refresh uses the plain client so that a rejected refresh is not retried
func (c *Client) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var result AuthResult
	err := c.send(ctx, c.plain, http.MethodPost, "/api/auth/refresh", nil,
		map[string]string{"refreshToken": refreshToken}, &result)
	if err != nil {
		return Tokens{}, err
	}
	return result.Tokens(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.send(ctx, c.http, method, path, nil, body, out)
}

func (c *Client) send(ctx context.Context, client *http.Client, method, path string, header http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Detail: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// AuthResult is the login, register and refresh response
type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

func (r *AuthResult) Tokens() Tokens {
	return Tokens{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Page is one page of a list response
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// Login signs in and, when the client holds a guest cart, merges it into
// the user's cart once. A failed merge keeps the guest id and is returned
// as an error next to the successful session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var result AuthResult
	err := c.send(ctx, c.plain, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"email": email, "password": password}, &result)
	if err != nil {
		return nil, err
	}
	c.tokens.Set(result.Tokens())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.guestID != "" {
		if err := c.do(ctx, http.MethodPost, "/api/cart/merge", map[string]string{"guestId": c.guestID}, nil); err != nil {
			return &result, fmt.Errorf("failed to merge guest cart: %w", err)
		}
		c.guestID = ""
	}
	return &result, nil
}

// Logout ends the session on the server and always forgets local tokens
func (c *Client) Logout(ctx context.Context) error {
	current := c.tokens.Get()
	defer c.tokens.Clear()
	if current.RefreshToken == "" {
		return nil
	}
	return c.send(ctx, c.plain, http.MethodPost, "/api/auth/logout", nil,
		map[string]string{"refreshToken": current.RefreshToken}, nil)
}

func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// cartRoute picks the user cart when signed in and the guest cart otherwise
func (c *Client) cartRoute() (string, http.Header, error) {
	if c.tokens.Get().AccessToken != "" {
		return "/api/cart", nil, nil
	}
	guestID := c.GuestID()
	if guestID == "" {
		return "", nil, fmt.Errorf("no session and no guest id")
	}
	return "/api/guest-cart", http.Header{"X-Guest-Id": []string{guestID}}, nil
}

func (c *Client) GetCart(ctx context.Context) (*models.Cart, error) {
	path, header, err := c.cartRoute()
	if err != nil {
		return nil, err
	}
	var cart models.Cart
	if err := c.send(ctx, c.http, http.MethodGet, path, header, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CartItemInput adds a product variant to the cart
type CartItemInput struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

func (c *Client) AddToCart(ctx context.Context, item CartItemInput) (*models.Cart, error) {
	path, header, err := c.cartRoute()
	if err != nil {
		return nil, err
	}
	var cart models.Cart
	if err := c.send(ctx, c.http, http.MethodPost, path+"/items", header, item, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// OrderInput is the checkout request
type OrderInput struct {
	Items           []CartItemInput        `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Notes           string                 `json:"notes,omitempty"`
}

// CreateOrder places an order. A non-empty idempotencyKey makes retries
// return the first order.
func (c *Client) CreateOrder(ctx context.Context, in OrderInput, idempotencyKey string) (*models.Order, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var order models.Order
	if err := c.send(ctx, c.http, http.MethodPost, "/api/orders", header, in, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) MyOrders(ctx context.Context, page, limit int, status string) (*Page[models.Order], error) {
	var out Page[models.Order]
	if err := c.do(ctx, http.MethodGet, "/api/orders/my-orders"+pageQuery(page, limit, "status", status), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GenerateQR(ctx context.Context, orderID int64) (*models.PaymentQR, error) {
	var qr models.PaymentQR
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/payment/%d/qr", orderID), nil, &qr); err != nil {
		return nil, err
	}
	return &qr, nil
}

func (c *Client) PaymentStatus(ctx context.Context, orderID int64) (*models.PaymentStatusView, error) {
	var status models.PaymentStatusView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/payment/%d/status", orderID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) AdminListOrders(ctx context.Context, page, limit int, status string) (*Page[models.Order], error) {
	var out Page[models.Order]
	if err := c.do(ctx, http.MethodGet, "/api/admin/orders"+pageQuery(page, limit, "status", status), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdminUpdateOrderStatus(ctx context.Context, orderID int64, status, reason string) (*models.Order, error) {
	var order models.Order
	body := map[string]string{"status": status, "reason": reason}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/orders/%d/status", orderID), body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AdminVerifyPayment records the outcome of a manual bank reconciliation
func (c *Client) AdminVerifyPayment(ctx context.Context, orderID int64, paid bool, note string) (*models.PaymentStatusView, error) {
	var status models.PaymentStatusView
	body := map[string]interface{}{"paid": paid, "note": note}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/payment/%d/verify", orderID), body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DashboardStats mirrors the admin dashboard response
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

type ProductSales struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Revenue     int64  `json:"revenue"`
}

func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.do(ctx, http.MethodGet, "/api/admin/dashboard", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func pageQuery(page, limit int, extra ...string) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != "" {
			q.Set(extra[i], extra[i+1])
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
