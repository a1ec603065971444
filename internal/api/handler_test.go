package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"atelier-service/config"
	"atelier-service/internal/models"
	"atelier-service/internal/service"
	"atelier-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, checks map[string]ReadyCheck) (*gin.Engine, *chatMem) {
	t.Helper()
	chats := &chatMem{convs: map[string]*models.ChatConversation{}}
	services := Services{
		Auth:    service.NewAuthService(newUserMem(), nil, nil, config.AuthConfig{JWTSecret: testSecret, AccessTTL: time.Minute}, ""),
		Chatbot: service.NewChatbotService(chats, noProducts{}, service.NewFallbackProvider(), allowAll{}, noEvents{}, 20),
	}
	router := gin.New()
	NewHandler(services, "http://localhost:3000", checks).SetupRoutes(router)
	return router, chats
}

func token(t *testing.T, userID int64, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := &service.Claims{
		Type: service.TokenTypeAccess,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, router http.Handler, method, path, bearer, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t, map[string]ReadyCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w, _ := do(t, router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "up", body.Dependencies["postgres"])
	assert.Equal(t, "down", body.Dependencies["redis"])
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w, env := do(t, router, http.MethodGet, "/api/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Vui lòng đăng nhập", env.Message)

	w, env = do(t, router, http.MethodGet, "/api/cart", token(t, 7, models.RoleUser, -time.Minute), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Phiên đăng nhập đã hết hạn", env.Message)

	w, _ = do(t, router, http.MethodGet, "/api/cart", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/admin/dashboard", token(t, 7, models.RoleUser, time.Minute), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.Success)

	w, _ = do(t, router, http.MethodPost, "/api/payment/5/verify", token(t, 7, models.RoleUser, time.Minute), `{"paid":true}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestValidation(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	user := token(t, 7, models.RoleUser, time.Minute)
	address := `{"fullName":"Nguyễn Văn A","phone":"%s","street":"12 Lê Lợi","ward":"Bến Nghé","district":"Quận 1","city":"TP.HCM"}`

	tests := []struct {
		name string
		body string
	}{
		{"unknown payment method", `{"items":[{"productId":1,"quantity":1}],"paymentMethod":"card","shippingAddress":` + fmt.Sprintf(address, "0901234567") + `}`},
		{"no items", `{"items":[],"paymentMethod":"cod","shippingAddress":` + fmt.Sprintf(address, "0901234567") + `}`},
		{"invalid phone", `{"items":[{"productId":1,"quantity":1}],"paymentMethod":"cod","shippingAddress":` + fmt.Sprintf(address, "12345") + `}`},
		{"zero quantity", `{"items":[{"productId":1,"quantity":0}],"paymentMethod":"qr","shippingAddress":` + fmt.Sprintf(address, "+84901234567") + `}`},
		{"malformed", `{"items":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, "/api/orders", user, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Dữ liệu không hợp lệ", env.Message)
		})
	}

	w, env := do(t, router, http.MethodGet, "/api/orders/abc", user, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Mã không hợp lệ", env.Message)

	w, _ = do(t, router, http.MethodGet, "/api/guest-cart", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w, _ := do(t, router, http.MethodOptions, "/api/products", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), headerGuestID)
}

func TestCORSWithoutOrigin(t *testing.T) {
	router := gin.New()
	NewHandler(Services{}, "", nil).SetupRoutes(router)

	w, _ := do(t, router, http.MethodOptions, "/api/products", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestProfileRoutes(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	user := token(t, 7, models.RoleUser, time.Minute)

	for _, path := range []string{"/api/auth/profile", "/api/auth/me", "/api/users/profile"} {
		w, env := do(t, router, http.MethodGet, path, user, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		var got models.User
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "Khách Test", got.Name, path)
	}

	w, env := do(t, router, http.MethodPut, "/api/auth/profile", user,
		`{"name":"Trần Thị B","phone":"0912345678","address":"5 Hai Bà Trưng"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.User
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Trần Thị B", updated.Name)
	assert.Equal(t, "0912345678", updated.Phone)

	w, _ = do(t, router, http.MethodPut, "/api/auth/profile", user, `{"name":"","phone":"123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/auth/profile", token(t, 99, models.RoleUser, time.Minute), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatbotEndpoints(t *testing.T) {
	router, chats := newTestRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/api/chatbot/start", token(t, 9, models.RoleUser, time.Minute), "")
	require.Equal(t, http.StatusCreated, w.Code)
	var started struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, int64(9), chats.convs[started.SessionID].UserID)

	w, env = do(t, router, http.MethodPost, "/api/chatbot/message", "",
		`{"sessionId":"`+started.SessionID+`","message":"Có áo khoác không?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var reply service.ChatReply
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	assert.True(t, reply.Fallback)
	assert.Equal(t, service.ProviderFallback, reply.Provider)

	w, _ = do(t, router, http.MethodGet, "/api/chatbot/history?sessionId="+started.SessionID, "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/chatbot/end", "", `{"sessionId":"`+started.SessionID+`","satisfaction":4}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, router, http.MethodPost, "/api/chatbot/message", "",
		`{"sessionId":"`+started.SessionID+`","message":"còn đó không?"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Phiên trò chuyện đã kết thúc", env.Message)

	w, _ = do(t, router, http.MethodPost, "/api/chatbot/end", "", `{"sessionId":"x","satisfaction":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/chatbot/history?sessionId=missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{service.ErrNotFound, http.StatusNotFound, "Không tìm thấy dữ liệu"},
		{&service.Error{Kind: service.ErrConflict, Message: "Đơn hàng đã được thanh toán"}, http.StatusConflict, "Đơn hàng đã được thanh toán"},
		{fmt.Errorf("wrap: %w", service.ErrInvalidTransition), http.StatusConflict, "Không thể chuyển sang trạng thái này"},
		{service.ErrEmptyCart, http.StatusBadRequest, "Giỏ hàng trống"},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "Email hoặc mật khẩu không đúng"},
		{fmt.Errorf("order 4: %w", store.ErrStale), http.StatusConflict, "Dữ liệu đã thay đổi, vui lòng tải lại"},
		{service.ErrRateLimited, http.StatusTooManyRequests, "Bạn thao tác quá nhanh, vui lòng thử lại sau"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, genericErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, env.Error, "pq:")
			}
		})
	}
}

func TestVNPhonePattern(t *testing.T) {
	for _, ok := range []string{"0901234567", "+84912345678", "0387654321"} {
		assert.True(t, vnPhonePattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"12345", "0101234567", "090123456", "+8490123456789"} {
		assert.False(t, vnPhonePattern.MatchString(bad), bad)
	}
}

type chatMem struct {
	mu    sync.Mutex
	convs map[string]*models.ChatConversation
}

func (m *chatMem) Create(ctx context.Context, conv *models.ChatConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.convs[conv.SessionID] = &cp
	return nil
}

func (m *chatMem) Get(ctx context.Context, sessionID string) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[sessionID]
	if !ok {
		return nil, &service.Error{Kind: service.ErrNotFound, Message: "Không tìm thấy phiên trò chuyện"}
	}
	cp := *c
	return &cp, nil
}

func (m *chatMem) AppendMessages(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[sessionID]
	c.Messages = append(append([]models.ChatMessage{}, c.Messages...), msgs...)
	return nil
}

func (m *chatMem) AddRecommendations(ctx context.Context, sessionID string, productIDs []int64) error {
	return nil
}

func (m *chatMem) End(ctx context.Context, sessionID string, satisfaction int) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[sessionID]
	c.Status = models.ChatStatusEnded
	c.Satisfaction = satisfaction
	cp := *c
	return &cp, nil
}

type noProducts struct{}

func (noProducts) SearchProductNames(ctx context.Context, keywords []string, limit int) ([]models.Product, error) {
	return nil, nil
}

type allowAll struct{}

func (allowAll) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type noEvents struct{}

func (noEvents) PublishChatEnded(ctx context.Context, event *models.ChatEndedEvent) error { return nil }

type userMem struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newUserMem() *userMem {
	return &userMem{users: map[int64]*models.User{
		7: {ID: 7, Name: "Khách Test", Email: "khach@example.com", Role: models.RoleUser, IsActive: true},
	}}
}

func (m *userMem) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return nil, store.ErrNotFound
}

func (m *userMem) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	return nil, nil
}

func (m *userMem) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = int64(len(m.users) + 100)
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *userMem) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *userMem) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, store.ErrNotFound
}

func (m *userMem) UpdateUserProfile(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Name, existing.Phone, existing.Address = u.Name, u.Phone, u.Address
	return nil
}

func (m *userMem) UpdateUserPassword(ctx context.Context, id int64, hash string) error { return nil }

func (m *userMem) GetWishlist(ctx context.Context, userID int64) ([]int64, error) {
	return []int64{}, nil
}

func (m *userMem) AddToWishlist(ctx context.Context, userID, productID int64) error { return nil }

func (m *userMem) RemoveFromWishlist(ctx context.Context, userID, productID int64) error { return nil }
