package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"atelier-service/config"
	"atelier-service/internal/mailer"
	"atelier-service/internal/models"
	"atelier-service/internal/redisclient"
	"atelier-service/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Token types carried in the typ claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload for both token types. SessionID is only set on
// refresh tokens.
type Claims struct {
	Type      string `json:"typ"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone" binding:"omitempty,vnphone"`
}

type UpdateProfileRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Phone   string `json:"phone" binding:"omitempty,vnphone"`
	Address string `json:"address" binding:"max=500"`
}

// AuthService handles accounts, tokens, profile and wishlist
type AuthService struct {
	users    UserStore
	sessions SessionStore
	mail     MailSender
	cfg      config.AuthConfig
	baseURL  string
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, sessions SessionStore, mail MailSender, cfg config.AuthConfig, publicBaseURL string) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		mail:     mail,
		cfg:      cfg,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// Register creates a customer account and signs it in
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        normalizeEmail(req.Email),
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, util.SpanError(span, classify(err, "Email đã được sử dụng"))
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return s.issue(ctx, user)
}

// Login checks credentials and returns a fresh token pair
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	invalid := newError(ErrInvalidCredentials, "Email hoặc mật khẩu không đúng")

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(classify(err, ""), ErrNotFound) {
			return nil, invalid
		}
		return nil, util.SpanError(span, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	if !user.IsActive {
		return nil, newError(ErrForbidden, "Tài khoản đã bị khóa")
	}

	return s.issue(ctx, user)
}

// Refresh exchanges a refresh token for a new pair. The old session is
// consumed atomically, so each refresh token works once even under
// concurrent use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	owner, err := s.sessions.ConsumeSession(ctx, claims.SessionID)
	if err != nil && !errors.Is(err, redisclient.ErrNotFound) {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	if err != nil || owner != claims.UserID() {
		return nil, newError(ErrTokenExpired, "Phiên đăng nhập đã hết hạn")
	}

	user, err := s.users.GetUserByID(ctx, owner)
	if err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}
	if !user.IsActive {
		return nil, newError(ErrForbidden, "Tài khoản đã bị khóa")
	}
	return s.issue(ctx, user)
}

// Logout revokes the session behind a refresh token. Invalid tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}
	return s.sessions.DeleteSession(ctx, claims.SessionID, claims.UserID())
}

// ParseAccessToken validates an access token
func (s *AuthService) ParseAccessToken(token string) (*Claims, error) {
	return s.parse(token, TokenTypeAccess)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	now := s.now()
	sub := strconv.FormatInt(user.ID, 10)

	access, err := s.sign(&Claims{
		Type: TokenTypeAccess,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	sid := uuid.New().String()
	refresh, err := s.sign(&Claims{
		Type:      TokenTypeRefresh,
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
	}, s.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveSession(ctx, sid, user.ID, s.cfg.RefreshTTL); err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

func (s *AuthService) sign(claims *Claims, secret string) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *AuthService) parse(token, typ string) (*Claims, error) {
	secret := s.cfg.JWTSecret
	if typ == TokenTypeRefresh {
		secret = s.cfg.RefreshSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &Error{Kind: ErrTokenExpired, Message: "Phiên đăng nhập đã hết hạn", Cause: err}
		}
		return nil, &Error{Kind: ErrUnauthorized, Message: "Token không hợp lệ", Cause: err}
	}
	if claims.Type != typ || claims.UserID() == 0 {
		return nil, newError(ErrUnauthorized, "Token không hợp lệ")
	}
	return claims, nil
}

// ForgotPassword emails a one-time reset link. Unknown emails are silently
// accepted so the endpoint cannot be used to probe accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(classify(err, ""), ErrNotFound) {
			return nil
		}
		return err
	}

	token := uuid.New().String()
	if err := s.sessions.SaveResetToken(ctx, token, user.ID, s.cfg.ResetTokenTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	msg, err := mailer.Render(mailer.TemplatePasswordReset, user.Email, user.Email, mailer.PasswordResetData{
		Name:    user.Name,
		Link:    fmt.Sprintf("%s/reset-password/%s", s.baseURL, token),
		Minutes: int(s.cfg.ResetTokenTTL.Minutes()),
	})
	if err != nil {
		return err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		util.EmailsSentTotal.WithLabelValues(mailer.TemplatePasswordReset, "failed").Inc()
		s.logger.Error("Failed to send reset email", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}
	util.EmailsSentTotal.WithLabelValues(mailer.TemplatePasswordReset, "sent").Inc()
	return nil
}

// ResetPassword consumes a reset token and signs the user out everywhere
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	userID, err := s.sessions.ConsumeResetToken(ctx, token)
	if err != nil {
		return classify(err, "Liên kết đặt lại mật khẩu không hợp lệ hoặc đã hết hạn")
	}
	if err := s.setPassword(ctx, userID, password); err != nil {
		return err
	}
	return s.sessions.DeleteUserSessions(ctx, userID)
}

// ChangePassword replaces the password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return classify(err, "Không tìm thấy người dùng")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return newError(ErrInvalidCredentials, "Mật khẩu hiện tại không đúng")
	}
	return s.setPassword(ctx, userID, next)
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	if len(password) < 6 {
		return newError(ErrInvalidInput, "Mật khẩu phải có ít nhất 6 ký tự")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return classify(s.users.UpdateUserPassword(ctx, userID, string(hash)), "Không tìm thấy người dùng")
}

// GetProfile returns the user with wishlist ids
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}
	if user.Wishlist, err = s.users.GetWishlist(ctx, userID); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile updates name, phone and address
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req *UpdateProfileRequest) (*models.User, error) {
	user := &models.User{ID: userID, Name: strings.TrimSpace(req.Name), Phone: req.Phone, Address: req.Address}
	if err := s.users.UpdateUserProfile(ctx, user); err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}
	return s.GetProfile(ctx, userID)
}

// Wishlist returns the products on a user's wishlist
func (s *AuthService) Wishlist(ctx context.Context, userID int64) ([]models.Product, error) {
	ids, err := s.users.GetWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	products, err := s.users.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// AddToWishlist adds an existing product to the wishlist
func (s *AuthService) AddToWishlist(ctx context.Context, userID, productID int64) error {
	if _, err := s.users.GetProductByID(ctx, productID); err != nil {
		return classify(err, "Không tìm thấy sản phẩm")
	}
	return s.users.AddToWishlist(ctx, userID, productID)
}

// RemoveFromWishlist drops a product from the wishlist
func (s *AuthService) RemoveFromWishlist(ctx context.Context, userID, productID int64) error {
	return s.users.RemoveFromWishlist(ctx, userID, productID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
