package service

import (
	"context"
	"encoding/json"
	"strings"

	"atelier-service/internal/models"
	"atelier-service/internal/store"
	"atelier-service/internal/util"

	"go.uber.org/zap"
)

const (
	dashboardTopProducts = 5
	lowStockThreshold    = 5
)

type UserQuery struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
	Role   string `form:"role"`
}

type UpdateUserRequest struct {
	Role     *string `json:"role" binding:"omitempty,oneof=user admin"`
	IsActive *bool   `json:"isActive"`
}

// AdminService covers user management, settings and the dashboard
type AdminService struct {
	store    AdminStore
	sessions SessionStore
	logger   *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store AdminStore, sessions SessionStore) *AdminService {
	return &AdminService{
		store:    store,
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

func (s *AdminService) ListUsers(ctx context.Context, q UserQuery) (*Page[models.User], error) {
	page, limit := NormalizePage(q.Page, q.Limit, DefaultAdminLimit)
	users, total, err := s.store.ListUsers(ctx, store.UserFilter{
		Search: strings.TrimSpace(q.Search),
		Role:   q.Role,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return newPage(users, page, limit, total), nil
}

// UpdateUser changes a user's role or activation. Deactivated users lose
// their sessions. Admins cannot demote or deactivate themselves.
func (s *AdminService) UpdateUser(ctx context.Context, actor Actor, id int64, req *UpdateUserRequest) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}

	role, active := user.Role, user.IsActive
	setIf(&role, req.Role)
	setIf(&active, req.IsActive)
	if id == actor.UserID && (role != models.RoleAdmin || !active) {
		return nil, newError(ErrForbidden, "Không thể tự thay đổi quyền của chính mình")
	}

	if err := s.store.UpdateUserAccess(ctx, id, role, active); err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}
	if user.IsActive && !active {
		if err := s.sessions.DeleteUserSessions(ctx, id); err != nil {
			s.logger.Warn("Failed to revoke sessions", zap.Int64("user_id", id), zap.Error(err))
		}
	}

	s.logger.Info("User access updated",
		zap.Int64("user_id", id),
		zap.String("role", role),
		zap.Bool("active", active),
		zap.Int64("by", actor.UserID),
	)
	user.Role, user.IsActive = role, active
	return user, nil
}

// DeleteUser removes an account other than the caller's own
func (s *AdminService) DeleteUser(ctx context.Context, actor Actor, id int64) error {
	if id == actor.UserID {
		return newError(ErrForbidden, "Không thể xóa tài khoản của chính mình")
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return classify(err, "Không thể xóa người dùng")
	}
	if err := s.sessions.DeleteUserSessions(ctx, id); err != nil {
		s.logger.Warn("Failed to revoke sessions", zap.Int64("user_id", id), zap.Error(err))
	}
	return nil
}

func (s *AdminService) ListSettings(ctx context.Context) ([]models.Setting, error) {
	return s.store.ListSettings(ctx)
}

// UpsertSetting stores a JSON value under key. Well-known keys are checked
// against their expected shape.
func (s *AdminService) UpsertSetting(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > 100 {
		return nil, newError(ErrInvalidInput, "Khóa cấu hình không hợp lệ")
	}
	if !json.Valid(value) {
		return nil, newError(ErrInvalidInput, "Giá trị cấu hình phải là JSON hợp lệ")
	}
	if err := checkSetting(key, value); err != nil {
		return nil, err
	}
	return s.store.UpsertSetting(ctx, key, value)
}

func checkSetting(key string, value json.RawMessage) error {
	switch key {
	case models.SettingPaymentBank:
		var bank models.BankSetting
		if err := json.Unmarshal(value, &bank); err != nil {
			return newError(ErrInvalidInput, "Thông tin ngân hàng không hợp lệ")
		}
		if bank.BankID == "" || bank.AccountNo == "" {
			return newError(ErrInvalidInput, "Cần có mã ngân hàng và số tài khoản")
		}
	case models.SettingShippingFee:
		var fee models.ShippingFeeSetting
		if err := json.Unmarshal(value, &fee); err != nil {
			return newError(ErrInvalidInput, "Phí vận chuyển không hợp lệ")
		}
		if fee.Fee < 0 || fee.FreeThreshold < 0 {
			return newError(ErrInvalidInput, "Phí vận chuyển không được âm")
		}
	}
	return nil
}

// Dashboard returns the back-office overview
func (s *AdminService) Dashboard(ctx context.Context) (*store.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Dashboard")
	defer span.End()

	stats, err := s.store.GetDashboardStats(ctx, dashboardTopProducts, lowStockThreshold)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	return stats, nil
}
