package store

import (
	"context"
	"fmt"
	"strings"

	"atelier-service/internal/models"
)

// UserFilter narrows ListUsers
type UserFilter struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

// CreateUser inserts a user
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.GetContext(ctx, u, `
		INSERT INTO users (name, email, phone, password_hash, role, address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		u.Name, strings.ToLower(u.Email), u.Phone, u.PasswordHash, u.Role, u.Address, u.IsActive)
	if err != nil {
		return uniqueViolation(err, "user email "+u.Email)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive)
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE email = $1", strings.ToLower(email)); err != nil {
		return nil, notFound(err, "user", email)
	}
	return &u, nil
}

// UpdateUserProfile updates the self-service profile fields
func (s *Store) UpdateUserProfile(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = $1, phone = $2, address = $3, updated_at = NOW() WHERE id = $4",
		u.Name, u.Phone, u.Address, u.ID)
	if err != nil {
		return err
	}
	return expectOne(res, "user", u.ID)
}

// UpdateUserPassword replaces a user's password hash
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2", hash, id)
	if err != nil {
		return err
	}
	return expectOne(res, "user", id)
}

// UpdateUserAccess updates role and activation, admin only
func (s *Store) UpdateUserAccess(ctx context.Context, id int64, role string, isActive bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET role = $1, is_active = $2, updated_at = NOW() WHERE id = $3", role, isActive, id)
	if err != nil {
		return err
	}
	return expectOne(res, "user", id)
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return foreignKeyViolation(err, "user")
	}
	return expectOne(res, "user", id)
}

// ListUsers returns a page of users and the total match count
func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int, error) {
	w := &whereBuilder{}
	if f.Search != "" {
		w.add("(name ILIKE ? OR email ILIKE ?)", "%"+f.Search+"%")
	}
	if f.Role != "" {
		w.add("role = ?", f.Role)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+w.sql(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	limit, offset := window(f.Page, f.Limit)
	users := []models.User{}
	query := fmt.Sprintf("SELECT * FROM users%s ORDER BY created_at DESC LIMIT %d OFFSET %d", w.sql(), limit, offset)
	if err := s.db.SelectContext(ctx, &users, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// GetWishlist returns the product ids on a user's wishlist
func (s *Store) GetWishlist(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids,
		"SELECT product_id FROM wishlist_items WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return ids, err
}

// AddToWishlist adds a product; adding twice is a no-op
func (s *Store) AddToWishlist(ctx context.Context, userID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, productID)
	return err
}

// RemoveFromWishlist removes a product from a wishlist
func (s *Store) RemoveFromWishlist(ctx context.Context, userID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	return err
}
