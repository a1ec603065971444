package store

import (
	"context"
	"fmt"

	"atelier-service/internal/models"
)

// ListCategories returns categories ordered for display
func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	query := "SELECT * FROM categories"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order ASC, name ASC"

	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, query)
	return categories, err
}

// GetCategoryByID retrieves a category by ID
func (s *Store) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM categories WHERE id = $1", id); err != nil {
		return nil, notFound(err, "category", id)
	}
	return &c, nil
}

// GetCategoryBySlug retrieves a category by slug
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var c models.Category
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM categories WHERE slug = $1", slug); err != nil {
		return nil, notFound(err, "category", slug)
	}
	return &c, nil
}

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	err := s.db.GetContext(ctx, c, `
		INSERT INTO categories (name, slug, description, parent_id, is_active, sort_order, meta_title, meta_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		c.Name, c.Slug, c.Description, c.ParentID, c.IsActive, c.SortOrder, c.MetaTitle, c.MetaDescription)
	if err != nil {
		return uniqueViolation(err, "category slug "+c.Slug)
	}
	return nil
}

// UpdateCategory overwrites every editable column of a category
func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET
			name = $1, slug = $2, description = $3, parent_id = $4, is_active = $5,
			sort_order = $6, meta_title = $7, meta_description = $8, updated_at = NOW()
		WHERE id = $9`,
		c.Name, c.Slug, c.Description, c.ParentID, c.IsActive, c.SortOrder, c.MetaTitle, c.MetaDescription, c.ID)
	if err != nil {
		return uniqueViolation(err, "category slug "+c.Slug)
	}
	return expectOne(res, "category", c.ID)
}

// CountProductsInCategory counts products referencing a category
func (s *Store) CountProductsInCategory(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM products WHERE category_id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// DeleteCategory removes a category
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		return foreignKeyViolation(err, "category")
	}
	return expectOne(res, "category", id)
}
