package store

import (
	"context"
	"fmt"
	"strings"

	"atelier-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Product sort orders
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortName      = "name"
)

// effectivePriceSQL mirrors models.Product.EffectivePrice
const effectivePriceSQL = "(CASE WHEN is_on_sale AND sale_price > 0 AND sale_price < price THEN sale_price ELSE price END)"

var productOrderBy = map[string]string{
	SortNewest:    "created_at DESC, id DESC",
	SortPriceAsc:  effectivePriceSQL + " ASC, id ASC",
	SortPriceDesc: effectivePriceSQL + " DESC, id DESC",
	SortRating:    "average_rating DESC, num_reviews DESC, id DESC",
	SortName:      "name ASC, id ASC",
}

// ProductFilter narrows ListProducts. Zero values mean "no constraint".
type ProductFilter struct {
	CategoryID *int64
	Search     string
	MinPrice   int64
	MaxPrice   int64
	Size       string
	Color      string
	ActiveOnly bool
	Active     *bool
	Featured   bool
	OnSale     bool
	Sort       string
	Page       int
	Limit      int
}

// whereBuilder accumulates AND-ed conditions with $n placeholders.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (f ProductFilter) where() *whereBuilder {
	w := &whereBuilder{}
	if f.ActiveOnly {
		w.addRaw("is_active = TRUE")
	} else if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}
	if f.CategoryID != nil {
		w.add("category_id = ?", *f.CategoryID)
	}
	if f.Search != "" {
		w.add("(name ILIKE ? OR brand ILIKE ? OR description ILIKE ?)", "%"+f.Search+"%")
	}
	if f.MinPrice > 0 {
		w.add(effectivePriceSQL+" >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		w.add(effectivePriceSQL+" <= ?", f.MaxPrice)
	}
	if f.Size != "" {
		w.add("? = ANY(sizes)", f.Size)
	}
	if f.Color != "" {
		w.add("? = ANY(colors)", f.Color)
	}
	if f.Featured {
		w.addRaw("is_featured = TRUE")
	}
	if f.OnSale {
		w.addRaw("is_on_sale = TRUE")
	}
	return w
}

// ListProducts returns a page of products and the total match count
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	w := f.where()

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+w.sql(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	orderBy, ok := productOrderBy[f.Sort]
	if !ok {
		orderBy = productOrderBy[SortNewest]
	}
	limit, offset := window(f.Page, f.Limit)
	query := fmt.Sprintf("SELECT * FROM products%s ORDER BY %s LIMIT %d OFFSET %d", w.sql(), orderBy, limit, offset)

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProductBySlug retrieves a product by slug
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE slug = $1", slug)
	if err != nil {
		return nil, notFound(err, "product", slug)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// SearchProductNames returns active products whose name matches any keyword
func (s *Store) SearchProductNames(ctx context.Context, keywords []string, limit int) ([]models.Product, error) {
	if len(keywords) == 0 {
		return []models.Product{}, nil
	}
	patterns := make([]string, len(keywords))
	for i, k := range keywords {
		patterns[i] = "%" + k + "%"
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		`SELECT * FROM products
		 WHERE is_active = TRUE AND stock > 0 AND name ILIKE ANY($1)
		 ORDER BY is_featured DESC, average_rating DESC
		 LIMIT $2`, pq.Array(patterns), limit)
	return products, err
}

const productColumns = `name, slug, description, price, original_price, sale_price, stock, category_id,
	brand, sizes, colors, images, tags, is_active, is_featured, is_on_sale`

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (:name, :slug, :description, :price, :original_price, :sale_price, :stock, :category_id,
			:brand, :sizes, :colors, :images, :tags, :is_active, :is_featured, :is_on_sale)
		RETURNING id, created_at, updated_at`

	fillArrays(p)
	rows, err := s.db.NamedQueryContext(ctx, query, p)
	if err != nil {
		return uniqueViolation(err, "product slug "+p.Slug)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	}
	return rows.Err()
}

// UpdateProduct overwrites every editable column of a product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET
			name = :name, slug = :slug, description = :description, price = :price,
			original_price = :original_price, sale_price = :sale_price, stock = :stock,
			category_id = :category_id, brand = :brand, sizes = :sizes, colors = :colors,
			images = :images, tags = :tags, is_active = :is_active, is_featured = :is_featured,
			is_on_sale = :is_on_sale, updated_at = NOW()
		WHERE id = :id`

	fillArrays(p)
	res, err := s.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return uniqueViolation(err, "product slug "+p.Slug)
	}
	return expectOne(res, "product", p.ID)
}

// fillArrays replaces nil arrays, which pq writes as NULL, with empty ones.
func fillArrays(p *models.Product) {
	for _, a := range []*pq.StringArray{&p.Sizes, &p.Colors, &p.Tags} {
		if *a == nil {
			*a = pq.StringArray{}
		}
	}
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOne(res, "product", id)
}

// ListReviews returns the reviews of a product, newest first
func (s *Store) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE product_id = $1 ORDER BY created_at DESC", productID)
	return reviews, err
}

// AddReview inserts a review and refreshes the product's rating aggregate
func (s *Store) AddReview(ctx context.Context, r *models.Review) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, r, `
			INSERT INTO reviews (product_id, user_id, user_name, rating, title, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *`,
			r.ProductID, r.UserID, r.UserName, r.Rating, r.Title, r.Comment)
		if err != nil {
			return uniqueViolation(err, "review")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET
				average_rating = (SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE product_id = $1),
				num_reviews = (SELECT COUNT(*) FROM reviews WHERE product_id = $1),
				updated_at = NOW()
			WHERE id = $1`, r.ProductID)
		if err != nil {
			return fmt.Errorf("failed to refresh rating: %w", err)
		}
		return nil
	})
}
