package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"atelier-service/internal/models"
	"atelier-service/internal/store"
	"atelier-service/internal/util"

	"go.uber.org/zap"
)

const productCachePrefix = "products:"

// Curated list kinds served from cache
const (
	ListFeatured = "featured"
	ListNew      = "new"
	ListSale     = "sale"
)

// ProductQuery is the public product listing input
type ProductQuery struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Category string `form:"category"`
	Search   string `form:"search"`
	MinPrice int64  `form:"minPrice"`
	MaxPrice int64  `form:"maxPrice"`
	Size     string `form:"size"`
	Color    string `form:"color"`
	Sort     string `form:"sort"`
}

// AdminProductQuery is the back-office product listing input
type AdminProductQuery struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Category int64  `form:"category"`
	Search   string `form:"search"`
	Active   *bool  `form:"isActive"`
}

// ProductInput creates a product
type ProductInput struct {
	Name          string         `json:"name" binding:"required,max=200"`
	Slug          string         `json:"slug" binding:"max=220"`
	Description   string         `json:"description"`
	Price         int64          `json:"price" binding:"required,gt=0"`
	OriginalPrice int64          `json:"originalPrice" binding:"gte=0"`
	SalePrice     int64          `json:"salePrice" binding:"gte=0"`
	Stock         int            `json:"stock" binding:"gte=0"`
	CategoryID    *int64         `json:"categoryId"`
	Brand         string         `json:"brand"`
	Sizes         []string       `json:"sizes"`
	Colors        []string       `json:"colors"`
	Images        []models.Image `json:"images" binding:"dive"`
	Tags          []string       `json:"tags"`
	IsActive      *bool          `json:"isActive"`
	IsFeatured    bool           `json:"isFeatured"`
	IsOnSale      bool           `json:"isOnSale"`
}

// ProductPatch updates only the fields that are present
type ProductPatch struct {
	Name          *string         `json:"name" binding:"omitempty,max=200"`
	Slug          *string         `json:"slug"`
	Description   *string         `json:"description"`
	Price         *int64          `json:"price" binding:"omitempty,gt=0"`
	OriginalPrice *int64          `json:"originalPrice" binding:"omitempty,gte=0"`
	SalePrice     *int64          `json:"salePrice" binding:"omitempty,gte=0"`
	Stock         *int            `json:"stock" binding:"omitempty,gte=0"`
	CategoryID    *int64          `json:"categoryId"`
	Brand         *string         `json:"brand"`
	Sizes         *[]string       `json:"sizes"`
	Colors        *[]string       `json:"colors"`
	Images        *[]models.Image `json:"images"`
	Tags          *[]string       `json:"tags"`
	IsActive      *bool           `json:"isActive"`
	IsFeatured    *bool           `json:"isFeatured"`
	IsOnSale      *bool           `json:"isOnSale"`
}

// CategoryInput creates a category
type CategoryInput struct {
	Name            string `json:"name" binding:"required,max=100"`
	Slug            string `json:"slug"`
	Description     string `json:"description"`
	ParentID        *int64 `json:"parentId"`
	IsActive        *bool  `json:"isActive"`
	SortOrder       int    `json:"sortOrder"`
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
}

// CategoryPatch updates only the fields that are present
type CategoryPatch struct {
	Name            *string `json:"name" binding:"omitempty,max=100"`
	Slug            *string `json:"slug"`
	Description     *string `json:"description"`
	ParentID        *int64  `json:"parentId"`
	IsActive        *bool   `json:"isActive"`
	SortOrder       *int    `json:"sortOrder"`
	MetaTitle       *string `json:"metaTitle"`
	MetaDescription *string `json:"metaDescription"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Title   string `json:"title" binding:"max=200"`
	Comment string `json:"comment" binding:"max=2000"`
}

// CatalogService serves products, categories and reviews
type CatalogService struct {
	store    CatalogStore
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store CatalogStore, cache Cache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ListProducts pages through active products
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*Page[models.Product], error) {
	page, limit := NormalizePage(q.Page, q.Limit, DefaultPublicLimit)
	f := store.ProductFilter{
		ActiveOnly: true,
		Search:     strings.TrimSpace(q.Search),
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
		Size:       q.Size,
		Color:      q.Color,
		Sort:       q.Sort,
		Page:       page,
		Limit:      limit,
	}
	if q.Category != "" {
		cat, err := s.resolveCategory(ctx, q.Category)
		if err != nil {
			return nil, err
		}
		f.CategoryID = &cat.ID
	}

	products, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	return newPage(products, page, limit, total), nil
}

// Curated returns the featured, newest or on-sale products, cached briefly
func (s *CatalogService) Curated(ctx context.Context, kind string, limit int) ([]models.Product, error) {
	if limit < 1 || limit > 50 {
		limit = 8
	}
	f := store.ProductFilter{ActiveOnly: true, Sort: store.SortNewest, Page: 1, Limit: limit}
	switch kind {
	case ListFeatured:
		f.Featured = true
	case ListSale:
		f.OnSale = true
	case ListNew:
	default:
		return nil, newError(ErrInvalidInput, "Danh sách sản phẩm không hợp lệ")
	}

	key := fmt.Sprintf("%s%s:%d", productCachePrefix, kind, limit)
	var cached []models.Product
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	products, _, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, products, s.cacheTTL); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return products, nil
}

// GetProduct finds an active product by id or slug, with its reviews
func (s *CatalogService) GetProduct(ctx context.Context, idOrSlug string) (*models.Product, error) {
	p, err := s.lookupProduct(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, newError(ErrNotFound, "Không tìm thấy sản phẩm")
	}
	if p.Reviews, err = s.store.ListReviews(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) lookupProduct(ctx context.Context, idOrSlug string) (*models.Product, error) {
	var (
		p   *models.Product
		err error
	)
	if id, convErr := strconv.ParseInt(idOrSlug, 10, 64); convErr == nil {
		p, err = s.store.GetProductByID(ctx, id)
	} else {
		p, err = s.store.GetProductBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm")
	}
	return p, nil
}

// AddReview stores the user's single review of a product
func (s *CatalogService) AddReview(ctx context.Context, userID int64, idOrSlug string, in *ReviewInput) (*models.Review, error) {
	p, err := s.GetProduct(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy người dùng")
	}

	review := &models.Review{
		ProductID: p.ID,
		UserID:    userID,
		UserName:  user.Name,
		Rating:    in.Rating,
		Title:     strings.TrimSpace(in.Title),
		Comment:   strings.TrimSpace(in.Comment),
	}
	if err := s.store.AddReview(ctx, review); err != nil {
		return nil, classify(err, "Bạn đã đánh giá sản phẩm này")
	}
	s.invalidate(ctx)
	return review, nil
}

// AdminListProducts pages through all products, active or not
func (s *CatalogService) AdminListProducts(ctx context.Context, q AdminProductQuery) (*Page[models.Product], error) {
	page, limit := NormalizePage(q.Page, q.Limit, DefaultAdminLimit)
	f := store.ProductFilter{Search: strings.TrimSpace(q.Search), Active: q.Active, Page: page, Limit: limit}
	if q.Category > 0 {
		f.CategoryID = &q.Category
	}
	products, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	return newPage(products, page, limit, total), nil
}

// AdminGetProduct returns any product by id
func (s *CatalogService) AdminGetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, classify(err, "Không tìm thấy sản phẩm")
	}
	return p, nil
}

// CreateProduct adds a product; the slug is derived from the name when empty
func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	p := &models.Product{
		Name:          strings.TrimSpace(in.Name),
		Slug:          util.Slugify(in.Slug),
		Description:   in.Description,
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		SalePrice:     in.SalePrice,
		Stock:         in.Stock,
		CategoryID:    in.CategoryID,
		Brand:         in.Brand,
		Sizes:         nonNil(in.Sizes),
		Colors:        nonNil(in.Colors),
		Images:        in.Images,
		Tags:          nonNil(in.Tags),
		IsActive:      in.IsActive == nil || *in.IsActive,
		IsFeatured:    in.IsFeatured,
		IsOnSale:      in.IsOnSale,
	}
	if p.Slug == "" {
		p.Slug = util.Slugify(p.Name)
	}
	if err := s.checkProduct(ctx, p); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, classify(err, "Đường dẫn sản phẩm đã tồn tại")
	}
	s.invalidate(ctx)
	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

// UpdateProduct applies a partial update
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, patch *ProductPatch) (*models.Product, error) {
	p, err := s.AdminGetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Slug != nil {
		p.Slug = util.Slugify(*patch.Slug)
	}
	setIf(&p.Description, patch.Description)
	setIf(&p.Price, patch.Price)
	setIf(&p.OriginalPrice, patch.OriginalPrice)
	setIf(&p.SalePrice, patch.SalePrice)
	setIf(&p.Stock, patch.Stock)
	setIf(&p.Brand, patch.Brand)
	setIf(&p.IsActive, patch.IsActive)
	setIf(&p.IsFeatured, patch.IsFeatured)
	setIf(&p.IsOnSale, patch.IsOnSale)
	if patch.CategoryID != nil {
		p.CategoryID = patch.CategoryID
	}
	if patch.Sizes != nil {
		p.Sizes = nonNil(*patch.Sizes)
	}
	if patch.Colors != nil {
		p.Colors = nonNil(*patch.Colors)
	}
	if patch.Tags != nil {
		p.Tags = nonNil(*patch.Tags)
	}
	if patch.Images != nil {
		p.Images = *patch.Images
	}
	if p.Slug == "" {
		p.Slug = util.Slugify(p.Name)
	}
	if err := s.checkProduct(ctx, p); err != nil {
		return nil, err
	}

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, classify(err, "Đường dẫn sản phẩm đã tồn tại")
	}
	s.invalidate(ctx)
	return p, nil
}

// DeleteProduct removes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return classify(err, "Không tìm thấy sản phẩm")
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) checkProduct(ctx context.Context, p *models.Product) error {
	if p.Name == "" || p.Slug == "" {
		return newError(ErrInvalidInput, "Tên sản phẩm không hợp lệ")
	}
	if p.IsOnSale && (p.SalePrice <= 0 || p.SalePrice >= p.Price) {
		return newError(ErrInvalidInput, "Giá khuyến mãi phải nhỏ hơn giá bán")
	}
	if p.CategoryID != nil {
		if _, err := s.store.GetCategoryByID(ctx, *p.CategoryID); err != nil {
			return classify(err, "Không tìm thấy danh mục")
		}
	}
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidatePrefix(ctx, productCachePrefix); err != nil {
		s.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

// ListCategories returns active categories, or all of them for admins
func (s *CatalogService) ListCategories(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	return s.store.ListCategories(ctx, !includeInactive)
}

// CategoryTree returns active categories nested under their parents
func (s *CatalogService) CategoryTree(ctx context.Context) ([]*models.Category, error) {
	cats, err := s.store.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	return BuildCategoryTree(cats), nil
}

// BuildCategoryTree nests categories under their parents. Input order is kept
// among siblings; categories whose parent is missing become roots.
func BuildCategoryTree(cats []models.Category) []*models.Category {
	nodes := make(map[int64]*models.Category, len(cats))
	for i := range cats {
		c := cats[i]
		c.Children = nil
		nodes[c.ID] = &c
	}

	roots := []*models.Category{}
	for i := range cats {
		node := nodes[cats[i].ID]
		if node.ParentID != nil {
			if parent, ok := nodes[*node.ParentID]; ok && parent.ID != node.ID {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// GetCategory finds a category by id or slug
func (s *CatalogService) GetCategory(ctx context.Context, idOrSlug string) (*models.Category, error) {
	return s.resolveCategory(ctx, idOrSlug)
}

func (s *CatalogService) resolveCategory(ctx context.Context, idOrSlug string) (*models.Category, error) {
	var (
		c   *models.Category
		err error
	)
	if id, convErr := strconv.ParseInt(idOrSlug, 10, 64); convErr == nil {
		c, err = s.store.GetCategoryByID(ctx, id)
	} else {
		c, err = s.store.GetCategoryBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, classify(err, "Không tìm thấy danh mục")
	}
	return c, nil
}

// CreateCategory adds a category; the slug is derived from the name when empty
func (s *CatalogService) CreateCategory(ctx context.Context, in *CategoryInput) (*models.Category, error) {
	c := &models.Category{
		Name:            strings.TrimSpace(in.Name),
		Slug:            util.Slugify(in.Slug),
		Description:     in.Description,
		ParentID:        in.ParentID,
		IsActive:        in.IsActive == nil || *in.IsActive,
		SortOrder:       in.SortOrder,
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
	}
	if c.Slug == "" {
		c.Slug = util.Slugify(c.Name)
	}
	if c.Slug == "" {
		return nil, newError(ErrInvalidInput, "Tên danh mục không hợp lệ")
	}
	if err := s.checkParent(ctx, c); err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, classify(err, "Đường dẫn danh mục đã tồn tại")
	}
	return c, nil
}

// UpdateCategory applies a partial update. The slug only changes when one
// is supplied.
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, patch *CategoryPatch) (*models.Category, error) {
	c, err := s.store.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, classify(err, "Không tìm thấy danh mục")
	}

	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Slug != nil {
		if slug := util.Slugify(*patch.Slug); slug != "" {
			c.Slug = slug
		}
	}
	if patch.ParentID != nil {
		if *patch.ParentID == 0 {
			c.ParentID = nil
		} else {
			c.ParentID = patch.ParentID
		}
	}
	setIf(&c.Description, patch.Description)
	setIf(&c.IsActive, patch.IsActive)
	setIf(&c.SortOrder, patch.SortOrder)
	setIf(&c.MetaTitle, patch.MetaTitle)
	setIf(&c.MetaDescription, patch.MetaDescription)

	if err := s.checkParent(ctx, c); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, classify(err, "Đường dẫn danh mục đã tồn tại")
	}
	return c, nil
}

func (s *CatalogService) checkParent(ctx context.Context, c *models.Category) error {
	if c.ParentID == nil {
		return nil
	}
	if c.ID != 0 && *c.ParentID == c.ID {
		return newError(ErrInvalidInput, "Danh mục không thể là cha của chính nó")
	}
	if _, err := s.store.GetCategoryByID(ctx, *c.ParentID); err != nil {
		return classify(err, "Không tìm thấy danh mục cha")
	}
	return nil
}

// DeleteCategory removes a category that no product references
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	n, err := s.store.CountProductsInCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return newError(ErrConflict, fmt.Sprintf("Danh mục đang có %d sản phẩm, không thể xóa", n))
	}
	return classify(s.store.DeleteCategory(ctx, id), "Không tìm thấy danh mục")
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
