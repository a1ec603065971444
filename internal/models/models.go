package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Image is a product picture reference. Uploading is handled elsewhere; only
// the URL is stored.
type Image struct {
	URL string `json:"url" binding:"required,url"`
	Alt string `json:"alt"`
}

// Images is stored as JSONB.
type Images []Image

func (im Images) Value() (driver.Value, error) {
	if im == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(im)
}

func (im *Images) Scan(src interface{}) error {
	return scanJSON(src, im)
}

// Product represents a product in the catalog
type Product struct {
	ID            int64          `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Slug          string         `db:"slug" json:"slug"`
	Description   string         `db:"description" json:"description"`
	Price         int64          `db:"price" json:"price"`
	OriginalPrice int64          `db:"original_price" json:"originalPrice"`
	SalePrice     int64          `db:"sale_price" json:"salePrice"`
	Stock         int            `db:"stock" json:"stock"`
	CategoryID    *int64         `db:"category_id" json:"categoryId"`
	Brand         string         `db:"brand" json:"brand"`
	Sizes         pq.StringArray `db:"sizes" json:"sizes"`
	Colors        pq.StringArray `db:"colors" json:"colors"`
	Images        Images         `db:"images" json:"images"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	IsActive      bool           `db:"is_active" json:"isActive"`
	IsFeatured    bool           `db:"is_featured" json:"isFeatured"`
	IsOnSale      bool           `db:"is_on_sale" json:"isOnSale"`
	AverageRating float64        `db:"average_rating" json:"averageRating"`
	NumReviews    int            `db:"num_reviews" json:"numReviews"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`

	Reviews []Review `db:"-" json:"reviews,omitempty"`
}

// EffectivePrice is the unit price a customer pays right now.
func (p *Product) EffectivePrice() int64 {
	if p.IsOnSale && p.SalePrice > 0 && p.SalePrice < p.Price {
		return p.SalePrice
	}
	return p.Price
}

// MainImage returns the first image URL or an empty string.
func (p *Product) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// HasSize reports whether size is offered. Products without a size list accept any.
func (p *Product) HasSize(size string) bool {
	return allows(p.Sizes, size)
}

// HasColor reports whether color is offered. Products without a color list accept any.
func (p *Product) HasColor(color string) bool {
	return allows(p.Colors, color)
}

func allows(options []string, v string) bool {
	if len(options) == 0 {
		return true
	}
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// Review is a customer rating embedded in product detail responses
type Review struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"productId"`
	UserID    int64     `db:"user_id" json:"user"`
	UserName  string    `db:"user_name" json:"userName"`
	Rating    int       `db:"rating" json:"rating"`
	Title     string    `db:"title" json:"title"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Category groups products; ParentID builds the category tree.
type Category struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Slug            string    `db:"slug" json:"slug"`
	Description     string    `db:"description" json:"description"`
	ParentID        *int64    `db:"parent_id" json:"parentId"`
	IsActive        bool      `db:"is_active" json:"isActive"`
	SortOrder       int       `db:"sort_order" json:"sortOrder"`
	MetaTitle       string    `db:"meta_title" json:"metaTitle"`
	MetaDescription string    `db:"meta_description" json:"metaDescription"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`

	Children []*Category `db:"-" json:"children,omitempty"`
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a storefront account
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Address      string    `db:"address" json:"address"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`

	Wishlist []int64 `db:"-" json:"wishlist"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Setting is an admin-editable key/value entry
type Setting struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Well-known setting keys
const (
	SettingPaymentBank = "payment.bank"
	SettingStoreInfo   = "store.info"
	SettingShippingFee = "shipping.fee"
)

// BankSetting is the value shape of the payment.bank setting
type BankSetting struct {
	BankID      string `json:"bankId"`
	BankName    string `json:"bankName"`
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName"`
	Template    string `json:"template"`
}

// ShippingFeeSetting is the value shape of the shipping.fee setting
type ShippingFeeSetting struct {
	Fee           int64 `json:"fee"`
	FreeThreshold int64 `json:"freeThreshold"`
}

// Pagination describes a page of a list response
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes TotalPages for the given window.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
