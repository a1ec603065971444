package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// OrderStatuses lists every order status in lifecycle order
var OrderStatuses = []string{
	OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment methods
const (
	PaymentMethodCOD = "cod"
	PaymentMethodQR  = "qr"
)

var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidOrderStatus reports whether s is a known order status.
func IsValidOrderStatus(s string) bool {
	for _, status := range OrderStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// ShippingAddress is stored as JSONB on the order row.
type ShippingAddress struct {
	FullName string `json:"fullName" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"required,vnphone"`
	Street   string `json:"street" binding:"required,max=255"`
	Ward     string `json:"ward" binding:"required"`
	District string `json:"district" binding:"required"`
	City     string `json:"city" binding:"required"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// Order represents a customer order. Items are value copies taken at
// checkout and never reference the cart.
type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderNumber     string          `db:"order_number" json:"orderNumber"`
	UserID          int64           `db:"user_id" json:"userId"`
	ShippingAddress ShippingAddress `db:"shipping_address" json:"shippingAddress"`
	PaymentMethod   string          `db:"payment_method" json:"paymentMethod"`
	PaymentStatus   string          `db:"payment_status" json:"paymentStatus"`
	Status          string          `db:"status" json:"status"`
	Subtotal        int64           `db:"subtotal" json:"subtotal"`
	ShippingFee     int64           `db:"shipping_fee" json:"shippingFee"`
	TotalAmount     int64           `db:"total_amount" json:"totalAmount"`
	Notes           string          `db:"notes" json:"notes"`
	CancelReason    string          `db:"cancel_reason" json:"cancelReason,omitempty"`
	PaidAt          *time.Time      `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is a snapshot of a purchased line
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"-"`
	ProductID   int64  `db:"product_id" json:"productId"`
	ProductName string `db:"product_name" json:"productName"`
	Image       string `db:"image" json:"image"`
	Size        string `db:"size" json:"size"`
	Color       string `db:"color" json:"color"`
	Price       int64  `db:"price" json:"price"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Subtotal    int64  `db:"subtotal" json:"subtotal"`
}

// PaymentQR is the bank transfer payload shown to the customer. It is
// derived from an order on every request and never stored.
type PaymentQR struct {
	OrderID       int64    `json:"orderId"`
	OrderNumber   string   `json:"orderNumber"`
	BankID        string   `json:"bankId"`
	BankName      string   `json:"bankName"`
	AccountNo     string   `json:"accountNo"`
	AccountName   string   `json:"accountName"`
	Amount        int64    `json:"amount"`
	ReferenceCode string   `json:"referenceCode"`
	QRImageURL    string   `json:"qrImageUrl"`
	Instructions  []string `json:"instructions"`
}

// PaymentStatusView is the polling view of an order's payment
type PaymentStatusView struct {
	OrderID       int64      `json:"orderId"`
	OrderNumber   string     `json:"orderNumber"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentStatus string     `json:"paymentStatus"`
	Status        string     `json:"status"`
	TotalAmount   int64      `json:"totalAmount"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}
