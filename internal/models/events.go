package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentVerified    = "PAYMENT_VERIFIED"
	EventTypeChatEnded          = "CHAT_ENDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a customer places an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	Email         string          `json:"email"`
	CustomerName  string          `json:"customer_name"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   int64           `json:"total_amount"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published when an admin moves an order forward
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// OrderCancelledEvent published when an order is cancelled and stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

// PaymentVerifiedEvent published after manual reconciliation of a transfer
type PaymentVerifiedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	UserID        int64  `json:"user_id"`
	Email         string `json:"email"`
	PaymentStatus string `json:"payment_status"`
	Amount        int64  `json:"amount"`
	Note          string `json:"note"`
}

// ChatEndedEvent published when a chat session is closed with feedback
type ChatEndedEvent struct {
	BaseEvent
	SessionID    string `json:"session_id"`
	UserID       int64  `json:"user_id,omitempty"`
	Messages     int    `json:"messages"`
	Satisfaction int    `json:"satisfaction"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}
