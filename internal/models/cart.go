package models

import (
	"errors"
	"time"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartItem is one line of a cart. A line is identified by (ProductID, Size, Color).
type CartItem struct {
	ID          int64     `db:"id" json:"id"`
	CartID      int64     `db:"cart_id" json:"-"`
	ProductID   int64     `db:"product_id" json:"productId"`
	ProductName string    `db:"product_name" json:"productName"`
	Image       string    `db:"image" json:"image"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Size        string    `db:"size" json:"size"`
	Color       string    `db:"color" json:"color"`
	Price       int64     `db:"price" json:"price"`
	AddedAt     time.Time `db:"added_at" json:"addedAt"`
}

// Subtotal is price times quantity.
func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

func (i CartItem) sameLine(productID int64, size, color string) bool {
	return i.ProductID == productID && i.Size == size && i.Color == color
}

// Cart holds the line items of one owner (user or guest) and the totals
// derived from them. Every mutating method leaves the totals consistent.
type Cart struct {
	ID          int64      `db:"id" json:"id,omitempty"`
	UserID      int64      `db:"user_id" json:"userId,omitempty"`
	GuestID     string     `db:"-" json:"guestId,omitempty"`
	Items       []CartItem `db:"-" json:"items"`
	ItemCount   int        `db:"-" json:"itemCount"`
	TotalAmount int64      `db:"-" json:"totalAmount"`
	IsEmpty     bool       `db:"-" json:"isEmpty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// NewCart returns an empty cart with its derived fields set.
func NewCart() *Cart {
	c := &Cart{Items: []CartItem{}}
	c.Recalculate()
	return c
}

// Find returns the line for (productID, size, color) or nil.
func (c *Cart) Find(productID int64, size, color string) *CartItem {
	for i := range c.Items {
		if c.Items[i].sameLine(productID, size, color) {
			return &c.Items[i]
		}
	}
	return nil
}

// Item returns the line with the given id or nil.
func (c *Cart) Item(itemID int64) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// Add merges item into an existing line with the same identity, incrementing
// its quantity, or appends it as a new line. Lines without an ID get the next
// free local id. It returns the affected line and whether a merge happened.
func (c *Cart) Add(item CartItem) (CartItem, bool) {
	defer c.Recalculate()

	if existing := c.Find(item.ProductID, item.Size, item.Color); existing != nil {
		existing.Quantity += item.Quantity
		return *existing, true
	}

	if item.ID == 0 {
		item.ID = c.nextID()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	c.Items = append(c.Items, item)
	return item, false
}

// Update sets a line's quantity. A quantity of zero or less removes the line.
func (c *Cart) Update(itemID int64, quantity int) (removed bool, err error) {
	if quantity <= 0 {
		if err := c.Remove(itemID); err != nil {
			return false, err
		}
		return true, nil
	}

	line := c.Item(itemID)
	if line == nil {
		return false, ErrCartItemNotFound
	}
	line.Quantity = quantity
	c.Recalculate()
	return false, nil
}

// Remove deletes a line.
func (c *Cart) Remove(itemID int64) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Recalculate()
			return nil
		}
	}
	return ErrCartItemNotFound
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Recalculate()
}

// Recalculate refreshes ItemCount, TotalAmount and IsEmpty from Items.
func (c *Cart) Recalculate() {
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	count := 0
	var total int64
	for _, it := range c.Items {
		count += it.Quantity
		total += it.Subtotal()
	}
	c.ItemCount = count
	c.TotalAmount = total
	c.IsEmpty = len(c.Items) == 0
}

func (c *Cart) nextID() int64 {
	var max int64
	for _, it := range c.Items {
		if it.ID > max {
			max = it.ID
		}
	}
	return max + 1
}
