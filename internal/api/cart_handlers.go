package api

import (
	"net/http"

	"atelier-service/internal/models"
	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

type mergeCartRequest struct {
	GuestID string `json:"guestId"`
}

// The cart handlers serve both /api/cart and /api/guest-cart; cartOwner
// picks the owner from the route's middleware.

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.Cart.Get(c.Request.Context(), cartOwner(c))
	h.respondCart(c, cart, err)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.Cart.AddItem(c.Request.Context(), cartOwner(c), &req)
	h.respondCart(c, cart, err)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	var req service.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.Cart.UpdateItem(c.Request.Context(), cartOwner(c), itemID, req.Quantity)
	h.respondCart(c, cart, err)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	cart, err := h.Cart.RemoveItem(c.Request.Context(), cartOwner(c), itemID)
	h.respondCart(c, cart, err)
}

func (h *Handler) clearCart(c *gin.Context) {
	cart, err := h.Cart.Clear(c.Request.Context(), cartOwner(c))
	h.respondCart(c, cart, err)
}

// mergeCart folds the guest cart named in the body or the X-Guest-ID header
// into the signed-in user's cart.
func (h *Handler) mergeCart(c *gin.Context) {
	var req mergeCartRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	guestID := req.GuestID
	if guestID == "" {
		guestID = c.GetHeader(headerGuestID)
	}
	cart, err := h.Cart.MergeGuestCart(c.Request.Context(), actor(c).UserID, guestID)
	h.respondCart(c, cart, err)
}

func (h *Handler) respondCart(c *gin.Context, cart *models.Cart, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, cart)
}
