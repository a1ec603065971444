package api

import (
	"strings"

	"atelier-service/internal/models"
	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	headerGuestID        = "X-Guest-ID"
	headerIdempotencyKey = "Idempotency-Key"

	ctxActor   = "actor"
	ctxGuestID = "guestID"
)

// AuthRequired rejects requests without a valid Bearer access token and
// stores the caller as a service.Actor in the gin context.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondError(c, service.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, err := h.Auth.ParseAccessToken(token)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxActor, service.Actor{UserID: claims.UserID(), Role: claims.Role})
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is sent and lets
// anonymous requests through.
func (h *Handler) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if claims, err := h.Auth.ParseAccessToken(token); err == nil {
				c.Set(ctxActor, service.Actor{UserID: claims.UserID(), Role: claims.Role})
			}
		}
		c.Next()
	}
}

// RequireAdmin must run after AuthRequired
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actor(c).IsAdmin() {
			respondError(c, service.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func requireGuestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerGuestID))
		if id == "" || len(id) > 64 {
			respondError(c, badRequest("Thiếu mã giỏ hàng khách ("+headerGuestID+")"))
			c.Abort()
			return
		}
		c.Set(ctxGuestID, id)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// actor returns the authenticated caller, or the zero Actor
func actor(c *gin.Context) service.Actor {
	if v, ok := c.Get(ctxActor); ok {
		if a, ok := v.(service.Actor); ok {
			return a
		}
	}
	return service.Actor{Role: models.RoleUser}
}

// cartOwner resolves the cart a request operates on: the guest id under
// /api/guest-cart, the signed-in user everywhere else.
func cartOwner(c *gin.Context) service.CartOwner {
	if id := c.GetString(ctxGuestID); id != "" {
		return service.CartOwner{GuestID: id}
	}
	return service.CartOwner{UserID: actor(c).UserID}
}
