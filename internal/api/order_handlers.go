package api

import (
	"net/http"
	"strings"

	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

type cancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed shipped delivered cancelled"`
	Reason string `json:"reason" binding:"max=500"`
}

// createOrder handles order creation. A repeated Idempotency-Key returns the
// order created by the first request.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))

	order, err := h.Orders.CreateOrder(c.Request.Context(), actor(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, order)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	page, err := h.Orders.ListMyOrders(c.Request.Context(), actor(c).UserID,
		queryInt(c, "page"), queryInt(c, "limit"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

// getOrder serves both the owner route and the admin route
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.GetOrder(c.Request.Context(), actor(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	order, err := h.Orders.CancelOrder(c.Request.Context(), actor(c).UserID, orderID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	page, err := h.Orders.ListOrders(c.Request.Context(), c.Query("status"), c.Query("search"),
		queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.Orders.UpdateStatus(c.Request.Context(), orderID, req.Status, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, order)
}

func (h *Handler) generateQR(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	qr, err := h.Payments.GenerateQR(c.Request.Context(), actor(c).UserID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, qr)
}

// qrImage renders the transfer payload as a PNG for clients that cannot
// load the VietQR image host.
func (h *Handler) qrImage(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	png, err := h.Payments.QRCodePNG(c.Request.Context(), actor(c).UserID, orderID, queryInt(c, "size"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) paymentStatus(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	status, err := h.Payments.GetStatus(c.Request.Context(), actor(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	var req service.VerifyPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	status, err := h.Payments.Verify(c.Request.Context(), orderID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}
