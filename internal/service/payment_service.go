package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"atelier-service/config"
	"atelier-service/internal/broker"
	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService builds bank transfer QR codes and records manual payment
// reconciliation.
type PaymentService struct {
	store          OrderStore
	eventPublisher OrderEvents
	cfg            config.PaymentConfig
	logger         *zap.Logger
	now            func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(store OrderStore, eventPublisher OrderEvents, cfg config.PaymentConfig) *PaymentService {
	return &PaymentService{
		store:          store,
		eventPublisher: eventPublisher,
		cfg:            cfg,
		logger:         util.GetLogger(),
		now:            time.Now,
	}
}

type VerifyPaymentRequest struct {
	Paid bool   `json:"paid"`
	Note string `json:"note" binding:"max=500"`
}

// bank returns the transfer account: config defaults overridden field by
// field by the payment.bank setting.
func (s *PaymentService) bank(ctx context.Context) models.BankSetting {
	b := models.BankSetting{
		BankID:      s.cfg.BankID,
		BankName:    s.cfg.BankName,
		AccountNo:   s.cfg.AccountNo,
		AccountName: s.cfg.AccountName,
		Template:    s.cfg.QRTemplate,
	}

	setting, err := s.store.GetSetting(ctx, models.SettingPaymentBank)
	if err != nil {
		return b
	}
	var override models.BankSetting
	if err := json.Unmarshal(setting.Value, &override); err != nil {
		s.logger.Warn("Invalid payment.bank setting", zap.Error(err))
		return b
	}
	if override.BankID != "" {
		b.BankID = override.BankID
	}
	if override.BankName != "" {
		b.BankName = override.BankName
	}
	if override.AccountNo != "" {
		b.AccountNo = override.AccountNo
	}
	if override.AccountName != "" {
		b.AccountName = override.AccountName
	}
	if override.Template != "" {
		b.Template = override.Template
	}
	return b
}

// QRImageURL composes the VietQR image link for a transfer
func QRImageURL(baseURL string, b models.BankSetting, amount int64, addInfo string) string {
	q := url.Values{}
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("addInfo", addInfo)
	q.Set("accountName", b.AccountName)
	return fmt.Sprintf("%s/%s-%s-%s.png?%s",
		strings.TrimRight(baseURL, "/"), b.BankID, b.AccountNo, b.Template, q.Encode())
}

// payableOrder loads an order the user may pay by transfer right now.
func (s *PaymentService) payableOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	switch {
	case order.UserID != userID:
		return nil, newError(ErrForbidden, "Bạn không có quyền thanh toán đơn hàng này")
	case order.PaymentMethod != models.PaymentMethodQR:
		return nil, newError(ErrInvalidInput, "Đơn hàng không sử dụng phương thức chuyển khoản")
	case order.Status == models.OrderStatusCancelled:
		return nil, newError(ErrConflict, "Đơn hàng đã bị hủy")
	case order.PaymentStatus == models.PaymentStatusPaid:
		return nil, newError(ErrConflict, "Đơn hàng đã được thanh toán")
	}
	return order, nil
}

// GenerateQR returns the transfer details for an unpaid QR order. Nothing is
// stored; every call rebuilds it from the order and the bank settings.
func (s *PaymentService) GenerateQR(ctx context.Context, userID, orderID int64) (*models.PaymentQR, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GenerateQR", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.payableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	b := s.bank(ctx)
	util.PaymentQRGeneratedTotal.Inc()

	return &models.PaymentQR{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		BankID:        b.BankID,
		BankName:      b.BankName,
		AccountNo:     b.AccountNo,
		AccountName:   b.AccountName,
		Amount:        order.TotalAmount,
		ReferenceCode: order.OrderNumber,
		QRImageURL:    QRImageURL(s.cfg.QRImageBaseURL, b, order.TotalAmount, order.OrderNumber),
		Instructions: []string{
			"Mở ứng dụng ngân hàng và quét mã QR",
			fmt.Sprintf("Kiểm tra số tiền: %s", util.FormatVND(order.TotalAmount)),
			fmt.Sprintf("Nội dung chuyển khoản: %s", order.OrderNumber),
			"Đơn hàng sẽ được xác nhận sau khi cửa hàng nhận được thanh toán",
		},
	}, nil
}

// QRCodePNG renders the NAPAS transfer payload of an unpaid QR order as PNG.
func (s *PaymentService) QRCodePNG(ctx context.Context, userID, orderID int64, size int) ([]byte, error) {
	order, err := s.payableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if size < 128 || size > 1024 {
		size = 320
	}

	b := s.bank(ctx)
	payload := BuildVietQRPayload(b.BankID, b.AccountNo, order.TotalAmount, order.OrderNumber)
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr: %w", err)
	}
	util.PaymentQRGeneratedTotal.Inc()
	return png, nil
}

// GetStatus returns the payment view of an order for its owner or an admin
func (s *PaymentService) GetStatus(ctx context.Context, actor Actor, orderID int64) (*models.PaymentStatusView, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "Bạn không có quyền xem đơn hàng này")
	}
	return statusView(order), nil
}

// Verify records the result of an admin's manual check of the bank account.
// A paid, still pending order is confirmed in the same update.
func (s *PaymentService) Verify(ctx context.Context, orderID int64, req *VerifyPaymentRequest) (*models.PaymentStatusView, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Verify",
		attribute.Int64("order_id", orderID), attribute.Bool("paid", req.Paid))
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy đơn hàng")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, newError(ErrConflict, "Đơn hàng đã bị hủy")
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, newError(ErrConflict, "Đơn hàng đã được thanh toán")
	}

	status := models.PaymentStatusFailed
	var paidAt *time.Time
	if req.Paid {
		status = models.PaymentStatusPaid
		now := s.now()
		paidAt = &now
	}
	if err := s.store.UpdatePaymentStatus(ctx, orderID, status, paidAt); err != nil {
		return nil, util.SpanError(span, classify(err, "Đơn hàng đã thay đổi trạng thái, vui lòng tải lại"))
	}

	util.PaymentVerifiedTotal.WithLabelValues(status).Inc()
	s.logger.Info("Payment verified",
		zap.Int64("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_status", status))

	event := &models.PaymentVerifiedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypePaymentVerified),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentStatus: status,
		Amount:        order.TotalAmount,
		Note:          req.Note,
	}
	if user, err := s.store.GetUserByID(ctx, order.UserID); err == nil {
		event.Email = user.Email
	}
	logPublish(s.logger, models.EventTypePaymentVerified, s.eventPublisher.PublishPaymentVerified(ctx, event))

	updated, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return statusView(updated), nil
}

func statusView(o *models.Order) *models.PaymentStatusView {
	return &models.PaymentStatusView{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		PaidAt:        o.PaidAt,
	}
}
