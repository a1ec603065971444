package worker

import (
	"context"
	"fmt"
	"strings"

	"atelier-service/internal/broker"
	"atelier-service/internal/mailer"
	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"go.uber.org/zap"
)

// MessageConsumer is the slice of *broker.Consumer the worker needs
type MessageConsumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// MailSender delivers rendered messages
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// NotificationWorker turns order events into customer emails
type NotificationWorker struct {
	consumer     MessageConsumer
	eventHandler *broker.EventHandler
	mail         MailSender
	baseURL      string
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. baseURL is the
// storefront address used in links.
func NewNotificationWorker(consumer MessageConsumer, mail MailSender, baseURL string) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		mail:         mail,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       util.GetLogger().With(zap.String("worker", "notification"), zap.String("host", util.Hostname())),
	}

	w.eventHandler.OnOrderCreated(w.handleOrderCreated)
	w.eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler.OnPaymentVerified(w.handlePaymentVerified)
	return w
}

// Start consumes until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	payByQR := e.PaymentMethod == models.PaymentMethodQR
	link := w.orderLink(e.OrderID)
	if payByQR {
		link = fmt.Sprintf("%s/payment/%d", w.baseURL, e.OrderID)
	}
	return w.send(ctx, mailer.TemplateOrderCreated, e.Email, e.OrderNumber, mailer.OrderCreatedData{
		Name:        e.CustomerName,
		OrderNumber: e.OrderNumber,
		Items:       e.Items,
		Total:       e.TotalAmount,
		PayByQR:     payByQR,
		Link:        link,
	})
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	return w.send(ctx, mailer.TemplateOrderStatus, e.Email, e.OrderNumber, mailer.OrderStatusData{
		OrderNumber: e.OrderNumber,
		Status:      mailer.StatusLabel(e.NewStatus),
		Link:        w.orderLink(e.OrderID),
	})
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return w.send(ctx, mailer.TemplateOrderCancelled, e.Email, e.OrderNumber, mailer.OrderCancelledData{
		OrderNumber: e.OrderNumber,
		Reason:      e.Reason,
	})
}

func (w *NotificationWorker) handlePaymentVerified(ctx context.Context, e *models.PaymentVerifiedEvent) error {
	return w.send(ctx, mailer.TemplatePaymentVerified, e.Email, e.OrderNumber, mailer.PaymentVerifiedData{
		OrderNumber: e.OrderNumber,
		Paid:        e.PaymentStatus == models.PaymentStatusPaid,
		Total:       e.Amount,
	})
}

func (w *NotificationWorker) orderLink(orderID int64) string {
	return fmt.Sprintf("%s/orders/%d", w.baseURL, orderID)
}

// send renders and delivers one email. Events without a recipient are
// skipped. Errors are counted and returned for the consumer to log.
func (w *NotificationWorker) send(ctx context.Context, template, to, orderNumber string, data interface{}) error {
	if to == "" {
		util.EmailsSentTotal.WithLabelValues(template, "skipped").Inc()
		w.logger.Debug("Event has no recipient", zap.String("template", template), zap.String("order_number", orderNumber))
		return nil
	}

	msg, err := mailer.Render(template, to, orderNumber, data)
	if err != nil {
		util.EmailsSentTotal.WithLabelValues(template, "failed").Inc()
		return err
	}
	if err := w.mail.Send(ctx, msg); err != nil {
		util.EmailsSentTotal.WithLabelValues(template, "failed").Inc()
		return fmt.Errorf("failed to send %s for %s: %w", template, orderNumber, err)
	}

	util.EmailsSentTotal.WithLabelValues(template, "sent").Inc()
	w.logger.Info("Notification sent",
		zap.String("template", template),
		zap.String("order_number", orderNumber))
	return nil
}
