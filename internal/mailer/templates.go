package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"atelier-service/internal/models"
	"atelier-service/internal/util"
)

// Template names, also used as metric labels
const (
	TemplateOrderCreated    = "order_created"
	TemplateOrderStatus     = "order_status"
	TemplateOrderCancelled  = "order_cancelled"
	TemplatePaymentVerified = "payment_verified"
	TemplatePasswordReset   = "password_reset"
)

var statusLabels = map[string]string{
	models.OrderStatusPending:   "Chờ xác nhận",
	models.OrderStatusConfirmed: "Đã xác nhận",
	models.OrderStatusShipped:   "Đang giao hàng",
	models.OrderStatusDelivered: "Đã giao hàng",
	models.OrderStatusCancelled: "Đã hủy",
}

// StatusLabel returns the Vietnamese label of an order status
func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222;max-width:600px;margin:auto">
<h2 style="color:#8b5e3c">VHA Atelier</h2>
{{template "body" .}}
<p style="margin-top:32px;font-size:12px;color:#888">Email này được gửi tự động, vui lòng không trả lời.</p>
</body></html>{{end}}`

var bodies = map[string]string{
	TemplateOrderCreated: `{{define "body"}}
<p>Xin chào {{.Name}},</p>
<p>Cảm ơn bạn đã đặt hàng. Mã đơn hàng của bạn là <b>{{.OrderNumber}}</b>.</p>
<table style="width:100%;border-collapse:collapse">
{{range .Items}}<tr><td>{{.ProductName}} × {{.Quantity}}</td><td style="text-align:right">{{vnd .UnitPrice}}</td></tr>
{{end}}</table>
<p>Tổng thanh toán: <b>{{vnd .Total}}</b></p>
{{if .PayByQR}}<p>Vui lòng chuyển khoản với nội dung <b>{{.OrderNumber}}</b>. Xem mã QR tại
<a href="{{.Link}}">{{.Link}}</a>.</p>{{else}}<p>Bạn sẽ thanh toán khi nhận hàng (COD).</p>{{end}}
{{end}}`,
	TemplateOrderStatus: `{{define "body"}}
<p>Đơn hàng <b>{{.OrderNumber}}</b> đã chuyển sang trạng thái: <b>{{.Status}}</b>.</p>
<p>Theo dõi đơn hàng tại <a href="{{.Link}}">{{.Link}}</a>.</p>
{{end}}`,
	TemplateOrderCancelled: `{{define "body"}}
<p>Đơn hàng <b>{{.OrderNumber}}</b> đã được hủy.</p>
{{if .Reason}}<p>Lý do: {{.Reason}}</p>{{end}}
{{end}}`,
	TemplatePaymentVerified: `{{define "body"}}
{{if .Paid}}<p>Chúng tôi đã nhận được khoản thanh toán <b>{{vnd .Total}}</b> cho đơn hàng <b>{{.OrderNumber}}</b>.</p>
{{else}}<p>Chúng tôi chưa xác nhận được khoản thanh toán cho đơn hàng <b>{{.OrderNumber}}</b>. Vui lòng liên hệ cửa hàng.</p>{{end}}
{{end}}`,
	TemplatePasswordReset: `{{define "body"}}
<p>Xin chào {{.Name}},</p>
<p>Nhấn vào liên kết sau để đặt lại mật khẩu. Liên kết có hiệu lực trong {{.Minutes}} phút.</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{end}}`,
}

var subjects = map[string]string{
	TemplateOrderCreated:    "Xác nhận đơn hàng %s",
	TemplateOrderStatus:     "Cập nhật đơn hàng %s",
	TemplateOrderCancelled:  "Đơn hàng %s đã bị hủy",
	TemplatePaymentVerified: "Thanh toán đơn hàng %s",
	TemplatePasswordReset:   "Đặt lại mật khẩu tài khoản %s",
}

var templates = mustParse()

func mustParse() map[string]*template.Template {
	funcs := template.FuncMap{"vnd": util.FormatVND}
	out := make(map[string]*template.Template, len(bodies))
	for name, body := range bodies {
		t := template.Must(template.New(name).Funcs(funcs).Parse(layout))
		out[name] = template.Must(t.Parse(body))
	}
	return out
}

// Render executes a named template. subjectArg fills the subject line.
func Render(name, to, subjectArg string, data interface{}) (Message, error) {
	t, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf(subjects[name], subjectArg),
		HTML:    buf.String(),
	}, nil
}

// OrderCreatedData feeds the order_created template
type OrderCreatedData struct {
	Name        string
	OrderNumber string
	Items       []models.OrderItemData
	Total       int64
	PayByQR     bool
	Link        string
}

// OrderStatusData feeds the order_status template
type OrderStatusData struct {
	OrderNumber string
	Status      string
	Link        string
}

// OrderCancelledData feeds the order_cancelled template
type OrderCancelledData struct {
	OrderNumber string
	Reason      string
}

// PaymentVerifiedData feeds the payment_verified template
type PaymentVerifiedData struct {
	OrderNumber string
	Paid        bool
	Total       int64
}

// PasswordResetData feeds the password_reset template
type PasswordResetData struct {
	Name    string
	Link    string
	Minutes int
}
