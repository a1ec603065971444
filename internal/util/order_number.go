package util

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

// No I, O, 0 or 1: order numbers are read out over the phone and typed into
// bank transfer memos.
const orderNumberCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderNumber returns a display code like VHA250114K7XM2Q.
func NewOrderNumber(now time.Time) string {
	return "VHA" + now.Format("060102") + randomCode(6)
}

func randomCode(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)[:n]
	}
	for i := range b {
		b[i] = orderNumberCharset[int(b[i])%len(orderNumberCharset)]
	}
	return string(b)
}

// FormatVND renders an amount of dong with dot thousand separators, e.g. 1.250.000đ.
func FormatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + b.String() + "đ"
}
