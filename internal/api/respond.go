package api

import (
	"errors"
	"net/http"
	"strconv"

	"atelier-service/internal/service"
	"atelier-service/internal/store"
	"atelier-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const genericErrorMessage = "Đã có lỗi xảy ra, vui lòng thử lại"

var errorStatuses = []struct {
	kind    error
	status  int
	message string
}{
	{service.ErrInvalidInput, http.StatusBadRequest, "Dữ liệu không hợp lệ"},
	{service.ErrEmptyCart, http.StatusBadRequest, "Giỏ hàng trống"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Email hoặc mật khẩu không đúng"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "Phiên đăng nhập đã hết hạn"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "Vui lòng đăng nhập"},
	{service.ErrForbidden, http.StatusForbidden, "Bạn không có quyền thực hiện thao tác này"},
	{service.ErrNotFound, http.StatusNotFound, "Không tìm thấy dữ liệu"},
	{store.ErrNotFound, http.StatusNotFound, "Không tìm thấy dữ liệu"},
	{service.ErrInsufficientStock, http.StatusConflict, "Sản phẩm không đủ số lượng trong kho"},
	{service.ErrInvalidTransition, http.StatusConflict, "Không thể chuyển sang trạng thái này"},
	{service.ErrConflict, http.StatusConflict, "Dữ liệu bị trùng hoặc đang được sử dụng"},
	{store.ErrStale, http.StatusConflict, "Dữ liệu đã thay đổi, vui lòng tải lại"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "Bạn thao tác quá nhanh, vui lòng thử lại sau"},
}

// respond writes a success envelope
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError maps an error onto its HTTP status and writes the failure
// envelope. Unrecognised errors become a 500 with a generic message.
func respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, genericErrorMessage
	for _, e := range errorStatuses {
		if errors.Is(err, e.kind) {
			status, message = e.status, e.message
			break
		}
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) && svcErr.Message != "" && status != http.StatusInternalServerError {
		message = svcErr.Message
	}

	detail := err.Error()
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		detail = http.StatusText(status)
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   detail,
	})
}

func badRequest(message string) error {
	return &service.Error{Kind: service.ErrInvalidInput, Message: message}
}

// bindJSON decodes and validates the body, writing a 400 on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, &service.Error{Kind: service.ErrInvalidInput, Message: "Dữ liệu không hợp lệ", Cause: err})
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		respondError(c, &service.Error{Kind: service.ErrInvalidInput, Message: "Tham số không hợp lệ", Cause: err})
		return false
	}
	return true
}

// idParam parses a positive integer path parameter, writing a 400 on failure
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, badRequest("Mã không hợp lệ"))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}
