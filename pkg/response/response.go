package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 机器可读的错误码，客户端按 error 字段分支
const (
	ErrValidation      = "validation_error"
	ErrMissingAPIKey   = "missing_api_key"
	ErrInvalidAPIKey   = "invalid_api_key"
	ErrForbidden       = "forbidden"
	ErrAuth            = "auth_error"
	ErrBadSignature    = "bad_signature"
	ErrDuplicate       = "duplicate_invoice_referral"
	ErrRateLimited     = "rate_limited"
	ErrNotFound        = "not_found"
	ErrDB              = "db_error"
	ErrInternal        = "internal_error"
	ErrNoFieldsUpdated = "no_fields"
)

// Response 统一响应结构，code 与 HTTP 状态码一致，成功时为 0
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

// Error 错误响应，data 可以携带错误详情
func Error(c *gin.Context, status int, errCode, message string, data interface{}) {
	c.JSON(status, Response{
		Code:    status,
		Message: message,
		Error:   errCode,
		Data:    data,
	})
}

// Abort 中间件使用，终止后续处理
func Abort(c *gin.Context, status int, errCode, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Message: message,
		Error:   errCode,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string, details interface{}) {
	Error(c, http.StatusBadRequest, ErrValidation, message, details)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// ServerError 不把内部错误细节返回给客户端
func ServerError(c *gin.Context, errCode string) {
	Error(c, http.StatusInternalServerError, errCode, "服务器内部错误", nil)
}
