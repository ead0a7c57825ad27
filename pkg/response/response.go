package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail 字段级错误
type ErrorDetail struct {
	Field   string `json:"field" example:"contact_email"`
	Message string `json:"message" example:"contact_email is required"`
}

// Success 200
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SuccessWith 200，附加顶层字段（兼容旧前端读取 ok / orderId 等字段）
func SuccessWith(c *gin.Context, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error 通用错误响应
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message})
}

// ErrorWithDetails 带字段详情的错误响应
func ErrorWithDetails(c *gin.Context, status int, message string, details []ErrorDetail) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message, Details: details})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func MethodNotAllowed(c *gin.Context) {
	Error(c, http.StatusMethodNotAllowed, "method not allowed")
}

func TooLarge(c *gin.Context, message string) {
	Error(c, http.StatusRequestEntityTooLarge, message)
}

func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, "too many requests, please try again later")
}

// InternalError 500，对外只返回通用信息，err 记录到 gin.Context 供日志/Sentry 中间件使用
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Error(c, http.StatusInternalServerError, "internal server error, please retry later")
}
