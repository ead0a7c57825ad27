package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/response"
)

// AdminAuth 校验 Bearer token；未配置管理员密码时放行
func AdminAuth(auth service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil || !auth.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || auth.Verify(strings.TrimSpace(token)) != nil {
			c.Header("WWW-Authenticate", `Bearer realm="medorder"`)
			response.Unauthorized(c, "admin authorization required")
			return
		}
		c.Next()
	}
}
