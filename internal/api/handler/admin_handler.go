package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/logger"
	"github.com/d60-Lab/medorder/pkg/response"
)

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminLogin 管理员登录，返回 Bearer token
// @Summary 管理员登录
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body loginRequest true "密码"
// @Success 200 {object} response.Response{data=loginResponse}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/admin/login [post]
func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password is required")
		return
	}
	if !h.authService.Enabled() {
		response.BadRequest(c, service.ErrAuthDisabled.Error())
		return
	}
	token, exp, err := h.authService.Login(req.Password)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("admin login failed", zap.String("ip", c.ClientIP()))
		handleError(c, err)
		return
	}
	response.Success(c, loginResponse{Token: token, ExpiresAt: exp})
}

// AdminStats 订单与文件统计
// @Summary 统计
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=repository.Stats}
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/admin/stats [get]
func (h *Handler) AdminStats(c *gin.Context) {
	st, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, st)
}

// ListNotifications 邮件发送记录
// @Summary 邮件发送记录
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param orderId query int false "订单ID"
// @Success 200 {object} map[string]interface{} "success, data, count"
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/admin/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	orderID, err := queryOrderID(c)
	if err != nil {
		handleError(c, err)
		return
	}
	list, err := h.adminService.ListNotifications(c.Request.Context(), orderID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWith(c, gin.H{"data": list, "count": len(list)})
}
