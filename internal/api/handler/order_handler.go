package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/response"
)

type updateOrderRequest struct {
	OrderID orderID           `json:"orderId" swaggertype:"integer"`
	Status  model.OrderStatus `json:"status"`
}

// CreateOrder 提交订单，multipart 时可附带 license 文件
// @Summary 提交订单
// @Tags 订单
// @Accept json,mpfd
// @Produce json
// @Param request body service.OrderInput true "订单信息"
// @Param license formData file false "执照文件 (PDF/PNG/JPG)"
// @Success 200 {object} map[string]interface{} "success, ok, orderId, order, fileId"
// @Failure 400 {object} response.Response
// @Failure 413 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	in, err := bindOrderInput(c)
	if err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if !isMultipart(c) {
		order, err := h.orderService.SubmitOrder(ctx, in)
		if err != nil {
			handleError(c, err)
			return
		}
		response.SuccessWith(c, gin.H{"ok": true, "orderId": order.ID, "order": order})
		return
	}

	license, err := h.readFormFile(c, "license")
	if errors.Is(err, http.ErrMissingFile) {
		order, err := h.orderService.SubmitOrder(ctx, in)
		if err != nil {
			handleError(c, err)
			return
		}
		response.SuccessWith(c, gin.H{"ok": true, "orderId": order.ID, "order": order})
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}

	order, file, err := h.orderService.SubmitOrderWithLicense(ctx, in, *license)
	if order == nil {
		handleError(c, err)
		return
	}
	body := gin.H{"ok": true, "orderId": order.ID, "order": order}
	if file != nil {
		body["fileId"] = file.ID
	} else if err != nil {
		_ = c.Error(err)
		body["licenseError"] = "license upload failed, please upload the file again"
	}
	response.SuccessWith(c, body)
}

// ListOrders 订单列表，新订单在前
// @Summary 订单列表
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param orderId query int false "订单ID"
// @Success 200 {object} map[string]interface{} "success, data, count"
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	id, err := queryOrderID(c)
	if err != nil {
		handleError(c, err)
		return
	}
	orders, err := h.orderService.ListOrders(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWith(c, gin.H{"data": orders, "count": len(orders)})
}

// GetOrder 按 ID 查询单个订单
// @Summary 订单详情
// @Tags 订单
// @Produce json
// @Security BearerAuth
// @Param id path int true "订单ID"
// @Success 200 {object} response.Response{data=model.Order}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		handleError(c, &service.ValidationError{Field: "id", Message: "id must be an integer"})
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateOrder 修改订单状态
// @Summary 修改订单状态
// @Tags 订单
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body updateOrderRequest true "orderId 与 status"
// @Success 200 {object} map[string]interface{} "success, updatedOrder"
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/orders [patch]
func (h *Handler) UpdateOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id := req.OrderID.ptr()
	if id == nil {
		handleError(c, &service.ValidationError{Field: "orderId", Message: "orderId is required"})
		return
	}
	order, err := h.orderService.SetStatus(c.Request.Context(), *id, req.Status)
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWith(c, gin.H{"updatedOrder": order})
}

// createOrderRequest JSON 下单请求，quantity 兼容数字字符串
type createOrderRequest struct {
	service.OrderInput
	Quantity quantity `json:"quantity"`
}

func bindOrderInput(c *gin.Context) (service.OrderInput, error) {
	if c.ContentType() == binding.MIMEJSON {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return service.OrderInput{}, err
		}
		in := req.OrderInput
		in.Quantity = int(req.Quantity)
		return in, nil
	}

	var in service.OrderInput
	if err := c.ShouldBind(&in); err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return in, errInvalidQuantity
		}
		return in, err
	}
	return in, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// readFormFile 读取 multipart 文件，缺失时返回 http.ErrMissingFile
func (h *Handler) readFormFile(c *gin.Context, field string) (*service.UploadInput, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return nil, service.ErrPayloadTooLarge
	}
	content, err := readAll(fh, h.maxUpload)
	if err != nil {
		return nil, err
	}
	return &service.UploadInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func readAll(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	return io.ReadAll(r)
}
