package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/response"
)

// Handler HTTP 处理器，自身不持有请求间状态
type Handler struct {
	orderService service.OrderService
	fileService  service.FileService
	authService  service.AuthService
	adminService service.AdminService
	maxUpload    int64
}

func NewHandler(
	orderService service.OrderService,
	fileService service.FileService,
	authService service.AuthService,
	adminService service.AdminService,
	maxUpload int64,
) *Handler {
	return &Handler{
		orderService: orderService,
		fileService:  fileService,
		authService:  authService,
		adminService: adminService,
		maxUpload:    maxUpload,
	}
}

// handleError 领域错误到 HTTP 状态码的映射，存储错误不向客户端暴露细节
func handleError(c *gin.Context, err error) {
	var (
		verr     *service.ValidationError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusBadRequest, verr.Message, []response.ErrorDetail{
			{Field: verr.Field, Message: verr.Message},
		})
	case errors.Is(err, service.ErrInvalidFileType):
		response.BadRequest(c, service.ErrInvalidFileType.Error())
	case errors.Is(err, service.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		response.TooLarge(c, service.ErrPayloadTooLarge.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, service.ErrInvalidPassword), errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// bindError 请求体解析失败：超出大小返回 413，其余按字段返回 400
func bindError(c *gin.Context, err error) {
	handleError(c, decodeError(err))
}

// decodeError 把绑定错误转换为领域错误，不向客户端暴露解码细节
func decodeError(err error) error {
	var (
		maxBytes *http.MaxBytesError
		typeErr  *json.UnmarshalTypeError
		syntax   *json.SyntaxError
	)
	switch {
	case errors.As(err, &maxBytes):
		return err
	case errors.Is(err, errInvalidOrderID):
		return &service.ValidationError{Field: "orderId", Message: errInvalidOrderID.Error()}
	case errors.Is(err, errInvalidQuantity):
		return &service.ValidationError{Field: "quantity", Message: errInvalidQuantity.Error()}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return &service.ValidationError{Field: typeErr.Field, Message: typeErr.Field + " has an invalid type"}
	case errors.As(err, &syntax):
		return &service.ValidationError{Field: "body", Message: "request body is not valid JSON"}
	default:
		return &service.ValidationError{Field: "body", Message: "invalid request body"}
	}
}

// queryOrderID 解析可选的 orderId 查询参数
func queryOrderID(c *gin.Context) (*int64, error) {
	raw := strings.TrimSpace(c.Query("orderId"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &service.ValidationError{Field: "orderId", Message: "orderId must be an integer"}
	}
	return &id, nil
}
