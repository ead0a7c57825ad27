package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/response"
)

// uploadFileRequest base64 JSON 上传
type uploadFileRequest struct {
	OrderID  orderID `json:"orderId" swaggertype:"integer"`
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
	Type     string  `json:"type"`
}

// UploadFile 上传执照文件
// @Summary 上传执照文件
// @Tags 文件
// @Accept mpfd,json
// @Produce json
// @Param orderId formData int false "订单ID"
// @Param file formData file false "文件 (multipart)"
// @Param request body uploadFileRequest false "base64 JSON 上传"
// @Success 200 {object} map[string]interface{} "success, fileId, file"
// @Failure 400 {object} response.Response
// @Failure 413 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/files [post]
func (h *Handler) UploadFile(c *gin.Context) {
	var (
		in  *service.UploadInput
		err error
	)
	if isMultipart(c) {
		in, err = h.multipartUpload(c)
	} else {
		in, err = h.jsonUpload(c)
	}
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			handleError(c, &service.ValidationError{Field: "file", Message: "file is required"})
			return
		}
		handleError(c, err)
		return
	}

	file, err := h.fileService.UploadFile(c.Request.Context(), *in)
	if err != nil {
		handleError(c, err)
		return
	}
	response.SuccessWith(c, gin.H{"fileId": file.ID, "file": file})
}

func (h *Handler) multipartUpload(c *gin.Context) (*service.UploadInput, error) {
	var id *int64
	if raw := strings.TrimSpace(c.PostForm("orderId")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &service.ValidationError{Field: "orderId", Message: "orderId must be an integer"}
		}
		id = &v
	}
	in, err := h.readFormFile(c, "file")
	if err != nil {
		return nil, err
	}
	in.OrderID = id
	return in, nil
}

func (h *Handler) jsonUpload(c *gin.Context) (*service.UploadInput, error) {
	var req uploadFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, decodeError(err)
	}
	if req.Content == "" {
		return nil, &service.ValidationError{Field: "content", Message: "content is required"}
	}
	content, err := decodeBase64(req.Content)
	if err != nil {
		return nil, &service.ValidationError{Field: "content", Message: "content must be base64 encoded"}
	}
	return &service.UploadInput{
		OrderID:     req.OrderID.ptr(),
		Filename:    req.Filename,
		ContentType: req.Type,
		Content:     content,
	}, nil
}

// decodeBase64 兼容 data URL 前缀与 URL-safe 编码
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// ListFiles 文件元数据列表
// @Summary 文件列表
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param orderId query int false "订单ID"
// @Param fileId query string false "文件ID"
// @Success 200 {object} map[string]interface{} "success, data, count"
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/files [get]
func (h *Handler) ListFiles(c *gin.Context) {
	orderID, err := queryOrderID(c)
	if err != nil {
		handleError(c, err)
		return
	}
	filter := repository.FileFilter{OrderID: orderID, FileID: strings.TrimSpace(c.Query("fileId"))}
	files, err := h.fileService.ListFiles(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	if filter.FileID != "" && len(files) == 0 {
		response.NotFound(c, "file not found")
		return
	}
	response.SuccessWith(c, gin.H{"data": files, "count": len(files)})
}

// GetFileContent 返回文件内容，download=1 时作为附件下载
// @Summary 查看/下载文件
// @Tags 文件
// @Produce application/pdf,image/png,image/jpeg
// @Security BearerAuth
// @Param id path string true "文件ID"
// @Param download query bool false "作为附件下载"
// @Success 200 {file} binary
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/files/{id}/content [get]
func (h *Handler) GetFileContent(c *gin.Context) {
	file, content, err := h.fileService.GetFileContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	disposition := "inline"
	if d := c.Query("download"); d == "1" || d == "true" {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", contentDisposition(disposition, file.OriginalName))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, file.ContentType, content)
}

// contentDisposition 非 ASCII 文件名按 RFC 5987 追加 filename*
func contentDisposition(disposition, name string) string {
	fallback := asciiFallback(name)
	v := fmt.Sprintf(`%s; filename="%s"`, disposition, fallback)
	if fallback != name {
		v += "; filename*=UTF-8''" + encodeRFC5987(name)
	}
	return v
}

func asciiFallback(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			sb.WriteByte('_')
		case r < 0x20 || r > 0x7e:
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "file"
	}
	return sb.String()
}

// encodeRFC5987 只保留 attr-char，其余字节百分号编码
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if isAttrChar(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[b>>4])
		sb.WriteByte(hex[b&0x0f])
	}
	return sb.String()
}

func isAttrChar(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", b) >= 0
}
