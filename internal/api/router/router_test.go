package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/internal/api/handler"
	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/internal/testutil"
)

const testMaxUpload = 64 << 10

var pdfBytes = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0x00, 0x7f, 0xff}, 100)...)

type testServer struct {
	engine  *gin.Engine
	storage *repository.GormStorage
	queue   *queue.MemoryQueue
}

type options struct {
	cfg     *config.Config
	storage repository.Storage
}

type option func(*options)

func withAdminPassword(t *testing.T, password string) option {
	hash, err := service.HashPassword(password)
	require.NoError(t, err)
	return func(o *options) {
		o.cfg.Admin.PasswordHash = hash
		o.cfg.Admin.JWTSecret = "test-secret"
	}
}

func withRateLimit(limit, burst int) option {
	return func(o *options) {
		o.cfg.RateLimit = config.RateLimitConfig{Enabled: true, Limit: limit, Window: time.Hour, Burst: burst}
	}
}

func withStorage(s repository.Storage) option {
	return func(o *options) { o.storage = s }
}

func setupServer(t *testing.T, opts ...option) *testServer {
	t.Helper()
	o := &options{cfg: &config.Config{
		Server:  config.ServerConfig{Mode: gin.TestMode, CORSOrigins: []string{"*"}},
		Upload:  config.UploadConfig{MaxSize: testMaxUpload},
		Tracing: config.TracingConfig{ServiceName: "medorder-test"},
		Admin:   config.AdminConfig{TokenTTL: time.Hour},
	}}
	for _, opt := range opts {
		opt(o)
	}

	st := repository.NewGormStorage(testutil.NewSQLiteDB(t), 5*time.Second)
	require.NoError(t, st.InitSchema())
	var storage repository.Storage = st
	if o.storage != nil {
		storage = o.storage
	}

	q := queue.NewMemoryQueue(100)
	files := service.NewFileService(storage, o.cfg.Upload.MaxSize)
	orders := service.NewOrderService(storage, files, q)
	auth := service.NewAuthService(o.cfg.Admin)
	admin := service.NewAdminService(st, st)
	h := handler.NewHandler(orders, files, auth, admin, o.cfg.Upload.MaxSize)
	health := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			_, err := st.Stats(ctx)
			return err
		},
	}, time.Second)

	return &testServer{engine: Setup(o.cfg, h, health, auth), storage: st, queue: q}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any, token ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if len(token) > 0 {
		req.Header.Set("Authorization", "Bearer "+token[0])
	}
	return s.do(t, req)
}

type filePart struct {
	field, filename, contentType string
	content                      []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func scenarioOrder() map[string]any {
	return map[string]any{
		"full_name":       "Taro Tanaka",
		"contact_name":    "Taro Tanaka",
		"contact_phone":   "090-0000-0000",
		"contact_email":   "taro@example.com",
		"company_address": "Tokyo",
		"product":         "eye-booster",
		"quantity":        2,
	}
}

func orderFields() map[string]string {
	out := make(map[string]string)
	for k, v := range scenarioOrder() {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestOrderScenario(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["success"])
	orderID := int64(body["orderId"].(float64))
	assert.NotZero(t, orderID)

	w = s.doJSON(t, http.MethodGet, fmt.Sprintf("/api/orders?orderId=%d", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "pending", data[0].(map[string]any)["status"])

	n, _ := s.queue.Len(context.Background())
	assert.Equal(t, int64(1), n)
}

func TestCreateOrder_MissingEmail(t *testing.T) {
	s := setupServer(t)
	in := scenarioOrder()
	delete(in, "contact_email")

	w := s.doJSON(t, http.MethodPost, "/api/orders", in)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "contact_email")
	details := body["details"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "contact_email", details[0].(map[string]any)["field"])
}

func TestCreateOrder_BadJSON(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	w := s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_NumericStrings(t *testing.T) {
	s := setupServer(t)

	in := scenarioOrder()
	in["quantity"] = "3"
	w := s.doJSON(t, http.MethodPost, "/api/orders", in)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode(t, w)["order"].(map[string]any)
	assert.Equal(t, float64(3), order["quantity"])
}

func TestCreateOrder_TypeErrorsNameTheField(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		name  string
		key   string
		value any
		field string
	}{
		{"quantity not a number", "quantity", "abc", "quantity"},
		{"quantity fraction", "quantity", 2.5, "quantity"},
		{"full_name not a string", "full_name", 5, "full_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := scenarioOrder()
			in[tt.key] = tt.value
			w := s.doJSON(t, http.MethodPost, "/api/orders", in)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotContains(t, w.Body.String(), "Go struct")
			assert.NotContains(t, w.Body.String(), "json:")
			details := decode(t, w)["details"].([]any)
			require.Len(t, details, 1)
			assert.Equal(t, tt.field, details[0].(map[string]any)["field"])
		})
	}

	fields := orderFields()
	fields["quantity"] = "x"
	w := s.do(t, multipartRequest(t, "/api/orders", fields))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "strconv")
	details := decode(t, w)["details"].([]any)
	assert.Equal(t, "quantity", details[0].(map[string]any)["field"])

	w = s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"orderId": "abc", "status": "shipped"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	details = decode(t, w)["details"].([]any)
	assert.Equal(t, "orderId", details[0].(map[string]any)["field"])
}

func TestCreateOrder_MultipartWithLicense(t *testing.T) {
	s := setupServer(t)

	req := multipartRequest(t, "/api/orders", orderFields(),
		filePart{field: "license", filename: "免許証.pdf", contentType: "application/pdf", content: pdfBytes})
	w := s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	fileID, _ := body["fileId"].(string)
	require.NotEmpty(t, fileID)
	orderID := int64(body["orderId"].(float64))

	w = s.doJSON(t, http.MethodGet, fmt.Sprintf("/api/files?orderId=%d", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	files := decode(t, w)["data"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, fileID, files[0].(map[string]any)["id"])

	job, err := s.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "免許証.pdf", job.LicenseFile)
}

func TestCreateOrder_MultipartWithoutLicense(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, multipartRequest(t, "/api/orders", orderFields()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotContains(t, body, "fileId")
}

func TestCreateOrder_MultipartBadLicense(t *testing.T) {
	s := setupServer(t)

	req := multipartRequest(t, "/api/orders", orderFields(),
		filePart{field: "license", filename: "notes.txt", contentType: "text/plain", content: []byte("hello")})
	w := s.do(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	list, err := s.storage.ListOrders(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateOrder(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"orderId": 99999, "status": "shipped"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	orderID := int64(decode(t, w)["orderId"].(float64))

	w = s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"orderId": orderID, "status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)["updatedOrder"].(map[string]any)
	assert.Equal(t, "shipped", updated["status"])

	// 字符串形式的 orderId 也接受
	w = s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"orderId": fmt.Sprint(orderID), "status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"orderId": orderID, "status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.doJSON(t, http.MethodPatch, "/api/orders", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.doJSON(t, http.MethodGet, fmt.Sprintf("/api/orders?orderId=%d", orderID), nil)
	data := decode(t, w)["data"].([]any)
	assert.Equal(t, "delivered", data[0].(map[string]any)["status"])
}

func TestGetOrderByID(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	orderID := int64(decode(t, w)["orderId"].(float64))

	w = s.doJSON(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(orderID), order["id"])
	assert.Equal(t, "pending", order["status"])

	w = s.doJSON(t, http.MethodGet, fmt.Sprintf("/api/orders/%d", orderID+1000), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.doJSON(t, http.MethodGet, "/api/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderByID_RequiresAdmin(t *testing.T) {
	s := setupServer(t, withAdminPassword(t, "correct horse"))
	w := s.doJSON(t, http.MethodGet, "/api/orders/1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrders_BadOrderID(t *testing.T) {
	s := setupServer(t)
	w := s.doJSON(t, http.MethodGet, "/api/orders?orderId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadFile_TextPlainRejected(t *testing.T) {
	s := setupServer(t)

	req := multipartRequest(t, "/api/files", map[string]string{"orderId": "1"},
		filePart{field: "file", filename: "notes.txt", contentType: "text/plain", content: []byte("hello")})
	w := s.do(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "PDF")
}

func TestUploadFile_Base64RoundTrip(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodPost, "/api/files", map[string]any{
		"orderId":  "42",
		"filename": "医師免許 2025.pdf",
		"content":  base64.StdEncoding.EncodeToString(pdfBytes),
		"type":     "application/pdf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fileID := decode(t, w)["fileId"].(string)

	w = s.doJSON(t, http.MethodGet, "/api/files?fileId="+fileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.doJSON(t, http.MethodGet, "/api/files?orderId=42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+fileID+"/content", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdfBytes, w.Body.Bytes())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	cd := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(cd, "inline;"), cd)
	assert.Contains(t, cd, "filename*=UTF-8''%E5%8C%BB%E5%B8%AB%E5%85%8D%E8%A8%B1%202025.pdf")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/files/"+fileID+"/content?download=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
}

func TestUploadFile_Errors(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodPost, "/api/files", map[string]any{
		"filename": "big.pdf",
		"content":  base64.StdEncoding.EncodeToString(make([]byte, testMaxUpload+1)),
		"type":     "application/pdf",
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/files", map[string]any{"filename": "a.pdf", "content": "!!!not base64", "type": "application/pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, multipartRequest(t, "/api/files", map[string]string{"orderId": "1"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.doJSON(t, http.MethodGet, "/api/files?fileId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.doJSON(t, http.MethodGet, "/api/files/missing/content", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadFile_BodyTooLarge(t *testing.T) {
	s := setupServer(t)

	big := bytes.Repeat([]byte("a"), testMaxUpload*2)
	req := multipartRequest(t, "/api/files", nil,
		filePart{field: "file", filename: "huge.pdf", contentType: "application/pdf", content: big})
	w := s.do(t, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestOptionsPreflight(t *testing.T) {
	s := setupServer(t)

	for _, path := range []string{"/api/orders", "/api/files", "/api/files/abc/content", "/api/admin/stats"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://example.com")
		w := s.do(t, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Empty(t, w.Body.String(), path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH", path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := setupServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/orders"},
		{http.MethodPut, "/api/files"},
		{http.MethodPost, "/api/files/abc/content"},
	} {
		w := s.doJSON(t, tc.method, tc.path, nil)
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, tc.path)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "method not allowed", body["error"])
	}
}

func TestAdminAuth(t *testing.T) {
	s := setupServer(t, withAdminPassword(t, "correct horse"))

	w := s.doJSON(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.doJSON(t, http.MethodGet, "/api/orders", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 公共下单接口不需要 token
	w = s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	require.Equal(t, http.StatusOK, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["data"].(map[string]any)["token"].(string)

	w = s.doJSON(t, http.MethodGet, "/api/orders", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.doJSON(t, http.MethodGet, "/api/admin/stats", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), stats["total_orders"])
}

func TestAdminLogin_Disabled(t *testing.T) {
	s := setupServer(t)
	w := s.doJSON(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminNotifications(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()
	require.NoError(t, s.storage.LogNotification(ctx, &model.Notification{
		OrderID: 7, Recipient: "admin@example.com", Kind: model.NotificationAdmin, Status: model.NotificationSent,
	}))
	require.NoError(t, s.storage.LogNotification(ctx, &model.Notification{
		OrderID: 8, Recipient: "taro@example.com", Kind: model.NotificationCustomer, Status: model.NotificationFailed,
	}))

	w := s.doJSON(t, http.MethodGet, "/api/admin/notifications?orderId=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.doJSON(t, http.MethodGet, "/api/admin/notifications", nil)
	assert.Equal(t, float64(2), decode(t, w)["count"])
}

func TestRateLimit(t *testing.T) {
	s := setupServer(t, withRateLimit(2, 2))

	for i := 0; i < 2; i++ {
		w := s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 只读接口不限流
	w = s.doJSON(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type brokenStorage struct {
	repository.Storage
}

var errBackend = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

func (brokenStorage) CreateOrder(context.Context, *model.Order) error {
	return fmt.Errorf("create order: %w: %w", repository.ErrStorageUnavailable, errBackend)
}

func (brokenStorage) ListOrders(context.Context, repository.OrderFilter) ([]model.Order, error) {
	return nil, fmt.Errorf("list orders: %w: %w", repository.ErrStorageUnavailable, errBackend)
}

func TestStorageUnavailable(t *testing.T) {
	s := setupServer(t, withStorage(brokenStorage{}))

	w := s.doJSON(t, http.MethodPost, "/api/orders", scenarioOrder())
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.Equal(t, false, decode(t, w)["success"])

	w = s.doJSON(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestHealthAndPages(t *testing.T) {
	s := setupServer(t)

	w := s.doJSON(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["checks"].(map[string]any)["database"])

	for _, p := range []string{"/", "/admin"} {
		w = s.do(t, httptest.NewRequest(http.MethodGet, p, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	}

	w = s.doJSON(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}
