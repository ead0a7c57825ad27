package router

import (
	"net/http"
	"strings"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/medorder/config"
	_ "github.com/d60-Lab/medorder/docs"
	"github.com/d60-Lab/medorder/internal/api/handler"
	"github.com/d60-Lab/medorder/internal/api/middleware"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/response"
	"github.com/d60-Lab/medorder/web"
)

// 二进制内容不压缩
var gzipExcluded = []string{`^/api/files/[^/]+/content$`}

// Setup 注册全部路由
func Setup(cfg *config.Config, h *handler.Handler, health *handler.HealthHandler, auth service.AuthService) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.ContextWithFallback = true

	r.Use(
		middleware.Recovery(),
		sentrygin.New(sentrygin.Options{Repanic: true}),
		middleware.ReportErrors(),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		middleware.RequestLogger(),
		middleware.CORS(cfg.Server.CORSOrigins),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs(gzipExcluded)),
	)

	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			response.NotFound(c, "route not found")
			return
		}
		c.String(http.StatusNotFound, "404 page not found")
	})

	r.GET("/", page(web.IndexHTML))
	r.GET("/admin", page(web.AdminHTML))
	if health != nil {
		r.GET("/health", health.Health)
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit)
	}
	limited := middleware.RateLimit(limiter)
	// base64 上传约膨胀 4/3，另留 1MB 给表单字段
	bodyLimit := middleware.BodyLimit(cfg.Upload.MaxSize*4/3 + 1<<20)

	api := r.Group("/api")
	{
		api.POST("/orders", limited, bodyLimit, h.CreateOrder)
		api.POST("/files", limited, bodyLimit, h.UploadFile)
		api.POST("/admin/login", limited, h.AdminLogin)

		admin := api.Group("", middleware.AdminAuth(auth))
		admin.GET("/orders", h.ListOrders)
		admin.GET("/orders/:id", h.GetOrder)
		admin.PATCH("/orders", h.UpdateOrder)
		admin.GET("/files", h.ListFiles)
		admin.GET("/files/:id/content", h.GetFileContent)
		admin.GET("/admin/stats", h.AdminStats)
		admin.GET("/admin/notifications", h.ListNotifications)
	}

	return r
}

func page(body []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", body)
	}
}
