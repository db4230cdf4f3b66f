// Package api 提供检索、导入和对话的HTTP接口
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-rag-assistant/api/handler"
	"github.com/fyerfyer/doc-rag-assistant/api/middleware"
)

// Handlers 路由使用的处理器，为nil的处理器对应的路由不注册
type Handlers struct {
	Cors     bool
	Search   *handler.SearchHandler
	Ingest   *handler.IngestHandler
	Document *handler.DocumentHandler
	Run      *handler.RunHandler
	Chat     *handler.ChatHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(logger *logrus.Logger, h Handlers) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.RequestBodyLog(logger))
	if h.Cors {
		router.Use(Cors())
	}

	api := router.Group("/api")
	{
		// 检索 - POST /api/search
		if h.Search != nil {
			api.POST("/search", h.Search.Search)
		}

		// 导入
		if h.Ingest != nil {
			api.POST("/ingest", h.Ingest.Ingest)
			api.GET("/ingest/tasks/:id", h.Ingest.GetTask)
		}

		// 源目录文件管理
		if h.Document != nil {
			docGroup := api.Group("/documents")
			docGroup.POST("", h.Document.UploadDocument)
			docGroup.GET("", h.Document.ListDocuments)
		}

		// 运行记录
		if h.Run != nil {
			api.GET("/runs", h.Run.ListRuns)
			api.GET("/runs/:id", h.Run.GetRun)
		}

		// 对话 - POST /api/chat
		if h.Chat != nil {
			api.POST("/chat", h.Chat.Chat)
		}

		// 健康检查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
