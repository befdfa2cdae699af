package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrcoder57/chat-express/internal/auth"
	"github.com/mrcoder57/chat-express/internal/config"
	"github.com/mrcoder57/chat-express/internal/health"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	jwtService *auth.Service,
	conversationHandler *ConversationHandler,
	checker *health.Checker,
) *gin.Engine {
	gin.SetMode(cfg.HTTP.Mode)

	r := gin.New()
	r.Use(gin.Recovery())

	// 运维端点
	r.GET("/health", gin.WrapH(checker))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(JWTAuth(jwtService))
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)
			conversations.POST("", conversationHandler.Create)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.GET("/:id/messages", conversationHandler.Messages)
		}
	}

	return r
}
