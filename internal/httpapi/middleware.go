package httpapi

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrcoder57/chat-express/internal/auth"
)

// JWTAuth JWT 认证中间件
func JWTAuth(jwtService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := jwtService.Verify(token)
		if err != nil {
			ErrorFromAppError(c, err)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// extractToken 从 Authorization header 提取 token
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0
	}
	return userID.(int64)
}
