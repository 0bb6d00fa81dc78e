// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autoline-go/pkg/token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于运营后台的 JWT 认证。
// 它会从请求头中提取 token、验证有效性并要求 ADMIN 角色。
// WebSocket 握手无法自定义请求头，放行 query 参数里的 token。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""

		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		switch {
		case strings.HasPrefix(authHeader, bearerPrefix):
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		case c.Query("token") != "":
			tokenString = c.Query("token")
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}
		if claims.Role != "ADMIN" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足"})
			return
		}

		// 将 claims 存储在 context 中，供后续处理函数使用
		c.Set("claims", claims)
		c.Next()
	}
}
