package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"autoline-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，用于记录请求访问日志。
// 进站消息内容可能包含客户个人信息，日志里只记录元数据不记录请求体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
