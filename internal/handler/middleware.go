package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"custody/internal/config"
	"custody/pkg/response"
)

const (
	HeaderAccountID = "X-Account-ID"
	ctxAccountID    = "account_id"
)

// LoggerMiddleware 访问日志
func LoggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path = path + "?" + query
		}

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= 500 {
			event = log.Error()
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("account_id", c.GetHeader(HeaderAccountID)).
			Msg("http")
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("panic")
				response.ServerError(c, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, "+HeaderAccountID)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdentityMiddleware 身份由网关注入 X-Account-ID，这里只做解析
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAccountID))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			response.Unauthorized(c, "缺少或非法的 "+HeaderAccountID)
			return
		}
		c.Set(ctxAccountID, id)
		c.Next()
	}
}

// AdminOnly 只允许配置中的管理员账户，需放在 IdentityMiddleware 之后
func AdminOnly(admin config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !admin.IsAdmin(accountID(c)) {
			response.Forbidden(c, "需要管理员权限")
			return
		}
		c.Next()
	}
}

func accountID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}
