package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-account-service/internal/platform/logging"
)

// RequestObserver は HTTP リクエストの計測値を受け取ります。
type RequestObserver interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// Observe はリクエストごとの計測とアクセスログを記録するミドルウェアです。
// ルートはパスパラメータを含まないテンプレートで記録します。
func Observe(observer RequestObserver, logger logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Nop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()

		if observer != nil {
			observer.ObserveRequest(c.Request.Method, route, code, elapsed)
		}

		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", code,
			"elapsed", elapsed,
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Error())
		}

		switch {
		case code >= 500:
			logger.Error(c.Request.Context(), "http request", args...)
		case code >= 400:
			logger.Warn(c.Request.Context(), "http request", args...)
		default:
			logger.Debug(c.Request.Context(), "http request", args...)
		}
	}
}
