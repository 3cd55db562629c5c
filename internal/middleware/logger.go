package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func init() {
	var err error
	logger, err = buildLogger("info", "json")
	if err != nil {
		panic(err)
	}
}

// buildLogger 构造 zap 日志实例
func buildLogger(level, format string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "msg"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	if format == "console" {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build()
}

// InitLogger 按配置重建日志实例
func InitLogger(level, format string) error {
	l, err := buildLogger(level, format)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// GetLogger 获取日志实例
func GetLogger() *zap.Logger {
	return logger
}

// 日志中需要脱敏的查询参数，票据在有效期内等同于凭据
var sensitiveParams = []string{"ticket", "password"}

// redactQuery 隐藏查询参数中的票据
func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	changed := false
	for _, p := range sensitiveParams {
		if v := values.Get(p); v != "" {
			values.Set(p, mask(p, v))
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

// mask 票据只保留类型前缀，其它参数整体隐藏
func mask(param, v string) string {
	if i := strings.Index(v, "-"); param == "ticket" && i > 0 && i < 4 {
		return v[:i+1] + "***"
	}
	return "***"
}

// Logger 日志中间件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 生成请求 ID
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		c.Next()

		logger.Info("HTTP 请求",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		)
	}
}
