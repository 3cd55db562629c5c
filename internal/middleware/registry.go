package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/cas-sso/internal/service"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"go.uber.org/zap"
)

// RequireRegisteredService 服务白名单中间件
// 请求中携带的 service 参数必须匹配已注册的接入服务；未携带时交给后续处理
func RequireRegisteredService(registry service.ServiceRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := c.Query("service")
		if svc == "" {
			svc = c.PostForm("service")
		}
		if svc == "" {
			c.Next()
			return
		}

		allowed, err := registry.IsAllowed(c.Request.Context(), svc)
		if err != nil {
			logger.Error("查询接入服务失败", zap.String("service", svc), zap.Error(err))
			response.Error(c, response.CodeServerError)
			c.Abort()
			return
		}
		if !allowed {
			logger.Warn("拒绝未注册的服务", zap.String("service", svc))
			response.Error(c, response.CodeUnauthorizedService)
			c.Abort()
			return
		}

		c.Next()
	}
}
