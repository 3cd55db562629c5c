package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/cas-sso/internal/service"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"go.uber.org/zap"
)

// 上下文中保存 TGC 信息的 key
const (
	ContextTGTID    = "tgt_id"
	ContextIdentity = "identity"
)

// GrantingTicket 读取 TGC（Ticket Granting Cookie）中的 TGT ID，不校验有效性
func GrantingTicket(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			c.Set(ContextTGTID, v)
		}
		c.Next()
	}
}

// RequireGrantingTicket 要求 TGC 指向有效的 TGT
func RequireGrantingTicket(validator *service.TicketValidator, cookieName string, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		tgtID, err := c.Cookie(cookieName)
		if err != nil || tgtID == "" {
			response.Error(c, response.CodeNotLoggedIn)
			c.Abort()
			return
		}

		tgt, err := validator.ValidateGrantingTicket(c.Request.Context(), tgtID, now())
		if err != nil {
			switch {
			case errors.Is(err, service.ErrExpired):
				response.ErrorWithMsg(c, response.CodeNotLoggedIn, "登录已过期，请重新登录")
			case errors.Is(err, service.ErrUnknownTicket), errors.Is(err, service.ErrWrongTicketType):
				response.Error(c, response.CodeNotLoggedIn)
			default:
				logger.Error("校验 TGT 失败", zap.Error(err))
				response.Error(c, response.CodeServerError)
			}
			c.Abort()
			return
		}

		c.Set(ContextTGTID, tgt.ID)
		c.Set(ContextIdentity, tgt.Identity)
		c.Next()
	}
}

// GetTGTID 获取上下文中的 TGT ID
func GetTGTID(c *gin.Context) string {
	return c.GetString(ContextTGTID)
}
