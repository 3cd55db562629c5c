// Package handler HTTP 处理器
package handler

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/pu-ac-cn/cas-sso/internal/middleware"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/service"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"go.uber.org/zap"
)

// genericLoginError 凭据错误时的统一提示，不区分用户名和密码
const genericLoginError = "用户名或密码错误"

// CASConfig CAS 处理器配置
type CASConfig struct {
	CookieName   string        // TGC 名称，默认 CASTGC
	CookiePath   string        // 默认 /cas
	CookieSecure bool
	TGTExpiry    time.Duration // TGC 有效期与 TGT 一致
	Hint         string        // 登录页提示
	Logger       *zap.Logger
	Now          func() time.Time
}

// CASHandler CAS 协议处理器
type CASHandler struct {
	authority *service.SessionAuthority
	validator *service.TicketValidator
	logout    *service.LogoutCoordinator
	ticketLog service.TicketLog
	registry  service.ServiceRegistry
	templates *template.Template
	config    CASConfig
}

// NewCASHandler 创建 CAS 处理器
func NewCASHandler(
	authority *service.SessionAuthority,
	validator *service.TicketValidator,
	logout *service.LogoutCoordinator,
	ticketLog service.TicketLog,
	registry service.ServiceRegistry,
	templates *template.Template,
	config *CASConfig,
) *CASHandler {
	h := &CASHandler{
		authority: authority,
		validator: validator,
		logout:    logout,
		ticketLog: ticketLog,
		registry:  registry,
		templates: templates,
	}
	if config != nil {
		h.config = *config
	}
	if h.config.CookieName == "" {
		h.config.CookieName = "CASTGC"
	}
	if h.config.CookiePath == "" {
		h.config.CookiePath = "/cas"
	}
	if h.config.TGTExpiry <= 0 {
		h.config.TGTExpiry = 8 * time.Hour
	}
	if h.config.Logger == nil {
		h.config.Logger = zap.NewNop()
	}
	if h.config.Now == nil {
		h.config.Now = time.Now
	}
	if h.registry == nil {
		h.registry = service.NewStaticServiceRegistry(nil)
	}
	return h
}

// SetupRoutes 注册 /cas 路由
func (h *CASHandler) SetupRoutes(router gin.IRouter) {
	cas := router.Group("/cas")
	{
		login := cas.Group("/login", middleware.RequireRegisteredService(h.registry))
		login.GET("", h.LoginPage)
		login.POST("", h.Login)

		cas.GET("/validate", h.Validate)
		cas.GET("/serviceValidate", h.ServiceValidate)
		cas.GET("/logout", h.Logout)
		cas.POST("/logout", h.Logout)

		tickets := cas.Group("/tickets", middleware.RequireGrantingTicket(h.validator, h.config.CookieName, h.config.Now))
		tickets.GET("", h.SessionTickets)
		tickets.GET("/recent", h.RecentTickets)
	}
}

// loginView 登录页模板数据
type loginView struct {
	Service  string
	Username string
	Error    string
	Hint     string
}

// LoginPage 接入服务的登录入口
// GET /cas/login?service=
func (h *CASHandler) LoginPage(c *gin.Context) {
	svc := c.Query("service")
	if svc == "" {
		response.ErrorWithMsg(c, response.CodeMissingParam, "缺少 service 参数")
		return
	}

	tgtID, _ := c.Cookie(h.config.CookieName)
	outcome, err := h.authority.InitiateLogin(c.Request.Context(), tgtID, svc)
	if err != nil {
		h.config.Logger.Error("处理登录请求失败", zap.String("service", svc), zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}

	if outcome.Redirect != nil {
		c.Redirect(http.StatusFound, outcome.Redirect.URL())
		return
	}
	h.renderLogin(c, http.StatusOK, &loginView{Service: svc})
}

// Login 提交凭据
// POST /cas/login
func (h *CASHandler) Login(c *gin.Context) {
	req := &service.LoginRequest{
		Username: c.PostForm("username"),
		Password: c.PostForm("password"),
		Service:  c.PostForm("service"),
	}
	if req.Service == "" {
		response.ErrorWithMsg(c, response.CodeMissingParam, "缺少 service 参数")
		return
	}
	req.PriorTGTID, _ = c.Cookie(h.config.CookieName)

	redirect, err := h.authority.CompleteLogin(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.renderLogin(c, http.StatusUnauthorized, &loginView{
				Service:  req.Service,
				Username: req.Username,
				Error:    genericLoginError,
			})
			return
		}
		h.config.Logger.Error("登录失败", zap.String("service", req.Service), zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}

	h.setGrantingCookie(c, redirect.TGTID, int(h.config.TGTExpiry.Seconds()))
	c.Redirect(http.StatusFound, redirect.URL())
}

// Validate CAS 1.0 票据校验，纯文本响应
// GET /cas/validate?ticket=&service=
func (h *CASHandler) Validate(c *gin.Context) {
	ticket, svc := c.Query("ticket"), c.Query("service")
	if ticket == "" || svc == "" {
		c.String(http.StatusOK, "no\n\n")
		return
	}

	identity, err := h.validator.Validate(c.Request.Context(), ticket, svc, h.config.Now())
	if err != nil {
		h.logValidateFailure(svc, err)
		c.String(http.StatusOK, "no\n\n")
		return
	}
	c.String(http.StatusOK, "yes\n%s\n", identity)
}

// ServiceValidate 票据校验，JSON 响应
// GET /cas/serviceValidate?ticket=&service=
func (h *CASHandler) ServiceValidate(c *gin.Context) {
	ticket, svc := c.Query("ticket"), c.Query("service")
	if ticket == "" || svc == "" {
		response.ErrorWithMsg(c, response.CodeMissingParam, "ticket 和 service 参数不能为空")
		return
	}

	identity, err := h.validator.Validate(c.Request.Context(), ticket, svc, h.config.Now())
	if err != nil {
		h.logValidateFailure(svc, err)
		response.Error(c, ticketErrorCode(err))
		return
	}
	response.Success(c, gin.H{
		"user":    identity,
		"service": svc,
	})
}

// Logout 单点登出
// GET|POST /cas/logout[?service=]
func (h *CASHandler) Logout(c *gin.Context) {
	if tgtID, err := c.Cookie(h.config.CookieName); err == nil && tgtID != "" {
		if err := h.logout.Logout(c.Request.Context(), tgtID); err != nil {
			h.config.Logger.Error("单点登出失败", zap.Error(err))
			response.Error(c, response.CodeServerError)
			return
		}
	}
	h.setGrantingCookie(c, "", -1)

	svc := c.Query("service")
	if svc != "" {
		// 只跳转到显式注册的服务
		if ok, err := h.registry.IsRegistered(c.Request.Context(), svc); err == nil && ok {
			c.Redirect(http.StatusFound, svc)
			return
		}
	}
	c.Render(http.StatusOK, render.HTML{Template: h.templates, Name: "logout.html"})
}

// SessionTickets 当前会话签发过的 ST
// GET /cas/tickets
func (h *CASHandler) SessionTickets(c *gin.Context) {
	if h.ticketLog == nil {
		response.Success(c, []*model.TicketLogEntry{})
		return
	}
	entries, err := h.ticketLog.ListByTGT(c.Request.Context(), middleware.GetTGTID(c))
	if err != nil {
		h.config.Logger.Error("读取审计日志失败", zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, gin.H{
		"identity": c.MustGet(middleware.ContextIdentity),
		"tickets":  entries,
	})
}

// RecentTickets 最近签发的 ST，诊断用
// GET /cas/tickets/recent?limit=
func (h *CASHandler) RecentTickets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		response.ErrorWithMsg(c, response.CodeInvalidFormat, "limit 必须为正整数")
		return
	}
	if limit > 100 {
		limit = 100
	}
	if h.ticketLog == nil {
		response.Success(c, []*model.TicketLogEntry{})
		return
	}
	entries, err := h.ticketLog.Recent(c.Request.Context(), limit)
	if err != nil {
		h.config.Logger.Error("读取审计日志失败", zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, entries)
}

func (h *CASHandler) renderLogin(c *gin.Context, status int, view *loginView) {
	view.Hint = h.config.Hint
	c.Render(status, render.HTML{Template: h.templates, Name: "login.html", Data: view})
}

func (h *CASHandler) setGrantingCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.config.CookieName, value, maxAge, h.config.CookiePath, "", h.config.CookieSecure, true)
}

func (h *CASHandler) logValidateFailure(svc string, err error) {
	if ticketErrorCode(err) == response.CodeServerError {
		h.config.Logger.Error("票据校验异常", zap.String("service", svc), zap.Error(err))
		return
	}
	h.config.Logger.Info("票据校验未通过", zap.String("service", svc), zap.String("result", service.ResultLabel(err)))
}

// ticketErrorCode 校验错误转业务错误码
func ticketErrorCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownTicket):
		return response.CodeUnknownTicket
	case errors.Is(err, service.ErrWrongTicketType):
		return response.CodeWrongTicketType
	case errors.Is(err, service.ErrExpired):
		return response.CodeTicketExpired
	case errors.Is(err, service.ErrAlreadyConsumed):
		return response.CodeTicketConsumed
	case errors.Is(err, service.ErrServiceMismatch):
		return response.CodeServiceMismatch
	case errors.Is(err, service.ErrParentRevoked):
		return response.CodeParentRevoked
	default:
		return response.CodeServerError
	}
}
