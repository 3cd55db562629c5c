// Package casclient 接入服务侧的 CAS 客户端：跳转登录、兑换 ST、维护本地会话
package casclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"go.uber.org/zap"
)

// ContextIdentity 上下文中保存已登录主体的 key
const ContextIdentity = "cas_identity"

var (
	ErrNoSession      = errors.New("本地会话不存在")
	ErrSessionRevoked = errors.New("本地会话已注销")
)

// Options 客户端配置
type Options struct {
	Name       string        // 站点名称，用于 cookie 名和 JWT audience
	ServiceURL string        // 本服务在认证中心注册的地址
	CASURL     string        // 认证中心地址，例如 http://localhost:8080
	Validator  TicketValidator
	Secret     []byte        // 本地会话签名密钥
	CookiePath string        // 默认 /
	SessionTTL time.Duration // 本地会话有效期，默认 1 小时
	Logger     *zap.Logger
	Now        func() time.Time
}

// sessionClaims 本地会话 JWT
type sessionClaims struct {
	jwt.RegisteredClaims
}

// Client 接入服务客户端。
// 本地会话以 HS256 JWT 写入 cookie，同时在内存中登记，收到单点登出通知后按主体清除
type Client struct {
	opts   Options
	cookie string

	mu       sync.RWMutex
	sessions map[string]map[string]struct{} // identity -> 会话 ID 集合
}

// New 创建客户端
func New(opts Options) (*Client, error) {
	if opts.Name == "" || opts.ServiceURL == "" || opts.CASURL == "" {
		return nil, errors.New("Name、ServiceURL、CASURL 不能为空")
	}
	if opts.Validator == nil {
		opts.Validator = NewHTTPValidator(opts.CASURL, nil)
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("会话密钥不能为空")
	}
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		opts:     opts,
		cookie:   opts.Name + "_session",
		sessions: make(map[string]map[string]struct{}),
	}, nil
}

// LoginURL 跳转到认证中心登录的地址
func (cl *Client) LoginURL() string {
	return cl.opts.CASURL + "/cas/login?" + url.Values{"service": {cl.opts.ServiceURL}}.Encode()
}

// LogoutURL 认证中心单点登出地址，登出后跳回本服务
func (cl *Client) LogoutURL() string {
	return cl.opts.CASURL + "/cas/logout?" + url.Values{"service": {cl.opts.ServiceURL}}.Encode()
}

// Middleware 要求本地会话；没有会话时用 URL 中的 ticket 兑换，仍没有则跳转登录
func (cl *Client) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity, err := cl.sessionFromRequest(c.Request); err == nil {
			c.Set(ContextIdentity, identity)
			c.Next()
			return
		}

		ticket := c.Query("ticket")
		if ticket == "" {
			c.Redirect(http.StatusFound, cl.LoginURL())
			c.Abort()
			return
		}

		identity, err := cl.opts.Validator.Validate(c.Request.Context(), ticket, cl.opts.ServiceURL)
		if err != nil {
			cl.opts.Logger.Warn("兑换 Service Ticket 失败",
				zap.String("site", cl.opts.Name),
				zap.Error(err),
			)
			// 不自动重新跳转，避免票据持续无效时循环重定向
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Code: response.CodeNotLoggedIn,
				Msg:  "票据校验失败，请重新登录",
				Data: gin.H{"login_url": cl.LoginURL()},
			})
			return
		}

		token, err := cl.issue(identity)
		if err != nil {
			cl.opts.Logger.Error("签发本地会话失败", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Code: response.CodeServerError,
				Msg:  response.Message(response.CodeServerError),
			})
			return
		}
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     cl.cookie,
			Value:    token,
			Path:     cl.opts.CookiePath,
			MaxAge:   int(cl.opts.SessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		// 去掉 URL 中的 ticket，避免被重复提交或记录
		u := *c.Request.URL
		q := u.Query()
		q.Del("ticket")
		u.RawQuery = q.Encode()
		c.Redirect(http.StatusFound, u.RequestURI())
		c.Abort()
	}
}

// ClearSession 清除当前请求的本地会话 cookie
func (cl *Client) ClearSession(c *gin.Context) {
	if identity, err := cl.sessionFromRequest(c.Request); err == nil {
		cl.revoke(identity)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cl.cookie,
		Value:    "",
		Path:     cl.opts.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// LogoutEvent 认证中心的单点登出通知，JSON 格式与 RabbitMQ 广播的消息体一致
type LogoutEvent struct {
	Identity string    `json:"identity"`
	TGTID    string    `json:"tgt_id"`
	Services []string  `json:"services,omitempty"`
	At       time.Time `json:"at"`
}

// OnLogout 注销该主体在本站的全部本地会话，返回清除的会话数
func (cl *Client) OnLogout(_ context.Context, event *LogoutEvent) int {
	n := cl.revoke(event.Identity)
	cl.opts.Logger.Info("单点登出清除本地会话",
		zap.String("site", cl.opts.Name),
		zap.String("identity", event.Identity),
		zap.Int("sessions", n),
	)
	return n
}

// HasSession 判断主体在本站是否有活跃的本地会话
func (cl *Client) HasSession(identity string) bool {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.sessions[identity]) > 0
}

// Identity 获取中间件写入的主体
func Identity(c *gin.Context) string {
	return c.GetString(ContextIdentity)
}

func (cl *Client) issue(identity string) (string, error) {
	now := cl.opts.Now()
	id := uuid.NewString()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   identity,
			Audience:  jwt.ClaimStrings{cl.opts.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cl.opts.SessionTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cl.opts.Secret)
	if err != nil {
		return "", err
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.sessions[identity] == nil {
		cl.sessions[identity] = make(map[string]struct{})
	}
	cl.sessions[identity][id] = struct{}{}
	return token, nil
}

func (cl *Client) sessionFromRequest(req *http.Request) (string, error) {
	cookie, err := req.Cookie(cl.cookie)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (interface{}, error) {
		return cl.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(cl.opts.Name),
		jwt.WithTimeFunc(cl.opts.Now),
	)
	if err != nil {
		return "", err
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if _, ok := cl.sessions[claims.Subject][claims.ID]; !ok {
		return "", ErrSessionRevoked
	}
	return claims.Subject, nil
}

func (cl *Client) revoke(identity string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	n := len(cl.sessions[identity])
	delete(cl.sessions, identity)
	return n
}
