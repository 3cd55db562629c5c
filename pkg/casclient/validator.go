package casclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pu-ac-cn/cas-sso/pkg/response"
)

// TicketValidator 向认证中心兑换 ST
type TicketValidator interface {
	Validate(ctx context.Context, ticket, service string) (string, error)
}

// ValidatorFunc 函数形式的 TicketValidator，用于与认证中心同进程部署
type ValidatorFunc func(ctx context.Context, ticket, service string) (string, error)

// Validate 实现 TicketValidator
func (f ValidatorFunc) Validate(ctx context.Context, ticket, service string) (string, error) {
	return f(ctx, ticket, service)
}

// Error 认证中心返回的校验错误
type Error struct {
	Code    int
	Message string
}

func (err *Error) Error() string {
	return fmt.Sprintf("票据校验失败(%d): %s", err.Code, err.Message)
}

// HTTPValidator 通过 /cas/serviceValidate 兑换 ST
type HTTPValidator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPValidator 创建 HTTP 校验器，baseURL 为认证中心地址
func NewHTTPValidator(baseURL string, client *http.Client) *HTTPValidator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPValidator{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type validateData struct {
	User string `json:"user"`
}

// Validate 实现 TicketValidator
func (v *HTTPValidator) Validate(ctx context.Context, ticket, service string) (string, error) {
	q := url.Values{"ticket": {ticket}, "service": {service}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/cas/serviceValidate?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求认证中心失败: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		response.Response
		Data *validateData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("解析认证中心响应失败: %w", err)
	}
	if body.Code != response.CodeSuccess {
		return "", &Error{Code: body.Code, Message: body.Msg}
	}
	if body.Data == nil || body.Data.User == "" {
		return "", &Error{Code: response.CodeServerError, Message: "认证中心未返回用户"}
	}
	return body.Data.User, nil
}
