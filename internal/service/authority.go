package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/metrics"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"go.uber.org/zap"
)

// Redirect 携带 ST 跳回接入服务
type Redirect struct {
	Service string // 接入服务地址
	Ticket  string // 新签发的 ST
	TGTID   string // 当前会话的 TGT，用于写入 TGC
}

// URL 返回带 ticket 参数的服务地址
func (r *Redirect) URL() string {
	u, err := url.Parse(r.Service)
	if err != nil {
		sep := "?"
		if strings.Contains(r.Service, "?") {
			sep = "&"
		}
		return r.Service + sep + "ticket=" + url.QueryEscape(r.Ticket)
	}
	q := u.Query()
	q.Set("ticket", r.Ticket)
	u.RawQuery = q.Encode()
	return u.String()
}

// LoginChallenge 需要用户输入凭据
type LoginChallenge struct {
	Service string
}

// Outcome InitiateLogin 的结果，Redirect 与 Challenge 有且仅有一个非空
type Outcome struct {
	Redirect  *Redirect
	Challenge *LoginChallenge
}

// LoginRequest 提交凭据的登录请求
type LoginRequest struct {
	PriorTGTID string // 当前 TGC 中的 TGT，登录成功后被替换
	Username   string
	Password   string
	Service    string
}

// AuthorityConfig 会话授权配置
type AuthorityConfig struct {
	TicketLog TicketLog
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time // 时钟，默认 time.Now
}

// SessionAuthority 编排登录流程：校验凭据、签发 TGT，以及基于有效 TGT 签发 ST
type SessionAuthority struct {
	store       store.Store
	factory     *TicketFactory
	validator   *TicketValidator
	credentials CredentialVerifier
	ticketLog   TicketLog
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewSessionAuthority 创建会话授权服务
func NewSessionAuthority(st store.Store, factory *TicketFactory, validator *TicketValidator, credentials CredentialVerifier, config *AuthorityConfig) *SessionAuthority {
	if config == nil {
		config = &AuthorityConfig{}
	}
	a := &SessionAuthority{
		store:       st,
		factory:     factory,
		validator:   validator,
		credentials: credentials,
		ticketLog:   config.TicketLog,
		logger:      config.Logger,
		metrics:     config.Metrics,
		now:         config.Now,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// InitiateLogin 处理接入服务的登录请求。
// 存在有效 TGT 时直接签发 ST（单点登录），否则返回 LoginChallenge
func (a *SessionAuthority) InitiateLogin(ctx context.Context, tgtID, service string) (*Outcome, error) {
	if service == "" {
		return nil, ErrMissingService
	}
	challenge := &Outcome{Challenge: &LoginChallenge{Service: service}}
	if tgtID == "" {
		return challenge, nil
	}

	now := a.now()
	tgt, err := a.validator.ValidateGrantingTicket(ctx, tgtID, now)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownTicket), errors.Is(err, ErrWrongTicketType), errors.Is(err, ErrExpired):
		return challenge, nil
	default:
		return nil, err
	}

	st, err := a.issueST(ctx, tgt, service, now)
	if err != nil {
		if errors.Is(err, store.ErrParentNotFound) {
			// TGT 在签发过程中被并发撤销
			return challenge, nil
		}
		return nil, err
	}

	a.metrics.Login("sso")
	a.logger.Info("单点登录签发 Service Ticket",
		zap.String("identity", tgt.Identity.String()),
		zap.String("service", service),
	)
	return &Outcome{Redirect: &Redirect{Service: service, Ticket: st.ID, TGTID: tgt.ID}}, nil
}

// CompleteLogin 校验凭据，签发新的 TGT 和 ST。
// 凭据错误时不修改任何状态；成功时撤销请求中携带的旧 TGT
func (a *SessionAuthority) CompleteLogin(ctx context.Context, req *LoginRequest) (*Redirect, error) {
	if req.Service == "" {
		return nil, ErrMissingService
	}

	identity, err := a.credentials.Verify(ctx, req.Username, req.Password)
	if err != nil {
		a.metrics.Login("invalid_credentials")
		a.logger.Warn("登录失败", zap.String("service", req.Service), zap.Error(err))
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("校验凭据失败: %w", err)
	}

	if err := a.revokePrior(ctx, req.PriorTGTID); err != nil {
		return nil, err
	}

	now := a.now()
	tgt, err := a.factory.NewTGT(identity, now)
	if err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, tgt); err != nil {
		return nil, fmt.Errorf("保存 TGT 失败: %w", err)
	}
	a.metrics.TicketIssued(string(model.KindTGT))

	st, err := a.issueST(ctx, tgt, req.Service, now)
	if err != nil {
		// 没有 TGC 会指向这个 TGT，立即撤销
		if _, rerr := revoke(ctx, a.store, tgt.ID); rerr != nil {
			a.logger.Error("撤销未完成登录的 TGT 失败", zap.String("tgt", tgt.ID), zap.Error(rerr))
		}
		return nil, err
	}

	a.metrics.Login("password")
	a.logger.Info("登录成功",
		zap.String("identity", identity.String()),
		zap.String("service", req.Service),
		zap.Time("tgt_expires_at", tgt.ExpiresAt),
	)
	return &Redirect{Service: req.Service, Ticket: st.ID, TGTID: tgt.ID}, nil
}

// revokePrior 撤销旧 TGT 及其下的 ST，不触发登出通知。
// 只处理 TGT 类型的记录，伪造的 TGC 不能删除其它票据。
// 与签发新 TGT 不是一个原子操作：同一 TGC 的并发登录各自得到新 TGT，浏览器最终只保留最后写入的 TGC
func (a *SessionAuthority) revokePrior(ctx context.Context, tgtID string) error {
	if tgtID == "" {
		return nil
	}
	t, err := a.store.Get(ctx, tgtID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("读取旧 TGT 失败: %w", err)
	}
	if t.Kind() != model.KindTGT {
		return nil
	}
	n, err := revoke(ctx, a.store, tgtID)
	if err != nil {
		return err
	}
	a.metrics.Cascaded(n)
	return nil
}

// issueST 签发 ST 并写入审计日志，审计失败不影响登录
func (a *SessionAuthority) issueST(ctx context.Context, tgt *model.TGT, service string, now time.Time) (*model.ServiceTicket, error) {
	st, err := a.factory.NewST(tgt.ID, service, now)
	if err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, st); err != nil {
		if errors.Is(err, store.ErrParentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("保存 Service Ticket 失败: %w", err)
	}
	a.metrics.TicketIssued(string(model.KindST))

	if a.ticketLog != nil {
		entry := &model.TicketLogEntry{
			TicketID:    st.ID,
			Service:     service,
			ParentTGTID: tgt.ID,
			Identity:    tgt.Identity,
			IssuedAt:    now,
		}
		if err := a.ticketLog.Append(ctx, entry); err != nil {
			a.logger.Error("写入 Service Ticket 审计日志失败", zap.String("ticket", st.ID), zap.Error(err))
		}
	}
	return st, nil
}
