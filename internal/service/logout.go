package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/metrics"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"go.uber.org/zap"
)

// LogoutListener 登出通知订阅者，例如各接入服务的本地会话
type LogoutListener interface {
	OnLogout(ctx context.Context, event *model.LogoutEvent)
}

// LogoutListenerFunc 函数形式的 LogoutListener
type LogoutListenerFunc func(ctx context.Context, event *model.LogoutEvent)

// OnLogout 实现 LogoutListener
func (f LogoutListenerFunc) OnLogout(ctx context.Context, event *model.LogoutEvent) {
	f(ctx, event)
}

// LogoutConfig 登出协调器配置
type LogoutConfig struct {
	TicketLog TicketLog // 用于在登出事件中列出接入过的服务，可为空
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// LogoutCoordinator 单点登出：撤销 TGT，级联删除 ST，并通知订阅者
type LogoutCoordinator struct {
	store     store.Store
	ticketLog TicketLog
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu        sync.RWMutex
	listeners []LogoutListener
}

// NewLogoutCoordinator 创建登出协调器
func NewLogoutCoordinator(st store.Store, config *LogoutConfig) *LogoutCoordinator {
	if config == nil {
		config = &LogoutConfig{}
	}
	c := &LogoutCoordinator{
		store:     st,
		ticketLog: config.TicketLog,
		logger:    config.Logger,
		metrics:   config.Metrics,
		now:       config.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// OnLogout 订阅登出事件
func (c *LogoutCoordinator) OnLogout(l LogoutListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Logout 撤销 TGT 及其下所有 ST（包括未使用的），然后依次通知订阅者。
// TGT 不存在时什么也不做
func (c *LogoutCoordinator) Logout(ctx context.Context, tgtID string) error {
	if tgtID == "" {
		return nil
	}
	t, err := c.store.Get(ctx, tgtID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("读取 TGT 失败: %w", err)
	}
	tgt, ok := t.(*model.TGT)
	if !ok {
		return nil
	}

	n, err := revoke(ctx, c.store, tgt.ID)
	if err != nil {
		return err
	}
	c.metrics.Logout(n)

	event := &model.LogoutEvent{
		Identity: tgt.Identity,
		TGTID:    tgt.ID,
		Services: c.services(ctx, tgt.ID),
		At:       c.now(),
	}
	c.logger.Info("单点登出",
		zap.String("identity", tgt.Identity.String()),
		zap.Int("revoked_tickets", n),
	)

	c.mu.RLock()
	listeners := append([]LogoutListener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.OnLogout(ctx, event)
	}
	return nil
}

// services 从审计日志中整理该 TGT 接入过的服务，保持首次出现的顺序
func (c *LogoutCoordinator) services(ctx context.Context, tgtID string) []string {
	if c.ticketLog == nil {
		return nil
	}
	entries, err := c.ticketLog.ListByTGT(ctx, tgtID)
	if err != nil {
		c.logger.Warn("读取审计日志失败", zap.String("tgt", tgtID), zap.Error(err))
		return nil
	}
	seen := make(map[string]struct{}, len(entries))
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.Service]; ok {
			continue
		}
		seen[e.Service] = struct{}{}
		out = append(out, e.Service)
	}
	return out
}
