package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/metrics"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"go.uber.org/zap"
)

// ValidatorConfig 校验器配置
type ValidatorConfig struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// TicketValidator 校验票据并兑换 ST
type TicketValidator struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewTicketValidator 创建票据校验器
func NewTicketValidator(st store.Store, config *ValidatorConfig) *TicketValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketValidator{
		store:   st,
		logger:  logger,
		metrics: config.Metrics,
	}
}

// Validate 校验 ST 并兑换，成功时返回 TGT 绑定的主体。
// 按顺序检查：存在、类型、过期、已使用、服务匹配，最后原子兑换并解析父 TGT
func (v *TicketValidator) Validate(ctx context.Context, ticketID, expectedService string, now time.Time) (model.Identity, error) {
	identity, err := v.validate(ctx, ticketID, expectedService, now)
	v.metrics.Validation(ResultLabel(err))
	if err != nil {
		v.logger.Debug("Service Ticket 校验失败",
			zap.String("ticket", ticketID),
			zap.String("service", expectedService),
			zap.Error(err),
		)
	}
	return identity, err
}

func (v *TicketValidator) validate(ctx context.Context, ticketID, expectedService string, now time.Time) (model.Identity, error) {
	t, err := v.lookup(ctx, ticketID)
	if err != nil {
		return "", err
	}
	st, ok := t.(*model.ServiceTicket)
	if !ok {
		return "", ErrWrongTicketType
	}
	if st.IsExpired(now) {
		if err := v.store.Delete(ctx, st.ID); err != nil {
			v.logger.Warn("删除过期 Service Ticket 失败", zap.String("ticket", st.ID), zap.Error(err))
		}
		return "", ErrExpired
	}
	if st.Consumed {
		return "", ErrAlreadyConsumed
	}
	if st.Service != expectedService {
		return "", ErrServiceMismatch
	}

	won, err := v.store.Consume(ctx, st.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 查询后被并发删除（登出级联）
			return "", ErrUnknownTicket
		}
		return "", fmt.Errorf("兑换 Service Ticket 失败: %w", err)
	}
	if !won {
		return "", ErrAlreadyConsumed
	}

	parent, err := v.store.Get(ctx, st.ParentTGTID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrParentRevoked
		}
		return "", fmt.Errorf("读取 TGT 失败: %w", err)
	}
	tgt, ok := parent.(*model.TGT)
	if !ok || tgt.IsExpired(now) {
		return "", ErrParentRevoked
	}
	return tgt.Identity, nil
}

// ValidateGrantingTicket 校验 TGT，过期的 TGT 连同其下的 ST 一并删除
func (v *TicketValidator) ValidateGrantingTicket(ctx context.Context, tgtID string, now time.Time) (*model.TGT, error) {
	t, err := v.lookup(ctx, tgtID)
	if err != nil {
		return nil, err
	}
	tgt, ok := t.(*model.TGT)
	if !ok {
		return nil, ErrWrongTicketType
	}
	if tgt.IsExpired(now) {
		n, err := revoke(ctx, v.store, tgt.ID)
		if err != nil {
			v.logger.Warn("删除过期 TGT 失败", zap.String("tgt", tgt.ID), zap.Error(err))
		}
		v.metrics.Cascaded(n)
		return nil, ErrExpired
	}
	return tgt, nil
}

func (v *TicketValidator) lookup(ctx context.Context, id string) (model.Ticket, error) {
	if id == "" {
		return nil, ErrUnknownTicket
	}
	t, err := v.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTicket
		}
		return nil, fmt.Errorf("读取票据失败: %w", err)
	}
	return t, nil
}

// revoke 删除 TGT 及其下签发的所有 ST，返回级联删除的 ST 数量
func revoke(ctx context.Context, st store.Store, tgtID string) (int, error) {
	if err := st.Delete(ctx, tgtID); err != nil {
		return 0, fmt.Errorf("删除 TGT 失败: %w", err)
	}
	n, err := st.DeleteByParent(ctx, tgtID)
	if err != nil {
		return 0, fmt.Errorf("级联删除 Service Ticket 失败: %w", err)
	}
	return n, nil
}
