// Package store 票据存储，所有票据生命周期判断的唯一数据来源
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/model"
)

var (
	ErrNotFound       = errors.New("票据不存在")
	ErrParentNotFound = errors.New("父 TGT 不存在")
	ErrWrongKind      = errors.New("票据类型不符")
	ErrInvalidTicket  = errors.New("无效的票据记录")
)

// Store 票据存储接口
// 同一个 key 上的读写是线性一致的；Consume 是唯一需要比较并交换语义的操作
type Store interface {
	// Get 获取票据，不存在时返回 ErrNotFound
	Get(ctx context.Context, id string) (model.Ticket, error)
	// Put 保存票据。保存 ST 时会原子地检查父 TGT 是否存在，不存在返回 ErrParentNotFound
	Put(ctx context.Context, ticket model.Ticket) error
	// Delete 删除票据，不存在时不报错
	Delete(ctx context.Context, id string) error
	// DeleteByParent 级联删除某个 TGT 下签发的所有 ST，返回删除数量
	DeleteByParent(ctx context.Context, tgtID string) (int, error)
	// Consume 原子地检查 ST 未使用并标记为已使用，仅翻转成功的调用返回 true
	Consume(ctx context.Context, stID string) (bool, error)
}

// Sweeper 支持主动清理过期票据的存储
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// validate 检查待保存的票据记录
func validate(ticket model.Ticket) error {
	switch t := ticket.(type) {
	case *model.TGT:
		if t == nil || t.ID == "" {
			return ErrInvalidTicket
		}
	case *model.ServiceTicket:
		if t == nil || t.ID == "" || t.ParentTGTID == "" {
			return ErrInvalidTicket
		}
	default:
		return ErrInvalidTicket
	}
	return nil
}

// clone 复制票据，存储内部状态不与调用方共享
func clone(ticket model.Ticket) model.Ticket {
	switch t := ticket.(type) {
	case *model.TGT:
		c := *t
		return &c
	case *model.ServiceTicket:
		c := *t
		return &c
	}
	return ticket
}
