package service

import (
	"context"
	"sync"

	"github.com/pu-ac-cn/cas-sso/internal/model"
)

// TicketLog ST 签发审计日志，只追加，不参与校验决策
type TicketLog interface {
	Append(ctx context.Context, entry *model.TicketLogEntry) error
	// Recent 按签发时间倒序返回最近 limit 条
	Recent(ctx context.Context, limit int) ([]*model.TicketLogEntry, error)
	// ListByTGT 按签发顺序返回某个 TGT 下的记录
	ListByTGT(ctx context.Context, tgtID string) ([]*model.TicketLogEntry, error)
}

const defaultTicketLogSize = 1000

// MemoryTicketLog 固定容量的环形审计日志，写满后覆盖最旧的记录
type MemoryTicketLog struct {
	mu      sync.RWMutex
	entries []model.TicketLogEntry
	next    int
	full    bool
	seq     uint
}

// NewMemoryTicketLog 创建内存审计日志，size <= 0 时使用默认容量 1000
func NewMemoryTicketLog(size int) *MemoryTicketLog {
	if size <= 0 {
		size = defaultTicketLogSize
	}
	return &MemoryTicketLog{entries: make([]model.TicketLogEntry, size)}
}

// Append 追加一条记录
func (l *MemoryTicketLog) Append(_ context.Context, entry *model.TicketLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e := *entry
	e.ID = l.seq
	entry.ID = l.seq

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Recent 返回最近 limit 条记录，limit <= 0 返回全部
func (l *MemoryTicketLog) Recent(_ context.Context, limit int) ([]*model.TicketLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.ordered()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*model.TicketLogEntry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ListByTGT 返回某个 TGT 下的记录
func (l *MemoryTicketLog) ListByTGT(_ context.Context, tgtID string) ([]*model.TicketLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.TicketLogEntry
	for _, e := range l.ordered() {
		if e.ParentTGTID == tgtID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len 当前保存的记录数
func (l *MemoryTicketLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}

// ordered 按追加顺序复制记录，调用方需持有读锁
func (l *MemoryTicketLog) ordered() []*model.TicketLogEntry {
	var out []*model.TicketLogEntry
	if l.full {
		for i := l.next; i < len(l.entries); i++ {
			e := l.entries[i]
			out = append(out, &e)
		}
	}
	for i := 0; i < l.next; i++ {
		e := l.entries[i]
		out = append(out, &e)
	}
	return out
}
