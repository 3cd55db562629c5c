package repository

import (
	"context"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"gorm.io/gorm"
)

// TicketLogRepository ST 签发审计记录的持久化实现
type TicketLogRepository struct {
	db *gorm.DB
}

// NewTicketLogRepository 创建审计记录数据访问实例
func NewTicketLogRepository(db *gorm.DB) *TicketLogRepository {
	return &TicketLogRepository{db: db}
}

// Append 追加一条记录
func (r *TicketLogRepository) Append(ctx context.Context, entry *model.TicketLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent 按签发时间倒序返回最近的记录
func (r *TicketLogRepository) Recent(ctx context.Context, limit int) ([]*model.TicketLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []*model.TicketLogEntry
	err := r.db.WithContext(ctx).Order("issued_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// ListByTGT 返回某个 TGT 下签发过的全部记录，按签发时间正序
func (r *TicketLogRepository) ListByTGT(ctx context.Context, tgtID string) ([]*model.TicketLogEntry, error) {
	var entries []*model.TicketLogEntry
	err := r.db.WithContext(ctx).Where("parent_tgt_id = ?", tgtID).Order("issued_at ASC").Find(&entries).Error
	return entries, err
}
