package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pu-ac-cn/cas-sso/internal/model"
)

// 票据 ID 前缀
const (
	tgtPrefix = "TGT-"
	stPrefix  = "ST-"
)

// FactoryConfig 票据工厂配置
type FactoryConfig struct {
	TGTExpiry time.Duration // TGT 有效期，默认 8 小时
	STExpiry  time.Duration // ST 有效期，默认 5 分钟
	Rand      io.Reader     // 随机源，默认 crypto/rand
}

// TicketFactory 生成票据 ID 并构造票据，除随机源外无状态
type TicketFactory struct {
	tgtExpiry time.Duration
	stExpiry  time.Duration
	rand      io.Reader
}

// NewTicketFactory 创建票据工厂
func NewTicketFactory(config *FactoryConfig) *TicketFactory {
	if config == nil {
		config = &FactoryConfig{}
	}
	f := &TicketFactory{
		tgtExpiry: config.TGTExpiry,
		stExpiry:  config.STExpiry,
		rand:      config.Rand,
	}
	if f.tgtExpiry <= 0 {
		f.tgtExpiry = 8 * time.Hour // 默认 8 小时
	}
	if f.stExpiry <= 0 {
		f.stExpiry = 5 * time.Minute // 默认 5 分钟
	}
	if f.rand == nil {
		f.rand = rand.Reader
	}
	return f
}

// TGTExpiry 返回 TGT 有效期
func (f *TicketFactory) TGTExpiry() time.Duration {
	return f.tgtExpiry
}

// STExpiry 返回 ST 有效期
func (f *TicketFactory) STExpiry() time.Duration {
	return f.stExpiry
}

// NewTGT 为已认证的主体创建 TGT
func (f *TicketFactory) NewTGT(identity model.Identity, now time.Time) (*model.TGT, error) {
	a, err := f.random()
	if err != nil {
		return nil, err
	}
	b, err := f.random()
	if err != nil {
		return nil, err
	}
	return &model.TGT{
		ID:        tgtPrefix + a + "-" + b,
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(f.tgtExpiry),
	}, nil
}

// NewST 在指定 TGT 下为服务创建 ST
func (f *TicketFactory) NewST(parentTGTID, service string, now time.Time) (*model.ServiceTicket, error) {
	r, err := f.random()
	if err != nil {
		return nil, err
	}
	return &model.ServiceTicket{
		ID:          stPrefix + r,
		Service:     service,
		ParentTGTID: parentTGTID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(f.stExpiry),
	}, nil
}

// random 生成 128 位随机串（去掉连字符的 UUIDv4）
func (f *TicketFactory) random() (string, error) {
	u, err := uuid.NewRandomFromReader(f.rand)
	if err != nil {
		return "", fmt.Errorf("生成票据 ID 失败: %w", err)
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}
