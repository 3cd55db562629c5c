package model

import (
	"time"
)

// Identity 已认证的主体标识（如用户名），绑定到 TGT 后不可变
type Identity string

// String 返回标识字符串
func (i Identity) String() string {
	return string(i)
}

// TicketKind 票据类型
type TicketKind string

// 票据类型常量
const (
	KindTGT TicketKind = "TGT" // Ticket Granting Ticket
	KindST  TicketKind = "ST"  // Service Ticket
)

// Ticket 票据存储中保存的记录
type Ticket interface {
	TicketID() string
	Kind() TicketKind
	Expiry() time.Time
}

// TGT CAS Ticket Granting Ticket
type TGT struct {
	ID        string    `json:"id"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketID 实现 Ticket 接口
func (t *TGT) TicketID() string { return t.ID }

// Kind 实现 Ticket 接口
func (t *TGT) Kind() TicketKind { return KindTGT }

// Expiry 实现 Ticket 接口
func (t *TGT) Expiry() time.Time { return t.ExpiresAt }

// IsExpired 检查 TGT 在 now 时刻是否过期
func (t *TGT) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ServiceTicket CAS Service Ticket
type ServiceTicket struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	ParentTGTID string    `json:"parent_tgt_id"` // 仅用于查找和级联删除，不拥有 TGT
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

// TicketID 实现 Ticket 接口
func (st *ServiceTicket) TicketID() string { return st.ID }

// Kind 实现 Ticket 接口
func (st *ServiceTicket) Kind() TicketKind { return KindST }

// Expiry 实现 Ticket 接口
func (st *ServiceTicket) Expiry() time.Time { return st.ExpiresAt }

// IsExpired 检查 ST 在 now 时刻是否过期
func (st *ServiceTicket) IsExpired(now time.Time) bool {
	return now.After(st.ExpiresAt)
}

// TicketLogEntry ST 签发审计记录，只追加，不参与校验决策
type TicketLogEntry struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TicketID    string    `json:"ticket_id" gorm:"type:varchar(80);uniqueIndex;not null"`
	Service     string    `json:"service" gorm:"type:varchar(500);not null"`
	ParentTGTID string    `json:"parent_tgt_id" gorm:"type:varchar(80);index;not null"`
	Identity    Identity  `json:"identity" gorm:"type:varchar(100);index"`
	IssuedAt    time.Time `json:"issued_at" gorm:"not null"`
}

// TableName 表名
func (TicketLogEntry) TableName() string {
	return "ticket_log_entries"
}

// LogoutEvent 单点登出事件，TGT 撤销后通知各接入服务
type LogoutEvent struct {
	Identity Identity  `json:"identity"`
	TGTID    string    `json:"tgt_id"`
	Services []string  `json:"services,omitempty"`
	At       time.Time `json:"at"`
}
