package model

import (
	"net/url"
	"path"
	"strings"
)

// RegisteredService 已注册的接入服务（CAS 客户端）
// 只有匹配到启用状态的注册项，服务才能向认证中心申请 Service Ticket
type RegisteredService struct {
	BaseModel
	Name        string `gorm:"type:varchar(255);not null" json:"name"`          // 服务名称
	Pattern     string `gorm:"type:varchar(500);uniqueIndex" json:"pattern"`    // 服务地址或地址前缀
	Status      string `gorm:"type:varchar(20);default:active" json:"status"`   // 状态
	Description string `gorm:"type:text" json:"description"`                    // 服务描述
}

// TableName 指定表名
func (RegisteredService) TableName() string {
	return "registered_services"
}

// IsActive 检查服务是否启用
func (s *RegisteredService) IsActive() bool {
	return s.Status == StatusActive
}

// Matches 检查服务地址是否匹配该注册项
func (s *RegisteredService) Matches(service string) bool {
	if !s.IsActive() {
		return false
	}
	return MatchServicePattern(s.Pattern, service)
}

// MatchServicePattern 服务地址匹配：完全相等，或者 pattern 以 / 结尾时按规范化后的路径前缀匹配，
// 且 scheme 与 host 必须一致
func MatchServicePattern(pattern, service string) bool {
	if pattern == "" || service == "" {
		return false
	}
	if pattern == service {
		return true
	}
	if !strings.HasSuffix(pattern, "/") {
		return false
	}

	p, err := url.Parse(pattern)
	if err != nil {
		return false
	}
	u, err := url.Parse(service)
	if err != nil {
		return false
	}
	if !strings.EqualFold(p.Scheme, u.Scheme) || !strings.EqualFold(p.Host, u.Host) {
		return false
	}
	servicePath := cleanPath(u.Path)
	return strings.HasPrefix(servicePath, p.Path) || servicePath+"/" == p.Path
}

// cleanPath 消除 . 和 .. 段，保留结尾的 /
func cleanPath(p string) string {
	if p == "" {
		return p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}
