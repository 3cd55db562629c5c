package service

import (
	"context"
	"fmt"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/repository"
)

// ServiceRegistry 判断服务地址是否允许接入
type ServiceRegistry interface {
	// IsAllowed 服务能否申请 Service Ticket
	IsAllowed(ctx context.Context, service string) (bool, error)
	// IsRegistered 服务是否被某个注册项显式匹配，用于登出后的跳转
	IsRegistered(ctx context.Context, service string) (bool, error)
}

// StaticServiceRegistry 基于配置的服务白名单，列表为空时允许所有服务
type StaticServiceRegistry struct {
	patterns []string
}

// NewStaticServiceRegistry 创建静态白名单
func NewStaticServiceRegistry(patterns []string) *StaticServiceRegistry {
	return &StaticServiceRegistry{patterns: append([]string(nil), patterns...)}
}

// IsAllowed 实现 ServiceRegistry
func (r *StaticServiceRegistry) IsAllowed(ctx context.Context, service string) (bool, error) {
	if service == "" {
		return false, nil
	}
	if len(r.patterns) == 0 {
		return true, nil
	}
	return r.IsRegistered(ctx, service)
}

// IsRegistered 实现 ServiceRegistry，空列表不匹配任何服务
func (r *StaticServiceRegistry) IsRegistered(_ context.Context, service string) (bool, error) {
	for _, p := range r.patterns {
		if model.MatchServicePattern(p, service) {
			return true, nil
		}
	}
	return false, nil
}

// RepositoryServiceRegistry 基于数据库注册表的白名单
type RepositoryServiceRegistry struct {
	repo repository.RegisteredServiceRepository
}

// NewRepositoryServiceRegistry 创建数据库白名单
func NewRepositoryServiceRegistry(repo repository.RegisteredServiceRepository) *RepositoryServiceRegistry {
	return &RepositoryServiceRegistry{repo: repo}
}

// IsAllowed 实现 ServiceRegistry
func (r *RepositoryServiceRegistry) IsAllowed(ctx context.Context, service string) (bool, error) {
	if service == "" {
		return false, nil
	}
	services, err := r.repo.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("查询接入服务失败: %w", err)
	}
	for _, s := range services {
		if s.Matches(service) {
			return true, nil
		}
	}
	return false, nil
}

// IsRegistered 实现 ServiceRegistry
func (r *RepositoryServiceRegistry) IsRegistered(ctx context.Context, service string) (bool, error) {
	return r.IsAllowed(ctx, service)
}
