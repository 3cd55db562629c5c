package repository

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/cas-sso/internal/model"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrServiceNotFound      = errors.New("接入服务不存在")
	ErrServicePatternExists = errors.New("服务地址已注册")
)

// RegisteredServiceRepository 接入服务数据访问接口
type RegisteredServiceRepository interface {
	Create(ctx context.Context, svc *model.RegisteredService) error
	GetByID(ctx context.Context, id string) (*model.RegisteredService, error)
	GetByPattern(ctx context.Context, pattern string) (*model.RegisteredService, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page *Pagination) ([]*model.RegisteredService, int64, error)
	ListActive(ctx context.Context) ([]*model.RegisteredService, error)
}

// registeredServiceRepository 接入服务数据访问实现
type registeredServiceRepository struct {
	db *gorm.DB
}

// NewRegisteredServiceRepository 创建接入服务数据访问实例
func NewRegisteredServiceRepository(db *gorm.DB) RegisteredServiceRepository {
	return &registeredServiceRepository{db: db}
}

// Create 注册接入服务
func (r *registeredServiceRepository) Create(ctx context.Context, svc *model.RegisteredService) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RegisteredService{}).
		Where("pattern = ?", svc.Pattern).Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrServicePatternExists
	}
	if svc.Status == "" {
		svc.Status = model.StatusActive
	}
	return r.db.WithContext(ctx).Create(svc).Error
}

// GetByID 根据 ID 获取接入服务
func (r *registeredServiceRepository) GetByID(ctx context.Context, id string) (*model.RegisteredService, error) {
	var svc model.RegisteredService
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// GetByPattern 根据服务地址获取接入服务
func (r *registeredServiceRepository) GetByPattern(ctx context.Context, pattern string) (*model.RegisteredService, error) {
	var svc model.RegisteredService
	err := r.db.WithContext(ctx).Where("pattern = ?", pattern).First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// UpdateStatus 更新服务状态
func (r *registeredServiceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).Model(&model.RegisteredService{}).
		Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// Delete 删除接入服务（软删除）
func (r *registeredServiceRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RegisteredService{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// List 分页查询接入服务
func (r *registeredServiceRepository) List(ctx context.Context, page *Pagination) ([]*model.RegisteredService, int64, error) {
	if page == nil {
		page = &Pagination{}
	}
	page.normalize()

	var total int64
	query := r.db.WithContext(ctx).Model(&model.RegisteredService{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var services []*model.RegisteredService
	err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.PageSize).Find(&services).Error
	if err != nil {
		return nil, 0, err
	}
	return services, total, nil
}

// ListActive 查询所有启用的接入服务
func (r *registeredServiceRepository) ListActive(ctx context.Context) ([]*model.RegisteredService, error) {
	var services []*model.RegisteredService
	err := r.db.WithContext(ctx).Where("status = ?", model.StatusActive).Find(&services).Error
	return services, err
}
