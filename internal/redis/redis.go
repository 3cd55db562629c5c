package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pu-ac-cn/cas-sso/internal/config"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// NewClient 创建 Redis 客户端并检查连通性
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return c, nil
}

// Init 初始化全局 Redis 连接
func Init(cfg *config.RedisConfig) error {
	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		return err
	}
	client = c
	return nil
}

// GetClient 获取 Redis 客户端实例
func GetClient() *redis.Client {
	return client
}

// Ping 检查全局连接
func Ping(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("Redis 未初始化")
	}
	return client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
