package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad 测试配置加载
func TestLoad(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
server:
  addr: ":9090"
  mode: "release"
  read_timeout: "15s"
  write_timeout: "15s"

database:
  driver: "postgres"
  postgres:
    host: "testhost"
    port: 5433
    user: "testuser"
    password: "testpass"
    dbname: "testdb"
    sslmode: "require"

redis:
  addr: "testredis:6380"
  password: "redispass"
  db: 1

cas:
  tgt_expiry: "2h"
  st_expiry: "30s"
  services:
    - "https://app.example.com/"
    - "https://mail.example.com/inbox"

store:
  driver: "redis"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("创建测试配置文件失败: %v", err)
	}

	// 测试从文件加载配置
	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 验证服务器配置
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr 期望 :9090, 实际 %s", cfg.Server.Addr)
	}
	if cfg.Server.Mode != "release" {
		t.Errorf("Server.Mode 期望 release, 实际 %s", cfg.Server.Mode)
	}

	// 验证数据库配置
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver 期望 postgres, 实际 %s", cfg.Database.Driver)
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host 期望 testhost, 实际 %s", cfg.Database.Postgres.Host)
	}
	if cfg.Database.Postgres.Port != 5433 {
		t.Errorf("Database.Postgres.Port 期望 5433, 实际 %d", cfg.Database.Postgres.Port)
	}

	// 验证 Redis 配置
	if cfg.Redis.Addr != "testredis:6380" {
		t.Errorf("Redis.Addr 期望 testredis:6380, 实际 %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 1 {
		t.Errorf("Redis.DB 期望 1, 实际 %d", cfg.Redis.DB)
	}

	// 验证 CAS 配置
	if cfg.CAS.TGTExpiry != 2*time.Hour {
		t.Errorf("CAS.TGTExpiry 期望 2h, 实际 %s", cfg.CAS.TGTExpiry)
	}
	if cfg.CAS.STExpiry != 30*time.Second {
		t.Errorf("CAS.STExpiry 期望 30s, 实际 %s", cfg.CAS.STExpiry)
	}
	if len(cfg.CAS.Services) != 2 {
		t.Errorf("CAS.Services 期望 2 项, 实际 %d", len(cfg.CAS.Services))
	}
	if cfg.CAS.CookieName != "CASTGC" {
		t.Errorf("CAS.CookieName 期望 CASTGC, 实际 %s", cfg.CAS.CookieName)
	}

	// 验证票据存储配置
	if cfg.Store.Driver != "redis" {
		t.Errorf("Store.Driver 期望 redis, 实际 %s", cfg.Store.Driver)
	}
}

// TestLoadDefaults 测试默认配置
func TestLoadDefaults(t *testing.T) {
	// 创建空配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("创建测试配置文件失败: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 验证默认值
	if cfg.Server.Addr != ":8080" {
		t.Errorf("默认 Server.Addr 期望 :8080, 实际 %s", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "" {
		t.Errorf("默认 Database.Driver 期望为空, 实际 %s", cfg.Database.Driver)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("默认 Store.Driver 期望 memory, 实际 %s", cfg.Store.Driver)
	}
	if cfg.CAS.TGTExpiry != 8*time.Hour {
		t.Errorf("默认 CAS.TGTExpiry 期望 8h, 实际 %s", cfg.CAS.TGTExpiry)
	}
	if cfg.CAS.STExpiry != 5*time.Minute {
		t.Errorf("默认 CAS.STExpiry 期望 5m, 实际 %s", cfg.CAS.STExpiry)
	}
	if cfg.CAS.DemoUsername != "demo" || cfg.CAS.DemoPassword != "password" {
		t.Errorf("默认演示账号期望 demo/password, 实际 %s/%s", cfg.CAS.DemoUsername, cfg.CAS.DemoPassword)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("默认 Redis.Addr 期望 localhost:6379, 实际 %s", cfg.Redis.Addr)
	}
}

// TestGet 测试获取全局配置
func TestGet(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
server:
  addr: ":8888"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("创建测试配置文件失败: %v", err)
	}

	// 加载配置
	_, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 获取全局配置
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() 返回 nil")
	}
	if cfg.Server.Addr != ":8888" {
		t.Errorf("Get().Server.Addr 期望 :8888, 实际 %s", cfg.Server.Addr)
	}
}

// TestLoadFromFileNotFound 测试加载不存在的配置文件
func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("期望返回错误，但没有")
	}
}

// TestAllowedServices 测试接入服务白名单的默认值
func TestAllowedServices(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("创建测试配置文件失败: %v", err)
	}
	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 默认配置只放行演示站点
	got := cfg.AllowedServices()
	want := []string{"http://localhost:8080/demo/main/", "http://localhost:8080/demo/mail/"}
	if len(got) != len(want) {
		t.Fatalf("AllowedServices 期望 %v, 实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllowedServices[%d] 期望 %s, 实际 %s", i, want[i], got[i])
		}
	}

	cfg.Demo.BaseURL = "https://sso.example/"
	if s := cfg.AllowedServices()[0]; s != "https://sso.example/demo/main/" {
		t.Errorf("BaseURL 结尾的 / 应被去掉, 实际 %s", s)
	}

	cfg.CAS.Services = []string{"https://app.example/"}
	if got := cfg.AllowedServices(); len(got) != 1 || got[0] != "https://app.example/" {
		t.Errorf("显式配置优先, 实际 %v", got)
	}

	cfg.CAS.Services = nil
	cfg.Demo.Enabled = false
	if got := cfg.AllowedServices(); got != nil {
		t.Errorf("未配置且关闭演示站点时期望 nil, 实际 %v", got)
	}
}
