// Package main 数据库迁移工具
package main

import (
	"flag"
	"log"

	"github.com/pu-ac-cn/cas-sso/internal/config"
	"github.com/pu-ac-cn/cas-sso/internal/database"
	"github.com/pu-ac-cn/cas-sso/internal/model"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 加载配置
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if !database.Enabled(&cfg.Database) {
		log.Fatal("未配置 database.driver，无需迁移")
	}

	// 初始化数据库连接
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	log.Println("开始执行数据库迁移...")
	models := []any{
		&model.RegisteredService{},
		&model.TicketLogEntry{},
	}
	for _, m := range models {
		if err := database.AutoMigrate(m); err != nil {
			log.Fatalf("迁移失败: %v", err)
		}
	}

	log.Println("数据库迁移完成！")
	log.Println("已创建/更新的表:")
	log.Println("  - registered_services (接入服务注册表)")
	log.Println("  - ticket_log_entries (Service Ticket 审计日志)")
}
