package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/pu-ac-cn/cas-sso/internal/config"
	"github.com/pu-ac-cn/cas-sso/internal/database"
	"github.com/pu-ac-cn/cas-sso/internal/model"
)

// 只清理认证中心自己的表：Drop 后可选地 AutoMigrate 重建。
// 用法：
//   go run ./cmd/resetdb -force
// 可选参数：
//   -recreate  重建表（默认 true）
//   -keep-services  保留接入服务注册表，只清空审计日志
//   -force     必须为 true 才会执行（安全开关）
func main() {
	recreate := flag.Bool("recreate", true, "是否在清空后重建表")
	keepServices := flag.Bool("keep-services", false, "保留接入服务注册表")
	force := flag.Bool("force", false, "确认执行清空操作")
	flag.Parse()

	if !*force {
		log.Fatal("为避免误操作，请加上 -force 参数：go run ./cmd/resetdb -force")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()

	m := database.GetDB().Migrator()

	tables := []any{&model.TicketLogEntry{}}
	if !*keepServices {
		tables = append(tables, &model.RegisteredService{})
	}

	fmt.Println("开始清空认证中心相关表...")
	for _, t := range tables {
		if m.HasTable(t) {
			if err := m.DropTable(t); err != nil {
				log.Fatalf("删除表失败: %v", err)
			}
			fmt.Printf("已删除表: %T\n", t)
		}
	}

	if *recreate {
		for _, t := range tables {
			if err := m.AutoMigrate(t); err != nil {
				log.Fatalf("创建表失败: %v", err)
			}
			fmt.Printf("已创建/更新表: %T\n", t)
		}
	}

	fmt.Println("完成。")
}
