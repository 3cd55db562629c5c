// 向服务注册表添加、停用或列出接入服务的工具
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pu-ac-cn/cas-sso/internal/config"
	"github.com/pu-ac-cn/cas-sso/internal/database"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/repository"
)

func usage() {
	fmt.Println("用法:")
	fmt.Println("  register-service add <名称> <服务地址或前缀> [描述]")
	fmt.Println("  register-service disable <服务地址或前缀>")
	fmt.Println("  register-service enable <服务地址或前缀>")
	fmt.Println("  register-service list")
	fmt.Println("示例: register-service add 邮件系统 http://localhost:8080/demo/mail/")
	os.Exit(1)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(&model.RegisteredService{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	ctx := context.Background()
	repo := repository.NewRegisteredServiceRepository(database.GetDB())

	switch args[0] {
	case "add":
		if len(args) < 3 {
			usage()
		}
		svc := &model.RegisteredService{
			Name:    args[1],
			Pattern: args[2],
			Status:  model.StatusActive,
		}
		if len(args) > 3 {
			svc.Description = args[3]
		}
		if err := repo.Create(ctx, svc); err != nil {
			if errors.Is(err, repository.ErrServicePatternExists) {
				log.Fatalf("服务地址已注册: %s", svc.Pattern)
			}
			log.Fatalf("注册服务失败: %v", err)
		}
		fmt.Printf("已注册服务 %s (%s)\n", svc.Name, svc.Pattern)

	case "disable", "enable":
		if len(args) < 2 {
			usage()
		}
		svc, err := repo.GetByPattern(ctx, args[1])
		if err != nil {
			log.Fatalf("服务不存在: %s", args[1])
		}
		status := model.StatusDisabled
		if args[0] == "enable" {
			status = model.StatusActive
		}
		if err := repo.UpdateStatus(ctx, svc.ID, status); err != nil {
			log.Fatalf("更新服务状态失败: %v", err)
		}
		fmt.Printf("服务 %s 状态已更新为 %s\n", svc.Pattern, status)

	case "list":
		services, total, err := repo.List(ctx, &repository.Pagination{Page: 1, PageSize: 100})
		if err != nil {
			log.Fatalf("查询服务失败: %v", err)
		}
		fmt.Printf("共 %d 个接入服务\n", total)
		for _, svc := range services {
			fmt.Printf("  %-8s %-20s %s\n", svc.Status, svc.Name, svc.Pattern)
		}

	default:
		usage()
	}
}
