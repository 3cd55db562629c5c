package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/cas-sso/internal/config"
	"github.com/pu-ac-cn/cas-sso/internal/database"
	"github.com/pu-ac-cn/cas-sso/internal/handler"
	"github.com/pu-ac-cn/cas-sso/internal/metrics"
	"github.com/pu-ac-cn/cas-sso/internal/middleware"
	"github.com/pu-ac-cn/cas-sso/internal/model"
	"github.com/pu-ac-cn/cas-sso/internal/notify"
	"github.com/pu-ac-cn/cas-sso/internal/redis"
	"github.com/pu-ac-cn/cas-sso/internal/repository"
	"github.com/pu-ac-cn/cas-sso/internal/service"
	"github.com/pu-ac-cn/cas-sso/internal/store"
	"github.com/pu-ac-cn/cas-sso/pkg/casclient"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"github.com/pu-ac-cn/cas-sso/web"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := middleware.InitLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	logger := middleware.GetLogger()
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()

	// 票据存储
	var ticketStore store.Store
	switch cfg.Store.Driver {
	case "redis":
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("初始化 Redis 失败", zap.Error(err))
		}
		defer redis.Close()
		ticketStore = store.NewRedisStore(redis.GetClient(), cfg.Store.KeyPrefix)
		logger.Info("票据存储: Redis", zap.String("addr", cfg.Redis.Addr))
	case "memory", "":
		mem := store.NewMemoryStore()
		go service.RunSweeper(ctx, mem, cfg.Store.SweepInterval, time.Now, logger, m)
		ticketStore = mem
		logger.Info("票据存储: 内存")
	default:
		logger.Fatal("不支持的票据存储", zap.String("driver", cfg.Store.Driver))
	}

	// 审计日志与服务注册表：配置了数据库时持久化，否则使用内存实现
	var (
		ticketLog service.TicketLog = service.NewMemoryTicketLog(cfg.CAS.TicketLogSize)
		registry  service.ServiceRegistry
	)
	if database.Enabled(&cfg.Database) {
		if err := database.Init(&cfg.Database); err != nil {
			logger.Fatal("初始化数据库失败", zap.Error(err))
		}
		defer database.Close()
		if err := database.AutoMigrate(&model.RegisteredService{}, &model.TicketLogEntry{}); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
		ticketLog = repository.NewTicketLogRepository(database.GetDB())
		registry = service.NewRepositoryServiceRegistry(repository.NewRegisteredServiceRepository(database.GetDB()))
		logger.Info("数据库连接成功", zap.String("driver", cfg.Database.Driver))
	} else {
		allowed := cfg.AllowedServices()
		if len(allowed) == 0 {
			logger.Warn("未配置 cas.services，任何服务地址都能申请 Service Ticket")
		}
		registry = service.NewStaticServiceRegistry(allowed)
	}

	// 票据服务
	credentials, err := service.NewStaticCredentialVerifier(cfg.CAS.DemoUsername, cfg.CAS.DemoPassword, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("初始化凭据校验失败", zap.Error(err))
	}
	factory := service.NewTicketFactory(&service.FactoryConfig{
		TGTExpiry: cfg.CAS.TGTExpiry,
		STExpiry:  cfg.CAS.STExpiry,
	})
	validator := service.NewTicketValidator(ticketStore, &service.ValidatorConfig{Logger: logger, Metrics: m})
	authority := service.NewSessionAuthority(ticketStore, factory, validator, credentials, &service.AuthorityConfig{
		TicketLog: ticketLog,
		Logger:    logger,
		Metrics:   m,
	})
	logout := service.NewLogoutCoordinator(ticketStore, &service.LogoutConfig{
		TicketLog: ticketLog,
		Logger:    logger,
		Metrics:   m,
	})

	if cfg.AMQP.Enabled {
		publisher, err := notify.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal("连接 RabbitMQ 失败", zap.Error(err))
		}
		defer publisher.Close()
		logout.OnLogout(publisher)
		logger.Info("单点登出广播已启用", zap.String("exchange", cfg.AMQP.Exchange))
	}

	templates, err := web.Templates(web.DefaultConfig())
	if err != nil {
		logger.Fatal("加载页面模板失败", zap.Error(err))
	}
	staticHandler, err := web.NewStaticHandler(web.DefaultConfig())
	if err != nil {
		logger.Fatal("加载静态资源失败", zap.Error(err))
	}

	hint := ""
	if cfg.Demo.Enabled {
		hint = "提示: 使用 " + cfg.CAS.DemoUsername + "/" + cfg.CAS.DemoPassword + " 登录"
	}
	casHandler := handler.NewCASHandler(authority, validator, logout, ticketLog, registry, templates, &handler.CASConfig{
		CookieName:   cfg.CAS.CookieName,
		CookiePath:   cfg.CAS.CookiePath,
		CookieSecure: cfg.CAS.CookieSecure,
		TGTExpiry:    cfg.CAS.TGTExpiry,
		Hint:         hint,
		Logger:       logger,
	})

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
			"store":  cfg.Store.Driver,
		}
		if cfg.Store.Driver == "redis" {
			status["redis"] = "ok"
			if err := redis.Ping(c.Request.Context()); err != nil {
				status["redis"] = "error"
			}
		}
		if database.Enabled(&cfg.Database) {
			status["database"] = "ok"
			if err := database.Ping(); err != nil {
				status["database"] = "error"
			}
		}
		response.Success(c, status)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	casHandler.SetupRoutes(router)
	staticHandler.SetupRoutes(router)

	if cfg.Demo.Enabled {
		inProcess := casclient.ValidatorFunc(func(ctx context.Context, ticket, svc string) (string, error) {
			identity, err := validator.Validate(ctx, ticket, svc, time.Now())
			return identity.String(), err
		})
		for _, site := range config.DemoSites {
			client, err := setupDemoSite(router, cfg, site, inProcess, logger)
			if err != nil {
				logger.Fatal("初始化演示站点失败", zap.String("site", site), zap.Error(err))
			}
			logout.OnLogout(notify.NewLocalForwarder(client))
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("服务启动", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭失败", zap.Error(err))
	}
	logger.Info("服务已关闭")
}

// setupDemoSite 注册演示用接入服务 /demo/<site>/，登录后返回当前用户
func setupDemoSite(router gin.IRouter, cfg *config.Config, site string, validator casclient.TicketValidator, logger *zap.Logger) (*casclient.Client, error) {
	path := "/demo/" + site + "/"
	client, err := casclient.New(casclient.Options{
		Name:       site,
		ServiceURL: cfg.Demo.DemoServiceURL(site),
		CASURL:     strings.TrimSuffix(cfg.Demo.BaseURL, "/"),
		Validator:  validator,
		Secret:     []byte(cfg.Demo.SessionSecret + ":" + site),
		CookiePath: path,
		Logger:     logger.Named("demo." + site),
	})
	if err != nil {
		return nil, err
	}

	group := router.Group(path)
	group.GET("", client.Middleware(), func(c *gin.Context) {
		response.Success(c, gin.H{
			"site":       site,
			"user":       casclient.Identity(c),
			"logout_url": path + "logout",
		})
	})
	group.GET("/logout", func(c *gin.Context) {
		client.ClearSession(c)
		c.Redirect(http.StatusFound, client.LogoutURL())
	})
	return client, nil
}
