package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/handler"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/cache"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/database"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/lock"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/mq"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/infrastructure/ratelimit"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/job"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/repository"
	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/service"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/idgen"
	"github.com/MaxTT-Billing/maxtt-referrals-api/pkg/refclient"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "ID 生成器节点号")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	// 初始化 ID 生成器
	idgen.Init(*workerID)

	// 初始化数据库
	db := database.InitDatabase(&cfg.Database)

	// 初始化 Redis（可选，连不上就不用）
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Printf("[Redis] %v，继续运行但不使用缓存", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 初始化 Kafka（可选）
	var publisher mq.Publisher
	kafkaPublisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatalf("初始化 Kafka 失败: %v", err)
	}
	if kafkaPublisher != nil {
		publisher = kafkaPublisher
	}

	// API Key：启动时按配置生成哈希，失败只记日志
	var credOpts []service.CredentialOption
	if redisClient != nil {
		credOpts = append(credOpts,
			service.WithRoleCache(cache.NewRoleCache(redisClient, cfg.Auth.CacheTTL)),
			service.WithSeedLocker(lock.NewSeedLock(redisClient, uuid.NewString(), cfg.Auth.SeedLock)),
		)
	}
	credentialService := service.NewCredentialService(repository.NewAPIKeyRepository(db), cfg.Auth.BcryptCost, credOpts...)
	summary := credentialService.EnsureCredentials(context.Background(), service.RoleSecrets{
		Writer: cfg.Auth.WriterKey,
		Admin:  cfg.Auth.AdminKey,
		SA:     cfg.Auth.SAKey,
	})
	log.Printf("[Auth] API Key 初始化: created=%v rotated=%v unchanged=%v failed=%v skipped=%v",
		summary.Created, summary.Rotated, summary.Unchanged, summary.Failed, summary.Skipped)

	referralService := service.NewReferralService(db, cfg)

	// 发票派生：本地写入或转发到远端推荐服务
	var submitter service.ReferralSubmitter = service.NewLocalSubmitter(referralService)
	if cfg.ReferralHook.Mode == "remote" {
		submitter = service.NewRemoteSubmitter(refclient.New(refclient.Config{
			BaseURL:    cfg.ReferralHook.BaseURL,
			WriterKey:  cfg.ReferralHook.WriterKey,
			SigningKey: cfg.Signing.Secret,
			Timeout:    cfg.ReferralHook.Timeout(),
		}))
	}
	deriver := service.NewReferralDeriver(submitter, cfg.ReferralHook.Enabled, cfg.ReferralHook.Debug, cfg.ReferralHook.Timeout())

	// 限流
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	}

	// 启动后台任务
	scheduler, err := job.NewScheduler()
	if err != nil {
		log.Fatalf("创建调度器失败: %v", err)
	}
	if publisher != nil {
		sender := job.NewOutboxSender(repository.NewOutboxRepository(db), publisher, cfg.Business.MaxRetryCount)
		if err := scheduler.AddOutboxSender(sender, 100*time.Millisecond); err != nil {
			log.Fatalf("注册 Outbox 任务失败: %v", err)
		}
	}
	if limiter != nil {
		if err := scheduler.AddBucketSweeper(job.NewBucketSweeper(limiter, cfg.RateLimit.SweepGrace), cfg.RateLimit.SweepInterval); err != nil {
			log.Fatalf("注册限流清理任务失败: %v", err)
		}
	}
	scheduler.Start()

	// 设置路由
	h := handler.NewHandler(db, cfg, credentialService, referralService, deriver)
	router := handler.SetupRouter(h, limiter, cfg)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	// 等待进行中的派生请求结束，再停后台任务
	deriver.Wait()
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("调度器关闭异常: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("Kafka 关闭异常: %v", err)
		}
	}

	log.Println("服务已关闭")
}
