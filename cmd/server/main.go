package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"custody/internal/config"
	"custody/internal/handler"
	"custody/internal/infrastructure/cache"
	"custody/internal/infrastructure/database"
	"custody/internal/infrastructure/lock"
	"custody/internal/infrastructure/logger"
	"custody/internal/infrastructure/mq"
	"custody/internal/job"
	"custody/internal/service"
	"custody/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 退出码在 run 返回后再交给 os.Exit，保证 defer 的关闭逻辑都已执行
	os.Exit(run(*configPath))
}

func run(configPath string) int {
	// 本地开发时从 .env 读取 CUSTODY_* 变量，文件不存在不报错
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	log := logger.New("server", cfg.Log.Level)

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.Error().Err(err).Msg("初始化 ID 生成器失败")
		return 1
	}

	// 打开连接并自动迁移
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("连接数据库失败")
		return 1
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := cache.NewRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("连接 Redis 失败")
		return 1
	}
	defer redisClient.Close()

	publisher, err := mq.NewPublisher(&cfg.Broker)
	if err != nil {
		log.Error().Err(err).Msg("初始化消息队列失败")
		return 1
	}
	defer publisher.Close()

	deps, err := service.NewDeps(db, lock.NewRedisLocker(redisClient, cfg.Business.LockTTL, cfg.Business.LockRetries), cfg)
	if err != nil {
		log.Error().Err(err).Msg("初始化服务失败")
		return 1
	}
	deps.Logger = logger.New("ledger", cfg.Log.Level)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, deps.Metrics, logger.New("outbox", cfg.Log.Level), cfg.Business.OutboxMaxRetries)
	go outboxSender.Start(ctx)

	reconciler := job.NewActivityReconciler(db, deps.Recorder, deps.Metrics, logger.New("reconciler", cfg.Log.Level), cfg.Business.Token)
	go reconciler.Start(ctx)

	router := handler.SetupRouter(handler.NewHandler(deps), cfg, deps.Metrics, logger.New("http", cfg.Log.Level))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := serve(server, quit, log)

	// 取消上下文，停止后台任务
	cancel()

	log.Info().Msg("服务已关闭")
	return exitCode
}

// serve 阻塞到收到信号或监听失败，两种情况都先优雅关闭 HTTP 再返回退出码
func serve(server *http.Server, quit <-chan os.Signal, log zerolog.Logger) int {
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-quit:
	case err := <-serveErr:
		log.Error().Err(err).Msg("服务启动失败")
		exitCode = 1
	}

	log.Info().Msg("正在关闭服务...")

	// 先停 HTTP，进行中的审核事务不随请求取消
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}
	return exitCode
}
