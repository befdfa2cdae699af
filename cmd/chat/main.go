package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mrcoder57/chat-express/internal/auth"
	"github.com/mrcoder57/chat-express/internal/config"
	"github.com/mrcoder57/chat-express/internal/fanout"
	"github.com/mrcoder57/chat-express/internal/health"
	"github.com/mrcoder57/chat-express/internal/httpapi"
	"github.com/mrcoder57/chat-express/internal/orchestrator"
	"github.com/mrcoder57/chat-express/internal/presence"
	"github.com/mrcoder57/chat-express/internal/server"
	"github.com/mrcoder57/chat-express/internal/session"
	"github.com/mrcoder57/chat-express/internal/snowflake"
	"github.com/mrcoder57/chat-express/internal/store"
	"github.com/mrcoder57/chat-express/internal/workerpool"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志，环境变量优先于配置文件
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = cfg.App.LogLevel
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库连接池
	db, err := pgxpool.New(ctx, databaseURL(cfg.Database))
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// 初始化 Redis 客户端
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Redis", "host", cfg.Redis.Host)

	// 初始化 worker 池与 Fanout 总线
	pool := workerpool.New(0, 0, logger)
	defer pool.Shutdown()

	bus, err := fanout.NewBus(cfg.NATS, cfg.Server.NodeID, pool)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 装配核心组件
	registry := session.NewRegistry()
	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	recent := store.NewRecentCache(redisClient)
	presenceStore := presence.NewStore(redisClient, cfg.Server.NodeID)
	jwtService := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expire)

	ids, err := snowflake.NewNodeFromName(cfg.Server.NodeID)
	if err != nil {
		logger.Error("Failed to create ID generator", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(registry, conversations, messages, recent, presenceStore, bus, jwtService, ids)

	// 订阅全部 fanout channel，对端事件转发给本地房间
	bus.OnEnvelope(orch.HandleEnvelope)
	if err := bus.Start(); err != nil {
		logger.Error("Failed to subscribe fanout channels", "error", err)
		os.Exit(1)
	}

	// 启动 WebTransport 接入层
	srv := server.New(cfg, orch, pool)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 启动 REST / 健康检查 / 指标
	checker := health.NewChecker(cfg.App.Name, bus.Conn(), redisClient, db, registry)
	conversationHandler := httpapi.NewConversationHandler(conversations, messages, recent)
	router := httpapi.SetupRouter(cfg, jwtService, conversationHandler, checker)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	logger.Info("Chat server started",
		"addr", cfg.Server.Addr,
		"node_id", cfg.Server.NodeID)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	srv.Shutdown()
	logger.Info("Server stopped")
}

func databaseURL(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.MaxOpenConns)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
