// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"autoline-go/internal/cache"
	"autoline-go/internal/config"
	"autoline-go/internal/handler"
	"autoline-go/internal/intent"
	"autoline-go/internal/metrics"
	"autoline-go/internal/middleware"
	"autoline-go/internal/model"
	"autoline-go/internal/pipeline"
	"autoline-go/internal/repository"
	"autoline-go/internal/service"
	"autoline-go/pkg/database"
	"autoline-go/pkg/es"
	"autoline-go/pkg/kafka"
	"autoline-go/pkg/line"
	"autoline-go/pkg/llm"
	"autoline-go/pkg/log"
	"autoline-go/pkg/storage"
	"autoline-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	if err := database.DB.AutoMigrate(&model.ConversationRecord{}, &model.Customer{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	customerRepo := repository.NewCustomerRepository(database.DB)
	dedupRepo := repository.NewEventDedupRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	lineClient := line.NewClient(cfg.Line)
	monitor := metrics.NewMonitor()
	classifier := intent.NewClassifier()
	shaper := service.NewResponseShaper(cfg.MinIO)

	responseCache := cache.NewResponseCache(
		time.Duration(cfg.Assistant.ResponseCacheTTLMin)*time.Minute,
		cfg.Assistant.ResponseCacheCapacity,
		monitor.RecordCache,
	)
	conversationCache := cache.NewConversationCache(
		cfg.Assistant.WindowSize,
		time.Duration(cfg.Assistant.WindowTimeoutMin)*time.Minute,
		cfg.Assistant.WindowCapacity,
	)

	conversationService := service.NewConversationService(
		conversationRepo,
		customerRepo,
		cfg.Assistant.RetentionDays,
		cfg.Assistant.HistoryMaxTurns,
		cfg.Elasticsearch.IndexName,
		kafka.ProduceConversationEvent,
	)
	chatService := service.NewChatService(
		llmClient,
		conversationService,
		responseCache,
		conversationCache,
		classifier,
		shaper,
		monitor,
		cfg.Assistant.SystemPrompt,
		cfg.Assistant.HistoryMaxTurns,
		time.Duration(cfg.Assistant.GenerateTimeoutSeconds)*time.Second,
	)

	// 6. 初始化审计索引管道 (Processor)
	processor := pipeline.NewAuditProcessor(cfg.Elasticsearch.IndexName)

	// 7. 启动后台任务：Kafka 消费者、缓存清理、概率触发的记录清理
	go kafka.StartConsumer(cfg.Kafka, processor)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	go responseCache.StartSweeper(bgCtx, time.Duration(cfg.Assistant.CacheSweepIntervalMin)*time.Minute)
	go startPruneLoop(bgCtx, conversationService, cfg.Assistant.PruneProbability)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	webhookHandler := handler.NewWebhookHandler(chatService, lineClient, dedupRepo, cfg.Line.ChannelSecret)
	authHandler := handler.NewAuthHandler(cfg.Admin, jwtManager)
	adminHandler := handler.NewAdminHandler(monitor, responseCache, conversationCache, conversationService)

	// webhook 入口不走 JWT，鉴权靠平台签名
	r.POST("/webhook/line", webhookHandler.HandleLine)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refreshToken", authHandler.Refresh)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager))
		{
			admin.GET("/metrics", adminHandler.GetMetrics)
			admin.GET("/metrics/alerts", adminHandler.GetAlerts)
			admin.POST("/metrics/reset", adminHandler.ResetMetrics)
			admin.GET("/metrics/live", adminHandler.LiveMetrics)

			admin.GET("/cache/stats", adminHandler.GetCacheStats)
			admin.POST("/cache/clear", adminHandler.ClearCache)

			admin.GET("/conversations/search", adminHandler.SearchConversations)
			admin.GET("/conversations/recent", adminHandler.GetRecentConversations)
			admin.GET("/conversations/stats", adminHandler.GetConversationStats)
			admin.POST("/conversations/prune", adminHandler.PruneConversations)

			admin.GET("/templates/suggest", adminHandler.SuggestTemplates)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// startPruneLoop 每小时按配置概率触发一次过期记录清理，
// 多实例部署时错开清理时机，避免同时扫表。
func startPruneLoop(ctx context.Context, conversationSvc service.ConversationService, probability float64) {
	if probability <= 0 {
		probability = 0.1
	}
	if probability > 1 {
		probability = 1
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rand.Float64() >= probability {
				continue
			}
			if _, err := conversationSvc.Prune(ctx); err != nil {
				log.Error("定时清理过期对话记录失败", err)
			}
		}
	}
}
