// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-smart-go/internal/cache"
	"doc-smart-go/internal/config"
	"doc-smart-go/internal/handler"
	"doc-smart-go/internal/middleware"
	"doc-smart-go/internal/model"
	"doc-smart-go/internal/pipeline"
	"doc-smart-go/internal/repository"
	"doc-smart-go/internal/service"
	"doc-smart-go/internal/session"
	"doc-smart-go/pkg/database"
	"doc-smart-go/pkg/embedding"
	"doc-smart-go/pkg/es"
	"doc-smart-go/pkg/extract"
	"doc-smart-go/pkg/llm"
	"doc-smart-go/pkg/log"
	"doc-smart-go/pkg/notify"
	"doc-smart-go/pkg/storage"
	"doc-smart-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与 Elasticsearch
	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 连接失败", err)
	}
	if err := db.AutoMigrate(
		&model.Document{},
		&model.Chunk{},
		&model.ResponseCacheEntry{},
		&model.EmbeddingCacheEntry{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	rdb, err := database.OpenRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 连接失败", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatal("Elasticsearch 初始化失败", err)
	}

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	respCacheRepo := repository.NewResponseCacheRepository(db)
	embCacheRepo := repository.NewEmbeddingCacheRepository(db)
	sessionRepo := repository.NewSessionRepository(rdb)
	docLocker := repository.NewDocumentLocker(rdb)

	// 5. 初始化缓存层与外部客户端 (依赖注入)
	embCache := cache.NewEmbeddingCache(embCacheRepo)
	embedder := cache.NewCachingEmbedder(embedding.NewClient(cfg.Embedding), embCache, cfg.Embedding.BatchSize)
	respCache := cache.NewResponseCache(respCacheRepo, embCacheRepo, cfg.Cache)

	tikaClient := extract.NewClient(cfg.Tika)
	primaryLLM := llm.NewClient(cfg.LLM.Primary, cfg.LLM.Generation)
	var fallbackLLM llm.Client
	if cfg.LLM.Fallback.BaseURL != "" {
		fallbackLLM = llm.NewClient(cfg.LLM.Fallback, cfg.LLM.Generation)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Kafka.EventTopic != "" {
		notifier = notify.NewKafkaNotifier(cfg.Kafka)
	}

	// 6. 初始化 Service
	sessionMemory := session.NewMemory(sessionRepo, session.NewRegexExtractor(), cfg.Session)
	searchService := service.NewSearchService(embedder, esClient, docRepo)
	reranker := service.NewReranker(primaryLLM)
	chatService := service.NewChatService(
		searchService,
		respCache,
		sessionMemory,
		reranker,
		embedder,
		primaryLLM,
		fallbackLLM,
		notifier,
		cfg.LLM.Prompt,
	)

	// 7. 初始化文档摄取管线 (Processor) 与任务队列
	processor := pipeline.NewProcessor(
		docRepo,
		chunkRepo,
		storageClient,
		tikaClient,
		embedder,
		esClient,
		respCache,
		docLocker,
		notifier,
		cfg.Chunking,
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	queue := tasks.NewQueue(cfg.Kafka, rdb)
	go queue.StartConsumer(rootCtx, processor)

	// 8. 启动过期缓存的后台清理任务
	go runCacheCleanup(rootCtx, respCache, cfg.Cache.CleanupInterval)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		chatHandler := handler.NewChatHandler(chatService)
		chat := apiV1.Group("/chat")
		{
			chat.POST("/ask", chatHandler.Ask)
		}
		r.GET("/chat/ws", chatHandler.HandleWS)

		documentHandler := handler.NewDocumentHandler(docRepo, storageClient, queue, processor)
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("/:id", documentHandler.Get)
			documents.POST("/:id/reindex", documentHandler.Reindex)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		cacheHandler := handler.NewCacheHandler(respCache)
		cacheGroup := apiV1.Group("/cache")
		{
			cacheGroup.GET("/stats", cacheHandler.Stats)
			cacheGroup.DELETE("", cacheHandler.Clear)
			cacheGroup.DELETE("/documents/:id", cacheHandler.InvalidateDocument)
			cacheGroup.DELETE("/catalogs/:catalogId", cacheHandler.InvalidateCatalog)
			cacheGroup.POST("/cleanup", cacheHandler.Cleanup)
		}

		sessionHandler := handler.NewSessionHandler(sessionMemory)
		sessions := apiV1.Group("/sessions")
		{
			sessions.DELETE("/:userId", sessionHandler.Clear)
		}
	}

	// 11. 启动 HTTP 服务器并实现优雅停机
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

	// 先停止后台任务，再关闭 HTTP 服务器
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// runCacheCleanup 周期清理过期的响应缓存条目，ctx 取消时退出。
func runCacheCleanup(ctx context.Context, respCache *cache.ResponseCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infof("缓存过期清理任务已启动, 间隔: %s", interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("缓存过期清理任务收到退出信号")
			return
		case <-ticker.C:
			if _, err := respCache.CleanupExpired(); err != nil {
				log.Errorf("缓存过期清理失败: %v", err)
			}
		}
	}
}
