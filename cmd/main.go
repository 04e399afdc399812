package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/api/router"
	"talent-match-go/internal/config"
	"talent-match-go/internal/events"
	appCoreLogger "talent-match-go/internal/logger"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/outbox"
	"talent-match-go/internal/recommend"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志，并把zerolog适配给Hertz的hlog
	appCoreLogger.Init(cfg.Logger)
	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化链路追踪
	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 技能匹配器与排序策略
	skillMatcher := matcher.NewSkillMatcher(cfg.Matcher)
	ranker, err := recommend.NewRanker(cfg.Scoring.Strategy, skillMatcher, types.ScoringWeights{
		SkillWeight:    cfg.Scoring.SkillWeight,
		SemanticWeight: cfg.Scoring.SemanticWeight,
	})
	if err != nil {
		glog.Fatalf("初始化排序器失败: %v", err)
	}
	glog.Infof("排序策略: %s", cfg.Scoring.Strategy)

	// 索引同步器。同步完成事件走outbox落库，由中继异步发布；
	// RabbitMQ缺失时只是不发布事件。
	var publisher recommend.SyncedPublisher
	var messageRelay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		publisher = outbox.NewSyncedEventPublisher(storageManager.MySQL.DB(), &cfg.RabbitMQ)
		relayLogger := log.New(os.Stdout, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger)
		messageRelay.Start()
		glog.Info("消息中继服务已启动")
	}
	// Redis可选，缺失时不做结果缓存，同步后也无缓存可失效
	var cache recommend.ResultCache
	var invalidator recommend.ResultInvalidator
	if storageManager.Redis != nil {
		cache = storageManager.Redis
		invalidator = storageManager.Redis
	}
	syncer := recommend.NewIndexSyncer(storageManager.MySQL, storageManager.Weaviate, publisher, invalidator, cfg.Scoring.SyncConcurrency)
	pipeline := recommend.NewPipeline(storageManager.MySQL, storageManager.Weaviate, ranker, cache, recommend.PipelineOptions{
		OverfetchFactor: cfg.Scoring.OverfetchFactor,
		CertaintyFloor:  cfg.Scoring.CertaintyFloor,
		DefaultLimit:    cfg.Scoring.DefaultLimit,
		DefaultMinScore: cfg.Scoring.DefaultThreshold,
	})
	glog.Info("推荐链路初始化成功")

	// 启动候选人事件消费者，连接关闭时由Close统一停止
	if storageManager.RabbitMQ != nil {
		consumer := events.NewCandidateConsumer(storageManager.RabbitMQ, syncer, &cfg.RabbitMQ)
		if _, err := consumer.Start(); err != nil {
			glog.Fatalf("启动候选人事件消费者失败: %v", err)
		}
		glog.Infof("候选人事件消费者已启动，队列: %s", cfg.RabbitMQ.CandidateSyncQueue)
	}

	recommendHandler := handler.NewRecommendHandler(storageManager, pipeline, syncer)

	tracer, trCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(trCfg))

	router.RegisterRoutes(h, recommendHandler, cfg.API.AdminKey)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	if messageRelay != nil {
		messageRelay.Stop()
		glog.Info("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
