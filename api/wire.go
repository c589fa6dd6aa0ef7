package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	feedbackHandlers "backend/api/handlers/feedback"
	pipelineHandlers "backend/api/handlers/pipeline"
	toolHandlers "backend/api/handlers/tools"

	"backend/internal/ai/openai"
	"backend/internal/builder"
	"backend/internal/config"
	"backend/internal/director"
	"backend/internal/feedback"
	"backend/internal/hunter"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/monitor"
	"backend/internal/pipeline"
	"backend/internal/tools"
	"backend/internal/tools/builtin"
	"backend/internal/worker"
	"backend/pkg/aiinterface"
)

// Container 组装好的服务集合
type Container struct {
	Store    *pipeline.Store
	Hunter   *hunter.Service
	Director *director.Service
	Builder  *builder.Service
	Monitor  *monitor.Service
	Feedback *feedback.Service
	Registry *tools.Registry
	Queue    queue.Client
}

// BuildContainer 按配置组装全部服务
func BuildContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	store := pipeline.NewStore(db)
	feedbackSvc := feedback.NewService(db, feedback.NewLogNotifier(),
		cfg.Pipeline.Feedback.HistoryCapacity,
		cfg.Pipeline.Feedback.ScoreGapAlert)

	if cfg.Database.AutoMigrate {
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("流水线表迁移失败: %w", err)
		}
		if err := feedbackSvc.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("反馈表迁移失败: %w", err)
		}
	}
	if err := store.SeedAgentStates(context.Background()); err != nil {
		return nil, fmt.Errorf("初始化角色状态失败: %w", err)
	}

	modelClient, err := buildModelClient(cfg)
	if err != nil {
		return nil, err
	}

	directorSvc := director.NewService(store, modelClient, feedbackSvc,
		time.Duration(cfg.Pipeline.Director.BatchDelaySeconds)*time.Second)

	hunterSvc := hunter.NewService(store,
		buildSignalSources(cfg),
		cfg.Pipeline.Hunter.Qualifiers,
		time.Duration(cfg.Pipeline.Hunter.IntervalHours)*time.Hour)

	clientCfg := builder.ClientConfig{
		RepoAPIBaseURL:   cfg.Pipeline.Builder.RepoAPIBaseURL,
		RepoOwner:        cfg.Pipeline.Builder.RepoOwner,
		RepoToken:        cfg.Pipeline.Builder.RepoToken,
		DeployAPIBaseURL: cfg.Pipeline.Builder.DeployAPIBaseURL,
		DeployToken:      cfg.Pipeline.Builder.DeployToken,
		Timeout:          time.Duration(cfg.Pipeline.Builder.TimeoutSeconds) * time.Second,
	}
	builderSvc := builder.NewService(store,
		builder.NewHTTPRepoCloner(clientCfg),
		builder.NewHTTPCustomizer(clientCfg),
		builder.NewHTTPDeployTarget(clientCfg))

	monitorSvc := monitor.NewService(store,
		time.Duration(cfg.Pipeline.Monitor.ProbeTimeoutSeconds)*time.Second,
		int64(cfg.Pipeline.Monitor.HealthyThresholdMs))

	registry := tools.NewRegistry()
	if err := builtin.RegisterAll(registry, builtin.Services{
		Director: directorSvc,
		Hunter:   hunterSvc,
		Builder:  builderSvc,
		Monitor:  monitorSvc,
		Feedback: feedbackSvc,
	}); err != nil {
		return nil, fmt.Errorf("注册内置工作者失败: %w", err)
	}

	return &Container{
		Store:    store,
		Hunter:   hunterSvc,
		Director: directorSvc,
		Builder:  builderSvc,
		Monitor:  monitorSvc,
		Feedback: feedbackSvc,
		Registry: registry,
		Queue:    queue.NewClient(cfg.Redis),
	}, nil
}

// SetupRouter 组装服务并构建 HTTP 路由与任务服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server, error) {
	container, err := BuildContainer(db, cfg)
	if err != nil {
		return nil, nil, err
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, container)

	workerSrv := worker.NewServer(cfg.Redis,
		container.Hunter, container.Monitor, container.Director,
		logger.Get().Named("worker"))

	return router, workerSrv, nil
}

// RegisterRoutes 挂载业务路由
func RegisterRoutes(router *gin.Engine, c *Container) {
	pipelineHandler := pipelineHandlers.NewHandler(c.Store, c.Hunter, c.Director, c.Builder, c.Monitor, c.Queue)
	feedbackHandler := feedbackHandlers.NewHandler(c.Feedback)
	toolHandler := toolHandlers.NewHandler(tools.NewDispatcher(c.Registry))

	api := router.Group("/api")
	{
		api.POST("/opportunities", pipelineHandler.CreateOpportunity)
		api.GET("/opportunities", pipelineHandler.ListOpportunities)
		api.GET("/opportunities/:id", pipelineHandler.GetOpportunity)
		api.POST("/opportunities/:id/evaluate", pipelineHandler.EvaluateOpportunity)

		api.POST("/pipeline/evaluate-pending", pipelineHandler.EvaluatePending)
		api.POST("/pipeline/hunt", pipelineHandler.RunHunt)
		api.POST("/pipeline/build", pipelineHandler.BuildProduct)
		api.POST("/pipeline/monitor", pipelineHandler.RunMonitoring)
		api.POST("/pipeline/tasks", pipelineHandler.EnqueueTask)
		api.GET("/pipeline/alerts", pipelineHandler.GetAlerts)

		api.GET("/products", pipelineHandler.ListProducts)
		api.GET("/agents", pipelineHandler.ListAgents)
		api.GET("/templates", pipelineHandler.ListTemplates)
		api.POST("/templates", pipelineHandler.CreateTemplate)

		api.POST("/feedback/posts", feedbackHandler.RecordPost)
		api.GET("/feedback/posts", feedbackHandler.ListPosts)
		api.PUT("/feedback/posts/:id/metrics", feedbackHandler.UpdateMetrics)
		api.PUT("/feedback/external/:externalId/metrics", feedbackHandler.UpdateMetricsByExternalID)
		api.GET("/feedback/analysis", feedbackHandler.GetAnalysis)
		api.GET("/feedback/context", feedbackHandler.GetContext)
		api.GET("/feedback/stats", feedbackHandler.GetStats)

		api.GET("/tools", toolHandler.List)
		api.POST("/tools/invoke", toolHandler.Invoke)
	}
}

// buildModelClient 创建推理服务客户端
func buildModelClient(cfg *config.Config) (aiinterface.ModelClient, error) {
	client, err := openai.NewClient(&aiinterface.ClientConfig{
		Provider:   "openai",
		APIKey:     cfg.AI.OpenAI.APIKey,
		BaseURL:    cfg.AI.OpenAI.BaseURL,
		Model:      cfg.AI.OpenAI.Model,
		OrgID:      cfg.AI.OpenAI.OrgID,
		MaxRetries: cfg.AI.OpenAI.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("创建模型客户端失败: %w", err)
	}
	return client, nil
}

// buildSignalSources 按配置创建抓取信号源
func buildSignalSources(cfg *config.Config) []hunter.SignalSource {
	if cfg.Pipeline.Hunter.SearchBaseURL == "" {
		return nil
	}
	return []hunter.SignalSource{
		hunter.NewScraper(hunter.ScraperConfig{
			SourceName:     "reddit",
			BaseURL:        cfg.Pipeline.Hunter.SearchBaseURL,
			AllowedDomains: cfg.Pipeline.Hunter.AllowedDomains,
		}),
	}
}
