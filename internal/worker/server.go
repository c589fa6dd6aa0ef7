package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/worker/handlers"
	"backend/internal/worker/tasks"
)

// Server asynq 任务服务器，承载流水线的后台任务
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建任务服务器并注册流水线处理器
func NewServer(
	cfg config.RedisConfig,
	hunt handlers.HuntRunner,
	monitor handlers.MonitorRunner,
	evaluate handlers.EvaluateRunner,
	logger *zap.Logger,
) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"pipeline": 6, // 搜索与评估
				"monitor":  3, // 巡检
				"default":  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	handler := handlers.NewPipelineHandler(hunt, monitor, evaluate, logger)
	mux.HandleFunc(tasks.TypeScheduledHunt, handler.HandleScheduledHunt)
	mux.HandleFunc(tasks.TypeMonitoringCycle, handler.HandleMonitoringCycle)
	mux.HandleFunc(tasks.TypeEvaluatePending, handler.HandleEvaluatePending)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("任务服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止任务服务器
func (s *Server) Shutdown() {
	s.logger.Info("任务服务器停止中...")
	s.server.Shutdown()
}
