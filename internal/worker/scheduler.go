package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/worker/tasks"
)

// Scheduler 周期任务调度器：按配置的间隔投递定时搜索与巡检任务
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// NewScheduler 创建调度器并登记周期任务
func NewScheduler(cfg *config.Config, logger *zap.Logger) (*Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		&asynq.SchedulerOpts{
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err != nil {
					logger.Error("周期任务入队失败", zap.Error(err))
				}
			},
		},
	)

	huntPayload, _ := json.Marshal(tasks.ScheduledHuntPayload{TriggeredBy: "scheduler"})
	huntSpec := fmt.Sprintf("@every %dh", cfg.Pipeline.Hunter.IntervalHours)
	if _, err := scheduler.Register(huntSpec,
		asynq.NewTask(tasks.TypeScheduledHunt, huntPayload),
		asynq.Queue("pipeline")); err != nil {
		return nil, fmt.Errorf("登记定时搜索任务失败: %w", err)
	}

	monitorPayload, _ := json.Marshal(tasks.MonitoringCyclePayload{TriggeredBy: "scheduler"})
	monitorSpec := fmt.Sprintf("@every %dm", cfg.Pipeline.Monitor.SweepIntervalMin)
	if _, err := scheduler.Register(monitorSpec,
		asynq.NewTask(tasks.TypeMonitoringCycle, monitorPayload),
		asynq.Queue("monitor")); err != nil {
		return nil, fmt.Errorf("登记巡检任务失败: %w", err)
	}

	logger.Info("周期任务已登记",
		zap.String("hunt", huntSpec),
		zap.String("monitor", monitorSpec))
	return &Scheduler{scheduler: scheduler, logger: logger}, nil
}

// Start 非阻塞启动
func (s *Scheduler) Start() error {
	s.logger.Info("周期任务调度器启动中...")
	return s.scheduler.Start()
}

// Shutdown 停止调度器
func (s *Scheduler) Shutdown() {
	s.logger.Info("周期任务调度器停止中...")
	s.scheduler.Shutdown()
}
