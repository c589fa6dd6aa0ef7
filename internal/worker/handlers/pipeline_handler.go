package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/director"
	"backend/internal/hunter"
	"backend/internal/monitor"
	"backend/internal/worker/tasks"
)

// HuntRunner 定时搜索执行器抽象，便于注入 mock
type HuntRunner interface {
	RunScheduledHunt(ctx context.Context) (*hunter.HuntResult, error)
}

// MonitorRunner 巡检执行器抽象
type MonitorRunner interface {
	RunMonitoringCycle(ctx context.Context) (*monitor.MonitoringSummary, error)
}

// EvaluateRunner 批量评估执行器抽象
type EvaluateRunner interface {
	EvaluatePending(ctx context.Context) (*director.BatchResult, error)
}

// PipelineHandler 流水线定时任务处理器
type PipelineHandler struct {
	hunt     HuntRunner
	monitor  MonitorRunner
	evaluate EvaluateRunner
	logger   *zap.Logger
}

// NewPipelineHandler 创建处理器
func NewPipelineHandler(hunt HuntRunner, monitor MonitorRunner, evaluate EvaluateRunner, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		hunt:     hunt,
		monitor:  monitor,
		evaluate: evaluate,
		logger:   logger,
	}
}

// HandleScheduledHunt 处理定时搜索任务
func (h *PipelineHandler) HandleScheduledHunt(ctx context.Context, t *asynq.Task) error {
	var p tasks.ScheduledHuntPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	result, err := h.hunt.RunScheduledHunt(ctx)
	if err != nil {
		h.logger.Error("定时搜索失败", zap.Error(err))
		return err
	}
	h.logger.Info("定时搜索任务完成",
		zap.String("triggered_by", p.TriggeredBy),
		zap.Int("found", result.OpportunitiesFound),
		zap.Int("errors", len(result.Errors)))
	return nil
}

// HandleMonitoringCycle 处理巡检任务
func (h *PipelineHandler) HandleMonitoringCycle(ctx context.Context, t *asynq.Task) error {
	var p tasks.MonitoringCyclePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	summary, err := h.monitor.RunMonitoringCycle(ctx)
	if err != nil {
		h.logger.Error("巡检任务失败", zap.Error(err))
		return err
	}
	h.logger.Info("巡检任务完成",
		zap.Int("total", summary.Total),
		zap.Int("down", summary.Down))
	return nil
}

// HandleEvaluatePending 处理批量评估任务
func (h *PipelineHandler) HandleEvaluatePending(ctx context.Context, t *asynq.Task) error {
	var p tasks.EvaluatePendingPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	result, err := h.evaluate.EvaluatePending(ctx)
	if err != nil {
		h.logger.Error("批量评估任务失败", zap.Error(err))
		return err
	}
	h.logger.Info("批量评估任务完成",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("approved", result.Approved),
		zap.Int("rejected", result.Rejected))
	return nil
}
