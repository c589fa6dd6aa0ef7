package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"backend/internal/config"
	"backend/internal/worker/tasks"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueScheduledHunt(triggeredBy string) error
	EnqueueMonitoringCycle(triggeredBy string) error
	EnqueueEvaluatePending(triggeredBy string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueScheduledHunt(triggeredBy string) error {
	return c.enqueue(tasks.TypeScheduledHunt, tasks.ScheduledHuntPayload{TriggeredBy: triggeredBy}, "pipeline")
}

func (c *asynqClient) EnqueueMonitoringCycle(triggeredBy string) error {
	return c.enqueue(tasks.TypeMonitoringCycle, tasks.MonitoringCyclePayload{TriggeredBy: triggeredBy}, "monitor")
}

func (c *asynqClient) EnqueueEvaluatePending(triggeredBy string) error {
	return c.enqueue(tasks.TypeEvaluatePending, tasks.EvaluatePendingPayload{TriggeredBy: triggeredBy}, "pipeline")
}

func (c *asynqClient) enqueue(taskType string, payload interface{}, queue string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化任务载荷失败: %w", err)
	}
	if _, err := c.client.Enqueue(asynq.NewTask(taskType, data), asynq.Queue(queue)); err != nil {
		return fmt.Errorf("投递任务 %s 失败: %w", taskType, err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
