package feedback

import (
	"context"

	"go.uber.org/zap"

	"backend/internal/logger"
)

// NotificationPriority 通知优先级
type NotificationPriority string

const (
	PriorityLow  NotificationPriority = "low"
	PriorityHigh NotificationPriority = "high"
)

// Notification 分差通知事件
type Notification struct {
	Priority NotificationPriority `json:"priority"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	PostID   string               `json:"postId"`
}

// Notifier 分差超阈值时接收通知
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier 把通知写入结构化日志的默认实现
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Get().Named("feedback.notify")}
}

// Notify 按优先级写日志
func (n *LogNotifier) Notify(_ context.Context, notification Notification) {
	fields := []zap.Field{
		zap.String("post_id", notification.PostID),
		zap.String("priority", string(notification.Priority)),
		zap.String("message", notification.Message),
	}
	if notification.Priority == PriorityHigh {
		n.log.Warn(notification.Title, fields...)
		return
	}
	n.log.Info(notification.Title, fields...)
}
