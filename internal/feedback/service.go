package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("发布记录不存在")

// Service 发布表现反馈引擎：记录发布、回填指标、打分并沉淀经验
type Service struct {
	db           *gorm.DB
	notifier     Notifier
	capacity     int
	gapThreshold int
	log          *zap.Logger
}

// NewService 创建反馈引擎。capacity 为历史容量（默认 500），
// gapThreshold 为触发通知的分差绝对值（默认 3，超过才通知）。
func NewService(db *gorm.DB, notifier Notifier, capacity, gapThreshold int) *Service {
	if capacity <= 0 {
		capacity = 500
	}
	if gapThreshold <= 0 {
		gapThreshold = 3
	}
	return &Service{
		db:           db,
		notifier:     notifier,
		capacity:     capacity,
		gapThreshold: gapThreshold,
		log:          logger.Get().Named("feedback"),
	}
}

// AutoMigrate 迁移反馈表结构
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&PostPerformance{})
}

// RecordPost 记录一次发布，超出容量时淘汰最旧的记录
func (s *Service) RecordPost(ctx context.Context, input RecordInput) (*PostPerformance, error) {
	if input.Text == "" {
		return nil, errors.New("发布内容不能为空")
	}
	post := &PostPerformance{
		ID:             "post-" + uuid.NewString(),
		ExternalID:     input.ExternalID,
		Text:           input.Text,
		Target:         input.Target,
		Benefit:        input.Benefit,
		PredictedScore: input.PredictedScore,
		PostedAt:       input.PostedAt,
	}
	if post.PostedAt.IsZero() {
		post.PostedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("记录发布失败: %w", err)
	}
	if err := s.evictOverflow(ctx); err != nil {
		s.log.Warn("淘汰过旧记录失败", zap.Error(err))
	}
	metrics.PostsRecorded.Inc()
	return post, nil
}

// UpdateMetrics 按记录 ID 回填互动指标并计算实际分与分差
func (s *Service) UpdateMetrics(ctx context.Context, id string, m EngagementMetrics) (*PostPerformance, error) {
	var post PostPerformance
	err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询发布记录失败: %w", err)
	}
	return s.applyMetrics(ctx, &post, m)
}

// UpdateByExternalID 按平台侧 ID 回填互动指标
func (s *Service) UpdateByExternalID(ctx context.Context, externalID string, m EngagementMetrics) (*PostPerformance, error) {
	var post PostPerformance
	err := s.db.WithContext(ctx).First(&post, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询发布记录失败: %w", err)
	}
	return s.applyMetrics(ctx, &post, m)
}

func (s *Service) applyMetrics(ctx context.Context, post *PostPerformance, m EngagementMetrics) (*PostPerformance, error) {
	now := time.Now().UTC()
	post.Impressions = m.Impressions
	post.Likes = m.Likes
	post.Reshares = m.Reshares
	post.Replies = m.Replies
	post.Clicks = m.Clicks
	post.FetchedAt = &now

	actual := CalculateActualScore(m)
	gap := actual - post.PredictedScore
	post.ActualScore = &actual
	post.ScoreGap = &gap

	if err := s.db.WithContext(ctx).Save(post).Error; err != nil {
		return nil, fmt.Errorf("更新发布记录失败: %w", err)
	}

	if s.notifier != nil && (gap > s.gapThreshold || gap < -s.gapThreshold) {
		if gap > 0 {
			s.notifier.Notify(ctx, Notification{
				Priority: PriorityLow,
				Title:    "发布表现超出预期",
				Message:  fmt.Sprintf("实际分 %d 高出预测分 %d 共 %d 分", actual, post.PredictedScore, gap),
				PostID:   post.ID,
			})
		} else {
			s.notifier.Notify(ctx, Notification{
				Priority: PriorityHigh,
				Title:    "发布表现不及预期",
				Message:  fmt.Sprintf("实际分 %d 低于预测分 %d 共 %d 分", actual, post.PredictedScore, -gap),
				PostID:   post.ID,
			})
		}
	}
	return post, nil
}

// evictOverflow 删除超出容量的最旧记录
func (s *Service) evictOverflow(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&PostPerformance{}).Count(&count).Error; err != nil {
		return err
	}
	overflow := int(count) - s.capacity
	if overflow <= 0 {
		return nil
	}
	var victims []string
	err := s.db.WithContext(ctx).Model(&PostPerformance{}).
		Order("created_at ASC").
		Limit(overflow).
		Pluck("id", &victims).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&PostPerformance{}, "id IN ?", victims).Error
}
