package hunter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/pipeline"
)

// SignalSource 信号源：按查询词返回市场信号
type SignalSource interface {
	// Search 搜索一个查询词，返回命中的信号列表
	Search(ctx context.Context, query string) ([]Signal, error)
	// Name 返回来源标识（写入 Opportunity.Source）
	Name() string
}

// ManualInput 手工录入的机会
type ManualInput struct {
	Title          string   `json:"title" binding:"required"`
	Description    string   `json:"description"`
	TargetAudience string   `json:"targetAudience"`
	PainPoints     []string `json:"painPoints"`
	Keywords       []string `json:"keywords"`
}

// HuntResult 一次定时搜索的结果
type HuntResult struct {
	OpportunitiesFound int                    `json:"opportunitiesFound"`
	Opportunities      []pipeline.Opportunity `json:"opportunities"`
	Errors             []string               `json:"errors,omitempty"`
}

// 搜索短语基表，与限定词做笛卡尔积生成查询词
var basePhrases = []string{
	"i wish there was",
	"why is there no",
	"looking for a simple",
	"can't find a good",
}

// Service 机会搜寻服务
type Service struct {
	store      *pipeline.Store
	sources    []SignalSource
	qualifiers []string
	interval   time.Duration
	log        *zap.Logger
}

// NewService 创建搜寻服务，interval 为定时搜索周期
func NewService(store *pipeline.Store, sources []SignalSource, qualifiers []string, interval time.Duration) *Service {
	if len(qualifiers) == 0 {
		qualifiers = []string{"app", "tool", "saas"}
	}
	if interval <= 0 {
		interval = 4 * time.Hour
	}
	return &Service{
		store:      store,
		sources:    sources,
		qualifiers: qualifiers,
		interval:   interval,
		log:        logger.Get().Named("hunter"),
	}
}

// AddManual 手工录入机会：需求固定为 medium，类目与推荐模板自动推断
func (s *Service) AddManual(ctx context.Context, input ManualInput) (*pipeline.Opportunity, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("机会标题不能为空")
	}

	category := InferCategory(input.Title + " " + input.Description)
	opp := &pipeline.Opportunity{
		Title:             input.Title,
		Description:       input.Description,
		Source:            "manual",
		TargetAudience:    input.TargetAudience,
		PainPoints:        input.PainPoints,
		Keywords:          input.Keywords,
		EstimatedDemand:   pipeline.DemandMedium,
		SuggestedTemplate: SuggestTemplate(category),
		Status:            pipeline.StatusDiscovered,
		DiscoveredAt:      time.Now().UTC(),
	}
	if err := s.store.CreateOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	if err := s.bumpFound(ctx, 1); err != nil {
		s.log.Warn("更新角色计数失败", zap.Error(err))
	}
	metrics.OpportunitiesDiscovered.WithLabelValues("manual").Inc()
	s.log.Info("手工录入机会", zap.String("opportunity_id", opp.ID), zap.String("title", opp.Title))
	return opp, nil
}

// RunScheduledHunt 执行一轮定时搜索：对每个信号源跑全部查询词，
// 去重后落库，并刷新 hunter 角色的调度时间。
func (s *Service) RunScheduledHunt(ctx context.Context) (*HuntResult, error) {
	_ = s.store.TouchAgent(ctx, pipeline.RoleHunter, pipeline.AgentWorking, "定时搜索中")
	defer func() {
		_ = s.store.TouchAgent(ctx, pipeline.RoleHunter, pipeline.AgentIdle, "")
	}()

	result := &HuntResult{}
	for _, source := range s.sources {
		for _, query := range s.buildQueries() {
			signals, err := source.Search(ctx, query)
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s 搜索 %q 失败: %v", source.Name(), query, err))
				continue
			}
			for _, sig := range signals {
				opp, err := s.ingestSignal(ctx, sig)
				if err != nil {
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				if opp != nil {
					result.Opportunities = append(result.Opportunities, *opp)
					result.OpportunitiesFound++
				}
			}
		}
	}

	if err := s.updateSchedule(ctx, result.OpportunitiesFound); err != nil {
		s.log.Warn("更新调度状态失败", zap.Error(err))
	}
	s.log.Info("定时搜索完成",
		zap.Int("found", result.OpportunitiesFound),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// ingestSignal 把单条信号转化为机会；与已有记录重复时返回 (nil, nil)
func (s *Service) ingestSignal(ctx context.Context, sig Signal) (*pipeline.Opportunity, error) {
	if strings.TrimSpace(sig.Title) == "" {
		return nil, nil
	}
	if _, err := s.store.FindOpportunityBySourceTitle(ctx, sig.Source, sig.Title); err == nil {
		return nil, nil
	} else if !errors.Is(err, pipeline.ErrNotFound) {
		return nil, err
	}

	category := InferCategory(sig.Title + " " + sig.Text)
	opp := &pipeline.Opportunity{
		Title:             sig.Title,
		Description:       sig.Text,
		Source:            sig.Source,
		SourceURL:         sig.URL,
		PainPoints:        ExtractPainPoints(sig.Text),
		EstimatedDemand:   EstimateDemand(sig.Engagement, sig.Source),
		SuggestedTemplate: SuggestTemplate(category),
		Status:            pipeline.StatusDiscovered,
		DiscoveredAt:      time.Now().UTC(),
	}
	if err := s.store.CreateOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	metrics.OpportunitiesDiscovered.WithLabelValues(sig.Source).Inc()
	return opp, nil
}

func (s *Service) buildQueries() []string {
	queries := make([]string, 0, len(basePhrases)*len(s.qualifiers))
	for _, phrase := range basePhrases {
		for _, q := range s.qualifiers {
			queries = append(queries, phrase+" "+q)
		}
	}
	return queries
}

func (s *Service) updateSchedule(ctx context.Context, found int) error {
	state, err := s.store.GetAgentState(ctx, pipeline.RoleHunter)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	next := now.Add(s.interval)
	state.LastRun = &now
	state.NextRun = &next
	state.IntervalHours = int(s.interval / time.Hour)
	state.OpportunitiesFound += found
	state.TasksCompleted++
	return s.store.SaveAgentState(ctx, state)
}

func (s *Service) bumpFound(ctx context.Context, n int) error {
	state, err := s.store.GetAgentState(ctx, pipeline.RoleHunter)
	if err != nil {
		return err
	}
	state.OpportunitiesFound += n
	return s.store.SaveAgentState(ctx, state)
}
