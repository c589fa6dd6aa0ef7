package director

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"backend/internal/builder"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/pipeline"
	"backend/pkg/aiinterface"
)

// ContextProvider 提供历史发布表现沉淀出的经验上下文，用于偏置评估提示词
type ContextProvider interface {
	GetLearnedContext(ctx context.Context) (string, error)
}

// Criteria 五维评估标准，每项 1-10 分
type Criteria struct {
	MarketSize      int `json:"marketSize"`
	Competition     int `json:"competition"`
	Feasibility     int `json:"feasibility"`
	ProfitPotential int `json:"profitPotential"`
	TimeToMarket    int `json:"timeToMarket"`
}

// Sum 五项之和（5-50）
func (c Criteria) Sum() int {
	return c.MarketSize + c.Competition + c.Feasibility + c.ProfitPotential + c.TimeToMarket
}

// ProductSpec 批准时模型给出的构建规格，构建服务按其字段落地
type ProductSpec struct {
	Name            string            `json:"name"`
	Tagline         string            `json:"tagline"`
	TargetAudience  string            `json:"targetAudience"`
	CoreFeatures    []string          `json:"coreFeatures"`
	Differentiators []string          `json:"differentiators"`
	Monetization    string            `json:"monetization"`
	TemplateID      string            `json:"templateId"`
	Customizations  map[string]string `json:"customizations"`
}

// BuildConfig 把规格转换为构建服务的输入
func (sp *ProductSpec) BuildConfig(opportunityID string) builder.BuildConfig {
	return builder.BuildConfig{
		OpportunityID:  opportunityID,
		TemplateID:     sp.TemplateID,
		ProductName:    sp.Name,
		Description:    sp.Tagline,
		Customizations: sp.Customizations,
	}
}

// EvaluationResult 单次机会评估结果
type EvaluationResult struct {
	OpportunityID string       `json:"opportunityId"`
	Approved      bool         `json:"approved"`
	Score         int          `json:"score"`
	Criteria      Criteria     `json:"criteria"`
	Reasoning     string       `json:"reasoning"`
	Spec          *ProductSpec `json:"spec,omitempty"`
}

// BatchResult 批量评估结果
type BatchResult struct {
	Evaluated int `json:"evaluated"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
}

// Service 机会评估服务：调用推理模型对机会打分并推进生命周期
type Service struct {
	store   *pipeline.Store
	client  aiinterface.ModelClient
	learned ContextProvider
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewService 创建评估服务，batchDelay 控制批量评估中相邻两次模型调用的间隔
func NewService(store *pipeline.Store, client aiinterface.ModelClient, learned ContextProvider, batchDelay time.Duration) *Service {
	if batchDelay <= 0 {
		batchDelay = time.Second
	}
	return &Service{
		store:   store,
		client:  client,
		learned: learned,
		limiter: rate.NewLimiter(rate.Every(batchDelay), 1),
		log:     logger.Get().Named("director"),
	}
}

// EvaluateOpportunity 评估单个机会并根据结论推进到 approved 或 rejected。
// 仅接受 discovered/evaluating 状态的机会；模型返回的 approved 布尔值是唯一裁决依据。
func (s *Service) EvaluateOpportunity(ctx context.Context, id string) (*EvaluationResult, error) {
	opp, err := s.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp.Status != pipeline.StatusDiscovered && opp.Status != pipeline.StatusEvaluating {
		return nil, fmt.Errorf("机会 %s 当前状态为 %s，不可评估", id, opp.Status)
	}

	_ = s.store.TouchAgent(ctx, pipeline.RoleDirector, pipeline.AgentWorking, "评估机会: "+opp.Title)
	defer func() {
		_ = s.store.TouchAgent(ctx, pipeline.RoleDirector, pipeline.AgentIdle, "")
	}()

	templates, err := s.store.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}

	learnedCtx := ""
	if s.learned != nil {
		if lc, lerr := s.learned.GetLearnedContext(ctx); lerr == nil {
			learnedCtx = lc
		}
	}

	start := time.Now()
	verdict, err := s.callModel(ctx, buildEvaluationPrompt(opp, templates, learnedCtx))
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	score := verdict.Criteria.Sum()
	result := &EvaluationResult{
		OpportunityID: opp.ID,
		Approved:      verdict.Approved,
		Score:         score,
		Criteria:      verdict.Criteria,
		Reasoning:     verdict.Reasoning,
		Spec:          verdict.Spec,
	}

	target := pipeline.StatusApproved
	if !verdict.Approved {
		target = pipeline.StatusRejected
	}
	if !pipeline.CanTransition(opp.Status, target) {
		return nil, &pipeline.ErrInvalidTransition{From: opp.Status, To: target}
	}
	opp.EvaluationScore = &score
	if err := s.store.SaveOpportunity(ctx, opp); err != nil {
		return nil, err
	}
	// 状态推进与结论落库统一走 Transition
	if _, err := s.store.Transition(ctx, opp.ID, target, verdict.Reasoning); err != nil {
		return nil, err
	}
	if err := s.bumpCounter(ctx); err != nil {
		s.log.Warn("更新角色计数失败", zap.Error(err))
	}

	decision := "rejected"
	if verdict.Approved {
		decision = "approved"
	}
	metrics.EvaluationsTotal.WithLabelValues(decision).Inc()
	s.log.Info("机会评估完成",
		zap.String("opportunity_id", opp.ID),
		zap.String("decision", decision),
		zap.Int("score", score))
	return result, nil
}

// EvaluatePending 顺序评估全部 discovered 状态的机会，单条失败记录日志后跳过
func (s *Service) EvaluatePending(ctx context.Context) (*BatchResult, error) {
	pending, err := s.store.ListOpportunities(ctx, pipeline.StatusDiscovered)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for i := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}
		// Evaluated 统计尝试次数，失败项体现为与 approved+rejected 的差值
		result.Evaluated++
		res, err := s.EvaluateOpportunity(ctx, pending[i].ID)
		if err != nil {
			s.log.Warn("批量评估中单条失败",
				zap.String("opportunity_id", pending[i].ID),
				zap.Error(err))
			continue
		}
		if res.Approved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}
	return result, nil
}

// GenerateProductSpec 为已批准的机会重新生成构建规格
func (s *Service) GenerateProductSpec(ctx context.Context, id string) (*ProductSpec, error) {
	opp, err := s.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp.Status != pipeline.StatusApproved {
		return nil, fmt.Errorf("机会 %s 当前状态为 %s，仅已批准的机会可生成构建规格", id, opp.Status)
	}

	resp, err := s.client.ChatCompletion(ctx, &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{
			{Role: "system", Content: specSystemPrompt},
			{Role: "user", Content: buildSpecPrompt(opp)},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("生成构建规格失败: %w", err)
	}
	if resp.Content == "" {
		return nil, errors.New("模型未返回构建规格")
	}

	raw, err := extractJSON(resp.Content)
	if err != nil {
		return nil, err
	}
	var spec ProductSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("解析构建规格失败: %w", err)
	}
	if spec.Name == "" || spec.TemplateID == "" {
		return nil, errors.New("构建规格缺少产品名称或模板 ID")
	}
	return &spec, nil
}

func (s *Service) bumpCounter(ctx context.Context) error {
	state, err := s.store.GetAgentState(ctx, pipeline.RoleDirector)
	if err != nil {
		return err
	}
	state.TasksCompleted++
	return s.store.SaveAgentState(ctx, state)
}

func (s *Service) callModel(ctx context.Context, prompt string) (*verdict, error) {
	resp, err := s.client.ChatCompletion(ctx, &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{
			{Role: "system", Content: evaluationSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("模型调用失败: %w", err)
	}
	if resp.Content == "" {
		return nil, errors.New("模型未返回任何内容")
	}
	return parseVerdict(resp.Content)
}
