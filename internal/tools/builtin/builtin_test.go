package builtin

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"backend/internal/builder"
	"backend/internal/director"
	"backend/internal/feedback"
	"backend/internal/hunter"
	"backend/internal/logger"
	"backend/internal/monitor"
	"backend/internal/pipeline"
	"backend/internal/tools"
	"backend/pkg/aiinterface"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

// stubModel 按调用场景返回预置内容：评估提示词返回结论，规格提示词返回构建规格
type stubModel struct{ content, specContent string }

func (s *stubModel) ChatCompletion(_ context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	content := s.content
	if s.specContent != "" && len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "产品负责人") {
		content = s.specContent
	}
	return &aiinterface.ChatCompletionResponse{Model: "stub", Content: content}, nil
}
func (s *stubModel) Name() string { return "stub" }
func (s *stubModel) Close() error { return nil }

type noopCloner struct{}

func (noopCloner) Clone(_ context.Context, _, name string) (string, error) {
	return "https://repo.example.com/products/" + name, nil
}

type noopCustomizer struct{}

func (noopCustomizer) Apply(_ context.Context, _ string, _ map[string]string) error { return nil }

type noopDeployer struct{}

func (noopDeployer) Deploy(_ context.Context, _, name string) (string, error) {
	slug := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	return "https://" + slug + ".example.app", nil
}

func newTestEnv(t *testing.T) (*pipeline.Store, *tools.Dispatcher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	store := pipeline.NewStore(db)
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, store.SeedAgentStates(context.Background()))

	feedbackSvc := feedback.NewService(db, nil, 500, 3)
	require.NoError(t, feedbackSvc.AutoMigrate())

	model := &stubModel{
		content:     `{"criteria":{"marketSize":8,"competition":6,"feasibility":9,"profitPotential":7,"timeToMarket":9},"reasoning":"ok","approved":true}`,
		specContent: `{"name":"Quick Invoice","tagline":"拍照即记账","targetAudience":"自由职业者","coreFeatures":["发票识别"],"monetization":"订阅制","templateId":"tpl-tool"}`,
	}
	svcs := Services{
		Director: director.NewService(store, model, feedbackSvc, time.Millisecond),
		Hunter:   hunter.NewService(store, nil, nil, time.Hour),
		Builder:  builder.NewService(store, noopCloner{}, noopCustomizer{}, noopDeployer{}),
		Monitor:  monitor.NewService(store, time.Second, 2000),
		Feedback: feedbackSvc,
	}

	registry := tools.NewRegistry()
	require.NoError(t, RegisterAll(registry, svcs))
	return store, tools.NewDispatcher(registry)
}

func TestRegisterAllExportsOperations(t *testing.T) {
	_, dispatcher := newTestEnv(t)

	ops := dispatcher.ListOperations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	assert.Contains(t, names, "director_evaluate_opportunity")
	assert.Contains(t, names, "director_evaluate_pending")
	assert.Contains(t, names, "hunter_add_opportunity")
	assert.Contains(t, names, "hunter_run_hunt")
	assert.Contains(t, names, "builder_build_product")
	assert.Contains(t, names, "monitor_run_cycle")
	assert.Contains(t, names, "monitor_get_summary")
	assert.Contains(t, names, "feedback_record_post")
	assert.Contains(t, names, "feedback_update_metrics")
	assert.Contains(t, names, "feedback_analyze")
	assert.Contains(t, names, "feedback_get_context")
}

// 端到端：手工录入 → 评估批准 → 构建部署，全程走调度器
func TestPipelineEndToEnd(t *testing.T) {
	store, dispatcher := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTemplate(ctx, &pipeline.Template{
		ID:      "tpl-tool",
		Name:    "SaaS Tool",
		RepoURL: "https://repo.example.com/templates/saas-tool",
	}))

	// 录入
	result, err := dispatcher.Invoke(ctx, "hunter_add_opportunity", map[string]interface{}{
		"title":       "发票扫描工具",
		"description": "拍照自动识别发票",
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	opp := result.Data.(*pipeline.Opportunity)

	// 评估
	result, err = dispatcher.Invoke(ctx, "director_evaluate_opportunity", map[string]interface{}{
		"opportunityId": opp.ID,
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusApproved, got.Status)

	// 构建：不传模板与名称，由评估产出的构建规格补齐
	result, err = dispatcher.Invoke(ctx, "builder_build_product", map[string]interface{}{
		"opportunityId": opp.ID,
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	got, err = store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusDeployed, got.Status)

	products, err := store.ListProducts(ctx, pipeline.ProductActive)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Quick Invoice", products[0].Name)
	assert.Equal(t, "https://quick-invoice.example.app", products[0].DeployURL)
}

func TestFeedbackThroughDispatcher(t *testing.T) {
	_, dispatcher := newTestEnv(t)
	ctx := context.Background()

	result, err := dispatcher.Invoke(ctx, "feedback_record_post", map[string]interface{}{
		"text":           "Automate your invoices today",
		"externalId":     "x-42",
		"predictedScore": float64(8),
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	result, err = dispatcher.Invoke(ctx, "feedback_update_metrics", map[string]interface{}{
		"externalId":  "x-42",
		"impressions": float64(1000),
		"likes":       float64(50),
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	post := result.Data.(*feedback.PostPerformance)
	assert.Equal(t, 15, *post.ActualScore)
}
