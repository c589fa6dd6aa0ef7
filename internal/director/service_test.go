package director

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"backend/internal/logger"
	"backend/internal/pipeline"
	"backend/pkg/aiinterface"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

// stubClient 返回固定内容的模型客户端
type stubClient struct {
	content string
	err     error
	calls   int
}

func (s *stubClient) ChatCompletion(_ context.Context, _ *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &aiinterface.ChatCompletionResponse{
		Model:   "stub",
		Content: s.content,
	}, nil
}

func (s *stubClient) Name() string { return "stub" }
func (s *stubClient) Close() error { return nil }

func newTestStore(t *testing.T) *pipeline.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	store := pipeline.NewStore(db)
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, store.SeedAgentStates(context.Background()))
	return store
}

const approvedVerdict = `{"criteria":{"marketSize":8,"competition":6,"feasibility":9,"profitPotential":7,"timeToMarket":9},"reasoning":"模板化实现成本低","approved":true,"spec":{"name":"发票跟踪工具","tagline":"给自由职业者的发票追踪器","targetAudience":"自由职业者","coreFeatures":["发票录入","到期提醒"],"differentiators":["零配置上手"],"monetization":"订阅制","templateId":"tpl-tool","customizations":{"accent":"blue"}}}`

const rejectedVerdict = `{"criteria":{"marketSize":2,"competition":3,"feasibility":4,"profitPotential":2,"timeToMarket":5},"reasoning":"市场太小","approved":false}`

func TestEvaluateOpportunityApproved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "发票跟踪", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	svc := NewService(store, &stubClient{content: approvedVerdict}, nil, time.Millisecond)
	res, err := svc.EvaluateOpportunity(ctx, opp.ID)
	require.NoError(t, err)

	assert.True(t, res.Approved)
	assert.Equal(t, 39, res.Score)
	assert.Equal(t, "模板化实现成本低", res.Reasoning)
	require.NotNil(t, res.Spec)
	assert.Equal(t, "发票跟踪工具", res.Spec.Name)
	assert.Equal(t, "tpl-tool", res.Spec.TemplateID)
	assert.Equal(t, map[string]string{"accent": "blue"}, res.Spec.Customizations)

	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusApproved, got.Status)
	require.NotNil(t, got.EvaluationScore)
	assert.Equal(t, 39, *got.EvaluationScore)
	assert.NotNil(t, got.EvaluatedAt)

	state, err := store.GetAgentState(ctx, pipeline.RoleDirector)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TasksCompleted)
}

func TestEvaluateOpportunityRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "小众工具", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	svc := NewService(store, &stubClient{content: rejectedVerdict}, nil, time.Millisecond)
	res, err := svc.EvaluateOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.False(t, res.Approved)

	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusRejected, got.Status)
	assert.Equal(t, "市场太小", got.RejectionReason)
}

func TestEvaluateOpportunityMalformedOutput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "test", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	svc := NewService(store, &stubClient{content: "抱歉，我无法评估这个机会。"}, nil, time.Millisecond)
	_, err := svc.EvaluateOpportunity(ctx, opp.ID)
	assert.Error(t, err)

	// 解析失败不触发状态迁移
	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusDiscovered, got.Status)
	assert.Nil(t, got.EvaluationScore)
}

func TestEvaluateOpportunityWrongStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "test", Source: "manual", Status: pipeline.StatusDeployed}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	client := &stubClient{content: approvedVerdict}
	svc := NewService(store, client, nil, time.Millisecond)
	_, err := svc.EvaluateOpportunity(ctx, opp.ID)
	assert.Error(t, err)
	assert.Zero(t, client.calls)
}

func TestEvaluatePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateOpportunity(ctx, &pipeline.Opportunity{Title: title, Source: "manual"}))
	}
	// 已批准的不参与批量评估
	require.NoError(t, store.CreateOpportunity(ctx, &pipeline.Opportunity{
		Title: "d", Source: "manual", Status: pipeline.StatusApproved,
	}))

	client := &stubClient{content: approvedVerdict}
	svc := NewService(store, client, nil, time.Millisecond)
	res, err := svc.EvaluatePending(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 3, res.Approved)
	assert.Equal(t, 0, res.Rejected)
	assert.Equal(t, 3, client.calls)
}

// seqClient 按调用顺序返回预置内容
type seqClient struct {
	contents []string
	calls    int
}

func (s *seqClient) ChatCompletion(_ context.Context, _ *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	content := s.contents[s.calls%len(s.contents)]
	s.calls++
	return &aiinterface.ChatCompletionResponse{Model: "stub", Content: content}, nil
}

func (s *seqClient) Name() string { return "stub" }
func (s *seqClient) Close() error { return nil }

func TestEvaluatePendingCountsAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateOpportunity(ctx, &pipeline.Opportunity{Title: title, Source: "manual"}))
	}

	// 第二个机会的模型输出不可解析，Evaluated 仍计全部尝试
	client := &seqClient{contents: []string{approvedVerdict, "抱歉，我无法评估。", rejectedVerdict}}
	svc := NewService(store, client, nil, time.Millisecond)
	res, err := svc.EvaluatePending(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 1, res.Approved)
	assert.Equal(t, 1, res.Rejected)
}

func TestGenerateProductSpec(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "test", Source: "manual", Status: pipeline.StatusApproved}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	specJSON := `{"name":"发票跟踪工具","tagline":"给自由职业者的发票追踪器","targetAudience":"自由职业者","coreFeatures":["发票录入"],"monetization":"订阅制","templateId":"tpl-tool","customizations":{"accent":"blue"}}`
	svc := NewService(store, &stubClient{content: specJSON}, nil, time.Millisecond)
	spec, err := svc.GenerateProductSpec(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "发票跟踪工具", spec.Name)
	assert.Equal(t, "tpl-tool", spec.TemplateID)

	cfg := spec.BuildConfig(opp.ID)
	assert.Equal(t, opp.ID, cfg.OpportunityID)
	assert.Equal(t, "发票跟踪工具", cfg.ProductName)
	assert.Equal(t, "tpl-tool", cfg.TemplateID)
	assert.Equal(t, map[string]string{"accent": "blue"}, cfg.Customizations)

	// 未批准的机会不能生成构建规格
	opp2 := &pipeline.Opportunity{Title: "t2", Source: "manual"}
	require.NoError(t, store.CreateOpportunity(ctx, opp2))
	_, err = svc.GenerateProductSpec(ctx, opp2.ID)
	assert.Error(t, err)
}

func TestGenerateProductSpecMissingTemplate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "test", Source: "manual", Status: pipeline.StatusApproved}
	require.NoError(t, store.CreateOpportunity(ctx, opp))

	// 模型产出缺模板 ID 时报错而不是带着空配置继续
	svc := NewService(store, &stubClient{content: `{"name":"工具","tagline":"x"}`}, nil, time.Millisecond)
	_, err := svc.GenerateProductSpec(ctx, opp.ID)
	assert.Error(t, err)
}

func TestParseVerdict(t *testing.T) {
	// JSON 外有包裹文字时仍能提取
	v, err := parseVerdict("评估结果如下：\n```json\n" + approvedVerdict + "\n```")
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.Equal(t, 39, v.Criteria.Sum())
	require.NotNil(t, v.Spec)
	assert.Equal(t, "tpl-tool", v.Spec.TemplateID)
	assert.Equal(t, []string{"发票录入", "到期提醒"}, v.Spec.CoreFeatures)

	// 拒绝结论可以没有 spec
	v, err = parseVerdict(rejectedVerdict)
	require.NoError(t, err)
	assert.Nil(t, v.Spec)

	// 缺少 approved 字段
	_, err = parseVerdict(`{"criteria":{"marketSize":5,"competition":5,"feasibility":5,"profitPotential":5,"timeToMarket":5},"reasoning":"x"}`)
	assert.Error(t, err)

	// 分数越界
	_, err = parseVerdict(`{"criteria":{"marketSize":11,"competition":5,"feasibility":5,"profitPotential":5,"timeToMarket":5},"approved":true}`)
	assert.Error(t, err)

	// 完全没有 JSON
	_, err = parseVerdict("无法评估")
	assert.Error(t, err)
}
