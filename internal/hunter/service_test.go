package hunter

import (
	"context"
	"errors"
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
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stderr")
	os.Exit(m.Run())
}

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

// fakeSource 返回固定信号的信号源
type fakeSource struct {
	name    string
	signals []Signal
	err     error
	queries []string
}

func (f *fakeSource) Search(_ context.Context, query string) ([]Signal, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.signals, nil
}

func (f *fakeSource) Name() string { return f.name }

func TestAddManual(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil, nil, time.Hour)
	ctx := context.Background()

	opp, err := svc.AddManual(ctx, ManualInput{
		Title:          "发票扫描工具",
		Description:    "invoice 拍照自动识别金额",
		TargetAudience: "自由职业者",
		PainPoints:     []string{"手工录入发票太慢"},
		Keywords:       []string{"invoice", "ocr"},
	})
	require.NoError(t, err)

	assert.Equal(t, "manual", opp.Source)
	assert.Equal(t, pipeline.DemandMedium, opp.EstimatedDemand)
	assert.Equal(t, pipeline.StatusDiscovered, opp.Status)
	// "invoice" 命中 finance 类目，推荐 tool 模板
	assert.Equal(t, "tool", opp.SuggestedTemplate)

	state, err := store.GetAgentState(ctx, pipeline.RoleHunter)
	require.NoError(t, err)
	assert.Equal(t, 1, state.OpportunitiesFound)
}

func TestAddManualEmptyTitle(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, nil, nil, time.Hour)

	_, err := svc.AddManual(context.Background(), ManualInput{Title: "   "})
	assert.Error(t, err)
}

func TestRunScheduledHunt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := &fakeSource{
		name: "reddit",
		signals: []Signal{
			{Title: "Need a simple invoice tool", Text: "I hate doing invoices by hand. Takes forever every month.", Source: "reddit", Engagement: 150},
			{Title: "Habit tracker idea", Text: "i wish there was a habit app that just works", Source: "reddit", Engagement: 20},
		},
	}
	svc := NewService(store, []SignalSource{source}, []string{"tool"}, 4*time.Hour)

	result, err := svc.RunScheduledHunt(ctx)
	require.NoError(t, err)

	// 每个查询词都返回同样两条信号，但去重后只落库两条
	assert.Equal(t, 2, result.OpportunitiesFound)
	assert.Empty(t, result.Errors)
	assert.Len(t, source.queries, len(basePhrases))

	opps, err := store.ListOpportunities(ctx, pipeline.StatusDiscovered)
	require.NoError(t, err)
	require.Len(t, opps, 2)

	byTitle := map[string]pipeline.Opportunity{}
	for _, o := range opps {
		byTitle[o.Title] = o
	}
	invoice := byTitle["Need a simple invoice tool"]
	// 150 × 0.9 = 135 > 100 → high
	assert.Equal(t, pipeline.DemandHigh, invoice.EstimatedDemand)
	assert.NotEmpty(t, invoice.PainPoints)

	habit := byTitle["Habit tracker idea"]
	// 20 × 0.9 = 18 ≤ 30 → low
	assert.Equal(t, pipeline.DemandLow, habit.EstimatedDemand)

	state, err := store.GetAgentState(ctx, pipeline.RoleHunter)
	require.NoError(t, err)
	assert.NotNil(t, state.LastRun)
	assert.NotNil(t, state.NextRun)
	assert.Equal(t, 4, state.IntervalHours)
	assert.Equal(t, 2, state.OpportunitiesFound)
	assert.Equal(t, 1, state.TasksCompleted)
}

func TestRunScheduledHuntSourceError(t *testing.T) {
	store := newTestStore(t)

	bad := &fakeSource{name: "x", err: errors.New("连接超时")}
	good := &fakeSource{
		name:    "reddit",
		signals: []Signal{{Title: "good signal", Text: "text", Source: "reddit", Engagement: 50}},
	}
	svc := NewService(store, []SignalSource{bad, good}, []string{"tool"}, time.Hour)

	result, err := svc.RunScheduledHunt(context.Background())
	require.NoError(t, err)

	// 坏信号源不阻塞好信号源
	assert.Equal(t, 1, result.OpportunitiesFound)
	assert.Len(t, result.Errors, len(basePhrases))
}

func TestEstimateDemand(t *testing.T) {
	cases := []struct {
		engagement int
		source     string
		want       pipeline.DemandLevel
	}{
		{200, "x", pipeline.DemandHigh},     // 200×1.0 > 100
		{101, "x", pipeline.DemandHigh},     // 101×1.0 > 100
		{50, "x", pipeline.DemandMedium},    // 50×1.0 > 30
		{40, "reddit", pipeline.DemandMedium}, // 40×0.9 = 36 > 30
		{30, "x", pipeline.DemandLow},       // 边界不含
		{10, "trends", pipeline.DemandLow},
		{150, "unknown", pipeline.DemandMedium}, // 150×0.5 = 75
	}
	for _, c := range cases {
		assert.Equal(t, c.want, EstimateDemand(c.engagement, c.source), "%d/%s", c.engagement, c.source)
	}
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "finance", InferCategory("simple Invoice scanner"))
	assert.Equal(t, "productivity", InferCategory("shared todo list for couples"))
	assert.Equal(t, "general", InferCategory("something uncategorized"))

	// 多类目同时命中时按关键词表顺序取靠前者，重复调用结果一致
	multi := "invoice reminder todo app"
	for i := 0; i < 20; i++ {
		assert.Equal(t, "productivity", InferCategory(multi))
	}
}

func TestExtractPainPoints(t *testing.T) {
	text := "I hate doing invoices by hand. The weather is nice today. Filing taxes takes forever!"
	points := ExtractPainPoints(text)
	require.Len(t, points, 2)
	assert.Contains(t, points[0], "hate")
	assert.Contains(t, points[1], "takes forever")

	assert.Empty(t, ExtractPainPoints("everything is great"))
}

func TestParseEngagement(t *testing.T) {
	assert.Equal(t, 42, parseEngagement("42"))
	assert.Equal(t, 1200, parseEngagement("1.2k"))
	assert.Equal(t, 3000000, parseEngagement("3M"))
	assert.Equal(t, 0, parseEngagement(""))
	assert.Equal(t, 0, parseEngagement("n/a"))
}
