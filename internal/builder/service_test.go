package builder

import (
	"context"
	"errors"
	"os"
	"testing"

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

type fakeCloner struct {
	repoURL string
	err     error
	calls   int
}

func (f *fakeCloner) Clone(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.repoURL, f.err
}

type fakeCustomizer struct {
	applied map[string]string
	err     error
}

func (f *fakeCustomizer) Apply(_ context.Context, _ string, customizations map[string]string) error {
	f.applied = customizations
	return f.err
}

type fakeDeployer struct {
	url   string
	err   error
	calls int
}

func (f *fakeDeployer) Deploy(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.url, f.err
}

func seedApproved(t *testing.T, store *pipeline.Store) (*pipeline.Opportunity, *pipeline.Template) {
	t.Helper()
	ctx := context.Background()
	opp := &pipeline.Opportunity{Title: "发票工具", Source: "manual", Status: pipeline.StatusApproved}
	require.NoError(t, store.CreateOpportunity(ctx, opp))
	tpl := &pipeline.Template{
		Name:    "SaaS Tool",
		RepoURL: "https://repo.example.com/templates/saas-tool",
	}
	require.NoError(t, store.CreateTemplate(ctx, tpl))
	return opp, tpl
}

func TestBuildProductSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opp, tpl := seedApproved(t, store)

	cloner := &fakeCloner{repoURL: "https://repo.example.com/products/quick-invoice"}
	customizer := &fakeCustomizer{}
	deployer := &fakeDeployer{url: "https://quick-invoice.example.app"}
	svc := NewService(store, cloner, customizer, deployer)

	result, err := svc.BuildProduct(ctx, BuildConfig{
		OpportunityID:  opp.ID,
		TemplateID:     tpl.ID,
		ProductName:    "Quick Invoice",
		Customizations: map[string]string{"tagline": "发票一拍即录"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, result.Logs, 5)
	require.NotNil(t, result.Product)
	assert.Equal(t, pipeline.ProductActive, result.Product.Status)
	assert.Equal(t, pipeline.HealthHealthy, result.Product.HealthStatus)
	assert.Equal(t, float64(100), result.Product.Uptime)
	assert.Equal(t, "https://quick-invoice.example.app", result.Product.DeployURL)
	assert.Equal(t, map[string]string{"tagline": "发票一拍即录"}, customizer.applied)

	// 机会推进到 deployed
	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusDeployed, got.Status)

	state, err := store.GetAgentState(ctx, pipeline.RoleBuilder)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ProductsBuilt)
}

func TestBuildProductCloneFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opp, tpl := seedApproved(t, store)

	cloner := &fakeCloner{err: errors.New("仓库服务不可用")}
	deployer := &fakeDeployer{url: "https://x.example.app"}
	svc := NewService(store, cloner, &fakeCustomizer{}, deployer)

	result, err := svc.BuildProduct(ctx, BuildConfig{
		OpportunityID: opp.ID,
		TemplateID:    tpl.ID,
		ProductName:   "Doomed",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "克隆模板仓库失败")
	// 第二步失败后不再执行后续步骤
	assert.Zero(t, deployer.calls)

	// 不创建产品记录，机会保持 approved
	products, err := store.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, products)

	got, err := store.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusApproved, got.Status)
}

func TestBuildProductDeployFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opp, tpl := seedApproved(t, store)

	svc := NewService(store,
		&fakeCloner{repoURL: "https://repo.example.com/products/x"},
		&fakeCustomizer{},
		&fakeDeployer{err: errors.New("部署平台超时")})

	result, err := svc.BuildProduct(ctx, BuildConfig{
		OpportunityID: opp.ID,
		TemplateID:    tpl.ID,
		ProductName:   "X",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "部署失败")

	products, err := store.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestBuildProductWrongStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opp := &pipeline.Opportunity{Title: "t", Source: "manual"} // discovered
	require.NoError(t, store.CreateOpportunity(ctx, opp))
	tpl := &pipeline.Template{Name: "T"}
	require.NoError(t, store.CreateTemplate(ctx, tpl))

	cloner := &fakeCloner{repoURL: "https://r.example.com/x"}
	svc := NewService(store, cloner, &fakeCustomizer{}, &fakeDeployer{url: "https://x.app"})

	_, err := svc.BuildProduct(ctx, BuildConfig{
		OpportunityID: opp.ID,
		TemplateID:    tpl.ID,
		ProductName:   "X",
	})
	assert.Error(t, err)
	assert.Zero(t, cloner.calls)
}

func TestBuildProductDeprecatedTemplate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	opp, tpl := seedApproved(t, store)
	require.NoError(t, store.UpdateTemplateStatus(ctx, tpl.ID, pipeline.TemplateDeprecated))

	svc := NewService(store,
		&fakeCloner{repoURL: "https://r.example.com/x"},
		&fakeCustomizer{},
		&fakeDeployer{url: "https://x.app"})

	result, err := svc.BuildProduct(ctx, BuildConfig{
		OpportunityID: opp.ID,
		TemplateID:    tpl.ID,
		ProductName:   "X",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "已废弃")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "quick-invoice", slugify("Quick Invoice"))
	assert.Equal(t, "a-b-2", slugify("  A—B 2! "))
}

func TestTemplateRepoPath(t *testing.T) {
	assert.Equal(t, "templates/saas-tool", templateRepoPath("https://repo.example.com/templates/saas-tool"))
	assert.Equal(t, "templates/saas-tool", templateRepoPath("https://repo.example.com/templates/saas-tool.git"))
	assert.Equal(t, "", templateRepoPath("nonsense"))
}
