package builder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/pipeline"
)

// RepoCloner 从模板仓库生成产品仓库
type RepoCloner interface {
	// Clone 以模板仓库为底创建新仓库，返回新仓库地址
	Clone(ctx context.Context, templateRepoURL, productName string) (string, error)
}

// Customizer 向产品仓库写入定制内容
type Customizer interface {
	// Apply 把定制字段写入仓库
	Apply(ctx context.Context, repoURL string, customizations map[string]string) error
}

// DeployTarget 部署目标平台
type DeployTarget interface {
	// Deploy 部署仓库并返回公网访问地址
	Deploy(ctx context.Context, repoURL, productName string) (string, error)
}

// BuildConfig 一次构建的输入。
// TemplateID/ProductName 可缺省，调用方缺省时用评估阶段产出的构建规格补齐。
type BuildConfig struct {
	OpportunityID  string            `json:"opportunityId" binding:"required"`
	TemplateID     string            `json:"templateId"`
	ProductName    string            `json:"productName"`
	Description    string            `json:"description"`
	Customizations map[string]string `json:"customizations"`
}

// BuildResult 构建结果，Logs 保留每一步的轨迹
type BuildResult struct {
	Success   bool              `json:"success"`
	ProductID string            `json:"productId,omitempty"`
	Product   *pipeline.Product `json:"product,omitempty"`
	Error     string            `json:"error,omitempty"`
	Logs      []string          `json:"logs"`
}

// Service 产品构建服务：模板解析 → 仓库克隆 → 定制 → 部署
type Service struct {
	store      *pipeline.Store
	cloner     RepoCloner
	customizer Customizer
	deployer   DeployTarget
	log        *zap.Logger
}

// NewService 创建构建服务
func NewService(store *pipeline.Store, cloner RepoCloner, customizer Customizer, deployer DeployTarget) *Service {
	return &Service{
		store:      store,
		cloner:     cloner,
		customizer: customizer,
		deployer:   deployer,
		log:        logger.Get().Named("builder"),
	}
}

// BuildProduct 执行四步构建流程。任一步失败立即中止：
// 已完成的外部副作用不回滚，机会保持 approved，不创建产品记录。
func (s *Service) BuildProduct(ctx context.Context, cfg BuildConfig) (*BuildResult, error) {
	result := &BuildResult{}
	trail := func(format string, args ...interface{}) {
		result.Logs = append(result.Logs, fmt.Sprintf(format, args...))
	}
	fail := func(err error) (*BuildResult, error) {
		result.Error = err.Error()
		trail("构建失败: %v", err)
		metrics.ProductsBuilt.WithLabelValues("failed").Inc()
		s.log.Error("产品构建失败",
			zap.String("opportunity_id", cfg.OpportunityID),
			zap.Error(err))
		return result, nil
	}

	if strings.TrimSpace(cfg.ProductName) == "" {
		return nil, fmt.Errorf("产品名称不能为空")
	}
	if strings.TrimSpace(cfg.TemplateID) == "" {
		return nil, fmt.Errorf("模板 ID 不能为空")
	}
	opp, err := s.store.GetOpportunity(ctx, cfg.OpportunityID)
	if err != nil {
		return nil, err
	}
	if opp.Status != pipeline.StatusApproved && opp.Status != pipeline.StatusBuilding {
		return nil, fmt.Errorf("机会 %s 当前状态为 %s，仅已批准的机会可构建", opp.ID, opp.Status)
	}

	_ = s.store.TouchAgent(ctx, pipeline.RoleBuilder, pipeline.AgentWorking, "构建产品: "+cfg.ProductName)
	defer func() {
		_ = s.store.TouchAgent(ctx, pipeline.RoleBuilder, pipeline.AgentIdle, "")
	}()

	start := time.Now()
	defer func() {
		metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}()

	// 第一步：解析模板
	tpl, err := s.store.GetTemplate(ctx, cfg.TemplateID)
	if err != nil {
		return fail(fmt.Errorf("解析模板失败: %w", err))
	}
	if tpl.Status != pipeline.TemplateActive {
		return fail(fmt.Errorf("模板 %s 已废弃，不可用于构建", tpl.ID))
	}
	trail("第 1/4 步：模板 %s (%s) 解析成功", tpl.Name, tpl.ID)

	// 第二步：克隆仓库
	repoURL, err := s.cloner.Clone(ctx, tpl.RepoURL, cfg.ProductName)
	if err != nil {
		return fail(fmt.Errorf("克隆模板仓库失败: %w", err))
	}
	trail("第 2/4 步：仓库已创建 %s", repoURL)

	// 第三步：写入定制内容
	if err := s.customizer.Apply(ctx, repoURL, cfg.Customizations); err != nil {
		return fail(fmt.Errorf("写入定制内容失败: %w", err))
	}
	trail("第 3/4 步：定制内容已写入（%d 个字段）", len(cfg.Customizations))

	// 第四步：部署
	deployURL, err := s.deployer.Deploy(ctx, repoURL, cfg.ProductName)
	if err != nil {
		return fail(fmt.Errorf("部署失败: %w", err))
	}
	trail("第 4/4 步：已部署 %s", deployURL)

	// 四步全部成功后才创建产品并推进机会状态
	now := time.Now().UTC()
	product := &pipeline.Product{
		Name:           cfg.ProductName,
		Description:    cfg.Description,
		TemplateID:     tpl.ID,
		OpportunityID:  opp.ID,
		Status:         pipeline.ProductActive,
		DeployURL:      deployURL,
		RepoURL:        repoURL,
		HealthStatus:   pipeline.HealthHealthy,
		LastCheck:      &now,
		Uptime:         100,
		Customizations: cfg.Customizations,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return fail(err)
	}
	if _, err := s.store.Transition(ctx, opp.ID, pipeline.StatusDeployed, ""); err != nil {
		return fail(err)
	}
	if err := s.bumpCounter(ctx); err != nil {
		s.log.Warn("更新角色计数失败", zap.Error(err))
	}

	result.Success = true
	result.ProductID = product.ID
	result.Product = product
	trail("构建完成，产品 %s 已上线", product.ID)
	metrics.ProductsBuilt.WithLabelValues("success").Inc()
	s.log.Info("产品构建完成",
		zap.String("product_id", product.ID),
		zap.String("deploy_url", deployURL))
	return result, nil
}

func (s *Service) bumpCounter(ctx context.Context) error {
	state, err := s.store.GetAgentState(ctx, pipeline.RoleBuilder)
	if err != nil {
		return err
	}
	state.ProductsBuilt++
	state.TasksCompleted++
	return s.store.SaveAgentState(ctx, state)
}
