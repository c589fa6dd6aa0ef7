package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Store 流水线持久化层，按记录族提供 CRUD
type Store struct {
	db *gorm.DB
}

// NewStore 创建存储层
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层数据库句柄
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate 迁移流水线表结构
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&Opportunity{},
		&Template{},
		&Product{},
		&AgentState{},
	)
}

var dedupPattern = regexp.MustCompile(`[^a-z0-9\p{Han}]+`)

// NormalizeTitle 生成去重键：小写、去标点、压缩空白
func NormalizeTitle(title string) string {
	key := strings.ToLower(strings.TrimSpace(title))
	key = dedupPattern.ReplaceAllString(key, " ")
	return strings.Join(strings.Fields(key), " ")
}

// ---- Opportunity ----

// CreateOpportunity 创建机会记录，ID 为空时自动生成
func (s *Store) CreateOpportunity(ctx context.Context, opp *Opportunity) error {
	if opp.ID == "" {
		opp.ID = "opp-" + uuid.NewString()
	}
	if opp.Status == "" {
		opp.Status = StatusDiscovered
	}
	if opp.DiscoveredAt.IsZero() {
		opp.DiscoveredAt = time.Now().UTC()
	}
	if opp.DedupKey == "" {
		opp.DedupKey = NormalizeTitle(opp.Title)
	}
	if err := s.db.WithContext(ctx).Create(opp).Error; err != nil {
		return fmt.Errorf("创建机会失败: %w", err)
	}
	return nil
}

// GetOpportunity 按 ID 查询机会
func (s *Store) GetOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	var opp Opportunity
	err := s.db.WithContext(ctx).First(&opp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询机会失败: %w", err)
	}
	return &opp, nil
}

// FindOpportunityBySourceTitle 按来源与归一化标题查找，用于自动发现去重
func (s *Store) FindOpportunityBySourceTitle(ctx context.Context, source, title string) (*Opportunity, error) {
	var opp Opportunity
	err := s.db.WithContext(ctx).
		Where("source = ? AND dedup_key = ?", source, NormalizeTitle(title)).
		First(&opp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询机会失败: %w", err)
	}
	return &opp, nil
}

// ListOpportunities 按状态列出机会，status 为空时返回全部，按发现时间倒序
func (s *Store) ListOpportunities(ctx context.Context, status OpportunityStatus) ([]Opportunity, error) {
	var opps []Opportunity
	q := s.db.WithContext(ctx).Order("discovered_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&opps).Error; err != nil {
		return nil, fmt.Errorf("查询机会列表失败: %w", err)
	}
	return opps, nil
}

// SaveOpportunity 持久化机会的全部字段
func (s *Store) SaveOpportunity(ctx context.Context, opp *Opportunity) error {
	if err := s.db.WithContext(ctx).Save(opp).Error; err != nil {
		return fmt.Errorf("更新机会失败: %w", err)
	}
	return nil
}

// DeleteOpportunity 删除机会记录
func (s *Store) DeleteOpportunity(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Opportunity{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("删除机会失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Template ----

// CreateTemplate 创建模板
func (s *Store) CreateTemplate(ctx context.Context, tpl *Template) error {
	if tpl.ID == "" {
		tpl.ID = "tpl-" + uuid.NewString()
	}
	if tpl.Status == "" {
		tpl.Status = TemplateActive
	}
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return fmt.Errorf("创建模板失败: %w", err)
	}
	return nil
}

// GetTemplate 按 ID 查询模板
func (s *Store) GetTemplate(ctx context.Context, id string) (*Template, error) {
	var tpl Template
	err := s.db.WithContext(ctx).First(&tpl, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询模板失败: %w", err)
	}
	return &tpl, nil
}

// ListTemplates 列出模板，category 为空时返回全部
func (s *Store) ListTemplates(ctx context.Context, category string) ([]Template, error) {
	var tpls []Template
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&tpls).Error; err != nil {
		return nil, fmt.Errorf("查询模板列表失败: %w", err)
	}
	return tpls, nil
}

// UpdateTemplateStatus 变更模板状态（active/deprecated）
func (s *Store) UpdateTemplateStatus(ctx context.Context, id string, status TemplateStatus) error {
	res := s.db.WithContext(ctx).Model(&Template{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("更新模板状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate 删除模板；已被产品引用的模板不可删除
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Product{}).
		Where("template_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("查询模板引用失败: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("模板 %s 已被 %d 个产品引用，不可删除", id, count)
	}
	res := s.db.WithContext(ctx).Delete(&Template{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("删除模板失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Product ----

// CreateProduct 创建产品实例
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = "prod-" + uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProductBuilding
	}
	if p.HealthStatus == "" {
		p.HealthStatus = HealthHealthy
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("创建产品失败: %w", err)
	}
	return nil
}

// GetProduct 按 ID 查询产品
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询产品失败: %w", err)
	}
	return &p, nil
}

// ListProducts 按状态列出产品，status 为空时返回全部
func (s *Store) ListProducts(ctx context.Context, status ProductStatus) ([]Product, error) {
	var products []Product
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("查询产品列表失败: %w", err)
	}
	return products, nil
}

// SaveProduct 持久化产品的全部字段
func (s *Store) SaveProduct(ctx context.Context, p *Product) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("更新产品失败: %w", err)
	}
	return nil
}

// UpdateProductStatus 变更产品运行状态
func (s *Store) UpdateProductStatus(ctx context.Context, id string, status ProductStatus) error {
	res := s.db.WithContext(ctx).Model(&Product{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("更新产品状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- AgentState ----

// GetAgentState 查询角色状态
func (s *Store) GetAgentState(ctx context.Context, role AgentRole) (*AgentState, error) {
	var state AgentState
	err := s.db.WithContext(ctx).First(&state, "role = ?", role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询角色状态失败: %w", err)
	}
	return &state, nil
}

// ListAgentStates 列出全部角色状态
func (s *Store) ListAgentStates(ctx context.Context) ([]AgentState, error) {
	var states []AgentState
	if err := s.db.WithContext(ctx).Order("role ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("查询角色状态列表失败: %w", err)
	}
	return states, nil
}

// SaveAgentState 写入角色状态，不存在时创建
func (s *Store) SaveAgentState(ctx context.Context, state *AgentState) error {
	if err := s.db.WithContext(ctx).Save(state).Error; err != nil {
		return fmt.Errorf("更新角色状态失败: %w", err)
	}
	return nil
}

// SeedAgentStates 初始化四个编排角色的状态行，已存在的行保持不变
func (s *Store) SeedAgentStates(ctx context.Context) error {
	seeds := []AgentState{
		{Role: RoleDirector, Name: "Director", Status: AgentIdle},
		{Role: RoleHunter, Name: "Hunter", Status: AgentIdle},
		{Role: RoleDashboard, Name: "Dashboard", Status: AgentActive},
		{Role: RoleBuilder, Name: "Builder", Status: AgentIdle},
	}
	for i := range seeds {
		err := s.db.WithContext(ctx).
			Where("role = ?", seeds[i].Role).
			FirstOrCreate(&seeds[i]).Error
		if err != nil {
			return fmt.Errorf("初始化角色状态失败: %w", err)
		}
	}
	return nil
}

// TouchAgent 更新角色的状态与当前任务，并刷新活跃时间
func (s *Store) TouchAgent(ctx context.Context, role AgentRole, status AgentStatus, task string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&AgentState{}).
		Where("role = ?", role).
		Updates(map[string]interface{}{
			"status":       status,
			"current_task": task,
			"last_active":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("更新角色状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
