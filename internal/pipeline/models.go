package pipeline

import "time"

// OpportunityStatus 机会生命周期状态
type OpportunityStatus string

const (
	StatusDiscovered OpportunityStatus = "discovered"
	StatusEvaluating OpportunityStatus = "evaluating"
	StatusApproved   OpportunityStatus = "approved"
	StatusBuilding   OpportunityStatus = "building"
	StatusDeployed   OpportunityStatus = "deployed"
	StatusRejected   OpportunityStatus = "rejected"
)

// DemandLevel 需求估计等级
type DemandLevel string

const (
	DemandLow    DemandLevel = "low"
	DemandMedium DemandLevel = "medium"
	DemandHigh   DemandLevel = "high"
)

// Opportunity 业务机会
type Opportunity struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title       string `json:"title" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`

	// 来源信息
	Source    string `json:"source" gorm:"size:50;not null;index:idx_opp_source_title"` // x, reddit, trends, manual
	SourceURL string `json:"sourceUrl,omitempty" gorm:"size:512"`

	// 发现阶段提取的特征
	Keywords        []string    `json:"keywords" gorm:"serializer:json"`
	PainPoints      []string    `json:"painPoints" gorm:"serializer:json"`
	TargetAudience  string      `json:"targetAudience" gorm:"size:255"`
	EstimatedDemand DemandLevel `json:"estimatedDemand" gorm:"size:20"`

	// 标题归一化键，自动发现路径按 (source, dedup_key) 去重
	DedupKey string `json:"-" gorm:"size:255;index:idx_opp_source_title"`

	// 推荐模板（可选）
	SuggestedTemplate string `json:"suggestedTemplate,omitempty" gorm:"size:64"`

	// 生命周期：状态只能沿 discovered→evaluating→approved→building→deployed 前进，
	// rejected 仅可从 discovered/evaluating 进入；rejected 与 deployed 为终态。
	Status OpportunityStatus `json:"status" gorm:"size:20;not null;index"`

	DiscoveredAt    time.Time  `json:"discoveredAt" gorm:"not null"`
	EvaluatedAt     *time.Time `json:"evaluatedAt,omitempty"`
	EvaluationScore *int       `json:"evaluationScore,omitempty"`
	EvaluationNotes string     `json:"evaluationNotes,omitempty" gorm:"type:text"`
	RejectionReason string     `json:"rejectionReason,omitempty" gorm:"type:text"`
}

// TemplateStatus 模板状态
type TemplateStatus string

const (
	TemplateActive     TemplateStatus = "active"
	TemplateDeprecated TemplateStatus = "deprecated"
)

// Template 产品模板（被 Product 引用后不可变更）
type Template struct {
	ID                 string         `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name               string         `json:"name" gorm:"size:255;not null"`
	Description        string         `json:"description" gorm:"type:text"`
	RepoURL            string         `json:"repoUrl" gorm:"size:512"`
	Category           string         `json:"category" gorm:"size:50;index"`
	Features           []string       `json:"features" gorm:"serializer:json"`
	CustomizableFields []string       `json:"customizableFields" gorm:"serializer:json"`
	DeployTarget       string         `json:"deployTarget" gorm:"size:50"` // vercel, cloudflare, railway
	Status             TemplateStatus `json:"status" gorm:"size:20;default:active"`
	CreatedAt          time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}

// ProductStatus 产品运行状态
type ProductStatus string

const (
	ProductBuilding  ProductStatus = "building"
	ProductDeploying ProductStatus = "deploying"
	ProductActive    ProductStatus = "active"
	ProductPaused    ProductStatus = "paused"
	ProductError     ProductStatus = "error"
)

// HealthStatus 产品健康状态（由 Monitor 独家判定）
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// Product 已部署的产品实例
type Product struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name          string `json:"name" gorm:"size:255;not null"`
	Description   string `json:"description" gorm:"type:text"`
	TemplateID    string `json:"templateId" gorm:"size:64;not null;index"`
	OpportunityID string `json:"opportunityId,omitempty" gorm:"size:64;index"`

	// 生命周期状态只由 Builder（创建）或运维操作（暂停/恢复）变更，Monitor 不触碰
	Status    ProductStatus `json:"status" gorm:"size:20;not null;index"`
	DeployURL string        `json:"deployUrl" gorm:"size:512"`
	RepoURL   string        `json:"repoUrl" gorm:"size:512"`

	// 业务指标
	Users      int        `json:"users" gorm:"default:0"`
	Revenue    float64    `json:"revenue" gorm:"default:0"`
	LastActive *time.Time `json:"lastActive,omitempty"`

	// 健康记录
	HealthStatus HealthStatus `json:"healthStatus" gorm:"size:20;default:healthy"`
	LastCheck    *time.Time   `json:"lastCheck,omitempty"`
	Uptime       float64      `json:"uptime" gorm:"default:100"` // 百分比

	Customizations map[string]string `json:"customizations,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time         `json:"createdAt" gorm:"autoCreateTime"`
}

// AgentRole 编排角色
type AgentRole string

const (
	RoleDirector  AgentRole = "director"
	RoleHunter    AgentRole = "hunter"
	RoleDashboard AgentRole = "dashboard"
	RoleBuilder   AgentRole = "builder"
)

// AgentStatus 角色运行状态
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentError   AgentStatus = "error"
	AgentActive  AgentStatus = "active"
)

// AgentState 角色状态记录，每个编排角色一行，是系统可观测性的唯一事实来源
type AgentState struct {
	Role        AgentRole   `json:"role" gorm:"primaryKey;size:20"`
	Name        string      `json:"name" gorm:"size:100"`
	Status      AgentStatus `json:"status" gorm:"size:20;not null"`
	CurrentTask string      `json:"currentTask,omitempty" gorm:"size:512"`
	LastActive  *time.Time  `json:"lastActive,omitempty"`

	// 角色计数器
	TasksCompleted     int `json:"tasksCompleted" gorm:"default:0"`
	OpportunitiesFound int `json:"opportunitiesFound" gorm:"default:0"`
	ProductsBuilt      int `json:"productsBuilt" gorm:"default:0"`

	// Hunter 的定时搜索调度（仅 hunter 角色使用）
	IntervalHours int        `json:"intervalHours,omitempty" gorm:"default:0"`
	LastRun       *time.Time `json:"lastRun,omitempty"`
	NextRun       *time.Time `json:"nextRun,omitempty"`

	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (AgentState) TableName() string {
	return "agent_states"
}
