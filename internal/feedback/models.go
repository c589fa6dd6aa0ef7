package feedback

import "time"

// PostPerformance 一条已发布内容的表现记录。
// 记录只增不改写（指标回填除外），容量超限时淘汰最旧的记录。
type PostPerformance struct {
	ID         string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ExternalID string `json:"externalId,omitempty" gorm:"size:128;index"` // 发布平台侧的 ID，用于回填关联
	Text       string `json:"text" gorm:"type:text"`
	Target     string `json:"target,omitempty" gorm:"size:100"`  // 目标人群标签
	Benefit    string `json:"benefit,omitempty" gorm:"size:255"` // 主打卖点

	PredictedScore int       `json:"predictedScore"` // 发布前的预测分（0-15）
	PostedAt       time.Time `json:"postedAt"`

	// 平台回填的互动指标
	Impressions int `json:"impressions" gorm:"default:0"`
	Likes       int `json:"likes" gorm:"default:0"`
	Reshares    int `json:"reshares" gorm:"default:0"`
	Replies     int `json:"replies" gorm:"default:0"`
	Clicks      int `json:"clicks" gorm:"default:0"`

	// 指标回填后计算
	ActualScore *int       `json:"actualScore,omitempty"`
	ScoreGap    *int       `json:"scoreGap,omitempty"` // 实际分 - 预测分
	FetchedAt   *time.Time `json:"fetchedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;index"`
}

// TableName 指定表名
func (PostPerformance) TableName() string {
	return "post_performances"
}

// EngagementMetrics 平台回填的互动指标
type EngagementMetrics struct {
	Impressions int `json:"impressions"`
	Likes       int `json:"likes"`
	Reshares    int `json:"reshares"`
	Replies     int `json:"replies"`
	Clicks      int `json:"clicks"`
}

// RecordInput 发布记录入参
type RecordInput struct {
	ExternalID     string    `json:"externalId"`
	Text           string    `json:"text" binding:"required"`
	Target         string    `json:"target"`
	Benefit        string    `json:"benefit"`
	PredictedScore int       `json:"predictedScore"`
	PostedAt       time.Time `json:"postedAt"`
}

// Patterns 从历史表现中归纳出的模式
type Patterns struct {
	WinningHooks    []string `json:"winningHooks"`
	WinningTargets  []string `json:"winningTargets"`
	WinningBenefits []string `json:"winningBenefits"`
	LosingHooks     []string `json:"losingHooks"`
}

// Analysis 表现分析结果
type Analysis struct {
	TotalScored int               `json:"totalScored"`
	TopPosts    []PostPerformance `json:"topPosts"`
	BottomPosts []PostPerformance `json:"bottomPosts"`
	Patterns    Patterns          `json:"patterns"`
	Insights    []string          `json:"insights"`
}

// Stats 汇总统计
type Stats struct {
	TotalPosts       int     `json:"totalPosts"`
	ScoredPosts      int     `json:"scoredPosts"`
	AvgActualScore   float64 `json:"avgActualScore"`
	AvgPredictError  float64 `json:"avgPredictError"` // 平均 |实际-预测|
	TotalImpressions int     `json:"totalImpressions"`
}
