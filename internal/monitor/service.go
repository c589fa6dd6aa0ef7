package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/pipeline"
)

// HealthCheck 单个产品的一次探测结果
type HealthCheck struct {
	ProductID    string                `json:"productId"`
	ProductName  string                `json:"productName"`
	Status       pipeline.HealthStatus `json:"status"`
	ResponseTime int64                 `json:"responseTimeMs"`
	CheckedAt    time.Time             `json:"checkedAt"`
	Error        string                `json:"error,omitempty"`
}

// MonitoringSummary 一轮巡检的汇总
type MonitoringSummary struct {
	Total        int           `json:"total"`
	Healthy      int           `json:"healthy"`
	Degraded     int           `json:"degraded"`
	Down         int           `json:"down"`
	TotalRevenue float64       `json:"totalRevenue"`
	TotalUsers   int           `json:"totalUsers"`
	Checks       []HealthCheck `json:"checks"`
	RanAt        time.Time     `json:"ranAt"`
}

// Alert 巡检告警
type Alert struct {
	Level     string `json:"level"` // error / warning
	ProductID string `json:"productId"`
	Message   string `json:"message"`
}

// Service 产品巡检服务：对 active 产品做 HEAD 探测并更新健康记录。
// 巡检只写健康字段，不触碰产品的生命周期状态。
type Service struct {
	store      *pipeline.Store
	client     *http.Client
	timeout    time.Duration
	healthyMs  int64
	log        *zap.Logger
	mu         sync.RWMutex
	lastResult *MonitoringSummary
}

// NewService 创建巡检服务。timeout 为单次探测超时，healthyMs 为健康响应时间上限（毫秒）
func NewService(store *pipeline.Store, timeout time.Duration, healthyMs int64) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if healthyMs <= 0 {
		healthyMs = 2000
	}
	return &Service{
		store:     store,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		healthyMs: healthyMs,
		log:       logger.Get().Named("monitor"),
	}
}

// RunMonitoringCycle 对全部 active 产品执行一轮巡检
func (s *Service) RunMonitoringCycle(ctx context.Context) (*MonitoringSummary, error) {
	products, err := s.store.ListProducts(ctx, pipeline.ProductActive)
	if err != nil {
		return nil, err
	}

	summary := &MonitoringSummary{RanAt: time.Now().UTC()}
	for i := range products {
		p := &products[i]
		check := s.probe(ctx, p)
		summary.Checks = append(summary.Checks, check)
		summary.Total++
		switch check.Status {
		case pipeline.HealthHealthy:
			summary.Healthy++
		case pipeline.HealthDegraded:
			summary.Degraded++
		case pipeline.HealthDown:
			summary.Down++
		}
		summary.TotalRevenue += p.Revenue
		summary.TotalUsers += p.Users
		metrics.HealthChecksTotal.WithLabelValues(string(check.Status)).Inc()

		now := check.CheckedAt
		p.HealthStatus = check.Status
		p.LastCheck = &now
		if check.Status != pipeline.HealthDown {
			p.LastActive = &now
		}
		if err := s.store.SaveProduct(ctx, p); err != nil {
			s.log.Warn("写入健康记录失败",
				zap.String("product_id", p.ID),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.lastResult = summary
	s.mu.Unlock()

	s.log.Info("巡检完成",
		zap.Int("total", summary.Total),
		zap.Int("healthy", summary.Healthy),
		zap.Int("degraded", summary.Degraded),
		zap.Int("down", summary.Down))
	return summary, nil
}

// LastSummary 返回最近一轮巡检结果，尚未巡检过时返回 nil
func (s *Service) LastSummary() *MonitoringSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// CheckForAlerts 从巡检汇总生成告警：down 产生 error，degraded 产生 warning
func CheckForAlerts(summary *MonitoringSummary) []Alert {
	if summary == nil {
		return nil
	}
	var alerts []Alert
	for _, check := range summary.Checks {
		switch check.Status {
		case pipeline.HealthDown:
			msg := check.ProductName + " 无法访问"
			if check.Error != "" {
				msg += ": " + check.Error
			}
			alerts = append(alerts, Alert{Level: "error", ProductID: check.ProductID, Message: msg})
		case pipeline.HealthDegraded:
			alerts = append(alerts, Alert{
				Level:     "warning",
				ProductID: check.ProductID,
				Message:   check.ProductName + " 响应缓慢或状态异常",
			})
		}
	}
	return alerts
}

// probe 对单个产品做 HEAD 探测
func (s *Service) probe(ctx context.Context, p *pipeline.Product) HealthCheck {
	check := HealthCheck{
		ProductID:   p.ID,
		ProductName: p.Name,
		CheckedAt:   time.Now().UTC(),
	}
	if p.DeployURL == "" {
		check.Status = pipeline.HealthDown
		check.Error = "产品没有部署地址"
		return check
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, p.DeployURL, nil)
	if err != nil {
		check.Status = pipeline.HealthDown
		check.Error = err.Error()
		return check
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	check.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		check.Status = pipeline.HealthDown
		check.Error = err.Error()
		return check
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		check.Status = pipeline.HealthDegraded
	case check.ResponseTime < s.healthyMs:
		check.Status = pipeline.HealthHealthy
	default:
		check.Status = pipeline.HealthDegraded
	}
	return check
}
