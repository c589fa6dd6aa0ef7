package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/builder"
	"backend/internal/director"
	"backend/internal/hunter"
	"backend/internal/infra/queue"
	"backend/internal/monitor"
	"backend/internal/pipeline"
)

// Handler 流水线 Handler
type Handler struct {
	store    *pipeline.Store
	hunter   *hunter.Service
	director *director.Service
	builder  *builder.Service
	monitor  *monitor.Service
	queue    queue.Client
}

// NewHandler 创建 Handler
func NewHandler(
	store *pipeline.Store,
	hunterSvc *hunter.Service,
	directorSvc *director.Service,
	builderSvc *builder.Service,
	monitorSvc *monitor.Service,
	queueClient queue.Client,
) *Handler {
	return &Handler{
		store:    store,
		hunter:   hunterSvc,
		director: directorSvc,
		builder:  builderSvc,
		monitor:  monitorSvc,
		queue:    queueClient,
	}
}

// CreateOpportunity 手工录入机会
// @Summary 手工录入机会
// @Tags Pipeline
// @Accept json
// @Produce json
// @Router /api/opportunities [post]
func (h *Handler) CreateOpportunity(c *gin.Context) {
	var input hunter.ManualInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opp, err := h.hunter.AddManual(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"opportunity": opp})
}

// ListOpportunities 按状态列出机会
// @Summary 列出机会
// @Tags Pipeline
// @Produce json
// @Param status query string false "状态过滤"
// @Router /api/opportunities [get]
func (h *Handler) ListOpportunities(c *gin.Context) {
	status := pipeline.OpportunityStatus(c.Query("status"))
	opps, err := h.store.ListOpportunities(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opps, "total": len(opps)})
}

// GetOpportunity 查询单个机会
// @Summary 查询机会
// @Tags Pipeline
// @Produce json
// @Router /api/opportunities/{id} [get]
func (h *Handler) GetOpportunity(c *gin.Context) {
	opp, err := h.store.GetOpportunity(c.Request.Context(), c.Param("id"))
	if errors.Is(err, pipeline.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "机会不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunity": opp})
}

// EvaluateOpportunity 评估单个机会
// @Summary 评估机会
// @Tags Pipeline
// @Produce json
// @Router /api/opportunities/{id}/evaluate [post]
func (h *Handler) EvaluateOpportunity(c *gin.Context) {
	result, err := h.director.EvaluateOpportunity(c.Request.Context(), c.Param("id"))
	if errors.Is(err, pipeline.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "机会不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// EvaluatePending 批量评估待处理机会
// @Summary 批量评估
// @Tags Pipeline
// @Produce json
// @Router /api/pipeline/evaluate-pending [post]
func (h *Handler) EvaluatePending(c *gin.Context) {
	result, err := h.director.EvaluatePending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// RunHunt 立即执行一轮搜索
// @Summary 立即搜索
// @Tags Pipeline
// @Produce json
// @Router /api/pipeline/hunt [post]
func (h *Handler) RunHunt(c *gin.Context) {
	result, err := h.hunter.RunScheduledHunt(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// BuildProduct 构建并部署产品。
// 未显式给出 templateId/productName 时，按评估阶段产出的构建规格补齐。
// @Summary 构建产品
// @Tags Pipeline
// @Accept json
// @Produce json
// @Router /api/pipeline/build [post]
func (h *Handler) BuildProduct(c *gin.Context) {
	var cfg builder.BuildConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if cfg.TemplateID == "" || cfg.ProductName == "" {
		spec, err := h.director.GenerateProductSpec(c.Request.Context(), cfg.OpportunityID)
		if errors.Is(err, pipeline.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "机会不存在"})
			return
		}
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		cfg = mergeSpec(cfg, spec)
	}

	result, err := h.builder.BuildProduct(c.Request.Context(), cfg)
	if errors.Is(err, pipeline.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadGateway, gin.H{"result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// RunMonitoring 立即执行一轮巡检
// @Summary 立即巡检
// @Tags Pipeline
// @Produce json
// @Router /api/pipeline/monitor [post]
func (h *Handler) RunMonitoring(c *gin.Context) {
	summary, err := h.monitor.RunMonitoringCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// GetAlerts 返回最近一轮巡检产生的告警
// @Summary 巡检告警
// @Tags Pipeline
// @Produce json
// @Router /api/pipeline/alerts [get]
func (h *Handler) GetAlerts(c *gin.Context) {
	summary := h.monitor.LastSummary()
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []monitor.Alert{}, "message": "尚未执行过巡检"})
		return
	}
	alerts := monitor.CheckForAlerts(summary)
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "ranAt": summary.RanAt})
}

// EnqueueTask 异步投递流水线任务
// @Summary 异步投递任务
// @Tags Pipeline
// @Accept json
// @Produce json
// @Router /api/pipeline/tasks [post]
func (h *Handler) EnqueueTask(c *gin.Context) {
	var req struct {
		Task string `json:"task" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务队列未启用"})
		return
	}

	var err error
	switch req.Task {
	case "hunt":
		err = h.queue.EnqueueScheduledHunt("manual")
	case "monitor":
		err = h.queue.EnqueueMonitoringCycle("manual")
	case "evaluate-pending":
		err = h.queue.EnqueueEvaluatePending("manual")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知任务类型: " + req.Task})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task": req.Task, "status": "queued"})
}

// ListProducts 列出产品
// @Summary 列出产品
// @Tags Pipeline
// @Produce json
// @Param status query string false "状态过滤"
// @Router /api/products [get]
func (h *Handler) ListProducts(c *gin.Context) {
	status := pipeline.ProductStatus(c.Query("status"))
	products, err := h.store.ListProducts(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

// ListAgents 列出编排角色状态
// @Summary 角色状态
// @Tags Pipeline
// @Produce json
// @Router /api/agents [get]
func (h *Handler) ListAgents(c *gin.Context) {
	states, err := h.store.ListAgentStates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": states})
}

// ListTemplates 列出模板
// @Summary 列出模板
// @Tags Pipeline
// @Produce json
// @Param category query string false "类目过滤"
// @Router /api/templates [get]
func (h *Handler) ListTemplates(c *gin.Context) {
	tpls, err := h.store.ListTemplates(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": tpls})
}

// CreateTemplate 登记模板
// @Summary 登记模板
// @Tags Pipeline
// @Accept json
// @Produce json
// @Router /api/templates [post]
func (h *Handler) CreateTemplate(c *gin.Context) {
	var tpl pipeline.Template
	if err := c.ShouldBindJSON(&tpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if tpl.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "模板名称不能为空"})
		return
	}
	if err := h.store.CreateTemplate(c.Request.Context(), &tpl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": tpl})
}

// mergeSpec 用构建规格补齐缺省字段，显式传入的参数优先。
func mergeSpec(cfg builder.BuildConfig, spec *director.ProductSpec) builder.BuildConfig {
	derived := spec.BuildConfig(cfg.OpportunityID)
	if cfg.TemplateID != "" {
		derived.TemplateID = cfg.TemplateID
	}
	if cfg.ProductName != "" {
		derived.ProductName = cfg.ProductName
	}
	if cfg.Description != "" {
		derived.Description = cfg.Description
	}
	for k, v := range cfg.Customizations {
		if derived.Customizations == nil {
			derived.Customizations = map[string]string{}
		}
		derived.Customizations[k] = v
	}
	return derived
}
