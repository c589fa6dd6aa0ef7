package feedback

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend/internal/feedback"
)

// Handler 发布反馈 Handler
type Handler struct {
	service *feedback.Service
}

// NewHandler 创建 Handler
func NewHandler(service *feedback.Service) *Handler {
	return &Handler{service: service}
}

// RecordPost 记录发布
// @Summary 记录发布
// @Tags Feedback
// @Accept json
// @Produce json
// @Router /api/feedback/posts [post]
func (h *Handler) RecordPost(c *gin.Context) {
	var input feedback.RecordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.service.RecordPost(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// ListPosts 列出发布记录
// @Summary 列出发布记录
// @Tags Feedback
// @Produce json
// @Param limit query int false "数量上限"
// @Router /api/feedback/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	posts, err := h.service.ListPosts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// UpdateMetrics 按记录 ID 回填互动指标
// @Summary 回填指标
// @Tags Feedback
// @Accept json
// @Produce json
// @Router /api/feedback/posts/{id}/metrics [put]
func (h *Handler) UpdateMetrics(c *gin.Context) {
	var m feedback.EngagementMetrics
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.service.UpdateMetrics(c.Request.Context(), c.Param("id"), m)
	if errors.Is(err, feedback.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "发布记录不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// UpdateMetricsByExternalID 按平台侧 ID 回填互动指标
// @Summary 按外部 ID 回填指标
// @Tags Feedback
// @Accept json
// @Produce json
// @Router /api/feedback/external/{externalId}/metrics [put]
func (h *Handler) UpdateMetricsByExternalID(c *gin.Context) {
	var m feedback.EngagementMetrics
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.service.UpdateByExternalID(c.Request.Context(), c.Param("externalId"), m)
	if errors.Is(err, feedback.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "发布记录不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

// GetAnalysis 表现分析
// @Summary 表现分析
// @Tags Feedback
// @Produce json
// @Router /api/feedback/analysis [get]
func (h *Handler) GetAnalysis(c *gin.Context) {
	analysis, err := h.service.AnalyzePerformance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

// GetContext 经验摘要
// @Summary 经验摘要
// @Tags Feedback
// @Produce json
// @Router /api/feedback/context [get]
func (h *Handler) GetContext(c *gin.Context) {
	learned, err := h.service.GetLearnedContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"context": learned})
}

// GetStats 汇总统计
// @Summary 汇总统计
// @Tags Feedback
// @Produce json
// @Router /api/feedback/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
