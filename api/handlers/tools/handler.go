package tools

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/tools"
)

// Handler 工具调度 Handler
type Handler struct {
	dispatcher *tools.Dispatcher
}

// NewHandler 创建 Handler
func NewHandler(dispatcher *tools.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// InvokeRequest 工具调用请求
type InvokeRequest struct {
	Name   string                 `json:"name" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// List 列出全部可调用操作
// @Summary 列出操作
// @Tags Tools
// @Produce json
// @Router /api/tools [get]
func (h *Handler) List(c *gin.Context) {
	ops := h.dispatcher.ListOperations()
	c.JSON(http.StatusOK, gin.H{"operations": ops, "total": len(ops)})
}

// Invoke 调用一个操作
// @Summary 调用操作
// @Tags Tools
// @Accept json
// @Produce json
// @Router /api/tools/invoke [post]
func (h *Handler) Invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Invoke(c.Request.Context(), req.Name, req.Params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
