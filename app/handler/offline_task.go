package handler

import (
	"errors"
	"net/http"
	"strconv"

	"link-porter/app/service"

	"github.com/gin-gonic/gin"
)

// OfflineTaskHandler 离线任务处理器
type OfflineTaskHandler struct {
	offlineSvc *service.OfflineTaskService
	engine     *service.WorkflowEngine
	response   *ResponseHelper
}

// NewOfflineTaskHandler 创建离线任务处理器
func NewOfflineTaskHandler(offlineSvc *service.OfflineTaskService, engine *service.WorkflowEngine) *OfflineTaskHandler {
	return &OfflineTaskHandler{
		offlineSvc: offlineSvc,
		engine:     engine,
		response:   NewResponseHelper(),
	}
}

// CreateOfflineRequest 直接提交离线下载的请求
type CreateOfflineRequest struct {
	URL    string `json:"url" binding:"required"`
	ChatID int64  `json:"chat_id"`
}

// Create 直接提交一个下载链接。走完整流水线，
// 保证供应商任务ID的绑定和对账规则与其他入口一致
func (h *OfflineTaskHandler) Create(c *gin.Context) {
	var req CreateOfflineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	result, err := h.engine.Submit(c.Request.Context(), req.ChatID, 0, req.URL)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedLink) {
			c.JSON(http.StatusBadRequest, h.response.Error(400, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "提交离线下载失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(result, "离线下载已提交"))
}

// List 分页列出离线任务，可按状态过滤
func (h *OfflineTaskHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	tasks, total, err := h.offlineSvc.List(c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询离线任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"items": tasks,
		"total": total,
	}, "success"))
}

// Get 查询单个离线任务
func (h *OfflineTaskHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的任务ID"))
		return
	}

	task, err := h.offlineSvc.Get(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, h.response.Error(404, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询离线任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(task, "success"))
}

// Cancel 取消离线任务
func (h *OfflineTaskHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的任务ID"))
		return
	}

	if err := h.offlineSvc.Cancel(uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, h.response.Error(404, err.Error()))
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, h.response.Error(409, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, h.response.Error(500, "取消离线任务失败: "+err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "离线任务已取消"))
}

// Retry 重试失败的离线任务
func (h *OfflineTaskHandler) Retry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的任务ID"))
		return
	}

	if err := h.offlineSvc.Retry(uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, h.response.Error(404, err.Error()))
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, h.response.Error(409, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, h.response.Error(500, "重试离线任务失败: "+err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "离线任务已重新排队"))
}

// Sync 立即对账一次，不等下一个周期
func (h *OfflineTaskHandler) Sync(c *gin.Context) {
	go h.offlineSvc.Reconcile()
	c.JSON(http.StatusOK, h.response.Success(nil, "对账已触发"))
}
