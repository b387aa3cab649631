package handler

import (
	"errors"
	"net/http"
	"strconv"

	"link-porter/app/service"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler 任务流水线处理器
type WorkflowHandler struct {
	engine   *service.WorkflowEngine
	response *ResponseHelper
}

// NewWorkflowHandler 创建任务流水线处理器
func NewWorkflowHandler(engine *service.WorkflowEngine) *WorkflowHandler {
	return &WorkflowHandler{
		engine:   engine,
		response: NewResponseHelper(),
	}
}

// SubmitRequest 提交任务请求
type SubmitRequest struct {
	Text   string `json:"text" binding:"required"`
	ChatID int64  `json:"chat_id"`
}

// Submit 提交一段文本创建任务
func (h *WorkflowHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	var userID int64
	if val, exists := c.Get("user_id"); exists {
		if id, ok := val.(uint); ok {
			userID = int64(id)
		}
	}

	result, err := h.engine.Submit(c.Request.Context(), req.ChatID, userID, req.Text)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedLink) {
			c.JSON(http.StatusBadRequest, h.response.Error(400, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "提交任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(result, "任务已提交"))
}

// ChooseRequest 选择执行器请求
type ChooseRequest struct {
	ExecutorID string `json:"executor_id" binding:"required"`
}

// Choose 为挂起的任务选择执行器
func (h *WorkflowHandler) Choose(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的任务ID"))
		return
	}

	var req ChooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	task, err := h.engine.ChooseTarget(c.Request.Context(), uint(taskID), req.ExecutorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, h.response.Error(404, err.Error()))
		case errors.Is(err, service.ErrInvalidStateTransition):
			c.JSON(http.StatusConflict, h.response.Error(409, err.Error()))
		case errors.Is(err, service.ErrUnknownExecutor):
			c.JSON(http.StatusBadRequest, h.response.Error(400, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, h.response.Error(500, "选择执行器失败: "+err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, h.response.Success(task, "已选择执行器"))
}

// Get 查询单个任务
func (h *WorkflowHandler) Get(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的任务ID"))
		return
	}

	task, err := h.engine.GetTask(uint(taskID))
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, h.response.Error(404, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(task, "success"))
}

// Pending 列出等待选择执行器的任务
func (h *WorkflowHandler) Pending(c *gin.Context) {
	tasks, err := h.engine.GetPendingTasks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询任务失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(tasks, "success"))
}

// List 分页列出任务
func (h *WorkflowHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	tasks, total, err := h.engine.ListTasks(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询任务列表失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"items": tasks,
		"total": total,
	}, "success"))
}
