package handler

import (
	"net/http"
	"strconv"

	"link-porter/app/database"
	"link-porter/app/model"
	"link-porter/app/service"

	"github.com/gin-gonic/gin"
)

// SubscriptionHandler 订阅处理器
type SubscriptionHandler struct {
	subSvc   *service.SubscriptionService
	response *ResponseHelper
}

// NewSubscriptionHandler 创建订阅处理器
func NewSubscriptionHandler(subSvc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subSvc:   subSvc,
		response: NewResponseHelper(),
	}
}

// SubscriptionRequest 创建/更新订阅的请求
type SubscriptionRequest struct {
	Keyword        string `json:"keyword" binding:"required"`
	TargetProvider string `json:"target_provider"`
	IncludeRules   string `json:"include_rules"`
	ExcludeRules   string `json:"exclude_rules"`
	Season         int    `json:"season"`
	Episode        int    `json:"episode"`
	Enabled        *bool  `json:"enabled"`
	ChatID         int64  `json:"chat_id"`
}

// List 列出所有订阅
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.subSvc.ListSubscriptions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询订阅失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(subs, "success"))
}

// Create 创建订阅
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	sub := model.Subscription{
		Keyword:        req.Keyword,
		TargetProvider: req.TargetProvider,
		IncludeRules:   req.IncludeRules,
		ExcludeRules:   req.ExcludeRules,
		Season:         req.Season,
		Episode:        req.Episode,
		Enabled:        true,
		ChatID:         req.ChatID,
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}

	if err := h.subSvc.CreateSubscription(&sub); err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "创建订阅失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(sub, "订阅已创建"))
}

// Update 更新订阅
func (h *SubscriptionHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的订阅ID"))
		return
	}

	var sub model.Subscription
	if err := database.GetDB().First(&sub, id).Error; err != nil {
		c.JSON(http.StatusNotFound, h.response.Error(404, "订阅不存在"))
		return
	}

	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	sub.Keyword = req.Keyword
	sub.TargetProvider = req.TargetProvider
	sub.IncludeRules = req.IncludeRules
	sub.ExcludeRules = req.ExcludeRules
	sub.Season = req.Season
	sub.Episode = req.Episode
	sub.ChatID = req.ChatID
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}

	if err := h.subSvc.UpdateSubscription(&sub); err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "更新订阅失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(sub, "订阅已更新"))
}

// Delete 删除订阅
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的订阅ID"))
		return
	}

	if err := h.subSvc.DeleteSubscription(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "删除订阅失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "订阅已删除"))
}

// History 分页查询订阅命中历史
func (h *SubscriptionHandler) History(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的订阅ID"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	histories, total, err := h.subSvc.GetHistory(uint(id), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "查询订阅历史失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(gin.H{
		"items": histories,
		"total": total,
	}, "success"))
}

// Check 立即检查一次订阅
func (h *SubscriptionHandler) Check(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "无效的订阅ID"))
		return
	}

	var sub model.Subscription
	if err := database.GetDB().First(&sub, id).Error; err != nil {
		c.JSON(http.StatusNotFound, h.response.Error(404, "订阅不存在"))
		return
	}

	if err := h.subSvc.CheckOne(&sub); err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "检查订阅失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(nil, "检查完成"))
}

// CheckAvailability 按关键字试搜，预览能搜到什么资源
func (h *SubscriptionHandler) CheckAvailability(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		c.JSON(http.StatusBadRequest, h.response.Error(400, "缺少 keyword 参数"))
		return
	}

	results, err := h.subSvc.CheckAvailability(c.Request.Context(), keyword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, h.response.Error(500, "搜索失败: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, h.response.Success(results, "success"))
}
