package service

import (
	"context"

	"link-porter/app/model"
	"link-porter/app/pan115"
)

// ExecutorKind 执行器的分派方式
type ExecutorKind string

const (
	ExecutorKindShareSave ExecutorKind = "share_save" // 同步转存
	ExecutorKindOffline   ExecutorKind = "offline"    // 异步离线下载
)

// ExecutorOption 一个可供选择的执行器
type ExecutorOption struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Kind ExecutorKind `json:"kind"`
}

// LinkClassifier 链接分类器
type LinkClassifier interface {
	Classify(text string) model.Link
}

// ShareSaveExecutor 同步转存执行器，调用返回即代表转存结束
type ShareSaveExecutor interface {
	Save(ctx context.Context, link model.Link, containerID string) error
}

// OfflineSubmitExecutor 离线下载提交执行器，只做同步握手，
// 返回供应商分配的任务ID，下载本身异步进行
type OfflineSubmitExecutor interface {
	Submit(ctx context.Context, url, containerID string) (externalTaskID string, err error)
}

// ProviderStatusQuery 供应商离线任务状态查询，取消为尽力而为
type ProviderStatusQuery interface {
	Status(ctx context.Context, externalTaskID string) (pan115.TaskStatus, error)
	Cancel(ctx context.Context, externalTaskID string) error
}

// OrganizeResult 整理步骤的产出
type OrganizeResult struct {
	OrganizedPath string
	MediaInfo     string // 识别出的媒体信息 JSON，可为空
}

// OrganizeExecutor 整理执行器（识别+重命名+归档）
type OrganizeExecutor interface {
	Organize(ctx context.Context, task *model.WorkflowTask) (OrganizeResult, error)
}

// StrmExecutor STRM 生成执行器
type StrmExecutor interface {
	Generate(ctx context.Context, task *model.WorkflowTask) error
}

// RefreshExecutor 媒体库刷新执行器
type RefreshExecutor interface {
	Refresh(ctx context.Context) error
}

// NotifyExecutor 通知执行器，失败不影响任务结果
type NotifyExecutor interface {
	Notify(ctx context.Context, task *model.WorkflowTask) error
}

// SearchResult 搜索索引返回的单条资源
type SearchResult struct {
	Title       string `json:"title"`
	ResourceURL string `json:"resource_url"`
	Provider    string `json:"provider"`
}

// SearchIndex 资源搜索索引
type SearchIndex interface {
	Search(ctx context.Context, keyword string) ([]SearchResult, error)
}
