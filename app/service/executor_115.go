package service

import (
	"context"
	"fmt"

	"link-porter/app/model"
	"link-porter/app/pan115"
)

// Pan115ShareSaver 115 分享转存执行器
type Pan115ShareSaver struct {
	client *pan115.Client
}

// NewPan115ShareSaver 创建 115 分享转存执行器
func NewPan115ShareSaver(client *pan115.Client) *Pan115ShareSaver {
	return &Pan115ShareSaver{client: client}
}

// Save 同步转存分享内容到目标目录
func (e *Pan115ShareSaver) Save(ctx context.Context, link model.Link, containerID string) error {
	if link.ShareCode == "" {
		return fmt.Errorf("分享链接缺少分享码")
	}
	return e.client.SaveShare(ctx, link.ShareCode, link.AccessCode, containerID)
}

// Pan115OfflineSubmitter 115 离线下载提交执行器，只负责同步握手
type Pan115OfflineSubmitter struct {
	client *pan115.Client
}

// NewPan115OfflineSubmitter 创建 115 离线下载提交执行器
func NewPan115OfflineSubmitter(client *pan115.Client) *Pan115OfflineSubmitter {
	return &Pan115OfflineSubmitter{client: client}
}

// Submit 提交离线下载，返回供应商任务ID
func (e *Pan115OfflineSubmitter) Submit(ctx context.Context, url, containerID string) (string, error) {
	return e.client.AddOfflineTask(ctx, url, containerID)
}

// Pan115StatusQuery 115 离线任务状态查询，对账服务使用
type Pan115StatusQuery struct {
	client *pan115.Client
}

// NewPan115StatusQuery 创建状态查询器
func NewPan115StatusQuery(client *pan115.Client) *Pan115StatusQuery {
	return &Pan115StatusQuery{client: client}
}

// Status 查询供应商侧状态快照
func (q *Pan115StatusQuery) Status(ctx context.Context, externalTaskID string) (pan115.TaskStatus, error) {
	return q.client.QueryOfflineTask(ctx, externalTaskID)
}

// Cancel 删除供应商侧任务，尽力而为
func (q *Pan115StatusQuery) Cancel(ctx context.Context, externalTaskID string) error {
	return q.client.DeleteOfflineTask(ctx, externalTaskID)
}
