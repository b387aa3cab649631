package pan115

import (
	"context"
	"fmt"
	"strconv"

	driver "github.com/SheltonZhu/115driver/pkg/driver"
)

const (
	apiLixianAdd  = "https://115.com/web/lixian/?ct=lixian&ac=add_task_url"
	apiLixianList = "https://115.com/web/lixian/?ct=lixian&ac=task_lists"
	apiLixianDel  = "https://115.com/web/lixian/?ct=lixian&ac=task_del"
)

// TaskStatus 供应商侧的任务状态快照
type TaskStatus struct {
	Status           string  // 供应商状态词汇（downloading/seeding/paused/...）
	ProgressPercent  float64 // 0-100
	SpeedBytesPerSec int64
}

type lixianAddResp struct {
	driver.BasicResp
	InfoHash string `json:"info_hash"`
}

type lixianTask struct {
	InfoHash string  `json:"info_hash"`
	Name     string  `json:"name"`
	Percent  float64 `json:"percentDone"`
	Speed    int64   `json:"rateDownload"`
	Status   int     `json:"status"`
}

type lixianListResp struct {
	driver.BasicResp
	Tasks     []lixianTask `json:"tasks"`
	Page      int          `json:"page"`
	PageCount int          `json:"page_count"`
}

// 115 离线状态码到供应商词汇的固定映射。
// 未知状态码一律当作 queued 处理，交给上层的词汇表兜底
var lixianStatusText = map[int]string{
	-1: "failed",
	0:  "queued",
	1:  "downloading",
	2:  "completed",
	4:  "seeding",
	5:  "paused",
}

// AddOfflineTask 提交离线下载，返回供应商分配的任务ID（info_hash）
func (c *Client) AddOfflineTask(ctx context.Context, url, targetDirID string) (string, error) {
	result := lixianAddResp{}
	req := c.pan.NewRequest().
		SetContext(ctx).
		ForceContentType("application/json;charset=UTF-8").
		SetFormData(map[string]string{
			"url":        url,
			"wp_path_id": targetDirID,
		}).
		SetResult(&result)

	resp, err := req.Post(apiLixianAdd)
	if err = driver.CheckErr(err, &result, resp); err != nil {
		return "", fmt.Errorf("提交离线下载失败: %w", err)
	}
	if result.InfoHash == "" {
		return "", fmt.Errorf("离线下载响应缺少 info_hash")
	}

	c.logger.Infof("离线下载已提交: info_hash=%s, 目标目录=%s", result.InfoHash, targetDirID)
	return result.InfoHash, nil
}

// QueryOfflineTask 查询单个离线任务在供应商侧的状态。
// 115 只提供列表接口，这里按页扫描直到命中
func (c *Client) QueryOfflineTask(ctx context.Context, externalTaskID string) (TaskStatus, error) {
	for page := 1; ; page++ {
		result := lixianListResp{}
		req := c.pan.NewRequest().
			SetContext(ctx).
			ForceContentType("application/json;charset=UTF-8").
			SetQueryParam("page", strconv.Itoa(page)).
			SetResult(&result)

		resp, err := req.Get(apiLixianList)
		if err = driver.CheckErr(err, &result, resp); err != nil {
			return TaskStatus{}, fmt.Errorf("查询离线任务列表失败: %w", err)
		}

		for _, task := range result.Tasks {
			if task.InfoHash == externalTaskID {
				return TaskStatus{
					Status:           lixianStatusCode(task.Status),
					ProgressPercent:  task.Percent,
					SpeedBytesPerSec: task.Speed,
				}, nil
			}
		}

		if page >= result.PageCount || len(result.Tasks) == 0 {
			return TaskStatus{}, fmt.Errorf("离线任务 %s 在供应商侧不存在", externalTaskID)
		}
	}
}

// DeleteOfflineTask 删除供应商侧的离线任务，用于取消
func (c *Client) DeleteOfflineTask(ctx context.Context, externalTaskID string) error {
	result := driver.BasicResp{}
	req := c.pan.NewRequest().
		SetContext(ctx).
		ForceContentType("application/json;charset=UTF-8").
		SetFormData(map[string]string{
			"hash[0]": externalTaskID,
			"flag":    "0",
		}).
		SetResult(&result)

	resp, err := req.Post(apiLixianDel)
	return driver.CheckErr(err, &result, resp)
}

func lixianStatusCode(code int) string {
	if text, ok := lixianStatusText[code]; ok {
		return text
	}
	return "queued"
}
