package pan115

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/SheltonZhu/115driver/pkg/driver"
)

const (
	apiShareSnap    = "https://webapi.115.com/share/snap"
	apiShareReceive = "https://webapi.115.com/share/receive"
)

type shareSnapResp struct {
	driver.BasicResp
	Data struct {
		ShareTitle string `json:"share_title"`
		List       []struct {
			FileID     string `json:"fid"`
			CategoryID string `json:"cid"`
			Name       string `json:"n"`
		} `json:"list"`
	} `json:"data"`
}

// SaveShare 把分享内容整体转存到指定目录。先拉快照拿到顶层文件ID，再统一领取
func (c *Client) SaveShare(ctx context.Context, shareCode, accessCode, targetDirID string) error {
	snap := shareSnapResp{}
	req := c.pan.NewRequest().
		SetContext(ctx).
		ForceContentType("application/json;charset=UTF-8").
		SetQueryParams(map[string]string{
			"share_code":   shareCode,
			"receive_code": accessCode,
			"offset":       "0",
			"limit":        "100",
		}).
		SetResult(&snap)

	resp, err := req.Get(apiShareSnap)
	if err = driver.CheckErr(err, &snap, resp); err != nil {
		return fmt.Errorf("获取分享快照失败: %w", err)
	}

	if len(snap.Data.List) == 0 {
		return fmt.Errorf("分享 %s 内容为空或已失效", shareCode)
	}

	fileIDs := make([]string, 0, len(snap.Data.List))
	for _, item := range snap.Data.List {
		if item.FileID != "" {
			fileIDs = append(fileIDs, item.FileID)
		} else if item.CategoryID != "" {
			fileIDs = append(fileIDs, item.CategoryID)
		}
	}

	result := driver.BasicResp{}
	recvReq := c.pan.NewRequest().
		SetContext(ctx).
		ForceContentType("application/json;charset=UTF-8").
		SetFormData(map[string]string{
			"share_code":   shareCode,
			"receive_code": accessCode,
			"file_id":      strings.Join(fileIDs, ","),
			"cid":          targetDirID,
		}).
		SetResult(&result)

	resp, err = recvReq.Post(apiShareReceive)
	if err = driver.CheckErr(err, &result, resp); err != nil {
		return fmt.Errorf("转存分享 %s 失败: %w", shareCode, err)
	}

	c.logger.Infof("分享转存成功: share_code=%s, 文件数=%d, 目标目录=%s", shareCode, len(fileIDs), targetDirID)
	return nil
}
