package pan115

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/SheltonZhu/115driver/pkg/driver"
)

// RenameFile 重命名网盘文件
func (c *Client) RenameFile(ctx context.Context, fileID, newName string) error {
	if strings.TrimSpace(fileID) == "" || strings.TrimSpace(newName) == "" {
		return fmt.Errorf("重命名参数不完整")
	}

	result := driver.BasicResp{}
	req := c.pan.NewRequest().
		SetContext(ctx).
		SetFormData(map[string]string{
			fmt.Sprintf("files_new_name[%s]", fileID): newName,
		}).
		ForceContentType("application/json;charset=UTF-8").
		SetResult(&result)

	resp, err := req.Post(driver.ApiFileRename)
	if err = driver.CheckErr(err, &result, resp); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}

	c.logger.Debugf("文件重命名完成: %s -> %s", fileID, newName)
	return nil
}
