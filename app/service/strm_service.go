package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/model"
)

// StrmService STRM 文件生成执行器。
// 在本地媒体库目录下按整理后的路径写出 .strm 文件，
// 内容是播放前缀拼上网盘路径，由 302 服务在播放时换取直链
type StrmService struct {
	logger *logger.Logger
	cfg    *config.Config
}

// NewStrmService 创建 STRM 生成执行器
func NewStrmService(cfg *config.Config, log *logger.Logger) *StrmService {
	return &StrmService{logger: log, cfg: cfg}
}

// Generate 为任务的整理结果生成 STRM 文件
func (s *StrmService) Generate(ctx context.Context, task *model.WorkflowTask) error {
	if s.cfg.Workflow.StrmLocalPath == "" {
		s.logger.Warnf("未配置 STRM 输出目录，任务 %d 跳过生成", task.ID)
		return nil
	}
	if task.OrganizedPath == "" {
		return fmt.Errorf("任务 %d 缺少整理后的路径", task.ID)
	}

	cloudPath := "/" + strings.TrimPrefix(task.OrganizedPath, "/")
	ext := filepath.Ext(cloudPath)
	strmRelative := strings.TrimSuffix(cloudPath, ext) + ".strm"
	strmFile := filepath.Join(s.cfg.Workflow.StrmLocalPath, filepath.FromSlash(strmRelative))

	if err := os.MkdirAll(filepath.Dir(strmFile), 0755); err != nil {
		return fmt.Errorf("创建 STRM 目录失败: %w", err)
	}

	content := strings.TrimRight(s.cfg.Workflow.StrmPrefix, "/") + cloudPath
	if err := os.WriteFile(strmFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("写入 STRM 文件失败: %w", err)
	}

	s.logger.Infof("STRM 文件已生成: %s", strmFile)
	return nil
}
