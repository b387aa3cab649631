package service

import (
	"context"
	"fmt"

	"link-porter/app/config"
	"link-porter/app/logger"

	"resty.dev/v3"
)

// EmbyService Emby 媒体库刷新执行器
type EmbyService struct {
	logger *logger.Logger
	cfg    *config.Config
	client *resty.Client
}

// NewEmbyService 创建 Emby 刷新执行器
func NewEmbyService(cfg *config.Config, log *logger.Logger) *EmbyService {
	client := resty.New()
	client.SetBaseURL(cfg.Emby.URL)
	client.SetQueryParam("api_key", cfg.Emby.APIKey)

	return &EmbyService{
		logger: log,
		cfg:    cfg,
		client: client,
	}
}

// Refresh 触发整库扫描
func (s *EmbyService) Refresh(ctx context.Context) error {
	if s.cfg.Emby.URL == "" {
		s.logger.Warn("未配置 Emby 地址，跳过媒体库刷新")
		return nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Post("/Library/Refresh")
	if err != nil {
		return fmt.Errorf("请求 Emby 刷新失败: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("Emby 刷新失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	s.logger.Info("Emby 媒体库刷新已触发")
	return nil
}
