package service

import (
	"context"
	"fmt"
	"strings"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/model"

	"resty.dev/v3"
)

// TelegramService Telegram 通知执行器。
// 通知是尽力而为的：发送失败只记日志，不影响任务结果
type TelegramService struct {
	logger *logger.Logger
	cfg    *config.Config
	client *resty.Client
}

// NewTelegramService 创建 Telegram 通知执行器
func NewTelegramService(cfg *config.Config, log *logger.Logger) *TelegramService {
	api := strings.TrimRight(cfg.Telegram.API, "/")
	if api == "" {
		api = "https://api.telegram.org"
	}

	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", api, cfg.Telegram.BotToken))

	return &TelegramService{
		logger: log,
		cfg:    cfg,
		client: client,
	}
}

// Notify 向任务发起会话发送完成通知
func (s *TelegramService) Notify(ctx context.Context, task *model.WorkflowTask) error {
	if s.cfg.Telegram.BotToken == "" {
		s.logger.Warnf("未配置 Telegram Bot Token，任务 %d 跳过通知", task.ID)
		return nil
	}
	if task.ChatID == 0 {
		s.logger.Debugf("任务 %d 没有关联会话，跳过通知", task.ID)
		return nil
	}

	text := fmt.Sprintf("✅ 资源入库完成\n路径: %s", task.OrganizedPath)
	if task.OrganizedPath == "" {
		text = "✅ 资源入库完成"
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": fmt.Sprintf("%d", task.ChatID),
			"text":    text,
		}).
		SetResult(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("请求 Telegram 失败: %w", err)
	}
	if resp.StatusCode() != 200 || !result.OK {
		return fmt.Errorf("Telegram 发送失败: %d %s", resp.StatusCode(), result.Description)
	}

	s.logger.Infof("任务 %d 完成通知已发送: chat_id=%d", task.ID, task.ChatID)
	return nil
}
