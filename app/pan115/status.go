package pan115

import (
	"strings"

	"link-porter/app/model"
)

// 供应商状态词汇到本地状态的固定映射表。
// 做种中的任务文件已经就位，视为完成；暂停的任务等同排队。
// 未收录的词汇一律按 pending 处理，绝不报错
var providerStatusTable = map[string]model.OfflineStatus{
	"queued":      model.OfflineStatusPending,
	"paused":      model.OfflineStatusPending,
	"downloading": model.OfflineStatusDownloading,
	"completed":   model.OfflineStatusCompleted,
	"seeding":     model.OfflineStatusCompleted,
	"failed":      model.OfflineStatusFailed,
	"error":       model.OfflineStatusFailed,
}

// MapProviderStatus 把供应商状态词汇翻译成本地离线任务状态
func MapProviderStatus(providerStatus string) model.OfflineStatus {
	if status, ok := providerStatusTable[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return status
	}
	return model.OfflineStatusPending
}
