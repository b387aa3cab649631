package pan115

import (
	"testing"

	"link-porter/app/model"

	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		expected model.OfflineStatus
	}{
		{"downloading", model.OfflineStatusDownloading},
		{"completed", model.OfflineStatusCompleted},
		{"seeding", model.OfflineStatusCompleted}, // 做种视为完成
		{"paused", model.OfflineStatusPending},    // 暂停等同排队
		{"queued", model.OfflineStatusPending},
		{"failed", model.OfflineStatusFailed},
		{"error", model.OfflineStatusFailed},
		{"COMPLETED", model.OfflineStatusCompleted},
		{" downloading ", model.OfflineStatusDownloading},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MapProviderStatus(tt.provider), "provider=%q", tt.provider)
	}
}

func TestMapProviderStatusUnknown(t *testing.T) {
	// 未收录的词汇一律按 pending 处理，不报错
	assert.Equal(t, model.OfflineStatusPending, MapProviderStatus("verifying"))
	assert.Equal(t, model.OfflineStatusPending, MapProviderStatus(""))
}

func TestLixianStatusCode(t *testing.T) {
	assert.Equal(t, "downloading", lixianStatusCode(1))
	assert.Equal(t, "completed", lixianStatusCode(2))
	assert.Equal(t, "seeding", lixianStatusCode(4))
	assert.Equal(t, "failed", lixianStatusCode(-1))
	// 未知状态码当作排队
	assert.Equal(t, "queued", lixianStatusCode(99))
}
