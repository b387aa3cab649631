package model

import (
	"time"
)

// OfflineStatus 离线任务状态
type OfflineStatus string

const (
	OfflineStatusPending     OfflineStatus = "pending"     // 等待供应商受理/开始
	OfflineStatusDownloading OfflineStatus = "downloading" // 下载中
	OfflineStatusCompleted   OfflineStatus = "completed"   // 已完成
	OfflineStatusFailed      OfflineStatus = "failed"      // 失败
	OfflineStatusCancelled   OfflineStatus = "cancelled"   // 已取消
)

// OfflineTask 离线下载任务的本地记录，供应商侧进度通过对账同步回来
type OfflineTask struct {
	ID                uint          `json:"id" gorm:"primarykey"`
	ExternalTaskID    string        `json:"external_task_id" gorm:"size:100;index;comment:供应商分配的任务ID"`
	SourceURL         string        `json:"source_url" gorm:"type:text;not null"`
	TargetContainerID string        `json:"target_container_id" gorm:"size:100;comment:网盘目标目录ID"`
	Status            OfflineStatus `json:"status" gorm:"size:20;default:pending;index"`
	ProgressPercent   float64       `json:"progress_percent" gorm:"default:0"`
	SpeedBytesPerSec  int64         `json:"speed_bytes_per_sec" gorm:"default:0"`
	Notified          bool          `json:"notified" gorm:"default:false;comment:完成事件是否已派发"`
	Owner             string        `json:"owner" gorm:"size:50;comment:创建方(workflow/subscription)"`
	ErrorMessage      string        `json:"error_message" gorm:"type:text"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TableName 指定表名
func (OfflineTask) TableName() string {
	return "offline_tasks"
}

// IsActive 是否仍需要对账
func (t *OfflineTask) IsActive() bool {
	return t.Status == OfflineStatusPending || t.Status == OfflineStatusDownloading
}

// IsTerminal 是否为终态
func (s OfflineStatus) IsTerminal() bool {
	return s == OfflineStatusCompleted || s == OfflineStatusFailed || s == OfflineStatusCancelled
}

// CanCancel 仅等待中/下载中的任务可以取消
func (t *OfflineTask) CanCancel() bool {
	return t.IsActive()
}

// CanRetry 仅失败的任务可以重试
func (t *OfflineTask) CanRetry() bool {
	return t.Status == OfflineStatusFailed
}
