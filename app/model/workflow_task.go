package model

import (
	"time"
)

// WorkflowStatus 任务流水线状态
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"    // 已创建，尚未分派
	WorkflowStatusChoosing   WorkflowStatus = "choosing"   // 等待用户选择执行器
	WorkflowStatusOffline    WorkflowStatus = "offline"    // 已提交离线下载，等待完成
	WorkflowStatusSaving     WorkflowStatus = "saving"     // 正在同步转存
	WorkflowStatusOrganizing WorkflowStatus = "organizing" // 整理中
	WorkflowStatusStrm       WorkflowStatus = "strm"       // 生成 STRM 中
	WorkflowStatusRefreshing WorkflowStatus = "refreshing" // 刷新媒体库中
	WorkflowStatusNotifying  WorkflowStatus = "notifying"  // 发送通知中
	WorkflowStatusCompleted  WorkflowStatus = "completed"  // 已完成
	WorkflowStatusFailed     WorkflowStatus = "failed"     // 已失败
)

// 流水线顺序，choosing/offline/saving 属于分派阶段，之后每个状态对应一个执行器步骤
var workflowOrder = map[WorkflowStatus]int{
	WorkflowStatusPending:    0,
	WorkflowStatusChoosing:   1,
	WorkflowStatusOffline:    2,
	WorkflowStatusSaving:     2,
	WorkflowStatusOrganizing: 3,
	WorkflowStatusStrm:       4,
	WorkflowStatusRefreshing: 5,
	WorkflowStatusNotifying:  6,
	WorkflowStatusCompleted:  7,
}

// WorkflowTask 链接任务模型，从分类到通知的编排单元。只增不删，保留审计记录
type WorkflowTask struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	ChatID         int64          `json:"chat_id" gorm:"index;comment:发起会话ID"`
	UserID         int64          `json:"user_id" gorm:"index;comment:发起用户ID"`
	Link           Link           `json:"link" gorm:"embedded;embeddedPrefix:link_"`
	RawText        string         `json:"raw_text" gorm:"type:text;comment:原始提交文本"`
	ChosenExecutor string         `json:"chosen_executor" gorm:"size:50;comment:选定的执行器"`
	Status         WorkflowStatus `json:"status" gorm:"size:20;default:pending;index"`
	OfflineTaskID  *uint          `json:"offline_task_id" gorm:"index;comment:关联的离线任务ID"`
	OrganizedPath  string         `json:"organized_path" gorm:"type:text;comment:整理后的路径"`
	MediaInfo      string         `json:"media_info" gorm:"type:text;comment:识别出的媒体信息(JSON)"`
	ErrorMessage   string         `json:"error_message" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (WorkflowTask) TableName() string {
	return "workflow_tasks"
}

// IsTerminal 是否为终态
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// CanAdvanceTo 状态只能向前推进，或从任意非终态跳到 failed
func (s WorkflowStatus) CanAdvanceTo(next WorkflowStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == WorkflowStatusFailed {
		return true
	}
	from, ok := workflowOrder[s]
	if !ok {
		return false
	}
	to, ok := workflowOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// NextStep 返回流水线中当前执行阶段之后的状态
func (s WorkflowStatus) NextStep() (WorkflowStatus, bool) {
	switch s {
	case WorkflowStatusOrganizing:
		return WorkflowStatusStrm, true
	case WorkflowStatusStrm:
		return WorkflowStatusRefreshing, true
	case WorkflowStatusRefreshing:
		return WorkflowStatusNotifying, true
	case WorkflowStatusNotifying:
		return WorkflowStatusCompleted, true
	}
	return "", false
}
