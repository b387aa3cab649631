package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowStatusCanAdvanceTo(t *testing.T) {
	// 正常推进
	assert.True(t, WorkflowStatusPending.CanAdvanceTo(WorkflowStatusChoosing))
	assert.True(t, WorkflowStatusPending.CanAdvanceTo(WorkflowStatusSaving))
	assert.True(t, WorkflowStatusOffline.CanAdvanceTo(WorkflowStatusOrganizing))
	assert.True(t, WorkflowStatusSaving.CanAdvanceTo(WorkflowStatusOrganizing))
	assert.True(t, WorkflowStatusNotifying.CanAdvanceTo(WorkflowStatusCompleted))

	// 任意非终态都能失败
	assert.True(t, WorkflowStatusPending.CanAdvanceTo(WorkflowStatusFailed))
	assert.True(t, WorkflowStatusOrganizing.CanAdvanceTo(WorkflowStatusFailed))

	// 不能回退，不能原地踏步
	assert.False(t, WorkflowStatusStrm.CanAdvanceTo(WorkflowStatusOrganizing))
	assert.False(t, WorkflowStatusOrganizing.CanAdvanceTo(WorkflowStatusOrganizing))
	// offline 和 saving 属于同一分派阶段，互相不能转换
	assert.False(t, WorkflowStatusOffline.CanAdvanceTo(WorkflowStatusSaving))

	// 终态不再变化
	assert.False(t, WorkflowStatusCompleted.CanAdvanceTo(WorkflowStatusFailed))
	assert.False(t, WorkflowStatusFailed.CanAdvanceTo(WorkflowStatusOrganizing))
	assert.False(t, WorkflowStatusFailed.CanAdvanceTo(WorkflowStatusFailed))
}

func TestWorkflowStatusNextStep(t *testing.T) {
	next, ok := WorkflowStatusOrganizing.NextStep()
	assert.True(t, ok)
	assert.Equal(t, WorkflowStatusStrm, next)

	next, ok = WorkflowStatusNotifying.NextStep()
	assert.True(t, ok)
	assert.Equal(t, WorkflowStatusCompleted, next)

	_, ok = WorkflowStatusPending.NextStep()
	assert.False(t, ok)
	_, ok = WorkflowStatusCompleted.NextStep()
	assert.False(t, ok)
}

func TestOfflineTaskHelpers(t *testing.T) {
	active := &OfflineTask{Status: OfflineStatusDownloading}
	assert.True(t, active.IsActive())
	assert.True(t, active.CanCancel())
	assert.False(t, active.CanRetry())

	failed := &OfflineTask{Status: OfflineStatusFailed}
	assert.False(t, failed.IsActive())
	assert.False(t, failed.CanCancel())
	assert.True(t, failed.CanRetry())

	assert.True(t, OfflineStatusCompleted.IsTerminal())
	assert.True(t, OfflineStatusCancelled.IsTerminal())
	assert.False(t, OfflineStatusPending.IsTerminal())
}
