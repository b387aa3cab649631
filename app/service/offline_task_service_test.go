package service

import (
	"errors"
	"testing"

	"link-porter/app/model"
	"link-porter/app/pan115"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineFixture struct {
	svc       *OfflineTaskService
	provider  *fakeProvider
	submitter *fakeOfflineSubmitter
	events    chan OfflineEvent
}

func newOfflineFixture(t *testing.T) *offlineFixture {
	t.Helper()

	f := &offlineFixture{
		provider:  &fakeProvider{},
		submitter: &fakeOfflineSubmitter{externalID: "hash-retry"},
		events:    make(chan OfflineEvent, 16),
	}
	f.svc = NewOfflineTaskService(newTestDB(t), newTestConfig(), newTestLogger(), f.provider)
	f.svc.BindEvents(f.events)
	f.svc.BindSubmitter(f.submitter)
	return f
}

func (f *offlineFixture) createAttached(t *testing.T, externalID string) *model.OfflineTask {
	t.Helper()

	task, err := f.svc.Create("magnet:?xt=urn:btih:abc", "0", OwnerWorkflow)
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachExternalID(task.ID, externalID))
	return task
}

func TestAttachExternalIDOnlyOnce(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	// 重复绑定同一个ID幂等成功
	assert.NoError(t, f.svc.AttachExternalID(task.ID, "hash-001"))

	// 绑定不同的ID被拒绝
	err := f.svc.AttachExternalID(task.ID, "hash-002")
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-001", loaded.ExternalTaskID)
}

func TestReconcileSyncsProgress(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	f.provider.setStatus(pan115.TaskStatus{Status: "downloading", ProgressPercent: 42.5, SpeedBytesPerSec: 1 << 20})
	f.svc.Reconcile()

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusDownloading, loaded.Status)
	assert.Equal(t, 42.5, loaded.ProgressPercent)
	assert.Equal(t, int64(1<<20), loaded.SpeedBytesPerSec)
	assert.False(t, loaded.Notified)
	assert.Empty(t, f.events)
}

func TestReconcileTerminalFiresEventExactlyOnce(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	// 做种状态映射为完成
	f.provider.setStatus(pan115.TaskStatus{Status: "seeding", ProgressPercent: 100})
	f.svc.Reconcile()

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusCompleted, loaded.Status)
	assert.True(t, loaded.Notified)
	require.Len(t, f.events, 1)

	ev := <-f.events
	assert.Equal(t, "hash-001", ev.ExternalTaskID)
	assert.False(t, ev.Failed)

	// 第二轮对账不再命中该行，也不会重复派发
	f.svc.Reconcile()
	assert.Empty(t, f.events)

	// 即使拿着过期的快照直接对账同一行，notified 守卫也拦住重复派发
	stale := *task
	stale.Status = model.OfflineStatusPending
	f.svc.reconcileOne(&stale)
	assert.Empty(t, f.events)
}

func TestReconcileFailedFiresFailureEvent(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	f.provider.setStatus(pan115.TaskStatus{Status: "failed"})
	f.svc.Reconcile()

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusFailed, loaded.Status)
	assert.NotEmpty(t, loaded.ErrorMessage)

	require.Len(t, f.events, 1)
	ev := <-f.events
	assert.True(t, ev.Failed)
}

func TestReconcileProviderErrorKeepsLocalState(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	f.provider.setStatus(pan115.TaskStatus{Status: "downloading", ProgressPercent: 30})
	f.svc.Reconcile()

	// 供应商临时抽风，本地记录保持上一轮的状态
	f.provider.err = errors.New("供应商超时")
	f.svc.Reconcile()

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusDownloading, loaded.Status)
	assert.Equal(t, float64(30), loaded.ProgressPercent)
	assert.Empty(t, f.events)
}

func TestReconcileSkipsUnattachedTasks(t *testing.T) {
	f := newOfflineFixture(t)
	_, err := f.svc.Create("magnet:?xt=urn:btih:abc", "0", OwnerWorkflow)
	require.NoError(t, err)

	// 还没拿到供应商任务ID的记录不参与对账
	f.provider.setStatus(pan115.TaskStatus{Status: "completed"})
	f.svc.Reconcile()
	assert.Empty(t, f.events)
}

func TestCancelOnlyFromActive(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	require.NoError(t, f.svc.Cancel(task.ID))

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusCancelled, loaded.Status)

	// 已取消的任务不能再取消
	assert.ErrorIs(t, f.svc.Cancel(task.ID), ErrInvalidStateTransition)

	// 已取消的任务对账轮次不会再碰
	f.provider.setStatus(pan115.TaskStatus{Status: "completed"})
	f.svc.Reconcile()
	assert.Empty(t, f.events)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	// 等待中的任务不能重试
	assert.ErrorIs(t, f.svc.Retry(task.ID), ErrInvalidStateTransition)
	assert.Zero(t, f.submitter.callCount())

	f.svc.MarkFailed(task.ID, errors.New("提交失败"))
	require.NoError(t, f.svc.Retry(task.ID))

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusPending, loaded.Status)
	assert.Equal(t, "hash-retry", loaded.ExternalTaskID)
	assert.Empty(t, loaded.ErrorMessage)
	assert.False(t, loaded.Notified)
	assert.Zero(t, loaded.ProgressPercent)
}

func TestRetryResubmitsToProvider(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")

	f.provider.setStatus(pan115.TaskStatus{Status: "failed"})
	f.svc.Reconcile()
	<-f.events

	require.NoError(t, f.svc.Retry(task.ID))
	assert.Equal(t, 1, f.submitter.callCount())

	// 新的供应商任务ID重新进入对账
	f.provider.setStatus(pan115.TaskStatus{Status: "downloading", ProgressPercent: 10})
	f.svc.Reconcile()

	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusDownloading, loaded.Status)
	assert.Equal(t, "hash-retry", loaded.ExternalTaskID)

	// 重试后的完成事件还能再派发一次
	f.provider.setStatus(pan115.TaskStatus{Status: "completed", ProgressPercent: 100})
	f.svc.Reconcile()
	require.Len(t, f.events, 1)
	ev := <-f.events
	assert.Equal(t, "hash-retry", ev.ExternalTaskID)
	assert.False(t, ev.Failed)
}

func TestRetryResubmitFailureMarksFailedAgain(t *testing.T) {
	f := newOfflineFixture(t)
	task := f.createAttached(t, "hash-001")
	f.svc.MarkFailed(task.ID, errors.New("下载失败"))

	f.submitter.err = errors.New("供应商拒绝")
	require.Error(t, f.svc.Retry(task.ID))

	// 失败状态允许再次重试
	loaded, err := f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusFailed, loaded.Status)
	assert.Contains(t, loaded.ErrorMessage, "重新提交失败")

	f.submitter.err = nil
	require.NoError(t, f.svc.Retry(task.ID))
	loaded, err = f.svc.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfflineStatusPending, loaded.Status)
	assert.Equal(t, "hash-retry", loaded.ExternalTaskID)
}

func TestCancelMissingTask(t *testing.T) {
	f := newOfflineFixture(t)
	assert.ErrorIs(t, f.svc.Cancel(9999), ErrTaskNotFound)
}
