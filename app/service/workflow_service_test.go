package service

import (
	"context"
	"errors"
	"testing"

	"link-porter/app/linkkit"
	"link-porter/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine     *WorkflowEngine
	offlineSvc *OfflineTaskService
	saver      *fakeShareSaver
	submitter  *fakeOfflineSubmitter
	provider   *fakeProvider
	notifier   *fakeNotifier
}

func newEngineFixture(t *testing.T, deps WorkflowEngineDeps) *engineFixture {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()
	log := newTestLogger()

	f := &engineFixture{
		saver:     &fakeShareSaver{},
		submitter: &fakeOfflineSubmitter{externalID: "hash-001"},
		provider:  &fakeProvider{},
		notifier:  &fakeNotifier{},
	}
	f.offlineSvc = NewOfflineTaskService(db, cfg, log, f.provider)

	if deps.Classifier == nil {
		deps.Classifier = linkkit.NewClassifier()
	}
	if deps.ShareSave == nil {
		deps.ShareSave = map[string]ShareSaveExecutor{ExecutorShareSave115: f.saver}
	}
	if deps.Offline == nil {
		deps.Offline = map[string]OfflineSubmitExecutor{ExecutorOffline115: f.submitter}
	}
	if deps.OfflineStore == nil {
		deps.OfflineStore = f.offlineSvc
	}
	if deps.Organize == nil {
		deps.Organize = &fakeOrganizer{result: OrganizeResult{OrganizedPath: "/电影/Foo (2023)/Foo.mkv"}}
	}
	if deps.Strm == nil {
		deps.Strm = &fakeStrm{}
	}
	if deps.Refresh == nil {
		deps.Refresh = &fakeRefresher{}
	}
	if deps.Notify == nil {
		deps.Notify = f.notifier
	}

	f.engine = NewWorkflowEngine(db, cfg, log, deps)
	f.offlineSvc.BindEvents(f.engine.Events())
	return f
}

const (
	testShareText  = "https://115.com/s/sw1abc123?password=a1b2"
	testMagnetText = "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a"
)

func TestSubmitShareLinkRunsToCompletion(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	result, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)
	require.False(t, result.NeedsChoice)

	// 转存同步完成，任务已进入整理阶段
	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOrganizing, task.Status)
	assert.Equal(t, ExecutorShareSave115, task.ChosenExecutor)
	assert.Equal(t, 1, f.saver.calls)

	// 流水线把剩余步骤跑完
	f.engine.runPipeline(task.ID)

	task, err = f.engine.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusCompleted, task.Status)
	assert.Equal(t, "/电影/Foo (2023)/Foo.mkv", task.OrganizedPath)
	assert.Equal(t, 1, f.notifier.callCount())
}

func TestSubmitMagnetSuspendsOnOffline(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)
	require.False(t, result.NeedsChoice)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOffline, task.Status)
	require.NotNil(t, task.OfflineTaskID)

	// 离线任务记录已创建并绑定了供应商任务ID
	offlineTask, err := f.offlineSvc.Get(*task.OfflineTaskID)
	require.NoError(t, err)
	assert.Equal(t, "hash-001", offlineTask.ExternalTaskID)
	assert.Equal(t, model.OfflineStatusPending, offlineTask.Status)
	assert.Equal(t, OwnerWorkflow, offlineTask.Owner)
}

func TestSubmitUnsupportedText(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	_, err := f.engine.Submit(context.Background(), 42, 1, "一段没有链接的文字")
	assert.ErrorIs(t, err, ErrUnsupportedLink)

	// 不支持的文本不留任务记录
	tasks, _, err := f.engine.ListTasks(10, 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSubmitWithMultipleCandidatesNeedsChoice(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{
		Offline: map[string]OfflineSubmitExecutor{
			ExecutorOffline115: &fakeOfflineSubmitter{externalID: "hash-001"},
			"offline_other":    &fakeOfflineSubmitter{externalID: "hash-002"},
		},
	})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)
	assert.True(t, result.NeedsChoice)
	assert.Len(t, result.Options, 2)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusChoosing, task.Status)

	// 选定执行器后分派
	task, err = f.engine.ChooseTarget(context.Background(), task.ID, ExecutorOffline115)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOffline, task.Status)

	// 已分派的任务不能再选
	_, err = f.engine.ChooseTarget(context.Background(), task.ID, ExecutorOffline115)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestDuplicateChooseSubmitsProviderOnce(t *testing.T) {
	chosen := &fakeOfflineSubmitter{externalID: "hash-001"}
	f := newEngineFixture(t, WorkflowEngineDeps{
		Offline: map[string]OfflineSubmitExecutor{
			ExecutorOffline115: chosen,
			"offline_other":    &fakeOfflineSubmitter{externalID: "hash-002"},
		},
	})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)
	require.True(t, result.NeedsChoice)

	// 模拟两次并发选择：双方都在分派前读到了 choosing 状态的快照
	first, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	second, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.delegate(context.Background(), first, f.engine.options[ExecutorOffline115]))
	err = f.engine.delegate(context.Background(), second, f.engine.options[ExecutorOffline115])
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// 输掉竞争的一方没有提交到供应商，也没有留下孤儿离线记录
	assert.Equal(t, 1, chosen.callCount())
	var count int64
	require.NoError(t, f.engine.db.Model(&model.OfflineTask{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOffline, task.Status)
	assert.Equal(t, ExecutorOffline115, task.ChosenExecutor)
}

func TestChooseTargetRejectsForeignExecutor(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{
		Offline: map[string]OfflineSubmitExecutor{
			ExecutorOffline115: &fakeOfflineSubmitter{externalID: "hash-001"},
			"offline_other":    &fakeOfflineSubmitter{externalID: "hash-002"},
		},
	})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)
	require.True(t, result.NeedsChoice)

	// 转存执行器不在磁力链接的候选范围内
	_, err = f.engine.ChooseTarget(context.Background(), result.Task.ID, ExecutorShareSave115)
	assert.ErrorIs(t, err, ErrUnknownExecutor)

	_, err = f.engine.ChooseTarget(context.Background(), result.Task.ID, "no_such_executor")
	assert.ErrorIs(t, err, ErrUnknownExecutor)
}

func TestShareSaveFailureMarksTaskFailed(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})
	f.saver.err = errors.New("供应商拒绝")

	result, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "转存失败")
	assert.Zero(t, f.notifier.callCount())
}

func TestOrganizeFailureKeepsEarlierSteps(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{
		Organize: &fakeOrganizer{err: errors.New("识别服务不可用")},
	})

	result, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)

	f.engine.runPipeline(result.Task.ID)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "整理失败")
	// 转存已经发生过，失败不回滚
	assert.Equal(t, 1, f.saver.calls)
}

func TestNotifyFailureStillCompletes(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})
	f.notifier.err = errors.New("telegram 不可达")

	result, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)

	f.engine.runPipeline(result.Task.ID)

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusCompleted, task.Status)
}

func TestOfflineCompletedEventResumesExactlyOnce(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)

	// 第一次完成事件把任务推进到整理阶段并入队
	f.engine.onOfflineTaskCompleted("hash-001")

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOrganizing, task.Status)
	assert.Len(t, f.engine.jobs, 1)

	// 重复事件是空操作，不会重复入队
	f.engine.onOfflineTaskCompleted("hash-001")
	assert.Len(t, f.engine.jobs, 1)

	task, err = f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusOrganizing, task.Status)
}

func TestOfflineFailedEventFailsTask(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	result, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)

	f.engine.onOfflineTaskFailed("hash-001", "failed")

	task, err := f.engine.GetTask(result.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "离线下载失败")
}

func TestAdvanceIsForwardOnly(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	result, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)
	task := result.Task
	require.Equal(t, model.WorkflowStatusOrganizing, task.Status)

	require.NoError(t, f.engine.advance(task, model.WorkflowStatusStrm))

	// 回退被拒绝，状态保持不变
	err = f.engine.advance(task, model.WorkflowStatusOrganizing)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	loaded, err := f.engine.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowStatusStrm, loaded.Status)
}

func TestGetPendingTasksExcludesTerminal(t *testing.T) {
	f := newEngineFixture(t, WorkflowEngineDeps{})

	done, err := f.engine.Submit(context.Background(), 42, 1, testShareText)
	require.NoError(t, err)
	f.engine.runPipeline(done.Task.ID)

	suspended, err := f.engine.Submit(context.Background(), 42, 1, testMagnetText)
	require.NoError(t, err)

	pending, err := f.engine.GetPendingTasks()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, suspended.Task.ID, pending[0].ID)
}
