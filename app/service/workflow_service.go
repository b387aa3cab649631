package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/model"

	"gorm.io/gorm"
)

// OfflineEvent 离线任务终态事件。唯一写入方是对账服务，
// 引擎的派发协程消费后恢复对应的流水线任务
type OfflineEvent struct {
	ExternalTaskID string
	Failed         bool
	Message        string
}

// SubmitResult 提交结果。候选执行器多于一个时任务挂起在 choosing，
// 由调用方收集用户选择后再调用 ChooseTarget
type SubmitResult struct {
	Task        *model.WorkflowTask `json:"task"`
	NeedsChoice bool                `json:"needs_choice"`
	Options     []ExecutorOption    `json:"options,omitempty"`
}

// WorkflowEngine 任务流水线引擎，独占 WorkflowTask 的状态推进。
// 流水线的续跑由固定大小的工作者池执行，队列里只传任务ID，
// 工作者无状态，重启后可以从数据库恢复
type WorkflowEngine struct {
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config

	classifier LinkClassifier
	resolver   *TargetResolver
	shareSave  map[string]ShareSaveExecutor
	offline    map[string]OfflineSubmitExecutor
	options    map[string]ExecutorOption

	offlineStore *OfflineTaskService

	organize OrganizeExecutor
	strm     StrmExecutor
	refresh  RefreshExecutor
	notify   NotifyExecutor

	jobs   chan uint
	events chan OfflineEvent
	stopCh chan struct{}
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

// WorkflowEngineDeps 引擎的协作方集合，统一注入避免散落的全局单例
type WorkflowEngineDeps struct {
	Classifier   LinkClassifier
	ShareSave    map[string]ShareSaveExecutor
	Offline      map[string]OfflineSubmitExecutor
	OfflineStore *OfflineTaskService
	Organize     OrganizeExecutor
	Strm         StrmExecutor
	Refresh      RefreshExecutor
	Notify       NotifyExecutor
}

// 执行器的展示名称
var executorNames = map[string]string{
	ExecutorShareSave115: "115 分享转存",
	ExecutorOffline115:   "115 离线下载",
}

// 内置执行器ID
const (
	ExecutorShareSave115 = "share_save_115"
	ExecutorOffline115   = "offline_115"
)

// NewWorkflowEngine 创建流水线引擎
func NewWorkflowEngine(db *gorm.DB, cfg *config.Config, log *logger.Logger, deps WorkflowEngineDeps) *WorkflowEngine {
	options := make(map[string]ExecutorOption)
	shareSaveOpts := make([]ExecutorOption, 0, len(deps.ShareSave))
	for id := range deps.ShareSave {
		opt := ExecutorOption{ID: id, Name: executorName(id), Kind: ExecutorKindShareSave}
		options[id] = opt
		shareSaveOpts = append(shareSaveOpts, opt)
	}
	offlineOpts := make([]ExecutorOption, 0, len(deps.Offline))
	for id := range deps.Offline {
		opt := ExecutorOption{ID: id, Name: executorName(id), Kind: ExecutorKindOffline}
		options[id] = opt
		offlineOpts = append(offlineOpts, opt)
	}

	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}

	return &WorkflowEngine{
		db:           db,
		logger:       log,
		cfg:          cfg,
		classifier:   deps.Classifier,
		resolver:     NewTargetResolver(shareSaveOpts, offlineOpts),
		shareSave:    deps.ShareSave,
		offline:      deps.Offline,
		options:      options,
		offlineStore: deps.OfflineStore,
		organize:     deps.Organize,
		strm:         deps.Strm,
		refresh:      deps.Refresh,
		notify:       deps.Notify,
		jobs:         make(chan uint, 256),
		events:       make(chan OfflineEvent, 64),
		stopCh:       make(chan struct{}),
	}
}

func executorName(id string) string {
	if name, ok := executorNames[id]; ok {
		return name
	}
	return id
}

// Events 返回离线事件队列的写入端，供对账服务使用
func (e *WorkflowEngine) Events() chan<- OfflineEvent {
	return e.events
}

// Start 启动流水线工作者和事件派发协程
func (e *WorkflowEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true

	workers := e.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.wg.Add(1)
	go e.dispatchEvents()

	// 重启恢复：把上次运行中挂起在执行阶段的任务重新入队
	e.requeueInterrupted()

	e.logger.Infof("流水线引擎已启动，工作者数量: %d", workers)
}

// Stop 停止引擎并等待在途任务结束
func (e *WorkflowEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.wg.Wait()
	e.logger.Info("流水线引擎已停止")
}

// Submit 提交一段原始文本：分类、解析执行器、分派。
// 分类失败或无执行器可用时同步报错，不创建任务
func (e *WorkflowEngine) Submit(ctx context.Context, chatID, userID int64, rawText string) (*SubmitResult, error) {
	link := e.classifier.Classify(rawText)
	if link.Kind == model.LinkKindUnknown {
		return nil, ErrUnsupportedLink
	}

	options := e.resolver.Resolve(link)
	if len(options) == 0 {
		return nil, ErrUnsupportedLink
	}

	task := &model.WorkflowTask{
		ChatID:  chatID,
		UserID:  userID,
		Link:    link,
		RawText: rawText,
		Status:  model.WorkflowStatusPending,
	}
	if err := e.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("创建任务失败: %w", err)
	}

	if len(options) > 1 {
		if err := e.advance(task, model.WorkflowStatusChoosing); err != nil {
			return nil, err
		}
		e.logger.Infof("任务 %d 有 %d 个候选执行器，等待选择", task.ID, len(options))
		return &SubmitResult{Task: task, NeedsChoice: true, Options: options}, nil
	}

	if err := e.delegate(ctx, task, options[0]); err != nil {
		return nil, err
	}
	return &SubmitResult{Task: task}, nil
}

// ChooseTarget 为挂起在 choosing 的任务选定执行器
func (e *WorkflowEngine) ChooseTarget(ctx context.Context, taskID uint, executorID string) (*model.WorkflowTask, error) {
	task, err := e.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.WorkflowStatusChoosing {
		return nil, ErrInvalidStateTransition
	}

	option, ok := e.options[executorID]
	if !ok {
		return nil, ErrUnknownExecutor
	}
	// 选择必须在该链接的候选范围内
	valid := false
	for _, candidate := range e.resolver.Resolve(task.Link) {
		if candidate.ID == executorID {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrUnknownExecutor
	}

	if err := e.delegate(ctx, task, option); err != nil {
		return nil, err
	}
	return task, nil
}

// delegate 按执行器类型分派任务。
// 两条路径都先用条件更新占有任务再碰执行器，
// 并发的重复选择只有一个能通过，输掉的一方看不到任何副作用。
// 同步转存路径在执行器返回后立即推进到整理阶段；
// 离线路径创建离线任务后挂起，不等待下载
func (e *WorkflowEngine) delegate(ctx context.Context, task *model.WorkflowTask, option ExecutorOption) error {
	switch option.Kind {
	case ExecutorKindShareSave:
		executor := e.shareSave[option.ID]
		if err := e.claim(task, model.WorkflowStatusSaving, option.ID); err != nil {
			return err
		}
		if err := executor.Save(ctx, task.Link, e.cfg.Pan115.SaveDirID); err != nil {
			e.failTask(task, fmt.Errorf("转存失败: %w", err))
			return nil
		}
		if err := e.advance(task, model.WorkflowStatusOrganizing); err != nil {
			return err
		}
		e.enqueue(task.ID)
		return nil

	case ExecutorKindOffline:
		executor := e.offline[option.ID]
		if err := e.claim(task, model.WorkflowStatusOffline, option.ID); err != nil {
			return err
		}

		offlineTask, err := e.offlineStore.Create(task.Link.URL, e.cfg.Pan115.SaveDirID, OwnerWorkflow)
		if err != nil {
			e.failTask(task, fmt.Errorf("创建离线任务失败: %w", err))
			return nil
		}

		task.OfflineTaskID = &offlineTask.ID
		if err := e.db.Model(task).Update("offline_task_id", offlineTask.ID).Error; err != nil {
			e.failTask(task, fmt.Errorf("关联离线任务失败: %w", err))
			return nil
		}

		externalID, err := executor.Submit(ctx, task.Link.URL, e.cfg.Pan115.SaveDirID)
		if err != nil {
			e.offlineStore.MarkFailed(offlineTask.ID, err)
			e.failTask(task, fmt.Errorf("提交离线下载失败: %w", err))
			return nil
		}
		if err := e.offlineStore.AttachExternalID(offlineTask.ID, externalID); err != nil {
			e.offlineStore.MarkFailed(offlineTask.ID, err)
			e.failTask(task, err)
			return nil
		}

		e.logger.Infof("任务 %d 已挂起等待离线下载: external_task_id=%s", task.ID, externalID)
		return nil
	}

	return ErrUnknownExecutor
}

// claim 原子地占有任务：状态推进和执行器记录是同一条条件更新，
// 命中行数为 0 说明别的调用方已经抢先分派
func (e *WorkflowEngine) claim(task *model.WorkflowTask, next model.WorkflowStatus, executorID string) error {
	if !task.Status.CanAdvanceTo(next) {
		return ErrInvalidStateTransition
	}

	result := e.db.Model(&model.WorkflowTask{}).
		Where("id = ? AND status = ?", task.ID, task.Status).
		Updates(map[string]interface{}{
			"status":          next,
			"chosen_executor": executorID,
		})
	if result.Error != nil {
		return fmt.Errorf("更新任务状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	task.Status = next
	task.ChosenExecutor = executorID
	return nil
}

// GetTask 查询单个任务
func (e *WorkflowEngine) GetTask(taskID uint) (*model.WorkflowTask, error) {
	var task model.WorkflowTask
	if err := e.db.First(&task, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// GetPendingTasks 查询所有未到终态的任务
func (e *WorkflowEngine) GetPendingTasks() ([]model.WorkflowTask, error) {
	var tasks []model.WorkflowTask
	err := e.db.
		Where("status NOT IN (?)", []model.WorkflowStatus{model.WorkflowStatusCompleted, model.WorkflowStatusFailed}).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListTasks 分页查询任务（审计用，任务永不删除）
func (e *WorkflowEngine) ListTasks(limit, offset int) ([]model.WorkflowTask, int64, error) {
	var tasks []model.WorkflowTask
	var total int64
	if err := e.db.Model(&model.WorkflowTask{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := e.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&tasks).Error
	return tasks, total, err
}

// dispatchEvents 消费对账服务产生的离线终态事件
func (e *WorkflowEngine) dispatchEvents() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case ev := <-e.events:
			if ev.Failed {
				e.onOfflineTaskFailed(ev.ExternalTaskID, ev.Message)
			} else {
				e.onOfflineTaskCompleted(ev.ExternalTaskID)
			}
		}
	}
}

// onOfflineTaskCompleted 离线下载完成，恢复对应任务。
// 通过 offline -> organizing 的条件更新保证幂等：
// 已恢复过的任务这里不会命中任何行，重复事件是空操作
func (e *WorkflowEngine) onOfflineTaskCompleted(externalTaskID string) {
	task, err := e.findByExternalID(externalTaskID)
	if err != nil {
		e.logger.Warnf("离线完成事件找不到对应任务: external_task_id=%s", externalTaskID)
		return
	}

	result := e.db.Model(&model.WorkflowTask{}).
		Where("id = ? AND status = ?", task.ID, model.WorkflowStatusOffline).
		Update("status", model.WorkflowStatusOrganizing)
	if result.Error != nil {
		e.logger.Errorf("恢复任务 %d 失败: %v", task.ID, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		e.logger.Debugf("任务 %d 已恢复过，忽略重复的完成事件", task.ID)
		return
	}

	e.logger.Infof("离线下载完成，任务 %d 进入整理阶段", task.ID)
	e.enqueue(task.ID)
}

// onOfflineTaskFailed 离线下载失败，任务转入失败终态
func (e *WorkflowEngine) onOfflineTaskFailed(externalTaskID, message string) {
	task, err := e.findByExternalID(externalTaskID)
	if err != nil {
		e.logger.Warnf("离线失败事件找不到对应任务: external_task_id=%s", externalTaskID)
		return
	}

	result := e.db.Model(&model.WorkflowTask{}).
		Where("id = ? AND status = ?", task.ID, model.WorkflowStatusOffline).
		Updates(map[string]interface{}{
			"status":        model.WorkflowStatusFailed,
			"error_message": "离线下载失败: " + message,
		})
	if result.Error != nil {
		e.logger.Errorf("标记任务 %d 失败时出错: %v", task.ID, result.Error)
	}
}

func (e *WorkflowEngine) findByExternalID(externalTaskID string) (*model.WorkflowTask, error) {
	offlineTask, err := e.offlineStore.GetByExternalID(externalTaskID)
	if err != nil {
		return nil, err
	}
	var task model.WorkflowTask
	if err := e.db.Where("offline_task_id = ?", offlineTask.ID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// enqueue 把任务ID投入工作者队列，队列满时丢给日志等待重启恢复
func (e *WorkflowEngine) enqueue(taskID uint) {
	select {
	case e.jobs <- taskID:
	default:
		e.logger.Warnf("流水线队列已满，任务 %d 等待重启后恢复", taskID)
	}
}

// requeueInterrupted 把处于执行阶段的任务重新入队（进程重启恢复）
func (e *WorkflowEngine) requeueInterrupted() {
	var tasks []model.WorkflowTask
	stages := []model.WorkflowStatus{
		model.WorkflowStatusOrganizing,
		model.WorkflowStatusStrm,
		model.WorkflowStatusRefreshing,
		model.WorkflowStatusNotifying,
	}
	if err := e.db.Where("status IN (?)", stages).Find(&tasks).Error; err != nil {
		e.logger.Errorf("查询中断任务失败: %v", err)
		return
	}
	for _, task := range tasks {
		e.enqueue(task.ID)
	}
	if len(tasks) > 0 {
		e.logger.Infof("恢复了 %d 个中断的流水线任务", len(tasks))
	}
}

// worker 流水线工作者
func (e *WorkflowEngine) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case taskID := <-e.jobs:
			e.runPipeline(taskID)
		}
	}
}

// runPipeline 从任务当前状态开始依次执行剩余步骤。
// 任何一步失败都让任务进入失败终态，已完成的步骤不回滚；
// 通知步骤例外，失败只记日志，任务仍然算完成
func (e *WorkflowEngine) runPipeline(taskID uint) {
	ctx := context.Background()

	for {
		task, err := e.GetTask(taskID)
		if err != nil {
			e.logger.Errorf("流水线加载任务 %d 失败: %v", taskID, err)
			return
		}

		switch task.Status {
		case model.WorkflowStatusOrganizing:
			result, err := e.organize.Organize(ctx, task)
			if err != nil {
				e.failTask(task, fmt.Errorf("整理失败: %w", err))
				return
			}
			updates := map[string]interface{}{
				"organized_path": result.OrganizedPath,
				"media_info":     result.MediaInfo,
			}
			if err := e.db.Model(task).Updates(updates).Error; err != nil {
				e.logger.Errorf("保存整理结果失败: %v", err)
			}
			task.OrganizedPath = result.OrganizedPath
			if err := e.advance(task, model.WorkflowStatusStrm); err != nil {
				return
			}

		case model.WorkflowStatusStrm:
			if err := e.strm.Generate(ctx, task); err != nil {
				e.failTask(task, fmt.Errorf("生成 STRM 失败: %w", err))
				return
			}
			if err := e.advance(task, model.WorkflowStatusRefreshing); err != nil {
				return
			}

		case model.WorkflowStatusRefreshing:
			if err := e.refresh.Refresh(ctx); err != nil {
				e.failTask(task, fmt.Errorf("刷新媒体库失败: %w", err))
				return
			}
			if err := e.advance(task, model.WorkflowStatusNotifying); err != nil {
				return
			}

		case model.WorkflowStatusNotifying:
			if err := e.notify.Notify(ctx, task); err != nil {
				// 通知失败不改变任务结果
				e.logger.Warnf("任务 %d 通知发送失败: %v", task.ID, err)
			}
			if err := e.advance(task, model.WorkflowStatusCompleted); err != nil {
				return
			}
			e.logger.Infof("任务 %d 流水线完成", task.ID)
			return

		default:
			// 不在执行阶段（已失败/已完成/挂起中），没有可跑的步骤
			return
		}
	}
}

// advance 状态推进。条件更新保证只前进不后退，
// 竞争时返回 ErrInvalidStateTransition 且状态保持不变
func (e *WorkflowEngine) advance(task *model.WorkflowTask, next model.WorkflowStatus) error {
	if !task.Status.CanAdvanceTo(next) {
		return ErrInvalidStateTransition
	}

	result := e.db.Model(&model.WorkflowTask{}).
		Where("id = ? AND status = ?", task.ID, task.Status).
		Update("status", next)
	if result.Error != nil {
		return fmt.Errorf("更新任务状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	task.Status = next
	return nil
}

// failTask 把任务置为失败终态并记录错误，不回滚已完成的步骤
func (e *WorkflowEngine) failTask(task *model.WorkflowTask, cause error) {
	e.logger.Errorf("任务 %d 失败: %v", task.ID, cause)

	result := e.db.Model(&model.WorkflowTask{}).
		Where("id = ? AND status NOT IN (?)", task.ID,
			[]model.WorkflowStatus{model.WorkflowStatusCompleted, model.WorkflowStatusFailed}).
		Updates(map[string]interface{}{
			"status":        model.WorkflowStatusFailed,
			"error_message": cause.Error(),
		})
	if result.Error != nil {
		e.logger.Errorf("标记任务 %d 失败时出错: %v", task.ID, result.Error)
		return
	}
	task.Status = model.WorkflowStatusFailed
	task.ErrorMessage = cause.Error()
}
