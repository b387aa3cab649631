package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/model"
	"link-porter/app/pan115"

	"gorm.io/gorm"
)

// 离线任务的创建方
const (
	OwnerWorkflow     = "workflow"
	OwnerSubscription = "subscription"
)

// OfflineTaskService 离线任务存储与对账服务。
// 本地记录由这里和取消/重试操作独占修改，供应商侧是最终一致的，
// 周期对账把两边拉平。终态事件通过事件队列交给流水线引擎，
// notified 标志的条件翻转保证每个任务只派发一次
type OfflineTaskService struct {
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config

	provider  ProviderStatusQuery
	submitter OfflineSubmitExecutor
	events    chan<- OfflineEvent

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewOfflineTaskService 创建离线任务服务
func NewOfflineTaskService(db *gorm.DB, cfg *config.Config, log *logger.Logger, provider ProviderStatusQuery) *OfflineTaskService {
	return &OfflineTaskService{
		db:       db,
		logger:   log,
		cfg:      cfg,
		provider: provider,
		stopCh:   make(chan struct{}),
	}
}

// BindEvents 绑定终态事件队列（流水线引擎的写入端）
func (s *OfflineTaskService) BindEvents(events chan<- OfflineEvent) {
	s.events = events
}

// BindSubmitter 绑定离线提交执行器，重试时用它重新拿供应商任务ID
func (s *OfflineTaskService) BindSubmitter(submitter OfflineSubmitExecutor) {
	s.submitter = submitter
}

// Start 启动周期对账
func (s *OfflineTaskService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go s.reconcileLoop()

	s.logger.Infof("离线任务对账服务已启动，间隔 %d 秒", s.cfg.Offline.ReconcileInterval)
}

// Stop 停止对账服务
func (s *OfflineTaskService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("离线任务对账服务已停止")
}

func (s *OfflineTaskService) reconcileLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.cfg.Offline.ReconcileInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Reconcile()
		}
	}
}

// Create 创建一条等待中的离线任务记录，供应商提交由执行器负责
func (s *OfflineTaskService) Create(sourceURL, targetContainerID, owner string) (*model.OfflineTask, error) {
	task := &model.OfflineTask{
		SourceURL:         sourceURL,
		TargetContainerID: targetContainerID,
		Status:            model.OfflineStatusPending,
		Owner:             owner,
	}
	if err := s.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("创建离线任务记录失败: %w", err)
	}
	return task, nil
}

// AttachExternalID 绑定供应商任务ID，只允许一次。
// 重复绑定同一个ID视为幂等成功，绑定不同的ID报 ErrAlreadyAttached
func (s *OfflineTaskService) AttachExternalID(id uint, externalTaskID string) error {
	result := s.db.Model(&model.OfflineTask{}).
		Where("id = ? AND (external_task_id = '' OR external_task_id IS NULL)", id).
		Update("external_task_id", externalTaskID)
	if result.Error != nil {
		return fmt.Errorf("绑定供应商任务ID失败: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	task, err := s.Get(id)
	if err != nil {
		return err
	}
	if task.ExternalTaskID == externalTaskID {
		return nil
	}
	return ErrAlreadyAttached
}

// Get 查询单条离线任务
func (s *OfflineTaskService) Get(id uint) (*model.OfflineTask, error) {
	var task model.OfflineTask
	if err := s.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// GetByExternalID 按供应商任务ID查询
func (s *OfflineTaskService) GetByExternalID(externalTaskID string) (*model.OfflineTask, error) {
	var task model.OfflineTask
	if err := s.db.Where("external_task_id = ?", externalTaskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// List 按状态分页查询
func (s *OfflineTaskService) List(status string, limit, offset int) ([]model.OfflineTask, int64, error) {
	var tasks []model.OfflineTask
	var total int64

	query := s.db.Model(&model.OfflineTask{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Cancel 取消离线任务。只允许从等待中/下载中取消，
// 本地状态立即生效，供应商侧的删除是尽力而为，不等待结果
func (s *OfflineTaskService) Cancel(id uint) error {
	task, err := s.Get(id)
	if err != nil {
		return err
	}
	if !task.CanCancel() {
		return ErrInvalidStateTransition
	}

	result := s.db.Model(&model.OfflineTask{}).
		Where("id = ? AND status IN (?)", id,
			[]model.OfflineStatus{model.OfflineStatusPending, model.OfflineStatusDownloading}).
		Update("status", model.OfflineStatusCancelled)
	if result.Error != nil {
		return fmt.Errorf("取消离线任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	if task.ExternalTaskID != "" {
		externalID := task.ExternalTaskID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Offline.Timeout())
			defer cancel()
			if err := s.provider.Cancel(ctx, externalID); err != nil {
				s.logger.Warnf("供应商侧取消失败（忽略）: external_task_id=%s, err=%v", externalID, err)
			}
		}()
	}

	s.logger.Infof("离线任务 %d 已取消", id)
	return nil
}

// Retry 重试失败的离线任务：清空进度和旧的供应商任务ID、复位通知标志，
// 然后立刻重新提交给供应商，拿到新的供应商任务ID后重新进入对账。
// 重新提交失败时任务回到失败状态，可以再次重试
func (s *OfflineTaskService) Retry(id uint) error {
	task, err := s.Get(id)
	if err != nil {
		return err
	}

	result := s.db.Model(&model.OfflineTask{}).
		Where("id = ? AND status = ?", id, model.OfflineStatusFailed).
		Updates(map[string]interface{}{
			"status":           model.OfflineStatusPending,
			"progress_percent": 0,
			"external_task_id": "",
			"notified":         false,
			"error_message":    "",
		})
	if result.Error != nil {
		return fmt.Errorf("重试离线任务失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}

	if s.submitter == nil {
		s.logger.Warnf("未绑定离线提交执行器，离线任务 %d 停留在等待状态", id)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Offline.Timeout())
	defer cancel()

	externalID, err := s.submitter.Submit(ctx, task.SourceURL, task.TargetContainerID)
	if err != nil {
		s.MarkFailed(id, fmt.Errorf("重新提交失败: %w", err))
		return fmt.Errorf("重新提交离线下载失败: %w", err)
	}
	if err := s.AttachExternalID(id, externalID); err != nil {
		s.MarkFailed(id, err)
		return err
	}

	s.logger.Infof("离线任务 %d 已重新提交: external_task_id=%s", id, externalID)
	return nil
}

// MarkFailed 供应商提交握手失败时标记任务失败
func (s *OfflineTaskService) MarkFailed(id uint, cause error) {
	result := s.db.Model(&model.OfflineTask{}).
		Where("id = ? AND status IN (?)", id,
			[]model.OfflineStatus{model.OfflineStatusPending, model.OfflineStatusDownloading}).
		Updates(map[string]interface{}{
			"status":        model.OfflineStatusFailed,
			"error_message": cause.Error(),
		})
	if result.Error != nil {
		s.logger.Errorf("标记离线任务 %d 失败时出错: %v", id, result.Error)
	}
}

// Reconcile 对账一轮：逐行查询供应商状态并同步本地记录。
// 单行查询失败只记日志继续下一行，绝不因此改动本地状态。
// 行与行互相独立，重叠的对账轮次或多实例并发都是安全的：
// 终态落库和 notified 翻转是同一条条件更新，只有命中的那一次会派发事件
func (s *OfflineTaskService) Reconcile() {
	var tasks []model.OfflineTask
	err := s.db.
		Where("status IN (?) AND external_task_id != ''",
			[]model.OfflineStatus{model.OfflineStatusPending, model.OfflineStatusDownloading}).
		Find(&tasks).Error
	if err != nil {
		s.logger.Errorf("查询待对账任务失败: %v", err)
		return
	}

	for _, task := range tasks {
		s.reconcileOne(&task)
	}
}

func (s *OfflineTaskService) reconcileOne(task *model.OfflineTask) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Offline.Timeout())
	defer cancel()

	snapshot, err := s.provider.Status(ctx, task.ExternalTaskID)
	if err != nil {
		// 瞬时失败，下一轮再试
		s.logger.Warnf("查询供应商状态失败: external_task_id=%s, err=%v", task.ExternalTaskID, err)
		return
	}

	localStatus := pan115.MapProviderStatus(snapshot.Status)

	if !localStatus.IsTerminal() {
		result := s.db.Model(&model.OfflineTask{}).
			Where("id = ? AND status IN (?)", task.ID,
				[]model.OfflineStatus{model.OfflineStatusPending, model.OfflineStatusDownloading}).
			Updates(map[string]interface{}{
				"status":              localStatus,
				"progress_percent":    snapshot.ProgressPercent,
				"speed_bytes_per_sec": snapshot.SpeedBytesPerSec,
			})
		if result.Error != nil {
			s.logger.Errorf("同步离线任务 %d 进度失败: %v", task.ID, result.Error)
		}
		return
	}

	// 终态：状态落库和 notified 翻转必须是同一次条件更新，
	// 命中行数为 1 的调用方独占事件派发权
	updates := map[string]interface{}{
		"status":              localStatus,
		"progress_percent":    snapshot.ProgressPercent,
		"speed_bytes_per_sec": snapshot.SpeedBytesPerSec,
		"notified":            true,
	}
	if localStatus == model.OfflineStatusFailed {
		updates["error_message"] = "供应商报告下载失败"
	}

	result := s.db.Model(&model.OfflineTask{}).
		Where("id = ? AND notified = ? AND status IN (?)", task.ID, false,
			[]model.OfflineStatus{model.OfflineStatusPending, model.OfflineStatusDownloading}).
		Updates(updates)
	if result.Error != nil {
		s.logger.Errorf("同步离线任务 %d 终态失败: %v", task.ID, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		// 别的对账轮次已经处理过
		return
	}

	s.logger.Infof("离线任务 %d 到达终态 %s: external_task_id=%s", task.ID, localStatus, task.ExternalTaskID)

	if s.events == nil {
		s.logger.Warnf("事件队列未绑定，离线任务 %d 的终态事件被丢弃", task.ID)
		return
	}
	s.events <- OfflineEvent{
		ExternalTaskID: task.ExternalTaskID,
		Failed:         localStatus == model.OfflineStatusFailed,
		Message:        snapshot.Status,
	}
}
