package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"link-porter/app/config"
	"link-porter/app/linkkit"
	"link-porter/app/logger"
	"link-porter/app/model"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// WorkflowSubmitter 订阅服务触发流水线的入口
type WorkflowSubmitter interface {
	Submit(ctx context.Context, chatID, userID int64, rawText string) (*SubmitResult, error)
}

// SubscriptionService 订阅轮询服务。
// 周期性地用关键字查询搜索索引，命中的资源去重、过滤后交给流水线引擎。
// 历史行在触发流水线之前写入，配合唯一索引保证并发轮询下
// 同一资源至多触发一次
type SubscriptionService struct {
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config

	search SearchIndex
	engine WorkflowSubmitter

	cron        *cron.Cron
	entryID     cron.EntryID
	searchCache *cache.Cache

	running bool
	mu      sync.Mutex
}

// NewSubscriptionService 创建订阅服务
func NewSubscriptionService(db *gorm.DB, cfg *config.Config, log *logger.Logger, search SearchIndex, engine WorkflowSubmitter) *SubscriptionService {
	ttl := time.Duration(cfg.Subscription.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SubscriptionService{
		db:          db,
		logger:      log,
		cfg:         cfg,
		search:      search,
		engine:      engine,
		cron:        cron.New(),
		searchCache: cache.New(ttl, 10*time.Minute),
	}
}

// Start 启动周期轮询
func (s *SubscriptionService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	interval := s.cfg.Subscription.Interval()
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.CheckAll)
	if err != nil {
		s.logger.Errorf("注册订阅轮询失败: %v", err)
		return
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	s.logger.Infof("订阅轮询服务已启动，间隔 %s", interval)
}

// Stop 停止轮询并等待在途的检查结束
func (s *SubscriptionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("订阅轮询服务已停止")
}

// Reschedule 运行期调整轮询间隔，仍然受下限约束
func (s *SubscriptionService) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval < config.MinPollInterval {
		interval = config.MinPollInterval
	}

	if s.running {
		s.cron.Remove(s.entryID)
		entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.CheckAll)
		if err != nil {
			return fmt.Errorf("重新注册订阅轮询失败: %w", err)
		}
		s.entryID = entryID
	}

	s.logger.Infof("订阅轮询间隔已调整为 %s", interval)
	return nil
}

// CheckAll 检查全部启用的订阅。单个订阅出错不影响其他订阅
func (s *SubscriptionService) CheckAll() {
	var subs []model.Subscription
	if err := s.db.Where("enabled = ?", true).Find(&subs).Error; err != nil {
		s.logger.Errorf("查询启用订阅失败: %v", err)
		return
	}

	for i := range subs {
		if err := s.CheckOne(&subs[i]); err != nil {
			s.logger.Warnf("检查订阅 %d(%s) 失败: %v", subs[i].ID, subs[i].Keyword, err)
		}
	}
}

// CheckOne 检查单个订阅：搜索、去重、过滤、触发。
// 历史行先于流水线写入，重复资源被唯一索引拦下后静默跳过
func (s *SubscriptionService) CheckOne(sub *model.Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := s.search.Search(ctx, sub.Keyword)
	if err != nil {
		return fmt.Errorf("搜索失败: %w", err)
	}

	now := time.Now()
	if err := s.db.Model(sub).Update("last_checked_at", &now).Error; err != nil {
		s.logger.Warnf("更新订阅 %d 检查时间失败: %v", sub.ID, err)
	}

	for _, result := range results {
		if result.ResourceURL == "" {
			continue
		}
		if !s.matches(sub, result.Title) {
			continue
		}
		s.trigger(ctx, sub, result)
	}
	return nil
}

// matches 过滤规则：所有包含规则都要命中，任何排除规则都不能命中。
// 指定集订阅额外要求标题解析出的季集完全一致
func (s *SubscriptionService) matches(sub *model.Subscription, title string) bool {
	for _, rule := range sub.Includes() {
		if !matchRule(title, rule) {
			return false
		}
	}
	for _, rule := range sub.Excludes() {
		if matchRule(title, rule) {
			return false
		}
	}

	if sub.IsEpisodeTargeted() {
		season, episode := linkkit.ParseEpisode(title)
		if season != sub.Season || episode != sub.Episode {
			return false
		}
	}
	return true
}

// matchRule 规则按不区分大小写的正则解释，
// 编译失败时退化为不区分大小写的子串包含，绝不静默放行
func matchRule(title, rule string) bool {
	re, err := regexp.Compile("(?i)" + rule)
	if err != nil {
		return strings.Contains(strings.ToLower(title), strings.ToLower(rule))
	}
	return re.MatchString(title)
}

// trigger 为命中的资源写历史行并触发流水线。
// 写入发生在触发之前，(subscription_id, resource_url) 唯一索引
// 保证并发轮询下至多触发一次
func (s *SubscriptionService) trigger(ctx context.Context, sub *model.Subscription, result SearchResult) {
	history := &model.SubscriptionHistory{
		SubscriptionID: sub.ID,
		ResourceTitle:  result.Title,
		ResourceURL:    result.ResourceURL,
		Provider:       result.Provider,
		Status:         model.HistoryStatusFound,
	}
	if err := s.db.Create(history).Error; err != nil {
		if isDuplicateErr(err) {
			// 已经处理过的资源，静默跳过
			return
		}
		s.logger.Errorf("写入订阅历史失败: %v", err)
		return
	}

	s.logger.Infof("订阅 %d(%s) 命中资源: %s", sub.ID, sub.Keyword, result.Title)

	status := model.HistoryStatusSaved
	if _, err := s.engine.Submit(ctx, sub.ChatID, 0, result.ResourceURL); err != nil {
		s.logger.Warnf("订阅 %d 触发流水线失败: %v", sub.ID, err)
		status = model.HistoryStatusFailed
	}
	if err := s.db.Model(history).Update("status", status).Error; err != nil {
		s.logger.Errorf("更新订阅历史状态失败: %v", err)
	}
}

func isDuplicateErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CheckAvailability 按关键字即时搜索，结果短暂缓存避免打爆搜索源
func (s *SubscriptionService) CheckAvailability(ctx context.Context, keyword string) ([]SearchResult, error) {
	if cached, ok := s.searchCache.Get(keyword); ok {
		return cached.([]SearchResult), nil
	}

	results, err := s.search.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}
	s.searchCache.SetDefault(keyword, results)
	return results, nil
}

// ListSubscriptions 查询全部订阅
func (s *SubscriptionService) ListSubscriptions() ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// CreateSubscription 新增订阅
func (s *SubscriptionService) CreateSubscription(sub *model.Subscription) error {
	if strings.TrimSpace(sub.Keyword) == "" {
		return fmt.Errorf("订阅关键字不能为空")
	}
	return s.db.Create(sub).Error
}

// UpdateSubscription 更新订阅
func (s *SubscriptionService) UpdateSubscription(sub *model.Subscription) error {
	return s.db.Save(sub).Error
}

// DeleteSubscription 删除订阅（历史保留）
func (s *SubscriptionService) DeleteSubscription(id uint) error {
	return s.db.Delete(&model.Subscription{}, id).Error
}

// GetHistory 分页查询订阅历史
func (s *SubscriptionService) GetHistory(subscriptionID uint, limit, offset int) ([]model.SubscriptionHistory, int64, error) {
	var entries []model.SubscriptionHistory
	var total int64

	query := s.db.Model(&model.SubscriptionHistory{}).Where("subscription_id = ?", subscriptionID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
