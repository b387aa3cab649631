package model

import (
	"strings"
	"time"
)

// Subscription 资源订阅，按关键字周期性搜索并自动转存命中的资源
type Subscription struct {
	ID             uint       `json:"id" gorm:"primarykey"`
	Keyword        string     `json:"keyword" gorm:"size:200;not null"`
	TargetProvider string     `json:"target_provider" gorm:"size:50;default:115;comment:目标网盘"`
	IncludeRules   string     `json:"include_rules" gorm:"type:text;comment:包含规则，逗号分隔"`
	ExcludeRules   string     `json:"exclude_rules" gorm:"type:text;comment:排除规则，逗号分隔"`
	Season         int        `json:"season" gorm:"default:0;comment:指定季，0表示不限定"`
	Episode        int        `json:"episode" gorm:"default:0;comment:指定集，0表示不限定"`
	Enabled        bool       `json:"enabled" gorm:"default:true;index"`
	ChatID         int64      `json:"chat_id" gorm:"comment:命中后通知的会话ID"`
	LastCheckedAt  *time.Time `json:"last_checked_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}

// HistoryStatus 订阅历史状态常量
const (
	HistoryStatusFound  = "found"  // 已发现，尚未转存完成
	HistoryStatusSaved  = "saved"  // 已触发转存
	HistoryStatusFailed = "failed" // 触发转存失败
)

// SubscriptionHistory 订阅命中历史，只追加。
// (subscription_id, resource_url) 唯一索引保证并发轮询下同一资源至多触发一次
type SubscriptionHistory struct {
	ID             uint      `json:"id" gorm:"primarykey"`
	SubscriptionID uint      `json:"subscription_id" gorm:"not null;uniqueIndex:idx_sub_resource"`
	ResourceTitle  string    `json:"resource_title" gorm:"size:500"`
	ResourceURL    string    `json:"resource_url" gorm:"size:1000;not null;uniqueIndex:idx_sub_resource"`
	Provider       string    `json:"provider" gorm:"size:50"`
	Status         string    `json:"status" gorm:"size:20;default:found"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName 指定表名
func (SubscriptionHistory) TableName() string {
	return "subscription_histories"
}

// IsEpisodeTargeted 是否为指定集订阅
func (s *Subscription) IsEpisodeTargeted() bool {
	return s.Season > 0 && s.Episode > 0
}

// Includes 返回包含规则列表
func (s *Subscription) Includes() []string {
	return splitRules(s.IncludeRules)
}

// Excludes 返回排除规则列表
func (s *Subscription) Excludes() []string {
	return splitRules(s.ExcludeRules)
}

func splitRules(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	rules := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			rules = append(rules, p)
		}
	}
	return rules
}
