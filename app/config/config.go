package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Pan115       Pan115Config       `mapstructure:"pan115"`
	Emby         EmbyConfig         `mapstructure:"emby"`
	MoviePilot   MoviePilotConfig   `mapstructure:"moviepilot"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Offline      OfflineConfig      `mapstructure:"offline"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	LinkDrop     LinkDropConfig     `mapstructure:"linkdrop"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// Pan115Config 115网盘配置
type Pan115Config struct {
	Cookie      string `mapstructure:"cookie"`       // 115 Cookie（UID/CID/SEID）
	AccessToken string `mapstructure:"access_token"` // 115开放平台访问令牌
	SaveDirID   string `mapstructure:"save_dir_id"`  // 转存/离线下载的目标目录ID
}

// EmbyConfig Emby 媒体服务器配置
type EmbyConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// MoviePilotConfig MoviePilot 配置（识别/整理/搜索）
type MoviePilotConfig struct {
	API      string `mapstructure:"api"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TelegramConfig Telegram 通知配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	API      string `mapstructure:"api"` // 可选，自建反代地址
}

// WorkflowConfig 任务流水线配置
type WorkflowConfig struct {
	Workers       int    `mapstructure:"workers"`         // 流水线工作者数量
	StrmLocalPath string `mapstructure:"strm_local_path"` // STRM 文件输出目录
	StrmPrefix    string `mapstructure:"strm_prefix"`     // STRM 内容的播放地址前缀
}

// OfflineConfig 离线下载对账配置
type OfflineConfig struct {
	ReconcileInterval int `mapstructure:"reconcile_interval"` // 对账间隔（秒）
	QueryTimeout      int `mapstructure:"query_timeout"`      // 单次查询超时（秒）
}

// SubscriptionConfig 订阅轮询配置
type SubscriptionConfig struct {
	PollInterval int `mapstructure:"poll_interval"` // 轮询间隔（秒）
	CacheTTL     int `mapstructure:"cache_ttl"`     // 搜索结果缓存时间（秒）
}

// LinkDropConfig 链接文件投递目录配置
type LinkDropConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`    // 监控目录
	ChatID  int64  `mapstructure:"chat_id"` // 投递任务归属的会话ID
}

// MinPollInterval 订阅轮询间隔下限，防止把搜索源打挂
const MinPollInterval = 60 * time.Second

func Load() *Config {
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5200")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24)
	viper.SetDefault("jwt.issuer", "link-porter")

	viper.SetDefault("pan115.save_dir_id", "0")

	viper.SetDefault("workflow.workers", 4)

	viper.SetDefault("offline.reconcile_interval", 30)
	viper.SetDefault("offline.query_timeout", 10)

	viper.SetDefault("subscription.poll_interval", 1800)
	viper.SetDefault("subscription.cache_ttl", 300)

	viper.SetDefault("linkdrop.enabled", false)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Workflow.Workers <= 0 {
		config.Workflow.Workers = 1
	}
	if config.Offline.ReconcileInterval <= 0 {
		return fmt.Errorf("离线任务对账间隔必须大于0")
	}
	if config.LinkDrop.Enabled && config.LinkDrop.Path == "" {
		return fmt.Errorf("已启用链接投递目录但未设置路径")
	}
	return nil
}

// Interval 返回订阅轮询间隔，强制下限
func (c *SubscriptionConfig) Interval() time.Duration {
	interval := time.Duration(c.PollInterval) * time.Second
	if interval < MinPollInterval {
		return MinPollInterval
	}
	return interval
}

// Timeout 返回单次供应商查询超时
func (c *OfflineConfig) Timeout() time.Duration {
	if c.QueryTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.QueryTimeout) * time.Second
}
