package database

import (
	"os"
	"path/filepath"

	"link-porter/app/config"
	"link-porter/app/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 全局数据库实例
var DB *gorm.DB

// Init 初始化数据库连接
func Init(cfg *config.Config, log *logger.Logger) error {
	dbPath := filepath.Join("data", "link-porter.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Errorf("创建数据库目录失败: %v", err)
		return err
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Errorf("连接数据库失败: %v", err)
		return err
	}

	DB = db
	log.Infof("数据库连接成功: %s", dbPath)

	if err := AutoMigrate(db); err != nil {
		log.Errorf("迁移表结构失败: %v", err)
		return err
	}

	if err := InitAdminUser(cfg, log); err != nil {
		log.Errorf("初始化管理员账户失败: %v", err)
		return err
	}

	return nil
}

// Close 关闭数据库连接
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}
