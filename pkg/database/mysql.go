package database

import (
	"time"

	"doc-smart-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenMySQL 建立 MySQL 数据库连接并返回 *gorm.DB。
// 显式返回实例而不是设置包级全局变量，调用方通过构造函数注入到各组件。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	log.Info("MySQL database connected successfully")
	return db, nil
}
