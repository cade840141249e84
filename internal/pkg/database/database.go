package database

import (
	"github.com/eduadocs/backend/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN 进程内共享的内存数据库，进程退出即丢弃
const MemoryDSN = "file::memory:?cache=shared"

func InitDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	// 使用 github.com/glebarez/sqlite 驱动
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.WizardSession{}); err != nil {
		return nil, err
	}
	return db, nil
}
