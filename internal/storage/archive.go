// Package storage 把调用历史归档到 sqlite，供测试结束后做事后分析。
// 仅在显式配置 DSN 时启用，拦截核心自身不持久化任何状态。
package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"pagemock/internal/logger"
	"pagemock/pkg/model"
)

// HistoryRecord 归档后的单条调用历史
type HistoryRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:64"`
	Seq       int    `gorm:"index"` // 会话内到达顺序
	URL       string
	Method    string `gorm:"size:16"`
	Matched   bool
	RuleID    string `gorm:"size:64"`
	Timestamp int64
}

// TableName 指定归档表名
func (HistoryRecord) TableName() string { return "pagemock_history" }

// Archive 调用历史归档器
type Archive struct {
	db *gorm.DB
}

// Open 打开（必要时创建）归档库
func Open(dsn string, l logger.Logger) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(l)})
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(&HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// SaveHistory 批量写入一个会话的调用历史，保持到达顺序
func (a *Archive) SaveHistory(id model.SessionID, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]HistoryRecord, 0, len(entries))
	for i, e := range entries {
		rec := HistoryRecord{
			SessionID: string(id),
			Seq:       i,
			URL:       e.URL,
			Method:    e.Method,
			Matched:   e.Matched,
			Timestamp: e.Timestamp,
		}
		if e.Rule != nil {
			rec.RuleID = string(*e.Rule)
		}
		records = append(records, rec)
	}
	return a.db.Create(&records).Error
}

// LoadHistory 按到达顺序读回一个会话的归档历史
func (a *Archive) LoadHistory(id model.SessionID) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := a.db.Where("session_id = ?", string(id)).Order("seq").Find(&out).Error
	return out, err
}

// Close 关闭归档库
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
