package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"order-matcher/internal/engine"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TradeRecord is the persisted form of an executed trade
type TradeRecord struct {
	ID          uint            `gorm:"primaryKey"`
	TradeID     string          `gorm:"size:64;uniqueIndex"`
	BuyOrderID  string          `gorm:"size:64;index"`
	SellOrderID string          `gorm:"size:64;index"`
	Price       decimal.Decimal `gorm:"type:text"`
	Quantity    decimal.Decimal `gorm:"type:text"`
	ExecutedAt  int64           `gorm:"index"` // Unix milliseconds
	CreatedAt   time.Time
}

func newRecord(t engine.Trade) TradeRecord {
	return TradeRecord{
		TradeID:     t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		ExecutedAt:  t.Timestamp,
	}
}

func (r TradeRecord) trade() engine.Trade {
	return engine.Trade{
		ID:          r.TradeID,
		BuyOrderID:  r.BuyOrderID,
		SellOrderID: r.SellOrderID,
		Price:       r.Price,
		Quantity:    r.Quantity,
		Timestamp:   r.ExecutedAt,
	}
}

// Journal appends executed trades to a SQLite file for export.
// The matching engine never reads it back.
type Journal struct {
	db *gorm.DB
}

// Open creates or opens the journal at path
func Open(path string) (*Journal, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	if err := db.AutoMigrate(&TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Name() string { return "journal" }

// Publish stores a batch of trades in one transaction
func (j *Journal) Publish(ctx context.Context, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = newRecord(t)
	}
	return j.db.WithContext(ctx).Create(&records).Error
}

// Recent returns up to limit trades, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]engine.Trade, error) {
	var records []TradeRecord
	err := j.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}

	trades := make([]engine.Trade, len(records))
	for i, r := range records {
		trades[i] = r.trade()
	}
	return trades, nil
}

// Count returns the number of stored trades
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.WithContext(ctx).Model(&TradeRecord{}).Count(&n).Error
	return n, err
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
