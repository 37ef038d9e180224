// Package gormsink persists price-tick and trade-result history to a SQL
// database via GORM. It is the durable counterpart to the Redis event bus:
// the bus is fire-and-forget for live observers, this sink is the
// queryable record of what the agent actually did.
package gormsink

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flowmint/mmagent/internal/events"
)

// PriceTickRecord is the database model for a recorded reference-price
// observation.
type PriceTickRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Pair        string    `gorm:"index;not null"`
	Reference   float64   `gorm:"not null"`
	BlockNumber uint64    `gorm:"not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (PriceTickRecord) TableName() string { return "price_ticks" }

// TradeEventRecord is the database model for one execution attempt.
type TradeEventRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Pair      string    `gorm:"index;not null"`
	Status    string    `gorm:"type:varchar(16);not null"` // "success" | "failed"
	TxHash    string    `gorm:"type:varchar(80)"`
	Reason    string    `gorm:"type:varchar(255)"`
	ProfitBps float64   `gorm:"not null"`
	AmountIn  string    `gorm:"type:varchar(78);comment:big.Int as string"`
	AmountOut string    `gorm:"type:varchar(78);comment:big.Int as string"`
	Timestamp time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (TradeEventRecord) TableName() string { return "trade_events" }

// Sink implements a persistence backend for the two event kinds the
// supervisor cares about keeping history of. Every method returns its write
// error to the caller.
type Sink struct {
	db *gorm.DB
}

// New opens dsn ("user:password@tcp(host:port)/dbname?charset=utf8mb4&
// parseTime=True&loc=Local") and migrates the sink's tables.
func New(dsn string) (*Sink, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormsink: failed to connect: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an already-open *gorm.DB (used by tests against sqlmock).
func NewWithDB(db *gorm.DB) (*Sink, error) {
	if err := db.AutoMigrate(&PriceTickRecord{}, &TradeEventRecord{}); err != nil {
		return nil, fmt.Errorf("gormsink: failed to migrate schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// RecordPriceTick persists a price_tick event's data. blockNumber is
// persisted for operational history even though it isn't part of the bus
// wire schema.
func (s *Sink) RecordPriceTick(pair string, d events.PriceTickData, blockNumber uint64, at time.Time) error {
	record := PriceTickRecord{
		Pair:        pair,
		Reference:   d.Reference,
		BlockNumber: blockNumber,
		Timestamp:   at,
	}
	if result := s.db.Create(&record); result.Error != nil {
		return fmt.Errorf("gormsink: failed to record price tick: %w", result.Error)
	}
	return nil
}

// RecordTradeResult persists a trade_event event's data.
func (s *Sink) RecordTradeResult(pair string, d events.TradeEventData, at time.Time) error {
	record := TradeEventRecord{
		Pair:      pair,
		Status:    d.Status,
		TxHash:    d.TxHash,
		Reason:    d.Reason,
		ProfitBps: d.ProfitBps,
		AmountIn:  d.AmountIn,
		AmountOut: d.AmountOut,
		Timestamp: at,
	}
	if result := s.db.Create(&record); result.Error != nil {
		return fmt.Errorf("gormsink: failed to record trade event: %w", result.Error)
	}
	return nil
}

// RecentTrades returns the most recent trade events for pair, newest first.
func (s *Sink) RecentTrades(pair string, limit int) ([]TradeEventRecord, error) {
	var records []TradeEventRecord
	result := s.db.Where("pair = ?", pair).Order("timestamp DESC").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("gormsink: failed to list trade events: %w", result.Error)
	}
	return records, nil
}

// Close releases the underlying connection.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gormsink: failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}
