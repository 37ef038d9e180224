package gormsink

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/flowmint/mmagent/internal/events"
)

func newTestSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Sink{db: gormDB}, mock
}

func TestRecordPriceTickInsertsRow(t *testing.T) {
	sink, mock := newTestSink(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `price_ticks`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := sink.RecordPriceTick("wavax-usdc", events.PriceTickData{Reference: 12.5, PoolMedian: 12.4}, 100, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTradeResultInsertsRow(t *testing.T) {
	sink, mock := newTestSink(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `trade_events`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := sink.RecordTradeResult("wavax-usdc", events.TradeEventData{
		Status:    events.StatusSuccess,
		TxHash:    "0xabc",
		ProfitBps: 42,
		AmountIn:  "1000000000000000000",
		AmountOut: "998000000",
	}, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTradeResultPropagatesDBError(t *testing.T) {
	sink, mock := newTestSink(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `trade_events`").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := sink.RecordTradeResult("wavax-usdc", events.TradeEventData{Status: events.StatusFailed, Reason: "reverted"}, time.Now())
	assert.Error(t, err)
}
