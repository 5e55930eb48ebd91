package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendpool/locator/internal/domain"
	"github.com/lendpool/locator/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

var stockColumns = []string{"ticker", "borrow_status", "lender_api_id", "min_borrow_rate", "last_updated"}

func TestStocksRepo_ByTicker(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)

	updated := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT ticker, borrow_status, lender_api_id, min_borrow_rate, last_updated").
		WithArgs("AAPL").
		WillReturnRows(sqlmock.NewRows(stockColumns).
			AddRow("AAPL", "EASY", "LND-AAPL", "0.03", updated))

	stock, err := repo.ByTicker(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", stock.Ticker)
	assert.Equal(t, domain.BorrowEasy, stock.BorrowStatus)
	assert.Equal(t, "LND-AAPL", stock.LenderAPIID)
	require.True(t, stock.MinBorrowRate.Valid)
	assert.True(t, stock.MinBorrowRate.Decimal.Equal(decimal.RequireFromString("0.03")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStocksRepo_ByTickerNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT ticker, borrow_status").
		WithArgs("ZZZZZ").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ByTicker(context.Background(), "ZZZZZ")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestStocksRepo_ByTickerNullMinRate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT ticker, borrow_status").
		WithArgs("NEWCO").
		WillReturnRows(sqlmock.NewRows(stockColumns).
			AddRow("NEWCO", "HARD", "", nil, time.Now()))

	stock, err := repo.ByTicker(context.Background(), "NEWCO")
	require.NoError(t, err)
	assert.False(t, stock.MinBorrowRate.Valid)
}

func TestStocksRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)

	mock.ExpectExec("INSERT INTO stocks").
		WithArgs("TSLA", "HARD", "LND-TSLA", "0.12").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.Stock{
		Ticker:        "TSLA",
		BorrowStatus:  domain.BorrowHard,
		LenderAPIID:   "LND-TSLA",
		MinBorrowRate: decimal.NewNullDecimal(decimal.RequireFromString("0.12")),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStocksRepo_UpsertRejectsBadRows(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)
	ctx := context.Background()

	err := repo.Upsert(ctx, domain.Stock{Ticker: "toolong123", BorrowStatus: domain.BorrowEasy})
	assert.ErrorContains(t, err, "invalid ticker")

	err = repo.Upsert(ctx, domain.Stock{Ticker: "AAPL", BorrowStatus: "IMPOSSIBLE"})
	assert.ErrorContains(t, err, "invalid borrow status")
}

func TestStocksRepo_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStocksRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT ticker, borrow_status, lender_api_id, min_borrow_rate, last_updated").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(stockColumns).
			AddRow("AAPL", "EASY", "", "0.03", time.Now()).
			AddRow("GME", "HARD", "", "0.25", time.Now()))

	stocks, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "AAPL", stocks[0].Ticker)
	assert.Equal(t, domain.BorrowHard, stocks[1].BorrowStatus)
}
