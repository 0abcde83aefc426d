package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-rates/internal"
	"service-rates/internal/postgresql"
)

const (
	upsertRateSQL = `insert into currency_rate \(base_ccy, quote_ccy, rate, fetched_at\) ` +
		`values \(\$1, \$2, \$3::numeric, \$4\) on conflict \(base_ccy, quote_ccy\) ` +
		`do update set rate = excluded.rate, fetched_at = excluded.fetched_at ` +
		`where currency_rate.fetched_at <= excluded.fetched_at;`
	insertLogSQL = `insert into rate_snapshot_log \(base_ccy, fetched_at, rates_count, payload\)`
	latestSQL    = `select quote_ccy, rate::text, fetched_at from currency_rate where base_ccy = \$1`
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func testSnapshot(at time.Time) internal.RateSnapshot {
	return internal.NewRateSnapshot("EUR", at, map[internal.CurrencyCode]decimal.Decimal{
		"EUR": decimal.RequireFromString("1"),
		"USD": decimal.RequireFromString("1.1050"),
		"GBP": decimal.RequireFromString("0.85"),
	})
}

func TestCurrencyStorage_UpsertSnapshot_OneTransaction(t *testing.T) {
	mock := newMockPool(t)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot(at)
	payload, err := snap.MarshalJSON()
	require.NoError(t, err)

	mock.ExpectBegin()
	batch := mock.ExpectBatch()
	batch.ExpectExec(upsertRateSQL).
		WithArgs("EUR", "GBP", "0.85", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec(upsertRateSQL).
		WithArgs("EUR", "USD", "1.105", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	batch.ExpectExec(insertLogSQL).
		WithArgs("EUR", at, 3, string(payload)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = postgresql.NewCurrencyStorage(mock).UpsertSnapshot(context.Background(), snap)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_UpsertSnapshot_RollsBackOnBatchError(t *testing.T) {
	mock := newMockPool(t)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	snap := internal.NewRateSnapshot("EUR", at, map[internal.CurrencyCode]decimal.Decimal{
		"USD": decimal.RequireFromString("1.1"),
	})
	dbErr := errors.New("disk full")

	mock.ExpectBegin()
	batch := mock.ExpectBatch()
	batch.ExpectExec(upsertRateSQL).
		WithArgs("EUR", "USD", "1.1", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec(insertLogSQL).
		WithArgs("EUR", at, 1, pgxmock.AnyArg()).
		WillReturnError(dbErr)
	mock.ExpectRollback()

	err := postgresql.NewCurrencyStorage(mock).UpsertSnapshot(context.Background(), snap)

	require.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "upsert EUR snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_UpsertSnapshot_BeginError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	err := postgresql.NewCurrencyStorage(mock).UpsertSnapshot(context.Background(), testSnapshot(time.Now()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_UpsertSnapshot_InvalidBase(t *testing.T) {
	mock := newMockPool(t)
	snap := internal.NewRateSnapshot("", time.Now(), nil)

	err := postgresql.NewCurrencyStorage(mock).UpsertSnapshot(context.Background(), snap)

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_GetLatest(t *testing.T) {
	mock := newMockPool(t)
	older := time.Date(2026, 10, 18, 11, 59, 0, 0, time.UTC)
	newer := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(latestSQL).
		WithArgs("EUR").
		WillReturnRows(pgxmock.NewRows([]string{"quote_ccy", "rate", "fetched_at"}).
			AddRow("GBP", "0.850000", older).
			AddRow("USD", "1.1050", newer))

	snap, err := postgresql.NewCurrencyStorage(mock).GetLatest(context.Background(), "EUR")

	require.NoError(t, err)
	assert.Equal(t, internal.CurrencyCode("EUR"), snap.Base())
	assert.Equal(t, newer, snap.FetchedAt())
	assert.Equal(t, []internal.CurrencyCode{"GBP", "USD"}, snap.Codes())
	usd, ok := snap.Rate("USD")
	require.True(t, ok)
	assert.True(t, usd.Equal(decimal.RequireFromString("1.105")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_GetLatest_NoRates(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(latestSQL).
		WithArgs("USD").
		WillReturnRows(pgxmock.NewRows([]string{"quote_ccy", "rate", "fetched_at"}))

	_, err := postgresql.NewCurrencyStorage(mock).GetLatest(context.Background(), "USD")

	assert.ErrorIs(t, err, postgresql.ErrNoRates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrencyStorage_GetLatest_QueryError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(latestSQL).
		WithArgs("EUR").
		WillReturnError(errors.New("connection reset"))

	_, err := postgresql.NewCurrencyStorage(mock).GetLatest(context.Background(), "EUR")

	require.Error(t, err)
	assert.NotErrorIs(t, err, postgresql.ErrNoRates)
	assert.Contains(t, err.Error(), "query latest rates")
	assert.NoError(t, mock.ExpectationsWereMet())
}
