package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"service-rates/internal"
)

var ErrNoRates = errors.New("no stored rates")

// Pool is the part of *pgxpool.Pool the currency storage needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type CurrencyStorage struct {
	pgpool Pool
}

func NewCurrencyStorage(pgpool Pool) *CurrencyStorage {
	return &CurrencyStorage{pgpool: pgpool}
}

// UpsertSnapshot replaces the latest rates of snap's base and appends the
// snapshot to rate_snapshot_log, in one transaction. Its signature matches a
// bus handler.
func (c *CurrencyStorage) UpsertSnapshot(ctx context.Context, snap internal.RateSnapshot) error {
	base := snap.Base()
	if !base.IsValid() {
		return fmt.Errorf("snapshot base %q is invalid", base)
	}
	fetchedAt := snap.FetchedAt().UTC()
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	payload, err := snap.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := c.pgpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, quote := range snap.Codes() {
		if quote == base {
			continue
		}
		rate, _ := snap.Rate(quote)
		batch.Queue(`
insert into currency_rate (base_ccy, quote_ccy, rate, fetched_at)
values ($1, $2, $3::numeric, $4)
on conflict (base_ccy, quote_ccy)
do update set
  rate = excluded.rate,
  fetched_at = excluded.fetched_at
where currency_rate.fetched_at <= excluded.fetched_at;
`, base.String(), quote.String(), rate.String(), fetchedAt)
	}
	batch.Queue(`
insert into rate_snapshot_log (base_ccy, fetched_at, rates_count, payload)
values ($1, $2, $3, $4::jsonb);
`, base.String(), fetchedAt, snap.Len(), string(payload))

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %s snapshot @%s: %w", base, fetchedAt.Format(time.RFC3339), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetLatest rebuilds the most recent stored rates for base. FetchedAt is the
// newest row time.
func (c *CurrencyStorage) GetLatest(ctx context.Context, base internal.CurrencyCode) (internal.RateSnapshot, error) {
	if !base.IsValid() {
		return internal.RateSnapshot{}, fmt.Errorf("invalid base %q", base)
	}

	rows, err := c.pgpool.Query(ctx, `
select quote_ccy, rate::text, fetched_at
from currency_rate
where base_ccy = $1
order by quote_ccy;
`, base.String())
	if err != nil {
		return internal.RateSnapshot{}, fmt.Errorf("query latest rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[internal.CurrencyCode]decimal.Decimal)
	var newest time.Time
	for rows.Next() {
		var qRaw, rateText string
		var fetchedAt time.Time
		if err := rows.Scan(&qRaw, &rateText, &fetchedAt); err != nil {
			return internal.RateSnapshot{}, fmt.Errorf("scan: %w", err)
		}

		q, err := internal.NewCurrencyCode(qRaw)
		if err != nil {
			return internal.RateSnapshot{}, fmt.Errorf("bad quote_ccy from db %q: %w", qRaw, err)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rateText))
		if err != nil {
			return internal.RateSnapshot{}, fmt.Errorf("parse rate %s/%s=%q: %w", base, q, rateText, err)
		}
		rates[q] = rate
		if fetchedAt.After(newest) {
			newest = fetchedAt
		}
	}
	if err := rows.Err(); err != nil {
		return internal.RateSnapshot{}, fmt.Errorf("iterate rows: %w", err)
	}
	if len(rates) == 0 {
		return internal.RateSnapshot{}, fmt.Errorf("%w for %s", ErrNoRates, base)
	}

	return internal.NewRateSnapshot(base, newest, rates), nil
}
