package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Migrations struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Migrations {
	return &Migrations{pool: pool}
}

func (m *Migrations) Setup(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"currency_rate", currencyRateDDL},
		{"rate_snapshot_log", snapshotLogDDL},
		{"request_log", requestLogDDL},
		{"api_keys", apiKeysDDL},
	}
	for _, s := range steps {
		if _, err := m.pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("ensure table %s: %w", s.name, err)
		}
	}
	return nil
}

const currencyRateDDL = `
create table if not exists currency_rate (
  base_ccy   char(3) not null,
  quote_ccy  char(3) not null,
  rate       numeric not null check (rate >= 0),
  fetched_at timestamptz not null,
  primary key (base_ccy, quote_ccy)
);

create index if not exists idx_currency_rate_fetched_at
  on currency_rate (fetched_at desc);
`

const snapshotLogDDL = `
create table if not exists rate_snapshot_log (
  id          bigserial primary key,
  base_ccy    char(3) not null,
  fetched_at  timestamptz not null,
  rates_count integer not null,
  payload     jsonb not null
);

create index if not exists idx_rate_snapshot_log_base_fetched
  on rate_snapshot_log (base_ccy, fetched_at desc);
`

const requestLogDDL = `
create table if not exists request_log (
  id          bigserial primary key,
  path        text not null,
  status      integer not null,
  base_ccy    char(3),
  created_at  timestamptz not null default now()
);

create index if not exists idx_request_log_created_at
  on request_log (created_at desc);

create index if not exists idx_request_log_path_created_at
  on request_log (path, created_at desc);
`

const apiKeysDDL = `
create table if not exists api_keys (
  key_hash   text primary key,
  is_active  boolean not null default true,
  created_at timestamptz not null default now()
);
`
