package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"service-rates/internal"
)

type RequestLogStorage struct {
	pgpool *pgxpool.Pool
}

func NewRequestLogStorage(pgpool *pgxpool.Pool) *RequestLogStorage {
	return &RequestLogStorage{pgpool: pgpool}
}

func (s *RequestLogStorage) Insert(ctx context.Context, path string, status int, base *internal.CurrencyCode) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "unknown"
	}

	var baseCCY *string
	if base != nil {
		b := base.String()
		baseCCY = &b
	}

	_, err := s.pgpool.Exec(ctx, `
insert into request_log (path, status, base_ccy)
values ($1, $2, $3);
`, path, status, baseCCY)
	if err != nil {
		return fmt.Errorf("insert request_log: %w", err)
	}
	return nil
}
