package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIKeyStorage struct {
	pool *pgxpool.Pool
}

func NewAPIKeyStorage(pool *pgxpool.Pool) *APIKeyStorage {
	return &APIKeyStorage{pool: pool}
}

func (s *APIKeyStorage) GetStatusByHash(ctx context.Context, keyHash string) (exists bool, isActive bool, err error) {
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return false, false, nil
	}

	err = s.pool.QueryRow(ctx, `
select is_active
from api_keys
where key_hash = $1;
`, keyHash).Scan(&isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("select api_keys: %w", err)
	}

	return true, isActive, nil
}

// Insert stores a new active key hash. Re-inserting an existing hash
// reactivates it.
func (s *APIKeyStorage) Insert(ctx context.Context, keyHash string) error {
	keyHash = strings.TrimSpace(keyHash)
	if keyHash == "" {
		return errors.New("key hash is empty")
	}

	_, err := s.pool.Exec(ctx, `
insert into api_keys (key_hash, is_active)
values ($1, true)
on conflict (key_hash) do update set is_active = true;
`, keyHash)
	if err != nil {
		return fmt.Errorf("insert api_keys: %w", err)
	}
	return nil
}
