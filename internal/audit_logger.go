package internal

import (
	"context"
	"fmt"
	"strings"
)

type RequestAuditLogger interface {
	LogRequest(ctx context.Context, path string, status int, base CurrencyCode) error
}

type AuditLogStorage interface {
	Insert(ctx context.Context, path string, status int, base *CurrencyCode) error
}

func NewStorageAuditLogger(storage AuditLogStorage) *StorageAuditLogger {
	return &StorageAuditLogger{auditLogStorage: storage}
}

// StorageAuditLogger normalizes request paths before persisting them.
type StorageAuditLogger struct {
	auditLogStorage AuditLogStorage
}

func (l *StorageAuditLogger) LogRequest(ctx context.Context, endpoint string, status int, base CurrencyCode) error {
	p := strings.TrimSpace(endpoint)
	p = strings.Trim(p, "/")
	if p == "" {
		p = "unknown"
	}

	var b *CurrencyCode
	if base.IsValid() {
		b = &base
	}

	if err := l.auditLogStorage.Insert(ctx, p, status, b); err != nil {
		return fmt.Errorf("audit %s: %w", p, err)
	}
	return nil
}
