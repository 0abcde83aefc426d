package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type APIKeyStatus int

const (
	APIKeyUnknown APIKeyStatus = iota
	APIKeyActive
	APIKeyRevoked
)

// APIKeyRepository looks keys up by their HMAC, never by the raw value.
type APIKeyRepository interface {
	GetStatusByHash(ctx context.Context, keyHash string) (exists bool, isActive bool, err error)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, rawKey string) (APIKeyStatus, error)
}

type hmacKeyValidator struct {
	repo        APIKeyRepository
	encodingKey string
}

func NewAPIKeyValidator(repo APIKeyRepository, encodingKey string) APIKeyValidator {
	return &hmacKeyValidator{
		repo:        repo,
		encodingKey: strings.TrimSpace(encodingKey),
	}
}

func (v *hmacKeyValidator) Validate(ctx context.Context, rawKey string) (APIKeyStatus, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return APIKeyUnknown, nil
	}

	exists, active, err := v.repo.GetStatusByHash(ctx, HashAPIKey(rawKey, v.encodingKey))
	if err != nil {
		return APIKeyUnknown, fmt.Errorf("lookup api key: %w", err)
	}
	switch {
	case !exists:
		return APIKeyUnknown, nil
	case !active:
		return APIKeyRevoked, nil
	default:
		return APIKeyActive, nil
	}
}

// HashAPIKey is the value stored in api_keys.key_hash.
func HashAPIKey(rawKey, encodingKey string) string {
	mac := hmac.New(sha256.New, []byte(encodingKey))
	_, _ = mac.Write([]byte(rawKey))
	return hex.EncodeToString(mac.Sum(nil))
}
