package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
)

const ledgerKeyPrefix = "qr:token:"

// TokenLedger records issued handoff tokens in Redis so each token can be
// consumed at most once and expires server-side. With a nil client the
// ledger degrades to a no-op and the key-status re-check at scan time is
// the only guard, which matches the pre-hardening behaviour.
type TokenLedger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewTokenLedger constructs a ledger backed by the provided Redis client.
func NewTokenLedger(client *redis.Client, logger *zap.Logger) *TokenLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenLedger{client: client, logger: logger}
}

// Issue registers a freshly generated token with its TTL.
func (l *TokenLedger) Issue(ctx context.Context, tokenID string, ttl time.Duration) error {
	if l.client == nil {
		return nil
	}
	if err := l.client.Set(ctx, ledgerKeyPrefix+tokenID, "issued", ttl).Err(); err != nil {
		return fmt.Errorf("issue token %s: %w", tokenID, err)
	}
	return nil
}

// Consume atomically removes the token from the ledger. A token that was
// never issued, already consumed, or expired fails with TOKEN_CONSUMED.
func (l *TokenLedger) Consume(ctx context.Context, tokenID string) error {
	if l.client == nil {
		return nil
	}
	if err := l.client.GetDel(ctx, ledgerKeyPrefix+tokenID).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrTokenConsumed
		}
		return fmt.Errorf("consume token %s: %w", tokenID, err)
	}
	return nil
}

// Revoke drops a token that was regenerated or closed by its owner before
// being scanned.
func (l *TokenLedger) Revoke(ctx context.Context, tokenID string) {
	if l.client == nil {
		return
	}
	if err := l.client.Del(ctx, ledgerKeyPrefix+tokenID).Err(); err != nil {
		l.logger.Warn("failed to revoke handoff token", zap.String("token_id", tokenID), zap.Error(err))
	}
}
