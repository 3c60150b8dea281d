package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/redis"
)

// IdempotencyGuard marks (outcome, transaction) pairs in Redis so replays are
// dropped before touching the database. The ledger indexes remain the durable
// dedup.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark reports whether the pair was already seen, marking it if not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, outcome enums.TransactionOutcome, transactionID uuid.UUID) (bool, error) {
	if transactionID == uuid.Nil {
		return false, errors.New("transaction id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(outcome, transactionID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release forgets the pair so the gateway can retry.
func (g *IdempotencyGuard) Release(ctx context.Context, outcome enums.TransactionOutcome, transactionID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return errors.New("transaction id is required")
	}
	return g.store.Del(ctx, g.key(outcome, transactionID))
}

func (g *IdempotencyGuard) key(outcome enums.TransactionOutcome, transactionID uuid.UUID) string {
	return g.store.IdempotencyKey(g.scope+":"+string(outcome), transactionID.String())
}
