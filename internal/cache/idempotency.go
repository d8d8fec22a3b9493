package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slfs-backend/domain"
	"slfs-backend/infra/redis"
)

const (
	keyPrefix     = "stkpush:idempotency:"
	pendingMarker = "__pending__"
)

// IdempotencyStore remembers upstream responses per idempotency key so a
// repeated payment request replays the first answer instead of triggering a
// second prompt on the payer's phone.
type IdempotencyStore struct {
	client     redis.RedisClient
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyStore keeps completed responses for ttl. A claimed key that is
// never completed or released expires after pendingTTL.
func NewIdempotencyStore(client redis.RedisClient, ttl, pendingTTL time.Duration) *IdempotencyStore {
	if pendingTTL <= 0 || pendingTTL > ttl {
		pendingTTL = ttl
	}
	return &IdempotencyStore{client: client, ttl: ttl, pendingTTL: pendingTTL}
}

// Claim reserves key for the caller. When the key already completed, the
// stored response is returned with owned=false. A key still pending yields
// domain.ErrRequestInProgress.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (json.RawMessage, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingMarker, s.pendingTTL)
		if err != nil {
			return nil, false, fmt.Errorf("could not claim idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		val, err := s.client.Get(ctx, keyPrefix+key)
		if errors.Is(err, redis.ErrNil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("could not read idempotency key: %w", err)
		}
		if val == pendingMarker {
			return nil, false, domain.ErrRequestInProgress
		}
		return json.RawMessage(val), false, nil
	}
	return nil, false, domain.ErrRequestInProgress
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, response json.RawMessage) error {
	if err := s.client.Set(ctx, keyPrefix+key, []byte(response), s.ttl); err != nil {
		return fmt.Errorf("could not store idempotent response: %w", err)
	}
	return nil
}

// Release frees key so the caller may retry after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key); err != nil {
		return fmt.Errorf("could not release idempotency key: %w", err)
	}
	return nil
}
