package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ErrIdempotencyInFlight indicates the same key is still being processed.
var ErrIdempotencyInFlight = fmt.Errorf("%w: idempotent request still in flight", ErrConflict)

// StoredResponse is the replayable outcome of a completed request.
type StoredResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// DefaultClaimTTL bounds how long an unfinished claim blocks retries.
const DefaultClaimTTL = time.Minute

// IdempotencyStore keeps processed keys in redis. A claim lives for claimTTL until
// Complete replaces it with the response, which lives for ttl.
type IdempotencyStore struct {
	client   redis.Cmdable
	ttl      time.Duration
	claimTTL time.Duration
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl, claimTTL: min(DefaultClaimTTL, ttl)}
}

// WithClaimTTL sets how long a pending claim survives a request that never completes,
// capped at the response ttl.
func (s *IdempotencyStore) WithClaimTTL(d time.Duration) *IdempotencyStore {
	if d > 0 {
		s.claimTTL = min(d, s.ttl)
	}
	return s
}

// Begin claims key. It returns the stored response when the key already completed, or
// ErrIdempotencyInFlight when another request holds the claim.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (*StoredResponse, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	claimed, err := s.client.SetNX(ctx, key, pendingMarker, s.claimTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency claim: %v", ErrTransientStore, err)
	}
	if claimed {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lookup: %v", ErrTransientStore, err)
	}
	if raw == pendingMarker {
		return nil, ErrIdempotencyInFlight
	}
	var stored StoredResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &stored, nil
}

// Complete stores the final response under key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: idempotency store: %v", ErrTransientStore, err)
	}
	return nil
}

// Release removes a claim so that a retry may run again.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: idempotency release: %v", ErrTransientStore, err)
	}
	return nil
}
