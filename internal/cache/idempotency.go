package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-pos-register/internal/checkout"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "pos:checkout:idem:"
	pendingValue      = "pending"
	// pendingTTL bounds how long a crashed checkout can block its key.
	pendingTTL = 2 * time.Minute
)

// IdempotencyStore maps client supplied checkout keys to the sale they produced.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Begin claims key for a request with the given fingerprint. When the key
// is already taken the claim reports the stored sale (0 while pending) and
// the fingerprint of the request that took it.
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (checkout.IdempotencyClaim, error) {
	k := idempotencyPrefix + key
	pending := encodeClaim(pendingValue, fingerprint)
	ok, err := s.client.SetNX(ctx, k, pending, pendingTTL).Result()
	if err != nil {
		return checkout.IdempotencyClaim{}, fmt.Errorf("cache: claim key: %w", err)
	}
	if ok {
		return checkout.IdempotencyClaim{Fresh: true, Fingerprint: fingerprint}, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.client.SetNX(ctx, k, pending, pendingTTL).Result()
		if err != nil {
			return checkout.IdempotencyClaim{}, fmt.Errorf("cache: claim key: %w", err)
		}
		// lost the race again: someone else is running it now
		return checkout.IdempotencyClaim{Fresh: ok, Fingerprint: fingerprint}, nil
	}
	if err != nil {
		return checkout.IdempotencyClaim{}, fmt.Errorf("cache: read key: %w", err)
	}
	return decodeClaim(key, val)
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, saleID uint) error {
	val := encodeClaim(strconv.FormatUint(uint64(saleID), 10), fingerprint)
	if err := s.client.Set(ctx, idempotencyPrefix+key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: complete key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: release key: %w", err)
	}
	return nil
}

// Values are "<state>|<fingerprint>" where state is "pending" or a sale id.
func encodeClaim(state, fingerprint string) string {
	return state + "|" + fingerprint
}

func decodeClaim(key, val string) (checkout.IdempotencyClaim, error) {
	state, fingerprint, ok := strings.Cut(val, "|")
	if !ok {
		return checkout.IdempotencyClaim{}, fmt.Errorf("cache: corrupt value for %s", key)
	}
	claim := checkout.IdempotencyClaim{Fingerprint: fingerprint}
	if state == pendingValue {
		return claim, nil
	}
	id, err := strconv.ParseUint(state, 10, 64)
	if err != nil || id == 0 {
		return checkout.IdempotencyClaim{}, fmt.Errorf("cache: corrupt value for %s", key)
	}
	claim.SaleID = uint(id)
	return claim, nil
}
