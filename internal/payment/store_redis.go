package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// redisIssueScript records a requirement only if the id is unused.
// KEYS[1] = payment key
// ARGV[1] = requirement JSON
// ARGV[2] = expiresAt (epoch ms)
// ARGV[3] = key expiry (epoch ms, expiresAt + retention)
var redisIssueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
redis.call("HSET", KEYS[1], "req", ARGV[1], "status", "ISSUED", "expiresAt", ARGV[2])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
return 1
`)

// redisConsumeScript performs the ISSUED -> CONSUMED transition atomically.
// KEYS[1] = payment key
// ARGV[1] = now (epoch ms)
// Returns 1 consumed, 0 unknown, 2 already consumed, 3 expired.
var redisConsumeScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
    return 0
end
if status == "CONSUMED" then
    return 2
end
if status == "EXPIRED" then
    return 3
end
local expiresAt = tonumber(redis.call("HGET", KEYS[1], "expiresAt"))
if tonumber(ARGV[1]) > expiresAt then
    redis.call("HSET", KEYS[1], "status", "EXPIRED")
    return 3
end
redis.call("HSET", KEYS[1], "status", "CONSUMED")
return 1
`)

// RedisStateStore implements StateStore on Redis so that several gate
// replicas share one single-use view of every payment id.
type RedisStateStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStateStore creates a store backed by Redis.
func NewRedisStateStore(addr, password string, db int, retention time.Duration) *RedisStateStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStateStoreWithClient(rdb, retention)
}

// NewRedisStateStoreWithClient wraps an existing client.
func NewRedisStateStoreWithClient(client redis.UniversalClient, retention time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, prefix: "payment:", retention: retention, now: time.Now}
}

// Ping checks connectivity at startup.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

func (s *RedisStateStore) key(paymentID string) string {
	return s.prefix + paymentID
}

// Issue records req as ISSUED with a key TTL of expiry + retention.
func (s *RedisStateStore) Issue(ctx context.Context, req *model.PaymentRequirements) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal requirement: %w", err)
	}
	keyExpiry := req.ExpiresAt + s.retention.Milliseconds()

	res, err := redisIssueScript.Run(ctx, s.client, []string{s.key(req.PaymentID)}, string(data), req.ExpiresAt, keyExpiry).Int64()
	if err != nil {
		return fmt.Errorf("redis issue failed: %w", err)
	}
	if res == 0 {
		return ErrDuplicatePayment
	}
	return nil
}

// Get returns the requirement and its status; an ISSUED entry past expiry reports EXPIRED.
func (s *RedisStateStore) Get(ctx context.Context, paymentID string) (*model.PaymentRequirements, model.PaymentStatus, error) {
	vals, err := s.client.HMGet(ctx, s.key(paymentID), "req", "status").Result()
	if err != nil {
		return nil, "", fmt.Errorf("redis get failed: %w", err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, "", ErrUnknownPayment
	}
	status, _ := vals[1].(string)

	var req model.PaymentRequirements
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, "", fmt.Errorf("corrupt payment record %s: %w", paymentID, err)
	}

	st := model.PaymentStatus(status)
	if st == model.PaymentStatusIssued && expired(&req, s.now()) {
		st = model.PaymentStatusExpired
	}
	return &req, st, nil
}

// Consume runs the conditional transition script.
func (s *RedisStateStore) Consume(ctx context.Context, paymentID string, now time.Time) (*model.PaymentRequirements, error) {
	res, err := redisConsumeScript.Run(ctx, s.client, []string{s.key(paymentID)}, now.UnixMilli()).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis consume failed: %w", err)
	}
	switch res {
	case 0:
		return nil, ErrUnknownPayment
	case 2:
		return nil, ErrPaymentConsumed
	case 3:
		return nil, ErrPaymentExpired
	case 1:
	default:
		return nil, fmt.Errorf("invalid response from consume script: %d", res)
	}

	req, _, err := s.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrUnknownPayment) {
			// consumed and evicted between the script and the read
			return nil, fmt.Errorf("payment %s consumed but record vanished", paymentID)
		}
		return nil, err
	}
	return req, nil
}

var _ StateStore = (*RedisStateStore)(nil)
