package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares breaker state across process replicas. Transitions run inside
// Lua scripts so two replicas cannot both observe CLOSED and double-trip.
//
// Keys carry a TTL well beyond the reset timeout; a pair that stops failing
// simply expires back to the default CLOSED state.
type Redis struct {
	client   *redis.Client
	settings Settings
}

func NewRedis(client *redis.Client, settings Settings) *Redis {
	return &Redis{client: client, settings: settings.withDefaults()}
}

func (r *Redis) key(tenantID, provider string) string {
	return "cb:" + pairKey(tenantID, provider)
}

func (r *Redis) ttl() time.Duration {
	return 10 * r.settings.ResetTimeout
}

var allowScript = redis.NewScript(`
-- KEYS[1] = breaker hash
-- ARGV[1] = now (unix ms)
-- ARGV[2] = reset timeout (ms)
-- Returns 1 if the call is allowed, 0 otherwise.
local state = redis.call('HGET', KEYS[1], 'state')
if not state or state == 'closed' then
  return 1
end
if state == 'open' then
  local opened = tonumber(redis.call('HGET', KEYS[1], 'opened_at_ms') or '0')
  if tonumber(ARGV[1]) - opened >= tonumber(ARGV[2]) then
    redis.call('HSET', KEYS[1], 'state', 'half_open')
    return 1
  end
  return 0
end
-- half_open: the single trial call was already admitted
return 0
`)

var failureScript = redis.NewScript(`
-- KEYS[1] = breaker hash
-- ARGV[1] = now (unix ms)
-- ARGV[2] = failure threshold
-- ARGV[3] = key ttl (ms)
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'half_open' then
  redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at_ms', ARGV[1])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return 'open'
end
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
if not state then
  state = 'closed'
  redis.call('HSET', KEYS[1], 'state', 'closed')
end
if state ~= 'open' and failures >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at_ms', ARGV[1])
  state = 'open'
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return state
`)

func (r *Redis) Allow(ctx context.Context, tenantID, provider string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := allowScript.Run(ctx, r.client, []string{r.key(tenantID, provider)}, now, r.settings.ResetTimeout.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("circuitbreaker: redis allow: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) RecordSuccess(ctx context.Context, tenantID, provider string) error {
	key := r.key(tenantID, provider)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "state", string(StateClosed), "failures", 0)
	pipe.PExpire(ctx, key, r.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("circuitbreaker: redis success: %w", err)
	}
	return nil
}

func (r *Redis) RecordFailure(ctx context.Context, tenantID, provider string) error {
	now := time.Now().UnixMilli()
	if err := failureScript.Run(ctx, r.client, []string{r.key(tenantID, provider)}, now, r.settings.FailureThreshold, r.ttl().Milliseconds()).Err(); err != nil {
		return fmt.Errorf("circuitbreaker: redis failure: %w", err)
	}
	return nil
}

func (r *Redis) State(ctx context.Context, tenantID, provider string) (State, error) {
	v, err := r.client.HGet(ctx, r.key(tenantID, provider), "state").Result()
	if err == redis.Nil {
		return StateClosed, nil
	}
	if err != nil {
		return "", fmt.Errorf("circuitbreaker: redis state: %w", err)
	}
	return State(v), nil
}
