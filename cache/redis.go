// Package cache provides a Redis-backed ledger.BalanceCache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/course-ledger/ledger"
)

const (
	keyPrefix = "ledger:balance:"
	genPrefix = "ledger:balance-gen:"
)

// DefaultTTL bounds how long a balance may be served after an invalidation
// was lost.
const DefaultTTL = 5 * time.Minute

// Redis caches balances as plain integers under ledger:balance:<user>. The
// generation counter lives under ledger:balance-gen:<user> without a TTL, so
// it never moves backwards.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ ledger.BalanceCache = (*Redis)(nil)

// Options configures the client built by Dial.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return New(client, opts.TTL), client, nil
}

// New wraps an existing client. A non-positive ttl uses DefaultTTL.
func New(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func key(userID ledger.UserID) string {
	return keyPrefix + strconv.FormatInt(int64(userID), 10)
}

func genKey(userID ledger.UserID) string {
	return genPrefix + strconv.FormatInt(int64(userID), 10)
}

// setIfGeneration writes KEYS[1] only while KEYS[2] (missing reads as 0)
// still equals ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func (r *Redis) Get(ctx context.Context, userID ledger.UserID) (ledger.Points, bool, error) {
	val, err := r.client.Get(ctx, key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ledger.Points(val), true, nil
}

func (r *Redis) Generation(ctx context.Context, userID ledger.UserID) (uint64, error) {
	gen, err := r.client.Get(ctx, genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) Set(ctx context.Context, userID ledger.UserID, points ledger.Points, gen uint64) error {
	keys := []string{key(userID), genKey(userID)}
	return setIfGeneration.Run(ctx, r.client, keys,
		strconv.FormatUint(gen, 10), int64(points), r.ttl.Milliseconds()).Err()
}

// Invalidate advances the generation and drops the value in one MULTI.
func (r *Redis) Invalidate(ctx context.Context, userID ledger.UserID) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(userID))
		p.Del(ctx, key(userID))
		return nil
	})
	return err
}
