package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/datasetagg/internal/domain/aggregates"
	"github.com/yungbote/datasetagg/internal/platform/logger"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lease taken over by another owner is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Poll   time.Duration
}

// RedisLocker is a lease lock shared by every process pointing at the same Redis.
// A held lease is renewed every TTL/3 until released, so critical sections may
// outlive TTL as long as the holder stays alive.
type RedisLocker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLocker(rdb goredis.UniversalClient, log *logger.Logger, opts RedisOptions) *RedisLocker {
	if log == nil {
		log = logger.Nop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 50 * time.Millisecond
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "datasetagg:lock:"
	}
	return &RedisLocker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    opts.TTL,
		poll:   opts.Poll,
	}
}

// DialRedis connects and pings, closing the client again when the ping fails.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	const op = "locks.redis_lock"
	k := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, aggregates.Wrap(aggregates.CodeRetryable, op, err)
		}
		if ok {
			stop := make(chan struct{})
			renewed := make(chan struct{})
			go l.renew(k, token, stop, renewed)
			return l.unlockFunc(k, token, stop, renewed), nil
		}
		select {
		case <-ctx.Done():
			return nil, aggregates.Wrap(aggregates.CodeRetryable, op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	if every := ttl / 3; every > 0 {
		return every
	}
	return time.Millisecond
}

// renew keeps the lease alive until stop closes or the lease is lost.
func (l *RedisLocker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(renewInterval(l.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
		n, err := renewScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			l.log.Warn("redis lock renew failed", "key", key, "error", err)
		case n == 0:
			l.log.Warn("redis lock lease lost", "key", key)
			return
		}
	}
}

func (l *RedisLocker) unlockFunc(key, token string, stop chan struct{}, renewed <-chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
				l.log.Warn("redis lock release failed", "key", key, "error", err)
			}
		})
	}
}
