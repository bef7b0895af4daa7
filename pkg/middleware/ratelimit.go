package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/goodvibes-bookings/internal/http/response"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit guards a route. When the limiter itself fails the request is let through.
func RateLimit(l Limiter, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), prefix+":"+ClientKey(r))
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter error, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				response.RateLimit(w, "too many booking requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by the first X-Forwarded-For hop or the remote host.
func ClientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type MemoryLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{limit: limit, window: window, now: time.Now, visitors: map[string]*visitor{}}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		rl.visitors[key] = &visitor{count: 1, resetTime: now.Add(rl.window)}
		rl.sweep(now)
		return true, nil
	}
	if v.count >= rl.limit {
		return false, nil
	}
	v.count++
	return true, nil
}

// sweep drops expired visitors once the map grows.
func (rl *MemoryLimiter) sweep(now time.Time) {
	if len(rl.visitors) < 1024 {
		return
	}
	for k, v := range rl.visitors {
		if now.After(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// RedisLimiter shares its windows across every instance using the same Redis.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	var n int64
	switch v := res.(type) {
	case int64:
		n = v
	case string:
		n, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unexpected redis script result type %T", res)
	}
	return n <= int64(rl.limit), nil
}
