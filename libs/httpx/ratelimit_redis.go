package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiterOptions configures RedisLimiter. Zero values fall back to 60
// requests per minute under the "rl" key prefix.
type RedisLimiterOptions struct {
	Limit  int
	Window time.Duration
	Prefix string
	// FailOpen lets requests through while Redis is unreachable instead of
	// answering 503.
	FailOpen bool
}

// RedisLimiter counts requests per client in fixed windows stored in Redis,
// so all replicas share one budget.
type RedisLimiter struct {
	rdb    redis.Cmdable
	opts   RedisLimiterOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Cmdable, opts RedisLimiterOptions, logger *slog.Logger) *RedisLimiter {
	if opts.Limit <= 0 {
		opts.Limit = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, opts: opts, logger: logger, now: time.Now}
}

func (l *RedisLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, err := l.take(r.Context(), clientKey(r))
			if err != nil {
				if l.logger != nil {
					l.logger.Warn("rate limiter unavailable", "err", err)
				}
				if !l.opts.FailOpen {
					http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.opts.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(remaining, 0), 10))
			if remaining < 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(reset)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// take counts one request for client and returns how many are left in the
// current window (negative once over the limit) and when the window resets.
func (l *RedisLimiter) take(ctx context.Context, client string) (int64, time.Duration, error) {
	bucket, reset := fixedWindow(l.now(), l.opts.Window)
	key := l.opts.Prefix + ":" + client + ":" + strconv.FormatInt(bucket, 10)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, l.opts.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return int64(l.opts.Limit) - incr.Val(), reset, nil
}

// fixedWindow numbers the window containing now and reports the time left in
// it.
func fixedWindow(now time.Time, window time.Duration) (int64, time.Duration) {
	ms := window.Milliseconds()
	bucket := now.UnixMilli() / ms
	end := time.UnixMilli((bucket + 1) * ms)
	return bucket, end.Sub(now)
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
