package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests a client may make per Window.
	Max    int
	Window time.Duration
	// Prefixes restricts limiting to request paths under these prefixes,
	// e.g. "/api/" so health endpoints are never throttled. Empty limits every
	// path.
	Prefixes []string
	// TrustProxy keys clients by X-Forwarded-For or X-Real-IP. Leave it off
	// unless a proxy in front of the service overwrites those headers.
	TrustProxy bool
	// KeyFunc overrides client keying entirely.
	KeyFunc func(*http.Request) string
	// OnLimited is called for every rejected request.
	OnLimited func(*http.Request)
}

// window counts requests in one aligned interval.
type window struct {
	start time.Time
	count float64
}

// bucket holds a client's current and previous windows. The sliding count
// weights prev by how much of it still overlaps [now-Window, now].
type bucket struct {
	prev window
	curr window
}

func (b *bucket) roll(now time.Time, size time.Duration) {
	start := now.Truncate(size)
	switch {
	case !b.curr.start.Before(start):
	case b.curr.start.Add(size).Equal(start):
		b.prev = b.curr
		b.curr = window{start: start}
	default:
		b.prev = window{start: start.Add(-size)}
		b.curr = window{start: start}
	}
}

func (b *bucket) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - float64(now.Sub(b.curr.start))/float64(size)
	return b.prev.count*overlap + b.curr.count
}

type decision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *limiter) take(key string, now time.Time) decision {
	size := l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{curr: window{start: now.Truncate(size)}}
		l.buckets[key] = b
	}
	b.roll(now, size)

	d := decision{reset: b.curr.start.Add(size)}
	est := b.estimate(now, size)
	if est >= float64(l.cfg.Max) {
		return d
	}
	b.curr.count++
	d.allowed = true
	d.remaining = max(0, int(math.Floor(float64(l.cfg.Max)-est-1)))
	return d
}

// evict drops clients idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if !now.Before(b.curr.start.Add(2 * l.cfg.Window)) {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) applies(path string) bool {
	if len(l.cfg.Prefixes) == 0 {
		return true
	}
	for _, p := range l.cfg.Prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (l *limiter) clientKey(r *http.Request) string {
	if l.cfg.KeyFunc != nil {
		return l.cfg.KeyFunc(r)
	}
	if l.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *limiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.applies(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		now := l.now()
		d := l.take(l.clientKey(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
		if d.allowed {
			next.ServeHTTP(w, r)
			return
		}

		retry := max(1, int(math.Ceil(d.reset.Sub(now).Seconds())))
		h.Set("Retry-After", strconv.Itoa(retry))
		if l.cfg.OnLimited != nil {
			l.cfg.OnLimited(r)
		}
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry in "+strconv.Itoa(retry)+"s")
	})
}

// RateLimit throttles clients to cfg.Max requests per sliding cfg.Window.
// Rejected requests get 429 with Retry-After and a failure envelope; limited
// responses carry X-RateLimit-Limit, -Remaining and -Reset. Idle clients are
// evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.handler
}
