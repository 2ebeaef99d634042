package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rule defines a fixed-window rate limit for one path prefix.
type Rule struct {
	Prefix        string
	MaxRequests   int
	WindowSeconds int
}

// DefaultRules throttles the endpoints that can launch a browser much
// harder than the read-only ones.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/api/intelligence", MaxRequests: 10, WindowSeconds: 60},
		{Prefix: "/api/jobs", MaxRequests: 60, WindowSeconds: 60},
		{Prefix: "/api/", MaxRequests: 120, WindowSeconds: 60},
	}
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP fixed-window rate limiting keyed by path
// prefix. First matching rule wins; unmatched paths pass through.
type RateLimiter struct {
	rules   []Rule
	exclude []string
	buckets sync.Map // "prefix|ip" -> *bucket
	now     func() time.Time
}

// NewRateLimiter creates a limiter. excludePrefixes bypass all rules.
func NewRateLimiter(rules []Rule, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		rules:   rules,
		exclude: excludePrefixes,
		now:     time.Now,
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After
// header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, p) {
				next.ServeHTTP(w, r)
				return
			}
		}

		rule, ok := rl.match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if retryAfter, limited := rl.take(rule, clientIP(r)); limited {
			w.Header().Set("Retry-After", retryAfter)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(path string) (Rule, bool) {
	for _, rule := range rl.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// take consumes one slot from the bucket for (rule, ip). Returns the
// Retry-After value when the bucket is exhausted.
func (rl *RateLimiter) take(rule Rule, ip string) (string, bool) {
	key := rule.Prefix + "|" + ip
	v, _ := rl.buckets.LoadOrStore(key, &bucket{})
	b := v.(*bucket)

	now := rl.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(time.Duration(rule.WindowSeconds) * time.Second)
	}
	b.count++
	if b.count > rule.MaxRequests {
		secs := int(b.resetAt.Sub(now).Seconds()) + 1
		return strconv.Itoa(secs), true
	}
	return "", false
}

// GC drops expired buckets. Call periodically on long-running servers.
func (rl *RateLimiter) GC() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
