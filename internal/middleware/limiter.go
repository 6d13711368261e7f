package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Tier is one rate limit policy.
type Tier struct {
	Name  string
	Limit rate.Limit
	Burst int
}

var (
	// TierStrict covers the payment webhook.
	TierStrict = Tier{"strict", rate.Limit(2), 5}
	// TierGeneral is the default.
	TierGeneral = Tier{"general", rate.Limit(10), 20}
	// TierInternal is for callers presenting the internal service key.
	TierInternal = Tier{"internal", rate.Limit(100), 200}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per identity and tier.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	internalKey string
	idle        time.Duration
	now         func() time.Time
}

func NewRateLimiter(internalKey string) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		internalKey: internalKey,
		idle:        3 * time.Minute,
		now:         time.Now,
	}
}

func (rl *RateLimiter) limiter(key string, t Tier) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.Limit, t.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Sweep drops visitors idle for longer than the idle window.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idle)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// Run sweeps every minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Limit applies tier to every request. A valid internal service key
// upgrades the request to TierInternal.
func (rl *RateLimiter) Limit(tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := tier
			if rl.internalKey != "" && r.Header.Get("X-Service-Auth") == rl.internalKey {
				t = TierInternal
			}

			key := fmt.Sprintf("%s:%s", identity(r), t.Name)
			if !rl.limiter(key, t).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity prefers the authenticated actor, then a client device id, then
// the remote address.
func identity(r *http.Request) string {
	if a, ok := ActorFrom(r.Context()); ok && a.ID != "" {
		return "actor:" + a.String()
	}
	if id := r.Header.Get("X-Device-ID"); id != "" {
		return "device:" + id
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + strings.TrimSpace(ip)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
