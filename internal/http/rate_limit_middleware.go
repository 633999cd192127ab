package httpx

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ratePolicy is a named fixed-window budget.
type ratePolicy struct {
	name   string
	limit  int
	window time.Duration
}

var (
	writePolicy  = ratePolicy{name: "write", limit: 30, window: time.Minute}
	readPolicy   = ratePolicy{name: "read", limit: 120, window: time.Minute}
	streamPolicy = ratePolicy{name: "stream", limit: 30, window: 30 * time.Second}
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

func (d rateDecision) remaining(limit int) int {
	return max(limit-d.count, 0)
}

type window struct {
	count int
	ends  time.Time
}

// memoryRateLimiter keeps windows in a map and drops expired ones while counting.
type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]window
	now       func() time.Time
	lastSweep time.Time
}

const sweepEvery = 5 * time.Minute

// NewMemoryRateLimiter returns a limiter local to this process.
func NewMemoryRateLimiter() RateLimiter {
	return &memoryRateLimiter{windows: make(map[string]window), now: time.Now}
}

func (m *memoryRateLimiter) Allow(key string, limit int, span time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if span <= 0 {
		span = time.Minute
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) >= sweepEvery {
		for k, w := range m.windows {
			if !now.Before(w.ends) {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.ends) {
		w = window{ends: now.Add(span)}
	}
	if w.count >= limit {
		return rateDecision{count: w.count, windowEnd: w.ends}
	}
	w.count++
	m.windows[key] = w
	return rateDecision{allowed: true, count: w.count, windowEnd: w.ends}
}

func (m *memoryRateLimiter) Close() {}

// guarded authenticates the caller, then charges the request to the caller's budget under p.
func (r *Router) guarded(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return r.authenticated(r.throttled(p, next))
}

func (r *Router) throttled(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.limiter == nil || p.limit <= 0 {
			next(w, req)
			return
		}
		d := r.limiter.Allow(p.name+"|"+callerKey(req), p.limit, p.window)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(p.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining(p.limit)))
		if !d.windowEnd.IsZero() {
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.windowEnd.Unix(), 10))
		}
		if !d.allowed {
			r.metrics.throttled.WithLabelValues(p.name).Inc()
			if !d.windowEnd.IsZero() {
				secs := int(time.Until(d.windowEnd).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// callerKey identifies the budget owner: the user when authenticated, else the remote address.
func callerKey(req *http.Request) string {
	if p, ok := principalFrom(req.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil || host == "" {
		host = req.RemoteAddr
	}
	return "ip:" + host
}
