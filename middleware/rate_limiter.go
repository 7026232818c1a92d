package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"gigtasks/utils"
)

// In-memory sliding-window rate limiter. Keys are client IPs or, behind the
// auth middleware, the caller's token subject.

type timestamps []int64 // unix nanos

type RateLimiter struct {
	limit       int
	window      time.Duration
	mu          sync.Mutex
	state       map[string]timestamps
	key         func(*http.Request) string
	now         func() time.Time
	cleanupTick time.Duration
}

func newRateLimiter(limit int, window time.Duration, key func(*http.Request) string) *RateLimiter {
	l := &RateLimiter{
		limit:       limit,
		window:      window,
		state:       make(map[string]timestamps),
		key:         key,
		now:         time.Now,
		cleanupTick: time.Minute,
	}
	go l.cleanupLoop()
	return l
}

// NewIPRateLimiter limits requests per client IP. X-Forwarded-For is only
// honored for requests coming from trustedProxies.
func NewIPRateLimiter(limit int, window time.Duration, trustedProxies []string) *RateLimiter {
	return newRateLimiter(limit, window, func(r *http.Request) string {
		return "ip:" + clientIPGeneric(r, trustedProxies)
	})
}

// NewCallerRateLimiter limits requests per authenticated caller and must run
// after the auth middleware. Anonymous requests share one bucket per IP.
func NewCallerRateLimiter(limit int, window time.Duration, trustedProxies []string) *RateLimiter {
	return newRateLimiter(limit, window, func(r *http.Request) string {
		if c, ok := utils.ClaimsFromContext(r.Context()); ok {
			return c.Role + ":" + c.Subject
		}
		return "ip:" + clientIPGeneric(r, trustedProxies)
	})
}

// clientIPGeneric returns the client IP string. If trustedCIDR is provided,
// X-Forwarded-For / X-Real-IP headers are honored when remote addr is inside
// one of the trusted CIDRs or IPs.
func clientIPGeneric(r *http.Request, trustedCIDR []string) string {
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	remoteIP := net.ParseIP(remoteHost)
	trusted := false
	for _, cidr := range trustedCIDR {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" || remoteIP == nil {
			continue
		}
		if strings.Contains(cidr, "/") {
			if _, ipnet, err := net.ParseCIDR(cidr); err == nil && ipnet.Contains(remoteIP) {
				trusted = true
				break
			}
			continue
		}
		if ip := net.ParseIP(cidr); ip != nil && ip.Equal(remoteIP) {
			trusted = true
			break
		}
	}
	if trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			return strings.TrimSpace(xr)
		}
	}
	return remoteHost
}

// allow records a hit for key and reports whether it fits the limit, plus the
// remaining budget and the seconds until the oldest hit leaves the window.
func (l *RateLimiter) allow(key string) (bool, int, int) {
	now := l.now().UnixNano()
	cutoff := now - int64(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	var filtered timestamps
	for _, ts := range l.state[key] {
		if ts >= cutoff {
			filtered = append(filtered, ts)
		}
	}
	filtered = append(filtered, now)
	l.state[key] = filtered

	count := len(filtered)
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	if count <= l.limit {
		return true, remaining, 0
	}
	retryAfter := int((filtered[0] + int64(l.window) - now) / int64(time.Second))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, remaining, retryAfter
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, retryAfter := l.allow(l.key(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			utils.WriteJSON(w, http.StatusTooManyRequests, utils.APIResponse{
				Success: false,
				Message: "Too many requests, try again later",
				Data:    map[string]interface{}{"retry_after_seconds": retryAfter},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) cleanupLoop() {
	tick := time.NewTicker(l.cleanupTick)
	defer tick.Stop()
	for range tick.C {
		cutoff := l.now().UnixNano() - int64(l.window)
		l.mu.Lock()
		for k, arr := range l.state {
			// drop keys with no hits inside the window
			if len(arr) == 0 || arr[len(arr)-1] < cutoff {
				delete(l.state, k)
			}
		}
		l.mu.Unlock()
	}
}
