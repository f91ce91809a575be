package server

import (
	"net"
	"sync"
	"time"
)

// authLimiter counts failed handshakes per client IP in a sliding window.
type authLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	fails  map[string][]time.Time
}

func newAuthLimiter(limit int, window time.Duration) *authLimiter {
	return &authLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		fails:  make(map[string][]time.Time),
	}
}

// Blocked reports whether ip has used up its failures for the window.
// A limit of 0 disables limiting.
func (a *authLimiter) Blocked(ip string) bool {
	if a.limit <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.prune(ip)) >= a.limit
}

func (a *authLimiter) Fail(ip string) {
	if a.limit <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fails[ip] = append(a.prune(ip), a.now())
}

func (a *authLimiter) prune(ip string) []time.Time {
	cutoff := a.now().Add(-a.window)
	ts := a.fails[ip]
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(a.fails, ip)
		return nil
	}
	a.fails[ip] = ts
	return ts
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
