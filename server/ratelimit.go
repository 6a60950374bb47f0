package server

import (
	"sync"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	sessions int
}

// IPRateLimiter hands out one token bucket per client address. Sessions from
// the same address share a bucket; the bucket is forgotten once the last of
// them is released.
type IPRateLimiter struct {
	ips map[string]*limiterEntry
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter creates a limiter allowing r events per second with burst b
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*limiterEntry),
		r:   r,
		b:   b,
	}
}

// PerMinute builds a limiter from a messages-per-minute budget. A zero budget
// disables limiting; a zero burst allows a tenth of the budget at once.
func PerMinute(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		return NewIPRateLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = max(perMinute/10, 1)
	}
	return NewIPRateLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// Acquire returns the bucket for ip. Every Acquire needs a matching Release.
func (l *IPRateLimiter) Acquire(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.ips[ip]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.sessions++
	return e.limiter
}

// Release drops one session's claim on ip's bucket
func (l *IPRateLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.ips[ip]
	if !exists {
		return
	}
	e.sessions--
	if e.sessions <= 0 {
		delete(l.ips, ip)
	}
}

// Len returns the number of tracked addresses
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}
