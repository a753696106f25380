// SPDX-License-Identifier: MIT

// Package ratelimit throttles inbound device connections per remote IP.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "audiocenter",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total accept rate limit rejections",
		},
		[]string{"limit_type"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits. A zero GlobalRate disables the global bucket.
	GlobalRate  rate.Limit // accepts per second
	GlobalBurst int

	// Per-IP limits
	PerIPRate  rate.Limit
	PerIPBurst int

	// Idle per-IP limiters older than this are dropped
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		GlobalRate:  100,
		GlobalBurst: 200,

		PerIPRate:  5,
		PerIPBurst: 10,

		CleanupInterval: 5 * time.Minute,
	}
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter decides whether a new connection may be accepted.
type Limiter struct {
	config Config

	global *rate.Limiter
	perIP  map[string]*ipEntry
	mu     sync.Mutex

	now         func() time.Time
	lastCleanup time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Limiter{
		config: config,
		perIP:  make(map[string]*ipEntry),
		now:    time.Now,
	}
	if config.GlobalRate > 0 {
		l.global = rate.NewLimiter(config.GlobalRate, config.GlobalBurst)
	}
	l.lastCleanup = l.now()
	return l
}

// Allow checks if a connection from clientIP is allowed.
// Returns true if allowed, false if rate limited
func (l *Limiter) Allow(clientIP string) bool {
	if l.global != nil && !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}
	if l.config.PerIPRate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.maybeCleanupLocked(now)

	e, ok := l.perIP[clientIP]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)}
		l.perIP[clientIP] = e
	}
	e.lastSeen = now
	if !e.limiter.AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}
	return true
}

// AllowAddr is Allow keyed by the host part of addr.
func (l *Limiter) AllowAddr(addr net.Addr) bool {
	return l.Allow(HostOf(addr))
}

// Tracked returns the number of per-IP limiters held.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perIP)
}

// maybeCleanupLocked drops limiters not seen for a full cleanup interval.
func (l *Limiter) maybeCleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	for ip, e := range l.perIP {
		if now.Sub(e.lastSeen) >= l.config.CleanupInterval {
			delete(l.perIP, ip)
		}
	}
	l.lastCleanup = now
}

// HostOf returns the IP of addr without the port.
func HostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
