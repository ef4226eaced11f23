package auctiond

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter applies a token bucket per client IP and evicts buckets
// that have been idle for limiterIdleTTL.
type clientLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	byClient map[string]*limiterEntry
	hits     uint64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		byClient: make(map[string]*limiterEntry),
	}
}

// allow reports whether one request can be admitted for the client at now.
// The key is the client's RemoteAddr; the port is stripped so reconnects
// share a bucket.
func (l *clientLimiter) allow(remoteAddr string, now time.Time) bool {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byClient[remoteAddr]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byClient[remoteAddr] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-limiterIdleTTL)
		for client, entry := range l.byClient {
			if entry.lastSeen.Before(cutoff) {
				delete(l.byClient, client)
			}
		}
	}

	return allowed
}
