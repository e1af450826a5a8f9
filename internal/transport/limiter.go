package transport

import (
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultPeerCache = 1024

// peerLimiter tracks one token bucket per peer IP in a bounded cache.
type peerLimiter struct {
	mu     sync.Mutex
	limits *lru.Cache[string, *rate.Limiter]
	every  rate.Limit
	burst  int
}

func newPeerLimiter(perSecond float64, burst, size int) *peerLimiter {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if size <= 0 {
		size = defaultPeerCache
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		panic(err)
	}
	return &peerLimiter{limits: cache, every: rate.Limit(perSecond), burst: burst}
}

func (l *peerLimiter) allow(addr *net.UDPAddr) bool {
	if addr == nil {
		return true
	}
	key := addr.IP.String()

	l.mu.Lock()
	lim, ok := l.limits.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limits.Add(key, lim)
	}
	l.mu.Unlock()

	return lim.Allow()
}
