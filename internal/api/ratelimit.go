package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter tracks one token bucket per client IP. Buckets idle for
// longer than limiterTTL are dropped so the map stays bounded.
type clientLimiter struct {
	mu       sync.Mutex
	perHour  int
	burst    int
	clients  map[string]*clientBucket
	lastSeen func() time.Time
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

const limiterTTL = time.Hour

func newClientLimiter(perHour int) *clientLimiter {
	burst := perHour / 10
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		perHour:  perHour,
		burst:    burst,
		clients:  map[string]*clientBucket{},
		lastSeen: time.Now,
	}
}

func (l *clientLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.lastSeen()
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(float64(l.perHour)/3600), l.burst)}
		l.clients[ip] = b
	}
	b.seen = now

	for addr, other := range l.clients {
		if now.Sub(other.seen) > limiterTTL {
			delete(l.clients, addr)
		}
	}

	return b.limiter.Allow()
}

// RateLimitMiddleware rejects clients exceeding perHour requests with 429.
// The admin group is registered without it, mirroring the exemption the
// admin panel has always had.
func RateLimitMiddleware(perHour int) gin.HandlerFunc {
	limiter := newClientLimiter(perHour)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			respondError(c, 429, "Rate limit exceeded, please slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
