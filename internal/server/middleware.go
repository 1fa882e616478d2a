package server

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// RequestIDHeader carries the request ID on requests and responses
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 128

	limiterIdle  = 5 * time.Minute
	cleanupEvery = time.Minute
)

// requestID reuses the client's X-Request-ID or generates a UUID, echoes it
// in the response and stores it on the context
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		c.Header(RequestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

// RequestIDFrom returns the request ID stored by the middleware
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// rateLimiterMap manages per-client rate limiters with periodic cleanup
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	return &rateLimiterMap{
		limiters: make(map[string]*clientLimiter),
	}
}

func (m *rateLimiterMap) getLimiter(client string, rps float64, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	cl, exists := m.limiters[client]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[client] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// sweep removes limiters not used since before cutoff
func (m *rateLimiterMap) sweep(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for client, cl := range m.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(m.limiters, client)
		}
	}
}

func (m *rateLimiterMap) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now.Add(-limiterIdle))
		}
	}
}
