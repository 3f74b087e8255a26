package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"money-exchange/internal/config"
	"money-exchange/internal/logger"
	"money-exchange/internal/models"
)

// idleBucketTTL is how long an untouched bucket is kept
const idleBucketTTL = time.Hour

// Limiter implements a token bucket rate limiter per client IP
type Limiter struct {
	Configuration *config.Config
	logger        *logger.Logger
	now           func() time.Time

	clientBuckets map[string]*TokenBucket
	bucketsMutex  sync.Mutex

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// TokenBucket holds up to capacity tokens, refilled continuously at
// refillRate tokens per refillPeriod.
type TokenBucket struct {
	capacity     float64
	tokens       float64
	lastRefill   time.Time
	refillRate   float64
	refillPeriod time.Duration
	mu           sync.Mutex
}

// NewLimiter creates a limiter and starts its idle-bucket cleanup
func NewLimiter(configuration *config.Config, logger *logger.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		now:           time.Now,
		clientBuckets: make(map[string]*TokenBucket),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow reports whether a request from clientIP may proceed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}

	currentTime := rateLimiter.now()

	rateLimiter.bucketsMutex.Lock()
	tokenBucket, bucketExists := rateLimiter.clientBuckets[clientIP]
	if !bucketExists {
		burst := float64(rateLimiter.Configuration.RateLimitBurst)
		tokenBucket = &TokenBucket{
			capacity:     burst,
			tokens:       burst,
			lastRefill:   currentTime,
			refillRate:   float64(rateLimiter.Configuration.RateLimitRequests),
			refillPeriod: rateLimiter.Configuration.RateLimitWindow,
		}
		rateLimiter.clientBuckets[clientIP] = tokenBucket
	}
	rateLimiter.bucketsMutex.Unlock()

	return tokenBucket.take(currentTime)
}

// GinMiddleware rejects over-limit clients with 429
func (rateLimiter *Limiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// forwarding headers count only from the engine's trusted proxies
		clientIP := c.ClientIP()
		if rateLimiter.Allow(clientIP) {
			c.Next()
			return
		}

		rateLimiter.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
		c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.Configuration.RateLimitRequests))
		c.Header("X-RateLimit-Remaining", "0")
		c.Header("Retry-After", strconv.Itoa(rateLimiter.retryAfterSeconds()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error:   "error",
			Kind:    "rate_limited",
			Message: "rate limit exceeded",
			Code:    http.StatusTooManyRequests,
		})
	}
}

// retryAfterSeconds is the time for one token to refill, rounded up
func (rateLimiter *Limiter) retryAfterSeconds() int {
	requests := rateLimiter.Configuration.RateLimitRequests
	if requests <= 0 {
		return int(rateLimiter.Configuration.RateLimitWindow.Seconds())
	}
	perToken := rateLimiter.Configuration.RateLimitWindow.Seconds() / float64(requests)
	return int(math.Max(1, math.Ceil(perToken)))
}

// cleanup drops buckets idle for longer than idleBucketTTL
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.evictIdle(rateLimiter.now())
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) evictIdle(currentTime time.Time) {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	for clientIP, tokenBucket := range rateLimiter.clientBuckets {
		tokenBucket.mu.Lock()
		idle := currentTime.Sub(tokenBucket.lastRefill) > idleBucketTTL
		tokenBucket.mu.Unlock()
		if idle {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

// Stop stops the cleanup goroutine; safe to call more than once
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}

// Allow takes a token if one is available
func (tokenBucket *TokenBucket) Allow() bool {
	return tokenBucket.take(time.Now())
}

func (tokenBucket *TokenBucket) take(currentTime time.Time) bool {
	tokenBucket.mu.Lock()
	defer tokenBucket.mu.Unlock()

	if currentTime.After(tokenBucket.lastRefill) && tokenBucket.refillPeriod > 0 {
		elapsed := currentTime.Sub(tokenBucket.lastRefill)
		refill := elapsed.Seconds() / tokenBucket.refillPeriod.Seconds() * tokenBucket.refillRate
		tokenBucket.tokens = math.Min(tokenBucket.capacity, tokenBucket.tokens+refill)
		tokenBucket.lastRefill = currentTime
	}

	if tokenBucket.tokens >= 1 {
		tokenBucket.tokens--
		return true
	}
	return false
}
