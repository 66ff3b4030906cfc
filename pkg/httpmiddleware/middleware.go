package httpmiddleware

import (
	"fmt"
	"net/http"
	"time"

	"fleetmaster/internal/config"
	"fleetmaster/pkg/circuitbreaker"
	"fleetmaster/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit is a middleware that applies rate limiting to the request chain.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CircuitBreak is a middleware that applies the circuit breaker pattern to
// the request chain. It considers HTTP status codes >= 500 as failures.
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := breaker.Execute(func() (interface{}, error) {
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, fmt.Errorf("server error: status code %d", c.Writer.Status())
			}
			return nil, nil
		})

		if err == circuitbreaker.ErrCircuitOpen {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable: circuit breaker is open"})
		}
		// Any other error was already written to the response by the handler chain.
	}
}

// NewRateLimiter builds a rate limiter from configuration. It returns
// (nil, nil) when rate limiting is disabled.
func NewRateLimiter(cfg config.RateLimiterConfig) (ratelimiter.RateLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity), nil
	case "fixedWindow":
		window, err := time.ParseDuration(cfg.FixedWindow.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixed window duration %q: %w", cfg.FixedWindow.Window, err)
		}
		return ratelimiter.NewFixedWindowCounter(cfg.FixedWindow.Limit, window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %q", cfg.Algorithm)
	}
}

// NewCircuitBreaker builds a circuit breaker from configuration. It returns
// (nil, nil) when circuit breaking is disabled.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) (circuitbreaker.CircuitBreaker, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout %q: %w", cfg.Timeout, err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout), nil
}
