// Package ratelimit throttles sensitive endpoints with a sliding window
// keyed by (client IP, endpoint class). Exceeding the limit yields a uniform
// rejection with no detail about which class or threshold tripped.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/yvza/sudo.party-sub000/internal/pkg/env"
	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
)

var (
	storageOnce sync.Once
	storage     fiber.Storage
)

// sharedStorage backs all endpoint classes with one Redis database so limits
// survive restarts and hold across replicas. Database 1 keeps limiter keys
// away from the cache on database 0.
func sharedStorage() fiber.Storage {
	storageOnce.Do(func() {
		port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
		if err != nil {
			port = 6379
		}
		storage = redis.New(redis.Config{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     port,
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			Database: 1,
			Reset:    false,
		})
	})
	return storage
}

// New builds the limiter middleware for one endpoint class.
func New(class string, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:                    max,
		Expiration:             window,
		LimiterMiddleware:      limiter.SlidingWindow{},
		Storage:                sharedStorage(),
		SkipFailedRequests:     false,
		SkipSuccessfulRequests: false,
		KeyGenerator: func(c *fiber.Ctx) string {
			return class + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   reason.TooManyRequests,
				"message": "try again later",
			})
		},
	})
}
