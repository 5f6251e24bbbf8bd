package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/metrics"
)

// loginAttemptLua increments the attempt counter and starts its window in one
// step. A counter left without a ttl gets one on the next attempt.
var loginAttemptLua = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type RateLimitConfig struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// LoginRateLimit counts attempts per client IP in a fixed redis window.
// Redis failures let the request through.
func LoginRateLimit(client redis.UniversalClient, cfg RateLimitConfig, m *metrics.Metrics, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := cfg.Prefix + ":ratelimit:login:" + c.ClientIP()

		count, err := loginAttemptLua.Run(ctx, client, []string{key}, cfg.Window.Milliseconds()).Int64()
		if err != nil {
			log.Warn().Err(err).Msg("login rate limiter unavailable")
			c.Next()
			return
		}

		if count > int64(cfg.Limit) {
			if ttl, err := client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int((ttl+time.Second-1)/time.Second)))
			}
			m.RateLimited()
			abortWithError(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Demasiados intentos de login. Intenta más tarde.")
			return
		}
		c.Next()
	}
}
