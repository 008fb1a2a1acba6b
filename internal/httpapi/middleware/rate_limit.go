package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/common"
)

// Limiter is satisfied by redisstore.Store.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SendRateLimit caps message sends per caller. A nil limiter disables it.
// Limiter failures let the request through.
func SendRateLimit(l Limiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || limit <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("send:%s:%d", c.GetString(UserRoleKey), c.GetUint64(UserIDKey))
		ok, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Printf("[httpapi] rate limiter error request_id=%s err=%v", c.GetString(RequestIDKey), err)
			c.Next()
			return
		}
		if !ok {
			common.Abort(c, http.StatusTooManyRequests, 42901, "too many messages, slow down")
			return
		}
		c.Next()
	}
}
