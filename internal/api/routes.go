package api

import (
	"github.com/gin-gonic/gin"

	"github.com/shuttlecrew/routeplanner/internal/auth"
	"github.com/shuttlecrew/routeplanner/internal/common/ratelimit"
)

// RegisterRoutes wires the planning API under /api/v1, guarding it with
// bearer-token auth and (if limiter is non-nil) the sliding-window rate
// limiter, following the teacher's versioned route-group convention in
// cmd/server/main.go's setupRoutes.
func RegisterRoutes(r *gin.Engine, handler *Handler, jwtSecret string, limiter *ratelimit.RateLimiter) {
	v1 := r.Group("/api/v1")
	v1.Use(auth.Required(jwtSecret))
	if limiter != nil {
		v1.Use(limiter.Middleware())
	}

	v1.POST("/plan", handler.Plan)
}
