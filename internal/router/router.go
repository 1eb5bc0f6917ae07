package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // the Echo web framework handles routing
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/event-seating/internal/config"
    "github.com/iliyamo/event-seating/internal/handler"
    "github.com/iliyamo/event-seating/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Load balancers and monitoring poll this endpoint to verify the
    // service is up.
    e.GET("/healthz", handler.Health)
}

// RegisterSeating registers the seating engine's HTTP surface.
//
// Token issuance lives under /v1/seating/token behind the API bearer
// middleware and the Redis token bucket, so a misbehaving client cannot
// mint tokens in a tight loop.  The WebSocket join endpoint is
// authenticated by the room token itself and therefore sits outside the
// bearer middleware: browsers cannot attach Authorization headers to
// WebSocket dials.  The snapshot endpoint is read-only and cacheable.
func RegisterSeating(e *echo.Echo, s *handler.SeatingHandler, jwtSecret string, rdb *redis.Client) {
    // Room join via WebSocket; the room token rides in a query param.
    e.GET("/v1/seating/ws", s.JoinRoom)

    auth := e.Group("/v1/seating")
    auth.Use(middleware.JWTAuth(jwtSecret))

    rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
    auth.POST("/token", s.IssueToken, rl)

    cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
    auth.GET("/events/:id/snapshot", s.Snapshot, cache)
}
