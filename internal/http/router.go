// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/config"
	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/geocode"
	"github.com/tbourn/go-nearby-backend/internal/http/handlers"
	"github.com/tbourn/go-nearby-backend/internal/http/middleware"
	"github.com/tbourn/go-nearby-backend/internal/repo"
	"github.com/tbourn/go-nearby-backend/internal/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// positionStoreShim adapts the repository free functions to the
// services.PositionStore interface expected by the PresenceTracker. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type positionStoreShim struct{}

// Upsert proxies repo.UpsertPosition.
func (positionStoreShim) Upsert(ctx context.Context, db *gorm.DB, up repo.PositionUpsert) (*domain.Position, error) {
	return repo.UpsertPosition(ctx, db, up)
}

// Get proxies repo.GetPosition.
func (positionStoreShim) Get(ctx context.Context, db *gorm.DB, entityID string) (*domain.Position, error) {
	return repo.GetPosition(ctx, db, entityID)
}

// MarkOffline proxies repo.MarkOffline.
func (positionStoreShim) MarkOffline(ctx context.Context, db *gorm.DB, entityID string, now time.Time) error {
	return repo.MarkOffline(ctx, db, entityID, now)
}

// MarkStaleOffline proxies repo.MarkStaleOffline (sweep support).
func (positionStoreShim) MarkStaleOffline(ctx context.Context, db *gorm.DB, olderThan time.Time) (int64, error) {
	return repo.MarkStaleOffline(ctx, db, olderThan)
}

// proximityStoreShim adapts the radius query functions to the
// services.ProximityStore interface expected by the ProximityService.
type proximityStoreShim struct{}

// WithinRadius proxies repo.QueryWithinRadius.
func (proximityStoreShim) WithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, excludeEntityID string) ([]repo.NearbyPosition, error) {
	return repo.QueryWithinRadius(ctx, db, center, radiusKm, excludeEntityID)
}

// AnchorsWithinRadius proxies repo.QueryAnchorsWithinRadius.
func (proximityStoreShim) AnchorsWithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]repo.NearbyAnchor, error) {
	return repo.QueryAnchorsWithinRadius(ctx, db, center, radiusKm, includeResolved)
}

// anchorRepoShim adapts the anchor and message repository functions to the
// services.AnchorRepo interface expected by the AnchorService.
type anchorRepoShim struct{}

// CreateAnchor proxies repo.CreateAnchor.
func (anchorRepoShim) CreateAnchor(ctx context.Context, db *gorm.DB, ownerID, title string, coord geo.Coordinate, placeLabel string) (*domain.Anchor, error) {
	return repo.CreateAnchor(ctx, db, ownerID, title, coord, placeLabel)
}

// GetAnchor proxies repo.GetAnchor.
func (anchorRepoShim) GetAnchor(ctx context.Context, db *gorm.DB, id string) (*domain.Anchor, error) {
	return repo.GetAnchor(ctx, db, id)
}

// ResolveAnchor proxies repo.ResolveAnchor.
func (anchorRepoShim) ResolveAnchor(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.ResolveAnchor(ctx, db, id, ownerID)
}

// CreateMessage proxies repo.CreateMessage.
func (anchorRepoShim) CreateMessage(ctx context.Context, db *gorm.DB, anchorID, senderID, body string) (*domain.Message, error) {
	return repo.CreateMessage(ctx, db, anchorID, senderID, body)
}

// CountMessages proxies repo.CountMessages (pagination support).
func (anchorRepoShim) CountMessages(ctx context.Context, db *gorm.DB, anchorID string) (int64, error) {
	return repo.CountMessages(ctx, db, anchorID)
}

// ListMessagesPage proxies repo.ListMessagesPage (pagination support).
func (anchorRepoShim) ListMessagesPage(ctx context.Context, db *gorm.DB, anchorID string, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, db, anchorID, offset, limit)
}

// App bundles the long-lived service objects constructed by RegisterRoutes
// so the caller can drive their background duties (stale sweeps, feed
// shutdown) without re-plumbing every dependency.
type App struct {
	Tracker *services.PresenceTracker
	Feed    *services.NearbyFeed
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per entity/IP, bypass on replay)
//  9. CORS and Security headers, gzip
func RegisterRoutes(r *gin.Engine, db *gorm.DB, b bus.Bus, places geocode.Resolver, cfg config.Config) *App {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting). Anchor creation is
	// the only idempotent write, so the lookup pins the storage scope it
	// uses rather than trusting the route path the middleware derives.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, entityID, _ /* scope */, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, entityID, "anchors", key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per entity/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByEntityOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Entity-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Entity-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Compress responses; the WebSocket upgrade path is excluded because
	// gzip wrapping breaks connection hijacking.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws/nearby"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health with coarse presence statistics
	r.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now().UTC()
		total, online, _, err := repo.PositionStats(ctx, db, now, cfg.Presence.StaleWindow)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "degraded"})
			return
		}
		anchors, open, err := repo.AnchorStats(ctx, db)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"entities":     total,
			"online":       online,
			"anchors":      anchors,
			"open_anchors": open,
		})
	})

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/bus
	tracker := services.NewPresenceTracker(db, positionStoreShim{}, b, places)
	tracker.HeartbeatInterval = cfg.Presence.HeartbeatInterval

	nearbySvc := services.NewProximityService(db, proximityStoreShim{})
	nearbySvc.StaleWindow = cfg.Presence.StaleWindow
	nearbySvc.DefaultRadiusKm = cfg.Presence.DefaultRadiusKm
	nearbySvc.MaxRadiusKm = cfg.Presence.MaxRadiusKm

	anchorSvc := services.NewAnchorService(db, anchorRepoShim{}, b, places)

	feed := services.NewNearbyFeed(nearbySvc, b, cfg.Presence.PollInterval)

	h := handlers.New(tracker, nearbySvc, anchorSvc, feed)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Presence lifecycle
		api.POST("/presence/join", h.Join)
		api.POST("/presence/heartbeat", h.Heartbeat)
		api.POST("/presence/leave", h.Leave)

		// Proximity queries
		api.GET("/nearby", h.Nearby)
		api.GET("/nearby/count", h.NearbyCount)
		api.GET("/nearby/anchors", h.NearbyAnchors)

		// Anchors and threads
		api.POST("/anchors", h.CreateAnchor)
		api.GET("/anchors/:id", h.GetAnchor)
		api.POST("/anchors/:id/resolve", h.ResolveAnchor)
		api.POST("/anchors/:id/messages", h.PostAnchorMessage)
		api.GET("/anchors/:id/messages", h.ListAnchorMessages)
	}

	// Live nearby feed (outside the versioned group; excluded from gzip)
	r.GET("/ws/nearby", h.NearbyFeedWS)

	return &App{Tracker: tracker, Feed: feed}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
