// Presence HTTP handlers.
//
// This file exposes REST endpoints for the presence lifecycle:
//   - POST /presence/join        (announce arrival at a coordinate)
//   - POST /presence/heartbeat   (refresh liveness and position)
//   - POST /presence/leave       (best-effort sign-out)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// PresenceService defines the presence lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PresenceService interface {
	// Join registers the entity as present at the given coordinate.
	Join(ctx context.Context, entityID string, coord geo.Coordinate, displayName string) (*domain.Position, error)
	// Heartbeat refreshes the entity's liveness and position.
	Heartbeat(ctx context.Context, entityID string, coord geo.Coordinate) (*domain.Position, error)
	// Leave marks the entity offline (best effort, idempotent).
	Leave(ctx context.Context, entityID string) error
}

// NearbyService defines the proximity read operations consumed by HTTP
// handlers.
type NearbyService interface {
	// NearbyEntities lists entities within radiusKm of center by distance.
	NearbyEntities(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) ([]services.NearbyEntity, error)
	// OnlineCount counts the online entities of the same listing.
	OnlineCount(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) (int, error)
	// NearbyAnchors lists anchors within radiusKm of center by distance.
	NearbyAnchors(ctx context.Context, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]services.NearbyAnchor, error)
}

// AnchorsService defines anchor and thread operations consumed by HTTP
// handlers.
type AnchorsService interface {
	// Create pins a new anchor at the given coordinate.
	Create(ctx context.Context, ownerID, title string, coord geo.Coordinate) (*domain.Anchor, error)
	// Get returns an anchor by ID.
	Get(ctx context.Context, id string) (*domain.Anchor, error)
	// Resolve marks an anchor resolved (owner only, one-way).
	Resolve(ctx context.Context, ownerID, id string) error
	// PostMessage appends a message to an open anchor's thread.
	PostMessage(ctx context.Context, senderID, anchorID, body string) (*domain.Message, error)
	// ListMessagesPage returns a page of a thread and the total count.
	ListMessagesPage(ctx context.Context, anchorID string, page, pageSize int) ([]domain.Message, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for presence, proximity, and anchors.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	presenceSvc PresenceService
	nearbySvc   NearbyService
	anchorSvc   AnchorsService
	feed        *services.NearbyFeed
}

// New constructs and returns a Handlers instance bound to the given services.
func New(presenceSvc PresenceService, nearbySvc NearbyService, anchorSvc AnchorsService, feed *services.NearbyFeed) *Handlers {
	return &Handlers{presenceSvc: presenceSvc, nearbySvc: nearbySvc, anchorSvc: anchorSvc, feed: feed}
}

// entityID extracts the authenticated entity id from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-Entity-ID" header
// (tests use it). An empty result means the request is unauthenticated.
func entityID(c *gin.Context) string {
	if v, ok := c.Get("entityID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Entity-ID")); h != "" {
			return h
		}
	}
	return ""
}

//
// DTOs
//

// JoinRequest is the JSON payload for announcing presence.
//
// Lat and Lng are pointers so a missing field is distinguishable from a
// legitimate zero (the equator and the prime meridian are real places).
type JoinRequest struct {
	// Lat is the latitude in decimal degrees.
	Lat *float64 `json:"lat" binding:"required" example:"28.5355"`
	// Lng is the longitude in decimal degrees.
	Lng *float64 `json:"lng" binding:"required" example:"77.3910"`
	// DisplayName optionally labels the entity for neighbors.
	DisplayName string `json:"display_name" example:"Alice"`
}

// HeartbeatRequest is the JSON payload for refreshing presence.
type HeartbeatRequest struct {
	Lat *float64 `json:"lat" binding:"required" example:"28.5355"`
	Lng *float64 `json:"lng" binding:"required" example:"77.3910"`
}

// PresenceResponse is the stored position record returned by write endpoints.
type PresenceResponse struct {
	EntityID    string    `json:"entity_id"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	DisplayName string    `json:"display_name,omitempty"`
	PlaceLabel  string    `json:"place_label,omitempty"`
	Status      string    `json:"status"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

func presenceResponse(p *domain.Position) PresenceResponse {
	return PresenceResponse{
		EntityID:    p.EntityID,
		Lat:         p.Lat,
		Lng:         p.Lng,
		DisplayName: p.DisplayName,
		PlaceLabel:  p.PlaceLabel,
		Status:      string(p.Status),
		LastSeenAt:  p.LastUpdateAt,
	}
}

// failPresence maps service-level errors to HTTP responses.
func failPresence(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "entity identity required")
	case errors.Is(err, services.ErrInvalidCoordinate):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCoordinate, "latitude must be within [-90, 90] and longitude within [-180, 180]")
	case errors.Is(err, services.ErrEntityNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "entity not found")
	default:
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "position store unavailable")
	}
}

//
// Handlers
//

// Join godoc
// @ID          joinPresence
// @Summary     Announce presence
// @Description Registers the current entity at a coordinate and marks it online.
// @Tags        Presence
// @Accept      json
// @Produce     json
//
// @Param       X-Entity-ID  header  string  true  "Entity ID"  example(user123)
// @Param       body         body    handlers.JoinRequest  true  "Join payload"
//
// @Success     200  {object}  handlers.PresenceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid coordinate"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /presence/join [post]
func (h *Handlers) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.presenceSvc.Join(c.Request.Context(), entityID(c), geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng}, req.DisplayName)
	if err != nil {
		failPresence(c, err)
		return
	}
	ok(c, http.StatusOK, presenceResponse(pos))
}

// Heartbeat godoc
// @ID          heartbeatPresence
// @Summary     Refresh presence
// @Description Refreshes the current entity's liveness and position. Bursty
// @Description heartbeats without movement may be absorbed server-side, and a
// @Description write superseded in flight returns the stored newer record.
// @Tags        Presence
// @Accept      json
// @Produce     json
//
// @Param       X-Entity-ID  header  string  true  "Entity ID"  example(user123)
// @Param       body         body    handlers.HeartbeatRequest  true  "Heartbeat payload"
//
// @Success     200  {object}  handlers.PresenceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid coordinate"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /presence/heartbeat [post]
func (h *Handlers) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.presenceSvc.Heartbeat(c.Request.Context(), entityID(c), geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		failPresence(c, err)
		return
	}
	ok(c, http.StatusOK, presenceResponse(pos))
}

// Leave godoc
// @ID          leavePresence
// @Summary     Sign out of presence
// @Description Marks the current entity offline. Idempotent; leaving twice is fine.
// @Tags        Presence
// @Produce     json
//
// @Param       X-Entity-ID  header  string  true  "Entity ID"  example(user123)
//
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /presence/leave [post]
func (h *Handlers) Leave(c *gin.Context) {
	if err := h.presenceSvc.Leave(c.Request.Context(), entityID(c)); err != nil {
		failPresence(c, err)
		return
	}
	noContent(c)
}
