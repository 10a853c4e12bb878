// Anchor HTTP handlers.
//
// This file exposes REST endpoints for anchor resources and their threads:
//   - POST /anchors                  (create, idempotent via Idempotency-Key)
//   - GET  /anchors/{id}             (fetch one)
//   - POST /anchors/{id}/resolve     (owner-only, one-way)
//   - POST /anchors/{id}/messages    (append to thread)
//   - GET  /anchors/{id}/messages    (list thread, paginated, ETag support)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for the same entity and key, the handler replays the stored
// anchor and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/http/middleware"
	"github.com/tbourn/go-nearby-backend/internal/repo"
	"github.com/tbourn/go-nearby-backend/internal/services"
	"github.com/tbourn/go-nearby-backend/internal/utils"
)

// idemScopeAnchors partitions idempotency keys for anchor creation.
const idemScopeAnchors = "anchors"

// middlewareGetIdempotencyKey is an indirection over the middleware accessor
// so tests can stub key extraction.
var middlewareGetIdempotencyKey = middleware.GetIdempotencyKey

//
// DTOs
//

// CreateAnchorRequest is the JSON payload for pinning an anchor.
type CreateAnchorRequest struct {
	// Title describes the anchor (1-80 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Water tanker spot"`
	// Lat is the anchor latitude in decimal degrees.
	Lat *float64 `json:"lat" binding:"required" example:"28.5355"`
	// Lng is the anchor longitude in decimal degrees.
	Lng *float64 `json:"lng" binding:"required" example:"77.3910"`
}

// PostAnchorMessageRequest is the JSON payload for a thread message.
type PostAnchorMessageRequest struct {
	// Body is the message text (1-500 chars).
	Body string `json:"body" binding:"required,min=1" example:"Tanker just arrived"`
}

// ListAnchorMessagesResponse wraps a page of thread messages.
type ListAnchorMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failAnchor maps anchor service errors to HTTP responses.
func failAnchor(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "entity identity required")
	case errors.Is(err, services.ErrAnchorNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "anchor not found")
	case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrEmptyBody), errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidCoordinate):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCoordinate, "latitude must be within [-90, 90] and longitude within [-180, 180]")
	case errors.Is(err, services.ErrAnchorResolved):
		fail(c, http.StatusConflict, ErrCodeConflict, "anchor already resolved")
	default:
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "position store unavailable")
	}
}

// anchorDB digs the GORM handle out of the concrete service when available.
// Idempotency replay/store is best effort and skipped without it.
func (h *Handlers) anchorDB() *gorm.DB {
	if svc, ok := h.anchorSvc.(*services.AnchorService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// CreateAnchor godoc
// @ID          createAnchor
// @Summary     Pin an anchor
// @Description Creates an anchor at a coordinate, owned by the current entity.
// @Description Supports idempotency via the Idempotency-Key header (same key → same anchor).
// @Tags        Anchors
// @Accept      json
// @Produce     json
//
// @Param       X-Entity-ID      header  string  true   "Entity ID"  example(user123)
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateAnchorRequest  true  "Anchor payload"
//
// @Success     201  {object}  domain.Anchor
// @Header      201  {string}  Idempotency-Replayed  "true when a stored result was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /anchors [post]
func (h *Handlers) CreateAnchor(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateAnchorRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title, lat and lng are required")
		return
	}

	owner := entityID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" && owner != "" {
		if db := h.anchorDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, owner, idemScopeAnchors, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := h.anchorSvc.Get(ctx, rec.ResourceID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, prev)
					return
				}
			}
		}
	}

	a, err := h.anchorSvc.Create(ctx, owner, req.Title, geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		failAnchor(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && owner != "" {
		if db := h.anchorDB(); db != nil {
			_, _ = repo.CreateIdempotency(ctx, db, owner, idemScopeAnchors, idemKey, a.ID, http.StatusCreated, 24*time.Hour)
		}
	}

	ok(c, http.StatusCreated, a)
}

// GetAnchor godoc
// @ID          getAnchor
// @Summary     Fetch an anchor
// @Description Returns a single anchor by ID.
// @Tags        Anchors
// @Produce     json
//
// @Param       id  path  string  true  "Anchor ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Anchor
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Anchor not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /anchors/{id} [get]
func (h *Handlers) GetAnchor(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "anchor id must be a UUID")
		return
	}

	a, err := h.anchorSvc.Get(c.Request.Context(), id)
	if err != nil {
		failAnchor(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// ResolveAnchor godoc
// @ID          resolveAnchor
// @Summary     Resolve an anchor
// @Description Marks an anchor resolved. Owner only; the flag never flips back,
// @Description and resolving an already-resolved anchor is a no-op.
// @Tags        Anchors
// @Produce     json
//
// @Param       X-Entity-ID  header  string  true  "Entity ID"  example(user123)
// @Param       id           path    string  true  "Anchor ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Anchor not found or not owned"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /anchors/{id}/resolve [post]
func (h *Handlers) ResolveAnchor(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "anchor id must be a UUID")
		return
	}

	if err := h.anchorSvc.Resolve(c.Request.Context(), entityID(c), id); err != nil {
		failAnchor(c, err)
		return
	}
	noContent(c)
}

// PostAnchorMessage godoc
// @ID          postAnchorMessage
// @Summary     Post to an anchor thread
// @Description Appends a short message to an open anchor's thread.
// @Tags        Anchors
// @Accept      json
// @Produce     json
//
// @Param       X-Entity-ID  header  string  true  "Entity ID"  example(user123)
// @Param       id           path    string  true  "Anchor ID (UUID)"  format(uuid)
// @Param       body         body    handlers.PostAnchorMessageRequest  true  "Message payload"
//
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing entity identity"
// @Failure     404  {object}  handlers.ErrorResponse  "Anchor not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Anchor already resolved"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /anchors/{id}/messages [post]
func (h *Handlers) PostAnchorMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "anchor id must be a UUID")
		return
	}

	var req PostAnchorMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	m, err := h.anchorSvc.PostMessage(c.Request.Context(), entityID(c), id, req.Body)
	if err != nil {
		failAnchor(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListAnchorMessages godoc
// @ID          listAnchorMessages
// @Summary     List an anchor thread
// @Description Returns a paginated page of an anchor's messages in posting order.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Anchors
// @Produce     json
//
// @Param       id             path    string  true  "Anchor ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAnchorMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Anchor not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /anchors/{id}/messages [get]
func (h *Handlers) ListAnchorMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "anchor id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	if db := h.anchorDB(); db != nil {
		if count, err := repo.CountMessages(ctx, db, id); err == nil {
			etag := fmt.Sprintf(`W/"anchor-msgs:%s:%d"`, id, count)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.anchorSvc.ListMessagesPage(ctx, id, page, pageSize)
	if err != nil {
		failAnchor(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListAnchorMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
