// Nearby HTTP handlers.
//
// This file exposes the proximity read endpoints:
//   - GET /nearby          (ranked entity listing around a point)
//   - GET /nearby/count    (online count around a point)
//   - GET /nearby/anchors  (ranked anchor listing around a point)
//
// The center is supplied as lat/lng query parameters; radius_km is optional
// and falls back to the server default.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/services"
	"github.com/tbourn/go-nearby-backend/internal/utils"
)

//
// DTOs
//

// NearbyResponse wraps a ranked nearby listing.
type NearbyResponse struct {
	Entities    []services.NearbyEntity `json:"entities"`
	OnlineCount int                     `json:"online_count"`
	RadiusKm    float64                 `json:"radius_km"`
}

// OnlineCountResponse reports the online population around a point.
type OnlineCountResponse struct {
	OnlineCount int     `json:"online_count"`
	RadiusKm    float64 `json:"radius_km"`
}

// NearbyAnchorsResponse wraps a ranked anchor listing.
type NearbyAnchorsResponse struct {
	Anchors  []services.NearbyAnchor `json:"anchors"`
	RadiusKm float64                 `json:"radius_km"`
}

//
// Helpers
//

// centerFromQuery parses lat/lng query parameters. Both must be present;
// range validation belongs to the service layer.
func centerFromQuery(c *gin.Context) (geo.Coordinate, bool) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{
		Lat: utils.ParseFloatDefault(latStr, 200), // out of range when unparsable
		Lng: utils.ParseFloatDefault(lngStr, 200),
	}, true
}

// failNearby maps proximity service errors to HTTP responses.
func failNearby(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCoordinate):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCoordinate, "latitude must be within [-90, 90] and longitude within [-180, 180]")
	case errors.Is(err, services.ErrInvalidRadius):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRadius, "radius_km must be positive and within the server cap")
	default:
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "position store unavailable")
	}
}

//
// Handlers
//

// Nearby godoc
// @ID          listNearby
// @Summary     List nearby entities
// @Description Returns entities within radius_km of (lat, lng), closest first,
// @Description excluding the caller's own record. Staleness is evaluated at
// @Description read time, so a silent client ages out of the online set.
// @Tags        Nearby
// @Produce     json
//
// @Param       X-Entity-ID  header  string   false "Entity ID (excluded from results)"  example(user123)
// @Param       lat          query   number   true  "Center latitude"   example(28.5355)
// @Param       lng          query   number   true  "Center longitude"  example(77.3910)
// @Param       radius_km    query   number   false "Radius in km (server default when omitted)"  example(5)
//
// @Success     200  {object}  handlers.NearbyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad coordinate or radius"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /nearby [get]
func (h *Handlers) Nearby(c *gin.Context) {
	center, okc := centerFromQuery(c)
	if !okc {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := utils.ParseFloatDefault(c.Query("radius_km"), 0)

	entities, err := h.nearbySvc.NearbyEntities(c.Request.Context(), entityID(c), center, radius)
	if err != nil {
		failNearby(c, err)
		return
	}

	online := 0
	for _, e := range entities {
		if e.Online {
			online++
		}
	}
	ok(c, http.StatusOK, NearbyResponse{Entities: entities, OnlineCount: online, RadiusKm: radius})
}

// NearbyCount godoc
// @ID          countNearby
// @Summary     Count online entities nearby
// @Description Returns how many entities within radius_km of (lat, lng) are
// @Description online right now. Always agrees with the /nearby listing.
// @Tags        Nearby
// @Produce     json
//
// @Param       X-Entity-ID  header  string   false "Entity ID (excluded from the count)"  example(user123)
// @Param       lat          query   number   true  "Center latitude"   example(28.5355)
// @Param       lng          query   number   true  "Center longitude"  example(77.3910)
// @Param       radius_km    query   number   false "Radius in km (server default when omitted)"  example(5)
//
// @Success     200  {object}  handlers.OnlineCountResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad coordinate or radius"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /nearby/count [get]
func (h *Handlers) NearbyCount(c *gin.Context) {
	center, okc := centerFromQuery(c)
	if !okc {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := utils.ParseFloatDefault(c.Query("radius_km"), 0)

	count, err := h.nearbySvc.OnlineCount(c.Request.Context(), entityID(c), center, radius)
	if err != nil {
		failNearby(c, err)
		return
	}
	ok(c, http.StatusOK, OnlineCountResponse{OnlineCount: count, RadiusKm: radius})
}

// NearbyAnchors godoc
// @ID          listNearbyAnchors
// @Summary     List nearby anchors
// @Description Returns anchors within radius_km of (lat, lng), closest first.
// @Description Resolved anchors are hidden unless include_resolved=true.
// @Tags        Nearby
// @Produce     json
//
// @Param       lat               query  number  true  "Center latitude"   example(28.5355)
// @Param       lng               query  number  true  "Center longitude"  example(77.3910)
// @Param       radius_km         query  number  false "Radius in km (server default when omitted)"  example(5)
// @Param       include_resolved  query  bool    false "Include resolved anchors"  default(false)
//
// @Success     200  {object}  handlers.NearbyAnchorsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad coordinate or radius"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /nearby/anchors [get]
func (h *Handlers) NearbyAnchors(c *gin.Context) {
	center, okc := centerFromQuery(c)
	if !okc {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := utils.ParseFloatDefault(c.Query("radius_km"), 0)
	includeResolved := utils.ParseBoolDefault(c.Query("include_resolved"), false)

	anchors, err := h.nearbySvc.NearbyAnchors(c.Request.Context(), center, radius, includeResolved)
	if err != nil {
		failNearby(c, err)
		return
	}
	ok(c, http.StatusOK, NearbyAnchorsResponse{Anchors: anchors, RadiusKm: radius})
}
