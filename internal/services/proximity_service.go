// Package services – ProximityService
//
// This file implements the ProximityService, the read path for "who and
// what is near this point". Every result row is classified through the
// liveness package at read time, so a stored online flag on a stale row
// never leaks out as online. OnlineCount is defined as the online rows of
// the same listing NearbyEntities produces; there is one code path, so the
// two can never disagree.
package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
	"github.com/tbourn/go-nearby-backend/internal/repo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProximityStore defines the repository contract required by ProximityService.
type ProximityStore interface {
	// WithinRadius returns positions within radiusKm of center ordered by
	// ascending distance, excluding excludeEntityID when non-empty.
	WithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, excludeEntityID string) ([]repo.NearbyPosition, error)

	// AnchorsWithinRadius returns anchors within radiusKm of center.
	AnchorsWithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]repo.NearbyAnchor, error)
}

// NearbyEntity is one ranked row of a proximity query, annotated with the
// read-time liveness classification.
type NearbyEntity struct {
	EntityID    string          `json:"entity_id"`
	DisplayName string          `json:"display_name,omitempty"`
	PlaceLabel  string          `json:"place_label,omitempty"`
	Lat         float64         `json:"lat"`
	Lng         float64         `json:"lng"`
	DistanceKm  float64         `json:"distance_km"`
	Status      liveness.Status `json:"status"`
	Online      bool            `json:"online"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
}

// NearbyAnchor is one ranked anchor row of a proximity query.
type NearbyAnchor struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	PlaceLabel string    `json:"place_label,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	DistanceKm float64   `json:"distance_km"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProximityService answers radius queries against the position store.
type ProximityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the proximity repository used by this service.
	Store ProximityStore

	// StaleWindow bounds how old a record may be and still count online.
	StaleWindow time.Duration
	// DefaultRadiusKm is applied when a caller passes radius <= 0.
	DefaultRadiusKm float64
	// MaxRadiusKm caps client-supplied radii.
	MaxRadiusKm float64

	// Now allows tests to control the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewProximityService constructs a ProximityService with sane defaults.
func NewProximityService(db *gorm.DB, store ProximityStore) *ProximityService {
	return &ProximityService{
		DB:              db,
		Store:           store,
		StaleWindow:     liveness.DefaultStaleWindow,
		DefaultRadiusKm: 10.0,
		MaxRadiusKm:     50.0,
	}
}

// NearbyEntities returns every entity within radiusKm of center, ordered by
// ascending distance, with the viewer's own row excluded. radius <= 0 means
// the configured default. Each row carries its classification at call time.
func (s *ProximityService) NearbyEntities(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) ([]NearbyEntity, error) {
	tr := otel.Tracer("services/ProximityService")
	ctx, span := tr.Start(ctx, "NearbyEntities",
		trace.WithAttributes(
			attribute.String("viewer.id", viewerID),
			attribute.Float64("radius.km", radiusKm),
		),
	)
	defer span.End()

	radiusKm, err := s.radius(radiusKm)
	if err != nil {
		return nil, err
	}
	if err := center.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	rows, err := s.Store.WithinRadius(ctx, s.DB, center, radiusKm, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := s.now()
	out := make([]NearbyEntity, 0, len(rows))
	for _, r := range rows {
		cls := liveness.Classify(r.Status, r.LastUpdateAt, now, s.StaleWindow)
		status := r.Status
		if status == liveness.StatusOnline && !cls.Online {
			status = liveness.StatusOffline
		}
		out = append(out, NearbyEntity{
			EntityID:    r.EntityID,
			DisplayName: r.DisplayName,
			PlaceLabel:  r.PlaceLabel,
			Lat:         r.Lat,
			Lng:         r.Lng,
			DistanceKm:  r.DistanceKm,
			Status:      status,
			Online:      cls.Online,
			LastSeenAt:  r.LastUpdateAt,
		})
	}
	return out, nil
}

// OnlineCount reports how many entities within radiusKm of center are
// online right now. It is the online subset of the NearbyEntities listing
// for the same arguments, computed through the same code path.
func (s *ProximityService) OnlineCount(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) (int, error) {
	rows, err := s.NearbyEntities(ctx, viewerID, center, radiusKm)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rows {
		if r.Online {
			n++
		}
	}
	return n, nil
}

// NearbyAnchors returns every open anchor within radiusKm of center,
// ordered by ascending distance. includeResolved widens the listing to
// resolved anchors as well.
func (s *ProximityService) NearbyAnchors(ctx context.Context, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]NearbyAnchor, error) {
	tr := otel.Tracer("services/ProximityService")
	ctx, span := tr.Start(ctx, "NearbyAnchors",
		trace.WithAttributes(attribute.Float64("radius.km", radiusKm)),
	)
	defer span.End()

	radiusKm, err := s.radius(radiusKm)
	if err != nil {
		return nil, err
	}
	if err := center.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	rows, err := s.Store.AnchorsWithinRadius(ctx, s.DB, center, radiusKm, includeResolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]NearbyAnchor, 0, len(rows))
	for _, r := range rows {
		out = append(out, NearbyAnchor{
			ID:         r.ID,
			OwnerID:    r.OwnerID,
			Title:      r.Title,
			PlaceLabel: r.PlaceLabel,
			Lat:        r.Lat,
			Lng:        r.Lng,
			DistanceKm: r.DistanceKm,
			Resolved:   r.Resolved,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// radius applies the default for non-positive values and enforces the cap.
func (s *ProximityService) radius(radiusKm float64) (float64, error) {
	if radiusKm <= 0 {
		if s.DefaultRadiusKm <= 0 {
			return 0, ErrInvalidRadius
		}
		return s.DefaultRadiusKm, nil
	}
	if s.MaxRadiusKm > 0 && radiusKm > s.MaxRadiusKm {
		return 0, ErrInvalidRadius
	}
	return radiusKm, nil
}

func (s *ProximityService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
