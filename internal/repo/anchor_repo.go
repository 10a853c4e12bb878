// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Anchor
// model: fixed-location help requests queried by proximity.
//
// Anchors are created once with immutable coordinates; the only permitted
// mutation is the one-way resolved transition.
package repo

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
)

// NearbyAnchor is an Anchor annotated with its distance from a query center.
type NearbyAnchor struct {
	domain.Anchor
	DistanceKm float64 `json:"distance_km"`
}

// CreateAnchor inserts a new Anchor owned by ownerID at the given fixed
// coordinates. The anchor ID is a randomly generated UUID and CreatedAt is
// set to UTC.
func CreateAnchor(ctx context.Context, db *gorm.DB, ownerID, title string, coord geo.Coordinate, placeLabel string) (*domain.Anchor, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}
	a := &domain.Anchor{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		Lat:        coord.Lat,
		Lng:        coord.Lng,
		PlaceLabel: placeLabel,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAnchor fetches a single anchor by ID, or ErrNotFound.
func GetAnchor(ctx context.Context, db *gorm.DB, id string) (*domain.Anchor, error) {
	var a domain.Anchor
	err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAnchor marks the anchor resolved. The transition is one-way: an
// already-resolved anchor is left untouched and reported via ErrNotFound
// only when the row does not exist at all.
func ResolveAnchor(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Anchor{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("resolved", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already-resolved: re-resolving is a no-op.
		var a domain.Anchor
		if err := db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&a).Error; err != nil {
			return err
		}
	}
	return nil
}

// QueryAnchorsWithinRadius returns anchors within radiusKm of center,
// ordered by ascending distance (ties: ascending anchor ID). Resolved
// anchors are excluded unless includeResolved is set.
func QueryAnchorsWithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]NearbyAnchor, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	q := boundingBoxFilter(db.WithContext(ctx), center, radiusKm)
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}

	var rows []domain.Anchor
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]NearbyAnchor, 0, len(rows))
	for _, a := range rows {
		d, err := geo.DistanceKm(center, geo.Coordinate{Lat: a.Lat, Lng: a.Lng})
		if err != nil {
			continue
		}
		if d <= radiusKm {
			out = append(out, NearbyAnchor{Anchor: a, DistanceKm: d})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
