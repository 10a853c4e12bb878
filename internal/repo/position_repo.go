// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Position
// model — the "current position per entity" store.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no liveness or presence logic,
// only keyed upserts and radius queries.
//
// Write semantics:
//   - One row per entity (unique index on entity_id); upserts are
//     last-write-wins, never merges.
//   - A write whose timestamp is older than the stored last_update_at was
//     superseded in flight and returns ErrStaleWrite. Callers drop it
//     silently; it is not a user-visible failure.
//
// Query semantics:
//   - QueryWithinRadius pre-filters candidates with a bounding box over the
//     indexed lat/lng columns, then applies the exact haversine test in Go.
//     Results are ordered by ascending distance, ties broken by ascending
//     entity_id so test output is deterministic.
package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleWrite is returned when an upsert carries a timestamp older than
// the stored record, i.e. it was superseded by a newer write for the same
// entity. Not an error to surface to the user; the caller simply drops it.
var ErrStaleWrite = errors.New("stale write superseded by newer record")

// PositionUpsert carries one position write. Timestamps break ties between
// concurrent writers for the same entity (last physical write wins).
type PositionUpsert struct {
	EntityID    string
	Coord       geo.Coordinate
	DisplayName string
	PlaceLabel  string
	Status      liveness.Status
	At          time.Time
}

// NearbyPosition is a Position annotated with its distance from a query
// center. Classification is attached later by the proximity engine.
type NearbyPosition struct {
	domain.Position
	DistanceKm float64 `json:"distance_km"`
}

// UpsertPosition inserts or updates the single Position row for
// up.EntityID. The write is idempotent: replaying it yields the same row.
// Writes with a timestamp older than the stored last_update_at return
// ErrStaleWrite and leave the row untouched.
func UpsertPosition(ctx context.Context, db *gorm.DB, up PositionUpsert) (*domain.Position, error) {
	if err := up.Coord.Validate(); err != nil {
		return nil, err
	}

	var existing domain.Position
	err := db.WithContext(ctx).Where("entity_id = ?", up.EntityID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p := &domain.Position{
			ID:           uuid.NewString(),
			EntityID:     up.EntityID,
			Lat:          up.Coord.Lat,
			Lng:          up.Coord.Lng,
			DisplayName:  up.DisplayName,
			PlaceLabel:   up.PlaceLabel,
			Status:       up.Status,
			LastUpdateAt: up.At.UTC(),
		}
		if err := db.WithContext(ctx).Create(p).Error; err != nil {
			return nil, err
		}
		return p, nil
	case err != nil:
		return nil, err
	}

	if existing.LastUpdateAt.After(up.At.UTC()) {
		return nil, ErrStaleWrite
	}

	updates := map[string]any{
		"lat":            up.Coord.Lat,
		"lng":            up.Coord.Lng,
		"status":         up.Status,
		"last_update_at": up.At.UTC(),
	}
	if up.DisplayName != "" {
		updates["display_name"] = up.DisplayName
	}
	if up.PlaceLabel != "" {
		updates["place_label"] = up.PlaceLabel
	}
	res := db.WithContext(ctx).
		Model(&domain.Position{}).
		Where("entity_id = ?", up.EntityID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	var out domain.Position
	if err := db.WithContext(ctx).Where("entity_id = ?", up.EntityID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPosition fetches the Position row for entityID, or ErrNotFound.
func GetPosition(ctx context.Context, db *gorm.DB, entityID string) (*domain.Position, error) {
	var p domain.Position
	err := db.WithContext(ctx).Where("entity_id = ?", entityID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkOffline flips the stored status flag to offline and stamps the write.
// Used by the best-effort sign-out path; when it fails (abrupt disconnect),
// the staleness check ages the record out on its own.
func MarkOffline(ctx context.Context, db *gorm.DB, entityID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Position{}).
		Where("entity_id = ?", entityID).
		Updates(map[string]any{
			"status":         liveness.StatusOffline,
			"last_update_at": now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleOffline flips every row still flagged online whose last update
// predates olderThan. Returns the number of rows touched. Readers never
// trust the flag alone, so this is housekeeping, not a correctness step.
func MarkStaleOffline(ctx context.Context, db *gorm.DB, olderThan time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Position{}).
		Where("status = ? AND last_update_at < ?", liveness.StatusOnline, olderThan.UTC()).
		Update("status", liveness.StatusOffline)
	return res.RowsAffected, res.Error
}

// QueryWithinRadius returns every Position within radiusKm of center,
// ordered by ascending distance (ties: ascending entity_id). When
// excludeEntityID is non-empty that entity's own row is omitted.
//
// The bounding-box WHERE clause keeps the candidate set small on the
// indexed lat/lng columns; correctness comes from the exact haversine
// filter applied to each candidate.
func QueryWithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, excludeEntityID string) ([]NearbyPosition, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	q := boundingBoxFilter(db.WithContext(ctx), center, radiusKm)
	if excludeEntityID != "" {
		q = q.Where("entity_id <> ?", excludeEntityID)
	}

	var rows []domain.Position
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]NearbyPosition, 0, len(rows))
	for _, p := range rows {
		d, err := geo.DistanceKm(center, geo.Coordinate{Lat: p.Lat, Lng: p.Lng})
		if err != nil {
			// A row with corrupt coordinates must not poison the whole
			// query; skip it.
			continue
		}
		if d <= radiusKm {
			out = append(out, NearbyPosition{Position: p, DistanceKm: d})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

// boundingBoxFilter applies the coarse lat/lng pre-filter for the circle of
// radiusKm around center. A box that crosses the antimeridian arrives with
// wrapped bounds (minLng > maxLng) and becomes two OR-ed longitude ranges,
// so neighbors on the far side of the date line stay in the candidate set.
func boundingBoxFilter(q *gorm.DB, center geo.Coordinate, radiusKm float64) *gorm.DB {
	minLat, maxLat, minLng, maxLng := geo.BoundingBox(center, radiusKm)
	q = q.Where("lat BETWEEN ? AND ?", minLat, maxLat)
	if geo.WrapsAntimeridian(minLng, maxLng) {
		return q.Where("lng >= ? OR lng <= ?", minLng, maxLng)
	}
	return q.Where("lng BETWEEN ? AND ?", minLng, maxLng)
}
