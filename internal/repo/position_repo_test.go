package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func mustUpsert(t *testing.T, db *gorm.DB, entityID string, lat, lng float64, status liveness.Status, at time.Time) *domain.Position {
	t.Helper()
	p, err := UpsertPosition(context.Background(), db, PositionUpsert{
		EntityID: entityID,
		Coord:    geo.Coordinate{Lat: lat, Lng: lng},
		Status:   status,
		At:       at,
	})
	if err != nil {
		t.Fatalf("UpsertPosition(%s): %v", entityID, err)
	}
	return p
}

func TestUpsertPosition_CreatesThenUpdatesSingleRow(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()

	p1 := mustUpsert(t, db, "u1", 28.5355, 77.3910, liveness.StatusOnline, now)
	if p1.ID == "" || p1.EntityID != "u1" {
		t.Fatalf("unexpected created row: %+v", p1)
	}

	p2 := mustUpsert(t, db, "u1", 28.5400, 77.3950, liveness.StatusOnline, now.Add(time.Second))
	if p2.ID != p1.ID {
		t.Fatalf("upsert created a second row: %s vs %s", p1.ID, p2.ID)
	}
	if p2.Lat != 28.5400 || p2.Lng != 77.3950 {
		t.Fatalf("coordinates not updated: %+v", p2)
	}

	var count int64
	db.Model(&domain.Position{}).Where("entity_id = ?", "u1").Count(&count)
	if count != 1 {
		t.Fatalf("rows for u1 = %d, want 1", count)
	}
}

func TestUpsertPosition_LastWriteWins_DropsStale(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()

	mustUpsert(t, db, "u1", 28.54, 77.39, liveness.StatusOnline, now)

	// A write stamped before the stored record was superseded in flight.
	_, err := UpsertPosition(context.Background(), db, PositionUpsert{
		EntityID: "u1",
		Coord:    geo.Coordinate{Lat: 10, Lng: 10},
		Status:   liveness.StatusOnline,
		At:       now.Add(-time.Minute),
	})
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	got, err := GetPosition(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Lat != 28.54 {
		t.Fatalf("stale write mutated the row: %+v", got)
	}
}

func TestUpsertPosition_RejectsInvalidCoordinate(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	_, err := UpsertPosition(context.Background(), db, PositionUpsert{
		EntityID: "u1",
		Coord:    geo.Coordinate{Lat: 91, Lng: 0},
		Status:   liveness.StatusOnline,
		At:       time.Now(),
	})
	if !errors.Is(err, geo.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestMarkOffline(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()
	mustUpsert(t, db, "u1", 28.54, 77.39, liveness.StatusOnline, now)

	if err := MarkOffline(context.Background(), db, "u1", now.Add(time.Second)); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	got, _ := GetPosition(context.Background(), db, "u1")
	if got.Status != liveness.StatusOffline {
		t.Fatalf("status = %s, want offline", got.Status)
	}

	if err := MarkOffline(context.Background(), db, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing entity, got %v", err)
	}
}

func TestQueryWithinRadius_OrderingAndExclusion(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()
	center := geo.Coordinate{Lat: 28.5355, Lng: 77.3910}

	mustUpsert(t, db, "me", center.Lat, center.Lng, liveness.StatusOnline, now)
	mustUpsert(t, db, "near", 28.5400, 77.3950, liveness.StatusOnline, now)   // ~0.64 km
	mustUpsert(t, db, "mid", 28.5600, 77.4100, liveness.StatusOnline, now)    // ~3.3 km
	mustUpsert(t, db, "far", 28.70, 77.10, liveness.StatusOnline, now)        // ~23 km, outside
	mustUpsert(t, db, "remote", -33.8688, 151.2093, liveness.StatusAway, now) // other hemisphere

	got, err := QueryWithinRadius(context.Background(), db, center, 10, "me")
	if err != nil {
		t.Fatalf("QueryWithinRadius: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 (got %+v)", len(got), got)
	}
	if got[0].EntityID != "near" || got[1].EntityID != "mid" {
		t.Fatalf("wrong ordering: %s, %s", got[0].EntityID, got[1].EntityID)
	}
	if got[0].DistanceKm < 0.60 || got[0].DistanceKm > 0.68 {
		t.Fatalf("distance to near = %v, want ~0.64", got[0].DistanceKm)
	}
	for _, r := range got {
		if r.EntityID == "me" {
			t.Fatal("excluded entity present in results")
		}
		if r.EntityID == "far" {
			t.Fatal("entity outside the radius included")
		}
	}
}

func TestQueryWithinRadius_TieBreakByEntityID(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()
	center := geo.Coordinate{Lat: 10, Lng: 10}

	// Same point, equal distance; order must be deterministic by entity id.
	mustUpsert(t, db, "bbb", 10.01, 10, liveness.StatusOnline, now)
	mustUpsert(t, db, "aaa", 10.01, 10, liveness.StatusOnline, now)

	got, err := QueryWithinRadius(context.Background(), db, center, 5, "")
	if err != nil {
		t.Fatalf("QueryWithinRadius: %v", err)
	}
	if len(got) != 2 || got[0].EntityID != "aaa" || got[1].EntityID != "bbb" {
		t.Fatalf("tie-break not deterministic: %+v", got)
	}
}

func TestQueryWithinRadius_BoundaryInclusive(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()
	center := geo.Coordinate{Lat: 0, Lng: 0}
	point := geo.Coordinate{Lat: 0, Lng: 0.05}

	d, err := geo.DistanceKm(center, point)
	if err != nil {
		t.Fatalf("DistanceKm: %v", err)
	}
	mustUpsert(t, db, "edge", point.Lat, point.Lng, liveness.StatusOnline, now)

	got, err := QueryWithinRadius(context.Background(), db, center, d, "")
	if err != nil {
		t.Fatalf("QueryWithinRadius: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("point exactly at the radius excluded; boundary must be inclusive")
	}
}

func TestQueryWithinRadius_AcrossAntimeridian(t *testing.T) {
	db := newRepoDB(t, &domain.Position{})
	now := time.Now().UTC()
	center := geo.Coordinate{Lat: 0, Lng: 179.95}

	// ~11.1 km away but on the other side of the date line.
	mustUpsert(t, db, "across", 0, -179.95, liveness.StatusOnline, now)
	// Same hemisphere as the center, also inside the radius.
	mustUpsert(t, db, "near", 0, 179.80, liveness.StatusOnline, now) // ~16.7 km
	// Far outside, must stay excluded even with the wrapped OR filter.
	mustUpsert(t, db, "far", 0, 170, liveness.StatusOnline, now)

	got, err := QueryWithinRadius(context.Background(), db, center, 25, "")
	if err != nil {
		t.Fatalf("QueryWithinRadius: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 (got %+v)", len(got), got)
	}
	if got[0].EntityID != "across" || got[1].EntityID != "near" {
		t.Fatalf("wrong ordering: %s, %s", got[0].EntityID, got[1].EntityID)
	}
	if got[0].DistanceKm < 11.0 || got[0].DistanceKm > 11.3 {
		t.Fatalf("distance across the date line = %v, want ~11.1", got[0].DistanceKm)
	}
}

func TestQueryWithinRadius_ErrorWithoutTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	_, err := QueryWithinRadius(context.Background(), db, geo.Coordinate{Lat: 0, Lng: 0}, 1, "")
	if err == nil {
		t.Fatal("expected error querying without table")
	}
}
