package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
	"github.com/tbourn/go-nearby-backend/internal/repo"
)

// ----- Fake store -----

type fakeProximityStore struct {
	lastRadius  float64
	lastExclude string
	rows        []repo.NearbyPosition
	rowsErr     error

	anchorRadius   float64
	anchorResolved bool
	anchors        []repo.NearbyAnchor
	anchorsErr     error
}

func (f *fakeProximityStore) WithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, excludeEntityID string) ([]repo.NearbyPosition, error) {
	f.lastRadius = radiusKm
	f.lastExclude = excludeEntityID
	return f.rows, f.rowsErr
}

func (f *fakeProximityStore) AnchorsWithinRadius(ctx context.Context, db *gorm.DB, center geo.Coordinate, radiusKm float64, includeResolved bool) ([]repo.NearbyAnchor, error) {
	f.anchorRadius = radiusKm
	f.anchorResolved = includeResolved
	return f.anchors, f.anchorsErr
}

func row(id string, status liveness.Status, age time.Duration, distKm float64, now time.Time) repo.NearbyPosition {
	return repo.NearbyPosition{
		Position: domain.Position{
			EntityID:     id,
			Lat:          home.Lat,
			Lng:          home.Lng,
			Status:       status,
			LastUpdateAt: now.Add(-age),
		},
		DistanceKm: distKm,
	}
}

func newProximity(store *fakeProximityStore) (*ProximityService, time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewProximityService(nil, store)
	s.Now = func() time.Time { return now }
	return s, now
}

// ----- Tests -----

func TestNearbyEntities_ClassifiesAtReadTime(t *testing.T) {
	store := &fakeProximityStore{}
	s, now := newProximity(store)
	store.rows = []repo.NearbyPosition{
		row("fresh", liveness.StatusOnline, time.Minute, 0.5, now),
		row("edge", liveness.StatusOnline, 5*time.Minute, 1.0, now),
		row("stale", liveness.StatusOnline, 5*time.Minute+time.Second, 1.5, now),
		row("away", liveness.StatusAway, time.Minute, 2.0, now),
		row("gone", liveness.StatusOffline, time.Minute, 2.5, now),
	}

	got, err := s.NearbyEntities(context.Background(), "me", home, 5)
	if err != nil {
		t.Fatalf("NearbyEntities: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d", len(got))
	}
	online := map[string]bool{}
	status := map[string]liveness.Status{}
	for _, e := range got {
		online[e.EntityID] = e.Online
		status[e.EntityID] = e.Status
	}
	if !online["fresh"] || !online["edge"] {
		t.Fatalf("fresh/edge should be online: %v", online)
	}
	if online["stale"] || online["away"] || online["gone"] {
		t.Fatalf("stale/away/gone should not be online: %v", online)
	}
	// A stored online flag on an aged-out row must not leak to callers.
	if status["stale"] != liveness.StatusOffline {
		t.Fatalf("stale status = %q", status["stale"])
	}
	if status["away"] != liveness.StatusAway {
		t.Fatalf("away status = %q", status["away"])
	}
	if store.lastExclude != "me" {
		t.Fatalf("exclude = %q", store.lastExclude)
	}
}

func TestOnlineCount_MatchesListing(t *testing.T) {
	store := &fakeProximityStore{}
	s, now := newProximity(store)
	store.rows = []repo.NearbyPosition{
		row("a", liveness.StatusOnline, time.Minute, 0.5, now),
		row("b", liveness.StatusOnline, 6*time.Minute, 1.0, now),
		row("c", liveness.StatusAway, time.Minute, 1.5, now),
	}

	list, err := s.NearbyEntities(context.Background(), "me", home, 5)
	if err != nil {
		t.Fatalf("NearbyEntities: %v", err)
	}
	count, err := s.OnlineCount(context.Background(), "me", home, 5)
	if err != nil {
		t.Fatalf("OnlineCount: %v", err)
	}

	fromList := 0
	for _, e := range list {
		if e.Online {
			fromList++
		}
	}
	if count != fromList || count != 1 {
		t.Fatalf("count = %d, listing says %d", count, fromList)
	}
}

func TestNearbyEntities_RadiusHandling(t *testing.T) {
	store := &fakeProximityStore{}
	s, _ := newProximity(store)

	// Zero radius means the default.
	if _, err := s.NearbyEntities(context.Background(), "me", home, 0); err != nil {
		t.Fatalf("default radius: %v", err)
	}
	if store.lastRadius != s.DefaultRadiusKm {
		t.Fatalf("radius = %v, want default %v", store.lastRadius, s.DefaultRadiusKm)
	}

	// Above the cap is rejected.
	if _, err := s.NearbyEntities(context.Background(), "me", home, s.MaxRadiusKm+1); !errors.Is(err, ErrInvalidRadius) {
		t.Fatalf("over cap: %v", err)
	}
}

func TestNearbyEntities_InvalidCenter(t *testing.T) {
	s, _ := newProximity(&fakeProximityStore{})

	bad := geo.Coordinate{Lat: 0, Lng: 181}
	if _, err := s.NearbyEntities(context.Background(), "me", bad, 5); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("err = %v", err)
	}
}

func TestNearbyEntities_StoreFailureWrapped(t *testing.T) {
	store := &fakeProximityStore{rowsErr: errors.New("locked")}
	s, _ := newProximity(store)

	if _, err := s.NearbyEntities(context.Background(), "me", home, 5); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestNearbyAnchors_PassesFlagsThrough(t *testing.T) {
	store := &fakeProximityStore{anchors: []repo.NearbyAnchor{
		{Anchor: domain.Anchor{ID: "a1", Title: "Pump house"}, DistanceKm: 0.3},
	}}
	s, _ := newProximity(store)

	got, err := s.NearbyAnchors(context.Background(), home, 2, true)
	if err != nil {
		t.Fatalf("NearbyAnchors: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" || got[0].DistanceKm != 0.3 {
		t.Fatalf("got = %+v", got)
	}
	if !store.anchorResolved || store.anchorRadius != 2 {
		t.Fatalf("flags not passed: resolved=%v radius=%v", store.anchorResolved, store.anchorRadius)
	}
}
