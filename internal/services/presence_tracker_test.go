package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
	"github.com/tbourn/go-nearby-backend/internal/repo"
)

// ----- Fake store -----

type fakePositionStore struct {
	upserts []repo.PositionUpsert
	upsertErr error

	gets    int
	getPos  *domain.Position
	getErr  error

	offlineIDs []string
	offlineErr error

	sweepCutoff time.Time
	sweepN      int64
	sweepErr    error
}

func (f *fakePositionStore) Upsert(ctx context.Context, db *gorm.DB, up repo.PositionUpsert) (*domain.Position, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, up)
	return &domain.Position{
		EntityID:     up.EntityID,
		Lat:          up.Coord.Lat,
		Lng:          up.Coord.Lng,
		DisplayName:  up.DisplayName,
		PlaceLabel:   up.PlaceLabel,
		Status:       up.Status,
		LastUpdateAt: up.At,
	}, nil
}

func (f *fakePositionStore) Get(ctx context.Context, db *gorm.DB, entityID string) (*domain.Position, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getPos != nil {
		return f.getPos, nil
	}
	return &domain.Position{EntityID: entityID, Status: liveness.StatusOnline}, nil
}

func (f *fakePositionStore) MarkOffline(ctx context.Context, db *gorm.DB, entityID string, now time.Time) error {
	if f.offlineErr != nil {
		return f.offlineErr
	}
	f.offlineIDs = append(f.offlineIDs, entityID)
	return nil
}

func (f *fakePositionStore) MarkStaleOffline(ctx context.Context, db *gorm.DB, olderThan time.Time) (int64, error) {
	f.sweepCutoff = olderThan
	return f.sweepN, f.sweepErr
}

// ----- Fake bus -----

type fakeBus struct {
	events []bus.ChangeEvent
	topics []string
}

func (b *fakeBus) Publish(topic string, ev bus.ChangeEvent) {
	b.topics = append(b.topics, topic)
	b.events = append(b.events, ev)
}

func (b *fakeBus) Subscribe(topic string) (<-chan bus.ChangeEvent, func()) {
	ch := make(chan bus.ChangeEvent)
	close(ch)
	return ch, func() {}
}

// ----- Helpers -----

func newTracker(store *fakePositionStore, b bus.Bus) (*PresenceTracker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewPresenceTracker(nil, store, b, nil)
	tr.Now = func() time.Time { return now }
	return tr, &now
}

var (
	home  = geo.Coordinate{Lat: 28.5355, Lng: 77.3910}
	block = geo.Coordinate{Lat: 28.5400, Lng: 77.3950} // ~0.64 km away
)

// ----- Tests -----

func TestJoin_WritesOnlineAndPublishes(t *testing.T) {
	store := &fakePositionStore{}
	b := &fakeBus{}
	tr, _ := newTracker(store, b)

	pos, err := tr.Join(context.Background(), "u1", home, "  alice   smith  ")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if pos.Status != liveness.StatusOnline {
		t.Fatalf("status = %q", pos.Status)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d", len(store.upserts))
	}
	if got := store.upserts[0].DisplayName; got != "Alice Smith" {
		t.Fatalf("DisplayName = %q", got)
	}
	if len(b.events) != 1 || b.events[0].Kind != bus.KindPresenceJoined || b.topics[0] != bus.TopicPresence {
		t.Fatalf("events = %+v topics = %v", b.events, b.topics)
	}
}

func TestJoin_MixedCaseNameKept(t *testing.T) {
	store := &fakePositionStore{}
	tr, _ := newTracker(store, nil)

	if _, err := tr.Join(context.Background(), "u1", home, "DJ Rix"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := store.upserts[0].DisplayName; got != "DJ Rix" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestJoin_Rejections(t *testing.T) {
	tr, _ := newTracker(&fakePositionStore{}, nil)

	if _, err := tr.Join(context.Background(), "  ", home, "x"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("blank entity: %v", err)
	}
	bad := geo.Coordinate{Lat: 91, Lng: 0}
	if _, err := tr.Join(context.Background(), "u1", bad, "x"); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("bad coord: %v", err)
	}
}

func TestHeartbeat_CoalescesWithinWindow(t *testing.T) {
	store := &fakePositionStore{}
	b := &fakeBus{}
	tr, now := newTracker(store, b)

	if _, err := tr.Heartbeat(context.Background(), "u1", home); err != nil {
		t.Fatalf("first heartbeat: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts after first = %d", len(store.upserts))
	}

	// Same spot 3s later: absorbed, no write, no event.
	*now = now.Add(3 * time.Second)
	if _, err := tr.Heartbeat(context.Background(), "u1", home); err != nil {
		t.Fatalf("coalesced heartbeat: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("coalesced heartbeat wrote (upserts = %d)", len(store.upserts))
	}
	if store.gets != 1 {
		t.Fatalf("coalesced heartbeat should read current row once, gets = %d", store.gets)
	}

	// Real movement inside the window still writes: the newest spot wins.
	*now = now.Add(2 * time.Second)
	if _, err := tr.Heartbeat(context.Background(), "u1", block); err != nil {
		t.Fatalf("moved heartbeat: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("moved heartbeat did not write (upserts = %d)", len(store.upserts))
	}

	// Past the window: writes again even without movement.
	*now = now.Add(tr.HeartbeatInterval)
	if _, err := tr.Heartbeat(context.Background(), "u1", block); err != nil {
		t.Fatalf("post-window heartbeat: %v", err)
	}
	if len(store.upserts) != 3 {
		t.Fatalf("post-window heartbeat did not write (upserts = %d)", len(store.upserts))
	}

	// Events track effective writes only.
	if len(b.events) != 3 {
		t.Fatalf("events = %d, want one per effective write", len(b.events))
	}
	for _, ev := range b.events {
		if ev.Kind != bus.KindPositionUpdated {
			t.Fatalf("kind = %q", ev.Kind)
		}
	}
}

func TestHeartbeat_StaleWriteDroppedSilently(t *testing.T) {
	stored := &domain.Position{EntityID: "u1", Lat: 28.5400, Lng: 77.3950, Status: liveness.StatusOnline}
	store := &fakePositionStore{upsertErr: repo.ErrStaleWrite, getPos: stored}
	b := &fakeBus{}
	tr, _ := newTracker(store, b)

	// A write superseded in flight is not an error the caller sees; the
	// stored (newer) row comes back instead.
	pos, err := tr.Heartbeat(context.Background(), "u1", home)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if pos.Lat != stored.Lat || pos.Lng != stored.Lng {
		t.Fatalf("expected the stored winning row, got %+v", pos)
	}
	if store.gets != 1 {
		t.Fatalf("gets = %d, want 1 re-read of the stored row", store.gets)
	}
	if len(b.events) != 0 {
		t.Fatalf("dropped write must not publish events, got %d", len(b.events))
	}
}

func TestHeartbeat_StoreFailureWrapped(t *testing.T) {
	store := &fakePositionStore{upsertErr: errors.New("disk on fire")}
	tr, _ := newTracker(store, nil)

	_, err := tr.Heartbeat(context.Background(), "u1", home)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestLeave_BestEffort(t *testing.T) {
	store := &fakePositionStore{}
	b := &fakeBus{}
	tr, now := newTracker(store, b)

	if _, err := tr.Heartbeat(context.Background(), "u1", home); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := tr.Leave(context.Background(), "u1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if len(store.offlineIDs) != 1 || store.offlineIDs[0] != "u1" {
		t.Fatalf("offlineIDs = %v", store.offlineIDs)
	}
	if last := b.events[len(b.events)-1]; last.Kind != bus.KindPresenceLeft {
		t.Fatalf("last event = %q", last.Kind)
	}

	// Leaving clears coalescing state: an immediate rejoin-heartbeat writes.
	*now = now.Add(time.Second)
	if _, err := tr.Heartbeat(context.Background(), "u1", home); err != nil {
		t.Fatalf("heartbeat after leave: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("heartbeat after leave was coalesced (upserts = %d)", len(store.upserts))
	}
}

func TestLeave_MissingRowIsSuccess(t *testing.T) {
	store := &fakePositionStore{offlineErr: repo.ErrNotFound}
	tr, _ := newTracker(store, nil)

	if err := tr.Leave(context.Background(), "ghost"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
}

func TestLeave_StoreFailureWrapped(t *testing.T) {
	store := &fakePositionStore{offlineErr: errors.New("timeout")}
	tr, _ := newTracker(store, nil)

	if err := tr.Leave(context.Background(), "u1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestSweepStale_CutoffIsDoubleWindow(t *testing.T) {
	store := &fakePositionStore{sweepN: 3}
	tr, now := newTracker(store, nil)

	n, err := tr.SweepStale(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d", n)
	}
	want := now.Add(-10 * time.Minute)
	if !store.sweepCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", store.sweepCutoff, want)
	}
}

func TestTracker_PerEntityIndependence(t *testing.T) {
	store := &fakePositionStore{}
	tr, now := newTracker(store, nil)

	if _, err := tr.Heartbeat(context.Background(), "u1", home); err != nil {
		t.Fatalf("u1: %v", err)
	}
	// A different entity inside u1's window is not coalesced against it.
	*now = now.Add(time.Second)
	if _, err := tr.Heartbeat(context.Background(), "u2", home); err != nil {
		t.Fatalf("u2: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("upserts = %d", len(store.upserts))
	}
}
