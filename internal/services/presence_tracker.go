// Package services – PresenceTracker
//
// This file implements the PresenceTracker, which owns the write path for
// presence: joining, heartbeating, and leaving. It validates coordinates,
// normalizes display names, coalesces bursty heartbeats, serializes writes
// per entity with striped locks, and emits change events on the bus after
// each effective store write.
//
// Service-level errors (e.g., ErrInvalidCoordinate, ErrStoreUnavailable)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/geocode"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
	"github.com/tbourn/go-nearby-backend/internal/repo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// lockStripes is the size of the striped mutex table. Two entities only
// contend when their IDs hash to the same stripe.
const lockStripes = 64

// PositionStore defines the repository contract required by PresenceTracker.
// Implementations are responsible for persistence of position records.
type PositionStore interface {
	// Upsert inserts or updates the row keyed by entity ID, dropping
	// writes older than the stored record.
	Upsert(ctx context.Context, db *gorm.DB, up repo.PositionUpsert) (*domain.Position, error)

	// Get fetches the position row for an entity.
	Get(ctx context.Context, db *gorm.DB, entityID string) (*domain.Position, error)

	// MarkOffline flips the stored status flag to offline.
	MarkOffline(ctx context.Context, db *gorm.DB, entityID string, now time.Time) error

	// MarkStaleOffline sweeps long-stale online flags to offline.
	MarkStaleOffline(ctx context.Context, db *gorm.DB, olderThan time.Time) (int64, error)
}

// PresenceTracker manages the presence lifecycle of entities. All writes
// for one entity are serialized through a striped lock so that a join, a
// burst of heartbeats, and a leave can never interleave for the same ID.
type PresenceTracker struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the position repository used by this tracker.
	Store PositionStore
	// Bus receives a change event after every effective store write.
	// May be nil in tests.
	Bus bus.Bus
	// Places resolves coordinates to a human-readable label. Optional.
	Places geocode.Resolver

	// HeartbeatInterval is the coalescing window: a heartbeat that lands
	// inside it without meaningful movement is absorbed without a write.
	HeartbeatInterval time.Duration
	// MinMoveKm is the movement below which a coordinate counts as
	// unchanged for coalescing purposes.
	MinMoveKm float64
	// NameMaxLen caps stored display names by rune length.
	NameMaxLen int
	// NameLocale selects casing rules for display-name cleanup.
	NameLocale language.Tag

	// Now allows tests to control the clock. Defaults to time.Now.
	Now func() time.Time

	locks [lockStripes]sync.Mutex

	// mu guards the coalescing state below.
	mu        sync.Mutex
	lastWrite map[string]time.Time
	lastCoord map[string]geo.Coordinate
}

// NewPresenceTracker constructs a PresenceTracker with sane defaults.
func NewPresenceTracker(db *gorm.DB, store PositionStore, b bus.Bus, places geocode.Resolver) *PresenceTracker {
	return &PresenceTracker{
		DB:                db,
		Store:             store,
		Bus:               b,
		Places:            places,
		HeartbeatInterval: liveness.DefaultHeartbeatInterval,
		MinMoveKm:         0.005, // ~5 meters; below GPS jitter
		NameMaxLen:        60,
		NameLocale:        language.Und,
		Now:               time.Now,
		lastWrite:         make(map[string]time.Time),
		lastCoord:         make(map[string]geo.Coordinate),
	}
}

// Join registers an entity as present at the given coordinate. It always
// performs a store write (resetting any coalescing state) and emits a
// presence_joined event on success.
func (t *PresenceTracker) Join(ctx context.Context, entityID string, coord geo.Coordinate, displayName string) (*domain.Position, error) {
	tr := otel.Tracer("services/PresenceTracker")
	ctx, span := tr.Start(ctx, "Join",
		trace.WithAttributes(attribute.String("entity.id", entityID)),
	)
	defer span.End()

	if strings.TrimSpace(entityID) == "" {
		return nil, ErrUnauthenticated
	}
	if err := coord.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	t.lockFor(entityID).Lock()
	defer t.lockFor(entityID).Unlock()

	now := t.now()
	up := repo.PositionUpsert{
		EntityID:    entityID,
		Coord:       coord,
		DisplayName: t.cleanName(displayName),
		PlaceLabel:  t.label(coord),
		Status:      liveness.StatusOnline,
		At:          now,
	}
	pos, err := t.Store.Upsert(ctx, t.DB, up)
	if err != nil {
		if errors.Is(err, repo.ErrStaleWrite) {
			return t.current(ctx, entityID)
		}
		return nil, t.mapStoreErr(err)
	}

	t.rememberWrite(entityID, now, coord)
	t.publish(entityID, bus.KindPresenceJoined, now)
	return pos, nil
}

// Heartbeat refreshes an entity's liveness and position. Heartbeats that
// land within one HeartbeatInterval of the previous write without
// meaningful movement are coalesced: the call succeeds but no store write
// or bus event happens. A moved coordinate always writes, so the latest
// position wins. A write superseded in flight is dropped silently and the
// stored newer record is returned; callers never see a stale-write error.
func (t *PresenceTracker) Heartbeat(ctx context.Context, entityID string, coord geo.Coordinate) (*domain.Position, error) {
	tr := otel.Tracer("services/PresenceTracker")
	ctx, span := tr.Start(ctx, "Heartbeat",
		trace.WithAttributes(attribute.String("entity.id", entityID)),
	)
	defer span.End()

	if strings.TrimSpace(entityID) == "" {
		return nil, ErrUnauthenticated
	}
	if err := coord.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	t.lockFor(entityID).Lock()
	defer t.lockFor(entityID).Unlock()

	now := t.now()
	if t.coalesce(entityID, now, coord) {
		span.SetAttributes(attribute.Bool("heartbeat.coalesced", true))
		return t.current(ctx, entityID)
	}

	up := repo.PositionUpsert{
		EntityID:   entityID,
		Coord:      coord,
		PlaceLabel: t.label(coord),
		Status:     liveness.StatusOnline,
		At:         now,
	}
	pos, err := t.Store.Upsert(ctx, t.DB, up)
	if err != nil {
		if errors.Is(err, repo.ErrStaleWrite) {
			// A newer record is already stored; the late write is dropped
			// silently and the caller sees the winning row.
			span.SetAttributes(attribute.Bool("heartbeat.stale_dropped", true))
			return t.current(ctx, entityID)
		}
		return nil, t.mapStoreErr(err)
	}

	t.rememberWrite(entityID, now, coord)
	t.publish(entityID, bus.KindPositionUpdated, now)
	return pos, nil
}

// Leave marks an entity offline. The write is best-effort: a missing row
// is treated as success so repeated sign-outs stay idempotent, and any
// store failure is reported but never retried here because the staleness
// check ages the record out regardless.
func (t *PresenceTracker) Leave(ctx context.Context, entityID string) error {
	tr := otel.Tracer("services/PresenceTracker")
	ctx, span := tr.Start(ctx, "Leave",
		trace.WithAttributes(attribute.String("entity.id", entityID)),
	)
	defer span.End()

	if strings.TrimSpace(entityID) == "" {
		return ErrUnauthenticated
	}

	t.lockFor(entityID).Lock()
	defer t.lockFor(entityID).Unlock()

	now := t.now()
	t.forget(entityID)

	err := t.Store.MarkOffline(ctx, t.DB, entityID, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return t.mapStoreErr(err)
	}

	t.publish(entityID, bus.KindPresenceLeft, now)
	return nil
}

// SweepStale marks rows still flagged online as offline once their last
// update is older than twice the given stale window. Readers already treat
// such rows as offline; the sweep just keeps the stored flag from drifting
// forever. Returns the number of rows flipped.
func (t *PresenceTracker) SweepStale(ctx context.Context, staleWindow time.Duration) (int64, error) {
	if staleWindow <= 0 {
		staleWindow = liveness.DefaultStaleWindow
	}
	cutoff := t.now().Add(-2 * staleWindow)
	n, err := t.Store.MarkStaleOffline(ctx, t.DB, cutoff)
	if err != nil {
		return 0, t.mapStoreErr(err)
	}
	return n, nil
}

// current re-reads the stored row after a coalesced heartbeat so callers
// still get the latest persisted state.
func (t *PresenceTracker) current(ctx context.Context, entityID string) (*domain.Position, error) {
	pos, err := t.Store.Get(ctx, t.DB, entityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, t.mapStoreErr(err)
	}
	return pos, nil
}

// coalesce reports whether a heartbeat at now/coord can be absorbed
// without a store write. An absorbed heartbeat keeps the previously stored
// coordinates: movement under MinMoveKm (~5 m, below GPS jitter) is treated
// as no movement at all, so discarding it loses nothing a client can
// observe. Any larger move forces a write and the latest position wins.
// Caller must hold the entity's stripe lock.
func (t *PresenceTracker) coalesce(entityID string, now time.Time, coord geo.Coordinate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastWrite[entityID]
	if !ok || now.Sub(last) >= t.HeartbeatInterval {
		return false
	}
	prev := t.lastCoord[entityID]
	d, err := geo.DistanceKm(prev, coord)
	if err != nil {
		return false
	}
	return d < t.MinMoveKm
}

func (t *PresenceTracker) rememberWrite(entityID string, now time.Time, coord geo.Coordinate) {
	t.mu.Lock()
	t.lastWrite[entityID] = now
	t.lastCoord[entityID] = coord
	t.mu.Unlock()
}

func (t *PresenceTracker) forget(entityID string) {
	t.mu.Lock()
	delete(t.lastWrite, entityID)
	delete(t.lastCoord, entityID)
	t.mu.Unlock()
}

// lockFor returns the stripe mutex owning entityID.
func (t *PresenceTracker) lockFor(entityID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return &t.locks[h.Sum32()%lockStripes]
}

func (t *PresenceTracker) publish(entityID string, kind bus.ChangeKind, at time.Time) {
	if t.Bus == nil {
		return
	}
	t.Bus.Publish(bus.TopicPresence, bus.ChangeEvent{EntityID: entityID, Kind: kind, At: at})
}

func (t *PresenceTracker) label(coord geo.Coordinate) string {
	if t.Places == nil {
		return ""
	}
	if name, ok := t.Places.Reverse(coord); ok {
		return name
	}
	return ""
}

// cleanName trims and collapses whitespace, clips to NameMaxLen runes, and
// title-cases names supplied entirely in lowercase.
func (t *PresenceTracker) cleanName(name string) string {
	name = nameSpaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	if t.NameMaxLen > 0 && utf8.RuneCountInString(name) > t.NameMaxLen {
		name = string([]rune(name)[:t.NameMaxLen])
	}
	if isAllLower(name) {
		name = cases.Title(t.NameLocale).String(name)
	}
	return name
}

func isAllLower(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func (t *PresenceTracker) mapStoreErr(err error) error {
	if errors.Is(err, geo.ErrInvalidCoordinate) {
		return ErrInvalidCoordinate
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (t *PresenceTracker) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// nameSpaceRE collapses consecutive whitespace to a single space.
var nameSpaceRE = regexp.MustCompile(`\s+`)
