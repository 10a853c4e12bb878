// Package services – NearbyFeed
//
// This file implements the live nearby feed consumed by the realtime
// endpoints. Each session watches one viewpoint (viewer, center, radius):
// it refreshes on a poll cadence and again when presence events arrive on
// the change bus. Events only trigger a refetch; the store remains the
// sole authority on what the feed contains. When a refresh fails the
// session keeps serving the last-known-good snapshot, marked stale, so a
// flaky store degrades the feed instead of blanking it.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/geo"
)

// FeedSource is the query surface a feed session refreshes from.
type FeedSource interface {
	NearbyEntities(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) ([]NearbyEntity, error)
}

// FeedSnapshot is one materialized view of the nearby listing.
type FeedSnapshot struct {
	Entities    []NearbyEntity `json:"entities"`
	OnlineCount int            `json:"online_count"`
	RefreshedAt time.Time      `json:"refreshed_at"`
	// IsStale is true when the most recent refresh failed and the data
	// shown is the previous successful result.
	IsStale bool `json:"is_stale"`
}

// NearbyFeed opens and tracks feed sessions.
type NearbyFeed struct {
	// Source answers the underlying proximity queries.
	Source FeedSource
	// Bus delivers the presence events that trigger refreshes. May be nil,
	// in which case sessions refresh on the poll cadence only.
	Bus bus.Bus
	// PollInterval is the fallback refresh cadence.
	PollInterval time.Duration
	// MinRefreshGap rate-limits event-driven refreshes.
	MinRefreshGap time.Duration

	mu       sync.Mutex
	sessions map[string]*FeedSession
}

// NewNearbyFeed constructs a NearbyFeed with sane defaults.
func NewNearbyFeed(source FeedSource, b bus.Bus, pollInterval time.Duration) *NearbyFeed {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &NearbyFeed{
		Source:        source,
		Bus:           b,
		PollInterval:  pollInterval,
		MinRefreshGap: time.Second,
		sessions:      make(map[string]*FeedSession),
	}
}

// Open starts a session observing the given viewpoint. The session runs
// until its Close method is called or ctx is cancelled. The first refresh
// happens synchronously so the returned session already holds data.
func (f *NearbyFeed) Open(ctx context.Context, viewerID string, center geo.Coordinate, radiusKm float64) (*FeedSession, error) {
	if err := center.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &FeedSession{
		ID:       uuid.NewString(),
		viewerID: viewerID,
		feed:     f,
		cancel:   cancel,
		updates:  make(chan struct{}, 1),
		center:   center,
		radiusKm: radiusKm,
	}

	// Seed the snapshot before the caller sees the session. A failed first
	// refresh surfaces the error instead of an empty "stale" view.
	if err := s.refresh(sctx); err != nil {
		cancel()
		return nil, err
	}

	// Subscribe before the session is visible so no event published after
	// Open returns can be missed.
	if f.Bus != nil {
		s.events, s.cancelSub = f.Bus.Subscribe(bus.TopicPresence)
	}

	f.mu.Lock()
	f.sessions[s.ID] = s
	f.mu.Unlock()

	go s.run(sctx)
	return s, nil
}

// CloseAll tears down every open session. Used on shutdown.
func (f *NearbyFeed) CloseAll() {
	f.mu.Lock()
	open := make([]*FeedSession, 0, len(f.sessions))
	for _, s := range f.sessions {
		open = append(open, s)
	}
	f.mu.Unlock()
	for _, s := range open {
		s.Close()
	}
}

// SessionCount reports the number of open sessions.
func (f *NearbyFeed) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *NearbyFeed) drop(id string) {
	f.mu.Lock()
	delete(f.sessions, id)
	f.mu.Unlock()
}

// FeedSession is one live view over the nearby listing.
type FeedSession struct {
	// ID uniquely identifies the session.
	ID string

	viewerID  string
	feed      *NearbyFeed
	cancel    context.CancelFunc
	updates   chan struct{}
	events    <-chan bus.ChangeEvent
	cancelSub func()

	closeOnce sync.Once

	mu          sync.Mutex
	center      geo.Coordinate
	radiusKm    float64
	snap        FeedSnapshot
	lastRefresh time.Time
}

// Snapshot returns the current last-known-good view.
func (s *FeedSession) Snapshot() FeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Updates signals whenever a refresh produced a new snapshot. The channel
// is coalescing: a slow reader sees at least one signal, not every one.
func (s *FeedSession) Updates() <-chan struct{} {
	return s.updates
}

// Move re-centers the session viewpoint. The next refresh uses the new
// coordinate; invalid coordinates are rejected and the view is unchanged.
func (s *FeedSession) Move(center geo.Coordinate) error {
	if err := center.Validate(); err != nil {
		return ErrInvalidCoordinate
	}
	s.mu.Lock()
	s.center = center
	s.lastRefresh = time.Time{} // let the next event refresh immediately
	s.mu.Unlock()
	return nil
}

// Close stops the session's refresh loop and removes it from the feed.
func (s *FeedSession) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.feed.drop(s.ID)
	})
}

func (s *FeedSession) run(ctx context.Context) {
	events := s.events
	if s.cancelSub != nil {
		defer s.cancelSub()
	}

	ticker := time.NewTicker(s.feed.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.refresh(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// The viewer's own writes arrive through its next poll; other
			// entities' movement is worth an immediate refetch.
			if ev.EntityID == s.viewerID {
				continue
			}
			if s.throttled() {
				continue
			}
			_ = s.refresh(ctx)
		}
	}
}

// throttled reports whether an event-driven refresh would land inside the
// minimum gap since the previous one.
func (s *FeedSession) throttled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gap := s.feed.MinRefreshGap
	return gap > 0 && time.Since(s.lastRefresh) < gap
}

// refresh refetches the listing. On failure the previous snapshot is kept
// and flagged stale; the error is returned for the caller who cares (the
// initial synchronous refresh).
func (s *FeedSession) refresh(ctx context.Context) error {
	s.mu.Lock()
	center, radius := s.center, s.radiusKm
	s.mu.Unlock()

	entities, err := s.feed.Source.NearbyEntities(ctx, s.viewerID, center, radius)

	s.mu.Lock()
	s.lastRefresh = time.Now()
	if err != nil {
		s.snap.IsStale = true
		s.mu.Unlock()
		s.notify()
		return err
	}
	online := 0
	for _, e := range entities {
		if e.Online {
			online++
		}
	}
	s.snap = FeedSnapshot{
		Entities:    entities,
		OnlineCount: online,
		RefreshedAt: time.Now().UTC(),
		IsStale:     false,
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *FeedSession) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
