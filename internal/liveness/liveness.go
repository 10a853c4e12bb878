// Package liveness defines the single source of truth for the online/offline
// classification of a tracked entity.
//
// The application has several overlapping signals for "is this user online"
// (presence membership, the stored status flag, pub/sub events). None of them
// is individually authoritative: a disconnect may never flip the stored flag,
// and events may be dropped during reconnects. The rule implemented here is
// the one that always wins: a record is online only while its status flag
// says so AND its last update is younger than the stale window. Everything
// else in the system merely triggers an earlier re-evaluation of this rule.
//
// The canonical stale window is 5 minutes (DefaultStaleWindow). The source
// application used 2, 5, and 10 minutes in different call sites for the same
// question; one value is picked here and used everywhere.
package liveness

import "time"

// Default scheduling constants. All are overridable via configuration.
const (
	// DefaultStaleWindow is the maximum age of a liveness record before the
	// entity must be treated as offline regardless of its stored status flag.
	DefaultStaleWindow = 5 * time.Minute

	// DefaultHeartbeatInterval is how often an active client re-asserts its
	// liveness and coordinates. Heartbeats arriving faster than this are
	// coalesced by the presence tracker.
	DefaultHeartbeatInterval = 10 * time.Second

	// DefaultPollInterval is how often the nearby aggregates are re-queried
	// even when no change event has arrived.
	DefaultPollInterval = 10 * time.Second
)

// Status is the liveness flag asserted by an entity's own client.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Classification is the derived liveness of an entity at a point in time.
type Classification struct {
	// Online is true only when the entity passes the staleness check with
	// an asserted online status. This is the value aggregate counts use.
	Online bool `json:"online"`
	// Away is surfaced distinctly for display but counts as offline in
	// aggregates.
	Away bool `json:"away"`
}

// Classify derives the liveness classification from the asserted status flag
// and the age of the record. Pure and deterministic: no I/O, no clock reads.
//
// An entity is online iff its flag is StatusOnline and (now - lastUpdateAt)
// <= staleWindow. A record older than the stale window is offline no matter
// what it claims. Away entities pass the same staleness check but are never
// counted as online.
func Classify(flag Status, lastUpdateAt, now time.Time, staleWindow time.Duration) Classification {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	fresh := now.Sub(lastUpdateAt) <= staleWindow
	return Classification{
		Online: fresh && flag == StatusOnline,
		Away:   fresh && flag == StatusAway,
	}
}
