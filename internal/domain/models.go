// Package domain defines the persistence models for positions, help-request
// anchors, and location-scoped messages. These types are mapped with GORM
// and form the core data layer of the nearby/presence application.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/liveness"
)

// Position is the current-position record of a tracked entity (a user).
// There is at most one row per EntityID; writes are upserts with
// last-write-wins semantics, never merges.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - EntityID: opaque identifier of the owning entity; unique.
//   - Lat / Lng: last reported coordinates in decimal degrees. Mutated only
//     by the owning entity's client on a fresh geolocation fix.
//   - DisplayName / PlaceLabel: informational, never used in distance math.
//   - Status: the liveness flag asserted by the client. Never trusted on its
//     own; liveness.Classify combines it with LastUpdateAt.
//   - LastUpdateAt: set on every coordinate or liveness write; the staleness
//     check keys off this value.
//   - DeletedAt: soft deletion marker. Rows are retained (stale) when a
//     client vanishes without signing out; the stale window hides them.
type Position struct {
	ID           string          `json:"id"             gorm:"type:char(36);primaryKey"`
	EntityID     string          `json:"entity_id"      gorm:"type:varchar(64);not null;uniqueIndex:ux_position_entity"`
	Lat          float64         `json:"lat"            gorm:"not null;index:idx_position_lat"`
	Lng          float64         `json:"lng"            gorm:"not null;index:idx_position_lng"`
	DisplayName  string          `json:"display_name"   gorm:"type:varchar(120)"`
	PlaceLabel   string          `json:"place_label"    gorm:"type:varchar(255)"`
	Status       liveness.Status `json:"status"         gorm:"type:varchar(16);not null;default:'offline';check:status IN ('online','away','offline')"`
	LastUpdateAt time.Time       `json:"last_update_at" gorm:"not null;index"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-"              gorm:"index"`
}

// TableName returns the database table name for Position.
func (Position) TableName() string { return "positions" }

// Anchor is a fixed-location entity, e.g. the origin of a help request.
// Coordinates are immutable after creation; Resolved transitions false→true
// exactly once and never reverses.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - OwnerID: entity that created the anchor; indexed.
//   - Title: short human-readable description of the request.
//   - Lat / Lng: fixed coordinates, set at creation.
//   - PlaceLabel: derived, informational only.
//   - Resolved: one-way completion flag.
type Anchor struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerID    string         `json:"owner_id"    gorm:"type:varchar(64);not null;index:idx_anchor_owner"`
	Title      string         `json:"title"       gorm:"type:varchar(255);not null"`
	Lat        float64        `json:"lat"         gorm:"not null;index:idx_anchor_lat"`
	Lng        float64        `json:"lng"         gorm:"not null;index:idx_anchor_lng"`
	PlaceLabel string         `json:"place_label" gorm:"type:varchar(255)"`
	Resolved   bool           `json:"resolved"    gorm:"not null;default:false;index"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Anchor.
func (Anchor) TableName() string { return "anchors" }

// Message is a short utterance scoped to a help-request anchor. The content
// model is intentionally trivial; delivery rides the same change bus as
// presence updates.
type Message struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	AnchorID  string         `json:"anchor_id"  gorm:"type:char(36);not null;index:idx_anchor_msgs,priority:1"`
	SenderID  string         `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Body      string         `json:"body"       gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_anchor_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Anchor is the parent request. Messages are cascade-deleted if their
	// anchor is removed.
	Anchor Anchor `json:"-" gorm:"foreignKey:AnchorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
