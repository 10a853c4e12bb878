// Package services – AnchorService
//
// This file implements the AnchorService, which manages anchors (pinned
// points of interest) and the short message threads attached to them. It
// validates and normalizes titles and bodies, enforces ownership on
// resolution, and emits change events after each successful write.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/bus"
	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/geocode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnchorRepo defines the repository contract required by AnchorService.
type AnchorRepo interface {
	// CreateAnchor inserts a new anchor owned by ownerID.
	CreateAnchor(ctx context.Context, db *gorm.DB, ownerID, title string, coord geo.Coordinate, placeLabel string) (*domain.Anchor, error)

	// GetAnchor fetches an anchor by ID.
	GetAnchor(ctx context.Context, db *gorm.DB, id string) (*domain.Anchor, error)

	// ResolveAnchor marks an anchor resolved (owner only, one-way).
	ResolveAnchor(ctx context.Context, db *gorm.DB, id, ownerID string) error

	// CreateMessage appends a message to an anchor's thread.
	CreateMessage(ctx context.Context, db *gorm.DB, anchorID, senderID, body string) (*domain.Message, error)

	// CountMessages returns the thread length for pagination.
	CountMessages(ctx context.Context, db *gorm.DB, anchorID string) (int64, error)

	// ListMessagesPage returns one page of a thread in posting order.
	ListMessagesPage(ctx context.Context, db *gorm.DB, anchorID string, offset, limit int) ([]domain.Message, error)
}

// AnchorService provides anchor and thread operations.
type AnchorService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the anchor repository used by this service.
	Repo AnchorRepo
	// Bus receives a change event after every successful write. May be nil.
	Bus bus.Bus
	// Places resolves coordinates to a human-readable label. Optional.
	Places geocode.Resolver

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// BodyMaxRunes caps message bodies by rune length.
	BodyMaxRunes int
}

// NewAnchorService constructs an AnchorService with sane defaults.
func NewAnchorService(db *gorm.DB, r AnchorRepo, b bus.Bus, places geocode.Resolver) *AnchorService {
	return &AnchorService{
		DB:           db,
		Repo:         r,
		Bus:          b,
		Places:       places,
		TitleMaxLen:  80,
		BodyMaxRunes: 500,
	}
}

// Create pins a new anchor at the given coordinate, owned by ownerID.
func (s *AnchorService) Create(ctx context.Context, ownerID, title string, coord geo.Coordinate) (*domain.Anchor, error) {
	tr := otel.Tracer("services/AnchorService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("owner.id", ownerID)),
	)
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthenticated
	}
	title = normalizeText(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return nil, ErrTooLong
	}
	if err := coord.Validate(); err != nil {
		return nil, ErrInvalidCoordinate
	}

	label := ""
	if s.Places != nil {
		if name, ok := s.Places.Reverse(coord); ok {
			label = name
		}
	}

	a, err := s.Repo.CreateAnchor(ctx, s.DB, ownerID, title, coord, label)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.publish(bus.TopicAnchors, a.ID, bus.KindAnchorCreated)
	return a, nil
}

// Get returns an anchor by ID.
func (s *AnchorService) Get(ctx context.Context, id string) (*domain.Anchor, error) {
	a, err := s.Repo.GetAnchor(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnchorNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return a, nil
}

// Resolve marks an anchor resolved. Only the owner may resolve, the flag
// never flips back, and resolving twice is a no-op.
func (s *AnchorService) Resolve(ctx context.Context, ownerID, id string) error {
	tr := otel.Tracer("services/AnchorService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("anchor.id", id),
			attribute.String("owner.id", ownerID),
		),
	)
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return ErrUnauthenticated
	}
	if err := s.Repo.ResolveAnchor(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAnchorNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.publish(bus.TopicAnchors, id, bus.KindAnchorResolved)
	return nil
}

// PostMessage appends a message to an open anchor's thread.
func (s *AnchorService) PostMessage(ctx context.Context, senderID, anchorID, body string) (*domain.Message, error) {
	tr := otel.Tracer("services/AnchorService")
	ctx, span := tr.Start(ctx, "PostMessage",
		trace.WithAttributes(
			attribute.String("anchor.id", anchorID),
			attribute.String("sender.id", senderID),
		),
	)
	defer span.End()

	if strings.TrimSpace(senderID) == "" {
		return nil, ErrUnauthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if s.BodyMaxRunes > 0 && utf8.RuneCountInString(body) > s.BodyMaxRunes {
		return nil, ErrTooLong
	}

	a, err := s.Get(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if a.Resolved {
		return nil, ErrAnchorResolved
	}

	m, err := s.Repo.CreateMessage(ctx, s.DB, anchorID, senderID, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.publish(bus.TopicMessages, anchorID, bus.KindMessagePosted)
	return m, nil
}

// ListMessagesPage returns one page of an anchor's thread in posting order.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *AnchorService) ListMessagesPage(ctx context.Context, anchorID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, anchorID); err != nil {
		return nil, 0, err
	}

	total, err := s.Repo.CountMessages(ctx, s.DB, anchorID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := s.Repo.ListMessagesPage(ctx, s.DB, anchorID, offset, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return items, total, nil
}

func (s *AnchorService) publish(topic, entityID string, kind bus.ChangeKind) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(topic, bus.ChangeEvent{EntityID: entityID, Kind: kind, At: time.Now().UTC()})
}

// normalizeText trims whitespace and collapses runs of spaces to one.
func normalizeText(s string) string {
	return textSpaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// textSpaceRE collapses consecutive whitespace to a single space.
var textSpaceRE = regexp.MustCompile(`\s+`)
