// Package services defines the business logic for presence tracking,
// proximity queries, anchors, and anchor messages. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Presence and proximity errors.
var (
	// ErrInvalidCoordinate is returned when a latitude/longitude pair is
	// outside the valid ranges or not a finite number.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidRadius is returned when a query radius is zero, negative,
	// or above the configured maximum.
	ErrInvalidRadius = errors.New("invalid radius")

	// ErrEntityNotFound indicates that no position record exists for the
	// requested entity.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrStoreUnavailable wraps persistence failures so that callers can
	// distinguish infrastructure trouble from domain outcomes.
	ErrStoreUnavailable = errors.New("position store unavailable")

	// ErrUnauthenticated is returned when an operation requires an entity
	// identity and none was supplied.
	ErrUnauthenticated = errors.New("entity identity required")
)

// Anchor and message errors.
var (
	// ErrAnchorNotFound indicates that the requested anchor does not exist
	// or is not accessible to the current entity.
	ErrAnchorNotFound = errors.New("anchor not found")

	// ErrEmptyTitle is returned when a request to create an anchor carries
	// an empty title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrEmptyBody is returned when a request to post a message carries an
	// empty body.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrTooLong is returned when a title or message body exceeds the
	// maximum configured length limit.
	ErrTooLong = errors.New("text too long")

	// ErrAnchorResolved is returned when a message is posted to an anchor
	// that has already been resolved.
	ErrAnchorResolved = errors.New("anchor already resolved")
)
