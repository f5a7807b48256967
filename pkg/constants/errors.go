package constants

import "errors"

// Error taxonomy of the sync layer. Operations wrap these with
// fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	// ErrUnauthenticated is returned by operations that require a signed-in
	// principal when none has been resolved.
	ErrUnauthenticated = errors.New("no authenticated principal")

	// ErrInvalidArgument is returned when a required identifier is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreUnavailable wraps transport or permission failures reported by
	// the remote store. This layer performs no retries; callers decide.
	ErrStoreUnavailable = errors.New("remote store unavailable")

	// ErrAlreadySubscribed is returned when a second live subscription is
	// requested for a path that already has an active one.
	ErrAlreadySubscribed = errors.New("subscription already active")

	// ErrInviteResolved is returned when responding to an invitation that
	// already reached a terminal status.
	ErrInviteResolved = errors.New("invitation already resolved")
)

var (
	ErrIDInUse       = errors.New("id already in use")
	ErrTimeout       = errors.New("timeout")
	ErrNoBaseURL     = errors.New("base url not set")
	ErrNoMarshaler   = errors.New("marshaler is not set")
	ErrNoUnmarshaler = errors.New("unmarshaler is not set")
	ErrClosed        = errors.New("connection closed")
)
