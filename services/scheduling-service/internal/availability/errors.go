package availability

import "errors"

var (
	// ErrInvalidArgument covers malformed requests and malformed stored policies.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound means the seller is absent, is not a seller, or has no policy.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable means busy intervals could not be fetched. It is
	// never treated as "no conflicts".
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrSlotUnavailable rejects a requested slot that is no longer bookable.
	ErrSlotUnavailable = errors.New("slot unavailable")
)
