package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Selection errors. ErrNoEligibleCandidates means the pool was empty
	// after the hard-eligibility filter; ErrAllBelowThreshold means the
	// pool survived filtering but every score fell under the configured
	// minimum. They are distinct on purpose: the second one points at a
	// scoring/threshold misconfiguration, not at capacity.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")
	ErrAllBelowThreshold    = errors.New("all candidates scored below threshold")
	ErrSelectionExhausted   = errors.New("selection attempts exhausted")
	ErrCapacityExceeded     = errors.New("capacity exceeded")

	// Dispute errors.
	ErrDisputeNotFound          = errors.New("dispute not found")
	ErrInvalidDisputeTransition = errors.New("invalid dispute transition")
)
