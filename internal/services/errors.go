package services

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrFailedPrecondition covers every "state does not permit this" case:
	// missing instrument or account, wrong status, non-positive amount, and
	// processor rejections (which wrap it together with the processor's own
	// message).
	ErrFailedPrecondition = errors.New("failed precondition")
)
