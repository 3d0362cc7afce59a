// Package service provides business logic for the handoff platform.
package service

import (
	"errors"
)

// Guard violations. These reflect a violated precondition of the takeover
// state machine or messaging gate; they propagate to the caller and are never
// retried automatically.
var (
	// ErrAlreadyTaken is returned when taking over a chat another operator
	// already holds.
	ErrAlreadyTaken = errors.New("chat is already taken over")

	// ErrNotTaken is returned when releasing a chat that is in AI mode.
	ErrNotTaken = errors.New("chat is not taken over")

	// ErrNotInManagerMode is returned when sending a manager message to a
	// chat in AI mode.
	ErrNotInManagerMode = errors.New("chat is not in manager mode")

	// ErrNotTakenByUser is returned when an operator messages into another
	// operator's active takeover.
	ErrNotTakenByUser = errors.New("chat is taken over by another operator")

	// ErrRateLimitExceeded is returned when the operator's sliding-window
	// message limit on a chat is full.
	ErrRateLimitExceeded = errors.New("hourly message limit reached")
)
