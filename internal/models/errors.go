package models

import "errors"

// ErrInvalidTransition is returned when a challenge status change violates
// the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")
