package governor

import (
	"errors"
	"time"
)

// InternalRetryDelay is the delay returned with a fail-safe denial.
const InternalRetryDelay = time.Second

var (
	// ErrConfiguration is returned by New and UpdateProvider for invalid configuration.
	ErrConfiguration = errors.New("invalid governor configuration")
	// ErrInternalState is returned when the governor is asked something it cannot answer safely.
	ErrInternalState = errors.New("governor internal state error")
	// ErrInvalidCost is returned for a negative estimated or actual cost.
	ErrInvalidCost = errors.New("cost must not be negative")
)
