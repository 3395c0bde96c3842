// Package models defines data structures and domain types.
package models

import "time"

// EventType identifies a RateLimitEvent.
type EventType string

const (
	EventPermissionGranted EventType = "permission_granted"
	EventPermissionDenied  EventType = "permission_denied"
	EventSuccess           EventType = "success"
	EventError             EventType = "error"
	EventBackoffApplied    EventType = "backoff_applied"
)

// RateLimitEvent is an immutable record of something the governor decided or observed.
type RateLimitEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	Provider  string        `json:"provider"`
	Resource  ResourceType  `json:"resource,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	ErrorType string        `json:"errorType,omitempty"`
	Tokens    int64         `json:"tokens,omitempty"`
	Delay     time.Duration `json:"delay,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
}
