package api

import "time"

// EventType names an event pushed from the core to the presentation layer.
type EventType string

const (
	// EventAuthSucceeded is emitted after a successful code exchange.
	EventAuthSucceeded EventType = "auth.succeeded"
	// EventAuthFailed is emitted when a pending login fails after StartLogin returned.
	EventAuthFailed EventType = "auth.failed"
	// EventAuthTimedOut is emitted when no callback arrived before the deadline.
	EventAuthTimedOut EventType = "auth.timed_out"
	// EventUsersChanged is emitted when the identity list changed on disk.
	EventUsersChanged EventType = "users.changed"
)

// ProfileClaims are the identity claims taken from the provider's ID token.
type ProfileClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Event is a single notification to the presentation layer. AccessToken and
// Claims are only set for EventAuthSucceeded; Message and Code only for
// failures.
type Event struct {
	Type        EventType      `json:"type"`
	UserID      string         `json:"userId,omitempty"`
	AccessToken string         `json:"accessToken,omitempty"`
	Claims      *ProfileClaims `json:"profileClaims,omitempty"`
	Message     string         `json:"message,omitempty"`
	Code        ErrorCode      `json:"code,omitempty"`
	Time        time.Time      `json:"time"`
}

// EventSink receives events. Implementations must not block for long.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish calls f(e).
func (f EventSinkFunc) Publish(e Event) { f(e) }
