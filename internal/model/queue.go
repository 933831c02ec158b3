package model

import "time"

// EnterResult is returned by the waiting room when a user enters (or
// re-enters) the queue for an event.  Position is the zero-based rank in
// the ordered set; re-entry never changes it.
type EnterResult struct {
	Position     int64 // zero-based rank at the time of the call
	IsNew        bool  // false when the user already had a queue entry
	TotalWaiting int64 // current size of the queue
}

// QueueStatus is returned by the waiting room status poll.  When HasToken
// is true the user has been admitted and Position is meaningless; when
// InQueue is false the user is neither queued nor admitted.
type QueueStatus struct {
	InQueue        bool
	HasToken       bool
	Position       int64      // zero-based rank, valid only when InQueue && !HasToken
	TotalWaiting   int64
	Token          string     // opaque admission token value when HasToken
	TokenExpiresAt *time.Time // token expiry when HasToken
}
