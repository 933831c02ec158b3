package service

import (
	"context"
	"fmt"
)

// Eligibility checks whether a user may participate in an event: the
// user must belong to the event's organization and, when the event is
// track-restricted, be on that track.  Consulted by both waiting-room
// entry and reservation intake.
type Eligibility struct {
	users  UserDirectory
	events EventCatalog
}

// NewEligibility constructs the checker.
func NewEligibility(users UserDirectory, events EventCatalog) *Eligibility {
	return &Eligibility{users: users, events: events}
}

// IsEligibleForTrack validates the user against an explicit track and
// organization pair.  An empty track means the event is open to all.
func (e *Eligibility) IsEligibleForTrack(ctx context.Context, userID uint64, track string, organizationID uint64) error {
	u, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if u.OrganizationID != organizationID {
		return ErrTrackIneligible
	}
	if track != "" && u.Track != track {
		return ErrTrackIneligible
	}
	return nil
}

// IsEligibleForEvent resolves the event and applies IsEligibleForTrack.
// This is the form the waiting room consumes.
func (e *Eligibility) IsEligibleForEvent(ctx context.Context, userID, eventID uint64) error {
	ev, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return e.IsEligibleForTrack(ctx, userID, ev.Track, ev.OrganizationID)
}
