package model

import "time"

// Participation modes supported by an event.  In INDIVIDUAL mode every
// camper reserves for themselves; in TEAM mode one reservation covers a
// whole group and is keyed by the group's number.
const (
	ModeIndividual = "INDIVIDUAL"
	ModeTeam       = "TEAM"
)

// Event is the unit a waiting room is attached to.  An event owns one or
// more reservable slots and carries the attributes consulted by the
// eligibility check: the track it is restricted to (empty means open to
// every track) and the organization it belongs to.
//
// Fields:
//  ID                – primary key identifier.
//  Title             – display name.
//  Track             – track restriction ("" = unrestricted).
//  ParticipationMode – INDIVIDUAL or TEAM.
//  OrganizationID    – owning organization.
//  CreatedAt         – creation timestamp.
type Event struct {
	ID                uint64    // events.id
	Title             string    // events.title
	Track             string    // events.track
	ParticipationMode string    // events.participation_mode
	OrganizationID    uint64    // events.organization_id
	CreatedAt         time.Time // events.created_at
}
