package model

import "time"

// User roles.  Organizers manage events and slots; campers enter the
// waiting room and reserve.
const (
	RoleOrganizer = "ORGANIZER"
	RoleCamper    = "CAMPER"
)

// User carries identity plus the attributes consulted by the track
// eligibility check.  GroupNumber is the camper's team number and is
// only meaningful for TEAM-mode events.
type User struct {
	ID             uint64    // users.id
	Email          string    // users.email
	PasswordHash   string    // users.password_hash (bcrypt)
	Role           string    // users.role
	Track          string    // users.track
	OrganizationID uint64    // users.organization_id
	GroupNumber    *uint32   // users.group_number (nullable)
	CreatedAt      time.Time // users.created_at
}
