package domain

import "github.com/google/uuid"

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Actor is the verified identity behind a request. The identity provider is
// trusted as-is.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// SystemActor is used by background workers and message consumers.
var SystemActor = Actor{UserID: uuid.Nil, Role: RoleAdmin}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanManage reports whether the actor owns the resource or is an admin.
func (a Actor) CanManage(ownerID uuid.UUID) bool {
	return a.IsAdmin() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}

func (a Actor) CanPublishEvents() bool {
	return a.Role == RoleOrganizer || a.Role == RoleAdmin
}
