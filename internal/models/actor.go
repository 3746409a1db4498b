package models

type Role string

const (
	RoleAgency Role = "AGENCY"
	RoleAdmin  Role = "ADMIN"
	RoleSystem Role = "SYSTEM"
)

// Actor identifies who performs an operation. Authorization is decided by
// the caller; the core only records the actor.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	AgencyID string `json:"agencyId,omitempty"`
}

// SystemActor is used by background workers and webhooks.
func SystemActor(name string) Actor {
	return Actor{ID: name, Role: RoleSystem}
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin || a.Role == RoleSystem }
func (a Actor) IsAgency() bool { return a.Role == RoleAgency }

// CanAccess reports whether the actor may see a submission of agencyID.
func (a Actor) CanAccess(agencyID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.AgencyID != "" && a.AgencyID == agencyID
}
