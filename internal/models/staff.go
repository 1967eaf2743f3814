package models

import "time"

// Role is a staff role.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperadmin Role = "SUPERADMIN"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Staff is an employee allowed to use the internal endpoints.
type Staff struct {
	UserID  int64     `json:"user_id"`
	Name    string    `json:"name"`
	Role    Role      `json:"role"`
	AddedBy int64     `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}
