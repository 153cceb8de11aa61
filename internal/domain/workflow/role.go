package workflow

// Role identifies the authority a user acts with
type Role string

const (
	RoleCitizen      Role = "citizen"
	RoleRTRWHead     Role = "rt_rw_head"
	RoleVillageStaff Role = "village_staff"
	RoleVillageHead  Role = "village_head"
)

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleCitizen, RoleRTRWHead, RoleVillageStaff, RoleVillageHead:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
