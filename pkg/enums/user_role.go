package enums

import "fmt"

// UserRole is the marketplace role carried in access tokens.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleStaff  UserRole = "staff"
	UserRoleVendor UserRole = "vendor"
	UserRoleAgent  UserRole = "agaseke"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleStaff,
	UserRoleVendor,
	UserRoleAgent,
}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
