package auth

// RoleValidator defines the interface for role-based access control validation
type RoleValidator interface {
	// CanRead checks if the role can read a specific resource
	CanRead(resource string) bool

	// CanEdit checks if the role can edit a specific resource
	CanEdit(resource string) bool

	// CanCreate checks if the role can create a specific resource
	CanCreate(resource string) bool

	// CanDelete checks if the role can delete a specific resource
	CanDelete(resource string) bool

	// HasRole checks if the user has a specific role
	HasRole(role string) bool

	// IsAtLeast checks if the user's role is at least the minimum required role
	IsAtLeast(minRole UserRole) bool
}

var roleHierarchy = map[UserRole]int{
	RoleStudent:    1,
	RoleGuardian:   2,
	RoleTeacher:    3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	_, ok := roleHierarchy[r]
	return ok
}

// RoleIsAtLeast checks if a role meets the minimum required level. Unknown
// roles never satisfy any minimum.
func RoleIsAtLeast(r, minRole UserRole) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleStudent,
		RoleGuardian,
		RoleTeacher,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}
