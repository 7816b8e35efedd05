package auth

import "dataset-platform/core/models"

// Permission is a user's level of access to a specific batch.
type Permission int

const (
	// PermissionNone denies all access to the batch.
	PermissionNone Permission = iota
	// PermissionLabeler grants task-scoped access without batch management.
	PermissionLabeler
	// PermissionOwner grants full access to the caller's own batch.
	PermissionOwner
	// PermissionElevated grants full access regardless of ownership.
	PermissionElevated
)

// BatchPermission evaluates a user's access to a batch once; callers branch
// on the result instead of re-checking roles.
func BatchPermission(user *models.User, batch *models.Batch) Permission {
	switch {
	case user.Role.Elevated():
		return PermissionElevated
	case user.Role == models.RoleCustomer && batch.OwnerID == user.ID:
		return PermissionOwner
	case user.Role == models.RoleLabeler:
		return PermissionLabeler
	default:
		return PermissionNone
	}
}

// CanManage reports whether the permission allows batch management
// operations: uploads, QC submission, export.
func (p Permission) CanManage() bool {
	return p == PermissionOwner || p == PermissionElevated
}

// CanView reports whether the permission allows read access to the batch's
// assets.
func (p Permission) CanView() bool {
	return p != PermissionNone
}
