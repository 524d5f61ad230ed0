package models

import "time"

// UserRole is the closed set of marketplace roles.
type UserRole string

const (
	RoleAgent UserRole = "AGENT"
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// IsValid reports whether r is one of the known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAgent, RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Authority returns the role as a granted authority string.
func (r UserRole) Authority() string {
	return "ROLE_" + string(r)
}

// Permission is a capability checked by route guards.
type Permission string

const (
	PermissionListingRead    Permission = "listing:read"
	PermissionListingWrite   Permission = "listing:write"
	PermissionViewingRequest Permission = "viewing:request"
	PermissionViewingManage  Permission = "viewing:manage"
	PermissionUserManage     Permission = "user:manage"
)

// RolePermissions is the static role to permission table.
var RolePermissions = map[UserRole][]Permission{
	RoleUser: {
		PermissionListingRead,
		PermissionViewingRequest,
	},
	RoleAgent: {
		PermissionListingRead,
		PermissionListingWrite,
		PermissionViewingRequest,
		PermissionViewingManage,
	},
	RoleAdmin: {
		PermissionListingRead,
		PermissionListingWrite,
		PermissionViewingRequest,
		PermissionViewingManage,
		PermissionUserManage,
	},
}

// Can reports whether the role grants the permission.
func (r UserRole) Can(p Permission) bool {
	for _, granted := range RolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// User is the credential record owned by the credential store.
type User struct {
	ID                 string     `db:"id" json:"id"`
	Email              string     `db:"email" json:"email"`
	Username           string     `db:"username" json:"username"`
	FirstName          string     `db:"first_name" json:"firstName"`
	LastName           string     `db:"last_name" json:"lastName"`
	PhoneNumber        string     `db:"phone_number" json:"phoneNumber"`
	PasswordHash       string     `db:"password_hash" json:"-"`
	Role               UserRole   `db:"role" json:"role"`
	Enabled            bool       `db:"enabled" json:"enabled"`
	Locked             bool       `db:"locked" json:"locked"`
	RefreshToken       *string    `db:"refresh_token" json:"-"`
	RefreshTokenExpiry *time.Time `db:"refresh_token_expiry" json:"-"`
	CreatedBy          string     `db:"created_by" json:"createdBy"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	ModifiedBy         string     `db:"modified_by" json:"modifiedBy"`
	ModifiedAt         time.Time  `db:"modified_at" json:"modifiedAt"`
}

// Clone returns a deep copy so cached snapshots cannot be mutated by callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.RefreshToken != nil {
		token := *u.RefreshToken
		clone.RefreshToken = &token
	}
	if u.RefreshTokenExpiry != nil {
		expiry := *u.RefreshTokenExpiry
		clone.RefreshTokenExpiry = &expiry
	}
	return &clone
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Enabled && !u.Locked
}
