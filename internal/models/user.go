package models

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	// PersonID links the account to a person record kept outside this service.
	PersonID              *string
	Enabled               bool
	SessionPolicyID       *int64
	AllowMultipleSessions bool
	CreatedAt             time.Time
}

type Role struct {
	ID          int64
	Description string
	Enabled     bool
}

// RoleAssignment is one row of the user/role junction.
type RoleAssignment struct {
	RoleID  int64
	Role    Role
	Enabled bool
}

// NewUser is the input to user provisioning once a username is derived.
type NewUser struct {
	Username              string
	PasswordHash          string
	PersonID              *string
	SessionPolicyID       *int64
	AllowMultipleSessions bool
	Enabled               bool
	Roles                 []int64
	ActiveRole            int64
}
