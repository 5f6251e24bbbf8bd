package models

import (
	"encoding/json"
	"time"
)

// Session is the server-side record of one authenticated device.
type Session struct {
	ID                string
	UserID            int64
	RoleID            int64
	PolicyID          int64
	RefreshJTI        string
	RefreshDigest     string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAtAbsolute time.Time
	Revoked           bool
	RevokedAt         *time.Time
	IPAddress         string
	UserAgent         string
	DeviceInfo        json.RawMessage
}

// SessionPolicy holds the timing rules captured by a session at creation.
type SessionPolicy struct {
	ID                       int64
	InactivityTimeoutMinutes int
	AbsoluteTimeoutMinutes   int
	RefreshHintMinutes       int
}

func (p SessionPolicy) InactivityTimeout() time.Duration {
	return time.Duration(p.InactivityTimeoutMinutes) * time.Minute
}

func (p SessionPolicy) AbsoluteTimeout() time.Duration {
	return time.Duration(p.AbsoluteTimeoutMinutes) * time.Minute
}

func (p SessionPolicy) RefreshHint() time.Duration {
	return time.Duration(p.RefreshHintMinutes) * time.Minute
}

// ClientInfo is the opaque client metadata recorded on a session.
type ClientInfo struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo json.RawMessage
}
