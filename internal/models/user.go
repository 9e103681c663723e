package models

import "time"

// UserModel mirrors the identity system's user records for display purposes.
// Identity issuance and authentication live outside this service; the only
// field this service writes is LastSeenAt, once per session termination.
type UserModel struct {
	Base       `bson:",inline"`
	Name       string     `json:"name"     bson:"name"`
	Role       string     `json:"role"     bson:"role"` // "teacher" | "student"
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" bson:"last_seen_at,omitempty"`
}

func (UserModel) Collection() string { return "users" }
