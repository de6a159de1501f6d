package models

import "time"

// User represents an account within the PetLink platform. Every user is a
// potential parent of one or more companions.
type User struct {
	ID             string
	Email          string
	Password       string
	FirstName      string
	LastName       string
	PhoneNumber    string
	ProfilePicture string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Companion is the pet record shared between a primary parent and co-parents.
type Companion struct {
	ID        string
	Name      string
	Breed     string
	PhotoURL  string
	CreatedAt time.Time
}

// CompanionLink is the persisted association between a parent and a companion.
type CompanionLink struct {
	ID          string
	ParentID    string
	CompanionID string
	Role        string
	Status      string
	Permissions CoParentPermissions
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LinkDetail is a CompanionLink joined with its parent and companion.
type LinkDetail struct {
	Link      CompanionLink
	Parent    User
	Companion Companion
}

// CoParentInvite tracks an invitation from a primary parent to a prospective co-parent.
type CoParentInvite struct {
	Token       string
	Email       string
	InviteeName string
	PhoneNumber string
	CompanionID string
	InvitedBy   string
	Status      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// Expired reports whether the invite can no longer be resolved.
func (i CoParentInvite) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// InviteDetail is a CoParentInvite joined with its inviter and companion.
type InviteDetail struct {
	Invite    CoParentInvite
	Inviter   User
	Companion Companion
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
