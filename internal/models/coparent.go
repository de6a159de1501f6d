package models

import "strings"

const (
	RolePrimary       = "PRIMARY"
	RoleCoParent      = "CO-PARENT"
	RolePrimaryParent = "PRIMARY_PARENT"
)

const (
	StatusAccepted = "accepted"
	StatusPending  = "pending"
	StatusDeclined = "declined"
)

// IsPrimaryRole reports whether the role grants primary-parent rights. Any
// role label containing PRIMARY is treated as primary-equivalent.
func IsPrimaryRole(role string) bool {
	return strings.Contains(strings.ToUpper(role), RolePrimary)
}

// CoParentPermissions is the fixed set of grants a co-parent holds for a companion.
type CoParentPermissions struct {
	AssignAsPrimaryParent     bool `json:"assignAsPrimaryParent"`
	EmergencyBasedPermissions bool `json:"emergencyBasedPermissions"`
	Appointments              bool `json:"appointments"`
	CompanionProfile          bool `json:"companionProfile"`
	Documents                 bool `json:"documents"`
	Expenses                  bool `json:"expenses"`
	Tasks                     bool `json:"tasks"`
	ChatWithVet               bool `json:"chatWithVet"`
}

// FullPermissions grants every permission. Primary parents implicitly hold it.
func FullPermissions() CoParentPermissions {
	return CoParentPermissions{
		AssignAsPrimaryParent:     true,
		EmergencyBasedPermissions: true,
		Appointments:              true,
		CompanionProfile:          true,
		Documents:                 true,
		Expenses:                  true,
		Tasks:                     true,
		ChatWithVet:               true,
	}
}

// CompanionCoParent describes the companion a CoParent record is scoped to.
type CompanionCoParent struct {
	CompanionID   string `json:"companionId"`
	CompanionName string `json:"companionName"`
	Breed         string `json:"breed,omitempty"`
	ProfileImage  string `json:"profileImage,omitempty"`
	HasPermission bool   `json:"hasPermission"`
}

// CoParent is the client-side view of another parent's access to a companion.
type CoParent struct {
	ID             string              `json:"id"`
	ParentID       string              `json:"parentId"`
	UserID         string              `json:"userId"`
	CompanionID    string              `json:"companionId"`
	Role           string              `json:"role"`
	Status         string              `json:"status"`
	Email          string              `json:"email,omitempty"`
	FirstName      string              `json:"firstName,omitempty"`
	LastName       string              `json:"lastName,omitempty"`
	PhoneNumber    string              `json:"phoneNumber,omitempty"`
	ProfilePicture string              `json:"profilePicture,omitempty"`
	ProfileToken   string              `json:"profileToken,omitempty"`
	Companions     []CompanionCoParent `json:"companions"`
	Permissions    CoParentPermissions `json:"permissions"`
	CreatedAt      string              `json:"createdAt,omitempty"`
	UpdatedAt      string              `json:"updatedAt,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (c CoParent) Clone() CoParent {
	if c.Companions != nil {
		c.Companions = append([]CompanionCoParent(nil), c.Companions...)
	}
	return c
}

// Matches reports whether id names this record, either by its own id or by
// the linked parent's id as used in API paths.
func (c CoParent) Matches(id string) bool {
	return id != "" && (c.ID == id || c.ParentID == id)
}

// ParentCompanionAccess is the signed-in user's own access to a companion.
type ParentCompanionAccess struct {
	CompanionID string              `json:"companionId"`
	Role        string              `json:"role"`
	Status      string              `json:"status"`
	Permissions CoParentPermissions `json:"permissions"`
}

// InviteParty identifies who sent an invite.
type InviteParty struct {
	ID             string `json:"id,omitempty"`
	Email          string `json:"email,omitempty"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// InviteCompanion is the companion display info attached to an invite.
type InviteCompanion struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// PendingCoParentInvite is an invite awaiting accept or decline.
type PendingCoParentInvite struct {
	Token       string           `json:"token"`
	Email       string           `json:"email"`
	InviteeName string           `json:"inviteeName"`
	ExpiresAt   string           `json:"expiresAt"`
	InvitedBy   *InviteParty     `json:"invitedBy,omitempty"`
	Companion   *InviteCompanion `json:"companion,omitempty"`
}

// CoParentInviteRequest is what the UI collects when adding a co-parent.
type CoParentInviteRequest struct {
	CandidateName string `json:"candidateName"`
	Email         string `json:"email"`
	CompanionID   string `json:"companionId"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
}

// CoParentState is the process-wide co-parent store contents.
type CoParentState struct {
	CoParents           []CoParent                       `json:"coParents"`
	PendingInvites      []PendingCoParentInvite          `json:"pendingInvites"`
	AccessByCompanionID map[string]ParentCompanionAccess `json:"accessByCompanionId"`
	DefaultAccess       *ParentCompanionAccess           `json:"defaultAccess,omitempty"`
	Loading             bool                             `json:"loading"`
	InvitesLoading      bool                             `json:"invitesLoading"`
	AccessLoading       bool                             `json:"accessLoading"`
	Error               string                           `json:"error,omitempty"`
	InvitesError        string                           `json:"invitesError,omitempty"`
	AccessError         string                           `json:"accessError,omitempty"`
	SelectedCoParentID  string                           `json:"selectedCoParentId,omitempty"`
}
