package handlers

import (
	"time"

	"github.com/petlink/backend/internal/models"
)

type parentView struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

type companionView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Breed    string `json:"breed,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// linkView is the wire shape of a parent-companion link. Pending invites are
// rendered in the same shape, keyed by invite token and without a parent id.
type linkView struct {
	ID          string                     `json:"id"`
	ParentID    string                     `json:"parentId,omitempty"`
	CompanionID string                     `json:"companionId"`
	Role        string                     `json:"role"`
	Status      string                     `json:"status"`
	Email       string                     `json:"email,omitempty"`
	Name        string                     `json:"name,omitempty"`
	PhoneNumber string                     `json:"phoneNumber,omitempty"`
	Permissions models.CoParentPermissions `json:"permissions"`
	CreatedAt   string                     `json:"createdAt,omitempty"`
	UpdatedAt   string                     `json:"updatedAt,omitempty"`
	Parent      *parentView                `json:"parent,omitempty"`
	Companion   *companionView             `json:"companion,omitempty"`
}

type inviteView struct {
	ID          string         `json:"id"`
	Token       string         `json:"token"`
	Email       string         `json:"email"`
	InviteeName string         `json:"inviteeName"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	CompanionID string         `json:"companionId"`
	Status      string         `json:"status"`
	ExpiresAt   string         `json:"expiresAt"`
	CreatedAt   string         `json:"createdAt"`
	InvitedBy   *parentView    `json:"invitedBy,omitempty"`
	Companion   *companionView `json:"companion,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newParentView(u models.User) *parentView {
	return &parentView{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		PhoneNumber:     u.PhoneNumber,
		ProfileImageURL: u.ProfilePicture,
	}
}

func newCompanionView(c models.Companion) *companionView {
	return &companionView{ID: c.ID, Name: c.Name, Breed: c.Breed, PhotoURL: c.PhotoURL}
}

func newLinkView(l models.CompanionLink) linkView {
	return linkView{
		ID:          l.ID,
		ParentID:    l.ParentID,
		CompanionID: l.CompanionID,
		Role:        l.Role,
		Status:      l.Status,
		Permissions: l.Permissions,
		CreatedAt:   formatTime(l.CreatedAt),
		UpdatedAt:   formatTime(l.UpdatedAt),
	}
}

func newLinkDetailView(d models.LinkDetail) linkView {
	view := newLinkView(d.Link)
	view.Parent = newParentView(d.Parent)
	view.Companion = newCompanionView(d.Companion)
	return view
}

func newPendingLinkView(i models.CoParentInvite) linkView {
	return linkView{
		ID:          i.Token,
		CompanionID: i.CompanionID,
		Role:        models.RoleCoParent,
		Status:      models.StatusPending,
		Email:       i.Email,
		Name:        i.InviteeName,
		PhoneNumber: i.PhoneNumber,
		CreatedAt:   formatTime(i.CreatedAt),
	}
}

func newInviteView(i models.CoParentInvite) inviteView {
	return inviteView{
		ID:          i.Token,
		Token:       i.Token,
		Email:       i.Email,
		InviteeName: i.InviteeName,
		PhoneNumber: i.PhoneNumber,
		CompanionID: i.CompanionID,
		Status:      i.Status,
		ExpiresAt:   formatTime(i.ExpiresAt),
		CreatedAt:   formatTime(i.CreatedAt),
	}
}

func newInviteDetailView(d models.InviteDetail) inviteView {
	view := newInviteView(d.Invite)
	view.InvitedBy = newParentView(d.Inviter)
	view.Companion = newCompanionView(d.Companion)
	return view
}
