package coparent

import (
	"strings"

	"github.com/petlink/backend/internal/models"
)

// FullName joins the co-parent's first and last names.
func FullName(cp models.CoParent) string {
	return strings.TrimSpace(cp.FirstName + " " + cp.LastName)
}

// AccessForCompanion returns the signed-in user's access for a companion.
func AccessForCompanion(state models.CoParentState, companionID string) (models.ParentCompanionAccess, bool) {
	access, ok := state.AccessByCompanionID[companionID]
	return access, ok
}

// IsPrimaryForCompanion reports whether the signed-in user is the companion's primary parent.
func IsPrimaryForCompanion(state models.CoParentState, companionID string) bool {
	access, ok := AccessForCompanion(state, companionID)
	return ok && models.IsPrimaryRole(access.Role)
}

// CanManageCoParents gates editing permissions, removing and promoting co-parents.
func CanManageCoParents(state models.CoParentState, companionID string) bool {
	return IsPrimaryForCompanion(state, companionID)
}

// CanAddCoParent gates the add co-parent action. Primary parents may always
// invite; co-parents may invite only with the assign-as-primary grant.
func CanAddCoParent(state models.CoParentState, companionID string) bool {
	access, ok := AccessForCompanion(state, companionID)
	if !ok {
		return false
	}
	if models.IsPrimaryRole(access.Role) {
		return true
	}
	return NormalizeStatus(access.Status) == models.StatusAccepted && access.Permissions.AssignAsPrimaryParent
}

// FilterByStatus returns the co-parents whose status equals status after normalization.
func FilterByStatus(state models.CoParentState, status string) []models.CoParent {
	want := NormalizeStatus(status)
	out := []models.CoParent{}
	for _, cp := range state.CoParents {
		if NormalizeStatus(cp.Status) == want {
			out = append(out, cp.Clone())
		}
	}
	return out
}

// PendingCoParents returns co-parents whose invite is still outstanding.
func PendingCoParents(state models.CoParentState) []models.CoParent {
	return FilterByStatus(state, models.StatusPending)
}

// AcceptedCoParents returns co-parents who accepted their invite.
func AcceptedCoParents(state models.CoParentState) []models.CoParent {
	return FilterByStatus(state, models.StatusAccepted)
}

// PrimaryParent returns the first primary-equivalent record, if any.
func PrimaryParent(state models.CoParentState) (models.CoParent, bool) {
	for _, cp := range state.CoParents {
		if models.IsPrimaryRole(cp.Role) {
			return cp.Clone(), true
		}
	}
	return models.CoParent{}, false
}

// FindCoParent looks a co-parent up by record or parent id.
func FindCoParent(state models.CoParentState, id string) (models.CoParent, bool) {
	for _, cp := range state.CoParents {
		if cp.Matches(id) {
			return cp.Clone(), true
		}
	}
	return models.CoParent{}, false
}

// SelectedCoParent returns the record the UI is focused on.
func SelectedCoParent(state models.CoParentState) (models.CoParent, bool) {
	return FindCoParent(state, state.SelectedCoParentID)
}

// SearchCoParents matches query case-insensitively against names and email.
// An empty query returns every co-parent.
func SearchCoParents(state models.CoParentState, query string) []models.CoParent {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := []models.CoParent{}
	for _, cp := range state.CoParents {
		if needle == "" || matchesQuery(cp, needle) {
			out = append(out, cp.Clone())
		}
	}
	return out
}

func matchesQuery(cp models.CoParent, needle string) bool {
	for _, field := range []string{cp.FirstName, cp.LastName, FullName(cp), cp.Email} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
