package coparent

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/petlink/backend/internal/models"
)

// CompanionContext carries companion display data the caller already knows
// about, for link payloads that do not embed it.
type CompanionContext struct {
	ID       string
	Name     string
	PhotoURL string
}

// NormalizeCoParent converts a raw link record of any known shape into a CoParent.
// It never fails: missing fields resolve to their documented defaults.
func NormalizeCoParent(raw json.RawMessage, companion *CompanionContext) models.CoParent {
	return normalizeCoParent(raw, companion, time.Now)
}

func normalizeCoParent(raw json.RawMessage, companion *CompanionContext, now func() time.Time) models.CoParent {
	link := parseObject(raw)
	if companion == nil {
		companion = &CompanionContext{}
	}

	parentID := firstString(link, "parentId", "parent.id", "parent._id", "userId")
	userID := firstString(link, "userId", "parent.userId", "parent.id")
	if userID == "" {
		userID = parentID
	}

	companionID := firstString(link, "companionId", "companion.id", "companion._id")
	if companionID == "" {
		companionID = companion.ID
	}

	id := firstString(link, "id", "_id", "linkId")
	if id == "" && parentID != "" {
		scope := companionID
		if scope == "" {
			scope = "companion"
		}
		id = parentID + "-" + scope
	}
	if id == "" {
		id = fmt.Sprintf("cp_%d", now().UnixMilli())
	}

	fullName := firstString(link, "parent.name", "name", "inviteeName", "candidateName")
	nameFirst, nameRest := splitName(fullName)

	firstName := firstString(link, "parent.firstName", "firstName", "parentFirstName")
	if firstName == "" {
		firstName = nameFirst
	}
	lastName := firstString(link, "parent.lastName", "lastName", "parentLastName")
	if lastName == "" {
		lastName = nameRest
	}

	status := firstRawString(link, "status", "inviteStatus")
	if status == "" {
		status = models.StatusPending
	}
	status = NormalizeStatus(status)

	role := firstString(link, "role", "parentRole")
	if role == "" {
		role = models.RoleCoParent
	}

	createdAt := firstString(link, "createdAt", "created_at")
	updatedAt := firstString(link, "updatedAt", "updated_at")
	if updatedAt == "" {
		updatedAt = createdAt
	}

	permissionSource := link.Get("permissions")
	if !permissionSource.IsObject() {
		permissionSource = link
	}

	coParent := models.CoParent{
		ID:             id,
		ParentID:       parentID,
		UserID:         userID,
		CompanionID:    companionID,
		Role:           role,
		Status:         status,
		Email:          firstString(link, "parent.email", "email", "parentEmail"),
		FirstName:      firstName,
		LastName:       lastName,
		PhoneNumber:    firstString(link, "parent.phoneNumber", "parent.phone", "phoneNumber", "phone"),
		ProfilePicture: firstString(link, "parent.profileImageUrl", "parent.profilePicture", "profilePicture", "profileImageUrl"),
		ProfileToken:   firstString(link, "parent.profileToken", "profileToken"),
		Companions:     []models.CompanionCoParent{},
		Permissions:    permissionsFrom(permissionSource),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}

	if companionID != "" {
		name := companion.Name
		if name == "" {
			name = firstString(link, "companion.name", "companionName")
		}
		image := companion.PhotoURL
		if image == "" {
			image = firstString(link, "companion.photoUrl", "companion.profileImage", "companionImage")
		}
		coParent.Companions = append(coParent.Companions, models.CompanionCoParent{
			CompanionID:   companionID,
			CompanionName: name,
			Breed:         firstString(link, "companion.breed"),
			ProfileImage:  image,
			HasPermission: status == models.StatusAccepted,
		})
	}

	return coParent
}

// NormalizeStatus maps backend status aliases onto accepted, pending or
// declined. Unrecognised values are returned unchanged.
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "accepted":
		return models.StatusAccepted
	case "declined", "rejected":
		return models.StatusDeclined
	case "pending", "invited":
		return models.StatusPending
	default:
		return status
	}
}

// NormalizePermissions coerces each known permission key independently, so
// sparse or malformed input still yields a complete set.
func NormalizePermissions(raw json.RawMessage) models.CoParentPermissions {
	return permissionsFrom(parseObject(raw))
}

// NormalizePendingInvite converts a raw pending invite payload.
func NormalizePendingInvite(raw json.RawMessage) models.PendingCoParentInvite {
	invite := parseObject(raw)

	out := models.PendingCoParentInvite{
		Token:       firstString(invite, "token", "inviteToken", "id", "_id"),
		Email:       firstString(invite, "email", "inviteeEmail"),
		InviteeName: firstString(invite, "inviteeName", "candidateName", "name"),
		ExpiresAt:   firstString(invite, "expiresAt", "expires_at"),
	}

	inviter := invite.Get("invitedBy")
	if !inviter.IsObject() {
		inviter = invite.Get("inviter")
	}
	if inviter.IsObject() {
		out.InvitedBy = &models.InviteParty{
			ID:             firstString(inviter, "id", "_id", "userId"),
			Email:          firstString(inviter, "email"),
			FirstName:      firstString(inviter, "firstName"),
			LastName:       firstString(inviter, "lastName"),
			ProfilePicture: firstString(inviter, "profileImageUrl", "profilePicture"),
		}
	} else if id := scalarString(invite.Get("invitedBy")); id != "" {
		out.InvitedBy = &models.InviteParty{ID: id}
	}

	if companion := invite.Get("companion"); companion.IsObject() {
		out.Companion = &models.InviteCompanion{
			ID:       firstString(companion, "id", "_id"),
			Name:     firstString(companion, "name"),
			PhotoURL: firstString(companion, "photoUrl", "profileImage"),
		}
	} else if id := firstString(invite, "companionId"); id != "" {
		out.Companion = &models.InviteCompanion{ID: id, Name: firstString(invite, "companionName")}
	}

	return out
}

func permissionsFrom(src gjson.Result) models.CoParentPermissions {
	return models.CoParentPermissions{
		AssignAsPrimaryParent:     truthy(src.Get("assignAsPrimaryParent")),
		EmergencyBasedPermissions: truthy(src.Get("emergencyBasedPermissions")),
		Appointments:              truthy(src.Get("appointments")),
		CompanionProfile:          truthy(src.Get("companionProfile")),
		Documents:                 truthy(src.Get("documents")),
		Expenses:                  truthy(src.Get("expenses")),
		Tasks:                     truthy(src.Get("tasks")),
		ChatWithVet:               truthy(src.Get("chatWithVet")),
	}
}

func parseObject(raw json.RawMessage) gjson.Result {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	result := gjson.ParseBytes(raw)
	if !result.IsObject() {
		return gjson.Result{}
	}
	return result
}

// firstString walks paths in order and returns the first non-empty scalar.
func firstString(src gjson.Result, paths ...string) string {
	for _, path := range paths {
		if value := scalarString(src.Get(path)); value != "" {
			return value
		}
	}
	return ""
}

// firstRawString is firstString without trimming, for values that pass
// through untouched when unrecognized.
func firstRawString(src gjson.Result, paths ...string) string {
	for _, path := range paths {
		value := src.Get(path)
		if scalarString(value) == "" {
			continue
		}
		if value.Type == gjson.String {
			return value.Str
		}
		return value.Raw
	}
	return ""
}

func scalarString(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return strings.TrimSpace(value.Str)
	case gjson.Number, gjson.True, gjson.False:
		return value.Raw
	default:
		return ""
	}
}

// truthy mirrors loose boolean coercion: absent, null, false, 0, NaN and the
// empty string are false; everything else is true.
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.String:
		return value.Str != ""
	case gjson.Number:
		return value.Num != 0 && !math.IsNaN(value.Num)
	default:
		return false
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
