package coparent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/petlink/backend/internal/logging"
	"github.com/petlink/backend/internal/models"
)

// TokenProvider supplies the signed-in user's bearer credentials.
type TokenProvider interface {
	// GetFreshTokens returns the current tokens, or nil when no session exists.
	GetFreshTokens(ctx context.Context) (*models.SessionTokens, error)
	IsTokenExpired(expiresAt time.Time) bool
}

// Service runs the co-parent operations: it authorizes each call, invokes
// the API, normalizes the payload and drives the store transitions.
type Service struct {
	Tokens  TokenProvider
	API     API
	Store   *Store
	NowFunc func() time.Time
}

// NewService wires a Service over the provided collaborators.
func NewService(tokens TokenProvider, api API, store *Store) *Service {
	if store == nil {
		store = NewStore()
	}
	return &Service{Tokens: tokens, API: api, Store: store}
}

// FetchCoParents replaces the store's co-parents with the companion's links.
func (s *Service) FetchCoParents(ctx context.Context, companionID, companionName, companionImage string) (list []models.CoParent, err error) {
	ctx, done := s.begin(ctx, "coparent.fetch", familyCoParents)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	links, err := s.API.ListByCompanion(ctx, companionID, token)
	if err != nil {
		return nil, err
	}

	companion := &CompanionContext{ID: companionID, Name: companionName, PhotoURL: companionImage}
	list = make([]models.CoParent, 0, len(links))
	for _, link := range links {
		list = append(list, normalizeCoParent(link, companion, s.now))
	}

	s.Store.coParentsFetched(list)
	return list, nil
}

// AddCoParent sends an invite and appends the provisional co-parent record.
func (s *Service) AddCoParent(ctx context.Context, req models.CoParentInviteRequest, companionName, companionImage string) (cp models.CoParent, err error) {
	ctx, done := s.begin(ctx, "coparent.invite", familyCoParents)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return models.CoParent{}, err
	}

	echo, err := s.API.SendInvite(ctx, InviteRequest{
		InviteeName: strings.TrimSpace(req.CandidateName),
		Email:       strings.TrimSpace(req.Email),
		CompanionID: req.CompanionID,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
	}, token)
	if err != nil {
		return models.CoParent{}, err
	}

	cp = s.provisionalCoParent(req, echo, &CompanionContext{ID: req.CompanionID, Name: companionName, PhotoURL: companionImage})
	s.Store.coParentAdded(cp)
	return cp, nil
}

// UpdateCoParentPermissions patches a co-parent's permissions and replaces
// the stored record in place.
func (s *Service) UpdateCoParentPermissions(ctx context.Context, companionID, coParentID string, perms models.CoParentPermissions) (cp models.CoParent, err error) {
	ctx, done := s.begin(ctx, "coparent.update_permissions", familyCoParents)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return models.CoParent{}, err
	}

	echo, err := s.API.UpdatePermissions(ctx, companionID, coParentID, perms, token)
	if err != nil {
		return models.CoParent{}, err
	}

	previous, known := s.Store.coParent(coParentID)
	cp = mergeUpdatedCoParent(echo, previous, known, companionID, coParentID, perms, s.now)
	s.Store.coParentUpdated(cp)
	return cp, nil
}

// DeleteCoParent removes a co-parent from the companion.
func (s *Service) DeleteCoParent(ctx context.Context, companionID, coParentID string) (err error) {
	ctx, done := s.begin(ctx, "coparent.delete", familyCoParents)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	ok, err := s.API.Remove(ctx, companionID, coParentID, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRemoveRejected
	}

	s.Store.coParentRemoved(coParentID)
	return nil
}

// PromoteCoParentToPrimary asks the API to make the co-parent primary. The
// store's records are left untouched; callers refresh afterwards.
func (s *Service) PromoteCoParentToPrimary(ctx context.Context, companionID, coParentID string) (err error) {
	ctx, done := s.begin(ctx, "coparent.promote", familyCoParents)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	ok, err := s.API.PromoteToPrimary(ctx, companionID, coParentID, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPromoteRejected
	}

	s.Store.fulfilled(familyCoParents, nil)
	return nil
}

// FetchPendingInvites replaces the store's pending invites.
func (s *Service) FetchPendingInvites(ctx context.Context) (invites []models.PendingCoParentInvite, err error) {
	ctx, done := s.begin(ctx, "coparent.pending_invites", familyInvites)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.API.ListPendingInvites(ctx, token)
	if err != nil {
		return nil, err
	}

	invites = make([]models.PendingCoParentInvite, 0, len(raw))
	for _, item := range raw {
		invites = append(invites, NormalizePendingInvite(item))
	}

	s.Store.invitesFetched(invites)
	return invites, nil
}

// AcceptCoParentInvite accepts an invite and drops it from the pending list.
func (s *Service) AcceptCoParentInvite(ctx context.Context, inviteToken string) (string, error) {
	return s.resolveInvite(ctx, "coparent.accept_invite", inviteToken, s.API.AcceptInvite)
}

// DeclineCoParentInvite declines an invite and drops it from the pending list.
func (s *Service) DeclineCoParentInvite(ctx context.Context, inviteToken string) (string, error) {
	return s.resolveInvite(ctx, "coparent.decline_invite", inviteToken, s.API.DeclineInvite)
}

func (s *Service) resolveInvite(ctx context.Context, name, inviteToken string, call func(context.Context, string, string) (string, error)) (resolved string, err error) {
	ctx, done := s.begin(ctx, name, familyInvites)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return "", err
	}

	resolved, err = call(ctx, inviteToken, token)
	if err != nil {
		return "", err
	}

	s.Store.inviteResolved(resolved)
	return resolved, nil
}

// FetchParentAccess resolves the signed-in parent's own access per companion.
// Companions missing from the parent listing are looked up concurrently; a
// failed lookup contributes nothing instead of failing the operation.
func (s *Service) FetchParentAccess(ctx context.Context, parentID string, companionIDs []string) (entries []models.ParentCompanionAccess, err error) {
	ctx, done := s.begin(ctx, "coparent.parent_access", familyAccess)
	defer func() { done(err) }()

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	links, err := s.API.ListByParent(ctx, parentID, token)
	if err != nil {
		return nil, err
	}

	covered := make(map[string]bool)
	for _, link := range links {
		cp := normalizeCoParent(link, nil, s.now)
		if cp.CompanionID == "" || covered[cp.CompanionID] {
			continue
		}
		covered[cp.CompanionID] = true
		entries = append(entries, accessFrom(cp))
	}

	var missing []string
	for _, id := range companionIDs {
		if id == "" || covered[id] {
			continue
		}
		covered[id] = true
		missing = append(missing, id)
	}

	results := make([][]json.RawMessage, len(missing))
	var group errgroup.Group
	for i, companionID := range missing {
		group.Go(func() error {
			found, lookupErr := s.API.ListByCompanion(ctx, companionID, token)
			if lookupErr != nil {
				logging.FromContext(ctx).Warn("companion access lookup failed", "companionId", companionID, "error", lookupErr)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = group.Wait()

	for i, companionID := range missing {
		companion := &CompanionContext{ID: companionID}
		for _, link := range results[i] {
			cp := normalizeCoParent(link, companion, s.now)
			if matchesParent(cp, parentID) {
				cp.CompanionID = companionID
				entries = append(entries, accessFrom(cp))
				break
			}
		}
	}

	s.Store.accessFetched(entries)
	return entries, nil
}

// SearchCoParents filters the current co-parents by name or email.
func (s *Service) SearchCoParents(query string) []models.CoParent {
	return SearchCoParents(s.Store.Snapshot(), query)
}

// SelectCoParent focuses the UI on a co-parent.
func (s *Service) SelectCoParent(id string) {
	s.Store.SelectCoParent(id)
}

// begin opens a span, moves the family to pending and returns the closure
// that settles it as fulfilled (already applied by the caller) or rejected.
func (s *Service) begin(ctx context.Context, name string, f family) (context.Context, func(error)) {
	ctx, span := logging.StartSpan(ctx, name)
	s.Store.pending(f)
	return ctx, func(err error) {
		if err != nil {
			span.Fail(err)
			s.Store.rejected(f, err)
			return
		}
		span.End()
	}
}

func (s *Service) accessToken(ctx context.Context) (string, error) {
	return accessToken(ctx, s.Tokens)
}

// accessToken resolves a usable bearer token from provider.
func accessToken(ctx context.Context, provider TokenProvider) (string, error) {
	if provider == nil {
		return "", ErrMissingAccessToken
	}
	tokens, err := provider.GetFreshTokens(ctx)
	if err != nil {
		return "", err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return "", ErrMissingAccessToken
	}
	if provider.IsTokenExpired(tokens.AccessExpiresAt) {
		logging.FromContext(ctx).Warn("access token expired before request", slog.Time("expiresAt", tokens.AccessExpiresAt))
		return "", ErrSessionExpired
	}
	return tokens.AccessToken, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

// provisionalCoParent builds the record shown while an invite is pending,
// preferring whatever the server echoed over the request's own values.
func (s *Service) provisionalCoParent(req models.CoParentInviteRequest, echo json.RawMessage, companion *CompanionContext) models.CoParent {
	cp := normalizeCoParent(echo, companion, s.now)
	first, rest := splitName(req.CandidateName)
	if cp.FirstName == "" {
		cp.FirstName = first
	}
	if cp.LastName == "" {
		cp.LastName = rest
	}
	if cp.Email == "" {
		cp.Email = strings.TrimSpace(req.Email)
	}
	if cp.PhoneNumber == "" {
		cp.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	}
	stamp := s.now().UTC().Format(time.RFC3339)
	if cp.CreatedAt == "" {
		cp.CreatedAt = stamp
	}
	if cp.UpdatedAt == "" {
		cp.UpdatedAt = cp.CreatedAt
	}
	return cp
}

func mergeUpdatedCoParent(echo json.RawMessage, previous models.CoParent, known bool, companionID, coParentID string, perms models.CoParentPermissions, now func() time.Time) models.CoParent {
	body := parseObject(echo)
	if isEmptyObject(body) {
		if !known {
			previous = normalizeCoParent(nil, &CompanionContext{ID: companionID}, now)
			previous.ID = coParentID
			previous.ParentID = coParentID
			previous.UserID = coParentID
		}
		previous.Permissions = perms
		return previous
	}

	companion := &CompanionContext{ID: companionID}
	if known && len(previous.Companions) > 0 {
		companion.Name = previous.Companions[0].CompanionName
		companion.PhotoURL = previous.Companions[0].ProfileImage
	}
	updated := normalizeCoParent(echo, companion, now)
	if !body.Get("permissions").IsObject() {
		updated.Permissions = perms
	}
	if !known {
		return updated
	}

	updated.ID = previous.ID
	fillEmpty(&updated.ParentID, previous.ParentID)
	fillEmpty(&updated.UserID, previous.UserID)
	fillEmpty(&updated.Email, previous.Email)
	fillEmpty(&updated.FirstName, previous.FirstName)
	fillEmpty(&updated.LastName, previous.LastName)
	fillEmpty(&updated.PhoneNumber, previous.PhoneNumber)
	fillEmpty(&updated.ProfilePicture, previous.ProfilePicture)
	fillEmpty(&updated.ProfileToken, previous.ProfileToken)
	fillEmpty(&updated.CreatedAt, previous.CreatedAt)
	fillEmpty(&updated.UpdatedAt, previous.UpdatedAt)
	if !body.Get("status").Exists() && !body.Get("inviteStatus").Exists() {
		updated.Status = previous.Status
	}
	if !body.Get("role").Exists() && !body.Get("parentRole").Exists() {
		updated.Role = previous.Role
	}
	for i := range updated.Companions {
		entry := &updated.Companions[i]
		if prior, ok := priorCompanion(previous, entry.CompanionID); ok {
			fillEmpty(&entry.Breed, prior.Breed)
			fillEmpty(&entry.CompanionName, prior.CompanionName)
			fillEmpty(&entry.ProfileImage, prior.ProfileImage)
		}
		entry.HasPermission = updated.Status == models.StatusAccepted
	}
	return updated
}

func priorCompanion(cp models.CoParent, companionID string) (models.CompanionCoParent, bool) {
	for _, entry := range cp.Companions {
		if entry.CompanionID == companionID {
			return entry, true
		}
	}
	return models.CompanionCoParent{}, false
}

func isEmptyObject(body gjson.Result) bool {
	empty := true
	body.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

func fillEmpty(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

func matchesParent(cp models.CoParent, parentID string) bool {
	return parentID != "" && (cp.ParentID == parentID || cp.UserID == parentID)
}

func accessFrom(cp models.CoParent) models.ParentCompanionAccess {
	return models.ParentCompanionAccess{
		CompanionID: cp.CompanionID,
		Role:        cp.Role,
		Status:      cp.Status,
		Permissions: cp.Permissions,
	}
}
