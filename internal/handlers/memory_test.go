package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/petlink/backend/internal/models"
	"github.com/petlink/backend/internal/notify"
	"github.com/petlink/backend/internal/repositories"
)

// world is an in-memory backend shared by the store fakes below.
type world struct {
	mu         sync.Mutex
	users      map[string]models.User
	companions map[string]models.Companion
	links      []models.CompanionLink
	invites    map[string]models.CoParentInvite
}

func newWorld() *world {
	return &world{
		users:      make(map[string]models.User),
		companions: make(map[string]models.Companion),
		invites:    make(map[string]models.CoParentInvite),
	}
}

func (w *world) addUser(u models.User) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users[u.ID] = u
}

func (w *world) addCompanion(c models.Companion) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.companions[c.ID] = c
}

func (w *world) addLink(l models.CompanionLink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.links = append(w.links, l)
}

func (w *world) addInvite(i models.CoParentInvite) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.invites[i.Token] = i
}

func (w *world) link(companionID, parentID string) (models.CompanionLink, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range w.links {
		if l.CompanionID == companionID && l.ParentID == parentID {
			return l, true
		}
	}
	return models.CompanionLink{}, false
}

func (w *world) invite(token string) models.CoParentInvite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.invites[token]
}

func (w *world) detailLocked(l models.CompanionLink) models.LinkDetail {
	return models.LinkDetail{Link: l, Parent: w.users[l.ParentID], Companion: w.companions[l.CompanionID]}
}

type memoryUsers struct{ w *world }

func (s memoryUsers) Create(_ context.Context, user models.User) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.w.users[user.ID] = user
	return nil
}

func (s memoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s memoryUsers) FindByID(_ context.Context, id string) (models.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return u, nil
}

type memoryCompanions struct{ w *world }

func (s memoryCompanions) Create(_ context.Context, companion models.Companion, owner models.CompanionLink) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, exists := s.w.companions[companion.ID]; exists {
		return repositories.ErrConflict
	}
	s.w.companions[companion.ID] = companion
	s.w.links = append(s.w.links, owner)
	return nil
}

func (s memoryCompanions) FindByID(_ context.Context, id string) (models.Companion, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	c, ok := s.w.companions[id]
	if !ok {
		return models.Companion{}, repositories.ErrNotFound
	}
	return c, nil
}

type memoryLinks struct{ w *world }

func (s memoryLinks) Find(_ context.Context, companionID, parentID string) (models.CompanionLink, error) {
	if l, ok := s.w.link(companionID, parentID); ok {
		return l, nil
	}
	return models.CompanionLink{}, repositories.ErrNotFound
}

func (s memoryLinks) ListByCompanion(_ context.Context, companionID string) ([]models.LinkDetail, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := []models.LinkDetail{}
	for _, l := range s.w.links {
		if l.CompanionID == companionID {
			out = append(out, s.w.detailLocked(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return models.IsPrimaryRole(out[i].Link.Role) && !models.IsPrimaryRole(out[j].Link.Role)
	})
	return out, nil
}

func (s memoryLinks) ListByParent(_ context.Context, parentID string) ([]models.LinkDetail, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := []models.LinkDetail{}
	for _, l := range s.w.links {
		if l.ParentID == parentID {
			out = append(out, s.w.detailLocked(l))
		}
	}
	return out, nil
}

func (s memoryLinks) UpdatePermissions(_ context.Context, companionID, parentID string, perms models.CoParentPermissions, at time.Time) (models.CompanionLink, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for i, l := range s.w.links {
		if l.CompanionID == companionID && l.ParentID == parentID {
			s.w.links[i].Permissions = perms
			s.w.links[i].UpdatedAt = at
			return s.w.links[i], nil
		}
	}
	return models.CompanionLink{}, repositories.ErrNotFound
}

func (s memoryLinks) PromoteToPrimary(_ context.Context, companionID, parentID string, at time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	target := -1
	for i, l := range s.w.links {
		if l.CompanionID == companionID && l.ParentID == parentID {
			target = i
		}
	}
	if target < 0 {
		return repositories.ErrNotFound
	}
	if s.w.links[target].Status != models.StatusAccepted {
		return repositories.ErrConflict
	}
	for i, l := range s.w.links {
		if l.CompanionID == companionID && l.Role == models.RolePrimary {
			s.w.links[i].Role = models.RoleCoParent
			s.w.links[i].UpdatedAt = at
		}
	}
	s.w.links[target].Role = models.RolePrimary
	s.w.links[target].Permissions = models.FullPermissions()
	s.w.links[target].UpdatedAt = at
	return nil
}

func (s memoryLinks) Delete(_ context.Context, companionID, parentID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for i, l := range s.w.links {
		if l.CompanionID == companionID && l.ParentID == parentID {
			s.w.links = append(s.w.links[:i], s.w.links[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

type memoryInvites struct{ w *world }

func (s memoryInvites) Create(_ context.Context, invite models.CoParentInvite) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, exists := s.w.invites[invite.Token]; exists {
		return repositories.ErrConflict
	}
	s.w.invites[invite.Token] = invite
	return nil
}

func (s memoryInvites) FindByToken(_ context.Context, token string) (models.CoParentInvite, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	invite, ok := s.w.invites[token]
	if !ok {
		return models.CoParentInvite{}, repositories.ErrNotFound
	}
	return invite, nil
}

func (s memoryInvites) ListPendingForEmail(_ context.Context, email string, now time.Time) ([]models.InviteDetail, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := []models.InviteDetail{}
	for _, i := range s.w.invites {
		if i.Email == email && i.Status == models.StatusPending && !i.Expired(now) {
			out = append(out, models.InviteDetail{Invite: i, Inviter: s.w.users[i.InvitedBy], Companion: s.w.companions[i.CompanionID]})
		}
	}
	return out, nil
}

func (s memoryInvites) ListPendingForCompanion(_ context.Context, companionID string, now time.Time) ([]models.CoParentInvite, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	out := []models.CoParentInvite{}
	for _, i := range s.w.invites {
		if i.CompanionID == companionID && i.Status == models.StatusPending && !i.Expired(now) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s memoryInvites) Accept(_ context.Context, token string, link models.CompanionLink, now time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	invite, err := s.pendingLocked(token, now)
	if err != nil {
		return err
	}
	for _, l := range s.w.links {
		if l.CompanionID == invite.CompanionID && l.ParentID == link.ParentID {
			return repositories.ErrConflict
		}
	}
	link.CompanionID = invite.CompanionID
	s.w.links = append(s.w.links, link)
	s.resolveLocked(invite, models.StatusAccepted, now)
	return nil
}

func (s memoryInvites) Decline(_ context.Context, token string, now time.Time) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	invite, err := s.pendingLocked(token, now)
	if err != nil {
		return err
	}
	s.resolveLocked(invite, models.StatusDeclined, now)
	return nil
}

func (s memoryInvites) pendingLocked(token string, now time.Time) (models.CoParentInvite, error) {
	invite, ok := s.w.invites[token]
	if !ok {
		return models.CoParentInvite{}, repositories.ErrNotFound
	}
	if invite.Status != models.StatusPending {
		return models.CoParentInvite{}, repositories.ErrConflict
	}
	if invite.Expired(now) {
		return models.CoParentInvite{}, repositories.ErrInviteExpired
	}
	return invite, nil
}

func (s memoryInvites) resolveLocked(invite models.CoParentInvite, status string, now time.Time) {
	invite.Status = status
	invite.RespondedAt = &now
	s.w.invites[invite.Token] = invite
}

type recordingNotifier struct {
	mu     sync.Mutex
	emails []notify.InviteEmail
	err    error
}

func (n *recordingNotifier) Enqueue(_ context.Context, email notify.InviteEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, email)
	return nil
}

func (n *recordingNotifier) sent() []notify.InviteEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.InviteEmail(nil), n.emails...)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

var errPingFailed = errors.New("connection refused")
