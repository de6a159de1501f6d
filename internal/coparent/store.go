package coparent

import (
	"sync"

	"github.com/petlink/backend/internal/models"
)

// family groups operations that share a loading flag and error slot.
type family int

const (
	familyCoParents family = iota
	familyInvites
	familyAccess
)

// Store is the single source of truth for co-parent state. Data changes only
// through the pending, fulfilled and rejected transitions driven by Service.
type Store struct {
	mu        sync.RWMutex
	state     models.CoParentState
	listeners map[int]func(models.CoParentState)
	nextID    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state:     emptyState(),
		listeners: make(map[int]func(models.CoParentState)),
	}
}

func emptyState() models.CoParentState {
	return models.CoParentState{
		CoParents:           []models.CoParent{},
		PendingInvites:      []models.PendingCoParentInvite{},
		AccessByCompanionID: map[string]models.ParentCompanionAccess{},
	}
}

// Snapshot returns a copy of the current state that callers may keep.
func (s *Store) Snapshot() models.CoParentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// Subscribe registers fn to receive a snapshot after every transition. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(models.CoParentState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Reset discards all state, e.g. on sign-out.
func (s *Store) Reset() {
	s.apply(func(st *models.CoParentState) { *st = emptyState() })
}

// SelectCoParent records which co-parent the UI is focused on.
func (s *Store) SelectCoParent(id string) {
	s.apply(func(st *models.CoParentState) { st.SelectedCoParentID = id })
}

func (s *Store) pending(f family) {
	s.apply(func(st *models.CoParentState) {
		*loadingFlag(st, f) = true
		*errorSlot(st, f) = ""
	})
}

func (s *Store) rejected(f family, err error) {
	s.apply(func(st *models.CoParentState) {
		*loadingFlag(st, f) = false
		if err != nil {
			*errorSlot(st, f) = err.Error()
		}
	})
}

func (s *Store) fulfilled(f family, mutate func(st *models.CoParentState)) {
	s.apply(func(st *models.CoParentState) {
		*loadingFlag(st, f) = false
		if mutate != nil {
			mutate(st)
		}
	})
}

func (s *Store) coParentsFetched(list []models.CoParent) {
	s.fulfilled(familyCoParents, func(st *models.CoParentState) {
		st.CoParents = append([]models.CoParent{}, list...)
	})
}

func (s *Store) coParentAdded(cp models.CoParent) {
	s.fulfilled(familyCoParents, func(st *models.CoParentState) {
		st.CoParents = append(st.CoParents, cp)
	})
}

func (s *Store) coParentUpdated(cp models.CoParent) {
	s.fulfilled(familyCoParents, func(st *models.CoParentState) {
		for i := range st.CoParents {
			if st.CoParents[i].ID == cp.ID {
				st.CoParents[i] = cp
				return
			}
		}
	})
}

func (s *Store) coParentRemoved(id string) {
	s.fulfilled(familyCoParents, func(st *models.CoParentState) {
		kept := st.CoParents[:0]
		for _, cp := range st.CoParents {
			if !cp.Matches(id) {
				kept = append(kept, cp)
			} else if st.SelectedCoParentID == cp.ID {
				st.SelectedCoParentID = ""
			}
		}
		st.CoParents = kept
	})
}

func (s *Store) invitesFetched(invites []models.PendingCoParentInvite) {
	s.fulfilled(familyInvites, func(st *models.CoParentState) {
		st.PendingInvites = append([]models.PendingCoParentInvite{}, invites...)
	})
}

func (s *Store) inviteResolved(token string) {
	s.fulfilled(familyInvites, func(st *models.CoParentState) {
		kept := st.PendingInvites[:0]
		for _, invite := range st.PendingInvites {
			if invite.Token != token {
				kept = append(kept, invite)
			}
		}
		st.PendingInvites = kept
	})
}

func (s *Store) accessFetched(entries []models.ParentCompanionAccess) {
	s.fulfilled(familyAccess, func(st *models.CoParentState) {
		for _, entry := range entries {
			st.AccessByCompanionID[entry.CompanionID] = entry
		}
		if len(entries) > 0 {
			first := entries[0]
			st.DefaultAccess = &first
		}
	})
}

// coParent looks up the last known record by record or parent id.
func (s *Store) coParent(id string) (models.CoParent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cp := range s.state.CoParents {
		if cp.Matches(id) {
			return cp.Clone(), true
		}
	}
	return models.CoParent{}, false
}

func (s *Store) apply(mutate func(st *models.CoParentState)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := copyState(s.state)
	listeners := make([]func(models.CoParentState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func loadingFlag(st *models.CoParentState, f family) *bool {
	switch f {
	case familyInvites:
		return &st.InvitesLoading
	case familyAccess:
		return &st.AccessLoading
	default:
		return &st.Loading
	}
}

func errorSlot(st *models.CoParentState, f family) *string {
	switch f {
	case familyInvites:
		return &st.InvitesError
	case familyAccess:
		return &st.AccessError
	default:
		return &st.Error
	}
}

func copyState(st models.CoParentState) models.CoParentState {
	out := st
	out.CoParents = make([]models.CoParent, len(st.CoParents))
	for i, cp := range st.CoParents {
		out.CoParents[i] = cp.Clone()
	}
	out.PendingInvites = append([]models.PendingCoParentInvite{}, st.PendingInvites...)
	out.AccessByCompanionID = make(map[string]models.ParentCompanionAccess, len(st.AccessByCompanionID))
	for k, v := range st.AccessByCompanionID {
		out.AccessByCompanionID[k] = v
	}
	if st.DefaultAccess != nil {
		access := *st.DefaultAccess
		out.DefaultAccess = &access
	}
	return out
}
