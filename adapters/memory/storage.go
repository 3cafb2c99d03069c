package memory

import (
	"context"
	"sync"
	"time"

	"mangrovewatch/core"
)

// Store is a concurrent in-memory Storage implementation. Each user has
// its own lock so updates for different users never contend.
type Store struct {
	mu    sync.RWMutex
	users map[core.UserID]*userRecord
	order []core.UserID
}

type userRecord struct {
	mu    sync.Mutex
	state core.UserState
	// listed is guarded by Store.mu and set by the first successful update.
	listed bool
}

func New() *Store { return &Store{users: map[core.UserID]*userRecord{}} }

// lookup returns the record of a user with at least one committed update.
func (s *Store) lookup(user core.UserID) (*userRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[user]
	if !ok || !rec.listed {
		return nil, false
	}
	return rec, true
}

// reserve returns the user's record, creating an unlisted placeholder so
// concurrent first updates serialize on the same lock.
func (s *Store) reserve(user core.UserID) *userRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.users[user]; ok {
		return rec
	}
	rec := &userRecord{state: core.NewUserState(user, time.Now().UTC())}
	s.users[user] = rec
	return rec
}

// commit lists rec on its first successful update. Called with rec.mu held.
func (s *Store) commit(user core.UserID, rec *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user]; !ok {
		// deleted while this update waited for the lock
		s.users[user] = rec
	}
	if s.users[user] == rec && !rec.listed {
		rec.listed = true
		s.order = append(s.order, user)
	}
}

func (s *Store) GetState(_ context.Context, user core.UserID) (core.UserState, error) {
	rec, ok := s.lookup(user)
	if !ok {
		return core.NewUserState(user, time.Now().UTC()), nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

// UpdateState applies fn under the user's lock. A user whose first update
// fails stays unlisted and invisible to reads.
func (s *Store) UpdateState(_ context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	rec := s.reserve(user)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := rec.state.Clone()
	if err := fn(&next); err != nil {
		return core.UserState{}, err
	}
	next.UserID = user
	next.Version = rec.state.Version + 1
	next.Updated = time.Now().UTC()
	rec.state = next
	s.commit(user, rec)
	return next.Clone(), nil
}

func (s *Store) ListStates(_ context.Context) ([]core.UserState, error) {
	s.mu.RLock()
	recs := make([]*userRecord, 0, len(s.order))
	for _, id := range s.order {
		recs = append(recs, s.users[id])
	}
	s.mu.RUnlock()

	out := make([]core.UserState, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.state.Clone())
		rec.mu.Unlock()
	}
	return out, nil
}

func (s *Store) ApplyStandings(_ context.Context, standings []core.Standing) error {
	for _, st := range standings {
		rec, ok := s.lookup(st.UserID)
		if !ok {
			continue
		}
		rec.mu.Lock()
		rec.state.Rank = st.Rank
		rec.state.Badge = st.Badge
		rec.mu.Unlock()
	}
	return nil
}

func (s *Store) DeleteState(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[user]
	if !ok || !rec.listed {
		return core.ErrNotFound
	}
	rec.listed = false
	delete(s.users, user)
	for i, id := range s.order {
		if id == user {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ interface {
	GetState(context.Context, core.UserID) (core.UserState, error)
	UpdateState(context.Context, core.UserID, func(*core.UserState) error) (core.UserState, error)
	ListStates(context.Context) ([]core.UserState, error)
	ApplyStandings(context.Context, []core.Standing) error
	DeleteState(context.Context, core.UserID) error
} = (*Store)(nil)
