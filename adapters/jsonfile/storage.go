package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mangrovewatch/core"
)

// Store persists entire state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed; order is creation order
	data  map[core.UserID]core.UserState
	order []core.UserID
}

// fileFormat keeps users as a list so creation order survives a reload.
type fileFormat struct {
	Users []core.UserState `json:"users"`
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.UserState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileFormat
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, st := range raw.Users {
		if _, dup := s.data[st.UserID]; dup {
			continue
		}
		s.data[st.UserID] = st
		s.order = append(s.order, st.UserID)
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := fileFormat{Users: make([]core.UserState, 0, len(s.order))}
	for _, id := range s.order {
		raw.Users = append(raw.Users, s.data[id])
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) GetState(_ context.Context, user core.UserID) (core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.data[user]; ok {
		return st.Clone(), nil
	}
	return core.NewUserState(user, time.Now().UTC()), nil
}

// UpdateState applies fn under the store lock and rewrites the file. The
// in-memory copy only changes once the file write succeeds.
func (s *Store) UpdateState(_ context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.data[user]
	if !exists {
		prev = core.NewUserState(user, time.Now().UTC())
	}
	next := prev.Clone()
	if err := fn(&next); err != nil {
		return core.UserState{}, err
	}
	next.UserID = user
	next.Version = prev.Version + 1
	next.Updated = time.Now().UTC()

	s.data[user] = next
	if !exists {
		s.order = append(s.order, user)
	}
	if err := s.persist(); err != nil {
		s.rollback(user, prev, exists)
		return core.UserState{}, err
	}
	return next.Clone(), nil
}

func (s *Store) rollback(user core.UserID, prev core.UserState, existed bool) {
	if existed {
		s.data[user] = prev
		return
	}
	delete(s.data, user)
	s.order = s.order[:len(s.order)-1]
}

func (s *Store) ListStates(_ context.Context) ([]core.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.data[id].Clone())
	}
	return out, nil
}

func (s *Store) ApplyStandings(_ context.Context, standings []core.Standing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, standing := range standings {
		st, ok := s.data[standing.UserID]
		if !ok {
			continue
		}
		st.Rank = standing.Rank
		st.Badge = standing.Badge
		s.data[standing.UserID] = st
	}
	return s.persist()
}

func (s *Store) DeleteState(_ context.Context, user core.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[user]; !ok {
		return core.ErrNotFound
	}
	delete(s.data, user)
	for i, id := range s.order {
		if id == user {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persist()
}
