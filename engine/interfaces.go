package engine

import (
	"context"

	"mangrovewatch/core"
)

// UpdateFunc mutates a user's state in place. Adapters may call it more
// than once when an optimistic write loses a race, so it must not have
// side effects beyond the state it is given. It is an alias so adapters
// can satisfy Storage without importing this package.
type UpdateFunc = func(state *core.UserState) error

// Storage abstracts persistence for gamification state. UpdateState is the
// only write path for a single user and serializes read-modify-write.
type Storage interface {
	// GetState returns the stored state, or a fresh zero state for unknown users.
	GetState(ctx context.Context, user core.UserID) (core.UserState, error)
	UpdateState(ctx context.Context, user core.UserID, fn UpdateFunc) (core.UserState, error)
	// ListStates returns every stored user in creation order.
	ListStates(ctx context.Context) ([]core.UserState, error)
	ApplyStandings(ctx context.Context, standings []core.Standing) error
	DeleteState(ctx context.Context, user core.UserID) error
}
