package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mangrovewatch/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"MANGROVEWATCH_REDIS_ADDR"`
	Password     string        `json:"password" env:"MANGROVEWATCH_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"MANGROVEWATCH_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"MANGROVEWATCH_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// maxRetries bounds optimistic WATCH/MULTI attempts per update.
const maxRetries = 8

const usersOrderKey = "users:order"

var errUnknownUser = errors.New("unknown user")

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - user:{user_id}:state -> JSON blob of UserState
// - users:order -> list of user ids in creation order
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// userStateKey generates the Redis key for a user's state
func userStateKey(userID core.UserID) string {
	return fmt.Sprintf("user:%s:state", userID)
}

func decodeState(data []byte) (core.UserState, error) {
	var state core.UserState
	if err := json.Unmarshal(data, &state); err != nil {
		return core.UserState{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

// GetState returns the stored state or a fresh one for unknown users.
func (s *Store) GetState(ctx context.Context, userID core.UserID) (core.UserState, error) {
	data, err := s.client.Get(ctx, userStateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.NewUserState(userID, time.Now().UTC()), nil
	}
	if err != nil {
		return core.UserState{}, fmt.Errorf("failed to get state: %w", err)
	}
	return decodeState(data)
}

// UpdateState runs fn inside a WATCH/MULTI transaction on the user's key,
// retrying when another writer commits first.
func (s *Store) UpdateState(ctx context.Context, userID core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	return s.mutate(ctx, userID, true, func(st *core.UserState, _ bool) error { return fn(st) })
}

// mutate is the shared optimistic write path. fn receives whether the
// user already existed; bump controls the version increment.
func (s *Store) mutate(ctx context.Context, userID core.UserID, bump bool, fn func(*core.UserState, bool) error) (core.UserState, error) {
	key := userStateKey(userID)
	var result core.UserState

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		exists := true
		var state core.UserState
		switch {
		case errors.Is(err, redis.Nil):
			exists = false
			state = core.NewUserState(userID, time.Now().UTC())
		case err != nil:
			return err
		default:
			if state, err = decodeState(data); err != nil {
				return err
			}
		}

		if err := fn(&state, exists); err != nil {
			return err
		}
		state.UserID = userID
		if bump {
			state.Version++
			state.Updated = time.Now().UTC()
		}
		encoded, err := json.Marshal(state)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if !exists {
				pipe.RPush(ctx, usersOrderKey, string(userID))
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = state
		return nil
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return core.UserState{}, err
	}
	return core.UserState{}, core.ErrConflict
}

// ListStates returns all users in creation order.
func (s *Store) ListStates(ctx context.Context) ([]core.UserState, error) {
	ids, err := s.client.LRange(ctx, usersOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return []core.UserState{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userStateKey(core.UserID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load states: %w", err)
	}
	out := make([]core.UserState, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between LRANGE and MGET
		}
		state, err := decodeState([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// ApplyStandings writes rank and badge for each known user. It does not
// bump the version or create missing users.
func (s *Store) ApplyStandings(ctx context.Context, standings []core.Standing) error {
	for _, standing := range standings {
		_, err := s.mutate(ctx, standing.UserID, false, func(st *core.UserState, exists bool) error {
			if !exists {
				return errUnknownUser
			}
			st.Rank = standing.Rank
			st.Badge = standing.Badge
			return nil
		})
		if err != nil && !errors.Is(err, errUnknownUser) {
			return fmt.Errorf("apply standing for %s: %w", standing.UserID, err)
		}
	}
	return nil
}

// DeleteState removes a user's state and its creation-order entry.
func (s *Store) DeleteState(ctx context.Context, userID core.UserID) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, userStateKey(userID))
		pipe.LRem(ctx, usersOrderKey, 0, string(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	if del.Val() == 0 {
		return core.ErrNotFound
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
