package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the gamification domain.
type UserID string

// Badge is the decorative leaderboard label derived from rank and points.
type Badge string

const (
	BadgeNone   Badge = ""
	BadgeGold   Badge = "gold"
	BadgeSilver Badge = "silver"
	BadgeBronze Badge = "bronze"
	BadgeStar   Badge = "star"
)

// Emoji returns the display glyph used by the web client.
func (b Badge) Emoji() string {
	switch b {
	case BadgeGold:
		return "🥇"
	case BadgeSilver:
		return "🥈"
	case BadgeBronze:
		return "🥉"
	case BadgeStar:
		return "🌟"
	}
	return ""
}

var (
	ErrEmptyUserID    = errors.New("empty user id")
	ErrPointsOverflow = errors.New("integer overflow in AddSafe")
	// ErrNotFound is returned by storage adapters for unknown users.
	ErrNotFound = errors.New("user state not found")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("concurrent update conflict")
)

// UnlockedAchievement records when an achievement was earned.
type UnlockedAchievement struct {
	ID         AchievementID `json:"id"`
	UnlockedAt time.Time     `json:"unlocked_at"`
}

// AchievementProgress holds the counters used to evaluate future unlocks.
// UniqueLocations is an ordered set of location labels (exact match).
type AchievementProgress struct {
	TotalReports      int64    `json:"total_reports"`
	ReportsWithPhotos int64    `json:"reports_with_photos"`
	UniqueLocations   []string `json:"unique_locations"`
}

// HasLocation reports whether the label was already recorded.
func (p AchievementProgress) HasLocation(label string) bool {
	for _, l := range p.UniqueLocations {
		if l == label {
			return true
		}
	}
	return false
}

// UserState is a snapshot of a user's gamification state.
// Storage adapters return deep copies; callers may mutate freely.
type UserState struct {
	UserID       UserID                `json:"user_id"`
	Points       int64                 `json:"points"`
	Level        Level                 `json:"level"`
	Achievements []UnlockedAchievement `json:"achievements"`
	Progress     AchievementProgress   `json:"achievement_progress"`
	Rank         int                   `json:"rank"`
	Badge        Badge                 `json:"badge"`
	Version      int64                 `json:"version"`
	Created      time.Time             `json:"created"`
	Updated      time.Time             `json:"updated"`
}

// NewUserState returns the zero gamification state for a fresh account.
func NewUserState(user UserID, now time.Time) UserState {
	return UserState{
		UserID:       user,
		Level:        LevelScout,
		Achievements: []UnlockedAchievement{},
		Progress:     AchievementProgress{UniqueLocations: []string{}},
		Created:      now,
		Updated:      now,
	}
}

// Clone returns a deep copy of the state.
func (s UserState) Clone() UserState {
	cp := s
	cp.Achievements = append(make([]UnlockedAchievement, 0, len(s.Achievements)), s.Achievements...)
	cp.Progress.UniqueLocations = append(make([]string, 0, len(s.Progress.UniqueLocations)), s.Progress.UniqueLocations...)
	return cp
}

// HasAchievement reports whether id is already unlocked.
func (s UserState) HasAchievement(id AchievementID) bool {
	for _, a := range s.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Standing is one row of a leaderboard refresh.
type Standing struct {
	UserID UserID `json:"user_id"`
	Points int64  `json:"points"`
	Level  Level  `json:"level"`
	Rank   int    `json:"rank"`
	Badge  Badge  `json:"badge"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, ErrPointsOverflow
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", ErrEmptyUserID
	}
	return UserID(strings.ToLower(s)), nil
}
