package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventReportSubmitted      EventType = "report_submitted"
	EventPointsAdded          EventType = "points_added"
	EventLevelUp              EventType = "level_up"
	EventAchievementUnlocked  EventType = "achievement_unlocked"
	EventBadgeAwarded         EventType = "badge_awarded"
	EventLeaderboardRefreshed EventType = "leaderboard_refreshed"
	EventReportStatusChanged  EventType = "report_status_changed"
	EventUserDeleted          EventType = "user_deleted"
)

// EventTypes lists every event the engine publishes.
func EventTypes() []EventType {
	return []EventType{
		EventReportSubmitted,
		EventPointsAdded,
		EventLevelUp,
		EventAchievementUnlocked,
		EventBadgeAwarded,
		EventLeaderboardRefreshed,
		EventReportStatusChanged,
		EventUserDeleted,
	}
}

// Event represents an immutable domain event.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id,omitempty"`
	ReportID    string         `json:"report_id,omitempty"`
	Delta       int64          `json:"delta,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Level       Level          `json:"level,omitempty"`
	Achievement AchievementID  `json:"achievement,omitempty"`
	Badge       Badge          `json:"badge,omitempty"`
	Rank        int            `json:"rank,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func newEvent(typ EventType, user UserID) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC(), UserID: user}
}

func NewReportSubmitted(user UserID, r Report, points int64) Event {
	ev := newEvent(EventReportSubmitted, user)
	ev.ReportID = r.ID
	ev.Delta = points
	ev.Metadata = map[string]any{
		"address":  r.Location.Address,
		"severity": string(r.Severity),
		"photos":   len(r.Images),
	}
	return ev
}

func NewPointsAdded(user UserID, delta, total int64, reason string) Event {
	ev := newEvent(EventPointsAdded, user)
	ev.Delta = delta
	ev.Total = total
	if reason != "" {
		ev.Metadata = map[string]any{"reason": reason}
	}
	return ev
}

func NewLevelUp(user UserID, from, to Level) Event {
	ev := newEvent(EventLevelUp, user)
	ev.Level = to
	ev.Metadata = map[string]any{"previous_level": string(from)}
	return ev
}

func NewAchievementUnlocked(user UserID, def AchievementDefinition) Event {
	ev := newEvent(EventAchievementUnlocked, user)
	ev.Achievement = def.ID
	ev.Delta = def.Points
	ev.Metadata = map[string]any{"achievement": string(def.ID), "title": def.Title}
	return ev
}

func NewBadgeAwarded(user UserID, badge Badge, rank int) Event {
	ev := newEvent(EventBadgeAwarded, user)
	ev.Badge = badge
	ev.Rank = rank
	return ev
}

func NewLeaderboardRefreshed(version int64, users int) Event {
	ev := newEvent(EventLeaderboardRefreshed, "")
	ev.Metadata = map[string]any{"version": version, "users": users}
	return ev
}

func NewReportStatusChanged(user UserID, reportID string, from, to ReportStatus) Event {
	ev := newEvent(EventReportStatusChanged, user)
	ev.ReportID = reportID
	ev.Metadata = map[string]any{"from": string(from), "to": string(to)}
	return ev
}

// NewUserDeleted announces that a user's gamification state was erased.
func NewUserDeleted(user UserID) Event {
	return newEvent(EventUserDeleted, user)
}
