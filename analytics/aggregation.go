package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"mangrovewatch/core"
)

// AggregationPeriod represents different time periods for aggregation
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodMonthly AggregationPeriod = "monthly"
)

// AggregatedData is one period's rollup of community activity.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"` // "2026-01-01" daily, "2026-01" monthly
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`

	ActiveUsers          int   `json:"active_users"`
	Reports              int64 `json:"reports"`
	PointsAwarded        int64 `json:"points_awarded"`
	LevelUps             int64 `json:"level_ups"`
	BadgesAwarded        int64 `json:"badges_awarded"`
	AchievementsUnlocked int64 `json:"achievements_unlocked"`

	// Lifetime breakdowns as of CreatedAt.
	AchievementsByType map[core.AchievementID]int64 `json:"achievements_by_type,omitempty"`
	LevelsReached      map[core.Level]int64         `json:"levels_reached,omitempty"`
	BadgesByType       map[core.Badge]int64         `json:"badges_by_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Rollup aggregates the period containing at.
func (cm *CommunityMetrics) Rollup(period AggregationPeriod, at time.Time) (*AggregatedData, error) {
	at = at.UTC()
	var start, end time.Time
	var key string
	switch period {
	case PeriodDaily:
		start = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
		key = dayKey(start)
	case PeriodMonthly:
		start = time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		key = monthKey(start)
	default:
		return nil, fmt.Errorf("unknown aggregation period %q", period)
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data := &AggregatedData{
		Period:             period,
		Key:                key,
		StartTime:          start,
		EndTime:            end,
		CreatedAt:          time.Now().UTC(),
		AchievementsByType: make(map[core.AchievementID]int64, len(cm.achievementsByType)),
		LevelsReached:      make(map[core.Level]int64, len(cm.levelsReached)),
		BadgesByType:       make(map[core.Badge]int64, len(cm.badgesByType)),
	}
	if period == PeriodDaily {
		data.ActiveUsers = len(cm.dailyActive[key])
	} else {
		data.ActiveUsers = len(cm.monthlyActive[key])
	}
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		k := dayKey(day)
		data.Reports += cm.reportsByDay[k]
		data.PointsAwarded += cm.pointsByDay[k]
		data.LevelUps += cm.levelUpsByDay[k]
		data.BadgesAwarded += cm.badgesByDay[k]
		data.AchievementsUnlocked += cm.unlocksByDay[k]
	}
	for k, v := range cm.achievementsByType {
		data.AchievementsByType[k] = v
	}
	for k, v := range cm.levelsReached {
		data.LevelsReached[k] = v
	}
	for k, v := range cm.badgesByType {
		data.BadgesByType[k] = v
	}
	return data, nil
}

// ExportData renders the rollup for period at as indented JSON.
func (cm *CommunityMetrics) ExportData(period AggregationPeriod, at time.Time) ([]byte, error) {
	data, err := cm.Rollup(period, at)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}
