package core

import "time"

// NextLevel is the upcoming milestone for a user.
type NextLevel struct {
	Name         Level `json:"name"`
	MinPoints    int64 `json:"min_points"`
	PointsNeeded int64 `json:"points_needed"`
}

// AchievementStatus is a catalog entry annotated for one user.
type AchievementStatus struct {
	AchievementDefinition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Progress is the read-side view used by profile and dashboard screens.
type Progress struct {
	UserID       UserID              `json:"user_id"`
	Points       int64               `json:"points"`
	Level        Level               `json:"level"`
	Rank         int                 `json:"rank"`
	Badge        Badge               `json:"badge"`
	Reports      int64               `json:"reports"`
	LevelPercent float64             `json:"level_progress"`
	Next         *NextLevel          `json:"next_level"`
	Achievements []AchievementStatus `json:"achievements"`
}

// BuildProgress derives the progress view from state. LevelPercent is
// points relative to the next threshold, 100 at the top tier.
func (rs Rules) BuildProgress(state UserState) Progress {
	p := Progress{
		UserID:       state.UserID,
		Points:       state.Points,
		Level:        rs.Levels.Resolve(state.Points),
		Rank:         state.Rank,
		Badge:        state.Badge,
		Reports:      state.Progress.TotalReports,
		LevelPercent: 100,
	}
	if tier, ok := rs.Levels.Next(state.Points); ok {
		p.Next = &NextLevel{Name: tier.Level, MinPoints: tier.MinPoints, PointsNeeded: tier.MinPoints - state.Points}
		p.LevelPercent = float64(state.Points) / float64(tier.MinPoints) * 100
	}

	unlockedAt := make(map[AchievementID]time.Time, len(state.Achievements))
	for _, a := range state.Achievements {
		unlockedAt[a.ID] = a.UnlockedAt
	}
	for _, def := range Achievements() {
		st := AchievementStatus{AchievementDefinition: def}
		if at, ok := unlockedAt[def.ID]; ok {
			at := at
			st.Unlocked = true
			st.UnlockedAt = &at
		}
		p.Achievements = append(p.Achievements, st)
	}
	return p
}
