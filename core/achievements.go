package core

import (
	"math"
	"time"
)

// AchievementID identifies a one-time unlock.
type AchievementID string

const (
	AchievementFirstReport   AchievementID = "FIRST_REPORT"
	AchievementPhotoEvidence AchievementID = "PHOTO_EVIDENCE"
	AchievementLocationScout AchievementID = "LOCATION_SCOUT"
	AchievementCommunityHero AchievementID = "COMMUNITY_HERO"
)

// AchievementDefinition is static, process-wide configuration.
type AchievementDefinition struct {
	ID          AchievementID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Points      int64         `json:"points"`
}

type achievementRule struct {
	def      AchievementDefinition
	unlocked func(UserState) bool
}

// catalog is evaluated in order; the order is part of the contract.
var catalog = []achievementRule{
	{
		def: AchievementDefinition{
			ID:          AchievementFirstReport,
			Title:       "First Report",
			Description: "Submit your first damage report",
			Icon:        "Star",
			Points:      50,
		},
		unlocked: func(s UserState) bool { return s.Progress.TotalReports == 1 },
	},
	{
		def: AchievementDefinition{
			ID:          AchievementPhotoEvidence,
			Title:       "Photo Evidence",
			Description: "Submit 10 reports with photo evidence",
			Icon:        "Award",
			Points:      100,
		},
		unlocked: func(s UserState) bool { return s.Progress.ReportsWithPhotos >= 10 },
	},
	{
		def: AchievementDefinition{
			ID:          AchievementLocationScout,
			Title:       "Location Scout",
			Description: "Report damage in 5 different locations",
			Icon:        "TreePine",
			Points:      150,
		},
		unlocked: func(s UserState) bool { return len(s.Progress.UniqueLocations) >= 5 },
	},
	{
		def: AchievementDefinition{
			ID:          AchievementCommunityHero,
			Title:       "Community Hero",
			Description: "Reach 1000 protection points",
			Icon:        "Shield",
			Points:      200,
		},
		unlocked: func(s UserState) bool { return s.Points >= 1000 },
	},
}

// Achievements returns a copy of the catalog in evaluation order.
func Achievements() []AchievementDefinition {
	out := make([]AchievementDefinition, len(catalog))
	for i, r := range catalog {
		out[i] = r.def
	}
	return out
}

// LookupAchievement returns the definition for id.
func LookupAchievement(id AchievementID) (AchievementDefinition, bool) {
	for _, r := range catalog {
		if r.def.ID == id {
			return r.def, true
		}
	}
	return AchievementDefinition{}, false
}

// RecordReport updates the progress counters for one submitted report.
func RecordReport(p *AchievementProgress, r Report) {
	p.TotalReports++
	if r.HasImages() {
		p.ReportsWithPhotos++
	}
	if !p.HasLocation(r.Location.Address) {
		p.UniqueLocations = append(p.UniqueLocations, r.Location.Address)
	}
}

// CheckUnlocks lists achievements whose condition holds for state but
// which state does not hold yet. It does not modify state.
func CheckUnlocks(state UserState) []AchievementDefinition {
	var out []AchievementDefinition
	for _, r := range catalog {
		if state.HasAchievement(r.def.ID) {
			continue
		}
		if r.unlocked(state) {
			out = append(out, r.def)
		}
	}
	return out
}

// EvaluateAchievements records r against the progress counters, unlocks
// every achievement whose threshold is now met and credits their bonus as
// a single points delta. COMMUNITY_HERO sees state.Points as passed in;
// bonuses granted here do not chain into further unlocks.
func (rs Rules) EvaluateAchievements(state UserState, r Report, now time.Time) (UserState, []AchievementDefinition) {
	next := state.Clone()
	RecordReport(&next.Progress, r)

	unlocked := CheckUnlocks(next)
	if len(unlocked) == 0 {
		return next, nil
	}

	var bonus int64
	for _, def := range unlocked {
		next.Achievements = append(next.Achievements, UnlockedAchievement{ID: def.ID, UnlockedAt: now})
		bonus += def.Points
	}
	total, err := AddSafe(next.Points, bonus)
	if err != nil {
		// saturate; ApplyReport surfaces the overflow
		total = math.MaxInt64
	}
	next.Points = total
	next.Level = rs.Levels.Resolve(next.Points)
	return next, unlocked
}

// EvaluateAchievements runs the evaluator with DefaultRules.
func EvaluateAchievements(state UserState, r Report, now time.Time) (UserState, []AchievementDefinition) {
	return DefaultRules().EvaluateAchievements(state, r, now)
}
