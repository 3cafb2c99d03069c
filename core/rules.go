package core

import "time"

// Rules bundles the tables the engine evaluates against.
type Rules struct {
	Points PointsTable
	Levels LevelTable
}

// DefaultRules returns the production point and level tables.
func DefaultRules() Rules {
	return Rules{Points: DefaultPointsTable(), Levels: DefaultLevelTable}
}

// Outcome describes everything a single report submission changed.
type Outcome struct {
	State         UserState               `json:"state"`
	PreviousLevel Level                   `json:"previous_level"`
	ReportPoints  int64                   `json:"report_points"`
	BonusPoints   int64                   `json:"bonus_points"`
	Unlocked      []AchievementDefinition `json:"unlocked"`
}

// LeveledUp reports whether the submission moved the user to a new tier.
func (o Outcome) LeveledUp() bool { return o.State.Level != o.PreviousLevel }

// ApplyReport runs the full submission pipeline as explicit sequential
// steps: score the report, add it, resolve the level, evaluate achievements
// (which credits any bonus and resolves the level again). It fails with
// ErrPointsOverflow when the report or its bonus would overflow the total.
func (rs Rules) ApplyReport(state UserState, r Report, now time.Time) (Outcome, error) {
	out := Outcome{PreviousLevel: rs.Levels.Resolve(state.Points)}

	next := state.Clone()
	out.ReportPoints = rs.Points.Compute(r)
	total, err := AddSafe(next.Points, out.ReportPoints)
	if err != nil {
		return Outcome{}, err
	}
	next.Points = total
	next.Level = rs.Levels.Resolve(next.Points)

	before := next.Points
	next, out.Unlocked = rs.EvaluateAchievements(next, r, now)
	var bonus int64
	for _, def := range out.Unlocked {
		bonus += def.Points
	}
	if _, err := AddSafe(before, bonus); err != nil {
		return Outcome{}, err
	}
	out.BonusPoints = next.Points - before

	next.Updated = now
	out.State = next
	return out, nil
}

// ApplyReport runs the pipeline with DefaultRules.
func ApplyReport(state UserState, r Report, now time.Time) (Outcome, error) {
	return DefaultRules().ApplyReport(state, r, now)
}

// AdjustPoints applies an administrative correction. The result never
// drops below zero; achievements are left untouched.
func (rs Rules) AdjustPoints(state UserState, delta int64, now time.Time) (UserState, error) {
	next := state.Clone()
	total, err := AddSafe(next.Points, delta)
	if err != nil {
		return state, err
	}
	if total < 0 {
		total = 0
	}
	next.Points = total
	next.Level = rs.Levels.Resolve(total)
	next.Updated = now
	return next, nil
}
