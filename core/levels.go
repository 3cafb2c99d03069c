package core

import (
	"errors"
	"fmt"
)

// Level is a named tier derived purely from cumulative points.
type Level string

const (
	LevelScout     Level = "Scout"
	LevelGuardian  Level = "Guardian"
	LevelProtector Level = "Protector"
	LevelChampion  Level = "Champion"
)

var ErrUnknownLevel = errors.New("unknown level")

// LevelTier pairs a level with the minimum points needed to hold it.
type LevelTier struct {
	Level     Level `json:"level"`
	MinPoints int64 `json:"min_points"`
}

// LevelTable is an ascending list of tiers. The same table drives both the
// current level and the next-level milestone.
type LevelTable []LevelTier

// DefaultLevelTable is the canonical threshold table:
//
//	Scout      >=    0
//	Guardian   >=  100
//	Protector  >=  500
//	Champion   >= 1000
var DefaultLevelTable = LevelTable{
	{Level: LevelScout, MinPoints: 0},
	{Level: LevelGuardian, MinPoints: 100},
	{Level: LevelProtector, MinPoints: 500},
	{Level: LevelChampion, MinPoints: 1000},
}

// Validate ensures the table starts at zero and thresholds strictly increase.
func (t LevelTable) Validate() error {
	if len(t) == 0 {
		return errors.New("level table is empty")
	}
	if t[0].MinPoints != 0 {
		return fmt.Errorf("first level %s must start at 0 points", t[0].Level)
	}
	seen := make(map[Level]struct{}, len(t))
	for i, tier := range t {
		if tier.Level == "" {
			return fmt.Errorf("level %d has no name", i)
		}
		if _, dup := seen[tier.Level]; dup {
			return fmt.Errorf("duplicate level %s", tier.Level)
		}
		seen[tier.Level] = struct{}{}
		if i > 0 && tier.MinPoints <= t[i-1].MinPoints {
			return fmt.Errorf("level %s threshold %d must exceed %d", tier.Level, tier.MinPoints, t[i-1].MinPoints)
		}
	}
	return nil
}

// Resolve maps cumulative points to the highest tier reached.
func (t LevelTable) Resolve(points int64) Level {
	if len(t) == 0 {
		return LevelScout
	}
	lvl := t[0].Level
	for _, tier := range t[1:] {
		if points < tier.MinPoints {
			break
		}
		lvl = tier.Level
	}
	return lvl
}

// Index returns the position of level in the table, or -1.
func (t LevelTable) Index(level Level) int {
	for i, tier := range t {
		if tier.Level == level {
			return i
		}
	}
	return -1
}

// Next returns the first tier above points, if any.
func (t LevelTable) Next(points int64) (LevelTier, bool) {
	for _, tier := range t {
		if tier.MinPoints > points {
			return tier, true
		}
	}
	return LevelTier{}, false
}

// Parse looks up a level by name.
func (t LevelTable) Parse(name string) (Level, error) {
	for _, tier := range t {
		if string(tier.Level) == name {
			return tier.Level, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}

// ResolveLevel maps points onto DefaultLevelTable.
func ResolveLevel(points int64) Level { return DefaultLevelTable.Resolve(points) }

// ParseLevel looks up a level name in DefaultLevelTable.
func ParseLevel(name string) (Level, error) { return DefaultLevelTable.Parse(name) }
