package leaderboard

import (
	"sort"
	"strings"
	"time"

	"mangrovewatch/core"
)

// StarThreshold is the minimum points for a star badge outside the podium.
const StarThreshold = 500

// Board abstracts read access to a ranking.
type Board interface {
	TopN(n int) []core.Standing
	Get(user core.UserID) (core.Standing, bool)
}

// BadgeFor derives the decorative badge for a rank and points total.
func BadgeFor(rank int, points int64) core.Badge {
	switch rank {
	case 1:
		return core.BadgeGold
	case 2:
		return core.BadgeSilver
	case 3:
		return core.BadgeBronze
	}
	if points >= StarThreshold {
		return core.BadgeStar
	}
	return core.BadgeNone
}

// Rank orders states by points descending and assigns 1-based ranks and
// badges. Equal points keep their input order.
func Rank(states []core.UserState) []core.Standing {
	ordered := make([]core.UserState, len(states))
	copy(ordered, states)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Points > ordered[j].Points })

	out := make([]core.Standing, len(ordered))
	for i, st := range ordered {
		rank := i + 1
		out[i] = core.Standing{
			UserID: st.UserID,
			Points: st.Points,
			Level:  st.Level,
			Rank:   rank,
			Badge:  BadgeFor(rank, st.Points),
		}
	}
	return out
}

// Regional ranks only users who reported from a location whose label
// contains region (case-insensitive), truncated to n entries when n > 0.
func Regional(states []core.UserState, region string, n int) []core.Standing {
	needle := strings.ToLower(strings.TrimSpace(region))
	var matched []core.UserState
	for _, st := range states {
		for _, loc := range st.Progress.UniqueLocations {
			if strings.Contains(strings.ToLower(loc), needle) {
				matched = append(matched, st)
				break
			}
		}
	}
	ranked := Rank(matched)
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Snapshot is an immutable, versioned leaderboard result.
type Snapshot struct {
	Version     int64           `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Standings   []core.Standing `json:"standings"`
	byUser      map[core.UserID]int
}

// NewSnapshot ranks states and stamps the result.
func NewSnapshot(version int64, at time.Time, states []core.UserState) *Snapshot {
	standings := Rank(states)
	idx := make(map[core.UserID]int, len(standings))
	for i, s := range standings {
		idx[s.UserID] = i
	}
	return &Snapshot{Version: version, GeneratedAt: at, Standings: standings, byUser: idx}
}

func (s *Snapshot) TopN(n int) []core.Standing {
	if s == nil || n <= 0 {
		return nil
	}
	if n > len(s.Standings) {
		n = len(s.Standings)
	}
	out := make([]core.Standing, n)
	copy(out, s.Standings[:n])
	return out
}

func (s *Snapshot) Get(user core.UserID) (core.Standing, bool) {
	if s == nil {
		return core.Standing{}, false
	}
	i, ok := s.byUser[user]
	if !ok {
		return core.Standing{}, false
	}
	return s.Standings[i], true
}

var _ Board = (*Snapshot)(nil)
