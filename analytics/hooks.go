package analytics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"mangrovewatch/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(ctx context.Context, e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(ctx, e)
	}
}

// StateLister is the read side of storage used to warm the counters.
type StateLister interface {
	ListStates(ctx context.Context) ([]core.UserState, error)
}

// CommunityStats is the headline block shown on the community page.
type CommunityStats struct {
	ActiveMembers    int   `json:"active_members"`
	ReportsThisMonth int64 `json:"reports_this_month"`
	AreasProtected   int   `json:"areas_protected"`
	ImpactScore      int   `json:"impact_score"`
	TotalReports     int64 `json:"total_reports"`
	ResolvedReports  int64 `json:"resolved_reports"`
}

// CommunityMetrics aggregates engine events into community statistics.
type CommunityMetrics struct {
	mu sync.RWMutex

	members map[core.UserID]struct{}
	// areas maps each reported address to the members who reported it.
	areas map[string]map[core.UserID]struct{}
	// Report totals are lifetime figures and survive member deletion.
	total    int64
	resolved int64
	rejected int64

	userImpact map[core.UserID]*impact

	dailyActive   map[string]map[core.UserID]struct{}
	monthlyActive map[string]map[core.UserID]struct{}
	reportsByDay  map[string]int64
	pointsByDay   map[string]int64
	levelUpsByDay map[string]int64
	badgesByDay   map[string]int64
	unlocksByDay  map[string]int64

	achievementsByType map[core.AchievementID]int64
	levelsReached      map[core.Level]int64
	badgesByType       map[core.Badge]int64
}

type impact struct {
	reports  int64
	resolved int64
}

func NewCommunityMetrics() *CommunityMetrics {
	return &CommunityMetrics{
		members:            make(map[core.UserID]struct{}),
		areas:              make(map[string]map[core.UserID]struct{}),
		userImpact:         make(map[core.UserID]*impact),
		dailyActive:        make(map[string]map[core.UserID]struct{}),
		monthlyActive:      make(map[string]map[core.UserID]struct{}),
		reportsByDay:       make(map[string]int64),
		pointsByDay:        make(map[string]int64),
		levelUpsByDay:      make(map[string]int64),
		badgesByDay:        make(map[string]int64),
		unlocksByDay:       make(map[string]int64),
		achievementsByType: make(map[core.AchievementID]int64),
		levelsReached:      make(map[core.Level]int64),
		badgesByType:       make(map[core.Badge]int64),
	}
}

// Warm seeds member, area and report totals from stored states so a
// restarted process does not report an empty community. Per-day series
// only cover events seen since startup.
func (cm *CommunityMetrics) Warm(ctx context.Context, states StateLister) error {
	all, err := states.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("warm community metrics: %w", err)
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, st := range all {
		if st.Progress.TotalReports == 0 {
			continue
		}
		if _, seen := cm.members[st.UserID]; !seen {
			cm.total += st.Progress.TotalReports
			cm.impactFor(st.UserID).reports += st.Progress.TotalReports
		}
		cm.members[st.UserID] = struct{}{}
		for _, loc := range st.Progress.UniqueLocations {
			cm.addArea(loc, st.UserID)
		}
	}
	return nil
}

func (cm *CommunityMetrics) impactFor(user core.UserID) *impact {
	im := cm.userImpact[user]
	if im == nil {
		im = &impact{}
		cm.userImpact[user] = im
	}
	return im
}

func (cm *CommunityMetrics) OnEvent(_ context.Context, e core.Event) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	day := dayKey(e.Time)
	if e.UserID != "" && e.Type != core.EventUserDeleted {
		cm.trackActive(e.UserID, day, monthKey(e.Time))
	}

	switch e.Type {
	case core.EventReportSubmitted:
		cm.members[e.UserID] = struct{}{}
		cm.total++
		cm.impactFor(e.UserID).reports++
		cm.reportsByDay[day]++
		if addr, ok := e.Metadata["address"].(string); ok && addr != "" {
			cm.addArea(addr, e.UserID)
		}
	case core.EventPointsAdded:
		// corrections are not awarded points
		if e.Delta > 0 {
			cm.pointsByDay[day] += e.Delta
		}
	case core.EventLevelUp:
		cm.levelUpsByDay[day]++
		cm.levelsReached[e.Level]++
	case core.EventBadgeAwarded:
		cm.badgesByDay[day]++
		cm.badgesByType[e.Badge]++
	case core.EventAchievementUnlocked:
		cm.unlocksByDay[day]++
		cm.achievementsByType[e.Achievement]++
	case core.EventUserDeleted:
		cm.forget(e.UserID)
	case core.EventReportStatusChanged:
		switch e.Metadata["to"] {
		case string(core.StatusResolved):
			cm.resolved++
			cm.impactFor(e.UserID).resolved++
		case string(core.StatusRejected):
			cm.rejected++
		}
	}
}

func (cm *CommunityMetrics) addArea(addr string, user core.UserID) {
	if cm.areas[addr] == nil {
		cm.areas[addr] = make(map[core.UserID]struct{})
	}
	cm.areas[addr][user] = struct{}{}
}

// forget drops a deleted member and the areas only they reported.
func (cm *CommunityMetrics) forget(user core.UserID) {
	delete(cm.members, user)
	delete(cm.userImpact, user)
	for addr, users := range cm.areas {
		delete(users, user)
		if len(users) == 0 {
			delete(cm.areas, addr)
		}
	}
}

func (cm *CommunityMetrics) trackActive(user core.UserID, day, month string) {
	if cm.dailyActive[day] == nil {
		cm.dailyActive[day] = make(map[core.UserID]struct{})
	}
	cm.dailyActive[day][user] = struct{}{}
	if cm.monthlyActive[month] == nil {
		cm.monthlyActive[month] = make(map[core.UserID]struct{})
	}
	cm.monthlyActive[month][user] = struct{}{}
}

// Stats returns the community headline numbers as of now.
func (cm *CommunityMetrics) Stats(now time.Time) CommunityStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var thisMonth int64
	month := monthKey(now)
	for day, n := range cm.reportsByDay {
		if day[:7] == month {
			thisMonth += n
		}
	}
	return CommunityStats{
		ActiveMembers:    len(cm.members),
		ReportsThisMonth: thisMonth,
		AreasProtected:   len(cm.areas),
		ImpactScore:      impactScore(cm.resolved, cm.total),
		TotalReports:     cm.total,
		ResolvedReports:  cm.resolved,
	}
}

// Impact summarises one user's reports. Score is the resolved share,
// 0 to 100.
type Impact struct {
	Reports  int64 `json:"reports_count"`
	Resolved int64 `json:"resolved_reports"`
	Score    int   `json:"impact_score"`
}

// UserImpact returns the report and resolution counts for user.
func (cm *CommunityMetrics) UserImpact(user core.UserID) Impact {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	im := cm.userImpact[user]
	if im == nil {
		return Impact{}
	}
	return Impact{Reports: im.reports, Resolved: im.resolved, Score: impactScore(im.resolved, im.reports)}
}

// AchievementsByType returns unlock counts per achievement.
func (cm *CommunityMetrics) AchievementsByType() map[core.AchievementID]int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make(map[core.AchievementID]int64, len(cm.achievementsByType))
	for k, v := range cm.achievementsByType {
		out[k] = v
	}
	return out
}

// PointsAwardedOn returns points awarded on the given UTC day.
func (cm *CommunityMetrics) PointsAwardedOn(day time.Time) int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.pointsByDay[dayKey(day)]
}

func impactScore(resolved, total int64) int {
	if total <= 0 {
		return 0
	}
	score := int(math.Round(float64(resolved) / float64(total) * 100))
	if score > 100 {
		return 100
	}
	return score
}

// Helper functions
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
