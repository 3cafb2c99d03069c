package core

import (
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeUserID("   "); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewUserState("u", time.Now())
	st.Achievements = append(st.Achievements, UnlockedAchievement{ID: AchievementFirstReport})
	st.Progress.UniqueLocations = append(st.Progress.UniqueLocations, "a")

	cp := st.Clone()
	cp.Achievements[0].ID = AchievementCommunityHero
	cp.Progress.UniqueLocations[0] = "b"

	if st.Achievements[0].ID != AchievementFirstReport || st.Progress.UniqueLocations[0] != "a" {
		t.Fatalf("clone shares memory with original: %+v", st)
	}
}

func TestBadgeEmoji(t *testing.T) {
	if BadgeGold.Emoji() != "🥇" || BadgeStar.Emoji() != "🌟" || BadgeNone.Emoji() != "" {
		t.Fatal("unexpected badge glyphs")
	}
}

func TestValidateTransition(t *testing.T) {
	ok := [][2]ReportStatus{
		{StatusPending, StatusInvestigating},
		{StatusPending, StatusRejected},
		{StatusInvestigating, StatusResolved},
	}
	for _, tr := range ok {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Fatalf("%s -> %s: %v", tr[0], tr[1], err)
		}
	}
	bad := [][2]ReportStatus{
		{StatusResolved, StatusPending},
		{StatusRejected, StatusInvestigating},
		{StatusInvestigating, StatusPending},
		{StatusPending, StatusPending},
	}
	for _, tr := range bad {
		if err := ValidateTransition(tr[0], tr[1]); err == nil {
			t.Fatalf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
}
