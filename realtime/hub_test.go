package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"mangrovewatch/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1, nil)

	ev := core.NewPointsAdded("bob", 10, 10, "report")
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != "bob" || received.Type != core.EventPointsAdded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}
}

func TestHubUserFilter(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(4, ForUser("alice"))

	h.Broadcast(context.Background(), core.NewPointsAdded("bob", 10, 10, ""))
	h.Broadcast(context.Background(), core.NewLevelUp("alice", core.LevelScout, core.LevelGuardian))
	h.Broadcast(context.Background(), core.NewLeaderboardRefreshed(3, 12))

	if got := len(ch); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if ev := <-ch; ev.Type != core.EventLevelUp {
		t.Fatalf("unexpected first event %s", ev.Type)
	}
}

func TestHubTypeFilterAndDrops(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1, OfTypes(core.EventAchievementUnlocked))
	def, _ := core.LookupAchievement(core.AchievementFirstReport)

	h.Broadcast(context.Background(), core.NewPointsAdded("a", 1, 1, ""))
	h.Broadcast(context.Background(), core.NewAchievementUnlocked("a", def))
	h.Broadcast(context.Background(), core.NewAchievementUnlocked("b", def))

	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(ch))
	}
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewBadgeAwarded("alice", core.BadgeGold, 1)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Badge != core.BadgeGold || out.Rank != 1 {
		t.Fatalf("unexpected badge: %s", out.Badge)
	}
}
