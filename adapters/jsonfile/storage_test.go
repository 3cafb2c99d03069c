package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mangrovewatch/core"
)

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, id := range []core.UserID{"bob", "alice"} {
		if _, err := store.UpdateState(ctx, id, func(st *core.UserState) error {
			st.Points += 50
			return nil
		}); err != nil {
			t.Fatalf("update %s: %v", id, err)
		}
	}
	_, err = store.UpdateState(ctx, "alice", func(st *core.UserState) error {
		st.Achievements = append(st.Achievements, core.UnlockedAchievement{ID: core.AchievementFirstReport, UnlockedAt: time.Now().UTC()})
		st.Progress.UniqueLocations = append(st.Progress.UniqueLocations, "Kutch")
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.ApplyStandings(ctx, []core.Standing{{UserID: "alice", Rank: 1, Badge: core.BadgeGold}}); err != nil {
		t.Fatalf("standings: %v", err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	// reload
	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	state, err := reloaded.GetState(ctx, "alice")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Points != 50 || state.Version != 2 {
		t.Fatalf("expected 50 points at version 2, got %d/%d", state.Points, state.Version)
	}
	if !state.HasAchievement(core.AchievementFirstReport) || !state.Progress.HasLocation("Kutch") {
		t.Fatalf("achievement progress not persisted: %+v", state)
	}
	if state.Badge != core.BadgeGold || state.Rank != 1 {
		t.Fatalf("standing not persisted: %+v", state)
	}

	all, _ := reloaded.ListStates(ctx)
	if len(all) != 2 || all[0].UserID != "bob" {
		t.Fatalf("creation order lost: %+v", all)
	}
}

func TestStoreDelete(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "nested", "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := store.UpdateState(ctx, "u", func(*core.UserState) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteState(ctx, "u"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteState(ctx, "u"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreFailedUpdateKeepsState(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	boom := errors.New("boom")
	if _, err := store.UpdateState(ctx, "u", func(*core.UserState) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	all, _ := store.ListStates(ctx)
	if len(all) != 0 {
		t.Fatalf("failed update created a user: %+v", all)
	}
}

func TestNewRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}
