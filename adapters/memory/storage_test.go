package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mangrovewatch/core"
)

func TestMemoryStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	st, err := s.UpdateState(ctx, "u", func(st *core.UserState) error {
		st.Points += 5
		return nil
	})
	if err != nil || st.Points != 5 || st.Version != 1 {
		t.Fatalf("got %+v %v", st, err)
	}

	if err := s.ApplyStandings(ctx, []core.Standing{{UserID: "u", Rank: 1, Badge: core.BadgeGold}}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetState(ctx, "u")
	if got.Rank != 1 || got.Badge != core.BadgeGold {
		t.Fatalf("standings not applied: %+v", got)
	}
}

func TestGetStateUnknownDoesNotCreate(t *testing.T) {
	s := New()
	st, err := s.GetState(context.Background(), "ghost")
	if err != nil || st.Level != core.LevelScout {
		t.Fatalf("got %+v %v", st, err)
	}
	all, _ := s.ListStates(context.Background())
	if len(all) != 0 {
		t.Fatalf("read created a record: %+v", all)
	}
}

func TestListStatesKeepsCreationOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []core.UserID{"c", "a", "b"} {
		if _, err := s.UpdateState(ctx, id, func(*core.UserState) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	all, _ := s.ListStates(ctx)
	if len(all) != 3 || all[0].UserID != "c" || all[1].UserID != "a" || all[2].UserID != "b" {
		t.Fatalf("unexpected order: %+v", all)
	}

	if err := s.DeleteState(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteState(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	all, _ = s.ListStates(ctx)
	if len(all) != 2 || all[1].UserID != "b" {
		t.Fatalf("unexpected order after delete: %+v", all)
	}
}

func TestUpdateStateFailureLeavesStateUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.UpdateState(ctx, "u", func(st *core.UserState) error { st.Points = 10; return nil })
	_, err := s.UpdateState(ctx, "u", func(st *core.UserState) error {
		st.Points = 999
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := s.GetState(ctx, "u")
	if st.Points != 10 {
		t.Fatalf("failed update leaked: %d", st.Points)
	}
}

func TestFailedFirstUpdateCreatesNoUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.UpdateState(ctx, "ghost", func(st *core.UserState) error {
		st.Points = 50
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	all, _ := s.ListStates(ctx)
	if len(all) != 0 {
		t.Fatalf("failed update listed a user: %+v", all)
	}
	if err := s.DeleteState(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// a later successful update lists the user once
	if _, err := s.UpdateState(ctx, "ghost", func(st *core.UserState) error { st.Points = 5; return nil }); err != nil {
		t.Fatal(err)
	}
	all, _ = s.ListStates(ctx)
	if len(all) != 1 || all[0].Points != 5 || all[0].Version != 1 {
		t.Fatalf("unexpected states: %+v", all)
	}
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateState(ctx, "u", func(st *core.UserState) error {
				st.Points++
				return nil
			})
		}()
	}
	wg.Wait()
	st, _ := s.GetState(ctx, "u")
	if st.Points != 50 || st.Version != 50 {
		t.Fatalf("lost updates: %+v", st)
	}
}
