package player

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestGetOrCreateCreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())

	p, err := repo.GetOrCreate(ctx, 42, "Alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if p.PlayerID != 42 || p.DisplayName != "Alice" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.Coins != 0 || p.CurrentStreak != 0 || p.GamesPlayed != 0 {
		t.Fatalf("expected zeroed counters, got %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be stamped")
	}

	again, err := repo.GetOrCreate(ctx, 42, "Someone Else")
	if err != nil {
		t.Fatalf("get existing: %v", err)
	}
	if again.DisplayName != "Alice" {
		t.Fatalf("existing profile should keep its name, got %q", again.DisplayName)
	}
}

func TestGetOrCreateFallsBackToDefaultName(t *testing.T) {
	repo := NewRepository(NewMemoryStore())
	p, err := repo.GetOrCreate(context.Background(), 7, "  ")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if p.DisplayName != "player 7" {
		t.Fatalf("expected default name, got %q", p.DisplayName)
	}
}

func TestUpdateStampsLastPlayed(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	p, _ := repo.GetOrCreate(ctx, 1, "Bob")
	p.Coins = 55

	updated, err := repo.Update(ctx, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.LastPlayedAt.IsZero() {
		t.Fatal("expected LastPlayedAt to be stamped")
	}
	stored, _ := repo.GetOrCreate(ctx, 1, "")
	if stored.Coins != 55 {
		t.Fatalf("expected 55 coins persisted, got %d", stored.Coins)
	}
}

func TestMutateFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	if _, err := repo.GetOrCreate(ctx, 1, "Bob"); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	_, err := repo.Mutate(ctx, 1, "", func(p *Profile) error {
		p.Coins = 1000
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	p, _ := repo.GetOrCreate(ctx, 1, "")
	if p.Coins != 0 {
		t.Fatalf("failed mutation must not persist, got %d coins", p.Coins)
	}
}

func TestMutateSerializesConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Mutate(ctx, 9, "Carol", func(p *Profile) error {
				p.RecordCorrect(20)
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := repo.GetOrCreate(ctx, 9, "")
	if p.Coins != workers*20 {
		t.Fatalf("expected %d coins, got %d (lost update)", workers*20, p.Coins)
	}
	if p.CurrentStreak != workers || p.BestStreak != workers || p.CorrectCount != workers {
		t.Fatalf("unexpected counters %+v", p)
	}
	if len(repo.locks.locks) != 0 {
		t.Fatalf("expected lock set to drain, %d left", len(repo.locks.locks))
	}
}

func TestRecordCorrectAndReset(t *testing.T) {
	p := Profile{BestStreak: 3}
	p.RecordCorrect(20)
	p.RecordCorrect(20)
	if p.CurrentStreak != 2 || p.BestStreak != 3 || p.Coins != 40 {
		t.Fatalf("unexpected profile %+v", p)
	}
	p.RecordCorrect(20)
	p.RecordCorrect(200)
	if p.BestStreak != 4 {
		t.Fatalf("expected best streak 4, got %d", p.BestStreak)
	}
	p.ResetStreak()
	if p.CurrentStreak != 0 || p.BestStreak != 4 {
		t.Fatalf("reset must keep best streak, got %+v", p)
	}
}

func TestTopOrdersByCoinsThenInsertion(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore())
	coins := map[int64]int{3: 50, 1: 100, 2: 50, 4: 10}
	for _, id := range []int64{3, 1, 2, 4} {
		id := id
		if _, err := repo.Mutate(ctx, id, "", func(p *Profile) error {
			p.Coins = coins[id]
			return nil
		}); err != nil {
			t.Fatalf("mutate: %v", err)
		}
	}

	top, err := repo.Top(ctx, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []int64{1, 3, 2}
	if len(top) != len(want) {
		t.Fatalf("expected %d players, got %d", len(want), len(top))
	}
	for i, id := range want {
		if top[i].PlayerID != id {
			t.Fatalf("position %d: expected player %d, got %d", i, id, top[i].PlayerID)
		}
	}

	none, err := repo.Top(ctx, 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result for n=0, got %v %v", none, err)
	}
}
