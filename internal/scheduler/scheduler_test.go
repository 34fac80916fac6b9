package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

type firing struct {
	chatID     int64
	generation uint64
}

func TestArmFiresAfterDuration(t *testing.T) {
	s := New()
	ch := make(chan firing, 1)
	s.Arm(7, 1, 10*time.Millisecond, func(chatID int64, generation uint64) {
		ch <- firing{chatID, generation}
	})
	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", s.Pending())
	}

	select {
	case f := <-ch:
		if f.chatID != 7 || f.generation != 1 {
			t.Fatalf("unexpected firing %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	if s.Cancel(7, 1) {
		t.Fatal("cancel after firing should report false")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := New()
	var calls atomic.Int32
	s.Arm(1, 3, 20*time.Millisecond, func(int64, uint64) { calls.Add(1) })

	if !s.Cancel(1, 3) {
		t.Fatal("expected cancel of armed entry to succeed")
	}
	if s.Cancel(1, 3) {
		t.Fatal("second cancel should be a no-op")
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("cancelled callback fired %d times", calls.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", s.Pending())
	}
}

func TestCancelWrongGenerationIsIgnored(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Arm(1, 2, 10*time.Millisecond, func(int64, uint64) { close(done) })

	if s.Cancel(1, 1) {
		t.Fatal("cancel for a stale generation should not touch the current entry")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("current generation should still fire")
	}
}

func TestArmNewGenerationSupersedesOld(t *testing.T) {
	s := New()
	fired := make(chan uint64, 2)
	s.Arm(5, 1, 15*time.Millisecond, func(_ int64, g uint64) { fired <- g })
	s.Arm(5, 2, 15*time.Millisecond, func(_ int64, g uint64) { fired <- g })

	select {
	case g := <-fired:
		if g != 2 {
			t.Fatalf("expected generation 2 to fire, got %d", g)
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case g := <-fired:
		t.Fatalf("superseded generation %d fired", g)
	case <-time.After(40 * time.Millisecond):
	}
}

func TestChatsAreIndependent(t *testing.T) {
	s := New()
	var calls atomic.Int32
	s.Arm(1, 1, 10*time.Millisecond, func(int64, uint64) { calls.Add(1) })
	s.Arm(2, 1, 10*time.Millisecond, func(int64, uint64) { calls.Add(1) })
	if s.Pending() != 2 {
		t.Fatalf("expected 2 pending entries, got %d", s.Pending())
	}
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 2 {
		t.Fatalf("expected both chats to fire, got %d", calls.Load())
	}
}

func TestStopCancelsEverything(t *testing.T) {
	s := New()
	var calls atomic.Int32
	for chat := int64(0); chat < 5; chat++ {
		s.Arm(chat, 1, 20*time.Millisecond, func(int64, uint64) { calls.Add(1) })
	}
	s.Stop()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no callbacks after Stop, got %d", calls.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", s.Pending())
	}
}
