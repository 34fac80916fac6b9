package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func testEvent(t game.EventType) game.Event {
	return game.Event{
		Type:   t,
		ChatID: -1001,
		Round: game.Round{
			ID:          "r1",
			Generation:  4,
			ChatID:      -1001,
			InitiatorID: 7,
			Character:   catalog.Character{Name: "Sukuna", ImageRef: "sukuna.jpg"},
		},
		PlayerID: 7,
	}
}

func TestSubject(t *testing.T) {
	got := Subject("guess.rounds", testEvent(game.EventRoundSolved))
	if got != "guess.rounds.-1001.solved" {
		t.Fatalf("unexpected subject %s", got)
	}
}

func TestNewPublisherDefaultsPrefix(t *testing.T) {
	p := newPublisher(&fakeConn{}, " .. ")
	if p.prefix != DefaultSubjectPrefix {
		t.Fatalf("expected default prefix, got %q", p.prefix)
	}
	p = newPublisher(&fakeConn{}, "bot.events.")
	if p.prefix != "bot.events" {
		t.Fatalf("expected trimmed prefix, got %q", p.prefix)
	}
}

func TestNotifyPublishesJSON(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "")

	if err := p.Notify(context.Background(), testEvent(game.EventRoundStarted)); err != nil {
		t.Fatalf("notify started: %v", err)
	}
	ev := testEvent(game.EventRoundSolved)
	ev.Reward = 20
	ev.NewStreak = 1
	if err := p.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify solved: %v", err)
	}
	if len(fc.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(fc.msgs))
	}

	var started Message
	if err := json.Unmarshal(fc.msgs[0].data, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Answer != "" {
		t.Fatalf("started events must not reveal the answer, got %q", started.Answer)
	}
	if fc.msgs[0].subject != "guess.rounds.-1001.started" {
		t.Fatalf("unexpected subject %s", fc.msgs[0].subject)
	}

	var solved Message
	if err := json.Unmarshal(fc.msgs[1].data, &solved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if solved.Answer != "Sukuna" || solved.Reward != 20 || solved.Generation != 4 {
		t.Fatalf("unexpected message %+v", solved)
	}
}

func TestNotifyWrapsPublishError(t *testing.T) {
	boom := errors.New("no responders")
	p := newPublisher(&fakeConn{err: boom}, "x")
	if err := p.Notify(context.Background(), testEvent(game.EventRoundTimeout)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	if err := newPublisher(&fakeConn{}, "").Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
