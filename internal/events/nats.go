// Package events publishes round lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultSubjectPrefix = "guess.rounds"

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a game.Notifier that forwards every event to
// <prefix>.<chatID>.<kind>.
type Publisher struct {
	conn   conn
	prefix string
	nc     *nats.Conn
}

// Connect dials url and returns a publisher. Reconnects are handled by the
// NATS client; publishes during an outage are buffered by it.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("sukunaguessing"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := newPublisher(nc, prefix)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: c, prefix: prefix}
}

// Message is the JSON body of a published event. Answer is omitted while
// the round is still open.
type Message struct {
	Type        game.EventType `json:"type"`
	ChatID      int64          `json:"chatId"`
	RoundID     string         `json:"roundId"`
	Generation  uint64         `json:"generation"`
	InitiatorID int64          `json:"initiatorId"`
	PlayerID    int64          `json:"playerId,omitempty"`
	Answer      string         `json:"answer,omitempty"`
	ImageRef    string         `json:"imageRef,omitempty"`
	Guess       string         `json:"guess,omitempty"`
	Reward      int            `json:"reward,omitempty"`
	NewStreak   int            `json:"newStreak"`
	Deadline    time.Time      `json:"deadline"`
	At          time.Time      `json:"at"`
}

func NewMessage(ev game.Event) Message {
	m := Message{
		Type:        ev.Type,
		ChatID:      ev.ChatID,
		RoundID:     ev.Round.ID,
		Generation:  ev.Round.Generation,
		InitiatorID: ev.Round.InitiatorID,
		PlayerID:    ev.PlayerID,
		ImageRef:    ev.Round.Character.ImageRef,
		Guess:       ev.Guess,
		Reward:      ev.Reward,
		NewStreak:   ev.NewStreak,
		Deadline:    ev.Round.Deadline,
		At:          ev.At,
	}
	if ev.Type != game.EventRoundStarted {
		m.Answer = ev.Round.Character.Name
	}
	return m
}

// Subject returns the subject an event is published on, e.g.
// guess.rounds.42.solved.
func Subject(prefix string, ev game.Event) string {
	kind := strings.TrimPrefix(string(ev.Type), "round.")
	return prefix + "." + strconv.FormatInt(ev.ChatID, 10) + "." + kind
}

// Notify implements game.Notifier.
func (p *Publisher) Notify(_ context.Context, ev game.Event) error {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := Subject(p.prefix, ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
