package game

import (
	"time"

	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
)

// Player identifies who is acting in a chat. Name is only used as the
// display name when a profile is created.
type Player struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Round is the single active challenge of one chat.
type Round struct {
	ID          string            `json:"id"`
	Generation  uint64            `json:"generation"`
	ChatID      int64             `json:"chatId"`
	Character   catalog.Character `json:"character"`
	InitiatorID int64             `json:"initiatorId"`
	StartedAt   time.Time         `json:"startedAt"`
	Deadline    time.Time         `json:"deadline"`
}

type GuessKind string

const (
	GuessCorrect   GuessKind = "correct"
	GuessIncorrect GuessKind = "incorrect"
	GuessIgnored   GuessKind = "ignored"
)

// IgnoreReason explains why a guess was not evaluated.
type IgnoreReason string

const (
	ReasonNoActiveRound       IgnoreReason = "no_active_round"
	ReasonUnauthorizedGuesser IgnoreReason = "unauthorized_guesser"
	ReasonEmptyGuess          IgnoreReason = "empty_guess"
)

// GuessResult is the outcome of SubmitGuess. Round is set whenever a round
// was evaluated; RoundEnded reports whether the guess closed it.
type GuessResult struct {
	Kind       GuessKind    `json:"kind"`
	Reward     int          `json:"reward,omitempty"`
	NewStreak  int          `json:"newStreak"`
	Reason     IgnoreReason `json:"reason,omitempty"`
	RoundEnded bool         `json:"roundEnded"`
	Round      *Round       `json:"round,omitempty"`
}

func ignored(reason IgnoreReason) GuessResult {
	return GuessResult{Kind: GuessIgnored, Reason: reason}
}

type EventType string

const (
	EventRoundStarted   EventType = "round.started"
	EventRoundSolved    EventType = "round.solved"
	EventRoundMissed    EventType = "round.missed"
	EventRoundTimeout   EventType = "round.timeout"
	EventRoundCancelled EventType = "round.cancelled"
)

// Event describes a round lifecycle transition.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    int64     `json:"chatId"`
	Round     Round     `json:"round"`
	PlayerID  int64     `json:"playerId,omitempty"`
	Guess     string    `json:"guess,omitempty"`
	Reward    int       `json:"reward,omitempty"`
	NewStreak int       `json:"newStreak"`
	At        time.Time `json:"at"`
}

// RoundView is the client-facing shape of a round. The answer is only
// included when revealed.
type RoundView struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chatId"`
	Generation  uint64    `json:"generation"`
	InitiatorID int64     `json:"initiatorId"`
	ImageRef    string    `json:"imageRef"`
	StartedAt   time.Time `json:"startedAt"`
	Deadline    time.Time `json:"deadline"`
	Answer      string    `json:"answer,omitempty"`
}

func (r Round) View(reveal bool) RoundView {
	v := RoundView{
		ID:          r.ID,
		ChatID:      r.ChatID,
		Generation:  r.Generation,
		InitiatorID: r.InitiatorID,
		ImageRef:    r.Character.ImageRef,
		StartedAt:   r.StartedAt,
		Deadline:    r.Deadline,
	}
	if reveal {
		v.Answer = r.Character.Name
	}
	return v
}
