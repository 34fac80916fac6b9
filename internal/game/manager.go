package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/economy"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/match"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/player"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game")

// callbackBudget bounds the work done by timer-driven callbacks.
const callbackBudget = 10 * time.Second

// Catalog draws characters for new rounds.
type Catalog interface {
	Random(ctx context.Context) (catalog.Character, bool, error)
}

// ImageChecker verifies that a character image can be shown.
type ImageChecker interface {
	Check(imageRef string) error
}

// Players is the profile repository used to settle rounds.
type Players interface {
	GetOrCreate(ctx context.Context, playerID int64, defaultName string) (player.Profile, error)
	Mutate(ctx context.Context, playerID int64, defaultName string, fn func(*player.Profile) error) (player.Profile, error)
	Top(ctx context.Context, n int) ([]player.Profile, error)
}

// Scheduler arms and cancels round deadlines.
type Scheduler interface {
	Arm(chatID int64, generation uint64, d time.Duration, fire scheduler.FireFunc)
	Cancel(chatID int64, generation uint64) bool
	Stop()
}

// Options tune round behavior.
type Options struct {
	RoundDuration     time.Duration
	NextRoundDelay    time.Duration
	TimeoutRetryDelay time.Duration
	AutoNext          bool
	// AllowAnyGuesser lets every chat member answer, not only the player
	// who started the round.
	AllowAnyGuesser bool
	// WrongGuessEndsRound closes the round on the first miss. When false a
	// miss is reported and the round stays open until solved or timed out.
	WrongGuessEndsRound bool
	// MaxDraws bounds how many characters are tried when images fail.
	MaxDraws int
	Policy   match.Policy
	Rewards  economy.Table
}

func DefaultOptions() Options {
	return Options{
		RoundDuration:       15 * time.Second,
		NextRoundDelay:      2 * time.Second,
		TimeoutRetryDelay:   5 * time.Second,
		AutoNext:            true,
		WrongGuessEndsRound: true,
		MaxDraws:            3,
		Policy:              match.Policy{match.Exact{}},
		Rewards:             economy.DefaultTable(),
	}
}

// Deps are the collaborators of a SessionStore. Images, Scheduler, Notifier
// and Logger are optional.
type Deps struct {
	Catalog   Catalog
	Images    ImageChecker
	Players   Players
	Scheduler Scheduler
	Notifier  Notifier
	Logger    *zerolog.Logger
}

type chatSlot struct {
	mu         sync.Mutex
	generation uint64
	round      *Round
	next       *time.Timer
}

// SessionStore owns the active-round slot of every chat. Operations on one
// chat are linearized by that chat's lock; different chats never contend.
type SessionStore struct {
	opts    Options
	catalog Catalog
	images  ImageChecker
	players Players
	sched   Scheduler
	notify  Notifier
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	chats  map[int64]*chatSlot
	closed atomic.Bool
}

func NewSessionStore(deps Deps, opts Options) (*SessionStore, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if deps.Players == nil {
		return nil, errors.New("player repository is required")
	}
	if len(opts.Policy) == 0 {
		return nil, errors.New("match policy is required")
	}
	if opts.RoundDuration <= 0 {
		return nil, errors.New("round duration must be positive")
	}
	if opts.MaxDraws <= 0 {
		opts.MaxDraws = 1
	}
	if opts.TimeoutRetryDelay <= 0 {
		opts.TimeoutRetryDelay = opts.RoundDuration
	}
	s := &SessionStore{
		opts:    opts,
		catalog: deps.Catalog,
		images:  deps.Images,
		players: deps.Players,
		sched:   deps.Scheduler,
		notify:  deps.Notifier,
		now:     func() time.Time { return time.Now().UTC() },
		chats:   make(map[int64]*chatSlot),
	}
	if s.sched == nil {
		s.sched = scheduler.New()
	}
	if s.notify == nil {
		s.notify = Notifiers{}
	}
	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	s.log = logger.With().Str("component", "game").Logger()
	return s, nil
}

func (s *SessionStore) slot(chatID int64) *chatSlot {
	s.mu.RLock()
	c := s.chats[chatID]
	s.mu.RUnlock()
	if c != nil {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.chats[chatID]; c == nil {
		c = &chatSlot{}
		s.chats[chatID] = c
	}
	return c
}

func (s *SessionStore) lookup(chatID int64) *chatSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[chatID]
}

// BeginRound opens a round for chatID started by p.
func (s *SessionStore) BeginRound(ctx context.Context, chatID int64, p Player) (r Round, err error) {
	ctx, span := tracer.Start(ctx, "game.BeginRound", trace.WithAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.Int64("player.id", p.ID),
	))
	defer func() { endSpan(span, err) }()

	slot := s.slot(chatID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.round != nil {
		return Round{}, ErrAlreadyActive
	}
	ch, err := s.draw(ctx, chatID)
	if err != nil {
		return Round{}, err
	}
	if _, err := s.players.GetOrCreate(ctx, p.ID, p.Name); err != nil {
		return Round{}, persistenceError(err)
	}

	slot.generation++
	now := s.now()
	r = Round{
		ID:          uuid.NewString(),
		Generation:  slot.generation,
		ChatID:      chatID,
		Character:   ch,
		InitiatorID: p.ID,
		StartedAt:   now,
		Deadline:    now.Add(s.opts.RoundDuration),
	}
	slot.round = &r
	s.sched.Arm(chatID, r.Generation, s.opts.RoundDuration, s.fire)

	s.log.Info().Int64("chat", chatID).Int64("player", p.ID).Uint64("generation", r.Generation).
		Str("character", ch.Name).Msg("round started")
	s.emit(ctx, Event{Type: EventRoundStarted, ChatID: chatID, Round: r, PlayerID: p.ID, At: now})
	return r, nil
}

func (s *SessionStore) draw(ctx context.Context, chatID int64) (catalog.Character, error) {
	for attempt := 1; attempt <= s.opts.MaxDraws; attempt++ {
		ch, ok, err := s.catalog.Random(ctx)
		if err != nil {
			return catalog.Character{}, fmt.Errorf("draw character: %w", err)
		}
		if !ok {
			return catalog.Character{}, ErrNoCharacters
		}
		if s.images == nil {
			return ch, nil
		}
		if err := s.images.Check(ch.ImageRef); err != nil {
			s.log.Warn().Err(err).Int64("chat", chatID).Str("character", ch.Name).Int("attempt", attempt).
				Msg("character image unavailable, redrawing")
			continue
		}
		return ch, nil
	}
	return catalog.Character{}, ErrImageUnavailable
}

// SubmitGuess evaluates text against the chat's active round.
func (s *SessionStore) SubmitGuess(ctx context.Context, chatID int64, p Player, text string) (res GuessResult, err error) {
	ctx, span := tracer.Start(ctx, "game.SubmitGuess", trace.WithAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.Int64("player.id", p.ID),
	))
	defer func() {
		span.SetAttributes(attribute.String("guess.kind", string(res.Kind)))
		endSpan(span, err)
	}()

	slot := s.lookup(chatID)
	if slot == nil {
		return ignored(ReasonNoActiveRound), nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	r := slot.round
	if r == nil {
		return ignored(ReasonNoActiveRound), nil
	}
	if !s.opts.AllowAnyGuesser && p.ID != r.InitiatorID {
		return ignored(ReasonUnauthorizedGuesser), nil
	}
	if match.Normalize(text) == "" {
		return ignored(ReasonEmptyGuess), nil
	}

	if s.opts.Policy.Match(text, r.Character.Name) {
		return s.resolveCorrect(ctx, slot, p, text)
	}
	return s.resolveMiss(ctx, slot, p, text)
}

func (s *SessionStore) resolveCorrect(ctx context.Context, slot *chatSlot, p Player, text string) (GuessResult, error) {
	r := *slot.round
	var reward int
	profile, err := s.players.Mutate(ctx, p.ID, p.Name, func(pr *player.Profile) error {
		reward = s.opts.Rewards.Reward(pr.CurrentStreak + 1)
		pr.RecordCorrect(reward)
		pr.GamesPlayed++
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("chat", r.ChatID).Int64("player", p.ID).Msg("settle correct guess")
		return GuessResult{}, persistenceError(err)
	}

	s.sched.Cancel(r.ChatID, r.Generation)
	slot.round = nil

	s.log.Info().Int64("chat", r.ChatID).Int64("player", p.ID).Uint64("generation", r.Generation).
		Int("reward", reward).Int("streak", profile.CurrentStreak).Msg("round solved")
	s.emit(ctx, Event{
		Type:      EventRoundSolved,
		ChatID:    r.ChatID,
		Round:     r,
		PlayerID:  p.ID,
		Guess:     text,
		Reward:    reward,
		NewStreak: profile.CurrentStreak,
		At:        s.now(),
	})
	if s.opts.AutoNext {
		s.scheduleNext(slot, r.ChatID, p)
	}
	return GuessResult{
		Kind:       GuessCorrect,
		Reward:     reward,
		NewStreak:  profile.CurrentStreak,
		RoundEnded: true,
		Round:      &r,
	}, nil
}

func (s *SessionStore) resolveMiss(ctx context.Context, slot *chatSlot, p Player, text string) (GuessResult, error) {
	r := *slot.round
	if !s.opts.WrongGuessEndsRound {
		profile, err := s.players.GetOrCreate(ctx, p.ID, p.Name)
		if err != nil {
			return GuessResult{}, persistenceError(err)
		}
		return GuessResult{Kind: GuessIncorrect, NewStreak: profile.CurrentStreak, Round: &r}, nil
	}

	if _, err := s.players.Mutate(ctx, p.ID, p.Name, func(pr *player.Profile) error {
		pr.ResetStreak()
		pr.GamesPlayed++
		return nil
	}); err != nil {
		s.log.Error().Err(err).Int64("chat", r.ChatID).Int64("player", p.ID).Msg("settle wrong guess")
		return GuessResult{}, persistenceError(err)
	}

	s.sched.Cancel(r.ChatID, r.Generation)
	slot.round = nil

	s.log.Info().Int64("chat", r.ChatID).Int64("player", p.ID).Uint64("generation", r.Generation).Msg("round missed")
	s.emit(ctx, Event{Type: EventRoundMissed, ChatID: r.ChatID, Round: r, PlayerID: p.ID, Guess: text, At: s.now()})
	return GuessResult{Kind: GuessIncorrect, RoundEnded: true, Round: &r}, nil
}

func (s *SessionStore) scheduleNext(slot *chatSlot, chatID int64, p Player) {
	if slot.next != nil {
		slot.next.Stop()
	}
	slot.next = time.AfterFunc(s.opts.NextRoundDelay, func() {
		if s.closed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), callbackBudget)
		defer cancel()
		if _, err := s.BeginRound(ctx, chatID, p); err != nil && !errors.Is(err, ErrAlreadyActive) {
			s.log.Warn().Err(err).Int64("chat", chatID).Msg("auto-start next round")
		}
	})
}

func (s *SessionStore) fire(chatID int64, generation uint64) {
	if s.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callbackBudget)
	defer cancel()
	s.OnTimeout(ctx, chatID, generation)
}

// OnTimeout closes the round of chatID if it is still generation. It reports
// whether a round was closed. A stale generation is a no-op. When the streak
// reset cannot be persisted the round stays active and the deadline is
// re-armed after TimeoutRetryDelay.
func (s *SessionStore) OnTimeout(ctx context.Context, chatID int64, generation uint64) bool {
	ctx, span := tracer.Start(ctx, "game.OnTimeout", trace.WithAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.Int64("round.generation", int64(generation)),
	))
	defer span.End()

	slot := s.lookup(chatID)
	if slot == nil {
		return false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	r := slot.round
	if r == nil || r.Generation != generation {
		s.log.Debug().Int64("chat", chatID).Uint64("generation", generation).Msg("stale round timer ignored")
		return false
	}
	if err := s.forfeit(ctx, r.InitiatorID); err != nil {
		span.RecordError(err)
		s.log.Error().Err(err).Int64("chat", chatID).Uint64("generation", generation).
			Dur("retry", s.opts.TimeoutRetryDelay).Msg("settle timeout, retrying")
		s.sched.Arm(chatID, generation, s.opts.TimeoutRetryDelay, s.fire)
		return false
	}
	closed := *r
	slot.round = nil

	s.log.Info().Int64("chat", chatID).Uint64("generation", generation).Str("character", closed.Character.Name).Msg("round timed out")
	s.emit(ctx, Event{Type: EventRoundTimeout, ChatID: chatID, Round: closed, PlayerID: closed.InitiatorID, At: s.now()})
	return true
}

// EndRound cancels the active round of chatID as a forfeit by its initiator.
// ok is false when no round was active.
func (s *SessionStore) EndRound(ctx context.Context, chatID int64) (r Round, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "game.EndRound", trace.WithAttributes(attribute.Int64("chat.id", chatID)))
	defer func() { endSpan(span, err) }()

	slot := s.lookup(chatID)
	if slot == nil {
		return Round{}, false, nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.next != nil {
		slot.next.Stop()
		slot.next = nil
	}
	if slot.round == nil {
		return Round{}, false, nil
	}
	r = *slot.round
	if err := s.forfeit(ctx, r.InitiatorID); err != nil {
		return Round{}, false, persistenceError(err)
	}
	s.sched.Cancel(chatID, r.Generation)
	slot.round = nil

	s.log.Info().Int64("chat", chatID).Uint64("generation", r.Generation).Msg("round cancelled")
	s.emit(ctx, Event{Type: EventRoundCancelled, ChatID: chatID, Round: r, PlayerID: r.InitiatorID, At: s.now()})
	return r, true, nil
}

func (s *SessionStore) forfeit(ctx context.Context, playerID int64) error {
	_, err := s.players.Mutate(ctx, playerID, "", func(pr *player.Profile) error {
		pr.ResetStreak()
		pr.GamesPlayed++
		return nil
	})
	return err
}

// ActiveRound returns a copy of the chat's active round.
func (s *SessionStore) ActiveRound(chatID int64) (Round, bool) {
	slot := s.lookup(chatID)
	if slot == nil {
		return Round{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.round == nil {
		return Round{}, false
	}
	return *slot.round, true
}

// Profile returns the player's profile, creating it on first use.
func (s *SessionStore) Profile(ctx context.Context, p Player) (player.Profile, error) {
	profile, err := s.players.GetOrCreate(ctx, p.ID, p.Name)
	if err != nil {
		return player.Profile{}, persistenceError(err)
	}
	return profile, nil
}

// TopPlayers returns up to n profiles by coins, highest first.
func (s *SessionStore) TopPlayers(ctx context.Context, n int) ([]player.Profile, error) {
	profiles, err := s.players.Top(ctx, n)
	if err != nil {
		return nil, persistenceError(err)
	}
	return profiles, nil
}

// Close stops every pending deadline and auto-start timer.
func (s *SessionStore) Close() {
	s.closed.Store(true)
	s.sched.Stop()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.chats {
		slot.mu.Lock()
		if slot.next != nil {
			slot.next.Stop()
			slot.next = nil
		}
		slot.mu.Unlock()
	}
}

func (s *SessionStore) emit(ctx context.Context, ev Event) {
	if err := s.notify.Notify(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Int64("chat", ev.ChatID).Msg("notify")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
