// Package player owns durable player profiles and serializes every mutation
// made to a single profile.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a requested profile is missing.
	ErrNotFound = errors.New("player not found")
)

// Profile is the durable record kept for each player.
type Profile struct {
	PlayerID      int64     `json:"playerId"`
	DisplayName   string    `json:"displayName"`
	Coins         int       `json:"coins"`
	CurrentStreak int       `json:"currentStreak"`
	BestStreak    int       `json:"bestStreak"`
	CorrectCount  int       `json:"correctCount"`
	GamesPlayed   int       `json:"gamesPlayed"`
	CreatedAt     time.Time `json:"createdAt"`
	LastPlayedAt  time.Time `json:"lastPlayedAt"`
}

// RecordCorrect applies a correct guess worth reward coins.
func (p *Profile) RecordCorrect(reward int) {
	p.Coins += reward
	p.CurrentStreak++
	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}
	p.CorrectCount++
}

// ResetStreak records a miss, timeout or forfeit.
func (p *Profile) ResetStreak() {
	p.CurrentStreak = 0
}

// Store persists profiles. Implementations need not be safe for concurrent
// read-modify-write; Repository serializes that.
type Store interface {
	GetPlayer(ctx context.Context, playerID int64) (Profile, error)
	PutPlayer(ctx context.Context, profile Profile) error
	TopPlayers(ctx context.Context, n int) ([]Profile, error)
}

// DefaultName is used when a caller has no display name for a player.
func DefaultName(playerID int64) string {
	return fmt.Sprintf("player %d", playerID)
}

// Repository is the only writer of profiles.
type Repository struct {
	store Store
	locks *keyLocks
	now   func() time.Time
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store, locks: newKeyLocks(), now: func() time.Time { return time.Now().UTC() }}
}

// GetOrCreate returns the stored profile, creating a zeroed one named
// defaultName on first use.
func (r *Repository) GetOrCreate(ctx context.Context, playerID int64, defaultName string) (Profile, error) {
	unlock := r.locks.lock(playerID)
	defer unlock()
	return r.getOrCreate(ctx, playerID, defaultName)
}

func (r *Repository) getOrCreate(ctx context.Context, playerID int64, defaultName string) (Profile, error) {
	p, err := r.store.GetPlayer(ctx, playerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, fmt.Errorf("get player %d: %w", playerID, err)
	}
	name := strings.TrimSpace(defaultName)
	if name == "" {
		name = DefaultName(playerID)
	}
	p = Profile{PlayerID: playerID, DisplayName: name, CreatedAt: r.now()}
	if err := r.store.PutPlayer(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("create player %d: %w", playerID, err)
	}
	return p, nil
}

// Update persists every field of profile and stamps LastPlayedAt.
func (r *Repository) Update(ctx context.Context, profile Profile) (Profile, error) {
	unlock := r.locks.lock(profile.PlayerID)
	defer unlock()
	return r.put(ctx, profile)
}

func (r *Repository) put(ctx context.Context, profile Profile) (Profile, error) {
	profile.LastPlayedAt = r.now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = profile.LastPlayedAt
	}
	if err := r.store.PutPlayer(ctx, profile); err != nil {
		return Profile{}, fmt.Errorf("update player %d: %w", profile.PlayerID, err)
	}
	return profile, nil
}

// Mutate loads (or creates) the profile, applies fn and persists the result
// while holding the player's lock. Nothing is written when fn fails.
func (r *Repository) Mutate(ctx context.Context, playerID int64, defaultName string, fn func(*Profile) error) (Profile, error) {
	unlock := r.locks.lock(playerID)
	defer unlock()

	p, err := r.getOrCreate(ctx, playerID, defaultName)
	if err != nil {
		return Profile{}, err
	}
	if err := fn(&p); err != nil {
		return Profile{}, err
	}
	p.PlayerID = playerID
	return r.put(ctx, p)
}

// Top returns up to n profiles ordered by coins, highest first.
func (r *Repository) Top(ctx context.Context, n int) ([]Profile, error) {
	if n <= 0 {
		return []Profile{}, nil
	}
	profiles, err := r.store.TopPlayers(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	return profiles, nil
}
