package player

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps profiles in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[int64]memoryRecord
	seq     int64
}

type memoryRecord struct {
	profile Profile
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[int64]memoryRecord)}
}

// GetPlayer returns the profile or ErrNotFound.
func (s *MemoryStore) GetPlayer(ctx context.Context, playerID int64) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.players[playerID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return rec.profile, nil
}

// PutPlayer inserts or replaces a profile, keeping its original insertion
// order for leaderboard ties.
func (s *MemoryStore) PutPlayer(ctx context.Context, profile Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[profile.PlayerID]
	if !ok {
		s.seq++
		rec.seq = s.seq
	}
	rec.profile = profile
	s.players[profile.PlayerID] = rec
	return nil
}

// TopPlayers orders by coins descending, then by insertion order.
func (s *MemoryStore) TopPlayers(ctx context.Context, n int) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	recs := make([]memoryRecord, 0, len(s.players))
	for _, rec := range s.players {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].profile.Coins != recs[j].profile.Coins {
			return recs[i].profile.Coins > recs[j].profile.Coins
		}
		return recs[i].seq < recs[j].seq
	})
	if n > len(recs) {
		n = len(recs)
	}
	out := make([]Profile, 0, n)
	for _, rec := range recs[:n] {
		out = append(out, rec.profile)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
