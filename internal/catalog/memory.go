package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps characters in process memory, sorted by name.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]Character
	list  []Character
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]Character)}
}

func (s *MemoryStore) InsertCharacter(ctx context.Context, c Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := Key(c.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key]; exists {
		return ErrDuplicate
	}
	s.byKey[key] = c
	i := sort.Search(len(s.list), func(i int) bool { return lessName(c, s.list[i]) })
	s.list = append(s.list, Character{})
	copy(s.list[i+1:], s.list[i:])
	s.list[i] = c
	return nil
}

func (s *MemoryStore) ListCharacters(ctx context.Context) ([]Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Character, len(s.list))
	copy(out, s.list)
	return out, nil
}

func (s *MemoryStore) CountCharacters(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list), nil
}

func (s *MemoryStore) CharacterAt(ctx context.Context, index int) (Character, error) {
	if err := ctx.Err(); err != nil {
		return Character{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.list) {
		return Character{}, fmt.Errorf("character index %d out of range", index)
	}
	return s.list[index], nil
}

func lessName(a, b Character) bool {
	la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if la != lb {
		return la < lb
	}
	return a.Name < b.Name
}

var _ Store = (*MemoryStore)(nil)
