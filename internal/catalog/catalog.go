// Package catalog holds the guessable characters and their images.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/match"
)

var (
	// ErrDuplicate indicates a character with the same normalized name exists.
	ErrDuplicate = errors.New("character already exists")
	// ErrInvalidName indicates a name that normalizes to nothing.
	ErrInvalidName = errors.New("character name is required")
)

// Character is one guessable entity.
type Character struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"imageRef"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the uniqueness key for a character name.
func Key(name string) string {
	return match.Normalize(name)
}

// Store persists characters. InsertCharacter returns ErrDuplicate when the
// normalized name is taken. ListCharacters is ordered by name.
type Store interface {
	InsertCharacter(ctx context.Context, c Character) error
	ListCharacters(ctx context.Context) ([]Character, error)
	CountCharacters(ctx context.Context) (int, error)
	CharacterAt(ctx context.Context, index int) (Character, error)
}

// Catalog draws random characters and registers new ones.
type Catalog struct {
	store Store

	mu  sync.Mutex
	rng *rand.Rand
}

func New(store Store) *Catalog {
	return &Catalog{
		store: store,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)),
	}
}

// NewSeeded makes draws reproducible.
func NewSeeded(store Store, seed uint64) *Catalog {
	return &Catalog{store: store, rng: rand.New(rand.NewPCG(seed, 1))}
}

// Random returns a uniformly drawn character; ok is false when the catalog
// is empty.
func (c *Catalog) Random(ctx context.Context) (Character, bool, error) {
	n, err := c.store.CountCharacters(ctx)
	if err != nil {
		return Character{}, false, fmt.Errorf("count characters: %w", err)
	}
	if n == 0 {
		return Character{}, false, nil
	}
	c.mu.Lock()
	idx := c.rng.IntN(n)
	c.mu.Unlock()

	ch, err := c.store.CharacterAt(ctx, idx)
	if err != nil {
		return Character{}, false, fmt.Errorf("draw character: %w", err)
	}
	return ch, true, nil
}

// Add registers a character. It returns false, without error, when the
// normalized name is already taken.
func (c *Catalog) Add(ctx context.Context, name, imageRef string) (bool, error) {
	name = strings.TrimSpace(name)
	if Key(name) == "" {
		return false, ErrInvalidName
	}
	ch := Character{
		ID:        uuid.NewString(),
		Name:      name,
		ImageRef:  strings.TrimSpace(imageRef),
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.InsertCharacter(ctx, ch); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("add character: %w", err)
	}
	return true, nil
}

// List returns every character ordered by name.
func (c *Catalog) List(ctx context.Context) ([]Character, error) {
	list, err := c.store.ListCharacters(ctx)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return list, nil
}
