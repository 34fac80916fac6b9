package game

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive       = errors.New("a round is already active in this chat")
	ErrNoCharacters        = errors.New("no characters available")
	ErrImageUnavailable    = errors.New("character image unavailable")
	ErrUnauthorizedGuesser = errors.New("only the player who started the round may guess")
	// ErrPersistence wraps storage failures. The round involved is left
	// untouched and can be resolved again.
	ErrPersistence = errors.New("persistence failure")
)

func persistenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// ReasonError maps an ignore reason to its sentinel, if any.
func ReasonError(reason IgnoreReason) error {
	if reason == ReasonUnauthorizedGuesser {
		return ErrUnauthorizedGuesser
	}
	return nil
}

// ErrorCode maps an engine error to a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, ErrNoCharacters):
		return "no_characters"
	case errors.Is(err, ErrImageUnavailable):
		return "image_unavailable"
	case errors.Is(err, ErrUnauthorizedGuesser):
		return "unauthorized_guesser"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	}
	return "internal"
}
