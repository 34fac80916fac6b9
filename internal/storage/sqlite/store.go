// Package sqlite provides SQLite-backed player and character storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/player"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/storage/sqlite/migrations"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists players and characters in one SQLite database.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetPlayer returns one profile or player.ErrNotFound.
func (s *Store) GetPlayer(ctx context.Context, playerID int64) (player.Profile, error) {
	if err := s.ready(ctx); err != nil {
		return player.Profile{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT player_id, display_name, coins, current_streak, best_streak,
		        correct_count, games_played, created_at, last_played_at
		   FROM players
		  WHERE player_id = ?`,
		playerID,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return player.Profile{}, player.ErrNotFound
		}
		return player.Profile{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// PutPlayer inserts or replaces a profile. The insertion sequence used for
// leaderboard ties is assigned once and never changed.
func (s *Store) PutPlayer(ctx context.Context, p player.Profile) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (
		   player_id, display_name, coins, current_streak, best_streak,
		   correct_count, games_played, created_at, last_played_at, seq
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM players))
		 ON CONFLICT(player_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   coins = excluded.coins,
		   current_streak = excluded.current_streak,
		   best_streak = excluded.best_streak,
		   correct_count = excluded.correct_count,
		   games_played = excluded.games_played,
		   last_played_at = excluded.last_played_at`,
		p.PlayerID,
		p.DisplayName,
		p.Coins,
		p.CurrentStreak,
		p.BestStreak,
		p.CorrectCount,
		p.GamesPlayed,
		toMillis(p.CreatedAt),
		toMillis(p.LastPlayedAt),
	)
	if err != nil {
		return fmt.Errorf("put player: %w", err)
	}
	return nil
}

// TopPlayers orders by coins descending, then by first insertion.
func (s *Store) TopPlayers(ctx context.Context, n int) ([]player.Profile, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []player.Profile{}, nil
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, display_name, coins, current_streak, best_streak,
		        correct_count, games_played, created_at, last_played_at
		   FROM players
		  ORDER BY coins DESC, seq ASC
		  LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	defer rows.Close()

	out := make([]player.Profile, 0, n)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("top players: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (player.Profile, error) {
	var p player.Profile
	var createdAt, lastPlayedAt int64
	if err := row.Scan(
		&p.PlayerID,
		&p.DisplayName,
		&p.Coins,
		&p.CurrentStreak,
		&p.BestStreak,
		&p.CorrectCount,
		&p.GamesPlayed,
		&createdAt,
		&lastPlayedAt,
	); err != nil {
		return player.Profile{}, err
	}
	p.CreatedAt = fromMillis(createdAt)
	p.LastPlayedAt = fromMillis(lastPlayedAt)
	return p, nil
}

// InsertCharacter stores a character keyed by its normalized name.
func (s *Store) InsertCharacter(ctx context.Context, c catalog.Character) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key := catalog.Key(c.Name)
	if key == "" {
		return catalog.ErrInvalidName
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO characters (id, name, norm_name, image_ref, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, key, c.ImageRef, toMillis(c.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrDuplicate
		}
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

const characterColumns = `id, name, image_ref, created_at`

// ListCharacters returns all characters ordered by name.
func (s *Store) ListCharacters(ctx context.Context) ([]catalog.Character, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+characterColumns+` FROM characters ORDER BY lower(name) ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []catalog.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("list characters: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return out, nil
}

// CountCharacters returns the catalog size.
func (s *Store) CountCharacters(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count characters: %w", err)
	}
	return n, nil
}

// CharacterAt returns the character at a stable position in insertion order.
func (s *Store) CharacterAt(ctx context.Context, index int) (catalog.Character, error) {
	if err := s.ready(ctx); err != nil {
		return catalog.Character{}, err
	}
	if index < 0 {
		return catalog.Character{}, fmt.Errorf("character index %d out of range", index)
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters ORDER BY rowid LIMIT 1 OFFSET ?`, index)
	c, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Character{}, fmt.Errorf("character index %d out of range", index)
		}
		return catalog.Character{}, fmt.Errorf("character at: %w", err)
	}
	return c, nil
}

func scanCharacter(row scanner) (catalog.Character, error) {
	var c catalog.Character
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Name, &c.ImageRef, &createdAt); err != nil {
		return catalog.Character{}, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ player.Store  = (*Store)(nil)
	_ catalog.Store = (*Store)(nil)
)
