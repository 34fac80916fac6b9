package game

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const exportQueueSize = 128

// ResultsExporter appends a line per finished round to a text file. Writes
// happen on a background goroutine; Close flushes what is queued.
type ResultsExporter struct {
	filename string
	started  bool
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewResultsExporter(filename string) *ResultsExporter {
	e := &ResultsExporter{
		filename: filename,
		now:      time.Now,
		queue:    make(chan Event, exportQueueSize),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

// Notify implements Notifier. Started rounds are not exported.
func (e *ResultsExporter) Notify(_ context.Context, ev Event) error {
	if ev.Type == EventRoundStarted {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("results exporter closed, dropped %s for chat %d", ev.Type, ev.ChatID)
	}
	select {
	case e.queue <- ev:
		return nil
	default:
		return fmt.Errorf("export queue full, dropped %s for chat %d", ev.Type, ev.ChatID)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (e *ResultsExporter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	<-e.done
}

func (e *ResultsExporter) run() {
	defer close(e.done)
	for ev := range e.queue {
		if err := e.write(ev); err != nil {
			log.Error().Err(err).Str("file", e.filename).Int64("chat", ev.ChatID).Msg("export round result")
		}
	}
}

func (e *ResultsExporter) write(ev Event) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(e.filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(e.filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(e.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder

	// Header once per process, with spacing when appending to an older run.
	if !e.started {
		if fileExists {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Character Guessing Results\n")
		sb.WriteString(fmt.Sprintf("Started: %s\n", e.now().Format("2006-01-02 15:04:05")))
		sb.WriteString(strings.Repeat("=", 50) + "\n\n")
		e.started = true
	}
	sb.WriteString(formatResult(ev))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func formatResult(ev Event) string {
	at := ev.At.Format("2006-01-02 15:04:05")
	answer := ev.Round.Character.Name
	switch ev.Type {
	case EventRoundSolved:
		return fmt.Sprintf("%s chat %d: %q solved by %d with %q (+%d coins, streak %d)\n",
			at, ev.ChatID, answer, ev.PlayerID, ev.Guess, ev.Reward, ev.NewStreak)
	case EventRoundMissed:
		return fmt.Sprintf("%s chat %d: %q missed by %d with %q\n", at, ev.ChatID, answer, ev.PlayerID, ev.Guess)
	case EventRoundTimeout:
		return fmt.Sprintf("%s chat %d: %q timed out\n", at, ev.ChatID, answer)
	case EventRoundCancelled:
		return fmt.Sprintf("%s chat %d: %q cancelled\n", at, ev.ChatID, answer)
	}
	return fmt.Sprintf("%s chat %d: %s\n", at, ev.ChatID, ev.Type)
}
