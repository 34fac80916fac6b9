package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game"
	"github.com/rs/zerolog/log"
)

const (
	namespace    = "/"
	queueSize    = 256
	handlerLimit = 10 * time.Second
)

// ConnCtx is the per-connection state set by chat:join.
type ConnCtx struct {
	ChatID   int64
	PlayerID int64
	Name     string
	Joined   bool
}

// Rounds is the part of the session store driven over sockets.
type Rounds interface {
	BeginRound(ctx context.Context, chatID int64, p game.Player) (game.Round, error)
	SubmitGuess(ctx context.Context, chatID int64, p game.Player, text string) (game.GuessResult, error)
	EndRound(ctx context.Context, chatID int64) (game.Round, bool, error)
}

type broadcaster interface {
	BroadcastToRoom(namespace, room, event string, args ...interface{}) bool
}

type outbound struct {
	room    string
	event   string
	payload map[string]any
}

// Server carries round commands from chat clients and pushes round events
// back into per-chat rooms.
type Server struct {
	rounds       Rounds
	debugAnswers bool

	mu   sync.Mutex
	bc   broadcaster
	out  chan outbound
	done chan struct{}
	once sync.Once
}

func New(rounds Rounds, debugAnswers bool) *Server {
	return &Server{
		rounds:       rounds,
		debugAnswers: debugAnswers,
		out:          make(chan outbound, queueSize),
		done:         make(chan struct{}),
	}
}

// SetRounds wires the session store once it exists; the store itself needs
// the server as a notifier.
func (srv *Server) SetRounds(rounds Rounds) { srv.rounds = rounds }

// Room is the Socket.IO room that receives a chat's events.
func Room(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

type joinPayload struct {
	ChatID   int64  `json:"chatId"`
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
}

type guessPayload struct {
	Text string `json:"text"`
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect(namespace, func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})
	io.OnEvent(namespace, "chat:join", srv.onJoin)
	io.OnEvent(namespace, "round:start", srv.onStart)
	io.OnEvent(namespace, "round:guess", srv.onGuess)
	io.OnEvent(namespace, "round:end", srv.onEnd)

	io.OnError(namespace, func(s socketio.Conn, e error) {
		sid := ""
		if s != nil {
			sid = s.ID()
		}
		log.Error().Str("sid", sid).Err(e).Msg("socket error")
	})
	io.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()
	srv.start(io)

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) onJoin(s socketio.Conn, payload joinPayload) map[string]any {
	if payload.PlayerID == 0 {
		return srv.err(s, "bad_request", "playerId is required")
	}
	if ctx := connCtx(s); ctx.Joined && ctx.ChatID != payload.ChatID {
		s.Leave(Room(ctx.ChatID))
	}
	s.SetContext(&ConnCtx{ChatID: payload.ChatID, PlayerID: payload.PlayerID, Name: payload.Name, Joined: true})
	s.Join(Room(payload.ChatID))
	log.Info().Str("sid", s.ID()).Int64("chat", payload.ChatID).Int64("player", payload.PlayerID).Msg("chat:join")
	return map[string]any{"ok": true, "room": Room(payload.ChatID)}
}

func (srv *Server) onStart(s socketio.Conn) map[string]any {
	cc := connCtx(s)
	if !cc.Joined {
		return srv.err(s, "not_joined", "Join a chat first")
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerLimit)
	defer cancel()
	round, err := srv.rounds.BeginRound(ctx, cc.ChatID, cc.player())
	if err != nil {
		return srv.err(s, game.ErrorCode(err), err.Error())
	}
	return map[string]any{"round": round.View(srv.debugAnswers)}
}

func (srv *Server) onGuess(s socketio.Conn, payload guessPayload) map[string]any {
	cc := connCtx(s)
	if !cc.Joined {
		return srv.err(s, "not_joined", "Join a chat first")
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerLimit)
	defer cancel()
	res, err := srv.rounds.SubmitGuess(ctx, cc.ChatID, cc.player(), payload.Text)
	if err != nil {
		return srv.err(s, game.ErrorCode(err), err.Error())
	}
	return guessAck(res)
}

func (srv *Server) onEnd(s socketio.Conn) map[string]any {
	cc := connCtx(s)
	if !cc.Joined {
		return srv.err(s, "not_joined", "Join a chat first")
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerLimit)
	defer cancel()
	_, ended, err := srv.rounds.EndRound(ctx, cc.ChatID)
	if err != nil {
		return srv.err(s, game.ErrorCode(err), err.Error())
	}
	return map[string]any{"ended": ended}
}

func guessAck(res game.GuessResult) map[string]any {
	out := map[string]any{
		"kind":       res.Kind,
		"roundEnded": res.RoundEnded,
		"newStreak":  res.NewStreak,
	}
	switch res.Kind {
	case game.GuessCorrect:
		out["reward"] = res.Reward
	case game.GuessIgnored:
		out["reason"] = res.Reason
	}
	if res.RoundEnded && res.Round != nil {
		out["answer"] = res.Round.Character.Name
	}
	return out
}

func (cc *ConnCtx) player() game.Player {
	return game.Player{ID: cc.PlayerID, Name: cc.Name}
}

func connCtx(s socketio.Conn) *ConnCtx {
	if cc, ok := s.Context().(*ConnCtx); ok && cc != nil {
		return cc
	}
	return &ConnCtx{}
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message, "code": code}
}

// Notify implements game.Notifier. Events are queued and broadcast in order
// by a single goroutine. When the queue is full the event is dropped and
// reported as an error.
func (srv *Server) Notify(_ context.Context, ev game.Event) error {
	name, payload := eventMessage(ev)
	if name == "" {
		return nil
	}
	select {
	case srv.out <- outbound{room: Room(ev.ChatID), event: name, payload: payload}:
	default:
		return fmt.Errorf("socket queue full, dropped %s for chat %d", name, ev.ChatID)
	}
	return nil
}

func (srv *Server) start(bc broadcaster) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.bc != nil {
		return
	}
	srv.bc = bc
	go srv.pump(bc)
}

func (srv *Server) pump(bc broadcaster) {
	for {
		select {
		case <-srv.done:
			return
		case msg := <-srv.out:
			bc.BroadcastToRoom(namespace, msg.room, msg.event, msg.payload)
		}
	}
}

// Close stops the broadcast goroutine.
func (srv *Server) Close() {
	srv.once.Do(func() { close(srv.done) })
}

func eventMessage(ev game.Event) (string, map[string]any) {
	switch ev.Type {
	case game.EventRoundStarted:
		return "round:started", map[string]any{"round": ev.Round.View(false)}
	case game.EventRoundSolved:
		return "round:resolved", map[string]any{
			"round":     ev.Round.View(true),
			"playerId":  ev.PlayerID,
			"guess":     ev.Guess,
			"reward":    ev.Reward,
			"newStreak": ev.NewStreak,
		}
	case game.EventRoundMissed:
		return "round:missed", map[string]any{
			"round":    ev.Round.View(true),
			"playerId": ev.PlayerID,
			"guess":    ev.Guess,
		}
	case game.EventRoundTimeout:
		return "round:timeout", map[string]any{"round": ev.Round.View(true)}
	case game.EventRoundCancelled:
		return "round:cancelled", map[string]any{"round": ev.Round.View(true)}
	}
	return "", nil
}
