// Package api exposes the game over a JSON HTTP interface.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/player"
	"github.com/rs/zerolog/log"
)

const (
	defaultLeaderboard = 10
	maxLeaderboard     = 100
	maxUploadBytes     = 8 << 20
)

// Sessions is the game surface used by the handlers.
type Sessions interface {
	BeginRound(ctx context.Context, chatID int64, p game.Player) (game.Round, error)
	SubmitGuess(ctx context.Context, chatID int64, p game.Player, text string) (game.GuessResult, error)
	EndRound(ctx context.Context, chatID int64) (game.Round, bool, error)
	ActiveRound(chatID int64) (game.Round, bool)
	Profile(ctx context.Context, p game.Player) (player.Profile, error)
	TopPlayers(ctx context.Context, n int) ([]player.Profile, error)
}

// Characters is the catalog surface used for listing and uploads.
type Characters interface {
	Add(ctx context.Context, name, imageRef string) (bool, error)
	List(ctx context.Context) ([]catalog.Character, error)
}

// Images stores uploaded character images and resolves them for serving.
type Images interface {
	Save(name, ext string, r io.Reader) (string, error)
	Path(ref string) (string, error)
	Check(ref string) error
	Remove(ref string) error
}

// Options tunes what the HTTP surface exposes.
type Options struct {
	// DebugAnswers includes the answer in the current-round view.
	DebugAnswers bool
	// AdminUser and AdminPass guard character uploads; uploads are disabled
	// when either is empty.
	AdminUser string
	AdminPass string
}

// Handler serves the round, player and catalog routes.
type Handler struct {
	sessions   Sessions
	characters Characters
	images     Images
	opts       Options
}

func New(sessions Sessions, characters Characters, images Images, opts Options) *Handler {
	return &Handler{sessions: sessions, characters: characters, images: images, opts: opts}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	api.POST("/chats/:chatID/rounds", h.startRound)
	api.DELETE("/chats/:chatID/rounds", h.endRound)
	api.GET("/chats/:chatID/rounds/current", h.currentRound)
	api.POST("/chats/:chatID/guesses", h.guess)
	api.GET("/players/:playerID", h.profile)
	api.GET("/leaderboard", h.leaderboard)
	api.GET("/characters", h.listCharacters)
	if h.opts.AdminUser != "" && h.opts.AdminPass != "" {
		auth := gin.BasicAuth(gin.Accounts{h.opts.AdminUser: h.opts.AdminPass})
		api.POST("/characters", auth, h.uploadCharacter)
	}

	r.GET("/images/:ref", h.image)
}

type playerRequest struct {
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
}

type guessRequest struct {
	PlayerID int64  `json:"playerId"`
	Name     string `json:"name"`
	Text     string `json:"text"`
}

func (h *Handler) startRound(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerID == 0 {
		badRequest(c, "playerId is required")
		return
	}
	round, err := h.sessions.BeginRound(c.Request.Context(), chatID, game.Player{ID: req.PlayerID, Name: req.Name})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"round": round.View(h.opts.DebugAnswers)})
}

func (h *Handler) guess(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlayerID == 0 {
		badRequest(c, "playerId and text are required")
		return
	}
	res, err := h.sessions.SubmitGuess(c.Request.Context(), chatID, game.Player{ID: req.PlayerID, Name: req.Name}, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{
		"kind":       res.Kind,
		"reward":     res.Reward,
		"newStreak":  res.NewStreak,
		"roundEnded": res.RoundEnded,
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if res.RoundEnded && res.Round != nil {
		out["answer"] = res.Round.Character.Name
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) endRound(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}
	round, ended, err := h.sessions.EndRound(c.Request.Context(), chatID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"ended": ended}
	if ended {
		out["answer"] = round.Character.Name
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) currentRound(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}
	round, active := h.sessions.ActiveRound(chatID)
	if !active {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active round", "code": "no_active_round"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": round.View(h.opts.DebugAnswers)})
}

func (h *Handler) profile(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("playerID"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid player id")
		return
	}
	p, err := h.sessions.Profile(c.Request.Context(), game.Player{ID: id, Name: c.Query("name")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) leaderboard(c *gin.Context) {
	n := defaultLeaderboard
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "n must be a non-negative integer")
			return
		}
		n = min(v, maxLeaderboard)
	}
	top, err := h.sessions.TopPlayers(c.Request.Context(), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": top})
}

func (h *Handler) listCharacters(c *gin.Context) {
	list, err := h.characters.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []catalog.Character{}
	}
	c.JSON(http.StatusOK, gin.H{"characters": list})
}

func (h *Handler) uploadCharacter(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	name := strings.TrimSpace(c.PostForm("name"))
	if catalog.Key(name) == "" {
		badRequest(c, "name is required")
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "cannot read image")
		return
	}
	defer f.Close()

	ref, err := h.images.Save(name, filepath.Ext(fh.Filename), f)
	if err != nil {
		writeError(c, err)
		return
	}
	added, err := h.characters.Add(c.Request.Context(), name, ref)
	if err != nil || !added {
		if rmErr := h.images.Remove(ref); rmErr != nil {
			log.Warn().Err(rmErr).Str("ref", ref).Msg("remove orphaned image")
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if !added {
		c.JSON(http.StatusConflict, gin.H{"error": "character already exists", "code": "duplicate"})
		return
	}
	log.Info().Str("character", name).Str("ref", ref).Msg("character added")
	c.JSON(http.StatusCreated, gin.H{"name": name, "imageRef": ref})
}

func (h *Handler) image(c *gin.Context) {
	ref := c.Param("ref")
	if err := h.images.Check(ref); err != nil {
		writeError(c, err)
		return
	}
	path, err := h.images.Path(ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.File(path)
}

func chatParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chatID"), 10, 64)
	if err != nil {
		badRequest(c, "invalid chat id")
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "bad_request"})
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrInvalidName), errors.Is(err, catalog.ErrUnsupportedImage), errors.Is(err, catalog.ErrInvalidImageRef):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, catalog.ErrImageMissing):
		return http.StatusNotFound, "not_found"
	}
	code := game.ErrorCode(err)
	switch code {
	case "already_active":
		return http.StatusConflict, code
	case "no_characters":
		return http.StatusNotFound, code
	case "image_unavailable":
		return http.StatusServiceUnavailable, code
	case "unauthorized_guesser":
		return http.StatusForbidden, code
	}
	return http.StatusInternalServerError, code
}
