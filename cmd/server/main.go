package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/api"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/catalog"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/config"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/events"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/game"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/player"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/scheduler"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/storage/sqlite"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/telemetry"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	serviceName = "sukunaguessing"
	version     = "v0.3.0-dev"
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		envFile     = flag.String("env-file", ".env", "Load environment variables from this file if it exists")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Sukunaguessing - guess-the-character trivia server

Usage: %s [options]

Options:
  -h, --help        Show this help message
  -v, --version     Show version information
  --port PORT       Port to listen on (default: 8080 or PORT env var)
  --env-file PATH   Load variables from PATH (default: .env)

Environment Variables:
  PORT                    Port to listen on (default: 8080)
  DATABASE_PATH           SQLite file; in-memory stores when empty
  IMAGE_DIR               Character image directory (default: ./images)
  CATALOG_SEED            JSON file of characters imported at startup
  ROUND_DURATION          Time to answer (default: 15s)
  NEXT_ROUND_DELAY        Pause before the next round (default: 2s)
  AUTO_NEXT_ROUND         Start a new round after a correct guess (default: true)
  ALLOW_ANY_GUESSER       Let anyone in the chat answer (default: false)
  WRONG_GUESS_ENDS_ROUND  Close the round on the first miss (default: true)
  MATCH_POLICY            Ordered strategies (default: exact,alias; add substring,token,fuzzy to loosen)
  MATCH_FUZZY_THRESHOLD   Fuzzy ratio needed to accept (default: 0.85)
  MATCH_ALIASES           alias=canonical pairs separated by ';'
  REWARD_BASE             Coins per correct guess (default: 20)
  REWARD_DECADE_MODE      flat or base5 (default: flat)
  ADMIN_USER, ADMIN_PASS  Basic auth for character uploads
  NATS_URL                Publish round events to NATS when set
  EXPORT_ENABLED          Append round results to EXPORT_FILE (default: false)
  OTEL_ENDPOINT           OTLP/HTTP trace endpoint

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Sukunaguessing %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal().Err(err).Msg("load env file")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, version, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	// Storage
	var (
		playerStore    player.Store
		characterStore catalog.Store
	)
	if cfg.DatabasePath != "" {
		db, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		playerStore, characterStore = db, db
		log.Info().Str("path", cfg.DatabasePath).Msg("using sqlite storage")
	} else {
		playerStore, characterStore = player.NewMemoryStore(), catalog.NewMemoryStore()
		log.Warn().Msg("DATABASE_PATH not set, progress is kept in memory only")
	}

	images, err := catalog.NewImageStore(cfg.ImageDir)
	if err != nil {
		return err
	}
	characters := catalog.New(characterStore)
	if cfg.CatalogSeed != "" {
		if err := importSeed(ctx, characters, cfg.CatalogSeed); err != nil {
			return err
		}
	}

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("match policy: %w", err)
	}
	rewards, err := cfg.Rewards()
	if err != nil {
		return fmt.Errorf("rewards: %w", err)
	}

	// Notifications
	sock := ws.New(nil, cfg.DebugAnswers)
	defer sock.Close()
	notifiers := game.Notifiers{sock}
	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn().Err(err).Msg("drain nats")
			}
		}()
		notifiers = append(notifiers, pub)
		log.Info().Str("url", cfg.NATSURL).Msg("publishing round events to nats")
	}
	if cfg.ExportEnabled {
		exporter := game.NewResultsExporter(cfg.ExportFile)
		defer exporter.Close()
		notifiers = append(notifiers, exporter)
		log.Info().Str("file", cfg.ExportFile).Msg("exporting round results")
	}

	opts := game.Options{
		RoundDuration:       cfg.RoundDuration,
		NextRoundDelay:      cfg.NextRoundDelay,
		TimeoutRetryDelay:   cfg.TimeoutRetryDelay,
		AutoNext:            cfg.AutoNextRound,
		AllowAnyGuesser:     cfg.AllowAnyGuesser,
		WrongGuessEndsRound: cfg.WrongGuessEndsRound,
		MaxDraws:            cfg.MaxDraws,
		Policy:              policy,
		Rewards:             rewards,
	}
	sessions, err := game.NewSessionStore(game.Deps{
		Catalog:   characters,
		Images:    images,
		Players:   player.NewRepository(playerStore),
		Scheduler: scheduler.New(),
		Notifier:  notifiers,
	}, opts)
	if err != nil {
		return err
	}
	defer sessions.Close()
	sock.SetRounds(sessions)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).Msg("http")
	})

	io := sock.Mount(r)
	defer io.Close()

	api.New(sessions, characters, images, api.Options{
		DebugAnswers: cfg.DebugAnswers,
		AdminUser:    cfg.AdminUser,
		AdminPass:    cfg.AdminPass,
	}).Register(r)
	if !cfg.UploadsEnabled() {
		log.Info().Msg("ADMIN_USER/ADMIN_PASS not set, character uploads disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Strs("match", policy.Names()).Dur("round", cfg.RoundDuration).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func importSeed(ctx context.Context, characters *catalog.Catalog, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()
	added, err := characters.Import(ctx, f)
	if err != nil {
		return err
	}
	log.Info().Str("file", path).Int("added", added).Msg("catalog seed imported")
	return nil
}
