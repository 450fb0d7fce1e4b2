package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/preetsinghmakkar/CalmConnect/internal/config"
	"github.com/preetsinghmakkar/CalmConnect/internal/handlers"
	"github.com/preetsinghmakkar/CalmConnect/internal/jobs"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/routes"
	"github.com/preetsinghmakkar/CalmConnect/internal/services"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}
	defer closeStore()

	hub := ws.NewHub(log)
	registry := ws.NewRegistry(ws.RegistryOptions{
		GracePeriod: cfg.Signaling.RoomGracePeriod,
		MaxMembers:  cfg.Signaling.MaxRoomMembers,
	}, log)

	assignment := services.NewAssignmentService(store, hub, cfg.Session.AssignAttempts, log)
	sessions := services.NewSessionService(store, hub, registry, services.NewReviewPrompter(hub),
		services.SessionPolicy{RejoinWindow: cfg.Session.RejoinWindow}, log)
	signaling := services.NewSignalingService(sessions, registry, log)

	sessionHandler := handlers.NewSessionHandler(assignment, sessions, log)
	webSocketHandler := handlers.NewWebSocketHandler(signaling, hub, registry, handlers.ConnOptions{
		SendBuffer:     cfg.Signaling.SendBuffer,
		PongWait:       cfg.Signaling.PongWait,
		PingPeriod:     cfg.Signaling.PingPeriod,
		WriteWait:      cfg.Signaling.WriteWait,
		MaxMessageSize: cfg.Signaling.MaxMessageSize,
		AllowOrigins:   cfg.HTTP.AllowOrigins,
	}, log)

	router := routes.SetupRouter(cfg.HTTP.AllowOrigins, log)
	routes.RegisterPublicEndpoints(router, webSocketHandler, cfg.Auth.JWTSecret, log)
	routes.RegisterProtectedEndpoints(router, sessionHandler, cfg.Auth.JWTSecret, log)

	sweeper := jobs.NewStaleSessionSweeper(sessions, cfg.Session.PendingTimeout, cfg.Session.ActiveIdleTimeout, log)
	if err := sweeper.Start(cfg.Session.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Address).Msg("starting application")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		<-sweeper.Stop().Done()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// openStore returns the PostgreSQL store when a DSN is configured and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (repositories.Store, func(), error) {
	if cfg.DSN == "" {
		mem := repositories.NewMemoryStore()
		for _, id := range parseIDs(cfg.SeedStudents, log) {
			mem.AddStudent(id)
		}
		for _, id := range parseIDs(cfg.SeedCounselors, log) {
			mem.AddCounselor(id, "counselor "+id.String()[:8])
		}
		log.Warn().
			Int("students", len(cfg.SeedStudents)).
			Int("counselors", len(cfg.SeedCounselors)).
			Msg("database.dsn is empty, using in-memory store")
		return mem, func() {}, nil
	}

	db, err := repositories.Open(ctx, cfg.DSN, cfg.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	store := repositories.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Msg("connected to postgres")
	return store, func() { db.Close() }, nil
}

func parseIDs(raw []string, log zerolog.Logger) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			log.Warn().Str("id", s).Msg("skipping invalid seed id")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
