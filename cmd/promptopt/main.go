package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/config"
	"github.com/namikmesic/promptopt/internal/eventbus"
	"github.com/namikmesic/promptopt/internal/optimizer"
	"github.com/namikmesic/promptopt/internal/session"
	"github.com/namikmesic/promptopt/internal/vertex"
	"github.com/namikmesic/promptopt/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if level > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	bus, err := eventbus.Start()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}

	ctx := context.Background()
	tokens, err := vertex.DefaultTokenSource(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve Google credentials")
	}
	client, err := vertex.NewClient(ctx, cfg.VertexBaseURL, cfg.ProjectID, cfg.Location, tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Vertex AI client")
	}
	producer := optimizer.NewProducer(
		vertex.NewOptimizer(client),
		vertex.NewTranslator(client, cfg.TranslateModel, cfg.TargetLanguage),
		cfg.EventPace,
		cfg.OptimizeTimeout,
	)

	store := session.NewStore(cfg.SessionTTL, func(id uuid.UUID, state *session.State) *session.Runner {
		return session.NewRunner(state, producer, web.NewBusView(bus, id), cfg.StatusLinger)
	})

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go sweepSessions(sweepCtx, store, cfg.SessionTTL)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: web.NewRouter(web.Deps{
			Store:          store,
			Bus:            bus,
			Producer:       producer,
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("project", cfg.ProjectID).
			Str("location", cfg.Location).
			Str("vertex", cfg.VertexBaseURL).
			Msg("prompt optimizer started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// open /events streams only end when their clients go away
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forcing remaining connections closed")
		server.Close()
	}
	sweepCancel()
	bus.Close()
	log.Info().Msg("shutdown complete")
}

func sweepSessions(ctx context.Context, store *session.Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}
