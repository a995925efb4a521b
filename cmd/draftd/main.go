// draftd runs the draft engine as a single service: the HTTP/WebSocket
// gateway, the outbox relay, and the deadline orchestrator.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/botsports/empire/internal/dbconfig"
	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/gateway"
	"github.com/botsports/empire/internal/draft/hub"
	"github.com/botsports/empire/internal/draft/orchestrator"
	"github.com/botsports/empire/internal/draft/outbox"
	"github.com/botsports/empire/internal/draft/repository"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		zlog.Warn().Err(err).Msg("could not load .env file")
	}

	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	zlog.Info().
		Str("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Bool("nats", cfg.NATS.Enabled).
		Msg("starting draftd")

	// Storage.
	var (
		store       engine.Store
		outboxStore outbox.Store
		players     engine.PlayerSource
	)
	switch cfg.Storage.Driver {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := sql.Open("pgx", dbCfg.DSN())
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to open database")
		}
		defer pool.Close()
		if err := pool.Ping(); err != nil {
			zlog.Fatal().Err(err).Msg("failed to ping database")
		}
		pg := repository.NewPostgresStore(pool)
		store, outboxStore = pg, pg
		players = repository.NewPostgresPlayerSource(pool)
		zlog.Info().Str("database", dbCfg.Database).Msg("connected to postgres")
	case "memory":
		mem := repository.NewMemoryStore()
		store, outboxStore = mem, mem
		players = repository.NewMemoryPlayerSource(mem)
		zlog.Info().Msg("using in-memory storage")
	}

	eng := engine.New(store, players)
	eventHub := hub.New(eng.Snapshot)

	// Outbox relay. With NATS enabled, events go through the broker and come
	// back via the gateway consumer; otherwise they feed the hub directly.
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	var publisher outbox.EventPublisher
	var jsPublisher *outbox.JetStreamPublisher
	if cfg.NATS.Enabled {
		jsPublisher, err = outbox.NewJetStreamPublisher(outbox.JetStreamPublisherConfig{
			URL:           cfg.NATS.URL,
			StreamName:    cfg.NATS.StreamName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: -1,
		}, slogger)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		defer jsPublisher.Close()
		publisher = jsPublisher
	} else {
		publisher = outbox.NewHubPublisher(eventHub)
	}

	relay := outbox.NewWorker(outboxStore, publisher, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryDelay:   cfg.Outbox.RetryDelay,
	}, slogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := relay.Start(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("failed to start outbox relay")
	}

	// Gateway.
	connections := gateway.NewConnectionManager(eventHub, gateway.DefaultConnectionConfig())
	wsHandler := gateway.NewWebSocketHandler(connections)
	api := gateway.NewAPI(eng)

	if cfg.NATS.Enabled {
		consumer, err := gateway.NewEventConsumer(eventHub, gateway.JetStreamConsumerConfig{
			URL:           cfg.NATS.URL,
			StreamName:    cfg.NATS.StreamName,
			ConsumerName:  cfg.NATS.ConsumerName,
			SubjectFilter: cfg.NATS.SubjectPrefix + ".>",
			MaxDeliver:    5,
			AckWait:       30 * time.Second,
			MaxAckPending: 100,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		})
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create event consumer")
		}
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				zlog.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	// Deadline orchestrator.
	strat := orchestrator.NewRecommendationStrategy(eng)
	orch := orchestrator.New(eng, strat, orchestrator.Config{
		PollInterval: cfg.Orchestrator.PollInterval,
		BatchSize:    cfg.Orchestrator.BatchSize,
		NumWorkers:   cfg.Orchestrator.NumWorkers,
	})
	go orch.Run(ctx)

	// HTTP server.
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	zlog.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	if err := relay.Stop(); err != nil {
		zlog.Error().Err(err).Msg("outbox relay stop failed")
	}

	zlog.Info().Msg("draftd shutdown complete")
}
