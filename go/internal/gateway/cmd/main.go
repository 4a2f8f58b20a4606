package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/roomclock/go/internal/gateway"
	"github.com/mcdev12/roomclock/go/internal/roomconfig"
	"github.com/mcdev12/roomclock/go/internal/roomtimer"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	configPath := pflag.String("config", os.Getenv("ROOMS_CONFIG"), "path to a YAML rooms file")
	port := pflag.String("port", "", "HTTP port (overrides PORT)")
	pflag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := roomconfig.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Strs("rooms", cfg.Rooms).
		Dur("default_duration", cfg.DefaultDuration).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Str("port", cfg.Port).
		Msg("starting room clock")

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedHeaders: []string{"*"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gatewayService, err := gateway.NewService(ctx, gatewayConfig(cfg, c),
		roomtimer.WithDefaultDuration(cfg.DefaultDuration),
		roomtimer.WithTickInterval(cfg.TickInterval),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"roomclock","version":"1.0.0","connections":%d}`,
			stats["total_connections"])
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to stop the gateway
	cancel()

	// Give services time to clean up
	time.Sleep(1 * time.Second)

	log.Info().Msg("room clock shutdown complete")
}

func gatewayConfig(cfg roomconfig.Config, c *cors.Cors) gateway.Config {
	rooms := make([]roomtimer.RoomID, len(cfg.Rooms))
	for i, room := range cfg.Rooms {
		rooms[i] = roomtimer.RoomID(room)
	}

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = func(r *http.Request) bool {
		// Non-browser clients send no Origin header
		return r.Header.Get("Origin") == "" || c.OriginAllowed(r)
	}

	jsCfg := gateway.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.StreamName
	jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

	return gateway.Config{
		Rooms:            rooms,
		ConnectionConfig: connCfg,
		JetStreamEnabled: cfg.NATS.Enabled,
		JetStreamConfig:  jsCfg,
	}
}
