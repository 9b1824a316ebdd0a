package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HMasataka/fanout/internal/chat"
	"github.com/HMasataka/fanout/internal/config"
	"github.com/HMasataka/fanout/internal/eventbus"
	"github.com/HMasataka/fanout/internal/logging"
	"github.com/HMasataka/fanout/internal/netutil"
	"github.com/HMasataka/fanout/internal/stats"
	"github.com/HMasataka/fanout/internal/transport"
)

var configPath = flag.String("config", "", "path to config file (json or yaml)")

func main() {
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewInMemoryBus(1024)
	collector := stats.NewCollector()
	collector.Attach(bus)
	bus.Start(ctx)

	registry := chat.NewRegistry()
	limiter := chat.NewRateLimiter(cfg.Chat.BucketCapacity, cfg.Chat.RefillPerSecond)
	engine := chat.NewEngine(registry, logger, chat.EngineOptions{
		SendTimeout: cfg.Chat.SendTimeout,
		Bus:         bus,
	})

	lifecycle := chat.NewLifecycle(chat.LifecycleOptions{
		Registry:        registry,
		RateLimiter:     limiter,
		Limiter:         chat.NewConnectionLimiter(cfg.Chat.MaxLoginsPerIP),
		Names:           chat.NewNameAllocator(cfg.Chat.MaxNameLength),
		Engine:          engine,
		Logger:          logger,
		Bus:             bus,
		MaxMessageRunes: cfg.Chat.MaxMessageRunes,
	})

	maintenance := chat.NewMaintenance(registry, limiter, cfg.Chat.SweepInterval, cfg.Chat.BucketStaleAge, logger)
	if err := maintenance.Start(ctx); err != nil {
		logger.Error("failed to start maintenance", "error", err)
		os.Exit(1)
	}

	connOpts := transport.DefaultConnOptions()
	connOpts.MaxMessageSize = cfg.Chat.MaxFrameBytes
	wsServer := transport.NewServer(lifecycle, logger, connOpts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(logging.RequestLogger(logger))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		http.ServeFile(w, req, filepath.Join(cfg.Server.StaticDir, "index.html"))
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir))))
	r.Get("/ws", wsServer.Handle)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(collector.Snapshot())
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"url", fmt.Sprintf("http://%s:%d", netutil.LanIP(), cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Close live sessions with an explicit reason before tearing the
	// HTTP server down.
	for _, s := range registry.Snapshot() {
		s.Link().Close("server shutting down")
	}

	maintenance.Stop()
	bus.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
