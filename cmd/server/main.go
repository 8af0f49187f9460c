// Package main is the entry point for the Orket kernel server: the
// Coordinator HTTP Surface and the Validator Front-End's JSON endpoints,
// wired together behind one chi router.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/McElyea/orket-kernel/internal/config"
	"github.com/McElyea/orket-kernel/internal/coordinator"
	"github.com/McElyea/orket-kernel/internal/database"
	"github.com/McElyea/orket-kernel/internal/handler"
	"github.com/McElyea/orket-kernel/internal/kernel"
	"github.com/McElyea/orket-kernel/internal/ledgerstore"
	"github.com/McElyea/orket-kernel/internal/middleware"
	"github.com/McElyea/orket-kernel/internal/pkg/response"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Info("starting orket kernel server",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
		slog.String("workspace_root", cfg.Kernel.WorkspaceRoot),
	)

	cardStore := coordinator.New()

	var redisConn *database.Redis
	if cfg.Redis.Enabled {
		redisConn, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisConn.Close()
		cardStore.SetMirror(coordinator.NewRedisMirror(redisConn.Client(), 24*time.Hour))
		logger.Info("connected to redis, card mirror enabled")
	}

	var ledger *ledgerstore.Store
	if cfg.Database.Enabled {
		ledger, err = ledgerstore.New(cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to ledger database: %v", err)
		}
		defer ledger.Close()
		if err := ledger.RunMigrations(cfg.Database); err != nil {
			log.Fatalf("failed to run ledger migrations: %v", err)
		}
		logger.Info("connected to ledger database, promotion audit mirror enabled")
	}

	policy := kernel.LoadCapabilityPolicy(cfg.Kernel.CapabilityPolicyPath)
	validator := kernel.NewValidator(policy, cfg.Kernel.WorkspaceRoot)

	cardHandler := handler.NewCardHandler(cardStore)
	kernelHandler := handler.NewKernelHandler(validator, ledger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(redisConn, ledger))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, map[string]string{
				"name":    "Orket Kernel API",
				"version": kernel.ContractVersion,
			})
		})
		r.Mount("/cards", cardHandler.Routes())
		r.Mount("/kernel", kernelHandler.Routes())

		if cfg.Kernel.AdminResetEnabled {
			r.Post("/admin/reset", adminResetHandler(cardStore))
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	logger.Info("server stopped gracefully")
}

// healthHandler always reports ok if the process is running.
func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	}
}

// readyHandler checks the optional mirrors' connectivity; a server run with
// no mirrors configured is always ready.
func readyHandler(redisConn *database.Redis, ledger *ledgerstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if redisConn != nil {
			if err := redisConn.Ping(ctx); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "component": "redis"})
				return
			}
		}
		if ledger != nil {
			if err := ledger.Ping(ctx); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "component": "ledger"})
				return
			}
		}
		response.OK(w, map[string]string{"status": "ok"})
	}
}

// adminResetHandler reseeds the card table, the Go translation of the
// source system's module-level reset(cards) test hook.
func adminResetHandler(store *coordinator.Store) http.HandlerFunc {
	type resetRequest struct {
		Cards []coordinator.Card `json:"cards"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}
		store.Reset(req.Cards)
		response.OK(w, map[string]int{"cards": len(req.Cards)})
	}
}
