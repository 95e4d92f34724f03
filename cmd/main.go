// bidwatch collector-service
//
// Scheduled collection of public tender notices:
//   - fetches the 官公需情報ポータル API and municipal RSS feeds
//   - deduplicates against the known-keys index
//   - scores postings against the configured keyword set
//   - dispatches HIGH-tier alerts immediately, digests the rest
//
// Exposes POST /runs (manual trigger, ?test=true), GET /export.csv
// (dashboard projection) and GET /health.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/miyazaki-CS/bidding-system/internal/api"
	"github.com/miyazaki-CS/bidding-system/internal/config"
	"github.com/miyazaki-CS/bidding-system/internal/db"
	"github.com/miyazaki-CS/bidding-system/internal/runner"
	"github.com/miyazaki-CS/bidding-system/internal/scheduler"
	"github.com/miyazaki-CS/bidding-system/internal/store"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[collector-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[collector-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[collector-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[collector-service] PostgreSQL connected ✓")

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("[collector-service] Schema: %v", err)
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[collector-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[collector-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[collector-service] Redis connected ✓")

	// ── Scheduler ────────────────────────────────────────────────────────────
	r := runner.New(cfg, st, rdb)
	sched := scheduler.New(r, cfg.CronSpec)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[collector-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := api.NewHandler(r, st)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[collector-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[collector-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[collector-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[collector-service] Shutdown error: %v", err)
	}
	log.Println("[collector-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "collector-service",
		"version": version,
	})
}
