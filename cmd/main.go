// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sayandebsingha425/event-booking-system/internal/cache"
	"github.com/sayandebsingha425/event-booking-system/internal/database"
	"github.com/sayandebsingha425/event-booking-system/internal/handler"
	"github.com/sayandebsingha425/event-booking-system/internal/ledger"
	"github.com/sayandebsingha425/event-booking-system/internal/repository"
	"github.com/sayandebsingha425/event-booking-system/migrations"
)

const listingCacheTTL = 5 * time.Second

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := context.Background()

	// ── 1. Connect to PostgreSQL and apply migrations ─────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := migrations.Apply(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	store := repository.NewPostgres(pool)

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log.With().Str("component", "ledger").Logger()),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		listCache, err := cache.New(ctx, addr, listingCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer listCache.Close()
		log.Info().Str("addr", addr).Msg("listing cache enabled")
		ledgerOpts = append(ledgerOpts, ledger.WithListCache(listCache))
	}

	inventory := ledger.New(store, ledgerOpts...)
	eventHandler := handler.NewEventHandler(inventory)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.AccessLog(log))  // structured access log
	r.Use(handler.CORS)            // permissive CORS for demo

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.CreateEvent)
			r.Get("/", eventHandler.ListEvents)
			r.Get("/{id}", eventHandler.GetEvent)
			r.Post("/{id}/book", eventHandler.BookSeats)
			r.Post("/{id}/seats", eventHandler.AdjustSeats)
		})
		r.Get("/users/{userId}/bookings", eventHandler.UserBookings)
		r.Delete("/bookings/{bookingId}", eventHandler.CancelBooking)
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Info().Str("port", port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
