package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/healthsync/internal/api"
	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/outbox"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/source"
	"example.com/healthsync/internal/syncer"
	httptransport "example.com/healthsync/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, cfg.SyncEventsTopic)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	garmin := source.NewGarminClient(source.GarminConfig{
		BaseURL:      cfg.GarminBaseURL,
		Token:        cfg.GarminToken,
		FetchTimeout: cfg.FetchTimeout,
	})

	limiter := syncer.NewRateLimiter(cfg.RateLimitInterval)
	board := syncer.NewStatusBoard()
	orchestrator := syncer.NewOrchestrator(garmin, repo, limiter, board, syncer.Config{
		Epoch:                cfg.SyncEpoch,
		EmptyStreakThreshold: cfg.EmptyStreakThreshold,
		SkipForwardDays:      cfg.SkipForwardDays,
		FetchAttempts:        cfg.FetchAttempts,
		RetryBaseDelay:       cfg.RetryBaseDelay,
	})

	handler := api.NewHandler(lifecycleService{ctx: ctx, orchestrator: orchestrator}, repo)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(cors(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("healthsync listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	orchestrator.Wait()
	dispatcher.Wait()
}

// lifecycleService binds sync runs to the service context, so a finished
// trigger request does not cancel its sync but process shutdown does.
type lifecycleService struct {
	ctx          context.Context
	orchestrator *syncer.Orchestrator
}

func (s lifecycleService) SyncStream(_ context.Context, stream domain.StreamID) error {
	return s.orchestrator.SyncStream(s.ctx, stream)
}

func (s lifecycleService) SyncAll(context.Context) []domain.StreamID {
	return s.orchestrator.SyncAll(s.ctx)
}

func (s lifecycleService) Status() []syncer.StatusEntry {
	return s.orchestrator.Status()
}
