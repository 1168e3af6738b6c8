// Command backfill pulls full history for every stream in one shot. Unlike
// the API-triggered sync it never skips forward, so every day since the
// epoch gets probed exactly once.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/domain"
	persistence "example.com/healthsync/internal/persistence/postgres"
	"example.com/healthsync/internal/source"
	"example.com/healthsync/internal/syncer"
)

func main() {
	var (
		epochFlag    = flag.String("epoch", "", "start date YYYY-MM-DD, defaults to SYNC_EPOCH")
		intervalFlag = flag.Duration("interval", 500*time.Millisecond, "spacing between source calls")
		streamFlag   = flag.String("stream", "", "backfill a single stream instead of all")
	)
	flag.Parse()

	cfg := config.Load()

	epoch := cfg.SyncEpoch
	if *epochFlag != "" {
		parsed, err := time.Parse(domain.DateFormat, *epochFlag)
		if err != nil {
			log.Fatalf("invalid -epoch: %v", err)
		}
		epoch = parsed
	}

	streams := domain.Streams()
	if *streamFlag != "" {
		stream := domain.StreamID(*streamFlag)
		if !domain.KnownStream(stream) {
			log.Fatalf("unknown stream %q", *streamFlag)
		}
		streams = []domain.StreamID{stream}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownCh
		log.Printf("interrupted, stopping after current window")
		cancel()
	}()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	garmin := source.NewGarminClient(source.GarminConfig{
		BaseURL:      cfg.GarminBaseURL,
		Token:        cfg.GarminToken,
		FetchTimeout: cfg.FetchTimeout,
	})

	limiter := syncer.NewRateLimiter(*intervalFlag)
	board := syncer.NewStatusBoard()

	// EmptyStreakThreshold zero disables skip-forwards for the full walk.
	runCfg := syncer.Config{
		Epoch:                epoch,
		EmptyStreakThreshold: 0,
		FetchAttempts:        cfg.FetchAttempts,
		RetryBaseDelay:       cfg.RetryBaseDelay,
	}

	start := time.Now()
	for _, stream := range streams {
		if ctx.Err() != nil {
			break
		}
		log.Printf("backfilling %s from %s", stream, epoch.Format(domain.DateFormat))
		runner := syncer.NewStreamSyncer(stream, garmin, repo, limiter, board, runCfg)
		runner.Run(ctx)
	}

	log.Printf("backfill finished in %s", time.Since(start).Round(time.Second))
	for _, entry := range board.Snapshot() {
		if entry.ErrorMessage != "" {
			log.Printf("  %-12s %s: %s", entry.Stream, entry.Status, entry.ErrorMessage)
			continue
		}
		log.Printf("  %-12s %s: %s", entry.Stream, entry.Status, entry.Message)
	}
}
