package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hkconnectrates/internal/config"
	"hkconnectrates/internal/feishu"
	"hkconnectrates/internal/ratelimit"
	"hkconnectrates/internal/sse"
	"hkconnectrates/internal/syncjob"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.SetDefault(newLogger(cfg, os.Stderr))

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	started := time.Now()
	fmt.Println("Syncing Stock Connect exchange rates...")
	fmt.Println("================================================")

	report, err := run(ctx, cfg)
	if err != nil {
		slog.Error("sync failed", "error", err)
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		cancel()
		os.Exit(1)
	}

	fmt.Printf("Fetched %d dates, %d already recorded, %d without any rate\n",
		report.Fetched, report.Skipped, report.Dropped)
	if report.Appended == 0 {
		fmt.Println("No new rates to append")
	} else {
		fmt.Printf("Appended %d rows (%d settlement, %d reference)\n",
			report.Appended, report.Settlement, report.Reference)
	}
	fmt.Println("================================================")
	fmt.Printf("Sync completed in %s\n", time.Since(started).Round(time.Millisecond))
}

// run builds the job from cfg and performs one sync pass bounded by cfg.SyncTimeout
func run(ctx context.Context, cfg *config.Config) (syncjob.Report, error) {
	limiter := ratelimit.New(map[ratelimit.API]float64{
		ratelimit.APISSE:    cfg.SSERateLimit,
		ratelimit.APIFeishu: cfg.FeishuRateLimit,
	})

	source := sse.NewRateFetcher(cfg.SSEBaseURL, limiter)
	sheet := feishu.NewSheetStore(cfg.FeishuBaseURL, cfg.AppID, cfg.AppSecret, feishu.SheetParams{
		SpreadsheetToken: cfg.TableToken,
		SheetID:          cfg.SheetID,
		HeaderRows:       cfg.HeaderRows,
		BatchSize:        cfg.AppendBatchSize,
	}, limiter)

	// Add timeout to prevent hanging indefinitely
	runCtx, runCancel := context.WithTimeout(ctx, cfg.SyncTimeout)
	defer runCancel()

	return syncjob.New(source, sheet).Run(runCtx)
}

// newLogger builds the process logger from the configured level and format
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
